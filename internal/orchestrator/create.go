package orchestrator

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mcolatosti/AWSAccountFactory/internal/constants"
	"github.com/mcolatosti/AWSAccountFactory/internal/dao/accountdao"
	"github.com/mcolatosti/AWSAccountFactory/internal/errors"
	"github.com/mcolatosti/AWSAccountFactory/internal/models"
	"github.com/mcolatosti/AWSAccountFactory/internal/policy"
	"github.com/mcolatosti/AWSAccountFactory/internal/provider"
	"github.com/mcolatosti/AWSAccountFactory/internal/retry"
	"github.com/mcolatosti/AWSAccountFactory/internal/services"
)

// handleCreate provisions the account and its IaC plumbing. Only failures
// that leave nothing to build on (root lookup, account creation, role
// assumption) abort the run; every later step logs and carries on.
func (o *Orchestrator) handleCreate(ctx context.Context, req models.ProvisioningRequest) error {
	params := o.params
	logger := zerolog.Ctx(ctx).With().
		Str("account_name", params.AccountName).
		Str("parent_hub", params.ParentHub).
		Str("topology", string(params.Topology)).
		Logger()
	ctx = logger.WithContext(ctx)

	if err := o.function.SelfInvoke(ctx, req); err != nil {
		logger.Warn().Err(err).Msg("Failed to self invoke")
	}

	if account, err := req.TopLevelAccount(); err == nil {
		logger.Info().Str("management_account", account).Msg("Create request received")
	}

	r := &run{id: o.newRunID(), req: req}
	o.startRun(ctx, r)

	if err := services.ValidateAccountParams(params); err != nil {
		return o.fail(ctx, r, fmt.Sprintf("Account Creation Failed. %v. Deleting Lambda Function.", err), err)
	}

	rootID, err := o.orgs.RootID(ctx)
	if err != nil {
		return o.fail(ctx, r, rootFailureReason, err)
	}
	logger.Info().Str("root_id", rootID).Msg("Found organization root")

	accountID, err := o.resolveAccount(ctx)
	if err != nil {
		reason := fmt.Sprintf("Account Creation Failed. Deleting Lambda Function.%v.", err)
		var failed *accountFailure
		if stderrors.As(err, &failed) && failed.reason != "" {
			reason = failed.reason
		}
		return o.fail(ctx, r, reason, err)
	}
	r.accountID = accountID
	o.updateRun(ctx, r, accountdao.UpdateInput{AccountID: &r.accountID})

	logger = logger.With().Str("account_id", accountID).Logger()
	ctx = logger.WithContext(ctx)

	// the first assume only proves the new account is reachable
	if _, err := o.broker.Assume(ctx, accountID, params.AccountRole); err != nil {
		return o.fail(ctx, r, assumeFailureReason(accountID, params.AccountRole), err)
	}

	iacCreds, err := o.broker.Assume(ctx, params.IaCAccountID, params.AccountRole)
	if err != nil {
		return o.fail(ctx, r, assumeFailureReason(params.IaCAccountID, params.AccountRole), err)
	}

	iam := o.iamService(iacCreds)
	buckets := o.bucketService(iacCreds, r.id)

	var bucketRole services.RoleResult
	if params.IsHub() {
		bucketRole = o.provisionHub(ctx, r, iam, buckets)
	} else {
		logger.Info().Msg("Provisioning spoke account")
		bucketRole = o.createRole(ctx, r, iam, o.blueprint().bucketRole())
	}

	if o.settings.ManageBucketPolicy {
		o.grantBucketAccess(ctx, buckets, bucketRole)
	}

	o.grantAgentAccess(ctx, r, iam)
	o.uploadProviders(ctx, r, buckets)

	accountCreds, err := o.broker.Assume(ctx, accountID, params.AccountRole)
	if err != nil {
		return o.fail(ctx, r, assumeFailureReason(accountID, params.AccountRole), err)
	}

	// new account roles are not usable by IAM right away
	if err := retry.Sleep(ctx, o.policies.RoleSettle); err != nil {
		return o.fail(ctx, r, "Account Creation Failed. Run cancelled. Deleting Lambda Function.", err)
	}
	o.createTerraformRoles(ctx, r, o.iamService(accountCreds))

	if params.RemoveDefaultVPC {
		o.removeDefaultVPCs(ctx, accountCreds)
	}

	o.placeAccount(ctx, r, params.IsHub())

	o.finishRun(ctx, r, accountdao.StatusSucceeded, "")

	data := map[string]interface{}{
		"Message":      createdMessage,
		"LoginURL":     fmt.Sprintf("https://%s.signin.aws.amazon.com/console?region=%s#", accountID, params.StackRegion),
		"AccountID":    accountID,
		"Role":         constants.TerraformWriterRoleName,
		"Stackregion":  params.StackRegion,
		"PreferredAZs": preferredAZs(params.StackRegion),
	}
	if len(r.degraded) > 0 {
		data["DegradedRoles"] = r.degraded
		logger.Warn().Strs("roles", r.degraded).Msg("Account created with unconfirmed roles")
	}

	if err := o.reporter.Success(ctx, req, data); err != nil {
		return fmt.Errorf("failed to report account creation: %w", err)
	}

	logger.Info().Msg("Account created")
	return nil
}

// accountFailure carries the reason AWS gave for a failed account creation
type accountFailure struct {
	reason string
	err    error
}

func (e *accountFailure) Error() string { return e.err.Error() }
func (e *accountFailure) Unwrap() error { return e.err }

// resolveAccount creates the member account, or returns the configured
// account id in test mode
func (o *Orchestrator) resolveAccount(ctx context.Context) (string, error) {
	logger := zerolog.Ctx(ctx)
	params := o.params

	if params.TestMode {
		logger.Warn().Str("account_id", params.TestAccountID).Msg("Test mode, using existing account")
		return params.TestAccountID, nil
	}

	logger.Info().
		Str("email", params.AccountEmail).
		Str("role", params.AccountRole).
		Str("access_to_billing", params.AccessToBilling).
		Msg("Creating new account")

	record, err := o.orgs.CreateAccount(ctx, services.CreateAccountInput{
		AccountName:     params.AccountName,
		Email:           params.AccountEmail,
		RoleName:        params.AccountRole,
		AccessToBilling: params.AccessToBilling,
	})
	if err != nil {
		failure := &accountFailure{err: err}
		if record != nil && stderrors.Is(err, errors.ErrAccountCreationFailed) {
			failure.reason = record.FailureReason
		}
		return "", failure
	}
	return record.AccountID, nil
}

func assumeFailureReason(accountID, role string) string {
	return fmt.Sprintf("Account Creation Failed. Cannot assume %s in account %s. Deleting Lambda Function.", role, accountID)
}

func (o *Orchestrator) createRole(ctx context.Context, r *run, iam *services.IAMService, spec services.RoleSpec) services.RoleResult {
	result := iam.CreateRole(ctx, spec)
	if result.Err != nil && !result.Degraded {
		zerolog.Ctx(ctx).Error().Err(result.Err).Str("role", spec.Name).Msg("Role created with errors")
	}
	r.roleDone(result)
	return result
}

func (o *Orchestrator) blueprint() blueprint {
	return blueprint{params: o.params, settings: o.settings}
}

// provisionHub creates the hub bucket and the agent roles in the IaC account
// and returns the bucket access role
func (o *Orchestrator) provisionHub(ctx context.Context, r *run, iam *services.IAMService, buckets *services.BucketService) services.RoleResult {
	logger := zerolog.Ctx(ctx)
	b := o.blueprint()
	logger.Info().Msg("Account has been designated a hub")

	hubBucket := b.hubBucket()
	if err := buckets.CreateBucket(ctx, hubBucket, o.params.StackRegion); err != nil {
		logger.Error().Err(err).Str("bucket", hubBucket).Msg("Error creating the IaC bucket")
	} else if o.settings.ManageBucketPolicy {
		if err := buckets.PutPolicy(ctx, hubBucket, policy.BucketBaselinePolicy(hubBucket)); err != nil {
			logger.Error().Err(err).Str("bucket", hubBucket).Msg("Failed to initialise bucket policy")
		}
	}

	for _, spec := range b.agentRoles(r.accountID) {
		o.createRole(ctx, r, iam, spec)
	}

	return o.createRole(ctx, r, iam, b.bucketRole())
}

// grantBucketAccess appends the bucket side grant for the account's bucket
// access role to the parent hub bucket policy
func (o *Orchestrator) grantBucketAccess(ctx context.Context, buckets *services.BucketService, role services.RoleResult) {
	logger := zerolog.Ctx(ctx)
	if role.Degraded {
		logger.Warn().Str("role", role.Name).Msg("Bucket access role not confirmed, bucket policy left unchanged")
		return
	}

	bucket := o.blueprint().parentBucket()
	stmt := policy.BucketRoleStatement(bucket, o.params.AccountName, role.ARN)
	if _, err := buckets.AppendPolicyStatement(ctx, bucket, stmt); err != nil {
		logger.Error().Err(err).Str("bucket", bucket).Msg("Failed to append bucket policy statement")
	}
}

// grantAgentAccess lets the parent hub's agents assume the terraform roles of
// the new account
func (o *Orchestrator) grantAgentAccess(ctx context.Context, r *run, iam *services.IAMService) {
	for _, grant := range o.blueprint().agentGrants(r.accountID) {
		if err := iam.PutInlinePolicy(ctx, grant.role, grant.policyName, grant.document); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("role", grant.role).Msg("Error adding policy to agent role")
		}
	}
}

// uploadProviders writes the build and release provider files to the parent
// hub bucket
func (o *Orchestrator) uploadProviders(ctx context.Context, r *run, buckets *services.BucketService) {
	logger := zerolog.Ctx(ctx)
	params := o.params
	renderer := o.providerRenderer(ctx)
	bucket := o.blueprint().parentBucket()

	files := []struct {
		deployType    string
		terraformRole string
	}{
		{constants.DeployTypeBuild, constants.TerraformReaderRoleName},
		{constants.DeployTypeRelease, constants.TerraformWriterRoleName},
	}
	for _, file := range files {
		body, err := renderer.Render(provider.Params{
			IaCAccountID: params.IaCAccountID,
			AccountName:  params.AccountName,
			Region:       params.StackRegion,
			RoleARN:      policy.RoleARN(r.accountID, file.terraformRole),
			DeployType:   file.deployType,
		})
		if err != nil {
			logger.Error().Err(err).Str("deploy_type", file.deployType).Msg("Failed to render provider file")
			continue
		}

		key := provider.ObjectKey(params.AccountName, file.deployType)
		if err := buckets.PutObject(ctx, bucket, key, body, "text/plain"); err != nil {
			logger.Error().Err(err).Str("deploy_type", file.deployType).Msg("Failed to upload provider file")
			continue
		}
		logger.Info().Str("bucket", bucket).Str("key", key).Msg("Uploaded provider file")
	}
}

// providerRenderer returns the renderer for the baseline template in the
// source bucket when one is configured
func (o *Orchestrator) providerRenderer(ctx context.Context) *provider.Renderer {
	key := o.settings.BaselineTemplate
	bucket := o.params.SourceBucket
	if key == "" || bucket == "" {
		return o.renderer
	}

	logger := zerolog.Ctx(ctx).With().Str("bucket", bucket).Str("key", key).Logger()
	source := services.NewBucketService(o.clients.S3(nil), o.policies, nil, nil, "")
	data, err := source.GetObject(ctx, bucket, key)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to fetch baseline template, using default")
		return o.renderer
	}

	renderer, err := provider.NewRenderer(string(data))
	if err != nil {
		logger.Warn().Err(err).Msg("Invalid baseline template, using default")
		return o.renderer
	}
	return renderer
}

func (o *Orchestrator) createTerraformRoles(ctx context.Context, r *run, iam *services.IAMService) {
	for _, spec := range o.blueprint().terraformRoles() {
		o.createRole(ctx, r, iam, spec)
	}
}

func (o *Orchestrator) removeDefaultVPCs(ctx context.Context, creds *services.Credentials) {
	logger := zerolog.Ctx(ctx)

	network := services.NewNetworkService(func(region string) services.EC2Client {
		return o.clients.EC2(creds, region)
	}, o.settings.VPCCleanupConcurrency, o.policies)

	results, err := network.PurgeDefaultVPCs(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to remove default VPCs")
		return
	}

	var removed int
	for _, result := range results {
		if result.Err == nil && result.VPCID != "" {
			removed++
		}
	}
	logger.Info().Int("regions", len(results)).Int("removed", removed).Msg("Default VPC cleanup finished")
}

// placeAccount moves a hub into an OU named after it and attaches the
// configured service control policy
func (o *Orchestrator) placeAccount(ctx context.Context, r *run, hub bool) {
	logger := zerolog.Ctx(ctx)

	if hub {
		if err := o.moveToOU(ctx, r); err != nil {
			logger.Error().Err(err).Msg("Failed to place account in its organizational unit")
		}
	}

	if scp := o.settings.SCPID; scp != "" {
		if err := o.orgs.AttachPolicy(ctx, scp, r.accountID); err != nil {
			logger.Error().Err(err).Str("policy_id", scp).Msg("Failed to attach service control policy")
		}
	}
}

func (o *Orchestrator) moveToOU(ctx context.Context, r *run) error {
	rootID, err := o.orgs.RootID(ctx)
	if err != nil {
		return err
	}

	ouID, err := o.orgs.EnsureOrganizationalUnit(ctx, rootID, o.params.AccountName)
	if err != nil {
		return err
	}

	if err := o.orgs.MoveAccount(ctx, r.accountID, rootID, ouID); err != nil {
		return err
	}

	r.ouID = ouID
	zerolog.Ctx(ctx).Info().Str("ou_id", ouID).Msg("Moved account to organizational unit")
	return nil
}
