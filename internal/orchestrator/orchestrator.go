package orchestrator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"

	"github.com/mcolatosti/AWSAccountFactory/internal/constants"
	"github.com/mcolatosti/AWSAccountFactory/internal/dao/accountdao"
	"github.com/mcolatosti/AWSAccountFactory/internal/errors"
	"github.com/mcolatosti/AWSAccountFactory/internal/models"
	"github.com/mcolatosti/AWSAccountFactory/internal/provider"
	"github.com/mcolatosti/AWSAccountFactory/internal/services"
)

const (
	rootFailureReason = "Cannot access the AWS Organization ROOT. Contact the master account Administrator for more details.Deleting Lambda Function."
	updateMessage     = "Resource update successful!"
	createdMessage    = "Account Created!"
)

// Organizations is the subset of *services.OrganizationsService the
// orchestrator uses
type Organizations interface {
	RootID(ctx context.Context) (string, error)
	CreateAccount(ctx context.Context, input services.CreateAccountInput) (*models.AccountRecord, error)
	EnsureOrganizationalUnit(ctx context.Context, parentID, name string) (string, error)
	MoveAccount(ctx context.Context, accountID, sourceID, destinationID string) error
	AttachPolicy(ctx context.Context, policyID, targetID string) error
}

// CredentialBroker assumes roles in member accounts
type CredentialBroker interface {
	Assume(ctx context.Context, accountID, roleName string) (*services.Credentials, error)
}

// Function re-invokes the running Lambda function
type Function interface {
	SelfInvoke(ctx context.Context, req models.ProvisioningRequest) error
}

// Reporter sends the provisioning callback
type Reporter interface {
	Success(ctx context.Context, req models.ProvisioningRequest, data map[string]interface{}) error
	Failure(ctx context.Context, req models.ProvisioningRequest, reason string) error
	DeleteAcknowledged(ctx context.Context, req models.ProvisioningRequest) error
}

// RunLedger records provisioning runs. *accountdao.DAO satisfies it.
type RunLedger interface {
	Create(ctx context.Context, input accountdao.CreateInput) (accountdao.Record, error)
	UpdateStatus(ctx context.Context, input accountdao.UpdateInput) error
}

// Dependencies groups everything New needs. Ledger, Locker, Checker and
// Renderer are optional.
type Dependencies struct {
	Organizations Organizations
	Broker        CredentialBroker
	Function      Function
	Reporter      Reporter
	Clients       services.ClientFactory
	Ledger        RunLedger
	Locker        services.BucketLocker
	Checker       services.PolicyChecker
	Renderer      *provider.Renderer
	Params        models.AccountParams
	Settings      services.Settings
	Policies      services.RetryPolicies
}

// Orchestrator handles provisioning requests, one handler per action
type Orchestrator struct {
	orgs     Organizations
	broker   CredentialBroker
	function Function
	reporter Reporter
	clients  services.ClientFactory
	ledger   RunLedger
	locker   services.BucketLocker
	checker  services.PolicyChecker
	renderer *provider.Renderer
	params   models.AccountParams
	settings services.Settings
	policies services.RetryPolicies
	newRunID func() string
}

// New creates a new Orchestrator instance
func New(deps Dependencies) *Orchestrator {
	renderer := deps.Renderer
	if renderer == nil {
		renderer = provider.MustDefaultRenderer()
	}
	return &Orchestrator{
		orgs:     deps.Organizations,
		broker:   deps.Broker,
		function: deps.Function,
		reporter: deps.Reporter,
		clients:  deps.Clients,
		ledger:   deps.Ledger,
		locker:   deps.Locker,
		checker:  deps.Checker,
		renderer: renderer,
		params:   deps.Params,
		settings: deps.Settings,
		policies: deps.Policies,
		newRunID: func() string { return ksuid.New().String() },
	}
}

// Handle dispatches req to the handler of its action. Wait and unrecognized
// request types do nothing.
func (o *Orchestrator) Handle(ctx context.Context, req models.ProvisioningRequest) error {
	logger := zerolog.Ctx(ctx).With().
		Str("request_type", req.RequestType).
		Str("request_id", req.RequestId).
		Logger()
	ctx = logger.WithContext(ctx)

	switch req.Action() {
	case models.ActionCreate:
		return o.handleCreate(ctx, req)
	case models.ActionUpdate:
		return o.handleUpdate(ctx, req)
	case models.ActionDelete:
		return o.handleDelete(ctx, req)
	case models.ActionWait:
		logger.Info().Msg("Wait request, nothing to do")
		return nil
	default:
		logger.Info().Err(errors.ErrUnsupportedRequestType).Msg("Ignoring request")
		return nil
	}
}

func (o *Orchestrator) handleUpdate(ctx context.Context, req models.ProvisioningRequest) error {
	zerolog.Ctx(ctx).Info().Msg("Template in update status")

	if err := o.reporter.Success(ctx, req, map[string]interface{}{"Message": updateMessage}); err != nil {
		return fmt.Errorf("failed to report update: %w", err)
	}
	return nil
}

// handleDelete never fails; the framework must not be left waiting on a
// delete because of a callback or self-delete problem.
func (o *Orchestrator) handleDelete(ctx context.Context, req models.ProvisioningRequest) error {
	logger := zerolog.Ctx(ctx)

	if err := o.reporter.DeleteAcknowledged(ctx, req); err != nil {
		logger.Warn().Err(err).Msg("Couldn't complete delete response")
		return nil
	}

	logger.Info().Msg("Delete request acknowledged")
	return nil
}

// run holds the state of one Create
type run struct {
	id        string
	ledgerID  accountdao.ID
	req       models.ProvisioningRequest
	accountID string
	ouID      string
	degraded  []string
}

func (r *run) roleDone(result services.RoleResult) {
	if result.Degraded {
		r.degraded = append(r.degraded, result.Name)
	}
}

func (o *Orchestrator) fail(ctx context.Context, r *run, reason string, cause error) error {
	logger := zerolog.Ctx(ctx)
	logger.Error().Err(cause).Str("reason", reason).Msg("Account creation failed")

	o.finishRun(ctx, r, accountdao.StatusFailed, reason)

	if err := o.reporter.Failure(ctx, r.req, reason); err != nil {
		logger.Error().Err(err).Msg("Failed to report failure")
	}
	return cause
}

func (o *Orchestrator) startRun(ctx context.Context, r *run) {
	if o.ledger == nil {
		return
	}

	record, err := o.ledger.Create(ctx, accountdao.CreateInput{
		AccountName: o.params.AccountName,
		SK:          r.id,
		Email:       o.params.AccountEmail,
		ParentHub:   o.params.ParentHub,
		Topology:    string(o.params.Topology),
		RequestID:   r.req.RequestId,
		StackID:     r.req.StackId,
	})
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to record run")
		return
	}
	r.ledgerID = record.GetID()
}

func (o *Orchestrator) updateRun(ctx context.Context, r *run, input accountdao.UpdateInput) {
	if o.ledger == nil || r.ledgerID == "" {
		return
	}

	input.ID = r.ledgerID
	if err := o.ledger.UpdateStatus(ctx, input); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Stringer("run", r.ledgerID).Msg("Failed to update run")
	}
}

func (o *Orchestrator) finishRun(ctx context.Context, r *run, status accountdao.Status, reason string) {
	input := accountdao.UpdateInput{
		Status:        &status,
		DegradedRoles: r.degraded,
	}
	if r.accountID != "" {
		input.AccountID = &r.accountID
	}
	if r.ouID != "" {
		input.OUID = &r.ouID
	}
	if reason != "" {
		input.FailureReason = &reason
	}
	o.updateRun(ctx, r, input)
}

func (o *Orchestrator) iamService(creds *services.Credentials) *services.IAMService {
	return services.NewIAMService(o.clients.IAM(creds), creds.AccountID, o.policies, o.checker, o.params.IaCAccountID)
}

func (o *Orchestrator) bucketService(creds *services.Credentials, holder string) *services.BucketService {
	return services.NewBucketService(o.clients.S3(creds), o.policies, o.checker, o.locker, holder)
}

// preferredAZs never returns nil so the callback always carries a list
func preferredAZs(region string) []string {
	if azs, ok := constants.PreferredAZs[region]; ok {
		return azs
	}
	return []string{}
}
