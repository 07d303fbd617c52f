package orchestrator

import (
	"github.com/mcolatosti/AWSAccountFactory/internal/constants"
	"github.com/mcolatosti/AWSAccountFactory/internal/models"
	"github.com/mcolatosti/AWSAccountFactory/internal/policy"
	"github.com/mcolatosti/AWSAccountFactory/internal/provider"
	"github.com/mcolatosti/AWSAccountFactory/internal/services"
)

// blueprint derives the names and documents of everything a Create run
// applies from the account inputs
type blueprint struct {
	params   models.AccountParams
	settings services.Settings
}

func (b blueprint) parentBucket() string {
	return provider.BucketName(b.settings.BucketPrefix, b.params.ParentHub)
}

func (b blueprint) hubBucket() string {
	return provider.BucketName(b.settings.BucketPrefix, b.params.AccountName)
}

// agentRoles are the hub's build and deploy roles in the IaC account
func (b blueprint) agentRoles(accountID string) []services.RoleSpec {
	agents := []struct {
		prefix        string
		terraformRole string
	}{
		{constants.BuildRolePrefix, constants.TerraformReaderRoleName},
		{constants.DeployRolePrefix, constants.TerraformWriterRoleName},
	}

	specs := make([]services.RoleSpec, 0, len(agents))
	for _, agent := range agents {
		agentPolicy := policy.HubAgentPolicy(accountID, b.params.AccountName, agent.terraformRole)
		specs = append(specs, services.RoleSpec{
			Name:            agent.prefix + b.params.ParentHub,
			Description:     "IaC agent for hub " + b.params.ParentHub,
			Trust:           policy.EC2TrustPolicy(),
			Policy:          &agentPolicy,
			InstanceProfile: true,
		})
	}
	return specs
}

func (b blueprint) bucketRole() services.RoleSpec {
	access := policy.BucketAccessPolicy(b.parentBucket(), b.params.AccountName)
	return services.RoleSpec{
		Name:        constants.BucketRolePrefix + b.params.AccountName,
		Description: "IaC bucket access for " + b.params.AccountName,
		Trust:       policy.BucketAccessTrustPolicy(b.params.IaCAccountID, b.params.ParentHub),
		Policy:      &access,
	}
}

// agentGrant is an inline policy added to an existing agent role
type agentGrant struct {
	role       string
	policyName string
	document   policy.Document
}

func (b blueprint) agentGrants(accountID string) []agentGrant {
	grants := []struct {
		prefix        string
		sid           string
		terraformRole string
	}{
		{constants.BuildRolePrefix, "ALLOWTERRAFORMREADERASSUME", constants.TerraformReaderRoleName},
		{constants.DeployRolePrefix, "ALLOWTERRAFORMWRITERASSUME", constants.TerraformWriterRoleName},
	}

	result := make([]agentGrant, 0, len(grants))
	for _, grant := range grants {
		role := grant.prefix + b.params.ParentHub
		policyName := grant.prefix + b.params.AccountName
		if role == policyName {
			// a hub's own agent policy already covers its terraform roles and
			// shares this name
			continue
		}
		result = append(result, agentGrant{
			role:       role,
			policyName: policyName,
			document:   policy.TerraformAssumePolicy(grant.sid, accountID, b.params.AccountName, grant.terraformRole),
		})
	}
	return result
}

// terraformRoles are created in the new account for the parent hub's agents
func (b blueprint) terraformRoles() []services.RoleSpec {
	roles := []struct {
		name    string
		agent   string
		managed string
	}{
		{constants.TerraformReaderRoleName, constants.BuildRolePrefix + b.params.ParentHub, constants.ReadOnlyAccessPolicyARN},
		{constants.TerraformWriterRoleName, constants.DeployRolePrefix + b.params.ParentHub, constants.AdministratorAccessPolicyARN},
	}

	specs := make([]services.RoleSpec, 0, len(roles))
	for _, role := range roles {
		access := policy.TerraformRolePolicy(b.parentBucket(), b.params.AccountName)
		specs = append(specs, services.RoleSpec{
			Name:              role.name,
			Description:       "Terraform role assumed by " + role.agent,
			Trust:             policy.AssumeRoleTrustPolicy(policy.RoleARN(b.params.IaCAccountID, role.agent)),
			Policy:            &access,
			ManagedPolicyARNs: []string{role.managed},
		})
	}
	return specs
}

// PlannedPolicy is one policy document a Create run would apply
type PlannedPolicy struct {
	Account    string          `json:"account" yaml:"account"` // account the document lands in
	Target     string          `json:"target" yaml:"target"`   // role or bucket name
	Name       string          `json:"name" yaml:"name"`
	Kind       policy.Kind     `json:"kind" yaml:"kind"`
	Document   policy.Document `json:"document" yaml:"document"`
	Violations []string        `json:"violations,omitempty" yaml:"violations,omitempty"`
}

// Plan lists every policy document a Create run for params applies, in the
// order the run applies them. accountID is the id of the member account.
func Plan(params models.AccountParams, settings services.Settings, accountID string) []PlannedPolicy {
	b := blueprint{params: params, settings: settings}
	iac := params.IaCAccountID

	var plan []PlannedPolicy
	addRole := func(account string, spec services.RoleSpec) {
		plan = append(plan, PlannedPolicy{Account: account, Target: spec.Name, Name: "trust", Kind: policy.KindTrust, Document: spec.Trust})
		if spec.Policy != nil {
			plan = append(plan, PlannedPolicy{Account: account, Target: spec.Name, Name: spec.Name, Kind: policy.KindIdentity, Document: *spec.Policy})
		}
	}

	if params.IsHub() {
		if settings.ManageBucketPolicy {
			bucket := b.hubBucket()
			plan = append(plan, PlannedPolicy{Account: iac, Target: bucket, Name: "bucket-policy", Kind: policy.KindResource, Document: policy.BucketBaselinePolicy(bucket)})
		}
		for _, spec := range b.agentRoles(accountID) {
			addRole(iac, spec)
		}
	}

	bucketRole := b.bucketRole()
	addRole(iac, bucketRole)

	if settings.ManageBucketPolicy {
		bucket := b.parentBucket()
		stmt := policy.BucketRoleStatement(bucket, params.AccountName, policy.RoleARN(iac, bucketRole.Name))
		plan = append(plan, PlannedPolicy{Account: iac, Target: bucket, Name: stmt.Sid, Kind: policy.KindResource, Document: policy.NewDocument(stmt)})
	}

	for _, grant := range b.agentGrants(accountID) {
		plan = append(plan, PlannedPolicy{Account: iac, Target: grant.role, Name: grant.policyName, Kind: policy.KindIdentity, Document: grant.document})
	}

	for _, spec := range b.terraformRoles() {
		addRole(accountID, spec)
	}
	return plan
}
