package constants

// Role names created or assumed while bootstrapping an account
const (
	// AccountAccessRoleName is the role AWS Organizations creates in every
	// member account and that the factory assumes for cross-account work
	AccountAccessRoleName = "OrganizationAccountAccessRole"

	// TerraformReaderRoleName is assumed by hub build agents for plans
	TerraformReaderRoleName = "terraform_reader"

	// TerraformWriterRoleName is assumed by hub deploy agents for applies
	TerraformWriterRoleName = "terraform_writer"

	// SessionName tags every STS session opened by the factory
	SessionName = "NewAccountRole"
)

// Role name prefixes; the suffix is an account or hub name
const (
	BuildRolePrefix     = "ec2_iacbuild_"
	DeployRolePrefix    = "ec2_iacdeploy_"
	BucketRolePrefix    = "s3_iac_"
	BucketNameSeparator = "-iac-"
)

// AWS managed policies attached to the terraform roles
const (
	ReadOnlyAccessPolicyARN      = "arn:aws:iam::aws:policy/ReadOnlyAccess"
	AdministratorAccessPolicyARN = "arn:aws:iam::aws:policy/AdministratorAccess"
)

// Deploy types used in provider file names
const (
	DeployTypeBuild   = "build"
	DeployTypeRelease = "release"
)

// DefaultBucketPrefix is used when bucket_prefix is not configured
const DefaultBucketPrefix = "yourcompanynameORcustomprefix"

// ManagedByTag is applied to every IAM resource the factory creates
const ManagedByTag = "account-factory"
