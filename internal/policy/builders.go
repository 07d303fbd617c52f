package policy

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/mcolatosti/AWSAccountFactory/internal/constants"
)

// RoleARN returns arn:aws:iam::{account}:role/{name}
func RoleARN(accountID, roleName string) string {
	return fmt.Sprintf("arn:aws:iam::%s:role/%s", accountID, roleName)
}

// BucketARN returns arn:aws:s3:::{bucket}
func BucketARN(bucket string) string {
	return "arn:aws:s3:::" + bucket
}

// ObjectARN returns the ARN of a key pattern inside bucket
func ObjectARN(bucket, pattern string) string {
	return BucketARN(bucket) + "/" + strings.TrimPrefix(pattern, "/")
}

// Sid joins parts into a statement id. IAM only accepts alphanumerics, so
// anything else in an account name is dropped.
func Sid(parts ...string) string {
	var b strings.Builder
	for _, part := range parts {
		for _, r := range part {
			if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

// EC2TrustPolicy lets EC2 instances assume the role through an instance profile
func EC2TrustPolicy() Document {
	return NewDocument(Statement{
		Effect:    Allow,
		Principal: &Principal{Service: Values("ec2.amazonaws.com")},
		Action:    Values(ActionAssumeRole),
	})
}

// AssumeRoleTrustPolicy trusts the given role ARNs
func AssumeRoleTrustPolicy(principalARNs ...string) Document {
	return NewDocument(Statement{
		Effect:    Allow,
		Principal: &Principal{AWS: Values(principalARNs...)},
		Action:    Values(ActionAssumeRole),
	})
}

// HubAgentPolicy is attached to a hub build or deploy agent role. It lets the
// agent assume the terraform role of the hub account and the hub's bucket
// access role.
func HubAgentPolicy(accountID, accountName, terraformRole string) Document {
	return NewDocument(Statement{
		Sid:    "AllowHUBTerraformRoleAssume",
		Effect: Allow,
		Action: Values(ActionAssumeRole),
		Resource: Values(
			RoleARN(accountID, terraformRole),
			RoleARN(accountID, constants.BucketRolePrefix+accountName),
		),
	})
}

// BucketAccessPolicy scopes an account's s3_iac role to its own prefixes in
// the hub IaC bucket.
func BucketAccessPolicy(bucket, accountName string) Document {
	return NewDocument(
		Statement{
			Sid:      Sid("ALLOWIACBUCKETREAD", accountName),
			Effect:   Allow,
			Action:   Values("s3:List*"),
			Resource: Values(BucketARN(bucket)),
		},
		Statement{
			Sid:      Sid("ALLOWIACACCESSREAD", accountName),
			Effect:   Allow,
			Action:   Values("s3:Get*", "s3:List*"),
			Resource: Values(ObjectARN(bucket, "providers/"+accountName+"/*")),
		},
		Statement{
			Sid:    Sid("ALLOWIACACCESSWRITE", accountName),
			Effect: Allow,
			Action: Values("s3:DeleteObject", "s3:Get*", "s3:List*", "s3:PutObject"),
			Resource: Values(
				ObjectARN(bucket, "release_artifacts/"+accountName+"/*"),
				ObjectARN(bucket, "terraformstate/"+accountName+"/*"),
			),
		},
	)
}

// BucketAccessTrustPolicy trusts the build and deploy agent roles of hub
func BucketAccessTrustPolicy(iacAccountID, hub string) Document {
	return AssumeRoleTrustPolicy(
		RoleARN(iacAccountID, constants.BuildRolePrefix+hub),
		RoleARN(iacAccountID, constants.DeployRolePrefix+hub),
	)
}

// TerraformRolePolicy grants a terraform role object access to its account
// folders in the hub bucket.
func TerraformRolePolicy(bucket, accountName string) Document {
	return NewDocument(Statement{
		Effect:   Allow,
		Action:   Values("s3:GetObject", "s3:PutObject"),
		Resource: Values(ObjectARN(bucket, "*/"+accountName+"/*")),
	})
}

// TerraformAssumePolicy is added inline to a hub agent role so it can assume
// the terraform role of a newly created account.
func TerraformAssumePolicy(sidPrefix, accountID, accountName, terraformRole string) Document {
	return NewDocument(Statement{
		Sid:      Sid(sidPrefix, accountName),
		Effect:   Allow,
		Action:   Values(ActionAssumeRole),
		Resource: Values(RoleARN(accountID, terraformRole)),
	})
}

// BucketBaselinePolicy is the initial hub bucket policy. It only denies
// requests made without TLS.
func BucketBaselinePolicy(bucket string) Document {
	return NewDocument(Statement{
		Sid:       "DenyInsecureTransport",
		Effect:    Deny,
		Principal: &Principal{AWS: Values("*")},
		Action:    Values("s3:*"),
		Resource:  Values(BucketARN(bucket), ObjectARN(bucket, "*")),
		Condition: Condition{
			"Bool": {"aws:SecureTransport": Values("false")},
		},
	})
}

// BucketRoleStatement grants an account's s3_iac role access to its
// prefixes from the bucket side.
func BucketRoleStatement(bucket, accountName, roleARN string) Statement {
	return Statement{
		Sid:       Sid("ALLOWIACROLE", accountName),
		Effect:    Allow,
		Principal: &Principal{AWS: Values(roleARN)},
		Action:    Values("s3:DeleteObject", "s3:GetObject", "s3:PutObject"),
		Resource: Values(
			ObjectARN(bucket, "providers/"+accountName+"/*"),
			ObjectARN(bucket, "release_artifacts/"+accountName+"/*"),
			ObjectARN(bucket, "terraformstate/"+accountName+"/*"),
		),
	}
}
