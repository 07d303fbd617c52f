package services

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/rs/zerolog"

	"github.com/mcolatosti/AWSAccountFactory/internal/constants"
	"github.com/mcolatosti/AWSAccountFactory/internal/policy"
	"github.com/mcolatosti/AWSAccountFactory/internal/retry"
)

// PolicyChecker validates a policy document before it is applied.
// *policy.Validator satisfies it.
type PolicyChecker interface {
	Check(ctx context.Context, kind policy.Kind, doc policy.Document, trustedAccounts ...string) error
}

// RoleSpec describes a role to create
type RoleSpec struct {
	Name        string
	Description string
	Trust       policy.Document

	// Policy is stored inline under the role's own name
	Policy *policy.Document

	// ManagedPolicyARNs are attached after the role exists
	ManagedPolicyARNs []string

	// InstanceProfile also creates an instance profile named after the role
	InstanceProfile bool
}

// RoleResult is the outcome of CreateRole.
//
// A Degraded result means the role could not be confirmed; ARN then holds
// the ARN the role would have and callers must not assume it exists.
type RoleResult struct {
	Name     string
	ARN      string
	Degraded bool

	// Err is the first error encountered; it may be set on a non-degraded
	// result when only a follow-up step (inline policy, attachment) failed
	Err error
}

// IAMService creates roles in a single account
type IAMService struct {
	client          IAMClient
	accountID       string
	policies        RetryPolicies
	checker         PolicyChecker
	trustedAccounts []string
}

// NewIAMService creates an IAMService for accountID. checker may be nil.
// trustedAccounts restricts the AWS principals trust policies may name.
func NewIAMService(client IAMClient, accountID string, policies RetryPolicies, checker PolicyChecker, trustedAccounts ...string) *IAMService {
	return &IAMService{
		client:          client,
		accountID:       accountID,
		policies:        policies,
		checker:         checker,
		trustedAccounts: trustedAccounts,
	}
}

// CreateRole creates the role described by spec along with its inline policy,
// managed policy attachments and instance profile. An existing role has its
// trust policy replaced.
func (s *IAMService) CreateRole(ctx context.Context, spec RoleSpec) RoleResult {
	logger := zerolog.Ctx(ctx).With().
		Str("role", spec.Name).
		Str("account_id", s.accountID).
		Logger()

	degraded := RoleResult{
		Name:     spec.Name,
		ARN:      policy.RoleARN(s.accountID, spec.Name),
		Degraded: true,
	}

	if err := s.check(ctx, policy.KindTrust, spec.Trust, s.trustedAccounts...); err != nil {
		degraded.Err = fmt.Errorf("trust policy for %s rejected: %w", spec.Name, err)
		logger.Error().Err(degraded.Err).Msg("Role not created")
		return degraded
	}
	if spec.Policy != nil {
		if err := s.check(ctx, policy.KindIdentity, *spec.Policy); err != nil {
			degraded.Err = fmt.Errorf("policy for %s rejected: %w", spec.Name, err)
			logger.Error().Err(degraded.Err).Msg("Role not created")
			return degraded
		}
	}

	trust, err := spec.Trust.JSON()
	if err != nil {
		degraded.Err = err
		return degraded
	}

	var result RoleResult
	if spec.InstanceProfile {
		if err := s.createInstanceProfile(ctx, spec.Name); err != nil {
			logger.Error().Err(err).Msg("Failed to create instance profile")
			result.Err = err
		}
	}

	description := spec.Description
	if description == "" {
		description = spec.Name
	}

	created := retry.Do(ctx, s.policies.CreateRole, func(ctx context.Context, attempt int) (string, error) {
		out, err := s.client.CreateRole(ctx, &iam.CreateRoleInput{
			RoleName:                 aws.String(spec.Name),
			AssumeRolePolicyDocument: aws.String(trust),
			Description:              aws.String(description),
			MaxSessionDuration:       aws.Int32(3600),
			Tags: []types.Tag{
				{Key: aws.String("ManagedBy"), Value: aws.String(constants.ManagedByTag)},
			},
		})
		if err == nil {
			if out.Role == nil {
				return "", fmt.Errorf("create role %s returned no role", spec.Name)
			}
			return aws.ToString(out.Role.Arn), nil
		}

		var exists *types.EntityAlreadyExistsException
		if !stderrors.As(err, &exists) {
			return "", fmt.Errorf("failed to create role %s: %w", spec.Name, err)
		}

		// Role exists, update the trust policy
		return s.adoptRole(ctx, spec.Name, trust)
	})
	if !created.OK() {
		degraded.Err = created.Cause()
		logger.Warn().
			Err(degraded.Err).
			Str("guessed_arn", degraded.ARN).
			Msg("Role creation not confirmed, continuing with guessed ARN")
		return degraded
	}

	result.Name = spec.Name
	result.ARN = created.Value
	logger.Info().Str("role_arn", result.ARN).Msg("Role ready")

	if spec.Policy != nil {
		if err := s.PutInlinePolicy(ctx, spec.Name, spec.Name, *spec.Policy); err != nil && result.Err == nil {
			result.Err = err
		}
	}

	for _, arn := range spec.ManagedPolicyARNs {
		if err := s.AttachManagedPolicy(ctx, spec.Name, arn); err != nil && result.Err == nil {
			result.Err = err
		}
	}

	if spec.InstanceProfile {
		if err := s.addRoleToInstanceProfile(ctx, spec.Name); err != nil {
			logger.Error().Err(err).Msg("Failed to add role to instance profile")
			if result.Err == nil {
				result.Err = err
			}
		}
	}

	return result
}

func (s *IAMService) adoptRole(ctx context.Context, roleName, trust string) (string, error) {
	out, err := s.client.GetRole(ctx, &iam.GetRoleInput{
		RoleName: aws.String(roleName),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get existing role %s: %w", roleName, err)
	}
	if out.Role == nil {
		return "", fmt.Errorf("get role %s returned no role", roleName)
	}

	_, err = s.client.UpdateAssumeRolePolicy(ctx, &iam.UpdateAssumeRolePolicyInput{
		RoleName:       aws.String(roleName),
		PolicyDocument: aws.String(trust),
	})
	if err != nil {
		return "", fmt.Errorf("failed to update trust policy of %s: %w", roleName, err)
	}

	zerolog.Ctx(ctx).Info().Str("role", roleName).Msg("Role already exists, trust policy updated")
	return aws.ToString(out.Role.Arn), nil
}

// PutInlinePolicy adds or replaces an inline policy on roleName
func (s *IAMService) PutInlinePolicy(ctx context.Context, roleName, policyName string, doc policy.Document) error {
	logger := zerolog.Ctx(ctx)

	if err := s.check(ctx, policy.KindIdentity, doc); err != nil {
		return fmt.Errorf("inline policy %s rejected: %w", policyName, err)
	}

	document, err := doc.JSON()
	if err != nil {
		return err
	}

	result := retry.Run(ctx, s.policies.PutRolePolicy, func(ctx context.Context, attempt int) error {
		_, err := s.client.PutRolePolicy(ctx, &iam.PutRolePolicyInput{
			RoleName:       aws.String(roleName),
			PolicyName:     aws.String(policyName),
			PolicyDocument: aws.String(document),
		})
		if err != nil {
			return fmt.Errorf("failed to put policy %s on role %s: %w", policyName, roleName, err)
		}
		return nil
	})
	if !result.OK() {
		logger.Error().
			Err(result.Err).
			Str("role", roleName).
			Str("policy_name", policyName).
			Msg("Failed to put inline policy")
		return result.Cause()
	}

	logger.Info().
		Str("role", roleName).
		Str("policy_name", policyName).
		Int("attempts", result.Attempts).
		Msg("Put inline policy")
	return nil
}

// AttachManagedPolicy attaches a managed policy to roleName
func (s *IAMService) AttachManagedPolicy(ctx context.Context, roleName, policyARN string) error {
	logger := zerolog.Ctx(ctx)

	result := retry.Run(ctx, s.policies.AttachRolePolicy, func(ctx context.Context, attempt int) error {
		_, err := s.client.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
			RoleName:  aws.String(roleName),
			PolicyArn: aws.String(policyARN),
		})
		if err != nil {
			return fmt.Errorf("failed to attach %s to role %s: %w", policyARN, roleName, err)
		}
		return nil
	})
	if !result.OK() {
		logger.Error().
			Err(result.Err).
			Str("role", roleName).
			Str("policy_arn", policyARN).
			Msg("Failed to attach managed policy")
		return result.Cause()
	}

	logger.Info().
		Str("role", roleName).
		Str("policy_arn", policyARN).
		Msg("Attached managed policy")
	return nil
}

func (s *IAMService) createInstanceProfile(ctx context.Context, name string) error {
	_, err := s.client.CreateInstanceProfile(ctx, &iam.CreateInstanceProfileInput{
		InstanceProfileName: aws.String(name),
	})
	if err != nil {
		var exists *types.EntityAlreadyExistsException
		if stderrors.As(err, &exists) {
			return nil
		}
		return fmt.Errorf("failed to create instance profile %s: %w", name, err)
	}
	return nil
}

func (s *IAMService) addRoleToInstanceProfile(ctx context.Context, name string) error {
	_, err := s.client.AddRoleToInstanceProfile(ctx, &iam.AddRoleToInstanceProfileInput{
		InstanceProfileName: aws.String(name),
		RoleName:            aws.String(name),
	})
	if err != nil {
		// An instance profile holds a single role; a rerun hits the limit
		var limit *types.LimitExceededException
		if stderrors.As(err, &limit) {
			return nil
		}
		return fmt.Errorf("failed to add role %s to instance profile: %w", name, err)
	}
	return nil
}

func (s *IAMService) check(ctx context.Context, kind policy.Kind, doc policy.Document, trustedAccounts ...string) error {
	if s.checker == nil {
		return nil
	}
	return s.checker.Check(ctx, kind, doc, trustedAccounts...)
}
