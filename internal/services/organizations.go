package services

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/aws/aws-sdk-go-v2/service/organizations/types"
	"github.com/rs/zerolog"

	"github.com/mcolatosti/AWSAccountFactory/internal/errors"
	"github.com/mcolatosti/AWSAccountFactory/internal/models"
	"github.com/mcolatosti/AWSAccountFactory/internal/retry"
)

// OrganizationsService creates member accounts and places them in OUs
type OrganizationsService struct {
	client OrganizationsClient
	policy retry.Policy
}

func NewOrganizationsService(client OrganizationsClient, policies RetryPolicies) *OrganizationsService {
	return &OrganizationsService{
		client: client,
		policy: policies.AccountStatus,
	}
}

// RootID returns the id of the organization root
func (s *OrganizationsService) RootID(ctx context.Context) (string, error) {
	out, err := s.client.ListRoots(ctx, &organizations.ListRootsInput{})
	if err != nil {
		return "", fmt.Errorf("%w: %w", errors.ErrOrganizationRootUnavailable, err)
	}
	if len(out.Roots) == 0 || aws.ToString(out.Roots[0].Id) == "" {
		return "", errors.ErrOrganizationRootUnavailable
	}
	return aws.ToString(out.Roots[0].Id), nil
}

// CreateAccountInput contains fields for creating a member account
type CreateAccountInput struct {
	AccountName     string
	Email           string
	RoleName        string
	AccessToBilling string
}

// CreateAccount requests a new member account and polls until AWS reports a
// terminal state. A FAILED state is returned as ErrAccountCreationFailed
// together with the record describing the failure.
func (s *OrganizationsService) CreateAccount(ctx context.Context, input CreateAccountInput) (*models.AccountRecord, error) {
	logger := zerolog.Ctx(ctx)

	out, err := s.client.CreateAccount(ctx, &organizations.CreateAccountInput{
		AccountName:            aws.String(input.AccountName),
		Email:                  aws.String(input.Email),
		RoleName:               aws.String(input.RoleName),
		IamUserAccessToBilling: types.IAMUserAccessToBilling(input.AccessToBilling),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create account %s: %w", input.AccountName, err)
	}
	if out.CreateAccountStatus == nil || out.CreateAccountStatus.Id == nil {
		return nil, fmt.Errorf("create account %s returned no request id", input.AccountName)
	}

	requestID := aws.ToString(out.CreateAccountStatus.Id)
	logger.Info().
		Str("account_name", input.AccountName).
		Str("request_id", requestID).
		Msg("Account creation requested")

	record := &models.AccountRecord{
		AccountName: input.AccountName,
		Email:       input.Email,
		State:       models.CreationInProgress,
	}

	result := retry.Do(ctx, s.policy, func(ctx context.Context, attempt int) (*models.AccountRecord, error) {
		status, err := s.client.DescribeCreateAccountStatus(ctx, &organizations.DescribeCreateAccountStatusInput{
			CreateAccountRequestId: aws.String(requestID),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to describe create account status: %w", err)
		}
		if status.CreateAccountStatus == nil {
			return nil, fmt.Errorf("create account status %s is empty", requestID)
		}

		current := status.CreateAccountStatus
		record.State = models.CreationState(current.State)
		record.AccountID = aws.ToString(current.AccountId)

		if !record.State.IsTerminal() {
			return nil, fmt.Errorf("account %s is %s", input.AccountName, record.State)
		}
		if record.State == models.CreationFailed {
			record.FailureReason = string(current.FailureReason)
			return record, retry.Permanent(fmt.Errorf("%w: %s", errors.ErrAccountCreationFailed, record.FailureReason))
		}
		if record.AccountID == "" {
			return nil, fmt.Errorf("account %s succeeded without an account id", input.AccountName)
		}
		return record, nil
	})

	switch {
	case result.OK():
		logger.Info().
			Str("account_name", input.AccountName).
			Str("account_id", record.AccountID).
			Int("polls", result.Attempts).
			Msg("Account created")
		return record, nil
	case stderrors.Is(result.Err, errors.ErrAccountCreationFailed):
		return record, result.Err
	default:
		return record, fmt.Errorf("%w: %w", errors.ErrAccountCreationFailed, result.Cause())
	}
}

// EnsureOrganizationalUnit returns the id of the OU called name directly under
// parentID, creating it when absent.
func (s *OrganizationsService) EnsureOrganizationalUnit(ctx context.Context, parentID, name string) (string, error) {
	logger := zerolog.Ctx(ctx)

	paginator := organizations.NewListOrganizationalUnitsForParentPaginator(s.client, &organizations.ListOrganizationalUnitsForParentInput{
		ParentId: aws.String(parentID),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to list organizational units: %w", err)
		}
		for _, ou := range page.OrganizationalUnits {
			if aws.ToString(ou.Name) == name {
				return aws.ToString(ou.Id), nil
			}
		}
	}

	out, err := s.client.CreateOrganizationalUnit(ctx, &organizations.CreateOrganizationalUnitInput{
		ParentId: aws.String(parentID),
		Name:     aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create organizational unit %s: %w", name, err)
	}
	if out.OrganizationalUnit == nil {
		return "", fmt.Errorf("create organizational unit %s returned no unit", name)
	}

	id := aws.ToString(out.OrganizationalUnit.Id)
	logger.Info().
		Str("ou_name", name).
		Str("ou_id", id).
		Msg("Created organizational unit")
	return id, nil
}

// MoveAccount moves accountID from sourceID to destinationID. An account
// already in the destination is not an error.
func (s *OrganizationsService) MoveAccount(ctx context.Context, accountID, sourceID, destinationID string) error {
	_, err := s.client.MoveAccount(ctx, &organizations.MoveAccountInput{
		AccountId:           aws.String(accountID),
		SourceParentId:      aws.String(sourceID),
		DestinationParentId: aws.String(destinationID),
	})
	if err != nil {
		var duplicate *types.DuplicateAccountException
		if stderrors.As(err, &duplicate) {
			return nil
		}
		return fmt.Errorf("failed to move account %s: %w", accountID, err)
	}
	return nil
}

// AttachPolicy attaches a service control policy to targetID
func (s *OrganizationsService) AttachPolicy(ctx context.Context, policyID, targetID string) error {
	_, err := s.client.AttachPolicy(ctx, &organizations.AttachPolicyInput{
		PolicyId: aws.String(policyID),
		TargetId: aws.String(targetID),
	})
	if err != nil {
		var duplicate *types.DuplicatePolicyAttachmentException
		if stderrors.As(err, &duplicate) {
			return nil
		}
		return fmt.Errorf("failed to attach policy %s to %s: %w", policyID, targetID, err)
	}
	return nil
}
