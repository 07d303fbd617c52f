package services

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog"

	"github.com/mcolatosti/AWSAccountFactory/internal/constants"
	"github.com/mcolatosti/AWSAccountFactory/internal/errors"
	"github.com/mcolatosti/AWSAccountFactory/internal/policy"
	"github.com/mcolatosti/AWSAccountFactory/internal/retry"
)

// Credentials are temporary credentials for a member account. They are only
// held in memory for the duration of a run.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiration      time.Time
	AccountID       string
	RoleName        string
}

// Valid reports whether all three secret parts are present
func (c *Credentials) Valid() bool {
	return c != nil && c.AccessKeyID != "" && c.SecretAccessKey != "" && c.SessionToken != ""
}

// CredentialBroker assumes roles in member accounts
type CredentialBroker struct {
	client      STSClient
	policy      retry.Policy
	sessionName string
}

func NewCredentialBroker(client STSClient, policies RetryPolicies) *CredentialBroker {
	return &CredentialBroker{
		client:      client,
		policy:      policies.AssumeRole,
		sessionName: constants.SessionName,
	}
}

// Assume returns credentials for roleName in accountID. New accounts and new
// roles take a while to become assumable, so failures are retried without an
// attempt limit; only ctx ends the loop early.
func (b *CredentialBroker) Assume(ctx context.Context, accountID, roleName string) (*Credentials, error) {
	logger := zerolog.Ctx(ctx)
	roleARN := policy.RoleARN(accountID, roleName)

	result := retry.Do(ctx, b.policy, func(ctx context.Context, attempt int) (*Credentials, error) {
		out, err := b.client.AssumeRole(ctx, &sts.AssumeRoleInput{
			RoleArn:         aws.String(roleARN),
			RoleSessionName: aws.String(b.sessionName),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to assume role %s: %w", roleARN, err)
		}
		if out.Credentials == nil {
			return nil, errors.ErrMalformedCredentials
		}

		creds := &Credentials{
			AccessKeyID:     aws.ToString(out.Credentials.AccessKeyId),
			SecretAccessKey: aws.ToString(out.Credentials.SecretAccessKey),
			SessionToken:    aws.ToString(out.Credentials.SessionToken),
			Expiration:      aws.ToTime(out.Credentials.Expiration),
			AccountID:       accountID,
			RoleName:        roleName,
		}
		if !creds.Valid() {
			return nil, errors.ErrMalformedCredentials
		}
		return creds, nil
	})
	if !result.OK() {
		return nil, result.Cause()
	}

	logger.Info().
		Str("account_id", accountID).
		Str("role", roleName).
		Int("attempts", result.Attempts).
		Msg("Assumed role")
	return result.Value, nil
}
