package services

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	ststypes "github.com/aws/aws-sdk-go-v2/service/sts/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stsCredentials(key, secret, token string) *sts.AssumeRoleOutput {
	return &sts.AssumeRoleOutput{
		Credentials: &ststypes.Credentials{
			AccessKeyId:     aws.String(key),
			SecretAccessKey: aws.String(secret),
			SessionToken:    aws.String(token),
			Expiration:      aws.Time(time.Now().Add(time.Hour)),
		},
	}
}

func TestCredentialBroker_Assume(t *testing.T) {
	var roleARN, sessionName string
	client := &mockSTSClient{
		assumeRoleFunc: func(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error) {
			roleARN = aws.ToString(params.RoleArn)
			sessionName = aws.ToString(params.RoleSessionName)
			return stsCredentials("AKIA", "secret", "token"), nil
		},
	}

	broker := NewCredentialBroker(client, testPolicies())
	creds, err := broker.Assume(testContext(), "123456789012", "OrganizationAccountAccessRole")
	require.NoError(t, err)

	assert.Equal(t, "arn:aws:iam::123456789012:role/OrganizationAccountAccessRole", roleARN)
	assert.Equal(t, "NewAccountRole", sessionName)
	assert.Equal(t, "AKIA", creds.AccessKeyID)
	assert.Equal(t, "secret", creds.SecretAccessKey)
	assert.Equal(t, "token", creds.SessionToken)
	assert.Equal(t, "123456789012", creds.AccountID)
	assert.True(t, creds.Valid())
}

func TestCredentialBroker_Assume_RetriesUntilWellFormed(t *testing.T) {
	calls := 0
	client := &mockSTSClient{
		assumeRoleFunc: func(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error) {
			calls++
			switch {
			case calls <= 25:
				// New accounts reject the role for a while
				return nil, &mockAPIError{code: "AccessDenied"}
			case calls == 26:
				return &sts.AssumeRoleOutput{}, nil
			case calls == 27:
				return stsCredentials("AKIA", "secret", ""), nil
			default:
				return stsCredentials("AKIA", "secret", "token"), nil
			}
		},
	}

	broker := NewCredentialBroker(client, testPolicies())
	creds, err := broker.Assume(testContext(), "123456789012", "OrganizationAccountAccessRole")
	require.NoError(t, err)

	assert.Equal(t, 28, calls, "assume should keep going past any fixed attempt count")
	assert.True(t, creds.Valid())
}

func TestCredentialBroker_Assume_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(testContext())
	defer cancel()

	calls := 0
	client := &mockSTSClient{
		assumeRoleFunc: func(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error) {
			calls++
			if calls == 3 {
				cancel()
			}
			return nil, &mockAPIError{code: "AccessDenied"}
		},
	}

	broker := NewCredentialBroker(client, testPolicies())
	creds, err := broker.Assume(ctx, "123456789012", "OrganizationAccountAccessRole")

	assert.Nil(t, creds)
	assert.Error(t, err)
	assert.True(t, stderrors.Is(err, context.Canceled))
	assert.Equal(t, 3, calls)
}

func TestCredentials_Valid(t *testing.T) {
	var nilCreds *Credentials
	assert.False(t, nilCreds.Valid())
	assert.False(t, (&Credentials{AccessKeyID: "a", SecretAccessKey: "b"}).Valid())
	assert.True(t, (&Credentials{AccessKeyID: "a", SecretAccessKey: "b", SessionToken: "c"}).Valid())
}
