package errors

import "errors"

var (
	ErrOrganizationRootUnavailable = errors.New("cannot access the AWS Organization root")
	ErrAccountCreationFailed       = errors.New("account creation failed")
	ErrRetriesExhausted            = errors.New("retries exhausted")
	ErrMissingParameter            = errors.New("required parameter missing")
	ErrMalformedCredentials        = errors.New("assume role returned malformed credentials")
	ErrUnsupportedRequestType      = errors.New("unsupported request type")
	ErrLockHeld                    = errors.New("lock held by another run")
	ErrPolicyViolation             = errors.New("policy document violates guardrails")
)
