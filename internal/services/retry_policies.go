package services

import (
	"time"

	"github.com/mcolatosti/AWSAccountFactory/internal/retry"
)

// RetryPolicies collects the retry behaviour of every provisioning step
type RetryPolicies struct {
	AssumeRole         retry.Policy
	AccountStatus      retry.Policy
	CreateRole         retry.Policy
	PutRolePolicy      retry.Policy
	AttachRolePolicy   retry.Policy
	BucketPolicyInit   retry.Policy
	BucketPolicyAppend retry.Policy
	LockAcquire        retry.Policy

	// RoleSettle is waited after assuming into a new account before the
	// terraform roles are created
	RoleSettle time.Duration

	// GatewayDetach is waited between detaching an internet gateway and
	// deleting its VPC
	GatewayDetach time.Duration
}

// DefaultRetryPolicies returns the production timings
func DefaultRetryPolicies() RetryPolicies {
	return RetryPolicies{
		AssumeRole:         retry.Policy{Name: "assume-role", Interval: time.Minute},
		AccountStatus:      retry.Policy{Name: "account-status", MaxAttempts: 60, InitialDelay: 40 * time.Second, Interval: 10 * time.Second},
		CreateRole:         retry.Policy{Name: "create-role", MaxAttempts: 20, Interval: 30 * time.Second},
		PutRolePolicy:      retry.Policy{Name: "put-role-policy", MaxAttempts: 20, Interval: 30 * time.Second},
		AttachRolePolicy:   retry.Policy{Name: "attach-role-policy", MaxAttempts: 3, Interval: 30 * time.Second},
		BucketPolicyInit:   retry.Policy{Name: "bucket-policy-init", MaxAttempts: 20, InitialDelay: 30 * time.Second, Interval: 30 * time.Second},
		BucketPolicyAppend: retry.Policy{Name: "bucket-policy-append", MaxAttempts: 20, Interval: 30 * time.Second},
		LockAcquire:        retry.Policy{Name: "lock-acquire", MaxAttempts: 30, Interval: 10 * time.Second},
		RoleSettle:         20 * time.Second,
		GatewayDetach:      10 * time.Second,
	}
}

// WithoutDelay keeps every attempt limit but removes all waits
func (p RetryPolicies) WithoutDelay() RetryPolicies {
	return RetryPolicies{
		AssumeRole:         p.AssumeRole.WithoutDelay(),
		AccountStatus:      p.AccountStatus.WithoutDelay(),
		CreateRole:         p.CreateRole.WithoutDelay(),
		PutRolePolicy:      p.PutRolePolicy.WithoutDelay(),
		AttachRolePolicy:   p.AttachRolePolicy.WithoutDelay(),
		BucketPolicyInit:   p.BucketPolicyInit.WithoutDelay(),
		BucketPolicyAppend: p.BucketPolicyAppend.WithoutDelay(),
		LockAcquire:        p.LockAcquire.WithoutDelay(),
	}
}
