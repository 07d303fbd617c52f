package policy

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage/inmem"

	"github.com/mcolatosti/AWSAccountFactory/internal/errors"
)

//go:embed iam.rego
var policyContent string

// Kind tells the guardrails which rules apply to a document
type Kind string

const (
	// KindIdentity is an inline or managed policy attached to a role
	KindIdentity Kind = "identity"

	// KindTrust is a role's assume-role policy
	KindTrust Kind = "trust"

	// KindResource is a bucket policy
	KindResource Kind = "resource"
)

type Validator struct {
	prepared rego.PreparedEvalQuery
}

type ValidationResult struct {
	Allowed    bool     `json:"allowed"`
	Violations []string `json:"violations,omitempty"`
}

// Err returns ErrPolicyViolation describing the violations, or nil
func (r *ValidationResult) Err() error {
	if r == nil || r.Allowed {
		return nil
	}
	return fmt.Errorf("%w: %v", errors.ErrPolicyViolation, r.Violations)
}

func NewValidator() (*Validator, error) {
	query, err := rego.New(
		rego.Query("data.iam.violations"),
		rego.Module("iam.rego", policyContent),
	).PrepareForEval(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to prepare policy query: %w", err)
	}

	return &Validator{
		prepared: query,
	}, nil
}

// Validate evaluates doc against the guardrails. trustedAccounts, when given,
// restricts the AWS principals a trust policy may name.
func (v *Validator) Validate(ctx context.Context, kind Kind, doc Document, trustedAccounts ...string) (*ValidationResult, error) {
	input, err := toInput(kind, doc)
	if err != nil {
		return nil, err
	}

	query := v.prepared
	if len(trustedAccounts) > 0 {
		accounts := make([]interface{}, 0, len(trustedAccounts))
		for _, a := range trustedAccounts {
			accounts = append(accounts, a)
		}
		store := inmem.NewFromObject(map[string]interface{}{
			"trusted_accounts": accounts,
		})

		query, err = rego.New(
			rego.Query("data.iam.violations"),
			rego.Module("iam.rego", policyContent),
			rego.Store(store),
		).PrepareForEval(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare policy query with data: %w", err)
		}
	}

	results, err := query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return &ValidationResult{
			Allowed:    false,
			Violations: []string{"policy evaluation returned no results"},
		}, nil
	}

	violations := toStrings(results[0].Expressions[0].Value)
	return &ValidationResult{
		Allowed:    len(violations) == 0,
		Violations: violations,
	}, nil
}

// Check is Validate collapsed into a single error
func (v *Validator) Check(ctx context.Context, kind Kind, doc Document, trustedAccounts ...string) error {
	result, err := v.Validate(ctx, kind, doc, trustedAccounts...)
	if err != nil {
		return err
	}
	return result.Err()
}

// toInput round trips through JSON so rego sees the same shape AWS does
func toInput(kind Kind, doc Document) (map[string]interface{}, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal policy document: %w", err)
	}

	var document map[string]interface{}
	if err := json.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("failed to unmarshal policy document: %w", err)
	}

	return map[string]interface{}{
		"kind":     string(kind),
		"document": document,
	}, nil
}

func toStrings(value interface{}) []string {
	var violations []string
	switch v := value.(type) {
	case []interface{}:
		for _, violation := range v {
			if str, ok := violation.(string); ok {
				violations = append(violations, str)
			}
		}
	case map[string]interface{}:
		for violation := range v {
			violations = append(violations, violation)
		}
	}
	sort.Strings(violations)
	return violations
}
