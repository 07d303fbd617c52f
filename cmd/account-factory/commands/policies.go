package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/mcolatosti/AWSAccountFactory/internal/errors"
	"github.com/mcolatosti/AWSAccountFactory/internal/orchestrator"
	"github.com/mcolatosti/AWSAccountFactory/internal/policy"
	"github.com/mcolatosti/AWSAccountFactory/internal/services"
)

const placeholderAccountID = "000000000000"

// PoliciesCommand prints the policy documents a Create run would apply
func PoliciesCommand(logger *zerolog.Logger) *cli.Command {
	flags := []cli.Flag{
		settingsFlag(),
		outputFlag(outputJSON, outputJSON, outputYAML),
		&cli.StringFlag{
			Name:  "account-id",
			Usage: "Id of the member account (a placeholder is used when unknown)",
			Value: placeholderAccountID,
		},
	}

	return &cli.Command{
		Name:  "policies",
		Usage: "Print every policy document generated for an account",
		Description: `Prints the trust, inline and bucket policies a Create run applies, each checked
against the policy guardrails. Exits non-zero when any document violates them.

Examples:
  account-factory policies --account-name payments --parent-hub core \
    --iac-account-id 444444444444 --output yaml`,
		Flags:  append(flags, accountFlags()...),
		Action: policiesAction,
	}
}

func policiesAction(c *cli.Context) error {
	logger := zerolog.Ctx(c.Context)

	settings, err := loadSettings(c)
	if err != nil {
		return err
	}
	params := services.LoadAccountParams(flagGetenv(c), settings)
	if params.AccountName == "" || params.ParentHub == "" || params.IaCAccountID == "" {
		return fmt.Errorf("--account-name, --parent-hub and --iac-account-id are required")
	}

	validator, err := policy.NewValidator()
	if err != nil {
		return err
	}

	plan, err := validatePlan(c.Context, validator, orchestrator.Plan(params, *settings, c.String("account-id")), params.IaCAccountID)
	if err != nil {
		return err
	}

	if err := writeOutput(c.App.Writer, c.String("output"), plan); err != nil {
		return err
	}

	var violations int
	for _, p := range plan {
		violations += len(p.Violations)
	}
	logger.Info().
		Int("documents", len(plan)).
		Int("violations", violations).
		Msg("Generated policy documents")

	if violations > 0 {
		return fmt.Errorf("%w: %d violations", errors.ErrPolicyViolation, violations)
	}
	return nil
}

// validatePlan records the guardrail violations of each planned document
func validatePlan(ctx context.Context, validator *policy.Validator, plan []orchestrator.PlannedPolicy, iacAccountID string) ([]orchestrator.PlannedPolicy, error) {
	for i, p := range plan {
		var trusted []string
		if p.Kind == policy.KindTrust {
			trusted = []string{iacAccountID}
		}

		result, err := validator.Validate(ctx, p.Kind, p.Document, trusted...)
		if err != nil {
			return nil, fmt.Errorf("failed to validate %s/%s: %w", p.Target, p.Name, err)
		}
		for _, v := range result.Violations {
			plan[i].Violations = append(plan[i].Violations, strings.TrimSpace(v))
		}
	}
	return plan, nil
}
