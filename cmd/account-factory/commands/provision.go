package commands

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"
	"github.com/urfave/cli/v2"

	"github.com/mcolatosti/AWSAccountFactory/internal/di"
	"github.com/mcolatosti/AWSAccountFactory/internal/models"
	"github.com/mcolatosti/AWSAccountFactory/internal/orchestrator"
)

const localServiceToken = "arn:aws:lambda:local:000000000000:function:account-factory"

// ProvisionCommand runs the Create flow from the operator's machine
func ProvisionCommand(logger *zerolog.Logger) *cli.Command {
	flags := []cli.Flag{
		envFlag(),
		settingsFlag(),
		&cli.StringFlag{
			Name:    "accounts-table",
			Usage:   "DynamoDB table for the run ledger (runs are not recorded when empty)",
			EnvVars: []string{"ACCOUNTS_TABLE"},
		},
		&cli.StringFlag{
			Name:    "locks-table",
			Usage:   "DynamoDB table for hub bucket locks",
			EnvVars: []string{"LOCKS_TABLE"},
		},
		&cli.StringFlag{
			Name:  "callback-url",
			Usage: "Presigned URL to report the outcome to (logged only when empty)",
		},
		&cli.StringFlag{
			Name:  "service-token",
			Usage: "ARN reported as the physical resource id",
			Value: localServiceToken,
		},
		&cli.StringFlag{
			Name:  "request-type",
			Usage: "Request type to process: Create, Update or Delete",
			Value: string(models.ActionCreate),
		},
	}

	return &cli.Command{
		Name:    "provision",
		Aliases: []string{"p"},
		Usage:   "Provision an account with the Lambda function's flow",
		Description: `Builds a custom resource request from flags and processes it locally with the
credentials of the current AWS profile. The function is never re-invoked or deleted.

Examples:
  # Provision a spoke attached to the core hub
  account-factory provision --account-name payments --account-email payments@example.com \
    --parent-hub core --iac-account-id 444444444444 --region us-west-2

  # Provision a hub and record the run
  account-factory provision --account-name core --parent-hub core --hub \
    --account-email core@example.com --iac-account-id 444444444444 --region us-west-2 \
    --accounts-table account-factory-default-accounts`,
		Flags:  append(flags, accountFlags()...),
		Action: provisionAction,
	}
}

func provisionAction(c *cli.Context) error {
	logger := zerolog.Ctx(c.Context)

	if err := exportConfig(c); err != nil {
		return err
	}

	container, err := di.New(c.String("env"), di.WithGetenv(flagGetenv(c)))
	if err != nil {
		return fmt.Errorf("failed to setup DI container: %w", err)
	}

	var o *orchestrator.Orchestrator
	if err := container.Invoke(func(got *orchestrator.Orchestrator) { o = got }); err != nil {
		return fmt.Errorf("failed to build orchestrator: %w", err)
	}

	req := models.ProvisioningRequest{
		RequestType:       c.String("request-type"),
		ServiceToken:      c.String("service-token"),
		StackId:           c.String("stack-name"),
		RequestId:         ksuid.New().String(),
		LogicalResourceId: "AccountFactory",
		ResponseURL:       c.String("callback-url"),
	}

	logger.Info().
		Str("request_type", req.RequestType).
		Str("request_id", req.RequestId).
		Str("account_name", c.String("account-name")).
		Msg("Processing request locally")

	return o.Handle(c.Context, req)
}

// exportConfig hands the configuration flags to the environment backed
// parameter store
func exportConfig(c *cli.Context) error {
	values := map[string]string{
		"SETTINGS_FILE":  c.String("settings"),
		"ACCOUNTS_TABLE": c.String("accounts-table"),
		"LOCKS_TABLE":    c.String("locks-table"),
	}
	for key, value := range values {
		if value == "" {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}
	return nil
}
