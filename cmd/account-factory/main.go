package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/mcolatosti/AWSAccountFactory/cmd/account-factory/commands"
	"github.com/mcolatosti/AWSAccountFactory/internal/di"
)

func main() {
	logger := di.ProvideLogger()
	ctx := logger.WithContext(context.Background())

	app := &cli.App{
		Name:  "account-factory",
		Usage: "AWS account bootstrapping toolkit",
		Description: `Operator tooling for the account factory Lambda function.

This tool provides commands for:
  - Provisioning an account locally with the same flow the Lambda function runs
  - Previewing the provider files and policy documents an account receives
  - Inspecting the run ledger and releasing stuck hub bucket locks`,
		Commands: []*cli.Command{
			commands.ProvisionCommand(&logger),
			commands.RenderProviderCommand(&logger),
			commands.PoliciesCommand(&logger),
			commands.RunsCommand(&logger),
			commands.UnlockCommand(&logger),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
