package commands

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/mcolatosti/AWSAccountFactory/internal/constants"
	"github.com/mcolatosti/AWSAccountFactory/internal/di"
	"github.com/mcolatosti/AWSAccountFactory/internal/policy"
	"github.com/mcolatosti/AWSAccountFactory/internal/provider"
)

// RenderProviderCommand prints the provider file an account's agents receive
func RenderProviderCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "render-provider",
		Usage: "Render a terraform provider file to stdout",
		Description: `Renders the provider file uploaded to the parent hub bucket for an account.

Examples:
  account-factory render-provider --account-name payments --account-id 111111111111 \
    --iac-account-id 444444444444 --region us-west-2 --deploy-type release`,
		Flags: []cli.Flag{
			settingsFlag(),
			&cli.StringFlag{
				Name:     "account-name",
				Aliases:  []string{"n"},
				Usage:    "Name of the member account",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "account-id",
				Usage:    "Id of the member account",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "iac-account-id",
				Usage:    "Account id of the IaC account",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "region",
				Aliases:  []string{"r"},
				Usage:    "Region of the provisioning stack",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "deploy-type",
				Usage: "build or release",
				Value: constants.DeployTypeBuild,
			},
		},
		Action: renderProviderAction,
	}
}

func renderProviderAction(c *cli.Context) error {
	settings, err := loadSettings(c)
	if err != nil {
		return err
	}

	renderer, err := di.ProvideRenderer(settings)
	if err != nil {
		return err
	}

	deployType := c.String("deploy-type")
	terraformRole, err := terraformRoleFor(deployType)
	if err != nil {
		return err
	}

	body, err := renderer.Render(provider.Params{
		IaCAccountID: c.String("iac-account-id"),
		AccountName:  c.String("account-name"),
		Region:       c.String("region"),
		RoleARN:      policy.RoleARN(c.String("account-id"), terraformRole),
		DeployType:   deployType,
	})
	if err != nil {
		return fmt.Errorf("failed to render provider: %w", err)
	}

	_, err = c.App.Writer.Write(body)
	return err
}

// terraformRoleFor returns the member account role a deploy type assumes
func terraformRoleFor(deployType string) (string, error) {
	switch deployType {
	case constants.DeployTypeBuild:
		return constants.TerraformReaderRoleName, nil
	case constants.DeployTypeRelease:
		return constants.TerraformWriterRoleName, nil
	default:
		return "", fmt.Errorf("unknown deploy type %q, expected %s or %s", deployType, constants.DeployTypeBuild, constants.DeployTypeRelease)
	}
}
