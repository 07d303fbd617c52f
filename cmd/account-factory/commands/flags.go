package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mcolatosti/AWSAccountFactory/internal/di"
	"github.com/mcolatosti/AWSAccountFactory/internal/services"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

// accountInputs maps the account input keys read by services.LoadAccountParams
// to the flags that set them
var accountInputs = map[string]string{
	"accountname":      "account-name",
	"accountemail":     "account-email",
	"parenthub":        "parent-hub",
	"ishub":            "hub",
	"iac_account_id":   "iac-account-id",
	"stackname":        "stack-name",
	"stackregion":      "region",
	"sourcebucket":     "source-bucket",
	"removedefaultvpc": "remove-default-vpc",
}

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "env",
		Aliases: []string{"e"},
		Usage:   "Account factory environment - selects the SSM path and default table names",
		Value:   "default",
		EnvVars: []string{"ENV", "ENVIRONMENT"},
	}
}

func settingsFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "settings",
		Aliases: []string{"s"},
		Usage:   "Path to bootstrapper.ini",
		Value:   "bootstrapper.ini",
		EnvVars: []string{"SETTINGS_FILE"},
	}
}

func outputFlag(defaultFormat string, formats ...string) cli.Flag {
	return &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Output format: " + strings.Join(formats, "|"),
		Value:   defaultFormat,
	}
}

// accountFlags are the per-account inputs the Lambda function reads from its
// environment
func accountFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "account-name",
			Aliases: []string{"n"},
			Usage:   "Name of the member account",
			EnvVars: []string{"accountname"},
		},
		&cli.StringFlag{
			Name:    "account-email",
			Usage:   "Root email of the member account",
			EnvVars: []string{"accountemail"},
		},
		&cli.StringFlag{
			Name:    "parent-hub",
			Aliases: []string{"p"},
			Usage:   "Hub the account attaches to (a hub names itself)",
			EnvVars: []string{"parenthub"},
		},
		&cli.BoolFlag{
			Name:    "hub",
			Usage:   "Provision the account as a hub",
			EnvVars: []string{"ishub"},
		},
		&cli.StringFlag{
			Name:    "iac-account-id",
			Usage:   "Account id of the IaC account holding hub buckets and agent roles",
			EnvVars: []string{"iac_account_id"},
		},
		&cli.StringFlag{
			Name:    "stack-name",
			Usage:   "Name of the provisioning stack",
			EnvVars: []string{"stackname"},
		},
		&cli.StringFlag{
			Name:    "region",
			Aliases: []string{"r"},
			Usage:   "Region of the provisioning stack",
			EnvVars: []string{"stackregion"},
		},
		&cli.StringFlag{
			Name:    "source-bucket",
			Usage:   "Bucket holding the baseline provider template",
			EnvVars: []string{"sourcebucket"},
		},
		&cli.BoolFlag{
			Name:    "remove-default-vpc",
			Usage:   "Delete the default VPC of every region",
			Value:   true,
			EnvVars: []string{"removedefaultvpc"},
		},
	}
}

// flagGetenv answers account input lookups from the command's flags
func flagGetenv(c *cli.Context) di.Getenv {
	return func(key string) string {
		name, ok := accountInputs[key]
		if !ok {
			return os.Getenv(key)
		}
		switch name {
		case "hub", "remove-default-vpc":
			return fmt.Sprintf("%t", c.Bool(name))
		default:
			return c.String(name)
		}
	}
}

func loadSettings(c *cli.Context) (*services.Settings, error) {
	return services.LoadSettings(c.String("settings"))
}

// writeOutput encodes v as json or yaml
func writeOutput(w io.Writer, format string, v interface{}) error {
	switch strings.ToLower(format) {
	case outputJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	case outputYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(v); err != nil {
			return err
		}
		return encoder.Close()
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}
