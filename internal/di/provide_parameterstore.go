package di

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog"

	"github.com/mcolatosti/AWSAccountFactory/internal/models"
	"github.com/mcolatosti/AWSAccountFactory/internal/services"
)

// ProvideSSMClient provides an SSM client for Parameter Store access.
// Returns nil unless PARAMETER_SOURCE=ssm, and always when DISABLE_SSM=true.
func ProvideSSMClient(awsConfig aws.Config) *ssm.Client {
	if os.Getenv("DISABLE_SSM") == "true" || os.Getenv("PARAMETER_SOURCE") != "ssm" {
		return nil
	}

	return ssm.NewFromConfig(awsConfig)
}

// ProvideParameterStore provides a ParameterStore implementation
// Uses SSM Parameter Store when enabled, falls back to environment variables
func ProvideParameterStore(ctx context.Context, ssmClient *ssm.Client, env string) services.ParameterStore {
	logger := zerolog.Ctx(ctx)

	if ssmClient == nil {
		logger.Debug().Msg("Using environment variables for configuration")
		return services.NewEnvParameterStore(env)
	}

	logger.Info().Msg("Using AWS Systems Manager Parameter Store for configuration")
	return services.NewSSMParameterStore(ssmClient, env)
}

// ProvideAppConfig loads application configuration from Parameter Store or environment variables
func ProvideAppConfig(ctx context.Context, store services.ParameterStore) (*services.Config, error) {
	logger := zerolog.Ctx(ctx)

	config, err := store.GetConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.Debug().
		Str("settings_file", config.SettingsFile).
		Bool("has_accounts_table", config.AccountsTable != "").
		Bool("has_locks_table", config.LocksTable != "").
		Str("function_name", config.FunctionName).
		Msg("Configuration loaded successfully")

	return config, nil
}

// ProvideSettings reads the settings file named by the configuration
func ProvideSettings(ctx context.Context, config *services.Config) (*services.Settings, error) {
	settings, err := services.LoadSettings(config.SettingsFile)
	if err != nil {
		return nil, err
	}

	if settings.TestMode {
		zerolog.Ctx(ctx).Warn().
			Str("test_account_id", settings.TestAccountID).
			Msg("Test mode enabled, accounts will not be created")
	}
	return settings, nil
}

func ProvideAccountParams(getenv Getenv, settings *services.Settings) models.AccountParams {
	return services.LoadAccountParams(getenv, settings)
}
