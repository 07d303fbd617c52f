package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/mcolatosti/AWSAccountFactory/internal/di"
	"github.com/mcolatosti/AWSAccountFactory/internal/models"
	"github.com/mcolatosti/AWSAccountFactory/internal/orchestrator"
)

const defaultEnv = "default"

// RequestHandler is satisfied by *orchestrator.Orchestrator
type RequestHandler interface {
	Handle(ctx context.Context, req models.ProvisioningRequest) error
}

type Handler struct {
	orchestrator RequestHandler
}

func NewHandler(env string, opts ...di.Option) (*Handler, error) {
	container, err := di.New(env, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to setup DI container: %w", err)
	}

	var o *orchestrator.Orchestrator
	if err := container.Invoke(func(got *orchestrator.Orchestrator) { o = got }); err != nil {
		return nil, fmt.Errorf("failed to build orchestrator: %w", err)
	}

	return &Handler{orchestrator: o}, nil
}

// HandleRequest processes one custom resource event. Failures have already
// been reported through the callback, so the error is logged and swallowed;
// returning it would make Lambda retry an asynchronous invoke.
func (h *Handler) HandleRequest(ctx context.Context, req models.ProvisioningRequest) error {
	if err := h.orchestrator.Handle(ctx, req); err != nil {
		zerolog.Ctx(ctx).Error().
			Err(err).
			Str("request_type", req.RequestType).
			Str("request_id", req.RequestId).
			Msg("Request failed")
	}
	return nil
}

func readEvent(path string) (models.ProvisioningRequest, error) {
	var req models.ProvisioningRequest

	data, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("failed to read event %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("failed to parse event %s: %w", path, err)
	}
	return req, nil
}

func environment() string {
	env := os.Getenv("ENV")
	if env == "" {
		env = os.Getenv("ENVIRONMENT")
	}
	if env == "" {
		env = defaultEnv
	}
	return env
}

func main() {
	logger := di.ProvideLogger().With().Str("lambda", "account-factory").Logger()
	env := environment()

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		// Lambda mode
		handler, err := NewHandler(env)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create handler")
			os.Exit(1)
		}

		// Wrap handler to inject logger into context
		wrappedHandler := func(ctx context.Context, req models.ProvisioningRequest) error {
			ctx = logger.WithContext(ctx)
			return handler.HandleRequest(ctx, req)
		}
		lambda.Start(wrappedHandler)
		return
	}

	// CLI mode
	app := &cli.App{
		Name:  "account-factory",
		Usage: "Process a custom resource event file the way the Lambda function would",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "event",
				Usage:    "path to the custom resource event JSON",
				Required: true,
			},
			&cli.BoolFlag{
				Name:    "disable-ssm",
				Usage:   "Disable AWS Systems Manager Parameter Store (use environment variables)",
				EnvVars: []string{"DISABLE_SSM"},
			},
		},
		Action: func(c *cli.Context) error {
			req, err := readEvent(c.String("event"))
			if err != nil {
				return err
			}
			if c.Bool("disable-ssm") {
				// providers read the flag from the environment
				if err := os.Setenv("DISABLE_SSM", "true"); err != nil {
					return err
				}
			}

			handler, err := NewHandler(env)
			if err != nil {
				return fmt.Errorf("failed to create handler: %w", err)
			}

			logger.Info().
				Str("env", env).
				Str("request_type", req.RequestType).
				Msg("CLI mode - processing event")

			return handler.HandleRequest(logger.WithContext(c.Context), req)
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
