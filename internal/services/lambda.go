package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/rs/zerolog"

	"github.com/mcolatosti/AWSAccountFactory/internal/models"
)

// FunctionService runs operations on the factory's own Lambda function
type FunctionService struct {
	client       LambdaClient
	functionName string
}

// NewFunctionService creates a FunctionService for functionName, normally
// AWS_LAMBDA_FUNCTION_NAME. An empty name turns every operation into a no-op
// so local runs never touch a deployed function.
func NewFunctionService(client LambdaClient, functionName string) *FunctionService {
	return &FunctionService{
		client:       client,
		functionName: functionName,
	}
}

// SelfInvoke re-invokes the function asynchronously with the request retyped
// as Wait. The second invocation does no work.
func (s *FunctionService) SelfInvoke(ctx context.Context, req models.ProvisioningRequest) error {
	logger := zerolog.Ctx(ctx)
	if s.functionName == "" {
		logger.Info().Msg("No function name, skipping self invoke")
		return nil
	}

	payload, err := json.Marshal(req.WithRequestType(string(models.ActionWait)))
	if err != nil {
		return fmt.Errorf("failed to marshal self invoke payload: %w", err)
	}

	_, err = s.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(s.functionName),
		InvocationType: types.InvocationTypeEvent,
		Payload:        payload,
	})
	if err != nil {
		return fmt.Errorf("failed to invoke %s: %w", s.functionName, err)
	}

	logger.Info().Str("function", s.functionName).Msg("Self invoked with Wait")
	return nil
}

// SelfDelete deletes the factory's function
func (s *FunctionService) SelfDelete(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)
	if s.functionName == "" {
		logger.Info().Msg("No function name, skipping self delete")
		return nil
	}

	_, err := s.client.DeleteFunction(ctx, &lambda.DeleteFunctionInput{
		FunctionName: aws.String(s.functionName),
	})
	if err != nil {
		return fmt.Errorf("failed to delete function %s: %w", s.functionName, err)
	}

	logger.Info().Str("function", s.functionName).Msg("Deleted function")
	return nil
}
