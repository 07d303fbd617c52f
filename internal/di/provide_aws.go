package di

import (
	"context"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/mcolatosti/AWSAccountFactory/internal/services"
)

const callbackTimeout = 30 * time.Second

func ProvideAWSConfig(ctx context.Context) (aws.Config, error) {
	return config.LoadDefaultConfig(ctx)
}

func ProvideDynamoDB(config aws.Config) *dynamodb.Client {
	return dynamodb.NewFromConfig(config)
}

func ProvideClientFactory(config aws.Config) *services.AWSClientFactory {
	return services.NewClientFactory(config)
}

func ProvideCredentialBroker(config aws.Config, policies services.RetryPolicies) *services.CredentialBroker {
	return services.NewCredentialBroker(sts.NewFromConfig(config), policies)
}

func ProvideOrganizationsService(config aws.Config, policies services.RetryPolicies) *services.OrganizationsService {
	return services.NewOrganizationsService(organizations.NewFromConfig(config), policies)
}

// ProvideFunctionService binds the factory's own function. Outside Lambda the
// function name is empty and self invoke / self delete are skipped.
func ProvideFunctionService(config aws.Config, appConfig *services.Config) *services.FunctionService {
	return services.NewFunctionService(lambda.NewFromConfig(config), appConfig.FunctionName)
}

func ProvideCallbackReporter(function *services.FunctionService) *services.CallbackReporter {
	return services.NewCallbackReporter(&http.Client{Timeout: callbackTimeout}, function)
}
