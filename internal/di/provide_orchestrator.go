package di

import (
	"fmt"
	"os"

	"go.uber.org/dig"

	"github.com/mcolatosti/AWSAccountFactory/internal/dao/accountdao"
	"github.com/mcolatosti/AWSAccountFactory/internal/dao/lockdao"
	"github.com/mcolatosti/AWSAccountFactory/internal/models"
	"github.com/mcolatosti/AWSAccountFactory/internal/orchestrator"
	"github.com/mcolatosti/AWSAccountFactory/internal/policy"
	"github.com/mcolatosti/AWSAccountFactory/internal/provider"
	"github.com/mcolatosti/AWSAccountFactory/internal/services"
)

func ProvideRetryPolicies() services.RetryPolicies {
	return services.DefaultRetryPolicies()
}

func ProvideValidator() (*policy.Validator, error) {
	return policy.NewValidator()
}

// ProvideRenderer loads provider_template when set, else the embedded template
func ProvideRenderer(settings *services.Settings) (*provider.Renderer, error) {
	if settings.ProviderTemplate == "" {
		return provider.NewRenderer("")
	}

	data, err := os.ReadFile(settings.ProviderTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to read provider template %s: %w", settings.ProviderTemplate, err)
	}
	return provider.NewRenderer(string(data))
}

// OrchestratorIn lists what the orchestrator is built from. Accounts and
// Locks are nil when their tables are not configured.
type OrchestratorIn struct {
	dig.In

	Organizations *services.OrganizationsService
	Broker        *services.CredentialBroker
	Function      *services.FunctionService
	Reporter      *services.CallbackReporter
	Clients       *services.AWSClientFactory
	Accounts      *accountdao.DAO
	Locks         *lockdao.DAO
	Validator     *policy.Validator
	Renderer      *provider.Renderer
	Params        models.AccountParams
	Settings      *services.Settings
	Policies      services.RetryPolicies
}

func ProvideOrchestrator(in OrchestratorIn) *orchestrator.Orchestrator {
	deps := orchestrator.Dependencies{
		Organizations: in.Organizations,
		Broker:        in.Broker,
		Function:      in.Function,
		Reporter:      in.Reporter,
		Clients:       in.Clients,
		Checker:       in.Validator,
		Renderer:      in.Renderer,
		Params:        in.Params,
		Settings:      *in.Settings,
		Policies:      in.Policies,
	}
	// typed nils would defeat the orchestrator's nil checks
	if in.Accounts != nil {
		deps.Ledger = in.Accounts
	}
	if in.Locks != nil {
		deps.Locker = in.Locks
	}
	return orchestrator.New(deps)
}
