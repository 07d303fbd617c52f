package di

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/rs/zerolog"

	"github.com/mcolatosti/AWSAccountFactory/internal/dao/accountdao"
	"github.com/mcolatosti/AWSAccountFactory/internal/dao/lockdao"
	"github.com/mcolatosti/AWSAccountFactory/internal/services"
)

// ProvideAccountDAO returns the run ledger, or nil when no table is configured
func ProvideAccountDAO(ctx context.Context, client *dynamodb.Client, config *services.Config) *accountdao.DAO {
	if config.AccountsTable == "" {
		zerolog.Ctx(ctx).Debug().Msg("No accounts table, runs are not recorded")
		return nil
	}
	return accountdao.New(client, config.AccountsTable)
}

// ProvideLockDAO returns the hub bucket lock, or nil when no table is configured
func ProvideLockDAO(ctx context.Context, client *dynamodb.Client, config *services.Config) *lockdao.DAO {
	if config.LocksTable == "" {
		zerolog.Ctx(ctx).Debug().Msg("No locks table, bucket policy updates are not locked")
		return nil
	}
	return lockdao.New(client, config.LocksTable)
}
