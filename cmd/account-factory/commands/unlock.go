package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/mcolatosti/AWSAccountFactory/internal/dao/lockdao"
)

// UnlockCommand force-releases a hub bucket lock
func UnlockCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "unlock",
		Usage: "Force-release the policy lock of a hub bucket",
		Description: `Deletes the lock guarding a hub bucket policy regardless of its holder. Use it
when a run died while holding the lock and the lease has not expired yet.

Examples:
  account-factory unlock --env prod --bucket acme-iac-core
  account-factory unlock --env prod --bucket acme-iac-core --expired-only`,
		Flags: []cli.Flag{
			envFlag(),
			&cli.StringFlag{
				Name:    "locks-table",
				Usage:   "DynamoDB table of the locks (defaults to the table of --env)",
				EnvVars: []string{"LOCKS_TABLE"},
			},
			&cli.StringFlag{
				Name:     "bucket",
				Aliases:  []string{"b"},
				Usage:    "Hub bucket name",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "expired-only",
				Usage: "Only release the lock when its lease has lapsed",
			},
		},
		Action: unlockAction,
	}
}

// lockStore is the subset of *lockdao.DAO used to release a lock
type lockStore interface {
	Find(ctx context.Context, id lockdao.ID) (*lockdao.Record, error)
	Delete(ctx context.Context, id lockdao.ID) error
}

func unlockAction(c *cli.Context) error {
	dao, err := createLockDAO(c.Context, c.String("env"), c.String("locks-table"))
	if err != nil {
		return err
	}
	return releaseBucketLock(c.Context, dao, c.String("bucket"), c.Bool("expired-only"), time.Now())
}

// releaseBucketLock deletes the lock of bucket. With expiredOnly a live
// lease is left in place.
func releaseBucketLock(ctx context.Context, locks lockStore, bucket string, expiredOnly bool, now time.Time) error {
	logger := zerolog.Ctx(ctx).With().Str("bucket", bucket).Logger()

	id := lockdao.NewID(lockdao.KindBucketPolicy, bucket)
	existing, err := locks.Find(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		logger.Info().Msg("Bucket is not locked")
		return nil
	}

	expired := existing.Expired(now)
	if expiredOnly && !expired {
		logger.Info().
			Str("holder", existing.Holder).
			Time("expires", time.Unix(existing.TTL, 0)).
			Msg("Lock is still held, leaving it in place")
		return nil
	}

	if err := locks.Delete(ctx, id); err != nil {
		return err
	}

	logger.Info().
		Str("holder", existing.Holder).
		Str("reason", existing.Reason).
		Bool("expired", expired).
		Msg("Released bucket lock")
	return nil
}

// createLockDAO creates a lockdao.DAO instance
func createLockDAO(ctx context.Context, env, table string) (*lockdao.DAO, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if table == "" {
		table = lockdao.TableName(env)
	}
	return lockdao.New(dynamodb.NewFromConfig(cfg), table), nil
}
