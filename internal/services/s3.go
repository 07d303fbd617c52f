package services

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"

	"github.com/mcolatosti/AWSAccountFactory/internal/dao/lockdao"
	"github.com/mcolatosti/AWSAccountFactory/internal/errors"
	"github.com/mcolatosti/AWSAccountFactory/internal/policy"
	"github.com/mcolatosti/AWSAccountFactory/internal/retry"
)

// BucketLocker serializes read-modify-write updates of a bucket policy.
// *lockdao.DAO satisfies it.
type BucketLocker interface {
	Acquire(ctx context.Context, input lockdao.AcquireInput) (*lockdao.Record, bool, error)
	Release(ctx context.Context, input lockdao.ReleaseInput) error
}

// BucketService manages IaC buckets, their policies and objects
type BucketService struct {
	client   S3Client
	policies RetryPolicies
	checker  PolicyChecker
	locker   BucketLocker
	holder   string
}

// NewBucketService creates a BucketService. checker and locker may be nil;
// holder identifies this run in lock records.
func NewBucketService(client S3Client, policies RetryPolicies, checker PolicyChecker, locker BucketLocker, holder string) *BucketService {
	return &BucketService{
		client:   client,
		policies: policies,
		checker:  checker,
		locker:   locker,
		holder:   holder,
	}
}

// CreateBucket creates a private bucket in region. A bucket this account
// already owns is not an error.
func (s *BucketService) CreateBucket(ctx context.Context, name, region string) error {
	logger := zerolog.Ctx(ctx)

	input := &s3.CreateBucketInput{
		Bucket: aws.String(name),
		ACL:    types.BucketCannedACLPrivate,
	}
	// us-east-1 rejects an explicit location constraint
	if region != "" && region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(region),
		}
	}

	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if stderrors.As(err, &owned) {
			logger.Info().Str("bucket", name).Msg("Bucket already exists")
			return nil
		}
		return fmt.Errorf("failed to create bucket %s: %w", name, err)
	}

	logger.Info().Str("bucket", name).Str("region", region).Msg("Created bucket")
	return nil
}

// PutPolicy replaces the bucket policy with doc
func (s *BucketService) PutPolicy(ctx context.Context, bucket string, doc policy.Document) error {
	if err := s.check(ctx, doc); err != nil {
		return fmt.Errorf("bucket policy for %s rejected: %w", bucket, err)
	}

	document, err := doc.JSON()
	if err != nil {
		return err
	}

	result := retry.Run(ctx, s.policies.BucketPolicyInit, func(ctx context.Context, attempt int) error {
		return s.putPolicy(ctx, bucket, document)
	})
	if !result.OK() {
		return result.Cause()
	}

	zerolog.Ctx(ctx).Info().
		Str("bucket", bucket).
		Int("attempts", result.Attempts).
		Msg("Applied bucket policy")
	return nil
}

// AppendPolicyStatement adds stmt to the bucket policy, keeping every
// statement already present. It returns false when a statement with the same
// Sid is already in the policy.
func (s *BucketService) AppendPolicyStatement(ctx context.Context, bucket string, stmt policy.Statement) (bool, error) {
	logger := zerolog.Ctx(ctx)

	if err := s.check(ctx, policy.NewDocument(stmt)); err != nil {
		return false, fmt.Errorf("bucket policy statement %s rejected: %w", stmt.Sid, err)
	}

	if s.locker != nil {
		release, err := s.lock(ctx, bucket)
		if err != nil {
			return false, err
		}
		defer release()
	}

	result := retry.Do(ctx, s.policies.BucketPolicyAppend, func(ctx context.Context, attempt int) (bool, error) {
		existing, err := s.GetPolicy(ctx, bucket)
		if err != nil {
			return false, err
		}

		updated, appended, err := policy.AppendStatement(existing, stmt)
		if err != nil {
			return false, retry.Permanent(err)
		}
		if !appended {
			return false, nil
		}

		if err := s.putPolicy(ctx, bucket, string(updated)); err != nil {
			return false, err
		}
		return true, nil
	})
	if !result.OK() {
		return false, result.Cause()
	}

	logger.Info().
		Str("bucket", bucket).
		Str("sid", stmt.Sid).
		Bool("appended", result.Value).
		Msg("Updated bucket policy")
	return result.Value, nil
}

// GetPolicy returns the raw bucket policy, or nil when the bucket has none
func (s *BucketService) GetPolicy(ctx context.Context, bucket string) ([]byte, error) {
	out, err := s.client.GetBucketPolicy(ctx, &s3.GetBucketPolicyInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		var apiErr smithy.APIError
		if stderrors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchBucketPolicy" {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get bucket policy of %s: %w", bucket, err)
	}
	return []byte(aws.ToString(out.Policy)), nil
}

func (s *BucketService) putPolicy(ctx context.Context, bucket, document string) error {
	_, err := s.client.PutBucketPolicy(ctx, &s3.PutBucketPolicyInput{
		Bucket: aws.String(bucket),
		Policy: aws.String(document),
	})
	if err != nil {
		return fmt.Errorf("failed to put bucket policy on %s: %w", bucket, err)
	}
	return nil
}

func (s *BucketService) lock(ctx context.Context, bucket string) (func(), error) {
	acquired := retry.Do(ctx, s.policies.LockAcquire, func(ctx context.Context, attempt int) (*lockdao.Record, error) {
		record, ok, err := s.locker.Acquire(ctx, lockdao.AcquireInput{
			Kind:   lockdao.KindBucketPolicy,
			Name:   bucket,
			Holder: s.holder,
			Reason: "append bucket policy statement",
		})
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.ErrLockHeld
		}
		return record, nil
	})
	if !acquired.OK() {
		return nil, fmt.Errorf("failed to lock bucket policy of %s: %w", bucket, acquired.Cause())
	}

	id := acquired.Value.GetID()
	return func() {
		err := s.locker.Release(context.WithoutCancel(ctx), lockdao.ReleaseInput{
			ID:     id,
			Holder: s.holder,
		})
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Stringer("lock", id).Msg("Failed to release lock")
		}
	}, nil
}

// PutObject uploads body to bucket/key
func (s *BucketService) PutObject(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to put s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// GetObject downloads bucket/key
func (s *BucketService) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", bucket, key, err)
	}
	return data, nil
}

func (s *BucketService) check(ctx context.Context, doc policy.Document) error {
	if s.checker == nil {
		return nil
	}
	return s.checker.Check(ctx, policy.KindResource, doc)
}
