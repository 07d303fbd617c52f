package lockdao

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/savaki/ddb/v2"
)

const (
	lockSK         = "LOCK"
	lockTTLMinutes = 15 // Auto-expire locks held by crashed invocations
)

// KindBucketPolicy guards read-modify-write of a bucket policy
const KindBucketPolicy = "bucket-policy"

// PK represents the partition key: {Kind}/{Name}
type PK string

// NewPK creates a partition key from kind and name
func NewPK(kind, name string) PK {
	return PK(fmt.Sprintf("%s/%s", kind, name))
}

// ParsePK parses a partition key into kind and name components
func ParsePK(pk PK) (kind, name string, err error) {
	s := string(pk)
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid PK format: %s, expected {kind}/{name}", s)
	}
	return parts[0], parts[1], nil
}

// String returns the string representation
func (pk PK) String() string {
	return string(pk)
}

// ID represents a lock ID in format {kind}/{name}:LOCK
// Example: bucket-policy/acme-iac-core:LOCK
type ID string

// NewID creates an ID from kind and name
func NewID(kind, name string) ID {
	return ID(fmt.Sprintf("%s:%s", NewPK(kind, name), lockSK))
}

// ParseID parses an ID into kind and name components
func ParseID(id ID) (kind, name string, err error) {
	s := string(id)
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return "", "", fmt.Errorf("invalid ID format: %s, expected {kind}/{name}:LOCK", s)
	}

	if sk := s[idx+1:]; sk != lockSK {
		return "", "", fmt.Errorf("invalid ID format: %s, expected SK to be 'LOCK', got '%s'", s, sk)
	}

	kind, name, err = ParsePK(PK(s[:idx]))
	if err != nil {
		return "", "", fmt.Errorf("invalid PK in ID: %s: %w", s, err)
	}
	return kind, name, nil
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// Record represents a held lock
type Record struct {
	PK         PK     `ddb:"hash" dynamodbav:"pk"`    // {Kind}/{Name}
	SK         string `ddb:"range" dynamodbav:"sk"`   // Always "LOCK"
	Holder     string `dynamodbav:"holder"`           // Run KSUID holding the lock
	Reason     string `dynamodbav:"reason,omitempty"` // What the holder is doing
	AcquiredAt int64  `dynamodbav:"acquired_at"`      // Unix timestamp when lock was acquired
	TTL        int64  `dynamodbav:"ttl"`              // Unix timestamp for DynamoDB TTL expiry
}

// GetID returns the ID for this record
func (r *Record) GetID() ID {
	kind, name, _ := ParsePK(r.PK)
	return NewID(kind, name)
}

// Expired reports whether the lock lapsed at the given time
func (r *Record) Expired(now time.Time) bool {
	return r.TTL < now.Unix()
}

// AcquireInput contains fields for acquiring a lock
type AcquireInput struct {
	Kind   string // Resource kind, e.g. KindBucketPolicy
	Name   string // Resource name, e.g. the bucket
	Holder string // Run KSUID
	Reason string
}

// ReleaseInput contains fields for releasing a lock
type ReleaseInput struct {
	ID     ID     // Lock ID
	Holder string // Run KSUID (must match lock holder)
}

// DAO provides data access operations for resource locks
type DAO struct {
	client    *dynamodb.Client
	db        *ddb.DDB
	table     *ddb.Table
	tableName string
	now       func() time.Time
}

// New creates a new DAO instance
func New(client *dynamodb.Client, tableName string) *DAO {
	db := ddb.New(client)
	table := db.MustTable(tableName, &Record{})
	return &DAO{
		client:    client,
		db:        db,
		table:     table,
		tableName: tableName,
		now:       time.Now,
	}
}

// TableName returns the conventional lock table name for env
func TableName(env string) string {
	return fmt.Sprintf("account-factory-%s-locks", env)
}

// Acquire attempts to acquire a lock.
// Returns the lock record if acquired, false if held by another holder.
// A lock whose TTL has lapsed is taken over. Re-acquiring a lock already
// held by the same holder refreshes it.
func (d *DAO) Acquire(ctx context.Context, input AcquireInput) (*Record, bool, error) {
	if input.Kind == "" || input.Name == "" {
		return nil, false, fmt.Errorf("lock kind and name are required")
	}
	if input.Holder == "" {
		return nil, false, fmt.Errorf("lock holder is required")
	}

	now := d.now().Unix()
	record := &Record{
		PK:         NewPK(input.Kind, input.Name),
		SK:         lockSK,
		Holder:     input.Holder,
		Reason:     input.Reason,
		AcquiredAt: now,
		TTL:        now + lockTTLMinutes*60,
	}

	item := map[string]types.AttributeValue{
		"pk":          &types.AttributeValueMemberS{Value: record.PK.String()},
		"sk":          &types.AttributeValueMemberS{Value: record.SK},
		"holder":      &types.AttributeValueMemberS{Value: record.Holder},
		"acquired_at": &types.AttributeValueMemberN{Value: strconv.FormatInt(record.AcquiredAt, 10)},
		"ttl":         &types.AttributeValueMemberN{Value: strconv.FormatInt(record.TTL, 10)},
	}
	if record.Reason != "" {
		item["reason"] = &types.AttributeValueMemberS{Value: record.Reason}
	}

	_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#pk) OR #ttl < :now OR #holder = :holder"),
		ExpressionAttributeNames: map[string]string{
			"#pk":     "pk",
			"#ttl":    "ttl",
			"#holder": "holder",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now":    &types.AttributeValueMemberN{Value: strconv.FormatInt(now, 10)},
			":holder": &types.AttributeValueMemberS{Value: input.Holder},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if stderrors.As(err, &ccf) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to create lock: %w", err)
	}

	return record, true, nil
}

// Find retrieves a lock record by ID
// Returns nil if not found
func (d *DAO) Find(ctx context.Context, id ID) (*Record, error) {
	kind, name, err := ParseID(id)
	if err != nil {
		return nil, err
	}

	var record Record
	err = d.table.Get(NewPK(kind, name).String()).
		Range(lockSK).
		ConsistentRead(true).
		ScanWithContext(ctx, &record)
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "item not found") || strings.Contains(errStr, "ItemNotFound") {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get lock: %w", err)
	}

	if record.PK == "" && record.SK == "" {
		return nil, nil
	}

	return &record, nil
}

// FindAll scans all locks, including expired ones not yet reaped by TTL
func (d *DAO) FindAll(ctx context.Context) ([]*Record, error) {
	var records []*Record
	err := d.table.Scan().ConsistentRead(false).EachWithContext(ctx, func(item ddb.Item) (bool, error) {
		var record Record
		if err := item.Unmarshal(&record); err != nil {
			return false, err
		}
		records = append(records, &record)
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan locks: %w", err)
	}
	return records, nil
}

// Release releases a lock
// Only succeeds if the lock is held by the specified holder
func (d *DAO) Release(ctx context.Context, input ReleaseInput) error {
	existing, err := d.Find(ctx, input.ID)
	if err != nil {
		return fmt.Errorf("failed to check lock: %w", err)
	}

	if existing == nil {
		// already released or reaped
		return nil
	}

	if existing.Holder != input.Holder {
		return fmt.Errorf("lock %s not held by %s (held by %s)", input.ID, input.Holder, existing.Holder)
	}

	return d.Delete(ctx, input.ID)
}

// Delete removes a lock record regardless of holder
func (d *DAO) Delete(ctx context.Context, id ID) error {
	kind, name, err := ParseID(id)
	if err != nil {
		return err
	}

	err = d.table.Delete(NewPK(kind, name).String()).
		Range(lockSK).
		RunWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete lock: %w", err)
	}

	return nil
}
