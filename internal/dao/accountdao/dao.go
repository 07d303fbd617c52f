package accountdao

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/ddb/v2"
	"github.com/segmentio/ksuid"
)

// PK represents the partition key: the account name
type PK string

// NewPK creates a partition key from an account name
func NewPK(accountName string) PK {
	return PK(accountName)
}

// String returns the string representation
func (pk PK) String() string {
	return string(pk)
}

// ID represents a run ID in format {accountName}:{ksuid}
// Example: core-network:2HFj3kLmNoPqRsTuVwXy
type ID string

// NewID constructs an ID from partition key and sort key
func NewID(pk PK, sk string) ID {
	return ID(fmt.Sprintf("%s:%s", pk, sk))
}

// ParseID parses a run ID into its partition key and sort key components
func ParseID(id ID) (pk PK, sk string, err error) {
	s := string(id)
	idx := strings.LastIndex(s, ":")
	if idx <= 0 || idx == len(s)-1 {
		return "", "", fmt.Errorf("invalid run ID format: %s, expected {account}:{ksuid}", s)
	}
	return PK(s[:idx]), s[idx+1:], nil
}

func (id ID) String() string {
	return string(id)
}

// Status represents the state of a provisioning run
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusSucceeded  Status = "SUCCEEDED"
	StatusFailed     Status = "FAILED"
)

// IsTerminal reports whether no further transitions are expected
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Record represents one provisioning run of an account
type Record struct {
	PK            PK       `ddb:"hash" dynamodbav:"pk"`            // account name
	SK            string   `ddb:"range" dynamodbav:"sk"`           // KSUID
	AccountID     string   `dynamodbav:"account_id,omitempty"`     // set once the account exists
	Email         string   `dynamodbav:"email,omitempty"`
	ParentHub     string   `dynamodbav:"parent_hub,omitempty"`
	Topology      string   `dynamodbav:"topology,omitempty"`       // hub|spoke
	RequestID     string   `dynamodbav:"request_id,omitempty"`     // CloudFormation RequestId
	StackID       string   `dynamodbav:"stack_id,omitempty"`
	Status        Status   `dynamodbav:"status,omitempty"`
	FailureReason string   `dynamodbav:"failure_reason,omitempty"`
	OUID          string   `dynamodbav:"ou_id,omitempty"`
	DegradedRoles []string `dynamodbav:"degraded_roles,omitempty"` // roles reported with guessed ARNs
	CreatedAt     int64    `dynamodbav:"created_at,omitempty"`     // Unix epoch timestamp of creation
	UpdatedAt     int64    `dynamodbav:"updated_at,omitempty"`     // Unix epoch timestamp of last update
	FinishedAt    *int64   `dynamodbav:"finished_at,omitempty"`    // Unix epoch timestamp of completion
}

// GetID returns the full run ID
func (r *Record) GetID() ID {
	return NewID(r.PK, r.SK)
}

// CreateInput contains the fields needed to start a run record
type CreateInput struct {
	AccountName string
	SK          string // KSUID sort key; generated when empty
	Email       string
	ParentHub   string
	Topology    string
	RequestID   string
	StackID     string
}

// UpdateInput contains the fields that can be updated on a run record
type UpdateInput struct {
	ID            ID
	Status        *Status
	AccountID     *string
	OUID          *string
	FailureReason *string
	DegradedRoles []string
}

// DAO provides data access operations for run records
type DAO struct {
	db    *ddb.DDB
	table *ddb.Table
}

// New creates a new DAO instance
func New(client *dynamodb.Client, tableName string) *DAO {
	db := ddb.New(client)
	table := db.MustTable(tableName, &Record{})
	return &DAO{
		db:    db,
		table: table,
	}
}

// TableName returns the conventional run ledger table name for env
func TableName(env string) string {
	return fmt.Sprintf("account-factory-%s-accounts", env)
}

// Create writes a new run record with status IN_PROGRESS
func (d *DAO) Create(ctx context.Context, input CreateInput) (Record, error) {
	if input.AccountName == "" {
		return Record{}, fmt.Errorf("account name is required")
	}

	sk := input.SK
	if sk == "" {
		sk = ksuid.New().String()
	}

	now := time.Now().Unix()
	record := Record{
		PK:        NewPK(input.AccountName),
		SK:        sk,
		Email:     input.Email,
		ParentHub: input.ParentHub,
		Topology:  input.Topology,
		RequestID: input.RequestID,
		StackID:   input.StackID,
		Status:    StatusInProgress,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := d.table.Put(&record).RunWithContext(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("failed to create run record: %w", err)
	}

	return record, nil
}

// Find retrieves a run record by ID
// Returns an error if not found or if there's a database error
func (d *DAO) Find(ctx context.Context, id ID) (Record, error) {
	pk, sk, err := ParseID(id)
	if err != nil {
		return Record{}, err
	}

	var record Record
	err = d.table.Get(pk.String()).
		Range(sk).
		ConsistentRead(true).
		ScanWithContext(ctx, &record)
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "item not found") || strings.Contains(errStr, "ItemNotFound") {
			return Record{}, fmt.Errorf("run record not found: %s", id)
		}
		return Record{}, fmt.Errorf("failed to find run record: %w", err)
	}

	if record.PK == "" && record.SK == "" {
		return Record{}, fmt.Errorf("run record not found: %s", id)
	}

	return record, nil
}

// UpdateStatus applies the set fields of input to a run record
func (d *DAO) UpdateStatus(ctx context.Context, input UpdateInput) error {
	pk, sk, err := ParseID(input.ID)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	update := d.table.Update(pk.String()).
		Range(sk).
		Set("#UpdatedAt = ?", now)

	if input.Status != nil {
		update = update.Set("#Status = ?", string(*input.Status))
		if input.Status.IsTerminal() {
			update = update.Set("#FinishedAt = ?", now)
		}
	}

	if input.AccountID != nil {
		update = update.Set("#AccountID = ?", *input.AccountID)
	}

	if input.OUID != nil {
		update = update.Set("#OUID = ?", *input.OUID)
	}

	if input.FailureReason != nil {
		update = update.Set("#FailureReason = ?", *input.FailureReason)
	}

	if len(input.DegradedRoles) > 0 {
		update = update.Set("#DegradedRoles = ?", input.DegradedRoles)
	}

	if err := update.RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to update run record: %w", err)
	}

	return nil
}

// QueryByAccount returns every run for an account, newest first
func (d *DAO) QueryByAccount(ctx context.Context, accountName string) ([]Record, error) {
	var records []Record

	err := d.table.Query("#PK = ?", NewPK(accountName).String()).
		FindAllWithContext(ctx, &records)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	// KSUIDs sort by time
	sort.Slice(records, func(i, j int) bool {
		return records[i].SK > records[j].SK
	})

	return records, nil
}

// FindAll scans every run record, newest first
func (d *DAO) FindAll(ctx context.Context) ([]Record, error) {
	var records []Record
	err := d.table.Scan().ConsistentRead(false).EachWithContext(ctx, func(item ddb.Item) (bool, error) {
		var record Record
		if err := item.Unmarshal(&record); err != nil {
			return false, err
		}
		records = append(records, record)
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan runs: %w", err)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].SK > records[j].SK
	})

	return records, nil
}

// Delete removes a run record by ID
func (d *DAO) Delete(ctx context.Context, id ID) error {
	pk, sk, err := ParseID(id)
	if err != nil {
		return err
	}

	err = d.table.Delete(pk.String()).
		Range(sk).
		RunWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete run record: %w", err)
	}

	return nil
}
