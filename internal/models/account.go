package models

// CreationState is the AWS Organizations account creation state
type CreationState string

const (
	CreationInProgress CreationState = "IN_PROGRESS"
	CreationSucceeded  CreationState = "SUCCEEDED"
	CreationFailed     CreationState = "FAILED"
)

// IsTerminal reports whether polling can stop
func (s CreationState) IsTerminal() bool {
	return s == CreationSucceeded || s == CreationFailed
}

// AccountRecord describes a member account known to the factory
type AccountRecord struct {
	AccountID     string        `json:"account_id,omitempty" yaml:"account_id,omitempty"`
	AccountName   string        `json:"account_name" yaml:"account_name"`
	Email         string        `json:"email,omitempty" yaml:"email,omitempty"`
	State         CreationState `json:"state" yaml:"state"`
	FailureReason string        `json:"failure_reason,omitempty" yaml:"failure_reason,omitempty"`
	OUID          string        `json:"ou_id,omitempty" yaml:"ou_id,omitempty"`
}
