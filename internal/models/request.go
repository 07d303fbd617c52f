package models

import (
	"fmt"
	"strings"
)

// ProvisioningRequest is the custom resource event delivered by CloudFormation
// or Service Catalog.
type ProvisioningRequest struct {
	RequestType        string                 `json:"RequestType"`
	ServiceToken       string                 `json:"ServiceToken"`
	StackId            string                 `json:"StackId"`
	RequestId          string                 `json:"RequestId"`
	LogicalResourceId  string                 `json:"LogicalResourceId"`
	ResponseURL        string                 `json:"ResponseURL"`
	PhysicalResourceId string                 `json:"PhysicalResourceId,omitempty"`
	ResourceType       string                 `json:"ResourceType,omitempty"`
	ResourceProperties map[string]interface{} `json:"ResourceProperties,omitempty"`
}

// Action returns the typed request action
func (r ProvisioningRequest) Action() Action {
	return ParseAction(r.RequestType)
}

// TopLevelAccount returns the account id embedded in the ServiceToken ARN.
// Example: arn:aws:lambda:us-east-1:123456789012:function:factory -> 123456789012
func (r ProvisioningRequest) TopLevelAccount() (string, error) {
	parts := strings.Split(r.ServiceToken, ":")
	if len(parts) < 5 || parts[4] == "" {
		return "", fmt.Errorf("invalid ServiceToken format: %s", r.ServiceToken)
	}
	return parts[4], nil
}

// WithRequestType returns a copy of the request carrying a different RequestType
func (r ProvisioningRequest) WithRequestType(requestType string) ProvisioningRequest {
	r.RequestType = requestType
	return r
}

// Topology distinguishes hub accounts, which own an IaC bucket and build/deploy
// roles, from spokes that attach to an existing hub.
type Topology string

const (
	TopologyHub   Topology = "hub"
	TopologySpoke Topology = "spoke"
)

// ParseTopology treats only the exact string "true" as a hub
func ParseTopology(isHub string) Topology {
	if isHub == "true" {
		return TopologyHub
	}
	return TopologySpoke
}

// AccountParams holds the per-account inputs gathered from the environment
// and the settings file.
type AccountParams struct {
	AccountName      string
	AccountEmail     string
	ParentHub        string
	Topology         Topology
	AccountRole      string
	AccessToBilling  string
	IaCAccountID     string
	StackName        string
	StackRegion      string
	SourceBucket     string
	RemoveDefaultVPC bool
	TestMode         bool
	TestAccountID    string
}

// IsHub reports whether the account is provisioned as a hub
func (p AccountParams) IsHub() bool {
	return p.Topology == TopologyHub
}
