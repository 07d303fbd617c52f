// Package policy builds the IAM and S3 policy documents the factory applies
// and checks them against guardrails before they are sent to AWS.
package policy

import (
	"encoding/json"
	"fmt"
)

// Version is the only policy language version the factory emits
const Version = "2012-10-17"

// Effect is the statement effect
type Effect string

const (
	Allow Effect = "Allow"
	Deny  Effect = "Deny"
)

// Common actions
const (
	ActionAssumeRole = "sts:AssumeRole"
)

// Value is a policy element that AWS accepts as either a single string or a
// list. A single entry marshals as a bare string.
type Value []string

// Values is shorthand for building a Value
func Values(v ...string) Value {
	return Value(v)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if len(v) == 1 {
		return json.Marshal(v[0])
	}
	return json.Marshal([]string(v))
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*v = Value{single}
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("policy value must be a string or list of strings: %w", err)
	}
	*v = list
	return nil
}

func (v Value) MarshalYAML() (interface{}, error) {
	if len(v) == 1 {
		return v[0], nil
	}
	return []string(v), nil
}

// Principal identifies who a resource or trust policy applies to
type Principal struct {
	AWS     Value `json:"AWS,omitempty" yaml:"AWS,omitempty"`
	Service Value `json:"Service,omitempty" yaml:"Service,omitempty"`
}

// UnmarshalJSON also accepts the "*" shorthand
func (p *Principal) UnmarshalJSON(data []byte) error {
	var wildcard string
	if err := json.Unmarshal(data, &wildcard); err == nil {
		p.AWS = Values(wildcard)
		return nil
	}

	type principal Principal
	var v principal
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("failed to parse principal: %w", err)
	}
	*p = Principal(v)
	return nil
}

// Condition maps operator -> key -> values
type Condition map[string]map[string]Value

// Statement is a single policy statement
type Statement struct {
	Sid       string     `json:"Sid,omitempty" yaml:"Sid,omitempty"`
	Effect    Effect     `json:"Effect" yaml:"Effect"`
	Principal *Principal `json:"Principal,omitempty" yaml:"Principal,omitempty"`
	Action    Value      `json:"Action" yaml:"Action"`
	Resource  Value      `json:"Resource,omitempty" yaml:"Resource,omitempty"`
	Condition Condition  `json:"Condition,omitempty" yaml:"Condition,omitempty"`
}

// Document is an IAM or S3 bucket policy document
type Document struct {
	Version   string      `json:"Version" yaml:"Version"`
	Id        string      `json:"Id,omitempty" yaml:"Id,omitempty"`
	Statement []Statement `json:"Statement" yaml:"Statement"`
}

// NewDocument returns a document with the current policy version
func NewDocument(statements ...Statement) Document {
	return Document{
		Version:   Version,
		Statement: statements,
	}
}

// JSON serializes the document for an AWS API call
func (d Document) JSON() (string, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to marshal policy document: %w", err)
	}
	return string(data), nil
}

// Parse decodes a policy document. A Statement given as a single object is
// accepted and normalized to a list.
func Parse(data []byte) (Document, error) {
	var raw struct {
		Version   string          `json:"Version"`
		Id        string          `json:"Id"`
		Statement json.RawMessage `json:"Statement"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Document{}, fmt.Errorf("failed to parse policy document: %w", err)
	}

	statements, err := splitStatements(raw.Statement)
	if err != nil {
		return Document{}, err
	}

	doc := Document{Version: raw.Version, Id: raw.Id}
	for _, s := range statements {
		var stmt Statement
		if err := json.Unmarshal(s, &stmt); err != nil {
			return Document{}, fmt.Errorf("failed to parse policy statement: %w", err)
		}
		doc.Statement = append(doc.Statement, stmt)
	}
	return doc, nil
}

// splitStatements accepts a Statement element as an object, a list, or absent
func splitStatements(data json.RawMessage) ([]json.RawMessage, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var list []json.RawMessage
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var single map[string]json.RawMessage
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("policy Statement must be an object or a list: %w", err)
	}
	return []json.RawMessage{data}, nil
}
