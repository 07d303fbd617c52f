package policy

import (
	"encoding/json"
	"fmt"
)

// AppendStatement adds stmt to an existing policy document. Statements already
// present are carried over untouched, including fields this package does not
// model. If a statement with the same Sid exists the document is returned
// unchanged and appended is false. An empty existing policy yields a new
// document holding only stmt.
func AppendStatement(existing []byte, stmt Statement) (updated []byte, appended bool, err error) {
	added, err := json.Marshal(stmt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal statement: %w", err)
	}

	if len(existing) == 0 {
		doc := map[string]json.RawMessage{
			"Version":   json.RawMessage(`"` + Version + `"`),
			"Statement": json.RawMessage("[" + string(added) + "]"),
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return nil, false, fmt.Errorf("failed to marshal policy: %w", err)
		}
		return data, true, nil
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(existing, &doc); err != nil {
		return nil, false, fmt.Errorf("failed to parse existing policy: %w", err)
	}

	statements, err := splitStatements(doc["Statement"])
	if err != nil {
		return nil, false, err
	}

	if stmt.Sid != "" {
		for _, s := range statements {
			var probe struct {
				Sid string `json:"Sid"`
			}
			if err := json.Unmarshal(s, &probe); err == nil && probe.Sid == stmt.Sid {
				return existing, false, nil
			}
		}
	}

	statements = append(statements, added)
	list, err := json.Marshal(statements)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal statements: %w", err)
	}
	doc["Statement"] = list

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal policy: %w", err)
	}
	return data, true, nil
}
