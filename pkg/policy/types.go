package policy

import (
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for problems that leave the document usable.
	SeverityWarning Severity = "warning"

	// SeverityError is for problems that break evaluation of part of the document.
	SeverityError Severity = "error"
)

// Policy is one Rego module whose deny set yields violations.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity applies to violations that do not carry their own.
	Severity Severity `json:"severity"`

	Enabled bool `json:"enabled"`

	// Builtin marks the rules shipped with nodeflow. Reloading user policies keeps them.
	Builtin bool `json:"builtin"`

	// Source is the file a user policy was loaded from.
	Source string `json:"source,omitempty"`
}

// Violation is one problem a policy found.
type Violation struct {
	Policy     string   `json:"policy"`
	Message    string   `json:"message"`
	Severity   Severity `json:"severity"`
	Node       *int     `json:"node,omitempty"`
	Connection *int     `json:"connection,omitempty"`
}

// Result is the outcome of linting one document.
type Result struct {
	// Allowed is false when any violation has error severity.
	Allowed bool `json:"allowed"`

	Violations        []Violation   `json:"violations"`
	EvaluatedPolicies []string      `json:"evaluatedPolicies"`
	Duration          time.Duration `json:"duration"`
}

// Count returns the number of violations with the given severity.
func (r *Result) Count(s Severity) int {
	n := 0
	for _, v := range r.Violations {
		if v.Severity == s {
			n++
		}
	}
	return n
}
