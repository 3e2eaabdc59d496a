package policy

import (
	"fmt"
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for suggestions that never block a build.
	SeverityInfo Severity = "info"

	// SeverityWarning blocks a build only when fail_on_warning is set.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the build.
	SeverityError Severity = "error"
)

func (s Severity) rank() int {
	switch s {
	case SeverityError:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// Policy is a named Rego module. Its deny set is queried against the
// build definition.
type Policy struct {
	Name        string `json:"name"`
	Description string `json:"description"`

	// Rego contains the module source. The module must define a deny set.
	Rego string `json:"rego"`

	// Severity applies to violations that do not carry their own.
	Severity Severity `json:"severity"`

	Enabled bool `json:"enabled"`

	// Source is the file the policy was loaded from, empty for built-ins.
	Source string `json:"source,omitempty"`
}

// Violation is one deny result.
type Violation struct {
	Policy   string   `json:"policy"`
	Task     string   `json:"task,omitempty"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

func (v Violation) String() string {
	if v.Task != "" {
		return fmt.Sprintf("[%s] %s: %s (%s)", v.Severity, v.Task, v.Message, v.Policy)
	}
	return fmt.Sprintf("[%s] %s (%s)", v.Severity, v.Message, v.Policy)
}

// Result is the outcome of evaluating every enabled policy.
type Result struct {
	Violations []Violation `json:"violations,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// Failures holds policies whose evaluation errored.
	Failures map[string]string `json:"failures,omitempty"`

	EvaluatedAt time.Time     `json:"evaluated_at"`
	Duration    time.Duration `json:"duration"`
}

// Count returns the number of violations of severity s.
func (r *Result) Count(s Severity) int {
	n := 0
	for _, v := range r.Violations {
		if v.Severity == s {
			n++
		}
	}
	return n
}

// Blocking reports whether the result should stop a build.
func (r *Result) Blocking(failOnWarning bool) bool {
	floor := SeverityError.rank()
	if failOnWarning {
		floor = SeverityWarning.rank()
	}
	for _, v := range r.Violations {
		if v.Severity.rank() >= floor {
			return true
		}
	}
	return len(r.Failures) > 0
}

// Err returns a summary error when the result is blocking.
func (r *Result) Err(failOnWarning bool) error {
	if !r.Blocking(failOnWarning) {
		return nil
	}
	if len(r.Failures) > 0 {
		return fmt.Errorf("%d policies failed to evaluate", len(r.Failures))
	}
	return fmt.Errorf("build definition violates policy: %d errors, %d warnings",
		r.Count(SeverityError), r.Count(SeverityWarning))
}
