package schema

import (
	"fmt"
	"strings"

	"github.com/koustreak/relmap/internal/errs"
)

// Mode sets how severe a schema mismatch is.
type Mode int

const (
	// Strict reports every mismatch except extra catalog columns as an error.
	Strict Mode = iota
	// Lenient reports mismatches as warnings; only a failed introspection is an error.
	Lenient
)

func (m Mode) String() string {
	if m == Lenient {
		return "lenient"
	}
	return "strict"
}

// ParseMode accepts "strict" or "lenient".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return Strict, nil
	case "lenient":
		return Lenient, nil
	}
	return Strict, errs.Newf(errs.ErrKindInvalidInput, "unknown validation mode %q", s)
}

// UnmarshalText lets Mode be read from configuration files.
func (m *Mode) UnmarshalText(text []byte) error {
	v, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// IssueType classifies a single difference between entity and catalog.
type IssueType int

const (
	ConnectionError IssueType = iota
	TableNotFound
	ColumnNotFound
	TypeMismatch
	NullableMismatch
	LengthMismatch
	ExtraColumn
)

func (t IssueType) String() string {
	switch t {
	case ConnectionError:
		return "connection_error"
	case TableNotFound:
		return "table_not_found"
	case ColumnNotFound:
		return "column_not_found"
	case TypeMismatch:
		return "type_mismatch"
	case NullableMismatch:
		return "nullable_mismatch"
	case LengthMismatch:
		return "length_mismatch"
	case ExtraColumn:
		return "extra_column"
	default:
		return "unknown"
	}
}

func (t IssueType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Issue is one finding of a validation run.
type Issue struct {
	Type     IssueType `json:"type"`
	Table    string    `json:"table"`
	Column   string    `json:"column,omitempty"`
	Expected string    `json:"expected,omitempty"`
	Actual   string    `json:"actual,omitempty"`
	Message  string    `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Type, i.Message)
}

// Result holds the findings of one validation run.
type Result struct {
	Table    string  `json:"table"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// IsValid reports whether no errors were found, whatever the mode.
func (r *Result) IsValid() bool { return len(r.Errors) == 0 }

func (r *Result) ErrorCount() int   { return len(r.Errors) }
func (r *Result) WarningCount() int { return len(r.Warnings) }

// Summary returns a one-line digest, e.g.
// errors=1, warnings=2, first_error="column email ...".
func (r *Result) Summary() string {
	s := fmt.Sprintf("errors=%d, warnings=%d", len(r.Errors), len(r.Warnings))
	if len(r.Errors) > 0 {
		s += fmt.Sprintf(", first_error=%q", r.Errors[0].Message)
	}
	return s
}

// Err returns a schema validation error carrying every error message, or nil.
func (r *Result) Err() error {
	if r.IsValid() {
		return nil
	}
	details := make([]string, len(r.Errors))
	for i, issue := range r.Errors {
		details[i] = issue.String()
	}
	return &errs.Error{
		Kind:    errs.ErrKindSchemaValidation,
		Message: fmt.Sprintf("schema validation failed for table %s (%s)", r.Table, r.Summary()),
		Details: details,
	}
}

func (r *Result) add(mode Mode, issue Issue) {
	if severe(mode, issue.Type) {
		r.Errors = append(r.Errors, issue)
	} else {
		r.Warnings = append(r.Warnings, issue)
	}
}

func severe(mode Mode, t IssueType) bool {
	switch t {
	case ConnectionError:
		return true
	case ExtraColumn:
		return false
	}
	return mode == Strict
}
