package model

import "fmt"

type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

type Phase string

const (
	PhaseStorage      Phase = "STORAGE"
	PhaseTableMapping Phase = "TABLE_MAPPING"
	PhaseSchema       Phase = "SCHEMA"
	PhaseConflict     Phase = "CONFLICT"
	PhaseReader       Phase = "READER"
	PhaseDescriptor   Phase = "DESCRIPTOR"
)

// VerificationIssue is a single diagnostic produced by discovery or by static
// descriptor checks.
type VerificationIssue struct {
	Severity Severity          `json:"severity"`
	Phase    Phase             `json:"phase"`
	Message  string            `json:"message"`
	Context  map[string]string `json:"context,omitempty"`
}

func (i VerificationIssue) String() string {
	return fmt.Sprintf("[%s] %s: %s", i.Severity, i.Phase, i.Message)
}

// VerificationReport is an ordered list of issues.
type VerificationReport struct {
	Issues []VerificationIssue `json:"issues"`
}

// IsValid reports whether the report holds no ERROR issues.
func (r VerificationReport) IsValid() bool {
	return len(r.Errors()) == 0
}

func (r VerificationReport) Errors() []VerificationIssue {
	return FilterIssues(r.Issues, SeverityError)
}

func (r VerificationReport) Warnings() []VerificationIssue {
	return FilterIssues(r.Issues, SeverityWarning)
}

func (r VerificationReport) Infos() []VerificationIssue {
	return FilterIssues(r.Issues, SeverityInfo)
}

// Merge returns a report with the issues of both reports, r first.
func (r VerificationReport) Merge(other VerificationReport) VerificationReport {
	issues := make([]VerificationIssue, 0, len(r.Issues)+len(other.Issues))
	issues = append(issues, r.Issues...)
	issues = append(issues, other.Issues...)
	return VerificationReport{Issues: issues}
}

// FilterIssues keeps the issues of one severity, preserving order.
func FilterIssues(issues []VerificationIssue, severity Severity) []VerificationIssue {
	var out []VerificationIssue
	for _, i := range issues {
		if i.Severity == severity {
			out = append(out, i)
		}
	}
	return out
}
