package models

// Severity grades a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ValidationIssue is one problem found while checking a sheet for publishing.
type ValidationIssue struct {
	Severity  Severity
	Code      string
	ExpenseID string
	EntityID  string
	UnitID    string
	Message   string
}

// ValidationResult lists errors (blocking publish) and warnings (not blocking).
type ValidationResult struct {
	Errors   []ValidationIssue
	Warnings []ValidationIssue
}

// OK reports whether no errors were found.
func (r ValidationResult) OK() bool {
	return len(r.Errors) == 0
}

// Add appends an issue to the list matching its severity.
func (r *ValidationResult) Add(issue ValidationIssue) {
	if issue.Severity == SeverityWarning {
		r.Warnings = append(r.Warnings, issue)
		return
	}
	issue.Severity = SeverityError
	r.Errors = append(r.Errors, issue)
}
