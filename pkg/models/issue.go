package models

// Issue is an atomic finding raised by a reviewer against a document version.
// Immutable once produced.
type Issue struct {
	Category      string   `json:"category"`
	Description   string   `json:"description"`
	Severity      Severity `json:"severity"`
	SuggestedFix  string   `json:"suggested_fix,omitempty"`
	ReviewerName  string   `json:"reviewer_name"`
}
