package models

import (
	"fmt"
	"time"
)

// TokenCounts reports token consumption for a single LLM exchange.
type TokenCounts struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// Add accumulates counts from another exchange.
func (t *TokenCounts) Add(other TokenCounts) {
	t.Prompt += other.Prompt
	t.Completion += other.Completion
	t.Total += other.Total
}

// Review is one reviewer's output for one document version.
type Review struct {
	ReviewerName      string      `json:"reviewer_name"`
	Issues            []Issue     `json:"issues"`
	OverallAssessment string      `json:"overall_assessment"`
	Timestamp         time.Time   `json:"timestamp"`
	Tokens            TokenCounts `json:"tokens"`
}

// Validate enforces the spec §3 invariant that every Issue.ReviewerName
// equals the Review's own ReviewerName.
func (r *Review) Validate() error {
	for i, issue := range r.Issues {
		if issue.ReviewerName != r.ReviewerName {
			return fmt.Errorf("review %q: issue %d has reviewer_name %q, want %q",
				r.ReviewerName, i, issue.ReviewerName, r.ReviewerName)
		}
	}
	return nil
}

// SeverityCounts tallies this review's issues by severity.
func (r *Review) SeverityCounts() SeverityCounts {
	var c SeverityCounts
	for _, issue := range r.Issues {
		switch issue.Severity {
		case SeverityHigh:
			c.High++
		case SeverityMedium:
			c.Medium++
		case SeverityLow:
			c.Low++
		}
	}
	return c
}
