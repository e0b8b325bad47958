package models

import "time"

// ConvergenceReport is the final summary handed back to the caller once a
// session reaches a terminal status: the full iteration history plus the
// headline outcome.
type ConvergenceReport struct {
	SessionID         string            `json:"session_id"`
	Status            SessionStatus     `json:"status"`
	StoppedBy         StopRule          `json:"stopped_by,omitempty"`
	ConvergenceReason string            `json:"convergence_reason,omitempty"`
	Iterations        []IterationRecord `json:"iterations"`
	FinalVersion      int               `json:"final_version,omitempty"`
	TokenUsage        map[string]TokenCounts `json:"token_usage"`
	StartedAt         time.Time         `json:"started_at"`
	EndedAt           time.Time         `json:"ended_at"`
}

// TotalTokens sums token usage across every tracked producer.
func (r *ConvergenceReport) TotalTokens() TokenCounts {
	var total TokenCounts
	for _, tc := range r.TokenUsage {
		total.Add(tc)
	}
	return total
}
