package models

import "time"

// SessionStatus is the session's position in the state machine (spec §4.6):
// Pending -> Planning -> Running -> {Completed, Failed, Cancelled}.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionPlanning  SessionStatus = "planning"
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionCancelled SessionStatus = "cancelled"
)

// IsTerminal reports whether no further state transition is possible without
// an explicit continuation.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionCompleted, SessionFailed, SessionCancelled:
		return true
	default:
		return false
	}
}

// SessionConfig holds the tunables governing one session's loop, supplied at
// creation and (for MaxIterations) mutated by a continuation.
type SessionConfig struct {
	MaxIterations int `json:"max_iterations"`
	// DeltaThreshold is the minimum fractional content-length delta between
	// consecutive versions below which the loop may stop; default 0.05.
	DeltaThreshold float64 `json:"delta_threshold"`
	// StopOnNoHighIssues, when true (the default), stops the loop as soon as
	// a round of reviews raises zero High severity issues.
	StopOnNoHighIssues bool `json:"stop_on_no_high_issues"`
	// ForceMaxIterations, when true, disables every early-stop rule and runs
	// exactly MaxIterations rounds.
	ForceMaxIterations bool `json:"force_max_iterations"`
}

// DefaultSessionConfig mirrors spec §4.1's defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxIterations:      5,
		DeltaThreshold:     0.05,
		StopOnNoHighIssues: true,
		ForceMaxIterations: false,
	}
}

// Session is the top-level aggregate tying a document's refinement run
// together: its participants, configuration, and running state.
type Session struct {
	SessionID      string    `json:"session_id"`
	Title          string    `json:"title"`
	Goal           string    `json:"goal"`
	DocumentType   string    `json:"document_type"`
	Participants   []RoleSpec `json:"participants"`
	ModeratorFocus string    `json:"moderator_focus,omitempty"`
	Config         SessionConfig `json:"config"`

	Status           SessionStatus `json:"status"`
	CurrentIteration int           `json:"current_iteration"`

	CreatedAt time.Time  `json:"created_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	FinalVersion int `json:"final_version,omitempty"`
	// ConvergenceReason is the human-readable explanation attached to the
	// terminal ConvergenceCheck.
	ConvergenceReason string    `json:"convergence_reason,omitempty"`
	StoppedBy         StopRule  `json:"stopped_by,omitempty"`

	// ContinuedFromIteration is set on a session produced by a continuation
	// operation (spec §4.6.1): the iteration index the prior run stopped at.
	ContinuedFromIteration int `json:"continued_from_iteration,omitempty"`

	// TokenUsage aggregates spend by producer: reviewer names, "moderator",
	// and "meta_planner".
	TokenUsage map[string]TokenCounts `json:"token_usage"`

	Error string `json:"error,omitempty"`
}

// CanContinue reports whether this session is eligible for the continuation
// protocol (spec §4.6.1): terminated specifically because it exhausted its
// iteration budget while still carrying open High severity issues, not
// because it converged, was cancelled, or failed, and not because it hit
// max_iterations with nothing left to fix (e.g. stop_on_no_high_issues=false
// or force_max_iterations=true suppressed an otherwise-clean stop).
// lastHighCount is the final iteration's aggregated High severity count.
func (s *Session) CanContinue(lastHighCount int) bool {
	return s.Status == SessionCompleted && s.StoppedBy == StopRuleMaxIterations && lastHighCount > 0
}
