package models

import "time"

// StopRule identifies which rule of the convergence engine (spec §4.1)
// produced a stop decision.
type StopRule string

const (
	StopRuleNoHighIssues    StopRule = "no_high_issues"
	StopRuleMaxIterations   StopRule = "max_iterations"
	StopRuleDeltaThreshold  StopRule = "delta_threshold"
	StopRuleCustom          StopRule = "custom"
	StopRuleError           StopRule = "error"
)

// ConvergenceCheck is the recorded outcome of evaluating the convergence
// engine after one iteration's reviews were aggregated.
type ConvergenceCheck struct {
	CountsBySeverity SeverityCounts `json:"counts_by_severity"`
	Delta            float64        `json:"delta"`
	ShouldStop       bool           `json:"should_stop"`
	StoppedBy        StopRule       `json:"stopped_by,omitempty"`
	Reason           string         `json:"reason"`
}

// IterationRecord is one loop step: a round of reviews against InputVersion,
// the resulting convergence decision, and (if the loop continued) the
// moderator's OutputVersion.
type IterationRecord struct {
	IterationIndex   int              `json:"iteration_index"`
	InputVersion     int              `json:"input_version"`
	Reviews          []Review         `json:"reviews"`
	ConvergenceCheck ConvergenceCheck `json:"convergence_check"`
	// OutputVersion is 0 if the loop stopped without moderating.
	OutputVersion int       `json:"output_version,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	EndedAt       time.Time `json:"ended_at"`
}

// AggregatedSeverityCounts sums severity counts across all reviews in this
// iteration. Duplicate suppression across reviewers is deliberately not
// performed (spec §4.1: "Duplicate suppression across reviews is NOT
// performed at this layer").
func (r *IterationRecord) AggregatedSeverityCounts() SeverityCounts {
	var total SeverityCounts
	for i := range r.Reviews {
		total.Add(r.Reviews[i].SeverityCounts())
	}
	return total
}
