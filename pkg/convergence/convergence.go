// Package convergence implements the composite stop-rule decision engine:
// a pure function over iteration history that decides whether the
// refinement loop should keep going.
package convergence

import (
	"fmt"

	"github.com/codeready-toolchain/roundtable/pkg/models"
)

// CustomPredicate is an optional caller-supplied stop rule evaluated after
// the force_max_iterations check and before the built-in no_high_issues
// check. It receives the
// full iteration history seen so far (most recent last) and returns true to
// force a stop with stopped_by=custom.
type CustomPredicate func(iterations []models.IterationRecord) bool

// Config carries the tunables Decide evaluates against. It is a thin
// projection of models.SessionConfig plus the optional custom predicate,
// which has no place in a persisted, JSON-serializable session record.
type Config struct {
	MaxIterations      int
	DeltaThreshold     float64
	StopOnNoHighIssues bool
	ForceMaxIterations bool
	Custom             CustomPredicate
}

// FromSessionConfig projects a persisted SessionConfig into a Config ready
// for Decide, leaving Custom unset.
func FromSessionConfig(c models.SessionConfig) Config {
	return Config{
		MaxIterations:      c.MaxIterations,
		DeltaThreshold:     c.DeltaThreshold,
		StopOnNoHighIssues: c.StopOnNoHighIssues,
		ForceMaxIterations: c.ForceMaxIterations,
	}
}

// StopDecision is the engine's verdict on the just-completed iteration.
type StopDecision struct {
	ShouldStop bool
	StoppedBy  models.StopRule
	Reason     string
}

// Decide evaluates the ordered stop rules against iterations, whose last
// element must have a populated ConvergenceCheck.CountsBySeverity and Delta
// for the just-completed iteration. It performs no I/O and reads no clock;
// the same inputs always produce the same output.
//
// Rule order (first match wins):
//  1. force_max_iterations overrides everything below it until the cap is hit.
//  2. a custom predicate, if provided.
//  3. no_high_issues, if enabled and the last iteration raised zero High issues.
//  4. max_iterations, if the budget is exhausted.
//  5. delta_threshold, from iteration 2 onward.
//  6. otherwise, continue.
func Decide(cfg Config, iterations []models.IterationRecord) StopDecision {
	n := len(iterations)
	if n == 0 {
		return StopDecision{ShouldStop: false, Reason: "no iterations run yet"}
	}
	last := iterations[n-1]

	if cfg.ForceMaxIterations && n < cfg.MaxIterations {
		return StopDecision{
			ShouldStop: false,
			Reason:     fmt.Sprintf("force_max_iterations set, %d/%d iterations run", n, cfg.MaxIterations),
		}
	}

	if cfg.Custom != nil && cfg.Custom(iterations) {
		return StopDecision{
			ShouldStop: true,
			StoppedBy:  models.StopRuleCustom,
			Reason:     "custom predicate returned true",
		}
	}

	if cfg.StopOnNoHighIssues && last.ConvergenceCheck.CountsBySeverity.High == 0 {
		return StopDecision{
			ShouldStop: true,
			StoppedBy:  models.StopRuleNoHighIssues,
			Reason:     fmt.Sprintf("iteration %d raised no high-severity issues", last.IterationIndex),
		}
	}

	if n >= cfg.MaxIterations {
		reason := fmt.Sprintf("reached max_iterations=%d", cfg.MaxIterations)
		if high := last.ConvergenceCheck.CountsBySeverity.High; high > 0 {
			reason = fmt.Sprintf("%s with %d high-severity issue(s) still open", reason, high)
		}
		return StopDecision{
			ShouldStop: true,
			StoppedBy:  models.StopRuleMaxIterations,
			Reason:     reason,
		}
	}

	if n >= 2 && last.ConvergenceCheck.Delta < cfg.DeltaThreshold {
		return StopDecision{
			ShouldStop: true,
			StoppedBy:  models.StopRuleDeltaThreshold,
			Reason: fmt.Sprintf("document delta %.4f fell below threshold %.4f",
				last.ConvergenceCheck.Delta, cfg.DeltaThreshold),
		}
	}

	return StopDecision{
		ShouldStop: false,
		Reason:     fmt.Sprintf("iteration %d did not meet any stop rule", last.IterationIndex),
	}
}
