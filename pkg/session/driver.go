package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/roundtable/pkg/convergence"
	"github.com/codeready-toolchain/roundtable/pkg/events"
	"github.com/codeready-toolchain/roundtable/pkg/llm"
	"github.com/codeready-toolchain/roundtable/pkg/models"
	"github.com/codeready-toolchain/roundtable/pkg/moderator"
	"github.com/codeready-toolchain/roundtable/pkg/planner"
	"github.com/codeready-toolchain/roundtable/pkg/review"
	"github.com/codeready-toolchain/roundtable/pkg/rterrors"
	"github.com/codeready-toolchain/roundtable/pkg/store"
)

// driver runs one session's state machine from Pending (fresh run) or a
// continuation's Running re-entry through to a terminal status. Exactly one
// driver goroutine is ever active for a given session (spec §4.6/§5: "each
// session is driven by exactly one background task at a time").
type driver struct {
	sessionID string
	store     store.Store
	bus       *events.Bus

	llmClient   llm.Client
	planner     *planner.Planner
	retryPolicy RetryPolicy
	isRetryable func(context.Context, error) bool

	onFinish func()
}

// freshRunInput seeds a brand-new session's planning phase.
type freshRunInput struct {
	plannerReq     planner.Request
	initialContent string
	title          string
	documentType   string
}

// continuationInput seeds a resumed driver with the state the prior run(s)
// ended with, so convergence Decide sees the full iteration history.
type continuationInput struct {
	priorIterations []models.IterationRecord
	startVersion    int
}

func (d *driver) run(ctx context.Context, fresh *freshRunInput, cont *continuationInput) {
	defer d.onFinish()

	sess, err := d.store.GetSession(ctx, d.sessionID)
	if err != nil {
		slog.ErrorContext(ctx, "driver: session vanished before run start", "session_id", d.sessionID, "error", err)
		return
	}

	var iterations []models.IterationRecord
	var currentVersion int
	var goal string

	if fresh != nil {
		sess.Status = models.SessionPlanning
		if err := d.store.UpdateSession(ctx, *sess); err != nil {
			d.fail(ctx, sess, fmt.Errorf("persist planning status: %w", err))
			return
		}
		d.bus.Publish(events.RoundtableGenerating(d.sessionID, fresh.plannerReq.NumParticipants))

		planResult, planErr := d.planner.Plan(ctx, fresh.plannerReq)
		if planErr != nil {
			d.fail(ctx, sess, fmt.Errorf("%w: %v", rterrors.ErrPlannerFailure, planErr))
			return
		}
		if planResult.UsedFallback {
			d.bus.Publish(events.Log(d.sessionID, "warn", "planner", "meta-planner fell back to the built-in generic template"))
		}

		sess.Participants = planResult.Participants
		sess.ModeratorFocus = planResult.ModeratorFocus
		addProducerTokens(sess, "meta_planner", planResult.Tokens)
		d.bus.Publish(events.RoundtableGenerated(d.sessionID, planResult.Participants, planResult.ModeratorFocus))

		initial := models.NewDocumentVersion(1, fresh.title, fresh.documentType, fresh.initialContent, time.Now(), 0)
		if err := d.store.SaveVersion(ctx, d.sessionID, initial); err != nil {
			d.fail(ctx, sess, fmt.Errorf("%w: persist initial version: %v", rterrors.ErrStoreWrite, err))
			return
		}

		sess.Status = models.SessionRunning
		if err := d.store.UpdateSession(ctx, *sess); err != nil {
			d.fail(ctx, sess, fmt.Errorf("persist running status: %w", err))
			return
		}
		currentVersion = 1
		goal = fresh.plannerReq.Goal
	} else {
		iterations = cont.priorIterations
		currentVersion = cont.startVersion
		sess.Status = models.SessionRunning
		if err := d.store.UpdateSession(ctx, *sess); err != nil {
			d.fail(ctx, sess, fmt.Errorf("persist running status: %w", err))
			return
		}
	}

	reviewAgent := &review.Agent{
		Client: d.llmClient,
		OnSalvage: func(reviewerName string) {
			d.bus.Publish(events.Log(d.sessionID, "warn", "reviewer",
				fmt.Sprintf("reviewer %q response salvaged on retry", reviewerName)))
		},
	}
	moderatorAgent := moderator.NewAgent(d.llmClient)
	cfg := convergence.FromSessionConfig(sess.Config)

	for {
		if d.cancelledAt(ctx, sess) {
			return
		}

		iterationIndex := len(iterations) + 1
		d.bus.Publish(events.IterationStart(d.sessionID, iterationIndex, sess.Config.MaxIterations))

		doc, err := d.store.LoadVersion(ctx, d.sessionID, currentVersion)
		if err != nil {
			d.fail(ctx, sess, fmt.Errorf("load version %d: %w", currentVersion, err))
			return
		}

		reviews, reviewErr := d.runReviewFanOut(ctx, reviewAgent, *doc, sess.Participants)
		if reviewErr != nil {
			d.fail(ctx, sess, reviewErr)
			return
		}

		if d.cancelledAt(ctx, sess) {
			return
		}

		if err := d.store.SaveReviews(ctx, d.sessionID, currentVersion, reviews); err != nil {
			d.fail(ctx, sess, fmt.Errorf("%w: persist reviews: %v", rterrors.ErrStoreWrite, err))
			return
		}
		addReviewerTokens(sess, reviews)

		record := models.IterationRecord{
			IterationIndex: iterationIndex,
			InputVersion:   currentVersion,
			Reviews:        reviews,
			StartedAt:      time.Now(),
		}
		record.ConvergenceCheck.CountsBySeverity = record.AggregatedSeverityCounts()
		if iterationIndex >= 2 {
			if prev, err := d.store.LoadVersion(ctx, d.sessionID, currentVersion-1); err == nil {
				record.ConvergenceCheck.Delta = convergence.Delta(prev.Content, doc.Content)
			}
		}

		iterations = append(iterations, record)
		decision := convergence.Decide(cfg, iterations)
		last := &iterations[len(iterations)-1]
		last.ConvergenceCheck.ShouldStop = decision.ShouldStop
		last.ConvergenceCheck.StoppedBy = decision.StoppedBy
		last.ConvergenceCheck.Reason = decision.Reason

		d.bus.Publish(events.ConvergenceCheck(d.sessionID, iterationIndex, record.ConvergenceCheck.CountsBySeverity, decision.ShouldStop, decision.Reason))

		if decision.ShouldStop {
			last.EndedAt = time.Now()
			d.finalize(ctx, sess, iterations, currentVersion, decision)
			return
		}

		d.bus.Publish(events.ModeratorStart(d.sessionID, iterationIndex))
		var newContent string
		var modTokens models.TokenCounts
		modErr := withRetry(ctx, d.retryPolicy, d.isRetryable, func() error {
			content, tokens, err := moderatorAgent.Run(ctx, *doc, reviews, sess.ModeratorFocus, goal)
			if err != nil {
				return err
			}
			newContent, modTokens = content, tokens
			return nil
		})
		if modErr != nil {
			d.fail(ctx, sess, fmt.Errorf("moderator: %w", modErr))
			return
		}

		newVersion := currentVersion + 1
		versionRecord := models.NewDocumentVersion(newVersion, doc.Title, doc.DocType, newContent, time.Now(), iterationIndex)
		if err := d.store.SaveVersion(ctx, d.sessionID, versionRecord); err != nil {
			d.fail(ctx, sess, fmt.Errorf("%w: persist version %d: %v", rterrors.ErrStoreWrite, newVersion, err))
			return
		}
		addProducerTokens(sess, "moderator", modTokens)
		d.bus.Publish(events.ModeratorComplete(d.sessionID, newVersion, modTokens))

		last.OutputVersion = newVersion
		last.EndedAt = time.Now()
		currentVersion = newVersion
		sess.CurrentIteration = iterationIndex
		if err := d.store.UpdateSession(ctx, *sess); err != nil {
			slog.ErrorContext(ctx, "driver: failed to persist iteration progress", "session_id", d.sessionID, "error", err)
		}
	}
}

type reviewOutcome struct {
	review *models.Review
	err    error
}

// runReviewFanOut dispatches one reviewer call per participant concurrently
// and awaits the full barrier before returning (spec §4.6 step 2-3: "Await
// all reviewers"). Any single reviewer's fatal failure fails the whole
// iteration; no partial reviews are returned.
func (d *driver) runReviewFanOut(ctx context.Context, agent *review.Agent, doc models.DocumentVersion, participants []models.RoleSpec) ([]models.Review, error) {
	outcomes := make([]reviewOutcome, len(participants))
	var wg sync.WaitGroup

	for i, role := range participants {
		wg.Add(1)
		go func(i int, role models.RoleSpec) {
			defer wg.Done()
			d.bus.Publish(events.CriticReviewStart(d.sessionID, role.Name))

			var rev *models.Review
			err := withRetry(ctx, d.retryPolicy, d.isRetryable, func() error {
				r, runErr := agent.Run(ctx, doc, role)
				if runErr != nil {
					return runErr
				}
				rev = r
				return nil
			})
			outcomes[i] = reviewOutcome{review: rev, err: err}
			if err == nil {
				counts := rev.SeverityCounts()
				d.bus.Publish(events.CriticReviewComplete(d.sessionID, role.Name, len(rev.Issues), counts, rev.Issues, rev.Tokens))
			}
		}(i, role)
	}
	wg.Wait()

	reviews := make([]models.Review, 0, len(participants))
	var firstErr error
	var firstErrRole string
	for i, o := range outcomes {
		if o.err != nil {
			if firstErr == nil {
				firstErr = o.err
				firstErrRole = participants[i].Name
			}
			continue
		}
		reviews = append(reviews, *o.review)
	}
	if firstErr != nil {
		return nil, rterrors.NewStageError("reviewer", firstErrRole, firstErr)
	}
	return reviews, nil
}

// cancelledAt checks for a cancellation request at a barrier (spec §5:
// "observed at every barrier... between iterations"). Returns true and
// finalizes the session as Cancelled if ctx is done.
func (d *driver) cancelledAt(ctx context.Context, sess *models.Session) bool {
	select {
	case <-ctx.Done():
		d.cancel(sess)
		return true
	default:
		return false
	}
}

func (d *driver) fail(ctx context.Context, sess *models.Session, err error) {
	sess.Status = models.SessionFailed
	sess.Error = err.Error()
	now := time.Now()
	sess.EndedAt = &now
	d.bus.Publish(events.Log(d.sessionID, "error", "driver", err.Error()))
	if updateErr := d.store.UpdateSession(context.Background(), *sess); updateErr != nil {
		slog.Error("driver: failed to persist Failed status", "session_id", d.sessionID, "error", updateErr)
	}
}

func (d *driver) cancel(sess *models.Session) {
	sess.Status = models.SessionCancelled
	now := time.Now()
	sess.EndedAt = &now
	d.bus.Publish(events.Log(d.sessionID, "warn", "driver", "session cancelled"))
	if err := d.store.UpdateSession(context.Background(), *sess); err != nil {
		slog.Error("driver: failed to persist Cancelled status", "session_id", d.sessionID, "error", err)
	}
}

func (d *driver) finalize(ctx context.Context, sess *models.Session, iterations []models.IterationRecord, finalVersion int, decision convergence.StopDecision) {
	sess.Status = models.SessionCompleted
	sess.StoppedBy = decision.StoppedBy
	sess.ConvergenceReason = decision.Reason
	sess.FinalVersion = finalVersion
	sess.CurrentIteration = len(iterations)
	now := time.Now()
	sess.EndedAt = &now

	converged := decision.StoppedBy == models.StopRuleNoHighIssues ||
		decision.StoppedBy == models.StopRuleDeltaThreshold ||
		decision.StoppedBy == models.StopRuleCustom

	report := models.ConvergenceReport{
		SessionID:         d.sessionID,
		Status:            models.SessionCompleted,
		StoppedBy:         decision.StoppedBy,
		ConvergenceReason: decision.Reason,
		Iterations:        iterations,
		FinalVersion:      finalVersion,
		TokenUsage:        sess.TokenUsage,
		StartedAt:         sess.CreatedAt,
		EndedAt:           now,
	}

	if err := d.store.SaveReport(ctx, d.sessionID, report); err != nil {
		d.fail(ctx, sess, fmt.Errorf("%w: persist report: %v", rterrors.ErrStoreWrite, err))
		return
	}
	if err := d.store.UpdateSession(ctx, *sess); err != nil {
		slog.Error("driver: failed to persist Completed status", "session_id", d.sessionID, "error", err)
	}

	summary := fmt.Sprintf("stopped by %s: %s", decision.StoppedBy, decision.Reason)
	d.bus.Publish(events.RefinementComplete(d.sessionID, finalVersion, converged, decision.StoppedBy, summary))
}

func addReviewerTokens(sess *models.Session, reviews []models.Review) {
	for _, r := range reviews {
		addProducerTokens(sess, r.ReviewerName, r.Tokens)
	}
}

func addProducerTokens(sess *models.Session, producer string, tokens models.TokenCounts) {
	if sess.TokenUsage == nil {
		sess.TokenUsage = make(map[string]models.TokenCounts)
	}
	tc := sess.TokenUsage[producer]
	tc.Add(tokens)
	sess.TokenUsage[producer] = tc
}
