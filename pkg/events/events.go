// Package events implements the per-session, in-process event bus: ordered
// progress events from a single producer (the session runtime) fanned out
// to zero or more concurrent subscribers. There is no historical replay — a
// subscriber that joins mid-run sees only events emitted from its join
// point forward.
package events

import (
	"log/slog"
	"sync"

	"github.com/codeready-toolchain/roundtable/pkg/models"
)

// Kind identifies one of the eleven stable event payload shapes of spec §4.5.
type Kind string

const (
	KindSessionCreated       Kind = "session_created"
	KindRoundtableGenerating Kind = "roundtable_generating"
	KindRoundtableGenerated  Kind = "roundtable_generated"
	KindIterationStart       Kind = "iteration_start"
	KindCriticReviewStart    Kind = "critic_review_start"
	KindCriticReviewComplete Kind = "critic_review_complete"
	KindConvergenceCheck     Kind = "convergence_check"
	KindModeratorStart       Kind = "moderator_start"
	KindModeratorComplete    Kind = "moderator_complete"
	KindRefinementComplete   Kind = "refinement_complete"
	KindLog                  Kind = "log"
)

// Event is the common envelope every published event carries. Payload holds
// the kind-specific fields (see the per-kind constructors below);
// schemas evolve additively only, so an existing field is never removed or
// repurposed.
type Event struct {
	Kind      Kind
	SessionID string
	Payload   map[string]any
}

// SessionCreated, RoundtableGenerating, etc. are convenience constructors
// producing the Event and its Payload map for each Kind, so callers never hand-assemble map literals
// with typo-prone keys.

func SessionCreated(sessionID, title string, config models.SessionConfig) Event {
	return Event{Kind: KindSessionCreated, SessionID: sessionID, Payload: map[string]any{
		"title": title, "config": config,
	}}
}

func RoundtableGenerating(sessionID string, numParticipants int) Event {
	return Event{Kind: KindRoundtableGenerating, SessionID: sessionID, Payload: map[string]any{
		"message": "generating reviewer panel", "num_participants": numParticipants,
	}}
}

func RoundtableGenerated(sessionID string, participants []models.RoleSpec, moderatorFocus string) Event {
	return Event{Kind: KindRoundtableGenerated, SessionID: sessionID, Payload: map[string]any{
		"participants": participants, "moderator_focus": moderatorFocus,
	}}
}

func IterationStart(sessionID string, iteration, maxIterations int) Event {
	return Event{Kind: KindIterationStart, SessionID: sessionID, Payload: map[string]any{
		"iteration": iteration, "max_iterations": maxIterations,
	}}
}

func CriticReviewStart(sessionID, criticName string) Event {
	return Event{Kind: KindCriticReviewStart, SessionID: sessionID, Payload: map[string]any{
		"critic_name": criticName,
	}}
}

func CriticReviewComplete(sessionID, criticName string, issuesCount int, counts models.SeverityCounts, topIssues []models.Issue, tokens models.TokenCounts) Event {
	if len(topIssues) > 3 {
		topIssues = topIssues[:3]
	}
	return Event{Kind: KindCriticReviewComplete, SessionID: sessionID, Payload: map[string]any{
		"critic_name": criticName, "issues_count": issuesCount,
		"counts_by_severity": counts, "top_issues": topIssues, "tokens": tokens,
	}}
}

func ConvergenceCheck(sessionID string, iteration int, counts models.SeverityCounts, converged bool, reason string) Event {
	return Event{Kind: KindConvergenceCheck, SessionID: sessionID, Payload: map[string]any{
		"iteration": iteration, "issue_counts": counts, "converged": converged, "reason": reason,
	}}
}

func ModeratorStart(sessionID string, iteration int) Event {
	return Event{Kind: KindModeratorStart, SessionID: sessionID, Payload: map[string]any{
		"iteration": iteration,
	}}
}

func ModeratorComplete(sessionID string, newVersion int, tokens models.TokenCounts) Event {
	return Event{Kind: KindModeratorComplete, SessionID: sessionID, Payload: map[string]any{
		"new_version": newVersion, "tokens": tokens,
	}}
}

func RefinementComplete(sessionID string, finalVersion int, converged bool, stoppedBy models.StopRule, reportSummary string) Event {
	return Event{Kind: KindRefinementComplete, SessionID: sessionID, Payload: map[string]any{
		"final_version": finalVersion, "converged": converged, "stopped_by": stoppedBy, "report_summary": reportSummary,
	}}
}

func Log(sessionID, level, source, message string) Event {
	return Event{Kind: KindLog, SessionID: sessionID, Payload: map[string]any{
		"level": level, "source": source, "message": message,
	}}
}

// DefaultQueueSize is the recommended per-subscriber bounded queue depth
// (spec §4.5 Backpressure).
const DefaultQueueSize = 256

// subscriber is one consumer's bounded mailbox plus the drop-warning latch
// so an overflowing subscriber gets exactly one synthetic warning event,
// not one per subsequent drop.
type subscriber struct {
	ch      chan Event
	dropped bool
}

// Bus is a single session's event bus: one producer (the session driver),
// any number of concurrent subscribers. A Bus is created per session and
// discarded once the session's driver finishes; it holds no historical
// buffer.
type Bus struct {
	sessionID string
	queueSize int

	mu          sync.Mutex
	subscribers map[int]*subscriber
	nextID      int
}

// NewBus builds a Bus for sessionID with the default per-subscriber queue
// size.
func NewBus(sessionID string) *Bus {
	return &Bus{sessionID: sessionID, queueSize: DefaultQueueSize, subscribers: make(map[int]*subscriber)}
}

// Subscribe registers a new subscriber and returns its channel plus an
// unsubscribe function. The channel only ever carries events published
// after Subscribe returns — there is no catch-up.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	sub := &subscriber{ch: make(chan Event, b.queueSize)}
	b.subscribers[id] = sub
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subscribers[id]; ok {
			close(s.ch)
			delete(b.subscribers, id)
		}
	}
	return sub.ch, unsubscribe
}

// SubscriberCount reports the number of active subscribers, for tests and
// diagnostics.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Publish delivers ev to every current subscriber, in the order Publish is
// called. The runtime is never blocked by a slow subscriber: a full queue
// drops the event and, on the first drop for that subscriber since its last
// successful send, discards the oldest queued event to make room for one
// synthetic log{level=warn} event (spec §4.5 Backpressure). Publish itself
// never blocks.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- ev:
			s.dropped = false
		default:
			if !s.dropped {
				s.dropped = true
				warn := Log(b.sessionID, "warn", "events", "events dropped")
				// Discard the oldest queued event so the warning fits.
				select {
				case <-s.ch:
				default:
				}
				select {
				case s.ch <- warn:
				default:
					// The queue refilled before the warning could be sent;
					// drop the warning too rather than block.
					slog.Warn("event bus: subscriber queue full, dropping warning too", "session_id", b.sessionID)
				}
			}
		}
	}
}

// Close closes every subscriber's channel. Called once the session's driver
// finishes; subsequent Subscribe calls still work (a late status poll may
// still want a channel) but will never receive anything.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, s := range b.subscribers {
		close(s.ch)
		delete(b.subscribers, id)
	}
}
