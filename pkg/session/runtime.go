// Package session implements the Session Runtime: the background driver
// that carries one refinement loop from Pending through to a terminal
// status, the cancellation registry, the continuation protocol, and the
// public API surface every transport (CLI, future HTTP) is built on.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/codeready-toolchain/roundtable/pkg/events"
	"github.com/codeready-toolchain/roundtable/pkg/llm"
	"github.com/codeready-toolchain/roundtable/pkg/models"
	"github.com/codeready-toolchain/roundtable/pkg/planner"
	"github.com/codeready-toolchain/roundtable/pkg/rterrors"
	"github.com/codeready-toolchain/roundtable/pkg/store"
)

// StartRequest is the external interface's "start" operation input
// (spec §6): the document to refine plus the knobs governing the loop and
// the meta-planner's panel.
type StartRequest struct {
	Title        string
	Content      string
	Goal         string
	DocumentType string

	MaxIterations       int
	DeltaThreshold       float64
	StopOnNoHighIssues   *bool // nil selects the spec default (true)
	ForceMaxIterations   bool

	NumParticipants  int
	Preset           planner.Preset
	ParticipantStyle string
	ModelStrategy    planner.ModelStrategy
	ModelPool        []string
	PrimaryModel     string
}

// validate applies spec §4.1/§7's synchronous input checks, reported before
// the session is ever persisted as Pending. NumParticipants and
// DocumentType are clamped/defaulted rather than rejected, per spec §4.4.
func (r *StartRequest) validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return rterrors.NewValidationError("title", "must not be empty")
	}
	if strings.TrimSpace(r.Content) == "" {
		return rterrors.NewValidationError("content", "must not be empty")
	}
	if r.MaxIterations < 1 {
		return rterrors.NewValidationError("max_iterations", "must be >= 1")
	}
	if r.DeltaThreshold < 0 || r.DeltaThreshold >= 1 {
		return rterrors.NewValidationError("delta_threshold", "must be in [0, 1)")
	}
	return nil
}

func (r *StartRequest) clampedParticipants() int {
	switch {
	case r.NumParticipants < 2:
		return 2
	case r.NumParticipants > 6:
		return 6
	default:
		return r.NumParticipants
	}
}

// StatusResult is the external interface's "status" operation output.
type StatusResult struct {
	SessionID        string               `json:"session_id"`
	Status           models.SessionStatus `json:"status"`
	CurrentIteration int                  `json:"current_iteration"`
	MaxIterations    int                  `json:"max_iterations"`
	FinalVersion     int                  `json:"final_version,omitempty"`
	StoppedBy        models.StopRule      `json:"stopped_by,omitempty"`
	Error            string               `json:"error,omitempty"`
}

// StatusCache optionally mirrors Status results so a reconnecting poller
// (spec §4.6: "status polling should be cheap") doesn't need a Store round
// trip on every call. Never load-bearing: every implementation falls back
// to Store reads on a cache miss.
type StatusCache interface {
	Get(ctx context.Context, sessionID string) (*StatusResult, bool)
	Set(ctx context.Context, sessionID string, result *StatusResult)
}

// Runtime is the process-wide owner of every active session's driver
// goroutine, cancellation handle, and event bus. One Runtime per process.
type Runtime struct {
	store     store.Store
	registry  *events.Registry
	llmClient llm.Client
	planner   *planner.Planner
	idNode    *snowflake.Node

	retryPolicy RetryPolicy
	isRetryable func(context.Context, error) bool
	cache       StatusCache

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// Option configures a Runtime at construction.
type Option func(*Runtime)

// WithRetryPolicy overrides DefaultRetryPolicy for every reviewer and
// moderator LLM call this Runtime's drivers make.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(rt *Runtime) { rt.retryPolicy = policy }
}

// WithIsRetryable overrides defaultIsRetryable.
func WithIsRetryable(fn func(context.Context, error) bool) Option {
	return func(rt *Runtime) { rt.isRetryable = fn }
}

// WithStatusCache attaches a StatusCache, e.g. NewRedisStatusCache.
func WithStatusCache(cache StatusCache) Option {
	return func(rt *Runtime) { rt.cache = cache }
}

// NewRuntime builds a Runtime. nodeID identifies this process in the
// generated session IDs (spec §3: session IDs need only be sortable by
// creation time, not globally unique across a fleet of one) — a
// single-process deployment can pass any fixed node number snowflake
// accepts, such as 1.
func NewRuntime(st store.Store, registry *events.Registry, llmClient llm.Client, nodeID int64, opts ...Option) (*Runtime, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("session: create snowflake node %d: %w", nodeID, err)
	}

	rt := &Runtime{
		store:       st,
		registry:    registry,
		llmClient:   llmClient,
		planner:     planner.NewPlanner(llmClient),
		idNode:      node,
		retryPolicy: DefaultRetryPolicy(),
		isRetryable: defaultIsRetryable,
		cancels:     make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt, nil
}

// Start validates req, persists a new Pending session, and spawns its
// driver in the background. It returns as soon as the session is durably
// recorded — it does not wait for planning or any iteration.
func (rt *Runtime) Start(ctx context.Context, req StartRequest) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}

	docType := req.DocumentType
	if docType == "" {
		docType = "document"
	}

	cfg := models.DefaultSessionConfig()
	cfg.MaxIterations = req.MaxIterations
	cfg.ForceMaxIterations = req.ForceMaxIterations
	if req.DeltaThreshold > 0 {
		cfg.DeltaThreshold = req.DeltaThreshold
	}
	if req.StopOnNoHighIssues != nil {
		cfg.StopOnNoHighIssues = *req.StopOnNoHighIssues
	}

	sessionID := rt.idNode.Generate().String()
	sess := models.Session{
		SessionID:    sessionID,
		Title:        req.Title,
		Goal:         req.Goal,
		DocumentType: docType,
		Config:       cfg,
		Status:       models.SessionPending,
		CreatedAt:    time.Now(),
		TokenUsage:   make(map[string]models.TokenCounts),
	}
	if err := rt.store.CreateSession(ctx, sess); err != nil {
		return "", fmt.Errorf("session: create: %w", err)
	}

	bus := rt.registry.Create(sessionID)
	bus.Publish(events.SessionCreated(sessionID, req.Title, cfg))

	fresh := &freshRunInput{
		plannerReq: planner.Request{
			Title:            req.Title,
			DocumentType:     docType,
			Goal:             req.Goal,
			NumParticipants:  req.clampedParticipants(),
			Preset:           req.Preset,
			ParticipantStyle: req.ParticipantStyle,
			ModelStrategy:    req.ModelStrategy,
			ModelPool:        req.ModelPool,
			PrimaryModel:     req.PrimaryModel,
		},
		initialContent: req.Content,
		title:          req.Title,
		documentType:   docType,
	}

	rt.spawn(sessionID, bus, fresh, nil)
	return sessionID, nil
}

// spawn registers a cancellation handle and starts the driver goroutine.
// Shared by Start and Continue.
func (rt *Runtime) spawn(sessionID string, bus *events.Bus, fresh *freshRunInput, cont *continuationInput) {
	driverCtx, cancel := context.WithCancel(context.Background())
	rt.registerCancel(sessionID, cancel)

	d := &driver{
		sessionID:   sessionID,
		store:       rt.store,
		bus:         bus,
		llmClient:   rt.llmClient,
		planner:     rt.planner,
		retryPolicy: rt.retryPolicy,
		isRetryable: rt.isRetryable,
		onFinish: func() {
			rt.unregisterCancel(sessionID)
			rt.registry.Release(sessionID)
		},
	}
	go d.run(driverCtx, fresh, cont)
}

// Status returns sessionID's current position in the state machine,
// preferring the StatusCache when one is attached.
func (rt *Runtime) Status(ctx context.Context, sessionID string) (*StatusResult, error) {
	if rt.cache != nil {
		if cached, ok := rt.cache.Get(ctx, sessionID); ok {
			return cached, nil
		}
	}

	sess, err := rt.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	result := &StatusResult{
		SessionID:        sess.SessionID,
		Status:           sess.Status,
		CurrentIteration: sess.CurrentIteration,
		MaxIterations:    sess.Config.MaxIterations,
		FinalVersion:     sess.FinalVersion,
		StoppedBy:        sess.StoppedBy,
		Error:            sess.Error,
	}
	if rt.cache != nil {
		rt.cache.Set(ctx, sessionID, result)
	}
	return result, nil
}

// Subscribe attaches to sessionID's live event stream. There is no replay:
// only events published from this call forward are delivered. Once the
// session reaches a terminal status its bus is released and Subscribe
// starts returning ErrNotFound — callers that need the final outcome after
// that point should call GetReport instead.
func (rt *Runtime) Subscribe(sessionID string) (<-chan events.Event, func(), error) {
	bus := rt.registry.Get(sessionID)
	if bus == nil {
		return nil, nil, fmt.Errorf("session %q: %w", sessionID, rterrors.ErrNotFound)
	}
	ch, unsubscribe := bus.Subscribe()
	return ch, unsubscribe, nil
}

// GetSession returns the session's current persisted state.
func (rt *Runtime) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	return rt.store.GetSession(ctx, sessionID)
}

// ListSessions returns every session, newest first.
func (rt *Runtime) ListSessions(ctx context.Context) ([]models.Session, error) {
	return rt.store.ListSessions(ctx)
}

// GetVersion returns one persisted document version.
func (rt *Runtime) GetVersion(ctx context.Context, sessionID string, version int) (*models.DocumentVersion, error) {
	return rt.store.LoadVersion(ctx, sessionID, version)
}

// GetReviews returns the reviews collected against one document version.
func (rt *Runtime) GetReviews(ctx context.Context, sessionID string, version int) ([]models.Review, error) {
	return rt.store.LoadReviews(ctx, sessionID, version)
}

// GetReport returns the final convergence report. It is only available
// once the session has reached Completed — a still-running, failed, or
// cancelled session reports ErrNotFound (spec §6: "404 until the session
// reaches Completed").
func (rt *Runtime) GetReport(ctx context.Context, sessionID string) (*models.ConvergenceReport, error) {
	sess, err := rt.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.SessionCompleted {
		return nil, fmt.Errorf("session %q: report not available in status %q: %w", sessionID, sess.Status, rterrors.ErrNotFound)
	}
	return rt.store.LoadReport(ctx, sessionID)
}

// Continue extends a previously-exhausted session's budget by
// additionalIterations and resumes its driver from where it left off
// (spec §4.6.1). Only a session that stopped specifically because it hit
// max_iterations is eligible — one that converged, failed, or was
// cancelled is not resumable through this path.
func (rt *Runtime) Continue(ctx context.Context, sessionID string, additionalIterations int) (int, error) {
	if additionalIterations <= 0 {
		return 0, rterrors.NewValidationError("additional_iterations", "must be > 0")
	}

	sess, err := rt.store.GetSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	report, err := rt.store.LoadReport(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("session %q: load report for continuation: %w", sessionID, err)
	}

	var lastHighCount int
	if n := len(report.Iterations); n > 0 {
		lastHighCount = report.Iterations[n-1].ConvergenceCheck.CountsBySeverity.High
	}
	if !sess.CanContinue(lastHighCount) {
		return 0, fmt.Errorf("session %q: %w: not eligible for continuation in status %q (stopped_by %q, last_high_count %d)",
			sessionID, rterrors.ErrConflict, sess.Status, sess.StoppedBy, lastHighCount)
	}

	newMax := sess.Config.MaxIterations + additionalIterations
	sess.Config.MaxIterations = newMax
	sess.ContinuedFromIteration = sess.CurrentIteration
	sess.Status = models.SessionRunning
	sess.StoppedBy = ""
	sess.ConvergenceReason = ""
	sess.EndedAt = nil
	if err := rt.store.UpdateSession(ctx, *sess); err != nil {
		return 0, fmt.Errorf("session %q: persist continuation: %w", sessionID, err)
	}

	bus := rt.registry.Create(sessionID)
	bus.Publish(events.Log(sessionID, "info", "session",
		fmt.Sprintf("continuing from iteration %d with %d additional iterations", sess.ContinuedFromIteration, additionalIterations)))

	cont := &continuationInput{
		priorIterations: report.Iterations,
		startVersion:    report.FinalVersion,
	}
	rt.spawn(sessionID, bus, nil, cont)

	return newMax, nil
}

// Cancel requests cooperative cancellation of sessionID's running driver.
// It reports whether a running driver was found; the session transitions
// to Cancelled only once the driver observes ctx.Done() at its next
// barrier (spec §5).
func (rt *Runtime) Cancel(sessionID string) bool {
	rt.mu.Lock()
	cancel, ok := rt.cancels[sessionID]
	rt.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// Delete permanently removes a session and all its persisted artifacts.
// Only a session in a terminal status may be deleted; a running session
// must be cancelled first.
func (rt *Runtime) Delete(ctx context.Context, sessionID string) error {
	sess, err := rt.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !sess.Status.IsTerminal() {
		return fmt.Errorf("session %q: %w: cannot delete a session in status %q", sessionID, rterrors.ErrConflict, sess.Status)
	}
	rt.registry.Release(sessionID)
	return rt.store.DeleteSession(ctx, sessionID)
}

func (rt *Runtime) registerCancel(sessionID string, cancel context.CancelFunc) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.cancels[sessionID] = cancel
}

func (rt *Runtime) unregisterCancel(sessionID string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	delete(rt.cancels, sessionID)
}
