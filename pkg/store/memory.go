package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/codeready-toolchain/roundtable/pkg/models"
	"github.com/codeready-toolchain/roundtable/pkg/rterrors"
)

// Memory is an in-process Store backed by plain maps, guarded by a single
// mutex. Each session's writes are already serialized by its driver (spec
// §5: "Per-session writes are serialized by the driver"), so Memory's lock
// only needs to protect the maps themselves, not impose any session-level
// ordering of its own.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]models.Session
	versions map[string]map[int]models.DocumentVersion
	reviews  map[string]map[int][]models.Review
	reports  map[string]models.ConvergenceReport
}

// NewMemory builds an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]models.Session),
		versions: make(map[string]map[int]models.DocumentVersion),
		reviews:  make(map[string]map[int][]models.Review),
		reports:  make(map[string]models.ConvergenceReport),
	}
}

func (m *Memory) CreateSession(_ context.Context, session models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[session.SessionID]; exists {
		return fmt.Errorf("store: session %q: %w", session.SessionID, rterrors.ErrConflict)
	}
	m.sessions[session.SessionID] = session
	return nil
}

func (m *Memory) UpdateSession(_ context.Context, session models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[session.SessionID]; !exists {
		return fmt.Errorf("store: session %q: %w", session.SessionID, rterrors.ErrNotFound)
	}
	m.sessions[session.SessionID] = session
	return nil
}

func (m *Memory) GetSession(_ context.Context, sessionID string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("store: session %q: %w", sessionID, rterrors.ErrNotFound)
	}
	return &s, nil
}

func (m *Memory) ListSessions(_ context.Context) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) DeleteSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return fmt.Errorf("store: session %q: %w", sessionID, rterrors.ErrNotFound)
	}
	delete(m.sessions, sessionID)
	delete(m.versions, sessionID)
	delete(m.reviews, sessionID)
	delete(m.reports, sessionID)
	return nil
}

func (m *Memory) SaveVersion(_ context.Context, sessionID string, version models.DocumentVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byVersion, ok := m.versions[sessionID]
	if !ok {
		byVersion = make(map[int]models.DocumentVersion)
		m.versions[sessionID] = byVersion
	}

	maxExisting := 0
	for v := range byVersion {
		if v > maxExisting {
			maxExisting = v
		}
	}
	if version.Version != maxExisting+1 {
		return fmt.Errorf("store: session %q: version %d is not max_existing+1 (%d): %w",
			sessionID, version.Version, maxExisting+1, rterrors.ErrStoreWrite)
	}

	byVersion[version.Version] = version
	return nil
}

func (m *Memory) LoadVersion(_ context.Context, sessionID string, version int) (*models.DocumentVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byVersion, ok := m.versions[sessionID]
	if !ok {
		return nil, fmt.Errorf("store: session %q version %d: %w", sessionID, version, rterrors.ErrNotFound)
	}
	dv, ok := byVersion[version]
	if !ok {
		return nil, fmt.Errorf("store: session %q version %d: %w", sessionID, version, rterrors.ErrNotFound)
	}
	return &dv, nil
}

func (m *Memory) SaveReviews(_ context.Context, sessionID string, version int, reviews []models.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byVersion, ok := m.reviews[sessionID]
	if !ok {
		byVersion = make(map[int][]models.Review)
		m.reviews[sessionID] = byVersion
	}
	cp := make([]models.Review, len(reviews))
	copy(cp, reviews)
	byVersion[version] = cp
	return nil
}

func (m *Memory) LoadReviews(_ context.Context, sessionID string, version int) ([]models.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byVersion, ok := m.reviews[sessionID]
	if !ok {
		return nil, fmt.Errorf("store: session %q version %d: %w", sessionID, version, rterrors.ErrNotFound)
	}
	reviews, ok := byVersion[version]
	if !ok {
		return nil, fmt.Errorf("store: session %q version %d: %w", sessionID, version, rterrors.ErrNotFound)
	}
	cp := make([]models.Review, len(reviews))
	copy(cp, reviews)
	return cp, nil
}

func (m *Memory) SaveReport(_ context.Context, sessionID string, report models.ConvergenceReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[sessionID] = report
	return nil
}

func (m *Memory) LoadReport(_ context.Context, sessionID string) (*models.ConvergenceReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[sessionID]
	if !ok {
		return nil, fmt.Errorf("store: session %q: %w", sessionID, rterrors.ErrNotFound)
	}
	return &r, nil
}
