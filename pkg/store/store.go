// Package store defines the persistence contract for sessions, document
// versions, reviews, and convergence reports (spec §4.7), plus two
// implementations: Memory (in-process, for fast unit tests) and Postgres
// (hand-written SQL for production use).
package store

import (
	"context"

	"github.com/codeready-toolchain/roundtable/pkg/models"
)

// Store is the persistence contract every session driver writes through.
// Writes for a given (session, version) key are atomic: a reader never
// observes a partial record. SaveVersion rejects any version number that
// is not exactly max_existing+1.
type Store interface {
	CreateSession(ctx context.Context, session models.Session) error
	UpdateSession(ctx context.Context, session models.Session) error
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	ListSessions(ctx context.Context) ([]models.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error

	SaveVersion(ctx context.Context, sessionID string, version models.DocumentVersion) error
	LoadVersion(ctx context.Context, sessionID string, version int) (*models.DocumentVersion, error)

	SaveReviews(ctx context.Context, sessionID string, version int, reviews []models.Review) error
	LoadReviews(ctx context.Context, sessionID string, version int) ([]models.Review, error)

	SaveReport(ctx context.Context, sessionID string, report models.ConvergenceReport) error
	LoadReport(ctx context.Context, sessionID string) (*models.ConvergenceReport, error)
}
