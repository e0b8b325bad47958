package store

import (
	"context"
	stdsql "database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/codeready-toolchain/roundtable/pkg/models"
	"github.com/codeready-toolchain/roundtable/pkg/rterrors"
)

//go:embed migrations
var migrationsFS embed.FS

// Config holds the PostgreSQL connection and pool settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Postgres is a Store backed by hand-written SQL over database/sql, using
// the pgx driver. Sessions, versions, reviews, and reports are each their
// own table; version/review rows are keyed by (session_id, version) so a
// reader of one record never observes a write in progress on another.
type Postgres struct {
	db *stdsql.DB
}

// NewPostgres opens a connection pool per cfg, runs embedded migrations,
// and returns a ready Postgres store.
func NewPostgres(ctx context.Context, cfg Config) (*Postgres, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}

	if err := runMigrations(db, cfg.Database); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: run migrations: %w", err)
	}

	return &Postgres{db: db}, nil
}

// NewPostgresFromDB wraps an already-open *sql.DB, skipping connection
// setup — used by tests running against a testcontainers-managed instance.
func NewPostgresFromDB(db *stdsql.DB) *Postgres {
	return &Postgres{db: db}
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// runMigrations applies every embedded *.sql migration in order. Migration
// workflow: add a numbered pair of up/down files under
// pkg/store/migrations/, they're embedded into the binary at compile time,
// and this function applies any not yet recorded in schema_migrations on
// the next process start.
func runMigrations(db *stdsql.DB, databaseName string) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, databaseName, dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (p *Postgres) CreateSession(ctx context.Context, s models.Session) error {
	participants, err := json.Marshal(s.Participants)
	if err != nil {
		return fmt.Errorf("store: marshal participants: %w", err)
	}
	tokenUsage, err := json.Marshal(s.TokenUsage)
	if err != nil {
		return fmt.Errorf("store: marshal token_usage: %w", err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO sessions (
			session_id, title, goal, document_type, participants, moderator_focus,
			max_iterations, delta_threshold, stop_on_no_high_issues, force_max_iterations,
			status, current_iteration, created_at, token_usage
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		s.SessionID, s.Title, s.Goal, s.DocumentType, participants, s.ModeratorFocus,
		s.Config.MaxIterations, s.Config.DeltaThreshold, s.Config.StopOnNoHighIssues, s.Config.ForceMaxIterations,
		s.Status, s.CurrentIteration, s.CreatedAt, tokenUsage,
	)
	if err != nil {
		return fmt.Errorf("store: insert session %q: %w", s.SessionID, translatePgErr(err))
	}
	return nil
}

func (p *Postgres) UpdateSession(ctx context.Context, s models.Session) error {
	tokenUsage, err := json.Marshal(s.TokenUsage)
	if err != nil {
		return fmt.Errorf("store: marshal token_usage: %w", err)
	}

	res, err := p.db.ExecContext(ctx, `
		UPDATE sessions SET
			status=$2, current_iteration=$3, ended_at=$4, final_version=$5,
			convergence_reason=$6, stopped_by=$7, continued_from_iteration=$8,
			token_usage=$9, error=$10, max_iterations=$11
		WHERE session_id=$1`,
		s.SessionID, s.Status, s.CurrentIteration, s.EndedAt, nullableInt(s.FinalVersion),
		s.ConvergenceReason, string(s.StoppedBy), nullableInt(s.ContinuedFromIteration),
		tokenUsage, s.Error, s.Config.MaxIterations,
	)
	if err != nil {
		return fmt.Errorf("store: update session %q: %w", s.SessionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: session %q: %w", s.SessionID, rterrors.ErrNotFound)
	}
	return nil
}

func (p *Postgres) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT session_id, title, goal, document_type, participants, moderator_focus,
		       max_iterations, delta_threshold, stop_on_no_high_issues, force_max_iterations,
		       status, current_iteration, created_at, ended_at, final_version,
		       convergence_reason, stopped_by, continued_from_iteration, token_usage, error
		FROM sessions WHERE session_id=$1`, sessionID)

	s, err := scanSession(row)
	if err == stdsql.ErrNoRows {
		return nil, fmt.Errorf("store: session %q: %w", sessionID, rterrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan session %q: %w", sessionID, err)
	}
	return s, nil
}

func (p *Postgres) ListSessions(ctx context.Context) ([]models.Session, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT session_id, title, goal, document_type, participants, moderator_focus,
		       max_iterations, delta_threshold, stop_on_no_high_issues, force_max_iterations,
		       status, current_iteration, created_at, ended_at, final_version,
		       convergence_reason, stopped_by, continued_from_iteration, token_usage, error
		FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer rows.Close()

	var out []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan session row: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteSession(ctx context.Context, sessionID string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id=$1`, sessionID)
	if err != nil {
		return fmt.Errorf("store: delete session %q: %w", sessionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: session %q: %w", sessionID, rterrors.ErrNotFound)
	}
	// document_versions, reviews, and reports carry ON DELETE CASCADE foreign
	// keys to sessions(session_id); deleting the session tree is one statement.
	return nil
}

func (p *Postgres) SaveVersion(ctx context.Context, sessionID string, version models.DocumentVersion) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	var maxExisting stdsql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(version) FROM document_versions WHERE session_id=$1`, sessionID).Scan(&maxExisting); err != nil {
		return fmt.Errorf("store: query max version: %w", err)
	}
	expected := int(maxExisting.Int64) + 1
	if version.Version != expected {
		return fmt.Errorf("store: session %q: version %d is not max_existing+1 (%d): %w",
			sessionID, version.Version, expected, rterrors.ErrStoreWrite)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO document_versions (session_id, version, title, document_type, content, created_at, producing_moderator_version, length_chars)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		sessionID, version.Version, version.Title, version.DocType, version.Content, version.CreatedAt,
		nullableInt(version.ProducingModeratorVersion), version.LengthChars,
	)
	if err != nil {
		return fmt.Errorf("store: insert version: %w", translatePgErr(err))
	}

	return tx.Commit()
}

func (p *Postgres) LoadVersion(ctx context.Context, sessionID string, version int) (*models.DocumentVersion, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT version, title, document_type, content, created_at, producing_moderator_version, length_chars
		FROM document_versions WHERE session_id=$1 AND version=$2`, sessionID, version)

	var dv models.DocumentVersion
	var producing stdsql.NullInt64
	if err := row.Scan(&dv.Version, &dv.Title, &dv.DocType, &dv.Content, &dv.CreatedAt, &producing, &dv.LengthChars); err != nil {
		if err == stdsql.ErrNoRows {
			return nil, fmt.Errorf("store: session %q version %d: %w", sessionID, version, rterrors.ErrNotFound)
		}
		return nil, fmt.Errorf("store: scan version: %w", err)
	}
	dv.ProducingModeratorVersion = int(producing.Int64)
	return &dv, nil
}

func (p *Postgres) SaveReviews(ctx context.Context, sessionID string, version int, reviews []models.Review) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, r := range reviews {
		issues, err := json.Marshal(r.Issues)
		if err != nil {
			return fmt.Errorf("store: marshal issues: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO reviews (session_id, version, reviewer_name, issues, overall_assessment, timestamp, prompt_tokens, completion_tokens)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			sessionID, version, r.ReviewerName, issues, r.OverallAssessment, r.Timestamp, r.Tokens.Prompt, r.Tokens.Completion,
		)
		if err != nil {
			return fmt.Errorf("store: insert review: %w", err)
		}
	}
	return tx.Commit()
}

func (p *Postgres) LoadReviews(ctx context.Context, sessionID string, version int) ([]models.Review, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT reviewer_name, issues, overall_assessment, timestamp, prompt_tokens, completion_tokens
		FROM reviews WHERE session_id=$1 AND version=$2 ORDER BY reviewer_name`, sessionID, version)
	if err != nil {
		return nil, fmt.Errorf("store: query reviews: %w", err)
	}
	defer rows.Close()

	var out []models.Review
	for rows.Next() {
		var r models.Review
		var issuesJSON []byte
		if err := rows.Scan(&r.ReviewerName, &issuesJSON, &r.OverallAssessment, &r.Timestamp, &r.Tokens.Prompt, &r.Tokens.Completion); err != nil {
			return nil, fmt.Errorf("store: scan review: %w", err)
		}
		if err := json.Unmarshal(issuesJSON, &r.Issues); err != nil {
			return nil, fmt.Errorf("store: unmarshal issues: %w", err)
		}
		r.Tokens.Total = r.Tokens.Prompt + r.Tokens.Completion
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("store: session %q version %d: %w", sessionID, version, rterrors.ErrNotFound)
	}
	return out, rows.Err()
}

func (p *Postgres) SaveReport(ctx context.Context, sessionID string, report models.ConvergenceReport) error {
	tokenUsage, err := json.Marshal(report.TokenUsage)
	if err != nil {
		return fmt.Errorf("store: marshal token_usage: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO reports (session_id, status, stopped_by, convergence_reason, final_version, token_usage, started_at, ended_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (session_id) DO UPDATE SET
			status=EXCLUDED.status, stopped_by=EXCLUDED.stopped_by, convergence_reason=EXCLUDED.convergence_reason,
			final_version=EXCLUDED.final_version, token_usage=EXCLUDED.token_usage, ended_at=EXCLUDED.ended_at`,
		sessionID, report.Status, string(report.StoppedBy), report.ConvergenceReason, report.FinalVersion,
		tokenUsage, report.StartedAt, report.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert report: %w", err)
	}
	return nil
}

func (p *Postgres) LoadReport(ctx context.Context, sessionID string) (*models.ConvergenceReport, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT status, stopped_by, convergence_reason, final_version, token_usage, started_at, ended_at
		FROM reports WHERE session_id=$1`, sessionID)

	var r models.ConvergenceReport
	r.SessionID = sessionID
	var tokenUsageJSON []byte
	var stoppedBy string
	if err := row.Scan(&r.Status, &stoppedBy, &r.ConvergenceReason, &r.FinalVersion, &tokenUsageJSON, &r.StartedAt, &r.EndedAt); err != nil {
		if err == stdsql.ErrNoRows {
			return nil, fmt.Errorf("store: session %q: %w", sessionID, rterrors.ErrNotFound)
		}
		return nil, fmt.Errorf("store: scan report: %w", err)
	}
	r.StoppedBy = models.StopRule(stoppedBy)
	if err := json.Unmarshal(tokenUsageJSON, &r.TokenUsage); err != nil {
		return nil, fmt.Errorf("store: unmarshal token_usage: %w", err)
	}

	reviews, err := p.loadIterationsForReport(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	r.Iterations = reviews
	return &r, nil
}

// loadIterationsForReport is a placeholder join point: iteration-level
// history (reviews grouped per version) is reconstructed from the reviews
// table rather than duplicated into the reports table itself.
func (p *Postgres) loadIterationsForReport(ctx context.Context, sessionID string) ([]models.IterationRecord, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT DISTINCT version FROM reviews WHERE session_id=$1 ORDER BY version`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: query iteration versions: %w", err)
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("store: scan iteration version: %w", err)
		}
		versions = append(versions, v)
	}

	iterations := make([]models.IterationRecord, 0, len(versions))
	for i, v := range versions {
		reviews, err := p.LoadReviews(ctx, sessionID, v)
		if err != nil {
			return nil, err
		}
		iterations = append(iterations, models.IterationRecord{IterationIndex: i + 1, InputVersion: v, Reviews: reviews})
	}
	return iterations, nil
}

// row is satisfied by both *sql.Row and *sql.Rows, letting scanSession serve
// both GetSession (single row) and ListSessions (row set).
type row interface {
	Scan(dest ...any) error
}

func scanSession(r row) (*models.Session, error) {
	var s models.Session
	var participantsJSON, tokenUsageJSON []byte
	var finalVersion, continuedFrom stdsql.NullInt64
	var endedAt stdsql.NullTime
	var stoppedBy, errStr stdsql.NullString
	var status string

	err := r.Scan(
		&s.SessionID, &s.Title, &s.Goal, &s.DocumentType, &participantsJSON, &s.ModeratorFocus,
		&s.Config.MaxIterations, &s.Config.DeltaThreshold, &s.Config.StopOnNoHighIssues, &s.Config.ForceMaxIterations,
		&status, &s.CurrentIteration, &s.CreatedAt, &endedAt, &finalVersion,
		&s.ConvergenceReason, &stoppedBy, &continuedFrom, &tokenUsageJSON, &errStr,
	)
	if err != nil {
		return nil, err
	}

	s.Status = models.SessionStatus(status)
	s.StoppedBy = models.StopRule(stoppedBy.String)
	s.Error = errStr.String
	s.FinalVersion = int(finalVersion.Int64)
	s.ContinuedFromIteration = int(continuedFrom.Int64)
	if endedAt.Valid {
		t := endedAt.Time
		s.EndedAt = &t
	}
	if err := json.Unmarshal(participantsJSON, &s.Participants); err != nil {
		return nil, fmt.Errorf("unmarshal participants: %w", err)
	}
	if len(tokenUsageJSON) > 0 {
		if err := json.Unmarshal(tokenUsageJSON, &s.TokenUsage); err != nil {
			return nil, fmt.Errorf("unmarshal token_usage: %w", err)
		}
	}
	return &s, nil
}

func nullableInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

// translatePgErr maps a unique-violation into rterrors.ErrConflict so
// callers can dispatch on the stable taxonomy instead of a driver-specific
// error type. Anything else passes through unchanged.
func translatePgErr(err error) error {
	if err == nil {
		return nil
	}
	// A bare substring check keeps this free of a direct dependency on
	// pgconn's error type, since the only case that matters here — a
	// duplicate session_id — is already unambiguous from the message.
	if containsUniqueViolation(err.Error()) {
		return fmt.Errorf("%v: %w", err, rterrors.ErrConflict)
	}
	return err
}

func containsUniqueViolation(msg string) bool {
	return len(msg) > 0 && (contains(msg, "duplicate key") || contains(msg, "unique constraint"))
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
