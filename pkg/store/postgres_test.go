package store

import (
	"context"
	stdsql "database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/codeready-toolchain/roundtable/pkg/models"
	"github.com/codeready-toolchain/roundtable/pkg/rterrors"
)

// newTestPostgres spins up a disposable PostgreSQL container, runs the
// embedded migrations against it, and registers cleanup. Skipped in -short
// mode; otherwise it needs an environment that can pull and run containers.
func newTestPostgres(t *testing.T) *Postgres {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping testcontainers-backed test in -short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("roundtable_test"),
		tcpostgres.WithUsername("roundtable"),
		tcpostgres.WithPassword("roundtable"),
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").WithOccurrence(2)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := Config{
		Host: host, Port: port.Int(), User: "roundtable", Password: "roundtable", Database: "roundtable_test", SSLMode: "disable",
		MaxOpenConns: 5, MaxIdleConns: 5, ConnMaxLifetime: time.Hour, ConnMaxIdleTime: time.Hour,
	}

	var pg *Postgres
	require.Eventually(t, func() bool {
		pg, err = NewPostgres(ctx, cfg)
		return err == nil
	}, 30*time.Second, 500*time.Millisecond, "postgres never became reachable: %v", err)

	t.Cleanup(func() { _ = pg.Close() })
	return pg
}

func TestPostgres_CreateGetSession(t *testing.T) {
	pg := newTestPostgres(t)
	ctx := context.Background()

	s := testSession("s1", time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, pg.CreateSession(ctx, s))

	got, err := pg.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, s.Title, got.Title)
	assert.Equal(t, s.Config.MaxIterations, got.Config.MaxIterations)
}

func TestPostgres_CreateSession_DuplicateConflicts(t *testing.T) {
	pg := newTestPostgres(t)
	ctx := context.Background()
	s := testSession("s1", time.Now().UTC())
	require.NoError(t, pg.CreateSession(ctx, s))

	err := pg.CreateSession(ctx, s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, rterrors.ErrConflict))
}

func TestPostgres_GetSession_MissingNotFound(t *testing.T) {
	pg := newTestPostgres(t)
	_, err := pg.GetSession(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, rterrors.ErrNotFound))
}

func TestPostgres_UpdateSession_PersistsTerminalFields(t *testing.T) {
	pg := newTestPostgres(t)
	ctx := context.Background()
	s := testSession("s1", time.Now().UTC())
	require.NoError(t, pg.CreateSession(ctx, s))

	ended := time.Now().UTC().Truncate(time.Microsecond)
	s.Status = models.SessionCompleted
	s.StoppedBy = models.StopRuleMaxIterations
	s.FinalVersion = 4
	s.EndedAt = &ended
	s.TokenUsage = map[string]models.TokenCounts{"moderator": {Total: 42}}
	require.NoError(t, pg.UpdateSession(ctx, s))

	got, err := pg.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, got.Status)
	assert.Equal(t, models.StopRuleMaxIterations, got.StoppedBy)
	assert.Equal(t, 4, got.FinalVersion)
	require.NotNil(t, got.EndedAt)
	assert.Equal(t, 42, got.TokenUsage["moderator"].Total)
}

func TestPostgres_UpdateSession_MissingNotFound(t *testing.T) {
	pg := newTestPostgres(t)
	err := pg.UpdateSession(context.Background(), testSession("ghost", time.Now().UTC()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, rterrors.ErrNotFound))
}

func TestPostgres_ListSessions_OrderedNewestFirst(t *testing.T) {
	pg := newTestPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, pg.CreateSession(ctx, testSession("old", now.Add(-time.Hour))))
	require.NoError(t, pg.CreateSession(ctx, testSession("newest", now)))

	list, err := pg.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "newest", list[0].SessionID)
}

func TestPostgres_DeleteSession_CascadesDependentData(t *testing.T) {
	pg := newTestPostgres(t)
	ctx := context.Background()
	require.NoError(t, pg.CreateSession(ctx, testSession("s1", time.Now().UTC())))
	require.NoError(t, pg.SaveVersion(ctx, "s1", models.NewDocumentVersion(1, "t", "prd", "content", time.Now().UTC(), 0)))
	require.NoError(t, pg.SaveReviews(ctx, "s1", 1, []models.Review{{ReviewerName: "Alice", Timestamp: time.Now().UTC()}}))

	require.NoError(t, pg.DeleteSession(ctx, "s1"))

	_, err := pg.LoadVersion(ctx, "s1", 1)
	assert.True(t, errors.Is(err, rterrors.ErrNotFound))
	_, err = pg.LoadReviews(ctx, "s1", 1)
	assert.True(t, errors.Is(err, rterrors.ErrNotFound))
}

func TestPostgres_SaveVersion_EnforcesGapFreeSequence(t *testing.T) {
	pg := newTestPostgres(t)
	ctx := context.Background()
	require.NoError(t, pg.CreateSession(ctx, testSession("s1", time.Now().UTC())))

	err := pg.SaveVersion(ctx, "s1", models.NewDocumentVersion(2, "t", "prd", "c", time.Now().UTC(), 0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, rterrors.ErrStoreWrite))

	require.NoError(t, pg.SaveVersion(ctx, "s1", models.NewDocumentVersion(1, "t", "prd", "c1", time.Now().UTC(), 0)))

	err = pg.SaveVersion(ctx, "s1", models.NewDocumentVersion(1, "t", "prd", "dup", time.Now().UTC(), 0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, rterrors.ErrStoreWrite))

	require.NoError(t, pg.SaveVersion(ctx, "s1", models.NewDocumentVersion(2, "t", "prd", "c2", time.Now().UTC(), 1)))
}

func TestPostgres_LoadVersion_RoundTrips(t *testing.T) {
	pg := newTestPostgres(t)
	ctx := context.Background()
	require.NoError(t, pg.CreateSession(ctx, testSession("s1", time.Now().UTC())))
	v := models.NewDocumentVersion(1, "My Title", "prd", "hello there", time.Now().UTC().Truncate(time.Microsecond), 0)
	require.NoError(t, pg.SaveVersion(ctx, "s1", v))

	got, err := pg.LoadVersion(ctx, "s1", 1)
	require.NoError(t, err)
	assert.Equal(t, "hello there", got.Content)
	assert.Equal(t, v.LengthChars, got.LengthChars)
}

func TestPostgres_SaveAndLoadReviews_RoundTrip(t *testing.T) {
	pg := newTestPostgres(t)
	ctx := context.Background()
	require.NoError(t, pg.CreateSession(ctx, testSession("s1", time.Now().UTC())))

	reviews := []models.Review{
		{
			ReviewerName: "Alice",
			Issues: []models.Issue{
				{ReviewerName: "Alice", Severity: models.SeverityHigh, Description: "missing auth check"},
			},
			OverallAssessment: "needs work",
			Timestamp:         time.Now().UTC().Truncate(time.Microsecond),
			Tokens:            models.TokenCounts{Prompt: 100, Completion: 50, Total: 150},
		},
	}
	require.NoError(t, pg.SaveReviews(ctx, "s1", 1, reviews))

	got, err := pg.LoadReviews(ctx, "s1", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Alice", got[0].ReviewerName)
	require.Len(t, got[0].Issues, 1)
	assert.Equal(t, models.SeverityHigh, got[0].Issues[0].Severity)
	assert.Equal(t, 150, got[0].Tokens.Total)
}

func TestPostgres_LoadReviews_MissingNotFound(t *testing.T) {
	pg := newTestPostgres(t)
	_, err := pg.LoadReviews(context.Background(), "s1", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, rterrors.ErrNotFound))
}

func TestPostgres_SaveReport_UpsertsOnConflict(t *testing.T) {
	pg := newTestPostgres(t)
	ctx := context.Background()
	require.NoError(t, pg.CreateSession(ctx, testSession("s1", time.Now().UTC())))

	report := models.ConvergenceReport{
		SessionID: "s1", Status: models.SessionRunning, FinalVersion: 1,
		TokenUsage: map[string]models.TokenCounts{"moderator": {Total: 10}},
		StartedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, pg.SaveReport(ctx, "s1", report))

	report.Status = models.SessionCompleted
	report.StoppedBy = models.StopRuleDeltaThreshold
	report.FinalVersion = 3
	require.NoError(t, pg.SaveReport(ctx, "s1", report))

	got, err := pg.LoadReport(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, got.Status)
	assert.Equal(t, models.StopRuleDeltaThreshold, got.StoppedBy)
	assert.Equal(t, 3, got.FinalVersion)
}

func TestPostgres_LoadReport_MissingNotFound(t *testing.T) {
	pg := newTestPostgres(t)
	_, err := pg.LoadReport(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, rterrors.ErrNotFound))
}

func TestPostgres_NewPostgresFromDB_WrapsExistingConnection(t *testing.T) {
	// Exercises the wrapping constructor without requiring a live database:
	// stdsql.Open only checks the driver name; it does not connect until first use.
	db, err := stdsql.Open("pgx", "host=127.0.0.1 port=1 user=x password=x dbname=x sslmode=disable")
	require.NoError(t, err)
	pg := NewPostgresFromDB(db)
	require.NotNil(t, pg)
	_ = pg.Close()
}
