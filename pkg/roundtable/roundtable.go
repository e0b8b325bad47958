// Package roundtable is the single assembly point named by spec §2's data
// flow diagram: Config -> Meta-Planner -> Runtime.loop -> Store + Event Bus
// -> Result. New wires an llm.Client, a store.Store, the event registry,
// and an optional Redis status cache into a ready session.Runtime, the way
// cmd/tarsy/main.go wires database.NewClient and the service layer together
// — except here the wiring lives in its own package so both cmd/roundtable
// and any future embedder can call it without duplicating the assembly
// order.
package roundtable

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/codeready-toolchain/roundtable/pkg/config"
	"github.com/codeready-toolchain/roundtable/pkg/events"
	"github.com/codeready-toolchain/roundtable/pkg/llm"
	"github.com/codeready-toolchain/roundtable/pkg/session"
	"github.com/codeready-toolchain/roundtable/pkg/store"
)

// Result is the set of assembled collaborators a caller needs to drive
// sessions end to end. Runtime is the primary surface; Store and Registry
// are exposed for callers that need lower-level access (a CLI subcommand
// reading a specific version, a test harness).
type Result struct {
	Runtime  *session.Runtime
	Store    store.Store
	Registry *events.Registry

	// closers are invoked, in order, by Close. A memory store or a Redis
	// client that was never dialed contributes none.
	closers []func() error
}

// Close releases every resource New opened (the Postgres pool, the Redis
// client). Safe to call once; idempotent calls are not supported since
// nothing in this module calls Close twice.
func (r *Result) Close() error {
	var firstErr error
	for _, closeFn := range r.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// New assembles a Result from cfg: an llm.Client per cfg.LLM, a store.Store
// per cfg.Store, an event Registry, an optional Redis-backed status cache
// per cfg.Redis, and a session.Runtime tying them together.
func New(ctx context.Context, cfg *config.Config) (*Result, error) {
	llmClient, err := buildLLMClient(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("roundtable: build llm client: %w", err)
	}

	st, closeStore, err := buildStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("roundtable: build store: %w", err)
	}

	var closers []func() error
	if closeStore != nil {
		closers = append(closers, closeStore)
	}

	registry := events.NewRegistry()

	var opts []session.Option
	if cfg.Redis != nil && cfg.Redis.Enabled {
		cache, closeCache, err := buildStatusCache(cfg.Redis)
		if err != nil {
			for _, c := range closers {
				_ = c()
			}
			return nil, fmt.Errorf("roundtable: build redis status cache: %w", err)
		}
		opts = append(opts, session.WithStatusCache(cache))
		closers = append(closers, closeCache)
	}

	nodeID := nodeIDFromEnv()
	runtime, err := session.NewRuntime(st, registry, llmClient, nodeID, opts...)
	if err != nil {
		for _, c := range closers {
			_ = c()
		}
		return nil, fmt.Errorf("roundtable: build runtime: %w", err)
	}

	slog.InfoContext(ctx, "roundtable assembled",
		"llm_model", llmClient.Model(), "store_backend", cfg.Store.Backend, "node_id", nodeID)

	return &Result{Runtime: runtime, Store: st, Registry: registry, closers: closers}, nil
}

func buildLLMClient(cfg *config.LLMConfig) (llm.Client, error) {
	return llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:  os.Getenv(cfg.APIKeyEnv),
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
	})
}

func buildStore(ctx context.Context, cfg *config.StoreConfig) (store.Store, func() error, error) {
	switch cfg.Backend {
	case "memory":
		return store.NewMemory(), nil, nil
	case "postgres":
		pg := cfg.Postgres
		maxLifetime, err := parseDurationOrDefault(pg.ConnMaxLifetime, time.Hour)
		if err != nil {
			return nil, nil, fmt.Errorf("conn_max_lifetime: %w", err)
		}
		maxIdleTime, err := parseDurationOrDefault(pg.ConnMaxIdleTime, 15*time.Minute)
		if err != nil {
			return nil, nil, fmt.Errorf("conn_max_idle_time: %w", err)
		}

		pgStore, err := store.NewPostgres(ctx, store.Config{
			Host:            pg.Host,
			Port:            pg.Port,
			User:            pg.User,
			Password:        os.Getenv(pg.PasswordEnv),
			Database:        pg.Database,
			SSLMode:         orDefault(pg.SSLMode, "disable"),
			MaxOpenConns:    orDefaultInt(pg.MaxOpenConns, 25),
			MaxIdleConns:    orDefaultInt(pg.MaxIdleConns, 10),
			ConnMaxLifetime: maxLifetime,
			ConnMaxIdleTime: maxIdleTime,
		})
		if err != nil {
			return nil, nil, err
		}
		return pgStore, pgStore.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func buildStatusCache(cfg *config.RedisConfig) (*session.RedisStatusCache, func() error, error) {
	ttl, err := parseDurationOrDefault(cfg.TTL, 10*time.Second)
	if err != nil {
		return nil, nil, fmt.Errorf("ttl: %w", err)
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	return session.NewRedisStatusCache(client, ttl), client.Close, nil
}

func parseDurationOrDefault(raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	return time.ParseDuration(raw)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func orDefaultInt(n, def int) int {
	if n == 0 {
		return def
	}
	return n
}

// nodeIDFromEnv reads ROUNDTABLE_NODE_ID for the snowflake node identifier
// that keeps session IDs unique across replicas; a single-process demo run
// is always node 1.
func nodeIDFromEnv() int64 {
	raw := os.Getenv("ROUNDTABLE_NODE_ID")
	if raw == "" {
		return 1
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		slog.Warn("invalid ROUNDTABLE_NODE_ID, defaulting to 1", "value", raw, "error", err)
		return 1
	}
	return id
}
