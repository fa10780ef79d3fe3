package backend

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jurisoracle/vrag/core"
	"github.com/jurisoracle/vrag/model"
	"github.com/jurisoracle/vrag/resilience"
)

// PostgresBackend implements RelationalBackend over canonical structured
// records (fee schedules, office directories, statutory deadlines) that
// don't belong in the vector index.
type PostgresBackend struct {
	pool    *pgxpool.Pool
	dsn     string
	breaker *resilience.CircuitBreaker
	logger  core.Logger
}

// NewPostgresBackend pools connections to dsn. dsn is never logged or
// surfaced; callers only ever see the {enabled: bool} projection (spec
// §6 "Configuration").
func NewPostgresBackend(ctx context.Context, dsn string, logger core.Logger) (*PostgresBackend, error) {
	if dsn == "" {
		return nil, core.NewFrameworkError("backend.NewPostgresBackend", core.KindValidation, core.ErrMissingConfiguration)
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, core.NewFrameworkError("backend.NewPostgresBackend", core.KindValidation, fmt.Errorf("%w: %v", core.ErrInvalidConfiguration, err))
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, core.NewFrameworkError("backend.NewPostgresBackend", core.KindBackendDown, fmt.Errorf("%w: %v", core.ErrConnectionFailed, err))
	}

	breaker, err := resilience.CreateCircuitBreaker("backend.relational", resilience.ResilienceDependencies{Logger: logger})
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresBackend{pool: pool, dsn: redactedHost(dsn), breaker: breaker, logger: logger}, nil
}

// Search runs a parameterised SQL query (caller-constructed, never built
// from raw user input) and maps each row's (id, content, metadata, score)
// columns into a Document. Callers are expected to `SELECT id, content,
// metadata, score FROM ...` in that column order.
func (b *PostgresBackend) Search(ctx context.Context, query string, args ...interface{}) ([]model.Document, error) {
	var docs []model.Document

	err := b.breaker.Execute(ctx, func() error {
		rows, err := b.pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				id      string
				content string
				meta    map[string]interface{}
				score   float64
			)
			if err := rows.Scan(&id, &content, &meta, &score); err != nil {
				return err
			}
			docs = append(docs, model.Document{
				ID:       id,
				Content:  content,
				Metadata: meta,
				RawScore: score,
				Source:   model.SourceKeyword,
			})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, core.NewFrameworkError("backend.relational.Search", core.KindBackendDown, fmt.Errorf("%w: %v", core.ErrBackendUnavailable, err))
	}
	return docs, nil
}

// Health pings the pool.
func (b *PostgresBackend) Health(ctx context.Context) Status {
	if b.breaker.GetState() == "open" {
		return Status{State: HealthDown, Host: b.dsn, Details: "circuit breaker open"}
	}
	if err := b.pool.Ping(ctx); err != nil {
		return Status{State: HealthDegraded, Host: b.dsn, Details: "ping failed"}
	}
	return Status{State: HealthOK, Host: b.dsn}
}

// Close releases pooled connections.
func (b *PostgresBackend) Close() {
	b.pool.Close()
}

// redactedHost strips credentials from a DSN/URL for use in health/log
// output, leaving only a host-identifying string.
func redactedHost(dsn string) string {
	for i := 0; i < len(dsn); i++ {
		if dsn[i] == '@' {
			return dsn[i+1:]
		}
	}
	return dsn
}
