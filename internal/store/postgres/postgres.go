// Package postgres stores history in a shared PostgreSQL database, for
// operators who monitor from several machines.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/s22625/nexusflow/internal/model"
	"github.com/s22625/nexusflow/internal/store"
)

const qualifiedTable = store.SchemaName + "." + store.TableName

const schema = `
CREATE SCHEMA IF NOT EXISTS ` + store.SchemaName + `;
CREATE TABLE IF NOT EXISTS ` + qualifiedTable + ` (
  id BIGSERIAL PRIMARY KEY,
  ts BIGINT NOT NULL,
  proxy TEXT NOT NULL,
  ok BOOLEAN NOT NULL,
  session TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS proxy_history_proxy_ts_idx ON ` + qualifiedTable + ` (proxy, ts);
`

// Store implements store.Store on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects, pings and bootstraps the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Append(ctx context.Context, rec *model.HistoryRecord) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO `+qualifiedTable+` (ts, proxy, ok, session)
		VALUES ($1,$2,$3,$4)
		RETURNING id
	`, rec.TS, rec.Proxy, rec.OK, rec.Session).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, filter *store.ListFilter) ([]*model.HistoryRecord, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter != nil {
		if filter.Proxy != "" {
			where = append(where, "proxy = "+arg(filter.Proxy))
		}
		if filter.Session != "" {
			where = append(where, "session = "+arg(filter.Session))
		}
		if !filter.Since.IsZero() {
			where = append(where, "ts >= "+arg(filter.Since.UnixMilli()))
		}
	}

	query := `SELECT id, ts, proxy, ok, session FROM ` + qualifiedTable
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if limit := filter.LimitOf(); limit > 0 {
		query += " LIMIT " + arg(limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.HistoryRecord
	for rows.Next() {
		var rec model.HistoryRecord
		if err := rows.Scan(&rec.ID, &rec.TS, &rec.Proxy, &rec.OK, &rec.Session); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
