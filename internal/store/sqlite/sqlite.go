// Package sqlite is the default history backend, backed by a local SQLite
// database in WAL mode.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // pure Go driver, no cgo

	"github.com/s22625/nexusflow/internal/model"
	"github.com/s22625/nexusflow/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS ` + store.TableName + ` (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ts INTEGER NOT NULL,
    proxy TEXT NOT NULL,
    ok INTEGER NOT NULL,
    session TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_proxy_history_proxy_ts ON ` + store.TableName + `(proxy, ts);
CREATE INDEX IF NOT EXISTS idx_proxy_history_session ON ` + store.TableName + `(session);
`

// Store implements store.Store on SQLite.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open creates the database file (and its directory) if needed and applies
// the schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("history database ready", "path", path)

	return &Store{db: db, path: path, logger: logger}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Append inserts rec and sets its id.
func (s *Store) Append(ctx context.Context, rec *model.HistoryRecord) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO `+store.TableName+` (ts, proxy, ok, session) VALUES (?, ?, ?, ?)`,
		rec.TS, rec.Proxy, boolToInt(rec.OK), rec.Session,
	)
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read history id: %w", err)
	}
	rec.ID = id
	return nil
}

// List returns matching records, newest first.
func (s *Store) List(ctx context.Context, filter *store.ListFilter) ([]*model.HistoryRecord, error) {
	var where []string
	var args []any
	if filter != nil {
		if filter.Proxy != "" {
			where = append(where, "proxy = ?")
			args = append(args, filter.Proxy)
		}
		if filter.Session != "" {
			where = append(where, "session = ?")
			args = append(args, filter.Session)
		}
		if !filter.Since.IsZero() {
			where = append(where, "ts >= ?")
			args = append(args, filter.Since.UnixMilli())
		}
	}

	query := `SELECT id, ts, proxy, ok, session FROM ` + store.TableName
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if limit := filter.LimitOf(); limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []*model.HistoryRecord
	for rows.Next() {
		var rec model.HistoryRecord
		var ok int
		if err := rows.Scan(&rec.ID, &rec.TS, &rec.Proxy, &ok, &rec.Session); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		rec.OK = ok != 0
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
