package history

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/s22625/nexusflow/internal/store"
	"github.com/s22625/nexusflow/internal/store/file"
	"github.com/s22625/nexusflow/internal/store/postgres"
	"github.com/s22625/nexusflow/internal/store/sqlite"
)

// Backends.
const (
	BackendSQLite   = "sqlite"
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendNone     = "none"
)

// DatabaseFile is the sqlite file name inside the history directory.
const DatabaseFile = "history.db"

// Backends lists the accepted backend names.
var Backends = []string{BackendSQLite, BackendFile, BackendPostgres, BackendNone}

// Config selects and locates a backend.
type Config struct {
	Backend   string
	Path      string // directory for sqlite and file
	DSN       string // postgres
	QueueSize int
}

// OpenerFor returns the opener for cfg.Backend. An empty backend means sqlite.
func OpenerFor(cfg Config, logger *slog.Logger) (Opener, error) {
	switch cfg.Backend {
	case "", BackendSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("history path is required for the %s backend", BackendSQLite)
		}
		path := filepath.Join(cfg.Path, DatabaseFile)
		return func(context.Context) (store.Store, error) {
			return sqlite.Open(path, logger)
		}, nil
	case BackendFile:
		if cfg.Path == "" {
			return nil, fmt.Errorf("history path is required for the %s backend", BackendFile)
		}
		return func(context.Context) (store.Store, error) {
			return file.New(cfg.Path)
		}, nil
	case BackendPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("history dsn is required for the %s backend", BackendPostgres)
		}
		return func(ctx context.Context) (store.Store, error) {
			return postgres.Open(ctx, cfg.DSN)
		}, nil
	case BackendNone:
		return func(context.Context) (store.Store, error) {
			return nil, ErrDisabled
		}, nil
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
	}
}

// OpenStore opens the configured backend synchronously, for read-back.
func OpenStore(ctx context.Context, cfg Config, logger *slog.Logger) (store.Store, error) {
	open, err := OpenerFor(cfg, logger)
	if err != nil {
		return nil, err
	}
	return open(ctx)
}

// NewFromConfig builds a recorder for cfg.
func NewFromConfig(cfg Config, opts Options) (*Recorder, error) {
	open, err := OpenerFor(cfg, opts.Logger)
	if err != nil {
		return nil, err
	}
	if opts.Backend == "" {
		opts.Backend = cfg.Backend
		if opts.Backend == "" {
			opts.Backend = BackendSQLite
		}
	}
	if opts.QueueSize == 0 {
		opts.QueueSize = cfg.QueueSize
	}
	return NewRecorder(open, opts), nil
}
