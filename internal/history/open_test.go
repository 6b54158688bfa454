package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s22625/nexusflow/internal/store"
)

func TestOpenerForValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"sqlite default", Config{Path: "/tmp/x"}, false},
		{"sqlite without path", Config{Backend: BackendSQLite}, true},
		{"file without path", Config{Backend: BackendFile}, true},
		{"postgres without dsn", Config{Backend: BackendPostgres}, true},
		{"postgres", Config{Backend: BackendPostgres, DSN: "postgres://localhost/db"}, false},
		{"none", Config{Backend: BackendNone}, false},
		{"unknown", Config{Backend: "redis"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := OpenerFor(tt.cfg, nil)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRecorderEndToEndBackends(t *testing.T) {
	for _, backend := range []string{BackendSQLite, BackendFile} {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()
			cfg := Config{Backend: backend, Path: dir}
			r, err := NewFromConfig(cfg, quietOptions())
			require.NoError(t, err)

			r.Init(context.Background())
			waitReady(t, r)
			require.Equal(t, StateReady, r.State())
			r.Append("p1", true)
			r.Append("p2", false)
			require.NoError(t, r.Close())

			st, err := OpenStore(context.Background(), cfg, nil)
			require.NoError(t, err)
			defer st.Close()
			recs, err := st.List(context.Background(), &store.ListFilter{Session: "sess-1"})
			require.NoError(t, err)
			require.Len(t, recs, 2)
			assert.Equal(t, "p2", recs[0].Proxy)
			assert.False(t, recs[0].OK)
			assert.Equal(t, "p1", recs[1].Proxy)
		})
	}
}

func TestSQLiteBackendUsesDatabaseFile(t *testing.T) {
	dir := t.TempDir()
	st, err := OpenStore(context.Background(), Config{Backend: BackendSQLite, Path: dir}, nil)
	require.NoError(t, err)
	require.NoError(t, st.Close())
	_, err = os.Stat(filepath.Join(dir, DatabaseFile))
	assert.NoError(t, err)
}
