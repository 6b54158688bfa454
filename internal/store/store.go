package store

import (
	"context"
	"sort"
	"time"

	"github.com/s22625/nexusflow/internal/model"
)

// Names of the history namespace in each backend. They are fixed so that
// history never collides with other local data.
const (
	TableName  = "proxy_history"
	FileName   = "proxy_history.jsonl"
	SchemaName = "nexusflow"
)

// ListFilter specifies criteria for reading history back.
type ListFilter struct {
	Proxy   string
	Session string
	Since   time.Time
	Limit   int
}

// Matches reports whether rec passes the filter's field criteria (Limit is
// applied by the caller).
func (f *ListFilter) Matches(rec *model.HistoryRecord) bool {
	if f == nil {
		return true
	}
	if f.Proxy != "" && rec.Proxy != f.Proxy {
		return false
	}
	if f.Session != "" && rec.Session != f.Session {
		return false
	}
	if !f.Since.IsZero() && rec.TS < f.Since.UnixMilli() {
		return false
	}
	return true
}

// LimitOf returns the filter's limit, or 0 for no limit.
func (f *ListFilter) LimitOf() int {
	if f == nil || f.Limit < 0 {
		return 0
	}
	return f.Limit
}

// Store defines the interface for history backends.
// Records are append-only; there is no update or delete.
type Store interface {
	// Append persists rec and sets rec.ID to the backend-assigned,
	// strictly increasing id.
	Append(ctx context.Context, rec *model.HistoryRecord) error

	// List returns matching records, newest first.
	List(ctx context.Context, filter *ListFilter) ([]*model.HistoryRecord, error)

	// Close releases the backend.
	Close() error
}

// SortNewestFirst orders records by descending id and applies limit.
func SortNewestFirst(recs []*model.HistoryRecord, limit int) []*model.HistoryRecord {
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID > recs[j].ID })
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs
}
