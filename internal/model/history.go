package model

import "time"

// HistoryRecord is one locally persisted proxy outcome.
// Records are append-only; ID is assigned by the backend on insert.
type HistoryRecord struct {
	ID      int64  `json:"id"`
	TS      int64  `json:"ts"` // local wall clock, epoch ms
	Proxy   string `json:"proxy"`
	OK      bool   `json:"ok"`
	Session string `json:"session,omitempty"`
}

// Time returns TS as a local time.
func (r *HistoryRecord) Time() time.Time {
	return time.UnixMilli(r.TS)
}
