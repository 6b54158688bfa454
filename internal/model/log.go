package model

import (
	"math"
	"time"
)

// LogEntry is one line of the worker's log ring buffer.
type LogEntry struct {
	TS  float64 `json:"ts"`  // epoch seconds
	Msg string  `json:"msg"`
	OK  *bool   `json:"ok"` // nil = informational
}

// Time converts the fractional epoch timestamp to a UTC time.
func (e LogEntry) Time() time.Time {
	sec, frac := math.Modf(e.TS)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

// LogSnapshot is the payload of GET /api/logs. The remote side only ever
// appends to the list, except that it clears it when a new run starts.
type LogSnapshot struct {
	OK    bool       `json:"ok"`
	Error string     `json:"error,omitempty"`
	Logs  []LogEntry `json:"logs"`
}
