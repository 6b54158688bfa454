package render

import (
	"fmt"

	"github.com/s22625/nexusflow/internal/model"
)

// Log row classes.
const (
	ClassSuccess = "success"
	ClassFail    = "fail"
	ClassInfo    = "info"
)

// ColorBuckets is the number of rotating log colors.
const ColorBuckets = 5

// LogRow is one rendered log line.
type LogRow struct {
	Clock   string // HH:MM:SS, UTC
	Message string
	Text    string // "[HH:MM:SS] msg"
	Class   string
	Color   int
}

// LogView is a full rebuild of the log panel.
type LogView struct {
	Rows []LogRow
	// Session increments whenever the worker's buffer shrank (it clears its
	// log on every start).
	Session int
	// Appended counts the trailing rows that were not in the previous
	// render. It equals len(Rows) on the first render and after a resync.
	Appended int
}

type fingerprint struct {
	ts  float64
	msg string
	ok  int8
}

func fingerprintOf(e model.LogEntry) fingerprint {
	fp := fingerprint{ts: e.TS, msg: e.Msg}
	if e.OK != nil {
		if *e.OK {
			fp.ok = 1
		} else {
			fp.ok = -1
		}
	}
	return fp
}

// LogRenderer rebuilds the log view only when the worker's buffer changed.
// The buffer is a bounded ring, so a full buffer keeps a constant length
// while its newest entry moves; both length and the newest entry are compared.
type LogRenderer struct {
	lastCount  int
	newest     fingerprint
	colorIndex int
	session    int
}

// NewLogRenderer creates a renderer with nothing displayed.
func NewLogRenderer() *LogRenderer {
	return &LogRenderer{}
}

// LastCount is the length of the most recently rendered buffer.
func (r *LogRenderer) LastCount() int {
	return r.lastCount
}

// Render returns a rebuilt view and true when snap differs from what was last
// rendered, or a zero view and false when the display should stay as is.
func (r *LogRenderer) Render(snap *model.LogSnapshot) (LogView, bool) {
	if snap == nil {
		return LogView{}, false
	}
	logs := snap.Logs
	n := len(logs)

	var newest fingerprint
	if n > 0 {
		newest = fingerprintOf(logs[n-1])
	}
	if n == r.lastCount && newest == r.newest {
		return LogView{}, false
	}

	appended := n
	if n < r.lastCount {
		r.session++
	} else {
		appended = r.appended(logs)
	}

	rows := make([]LogRow, 0, n)
	for _, e := range logs {
		rows = append(rows, r.row(e))
	}
	r.lastCount = n
	r.newest = newest
	return LogView{Rows: rows, Session: r.session, Appended: appended}, true
}

// appended locates the previously newest entry and counts what follows it.
// Entries only move toward the front as the ring drops old ones, so the
// search starts at its previous position.
func (r *LogRenderer) appended(logs []model.LogEntry) int {
	if r.lastCount == 0 {
		return len(logs)
	}
	for i := min(r.lastCount, len(logs)) - 1; i >= 0; i-- {
		if fingerprintOf(logs[i]) == r.newest {
			return len(logs) - 1 - i
		}
	}
	return len(logs)
}

func (r *LogRenderer) row(e model.LogEntry) LogRow {
	class := ClassInfo
	if e.OK != nil {
		if *e.OK {
			class = ClassSuccess
		} else {
			class = ClassFail
		}
	}
	clock := e.Time().Format("15:04:05")
	row := LogRow{
		Clock:   clock,
		Message: e.Msg,
		Text:    fmt.Sprintf("[%s] %s", clock, e.Msg),
		Class:   class,
		Color:   r.colorIndex % ColorBuckets,
	}
	r.colorIndex++
	return row
}
