// Package render turns worker payloads into display-ready view models.
// Renderers hold no display code; the dashboard and the headless watcher
// both consume the views.
package render

import (
	"sort"

	"github.com/s22625/nexusflow/internal/metrics"
	"github.com/s22625/nexusflow/internal/model"
)

// Run states.
const (
	StateRunning = "RUNNING"
	StateIdle    = "IDLE"
)

// Score classes.
const (
	ClassGood = "good"
	ClassBad  = "bad"
)

// HistoryAppender receives proxy outcomes. Implementations must not block.
type HistoryAppender interface {
	Append(proxy string, ok bool)
}

// ScoreRow is one scoreboard line.
type ScoreRow struct {
	Proxy   string `json:"proxy"`
	Success int64  `json:"success"`
	Failed  int64  `json:"failed"`
	Score   int64  `json:"score"`
	Class   string `json:"class"`
}

// Alert is the error-rising banner.
type Alert struct {
	Active  bool   `json:"active"`
	Message string `json:"message,omitempty"`
}

// StatsView is the rendered form of a RunStatus. Absent counters read 0 and
// absent strings read "-".
type StatsView struct {
	Total      int64      `json:"total"`
	Success    int64      `json:"success"`
	Failed     int64      `json:"failed"`
	Uptime     int64      `json:"uptime"`
	LastStatus string     `json:"last_status"`
	LastProxy  string     `json:"last_proxy"`
	LastError  string     `json:"last_error"`
	Running    bool       `json:"running"`
	State      string     `json:"state"`
	Scoreboard []ScoreRow `json:"scoreboard"`
	Alert      Alert      `json:"alert"`
}

// StatsRenderer renders status payloads and records the latest proxy outcome
// to history.
type StatsRenderer struct {
	history HistoryAppender
	metrics *metrics.Metrics
}

// NewStatsRenderer creates a renderer. Either argument may be nil.
func NewStatsRenderer(history HistoryAppender, m *metrics.Metrics) *StatsRenderer {
	return &StatsRenderer{history: history, metrics: m}
}

// Render builds the view for st. A nil status renders every default.
func (r *StatsRenderer) Render(st *model.RunStatus) StatsView {
	view := BuildStatsView(st)
	r.metrics.SetAlert(view.Alert.Active)

	if r.history != nil && view.LastProxy != "" && view.LastProxy != model.Placeholder {
		r.history.Append(view.LastProxy, view.LastError == model.Placeholder)
	}
	return view
}

// BuildStatsView is Render without side effects.
func BuildStatsView(st *model.RunStatus) StatsView {
	var stats model.Stats
	var running bool
	var scores map[string]model.ProxyCounts
	if st != nil {
		if st.Stats != nil {
			stats = *st.Stats
		}
		running = st.Running
		scores = st.ProxyScores
	}

	view := StatsView{
		Total:      model.IntOr(stats.Total, 0),
		Success:    model.IntOr(stats.Success, 0),
		Failed:     model.IntOr(stats.Failed, 0),
		Uptime:     model.IntOr(stats.Uptime, 0),
		LastStatus: model.StringOr(stats.LastStatus, model.Placeholder),
		LastProxy:  model.StringOr(stats.LastProxy, model.Placeholder),
		LastError:  model.StringOr(stats.LastError, model.Placeholder),
		Running:    running,
		State:      StateIdle,
		Scoreboard: Scoreboard(scores),
	}
	if running {
		view.State = StateRunning
	}
	view.Alert = AlertFor(view.Success, view.Failed, view.LastError)
	return view
}

// Scoreboard sorts proxies by name and scores each one.
func Scoreboard(scores map[string]model.ProxyCounts) []ScoreRow {
	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]ScoreRow, 0, len(names))
	for _, name := range names {
		c := scores[name]
		row := ScoreRow{
			Proxy:   name,
			Success: c.Success,
			Failed:  c.Failed,
			Score:   c.Score(),
			Class:   ClassGood,
		}
		if row.Score < 0 {
			row.Class = ClassBad
		}
		rows = append(rows, row)
	}
	return rows
}

// AlertFor reports errors rising when failures exceed twice the successes or
// the worker reports a last error.
func AlertFor(success, failed int64, lastError string) Alert {
	if failed > 2*success || lastError != model.Placeholder {
		return Alert{Active: true, Message: "Errors rising: " + lastError}
	}
	return Alert{}
}
