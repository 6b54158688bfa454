package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/s22625/nexusflow/internal/api"
	"github.com/s22625/nexusflow/internal/control"
	"github.com/s22625/nexusflow/internal/model"
	"github.com/s22625/nexusflow/internal/poller"
	"github.com/s22625/nexusflow/internal/render"
)

type fakeWorker struct {
	status    *model.RunStatus
	logs      *model.LogSnapshot
	statusErr error
	logsErr   error
	startErr  error
	starts    int
	stops     int
}

func (f *fakeWorker) Status(context.Context) (*model.RunStatus, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.status, nil
}

func (f *fakeWorker) Logs(context.Context) (*model.LogSnapshot, error) {
	if f.logsErr != nil {
		return nil, f.logsErr
	}
	return f.logs, nil
}

func (f *fakeWorker) Start(context.Context, model.FormConfig) (*api.Ack, error) {
	f.starts++
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &api.Ack{OK: true}, nil
}

func (f *fakeWorker) Stop(context.Context) (*api.Ack, error) {
	f.stops++
	return &api.Ack{OK: true}, nil
}

func newTestDashboard(w *fakeWorker) *Dashboard {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := poller.New(w, poller.Options{Interval: time.Second, Logger: logger})
	ctl := control.New(w, logger)
	m := New(p, ctl, render.NewStatsRenderer(nil, nil), render.NewLogRenderer(), Options{Server: "http://worker:5000", Logger: logger})
	d := NewDashboard(context.Background(), m)
	d.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return d
}

func runCycle(d *Dashboard) {
	msg := d.refreshCmd()()
	d.Update(msg)
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func busyStatus() *model.RunStatus {
	return &model.RunStatus{
		OK:      true,
		Running: true,
		Stats: &model.Stats{
			Total:     model.Int64(1234),
			Success:   model.Int64(10),
			Failed:    model.Int64(3),
			LastProxy: model.String("b.proxy"),
			LastError: model.String("timeout"),
		},
		ProxyScores: map[string]model.ProxyCounts{
			"b.proxy": {Success: 3, Failed: 2},
			"a.proxy": {Success: 0, Failed: 5},
		},
	}
}

func TestCycleRendersStatsAndLogs(t *testing.T) {
	w := &fakeWorker{
		status: busyStatus(),
		logs: &model.LogSnapshot{OK: true, Logs: []model.LogEntry{
			{TS: 1, Msg: "200 via b.proxy", OK: model.Bool(true)},
		}},
	}
	d := newTestDashboard(w)
	runCycle(d)

	view := d.View()
	for _, want := range []string{"RUNNING", "1,234", "Errors rising: timeout", "a.proxy", "[00:00:01] 200 via b.proxy"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestFailedStatusReadKeepsLastStats(t *testing.T) {
	w := &fakeWorker{status: busyStatus(), logs: &model.LogSnapshot{OK: true}}
	d := newTestDashboard(w)
	runCycle(d)

	w.statusErr = &api.NetworkError{Op: "status", Err: errors.New("connection refused")}
	runCycle(d)

	if d.stats.Total != 1234 {
		t.Errorf("Total = %d, want last good value", d.stats.Total)
	}
	if !strings.Contains(d.View(), "connection refused") {
		t.Error("read failure not shown in sync line")
	}
}

func TestFailedLogsReadKeepsLogPanel(t *testing.T) {
	w := &fakeWorker{
		status: busyStatus(),
		logs: &model.LogSnapshot{OK: true, Logs: []model.LogEntry{
			{TS: 1, Msg: "200 via b.proxy", OK: model.Bool(true)},
			{TS: 2, Msg: "timeout via a.proxy", OK: model.Bool(false)},
		}},
	}
	d := newTestDashboard(w)
	runCycle(d)
	rows := append([]render.LogRow(nil), d.logRows...)
	panel := d.logView.View()

	next := busyStatus()
	next.Stats.Total = model.Int64(1300)
	w.status = next
	w.logsErr = &api.NetworkError{Op: "logs", Err: errors.New("connection reset")}
	runCycle(d)

	if d.stats.Total != 1300 {
		t.Errorf("Total = %d, want stats to keep updating", d.stats.Total)
	}
	if len(d.logRows) != len(rows) || d.logRows[1].Text != rows[1].Text {
		t.Errorf("log rows changed after a failed read: %v", d.logRows)
	}
	if got := d.logView.View(); got != panel {
		t.Errorf("log panel redrawn after a failed read:\n%s", got)
	}
	if !strings.Contains(d.View(), "logs: connection reset") {
		t.Error("logs read failure not shown in sync line")
	}
}

func TestStartFailureShowsModal(t *testing.T) {
	w := &fakeWorker{
		status:   &model.RunStatus{OK: true},
		logs:     &model.LogSnapshot{OK: true},
		startErr: &api.RejectedError{Op: "start", Message: "port busy"},
	}
	d := newTestDashboard(w)

	_, cmd := d.Update(key("s"))
	if cmd == nil {
		t.Fatal("start key returned no command")
	}
	d.Update(cmd())

	if d.mode != modeAlert {
		t.Fatalf("mode = %v, want alert", d.mode)
	}
	if !strings.Contains(d.View(), "Start failed: port busy") {
		t.Errorf("modal missing reason:\n%s", d.View())
	}

	d.Update(key("z"))
	if d.mode != modeDashboard {
		t.Error("any key should dismiss the modal")
	}
	if w.starts != 1 {
		t.Errorf("starts = %d, want 1", w.starts)
	}
}

func TestStartIgnoredWhileInFlight(t *testing.T) {
	w := &fakeWorker{status: &model.RunStatus{OK: true}, logs: &model.LogSnapshot{OK: true}}
	d := newTestDashboard(w)

	_, first := d.Update(key("s"))
	_, second := d.Update(key("s"))
	if first == nil || second != nil {
		t.Fatal("second start should be ignored while the first is in flight")
	}
	d.Update(first())
	if d.mode != modeDashboard || d.message != "start accepted" {
		t.Errorf("mode = %v, message = %q", d.mode, d.message)
	}
}

func TestStopIsBestEffort(t *testing.T) {
	w := &fakeWorker{status: &model.RunStatus{OK: true}, logs: &model.LogSnapshot{OK: true}}
	d := newTestDashboard(w)

	_, cmd := d.Update(key("x"))
	d.Update(stopResultMsg{err: errors.New("unreachable")})
	if cmd == nil {
		t.Fatal("stop key returned no command")
	}
	if d.mode != modeDashboard {
		t.Error("stop failure must not raise a modal")
	}
}

func TestTickSkippedWhileRefreshing(t *testing.T) {
	w := &fakeWorker{status: &model.RunStatus{OK: true}, logs: &model.LogSnapshot{OK: true}}
	d := newTestDashboard(w)

	d.refreshing = true
	d.Update(tickMsg(time.Now()))
	if !d.refreshing {
		t.Error("refreshing flag changed by skipped tick")
	}

	d.refreshing = false
	d.Update(tickMsg(time.Now()))
	if !d.refreshing {
		t.Error("tick should start a cycle when idle")
	}
}

func TestLogRebuildScrollsToBottom(t *testing.T) {
	var entries []model.LogEntry
	for i := 0; i < 200; i++ {
		entries = append(entries, model.LogEntry{TS: float64(i), Msg: fmt.Sprintf("line %d", i)})
	}
	w := &fakeWorker{status: &model.RunStatus{OK: true}, logs: &model.LogSnapshot{OK: true, Logs: entries}}
	d := newTestDashboard(w)
	runCycle(d)

	if !d.logView.AtBottom() {
		t.Error("log view should follow the newest entry")
	}
	d.Update(key("g"))
	if d.logView.AtBottom() {
		t.Error("g should jump to the oldest entry")
	}

	w.logs = &model.LogSnapshot{OK: true, Logs: append(entries, model.LogEntry{TS: 999, Msg: "newest"})}
	runCycle(d)
	if !d.logView.AtBottom() {
		t.Error("rebuild should scroll back to the bottom")
	}
}

func TestHelpToggle(t *testing.T) {
	d := newTestDashboard(&fakeWorker{status: &model.RunStatus{OK: true}, logs: &model.LogSnapshot{OK: true}})
	d.Update(key("?"))
	if d.mode != modeHelp || !strings.Contains(d.View(), "KEYBOARD SHORTCUTS") {
		t.Fatal("help not shown")
	}
	d.Update(key("q"))
	if d.mode != modeDashboard {
		t.Error("any key should close help")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is long", 8, "this ..."},
		{"abc", 2, "ab"},
		{"x", 0, ""},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.width); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}

func TestTruncateStyled(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"\x1b[31mred\x1b[0m", 5, "\x1b[31mred\x1b[0m"},
		{"\x1b[31mred alert\x1b[0m", 5, "re..."},
		{"\x1b]8;;http://worker:5000\x07link text\x1b]8;;\x07", 6, "lin..."},
	}
	for _, tt := range tests {
		if got := truncateStyled(tt.in, tt.width); got != tt.want {
			t.Errorf("truncateStyled(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}

func TestFormatUptime(t *testing.T) {
	if got := formatUptime(0); got != "0s" {
		t.Errorf("formatUptime(0) = %q", got)
	}
	if got := formatUptime(3723); got != "1h2m3s" {
		t.Errorf("formatUptime(3723) = %q", got)
	}
}

func TestFormatRelativeTime(t *testing.T) {
	now := time.Now()
	if got := formatRelativeTime(now.Add(-5*time.Second), now); got != "just now" {
		t.Errorf("got %q", got)
	}
	if got := formatRelativeTime(now.Add(-30*time.Second), now); got != "30s ago" {
		t.Errorf("got %q", got)
	}
	if got := formatRelativeTime(now.Add(-5*time.Minute), now); got != "5m ago" {
		t.Errorf("got %q", got)
	}
}
