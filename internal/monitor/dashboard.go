package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"

	"github.com/s22625/nexusflow/internal/api"
	"github.com/s22625/nexusflow/internal/control"
	"github.com/s22625/nexusflow/internal/poller"
	"github.com/s22625/nexusflow/internal/render"
)

type dashboardMode int

const (
	modeDashboard dashboardMode = iota
	modeAlert
	modeHelp
)

// Dashboard is the bubbletea model for the monitor UI.
type Dashboard struct {
	ctx     context.Context
	monitor *Monitor

	width  int
	height int

	mode    dashboardMode
	message string
	alert   string

	stats     render.StatsView
	statusErr string
	logsErr   string

	logRows []render.LogRow
	logView viewport.Model
	spinner spinner.Model

	keymap KeyMap
	styles Styles

	lastRefresh     time.Time
	refreshing      bool
	refreshInterval time.Duration
	starting        bool
}

type cycleMsg struct {
	cycle poller.Cycle
}

type tickMsg time.Time

type startResultMsg struct {
	err error
}

type stopResultMsg struct {
	err error
}

// NewDashboard creates a dashboard model.
func NewDashboard(ctx context.Context, m *Monitor) *Dashboard {
	styles := DefaultStyles()

	logView := viewport.New(80, minLogPaneHeight)
	logView.SetContent(styles.Muted.Render("Waiting for logs..."))

	spin := spinner.New()
	spin.Spinner = spinner.MiniDot
	spin.Style = styles.Muted

	return &Dashboard{
		ctx:             ctx,
		monitor:         m,
		keymap:          DefaultKeyMap(),
		styles:          styles,
		mode:            modeDashboard,
		stats:           render.BuildStatsView(nil),
		logView:         logView,
		spinner:         spin,
		refreshInterval: m.Interval(),
	}
}

// Init implements tea.Model.
func (d *Dashboard) Init() tea.Cmd {
	d.refreshing = true
	return tea.Batch(d.refreshCmd(), d.tickCmd(), d.spinner.Tick)
}

// Update implements tea.Model.
func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.height = msg.Height
		d.layout()
		d.refreshLogView()
		return d, nil
	case cycleMsg:
		d.applyCycle(msg.cycle)
		return d, nil
	case startResultMsg:
		d.starting = false
		if msg.err != nil {
			d.mode = modeAlert
			d.alert = control.OperatorMessage(msg.err)
			d.message = ""
			return d, nil
		}
		d.message = "start accepted"
		return d, d.refreshNow()
	case stopResultMsg:
		// Stop is best effort; failures are only logged.
		d.message = "stop sent"
		return d, d.refreshNow()
	case tickMsg:
		if d.refreshing {
			d.monitor.metrics.RecordSkippedTick()
			return d, d.tickCmd()
		}
		d.refreshing = true
		return d, tea.Batch(d.refreshCmd(), d.tickCmd())
	case spinner.TickMsg:
		var cmd tea.Cmd
		d.spinner, cmd = d.spinner.Update(msg)
		return d, cmd
	case tea.KeyMsg:
		return d.handleKey(msg)
	default:
		return d, nil
	}
}

// View implements tea.Model.
func (d *Dashboard) View() string {
	switch d.mode {
	case modeAlert:
		return d.viewAlert()
	case modeHelp:
		return d.styles.Box.Render(d.viewHelp())
	default:
		return d.styles.Box.Render(d.viewDashboard())
	}
}

func (d *Dashboard) applyCycle(c poller.Cycle) {
	d.refreshing = false
	d.lastRefresh = time.Now()

	// A failed read keeps the last good rendering on screen.
	d.statusErr = ""
	if c.StatusErr != nil {
		d.statusErr = api.ErrorMessage(c.StatusErr)
	} else if c.Status != nil {
		d.stats = d.monitor.stats.Render(c.Status)
	}

	d.logsErr = ""
	if c.LogsErr != nil {
		d.logsErr = api.ErrorMessage(c.LogsErr)
	} else if view, changed := d.monitor.logs.Render(c.Logs); changed {
		d.logRows = view.Rows
		d.layout()
		d.refreshLogView()
		return
	}
	d.layout()
}

// refreshLogView redraws the log pane and scrolls to the newest entry.
func (d *Dashboard) refreshLogView() {
	if d.logRows == nil {
		return
	}
	if len(d.logRows) == 0 {
		d.logView.SetContent(d.styles.Muted.Render("No log entries."))
		d.logView.GotoBottom()
		return
	}
	width := d.safeWidth() - 2
	lines := make([]string, 0, len(d.logRows))
	for _, row := range d.logRows {
		row.Text = truncate(row.Text, width)
		lines = append(lines, d.styles.StyleLogRow(row))
	}
	d.logView.SetContent(strings.Join(lines, "\n"))
	d.logView.GotoBottom()
}

func (d *Dashboard) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return d.quit()
	}

	switch d.mode {
	case modeAlert:
		return d.handleAlertKey(msg)
	case modeHelp:
		return d.handleHelpKey(msg)
	default:
		return d.handleDashboardKey(msg)
	}
}

func (d *Dashboard) handleDashboardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case d.keymap.Quit:
		return d.quit()
	case d.keymap.Start:
		if d.starting {
			d.message = "start already in progress"
			return d, nil
		}
		d.starting = true
		d.message = "starting..."
		return d, d.startCmd()
	case d.keymap.Stop:
		d.message = "stopping..."
		return d, d.stopCmd()
	case d.keymap.Refresh:
		return d, d.refreshNow()
	case d.keymap.Top, "home":
		d.logView.GotoTop()
		return d, nil
	case d.keymap.Bottom, "end":
		d.logView.GotoBottom()
		return d, nil
	case d.keymap.Help:
		d.mode = modeHelp
		return d, nil
	}

	var cmd tea.Cmd
	d.logView, cmd = d.logView.Update(msg)
	return d, cmd
}

func (d *Dashboard) handleAlertKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Any key acknowledges the failure
	d.mode = modeDashboard
	d.alert = ""
	return d, nil
}

func (d *Dashboard) handleHelpKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Any key dismisses the help popup
	d.mode = modeDashboard
	return d, nil
}

func (d *Dashboard) quit() (tea.Model, tea.Cmd) {
	return d, tea.Quit
}

func (d *Dashboard) refreshNow() tea.Cmd {
	if d.refreshing {
		return nil
	}
	d.refreshing = true
	return d.refreshCmd()
}

func (d *Dashboard) refreshCmd() tea.Cmd {
	ctx := d.ctx
	p := d.monitor.poller
	return func() tea.Msg {
		return cycleMsg{cycle: p.Poll(ctx)}
	}
}

func (d *Dashboard) tickCmd() tea.Cmd {
	return tea.Tick(d.refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (d *Dashboard) startCmd() tea.Cmd {
	ctx := d.ctx
	ctl := d.monitor.control
	cfg := d.monitor.preset
	return func() tea.Msg {
		_, err := ctl.Start(ctx, cfg)
		return startResultMsg{err: err}
	}
}

func (d *Dashboard) stopCmd() tea.Cmd {
	ctx := d.ctx
	ctl := d.monitor.control
	return func() tea.Msg {
		_, err := ctl.Stop(ctx)
		return stopResultMsg{err: err}
	}
}

func (d *Dashboard) viewDashboard() string {
	lines := []string{
		d.renderHeader(),
		d.renderSyncStatus(),
		"",
	}
	lines = append(lines, d.renderStats()...)
	if d.stats.Alert.Active {
		lines = append(lines, "", d.styles.AlertBar.Render(truncate("⚠ "+d.stats.Alert.Message, d.safeWidth()-2)))
	}
	lines = append(lines, "")
	lines = append(lines, d.renderScoreboard()...)
	lines = append(lines, "", d.renderLogHeader(), d.logView.View())
	if d.message != "" {
		lines = append(lines, "", d.styles.Faint.Render(truncate(d.message, d.safeWidth())))
	}
	lines = append(lines, "", d.renderFooter())
	return strings.Join(lines, "\n")
}

func (d *Dashboard) viewAlert() string {
	body := strings.Join([]string{
		d.styles.Error.Bold(true).Render("START FAILED"),
		"",
		d.styles.Normal.Render(ansi.Wordwrap(d.alert, d.modalWidth(), "")),
		"",
		d.styles.Faint.Render("Press any key to dismiss"),
	}, "\n")
	modal := d.styles.Modal.Render(body)
	if d.width == 0 || d.height == 0 {
		return modal
	}
	return lipgloss.Place(d.width, d.height, lipgloss.Center, lipgloss.Center, modal)
}

func (d *Dashboard) viewHelp() string {
	lines := []string{
		d.styles.Title.Render("HELP - KEYBOARD SHORTCUTS"),
		"",
		d.styles.Header.Render("Run Control"),
		fmt.Sprintf("  %-10s Start a run with the loaded preset", d.keymap.Start),
		fmt.Sprintf("  %-10s Stop the current run", d.keymap.Stop),
		"",
		d.styles.Header.Render("Logs"),
		"  up / k     Scroll up",
		"  down / j   Scroll down",
		"  pgup/pgdn  Page",
		fmt.Sprintf("  %-10s Jump to oldest entry", d.keymap.Top),
		fmt.Sprintf("  %-10s Jump to newest entry", d.keymap.Bottom),
		"",
		d.styles.Header.Render("Other"),
		fmt.Sprintf("  %-10s Refresh now", d.keymap.Refresh),
		fmt.Sprintf("  %-10s Quit monitor", d.keymap.Quit),
		fmt.Sprintf("  %-10s Show this help", d.keymap.Help),
		"",
	}
	if d.monitor.presetName != "" {
		lines = append(lines, d.styles.Muted.Render("preset: "+d.monitor.presetName), "")
	}
	lines = append(lines, d.styles.Faint.Render("Press any key to close this help"))
	return strings.Join(lines, "\n")
}

func (d *Dashboard) renderHeader() string {
	title := d.styles.Title.Render("NEXUSFLOW MONITOR")
	state := d.styles.StyleState(d.stats.State)
	server := d.styles.Muted.Render(truncate(d.monitor.server, d.safeWidth()/2))
	return title + "  " + state + "  " + server
}

func (d *Dashboard) renderSyncStatus() string {
	var label string
	switch {
	case d.refreshing:
		label = d.spinner.View() + " syncing..."
	case d.lastRefresh.IsZero():
		label = "sync: pending"
	default:
		label = "sync: " + formatRelativeTime(d.lastRefresh, time.Now())
		if time.Since(d.lastRefresh) > d.refreshInterval*3 {
			label += " (stale)"
		}
	}
	label = d.styles.Muted.Render(label)
	if d.statusErr != "" {
		label += "  " + d.styles.Error.Render("status: "+d.statusErr)
	}
	if d.logsErr != "" {
		label += "  " + d.styles.Error.Render("logs: "+d.logsErr)
	}
	return label
}

func (d *Dashboard) renderStats() []string {
	s := d.stats
	label := d.styles.Label.Render
	value := d.styles.Normal.Render
	counters := strings.Join([]string{
		label("total ") + value(humanize.Comma(s.Total)),
		label("success ") + d.styles.ScoreGood.Render(humanize.Comma(s.Success)),
		label("failed ") + d.styles.ScoreBad.Render(humanize.Comma(s.Failed)),
		label("uptime ") + value(formatUptime(s.Uptime)),
	}, "   ")
	last := strings.Join([]string{
		label("last status ") + value(s.LastStatus),
		label("last proxy ") + value(s.LastProxy),
		label("last error ") + value(s.LastError),
	}, "   ")
	return []string{counters, truncateStyled(last, d.safeWidth())}
}

func (d *Dashboard) renderScoreboard() []string {
	proxyW := d.proxyColumnWidth()
	header := d.styles.Header.Render(
		padRight("PROXY", proxyW) + "  " +
			padLeft("SUCCESS", d.styles.ColCount) + "  " +
			padLeft("FAILED", d.styles.ColCount) + "  " +
			padLeft("SCORE", d.styles.ColScore))
	lines := []string{header}

	rows := d.stats.Scoreboard
	if len(rows) == 0 {
		return append(lines, d.styles.Muted.Render("no proxy scores yet"))
	}
	shown := rows
	if len(shown) > scoreboardMaxRows {
		shown = shown[:scoreboardMaxRows]
	}
	for _, row := range shown {
		line := padRight(truncate(row.Proxy, proxyW), proxyW) + "  " +
			padLeft(humanize.Comma(row.Success), d.styles.ColCount) + "  " +
			padLeft(humanize.Comma(row.Failed), d.styles.ColCount) + "  " +
			d.styles.StyleScore(row.Class, padLeft(fmt.Sprintf("%d", row.Score), d.styles.ColScore))
		lines = append(lines, line)
	}
	if hidden := len(rows) - len(shown); hidden > 0 {
		lines = append(lines, d.styles.Muted.Render(fmt.Sprintf("+%d more", hidden)))
	}
	return lines
}

func (d *Dashboard) renderLogHeader() string {
	header := d.styles.Header.Render("LOGS")
	count := d.styles.Muted.Render(fmt.Sprintf(" %d entries", len(d.logRows)))
	scroll := ""
	if !d.logView.AtBottom() {
		scroll = d.styles.Muted.Render(fmt.Sprintf("  (%3.f%%)", d.logView.ScrollPercent()*100))
	}
	return header + count + scroll
}

func (d *Dashboard) renderFooter() string {
	return d.styles.Muted.Render(truncate(d.keymap.HelpLine(), d.safeWidth()))
}

// layout sizes the log pane to whatever the fixed sections leave over.
func (d *Dashboard) layout() {
	d.logView.Width = d.safeWidth()
	height := d.safeHeight() - d.fixedHeight()
	if height < minLogPaneHeight {
		height = minLogPaneHeight
	}
	d.logView.Height = height
}

func (d *Dashboard) fixedHeight() int {
	// header, sync, blank, two stat lines, blank, blank + log header, blank + footer
	fixed := 2 + 1 + 2 + 1 + 2 + 2
	if d.stats.Alert.Active {
		fixed += 2
	}
	rows := len(d.stats.Scoreboard)
	switch {
	case rows == 0:
		rows = 1
	case rows > scoreboardMaxRows:
		rows = scoreboardMaxRows + 1
	}
	fixed += 1 + rows
	if d.message != "" {
		fixed += 2
	}
	return fixed
}

func (d *Dashboard) proxyColumnWidth() int {
	w := d.safeWidth() - 2*d.styles.ColCount - d.styles.ColScore - 3*2
	if w < proxyColumnMinWidth {
		w = proxyColumnMinWidth
	}
	return w
}

func (d *Dashboard) modalWidth() int {
	if d.width > 20 {
		return min(d.width-12, 72)
	}
	return 60
}

func (d *Dashboard) safeWidth() int {
	frame := d.styles.Box.GetHorizontalFrameSize()
	if d.width > frame {
		return d.width - frame
	}
	return 80
}

func (d *Dashboard) safeHeight() int {
	frame := d.styles.Box.GetVerticalFrameSize()
	if d.height > frame {
		return d.height - frame
	}
	return 24
}

func formatUptime(seconds int64) string {
	if seconds <= 0 {
		return "0s"
	}
	return (time.Duration(seconds) * time.Second).String()
}

func padRight(s string, width int) string {
	return runewidth.FillRight(s, width)
}

func padLeft(s string, width int) string {
	return runewidth.FillLeft(s, width)
}

func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	if width <= 3 {
		return truncateToWidth(s, width)
	}
	return truncateToWidth(s, width-3) + "..."
}

// truncateStyled leaves styled text alone when it fits; otherwise it falls
// back to the unstyled text.
func truncateStyled(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	return truncate(ansi.Strip(s), width)
}

func truncateToWidth(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= width {
		return s
	}
	var b strings.Builder
	current := 0
	for _, r := range s {
		rw := runewidth.RuneWidth(r)
		if current+rw > width {
			break
		}
		b.WriteRune(r)
		current += rw
	}
	return b.String()
}

func formatRelativeTime(when time.Time, now time.Time) string {
	if when.After(now) {
		return "just now"
	}

	elapsed := now.Sub(when)
	switch {
	case elapsed < 10*time.Second:
		return "just now"
	case elapsed < time.Minute:
		return fmt.Sprintf("%ds ago", int(elapsed.Seconds()))
	case elapsed < time.Hour:
		return fmt.Sprintf("%dm ago", int(elapsed.Minutes()))
	default:
		return humanize.Time(when)
	}
}
