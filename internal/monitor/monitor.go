// Package monitor is the interactive terminal dashboard.
package monitor

import (
	"context"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/s22625/nexusflow/internal/control"
	"github.com/s22625/nexusflow/internal/metrics"
	"github.com/s22625/nexusflow/internal/model"
	"github.com/s22625/nexusflow/internal/poller"
	"github.com/s22625/nexusflow/internal/render"
)

// Options configures the monitor behavior.
type Options struct {
	Server string
	// Preset is the run configuration sent by the start key.
	Preset     model.FormConfig
	PresetName string
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// Monitor wires the pipeline components to the dashboard.
type Monitor struct {
	poller     *poller.Poller
	control    *control.Controller
	stats      *render.StatsRenderer
	logs       *render.LogRenderer
	server     string
	preset     model.FormConfig
	presetName string
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// New creates a monitor.
func New(p *poller.Poller, ctl *control.Controller, stats *render.StatsRenderer, logs *render.LogRenderer, opts Options) *Monitor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		poller:     p,
		control:    ctl,
		stats:      stats,
		logs:       logs,
		server:     opts.Server,
		preset:     opts.Preset,
		presetName: opts.PresetName,
		logger:     logger,
		metrics:    opts.Metrics,
	}
}

// Interval returns the poll cadence.
func (m *Monitor) Interval() time.Duration {
	if m.poller == nil {
		return defaultRefreshInterval
	}
	return m.poller.Interval()
}

// Run shows the dashboard until the operator quits or ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	d := NewDashboard(ctx, m)
	program := tea.NewProgram(d, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
