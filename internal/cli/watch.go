package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/s22625/nexusflow/internal/api"
	"github.com/s22625/nexusflow/internal/history"
	"github.com/s22625/nexusflow/internal/metrics"
	"github.com/s22625/nexusflow/internal/poller"
	"github.com/s22625/nexusflow/internal/render"
)

type watchOptions struct {
	MetricsAddr string
	NoHistory   bool
}

func newWatchCmd() *cobra.Command {
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the worker without the dashboard",
		Long: `Poll status and logs once per poll interval and print a stats line per
cycle, new log rows and alert transitions. Proxy outcomes are recorded to
the history store like the dashboard does. Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9464)")
	cmd.Flags().BoolVar(&opts.NoHistory, "no-history", false, "Do not record proxy outcomes")

	return cmd
}

func runWatch(cmd *cobra.Command, opts *watchOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel, os.Stderr)
	if err != nil {
		return err
	}
	if opts.MetricsAddr != "" {
		cfg.MetricsAddr = opts.MetricsAddr
	}
	if opts.NoHistory {
		cfg.History.Backend = history.BackendNone
	}

	ctx := cmd.Context()
	client, err := newSession(ctx, cfg, logger)
	if err != nil {
		return err
	}

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, logger); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	rec, err := history.NewFromConfig(historyConfig(cfg), history.Options{Logger: logger, Metrics: m})
	if err != nil {
		return err
	}
	rec.Init(ctx)
	defer func() {
		if err := rec.Close(); err != nil {
			logger.Warn("close history", "error", err)
		}
	}()

	p := poller.New(client, poller.Options{Interval: cfg.PollInterval, Logger: logger, Metrics: m})
	w := &watcher{
		stats: render.NewStatsRenderer(rec, m),
		logs:  render.NewLogRenderer(),
	}
	return p.Run(ctx, w.handle)
}

// watcher prints each cycle as plain lines.
type watcher struct {
	stats *render.StatsRenderer
	logs  *render.LogRenderer

	alertActive bool
}

// watchEvent is the --json form of one cycle.
type watchEvent struct {
	Seq       uint64            `json:"seq"`
	Time      time.Time         `json:"time"`
	Stats     *render.StatsView `json:"stats,omitempty"`
	NewLogs   []string          `json:"new_logs,omitempty"`
	StatusErr string            `json:"status_error,omitempty"`
	LogsErr   string            `json:"logs_error,omitempty"`
}

func (w *watcher) handle(c poller.Cycle) {
	ev := watchEvent{Seq: c.Seq, Time: c.StartedAt}

	if c.StatusErr != nil {
		ev.StatusErr = api.ErrorMessage(c.StatusErr)
	} else if c.Status != nil {
		view := w.stats.Render(c.Status)
		ev.Stats = &view
	}
	if c.LogsErr != nil {
		ev.LogsErr = api.ErrorMessage(c.LogsErr)
	} else if view, changed := w.logs.Render(c.Logs); changed {
		ev.NewLogs = w.newRows(view)
	}

	if globalOpts.JSON {
		_ = printJSONLine(ev)
		return
	}
	if globalOpts.Quiet {
		return
	}
	w.print(ev)
}

// newRows formats the rows appended since the previous render.
func (w *watcher) newRows(view render.LogView) []string {
	var out []string
	for _, row := range view.Rows[len(view.Rows)-view.Appended:] {
		out = append(out, logLine(row))
	}
	return out
}

func (w *watcher) print(ev watchEvent) {
	if ev.Stats != nil {
		fmt.Println(statsLine(*ev.Stats))
		if ev.Stats.Alert.Active != w.alertActive {
			w.alertActive = ev.Stats.Alert.Active
			if w.alertActive {
				fmt.Printf("ALERT: %s\n", ev.Stats.Alert.Message)
			} else {
				fmt.Println("alert cleared")
			}
		}
	}
	if ev.StatusErr != "" {
		fmt.Fprintf(os.Stderr, "status read failed: %s\n", ev.StatusErr)
	}
	if ev.LogsErr != "" {
		fmt.Fprintf(os.Stderr, "logs read failed: %s\n", ev.LogsErr)
	}
	for _, line := range ev.NewLogs {
		fmt.Println(line)
	}
}
