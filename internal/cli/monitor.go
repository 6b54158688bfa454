package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/s22625/nexusflow/internal/control"
	"github.com/s22625/nexusflow/internal/history"
	"github.com/s22625/nexusflow/internal/metrics"
	"github.com/s22625/nexusflow/internal/monitor"
	"github.com/s22625/nexusflow/internal/poller"
	"github.com/s22625/nexusflow/internal/render"
)

type monitorOptions struct {
	Form        formOptions
	MetricsAddr string
	NoHistory   bool
}

func newMonitorCmd() *cobra.Command {
	opts := &monitorOptions{}

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Interactive dashboard for the worker",
		Long: `Open the live dashboard: run state, counters, the proxy scoreboard,
the error alert and the scrolling log feed, refreshed once per poll
interval. The start key sends the preset (with any form flags applied).

Logs go to log_file because the terminal is in use.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(cmd, opts)
		},
	}
	opts.Form.bind(cmd.Flags())
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9464)")
	cmd.Flags().BoolVar(&opts.NoHistory, "no-history", false, "Do not record proxy outcomes")

	return cmd
}

func runMonitor(cmd *cobra.Command, opts *monitorOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if opts.MetricsAddr != "" {
		cfg.MetricsAddr = opts.MetricsAddr
	}
	if opts.NoHistory {
		cfg.History.Backend = history.BackendNone
	}

	logOut, closeLog, err := openLogFile(cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()
	logger, err := newLogger(cfg.LogLevel, logOut)
	if err != nil {
		return err
	}

	form, presetPath, err := opts.Form.resolve(cfg)
	if err != nil {
		return err
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
	logger.Info("monitor started", "server", client.BaseURL(), "session", rec.Session(), "history", cfg.History.Backend)

	presetName := ""
	if presetPath != "" {
		presetName = filepath.Base(presetPath)
	}

	p := poller.New(client, poller.Options{Interval: cfg.PollInterval, Logger: logger, Metrics: m})
	mon := monitor.New(p, control.New(client, logger), render.NewStatsRenderer(rec, m), render.NewLogRenderer(), monitor.Options{
		Server:     client.BaseURL(),
		Preset:     form,
		PresetName: presetName,
		Logger:     logger,
		Metrics:    m,
	})
	return mon.Run(ctx)
}

// openLogFile opens path for appending. An empty path discards logs.
func openLogFile(path string) (io.Writer, func(), error) {
	if path == "" {
		return io.Discard, func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
