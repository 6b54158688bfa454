package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/s22625/nexusflow/internal/config"
	"github.com/s22625/nexusflow/internal/history"
	"github.com/s22625/nexusflow/internal/model"
	"github.com/s22625/nexusflow/internal/store"
)

type historyOptions struct {
	Limit   int
	Proxy   string
	Session string
	Since   string
}

func newHistoryCmd() *cobra.Command {
	opts := &historyOptions{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded proxy outcomes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, opts)
		},
	}
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 50, "Maximum records to show (0 = all)")
	cmd.Flags().StringVar(&opts.Proxy, "proxy", "", "Only records for this proxy")
	cmd.Flags().StringVar(&opts.Session, "session", "", "Only records written by this monitoring session")
	cmd.Flags().StringVar(&opts.Since, "since", "", "Only records newer than this age (e.g. 30m, 2h)")

	return cmd
}

func runHistory(cmd *cobra.Command, opts *historyOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.History.Backend == history.BackendNone {
		return fmt.Errorf("history is disabled (history.backend is %q)", history.BackendNone)
	}
	logger, err := newLogger(cfg.LogLevel, os.Stderr)
	if err != nil {
		return err
	}

	filter := &store.ListFilter{Proxy: opts.Proxy, Session: opts.Session, Limit: opts.Limit}
	if opts.Since != "" {
		age, err := config.ParseInterval(opts.Since)
		if err != nil {
			return fmt.Errorf("--since: %w", err)
		}
		filter.Since = time.Now().Add(-age)
	}

	ctx := cmd.Context()
	st, err := history.OpenStore(ctx, historyConfig(cfg), logger)
	if err != nil {
		return &history.StorageUnavailableError{Backend: cfg.History.Backend, Err: err}
	}
	defer st.Close()

	recs, err := st.List(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}

	if globalOpts.JSON {
		if recs == nil {
			recs = []*model.HistoryRecord{}
		}
		return printJSON(recs)
	}
	if globalOpts.Quiet {
		return nil
	}
	if len(recs) == 0 {
		fmt.Println("No history records")
		return nil
	}
	printHistory(recs)
	return nil
}

func printHistory(recs []*model.HistoryRecord) {
	width := len("PROXY")
	for _, rec := range recs {
		width = max(width, runewidth.StringWidth(rec.Proxy))
	}
	fmt.Printf("%8s  %-19s  %-14s  %s  %-4s  %s\n", "ID", "TIME", "AGE", runewidth.FillRight("PROXY", width), "OK", "SESSION")
	for _, rec := range recs {
		outcome := "ok"
		if !rec.OK {
			outcome = "FAIL"
		}
		fmt.Printf("%8d  %-19s  %-14s  %s  %-4s  %s\n",
			rec.ID,
			rec.Time().Format("2006-01-02 15:04:05"),
			humanize.Time(rec.Time()),
			runewidth.FillRight(rec.Proxy, width),
			outcome,
			shortSession(rec.Session))
	}
}

func shortSession(s string) string {
	if len(s) > 8 {
		return s[:8]
	}
	if s == "" {
		return model.Placeholder
	}
	return s
}
