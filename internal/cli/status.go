package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/s22625/nexusflow/internal/render"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show run state, counters and the proxy scoreboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd)
		},
	}
}

func runStatus(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel, os.Stderr)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	client, err := newClient(ctx, cfg, logger)
	if err != nil {
		return err
	}

	st, err := client.Status(ctx)
	if err != nil {
		return err
	}
	if globalOpts.JSON {
		return printJSON(st)
	}
	if globalOpts.Quiet {
		return nil
	}

	view := render.BuildStatsView(st)
	fmt.Println(statsLine(view))
	fmt.Printf("last: status=%s proxy=%s error=%s\n", view.LastStatus, view.LastProxy, view.LastError)
	if view.Alert.Active {
		fmt.Printf("ALERT: %s\n", view.Alert.Message)
	}
	if len(view.Scoreboard) > 0 {
		fmt.Println()
		printScoreboard(view.Scoreboard)
	}
	return nil
}

// statsLine is the one-line counter summary.
func statsLine(v render.StatsView) string {
	return fmt.Sprintf("%s  total=%s success=%s failed=%s uptime=%ds",
		strings.ToUpper(v.State),
		humanize.Comma(v.Total), humanize.Comma(v.Success), humanize.Comma(v.Failed), v.Uptime)
}

func printScoreboard(rows []render.ScoreRow) {
	width := len("PROXY")
	for _, row := range rows {
		width = max(width, runewidth.StringWidth(row.Proxy))
	}
	fmt.Printf("%s  %9s  %9s  %7s\n", runewidth.FillRight("PROXY", width), "SUCCESS", "FAILED", "SCORE")
	for _, row := range rows {
		fmt.Printf("%s  %9s  %9s  %7d\n",
			runewidth.FillRight(row.Proxy, width),
			humanize.Comma(row.Success), humanize.Comma(row.Failed), row.Score)
	}
}

func newLogsCmd() *cobra.Command {
	var tail int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the worker's log buffer",
		Long: `Print the worker's bounded log buffer, oldest first. Timestamps are
shown as HH:MM:SS in UTC.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogs(cmd, tail)
		},
	}
	cmd.Flags().IntVarP(&tail, "tail", "n", 0, "Show only the last N entries (0 = all)")

	return cmd
}

func runLogs(cmd *cobra.Command, tail int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel, os.Stderr)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	client, err := newClient(ctx, cfg, logger)
	if err != nil {
		return err
	}

	snap, err := client.Logs(ctx)
	if err != nil {
		return err
	}
	if tail > 0 && len(snap.Logs) > tail {
		snap.Logs = snap.Logs[len(snap.Logs)-tail:]
	}
	if globalOpts.JSON {
		return printJSON(snap)
	}
	if globalOpts.Quiet {
		return nil
	}

	view, _ := render.NewLogRenderer().Render(snap)
	for _, row := range view.Rows {
		fmt.Println(logLine(row))
	}
	return nil
}

func logLine(row render.LogRow) string {
	switch row.Class {
	case render.ClassSuccess:
		return "+ " + row.Text
	case render.ClassFail:
		return "x " + row.Text
	default:
		return "  " + row.Text
	}
}
