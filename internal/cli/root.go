package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/s22625/nexusflow/internal/api"
	"github.com/s22625/nexusflow/internal/config"
	"github.com/s22625/nexusflow/internal/history"
)

// Exit codes
const (
	ExitOK            = 0
	ExitRejected      = 2
	ExitNetworkError  = 3
	ExitMalformed     = 4
	ExitInternalError = 10
)

// GlobalOptions holds options shared across all commands
type GlobalOptions struct {
	Server     string
	ConfigPath string
	LogLevel   string
	JSON       bool
	Quiet      bool
}

var globalOpts = &GlobalOptions{}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "nexusflow",
	Short: "Control and monitor a nexusflow request worker",
	Long: `nexusflow drives a remote request worker: it starts and stops runs,
polls the worker's status and log buffer once per second, renders live
statistics and a per-proxy scoreboard, and records proxy outcomes to a
local history store.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalOpts.Server, "server", "", "Worker URL (or set NEXUSFLOW_SERVER)")
	rootCmd.PersistentFlags().StringVar(&globalOpts.ConfigPath, "config", "", "Explicit config file, merged over the layered config")
	rootCmd.PersistentFlags().StringVar(&globalOpts.LogLevel, "log-level", "", "Log level (error|warn|info|debug)")
	rootCmd.PersistentFlags().BoolVar(&globalOpts.JSON, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&globalOpts.Quiet, "quiet", false, "Suppress human-readable output")

	rootCmd.AddCommand(newMonitorCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newLogsCmd())
	rootCmd.AddCommand(newStartCmd())
	rootCmd.AddCommand(newStopCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newPresetCmd())
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(ExitCode(err))
	}
}

// ExitCode maps an error returned by a command to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case api.IsRejected(err):
		return ExitRejected
	case api.IsNetwork(err):
		return ExitNetworkError
	case api.IsMalformed(err):
		return ExitMalformed
	default:
		return ExitInternalError
	}
}

// loadConfig resolves the layered config and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFile(config.ExpandPath(globalOpts.ConfigPath, ""))
	if err != nil {
		return nil, err
	}
	if globalOpts.Server != "" {
		cfg.Server = globalOpts.Server
	}
	if globalOpts.LogLevel != "" {
		cfg.LogLevel = globalOpts.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger builds a text logger at the configured level.
func newLogger(level string, w io.Writer) (*slog.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s (expected error|warn|info|debug)", s)
	}
}

// newClient connects to the configured worker for a one-shot command,
// logging in first when a password is set. A failed login ends the command.
func newClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*api.Client, error) {
	client, err := api.New(cfg.Server, api.Options{Timeout: cfg.HTTPTimeout, Logger: logger})
	if err != nil {
		return nil, err
	}
	if cfg.Password != "" {
		if err := client.Login(ctx, cfg.Password); err != nil {
			return nil, fmt.Errorf("login: %w", err)
		}
	}
	return client, nil
}

// historyConfig converts the config section to the history package's form.
func historyConfig(cfg *config.Config) history.Config {
	return history.Config{
		Backend:   cfg.History.Backend,
		Path:      cfg.History.Path,
		DSN:       cfg.History.DSN,
		QueueSize: cfg.History.QueueSize,
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printJSONLine(v any) error {
	return json.NewEncoder(os.Stdout).Encode(v)
}
