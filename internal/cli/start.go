package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/s22625/nexusflow/internal/config"
	"github.com/s22625/nexusflow/internal/control"
	"github.com/s22625/nexusflow/internal/model"
)

// formOptions collects run parameters from flags. Only flags the operator
// set override the preset.
type formOptions struct {
	Preset string
	Form   model.FormConfig
}

func (o *formOptions) bind(fs *pflag.FlagSet) {
	fs.StringVar(&o.Preset, "preset", "", "Preset file (json, yaml or toml); defaults to the config's preset")
	fs.StringVar(&o.Form.Method, "method", "", "HTTP method")
	fs.StringVar(&o.Form.URL, "url", "", "Target URL")
	fs.StringVar(&o.Form.Body, "body", "", "Request body")
	fs.StringVar(&o.Form.Headers, "headers", "", "Request headers, one per line")
	fs.StringVar(&o.Form.Proxies, "proxies", "", "Proxy list, one per line")
	fs.StringVar(&o.Form.UserAgents, "user-agents", "", "User agent list, one per line")
	fs.IntVar(&o.Form.IntervalMS, "interval-ms", 0, "Delay between requests in milliseconds")
	fs.Float64Var(&o.Form.Timeout, "timeout", 0, "Request timeout in seconds")
	fs.IntVar(&o.Form.Concurrency, "concurrency", 0, "Concurrent workers")
	fs.IntVar(&o.Form.MaxRequests, "max-requests", 0, "Stop after this many requests (0 = unlimited)")
	fs.StringVar(&o.Form.RequestChain, "request-chain", "", "Request chain definition")
	fs.StringVar(&o.Form.Mode, "mode", "", "Run mode")
	fs.StringVar(&o.Form.ProxyMode, "proxy-mode", "", "Proxy selection mode")
}

// resolve loads the preset (flag, then config) and lays the flags over it.
func (o *formOptions) resolve(cfg *config.Config) (model.FormConfig, string, error) {
	path := o.Preset
	if path == "" {
		path = cfg.Preset
	}
	var preset model.FormConfig
	if path != "" {
		path = config.ExpandPath(path, "")
		loaded, err := model.LoadPresetFile(path)
		if err != nil {
			return model.FormConfig{}, "", err
		}
		preset = loaded
	}
	return preset.Merge(o.Form).WithDefaults(), path, nil
}

// operatorError carries the message shown to the operator while keeping the
// underlying error for exit code classification.
type operatorError struct {
	msg string
	err error
}

func (e *operatorError) Error() string { return e.msg }
func (e *operatorError) Unwrap() error { return e.err }

func newStartCmd() *cobra.Command {
	opts := &formOptions{}

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a run on the worker",
		Long: `Start a run with the given parameters. Values come from the preset
file first; any form flag that is set overrides the preset. Unset fields
take the form defaults (interval 1000ms, timeout 10s, concurrency 1).

The worker clears its log buffer when a run starts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd, opts)
		},
	}
	opts.bind(cmd.Flags())

	return cmd
}

func runStart(cmd *cobra.Command, opts *formOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel, os.Stderr)
	if err != nil {
		return err
	}
	form, _, err := opts.resolve(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	client, err := newClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	ctl := control.New(client, logger)

	ack, err := ctl.Start(ctx, form)
	if err != nil {
		return &operatorError{msg: control.OperatorMessage(err), err: err}
	}

	if globalOpts.JSON {
		return printJSON(ack)
	}
	if !globalOpts.Quiet {
		fmt.Printf("started: %s (%s, concurrency %d)\n", displayOr(form.URL), form.Mode, form.Concurrency)
	}
	return nil
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Ask the worker to stop the current run",
		Long: `Send a stop request. Stop is best effort: failures are logged and the
command still exits 0.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(cmd)
		},
	}
}

func runStop(cmd *cobra.Command) error {
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
		logger.Warn("stop not sent", "error", err)
	} else {
		ctl := control.New(client, logger)
		if _, err := ctl.Stop(ctx); err != nil {
			logger.Debug("stop result ignored", slog.Any("error", err))
		}
	}

	if !globalOpts.Quiet && !globalOpts.JSON {
		fmt.Println("stop sent")
	}
	return nil
}

func displayOr(s string) string {
	if s == "" {
		return model.Placeholder
	}
	return s
}
