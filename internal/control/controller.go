// Package control issues start/stop commands to the worker.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/s22625/nexusflow/internal/api"
	"github.com/s22625/nexusflow/internal/model"
)

// Commander is the subset of the API client the controller needs.
type Commander interface {
	Start(ctx context.Context, cfg model.FormConfig) (*api.Ack, error)
	Stop(ctx context.Context) (*api.Ack, error)
}

// Controller sends one command per call. It never retries and holds no
// state: after a successful start, the next poll picks up the new run.
type Controller struct {
	api    Commander
	logger *slog.Logger
}

// New creates a controller.
func New(c Commander, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{api: c, logger: logger}
}

// Start sends cfg to the worker. Failures are returned unchanged as
// *api.NetworkError, *api.RejectedError or *api.MalformedResponseError and
// must be shown to the operator (see OperatorMessage).
func (c *Controller) Start(ctx context.Context, cfg model.FormConfig) (*api.Ack, error) {
	ack, err := c.api.Start(ctx, cfg)
	if err != nil {
		c.logger.Info("start failed", "error", err)
		return nil, err
	}
	c.logger.Info("start accepted", "url", cfg.URL, "concurrency", cfg.Concurrency)
	return ack, nil
}

// Stop asks the worker to stop. It is best effort: failures are logged and
// reported back for callers that care, but are never operator-facing.
// Stopping an idle worker is not an error.
func (c *Controller) Stop(ctx context.Context) (*api.Ack, error) {
	ack, err := c.api.Stop(ctx)
	if err != nil {
		c.logger.Warn("stop failed", "error", err)
		return nil, err
	}
	c.logger.Info("stop sent")
	return ack, nil
}

// OperatorMessage renders a start failure for display.
func OperatorMessage(err error) string {
	if err == nil {
		return ""
	}
	var ne *api.NetworkError
	if errors.As(err, &ne) {
		return fmt.Sprintf("Network error: %v", ne.Err)
	}
	return "Start failed: " + api.ErrorMessage(err)
}
