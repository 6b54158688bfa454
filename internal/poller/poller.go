// Package poller reads the worker's status and logs on a fixed cadence.
package poller

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/s22625/nexusflow/internal/api"
	"github.com/s22625/nexusflow/internal/metrics"
	"github.com/s22625/nexusflow/internal/model"
)

// DefaultInterval is the steady-state poll cadence.
const DefaultInterval = time.Second

// Source is the read side of the worker API.
type Source interface {
	Status(ctx context.Context) (*model.RunStatus, error)
	Logs(ctx context.Context) (*model.LogSnapshot, error)
}

// Cycle is the result of one poll. Status and Logs are set only when the
// corresponding read succeeded; the two reads fail independently.
type Cycle struct {
	Seq       uint64
	StartedAt time.Time
	Duration  time.Duration
	Status    *model.RunStatus
	Logs      *model.LogSnapshot
	StatusErr error
	LogsErr   error
}

// Outcome summarizes the cycle for metrics and logs.
func (c Cycle) Outcome() string {
	switch {
	case c.StatusErr == nil && c.LogsErr == nil:
		return metrics.OutcomeOK
	case c.StatusErr != nil && c.LogsErr != nil:
		return metrics.OutcomeFailed
	default:
		return metrics.OutcomePartial
	}
}

// Handler consumes a completed cycle. It runs on the poll loop, so the next
// cycle does not start until it returns.
type Handler func(Cycle)

// Options configures a Poller.
type Options struct {
	Interval time.Duration
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// Poller drives poll cycles against a Source.
type Poller struct {
	src      Source
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	seq      atomic.Uint64
}

// New creates a poller. A non-positive interval uses DefaultInterval.
func New(src Source, opts Options) *Poller {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		src:      src,
		interval: interval,
		logger:   logger,
		metrics:  opts.Metrics,
	}
}

// Interval returns the configured cadence.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Poll runs one cycle: the status and log reads are issued concurrently and
// each records its own error. Poll never fails as a whole.
func (p *Poller) Poll(ctx context.Context) Cycle {
	c := Cycle{
		Seq:       p.seq.Add(1),
		StartedAt: time.Now(),
	}

	// The group only joins the two reads. Neither cancels the other, so
	// each error stays on the cycle instead of going through Wait.
	var g errgroup.Group
	g.Go(func() error {
		st, err := p.src.Status(ctx)
		if err != nil {
			c.StatusErr = err
			return nil
		}
		c.Status = st
		return nil
	})
	g.Go(func() error {
		snap, err := p.src.Logs(ctx)
		if err != nil {
			c.LogsErr = err
			return nil
		}
		c.Logs = snap
		return nil
	})
	_ = g.Wait()

	c.Duration = time.Since(c.StartedAt)
	p.record(c)
	return c
}

func (p *Poller) record(c Cycle) {
	p.metrics.RecordRead("status", ReadResult(c.StatusErr))
	p.metrics.RecordRead("logs", ReadResult(c.LogsErr))
	p.metrics.RecordCycle(c.Outcome(), c.Duration)

	if c.StatusErr != nil {
		p.logger.Warn("status read failed", "seq", c.Seq, "error", c.StatusErr)
	}
	if c.LogsErr != nil {
		p.logger.Warn("logs read failed", "seq", c.Seq, "error", c.LogsErr)
	}
	p.logger.Debug("poll cycle", "seq", c.Seq, "outcome", c.Outcome(), "elapsed", c.Duration)
}

// Run polls immediately and then once per interval until ctx is done.
// Cycles never overlap: a tick that fires while a cycle (including its
// handler) is in flight is dropped.
func (p *Poller) Run(ctx context.Context, handle Handler) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.cycle(ctx, handle, ticker)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.cycle(ctx, handle, ticker)
		}
	}
}

func (p *Poller) cycle(ctx context.Context, handle Handler, ticker *time.Ticker) {
	c := p.Poll(ctx)
	if ctx.Err() != nil {
		return
	}
	if handle != nil {
		handle(c)
	}
	select {
	case <-ticker.C:
		p.metrics.RecordSkippedTick()
		p.logger.Debug("tick skipped", "seq", c.Seq)
	default:
	}
}

// ReadResult classifies a read error for metrics.
func ReadResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case api.IsRejected(err):
		return metrics.ResultRejected
	case api.IsMalformed(err):
		return metrics.ResultMalformed
	default:
		return metrics.ResultNetwork
	}
}
