// Package history records proxy outcomes locally without ever blocking the
// poll loop.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/s22625/nexusflow/internal/metrics"
	"github.com/s22625/nexusflow/internal/model"
	"github.com/s22625/nexusflow/internal/store"
)

// State is the recorder lifecycle.
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateUnavailable
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateUnavailable:
		return "unavailable"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DefaultQueueSize bounds pending writes.
const DefaultQueueSize = 256

const writeTimeout = 5 * time.Second

// Write results for metrics.
const (
	writeOK      = "ok"
	writeError   = "error"
	writeDropped = "dropped"
)

// ErrDisabled is returned by the opener of the "none" backend.
var ErrDisabled = errors.New("history disabled")

// StorageUnavailableError means the backend could not be opened. The
// recorder stays usable; appends are dropped.
type StorageUnavailableError struct {
	Backend string
	Err     error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("history storage %s unavailable: %v", e.Backend, e.Err)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Err }

// Opener opens a history backend.
type Opener func(ctx context.Context) (store.Store, error)

// Options configures a Recorder.
type Options struct {
	Backend   string // for error messages
	QueueSize int
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	// Session tags every record; a random UUID when empty.
	Session string
	// Now overrides the clock.
	Now func() time.Time
}

// Recorder is the fire-and-forget history writer. Records appended before
// the backend is ready are dropped, never queued.
type Recorder struct {
	open    Opener
	backend string
	logger  *slog.Logger
	metrics *metrics.Metrics
	session string
	now     func() time.Time

	state    atomic.Int32
	initOnce sync.Once
	started  atomic.Bool
	initDone chan struct{}
	initErr  error

	mu     sync.RWMutex
	queue  chan *model.HistoryRecord
	store  store.Store
	closed bool
	wg     sync.WaitGroup
}

// NewRecorder creates a recorder in the Uninitialized state.
func NewRecorder(open Opener, opts Options) *Recorder {
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	session := opts.Session
	if session == "" {
		session = uuid.NewString()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Recorder{
		open:     open,
		backend:  opts.Backend,
		logger:   logger,
		metrics:  opts.Metrics,
		session:  session,
		now:      now,
		initDone: make(chan struct{}),
		queue:    make(chan *model.HistoryRecord, size),
	}
}

// State returns the current lifecycle state.
func (r *Recorder) State() State {
	return State(r.state.Load())
}

// Session returns the id stamped on this recorder's records.
func (r *Recorder) Session() string {
	return r.session
}

// Init opens the backend in the background. Only the first call has any
// effect.
func (r *Recorder) Init(ctx context.Context) {
	r.initOnce.Do(func() {
		r.started.Store(true)
		go r.initialize(ctx)
	})
}

// Ready is closed once initialization has finished, successfully or not.
func (r *Recorder) Ready() <-chan struct{} {
	return r.initDone
}

// Err returns the initialization error, if any. Valid after Ready is closed.
func (r *Recorder) Err() error {
	select {
	case <-r.initDone:
		return r.initErr
	default:
		return nil
	}
}

func (r *Recorder) initialize(ctx context.Context) {
	defer close(r.initDone)

	var st store.Store
	var err error
	if r.open == nil {
		err = ErrDisabled
	} else {
		st, err = r.open(ctx)
	}
	if err != nil {
		r.state.Store(int32(StateUnavailable))
		if errors.Is(err, ErrDisabled) {
			r.logger.Debug("history disabled")
			r.initErr = err
			return
		}
		r.initErr = &StorageUnavailableError{Backend: r.backend, Err: err}
		r.logger.Warn("history unavailable", "backend", r.backend, "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		// Closed while opening.
		st.Close()
		return
	}
	r.store = st
	r.wg.Add(1)
	go r.writer()
	r.state.Store(int32(StateReady))
	r.logger.Debug("history ready", "backend", r.backend, "session", r.session)
}

// Append records one proxy outcome stamped with the local clock. It never
// blocks and never fails: when the recorder is not ready or the queue is
// full, the record is dropped.
func (r *Recorder) Append(proxy string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed || r.State() != StateReady {
		return
	}
	rec := &model.HistoryRecord{
		TS:      r.now().UnixMilli(),
		Proxy:   proxy,
		OK:      ok,
		Session: r.session,
	}
	select {
	case r.queue <- rec:
	default:
		r.metrics.RecordHistoryWrite(writeDropped)
		r.logger.Warn("history queue full, record dropped", "proxy", proxy)
	}
}

func (r *Recorder) writer() {
	defer r.wg.Done()
	for rec := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := r.store.Append(ctx, rec)
		cancel()
		if err != nil {
			r.metrics.RecordHistoryWrite(writeError)
			r.logger.Warn("history write failed", "proxy", rec.Proxy, "error", err)
			continue
		}
		r.metrics.RecordHistoryWrite(writeOK)
	}
}

// Close waits for initialization, drains pending writes and closes the
// backend. Appends after Close are dropped.
func (r *Recorder) Close() error {
	if r.started.Load() {
		<-r.initDone
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	st := r.store
	r.mu.Unlock()

	r.wg.Wait()
	r.state.Store(int32(StateClosed))
	if st == nil {
		return nil
	}
	return st.Close()
}
