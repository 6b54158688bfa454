package cli

import (
	"context"
	"log/slog"
	"sync"

	"github.com/s22625/nexusflow/internal/api"
	"github.com/s22625/nexusflow/internal/config"
	"github.com/s22625/nexusflow/internal/model"
)

// session is the client used by the long-running commands. Login failures
// are logged rather than returned, and a request bounced to the login page
// logs in again so the next poll goes through.
type session struct {
	*api.Client
	password string
	logger   *slog.Logger

	mu    sync.Mutex
	epoch int // bumped on every successful login
}

// newSession connects to the configured worker. Only an unusable server URL
// is an error; the worker may be down or restarting.
func newSession(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*session, error) {
	client, err := api.New(cfg.Server, api.Options{Timeout: cfg.HTTPTimeout, Logger: logger})
	if err != nil {
		return nil, err
	}
	s := &session{Client: client, password: cfg.Password, logger: logger}
	if s.password != "" {
		if err := client.Login(ctx, s.password); err != nil {
			logger.Warn("login failed, will retry when the worker asks", "error", err)
		} else {
			s.epoch++
		}
	}
	return s, nil
}

func (s *session) Status(ctx context.Context) (*model.RunStatus, error) {
	epoch := s.currentEpoch()
	st, err := s.Client.Status(ctx)
	s.relogin(ctx, epoch, err)
	return st, err
}

func (s *session) Logs(ctx context.Context) (*model.LogSnapshot, error) {
	epoch := s.currentEpoch()
	snap, err := s.Client.Logs(ctx)
	s.relogin(ctx, epoch, err)
	return snap, err
}

func (s *session) Start(ctx context.Context, form model.FormConfig) (*api.Ack, error) {
	epoch := s.currentEpoch()
	ack, err := s.Client.Start(ctx, form)
	s.relogin(ctx, epoch, err)
	return ack, err
}

func (s *session) Stop(ctx context.Context) (*api.Ack, error) {
	epoch := s.currentEpoch()
	ack, err := s.Client.Stop(ctx)
	s.relogin(ctx, epoch, err)
	return ack, err
}

func (s *session) currentEpoch() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// relogin logs in after a login-required rejection. Concurrent requests
// that were bounced under the same login share one attempt.
func (s *session) relogin(ctx context.Context, epoch int, err error) {
	if s.password == "" || !api.IsLoginRequired(err) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return
	}
	if err := s.Client.Login(ctx, s.password); err != nil {
		s.logger.Warn("login failed", "error", err)
		return
	}
	s.epoch++
	s.logger.Info("logged in again")
}
