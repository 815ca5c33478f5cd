// Package supervisor owns the chat session: it logs in, listens, rebuilds the
// session after a crash and logs out on shutdown.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"jarvisrelay/internal/domain"
	"jarvisrelay/internal/metrics"
)

// ErrLogin is returned by Run when a session cannot be established.
var ErrLogin = errors.New("login failed")

// Dialer authenticates and returns a new session.
type Dialer func(ctx context.Context, creds domain.Credentials) (domain.Session, error)

type Supervisor struct {
	dial       Dialer
	creds      domain.Credentials
	newHandler func(domain.Session) domain.Handler
	logger     *slog.Logger
}

type Config struct {
	Dial        Dialer
	Credentials domain.Credentials
	NewHandler  func(domain.Session) domain.Handler
	Logger      *slog.Logger
}

func New(cfg Config) *Supervisor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Supervisor{
		dial:       cfg.Dial,
		creds:      cfg.Credentials,
		newHandler: cfg.NewHandler,
		logger:     cfg.Logger,
	}
}

// Run keeps one session listening until ctx is cancelled. A session that
// fails or panics is torn down and replaced by a freshly dialed one, with no
// limit and no delay. Login failures are never retried.
func (s *Supervisor) Run(ctx context.Context) error {
	for restarts := 0; ; restarts++ {
		sess, err := s.dial(ctx, s.creds)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Error("login failed, check credentials", "err", err)
			return fmt.Errorf("%w: %w", ErrLogin, err)
		}
		s.logger.Info("session started",
			"platform", sess.Name(),
			"self_id", sess.SelfID(),
			"restarts", restarts,
		)

		metrics.SessionUp.Set(1)
		err = s.listen(ctx, sess)
		metrics.SessionUp.Set(0)
		if err == nil || ctx.Err() != nil {
			s.logout(sess)
			return nil
		}

		s.logger.Warn("session crashed, restarting", "platform", sess.Name())
		metrics.SessionRestarts.Inc()
		s.logCrash(err)
		s.discard(sess)
	}
}

func (s *Supervisor) listen(ctx context.Context, sess domain.Session) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listen panic: %v", r)
		}
	}()
	return sess.Listen(ctx, s.newHandler(sess))
}

// logout releases the session on shutdown.
func (s *Supervisor) logout(sess domain.Session) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("logout panic", "panic", r)
		}
	}()
	if err := sess.Logout(); err != nil {
		s.logger.Error("logout failed", "platform", sess.Name(), "err", err)
		return
	}
	s.logger.Info("logged out", "platform", sess.Name())
}

// discard stops and logs out a crashed session, ignoring every failure.
func (s *Supervisor) discard(sess domain.Session) {
	func() {
		defer func() { _ = recover() }()
		sess.StopListening()
	}()
	func() {
		defer func() { _ = recover() }()
		_ = sess.Logout()
	}()
}

// logCrash records why the session died. It must never stop the restart.
func (s *Supervisor) logCrash(err error) {
	defer func() { _ = recover() }()
	s.logger.Error("session crash reason", "err", err.Error())
}
