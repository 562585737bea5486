package realtime

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Gate is the part of the session the supervisor depends on.
type Gate interface {
	Ready() bool
	Token() string
	Watch() <-chan struct{}
}

// Supervisor keeps one Channel open while the session is ready. A dropped
// connection is retried with exponential backoff; a token change or logout
// tears the live connection down and re-evaluates the gate.
type Supervisor struct {
	ch     *Channel
	gate   Gate
	min    time.Duration
	max    time.Duration
	logger *slog.Logger
}

func NewSupervisor(ch *Channel, gate Gate, min, max time.Duration, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if min <= 0 {
		min = time.Second
	}
	if max < min {
		max = min
	}
	return &Supervisor{ch: ch, gate: gate, min: min, max: max, logger: logger.With("component", "realtime")}
}

// Run blocks until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context, sink Sink) {
	backoff := s.min
	for {
		watch := s.gate.Watch()
		if !s.gate.Ready() {
			select {
			case <-ctx.Done():
				return
			case <-watch:
				continue
			}
		}

		token := s.gate.Token()
		connCtx, cancel := context.WithCancel(ctx)
		sessionChanged := make(chan struct{})
		stop := make(chan struct{})
		go s.watchSession(watch, token, stop, sessionChanged, cancel)

		err := s.ch.Run(connCtx, token, sink)
		close(stop)
		cancel()

		if ctx.Err() != nil {
			return
		}
		select {
		case <-sessionChanged:
			s.logger.Info("session changed, reopening channel")
			backoff = s.min
			continue
		default:
		}

		if err != nil && errors.Is(err, ErrDial) {
			s.logger.Warn("channel dial failed", "error", err, "retry_in", backoff)
		} else {
			// The connection was up; start the backoff over.
			backoff = s.min
			s.logger.Warn("channel dropped", "error", err, "retry_in", backoff)
		}

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-s.gate.Watch():
			t.Stop()
			backoff = s.min
		case <-t.C:
			backoff *= 2
			if backoff > s.max {
				backoff = s.max
			}
		}
	}
}

func (s *Supervisor) watchSession(watch <-chan struct{}, token string, stop <-chan struct{}, changed chan<- struct{}, cancel context.CancelFunc) {
	for {
		select {
		case <-stop:
			return
		case <-watch:
			if !s.gate.Ready() || s.gate.Token() != token {
				close(changed)
				cancel()
				return
			}
			watch = s.gate.Watch()
		}
	}
}
