package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/ride-sync/internal/api"
	"github.com/example/ride-sync/internal/observability"
)

// FailurePolicy is how a failed command is handled at one call site. The
// zero value is the default: no retry, the failure is logged and returned.
type FailurePolicy struct {
	Retries   int
	Backoff   time.Duration
	Retryable func(error) bool
}

// LogOnly never retries.
var LogOnly = FailurePolicy{}

// Runner executes commands under their failure policy and records outcome
// metrics and logs.
type Runner struct {
	logger   *slog.Logger
	def      FailurePolicy
	policies map[string]FailurePolicy
}

func NewRunner(logger *slog.Logger, def FailurePolicy) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger.With("component", "gateway"), def: def, policies: map[string]FailurePolicy{}}
}

// WithPolicy overrides the policy of a single command.
func (r *Runner) WithPolicy(command string, p FailurePolicy) *Runner {
	r.policies[command] = p
	return r
}

func (r *Runner) policy(command string) FailurePolicy {
	if p, ok := r.policies[command]; ok {
		return p
	}
	return r.def
}

// Do runs fn once, plus the retries its policy allows.
func (r *Runner) Do(ctx context.Context, command string, fn func(context.Context) error) error {
	p := r.policy(command)
	start := time.Now()

	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil || attempt >= p.Retries || ctx.Err() != nil {
			break
		}
		if p.Retryable != nil && !p.Retryable(err) {
			break
		}
		r.logger.Warn("command failed, retrying", "command", command, "attempt", attempt+1, "error", err)
		if !sleep(ctx, p.Backoff) {
			break
		}
	}

	observability.CommandDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.CommandsTotal.WithLabelValues(command, "error").Inc()
		r.logger.Error("command failed", "command", command, "error", err, "message", api.Message(err))
		return err
	}
	observability.CommandsTotal.WithLabelValues(command, "ok").Inc()
	return nil
}

func call[T any](ctx context.Context, r *Runner, command string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, command, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
