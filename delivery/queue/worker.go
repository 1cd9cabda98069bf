package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

const (
	initialBackoff = 2 * time.Second
	maxBackoff     = 5 * time.Minute
	promoteBatch   = 100
)

// Handler processes one job.
type Handler interface {
	Handle(ctx context.Context, kind string, payload []byte) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, kind string, payload []byte) error

func (f HandlerFunc) Handle(ctx context.Context, kind string, payload []byte) error {
	return f(ctx, kind, payload)
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// CalculateBackoff doubles from initialBackoff per prior attempt, capped.
func CalculateBackoff(attempt int) time.Duration {
	delay := initialBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// WorkerConfig tunes a Worker. Zero values take defaults.
type WorkerConfig struct {
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
}

// Worker drains a Queue.
type Worker struct {
	queue   *Queue
	handler Handler
	limiter *rate.Limiter
	poll    time.Duration
	backoff func(attempt int) time.Duration
	logger  *slog.Logger
}

func NewWorker(q *Queue, h Handler, cfg WorkerConfig, logger *slog.Logger) *Worker {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		queue:   q,
		handler: h,
		limiter: rate.NewLimiter(limit, burst),
		poll:    poll,
		backoff: CalculateBackoff,
		logger:  logger,
	}
}

// Run processes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("delivery worker started", slog.Duration("poll_interval", w.poll))
	for {
		if ctx.Err() != nil {
			w.logger.Info("delivery worker stopped")
			return nil
		}
		if _, err := w.ProcessOne(ctx, w.poll); err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error("delivery worker iteration failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
			case <-time.After(w.poll):
			}
		}
	}
}

// ProcessOne promotes due retries, then handles at most one ready job. It
// reports whether a job was taken off the queue.
func (w *Worker) ProcessOne(ctx context.Context, wait time.Duration) (bool, error) {
	if _, err := w.queue.promoteDue(ctx, promoteBatch); err != nil {
		return false, err
	}

	env, err := w.queue.pop(ctx, wait)
	if err != nil {
		return false, err
	}
	if env == nil {
		return false, nil
	}

	if err := w.limiter.Wait(ctx); err != nil {
		// Put it back for the next worker.
		return true, w.queue.retryAt(context.WithoutCancel(ctx), *env, w.queue.now())
	}

	// The job is off the ready list now; it must be written back even if
	// ctx ends during Handle.
	persist := context.WithoutCancel(ctx)

	env.Attempts++
	herr := w.handler.Handle(ctx, env.Kind, env.Payload)
	if herr == nil {
		w.logger.Debug("job processed", slog.String("id", env.ID), slog.String("kind", env.Kind))
		return true, nil
	}

	env.LastError = herr.Error()
	if IsPermanent(herr) || env.Attempts > env.MaxRetries {
		w.logger.Warn("job dead-lettered",
			slog.String("id", env.ID),
			slog.String("kind", env.Kind),
			slog.Int("attempts", env.Attempts),
			slog.String("error", herr.Error()),
		)
		return true, w.queue.bury(persist, *env)
	}

	delay := w.backoff(env.Attempts)
	w.logger.Info("job scheduled for retry",
		slog.String("id", env.ID),
		slog.Int("attempt", env.Attempts),
		slog.Duration("delay", delay),
		slog.String("error", herr.Error()),
	)
	return true, w.queue.retryAt(persist, *env, w.queue.now().Add(delay))
}
