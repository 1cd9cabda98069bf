package delivery

import (
	"context"
	"log/slog"
)

// Mode reports how a job left the dispatcher.
type Mode uint8

const (
	ModeSync Mode = iota + 1
	ModeQueued
)

// Dispatcher routes jobs to the senders directly or through a queue.
type Dispatcher struct {
	email  EmailSender
	sms    SMSSender
	queue  JobQueue
	logger *slog.Logger
}

func NewDispatcher(email EmailSender, sms SMSSender, queue JobQueue, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{email: email, sms: sms, queue: queue, logger: logger}
}

// CanEmail reports whether an email sender is configured.
func (d *Dispatcher) CanEmail() bool { return d != nil && d.email != nil }

// CanSMS reports whether an SMS sender is configured.
func (d *Dispatcher) CanSMS() bool { return d != nil && d.sms != nil }

// CanQueue reports whether a job queue is configured.
func (d *Dispatcher) CanQueue() bool { return d != nil && d.queue != nil }

// Dispatch sends job now, or enqueues it with maxRetries when async is set.
func (d *Dispatcher) Dispatch(ctx context.Context, job Job, async bool, maxRetries int) (Mode, error) {
	if !async {
		if err := Deliver(ctx, job, d.email, d.sms); err != nil {
			d.logger.WarnContext(ctx, "delivery failed",
				"purpose", job.Purpose.String(),
				"medium", job.Medium.String(),
				"error", err,
			)
			return ModeSync, err
		}
		return ModeSync, nil
	}

	if d.queue == nil {
		return ModeQueued, ErrNoQueue
	}
	payload, err := Encode(job)
	if err != nil {
		return ModeQueued, err
	}
	if err := d.queue.Enqueue(ctx, JobKind, payload, maxRetries); err != nil {
		d.logger.WarnContext(ctx, "delivery enqueue failed",
			"purpose", job.Purpose.String(),
			"medium", job.Medium.String(),
			"error", err,
		)
		return ModeQueued, err
	}
	return ModeQueued, nil
}
