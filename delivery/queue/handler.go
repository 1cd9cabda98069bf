package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore/delivery"
)

// DeliveryHandler sends delivery jobs through the configured senders.
type DeliveryHandler struct {
	Email delivery.EmailSender
	SMS   delivery.SMSSender
}

func (h DeliveryHandler) Handle(ctx context.Context, kind string, payload []byte) error {
	if kind != delivery.JobKind {
		return Permanent(fmt.Errorf("%w: kind %q", delivery.ErrUnsupportedJob, kind))
	}
	job, err := delivery.Decode(payload)
	if err != nil {
		return Permanent(err)
	}
	err = delivery.Deliver(ctx, job, h.Email, h.SMS)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, delivery.ErrUnsupportedJob),
		errors.Is(err, delivery.ErrNoEmailSender),
		errors.Is(err, delivery.ErrNoSMSSender):
		return Permanent(err)
	default:
		return err
	}
}
