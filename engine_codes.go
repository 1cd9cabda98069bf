package authcore

import (
	"context"
	"fmt"

	"github.com/MrEthical07/authcore/delivery"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/store"
)

func (e *Engine) requestCode(ctx context.Context, req flows.CodeRequest) (string, OneTimeCode, error) {
	plaintext, code, err := flows.RequestCode(ctx, req, e.flows.Codes)
	if err != nil {
		return "", OneTimeCode{}, storeError(err, nil)
	}
	e.metricInc(MetricCodeIssued)
	return plaintext, code, nil
}

// verifyCode runs the code engine and maps its failures onto the engine's
// sentinels.
func (e *Engine) verifyCode(
	ctx context.Context,
	req flows.CodeVerification,
	onSuccess func(context.Context, store.OneTimeCode) error,
) (OneTimeCode, error) {
	res := flows.VerifyCode(ctx, req, e.flows.Codes, onSuccess)
	switch res.Failure {
	case flows.CodeFailureNone:
		e.metricInc(MetricCodeVerified)
		return res.Code, nil
	case flows.CodeFailureInvalid:
		e.metricInc(MetricCodeInvalid)
		return OneTimeCode{}, ErrInvalidCode
	case flows.CodeFailureExpired:
		e.metricInc(MetricCodeExpired)
		return OneTimeCode{}, ErrCodeExpired
	case flows.CodeFailureExhausted:
		e.metricInc(MetricCodeAttemptsExceeded)
		return OneTimeCode{}, ErrMaxAttemptsExceeded
	case flows.CodeFailureAction, flows.CodeFailureRejected:
		return res.Code, res.Err
	default:
		return OneTimeCode{}, storeError(res.Err, nil)
	}
}

// dispatch hands a job to the delivery layer. The code is already
// persisted, so a failure here never rolls it back.
func (e *Engine) dispatch(ctx context.Context, job delivery.Job, async bool, maxRetries int) error {
	mode, err := e.delivery.Dispatch(ctx, job, async, maxRetries)
	if err != nil {
		e.metricInc(MetricDeliveryFailure)
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	if mode == delivery.ModeQueued {
		e.metricInc(MetricDeliveryQueued)
	} else {
		e.metricInc(MetricDeliverySync)
	}
	return nil
}
