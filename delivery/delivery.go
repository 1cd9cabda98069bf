package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// JobKind is the queue kind every delivery job is enqueued under.
const JobKind = "authcore.delivery"

var (
	ErrNoEmailSender   = errors.New("email sender not configured")
	ErrNoSMSSender     = errors.New("sms sender not configured")
	ErrNoQueue         = errors.New("job queue not configured")
	ErrUnsupportedJob  = errors.New("unsupported delivery job")
	ErrInvalidJobInput = errors.New("invalid delivery job payload")
)

// Purpose says which flow produced the message.
type Purpose uint8

const (
	PurposeVerification Purpose = iota + 1
	PurposePasswordReset
	PurposeMagicLink
)

func (p Purpose) String() string {
	switch p {
	case PurposeVerification:
		return "verification"
	case PurposePasswordReset:
		return "password_reset"
	case PurposeMagicLink:
		return "magic_link"
	default:
		return "unknown"
	}
}

// Medium is the channel a job goes out on.
type Medium uint8

const (
	MediumEmail Medium = iota + 1
	MediumSMS
)

func (m Medium) String() string {
	switch m {
	case MediumEmail:
		return "email"
	case MediumSMS:
		return "sms"
	default:
		return "unknown"
	}
}

// Job is one outbound message. Code holds the numeric code or, for magic
// links, Link holds the full URL.
type Job struct {
	Purpose   Purpose   `json:"purpose"`
	Medium    Medium    `json:"medium"`
	To        string    `json:"to"`
	Code      string    `json:"code,omitempty"`
	Link      string    `json:"link,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// EmailSender sends the three email templates.
type EmailSender interface {
	SendVerificationEmail(ctx context.Context, to, code string) error
	SendPasswordResetEmail(ctx context.Context, to, code string) error
	SendMagicLinkEmail(ctx context.Context, to, link string) error
}

// SMSSender sends the two SMS templates.
type SMSSender interface {
	SendVerificationSMS(ctx context.Context, to, code string) error
	SendPasswordResetSMS(ctx context.Context, to, code string) error
}

// JobQueue accepts serialized jobs for asynchronous processing.
type JobQueue interface {
	Enqueue(ctx context.Context, kind string, payload []byte, maxRetries int) error
}

// Encode serializes job for a JobQueue.
func Encode(job Job) ([]byte, error) {
	return json.Marshal(job)
}

// Decode is the inverse of Encode.
func Decode(payload []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return Job{}, fmt.Errorf("%w: %v", ErrInvalidJobInput, err)
	}
	if job.To == "" || job.Medium == 0 || job.Purpose == 0 {
		return Job{}, ErrInvalidJobInput
	}
	return job, nil
}

// Deliver sends job through the sender matching its medium.
func Deliver(ctx context.Context, job Job, email EmailSender, sms SMSSender) error {
	switch job.Medium {
	case MediumEmail:
		if email == nil {
			return ErrNoEmailSender
		}
		switch job.Purpose {
		case PurposeVerification:
			return email.SendVerificationEmail(ctx, job.To, job.Code)
		case PurposePasswordReset:
			return email.SendPasswordResetEmail(ctx, job.To, job.Code)
		case PurposeMagicLink:
			return email.SendMagicLinkEmail(ctx, job.To, job.Link)
		}
	case MediumSMS:
		if sms == nil {
			return ErrNoSMSSender
		}
		switch job.Purpose {
		case PurposeVerification:
			return sms.SendVerificationSMS(ctx, job.To, job.Code)
		case PurposePasswordReset:
			return sms.SendPasswordResetSMS(ctx, job.To, job.Code)
		}
	}
	return fmt.Errorf("%w: %s via %s", ErrUnsupportedJob, job.Purpose, job.Medium)
}
