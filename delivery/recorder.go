package delivery

import (
	"context"
	"sync"
)

// Recorder is an in-memory EmailSender, SMSSender and JobQueue that keeps
// every job it receives. It backs tests and local development.
type Recorder struct {
	mu     sync.Mutex
	jobs   []Job
	queued []QueuedJob
	Err    error
}

// QueuedJob is an Enqueue call captured by Recorder.
type QueuedJob struct {
	Kind       string
	Payload    []byte
	MaxRetries int
}

func (r *Recorder) record(job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.jobs = append(r.jobs, job)
	return nil
}

func (r *Recorder) SendVerificationEmail(_ context.Context, to, code string) error {
	return r.record(Job{Purpose: PurposeVerification, Medium: MediumEmail, To: to, Code: code})
}

func (r *Recorder) SendPasswordResetEmail(_ context.Context, to, code string) error {
	return r.record(Job{Purpose: PurposePasswordReset, Medium: MediumEmail, To: to, Code: code})
}

func (r *Recorder) SendMagicLinkEmail(_ context.Context, to, link string) error {
	return r.record(Job{Purpose: PurposeMagicLink, Medium: MediumEmail, To: to, Link: link})
}

func (r *Recorder) SendVerificationSMS(_ context.Context, to, code string) error {
	return r.record(Job{Purpose: PurposeVerification, Medium: MediumSMS, To: to, Code: code})
}

func (r *Recorder) SendPasswordResetSMS(_ context.Context, to, code string) error {
	return r.record(Job{Purpose: PurposePasswordReset, Medium: MediumSMS, To: to, Code: code})
}

func (r *Recorder) Enqueue(_ context.Context, kind string, payload []byte, maxRetries int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.queued = append(r.queued, QueuedJob{Kind: kind, Payload: append([]byte(nil), payload...), MaxRetries: maxRetries})
	return nil
}

// Jobs returns the jobs sent so far.
func (r *Recorder) Jobs() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Job(nil), r.jobs...)
}

// Queued returns the Enqueue calls so far.
func (r *Recorder) Queued() []QueuedJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]QueuedJob(nil), r.queued...)
}

// Last returns the most recent job and false when none was sent.
func (r *Recorder) Last() (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.jobs) == 0 {
		return Job{}, false
	}
	return r.jobs[len(r.jobs)-1], true
}
