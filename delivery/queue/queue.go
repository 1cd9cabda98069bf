package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "acq"

var ErrQueueUnavailable = errors.New("job queue redis unavailable")

// Envelope is the stored form of a job.
type Envelope struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Payload    []byte    `json:"payload"`
	Attempts   int       `json:"attempts"`
	MaxRetries int       `json:"max_retries"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	LastError  string    `json:"last_error,omitempty"`
}

// promoteDueLua moves delayed jobs whose score is <= ARGV[1] onto the ready
// list, at most ARGV[2] per call.
// KEYS[1] = delayed zset, KEYS[2] = ready list
var promoteDueLua = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, member in ipairs(due) do
  redis.call('ZREM', KEYS[1], member)
  redis.call('LPUSH', KEYS[2], member)
end
return #due
`)

// Queue implements delivery.JobQueue over a Redis list.
type Queue struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

func New(client redis.UniversalClient, prefix string) *Queue {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Queue{
		redis:   client,
		prefix:  prefix,
		now:     time.Now,
		entropy: ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0),
	}
}

func (q *Queue) readyKey() string   { return q.prefix + ":ready" }
func (q *Queue) delayedKey() string { return q.prefix + ":delayed" }
func (q *Queue) deadKey() string    { return q.prefix + ":dead" }

func (q *Queue) newID() string {
	q.entropyMu.Lock()
	defer q.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(q.now()), q.entropy).String()
}

// Enqueue appends a job to the ready list.
func (q *Queue) Enqueue(ctx context.Context, kind string, payload []byte, maxRetries int) error {
	if kind == "" {
		return errors.New("job kind is required")
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	env := Envelope{
		ID:         q.newID(),
		Kind:       kind,
		Payload:    payload,
		MaxRetries: maxRetries,
		EnqueuedAt: q.now().UTC(),
	}
	encoded, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := q.redis.LPush(ctx, q.readyKey(), encoded).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	return nil
}

// Len reports the number of ready, delayed and dead jobs.
func (q *Queue) Len(ctx context.Context) (ready, delayed, dead int64, err error) {
	pipe := q.redis.Pipeline()
	r := pipe.LLen(ctx, q.readyKey())
	d := pipe.ZCard(ctx, q.delayedKey())
	x := pipe.LLen(ctx, q.deadKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, 0, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	return r.Val(), d.Val(), x.Val(), nil
}

// Dead returns up to limit dead-lettered envelopes, newest first.
func (q *Queue) Dead(ctx context.Context, limit int64) ([]Envelope, error) {
	raw, err := q.redis.LRange(ctx, q.deadKey(), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	out := make([]Envelope, 0, len(raw))
	for _, item := range raw {
		var env Envelope
		if err := json.Unmarshal([]byte(item), &env); err != nil {
			continue
		}
		out = append(out, env)
	}
	return out, nil
}

// pop takes the oldest ready job. wait > 0 blocks up to wait; otherwise it
// returns immediately. A nil envelope means the list was empty.
func (q *Queue) pop(ctx context.Context, wait time.Duration) (*Envelope, error) {
	var raw string
	if wait > 0 {
		res, err := q.redis.BRPop(ctx, wait, q.readyKey()).Result()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
		}
		raw = res[1]
	} else {
		res, err := q.redis.RPop(ctx, q.readyKey()).Result()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
		}
		raw = res
	}

	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		// Unreadable entries go straight to the dead list.
		err = fmt.Errorf("decode envelope: %w", err)
		if pushErr := q.redis.LPush(context.WithoutCancel(ctx), q.deadKey(), raw).Err(); pushErr != nil {
			err = errors.Join(err, fmt.Errorf("%w: dead-letter undecodable entry: %v", ErrQueueUnavailable, pushErr))
		}
		return nil, err
	}
	return &env, nil
}

func (q *Queue) promoteDue(ctx context.Context, limit int) (int64, error) {
	n, err := promoteDueLua.Run(ctx, q.redis,
		[]string{q.delayedKey(), q.readyKey()},
		q.now().UnixMilli(),
		limit,
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	return n, nil
}

func (q *Queue) retryAt(ctx context.Context, env Envelope, at time.Time) error {
	encoded, err := json.Marshal(env)
	if err != nil {
		return err
	}
	err = q.redis.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(at.UnixMilli()), Member: encoded}).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	return nil
}

func (q *Queue) bury(ctx context.Context, env Envelope) error {
	encoded, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := q.redis.LPush(ctx, q.deadKey(), encoded).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	return nil
}
