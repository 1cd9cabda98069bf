// Package queue is a Redis-backed job queue for asynchronous delivery.
//
// Jobs are JSON envelopes in a ready list. A Worker pops them, paces sends
// with a token bucket and retries failures with exponential backoff through a
// delayed sorted set. Jobs that run out of retries, or fail permanently, land
// in a dead-letter list.
package queue
