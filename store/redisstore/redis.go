package redisstore

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	defaultPrefix = "ac"

	// Expired records are kept this long past their expiry so that late
	// presentations are still recognised.
	defaultRetention = 24 * time.Hour
)

// ErrRedisUnavailable wraps transport and script failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
}

func millis(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func ttlFor(createdAt, expiresAt time.Time, retention time.Duration) time.Duration {
	ttl := expiresAt.Sub(createdAt) + retention
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}
