package redisstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

var base = time.Unix(1_700_000_000, 0)

func refreshToken(id, hash, family string) store.RefreshToken {
	return store.RefreshToken{
		ID:        id,
		TokenHash: hash,
		UserID:    "u1",
		FamilyID:  family,
		ExpiresAt: base.Add(time.Hour),
		CreatedAt: base,
	}
}

func TestTokenStoreRotation(t *testing.T) {
	rdb, _ := newTestClient(t)
	s := NewTokenStore(rdb, "")
	ctx := context.Background()

	require.NoError(t, s.CreateRefreshToken(ctx, refreshToken("t1", "h1", "t1")))
	assert.ErrorIs(t, s.CreateRefreshToken(ctx, refreshToken("t1", "h1", "t1")), store.ErrConflict)

	found, err := s.FindRefreshToken(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "u1", found.UserID)
	assert.True(t, found.ExpiresAt.Equal(base.Add(time.Hour)))
	assert.True(t, found.Valid(base))

	require.NoError(t, s.RotateRefreshToken(ctx, "h1", refreshToken("t2", "h2", "t1"), base))

	old, err := s.FindRefreshToken(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "t2", old.ReplacedBy)
	assert.False(t, old.Valid(base))

	assert.ErrorIs(t, s.RotateRefreshToken(ctx, "h1", refreshToken("t3", "h3", "t1"), base), store.ErrConflict)
	assert.ErrorIs(t, s.RotateRefreshToken(ctx, "nope", refreshToken("t4", "h4", "t1"), base), store.ErrNotFound)

	_, err = s.FindRefreshToken(ctx, "h3")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTokenStoreRotateRejectsExpired(t *testing.T) {
	rdb, _ := newTestClient(t)
	s := NewTokenStore(rdb, "")
	ctx := context.Background()

	require.NoError(t, s.CreateRefreshToken(ctx, refreshToken("t1", "h1", "t1")))
	err := s.RotateRefreshToken(ctx, "h1", refreshToken("t2", "h2", "t1"), base.Add(time.Hour))
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestTokenStoreConcurrentRotationSingleWinner(t *testing.T) {
	rdb, _ := newTestClient(t)
	s := NewTokenStore(rdb, "")
	ctx := context.Background()
	require.NoError(t, s.CreateRefreshToken(ctx, refreshToken("t1", "h1", "t1")))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			if s.RotateRefreshToken(ctx, "h1", refreshToken(id, "succ-"+id, "t1"), base) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestTokenStoreRevocation(t *testing.T) {
	rdb, _ := newTestClient(t)
	s := NewTokenStore(rdb, "")
	ctx := context.Background()

	require.NoError(t, s.CreateRefreshToken(ctx, refreshToken("a1", "ha1", "a1")))
	require.NoError(t, s.RotateRefreshToken(ctx, "ha1", refreshToken("a2", "ha2", "a1"), base))
	require.NoError(t, s.CreateRefreshToken(ctx, refreshToken("b1", "hb1", "b1")))

	n, err := s.RevokeRefreshTokenFamily(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	b, err := s.FindRefreshToken(ctx, "hb1")
	require.NoError(t, err)
	assert.True(t, b.Valid(base))

	n, err = s.RevokeUserRefreshTokens(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.RevokeUserRefreshTokens(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.NoError(t, s.RevokeRefreshToken(ctx, "hb1"))
	assert.ErrorIs(t, s.RevokeRefreshToken(ctx, "missing"), store.ErrNotFound)
}

func TestTokenStoreCreateWritesWholeRecord(t *testing.T) {
	rdb, mr := newTestClient(t)
	s := NewTokenStore(rdb, "x")
	ctx := context.Background()

	require.NoError(t, s.CreateRefreshToken(ctx, refreshToken("t1", "h1", "t1")))
	assert.Positive(t, mr.TTL("x:rt:h1"))
	assert.Positive(t, mr.TTL("x:rtu:u1"))
	assert.Positive(t, mr.TTL("x:rtf:t1"))

	dup := refreshToken("t9", "h1", "t9")
	dup.UserID = "u9"
	assert.ErrorIs(t, s.CreateRefreshToken(ctx, dup), store.ErrConflict)

	found, err := s.FindRefreshToken(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "t1", found.ID)
	assert.Equal(t, "u1", found.UserID)
	assert.Equal(t, "t1", found.FamilyID)
	assert.False(t, mr.Exists("x:rtu:u9"))
	assert.False(t, mr.Exists("x:rtf:t9"))
}

func TestTokenStoreKeysExpire(t *testing.T) {
	rdb, mr := newTestClient(t)
	s := NewTokenStore(rdb, "x")
	ctx := context.Background()

	require.NoError(t, s.CreateRefreshToken(ctx, refreshToken("t1", "h1", "t1")))
	assert.True(t, mr.Exists("x:rt:h1"))

	mr.FastForward(time.Hour + defaultRetention + time.Second)
	assert.False(t, mr.Exists("x:rt:h1"))
}

func oneTimeCode(id, identifier, hash string) store.OneTimeCode {
	return store.OneTimeCode{
		ID:         id,
		Kind:       store.CodeEmailVerification,
		Identifier: identifier,
		CodeHash:   hash,
		UserID:     "u1",
		ExpiresAt:  base.Add(15 * time.Minute),
		CreatedAt:  base,
	}
}

func TestCodeStoreReplacesPrevious(t *testing.T) {
	rdb, _ := newTestClient(t)
	s := NewCodeStore(rdb, "")
	ctx := context.Background()

	require.NoError(t, s.CreateCode(ctx, oneTimeCode("c1", "a@x.com", "h1")))
	require.NoError(t, s.CreateCode(ctx, oneTimeCode("c2", "a@x.com", "h2")))

	_, err := s.FindCode(ctx, store.CodeEmailVerification, "a@x.com", "h1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.FindCode(ctx, store.CodeEmailVerification, "", "h1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	code, err := s.FindCode(ctx, store.CodeEmailVerification, "a@x.com", "h2")
	require.NoError(t, err)
	assert.Equal(t, "c2", code.ID)
	assert.Equal(t, "u1", code.UserID)

	byHash, err := s.FindCode(ctx, store.CodeEmailVerification, "", "h2")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", byHash.Identifier)

	assert.ErrorIs(t, s.ConsumeCode(ctx, store.CodeEmailVerification, "c1"), store.ErrNotFound)
}

func TestCodeStoreAttemptsAndConsume(t *testing.T) {
	rdb, _ := newTestClient(t)
	s := NewCodeStore(rdb, "")
	ctx := context.Background()

	_, err := s.IncrementFailedAttempts(ctx, store.CodeEmailVerification, "a@x.com")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.CreateCode(ctx, oneTimeCode("c1", "a@x.com", "h1")))
	n, err := s.IncrementFailedAttempts(ctx, store.CodeEmailVerification, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.IncrementFailedAttempts(ctx, store.CodeEmailVerification, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	code, err := s.FindCode(ctx, store.CodeEmailVerification, "a@x.com", "h1")
	require.NoError(t, err)
	assert.Equal(t, 2, code.FailedAttempts)

	require.NoError(t, s.ConsumeCode(ctx, store.CodeEmailVerification, "c1"))
	assert.ErrorIs(t, s.ConsumeCode(ctx, store.CodeEmailVerification, "c1"), store.ErrNotFound)
	_, err = s.FindCode(ctx, store.CodeEmailVerification, "a@x.com", "h1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCodeStoreKindsAreIsolated(t *testing.T) {
	rdb, _ := newTestClient(t)
	s := NewCodeStore(rdb, "")
	ctx := context.Background()

	verify := oneTimeCode("c1", "a@x.com", "h1")
	reset := oneTimeCode("c2", "a@x.com", "h2")
	reset.Kind = store.CodeEmailReset
	require.NoError(t, s.CreateCode(ctx, verify))
	require.NoError(t, s.CreateCode(ctx, reset))

	require.NoError(t, s.InvalidateCodes(ctx, store.CodeEmailReset, "a@x.com"))

	_, err := s.FindCode(ctx, store.CodeEmailVerification, "a@x.com", "h1")
	assert.NoError(t, err)
	_, err = s.FindCode(ctx, store.CodeEmailReset, "a@x.com", "h2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCodeStoreSessionBinding(t *testing.T) {
	rdb, _ := newTestClient(t)
	s := NewCodeStore(rdb, "")
	ctx := context.Background()

	link := oneTimeCode("m1", "a@x.com", "hm")
	link.Kind = store.CodeMagicLink
	link.SessionTokenHash = "session-hash"
	require.NoError(t, s.CreateCode(ctx, link))

	found, err := s.FindCode(ctx, store.CodeMagicLink, "", "hm")
	require.NoError(t, err)
	assert.Equal(t, "session-hash", found.SessionTokenHash)
	assert.True(t, found.ExpiresAt.Equal(link.ExpiresAt))
}
