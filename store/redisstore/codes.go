package redisstore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/authcore/store"
	"github.com/redis/go-redis/v9"
)

// incrementAttemptsLua
// KEYS[1] = live code key
var incrementAttemptsLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
return redis.call('HINCRBY', KEYS[1], 'failed', 1)
`)

// consumeCodeLua deletes the live code only when it still carries the id.
// KEYS[1] = live code key
// ARGV[1] = code id
var consumeCodeLua = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'id') == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return 1
end
return 0
`)

// CodeStore keeps the single live code per (kind, identifier) as a hash.
// Secondary string keys map a code hash and a code id back to the
// identifier; they may outlive the code they point at and are always
// re-checked against the live record.
type CodeStore struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewCodeStore returns a CodeStore. An empty prefix selects "ac".
func NewCodeStore(client redis.UniversalClient, prefix string) *CodeStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &CodeStore{
		redis:     client,
		prefix:    prefix,
		retention: time.Hour,
	}
}

func (s *CodeStore) liveKey(kind store.CodeKind, identifier string) string {
	return s.prefix + ":otc:" + kind.String() + ":" + identifier
}

func (s *CodeStore) hashKey(kind store.CodeKind, codeHash string) string {
	return s.prefix + ":otch:" + kind.String() + ":" + codeHash
}

func (s *CodeStore) idKey(kind store.CodeKind, codeID string) string {
	return s.prefix + ":otci:" + kind.String() + ":" + codeID
}

func (s *CodeStore) CreateCode(ctx context.Context, code store.OneTimeCode) error {
	key := s.liveKey(code.Kind, code.Identifier)
	ttl := ttlFor(code.CreatedAt, code.ExpiresAt, s.retention)

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, codeFields(code))
		pipe.PExpire(ctx, key, ttl)
		pipe.Set(ctx, s.hashKey(code.Kind, code.CodeHash), code.Identifier, ttl)
		pipe.Set(ctx, s.idKey(code.Kind, code.ID), code.Identifier, ttl)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *CodeStore) FindCode(ctx context.Context, kind store.CodeKind, identifier, codeHash string) (store.OneTimeCode, error) {
	if identifier == "" {
		resolved, err := s.redis.Get(ctx, s.hashKey(kind, codeHash)).Result()
		if errors.Is(err, redis.Nil) {
			return store.OneTimeCode{}, store.ErrNotFound
		}
		if err != nil {
			return store.OneTimeCode{}, unavailable(err)
		}
		identifier = resolved
	}

	fields, err := s.redis.HGetAll(ctx, s.liveKey(kind, identifier)).Result()
	if err != nil {
		return store.OneTimeCode{}, unavailable(err)
	}
	if len(fields) == 0 || fields["hash"] != codeHash {
		return store.OneTimeCode{}, store.ErrNotFound
	}
	return decodeCode(kind, identifier, fields), nil
}

func (s *CodeStore) IncrementFailedAttempts(ctx context.Context, kind store.CodeKind, identifier string) (int, error) {
	n, err := incrementAttemptsLua.Run(ctx, s.redis, []string{s.liveKey(kind, identifier)}).Int64()
	if err != nil {
		return 0, unavailable(err)
	}
	if n < 0 {
		return 0, store.ErrNotFound
	}
	return int(n), nil
}

func (s *CodeStore) ConsumeCode(ctx context.Context, kind store.CodeKind, codeID string) error {
	identifier, err := s.redis.Get(ctx, s.idKey(kind, codeID)).Result()
	if errors.Is(err, redis.Nil) {
		return store.ErrNotFound
	}
	if err != nil {
		return unavailable(err)
	}

	won, err := consumeCodeLua.Run(ctx, s.redis, []string{s.liveKey(kind, identifier)}, codeID).Int64()
	if err != nil {
		return unavailable(err)
	}
	if won == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *CodeStore) InvalidateCodes(ctx context.Context, kind store.CodeKind, identifier string) error {
	if err := s.redis.Del(ctx, s.liveKey(kind, identifier)).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func codeFields(c store.OneTimeCode) map[string]any {
	return map[string]any{
		"id":         c.ID,
		"hash":       c.CodeHash,
		"user_id":    c.UserID,
		"expires_at": millis(c.ExpiresAt),
		"created_at": millis(c.CreatedAt),
		"failed":     strconv.Itoa(c.FailedAttempts),
		"session":    c.SessionTokenHash,
	}
}

func decodeCode(kind store.CodeKind, identifier string, f map[string]string) store.OneTimeCode {
	failed, _ := strconv.Atoi(f["failed"])
	return store.OneTimeCode{
		ID:               f["id"],
		Kind:             kind,
		Identifier:       identifier,
		CodeHash:         f["hash"],
		UserID:           f["user_id"],
		ExpiresAt:        parseMillis(f["expires_at"]),
		CreatedAt:        parseMillis(f["created_at"]),
		FailedAttempts:   failed,
		SessionTokenHash: f["session"],
	}
}
