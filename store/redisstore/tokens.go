package redisstore

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/store"
	"github.com/redis/go-redis/v9"
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusInvalid  int64 = 1
	rotateStatusRotated  int64 = 2
	rotateStatusTaken    int64 = 3
)

// createRefreshLua
// KEYS[1] = token key
// KEYS[2] = user index, KEYS[3] = family index
// ARGV[1..8] = id, hash, user id, family id, expires_at, created_at, revoked, replaced_by
// ARGV[9] = ttl (ms)
var createRefreshLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1],
  'id', ARGV[1], 'hash', ARGV[2], 'user_id', ARGV[3], 'family_id', ARGV[4],
  'expires_at', ARGV[5], 'created_at', ARGV[6], 'revoked', ARGV[7], 'replaced_by', ARGV[8])
redis.call('PEXPIRE', KEYS[1], ARGV[9])
redis.call('SADD', KEYS[2], ARGV[2])
redis.call('PEXPIRE', KEYS[2], ARGV[9])
redis.call('SADD', KEYS[3], ARGV[2])
redis.call('PEXPIRE', KEYS[3], ARGV[9])
return 1
`)

// rotateRefreshLua
// KEYS[1] = presented token key
// KEYS[2] = successor token key
// KEYS[3] = user index, KEYS[4] = family index
// ARGV[1] = now (ms)
// ARGV[2..8] = successor id, hash, user id, family id, expires_at, created_at, ttl (ms)
var rotateRefreshLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
local f = redis.call('HMGET', KEYS[1], 'revoked', 'replaced_by', 'expires_at')
if f[1] == '1' then
  return 1
end
if f[2] and f[2] ~= '' then
  return 1
end
if tonumber(f[3]) <= tonumber(ARGV[1]) then
  return 1
end
if redis.call('EXISTS', KEYS[2]) == 1 then
  return 3
end
redis.call('HSET', KEYS[1], 'replaced_by', ARGV[2], 'revoked', '1')
redis.call('HSET', KEYS[2],
  'id', ARGV[2], 'hash', ARGV[3], 'user_id', ARGV[4], 'family_id', ARGV[5],
  'expires_at', ARGV[6], 'created_at', ARGV[7], 'revoked', '0', 'replaced_by', '')
redis.call('PEXPIRE', KEYS[2], ARGV[8])
redis.call('SADD', KEYS[3], ARGV[3])
redis.call('PEXPIRE', KEYS[3], ARGV[8])
redis.call('SADD', KEYS[4], ARGV[3])
redis.call('PEXPIRE', KEYS[4], ARGV[8])
return 2
`)

// revokeIndexLua revokes every token listed in an index set.
// KEYS[1] = index set
// ARGV[1] = token key prefix
var revokeIndexLua = redis.NewScript(`
local n = 0
local members = redis.call('SMEMBERS', KEYS[1])
for _, hash in ipairs(members) do
  local key = ARGV[1] .. hash
  local revoked = redis.call('HGET', key, 'revoked')
  if revoked == false then
    redis.call('SREM', KEYS[1], hash)
  elseif revoked ~= '1' then
    redis.call('HSET', key, 'revoked', '1')
    n = n + 1
  end
end
return n
`)

// revokeOneLua
// KEYS[1] = token key
var revokeOneLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], 'revoked', '1')
return 1
`)

// TokenStore keeps refresh tokens as hashes keyed by token hash, with set
// indexes per user and per family.
type TokenStore struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewTokenStore returns a TokenStore. An empty prefix selects "ac".
func NewTokenStore(client redis.UniversalClient, prefix string) *TokenStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &TokenStore{
		redis:     client,
		prefix:    prefix,
		retention: defaultRetention,
	}
}

func (s *TokenStore) tokenPrefix() string { return s.prefix + ":rt:" }

func (s *TokenStore) tokenKey(hash string) string { return s.tokenPrefix() + hash }

func (s *TokenStore) userKey(userID string) string { return s.prefix + ":rtu:" + userID }

func (s *TokenStore) familyKey(familyID string) string { return s.prefix + ":rtf:" + familyID }

func (s *TokenStore) CreateRefreshToken(ctx context.Context, token store.RefreshToken) error {
	ttl := ttlFor(token.CreatedAt, token.ExpiresAt, s.retention)

	created, err := createRefreshLua.Run(ctx, s.redis,
		[]string{
			s.tokenKey(token.TokenHash),
			s.userKey(token.UserID),
			s.familyKey(token.FamilyID),
		},
		token.ID,
		token.TokenHash,
		token.UserID,
		token.FamilyID,
		millis(token.ExpiresAt),
		millis(token.CreatedAt),
		boolField(token.Revoked),
		token.ReplacedBy,
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return unavailable(err)
	}
	if created == 0 {
		return store.ErrConflict
	}
	return nil
}

func (s *TokenStore) FindRefreshToken(ctx context.Context, tokenHash string) (store.RefreshToken, error) {
	fields, err := s.redis.HGetAll(ctx, s.tokenKey(tokenHash)).Result()
	if err != nil {
		return store.RefreshToken{}, unavailable(err)
	}
	if len(fields) == 0 {
		return store.RefreshToken{}, store.ErrNotFound
	}
	return decodeToken(tokenHash, fields), nil
}

func (s *TokenStore) RotateRefreshToken(ctx context.Context, presentedHash string, successor store.RefreshToken, now time.Time) error {
	ttl := ttlFor(successor.CreatedAt, successor.ExpiresAt, s.retention)

	status, err := rotateRefreshLua.Run(ctx, s.redis,
		[]string{
			s.tokenKey(presentedHash),
			s.tokenKey(successor.TokenHash),
			s.userKey(successor.UserID),
			s.familyKey(successor.FamilyID),
		},
		now.UnixMilli(),
		successor.ID,
		successor.TokenHash,
		successor.UserID,
		successor.FamilyID,
		millis(successor.ExpiresAt),
		millis(successor.CreatedAt),
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return unavailable(err)
	}

	switch status {
	case rotateStatusRotated:
		return nil
	case rotateStatusNotFound:
		return store.ErrNotFound
	default:
		return store.ErrConflict
	}
}

func (s *TokenStore) RevokeUserRefreshTokens(ctx context.Context, userID string) (int, error) {
	return s.revokeIndex(ctx, s.userKey(userID))
}

func (s *TokenStore) RevokeRefreshTokenFamily(ctx context.Context, familyID string) (int, error) {
	return s.revokeIndex(ctx, s.familyKey(familyID))
}

func (s *TokenStore) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	existed, err := revokeOneLua.Run(ctx, s.redis, []string{s.tokenKey(tokenHash)}).Int64()
	if err != nil {
		return unavailable(err)
	}
	if existed == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *TokenStore) revokeIndex(ctx context.Context, indexKey string) (int, error) {
	n, err := revokeIndexLua.Run(ctx, s.redis, []string{indexKey}, s.tokenPrefix()).Int64()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}

func decodeToken(hash string, f map[string]string) store.RefreshToken {
	return store.RefreshToken{
		ID:         f["id"],
		TokenHash:  hash,
		UserID:     f["user_id"],
		FamilyID:   f["family_id"],
		ExpiresAt:  parseMillis(f["expires_at"]),
		CreatedAt:  parseMillis(f["created_at"]),
		Revoked:    f["revoked"] == "1",
		ReplacedBy: f["replaced_by"],
	}
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
