package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/authcore/store"
)

// TokenStore keeps refresh tokens keyed by hash.
type TokenStore struct {
	mu     sync.Mutex
	tokens map[string]store.RefreshToken
}

func NewTokenStore() *TokenStore {
	return &TokenStore{tokens: make(map[string]store.RefreshToken)}
}

func (s *TokenStore) CreateRefreshToken(ctx context.Context, token store.RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[token.TokenHash]; exists {
		return store.ErrConflict
	}
	s.tokens[token.TokenHash] = token
	return nil
}

func (s *TokenStore) FindRefreshToken(ctx context.Context, tokenHash string) (store.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return store.RefreshToken{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[tokenHash]
	if !ok {
		return store.RefreshToken{}, store.ErrNotFound
	}
	return token, nil
}

func (s *TokenStore) RotateRefreshToken(ctx context.Context, presentedHash string, successor store.RefreshToken, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.tokens[presentedHash]
	if !ok {
		return store.ErrNotFound
	}
	if !current.Valid(now) {
		return store.ErrConflict
	}
	if _, exists := s.tokens[successor.TokenHash]; exists {
		return store.ErrConflict
	}

	current.ReplacedBy = successor.ID
	current.Revoked = true
	s.tokens[presentedHash] = current
	s.tokens[successor.TokenHash] = successor
	return nil
}

func (s *TokenStore) RevokeUserRefreshTokens(ctx context.Context, userID string) (int, error) {
	return s.revokeWhere(ctx, func(t store.RefreshToken) bool { return t.UserID == userID })
}

func (s *TokenStore) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[tokenHash]
	if !ok {
		return store.ErrNotFound
	}
	token.Revoked = true
	s.tokens[tokenHash] = token
	return nil
}

func (s *TokenStore) RevokeRefreshTokenFamily(ctx context.Context, familyID string) (int, error) {
	return s.revokeWhere(ctx, func(t store.RefreshToken) bool { return t.FamilyID == familyID })
}

// Len returns the number of stored tokens, live or not.
func (s *TokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

func (s *TokenStore) revokeWhere(ctx context.Context, match func(store.RefreshToken) bool) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for hash, token := range s.tokens {
		if token.Revoked || !match(token) {
			continue
		}
		token.Revoked = true
		s.tokens[hash] = token
		n++
	}
	return n, nil
}
