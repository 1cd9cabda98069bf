package memstore

import (
	"context"
	"sync"

	"github.com/MrEthical07/authcore/store"
)

type codeKey struct {
	kind       store.CodeKind
	identifier string
}

// CodeStore keeps the live code per (kind, identifier). Invalidated codes
// are dropped; nothing else ever reads them.
type CodeStore struct {
	mu   sync.Mutex
	live map[codeKey]store.OneTimeCode
}

func NewCodeStore() *CodeStore {
	return &CodeStore{live: make(map[codeKey]store.OneTimeCode)}
}

func (s *CodeStore) CreateCode(ctx context.Context, code store.OneTimeCode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.live[codeKey{code.Kind, code.Identifier}] = code
	return nil
}

func (s *CodeStore) FindCode(ctx context.Context, kind store.CodeKind, identifier, codeHash string) (store.OneTimeCode, error) {
	if err := ctx.Err(); err != nil {
		return store.OneTimeCode{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if identifier != "" {
		code, ok := s.live[codeKey{kind, identifier}]
		if !ok || code.CodeHash != codeHash {
			return store.OneTimeCode{}, store.ErrNotFound
		}
		return code, nil
	}

	for key, code := range s.live {
		if key.kind == kind && code.CodeHash == codeHash {
			return code, nil
		}
	}
	return store.OneTimeCode{}, store.ErrNotFound
}

func (s *CodeStore) IncrementFailedAttempts(ctx context.Context, kind store.CodeKind, identifier string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := codeKey{kind, identifier}
	code, ok := s.live[key]
	if !ok {
		return 0, store.ErrNotFound
	}
	code.FailedAttempts++
	s.live[key] = code
	return code.FailedAttempts, nil
}

func (s *CodeStore) ConsumeCode(ctx context.Context, kind store.CodeKind, codeID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, code := range s.live {
		if key.kind == kind && code.ID == codeID {
			delete(s.live, key)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *CodeStore) InvalidateCodes(ctx context.Context, kind store.CodeKind, identifier string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.live, codeKey{kind, identifier})
	return nil
}
