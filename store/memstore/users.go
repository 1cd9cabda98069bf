package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/authcore/store"
	"github.com/google/uuid"
)

// UserStore keeps users in a map keyed by id with a secondary identifier index.
type UserStore struct {
	mu      sync.Mutex
	users   map[string]store.UserRecord
	byIdent map[store.Identifier]string
	now     func() time.Time
}

func NewUserStore() *UserStore {
	return &UserStore{
		users:   make(map[string]store.UserRecord),
		byIdent: make(map[store.Identifier]string),
		now:     time.Now,
	}
}

func (s *UserStore) Create(ctx context.Context, identifier store.Identifier, credential *store.Credential) (store.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return store.UserRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byIdent[identifier]; ok {
		return store.UserRecord{}, store.ErrDuplicate
	}

	user := store.UserRecord{
		UserID:    uuid.NewString(),
		CreatedAt: s.now().Unix(),
	}
	applyIdentifier(&user, identifier)
	if credential != nil && credential.Kind == store.CredentialPassword {
		user.PasswordHash = credential.Secret
	}

	s.users[user.UserID] = user
	s.byIdent[identifier] = user.UserID
	return cloneUser(user), nil
}

func (s *UserStore) CreateWithEmail(ctx context.Context, email string, verified bool) (store.UserRecord, error) {
	user, err := s.Create(ctx, store.EmailIdentifier(email), nil)
	if err != nil || !verified {
		return user, err
	}
	if err := s.MarkEmailVerified(ctx, user.UserID); err != nil {
		return store.UserRecord{}, err
	}
	user.EmailVerified = true
	return user, nil
}

func (s *UserStore) CreateWithPhone(ctx context.Context, phone string, verified bool) (store.UserRecord, error) {
	user, err := s.Create(ctx, store.PhoneIdentifier(phone), nil)
	if err != nil || !verified {
		return user, err
	}
	if err := s.MarkPhoneVerified(ctx, user.UserID); err != nil {
		return store.UserRecord{}, err
	}
	user.PhoneVerified = true
	return user, nil
}

func (s *UserStore) FindByID(ctx context.Context, userID string) (store.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return store.UserRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return store.UserRecord{}, store.ErrNotFound
	}
	return cloneUser(user), nil
}

func (s *UserStore) FindByIdentifier(ctx context.Context, identifier store.Identifier) (store.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return store.UserRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byIdent[identifier]
	if !ok {
		return store.UserRecord{}, store.ErrNotFound
	}
	return cloneUser(s.users[id]), nil
}

func (s *UserStore) MarkEmailVerified(ctx context.Context, userID string) error {
	return s.update(ctx, userID, func(u *store.UserRecord) error {
		u.EmailVerified = true
		return nil
	})
}

func (s *UserStore) MarkPhoneVerified(ctx context.Context, userID string) error {
	return s.update(ctx, userID, func(u *store.UserRecord) error {
		u.PhoneVerified = true
		return nil
	})
}

func (s *UserStore) SetPassword(ctx context.Context, userID string, passwordHash string) error {
	return s.update(ctx, userID, func(u *store.UserRecord) error {
		u.PasswordHash = passwordHash
		return nil
	})
}

// LinkIdentifier binds identifier to userID. Linking an identifier the user
// already owns is a no-op.
func (s *UserStore) LinkIdentifier(ctx context.Context, userID string, identifier store.Identifier) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	if owner, taken := s.byIdent[identifier]; taken {
		if owner == userID {
			return nil
		}
		return store.ErrDuplicate
	}

	applyIdentifier(&user, identifier)
	s.users[userID] = user
	s.byIdent[identifier] = userID
	return nil
}

func (s *UserStore) update(ctx context.Context, userID string, fn func(*store.UserRecord) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	if err := fn(&user); err != nil {
		return err
	}
	s.users[userID] = user
	return nil
}

func applyIdentifier(user *store.UserRecord, identifier store.Identifier) {
	switch identifier.Kind {
	case store.IdentifierEmail:
		user.Email = identifier.Value
	case store.IdentifierPhone:
		user.Phone = identifier.Value
	case store.IdentifierUsername:
		user.Username = identifier.Value
	case store.IdentifierFederated:
		user.Federated = append(user.Federated, identifier)
	}
}

func cloneUser(u store.UserRecord) store.UserRecord {
	if u.Federated != nil {
		u.Federated = append([]store.Identifier(nil), u.Federated...)
	}
	return u
}
