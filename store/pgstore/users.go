package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/MrEthical07/authcore/store"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/google/uuid"
)

var userColumns = []string{
	"id", "email", "email_verified", "phone", "phone_verified", "username",
	"password_hash", "anonymous", "display_name", "picture_url", "created_at",
}

type userRow struct {
	ID            string         `db:"id"`
	Email         sql.NullString `db:"email"`
	EmailVerified bool           `db:"email_verified"`
	Phone         sql.NullString `db:"phone"`
	PhoneVerified bool           `db:"phone_verified"`
	Username      sql.NullString `db:"username"`
	PasswordHash  string         `db:"password_hash"`
	Anonymous     bool           `db:"anonymous"`
	DisplayName   string         `db:"display_name"`
	PictureURL    string         `db:"picture_url"`
	CreatedAt     int64          `db:"created_at"`
}

func (r userRow) record() store.UserRecord {
	return store.UserRecord{
		UserID:        r.ID,
		Email:         r.Email.String,
		EmailVerified: r.EmailVerified,
		Phone:         r.Phone.String,
		PhoneVerified: r.PhoneVerified,
		Username:      r.Username.String,
		PasswordHash:  r.PasswordHash,
		Anonymous:     r.Anonymous,
		DisplayName:   r.DisplayName,
		PictureURL:    r.PictureURL,
		CreatedAt:     r.CreatedAt,
	}
}

type federatedRow struct {
	Provider string `db:"provider"`
	Subject  string `db:"subject"`
}

// UserStore is a PostgreSQL store.UserStore.
type UserStore struct {
	db    *sql.DB
	now   func() time.Time
	newID func() string
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db, now: time.Now, newID: uuid.NewString}
}

func (s *UserStore) Create(ctx context.Context, identifier store.Identifier, credential *store.Credential) (store.UserRecord, error) {
	hash := ""
	if credential != nil && credential.Kind == store.CredentialPassword {
		hash = credential.Secret
	}
	return s.create(ctx, identifier, hash, false)
}

func (s *UserStore) CreateWithEmail(ctx context.Context, email string, verified bool) (store.UserRecord, error) {
	return s.create(ctx, store.EmailIdentifier(email), "", verified)
}

func (s *UserStore) CreateWithPhone(ctx context.Context, phone string, verified bool) (store.UserRecord, error) {
	return s.create(ctx, store.PhoneIdentifier(phone), "", verified)
}

func (s *UserStore) create(ctx context.Context, identifier store.Identifier, passwordHash string, verified bool) (store.UserRecord, error) {
	if identifier.IsZero() {
		return store.UserRecord{}, errors.New("pgstore: empty identifier")
	}

	user := store.UserRecord{
		UserID:       s.newID(),
		PasswordHash: passwordHash,
		CreatedAt:    s.now().Unix(),
	}

	insert := psql.Insert(usersTable).
		Columns("id", "password_hash", "created_at").
		Values(user.UserID, user.PasswordHash, user.CreatedAt)

	switch identifier.Kind {
	case store.IdentifierEmail:
		user.Email, user.EmailVerified = identifier.Value, verified
		insert = psql.Insert(usersTable).
			Columns("id", "email", "email_verified", "password_hash", "created_at").
			Values(user.UserID, user.Email, verified, user.PasswordHash, user.CreatedAt)
	case store.IdentifierPhone:
		user.Phone, user.PhoneVerified = identifier.Value, verified
		insert = psql.Insert(usersTable).
			Columns("id", "phone", "phone_verified", "password_hash", "created_at").
			Values(user.UserID, user.Phone, verified, user.PasswordHash, user.CreatedAt)
	case store.IdentifierUsername:
		user.Username = identifier.Value
		insert = psql.Insert(usersTable).
			Columns("id", "username", "password_hash", "created_at").
			Values(user.UserID, user.Username, user.PasswordHash, user.CreatedAt)
	case store.IdentifierFederated:
		user.Federated = []store.Identifier{identifier}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.UserRecord{}, err
	}
	if _, err := exec(ctx, tx, insert); err != nil {
		if isUniqueViolation(err) {
			err = store.ErrDuplicate
		}
		return store.UserRecord{}, rollback(tx, err)
	}
	if identifier.Kind == store.IdentifierFederated {
		if _, err := exec(ctx, tx, insertFederated(user.UserID, identifier, user.CreatedAt)); err != nil {
			if isUniqueViolation(err) {
				err = store.ErrDuplicate
			}
			return store.UserRecord{}, rollback(tx, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return store.UserRecord{}, err
	}
	return user, nil
}

func (s *UserStore) FindByID(ctx context.Context, userID string) (store.UserRecord, error) {
	return s.findOne(ctx, sq.Eq{"id": userID})
}

func (s *UserStore) FindByIdentifier(ctx context.Context, identifier store.Identifier) (store.UserRecord, error) {
	switch identifier.Kind {
	case store.IdentifierEmail:
		return s.findOne(ctx, sq.Eq{"email": identifier.Value})
	case store.IdentifierPhone:
		return s.findOne(ctx, sq.Eq{"phone": identifier.Value})
	case store.IdentifierUsername:
		return s.findOne(ctx, sq.Eq{"username": identifier.Value})
	case store.IdentifierFederated:
		sub := sq.Select("user_id").From(federatedTable).
			Where(sq.Eq{"provider": identifier.Provider, "subject": identifier.Value})
		subQuery, subArgs, err := sub.ToSql()
		if err != nil {
			return store.UserRecord{}, err
		}
		return s.findOne(ctx, sq.Expr("id = ("+subQuery+")", subArgs...))
	default:
		return store.UserRecord{}, store.ErrNotFound
	}
}

func (s *UserStore) findOne(ctx context.Context, where sq.Sqlizer) (store.UserRecord, error) {
	query, args, err := psql.Select(userColumns...).From(usersTable).Where(where).Limit(1).ToSql()
	if err != nil {
		return store.UserRecord{}, err
	}

	var row userRow
	if err := sqlscan.Get(ctx, s.db, &row, query, args...); err != nil {
		if sqlscan.NotFound(err) {
			return store.UserRecord{}, store.ErrNotFound
		}
		return store.UserRecord{}, err
	}
	user := row.record()

	query, args, err = psql.Select("provider", "subject").From(federatedTable).
		Where(sq.Eq{"user_id": user.UserID}).OrderBy("created_at").ToSql()
	if err != nil {
		return store.UserRecord{}, err
	}
	var linked []federatedRow
	if err := sqlscan.Select(ctx, s.db, &linked, query, args...); err != nil {
		return store.UserRecord{}, err
	}
	for _, f := range linked {
		user.Federated = append(user.Federated, store.FederatedIdentifier(f.Provider, f.Subject))
	}
	return user, nil
}

func (s *UserStore) MarkEmailVerified(ctx context.Context, userID string) error {
	return s.update(ctx, userID, map[string]any{"email_verified": true})
}

func (s *UserStore) MarkPhoneVerified(ctx context.Context, userID string) error {
	return s.update(ctx, userID, map[string]any{"phone_verified": true})
}

func (s *UserStore) SetPassword(ctx context.Context, userID string, passwordHash string) error {
	return s.update(ctx, userID, map[string]any{"password_hash": passwordHash})
}

// LinkIdentifier attaches identifier to userID. Email, phone and username
// replace the current value; federated identifiers accumulate. Linking an
// identifier the user already owns is a no-op.
func (s *UserStore) LinkIdentifier(ctx context.Context, userID string, identifier store.Identifier) error {
	switch identifier.Kind {
	case store.IdentifierEmail:
		return s.update(ctx, userID, map[string]any{"email": identifier.Value})
	case store.IdentifierPhone:
		return s.update(ctx, userID, map[string]any{"phone": identifier.Value})
	case store.IdentifierUsername:
		return s.update(ctx, userID, map[string]any{"username": identifier.Value})
	case store.IdentifierFederated:
		return s.linkFederated(ctx, userID, identifier)
	default:
		return errors.New("pgstore: unsupported identifier kind")
	}
}

func (s *UserStore) linkFederated(ctx context.Context, userID string, identifier store.Identifier) error {
	n, err := exec(ctx, s.db, insertFederated(userID, identifier, s.now().Unix()).
		Suffix("ON CONFLICT (provider, subject) DO NOTHING"))
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		return err
	}
	if n == 1 {
		return nil
	}

	query, args, err := psql.Select("user_id").From(federatedTable).
		Where(sq.Eq{"provider": identifier.Provider, "subject": identifier.Value}).ToSql()
	if err != nil {
		return err
	}
	var owner string
	if err := sqlscan.Get(ctx, s.db, &owner, query, args...); err != nil {
		return err
	}
	if owner != userID {
		return store.ErrDuplicate
	}
	return nil
}

func (s *UserStore) update(ctx context.Context, userID string, set map[string]any) error {
	n, err := exec(ctx, s.db, psql.Update(usersTable).SetMap(set).Where(sq.Eq{"id": userID}))
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func insertFederated(userID string, identifier store.Identifier, createdAt int64) sq.InsertBuilder {
	return psql.Insert(federatedTable).
		Columns("provider", "subject", "user_id", "created_at").
		Values(identifier.Provider, identifier.Value, userID, createdAt)
}
