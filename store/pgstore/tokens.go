package pgstore

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/MrEthical07/authcore/store"
	"github.com/georgysavva/scany/v2/sqlscan"
)

var tokenColumns = []string{
	"id", "token_hash", "user_id", "family_id", "expires_at", "revoked", "replaced_by", "created_at",
}

type tokenRow struct {
	ID         string    `db:"id"`
	TokenHash  string    `db:"token_hash"`
	UserID     string    `db:"user_id"`
	FamilyID   string    `db:"family_id"`
	ExpiresAt  time.Time `db:"expires_at"`
	Revoked    bool      `db:"revoked"`
	ReplacedBy string    `db:"replaced_by"`
	CreatedAt  time.Time `db:"created_at"`
}

// TokenStore is a PostgreSQL store.TokenStore.
type TokenStore struct {
	db *sql.DB
}

func NewTokenStore(db *sql.DB) *TokenStore {
	return &TokenStore{db: db}
}

func insertToken(t store.RefreshToken) sq.InsertBuilder {
	return psql.Insert(tokensTable).
		Columns(tokenColumns...).
		Values(t.ID, t.TokenHash, t.UserID, t.FamilyID, t.ExpiresAt, t.Revoked, t.ReplacedBy, t.CreatedAt)
}

func (s *TokenStore) CreateRefreshToken(ctx context.Context, token store.RefreshToken) error {
	if _, err := exec(ctx, s.db, insertToken(token)); err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *TokenStore) FindRefreshToken(ctx context.Context, tokenHash string) (store.RefreshToken, error) {
	query, args, err := psql.Select(tokenColumns...).From(tokensTable).
		Where(sq.Eq{"token_hash": tokenHash}).Limit(1).ToSql()
	if err != nil {
		return store.RefreshToken{}, err
	}

	var row tokenRow
	if err := sqlscan.Get(ctx, s.db, &row, query, args...); err != nil {
		if sqlscan.NotFound(err) {
			return store.RefreshToken{}, store.ErrNotFound
		}
		return store.RefreshToken{}, err
	}
	return store.RefreshToken{
		ID:         row.ID,
		TokenHash:  row.TokenHash,
		UserID:     row.UserID,
		FamilyID:   row.FamilyID,
		ExpiresAt:  row.ExpiresAt,
		Revoked:    row.Revoked,
		ReplacedBy: row.ReplacedBy,
		CreatedAt:  row.CreatedAt,
	}, nil
}

func (s *TokenStore) RotateRefreshToken(ctx context.Context, presentedHash string, successor store.RefreshToken, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	n, err := exec(ctx, tx, psql.Update(tokensTable).
		Set("replaced_by", successor.ID).
		Set("revoked", true).
		Where(sq.Eq{"token_hash": presentedHash, "revoked": false, "replaced_by": ""}).
		Where(sq.Gt{"expires_at": now}))
	if err != nil {
		return rollback(tx, err)
	}
	if n == 0 {
		return rollback(tx, s.missingOrConflict(ctx, tx, presentedHash))
	}

	if _, err := exec(ctx, tx, insertToken(successor)); err != nil {
		if isUniqueViolation(err) {
			err = store.ErrConflict
		}
		return rollback(tx, err)
	}
	return tx.Commit()
}

func (s *TokenStore) missingOrConflict(ctx context.Context, tx *sql.Tx, tokenHash string) error {
	query, args, err := psql.Select("1").From(tokensTable).Where(sq.Eq{"token_hash": tokenHash}).ToSql()
	if err != nil {
		return err
	}
	var one int
	if err := sqlscan.Get(ctx, tx, &one, query, args...); err != nil {
		if sqlscan.NotFound(err) {
			return store.ErrNotFound
		}
		return err
	}
	return store.ErrConflict
}

func (s *TokenStore) RevokeUserRefreshTokens(ctx context.Context, userID string) (int, error) {
	n, err := exec(ctx, s.db, psql.Update(tokensTable).Set("revoked", true).
		Where(sq.Eq{"user_id": userID, "revoked": false}))
	return int(n), err
}

func (s *TokenStore) RevokeRefreshTokenFamily(ctx context.Context, familyID string) (int, error) {
	n, err := exec(ctx, s.db, psql.Update(tokensTable).Set("revoked", true).
		Where(sq.Eq{"family_id": familyID, "revoked": false}))
	return int(n), err
}

func (s *TokenStore) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	n, err := exec(ctx, s.db, psql.Update(tokensTable).Set("revoked", true).
		Where(sq.Eq{"token_hash": tokenHash}))
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
