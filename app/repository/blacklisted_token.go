package repository

import (
	"context"
	"time"
)

type BlacklistedTokenRepository struct {
	db DBTX
}

func NewBlacklistedTokenRepository(db DBTX) *BlacklistedTokenRepository {
	return &BlacklistedTokenRepository{db: db}
}

func (r *BlacklistedTokenRepository) Exists(ctx context.Context, token string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM blacklisted_tokens WHERE token = ?)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, token).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Add is idempotent: blacklisting an already blacklisted token is a no-op.
func (r *BlacklistedTokenRepository) Add(ctx context.Context, token string, at time.Time) error {
	query := `INSERT IGNORE INTO blacklisted_tokens (token, blacklisted_at) VALUES (?, ?)`
	_, err := r.db.ExecContext(ctx, query, token, at.UTC())
	return err
}

// AddAllForUser copies every active token of the user into the blacklist.
func (r *BlacklistedTokenRepository) AddAllForUser(ctx context.Context, userID uint64, at time.Time) (int64, error) {
	query := `
		INSERT IGNORE INTO blacklisted_tokens (token, blacklisted_at)
		SELECT token, ? FROM active_tokens WHERE user_id = ?
	`
	result, err := r.db.ExecContext(ctx, query, at.UTC(), userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
