package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-market-auth/app/entity"
)

type ActiveTokenRepository struct {
	db DBTX
}

func NewActiveTokenRepository(db DBTX) *ActiveTokenRepository {
	return &ActiveTokenRepository{db: db}
}

func (r *ActiveTokenRepository) Create(ctx context.Context, token *entity.ActiveToken) error {
	query := `
		INSERT INTO active_tokens (token, user_id, token_type, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		token.Token,
		token.UserID,
		string(token.Kind),
		token.ExpiresAt.UTC(),
		token.CreatedAt.UTC(),
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	token.ID = uint64(id)
	return nil
}

func (r *ActiveTokenRepository) FindByTokenAndKind(ctx context.Context, token string, kind entity.TokenKind) (*entity.ActiveToken, error) {
	query := `
		SELECT id, token, user_id, token_type, expires_at, created_at
		FROM active_tokens WHERE token = ? AND token_type = ?
	`
	row := r.db.QueryRowContext(ctx, query, token, string(kind))
	t, err := scanActiveToken(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// DeleteByToken returns the number of rows removed so callers can detect a lost race.
func (r *ActiveTokenRepository) DeleteByToken(ctx context.Context, token string) (int64, error) {
	query := `DELETE FROM active_tokens WHERE token = ?`
	result, err := r.db.ExecContext(ctx, query, token)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *ActiveTokenRepository) FindExpired(ctx context.Context, now time.Time, limit int) ([]*entity.ActiveToken, error) {
	query := `
		SELECT id, token, user_id, token_type, expires_at, created_at
		FROM active_tokens WHERE expires_at <= ?
		ORDER BY expires_at
		LIMIT ?
	`
	return r.queryTokens(ctx, query, now.UTC(), limit)
}

func (r *ActiveTokenRepository) ListByUserID(ctx context.Context, userID uint64) ([]*entity.ActiveToken, error) {
	query := `
		SELECT id, token, user_id, token_type, expires_at, created_at
		FROM active_tokens WHERE user_id = ?
		ORDER BY id
	`
	return r.queryTokens(ctx, query, userID)
}

func (r *ActiveTokenRepository) DeleteByUserID(ctx context.Context, userID uint64) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM active_tokens WHERE user_id = ?`, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *ActiveTokenRepository) queryTokens(ctx context.Context, query string, args ...any) ([]*entity.ActiveToken, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []*entity.ActiveToken
	for rows.Next() {
		t, err := scanActiveToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tokens, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanActiveToken(s scanner) (*entity.ActiveToken, error) {
	var kind string
	t := &entity.ActiveToken{}
	if err := s.Scan(&t.ID, &t.Token, &t.UserID, &kind, &t.ExpiresAt, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.Kind = entity.TokenKind(kind)
	t.ExpiresAt = t.ExpiresAt.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}
