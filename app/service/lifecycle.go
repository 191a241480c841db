package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-market-auth/app/entity"
	"github.com/vibast-solutions/ms-go-market-auth/app/event"
	"github.com/vibast-solutions/ms-go-market-auth/app/repository"
	"github.com/vibast-solutions/ms-go-market-auth/app/token"
	"github.com/vibast-solutions/ms-go-market-auth/config"
)

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

type tokenCodec interface {
	Encode(kind entity.TokenKind, userID uint64, email string, issuedAt, expiresAt time.Time, purpose token.Purpose) (string, error)
	Decode(kind entity.TokenKind, tokenString string) token.Result
}

// EventPublisher delivers events to the message bus. Publish returns once the
// message has been handed to the bus; delivery is not awaited.
type EventPublisher interface {
	Publish(ctx context.Context, subject, eventType string, data any) error
}

// RedeemFunc runs inside the transaction that consumes an email-verify token.
type RedeemFunc func(ctx context.Context, tx repository.DBTX, user *entity.User) error

type tokenState int

const (
	tokenUnknown tokenState = iota
	tokenBlacklisted
	tokenExpired
	tokenActive
)

type TokenLifecycle struct {
	db                *sql.DB
	codec             tokenCodec
	events            EventPublisher
	lifetimes         map[entity.TokenKind]time.Duration
	userEventsSubject string
	now               func() time.Time
}

type TokenLifecycleOption func(*TokenLifecycle)

func WithClock(now func() time.Time) TokenLifecycleOption {
	return func(l *TokenLifecycle) {
		if now != nil {
			l.now = now
		}
	}
}

func NewTokenLifecycle(db *sql.DB, codec tokenCodec, events EventPublisher, cfg *config.Config, opts ...TokenLifecycleOption) *TokenLifecycle {
	l := &TokenLifecycle{
		db:     db,
		codec:  codec,
		events: events,
		lifetimes: map[entity.TokenKind]time.Duration{
			entity.TokenKindAccess:      cfg.JWT.AccessTokenTTL,
			entity.TokenKindRefresh:     cfg.JWT.RefreshTokenTTL,
			entity.TokenKindEmailVerify: cfg.JWT.EmailVerifyTTL,
		},
		userEventsSubject: cfg.NATS.UserEventsSubject,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *TokenLifecycle) Now() time.Time {
	return l.now().UTC()
}

func (l *TokenLifecycle) Issue(ctx context.Context, kind entity.TokenKind, user *entity.User, purpose token.Purpose) (string, error) {
	var raw string
	err := repository.WithTx(ctx, l.db, func(ctx context.Context, tx repository.DBTX) error {
		var err error
		raw, err = l.IssueIn(ctx, tx, kind, user, purpose)
		return err
	})
	if err != nil {
		return "", err
	}
	return raw, nil
}

// IssueIn signs a token of the given kind and records it as active using q.
func (l *TokenLifecycle) IssueIn(ctx context.Context, q repository.DBTX, kind entity.TokenKind, user *entity.User, purpose token.Purpose) (string, error) {
	ttl, ok := l.lifetimes[kind]
	if !ok {
		return "", token.ErrUnknownKind
	}

	now := l.Now()
	expiresAt := now.Add(ttl)
	raw, err := l.codec.Encode(kind, user.ID, user.Email, now, expiresAt, purpose)
	if err != nil {
		return "", err
	}

	row := &entity.ActiveToken{
		Token:     raw,
		UserID:    user.ID,
		Kind:      kind,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	if err := repository.NewActiveTokenRepository(q).Create(ctx, row); err != nil {
		return "", err
	}
	return raw, nil
}

func (l *TokenLifecycle) IssuePair(ctx context.Context, user *entity.User) (*TokenPair, error) {
	var pair *TokenPair
	err := repository.WithTx(ctx, l.db, func(ctx context.Context, tx repository.DBTX) error {
		var err error
		pair, err = l.IssuePairIn(ctx, tx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

func (l *TokenLifecycle) IssuePairIn(ctx context.Context, q repository.DBTX, user *entity.User) (*TokenPair, error) {
	access, err := l.IssueIn(ctx, q, entity.TokenKindAccess, user, token.PurposeNone)
	if err != nil {
		return nil, err
	}
	refresh, err := l.IssueIn(ctx, q, entity.TokenKindRefresh, user, token.PurposeNone)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Validate checks a presented token against the blacklist and the active set.
// The returned row is not consumed.
func (l *TokenLifecycle) Validate(ctx context.Context, raw string, kind entity.TokenKind) (*entity.ActiveToken, error) {
	state, row, err := l.inspect(ctx, raw, kind)
	if err != nil {
		return nil, err
	}

	switch state {
	case tokenActive:
		return row, nil
	case tokenExpired:
		l.expire(ctx, row)
	}
	return nil, ErrCredentialRejected
}

// inspect is read-only.
func (l *TokenLifecycle) inspect(ctx context.Context, raw string, kind entity.TokenKind) (tokenState, *entity.ActiveToken, error) {
	blacklisted, err := repository.NewBlacklistedTokenRepository(l.db).Exists(ctx, raw)
	if err != nil {
		return tokenUnknown, nil, err
	}
	if blacklisted {
		return tokenBlacklisted, nil, nil
	}

	row, err := repository.NewActiveTokenRepository(l.db).FindByTokenAndKind(ctx, raw, kind)
	if err != nil {
		return tokenUnknown, nil, err
	}
	if row == nil {
		return tokenUnknown, nil, nil
	}
	if row.ExpiredAt(l.Now()) {
		return tokenExpired, row, nil
	}
	return tokenActive, row, nil
}

// expire moves an expired row to the blacklist. Failures are logged only: the
// caller rejects the token either way.
func (l *TokenLifecycle) expire(ctx context.Context, row *entity.ActiveToken) {
	err := repository.WithTx(ctx, l.db, func(ctx context.Context, tx repository.DBTX) error {
		_, err := l.retire(ctx, tx, row.Token)
		return err
	})
	if err != nil {
		logrus.WithError(err).
			WithField("user_id", row.UserID).
			WithField("token_type", row.Kind).
			Error("failed to blacklist expired token")
	}
}

// retire deletes the active row and blacklists the token string. It returns the
// number of active rows removed.
func (l *TokenLifecycle) retire(ctx context.Context, q repository.DBTX, raw string) (int64, error) {
	deleted, err := repository.NewActiveTokenRepository(q).DeleteByToken(ctx, raw)
	if err != nil {
		return 0, err
	}
	if err := repository.NewBlacklistedTokenRepository(q).Add(ctx, raw, l.Now()); err != nil {
		return 0, err
	}
	return deleted, nil
}

func (l *TokenLifecycle) DecodeAndValidate(ctx context.Context, raw string, kind entity.TokenKind) (*entity.ActiveToken, *token.Claims, error) {
	row, err := l.Validate(ctx, raw, kind)
	if err != nil {
		return nil, nil, err
	}

	res := l.codec.Decode(kind, raw)
	switch res.Outcome {
	case token.OutcomeOK:
	case token.OutcomeExpired:
		l.expire(ctx, row)
		return nil, nil, errors.Join(ErrCredentialRejected, res.Err())
	default:
		return nil, nil, errors.Join(ErrCredentialRejected, res.Err())
	}

	if res.Claims.UserID != row.UserID {
		return nil, nil, fmt.Errorf("%w: subject does not match token owner", ErrCredentialRejected)
	}
	return row, res.Claims, nil
}

func (l *TokenLifecycle) Consume(ctx context.Context, row *entity.ActiveToken) error {
	return repository.WithTx(ctx, l.db, func(ctx context.Context, tx repository.DBTX) error {
		return l.ConsumeIn(ctx, tx, row)
	})
}

// ConsumeIn fails with ErrCredentialRejected when another caller consumed the row first.
func (l *TokenLifecycle) ConsumeIn(ctx context.Context, q repository.DBTX, row *entity.ActiveToken) error {
	deleted, err := l.retire(ctx, q, row.Token)
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrCredentialRejected
	}
	return nil
}

func (l *TokenLifecycle) RotateRefresh(ctx context.Context, raw string) (*entity.User, *TokenPair, error) {
	row, claims, err := l.DecodeAndValidate(ctx, raw, entity.TokenKindRefresh)
	if err != nil {
		return nil, nil, err
	}

	var (
		user *entity.User
		pair *TokenPair
	)
	err = repository.WithTx(ctx, l.db, func(ctx context.Context, tx repository.DBTX) error {
		var err error
		user, err = repository.NewUserRepository(tx).FindByID(ctx, claims.UserID)
		if err != nil {
			return err
		}
		if user == nil || !user.IsActive {
			return ErrIdentityNotFound
		}
		if err = l.ConsumeIn(ctx, tx, row); err != nil {
			return err
		}
		pair, err = l.IssuePairIn(ctx, tx, user)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Redeem validates an email-verify token issued for purpose, consumes it and
// runs apply, all in one transaction.
func (l *TokenLifecycle) Redeem(ctx context.Context, raw string, purpose token.Purpose, apply RedeemFunc) (*entity.User, error) {
	row, claims, err := l.DecodeAndValidate(ctx, raw, entity.TokenKindEmailVerify)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != purpose {
		return nil, fmt.Errorf("%w: token was issued for %q", ErrCredentialRejected, claims.Purpose)
	}

	var user *entity.User
	err = repository.WithTx(ctx, l.db, func(ctx context.Context, tx repository.DBTX) error {
		var err error
		user, err = repository.NewUserRepository(tx).FindByID(ctx, claims.UserID)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrIdentityNotFound
		}
		if err = l.ConsumeIn(ctx, tx, row); err != nil {
			return err
		}
		if apply != nil {
			return apply(ctx, tx, user)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// VerifyEmail activates the token's owner. A user_created event is published
// only for a registration token that activated a previously inactive user.
func (l *TokenLifecycle) VerifyEmail(ctx context.Context, raw string, purpose token.Purpose) (*entity.User, error) {
	var wasActive bool
	user, err := l.Redeem(ctx, raw, purpose, func(ctx context.Context, tx repository.DBTX, user *entity.User) error {
		wasActive = user.IsActive
		if wasActive {
			return nil
		}
		if err := repository.NewUserRepository(tx).Activate(ctx, user.ID, l.Now()); err != nil {
			return err
		}
		user.IsActive = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if purpose == token.PurposeRegistration && !wasActive {
		l.publishUserCreated(ctx, user)
	}
	return user, nil
}

func (l *TokenLifecycle) publishUserCreated(ctx context.Context, user *entity.User) {
	if l.events == nil {
		return
	}
	err := l.events.Publish(ctx, l.userEventsSubject, event.TypeUserCreated, event.UserCreated{
		ID:           user.ID,
		Email:        user.Email,
		Username:     user.Username,
		IsSuperadmin: user.IsSuperadmin,
	})
	if err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Error("failed to publish user_created event")
	}
}

// RevokeAllIn blacklists and removes every active token of the user.
func (l *TokenLifecycle) RevokeAllIn(ctx context.Context, q repository.DBTX, userID uint64) (int64, error) {
	if _, err := repository.NewBlacklistedTokenRepository(q).AddAllForUser(ctx, userID, l.Now()); err != nil {
		return 0, err
	}
	return repository.NewActiveTokenRepository(q).DeleteByUserID(ctx, userID)
}

// SweepExpired retires expired active tokens in batches and returns how many were moved.
func (l *TokenLifecycle) SweepExpired(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = 500
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		rows, err := repository.NewActiveTokenRepository(l.db).FindExpired(ctx, l.Now(), batch)
		if err != nil {
			return total, err
		}
		if len(rows) == 0 {
			return total, nil
		}

		moved := 0
		err = repository.WithTx(ctx, l.db, func(ctx context.Context, tx repository.DBTX) error {
			for _, row := range rows {
				deleted, err := l.retire(ctx, tx, row.Token)
				if err != nil {
					return err
				}
				moved += int(deleted)
			}
			return nil
		})
		if err != nil {
			return total, err
		}
		total += moved

		if len(rows) < batch {
			return total, nil
		}
	}
}
