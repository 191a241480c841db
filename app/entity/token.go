package entity

import "time"

type TokenKind string

const (
	TokenKindAccess      TokenKind = "access"
	TokenKindRefresh     TokenKind = "refresh"
	TokenKindEmailVerify TokenKind = "email_verify"
)

func (k TokenKind) Valid() bool {
	switch k {
	case TokenKindAccess, TokenKindRefresh, TokenKindEmailVerify:
		return true
	}
	return false
}

// ActiveToken is an issued credential that has been neither consumed nor expired.
type ActiveToken struct {
	ID        uint64
	Token     string
	UserID    uint64
	Kind      TokenKind
	ExpiresAt time.Time
	CreatedAt time.Time
}

// ExpiredAt reports whether the token is past its expiry at now. Both sides are compared in UTC.
func (t *ActiveToken) ExpiredAt(now time.Time) bool {
	return !t.ExpiresAt.UTC().After(now.UTC())
}

// BlacklistedToken is a token string that must never validate again.
type BlacklistedToken struct {
	ID            uint64
	Token         string
	BlacklistedAt time.Time
}
