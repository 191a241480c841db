// Package token encodes and decodes the signed credentials handed to clients.
//
// Each token kind is signed with its own secret, so a token minted for one kind
// never decodes under another. Decoding never panics and never returns a bare
// error: callers switch on Result.Outcome.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vibast-solutions/ms-go-market-auth/app/entity"
)

var (
	ErrMalformedCredential = errors.New("malformed credential")
	ErrExpiredCredential   = errors.New("expired credential")
	ErrUnknownKind         = errors.New("unknown token kind")
	ErrTokenTooLong        = errors.New("encoded token exceeds storage width")
)

// MaxEncodedLength is the width of the token columns in active_tokens and
// blacklisted_tokens.
const MaxEncodedLength = 1024

// Purpose distinguishes the flows that share the email-verify kind.
type Purpose string

const (
	PurposeNone          Purpose = ""
	PurposeRegistration  Purpose = "registration"
	PurposePasswordReset Purpose = "password_reset"
)

type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeExpired
	OutcomeInvalid
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeExpired:
		return "expired"
	default:
		return "invalid"
	}
}

type Claims struct {
	ID        string
	UserID    uint64
	Email     string
	Purpose   Purpose
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type Result struct {
	Outcome Outcome
	Claims  *Claims
	Cause   error
}

// Err is nil for OutcomeOK.
func (r Result) Err() error {
	switch r.Outcome {
	case OutcomeOK:
		return nil
	case OutcomeExpired:
		return ErrExpiredCredential
	default:
		if r.Cause != nil {
			return fmt.Errorf("%w: %s", ErrMalformedCredential, r.Cause.Error())
		}
		return ErrMalformedCredential
	}
}

type Secrets struct {
	Access      string
	Refresh     string
	EmailVerify string
}

type claims struct {
	Email   string  `json:"email"`
	Purpose Purpose `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}

type Codec struct {
	secrets map[entity.TokenKind][]byte
	method  jwt.SigningMethod
	now     func() time.Time
}

type Option func(*Codec)

func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCodec(secrets Secrets, algorithm string, opts ...Option) (*Codec, error) {
	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", algorithm)
	}
	if secrets.Access == "" || secrets.Refresh == "" || secrets.EmailVerify == "" {
		return nil, errors.New("all token secrets are required")
	}

	c := &Codec{
		secrets: map[entity.TokenKind][]byte{
			entity.TokenKindAccess:      []byte(secrets.Access),
			entity.TokenKindRefresh:     []byte(secrets.Refresh),
			entity.TokenKindEmailVerify: []byte(secrets.EmailVerify),
		},
		method: method,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Codec) Encode(kind entity.TokenKind, userID uint64, email string, issuedAt, expiresAt time.Time, purpose Purpose) (string, error) {
	secret, ok := c.secrets[kind]
	if !ok {
		return "", ErrUnknownKind
	}
	if userID == 0 {
		return "", errors.New("subject id must be positive")
	}

	tok := jwt.NewWithClaims(c.method, claims{
		Email:   email,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatUint(userID, 10),
			IssuedAt:  jwt.NewNumericDate(issuedAt.UTC()),
			ExpiresAt: jwt.NewNumericDate(expiresAt.UTC()),
		},
	})
	raw, err := tok.SignedString(secret)
	if err != nil {
		return "", err
	}
	if len(raw) > MaxEncodedLength {
		return "", fmt.Errorf("%w: %d bytes", ErrTokenTooLong, len(raw))
	}
	return raw, nil
}

func (c *Codec) Decode(kind entity.TokenKind, tokenString string) Result {
	secret, ok := c.secrets[kind]
	if !ok {
		return Result{Outcome: OutcomeInvalid, Cause: ErrUnknownKind}
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)

	parsed := &claims{}
	_, err := parser.ParseWithClaims(tokenString, parsed, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Result{Outcome: OutcomeExpired, Cause: err}
	case err != nil:
		return Result{Outcome: OutcomeInvalid, Cause: err}
	}

	if parsed.Subject == "" {
		return Result{Outcome: OutcomeInvalid, Cause: errors.New("subject is missing")}
	}
	userID, err := strconv.ParseUint(parsed.Subject, 10, 64)
	if err != nil || userID == 0 {
		return Result{Outcome: OutcomeInvalid, Cause: fmt.Errorf("subject %q is not a positive integer", parsed.Subject)}
	}

	out := &Claims{
		ID:      parsed.ID,
		UserID:  userID,
		Email:   parsed.Email,
		Purpose: parsed.Purpose,
	}
	if parsed.IssuedAt != nil {
		out.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	if parsed.ExpiresAt != nil {
		out.ExpiresAt = parsed.ExpiresAt.Time.UTC()
	}
	return Result{Outcome: OutcomeOK, Claims: out}
}
