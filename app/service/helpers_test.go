package service_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"golang.org/x/crypto/bcrypt"

	"github.com/vibast-solutions/ms-go-market-auth/app/entity"
	"github.com/vibast-solutions/ms-go-market-auth/app/service"
	"github.com/vibast-solutions/ms-go-market-auth/app/token"
	"github.com/vibast-solutions/ms-go-market-auth/config"
)

const (
	blacklistExistsQuery     = `SELECT EXISTS\(SELECT 1 FROM blacklisted_tokens WHERE token = \?\)`
	blacklistInsertQuery     = `INSERT IGNORE INTO blacklisted_tokens \(token, blacklisted_at\) VALUES \(\?, \?\)`
	blacklistAllForUserQuery = `(?s)INSERT IGNORE INTO blacklisted_tokens \(token, blacklisted_at\) SELECT token, \? FROM active_tokens WHERE user_id = \?`
	findActiveTokenQuery     = `(?s)SELECT id, token, user_id, token_type, expires_at, created_at FROM active_tokens WHERE token = \? AND token_type = \?`
	insertActiveTokenQuery   = `(?s)INSERT INTO active_tokens \(token, user_id, token_type, expires_at, created_at\) VALUES \(\?, \?, \?, \?, \?\)`
	deleteActiveTokenQuery   = `DELETE FROM active_tokens WHERE token = \?`
	deleteUserTokensQuery    = `DELETE FROM active_tokens WHERE user_id = \?`
	findExpiredTokensQuery   = `(?s)SELECT id, token, user_id, token_type, expires_at, created_at FROM active_tokens WHERE expires_at <= \? ORDER BY expires_at LIMIT \?`
	findUserByIDQuery        = `(?s)SELECT u\.id, .* WHERE u\.id = \?$`
	findUserByEmailQuery     = `(?s)SELECT u\.id, .* WHERE u\.email = \?$`
	findUserByEmailOrName    = `(?s)SELECT u\.id, .* WHERE u\.email = \? OR u\.username = \?`
	listRolePermissionsQuery = `(?s)SELECT p\.name FROM permissions p`
	insertUserQuery          = `(?s)INSERT INTO users \(email, username, password_hash, is_active, is_superadmin, role_id, created_at, updated_at\)`
	activateUserQuery        = `UPDATE users SET is_active = TRUE, updated_at = \? WHERE id = \?`
	updatePasswordQuery      = `UPDATE users SET password_hash = \?, updated_at = \? WHERE id = \?`
)

var (
	fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	userColumns = []string{
		"id",
		"email",
		"username",
		"password_hash",
		"is_active",
		"is_superadmin",
		"role_id",
		"name",
		"created_at",
		"updated_at",
	}
	activeTokenColumns = []string{"id", "token", "user_id", "token_type", "expires_at", "created_at"}
	permissionColumns  = []string{"name"}
)

type publishedEvent struct {
	Subject string
	Type    string
	Data    any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, subject, eventType string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{Subject: subject, Type: eventType, Data: data})
	return nil
}

func (p *recordingPublisher) Events() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedEvent(nil), p.events...)
}

func newTestConfig() *config.Config {
	return &config.Config{
		FrontendURL: "https://market.test",
		DefaultRole: "user",
		JWT: config.JWTConfig{
			AccessSecret:      "access-secret",
			RefreshSecret:     "refresh-secret",
			EmailVerifySecret: "verify-secret",
			Algorithm:         "HS256",
			AccessTokenTTL:    time.Hour,
			RefreshTokenTTL:   24 * time.Hour,
			EmailVerifyTTL:    time.Hour,
		},
		Password: config.PasswordConfig{
			Policy: config.PasswordPolicy{
				MinLength:        8,
				MaxLength:        16,
				RequireUppercase: true,
				RequireLowercase: true,
				RequireNumber:    true,
				RequireSpecial:   true,
			},
			HashCost: bcrypt.MinCost,
		},
		NATS: config.NATSConfig{
			UserEventsSubject:  "user_events",
			EmailEventsSubject: "email_events",
		},
	}
}

type fixture struct {
	db        *sql.DB
	mock      sqlmock.Sqlmock
	cfg       *config.Config
	codec     *token.Codec
	events    *recordingPublisher
	lifecycle *service.TokenLifecycle
	auth      *service.UserAuthService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfg := newTestConfig()
	clock := func() time.Time { return fixedNow }
	codec, err := token.NewCodec(token.Secrets{
		Access:      cfg.JWT.AccessSecret,
		Refresh:     cfg.JWT.RefreshSecret,
		EmailVerify: cfg.JWT.EmailVerifySecret,
	}, cfg.JWT.Algorithm, token.WithClock(clock))
	if err != nil {
		t.Fatalf("failed to create codec: %v", err)
	}

	events := &recordingPublisher{}
	lifecycle := service.NewTokenLifecycle(db, codec, events, cfg, service.WithClock(clock))
	auth := service.NewUserAuthService(db, lifecycle, events, cfg)

	return &fixture{
		db:        db,
		mock:      mock,
		cfg:       cfg,
		codec:     codec,
		events:    events,
		lifecycle: lifecycle,
		auth:      auth,
	}
}

func (f *fixture) encode(t *testing.T, kind entity.TokenKind, userID uint64, purpose token.Purpose) string {
	t.Helper()
	raw, err := f.codec.Encode(kind, userID, "user@example.com", fixedNow, fixedNow.Add(time.Hour), purpose)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	return raw
}

func (f *fixture) verify(t *testing.T) {
	t.Helper()
	if err := f.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// expectActive sets up the blacklist miss and active-set hit for raw.
func (f *fixture) expectActive(raw string, kind entity.TokenKind, userID uint64, expiresAt time.Time) {
	f.mock.ExpectQuery(blacklistExistsQuery).
		WithArgs(raw).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	f.mock.ExpectQuery(findActiveTokenQuery).
		WithArgs(raw, string(kind)).
		WillReturnRows(sqlmock.NewRows(activeTokenColumns).
			AddRow(uint64(1), raw, userID, string(kind), expiresAt, fixedNow))
}

func (f *fixture) expectBlacklisted(raw string) {
	f.mock.ExpectQuery(blacklistExistsQuery).
		WithArgs(raw).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
}

func (f *fixture) expectRetire(raw string, deleted int64) {
	f.mock.ExpectExec(deleteActiveTokenQuery).WithArgs(raw).WillReturnResult(sqlmock.NewResult(0, deleted))
	f.mock.ExpectExec(blacklistInsertQuery).WithArgs(raw, fixedNow).WillReturnResult(sqlmock.NewResult(0, deleted))
}

func (f *fixture) expectUserByID(id uint64, email, username, hash string, active bool, role string, permissions ...string) {
	f.mock.ExpectQuery(findUserByIDQuery).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow(id, email, username, hash, active, false, uint64(4), role, fixedNow, fixedNow))
	rows := sqlmock.NewRows(permissionColumns)
	for _, p := range permissions {
		rows.AddRow(p)
	}
	f.mock.ExpectQuery(listRolePermissionsQuery).WithArgs(uint64(4)).WillReturnRows(rows)
}

func (f *fixture) expectUserByEmail(id uint64, email, username, hash string, active bool) {
	f.mock.ExpectQuery(findUserByEmailQuery).
		WithArgs(email).
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow(id, email, username, hash, active, false, uint64(4), "user", fixedNow, fixedNow))
	f.mock.ExpectQuery(listRolePermissionsQuery).
		WithArgs(uint64(4)).
		WillReturnRows(sqlmock.NewRows(permissionColumns).AddRow("create_listing"))
}

func (f *fixture) expectIssue(userID uint64, kind entity.TokenKind, ttl time.Duration) {
	f.mock.ExpectExec(insertActiveTokenQuery).
		WithArgs(sqlmock.AnyArg(), userID, string(kind), fixedNow.Add(ttl), fixedNow).
		WillReturnResult(sqlmock.NewResult(2, 1))
}
