package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-market-auth/app/entity"
	"github.com/vibast-solutions/ms-go-market-auth/app/event"
	"github.com/vibast-solutions/ms-go-market-auth/app/repository"
	"github.com/vibast-solutions/ms-go-market-auth/app/token"
	"github.com/vibast-solutions/ms-go-market-auth/config"
)

const (
	RoleSuperadmin = "superadmin"

	verifyEmailSubject  = "Verify Your Account"
	restoreEmailSubject = "Request for changing password"
)

type UserAuthServiceOption func(*UserAuthService)

func WithHasher(hasher PasswordHasher) UserAuthServiceOption {
	return func(s *UserAuthService) {
		if hasher != nil {
			s.hasher = hasher
		}
	}
}

type UserAuthService struct {
	db        *sql.DB
	userRepo  *repository.UserRepository
	lifecycle *TokenLifecycle
	events    EventPublisher
	hasher    PasswordHasher
	cfg       *config.Config
}

func NewUserAuthService(
	db *sql.DB,
	lifecycle *TokenLifecycle,
	events EventPublisher,
	cfg *config.Config,
	opts ...UserAuthServiceOption,
) *UserAuthService {
	svc := &UserAuthService{
		db:        db,
		userRepo:  repository.NewUserRepository(db),
		lifecycle: lifecycle,
		events:    events,
		hasher:    NewBcryptHasher(cfg.Password.HashCost),
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Register creates an inactive user and mails a verification link.
func (s *UserAuthService) Register(ctx context.Context, email, password, username string) (*entity.User, error) {
	return s.register(ctx, email, password, username, s.cfg.DefaultRole, false)
}

// CreateSuperuser registers a user holding the superadmin role. The account still
// needs email verification before it can log in.
func (s *UserAuthService) CreateSuperuser(ctx context.Context, email, password, username string) (*entity.User, error) {
	return s.register(ctx, email, password, username, RoleSuperadmin, true)
}

// PromoteSuperuser grants the superadmin role to an existing user.
func (s *UserAuthService) PromoteSuperuser(ctx context.Context, email string) (*entity.User, error) {
	user, err := s.userRepo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrIdentityNotFound
	}
	if err = s.userRepo.SetSuperadmin(ctx, user.ID, RoleSuperadmin, s.lifecycle.Now()); err != nil {
		return nil, err
	}
	return s.userRepo.FindByID(ctx, user.ID)
}

func (s *UserAuthService) register(ctx context.Context, email, password, username, role string, superadmin bool) (*entity.User, error) {
	email = NormalizeEmail(email)
	username = strings.TrimSpace(username)
	if err := s.cfg.Password.Policy.Validate(password); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrWeakPassword, err.Error())
	}

	existing, err := s.userRepo.FindByEmailOrUsername(ctx, email, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Email == email {
			return nil, fmt.Errorf("%w: email %s is already registered", ErrDuplicateIdentity, email)
		}
		return nil, fmt.Errorf("%w: username %s is already taken", ErrDuplicateIdentity, username)
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	now := s.lifecycle.Now()
	user := &entity.User{
		Email:        email,
		Username:     username,
		PasswordHash: passwordHash,
		IsActive:     false,
		IsSuperadmin: superadmin,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var verifyToken string
	err = repository.WithTx(ctx, s.db, func(ctx context.Context, tx repository.DBTX) error {
		if err := repository.NewUserRepository(tx).Create(ctx, user); err != nil {
			if repository.IsDuplicateKey(err) {
				return fmt.Errorf("%w: email or username is already taken", ErrDuplicateIdentity)
			}
			return err
		}
		var err error
		verifyToken, err = s.lifecycle.IssueIn(ctx, tx, entity.TokenKindEmailVerify, user, token.PurposeRegistration)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.sendVerificationEmail(ctx, user, verifyToken)
	logrus.WithFields(logrus.Fields{
		"user_id":  user.ID,
		"username": user.Username,
		"role":     user.Role,
	}).Info("User registered, verification email sent")

	return user, nil
}

// Login does not tell an unknown email, a wrong password and an inactive account apart.
func (s *UserAuthService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	user, err := s.userRepo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}

	pair, err := s.lifecycle.IssuePair(ctx, user)
	if err != nil {
		return nil, err
	}

	logrus.WithField("user_id", user.ID).Info("User logged in")
	return pair, nil
}

func (s *UserAuthService) RefreshRotate(ctx context.Context, refreshToken string) (*TokenPair, error) {
	user, pair, err := s.lifecycle.RotateRefresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	logrus.WithField("user_id", user.ID).Info("Token refreshed")
	return pair, nil
}

func (s *UserAuthService) VerifyEmail(ctx context.Context, verifyToken string) (*entity.User, error) {
	user, err := s.lifecycle.VerifyEmail(ctx, verifyToken, token.PurposeRegistration)
	if err != nil {
		return nil, err
	}
	logrus.WithField("user_id", user.ID).Info("User verified")
	return user, nil
}

// ResendVerification is silent for unknown or already active accounts.
func (s *UserAuthService) ResendVerification(ctx context.Context, email string) error {
	user, err := s.userRepo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return err
	}
	if user == nil || user.IsActive {
		return nil
	}

	verifyToken, err := s.lifecycle.Issue(ctx, entity.TokenKindEmailVerify, user, token.PurposeRegistration)
	if err != nil {
		return err
	}
	s.sendVerificationEmail(ctx, user, verifyToken)
	return nil
}

// RequestPasswordReset is silent for unknown accounts.
func (s *UserAuthService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.userRepo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return err
	}
	if user == nil {
		return nil
	}

	resetToken, err := s.lifecycle.Issue(ctx, entity.TokenKindEmailVerify, user, token.PurposePasswordReset)
	if err != nil {
		return err
	}

	s.sendEmail(ctx, event.SendEmail{
		Email:        user.Email,
		Subject:      restoreEmailSubject,
		TemplateName: event.TemplateRestorePassword,
		Context: map[string]string{
			"restore_url": s.cfg.FrontendURL + "/restore-password/" + resetToken,
			"username":    user.Username,
		},
	})
	logrus.WithField("user_id", user.ID).Info("Password restore requested")
	return nil
}

// RestorePassword sets a new password and revokes every outstanding token of the user.
func (s *UserAuthService) RestorePassword(ctx context.Context, resetToken, newPassword string) error {
	if err := s.cfg.Password.Policy.Validate(newPassword); err != nil {
		return fmt.Errorf("%w: %s", ErrWeakPassword, err.Error())
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	user, err := s.lifecycle.Redeem(ctx, resetToken, token.PurposePasswordReset, func(ctx context.Context, tx repository.DBTX, user *entity.User) error {
		if err := repository.NewUserRepository(tx).UpdatePassword(ctx, user.ID, passwordHash, s.lifecycle.Now()); err != nil {
			return err
		}
		_, err := s.lifecycle.RevokeAllIn(ctx, tx, user.ID)
		return err
	})
	if err != nil {
		return err
	}

	logrus.WithField("user_id", user.ID).Info("Password restored")
	return nil
}

func (s *UserAuthService) CurrentUser(ctx context.Context, accessToken string) (*entity.User, *entity.ActiveToken, error) {
	row, claims, err := s.lifecycle.DecodeAndValidate(ctx, accessToken, entity.TokenKindAccess)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.userRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, nil, err
	}
	if user == nil || !user.IsActive {
		return nil, nil, ErrIdentityNotFound
	}
	return user, row, nil
}

// Logout consumes the access token and, when given, the refresh token of the same user.
func (s *UserAuthService) Logout(ctx context.Context, access *entity.ActiveToken, refreshToken string) error {
	return repository.WithTx(ctx, s.db, func(ctx context.Context, tx repository.DBTX) error {
		if err := s.lifecycle.ConsumeIn(ctx, tx, access); err != nil {
			return err
		}
		if refreshToken == "" {
			return nil
		}

		refresh, err := repository.NewActiveTokenRepository(tx).FindByTokenAndKind(ctx, refreshToken, entity.TokenKindRefresh)
		if err != nil {
			return err
		}
		if refresh == nil || refresh.UserID != access.UserID {
			return ErrCredentialRejected
		}
		return s.lifecycle.ConsumeIn(ctx, tx, refresh)
	})
}

const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

// ListPage clamps user-supplied paging to the window ListUsers actually serves.
func ListPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > MaxListLimit {
		limit = DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (s *UserAuthService) ListUsers(ctx context.Context, limit, offset int) ([]*entity.User, error) {
	limit, offset = ListPage(limit, offset)
	return s.userRepo.List(ctx, limit, offset)
}

func (s *UserAuthService) sendVerificationEmail(ctx context.Context, user *entity.User, verifyToken string) {
	s.sendEmail(ctx, event.SendEmail{
		Email:        user.Email,
		Subject:      verifyEmailSubject,
		TemplateName: event.TemplateRegister,
		Context: map[string]string{
			"verify_url": s.cfg.FrontendURL + "/verify-email/" + verifyToken,
			"username":   user.Username,
		},
	})
}

func (s *UserAuthService) sendEmail(ctx context.Context, msg event.SendEmail) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, s.cfg.NATS.EmailEventsSubject, event.TypeSendEmail, msg); err != nil {
		logrus.WithError(err).
			WithField("template", msg.TemplateName).
			Error("failed to publish send_email event")
	}
}
