package controller

import (
	"context"
	"errors"
	"net/http"

	httpdto "github.com/vibast-solutions/ms-go-market-auth/app/dto/http"
	"github.com/vibast-solutions/ms-go-market-auth/app/entity"
	"github.com/vibast-solutions/ms-go-market-auth/app/middleware"
	"github.com/vibast-solutions/ms-go-market-auth/app/service"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type userAuthService interface {
	Register(ctx context.Context, email, password, username string) (*entity.User, error)
	Login(ctx context.Context, email, password string) (*service.TokenPair, error)
	RefreshRotate(ctx context.Context, refreshToken string) (*service.TokenPair, error)
	VerifyEmail(ctx context.Context, verifyToken string) (*entity.User, error)
	ResendVerification(ctx context.Context, email string) error
	RequestPasswordReset(ctx context.Context, email string) error
	RestorePassword(ctx context.Context, resetToken, newPassword string) error
	CurrentUser(ctx context.Context, accessToken string) (*entity.User, *entity.ActiveToken, error)
	Logout(ctx context.Context, access *entity.ActiveToken, refreshToken string) error
	ListUsers(ctx context.Context, limit, offset int) ([]*entity.User, error)
}

type UserAuthController struct {
	userAuthService userAuthService
}

func NewUserAuthController(userAuthService userAuthService) *UserAuthController {
	return &UserAuthController{userAuthService: userAuthService}
}

func (c *UserAuthController) Register(ctx echo.Context) error {
	var req httpdto.RegisterRequest
	if err := ctx.Bind(&req); err != nil {
		logrus.WithError(err).Debug("Failed to bind register request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}
	if err := ctx.Validate(&req); err != nil {
		logrus.WithField("email", req.Email).Debug("Register validation failed")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	logrus.WithField("email", req.Email).Info("Register request received")
	user, err := c.userAuthService.Register(ctx.Request().Context(), req.Email, req.Password, req.Username)
	if err != nil {
		if errors.Is(err, service.ErrDuplicateIdentity) {
			logrus.WithField("email", req.Email).Warn("Register failed: user already exists")
			return ctx.JSON(http.StatusConflict, httpdto.ErrorResponse{Error: err.Error()})
		}
		if errors.Is(err, service.ErrWeakPassword) {
			logrus.WithField("email", req.Email).Warn("Register failed: weak password")
			return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
		}
		logrus.WithError(err).WithField("email", req.Email).Error("Register failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
	}

	logrus.WithField("user_id", user.ID).Info("User registered")
	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: "Verification email sent"})
}

func (c *UserAuthController) VerifyEmail(ctx echo.Context) error {
	verifyToken, err := middleware.BearerToken(ctx.Request())
	if err != nil {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: err.Error()})
	}

	logrus.Info("Verify email request received")
	user, err := c.userAuthService.VerifyEmail(ctx.Request().Context(), verifyToken)
	if err != nil {
		return credentialError(ctx, err, "Verify email")
	}

	logrus.WithField("user_id", user.ID).Info("Email verified")
	return ctx.JSON(http.StatusCreated, httpdto.MessageResponse{Message: "Email verified"})
}

func (c *UserAuthController) Login(ctx echo.Context) error {
	var req httpdto.LoginRequest
	if err := ctx.Bind(&req); err != nil {
		logrus.WithError(err).Debug("Failed to bind login request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}
	if err := ctx.Validate(&req); err != nil {
		logrus.WithField("email", req.Email).Debug("Login validation failed")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	logrus.WithField("email", req.Email).Info("Login request received")
	pair, err := c.userAuthService.Login(ctx.Request().Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			logrus.WithField("email", req.Email).Warn("Login failed: invalid credentials")
			return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "invalid credentials"})
		}
		logrus.WithError(err).WithField("email", req.Email).Error("Login failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
	}

	return ctx.JSON(http.StatusOK, httpdto.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (c *UserAuthController) Refresh(ctx echo.Context) error {
	refreshToken, err := middleware.BearerToken(ctx.Request())
	if err != nil {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: err.Error()})
	}

	logrus.Info("Refresh token request received")
	pair, err := c.userAuthService.RefreshRotate(ctx.Request().Context(), refreshToken)
	if err != nil {
		return credentialError(ctx, err, "Refresh token")
	}

	return ctx.JSON(http.StatusOK, httpdto.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// RestoreRequest answers the same way whether or not the email is registered.
func (c *UserAuthController) RestoreRequest(ctx echo.Context) error {
	var req httpdto.RestoreRequest
	if err := ctx.Bind(&req); err != nil {
		logrus.WithError(err).Debug("Failed to bind restore request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}
	if err := ctx.Validate(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	logrus.WithField("email", req.Email).Info("Restore password request received")
	if err := c.userAuthService.RequestPasswordReset(ctx.Request().Context(), req.Email); err != nil {
		logrus.WithError(err).WithField("email", req.Email).Error("Restore password request failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
	}

	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: "If the account exists, a restore link was sent"})
}

func (c *UserAuthController) RestorePassword(ctx echo.Context) error {
	resetToken, err := middleware.BearerToken(ctx.Request())
	if err != nil {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: err.Error()})
	}

	var req httpdto.NewPasswordRequest
	if err := ctx.Bind(&req); err != nil {
		logrus.WithError(err).Debug("Failed to bind new password request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}
	if err := ctx.Validate(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	logrus.Info("Restore password received")
	if err := c.userAuthService.RestorePassword(ctx.Request().Context(), resetToken, req.NewPassword); err != nil {
		if errors.Is(err, service.ErrWeakPassword) {
			return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
		}
		return credentialError(ctx, err, "Restore password")
	}

	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: "Password changed"})
}

func (c *UserAuthController) ResendVerification(ctx echo.Context) error {
	var req httpdto.ResendVerificationRequest
	if err := ctx.Bind(&req); err != nil {
		logrus.WithError(err).Debug("Failed to bind resend verification request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}
	if err := ctx.Validate(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	logrus.WithField("email", req.Email).Info("Resend verification request received")
	if err := c.userAuthService.ResendVerification(ctx.Request().Context(), req.Email); err != nil {
		logrus.WithError(err).WithField("email", req.Email).Error("Resend verification failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
	}

	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: "If the account is not verified yet, a new link was sent"})
}

func (c *UserAuthController) Me(ctx echo.Context) error {
	user, ok := ctx.Get(middleware.ContextUser).(*entity.User)
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "unauthorized"})
	}
	return ctx.JSON(http.StatusOK, httpdto.NewUserResponse(user))
}

func (c *UserAuthController) Logout(ctx echo.Context) error {
	var req httpdto.LogoutRequest
	if err := ctx.Bind(&req); err != nil {
		logrus.WithError(err).Debug("Failed to bind logout request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	access, ok := ctx.Get(middleware.ContextAccessToken).(*entity.ActiveToken)
	if !ok {
		logrus.Warn("Logout failed: missing access token in context")
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "unauthorized"})
	}

	logrus.WithField("user_id", access.UserID).Info("Logout request received")
	if err := c.userAuthService.Logout(ctx.Request().Context(), access, req.RefreshToken); err != nil {
		return credentialError(ctx, err, "Logout")
	}

	logrus.WithField("user_id", access.UserID).Info("Logout successful")
	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: "logged out successfully"})
}

func (c *UserAuthController) ListUsers(ctx echo.Context) error {
	var query httpdto.ListUsersQuery
	if err := (&echo.DefaultBinder{}).BindQueryParams(ctx, &query); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid query parameters"})
	}
	if err := ctx.Validate(&query); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	limit, offset := service.ListPage(query.Limit, query.Offset)
	users, err := c.userAuthService.ListUsers(ctx.Request().Context(), limit, offset)
	if err != nil {
		logrus.WithError(err).Error("List users failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
	}

	resp := httpdto.UserListResponse{
		Users:  make([]httpdto.UserResponse, 0, len(users)),
		Limit:  limit,
		Offset: offset,
	}
	for _, u := range users {
		resp.Users = append(resp.Users, httpdto.NewUserResponse(u))
	}
	return ctx.JSON(http.StatusOK, resp)
}

// Verify lets internal services resolve an access token over HTTP. The route is
// guarded by the API key middleware.
func (c *UserAuthController) Verify(ctx echo.Context) error {
	var req httpdto.VerifyTokenRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}
	if err := ctx.Validate(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	user, _, err := c.userAuthService.CurrentUser(ctx.Request().Context(), req.AccessToken)
	if err != nil {
		return credentialError(ctx, err, "Verify token")
	}

	resp := httpdto.VerifyTokenResponse{User: httpdto.NewUserResponse(user)}
	if req.Permission != "" {
		allowed := service.CheckPermission(user, req.Permission) == nil
		resp.Allowed = &allowed
	}
	return ctx.JSON(http.StatusOK, resp)
}

func credentialError(ctx echo.Context, err error, op string) error {
	switch {
	case errors.Is(err, service.ErrCredentialRejected):
		logrus.WithError(err).Warnf("%s failed: credential rejected", op)
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "invalid or expired token"})
	case errors.Is(err, service.ErrIdentityNotFound):
		logrus.Warnf("%s failed: user not found", op)
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "user not found"})
	default:
		logrus.WithError(err).Errorf("%s failed", op)
		return ctx.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
	}
}
