package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	httpdto "github.com/vibast-solutions/ms-go-market-auth/app/dto/http"
	"github.com/vibast-solutions/ms-go-market-auth/app/entity"
	"github.com/vibast-solutions/ms-go-market-auth/app/service"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const (
	ContextUser        = "user"
	ContextUserID      = "user_id"
	ContextAccessToken = "access_token"
)

var (
	ErrMissingAuthorization = errors.New("missing authorization header")
	ErrInvalidAuthorization = errors.New("invalid authorization header format")
)

type currentUserResolver interface {
	CurrentUser(ctx context.Context, accessToken string) (*entity.User, *entity.ActiveToken, error)
}

type AuthMiddleware struct {
	resolver currentUserResolver
}

func NewAuthMiddleware(resolver currentUserResolver) *AuthMiddleware {
	return &AuthMiddleware{resolver: resolver}
}

// BearerToken returns the bare token from an "Authorization: Bearer <token>" header.
func BearerToken(req *http.Request) (string, error) {
	authHeader := req.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrMissingAuthorization
	}

	parts := strings.Fields(authHeader)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", ErrInvalidAuthorization
	}
	return parts[1], nil
}

func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		tokenString, err := BearerToken(c.Request())
		if err != nil {
			logrus.WithError(err).Debug("Rejected authorization header")
			return c.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: err.Error()})
		}

		user, row, err := m.resolver.CurrentUser(c.Request().Context(), tokenString)
		if err != nil {
			if errors.Is(err, service.ErrCredentialRejected) || errors.Is(err, service.ErrIdentityNotFound) {
				logrus.Debug("Invalid or expired access token")
				return c.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "invalid or expired token"})
			}
			logrus.WithError(err).Error("Failed to resolve current user")
			return c.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
		}

		c.Set(ContextUser, user)
		c.Set(ContextUserID, user.ID)
		c.Set(ContextAccessToken, row)

		return next(c)
	}
}

// RequirePermission must run after RequireAuth.
func (m *AuthMiddleware) RequirePermission(name string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, _ := c.Get(ContextUser).(*entity.User)
			if err := service.CheckPermission(user, name); err != nil {
				logrus.WithField("permission", name).Warn("Permission denied")
				return c.JSON(http.StatusForbidden, httpdto.ErrorResponse{Error: "access denied"})
			}
			return next(c)
		}
	}
}
