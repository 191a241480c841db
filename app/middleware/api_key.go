package middleware

import (
	"net/http"

	httpdto "github.com/vibast-solutions/ms-go-market-auth/app/dto/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type apiKeyAuthenticator interface {
	Authenticate(key string) error
}

type APIKeyMiddleware struct {
	keyring apiKeyAuthenticator
}

func NewAPIKeyMiddleware(keyring apiKeyAuthenticator) *APIKeyMiddleware {
	return &APIKeyMiddleware{keyring: keyring}
}

func (m *APIKeyMiddleware) RequireAPIKey(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		// Let CORS preflight pass.
		if c.Request().Method == http.MethodOptions {
			return next(c)
		}

		if err := m.keyring.Authenticate(c.Request().Header.Get("X-API-Key")); err != nil {
			logrus.WithField("remote_ip", c.RealIP()).Debug("Invalid x-api-key header")
			return c.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "unauthorized"})
		}
		return next(c)
	}
}
