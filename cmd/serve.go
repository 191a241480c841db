package cmd

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/vibast-solutions/ms-go-market-auth/app/controller"
	"github.com/vibast-solutions/ms-go-market-auth/app/event"
	authgrpc "github.com/vibast-solutions/ms-go-market-auth/app/grpc"
	"github.com/vibast-solutions/ms-go-market-auth/app/middleware"
	"github.com/vibast-solutions/ms-go-market-auth/app/service"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const readUsersPermission = "read_users"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long:  `Start both HTTP (Echo) and gRPC servers for the authentication service.`,
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDB(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	conn, err := event.Connect(ctx, cfg.NATS.URL, "market-auth-api")
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to NATS")
	}
	defer conn.Drain()

	svcs, err := newServices(cfg, db, conn)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to build services")
	}

	keyring := service.NewAPIKeyring(cfg.InternalAPIKeys)
	if keyring.Len() == 0 {
		logrus.Warn("INTERNAL_API_KEYS is empty, internal endpoints will reject every caller")
	}

	e := newHTTPServer(svcs, db, keyring)
	grpcServer, healthServer := authgrpc.NewServer(keyring, svcs.auth)

	grpcAddr := net.JoinHostPort(cfg.GRPCHost, cfg.GRPCPort)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to listen on gRPC port")
	}
	go func() {
		logrus.WithField("addr", grpcAddr).Info("Starting gRPC server")
		if err := grpcServer.Serve(lis); err != nil {
			logrus.WithError(err).Error("gRPC server stopped")
			stop()
		}
	}()

	httpAddr := net.JoinHostPort(cfg.HTTPHost, cfg.HTTPPort)
	go func() {
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Error("HTTP server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down")

	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("HTTP shutdown failed")
	}
	grpcServer.GracefulStop()
}

func newHTTPServer(svcs *services, db *sql.DB, keyring *service.APIKeyring) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = controller.NewRequestValidator()

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	authController := controller.NewUserAuthController(svcs.auth)
	healthController := controller.NewHealthController(db)
	authMiddleware := middleware.NewAuthMiddleware(svcs.auth)
	apiKeyMiddleware := middleware.NewAPIKeyMiddleware(keyring)

	api := e.Group("/api-auth")
	api.GET("/healthz", healthController.Health)
	api.POST("/register", authController.Register)
	api.POST("/verify-email", authController.VerifyEmail)
	api.POST("/login", authController.Login)
	api.POST("/refresh", authController.Refresh)
	api.POST("/restore-request", authController.RestoreRequest)
	api.PATCH("/restore-password", authController.RestorePassword)
	api.POST("/resend-verification", authController.ResendVerification)

	protected := api.Group("")
	protected.Use(authMiddleware.RequireAuth)
	protected.GET("/me", authController.Me)
	protected.POST("/logout", authController.Logout)
	protected.GET("/users", authController.ListUsers, authMiddleware.RequirePermission(readUsersPermission))

	internal := api.Group("/internal")
	internal.Use(apiKeyMiddleware.RequireAPIKey)
	internal.POST("/verify", authController.Verify)

	return e
}
