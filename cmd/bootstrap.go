package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-market-auth/app/event"
	"github.com/vibast-solutions/ms-go-market-auth/app/service"
	"github.com/vibast-solutions/ms-go-market-auth/app/token"
	"github.com/vibast-solutions/ms-go-market-auth/config"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql"
	nats "github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

func configureLogging(cfg *config.Config) error {
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.Log.Level, err)
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stdout)

	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q", cfg.Log.Format)
	}
	return nil
}

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}
	return cfg
}

// openDB opens the MySQL pool and waits for it to answer a ping.
func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	err = backoff.RetryNotify(func() error {
		return db.PingContext(ctx)
	}, backoff.WithContext(bo, ctx), func(err error, wait time.Duration) {
		logrus.WithError(err).WithField("retry_in", wait.String()).Warn("Database not ready")
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

type services struct {
	lifecycle *service.TokenLifecycle
	auth      *service.UserAuthService
}

func newServices(cfg *config.Config, db *sql.DB, conn *nats.Conn) (*services, error) {
	codec, err := token.NewCodec(token.Secrets{
		Access:      cfg.JWT.AccessSecret,
		Refresh:     cfg.JWT.RefreshSecret,
		EmailVerify: cfg.JWT.EmailVerifySecret,
	}, cfg.JWT.Algorithm)
	if err != nil {
		return nil, err
	}

	publisher := event.NewPublisher(conn)
	lifecycle := service.NewTokenLifecycle(db, codec, publisher, cfg)
	return &services{
		lifecycle: lifecycle,
		auth:      service.NewUserAuthService(db, lifecycle, publisher, cfg),
	}, nil
}
