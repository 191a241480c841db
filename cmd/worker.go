package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/vibast-solutions/ms-go-market-auth/app/event"
	"github.com/vibast-solutions/ms-go-market-auth/app/mailer"
	"github.com/vibast-solutions/ms-go-market-auth/app/service"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Send queued emails and sweep expired tokens",
	Run:   runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(_ *cobra.Command, _ []string) {
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDB(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	conn, err := event.Connect(ctx, cfg.NATS.URL, "market-auth-worker")
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to NATS")
	}
	defer conn.Drain()

	svcs, err := newServices(cfg, db, conn)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to build services")
	}

	renderer, err := mailer.NewRenderer()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to parse email templates")
	}
	consumer := event.NewEmailConsumer(mailer.New(cfg.SMTP, renderer))
	sub, err := consumer.Subscribe(conn, cfg.NATS.EmailEventsSubject, cfg.NATS.QueueGroup)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to subscribe to email events")
	}
	defer sub.Unsubscribe()

	logrus.WithFields(logrus.Fields{
		"subject":  cfg.NATS.EmailEventsSubject,
		"queue":    cfg.NATS.QueueGroup,
		"interval": cfg.Cleanup.Interval.String(),
	}).Info("Worker started")

	runSweeper(ctx, svcs.lifecycle, cfg.Cleanup.Interval, cfg.Cleanup.BatchSize)
	logrus.Info("Worker stopped")
}

// runSweeper blocks until ctx is done, sweeping once at start and then on every tick.
func runSweeper(ctx context.Context, lifecycle *service.TokenLifecycle, interval time.Duration, batch int) {
	sweep := func() {
		moved, err := lifecycle.SweepExpired(ctx, batch)
		if err != nil && ctx.Err() == nil {
			logrus.WithError(err).Error("Expired token sweep failed")
			return
		}
		if moved > 0 {
			logrus.WithField("count", moved).Info("Expired tokens blacklisted")
		}
	}

	sweep()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
