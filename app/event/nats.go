package event

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	nats "github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Connect dials NATS, retrying with exponential backoff until ctx is done.
func Connect(ctx context.Context, url, name string) (*nats.Conn, error) {
	var conn *nats.Conn
	op := func() error {
		var err error
		conn, err = nats.Connect(url,
			nats.Name(name),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					logrus.WithError(err).Warn("NATS disconnected")
				}
			}),
			nats.ReconnectHandler(func(c *nats.Conn) {
				logrus.WithField("url", c.ConnectedUrl()).Info("NATS reconnected")
			}),
		)
		if errors.Is(err, nats.ErrBadSubject) || errors.Is(err, nats.ErrAuthorization) {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return conn, nil
}

type natsPublisher interface {
	Publish(subject string, data []byte) error
}

// Publisher writes enveloped events to NATS subjects.
type Publisher struct {
	conn natsPublisher
}

func NewPublisher(conn natsPublisher) *Publisher {
	return &Publisher{conn: conn}
}

func (p *Publisher) Publish(ctx context.Context, subject, eventType string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := Marshal(eventType, data)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"subject": subject,
		"type":    eventType,
	}).Debug("Event published")
	return nil
}
