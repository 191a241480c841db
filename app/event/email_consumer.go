package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	nats "github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

var ErrInvalidPayload = errors.New("invalid event payload")

type EmailSender interface {
	SendTemplate(ctx context.Context, to, subject, templateName string, data map[string]string) error
}

// EmailConsumer turns send_email events into outgoing mail.
type EmailConsumer struct {
	sender      EmailSender
	sendTimeout time.Duration
}

func NewEmailConsumer(sender EmailSender) *EmailConsumer {
	return &EmailConsumer{sender: sender, sendTimeout: 30 * time.Second}
}

func (c *EmailConsumer) Subscribe(conn *nats.Conn, subject, queue string) (*nats.Subscription, error) {
	if conn == nil {
		return nil, errors.New("nats connection is nil")
	}
	return conn.QueueSubscribe(subject, queue, c.handle)
}

func (c *EmailConsumer) handle(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), c.sendTimeout)
	defer cancel()

	if err := c.Handle(ctx, msg.Data); err != nil {
		logrus.WithError(err).WithField("subject", msg.Subject).Error("Failed to process email event")
	}
}

// Handle validates one message and sends the email it describes. Malformed
// messages return an error wrapping ErrInvalidPayload.
func (c *EmailConsumer) Handle(ctx context.Context, data []byte) error {
	mail, err := decodeSendEmail(data)
	if err != nil {
		return err
	}

	if err := c.sender.SendTemplate(ctx, mail.Email, mail.Subject, mail.TemplateName, mail.Context); err != nil {
		return fmt.Errorf("send %s to %s: %w", mail.TemplateName, mail.Email, err)
	}

	logrus.WithField("template", mail.TemplateName).Info("Email sent")
	return nil
}

func decodeSendEmail(data []byte) (*SendEmail, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPayload, err.Error())
	}
	if env.Type != TypeSendEmail || len(env.Data) == 0 {
		return nil, fmt.Errorf("%w: unexpected type %q", ErrInvalidPayload, env.Type)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(env.Data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPayload, err.Error())
	}
	var missing []string
	for _, key := range []string{"email", "subject", "context", "template_name"} {
		if _, ok := fields[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing keys %s", ErrInvalidPayload, strings.Join(missing, ", "))
	}

	var mail SendEmail
	if err := json.Unmarshal(env.Data, &mail); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPayload, err.Error())
	}
	if mail.Email == "" || mail.TemplateName == "" {
		return nil, fmt.Errorf("%w: empty email or template_name", ErrInvalidPayload)
	}
	return &mail, nil
}
