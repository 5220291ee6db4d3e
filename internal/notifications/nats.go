package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// NATSPublisher fans alerts out on one subject per business
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

// Ensure NATSPublisher implements AlertPublisher
var _ AlertPublisher = (*NATSPublisher)(nil)

// ConnectNATS dials the broker with reconnect handling
func ConnectNATS(url, token string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("escalation-bot"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logrus.WithError(err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logrus.Info("NATS reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return nc, nil
}

// NewNATSPublisher creates a publisher on an established connection
func NewNATSPublisher(conn *nats.Conn, prefix string) *NATSPublisher {
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// AlertSubject is the subject dashboards subscribe to for a business
func AlertSubject(prefix, businessID string) string {
	return fmt.Sprintf("%s.business.%s.alerts", prefix, businessID)
}

// PublishAlert publishes the event and flushes so the server has it before returning
func (p *NATSPublisher) PublishAlert(ctx context.Context, event AlertEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal alert event: %w", err)
	}

	subject := AlertSubject(p.prefix, event.BusinessID)
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	if _, ok := ctx.Deadline(); ok {
		err = p.conn.FlushWithContext(ctx)
	} else {
		err = p.conn.FlushTimeout(5 * time.Second)
	}
	if err != nil {
		return fmt.Errorf("flush %s: %w", subject, err)
	}

	logrus.WithFields(logrus.Fields{
		"subject":  subject,
		"alert_id": event.ID,
	}).Debug("Alert published")
	return nil
}
