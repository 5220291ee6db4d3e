package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mooddesk/escalation-bot/internal/models"
)

func startNATS(t *testing.T) *server.Server {
	t.Helper()

	s, err := server.NewServer(&server.Options{
		Host:           "127.0.0.1",
		Port:           -1,
		NoLog:          true,
		NoSigs:         true,
		MaxControlLine: 256,
	})
	require.NoError(t, err)

	go s.Start()
	if !s.ReadyForConnections(10 * time.Second) {
		t.Fatal("Unable to start NATS server")
	}
	t.Cleanup(s.Shutdown)
	return s
}

func TestAlertSubject(t *testing.T) {
	assert.Equal(t, "mooddesk.business.biz-1.alerts", AlertSubject("mooddesk", "biz-1"))
}

func TestNATSPublisher_PublishAlert(t *testing.T) {
	s := startNATS(t)

	nc, err := ConnectNATS(s.ClientURL(), "")
	require.NoError(t, err)
	defer nc.Close()

	sub, err := nc.SubscribeSync(AlertSubject("mooddesk", "biz-1"))
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	publisher := NewNATSPublisher(nc, "mooddesk")

	tests := []struct {
		name string
		ctx  func() (context.Context, context.CancelFunc)
	}{
		{
			name: "no deadline",
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithCancel(context.Background())
			},
		},
		{
			name: "with deadline",
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithTimeout(context.Background(), 5*time.Second)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := tt.ctx()
			defer cancel()

			event := sampleEvent(models.SeverityCritical)
			require.NoError(t, publisher.PublishAlert(ctx, event))

			msg, err := sub.NextMsg(2 * time.Second)
			require.NoError(t, err)

			var got AlertEvent
			require.NoError(t, json.Unmarshal(msg.Data, &got))
			assert.Equal(t, event.ID, got.ID)
			assert.Equal(t, event.Type, got.Type)
			assert.Equal(t, event.SessionID, got.SessionID)
		})
	}
}

func TestNATSPublisher_OtherBusinessNotDelivered(t *testing.T) {
	s := startNATS(t)

	nc, err := nats.Connect(s.ClientURL(), nats.Timeout(5*time.Second))
	require.NoError(t, err)
	defer nc.Close()

	sub, err := nc.SubscribeSync(AlertSubject("mooddesk", "biz-2"))
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	publisher := NewNATSPublisher(nc, "mooddesk")
	require.NoError(t, publisher.PublishAlert(context.Background(), sampleEvent(models.SeverityLowMood)))

	_, err = sub.NextMsg(200 * time.Millisecond)
	assert.ErrorIs(t, err, nats.ErrTimeout)
}
