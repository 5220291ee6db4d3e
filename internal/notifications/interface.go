package notifications

import (
	"context"
	"time"

	"github.com/mooddesk/escalation-bot/internal/models"
)

// AlertEvent is the real-time payload pushed to a business's alert channel.
// Its keys are camelCase to match what dashboard clients subscribe to.
// Delivery is at-least-once; consumers dedupe on ID.
type AlertEvent struct {
	ID         string                 `json:"id"`
	BusinessID string                 `json:"businessId"`
	Type       models.Severity        `json:"type"`
	Title      string                 `json:"title"`
	Details    map[string]interface{} `json:"details,omitempty"`
	SessionID  string                 `json:"sessionId"`
	CreatedAt  time.Time              `json:"createdAt"`
}

// NewAlertEvent builds the fan-out payload for a persisted alert
func NewAlertEvent(alert *models.Alert) AlertEvent {
	return AlertEvent{
		ID:         alert.ID,
		BusinessID: alert.BusinessID,
		Type:       alert.Type,
		Title:      alert.Title,
		Details:    alert.Details,
		SessionID:  alert.SessionID,
		CreatedAt:  alert.CreatedAt,
	}
}

// AlertPublisher defines the contract for real-time alert sinks
type AlertPublisher interface {
	PublishAlert(ctx context.Context, event AlertEvent) error
}

// Email is a rendered message ready to send
type Email struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Mailer defines the contract for email delivery
type Mailer interface {
	Send(ctx context.Context, email *Email) error
}
