package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mooddesk/escalation-bot/internal/models"
)

// TeamsMessage represents a Microsoft Teams message
type TeamsMessage struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor,omitempty"`
	Title      string         `json:"title"`
	Text       string         `json:"text"`
	Sections   []TeamsSection `json:"sections,omitempty"`
}

type TeamsSection struct {
	ActivityTitle string      `json:"activityTitle,omitempty"`
	ActivityText  string      `json:"activityText,omitempty"`
	Facts         []TeamsFact `json:"facts,omitempty"`
	Markdown      bool        `json:"markdown,omitempty"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// TeamsPublisher posts critical alerts to an operations channel webhook
type TeamsPublisher struct {
	webhookURL string
	adminURL   string
	client     *resty.Client
}

// Ensure TeamsPublisher implements AlertPublisher
var _ AlertPublisher = (*TeamsPublisher)(nil)

// NewTeamsPublisher creates a webhook publisher
func NewTeamsPublisher(webhookURL, adminURL string) *TeamsPublisher {
	return &TeamsPublisher{
		webhookURL: webhookURL,
		adminURL:   adminURL,
		client:     resty.New().SetTimeout(30 * time.Second),
	}
}

// PublishAlert sends critical alerts and ignores everything else
func (t *TeamsPublisher) PublishAlert(ctx context.Context, event AlertEvent) error {
	if event.Type != models.SeverityCritical {
		return nil
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(t.buildMessage(event)).
		Post(t.webhookURL)

	if err != nil {
		return fmt.Errorf("failed to send Teams message: %w", err)
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	return nil
}

func (t *TeamsPublisher) buildMessage(event AlertEvent) *TeamsMessage {
	return &TeamsMessage{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		ThemeColor: "D13438",
		Title:      event.Title,
		Text:       fmt.Sprintf("[Open session](%s/sessions/%s)", t.adminURL, event.SessionID),
		Sections: []TeamsSection{
			{
				ActivityTitle: "Escalation",
				Facts: []TeamsFact{
					{Name: "Business", Value: event.BusinessID},
					{Name: "Session", Value: event.SessionID},
					{Name: "Severity", Value: string(event.Type)},
					{Name: "Raised", Value: event.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC")},
				},
				Markdown: true,
			},
		},
	}
}
