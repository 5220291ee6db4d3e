package notifications

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/mooddesk/escalation-bot/internal/models"
)

// SMTPConfig holds the SMTP relay settings
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer delivers email through an SMTP relay
type SMTPMailer struct {
	config SMTPConfig
	dialer *gomail.Dialer
}

// Ensure SMTPMailer implements Mailer
var _ Mailer = (*SMTPMailer)(nil)

// NewSMTPMailer creates a mailer for the relay
func NewSMTPMailer(config SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		config: config,
		dialer: gomail.NewDialer(config.Host, config.Port, config.Username, config.Password),
	}
}

// Send delivers the email, giving up when ctx is done
func (s *SMTPMailer) Send(ctx context.Context, email *Email) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.config.From)
	m.SetHeader("To", email.To)
	m.SetHeader("Subject", email.Subject)
	if email.Text != "" {
		m.SetBody("text/plain", email.Text)
		m.AddAlternative("text/html", email.HTML)
	} else {
		m.SetBody("text/html", email.HTML)
	}

	// gomail has no context support; the dial keeps running in the background on timeout
	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to send email: %w", ctx.Err())
	}
}

// EscalationEmailData is everything the escalation email shows
type EscalationEmailData struct {
	To           string
	BusinessName string
	SessionID    string
	AdminURL     string
	UserMood     string
	UserMessage  string
	Sentiment    *models.MoodSignal
	AI           *models.AIJudgment
	Analysis     *models.EngagementAnalysis
}

const escalationTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Critical Case Escalation</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #d13438; color: white; padding: 20px; border-radius: 5px; }
        .section { background-color: #f5f5f5; padding: 15px; margin: 20px 0; border-radius: 5px; }
        blockquote { border-left: 4px solid #d13438; padding-left: 10px; color: #333; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Critical Case Escalation</h1>
        <p><strong>Business:</strong> {{.BusinessName}}</p>
        <p><strong>Session:</strong> <a href="{{.AdminURL}}/sessions/{{.SessionID}}">{{.SessionID}}</a></p>
    </div>

    <div class="section">
        <h2>Mood Analysis</h2>
        <p><strong>User Selected Mood:</strong> {{if .UserMood}}{{.UserMood}}{{else}}Not specified{{end}}</p>
        <p><strong>AI Detected Mood:</strong> {{.Analysis.DetectedMood}}</p>
        <p><strong>Sentiment Score:</strong> {{if .Sentiment}}{{printf "%.1f" .Sentiment.Score}}{{else}}N/A{{end}}</p>
        <p><strong>Engagement Level:</strong> {{.Analysis.EngagementLevel}}/10</p>
        <p><strong>Conversation Type:</strong> {{.Analysis.ConversationType}}</p>
    </div>

    {{if .AI}}
    <div class="section">
        <h2>AI Response Status</h2>
        <p><strong>Can Resolve:</strong> {{yesno .AI.CanResolve}}</p>
        <p><strong>Issue Resolved:</strong> {{yesno .AI.IssueResolved}}</p>
        <p><strong>Confidence:</strong> {{percent .AI.Confidence}}</p>
        <p><strong>Has Context:</strong> {{yesno .AI.HasContext}}</p>
        {{if .AI.Reasoning}}<blockquote><em>{{.AI.Reasoning}}</em></blockquote>{{end}}
    </div>
    {{end}}

    <div class="section">
        <h2>Summary</h2>
        <p>{{.Analysis.Summary}}</p>
    </div>

    <h2>Last User Message</h2>
    <blockquote>{{.UserMessage}}</blockquote>

    <p><strong>Action Required:</strong> {{if .Analysis.NeedsIntervention}}Immediate follow-up needed{{else}}Monitor situation{{end}}</p>

    <hr>
    <p><small>This email was generated automatically by the escalation service.</small></p>
</body>
</html>
`

var escalationTmpl = template.Must(template.New("escalation").Funcs(template.FuncMap{
	"yesno": func(b bool) string {
		if b {
			return "Yes"
		}
		return "No"
	},
	"percent": func(f float64) string {
		return fmt.Sprintf("%.0f%%", f*100)
	},
}).Parse(escalationTemplate))

// BuildEscalationEmail renders the critical escalation email
func BuildEscalationEmail(data EscalationEmailData) (*Email, error) {
	if data.To == "" {
		return nil, fmt.Errorf("escalation email has no recipient")
	}
	if data.Analysis == nil {
		data.Analysis = &models.EngagementAnalysis{
			DetectedMood:      "unknown",
			ConversationType:  "unknown",
			NeedsIntervention: true,
			Summary:           "User needs assistance",
		}
	}

	var buf bytes.Buffer
	if err := escalationTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to build email HTML: %w", err)
	}

	return &Email{
		To:      data.To,
		Subject: fmt.Sprintf("URGENT: Escalation Required - %s", data.BusinessName),
		HTML:    buf.String(),
		Text:    buildEscalationText(data),
	}, nil
}

func buildEscalationText(data EscalationEmailData) string {
	var text strings.Builder

	text.WriteString("CRITICAL CASE ESCALATION\n")
	text.WriteString("========================\n")
	text.WriteString(fmt.Sprintf("Business: %s\n", data.BusinessName))
	text.WriteString(fmt.Sprintf("Session: %s/sessions/%s\n\n", data.AdminURL, data.SessionID))

	text.WriteString(fmt.Sprintf("Detected mood: %s\n", data.Analysis.DetectedMood))
	if data.AI != nil {
		text.WriteString(fmt.Sprintf("AI confidence: %.0f%%\n", data.AI.Confidence*100))
	}
	text.WriteString(fmt.Sprintf("\nSummary: %s\n", data.Analysis.Summary))
	text.WriteString(fmt.Sprintf("\nLast user message:\n  %s\n", data.UserMessage))

	return text.String()
}
