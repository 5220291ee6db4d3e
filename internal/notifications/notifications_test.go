package notifications

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mooddesk/escalation-bot/internal/models"
)

// MockPublisher is a mock implementation of AlertPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishAlert(ctx context.Context, event AlertEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func sampleEvent(severity models.Severity) AlertEvent {
	return AlertEvent{
		ID:         "alert-1",
		BusinessID: "biz-1",
		Type:       severity,
		Title:      "Critical: Low Mood + Unresolved",
		SessionID:  "sess-1",
		CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestMultiPublisher_ContinuesPastFailures(t *testing.T) {
	event := sampleEvent(models.SeverityCritical)

	failing := &MockPublisher{}
	failing.On("PublishAlert", mock.Anything, event).Return(assert.AnError)
	ok := &MockPublisher{}
	ok.On("PublishAlert", mock.Anything, event).Return(nil)

	multi := NewMultiPublisher()
	multi.Add("failing", failing)
	multi.Add("ok", ok)

	err := multi.PublishAlert(context.Background(), event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failing")
	assert.Equal(t, 2, multi.Len())

	failing.AssertExpectations(t)
	ok.AssertExpectations(t)
}

func TestTeamsPublisher(t *testing.T) {
	var received TeamsMessage
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	publisher := NewTeamsPublisher(server.URL, "https://admin.example.com")

	require.NoError(t, publisher.PublishAlert(context.Background(), sampleEvent(models.SeverityLowMood)))
	assert.Equal(t, 0, calls, "non-critical alerts are not posted")

	require.NoError(t, publisher.PublishAlert(context.Background(), sampleEvent(models.SeverityCritical)))
	assert.Equal(t, 1, calls)
	assert.Equal(t, "MessageCard", received.Type)
	assert.Equal(t, "Critical: Low Mood + Unresolved", received.Title)
	assert.Contains(t, received.Text, "https://admin.example.com/sessions/sess-1")
}

func TestTeamsPublisher_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("bad card"))
	}))
	defer server.Close()

	err := NewTeamsPublisher(server.URL, "").PublishAlert(context.Background(), sampleEvent(models.SeverityCritical))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestBuildEscalationEmail(t *testing.T) {
	email, err := BuildEscalationEmail(EscalationEmailData{
		To:           "owner@shop.example",
		BusinessName: "Shop",
		SessionID:    "sess-1",
		AdminURL:     "https://admin.example.com",
		UserMood:     "frustrated",
		UserMessage:  "<script>alert(1)</script> my order never arrived",
		Sentiment:    &models.MoodSignal{Score: -3, DetectedMood: "very-negative", IsLowMood: true},
		AI:           &models.AIJudgment{Confidence: 0.25, HasContext: true, Reasoning: "No shipping data"},
		Analysis: &models.EngagementAnalysis{
			DetectedMood:      "frustrated",
			EngagementLevel:   8,
			ConversationType:  "complaint",
			NeedsIntervention: true,
			Summary:           "Customer waiting on a lost order.",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "owner@shop.example", email.To)
	assert.Equal(t, "URGENT: Escalation Required - Shop", email.Subject)
	assert.Contains(t, email.HTML, "https://admin.example.com/sessions/sess-1")
	assert.Contains(t, email.HTML, "25%")
	assert.Contains(t, email.HTML, "8/10")
	assert.Contains(t, email.HTML, "Immediate follow-up needed")
	assert.NotContains(t, email.HTML, "<script>")
	assert.Contains(t, email.Text, "Customer waiting on a lost order.")
}

func TestBuildEscalationEmail_DefaultsAndValidation(t *testing.T) {
	_, err := BuildEscalationEmail(EscalationEmailData{BusinessName: "Shop"})
	require.Error(t, err)

	email, err := BuildEscalationEmail(EscalationEmailData{To: "ops@example.com", BusinessName: "Shop"})
	require.NoError(t, err)
	assert.Contains(t, email.HTML, "Not specified")
	assert.Contains(t, email.HTML, "User needs assistance")
	assert.Contains(t, email.HTML, "N/A")
}

func TestAlertEvent_WireKeys(t *testing.T) {
	data, err := json.Marshal(sampleEvent(models.SeverityLowMood))
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &fields))

	for _, key := range []string{"id", "type", "title", "sessionId", "createdAt"} {
		assert.Contains(t, fields, key)
	}
	assert.NotContains(t, fields, "session_id")
	assert.Equal(t, "2026-01-02T03:04:05Z", fields["createdAt"])
}
