package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mooddesk/escalation-bot/internal/analysis"
	"github.com/mooddesk/escalation-bot/internal/config"
	"github.com/mooddesk/escalation-bot/internal/metrics"
	"github.com/mooddesk/escalation-bot/internal/models"
	"github.com/mooddesk/escalation-bot/internal/store"
)

// MockSummarizer is a mock implementation of analysis.EngagementAnalyzer
type MockSummarizer struct {
	mock.Mock
}

func (m *MockSummarizer) Analyze(ctx context.Context, input analysis.Input) (*models.EngagementAnalysis, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EngagementAnalysis), args.Error(1)
}

func TestEndIdleSessions(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

	st := store.NewMemoryStore()
	sessions := []models.Session{
		{ID: "idle", BusinessID: "b", Status: models.SessionActive, UpdatedAt: now.Add(-10 * time.Minute)},
		{ID: "recent", BusinessID: "b", Status: models.SessionActive, UpdatedAt: now.Add(-1 * time.Minute)},
		{ID: "already-ended", BusinessID: "b", Status: models.SessionEnded, UpdatedAt: now.Add(-time.Hour)},
		{ID: "at-cutoff", BusinessID: "b", Status: models.SessionActive, UpdatedAt: now.Add(-5 * time.Minute)},
	}
	for i := range sessions {
		require.NoError(t, st.SaveSession(ctx, &sessions[i]))
	}

	m := metrics.NewMetrics(prometheus.NewRegistry())
	svc := NewService(&config.Config{
		SessionIdleTimeout:   5 * time.Minute,
		SessionSweepSchedule: "0 * * * * *",
	}, st, m)
	svc.now = func() time.Time { return now }

	ended, err := svc.EndIdleSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, ended)

	expected := map[string]models.SessionStatus{
		"idle":          models.SessionEnded,
		"recent":        models.SessionActive,
		"already-ended": models.SessionEnded,
		"at-cutoff":     models.SessionActive,
	}
	for id, status := range expected {
		s, err := st.GetSession(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, status, s.Status, id)
	}
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionsEndedBySweeper))

	// second sweep finds nothing new
	ended, err = svc.EndIdleSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, ended)
}

func TestStart_InvalidSchedule(t *testing.T) {
	svc := NewService(&config.Config{SessionSweepSchedule: "every minute"}, store.NewMemoryStore(),
		metrics.NewMetrics(prometheus.NewRegistry()))
	assert.Error(t, svc.Start())
}

func TestStartStop(t *testing.T) {
	svc := NewService(&config.Config{
		SessionIdleTimeout:   time.Minute,
		SessionSweepSchedule: "0 * * * * *",
	}, store.NewMemoryStore(), metrics.NewMetrics(prometheus.NewRegistry()))

	require.NoError(t, svc.Start())
	svc.Stop()
}

func TestEndIdleSessions_Summaries(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	idleAt := now.Add(-10 * time.Minute)

	st := store.NewMemoryStore()
	talked := &models.Session{ID: "talked", BusinessID: "b", Status: models.SessionActive, UpdatedAt: idleAt}
	talked.AppendTurns(
		models.ChatTurn{Role: "user", Content: "where is my order", Mood: "calm"},
		models.ChatTurn{Role: "assistant", Content: "let me check"},
		models.ChatTurn{Role: "user", Content: "still nothing", Mood: "frustrated"},
	)
	silent := &models.Session{ID: "silent", BusinessID: "b", Status: models.SessionActive, UpdatedAt: idleAt}
	failing := &models.Session{ID: "failing", BusinessID: "b", Status: models.SessionActive, UpdatedAt: idleAt}
	failing.AppendTurns(models.ChatTurn{Role: "user", Content: "hello"})
	for _, s := range []*models.Session{talked, silent, failing} {
		require.NoError(t, st.SaveSession(ctx, s))
	}

	summary := &models.EngagementAnalysis{DetectedMood: "frustrated", EngagementLevel: 7, Summary: "Late order."}
	summarizer := &MockSummarizer{}
	summarizer.On("Analyze", mock.Anything, mock.MatchedBy(func(in analysis.Input) bool {
		return in.Message == "still nothing"
	})).Return(summary, nil)
	summarizer.On("Analyze", mock.Anything, mock.MatchedBy(func(in analysis.Input) bool {
		return in.Message == "hello"
	})).Return(nil, assert.AnError)

	m := metrics.NewMetrics(prometheus.NewRegistry())
	svc := NewService(&config.Config{SessionIdleTimeout: 5 * time.Minute, EnrichmentTimeout: time.Second}, st, m)
	svc.now = func() time.Time { return now }
	svc.SetSummarizer(summarizer)

	ended, err := svc.EndIdleSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, ended)

	got, err := st.GetSession(ctx, "talked")
	require.NoError(t, err)
	assert.Equal(t, models.SessionEnded, got.Status)
	assert.Equal(t, summary, got.Summary)

	for _, id := range []string{"silent", "failing"} {
		got, err := st.GetSession(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.SessionEnded, got.Status, id)
		assert.Nil(t, got.Summary, id)
	}

	summarizer.AssertNumberOfCalls(t, "Analyze", 2)
	input := summarizer.Calls[0].Arguments.Get(1).(analysis.Input)
	if input.Message != "still nothing" {
		input = summarizer.Calls[1].Arguments.Get(1).(analysis.Input)
	}
	assert.Len(t, input.History, 2)
	assert.Equal(t, "frustrated", input.UserMood)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionSummaries.WithLabelValues("saved")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionSummaries.WithLabelValues("failed")))
}
