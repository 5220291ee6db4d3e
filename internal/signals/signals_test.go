package signals

import (
	"testing"

	"github.com/mooddesk/escalation-bot/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestAnalyzer_Analyze(t *testing.T) {
	analyzer := NewAnalyzer()

	tests := []struct {
		name    string
		content string
		mood    string
		lowMood bool
	}{
		{
			name:    "Positive content",
			content: "This is great, thanks for the help",
			mood:    "very-positive",
			lowMood: false,
		},
		{
			name:    "Negative content",
			content: "This is terrible and broken, I hate it",
			mood:    "very-negative",
			lowMood: true,
		},
		{
			name:    "Mildly negative",
			content: "I am a bit annoyed",
			mood:    "negative",
			lowMood: true,
		},
		{
			name:    "Neutral content",
			content: "What are your opening hours?",
			mood:    "neutral",
			lowMood: false,
		},
		{
			name:    "Negated positive",
			content: "That is not good",
			mood:    "very-negative",
			lowMood: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := analyzer.Analyze(tt.content)
			assert.Equal(t, tt.mood, result.DetectedMood)
			assert.Equal(t, tt.lowMood, result.IsLowMood)
		})
	}
}

func TestAnalyzer_ScoreIsClamped(t *testing.T) {
	result := NewAnalyzer().Analyze("terrible awful horrible worst scam hate")
	assert.Equal(t, -5.0, result.Score)
}

func TestDeriveFlags(t *testing.T) {
	resolved := &models.AIJudgment{CanResolve: true, HasContext: true, Confidence: 0.9}

	tests := []struct {
		name     string
		userMood string
		mood     *models.MoodSignal
		ai       *models.AIJudgment
		expected models.Flags
	}{
		{
			name:     "Declared low mood wins over analyzer",
			userMood: "frustrated",
			mood:     &models.MoodSignal{IsLowMood: false},
			ai:       resolved,
			expected: models.Flags{IsLowMood: true},
		},
		{
			name:     "Declared positive mood ignores analyzer",
			userMood: "calm",
			mood:     &models.MoodSignal{IsLowMood: true},
			ai:       resolved,
			expected: models.Flags{},
		},
		{
			name:     "No declared mood uses analyzer",
			userMood: "none",
			mood:     &models.MoodSignal{IsLowMood: true},
			ai:       resolved,
			expected: models.Flags{IsLowMood: true},
		},
		{
			name:     "Missing signals are neutral",
			expected: models.Flags{},
		},
		{
			name:     "Cannot resolve",
			ai:       &models.AIJudgment{CanResolve: false, HasContext: true, Confidence: 0.9},
			expected: models.Flags{AIUnresolved: true},
		},
		{
			name:     "No grounding context",
			ai:       &models.AIJudgment{CanResolve: true, HasContext: false, Confidence: 0.9},
			expected: models.Flags{AIUnresolved: true},
		},
		{
			name:     "Low confidence",
			ai:       &models.AIJudgment{CanResolve: true, HasContext: true, Confidence: 0.39},
			expected: models.Flags{AIUnresolved: true},
		},
		{
			name:     "Confidence at threshold is resolved",
			ai:       &models.AIJudgment{CanResolve: true, HasContext: true, Confidence: 0.4},
			expected: models.Flags{},
		},
		{
			name:     "Human requested",
			ai:       &models.AIJudgment{CanResolve: true, HasContext: true, Confidence: 0.9, NeedsHumanIntervention: true},
			expected: models.Flags{AIUnresolved: true},
		},
		{
			name:     "Gathering info passes through",
			userMood: "tired",
			ai:       &models.AIJudgment{CanResolve: true, HasContext: true, Confidence: 0.8, GatheringInfo: true},
			expected: models.Flags{IsLowMood: true, IsGatheringInfo: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DeriveFlags(tt.userMood, tt.mood, tt.ai))
		})
	}
}

func TestValidMood(t *testing.T) {
	assert.True(t, ValidMood("frustrated"))
	assert.True(t, ValidMood("None"))
	assert.True(t, ValidMood(""))
	assert.False(t, ValidMood("hungry"))
}
