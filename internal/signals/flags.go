// Package signals turns the raw per-message collaborators (declared mood,
// sentiment analysis, AI judgment) into the flags the decision engine consumes.
package signals

import (
	"strings"

	"github.com/mooddesk/escalation-bot/internal/models"
)

// LowConfidenceThreshold is the AI confidence below which an answer counts as unresolved
const LowConfidenceThreshold = 0.4

// MoodNone means the visitor did not declare a mood
const MoodNone = "none"

var validMoods = map[string]bool{
	"positive": true, "negative": true, "excited": true, "calm": true,
	"frustrated": true, "tired": true, MoodNone: true,
}

var lowMoods = map[string]bool{
	"frustrated": true, "tired": true, "negative": true,
}

// ValidMood reports whether a declared mood is one the widget offers
func ValidMood(mood string) bool {
	return mood == "" || validMoods[strings.ToLower(mood)]
}

// HasDeclaredMood reports whether the visitor picked a mood for this message
func HasDeclaredMood(mood string) bool {
	return mood != "" && !strings.EqualFold(mood, MoodNone)
}

// DeriveFlags computes the decision flags for one message. A missing mood
// signal or AI judgment falls back to neutral and resolved.
func DeriveFlags(userMood string, mood *models.MoodSignal, ai *models.AIJudgment) models.Flags {
	var flags models.Flags

	if HasDeclaredMood(userMood) {
		flags.IsLowMood = lowMoods[strings.ToLower(userMood)]
	} else if mood != nil {
		flags.IsLowMood = mood.IsLowMood
	}

	if ai != nil {
		flags.AIUnresolved = !ai.CanResolve ||
			!ai.HasContext ||
			ai.Confidence < LowConfidenceThreshold ||
			ai.NeedsHumanIntervention
		flags.IsGatheringInfo = ai.GatheringInfo
	}

	return flags
}
