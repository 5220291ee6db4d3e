package signals

import (
	"strings"
	"unicode"

	"github.com/mooddesk/escalation-bot/internal/models"
)

const (
	maxScore = 5.0
	minScore = -5.0
)

// lexicon holds AFINN-style valences in the range -5..5
var lexicon = map[string]float64{
	// negative
	"angry": -3, "annoyed": -2, "annoying": -2, "awful": -3, "bad": -3, "broken": -2,
	"bug": -2, "cancel": -1, "confused": -2, "confusing": -2, "disappointed": -2,
	"disappointing": -2, "error": -2, "fail": -2, "failed": -2, "failing": -2,
	"frustrated": -2, "frustrating": -2, "furious": -3, "hate": -3, "horrible": -3,
	"issue": -1, "lost": -3, "mad": -3, "never": -1, "problem": -2, "refund": -1,
	"ridiculous": -3, "sad": -2, "scam": -4, "slow": -1, "stuck": -2, "terrible": -3,
	"tired": -2, "unacceptable": -3, "unhappy": -2, "upset": -2, "useless": -2,
	"waste": -2, "worst": -3, "wrong": -2,
	// positive
	"amazing": 4, "awesome": 4, "excellent": 3, "fantastic": 4, "fine": 2, "glad": 3,
	"good": 3, "great": 3, "happy": 3, "helpful": 2, "love": 3, "nice": 3,
	"perfect": 3, "resolved": 2, "solved": 2, "success": 2, "thank": 2, "thanks": 2,
	"works": 2, "wonderful": 4,
}

var negators = map[string]bool{
	"not": true, "no": true, "dont": true, "don't": true, "isnt": true, "isn't": true,
	"doesnt": true, "doesn't": true, "cant": true, "can't": true, "wont": true, "won't": true,
}

// Analyzer scores free text with a word lexicon
type Analyzer struct {
	lowMoodThreshold float64
}

// NewAnalyzer creates a sentiment analyzer; scores below -1 are low mood
func NewAnalyzer() *Analyzer {
	return &Analyzer{lowMoodThreshold: -1}
}

// Analyze returns the mood signal for a single message
func (a *Analyzer) Analyze(text string) models.MoodSignal {
	score := a.score(text)

	return models.MoodSignal{
		Score:        score,
		DetectedMood: moodFor(score),
		IsLowMood:    score < a.lowMoodThreshold,
	}
}

func (a *Analyzer) score(text string) float64 {
	tokens := tokenize(text)

	var total float64
	negate := false
	for _, tok := range tokens {
		if negators[tok] {
			negate = true
			continue
		}
		if v, ok := lexicon[tok]; ok {
			if negate {
				v = -v
			}
			total += v
		}
		negate = false
	}

	if total > maxScore {
		return maxScore
	}
	if total < minScore {
		return minScore
	}
	return total
}

func moodFor(score float64) string {
	switch {
	case score < -2:
		return "very-negative"
	case score < -0.5:
		return "negative"
	case score > 2:
		return "very-positive"
	case score > 0.5:
		return "positive"
	default:
		return "neutral"
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
}
