// Package decision maps per-message signals and the prior session alert state
// to an alert decision. Everything here is a pure function of its inputs.
package decision

import (
	"time"

	"github.com/mooddesk/escalation-bot/internal/models"
)

// Cooldowns between two dashboard alerts of the same severity for one session
const (
	LowMoodCooldown    = 90 * time.Second
	UnresolvedCooldown = 150 * time.Second
	CriticalCooldown   = 8 * time.Minute
)

// Decision is the outcome for a single inbound message
type Decision struct {
	Severity         models.Severity `json:"severity"`
	ShouldSendAlert  bool            `json:"should_send_alert"`
	ShouldSendEmail  bool            `json:"should_send_email"`
	ShouldCreateCase bool            `json:"should_create_case"`
	Throttled        bool            `json:"throttled"`
}

// Cooldown returns the throttle window for a severity. None has no window.
func Cooldown(severity models.Severity) time.Duration {
	switch severity {
	case models.SeverityLowMood:
		return LowMoodCooldown
	case models.SeverityUnresolved:
		return UnresolvedCooldown
	case models.SeverityCritical:
		return CriticalCooldown
	default:
		return 0
	}
}

// SeverityFor ranks the flags: critical > unresolved > lowMood > none
func SeverityFor(flags models.Flags) models.Severity {
	switch {
	case flags.AIUnresolved && flags.IsLowMood:
		return models.SeverityCritical
	case flags.AIUnresolved:
		return models.SeverityUnresolved
	case flags.IsLowMood:
		return models.SeverityLowMood
	default:
		return models.SeverityNone
	}
}

// Compute returns the alert decision for flags given the session's alert state.
// A nil state is treated as a session that has never alerted.
func Compute(flags models.Flags, state *models.AlertState, now time.Time) Decision {
	none := Decision{Severity: models.SeverityNone}

	// The agent is still asking clarifying questions; nothing is unresolved yet.
	if flags.IsGatheringInfo {
		return none
	}

	severity := SeverityFor(flags)
	if severity == models.SeverityNone {
		return none
	}

	var prior models.AlertState
	if state != nil {
		prior = *state
	}

	throttled := false
	if prior.LastAlertType == severity && prior.LastAlertTimestamp != nil {
		if now.Sub(*prior.LastAlertTimestamp) < Cooldown(severity) {
			throttled = true
		}
	}

	d := Decision{
		Severity:        severity,
		ShouldSendAlert: !throttled,
		Throttled:       throttled,
	}

	if severity == models.SeverityCritical {
		d.ShouldCreateCase = !prior.HasOpenCase
		d.ShouldSendEmail = !prior.EmailSent
	}

	return d
}

// Title is the dashboard title for an alert of the given severity
func Title(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "Critical: Low Mood + Unresolved"
	case models.SeverityUnresolved:
		return "AI Cannot Resolve"
	case models.SeverityLowMood:
		return "Low Mood Detected"
	default:
		return "Alert"
	}
}
