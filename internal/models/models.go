package models

import "time"

// Severity is the escalation level computed for an inbound message
type Severity string

const (
	SeverityNone       Severity = "none"
	SeverityLowMood    Severity = "lowMood"
	SeverityUnresolved Severity = "unresolved"
	SeverityCritical   Severity = "critical"
)

// AlertState is the per-session alert memory embedded in a chat session
type AlertState struct {
	LastAlertType      Severity   `json:"last_alert_type"`
	LastAlertTimestamp *time.Time `json:"last_alert_timestamp,omitempty"`
	EmailSent          bool       `json:"email_sent"`
	HasOpenCase        bool       `json:"has_open_case"`
}

// Flags are computed per message and never persisted
type Flags struct {
	IsLowMood       bool `json:"is_low_mood"`
	AIUnresolved    bool `json:"ai_unresolved"`
	IsGatheringInfo bool `json:"is_gathering_info"`
}

// MoodSignal is the sentiment analyzer output for a single message
type MoodSignal struct {
	IsLowMood    bool    `json:"is_low_mood"`
	DetectedMood string  `json:"detected_mood"`
	Score        float64 `json:"score"`
}

// AIJudgment is the metadata the AI responder attaches to its answer
type AIJudgment struct {
	CanResolve             bool    `json:"can_resolve"`
	IssueResolved          bool    `json:"issue_resolved"`
	HasContext             bool    `json:"has_context"`
	Confidence             float64 `json:"confidence"`
	NeedsHumanIntervention bool    `json:"needs_human_intervention"`
	GatheringInfo          bool    `json:"gathering_info"`
	Reasoning              string  `json:"reasoning"`
}

// Business is a tenant of the chatbot platform
type Business struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"` // escalation recipient
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionStatus is the lifecycle status of a chat session
type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionEnded   SessionStatus = "ended"
	SessionDeleted SessionStatus = "deleted"
)

// Session is a visitor conversation with a business's chatbot
type Session struct {
	ID         string              `json:"id"`
	BusinessID string              `json:"business_id"`
	VisitorID  string              `json:"visitor_id"`
	Title      string              `json:"title"`
	Status     SessionStatus       `json:"status"`
	AlertState AlertState          `json:"alert_state"`
	Transcript []ChatTurn          `json:"transcript,omitempty"`
	Summary    *EngagementAnalysis `json:"summary,omitempty"` // set by the idle sweeper
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// MaxTranscriptTurns bounds the conversation kept on a session for summaries
const MaxTranscriptTurns = 20

// AppendTurns adds turns to the transcript, keeping the newest MaxTranscriptTurns.
// It always allocates, so copies of the session never share a backing array.
func (s *Session) AppendTurns(turns ...ChatTurn) {
	all := make([]ChatTurn, 0, len(s.Transcript)+len(turns))
	all = append(all, s.Transcript...)
	all = append(all, turns...)
	if len(all) > MaxTranscriptTurns {
		all = all[len(all)-MaxTranscriptTurns:]
	}
	s.Transcript = all
}

// AlertStatus is the read status of a dashboard alert
type AlertStatus string

const (
	AlertUnread AlertStatus = "unread"
	AlertRead   AlertStatus = "read"
)

// Alert is a persisted dashboard alert
type Alert struct {
	ID         string                 `json:"id"`
	BusinessID string                 `json:"business_id"`
	SessionID  string                 `json:"session_id"`
	MessageID  string                 `json:"message_id,omitempty"`
	Type       Severity               `json:"type"`
	Title      string                 `json:"title"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Status     AlertStatus            `json:"status"`
	ReadBy     string                 `json:"read_by,omitempty"`
	ReadAt     *time.Time             `json:"read_at,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// CaseStatus is the lifecycle status of an escalated case
type CaseStatus string

const (
	CaseOpen       CaseStatus = "open"
	CaseInProgress CaseStatus = "in_progress"
	CaseResolved   CaseStatus = "resolved"
)

// EngagementAnalysis is the deeper mood/engagement read added to a case after creation
type EngagementAnalysis struct {
	DetectedMood      string `json:"detected_mood"`
	EngagementLevel   int    `json:"engagement_level"` // 1-10
	ConversationType  string `json:"conversation_type"`
	NeedsIntervention bool   `json:"needs_intervention"`
	Summary           string `json:"summary"`
	Title             string `json:"title"`
	Fallback          bool   `json:"fallback,omitempty"`
}

// EscalatedCase tracks a conversation that needs human follow-up
type EscalatedCase struct {
	ID                 string              `json:"id"`
	BusinessID         string              `json:"business_id"`
	SessionID          string              `json:"session_id"`
	InitialMessage     string              `json:"initial_message"`
	Mood               string              `json:"mood,omitempty"`
	Sentiment          *MoodSignal         `json:"sentiment,omitempty"`
	AI                 *AIJudgment         `json:"ai,omitempty"`
	EngagementAnalysis *EngagementAnalysis `json:"engagement_analysis,omitempty"`
	Status             CaseStatus          `json:"status"`
	EmailSentAt        *time.Time          `json:"email_sent_at,omitempty"`
	ResolvedBy         string              `json:"resolved_by,omitempty"`
	ResolvedAt         *time.Time          `json:"resolved_at,omitempty"`
	ResolutionNotes    string              `json:"resolution_notes,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// ChatTurn is one line of conversation history handed to the enrichment step
type ChatTurn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
	Mood    string `json:"mood,omitempty"`
}
