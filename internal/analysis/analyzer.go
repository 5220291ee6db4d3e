package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mooddesk/escalation-bot/internal/models"
)

// historyWindow is how many trailing turns are sent to the model
const historyWindow = 10

// Input is everything known about the conversation at escalation time
type Input struct {
	History   []models.ChatTurn
	Message   string
	UserMood  string
	Sentiment *models.MoodSignal
	AI        *models.AIJudgment
}

// EngagementAnalyzer produces the narrative attached to an escalated case
type EngagementAnalyzer interface {
	Analyze(ctx context.Context, input Input) (*models.EngagementAnalysis, error)
}

// Fallback is used whenever the analyzer is unavailable
func Fallback() *models.EngagementAnalysis {
	return &models.EngagementAnalysis{
		DetectedMood:      "neutral",
		EngagementLevel:   5,
		ConversationType:  "inquiry",
		NeedsIntervention: false,
		Summary:           "User seems neutral; no urgent action required.",
		Title:             "Conversation needs review",
		Fallback:          true,
	}
}

// OpenAIAnalyzer asks an OpenAI-compatible chat model for the analysis
type OpenAIAnalyzer struct {
	client *openai.Client
	model  string
}

// Ensure OpenAIAnalyzer implements EngagementAnalyzer
var _ EngagementAnalyzer = (*OpenAIAnalyzer)(nil)

// NewOpenAIAnalyzer creates an analyzer; baseURL may be empty for the public API
func NewOpenAIAnalyzer(apiKey, baseURL, model string) *OpenAIAnalyzer {
	if model == "" {
		model = openai.GPT4oMini
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &OpenAIAnalyzer{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

const systemPrompt = `You are an empathic business assistant that monitors live chat interactions
to detect user mood, engagement and the need for human intervention.

Reply with a single JSON object and nothing else, using these fields:
- detectedMood: one of positive, negative, excited, calm, frustrated, tired, neutral
- engagementLevel: integer 1-10 (1 = disengaged, 10 = highly engaged)
- conversationType: one of support, sales, complaint, inquiry, casual
- needsIntervention: true if a human should follow up
- title: brief title for the alert (max 10 words)
- summary: concise summary of the conversation (max 150 words)`

// Analyze calls the model; callers should use Fallback on error
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, input Input) (*models.EngagementAnalysis, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(input)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.2,
		MaxTokens:   400,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response choices")
	}

	return ParseAnalysis(resp.Choices[0].Message.Content)
}

// BuildPrompt renders the user message sent to the model
func BuildPrompt(input Input) string {
	var b strings.Builder

	userMood := input.UserMood
	if userMood == "" {
		userMood = "none"
	}

	b.WriteString("Provided data:\n")
	fmt.Fprintf(&b, "- userMood: %s\n", userMood)
	if input.Sentiment != nil {
		fmt.Fprintf(&b, "- detectedMood: %s\n", input.Sentiment.DetectedMood)
		fmt.Fprintf(&b, "- sentimentScore: %.1f\n", input.Sentiment.Score)
		fmt.Fprintf(&b, "- isLowMood: %t\n", input.Sentiment.IsLowMood)
	} else {
		b.WriteString("- detectedMood: unknown\n- sentimentScore: N/A\n")
	}
	if input.AI != nil {
		fmt.Fprintf(&b, "- hasContext: %t\n", input.AI.HasContext)
		fmt.Fprintf(&b, "- canResolve: %t\n", input.AI.CanResolve)
		fmt.Fprintf(&b, "- needsHumanIntervention: %t\n", input.AI.NeedsHumanIntervention)
		fmt.Fprintf(&b, "- confidence: %.2f\n", input.AI.Confidence)
		reasoning := input.AI.Reasoning
		if reasoning == "" {
			reasoning = "N/A"
		}
		fmt.Fprintf(&b, "- reasoning: %s\n", reasoning)
	}

	history := input.History
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	b.WriteString("\nConversation:\n")
	for _, turn := range history {
		if turn.Role == "user" {
			mood := turn.Mood
			if mood == "" {
				mood = "unknown"
			}
			fmt.Fprintf(&b, "%s: %s (Mood: %s)\n", turn.Role, turn.Content, mood)
		} else {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
		}
	}

	fmt.Fprintf(&b, "\nLatest message:\n%s\n", input.Message)
	return b.String()
}

type analysisResponse struct {
	DetectedMood      string          `json:"detectedMood"`
	EngagementLevel   json.Number     `json:"engagementLevel"`
	ConversationType  string          `json:"conversationType"`
	NeedsIntervention json.RawMessage `json:"needsIntervention"`
	Title             string          `json:"title"`
	Summary           string          `json:"summary"`
}

// ParseAnalysis decodes a model reply, tolerating code fences and stringly-typed fields
func ParseAnalysis(content string) (*models.EngagementAnalysis, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var raw analysisResponse
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse analysis: %w", err)
	}
	if raw.Summary == "" {
		return nil, fmt.Errorf("analysis has no summary")
	}

	level := 5
	if raw.EngagementLevel != "" {
		if f, err := raw.EngagementLevel.Float64(); err == nil {
			level = int(f)
		}
	}
	if level < 1 {
		level = 1
	}
	if level > 10 {
		level = 10
	}

	mood := strings.ToLower(strings.TrimSpace(raw.DetectedMood))
	if mood == "" {
		mood = "neutral"
	}
	convType := strings.ToLower(strings.TrimSpace(raw.ConversationType))
	if convType == "" {
		convType = "inquiry"
	}

	return &models.EngagementAnalysis{
		DetectedMood:      mood,
		EngagementLevel:   level,
		ConversationType:  convType,
		NeedsIntervention: parseLooseBool(raw.NeedsIntervention),
		Title:             strings.TrimSpace(raw.Title),
		Summary:           strings.TrimSpace(raw.Summary),
	}, nil
}

func parseLooseBool(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.EqualFold(strings.TrimSpace(s), "true")
	}
	return false
}
