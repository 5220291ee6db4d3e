// Command replay runs a recorded conversation through the escalation pipeline
// with in-memory collaborators and prints the decision for every turn. Useful
// for checking cooldowns and thresholds against real transcripts.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/mooddesk/escalation-bot/internal/escalation"
	"github.com/mooddesk/escalation-bot/internal/locks"
	"github.com/mooddesk/escalation-bot/internal/metrics"
	"github.com/mooddesk/escalation-bot/internal/models"
	"github.com/mooddesk/escalation-bot/internal/notifications"
	"github.com/mooddesk/escalation-bot/internal/signals"
	"github.com/mooddesk/escalation-bot/internal/store"
)

// Transcript is the replay input file
type Transcript struct {
	Business models.Business `json:"business"`
	Turns    []Turn          `json:"turns"`
}

// Turn is one user message. At is the offset from the start of the conversation.
type Turn struct {
	At        string             `json:"at"`
	Message   string             `json:"message"`
	UserMood  string             `json:"user_mood"`
	Reply     string             `json:"reply"`
	Sentiment *models.MoodSignal `json:"sentiment"`
	AI        *models.AIJudgment `json:"ai"`
}

// ConsolePublisher prints alerts instead of pushing them
type ConsolePublisher struct{}

func (c *ConsolePublisher) PublishAlert(_ context.Context, event notifications.AlertEvent) error {
	fmt.Printf("      ALERT   %s (%s)\n", event.Title, event.ID)
	return nil
}

// ConsoleMailer prints the email subject and recipient
type ConsoleMailer struct{}

func (c *ConsoleMailer) Send(_ context.Context, email *notifications.Email) error {
	fmt.Printf("      EMAIL   to=%s subject=%q\n", email.To, email.Subject)
	return nil
}

func main() {
	path := flag.String("file", "", "transcript JSON file")
	verbose := flag.Bool("v", false, "log pipeline internals")
	flag.Parse()

	logrus.SetLevel(logrus.WarnLevel)
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if *path == "" {
		fmt.Fprintln(os.Stderr, "usage: replay -file transcript.json")
		os.Exit(2)
	}

	transcript, err := loadTranscript(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load transcript: %v\n", err)
		os.Exit(1)
	}

	if err := replay(transcript); err != nil {
		fmt.Fprintf(os.Stderr, "Replay failed: %v\n", err)
		os.Exit(1)
	}
}

func loadTranscript(path string) (*Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("invalid transcript: %w", err)
	}
	if t.Business.ID == "" {
		t.Business.ID = "replay-business"
	}
	if t.Business.Name == "" {
		t.Business.Name = "Replay Business"
	}
	if t.Business.Email == "" {
		t.Business.Email = "owner@example.com"
	}
	return &t, nil
}

func replay(t *Transcript) error {
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	clock := start

	st := store.NewMemoryStore()
	locker := locks.NewKeyedMutex()
	m := metrics.NewMetrics(prometheus.NewRegistry())

	dispatcher := escalation.NewDispatcher(st, locker, &ConsolePublisher{}, &ConsoleMailer{}, nil, nil, m, escalation.Options{
		AdminURL: "http://localhost:3000",
	})
	service := escalation.NewService(st, locker, dispatcher, m)
	service.SetClock(func() time.Time { return clock })

	if err := st.SaveBusiness(ctx, &t.Business); err != nil {
		return err
	}
	session := &models.Session{
		ID:         "replay-session",
		BusinessID: t.Business.ID,
		Status:     models.SessionActive,
		CreatedAt:  start,
		UpdatedAt:  start,
	}
	if err := st.SaveSession(ctx, session); err != nil {
		return err
	}

	analyzer := signals.NewAnalyzer()
	var history []models.ChatTurn

	fmt.Println("Escalation replay")
	fmt.Println(strings.Repeat("=", 70))

	for i, turn := range t.Turns {
		if turn.At != "" {
			offset, err := time.ParseDuration(turn.At)
			if err != nil {
				return fmt.Errorf("turn %d: invalid offset %q: %w", i+1, turn.At, err)
			}
			clock = start.Add(offset)
		}

		sentiment := turn.Sentiment
		if sentiment == nil && !signals.HasDeclaredMood(turn.UserMood) {
			computed := analyzer.Analyze(turn.Message)
			sentiment = &computed
		}
		flags := signals.DeriveFlags(turn.UserMood, sentiment, turn.AI)

		d, err := service.OnInboundMessage(ctx, escalation.Inbound{
			SessionID: session.ID,
			Message:   turn.Message,
			UserMood:  turn.UserMood,
			Sentiment: sentiment,
			AI:        turn.AI,
			History:   history,
			Flags:     flags,
		})
		if err != nil {
			return fmt.Errorf("turn %d: %w", i+1, err)
		}
		service.Wait()

		fmt.Printf("\n[+%s] %q\n", clock.Sub(start), truncate(turn.Message, 60))
		fmt.Printf("      flags   lowMood=%t unresolved=%t gathering=%t\n", flags.IsLowMood, flags.AIUnresolved, flags.IsGatheringInfo)
		fmt.Printf("      result  severity=%s alert=%t throttled=%t case=%t email=%t\n",
			d.Severity, d.ShouldSendAlert, d.Throttled, d.ShouldCreateCase, d.ShouldSendEmail)

		history = append(history, models.ChatTurn{Role: "user", Content: turn.Message, Mood: turn.UserMood})
		if turn.Reply != "" {
			history = append(history, models.ChatTurn{Role: "assistant", Content: turn.Reply})
		}
	}

	final, err := st.GetSession(ctx, session.ID)
	if err != nil {
		return err
	}
	cases, err := st.ListCasesByBusiness(ctx, t.Business.ID)
	if err != nil {
		return err
	}
	alerts, err := st.ListAlertsBySession(ctx, session.ID)
	if err != nil {
		return err
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	fmt.Printf("Alerts: %d  Cases: %d  Email sent: %t  Open case: %t\n",
		len(alerts), len(cases), final.AlertState.EmailSent, final.AlertState.HasOpenCase)
	for _, c := range cases {
		if c.EngagementAnalysis != nil {
			fmt.Printf("Case %s: %s\n", c.ID, c.EngagementAnalysis.Summary)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
