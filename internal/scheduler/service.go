package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/mooddesk/escalation-bot/internal/analysis"
	"github.com/mooddesk/escalation-bot/internal/config"
	"github.com/mooddesk/escalation-bot/internal/metrics"
	"github.com/mooddesk/escalation-bot/internal/models"
	"github.com/mooddesk/escalation-bot/internal/store"
)

var errSkip = errors.New("session no longer idle")

// Service handles scheduled session housekeeping
type Service struct {
	config     *config.Config
	store      store.Store
	metrics    *metrics.Metrics
	summarizer analysis.EngagementAnalyzer
	cron       *cron.Cron
	now        func() time.Time
}

// NewService creates a new scheduler service
func NewService(cfg *config.Config, st store.Store, m *metrics.Metrics) *Service {
	return &Service{
		config:  cfg,
		store:   st,
		metrics: m,
		cron:    cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetSummarizer makes the sweep summarize each session it ends
func (s *Service) SetSummarizer(summarizer analysis.EngagementAnalyzer) {
	s.summarizer = summarizer
}

// Start begins the idle session sweep
func (s *Service) Start() error {
	_, err := s.cron.AddFunc(s.config.SessionSweepSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if _, err := s.EndIdleSessions(ctx); err != nil {
			logrus.Errorf("Idle session sweep failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid session sweep schedule %q: %w", s.config.SessionSweepSchedule, err)
	}

	s.cron.Start()
	logrus.Infof("Scheduler started with %s schedule (idle timeout %s)", s.config.SessionSweepSchedule, s.config.SessionIdleTimeout)
	return nil
}

// EndIdleSessions marks active sessions without activity for longer than the
// idle timeout as ended and returns how many it changed
func (s *Service) EndIdleSessions(ctx context.Context) (int, error) {
	now := s.now()
	cutoff := now.Add(-s.config.SessionIdleTimeout)

	idle, err := s.store.ListIdleSessions(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list idle sessions: %w", err)
	}

	var endedIDs []string
	for _, candidate := range idle {
		_, err := s.store.UpdateSession(ctx, candidate.ID, func(session *models.Session) error {
			// a message may have arrived since the listing
			if session.Status != models.SessionActive || !session.UpdatedAt.Before(cutoff) {
				return errSkip
			}
			session.Status = models.SessionEnded
			session.UpdatedAt = now
			return nil
		})

		switch {
		case err == nil:
			endedIDs = append(endedIDs, candidate.ID)
		case errors.Is(err, errSkip), errors.Is(err, store.ErrNotFound):
		default:
			logrus.WithError(err).WithField("session_id", candidate.ID).Warn("Failed to end idle session")
		}
	}

	ended := len(endedIDs)
	if ended > 0 {
		s.metrics.SessionsEndedBySweeper.Add(float64(ended))
		logrus.Infof("Ended %d idle sessions", ended)
	}

	if s.summarizer != nil {
		for _, id := range endedIDs {
			s.summarize(ctx, id)
		}
	}
	return ended, nil
}

// summarize stores an engagement summary of an ended session's transcript.
// Failures are logged; the session stays ended without a summary.
func (s *Service) summarize(ctx context.Context, sessionID string) {
	logger := logrus.WithField("session_id", sessionID)

	timeout := s.config.EnrichmentTimeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	// each summary gets its own budget, independent of the sweep deadline
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		logger.WithError(err).Warn("Failed to load session for summary")
		return
	}
	if len(session.Transcript) == 0 {
		return
	}

	last := session.Transcript[len(session.Transcript)-1]
	summary, err := s.summarizer.Analyze(ctx, analysis.Input{
		History:  session.Transcript[:len(session.Transcript)-1],
		Message:  last.Content,
		UserMood: last.Mood,
	})
	if err != nil {
		s.metrics.SessionSummaries.WithLabelValues("failed").Inc()
		logger.WithError(err).Warn("Failed to summarize ended session")
		return
	}

	_, err = s.store.UpdateSession(ctx, sessionID, func(session *models.Session) error {
		session.Summary = summary
		return nil
	})
	if err != nil {
		s.metrics.SessionSummaries.WithLabelValues("failed").Inc()
		logger.WithError(err).Warn("Failed to save session summary")
		return
	}

	s.metrics.SessionSummaries.WithLabelValues("saved").Inc()
	logger.Debug("Session summary saved")
}

// Stop stops the scheduler and waits for a running sweep to finish
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		logrus.Info("Scheduler stopped")
	}
}
