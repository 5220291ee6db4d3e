// Package escalation turns inbound chat messages into alert decisions and
// executes them: dashboard alerts, escalated cases and escalation email.
//
// Every message for a session is handled under that session's lock, so the
// read-decide-dispatch-persist sequence never interleaves for one session.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mooddesk/escalation-bot/internal/decision"
	"github.com/mooddesk/escalation-bot/internal/locks"
	"github.com/mooddesk/escalation-bot/internal/metrics"
	"github.com/mooddesk/escalation-bot/internal/models"
	"github.com/mooddesk/escalation-bot/internal/store"
)

var (
	ErrBusinessMismatch = errors.New("session belongs to a different business")
	ErrCaseResolved     = errors.New("case is already resolved")
)

// Inbound is one user chat turn together with the signals computed for it
type Inbound struct {
	SessionID  string
	BusinessID string
	MessageID  string
	Message    string
	UserMood   string
	Sentiment  *models.MoodSignal
	AI         *models.AIJudgment
	History    []models.ChatTurn
	Flags      models.Flags
}

// Service is the entry point for the chat-turn handler
type Service struct {
	store      store.Store
	locker     locks.Locker
	dispatcher *Dispatcher
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewService creates a new escalation service
func NewService(st store.Store, locker locks.Locker, dispatcher *Dispatcher, m *metrics.Metrics) *Service {
	return &Service{
		store:      st,
		locker:     locker,
		dispatcher: dispatcher,
		metrics:    m,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source used for decisions
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Wait blocks until background dispatch work has finished
func (s *Service) Wait() {
	s.dispatcher.Wait()
}

// OnInboundMessage decides whether the message escalates and dispatches the decision.
// Only ErrStatePersist (and lock or lookup failures) are returned; side-effect
// failures are logged.
func (s *Service) OnInboundMessage(ctx context.Context, in Inbound) (*decision.Decision, error) {
	start := time.Now()
	defer func() {
		s.metrics.DispatchDuration.Observe(time.Since(start).Seconds())
	}()

	unlock, err := s.locker.Lock(ctx, in.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock session %s: %w", in.SessionID, err)
	}
	defer unlock()

	logger := logrus.WithFields(logrus.Fields{
		"session_id":  in.SessionID,
		"business_id": in.BusinessID,
	})

	session, err := s.store.GetSession(ctx, in.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		logger.Info("Message for unknown session ignored")
		none := decision.Decision{Severity: models.SeverityNone}
		return &none, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", in.SessionID, err)
	}

	if in.BusinessID == "" {
		in.BusinessID = session.BusinessID
	} else if in.BusinessID != session.BusinessID {
		return nil, ErrBusinessMismatch
	}

	now := s.now()
	d := decision.Compute(in.Flags, &session.AlertState, now)
	s.metrics.DecisionsTotal.WithLabelValues(string(d.Severity)).Inc()

	if d.Severity == models.SeverityNone {
		return &d, nil
	}
	if d.Throttled {
		s.metrics.AlertsThrottled.WithLabelValues(string(d.Severity)).Inc()
		logger.WithField("severity", d.Severity).Debug("Alert throttled by cooldown")
	}

	_, err = s.dispatcher.Dispatch(ctx, DispatchInput{
		SessionID:  in.SessionID,
		BusinessID: in.BusinessID,
		MessageID:  in.MessageID,
		Message:    in.Message,
		UserMood:   in.UserMood,
		Sentiment:  in.Sentiment,
		AI:         in.AI,
		History:    in.History,
		Decision:   d,
		Now:        now,
	})
	return &d, err
}

// StartCase marks an open case as being worked on
func (s *Service) StartCase(ctx context.Context, caseID string) (*models.EscalatedCase, error) {
	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, c.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock session %s: %w", c.SessionID, err)
	}
	defer unlock()

	if c, err = s.store.GetCase(ctx, caseID); err != nil {
		return nil, err
	}

	switch c.Status {
	case models.CaseResolved:
		return nil, ErrCaseResolved
	case models.CaseInProgress:
		return c, nil
	}

	c.Status = models.CaseInProgress
	c.UpdatedAt = s.now()
	if err := s.store.UpdateCase(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to update case %s: %w", caseID, err)
	}

	s.dispatcher.archive(ctx, logrus.WithField("case_id", c.ID), c)
	return c, nil
}

// ResolveCase closes a case and clears the session's open-case flag, which
// lets the next critical message open a new case. The email flag stays set.
func (s *Service) ResolveCase(ctx context.Context, caseID, userID, notes string) (*models.EscalatedCase, error) {
	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.Status == models.CaseResolved {
		return c, nil
	}

	unlock, err := s.locker.Lock(ctx, c.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock session %s: %w", c.SessionID, err)
	}
	defer unlock()

	// re-read under the lock; enrichment may have written meanwhile
	c, err = s.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	c.Status = models.CaseResolved
	c.ResolvedBy = userID
	c.ResolvedAt = &now
	c.ResolutionNotes = notes
	c.UpdatedAt = now
	if err := s.store.UpdateCase(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to update case %s: %w", caseID, err)
	}

	_, err = s.store.UpdateSession(ctx, c.SessionID, func(session *models.Session) error {
		session.AlertState.HasOpenCase = false
		return nil
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrStatePersist, err)
	}

	logger := logrus.WithFields(logrus.Fields{
		"case_id":    c.ID,
		"session_id": c.SessionID,
	})
	s.dispatcher.archive(ctx, logger, c)
	logger.Info("Escalated case resolved")

	return c, nil
}
