package escalation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mooddesk/escalation-bot/internal/analysis"
	"github.com/mooddesk/escalation-bot/internal/decision"
	"github.com/mooddesk/escalation-bot/internal/locks"
	"github.com/mooddesk/escalation-bot/internal/metrics"
	"github.com/mooddesk/escalation-bot/internal/models"
	"github.com/mooddesk/escalation-bot/internal/notifications"
	"github.com/mooddesk/escalation-bot/internal/store"
)

// ErrStatePersist is the one fatal dispatch error. The caller should retry the whole turn.
var ErrStatePersist = errors.New("failed to persist session alert state")

// CaseArchiver keeps a durable copy of escalated cases
type CaseArchiver interface {
	ArchiveCase(ctx context.Context, c *models.EscalatedCase) error
}

// Options tunes the dispatcher's timeouts and fallbacks
type Options struct {
	AlertEmail        string // used when the business has no escalation address
	AdminURL          string
	SideEffectTimeout time.Duration
	EnrichmentTimeout time.Duration
	PersistAttempts   int
	PersistBackoff    time.Duration
}

// DispatchInput is a computed decision plus the message context its side effects need
type DispatchInput struct {
	SessionID  string
	BusinessID string
	MessageID  string
	Message    string
	UserMood   string
	Sentiment  *models.MoodSignal
	AI         *models.AIJudgment
	History    []models.ChatTurn
	Decision   decision.Decision
	Now        time.Time
}

// DispatchResult reports what the synchronous part of a dispatch produced
type DispatchResult struct {
	Alert *models.Alert
	Case  *models.EscalatedCase
	// State is nil when the session disappeared before it could be written
	State *models.AlertState
}

// Dispatcher executes decisions. Alert and case writes, fan-out and email are
// best effort; only the session alert state write can fail a dispatch.
type Dispatcher struct {
	store     store.Store
	locker    locks.Locker
	publisher notifications.AlertPublisher
	mailer    notifications.Mailer
	analyzer  analysis.EngagementAnalyzer
	archiver  CaseArchiver
	metrics   *metrics.Metrics
	opts      Options

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher. publisher, mailer, analyzer and archiver may be nil;
// locker must be the same Locker the Service serializes sessions with.
func NewDispatcher(
	st store.Store,
	locker locks.Locker,
	publisher notifications.AlertPublisher,
	mailer notifications.Mailer,
	analyzer analysis.EngagementAnalyzer,
	archiver CaseArchiver,
	m *metrics.Metrics,
	opts Options,
) *Dispatcher {
	if opts.SideEffectTimeout <= 0 {
		opts.SideEffectTimeout = 10 * time.Second
	}
	if opts.EnrichmentTimeout <= 0 {
		opts.EnrichmentTimeout = 45 * time.Second
	}
	if opts.PersistAttempts < 1 {
		opts.PersistAttempts = 1
	}
	if opts.PersistBackoff <= 0 {
		opts.PersistBackoff = 100 * time.Millisecond
	}

	return &Dispatcher{
		store:     st,
		locker:    locker,
		publisher: publisher,
		mailer:    mailer,
		analyzer:  analyzer,
		archiver:  archiver,
		metrics:   m,
		opts:      opts,
	}
}

// Wait blocks until background enrichment and email work has finished
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Dispatch runs the side effects of in.Decision and then persists the session alert state.
// The returned error is non-nil only when that final write failed.
func (d *Dispatcher) Dispatch(ctx context.Context, in DispatchInput) (*DispatchResult, error) {
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}

	logger := logrus.WithFields(logrus.Fields{
		"session_id":  in.SessionID,
		"business_id": in.BusinessID,
		"severity":    in.Decision.Severity,
	})

	result := &DispatchResult{}

	if in.Decision.ShouldSendAlert {
		result.Alert = d.sendAlert(ctx, logger, in)
	}

	caseOpen := false
	if in.Decision.ShouldCreateCase {
		var err error
		result.Case, err = d.createCase(ctx, in)
		switch {
		case err == nil:
			caseOpen = true
			d.metrics.CasesCreated.Inc()
			logger.WithField("case_id", result.Case.ID).Info("Escalated case created")
		case errors.Is(err, store.ErrCaseAlreadyOpen):
			// the store knows about an open case the session state missed
			caseOpen = true
			logger.Warn("Session already has an open case; not creating another")
		default:
			d.sideEffectFailed(logger, "create_case", err)
		}
	}

	// the email belongs to a case: one was just opened, or the decision
	// skipped creation because the session already has one
	sendEmail := in.Decision.ShouldSendEmail && (caseOpen || !in.Decision.ShouldCreateCase)
	if in.Decision.ShouldSendEmail && !sendEmail {
		logger.Warn("Escalation email deferred until a case exists")
	}

	if result.Case != nil || sendEmail {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.followUp(context.WithoutCancel(ctx), logger, in, result.Case, sendEmail)
		}()
	}

	state, err := d.persistState(ctx, in, caseOpen, sendEmail)
	if err != nil {
		d.metrics.StatePersistFailures.Inc()
		logger.WithError(err).Error("Failed to persist session alert state")
		return result, err
	}
	if state == nil {
		logger.Info("Session no longer exists; alert state not written")
	}
	result.State = state

	return result, nil
}

func (d *Dispatcher) sendAlert(ctx context.Context, logger *logrus.Entry, in DispatchInput) *models.Alert {
	alert := &models.Alert{
		ID:         uuid.NewString(),
		BusinessID: in.BusinessID,
		SessionID:  in.SessionID,
		MessageID:  in.MessageID,
		Type:       in.Decision.Severity,
		Title:      decision.Title(in.Decision.Severity),
		Details:    alertDetails(in),
		Status:     models.AlertUnread,
		CreatedAt:  in.Now,
	}

	saveCtx, cancel := context.WithTimeout(ctx, d.opts.SideEffectTimeout)
	defer cancel()

	if err := d.store.SaveAlert(saveCtx, alert); err != nil {
		d.sideEffectFailed(logger, "save_alert", err)
		return nil
	}
	d.metrics.AlertsDispatched.WithLabelValues(string(alert.Type)).Inc()

	if d.publisher != nil {
		pubCtx, cancel := context.WithTimeout(ctx, d.opts.SideEffectTimeout)
		defer cancel()

		if err := d.publisher.PublishAlert(pubCtx, notifications.NewAlertEvent(alert)); err != nil {
			d.sideEffectFailed(logger, "publish_alert", err)
		}
	}

	logger.WithField("alert_id", alert.ID).Info("Alert dispatched")
	return alert
}

func alertDetails(in DispatchInput) map[string]interface{} {
	details := map[string]interface{}{
		"user_mood": in.UserMood,
	}
	if in.Sentiment != nil {
		details["sentiment"] = in.Sentiment
	}
	if in.AI != nil {
		details["ai"] = in.AI
	}
	return details
}

func (d *Dispatcher) createCase(ctx context.Context, in DispatchInput) (*models.EscalatedCase, error) {
	c := &models.EscalatedCase{
		ID:             uuid.NewString(),
		BusinessID:     in.BusinessID,
		SessionID:      in.SessionID,
		InitialMessage: in.Message,
		Mood:           in.UserMood,
		Sentiment:      in.Sentiment,
		AI:             in.AI,
		Status:         models.CaseOpen,
		CreatedAt:      in.Now,
		UpdatedAt:      in.Now,
	}

	createCtx, cancel := context.WithTimeout(ctx, d.opts.SideEffectTimeout)
	defer cancel()

	if err := d.store.CreateCase(createCtx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// followUp enriches a new case and sends the escalation email. It runs off the
// message path, so failures here only cost enrichment fields or the email.
func (d *Dispatcher) followUp(ctx context.Context, logger *logrus.Entry, in DispatchInput, created *models.EscalatedCase, sendEmail bool) {
	c := created
	if c == nil {
		getCtx, cancel := context.WithTimeout(ctx, d.opts.SideEffectTimeout)
		existing, err := d.store.GetOpenCase(getCtx, in.SessionID)
		cancel()
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			logger.WithError(err).Warn("Failed to load open case for escalation email")
		}
		c = existing
	}

	var analysisResult *models.EngagementAnalysis
	if created != nil {
		analysisResult = d.enrich(ctx, logger, in, created)
	} else if c != nil && c.EngagementAnalysis != nil {
		analysisResult = c.EngagementAnalysis
	} else {
		analysisResult = analysis.Fallback()
	}

	if !sendEmail {
		return
	}

	sent, err := d.sendEmail(ctx, logger, in, analysisResult)
	if err != nil {
		d.metrics.EmailsFailed.Inc()
		d.sideEffectFailed(logger, "send_email", err)
		return
	}
	if !sent {
		return
	}
	d.metrics.EmailsSent.Inc()

	if c != nil {
		sentAt := time.Now().UTC()
		d.updateCase(ctx, logger, c.SessionID, c.ID, func(stored *models.EscalatedCase) {
			stored.EmailSentAt = &sentAt
		})
	}
}

func (d *Dispatcher) enrich(ctx context.Context, logger *logrus.Entry, in DispatchInput, c *models.EscalatedCase) *models.EngagementAnalysis {
	result := analysis.Fallback()

	if d.analyzer != nil {
		enrichCtx, cancel := context.WithTimeout(ctx, d.opts.EnrichmentTimeout)
		analyzed, err := d.analyzer.Analyze(enrichCtx, analysis.Input{
			History:   in.History,
			Message:   in.Message,
			UserMood:  in.UserMood,
			Sentiment: in.Sentiment,
			AI:        in.AI,
		})
		cancel()

		if err != nil {
			d.sideEffectFailed(logger, "enrich_case", err)
		} else {
			result = analyzed
		}
	}

	d.updateCase(ctx, logger, c.SessionID, c.ID, func(stored *models.EscalatedCase) {
		stored.EngagementAnalysis = result
	})
	return result
}

// updateCase re-reads the case under the session lock so a concurrent
// resolution is not overwritten
func (d *Dispatcher) updateCase(ctx context.Context, logger *logrus.Entry, sessionID, caseID string, fn func(*models.EscalatedCase)) {
	updateCtx, cancel := context.WithTimeout(ctx, d.opts.SideEffectTimeout)
	defer cancel()

	unlock, err := d.locker.Lock(updateCtx, sessionID)
	if err != nil {
		d.sideEffectFailed(logger, "update_case", err)
		return
	}
	defer unlock()

	stored, err := d.store.GetCase(updateCtx, caseID)
	if err != nil {
		d.sideEffectFailed(logger, "update_case", err)
		return
	}
	fn(stored)
	stored.UpdatedAt = time.Now().UTC()

	if err := d.store.UpdateCase(updateCtx, stored); err != nil {
		d.sideEffectFailed(logger, "update_case", err)
		return
	}

	d.archive(updateCtx, logger, stored)
}

func (d *Dispatcher) archive(ctx context.Context, logger *logrus.Entry, c *models.EscalatedCase) {
	if d.archiver == nil {
		return
	}
	if err := d.archiver.ArchiveCase(ctx, c); err != nil {
		d.sideEffectFailed(logger, "archive_case", err)
	}
}

func (d *Dispatcher) sendEmail(ctx context.Context, logger *logrus.Entry, in DispatchInput, result *models.EngagementAnalysis) (bool, error) {
	if d.mailer == nil {
		logger.Warn("No mailer configured; escalation email skipped")
		return false, nil
	}

	emailCtx, cancel := context.WithTimeout(ctx, d.opts.SideEffectTimeout)
	defer cancel()

	to := d.opts.AlertEmail
	businessName := in.BusinessID
	business, err := d.store.GetBusiness(emailCtx, in.BusinessID)
	switch {
	case err == nil:
		businessName = business.Name
		if business.Email != "" {
			to = business.Email
		}
	case errors.Is(err, store.ErrNotFound):
	default:
		logger.WithError(err).Warn("Failed to load business for escalation email")
	}

	if to == "" {
		logger.Warn("No escalation recipient configured; email skipped")
		return false, nil
	}

	email, err := notifications.BuildEscalationEmail(notifications.EscalationEmailData{
		To:           to,
		BusinessName: businessName,
		SessionID:    in.SessionID,
		AdminURL:     d.opts.AdminURL,
		UserMood:     in.UserMood,
		UserMessage:  in.Message,
		Sentiment:    in.Sentiment,
		AI:           in.AI,
		Analysis:     result,
	})
	if err != nil {
		return false, err
	}

	if err := d.mailer.Send(emailCtx, email); err != nil {
		return false, err
	}

	logger.WithField("to", to).Info("Escalation email sent")
	return true, nil
}

// persistState writes the new alert state, retrying transient failures.
// emailSent is only set when the email was attempted for an existing case.
// A missing session is not an error; it returns a nil state.
func (d *Dispatcher) persistState(ctx context.Context, in DispatchInput, caseOpen, emailAttempted bool) (*models.AlertState, error) {
	timestamp := in.Now
	mutate := func(s *models.Session) error {
		s.AlertState.LastAlertType = in.Decision.Severity
		s.AlertState.LastAlertTimestamp = &timestamp
		s.AlertState.EmailSent = s.AlertState.EmailSent || emailAttempted
		s.AlertState.HasOpenCase = s.AlertState.HasOpenCase || caseOpen
		s.UpdatedAt = in.Now
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= d.opts.PersistAttempts; attempt++ {
		writeCtx, cancel := context.WithTimeout(ctx, d.opts.SideEffectTimeout)
		session, err := d.store.UpdateSession(writeCtx, in.SessionID, mutate)
		cancel()

		if err == nil {
			state := session.AlertState
			return &state, nil
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}

		lastErr = err
		logrus.WithError(err).WithFields(logrus.Fields{
			"session_id": in.SessionID,
			"attempt":    attempt,
		}).Warn("Alert state write failed")

		if attempt == d.opts.PersistAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrStatePersist, ctx.Err())
		case <-time.After(d.opts.PersistBackoff * time.Duration(attempt)):
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrStatePersist, d.opts.PersistAttempts, lastErr)
}

func (d *Dispatcher) sideEffectFailed(logger *logrus.Entry, step string, err error) {
	d.metrics.SideEffectFailures.WithLabelValues(step).Inc()
	logger.WithError(err).WithField("step", step).Error("Dispatch side effect failed")
}
