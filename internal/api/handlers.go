package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/mooddesk/escalation-bot/internal/decision"
	"github.com/mooddesk/escalation-bot/internal/escalation"
	"github.com/mooddesk/escalation-bot/internal/models"
	"github.com/mooddesk/escalation-bot/internal/signals"
	"github.com/mooddesk/escalation-bot/internal/store"
)

func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": s.now().Format(time.RFC3339),
	})
}

type businessRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (s *Server) putBusinessHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req businessRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	now := s.now()
	business := &models.Business{ID: id, Name: req.Name, Email: req.Email, CreatedAt: now, UpdatedAt: now}
	existing, err := s.store.GetBusiness(r.Context(), id)
	switch {
	case err == nil:
		business.CreatedAt = existing.CreatedAt
	case !errors.Is(err, store.ErrNotFound):
		writeStoreError(w, err)
		return
	}

	if err := s.store.SaveBusiness(r.Context(), business); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, business)
}

type createSessionRequest struct {
	BusinessID string `json:"business_id"`
	VisitorID  string `json:"visitor_id"`
	Title      string `json:"title"`
}

func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.BusinessID == "" {
		writeError(w, http.StatusBadRequest, "business_id is required")
		return
	}
	if _, err := s.store.GetBusiness(r.Context(), req.BusinessID); err != nil {
		writeStoreError(w, err)
		return
	}

	now := s.now()
	session := &models.Session{
		ID:         uuid.NewString(),
		BusinessID: req.BusinessID,
		VisitorID:  req.VisitorID,
		Title:      req.Title,
		Status:     models.SessionActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.SaveSession(r.Context(), session); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

type inboundMessageRequest struct {
	BusinessID string             `json:"business_id"`
	MessageID  string             `json:"message_id"`
	Message    string             `json:"message"`
	Text       string             `json:"text"` // alias of message
	UserMood   string             `json:"user_mood"`
	Sentiment  *models.MoodSignal `json:"sentiment"`
	AI         *models.AIJudgment `json:"ai"`
	History    []models.ChatTurn  `json:"history"`
}

type inboundMessageResponse struct {
	Decision  *decision.Decision `json:"decision"`
	Flags     models.Flags       `json:"flags"`
	Sentiment *models.MoodSignal `json:"sentiment,omitempty"`
}

// inboundMessageHandler is called by the chat-turn handler once the AI has answered
func (s *Server) inboundMessageHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req inboundMessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	message := req.Message
	if message == "" {
		message = req.Text
	}
	if strings.TrimSpace(message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if !signals.ValidMood(req.UserMood) {
		writeError(w, http.StatusBadRequest, "invalid user_mood")
		return
	}

	sentiment := req.Sentiment
	if sentiment == nil && !signals.HasDeclaredMood(req.UserMood) {
		computed := s.sentiment.Analyze(message)
		sentiment = &computed
	}
	flags := signals.DeriveFlags(req.UserMood, sentiment, req.AI)

	s.touchSession(r, sessionID, models.ChatTurn{Role: "user", Content: message, Mood: req.UserMood})

	d, err := s.service.OnInboundMessage(r.Context(), escalation.Inbound{
		SessionID:  sessionID,
		BusinessID: req.BusinessID,
		MessageID:  req.MessageID,
		Message:    message,
		UserMood:   req.UserMood,
		Sentiment:  sentiment,
		AI:         req.AI,
		History:    req.History,
		Flags:      flags,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, inboundMessageResponse{Decision: d, Flags: flags, Sentiment: sentiment})
}

// touchSession records the turn and the activity, so the idle sweeper leaves the session alone
func (s *Server) touchSession(r *http.Request, sessionID string, turn models.ChatTurn) {
	now := s.now()
	_, err := s.store.UpdateSession(r.Context(), sessionID, func(session *models.Session) error {
		session.AppendTurns(turn)
		session.UpdatedAt = now
		return nil
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		logrus.WithError(err).WithField("session_id", sessionID).Warn("Failed to record session activity")
	}
}

func (s *Server) listBusinessAlertsHandler(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.store.ListAlertsByBusiness(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilAlerts(alerts))
}

func (s *Server) listSessionAlertsHandler(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.store.ListAlertsBySession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilAlerts(alerts))
}

func nonNilAlerts(alerts []*models.Alert) []*models.Alert {
	if alerts == nil {
		return []*models.Alert{}
	}
	return alerts
}

func (s *Server) getAlertHandler(w http.ResponseWriter, r *http.Request) {
	alert, err := s.store.GetAlert(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

type markReadRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) markAlertReadHandler(w http.ResponseWriter, r *http.Request) {
	var req markReadRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	alert, err := s.store.MarkAlertRead(r.Context(), mux.Vars(r)["id"], req.UserID, s.now())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (s *Server) listBusinessCasesHandler(w http.ResponseWriter, r *http.Request) {
	cases, err := s.store.ListCasesByBusiness(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if cases == nil {
		cases = []*models.EscalatedCase{}
	}
	writeJSON(w, http.StatusOK, cases)
}

func (s *Server) listArchivedCasesHandler(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusNotFound, "case archive is not configured")
		return
	}

	ids, err := s.archive.ListCaseIDs(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids)
}

func (s *Server) getArchivedCaseHandler(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusNotFound, "case archive is not configured")
		return
	}

	vars := mux.Vars(r)
	c, err := s.archive.LoadCase(r.Context(), vars["id"], vars["caseId"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) getCaseHandler(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetCase(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) startCaseHandler(w http.ResponseWriter, r *http.Request) {
	c, err := s.service.StartCase(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type resolveCaseRequest struct {
	UserID string `json:"user_id"`
	Notes  string `json:"notes"`
}

func (s *Server) resolveCaseHandler(w http.ResponseWriter, r *http.Request) {
	var req resolveCaseRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	c, err := s.service.ResolveCase(r.Context(), mux.Vars(r)["id"], req.UserID, req.Notes)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
