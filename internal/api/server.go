// Package api is the HTTP surface of the escalation service: the chat-turn
// hook plus dashboard reads and explicit case transitions.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/mooddesk/escalation-bot/internal/escalation"
	"github.com/mooddesk/escalation-bot/internal/models"
	"github.com/mooddesk/escalation-bot/internal/signals"
	"github.com/mooddesk/escalation-bot/internal/storage"
	"github.com/mooddesk/escalation-bot/internal/store"
)

// CaseArchive reads archived case snapshots
type CaseArchive interface {
	ListCaseIDs(ctx context.Context, businessID string) ([]string, error)
	LoadCase(ctx context.Context, businessID, caseID string) (*models.EscalatedCase, error)
}

// Server holds the handler dependencies
type Server struct {
	store     store.Store
	service   *escalation.Service
	sentiment *signals.Analyzer
	archive   CaseArchive
	gatherer  prometheus.Gatherer
	now       func() time.Time
}

// NewServer creates the API server
func NewServer(st store.Store, service *escalation.Service, sentiment *signals.Analyzer, gatherer prometheus.Gatherer) *Server {
	return &Server{
		store:     st,
		service:   service,
		sentiment: sentiment,
		gatherer:  gatherer,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetCaseArchive enables the archived case routes
func (s *Server) SetCaseArchive(archive CaseArchive) {
	s.archive = archive
}

// Router builds the mux router with every route registered
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(loggingMiddleware)

	router.HandleFunc("/health", s.healthCheckHandler).Methods("GET")
	router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")

	router.HandleFunc("/businesses/{id}", s.putBusinessHandler).Methods("PUT")
	router.HandleFunc("/businesses/{id}/alerts", s.listBusinessAlertsHandler).Methods("GET")
	router.HandleFunc("/businesses/{id}/cases", s.listBusinessCasesHandler).Methods("GET")
	router.HandleFunc("/businesses/{id}/cases/archive", s.listArchivedCasesHandler).Methods("GET")
	router.HandleFunc("/businesses/{id}/cases/archive/{caseId}", s.getArchivedCaseHandler).Methods("GET")

	router.HandleFunc("/sessions", s.createSessionHandler).Methods("POST")
	router.HandleFunc("/sessions/{id}/messages", s.inboundMessageHandler).Methods("POST")
	router.HandleFunc("/sessions/{id}/alerts", s.listSessionAlertsHandler).Methods("GET")

	router.HandleFunc("/alerts/{id}", s.getAlertHandler).Methods("GET")
	router.HandleFunc("/alerts/{id}/read", s.markAlertReadHandler).Methods("POST")

	router.HandleFunc("/cases/{id}", s.getCaseHandler).Methods("GET")
	router.HandleFunc("/cases/{id}/start", s.startCaseHandler).Methods("POST")
	router.HandleFunc("/cases/{id}/resolve", s.resolveCaseHandler).Methods("POST")

	return router
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		logrus.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("HTTP request")
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.WithError(err).Warn("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeStoreError maps store and service errors onto status codes
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, escalation.ErrStatePersist):
		writeError(w, http.StatusServiceUnavailable, "alert state could not be saved, retry the message")
	case errors.Is(err, escalation.ErrBusinessMismatch):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, escalation.ErrCaseResolved):
		writeError(w, http.StatusConflict, err.Error())
	default:
		logrus.WithError(err).Error("Request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
