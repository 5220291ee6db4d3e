// Package store persists businesses, chat sessions (with their embedded alert
// state), dashboard alerts and escalated cases.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/mooddesk/escalation-bot/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrCaseAlreadyOpen is returned by CreateCase when the session already has an unresolved case
	ErrCaseAlreadyOpen = errors.New("session already has an open case")
)

// SessionMutator changes a session in place inside a conditional update
type SessionMutator func(session *models.Session) error

// Store defines the contract for persistence operations
type Store interface {
	GetBusiness(ctx context.Context, id string) (*models.Business, error)
	SaveBusiness(ctx context.Context, business *models.Business) error

	GetSession(ctx context.Context, id string) (*models.Session, error)
	SaveSession(ctx context.Context, session *models.Session) error
	DeleteSession(ctx context.Context, id string) error
	// UpdateSession applies fn to the current stored session and writes the
	// result only if nobody changed the session in between.
	UpdateSession(ctx context.Context, id string, fn SessionMutator) (*models.Session, error)
	ListIdleSessions(ctx context.Context, before time.Time) ([]*models.Session, error)

	SaveAlert(ctx context.Context, alert *models.Alert) error
	GetAlert(ctx context.Context, id string) (*models.Alert, error)
	ListAlertsByBusiness(ctx context.Context, businessID string) ([]*models.Alert, error)
	ListAlertsBySession(ctx context.Context, sessionID string) ([]*models.Alert, error)
	MarkAlertRead(ctx context.Context, id, userID string, at time.Time) (*models.Alert, error)

	CreateCase(ctx context.Context, c *models.EscalatedCase) error
	UpdateCase(ctx context.Context, c *models.EscalatedCase) error
	GetCase(ctx context.Context, id string) (*models.EscalatedCase, error)
	GetOpenCase(ctx context.Context, sessionID string) (*models.EscalatedCase, error)
	ListCasesByBusiness(ctx context.Context, businessID string) ([]*models.EscalatedCase, error)
}
