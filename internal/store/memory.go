package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mooddesk/escalation-bot/internal/models"
)

// MemoryStore keeps everything in process memory. Used for local runs and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	businesses map[string]models.Business
	sessions   map[string]models.Session
	alerts     map[string]models.Alert
	cases      map[string]models.EscalatedCase
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		businesses: make(map[string]models.Business),
		sessions:   make(map[string]models.Session),
		alerts:     make(map[string]models.Alert),
		cases:      make(map[string]models.EscalatedCase),
	}
}

func (m *MemoryStore) GetBusiness(_ context.Context, id string) (*models.Business, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.businesses[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (m *MemoryStore) SaveBusiness(_ context.Context, business *models.Business) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.businesses[business.ID] = *business
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *MemoryStore) SaveSession(_ context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[session.ID] = *session
	return nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) UpdateSession(_ context.Context, id string, fn SessionMutator) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if err := fn(&s); err != nil {
		return nil, err
	}
	m.sessions[id] = s
	return &s, nil
}

func (m *MemoryStore) ListIdleSessions(_ context.Context, before time.Time) ([]*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var idle []*models.Session
	for _, s := range m.sessions {
		if s.Status == models.SessionActive && s.UpdatedAt.Before(before) {
			s := s
			idle = append(idle, &s)
		}
	}
	return idle, nil
}

func (m *MemoryStore) SaveAlert(_ context.Context, alert *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.alerts[alert.ID] = *alert
	return nil
}

func (m *MemoryStore) GetAlert(_ context.Context, id string) (*models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (m *MemoryStore) ListAlertsByBusiness(_ context.Context, businessID string) ([]*models.Alert, error) {
	return m.filterAlerts(func(a models.Alert) bool { return a.BusinessID == businessID }), nil
}

func (m *MemoryStore) ListAlertsBySession(_ context.Context, sessionID string) ([]*models.Alert, error) {
	return m.filterAlerts(func(a models.Alert) bool { return a.SessionID == sessionID }), nil
}

func (m *MemoryStore) filterAlerts(keep func(models.Alert) bool) []*models.Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Alert
	for _, a := range m.alerts {
		if keep(a) {
			a := a
			out = append(out, &a)
		}
	}
	// newest first
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *MemoryStore) MarkAlertRead(_ context.Context, id, userID string, at time.Time) (*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	a.Status = models.AlertRead
	a.ReadBy = userID
	a.ReadAt = &at
	m.alerts[id] = a
	return &a, nil
}

func (m *MemoryStore) CreateCase(_ context.Context, c *models.EscalatedCase) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.cases {
		if existing.SessionID == c.SessionID && existing.Status != models.CaseResolved {
			return ErrCaseAlreadyOpen
		}
	}
	m.cases[c.ID] = *c
	return nil
}

func (m *MemoryStore) UpdateCase(_ context.Context, c *models.EscalatedCase) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.cases[c.ID]; !ok {
		return ErrNotFound
	}
	m.cases[c.ID] = *c
	return nil
}

func (m *MemoryStore) GetCase(_ context.Context, id string) (*models.EscalatedCase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.cases[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *MemoryStore) GetOpenCase(_ context.Context, sessionID string) (*models.EscalatedCase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.cases {
		if c.SessionID == sessionID && c.Status != models.CaseResolved {
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListCasesByBusiness(_ context.Context, businessID string) ([]*models.EscalatedCase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.EscalatedCase
	for _, c := range m.cases {
		if c.BusinessID == businessID {
			c := c
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
