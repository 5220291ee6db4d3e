package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mooddesk/escalation-bot/internal/models"
)

// testStoreContract exercises behaviour every Store implementation must share
func testStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("Session round trip and conditional update", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		sess := newSession("biz-1")

		require.NoError(t, s.SaveSession(ctx, sess))

		updated, err := s.UpdateSession(ctx, sess.ID, func(cur *models.Session) error {
			cur.AlertState.LastAlertType = models.SeverityLowMood
			cur.AlertState.EmailSent = true
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, models.SeverityLowMood, updated.AlertState.LastAlertType)

		got, err := s.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.True(t, got.AlertState.EmailSent)
	})

	t.Run("Update of missing session", func(t *testing.T) {
		s := newStore(t)
		_, err := s.UpdateSession(context.Background(), "missing-"+uuid.NewString(), func(*models.Session) error { return nil })
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Concurrent updates are not lost", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		sess := newSession("biz-1")
		require.NoError(t, s.SaveSession(ctx, sess))

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.UpdateSession(ctx, sess.ID, func(cur *models.Session) error {
					cur.Title += "x"
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := s.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.Len(t, got.Title, 5)
	})

	t.Run("Idle sessions", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		idle := newSession("biz-1")
		idle.UpdatedAt = time.Now().Add(-10 * time.Minute)
		fresh := newSession("biz-1")
		ended := newSession("biz-1")
		ended.Status = models.SessionEnded
		ended.UpdatedAt = time.Now().Add(-time.Hour)

		for _, sess := range []*models.Session{idle, fresh, ended} {
			require.NoError(t, s.SaveSession(ctx, sess))
		}

		got, err := s.ListIdleSessions(ctx, time.Now().Add(-5*time.Minute))
		require.NoError(t, err)
		ids := make([]string, 0, len(got))
		for _, sess := range got {
			ids = append(ids, sess.ID)
		}
		assert.Contains(t, ids, idle.ID)
		assert.NotContains(t, ids, fresh.ID)
		assert.NotContains(t, ids, ended.ID)
	})

	t.Run("Alerts listing and read status", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		businessID := "biz-" + uuid.NewString()
		sessionID := uuid.NewString()

		older := newAlert(businessID, sessionID, time.Now().Add(-time.Minute))
		newer := newAlert(businessID, sessionID, time.Now())
		other := newAlert(businessID, uuid.NewString(), time.Now())
		for _, a := range []*models.Alert{older, newer, other} {
			require.NoError(t, s.SaveAlert(ctx, a))
		}

		bySession, err := s.ListAlertsBySession(ctx, sessionID)
		require.NoError(t, err)
		require.Len(t, bySession, 2)
		assert.Equal(t, newer.ID, bySession[0].ID)

		byBusiness, err := s.ListAlertsByBusiness(ctx, businessID)
		require.NoError(t, err)
		assert.Len(t, byBusiness, 3)

		readAt := time.Now()
		read, err := s.MarkAlertRead(ctx, older.ID, "user-1", readAt)
		require.NoError(t, err)
		assert.Equal(t, models.AlertRead, read.Status)
		assert.Equal(t, "user-1", read.ReadBy)

		_, err = s.MarkAlertRead(ctx, "missing", "user-1", readAt)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("One open case per session", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		sessionID := uuid.NewString()

		first := newCase("biz-1", sessionID)
		require.NoError(t, s.CreateCase(ctx, first))
		assert.ErrorIs(t, s.CreateCase(ctx, newCase("biz-1", sessionID)), ErrCaseAlreadyOpen)

		open, err := s.GetOpenCase(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, open.ID)

		first.Status = models.CaseResolved
		require.NoError(t, s.UpdateCase(ctx, first))

		_, err = s.GetOpenCase(ctx, sessionID)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, s.CreateCase(ctx, newCase("biz-1", sessionID)))
	})

	t.Run("Update of missing case", func(t *testing.T) {
		s := newStore(t)
		assert.ErrorIs(t, s.UpdateCase(context.Background(), newCase("biz-1", "sess")), ErrNotFound)
	})
}

func TestMemoryStore(t *testing.T) {
	testStoreContract(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	sess := newSession("biz-1")
	require.NoError(t, s.SaveSession(ctx, sess))

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	got.AlertState.HasOpenCase = true

	again, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, again.AlertState.HasOpenCase)
}

func TestMemoryStore_MutatorErrorDiscardsChanges(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	sess := newSession("biz-1")
	require.NoError(t, s.SaveSession(ctx, sess))

	_, err := s.UpdateSession(ctx, sess.ID, func(cur *models.Session) error {
		cur.AlertState.EmailSent = true
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, got.AlertState.EmailSent)
}

func newSession(businessID string) *models.Session {
	now := time.Now()
	return &models.Session{
		ID:         uuid.NewString(),
		BusinessID: businessID,
		VisitorID:  "visitor-1",
		Status:     models.SessionActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func newAlert(businessID, sessionID string, createdAt time.Time) *models.Alert {
	return &models.Alert{
		ID:         uuid.NewString(),
		BusinessID: businessID,
		SessionID:  sessionID,
		Type:       models.SeverityLowMood,
		Title:      "Low Mood Detected",
		Status:     models.AlertUnread,
		CreatedAt:  createdAt,
	}
}

func newCase(businessID, sessionID string) *models.EscalatedCase {
	now := time.Now()
	return &models.EscalatedCase{
		ID:             uuid.NewString(),
		BusinessID:     businessID,
		SessionID:      sessionID,
		InitialMessage: "nothing works",
		Status:         models.CaseOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
