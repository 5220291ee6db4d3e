package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/mooddesk/escalation-bot/internal/models"
)

const (
	businessKeyPrefix      = "business:"
	sessionKeyPrefix       = "session:"
	alertKeyPrefix         = "alert:"
	caseKeyPrefix          = "case:"
	openCaseKeyPrefix      = "case:open:"
	activeSessionsKey      = "sessions:active"
	businessAlertsPrefix   = "alerts:business:"
	sessionAlertsPrefix    = "alerts:session:"
	businessCasesKeyPrefix = "cases:business:"

	// optimistic transactions retried this many times before giving up
	maxTxRetries = 10
)

// releaseOpenCase deletes the session's open-case marker only if it still points at the given case
var releaseOpenCase = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore persists records as JSON values with sorted-set indexes
type RedisStore struct {
	rdb *redis.Client
}

// Ensure RedisStore implements Store
var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a store on top of an existing Redis client
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) getJSON(ctx context.Context, key string, v interface{}) error {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) GetBusiness(ctx context.Context, id string) (*models.Business, error) {
	var b models.Business
	if err := s.getJSON(ctx, businessKeyPrefix+id, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *RedisStore) SaveBusiness(ctx context.Context, business *models.Business) error {
	data, err := json.Marshal(business)
	if err != nil {
		return fmt.Errorf("failed to marshal business: %w", err)
	}
	return s.rdb.Set(ctx, businessKeyPrefix+business.ID, data, 0).Err()
}

func (s *RedisStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var sess models.Session
	if err := s.getJSON(ctx, sessionKeyPrefix+id, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *RedisStore) SaveSession(ctx context.Context, session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKeyPrefix+session.ID, data, 0)
		indexSession(ctx, pipe, session)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", session.ID, err)
	}
	return nil
}

func indexSession(ctx context.Context, pipe redis.Pipeliner, session *models.Session) {
	if session.Status == models.SessionActive {
		pipe.ZAdd(ctx, activeSessionsKey, &redis.Z{
			Score:  float64(session.UpdatedAt.UnixMilli()),
			Member: session.ID,
		})
	} else {
		pipe.ZRem(ctx, activeSessionsKey, session.ID)
	}
}

func (s *RedisStore) DeleteSession(ctx context.Context, id string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKeyPrefix+id)
		pipe.ZRem(ctx, activeSessionsKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// UpdateSession runs fn inside a WATCH/MULTI transaction on the session key
func (s *RedisStore) UpdateSession(ctx context.Context, id string, fn SessionMutator) (*models.Session, error) {
	key := sessionKeyPrefix + id
	var updated models.Session

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var sess models.Session
		if err := json.Unmarshal(data, &sess); err != nil {
			return fmt.Errorf("failed to decode session %s: %w", id, err)
		}
		if err := fn(&sess); err != nil {
			return err
		}

		out, err := json.Marshal(&sess)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			indexSession(ctx, pipe, &sess)
			return nil
		})
		if err == nil {
			updated = sess
		}
		return err
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == nil {
			return &updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			logrus.Debugf("Session %s changed during update, retrying (attempt %d)", id, attempt+1)
			continue
		}
		return nil, err
	}

	return nil, fmt.Errorf("session %s update contended after %d attempts", id, maxTxRetries)
}

func (s *RedisStore) ListIdleSessions(ctx context.Context, before time.Time) ([]*models.Session, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, activeSessionsKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(before.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list idle sessions: %w", err)
	}

	var sessions []*models.Session
	for _, id := range ids {
		sess, err := s.GetSession(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

func (s *RedisStore) SaveAlert(ctx context.Context, alert *models.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	score := float64(alert.CreatedAt.UnixMilli())
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, alertKeyPrefix+alert.ID, data, 0)
		pipe.ZAdd(ctx, businessAlertsPrefix+alert.BusinessID, &redis.Z{Score: score, Member: alert.ID})
		pipe.ZAdd(ctx, sessionAlertsPrefix+alert.SessionID, &redis.Z{Score: score, Member: alert.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save alert %s: %w", alert.ID, err)
	}
	return nil
}

func (s *RedisStore) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	var a models.Alert
	if err := s.getJSON(ctx, alertKeyPrefix+id, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *RedisStore) ListAlertsByBusiness(ctx context.Context, businessID string) ([]*models.Alert, error) {
	return s.listAlerts(ctx, businessAlertsPrefix+businessID)
}

func (s *RedisStore) ListAlertsBySession(ctx context.Context, sessionID string) ([]*models.Alert, error) {
	return s.listAlerts(ctx, sessionAlertsPrefix+sessionID)
}

func (s *RedisStore) listAlerts(ctx context.Context, indexKey string) ([]*models.Alert, error) {
	ids, err := s.rdb.ZRevRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", indexKey, err)
	}

	var alerts []*models.Alert
	for _, id := range ids {
		a, err := s.GetAlert(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

func (s *RedisStore) MarkAlertRead(ctx context.Context, id, userID string, at time.Time) (*models.Alert, error) {
	key := alertKeyPrefix + id
	var updated models.Alert

	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var a models.Alert
		if err := json.Unmarshal(data, &a); err != nil {
			return fmt.Errorf("failed to decode alert %s: %w", id, err)
		}
		a.Status = models.AlertRead
		a.ReadBy = userID
		a.ReadAt = &at

		out, err := json.Marshal(&a)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		updated = a
		return err
	}, key)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// CreateCase claims the session's open-case marker with SETNX before writing the case
func (s *RedisStore) CreateCase(ctx context.Context, c *models.EscalatedCase) error {
	claimed, err := s.rdb.SetNX(ctx, openCaseKeyPrefix+c.SessionID, c.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to claim open case for session %s: %w", c.SessionID, err)
	}
	if !claimed {
		return ErrCaseAlreadyOpen
	}

	if err := s.writeCase(ctx, c); err != nil {
		// give the marker back so a retry can create the case
		releaseOpenCase.Run(ctx, s.rdb, []string{openCaseKeyPrefix + c.SessionID}, c.ID)
		return err
	}
	return nil
}

func (s *RedisStore) writeCase(ctx context.Context, c *models.EscalatedCase) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal case: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, caseKeyPrefix+c.ID, data, 0)
		pipe.ZAdd(ctx, businessCasesKeyPrefix+c.BusinessID, &redis.Z{
			Score:  float64(c.CreatedAt.UnixMilli()),
			Member: c.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write case %s: %w", c.ID, err)
	}
	return nil
}

func (s *RedisStore) UpdateCase(ctx context.Context, c *models.EscalatedCase) error {
	exists, err := s.rdb.Exists(ctx, caseKeyPrefix+c.ID).Result()
	if err != nil {
		return fmt.Errorf("failed to check case %s: %w", c.ID, err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	if err := s.writeCase(ctx, c); err != nil {
		return err
	}

	if c.Status == models.CaseResolved {
		if err := releaseOpenCase.Run(ctx, s.rdb, []string{openCaseKeyPrefix + c.SessionID}, c.ID).Err(); err != nil && err != redis.Nil {
			return fmt.Errorf("failed to release open case marker for session %s: %w", c.SessionID, err)
		}
	}
	return nil
}

func (s *RedisStore) GetCase(ctx context.Context, id string) (*models.EscalatedCase, error) {
	var c models.EscalatedCase
	if err := s.getJSON(ctx, caseKeyPrefix+id, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *RedisStore) GetOpenCase(ctx context.Context, sessionID string) (*models.EscalatedCase, error) {
	id, err := s.rdb.Get(ctx, openCaseKeyPrefix+sessionID).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read open case for session %s: %w", sessionID, err)
	}
	return s.GetCase(ctx, id)
}

func (s *RedisStore) ListCasesByBusiness(ctx context.Context, businessID string) ([]*models.EscalatedCase, error) {
	ids, err := s.rdb.ZRevRange(ctx, businessCasesKeyPrefix+businessID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list cases for business %s: %w", businessID, err)
	}

	var cases []*models.EscalatedCase
	for _, id := range ids {
		c, err := s.GetCase(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, nil
}
