package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"popsies-quiz-service/internal/domain"
)

const waitingKey = "sessions:waiting"

// SessionStore keeps session snapshots in Redis so several service instances
// can share them. Layout:
//
//	session:{id}          JSON snapshot with its version
//	session:code:{code}   id of the live session holding the code
//	sessions:waiting      ZSET of Waiting session ids scored by creation time
//
// Save is a WATCH/MULTI compare-and-set on the snapshot and code keys.
type SessionStore struct {
	client    *redis.Client
	retention time.Duration
}

// NewSessionStore returns a store; completed sessions expire after retention
// (zero keeps them forever).
func NewSessionStore(client *redis.Client, retention time.Duration) *SessionStore {
	return &SessionStore{client: client, retention: retention}
}

func (s *SessionStore) Load(ctx context.Context, sessionID string) (domain.Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}
	return decodeSession(raw)
}

func (s *SessionStore) LoadByCode(ctx context.Context, code string) (domain.Session, error) {
	id, err := s.client.Get(ctx, codeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("resolve join code: %w", err)
	}
	return s.Load(ctx, id)
}

func (s *SessionStore) CodeInUse(ctx context.Context, code string) (bool, error) {
	n, err := s.client.Exists(ctx, codeKey(code)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SessionStore) Save(ctx context.Context, session *domain.Session) error {
	key := sessionKey(session.ID)
	code := codeKey(session.Code)

	var version int64
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			if session.Version != 0 {
				return domain.ErrSessionNotFound
			}
		case err != nil:
			return err
		default:
			stored, err := decodeSession(raw)
			if err != nil {
				return err
			}
			if session.Version == 0 || stored.Version != session.Version {
				return domain.ErrConcurrencyConflict
			}
		}

		owner, err := tx.Get(ctx, code).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if owner != "" && owner != session.ID && session.IsLive() {
			return domain.ErrCodeTaken
		}

		next := session.Clone()
		next.Version++
		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next.IsLive() {
				pipe.Set(ctx, key, payload, 0)
				pipe.Set(ctx, code, next.ID, 0)
			} else {
				pipe.Set(ctx, key, payload, s.retention)
				if owner == next.ID {
					pipe.Del(ctx, code)
				}
			}
			if next.State == domain.StateWaiting {
				pipe.ZAdd(ctx, waitingKey, redis.Z{Score: float64(next.CreatedAt.UnixMilli()), Member: next.ID})
			} else {
				pipe.ZRem(ctx, waitingKey, next.ID)
			}
			return nil
		})
		version = next.Version
		return err
	}

	err := s.client.Watch(ctx, txf, key, code)
	if errors.Is(err, redis.TxFailedErr) {
		if session.Version == 0 {
			// a concurrent insert grabbed the code between WATCH and EXEC
			return domain.ErrCodeTaken
		}
		return domain.ErrConcurrencyConflict
	}
	if err != nil {
		return err
	}
	session.Version = version
	return nil
}

func (s *SessionStore) ListIdleWaiting(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Session, error) {
	by := &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(createdBefore.UnixMilli(), 10),
	}
	if limit > 0 {
		by.Count = int64(limit)
	}
	ids, err := s.client.ZRangeByScore(ctx, waitingKey, by).Result()
	if err != nil {
		return nil, fmt.Errorf("list waiting sessions: %w", err)
	}

	sessions := make([]domain.Session, 0, len(ids))
	for _, id := range ids {
		session, err := s.Load(ctx, id)
		if errors.Is(err, domain.ErrSessionNotFound) {
			// stale index entry left by an expired snapshot
			_ = s.client.ZRem(ctx, waitingKey, id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		if session.State == domain.StateWaiting {
			sessions = append(sessions, session)
		}
	}
	return sessions, nil
}

func decodeSession(raw []byte) (domain.Session, error) {
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return domain.Session{}, fmt.Errorf("decode session: %w", err)
	}
	if !session.State.IsValid() {
		return domain.Session{}, fmt.Errorf("decode session %s: unknown state %q", session.ID, session.State)
	}
	return session, nil
}

func sessionKey(id string) string {
	return "session:" + id
}

func codeKey(code string) string {
	return "session:code:" + code
}
