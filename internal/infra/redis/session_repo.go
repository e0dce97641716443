package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"pharmacy-intake-bot/internal/domain"
	"pharmacy-intake-bot/internal/domain/model"
	"pharmacy-intake-bot/internal/domain/ports/repository"
)

var _ repository.SessionRepository = (*SessionRepo)(nil)

// SessionRepo keeps intake sessions in Redis as JSON, expiring after
// the configured idle TTL. Every Save refreshes the TTL so an active
// conversation never expires mid-dialogue.
type SessionRepo struct {
	client RedisClient
	ttl    time.Duration
}

func NewSessionRepo(client RedisClient, ttl time.Duration) *SessionRepo {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SessionRepo{client: client, ttl: ttl}
}

func (r *SessionRepo) sessionKey(id string) string {
	return fmt.Sprintf("intake_session:%s", id)
}

func (r *SessionRepo) Create(ctx context.Context, id string) (*model.Session, error) {
	s := model.NewSession(id)
	if err := r.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SessionRepo) Get(ctx context.Context, id string) (*model.Session, error) {
	data, err := r.client.Get(ctx, r.sessionKey(id))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}

	var s model.Session
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepo) Save(ctx context.Context, s *model.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.sessionKey(s.ID), data, r.ttl)
}

func (r *SessionRepo) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.sessionKey(id))
}
