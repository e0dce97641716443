package repository

import (
	"context"

	"pharmacy-intake-bot/internal/domain/model"
)

// SessionRepository is the port for the per-conversation session store.
// The conversation engine never creates or deletes sessions; that is the
// caller's job (HTTP layer on /start, Telegram adapter on first contact).
type SessionRepository interface {
	// Create stores a fresh session at StateInit under the given ID.
	Create(ctx context.Context, id string) (*model.Session, error)
	// Get returns the session or domain.ErrSessionNotFound.
	Get(ctx context.Context, id string) (*model.Session, error)
	// Save persists the session after a turn, refreshing its TTL.
	Save(ctx context.Context, s *model.Session) error
	// Delete removes the session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error
}
