package repository

import (
	"context"

	"pharmacy-intake-bot/internal/domain/model"
)

// OrderRepository persists completed orders for the back office.
type OrderRepository interface {
	// Save inserts a confirmed order. Returns domain.ErrAlreadyExists if
	// the order ID was already stored.
	Save(ctx context.Context, sessionID string, o *model.Order) error
	// ListRecent returns up to limit orders, newest first.
	ListRecent(ctx context.Context, limit int) ([]*model.Order, error)
}
