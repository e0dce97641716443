package adapter

import (
	"context"

	"pharmacy-intake-bot/internal/domain/model"
)

// AddressResolver turns an 8-digit CEP into a structured address.
// Implementations normalize every failure mode (network error, timeout,
// "not found" payload, bad response body) into domain.ErrAddressNotFound;
// whether to retry is a user-facing decision made by the conversation
// engine, never by the resolver.
type AddressResolver interface {
	Resolve(ctx context.Context, cep string) (*model.Address, error)
}
