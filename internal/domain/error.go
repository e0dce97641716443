package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionBusy     = errors.New("session already has a turn in flight")
	ErrRateLimited     = errors.New("too many messages for this session")
	ErrAddressNotFound = errors.New("address lookup failed")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrOperationFailed = errors.New("operation failed")
)
