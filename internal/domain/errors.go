package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrRateLimited       = errors.New("rate limited")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidOrder      = errors.New("invalid order parameters")
	ErrWSDisconnect      = errors.New("websocket disconnected")
	ErrLockHeld          = errors.New("lock already held")
	ErrBudgetExhausted   = errors.New("daily ai budget exhausted")
	ErrNotImplemented    = errors.New("not implemented")
	ErrMalformedDecision = errors.New("malformed decision")
)
