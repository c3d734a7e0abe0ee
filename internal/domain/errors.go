package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrEmptyBook        = errors.New("order book is empty")
	ErrFeedDisconnected = errors.New("feed disconnected")
	ErrMalformedMessage = errors.New("malformed feed message")
	ErrLockHeld         = errors.New("lock already held")
	ErrRateLimited      = errors.New("rate limited")
	ErrModelUntrained   = errors.New("slippage model not trained")
	ErrDimension        = errors.New("feature dimension mismatch")
)
