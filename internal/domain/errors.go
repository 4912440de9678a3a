package domain

import "errors"

// Input validation errors surfaced at the API boundary.
var (
	ErrTimestampRequired = errors.New("timestamp is required")
	ErrNegativeAmount    = errors.New("amount must be non-negative")
	ErrInvalidDirection  = errors.New("direction must be CREDIT or DEBIT")
	ErrInvalidStatus     = errors.New("status must be SUCCESS, FAILED, or PENDING")
)
