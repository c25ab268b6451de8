package models

import "errors"

// Every engine error wraps exactly one of these.
var (
	ErrValidation        = errors.New("validation failed")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("not found")
	ErrStateConflict     = errors.New("state conflict")
)
