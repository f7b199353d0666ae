package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrRateLimited      = errors.New("rate limited")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidOrder     = errors.New("invalid order parameters")
	ErrSigningFailed    = errors.New("signing failed")
	ErrEmergencyActive  = errors.New("emergency stop active")
	ErrLegNotFilled     = errors.New("leg not filled")
	ErrTradeTerminal    = errors.New("trade already in terminal status")
	ErrTradeReassigned  = errors.New("order already attached to a trade")
	ErrOneSidedPosition = errors.New("one-sided position: secondary leg failed after primary fill, manual intervention required")
)
