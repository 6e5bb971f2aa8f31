package domain

import "errors"

var (
	ErrConfig           = errors.New("invalid configuration")
	ErrDataUnavailable  = errors.New("market data unavailable")
	ErrInvalidMetrics   = errors.New("invalid guardrail metrics")
	ErrInvalidPosition  = errors.New("invalid position")
	ErrPositionNotFound = errors.New("position not found")
	ErrNoPlan           = errors.New("no trade plan for symbol")
	ErrOrderRejected    = errors.New("order rejected by broker")
)
