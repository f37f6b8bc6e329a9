package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrUnknownSymbol        = errors.New("unknown_symbol")
	ErrUnknownParticipant   = errors.New("unknown_participant")
	ErrParticipantExists    = errors.New("participant_already_exists")
	ErrInvalidOrder         = errors.New("invalid_order")
	ErrOrderNotFound        = errors.New("order_not_found")
	ErrPositionNotFound     = errors.New("position_not_found")
	ErrBrokerNotFound       = errors.New("broker_not_found")
	ErrSimulationRunning    = errors.New("simulation_already_running")
	ErrSimulationNotRunning = errors.New("simulation_not_running")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
