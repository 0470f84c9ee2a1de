package fault

import "errors"

// Errors reported by the session protocol. Server side errors travel back to
// the caller inside the response envelope.
var (
	ErrInvalidMessage    = errors.New("invalid message")
	ErrUnknownMode       = errors.New("unknown mode")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrUnknownFunc       = errors.New("unknown function")
	ErrUnknownUpdateOp   = errors.New("unknown update operation")
	ErrExecDisabled      = errors.New("exec mode is disabled")
	ErrReadOnly          = errors.New("server is read only")
	ErrAlreadyLocked     = errors.New("server is already locked")
	ErrServerClosed      = errors.New("server closed")
)
