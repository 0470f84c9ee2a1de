package fault

import "errors"

// Predefined errors for identity parsing.
var (
	// ErrInvalidIdFormat indicates that the string form of an identity is not
	// a base 10 integer.
	ErrInvalidIdFormat = errors.New("invalid identity format")

	// ErrInvalidId indicates an identity that is zero or negative.
	ErrInvalidId = errors.New("identity must be positive")
)
