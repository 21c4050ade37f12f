package domain

import "errors"

// Domain errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrInvalidArgument is returned for unusable command line or configuration input.
	ErrInvalidArgument = errors.New("walfp: invalid argument")

	// ErrNoValidRecord is returned when no readable record follows the start position.
	ErrNoValidRecord = errors.New("walfp: no valid record found")
)
