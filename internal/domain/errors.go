package domain

import "errors"

var (
	// ErrUnreachable means the host did not answer a probe.
	ErrUnreachable = errors.New("host unreachable")

	// ErrUnknownService is returned for an ID missing from the registry.
	ErrUnknownService = errors.New("unknown service")

	// ErrUnknownAction is returned for a name outside the action enumeration.
	ErrUnknownAction = errors.New("unknown action")

	// ErrActionNotSupported is returned when a profile does not define an action.
	ErrActionNotSupported = errors.New("action not supported")

	// ErrTimeout wraps a bounded wait that exhausted its budget.
	ErrTimeout = errors.New("timed out")

	// ErrHostOffline is returned by operations that require a running host.
	ErrHostOffline = errors.New("host is offline")

	// ErrAlreadyInProgress is returned when a lease is held by another request.
	ErrAlreadyInProgress = errors.New("already in progress")
)
