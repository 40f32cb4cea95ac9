package tickets

import "errors"

var (
	// ErrValidation means the input was rejected before any store call.
	ErrValidation = errors.New("validation rejected")
	// ErrConditionFailed means a conditional write lost: the ticket already
	// exists, or it is no longer pending.
	ErrConditionFailed = errors.New("conditional check failed")
	// ErrNotFound means the requested ticket does not exist.
	ErrNotFound = errors.New("ticket not found")
	// ErrBackendUnavailable wraps any other store failure.
	ErrBackendUnavailable = errors.New("ticket store unavailable")
	// ErrIdempotencyConflict means an idempotency key was reused for a different request.
	ErrIdempotencyConflict = errors.New("idempotency key reused with a different request")
	// ErrRequestInFlight means a concurrent request with the same idempotency
	// key is still being written. The caller may retry.
	ErrRequestInFlight = errors.New("request with the same idempotency key in flight")

	// errDuplicateRequest is returned by PutIdempotent when the key was already recorded.
	errDuplicateRequest = errors.New("duplicate idempotent request")
)
