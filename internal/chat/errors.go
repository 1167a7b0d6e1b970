package chat

import "errors"

// Error kinds shared by the services. Transports map them to status codes
// (REST) or drop them (realtime).
var (
	ErrInvalidPayload = errors.New("invalid_payload")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBlocked        = errors.New("blocked")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidStatus  = errors.New("bad_status")
	ErrRateLimited    = errors.New("rate_limited")
)
