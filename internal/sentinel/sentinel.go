package sentinel

import "errors"

// Sentinel dependency errors. Stores and clients return these (optionally wrapped)
// so the service can translate them into domain errors exactly once.
var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateToken = errors.New("duplicate upstream token")
	ErrSessionUnknown = errors.New("upstream session unknown")
	ErrUnavailable    = errors.New("unavailable")
)
