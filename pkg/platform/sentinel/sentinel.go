package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and services translate them into domain errors:
//   - ErrNotFound: the row or key does not exist (or has expired away)
//   - ErrConflict: a unique constraint or an optimistic lock rejected the write
//   - ErrExpired: a record exists but is past its lifetime
//   - ErrUnavailable: the backing store could not be reached or stayed contended
//
// Validation failures are domain errors, not sentinels.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrExpired     = errors.New("expired")
	ErrUnavailable = errors.New("unavailable")
)
