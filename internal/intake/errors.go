package intake

import "errors"

// Typed errors returned by the intake core. The HTTP layer maps these to
// status codes; none of them are ever raised as panics.
var (
	// ErrInvalidQuery means the search text is too short to match on.
	ErrInvalidQuery = errors.New("search query too short")

	// ErrCheckFailed means the record store could not answer a read
	// (duplicate check, contact fetch, search). Callers must treat the
	// outcome as unknown, never as a safe default.
	ErrCheckFailed = errors.New("record store check failed")

	// ErrValidationFailed means a forward-gate condition is unmet. The
	// draft is untouched.
	ErrValidationFailed = errors.New("validation failed")

	// ErrDuplicateIdentifier means a declared new vehicle collides with a
	// stored registration number or VIN. The user should search and select
	// the existing record instead.
	ErrDuplicateIdentifier = errors.New("vehicle identifier already exists")

	// ErrPersistenceFailure means the reception entry could not be created.
	// The draft survives so finalize can be retried.
	ErrPersistenceFailure = errors.New("failed to persist reception entry")

	// ErrIdentityRepairFailed means the backfill of a missing reg no / VIN
	// failed after the entry was created. Non-fatal; the entry stands.
	ErrIdentityRepairFailed = errors.New("vehicle identity repair failed")

	// ErrSessionFinalized is returned by any mutation on a finalized session.
	ErrSessionFinalized = errors.New("session already finalized")

	// ErrSessionAbandoned is returned by any operation on an abandoned session.
	ErrSessionAbandoned = errors.New("session abandoned")

	// ErrNoSuchCandidate means the selected candidate id is not in the
	// latest result set.
	ErrNoSuchCandidate = errors.New("candidate not in current result set")

	// ErrInvalidTransition rejects stage moves outside the transition graph.
	ErrInvalidTransition = errors.New("invalid stage transition")
)
