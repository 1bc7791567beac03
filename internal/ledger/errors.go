package ledger

import "errors"

// Business outcomes surfaced by the consent contract, mapped from its
// response structs. These cross the API as sentinel errors so callers can
// branch with errors.Is.
var (
	// ErrAlreadyGranted: requesting access when a live grant exists.
	ErrAlreadyGranted = errors.New("doctor already has access")

	// ErrDuplicateRequest: an unresolved request for the pair exists.
	ErrDuplicateRequest = errors.New("unresolved access request already exists")

	// ErrAlreadyResolved: the request was resolved before this call; the
	// operation is an idempotent no-op.
	ErrAlreadyResolved = errors.New("access request already resolved")

	// ErrNoActiveGrant: revoking a pair with no live grant.
	ErrNoActiveGrant = errors.New("no active grant to revoke")

	// ErrStaleRequest: the local view raced a concurrent resolution; the
	// caller should re-sync from the ledger rather than retry.
	ErrStaleRequest = errors.New("request state changed on the ledger")

	// ErrUserCancelled: the session aborted the transaction before it was
	// committed. Non-fatal.
	ErrUserCancelled = errors.New("transaction cancelled by user")

	// ErrTransientChain: transport-level chain failure after bounded
	// retries. The operation may be retried by the caller later.
	ErrTransientChain = errors.New("transient chain error")
)
