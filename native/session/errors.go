package session

import "errors"

var (
	// ErrSessionNotFound covers unknown identifiers and sessions already
	// swept after expiry.
	ErrSessionNotFound = errors.New("session: not found")

	// ErrNotOwner rejects component interactions from anyone but the user
	// who opened the session.
	ErrNotOwner = errors.New("session: interaction not from session owner")

	// ErrSessionExpired rejects interactions past the session deadline.
	// Expired sessions are discarded on first touch.
	ErrSessionExpired = errors.New("session: expired")

	ErrNilLedger = errors.New("session: ledger not configured")
)
