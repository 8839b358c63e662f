package vouch

import "errors"

var (
	// ErrNoVerifyChannel is a configuration error: the guild has no
	// verification route, so there is nowhere to post the pending vouch.
	// Distinct from a validation failure.
	ErrNoVerifyChannel = errors.New("vouch: verification channel not configured")

	// ErrVouchNotFound covers unknown and already-decided identifiers alike.
	ErrVouchNotFound = errors.New("vouch: pending vouch not found")

	ErrInvalidSubmission = errors.New("vouch: guild and user required")
	ErrNilLedger         = errors.New("vouch: ledger not configured")
	ErrNilRoutes         = errors.New("vouch: routes not configured")
)
