package ledger

import "errors"

var (
	ErrNilStore            = errors.New("ledger: store not configured")
	ErrNameRequired        = errors.New("ledger: name required")
	ErrInvalidCost         = errors.New("ledger: reward cost must be positive")
	ErrRewardNotFound      = errors.New("ledger: reward not found")
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")

	// ErrPersistence wraps store failures. The in-memory state is unchanged
	// when a call returns it.
	ErrPersistence = errors.New("ledger: persistence failure")
)
