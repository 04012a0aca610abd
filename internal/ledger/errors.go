package ledger

import "errors"

// Error kinds surfaced to callers. Every rejection happens before any
// mutation, so a returned error means the account state is untouched. The one
// exception, TransferFailed, is raised by the engine after it has unwound the
// staged mutations for an operation whose external transfer step failed.
var (
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInsufficientCollateral = errors.New("insufficient collateral")
	ErrInsufficientStake      = errors.New("insufficient stake")
	ErrTransferFailed         = errors.New("transfer failed")
	ErrInvalidToken           = errors.New("invalid token")
)
