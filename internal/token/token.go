package token

import (
	"context"
	"fmt"
	"sync"
	"time"

	"LendLedger/internal/confidential"
	"LendLedger/internal/ledger"
)

// ValueTransferService is the boundary contract with the borrowed-asset token.
// The engine invokes it only after both ledgers have agreed a transition is
// admissible. TransferThenBurn returns the handle to the amount actually
// moved, which may be smaller than requested when the sender's encrypted
// balance caps the transfer.
type ValueTransferService interface {
	Mint(ctx context.Context, caller confidential.Party, account string, encAmount confidential.Handle) (confidential.Handle, error)
	TransferThenBurn(ctx context.Context, caller confidential.Party, from string, encAmount confidential.Handle) (confidential.Handle, error)
}

// ConfidentialToken is the borrowed asset: per-account encrypted balances on
// the shared evaluator. Minting is restricted to a single configured minter
// identity; moving balance on an account's behalf requires an unexpired
// operator grant from that account.
type ConfidentialToken struct {
	mu        sync.Mutex
	eval      confidential.Evaluator
	minter    confidential.Party
	balances  map[string]confidential.Handle
	operators map[string]map[confidential.Party]time.Time
}

func NewConfidentialToken(eval confidential.Evaluator, minter confidential.Party) (*ConfidentialToken, error) {
	if eval == nil {
		return nil, fmt.Errorf("%w: evaluator not set", ledger.ErrInvalidToken)
	}
	if minter == "" {
		return nil, fmt.Errorf("%w: minter identity not set", ledger.ErrInvalidToken)
	}
	return &ConfidentialToken{
		eval:      eval,
		minter:    minter,
		balances:  make(map[string]confidential.Handle),
		operators: make(map[string]map[confidential.Party]time.Time),
	}, nil
}

// Mint creates encrypted balance for account. Only the configured minter may
// call it.
func (t *ConfidentialToken) Mint(ctx context.Context, caller confidential.Party, account string, encAmount confidential.Handle) (confidential.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if caller != t.minter {
		return confidential.Handle{}, fmt.Errorf("mint denied: %s is not the minter", caller)
	}

	next := t.eval.AddClamped(t.balanceLocked(account), encAmount)
	t.installBalance(account, next)
	return next, nil
}

// TransferThenBurn moves up to encAmount from the account's balance to the
// caller and destroys it, returning the handle to the amount actually moved.
// The move is capped by the sender's encrypted balance without revealing
// whether the cap was hit.
func (t *ConfidentialToken) TransferThenBurn(ctx context.Context, caller confidential.Party, from string, encAmount confidential.Handle) (confidential.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkOperatorLocked(from, caller); err != nil {
		return confidential.Handle{}, err
	}

	balance := t.balanceLocked(from)
	moved := t.eval.Min(balance, encAmount)
	next := t.eval.SubClamped(balance, moved)
	t.installBalance(from, next)

	// The moved amount is burned, not credited anywhere. Its handle survives
	// so the caller can apply the same delta to its own books.
	t.eval.Allow(moved, caller)
	t.eval.Allow(moved, confidential.Party(from))
	return moved, nil
}

// Approve grants operator the right to move the account's balance until the
// given deadline.
func (t *ConfidentialToken) Approve(account string, operator confidential.Party, until time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	grants, ok := t.operators[account]
	if !ok {
		grants = make(map[confidential.Party]time.Time)
		t.operators[account] = grants
	}
	grants[operator] = until
}

// SetMinter reassigns the minter identity. Administrative operation: the
// capability has exactly one owner at a time.
func (t *ConfidentialToken) SetMinter(minter confidential.Party) error {
	if minter == "" {
		return fmt.Errorf("%w: minter identity not set", ledger.ErrInvalidToken)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.minter = minter
	return nil
}

// Minter returns the current minter identity.
func (t *ConfidentialToken) Minter() confidential.Party {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.minter
}

// BalanceOf returns the account's current encrypted balance handle, the
// canonical zero handle if the account never transacted.
func (t *ConfidentialToken) BalanceOf(account string) confidential.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balanceLocked(account)
}

func (t *ConfidentialToken) balanceLocked(account string) confidential.Handle {
	h, ok := t.balances[account]
	if !ok {
		return t.eval.ZeroHandle()
	}
	return h
}

func (t *ConfidentialToken) installBalance(account string, next confidential.Handle) {
	t.eval.Allow(next, confidential.Party(account))
	t.eval.Allow(next, t.minter)
	t.balances[account] = next
}

func (t *ConfidentialToken) checkOperatorLocked(account string, operator confidential.Party) error {
	until, ok := t.operators[account][operator]
	if !ok {
		return fmt.Errorf("transfer denied: %s is not an operator for %s", operator, account)
	}
	if time.Now().After(until) {
		return fmt.Errorf("transfer denied: operator grant for %s expired", operator)
	}
	return nil
}
