package ledger

import (
	"fmt"

	"github.com/holiman/uint256"
)

// SolvencyLedger owns the plaintext view of every account: cumulative stake
// and outstanding debt. It is the sole authority on whether a transition is
// admissible — only plaintext comparisons are cheap and certain, so every
// business rule lives here and the encrypted mirror trusts the decision.
//
// Totals are 256-bit for headroom; individual amounts are uint64 because the
// confidential domain is 64-bit and anything wider could never be mirrored.
//
// Not safe for concurrent use; the engine serializes access.
type SolvencyLedger struct {
	stakes map[string]*uint256.Int
	debts  map[string]*uint256.Int
}

func NewSolvencyLedger() *SolvencyLedger {
	return &SolvencyLedger{
		stakes: make(map[string]*uint256.Int),
		debts:  make(map[string]*uint256.Int),
	}
}

// RecordStake credits amount to the account's clear stake. Deposits are
// always admissible; only a zero amount is rejected.
func (s *SolvencyLedger) RecordStake(account string, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("%w: stake amount must be positive", ErrInvalidAmount)
	}
	s.stake(account).AddUint64(s.stake(account), amount)
	return nil
}

// RecordBorrow credits amount to the account's clear debt after checking the
// 1:1 collateral headroom (stake minus debt). The boundary amount — borrowing
// exactly the headroom — is admissible.
func (s *SolvencyLedger) RecordBorrow(account string, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("%w: borrow amount must be positive", ErrInvalidAmount)
	}

	headroom := new(uint256.Int).Sub(s.stake(account), s.debt(account))
	if headroom.CmpUint64(amount) < 0 {
		return fmt.Errorf("%w: headroom %s < requested %d", ErrInsufficientCollateral, headroom.Dec(), amount)
	}

	s.debt(account).AddUint64(s.debt(account), amount)
	return nil
}

// RecordRepay debits amount from the account's clear debt. Zero and
// over-repayment are both InvalidAmount.
func (s *SolvencyLedger) RecordRepay(account string, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("%w: repay amount must be positive", ErrInvalidAmount)
	}
	if s.debt(account).CmpUint64(amount) < 0 {
		return fmt.Errorf("%w: repay %d exceeds debt %s", ErrInvalidAmount, amount, s.debt(account).Dec())
	}

	s.debt(account).SubUint64(s.debt(account), amount)
	return nil
}

// RecordWithdraw debits amount from the account's clear stake. An amount
// above the stake is InvalidAmount; an amount that would leave the stake
// below the outstanding debt is InsufficientStake.
func (s *SolvencyLedger) RecordWithdraw(account string, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("%w: withdraw amount must be positive", ErrInvalidAmount)
	}

	stake := s.stake(account)
	if stake.CmpUint64(amount) < 0 {
		return fmt.Errorf("%w: withdraw %d exceeds stake %s", ErrInvalidAmount, amount, stake.Dec())
	}

	remaining := new(uint256.Int).SubUint64(stake, amount)
	if remaining.Cmp(s.debt(account)) < 0 {
		return fmt.Errorf("%w: remaining stake %s < outstanding debt %s",
			ErrInsufficientStake, remaining.Dec(), s.debt(account).Dec())
	}

	stake.Set(remaining)
	return nil
}

// Snapshot returns copies of the account's clear stake and debt. Pure read;
// accounts with no history report zero.
func (s *SolvencyLedger) Snapshot(account string) (clearStake, clearDebt *uint256.Int) {
	clearStake = new(uint256.Int)
	clearDebt = new(uint256.Int)
	if v, ok := s.stakes[account]; ok {
		clearStake.Set(v)
	}
	if v, ok := s.debts[account]; ok {
		clearDebt.Set(v)
	}
	return clearStake, clearDebt
}

// Restore overwrites the account's clear totals. Used to rewind an operation
// whose external transfer step failed, and on startup restore.
func (s *SolvencyLedger) Restore(account string, clearStake, clearDebt *uint256.Int) {
	s.stakes[account] = new(uint256.Int).Set(clearStake)
	s.debts[account] = new(uint256.Int).Set(clearDebt)
}

// CheckSolvency verifies the collateralization invariant for an account.
// It should be unreachable — every transition preserves it by construction.
func (s *SolvencyLedger) CheckSolvency(account string) error {
	stake, debt := s.Snapshot(account)
	if debt.Cmp(stake) > 0 {
		return fmt.Errorf("account %s: debt %s exceeds stake %s", account, debt.Dec(), stake.Dec())
	}
	return nil
}

// Accounts returns every account identifier with recorded history.
func (s *SolvencyLedger) Accounts() []string {
	seen := make(map[string]bool, len(s.stakes))
	accounts := make([]string, 0, len(s.stakes))
	for a := range s.stakes {
		seen[a] = true
		accounts = append(accounts, a)
	}
	for a := range s.debts {
		if !seen[a] {
			accounts = append(accounts, a)
		}
	}
	return accounts
}

func (s *SolvencyLedger) stake(account string) *uint256.Int {
	v, ok := s.stakes[account]
	if !ok {
		v = new(uint256.Int)
		s.stakes[account] = v
	}
	return v
}

func (s *SolvencyLedger) debt(account string) *uint256.Int {
	v, ok := s.debts[account]
	if !ok {
		v = new(uint256.Int)
		s.debts[account] = v
	}
	return v
}
