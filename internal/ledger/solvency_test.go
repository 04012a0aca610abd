package ledger_test

import (
	"LendLedger/internal/ledger"
	"errors"
	"testing"
)

// ============================================================================
// Test: RecordStake
// ============================================================================

func TestRecordStake_ZeroAmount_Fails(t *testing.T) {
	s := ledger.NewSolvencyLedger()

	err := s.RecordStake("alice", 0)
	if !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Errorf("got %v, want ErrInvalidAmount", err)
	}
}

func TestRecordStake_Accumulates(t *testing.T) {
	s := ledger.NewSolvencyLedger()

	if err := s.RecordStake("alice", 1_000); err != nil {
		t.Fatalf("first stake: %v", err)
	}
	if err := s.RecordStake("alice", 500); err != nil {
		t.Fatalf("second stake: %v", err)
	}

	stake, debt := s.Snapshot("alice")
	if stake.Uint64() != 1_500 {
		t.Errorf("stake: got %s, want 1500", stake.Dec())
	}
	if !debt.IsZero() {
		t.Errorf("debt: got %s, want 0", debt.Dec())
	}
}

// ============================================================================
// Test: RecordBorrow
// ============================================================================

func TestRecordBorrow_NoCollateral_Fails(t *testing.T) {
	s := ledger.NewSolvencyLedger()

	err := s.RecordBorrow("alice", 1)
	if !errors.Is(err, ledger.ErrInsufficientCollateral) {
		t.Errorf("got %v, want ErrInsufficientCollateral", err)
	}
}

func TestRecordBorrow_ExactHeadroom_Succeeds(t *testing.T) {
	s := ledger.NewSolvencyLedger()
	s.RecordStake("alice", 1_000)

	// Borrowing exactly the headroom is admissible
	if err := s.RecordBorrow("alice", 1_000); err != nil {
		t.Fatalf("boundary borrow should succeed: %v", err)
	}

	stake, debt := s.Snapshot("alice")
	if debt.Cmp(stake) != 0 {
		t.Errorf("debt %s should equal stake %s", debt.Dec(), stake.Dec())
	}
}

func TestRecordBorrow_OneAboveHeadroom_Fails(t *testing.T) {
	s := ledger.NewSolvencyLedger()
	s.RecordStake("alice", 1_000)

	err := s.RecordBorrow("alice", 1_001)
	if !errors.Is(err, ledger.ErrInsufficientCollateral) {
		t.Errorf("got %v, want ErrInsufficientCollateral", err)
	}

	// Failed borrow must not touch state
	_, debt := s.Snapshot("alice")
	if !debt.IsZero() {
		t.Errorf("debt after failed borrow: got %s, want 0", debt.Dec())
	}
}

func TestRecordBorrow_HeadroomShrinksWithDebt(t *testing.T) {
	s := ledger.NewSolvencyLedger()
	s.RecordStake("alice", 1_000)
	s.RecordBorrow("alice", 600)

	// Remaining headroom is 400
	if err := s.RecordBorrow("alice", 401); !errors.Is(err, ledger.ErrInsufficientCollateral) {
		t.Errorf("got %v, want ErrInsufficientCollateral", err)
	}
	if err := s.RecordBorrow("alice", 400); err != nil {
		t.Errorf("borrow within headroom should succeed: %v", err)
	}
}

func TestRecordBorrow_ZeroAmount_Fails(t *testing.T) {
	s := ledger.NewSolvencyLedger()
	s.RecordStake("alice", 1_000)

	if err := s.RecordBorrow("alice", 0); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Errorf("got %v, want ErrInvalidAmount", err)
	}
}

// ============================================================================
// Test: RecordRepay
// ============================================================================

func TestRecordRepay_ReducesDebt(t *testing.T) {
	s := ledger.NewSolvencyLedger()
	s.RecordStake("alice", 1_000)
	s.RecordBorrow("alice", 800)

	if err := s.RecordRepay("alice", 300); err != nil {
		t.Fatalf("repay: %v", err)
	}

	_, debt := s.Snapshot("alice")
	if debt.Uint64() != 500 {
		t.Errorf("debt: got %s, want 500", debt.Dec())
	}
}

func TestRecordRepay_OverRepayment_Fails(t *testing.T) {
	s := ledger.NewSolvencyLedger()
	s.RecordStake("alice", 1_000)
	s.RecordBorrow("alice", 200)

	err := s.RecordRepay("alice", 201)
	if !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Errorf("got %v, want ErrInvalidAmount", err)
	}

	_, debt := s.Snapshot("alice")
	if debt.Uint64() != 200 {
		t.Errorf("debt after failed repay: got %s, want 200", debt.Dec())
	}
}

func TestRecordRepay_FullDebt_Succeeds(t *testing.T) {
	s := ledger.NewSolvencyLedger()
	s.RecordStake("alice", 1_000)
	s.RecordBorrow("alice", 700)

	if err := s.RecordRepay("alice", 700); err != nil {
		t.Fatalf("full repay: %v", err)
	}

	_, debt := s.Snapshot("alice")
	if !debt.IsZero() {
		t.Errorf("debt: got %s, want 0", debt.Dec())
	}
}

func TestRecordRepay_ZeroAmount_Fails(t *testing.T) {
	s := ledger.NewSolvencyLedger()

	if err := s.RecordRepay("alice", 0); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Errorf("got %v, want ErrInvalidAmount", err)
	}
}

// ============================================================================
// Test: RecordWithdraw
// ============================================================================

func TestRecordWithdraw_FreePortion_Succeeds(t *testing.T) {
	s := ledger.NewSolvencyLedger()
	s.RecordStake("alice", 1_000)
	s.RecordBorrow("alice", 600)

	// 400 of the stake is not backing debt
	if err := s.RecordWithdraw("alice", 400); err != nil {
		t.Fatalf("withdraw free portion: %v", err)
	}

	stake, debt := s.Snapshot("alice")
	if stake.Uint64() != 600 {
		t.Errorf("stake: got %s, want 600", stake.Dec())
	}
	if debt.Uint64() != 600 {
		t.Errorf("debt: got %s, want 600", debt.Dec())
	}
}

func TestRecordWithdraw_WouldBreakCollateralization_Fails(t *testing.T) {
	s := ledger.NewSolvencyLedger()
	s.RecordStake("alice", 1_000)
	s.RecordBorrow("alice", 600)

	// Withdrawing 401 would leave 599 backing a 600 debt
	err := s.RecordWithdraw("alice", 401)
	if !errors.Is(err, ledger.ErrInsufficientStake) {
		t.Errorf("got %v, want ErrInsufficientStake", err)
	}

	stake, _ := s.Snapshot("alice")
	if stake.Uint64() != 1_000 {
		t.Errorf("stake after failed withdraw: got %s, want 1000", stake.Dec())
	}
}

func TestRecordWithdraw_MoreThanStake_Fails(t *testing.T) {
	s := ledger.NewSolvencyLedger()
	s.RecordStake("alice", 100)

	err := s.RecordWithdraw("alice", 101)
	if !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Errorf("got %v, want ErrInvalidAmount", err)
	}
}

func TestRecordWithdraw_EntireStakeWhenDebtFree_Succeeds(t *testing.T) {
	s := ledger.NewSolvencyLedger()
	s.RecordStake("alice", 1_000)

	if err := s.RecordWithdraw("alice", 1_000); err != nil {
		t.Fatalf("full withdraw: %v", err)
	}

	stake, _ := s.Snapshot("alice")
	if !stake.IsZero() {
		t.Errorf("stake: got %s, want 0", stake.Dec())
	}
}

// ============================================================================
// Test: Snapshot / CheckSolvency / Accounts
// ============================================================================

func TestSnapshot_UnknownAccount_ReportsZeroWithoutCreating(t *testing.T) {
	s := ledger.NewSolvencyLedger()

	stake, debt := s.Snapshot("ghost")
	if !stake.IsZero() || !debt.IsZero() {
		t.Errorf("unknown account: got stake=%s debt=%s, want zeros", stake.Dec(), debt.Dec())
	}

	if n := len(s.Accounts()); n != 0 {
		t.Errorf("snapshot of unknown account created %d entries", n)
	}
}

func TestSnapshot_ReturnsCopies(t *testing.T) {
	s := ledger.NewSolvencyLedger()
	s.RecordStake("alice", 500)

	stake, _ := s.Snapshot("alice")
	stake.Clear()

	again, _ := s.Snapshot("alice")
	if again.Uint64() != 500 {
		t.Errorf("mutating a snapshot leaked into the ledger: got %s", again.Dec())
	}
}

func TestCheckSolvency_HoldsAfterOperations(t *testing.T) {
	s := ledger.NewSolvencyLedger()
	s.RecordStake("alice", 1_000)
	s.RecordBorrow("alice", 1_000)
	s.RecordRepay("alice", 250)
	s.RecordWithdraw("alice", 250)

	if err := s.CheckSolvency("alice"); err != nil {
		t.Errorf("solvency should hold: %v", err)
	}
}

func TestAccounts_ListsHistory(t *testing.T) {
	s := ledger.NewSolvencyLedger()
	s.RecordStake("alice", 1)
	s.RecordStake("bob", 1)

	accounts := s.Accounts()
	if len(accounts) != 2 {
		t.Errorf("got %d accounts, want 2", len(accounts))
	}
}
