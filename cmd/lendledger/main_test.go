package main

import (
	"LendLedger/internal/confidential"
	"LendLedger/internal/core"
	"LendLedger/internal/persistence"
	"LendLedger/internal/token"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func restoredFixture(t *testing.T, rows []persistence.AccountRow) (*core.LendingEngine, *token.ConfidentialToken, *confidential.MemEvaluator) {
	t.Helper()

	eval := confidential.NewMemEvaluator()
	tok, err := token.NewConfidentialToken(eval, confidential.PartyLedger)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	vault := token.NewBaseVault()

	engine, err := core.NewLendingEngine(eval, tok, vault, nil, nil, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	if err := installAccounts(context.Background(), rows, engine, eval, tok, vault, confidential.PartyLedger); err != nil {
		t.Fatalf("install accounts: %v", err)
	}
	return engine, tok, eval
}

func accountRow(account, clearStake, clearDebt string) persistence.AccountRow {
	return persistence.AccountRow{
		Account:        account,
		ClearStake:     clearStake,
		ClearDebt:      clearDebt,
		EncStakeHandle: uuid.New().String(),
		EncDebtHandle:  uuid.New().String(),
		UpdatedAt:      time.Now().UTC(),
	}
}

// ============================================================================
// Test: Startup restore
// ============================================================================

func TestInstallAccounts_RepayAfterRestartKeepsViewsInLockStep(t *testing.T) {
	engine, tok, eval := restoredFixture(t, []persistence.AccountRow{
		accountRow("alice", "1000", "400"),
	})
	ctx := context.Background()

	// The outstanding borrowed balance is back in the token, not just the
	// debt handle
	balance, err := eval.Decrypt(tok.BalanceOf("alice"), "alice")
	if err != nil {
		t.Fatalf("balance decrypt: %v", err)
	}
	if balance != 400 {
		t.Fatalf("restored balance: got %d, want 400", balance)
	}

	tok.Approve("alice", confidential.PartyLedger, time.Now().Add(time.Hour))
	if err := engine.Repay(ctx, "alice", 400); err != nil {
		t.Fatalf("repay after restart: %v", err)
	}

	_, clearDebt := engine.Snapshot("alice")
	if !clearDebt.IsZero() {
		t.Errorf("clear debt: got %s, want 0", clearDebt.Dec())
	}
	encDebt, err := eval.Decrypt(engine.EncryptedDebt("alice"), confidential.PartyLedger)
	if err != nil {
		t.Fatalf("enc debt decrypt: %v", err)
	}
	if encDebt != 0 {
		t.Errorf("enc debt: got %d, want 0 (must fall with the clear debt)", encDebt)
	}
}

func TestInstallAccounts_ResealsBothMirrors(t *testing.T) {
	engine, _, eval := restoredFixture(t, []persistence.AccountRow{
		accountRow("alice", "800", "300"),
		accountRow("bob", "50", "0"),
	})

	stake, err := eval.Decrypt(engine.EncryptedStake("alice"), "alice")
	if err != nil {
		t.Fatalf("stake decrypt: %v", err)
	}
	debt, err := eval.Decrypt(engine.EncryptedDebt("alice"), "alice")
	if err != nil {
		t.Fatalf("debt decrypt: %v", err)
	}
	if stake != 800 || debt != 300 {
		t.Errorf("got stake=%d debt=%d, want 800/300", stake, debt)
	}

	clearStake, clearDebt := engine.Snapshot("bob")
	if clearStake.Uint64() != 50 || !clearDebt.IsZero() {
		t.Errorf("bob: got stake=%s debt=%s, want 50/0", clearStake.Dec(), clearDebt.Dec())
	}
}

func TestInstallAccounts_DebtFreeAccountGetsNoBalance(t *testing.T) {
	_, tok, eval := restoredFixture(t, []persistence.AccountRow{
		accountRow("bob", "500", "0"),
	})

	if tok.BalanceOf("bob") != eval.ZeroHandle() {
		t.Error("debt-free account should hold the canonical zero handle")
	}
}

func TestInstallAccounts_BadDecimal_Fails(t *testing.T) {
	eval := confidential.NewMemEvaluator()
	tok, _ := token.NewConfidentialToken(eval, confidential.PartyLedger)
	vault := token.NewBaseVault()
	engine, _ := core.NewLendingEngine(eval, tok, vault, nil, nil, nil, zerolog.Nop())

	rows := []persistence.AccountRow{accountRow("alice", "not-a-number", "0")}
	if err := installAccounts(context.Background(), rows, engine, eval, tok, vault, confidential.PartyLedger); err == nil {
		t.Error("malformed clear stake should fail restore")
	}
}
