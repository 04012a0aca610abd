package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"LendLedger/internal/confidential"
	"LendLedger/internal/event"
	"LendLedger/internal/ledger"
	"LendLedger/internal/observability"
	"LendLedger/internal/token"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
)

// CoreOutput is emitted after every committed operation: the envelope for the
// operation log plus the account's post-operation state for the store.
type CoreOutput struct {
	Envelope event.Envelope
	Account  AccountState
}

// AccountState is the persisted shape of one account: the two clear totals
// and the two current encrypted handles.
type AccountState struct {
	Account    string
	ClearStake *uint256.Int
	ClearDebt  *uint256.Int
	EncStake   confidential.Handle
	EncDebt    confidential.Handle
}

// LendingEngine orchestrates the four public transitions. Every operation
// runs solvency check/mutation, then the encrypted mirror, then the external
// value transfer, then event emission — with no externally observable gap: a
// single mutex makes each operation atomic from any other caller's view.
//
// The solvency ledger decides admissibility; the confidential ledger applies
// the mirrored delta without ever seeing the magnitude; the token and vault
// move actual value. If the external step fails, the staged mutations are
// restored from the pre-operation capture before the error is returned.
type LendingEngine struct {
	mu       sync.Mutex
	solvency *ledger.SolvencyLedger
	conf     *confidential.Ledger
	eval     confidential.Evaluator
	token    token.ValueTransferService
	vault    token.CollateralVault
	sequence int64

	persistChan chan<- CoreOutput
	publishChan chan<- CoreOutput

	metrics *observability.Metrics
	log     zerolog.Logger
}

func NewLendingEngine(
	eval confidential.Evaluator,
	transferSvc token.ValueTransferService,
	vault token.CollateralVault,
	persistChan, publishChan chan<- CoreOutput,
	metrics *observability.Metrics,
	log zerolog.Logger,
) (*LendingEngine, error) {
	if transferSvc == nil {
		return nil, fmt.Errorf("%w: value transfer service not set", ledger.ErrInvalidToken)
	}
	if vault == nil {
		return nil, fmt.Errorf("%w: collateral vault not set", ledger.ErrInvalidToken)
	}

	return &LendingEngine{
		solvency:    ledger.NewSolvencyLedger(),
		conf:        confidential.NewLedger(eval),
		eval:        eval,
		token:       transferSvc,
		vault:       vault,
		persistChan: persistChan,
		publishChan: publishChan,
		metrics:     metrics,
		log:         log,
	}, nil
}

// Stake credits amount of base-asset collateral to the account. Always
// admissible for a positive amount; the attached payment is taken into
// custody and both views of the stake grow by the same delta.
func (e *LendingEngine) Stake(ctx context.Context, account string, amount uint64) error {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.solvency.RecordStake(account, amount); err != nil {
		e.reject("stake", err)
		return err
	}

	e.vault.Receive(account, amount)

	delta := e.eval.Encrypt(amount, confidential.PartyLedger)
	e.conf.Increase(account, confidential.FieldStake, delta)

	e.commit(event.EventTypeStaked, account, amount, start)
	return nil
}

// Borrow mints amount of the borrowed asset against the account's collateral
// headroom. Fails with InsufficientCollateral when the headroom is smaller
// than the request; the boundary amount succeeds.
func (e *LendingEngine) Borrow(ctx context.Context, account string, amount uint64) error {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	staged := e.capture(account)

	if err := e.solvency.RecordBorrow(account, amount); err != nil {
		e.reject("borrow", err)
		return err
	}

	delta := e.eval.Encrypt(amount, confidential.PartyLedger)
	e.conf.Increase(account, confidential.FieldDebt, delta)

	if _, err := e.token.Mint(ctx, confidential.PartyLedger, account, delta); err != nil {
		e.rollback("borrow", account, staged)
		return fmt.Errorf("%w: mint: %v", ledger.ErrTransferFailed, err)
	}

	e.commit(event.EventTypeBorrowed, account, amount, start)
	return nil
}

// Repay extinguishes up to amount of the account's debt. The clear debt is
// reduced by the caller-declared amount; the encrypted debt is reduced by the
// amount the token reports it actually moved, which the token may have capped
// by the account's encrypted balance. The two can diverge and that is the
// documented behavior, not a bug.
func (e *LendingEngine) Repay(ctx context.Context, account string, amount uint64) error {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	staged := e.capture(account)

	if err := e.solvency.RecordRepay(account, amount); err != nil {
		e.reject("repay", err)
		return err
	}

	declared := e.eval.Encrypt(amount, confidential.PartyLedger)
	moved, err := e.token.TransferThenBurn(ctx, confidential.PartyLedger, account, declared)
	if err != nil {
		e.rollback("repay", account, staged)
		return fmt.Errorf("%w: transfer-then-burn: %v", ledger.ErrTransferFailed, err)
	}

	e.conf.Decrease(account, confidential.FieldDebt, moved)

	e.commit(event.EventTypeRepaid, account, amount, start)
	return nil
}

// Withdraw returns amount of collateral to the account. The asset send runs
// after both ledgers have mutated, so a send failure unwinds everything and
// surfaces as TransferFailed with the account byte-for-byte unchanged.
func (e *LendingEngine) Withdraw(ctx context.Context, account string, amount uint64) error {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	staged := e.capture(account)

	if err := e.solvency.RecordWithdraw(account, amount); err != nil {
		e.reject("withdraw", err)
		return err
	}

	delta := e.eval.Encrypt(amount, confidential.PartyLedger)
	e.conf.Decrease(account, confidential.FieldStake, delta)

	if err := e.vault.Send(account, amount); err != nil {
		e.rollback("withdraw", account, staged)
		return fmt.Errorf("%w: %v", ledger.ErrTransferFailed, err)
	}

	e.commit(event.EventTypeWithdrawn, account, amount, start)
	return nil
}

// Snapshot returns the account's clear stake and debt. Pure read.
func (e *LendingEngine) Snapshot(account string) (clearStake, clearDebt *uint256.Int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.solvency.Snapshot(account)
}

// EncryptedStake returns the account's current encrypted stake handle.
func (e *LendingEngine) EncryptedStake(account string) confidential.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conf.Read(account, confidential.FieldStake)
}

// EncryptedDebt returns the account's current encrypted debt handle.
func (e *LendingEngine) EncryptedDebt(account string) confidential.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conf.Read(account, confidential.FieldDebt)
}

// Sequence returns the next sequence number the engine will assign.
func (e *LendingEngine) Sequence() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sequence
}

// RestoreAccount installs persisted state on startup, before the engine
// starts serving.
func (e *LendingEngine) RestoreAccount(state AccountState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.solvency.Restore(state.Account, state.ClearStake, state.ClearDebt)
	e.conf.Restore(state.Account, confidential.FieldStake, state.EncStake)
	e.conf.Restore(state.Account, confidential.FieldDebt, state.EncDebt)
}

// SetSequence sets the next sequence number, used on startup restore.
func (e *LendingEngine) SetSequence(seq int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sequence = seq
}

// --- staging, rollback, emission ---

type stagedState struct {
	clearStake *uint256.Int
	clearDebt  *uint256.Int
	encStake   confidential.Handle
	encDebt    confidential.Handle
}

func (e *LendingEngine) capture(account string) stagedState {
	clearStake, clearDebt := e.solvency.Snapshot(account)
	return stagedState{
		clearStake: clearStake,
		clearDebt:  clearDebt,
		encStake:   e.conf.Read(account, confidential.FieldStake),
		encDebt:    e.conf.Read(account, confidential.FieldDebt),
	}
}

func (e *LendingEngine) rollback(op, account string, staged stagedState) {
	e.solvency.Restore(account, staged.clearStake, staged.clearDebt)
	e.conf.Restore(account, confidential.FieldStake, staged.encStake)
	e.conf.Restore(account, confidential.FieldDebt, staged.encDebt)

	e.log.Warn().Str("op", op).Str("account", account).Msg("external transfer failed, operation unwound")
	if e.metrics != nil {
		e.metrics.OpsRolledBack.WithLabelValues(op).Inc()
	}
}

func (e *LendingEngine) reject(op string, err error) {
	if e.metrics != nil {
		e.metrics.OpsRejected.WithLabelValues(op, rejectReason(err)).Inc()
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInsufficientCollateral):
		return "insufficient_collateral"
	case errors.Is(err, ledger.ErrInsufficientStake):
		return "insufficient_stake"
	case errors.Is(err, ledger.ErrInvalidAmount):
		return "invalid_amount"
	default:
		return "other"
	}
}

// commit runs post-checks, assigns the sequence, and emits the output.
// Callers hold e.mu.
func (e *LendingEngine) commit(et event.EventType, account string, amount uint64, start time.Time) {
	if err := e.solvency.CheckSolvency(account); err != nil {
		panic(fmt.Sprintf("FATAL: solvency invariant violated: %v", err))
	}

	clearStake, clearDebt := e.solvency.Snapshot(account)
	output := CoreOutput{
		Envelope: event.Envelope{
			Sequence:       e.sequence,
			OperationID:    uuid.New(),
			EventType:      et,
			Account:        account,
			Amount:         amount,
			EncStakeHandle: e.conf.Read(account, confidential.FieldStake).String(),
			EncDebtHandle:  e.conf.Read(account, confidential.FieldDebt).String(),
			Timestamp:      time.Now().UTC(),
		},
		Account: AccountState{
			Account:    account,
			ClearStake: clearStake,
			ClearDebt:  clearDebt,
			EncStake:   e.conf.Read(account, confidential.FieldStake),
			EncDebt:    e.conf.Read(account, confidential.FieldDebt),
		},
	}
	e.sequence++

	// Persistence: blocking send, the engine stalls rather than lose an
	// operation. Publishing: drop on full, consumers can re-read the log.
	if e.persistChan != nil {
		e.persistChan <- output
	}
	if e.publishChan != nil {
		select {
		case e.publishChan <- output:
		default:
			if e.metrics != nil {
				e.metrics.PublishDrops.Inc()
			}
		}
	}

	op := et.String()
	e.log.Info().
		Str("op", op).
		Str("account", account).
		Uint64("amount", amount).
		Int64("sequence", output.Envelope.Sequence).
		Msg("operation committed")

	if e.metrics != nil {
		e.metrics.OpsApplied.WithLabelValues(op).Inc()
		e.metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		e.metrics.EngineSequence.Set(float64(e.sequence))
	}
}
