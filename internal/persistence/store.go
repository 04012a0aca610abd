package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// CoreOutput mirrors core.CoreOutput to avoid an import cycle; the
// orchestrator (cmd/lendledger) bridges between the two shapes.
type CoreOutput struct {
	Operation OperationRow
	Account   AccountRow
}

// OperationRow is a row in lend.operations, the append-only operation log.
type OperationRow struct {
	Sequence       int64
	OperationID    string
	EventType      string
	Account        string
	Amount         string // decimal string, raw 64-bit units
	EncStakeHandle string
	EncDebtHandle  string
	Timestamp      time.Time
}

// AccountRow is a row in lend.accounts: the four persisted fields of an
// account record plus bookkeeping.
type AccountRow struct {
	Account        string
	ClearStake     string // decimal string (256-bit domain)
	ClearDebt      string
	EncStakeHandle string
	EncDebtHandle  string
	UpdatedAt      time.Time
}

// Store reads and writes ledger state in Postgres.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// WriteOperationBatch appends operations to the log using a multi-row INSERT.
// Idempotent on sequence so a retried batch never duplicates rows.
func (s *Store) WriteOperationBatch(ctx context.Context, tx *sql.Tx, ops []OperationRow) error {
	if len(ops) == 0 {
		return nil
	}

	query := `INSERT INTO lend.operations
		(sequence, operation_id, event_type, account, amount, enc_stake_handle, enc_debt_handle, timestamp)
		VALUES `

	values := make([]string, 0, len(ops))
	args := make([]interface{}, 0, len(ops)*8)

	for i, op := range ops {
		base := i * 8
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8,
		))
		args = append(args,
			op.Sequence, op.OperationID, op.EventType, op.Account,
			op.Amount, op.EncStakeHandle, op.EncDebtHandle, op.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// UpsertAccounts writes the post-operation account records. Later writes win;
// accounts are only ever written by the single persistence worker in
// sequence order.
func (s *Store) UpsertAccounts(ctx context.Context, tx *sql.Tx, accounts []AccountRow) error {
	for _, a := range accounts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO lend.accounts (account, clear_stake, clear_debt, enc_stake_handle, enc_debt_handle, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (account) DO UPDATE SET
				clear_stake = EXCLUDED.clear_stake,
				clear_debt = EXCLUDED.clear_debt,
				enc_stake_handle = EXCLUDED.enc_stake_handle,
				enc_debt_handle = EXCLUDED.enc_debt_handle,
				updated_at = EXCLUDED.updated_at
		`, a.Account, a.ClearStake, a.ClearDebt, a.EncStakeHandle, a.EncDebtHandle, a.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upsert account %s: %w", a.Account, err)
		}
	}
	return nil
}

// LoadAccounts returns every persisted account record, for startup restore.
func (s *Store) LoadAccounts(ctx context.Context) ([]AccountRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account, clear_stake, clear_debt, enc_stake_handle, enc_debt_handle, updated_at
		FROM lend.accounts
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []AccountRow
	for rows.Next() {
		var a AccountRow
		if err := rows.Scan(&a.Account, &a.ClearStake, &a.ClearDebt,
			&a.EncStakeHandle, &a.EncDebtHandle, &a.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// LastSequence returns the highest persisted operation sequence, or -1 for an
// empty log.
func (s *Store) LastSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM lend.operations`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return -1, nil
	}
	return seq.Int64, nil
}

// DB exposes the underlying handle for the worker's transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}
