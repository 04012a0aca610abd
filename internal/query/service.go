package query

import (
	"context"
	"database/sql"
	"time"
)

// Service provides read-only access to the persisted ledger: the current
// account record and the operation history. Live snapshot reads are served by
// the engine; this covers durable history for outside callers.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// AccountRecord is the persisted view of one account.
type AccountRecord struct {
	Account        string    `json:"account"`
	ClearStake     string    `json:"clear_stake"`
	ClearDebt      string    `json:"clear_debt"`
	EncStakeHandle string    `json:"enc_stake_handle"`
	EncDebtHandle  string    `json:"enc_debt_handle"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// OperationRecord is one row of an account's operation history.
type OperationRecord struct {
	Sequence    int64     `json:"sequence"`
	OperationID string    `json:"operation_id"`
	EventType   string    `json:"event_type"`
	Account     string    `json:"account"`
	Amount      string    `json:"amount"`
	Timestamp   time.Time `json:"timestamp"`
}

// GetAccount returns the persisted record for an account, or nil if the
// account never transacted.
func (s *Service) GetAccount(ctx context.Context, account string) (*AccountRecord, error) {
	var rec AccountRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT account, clear_stake, clear_debt, enc_stake_handle, enc_debt_handle, updated_at
		FROM lend.accounts
		WHERE account = $1
	`, account).Scan(&rec.Account, &rec.ClearStake, &rec.ClearDebt,
		&rec.EncStakeHandle, &rec.EncDebtHandle, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetOperations returns an account's most recent operations, newest first.
func (s *Service) GetOperations(ctx context.Context, account string, limit int) ([]OperationRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, operation_id, event_type, account, amount, timestamp
		FROM lend.operations
		WHERE account = $1
		ORDER BY sequence DESC
		LIMIT $2
	`, account, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []OperationRecord
	for rows.Next() {
		var op OperationRecord
		if err := rows.Scan(&op.Sequence, &op.OperationID, &op.EventType,
			&op.Account, &op.Amount, &op.Timestamp); err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}
