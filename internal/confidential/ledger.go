package confidential

// Field selects which encrypted mirror of an account is addressed.
type Field int

const (
	FieldStake Field = iota
	FieldDebt
)

func (f Field) String() string {
	switch f {
	case FieldStake:
		return "stake"
	case FieldDebt:
		return "debt"
	default:
		return "unknown"
	}
}

// Ledger maintains the encrypted mirror of every account's stake and debt.
// It never decrypts and never branches on magnitude: each mutation is a
// clamped arithmetic step that is total by construction. Admissibility is the
// solvency ledger's job and has already been decided before a delta arrives
// here, so the clamp is a defense-in-depth path, not a business rule.
//
// Handles are replaced, not mutated: every mutation produces a new current
// handle and re-grants use rights to the ledger and the account owner. Old
// handles keep their rights as historical artifacts.
//
// Not safe for concurrent use; the engine serializes access.
type Ledger struct {
	eval  Evaluator
	stake map[string]Handle
	debt  map[string]Handle
}

func NewLedger(eval Evaluator) *Ledger {
	return &Ledger{
		eval:  eval,
		stake: make(map[string]Handle),
		debt:  make(map[string]Handle),
	}
}

// Increase applies an encrypted addition of delta onto the account's current
// handle for field and returns the new current handle.
func (l *Ledger) Increase(account string, field Field, delta Handle) Handle {
	next := l.eval.AddClamped(l.Read(account, field), delta)
	l.install(account, field, next)
	return next
}

// Decrease applies an encrypted subtraction of delta from the account's
// current handle for field and returns the new current handle.
func (l *Ledger) Decrease(account string, field Field, delta Handle) Handle {
	next := l.eval.SubClamped(l.Read(account, field), delta)
	l.install(account, field, next)
	return next
}

// Read returns the current handle for the account's field. Accounts with no
// history resolve to the canonical zero handle, never an error.
func (l *Ledger) Read(account string, field Field) Handle {
	h, ok := l.fields(field)[account]
	if !ok {
		return l.eval.ZeroHandle()
	}
	return h
}

// Restore installs a handle as the account's current value without applying
// arithmetic or granting rights. Used to rewind an operation whose external
// transfer step failed, and on startup restore.
func (l *Ledger) Restore(account string, field Field, h Handle) {
	l.fields(field)[account] = h
}

func (l *Ledger) install(account string, field Field, next Handle) {
	l.eval.Allow(next, PartyLedger)
	l.eval.Allow(next, Party(account))
	l.fields(field)[account] = next
}

func (l *Ledger) fields(field Field) map[string]Handle {
	if field == FieldDebt {
		return l.debt
	}
	return l.stake
}
