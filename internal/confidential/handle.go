package confidential

import "github.com/google/uuid"

// Handle is an opaque reference to an encrypted 64-bit value. It carries no
// plaintext information; parties with use rights can ask the evaluator to
// decrypt it.
type Handle struct {
	id uuid.UUID
}

// Party identifies a principal that can hold use rights on a handle.
// Accounts are their account identifier; the ledger itself is a fixed party.
type Party string

// PartyLedger is the accounting engine's own identity. The engine is granted
// use rights on every handle it produces so it can feed the handle back into
// later arithmetic.
const PartyLedger Party = "ledger"

func newHandle() Handle {
	return Handle{id: uuid.New()}
}

// ParseHandle reconstructs a handle from its string form (storage, API).
func ParseHandle(s string) (Handle, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return Handle{}, err
	}
	return Handle{id: id}, nil
}

func (h Handle) String() string {
	return h.id.String()
}

// IsNil reports whether the handle is the uninitialized value, which is
// distinct from the evaluator's canonical zero handle.
func (h Handle) IsNil() bool {
	return h.id == uuid.Nil
}
