package confidential

import (
	"fmt"
	"math"
	"sync"
)

// Evaluator is the boundary to the cryptosystem. The ledger never sees
// plaintext through it: arithmetic is total (always yields a handle) and
// clamps on over/underflow instead of failing, because a failure observable
// by the caller would leak whether the hidden value crossed a bound.
//
// Use rights are per-handle. A freshly computed handle has none; each party
// entitled to the new value must be granted explicitly via Allow.
type Evaluator interface {
	// Encrypt seals value into a fresh handle and grants owner use rights.
	Encrypt(value uint64, owner Party) Handle

	// Decrypt reveals the value behind h to a party holding use rights.
	Decrypt(h Handle, party Party) (uint64, error)

	// AddClamped returns a handle for a+b, clamped to the 64-bit maximum on
	// overflow. The result carries no use rights.
	AddClamped(a, b Handle) Handle

	// SubClamped returns a handle for a-b, clamped to zero on underflow.
	// The result carries no use rights.
	SubClamped(a, b Handle) Handle

	// Min returns a handle for the smaller of a and b, without revealing
	// which operand won. The result carries no use rights.
	Min(a, b Handle) Handle

	// Allow grants party use rights on h. Rights are additive and never
	// revoked; superseded handles stay decryptable as historical artifacts.
	Allow(h Handle, party Party)

	// ZeroHandle returns the canonical zero ciphertext. Reads against state
	// that was never written resolve to this handle, decryptable by anyone.
	ZeroHandle() Handle
}

// MemEvaluator is an in-process cryptosystem used for development and tests.
// It seals values behind opaque handles and enforces the use-right discipline,
// standing in for an external coprocessor that would hold the key material.
type MemEvaluator struct {
	mu     sync.Mutex
	sealed map[Handle]*sealedValue
	zero   Handle
}

type sealedValue struct {
	value  uint64
	rights map[Party]bool
	open   bool // decryptable by anyone (zero handle only)
}

func NewMemEvaluator() *MemEvaluator {
	e := &MemEvaluator{
		sealed: make(map[Handle]*sealedValue),
	}
	e.zero = newHandle()
	e.sealed[e.zero] = &sealedValue{value: 0, open: true}
	return e
}

func (e *MemEvaluator) Encrypt(value uint64, owner Party) Handle {
	e.mu.Lock()
	defer e.mu.Unlock()

	h := newHandle()
	e.sealed[h] = &sealedValue{
		value:  value,
		rights: map[Party]bool{owner: true},
	}
	return h
}

func (e *MemEvaluator) Decrypt(h Handle, party Party) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sv, ok := e.sealed[h]
	if !ok {
		return 0, fmt.Errorf("unknown handle %s", h)
	}
	if !sv.open && !sv.rights[party] {
		return 0, fmt.Errorf("party %s has no use rights on handle %s", party, h)
	}
	return sv.value, nil
}

func (e *MemEvaluator) AddClamped(a, b Handle) Handle {
	e.mu.Lock()
	defer e.mu.Unlock()

	va, vb := e.valueOf(a), e.valueOf(b)
	sum := va + vb
	if sum < va {
		sum = math.MaxUint64
	}
	return e.seal(sum)
}

func (e *MemEvaluator) SubClamped(a, b Handle) Handle {
	e.mu.Lock()
	defer e.mu.Unlock()

	va, vb := e.valueOf(a), e.valueOf(b)
	var diff uint64
	if va > vb {
		diff = va - vb
	}
	return e.seal(diff)
}

func (e *MemEvaluator) Min(a, b Handle) Handle {
	e.mu.Lock()
	defer e.mu.Unlock()

	va, vb := e.valueOf(a), e.valueOf(b)
	if vb < va {
		va = vb
	}
	return e.seal(va)
}

func (e *MemEvaluator) Allow(h Handle, party Party) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sv, ok := e.sealed[h]
	if !ok {
		return
	}
	if sv.rights == nil {
		sv.rights = make(map[Party]bool)
	}
	sv.rights[party] = true
}

func (e *MemEvaluator) ZeroHandle() Handle {
	return e.zero
}

// valueOf resolves a handle's plaintext for internal arithmetic. Unknown
// handles resolve to zero; callers hold e.mu.
func (e *MemEvaluator) valueOf(h Handle) uint64 {
	if sv, ok := e.sealed[h]; ok {
		return sv.value
	}
	return 0
}

func (e *MemEvaluator) seal(value uint64) Handle {
	h := newHandle()
	e.sealed[h] = &sealedValue{value: value, rights: map[Party]bool{}}
	return h
}
