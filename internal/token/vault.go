package token

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"
)

// CollateralVault is the custody boundary for the base asset. Receive models
// the payment attached to a stake; Send pays out a withdrawal and is the one
// external step that can fail after the ledgers have mutated.
type CollateralVault interface {
	Receive(account string, amount uint64)
	Send(account string, amount uint64) error
}

// BaseVault tracks base-asset custody in plaintext. Collateral amounts are
// public by design, only the borrowed side is confidential.
type BaseVault struct {
	mu   sync.Mutex
	held *uint256.Int
}

func NewBaseVault() *BaseVault {
	return &BaseVault{held: new(uint256.Int)}
}

func (v *BaseVault) Receive(account string, amount uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.held.AddUint64(v.held, amount)
}

func (v *BaseVault) Send(account string, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.held.CmpUint64(amount) < 0 {
		return fmt.Errorf("vault holds %s, cannot send %d", v.held.Dec(), amount)
	}
	v.held.SubUint64(v.held, amount)
	return nil
}

// Held returns a copy of the total custody balance.
func (v *BaseVault) Held() *uint256.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(uint256.Int).Set(v.held)
}
