package candid

import (
	"math/big"

	"github.com/wippyai/canister-outcall/errors"
)

// NatValue is an unbounded natural number, the Go form of the nat type.
// The zero value is 0.
type NatValue struct {
	v *big.Int
}

// NewNat creates a nat from a machine word.
func NewNat(u uint64) NatValue {
	return NatValue{v: new(big.Int).SetUint64(u)}
}

// NatFromBig creates a nat from a big integer. Negative values are rejected.
func NatFromBig(b *big.Int) (NatValue, error) {
	if b.Sign() < 0 {
		return NatValue{}, errors.Overflow(errors.PhaseValidate, nil, b.String(), "nat")
	}
	return NatValue{v: new(big.Int).Set(b)}, nil
}

// Big returns a copy of the value.
func (n NatValue) Big() *big.Int {
	if n.v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(n.v)
}

// Uint64 returns the value if it fits in 64 bits.
func (n NatValue) Uint64() (uint64, bool) {
	if n.v == nil {
		return 0, true
	}
	if !n.v.IsUint64() {
		return 0, false
	}
	return n.v.Uint64(), true
}

// Cmp compares two nats.
func (n NatValue) Cmp(o NatValue) int {
	return n.Big().Cmp(o.Big())
}

// Equal reports numeric equality.
func (n NatValue) Equal(o NatValue) bool {
	return n.Cmp(o) == 0
}

func (n NatValue) String() string {
	return n.Big().String()
}
