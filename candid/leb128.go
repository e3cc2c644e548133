package candid

import (
	"math/big"

	"github.com/multiformats/go-varint"
)

// IDHash maps a field or case name to its wire id.
func IDHash(name string) uint32 {
	var h uint32
	for i := 0; i < len(name); i++ {
		h = h*223 + uint32(name[i])
	}
	return h
}

func appendUleb(b []byte, v uint64) []byte {
	return append(b, varint.ToUvarint(v)...)
}

func appendSleb(b []byte, v int64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}

func appendBigUleb(b []byte, n *big.Int) []byte {
	if n == nil || n.Sign() == 0 {
		return append(b, 0)
	}
	x := new(big.Int).Set(n)
	low := new(big.Int)
	mask := big.NewInt(0x7f)
	for {
		c := byte(low.And(x, mask).Uint64())
		x.Rsh(x, 7)
		if x.Sign() == 0 {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}

func ulebSize(v uint64) int {
	return varint.UvarintSize(v)
}
