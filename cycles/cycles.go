// Package cycles computes the cycle payments attached to system calls.
//
// Amounts are 128-bit unsigned integers. Arithmetic panics on overflow
// rather than wrapping, so a computed payment is either exact or absent.
package cycles

import (
	"lukechampine.com/uint128"
)

// Amount is a number of cycles.
type Amount = uint128.Uint128

// Zero is no payment.
var Zero = uint128.Zero

// Outcall pricing. The per-byte fee applies to the encoded argument, the
// target method name, and the declared response cap alike.
const (
	OutcallBaseFee    uint64 = 400_000_000
	OutcallPerByteFee uint64 = 100_000
)

// DefaultMaxResponseBytes is the response cap assumed when a request does not
// declare one (2 MiB).
const DefaultMaxResponseBytes uint64 = 2 * 1024 * 1024

// HTTPRequestMethod is the system method that performs HTTP outcalls.
const HTTPRequestMethod = "http_request"

// FromUint64 converts a 64-bit count.
func FromUint64(v uint64) Amount {
	return uint128.From64(v)
}

// Parse reads a decimal amount.
func Parse(s string) (Amount, error) {
	return uint128.FromString(s)
}

// OutcallCost is the payment required for an outcall to method whose encoded
// argument is argBytes long and whose response is capped at maxResponseBytes:
//
//	base + perByte × (argBytes + len(method) + maxResponseBytes)
func OutcallCost(method string, argBytes int, maxResponseBytes uint64) Amount {
	size := uint128.From64(uint64(argBytes)).
		Add64(uint64(len(method))).
		Add64(maxResponseBytes)
	return size.Mul64(OutcallPerByteFee).Add64(OutcallBaseFee)
}

// HTTPRequestCost is OutcallCost for the http_request method. A nil
// maxResponseBytes means DefaultMaxResponseBytes.
func HTTPRequestCost(argBytes int, maxResponseBytes *uint64) Amount {
	return OutcallCost(HTTPRequestMethod, argBytes, EffectiveMaxResponseBytes(maxResponseBytes))
}

// EffectiveMaxResponseBytes resolves an optional response cap.
func EffectiveMaxResponseBytes(maxResponseBytes *uint64) uint64 {
	if maxResponseBytes == nil {
		return DefaultMaxResponseBytes
	}
	return *maxResponseBytes
}

// Split returns the high and low 64-bit halves, the form system APIs take.
func Split(a Amount) (high, low uint64) {
	return a.Hi, a.Lo
}

// Join is the inverse of Split.
func Join(high, low uint64) Amount {
	return uint128.New(low, high)
}

// CheckedAdd returns a+b and false if the sum does not fit in 128 bits.
func CheckedAdd(a, b Amount) (Amount, bool) {
	sum := a.AddWrap(b)
	if sum.Cmp(a) < 0 {
		return a, false
	}
	return sum, true
}
