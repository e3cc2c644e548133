package outcall

import (
	"context"

	"lukechampine.com/uint128"

	"github.com/wippyai/canister-outcall/principal"
)

// Caller issues one inter-canister call and waits for its reply.
//
// payment is the number of cycles attached to the call. It travels beside
// the argument, never inside it. A rejected call returns an
// *errors.CallError carrying the reject code and message.
type Caller interface {
	Call(ctx context.Context, callee principal.Principal, method string, arg []byte, payment uint128.Uint128) ([]byte, error)
}

// CallerFunc adapts a function to the Caller interface.
type CallerFunc func(ctx context.Context, callee principal.Principal, method string, arg []byte, payment uint128.Uint128) ([]byte, error)

func (f CallerFunc) Call(ctx context.Context, callee principal.Principal, method string, arg []byte, payment uint128.Uint128) ([]byte, error) {
	return f(ctx, callee, method, arg, payment)
}
