package mgmt

import (
	"context"

	"go.uber.org/zap"
	"lukechampine.com/uint128"

	outcall "github.com/wippyai/canister-outcall"
	"github.com/wippyai/canister-outcall/candid"
	"github.com/wippyai/canister-outcall/cycles"
	"github.com/wippyai/canister-outcall/errors"
	"github.com/wippyai/canister-outcall/principal"
)

// HTTPRequestMethod is the management canister method performing outcalls.
const HTTPRequestMethod = cycles.HTTPRequestMethod

// DefaultMaxResponseBytes is the response cap assumed when
// CanisterHttpRequestArgument.MaxResponseBytes is nil.
const DefaultMaxResponseBytes = cycles.DefaultMaxResponseBytes

// RequiredCycles returns the payment http_request needs for arg.
func RequiredCycles(arg CanisterHttpRequestArgument) (uint128.Uint128, error) {
	encoded, err := candid.Marshal(arg)
	if err != nil {
		return uint128.Zero, err
	}
	return cycles.HTTPRequestCost(len(encoded), arg.MaxResponseBytes), nil
}

// HTTPRequest performs one HTTP outcall through the management canister,
// attaching the required cycles.
//
// Encoding failures return before any call is made. A rejected call returns
// an *errors.CallError with the system's code and message. A reply that is
// not an HttpResponse returns a decode error. The call is never retried.
func HTTPRequest(ctx context.Context, c outcall.Caller, arg CanisterHttpRequestArgument) (HttpResponse, error) {
	encoded, err := candid.Marshal(arg)
	if err != nil {
		return HttpResponse{}, err
	}
	payment := cycles.HTTPRequestCost(len(encoded), arg.MaxResponseBytes)

	Logger().Debug("http outcall",
		zap.String("url", arg.URL),
		zap.Stringer("method", arg.Method),
		zap.Int("arg_bytes", len(encoded)),
		zap.Uint64("max_response_bytes", cycles.EffectiveMaxResponseBytes(arg.MaxResponseBytes)),
		zap.Stringer("cycles", payment),
	)

	reply, err := c.Call(ctx, principal.ManagementCanister(), HTTPRequestMethod, encoded, payment)
	if err != nil {
		return HttpResponse{}, toCallError(err)
	}

	var resp HttpResponse
	if err := candid.Unmarshal(reply, &resp); err != nil {
		return HttpResponse{}, err
	}
	return resp, nil
}

func toCallError(err error) *errors.CallError {
	if ce, ok := errors.AsCallError(err); ok {
		return ce
	}
	return &errors.CallError{Code: errors.RejectUnknown, Message: err.Error(), Cause: err}
}
