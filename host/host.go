package host

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
	"lukechampine.com/uint128"

	outcall "github.com/wippyai/canister-outcall"
	"github.com/wippyai/canister-outcall/errors"
	"github.com/wippyai/canister-outcall/principal"
)

// ModuleName is the import module guests link the system API from.
const ModuleName = "ic0"

// DefaultMaxArgBytes bounds the argument a guest may assemble for one call.
const DefaultMaxArgBytes = 2 << 20

// Bridge routes calls assembled by sandboxed canisters to a Caller.
// One Bridge serves any number of guest modules; each guest module, by
// name, has its own pending call and last result.
type Bridge struct {
	caller  outcall.Caller
	logger  *zap.Logger
	allowed map[principal.Principal]bool // nil allows any callee
	states  map[string]*callState
	maxArg  int
	mu      sync.Mutex
}

// callState is the system API state of one guest.
type callState struct {
	pending *pendingCall

	reply      []byte
	rejectMsg  string
	rejectCode uint32
}

type pendingCall struct {
	callee  principal.Principal
	method  string
	arg     []byte
	payment uint128.Uint128
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) {
		b.logger = l
	}
}

// WithAllowedCallees restricts the canisters guests may call. Calls to any
// other callee are rejected with DestinationInvalid.
func WithAllowedCallees(callees ...principal.Principal) Option {
	return func(b *Bridge) {
		b.allowed = make(map[principal.Principal]bool, len(callees))
		for _, c := range callees {
			b.allowed[c] = true
		}
	}
}

// WithMaxArgBytes bounds the argument size of one call.
func WithMaxArgBytes(n int) Option {
	return func(b *Bridge) {
		b.maxArg = n
	}
}

// New creates a bridge dispatching to c.
func New(c outcall.Caller, opts ...Option) *Bridge {
	b := &Bridge{
		caller: c,
		logger: zap.NewNop(),
		states: make(map[string]*callState),
		maxArg: DefaultMaxArgBytes,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	return b
}

type hostFunc struct {
	fn      api.GoModuleFunc
	name    string
	params  []api.ValueType
	results []api.ValueType
}

func (b *Bridge) functions() []hostFunc {
	i32, i64 := api.ValueTypeI32, api.ValueTypeI64
	return []hostFunc{
		{name: "call_new", fn: b.hostCallNew, params: []api.ValueType{i32, i32, i32, i32}},
		{name: "call_data_append", fn: b.hostCallDataAppend, params: []api.ValueType{i32, i32}},
		{name: "call_cycles_add128", fn: b.hostCallCyclesAdd128, params: []api.ValueType{i64, i64}},
		{name: "call_perform", fn: b.hostCallPerform, results: []api.ValueType{i32}},
		{name: "msg_reply_data_size", fn: b.hostReplyDataSize, results: []api.ValueType{i32}},
		{name: "msg_reply_data_copy", fn: b.hostReplyDataCopy, params: []api.ValueType{i32, i32, i32}},
		{name: "msg_reject_code", fn: b.hostRejectCode, results: []api.ValueType{i32}},
		{name: "msg_reject_msg_size", fn: b.hostRejectMsgSize, results: []api.ValueType{i32}},
		{name: "msg_reject_msg_copy", fn: b.hostRejectMsgCopy, params: []api.ValueType{i32, i32, i32}},
	}
}

// Instantiate registers the ic0 host module in rt. Guests importing from
// ModuleName must be instantiated afterwards. A runtime holds at most one
// ic0 module.
func (b *Bridge) Instantiate(ctx context.Context, rt wazero.Runtime) (api.Module, error) {
	builder := rt.NewHostModuleBuilder(ModuleName)
	for _, f := range b.functions() {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(f.fn, f.params, f.results).
			Export(f.name)
	}
	mod, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, errors.Registration(errors.PhaseHost, ModuleName, err)
	}
	return mod, nil
}

// Release drops the state kept for the named guest module.
func (b *Bridge) Release(module string) {
	b.mu.Lock()
	delete(b.states, module)
	b.mu.Unlock()
}

// state returns the state of mod, creating it on first use. b.mu must be
// held.
func (b *Bridge) state(mod api.Module) *callState {
	s, ok := b.states[mod.Name()]
	if !ok {
		s = &callState{}
		b.states[mod.Name()] = s
	}
	return s
}
