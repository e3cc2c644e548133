package host

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/canister-outcall/cycles"
	"github.com/wippyai/canister-outcall/errors"
	"github.com/wippyai/canister-outcall/principal"
)

// Host functions trap by panicking; wazero turns the panic into an error
// returned from the guest's export call.

func (b *Bridge) hostCallNew(ctx context.Context, mod api.Module, stack []uint64) {
	err := b.CallNew(mod,
		api.DecodeU32(stack[0]), api.DecodeU32(stack[1]),
		api.DecodeU32(stack[2]), api.DecodeU32(stack[3]))
	if err != nil {
		panic(err)
	}
}

func (b *Bridge) hostCallDataAppend(ctx context.Context, mod api.Module, stack []uint64) {
	if err := b.CallDataAppend(mod, api.DecodeU32(stack[0]), api.DecodeU32(stack[1])); err != nil {
		panic(err)
	}
}

func (b *Bridge) hostCallCyclesAdd128(ctx context.Context, mod api.Module, stack []uint64) {
	if err := b.CallCyclesAdd128(mod, stack[0], stack[1]); err != nil {
		panic(err)
	}
}

func (b *Bridge) hostCallPerform(ctx context.Context, mod api.Module, stack []uint64) {
	code, err := b.CallPerform(ctx, mod)
	if err != nil {
		panic(err)
	}
	stack[0] = api.EncodeU32(code)
}

func (b *Bridge) hostReplyDataSize(ctx context.Context, mod api.Module, stack []uint64) {
	stack[0] = api.EncodeU32(b.ReplyDataSize(mod))
}

func (b *Bridge) hostReplyDataCopy(ctx context.Context, mod api.Module, stack []uint64) {
	err := b.ReplyDataCopy(mod, api.DecodeU32(stack[0]), api.DecodeU32(stack[1]), api.DecodeU32(stack[2]))
	if err != nil {
		panic(err)
	}
}

func (b *Bridge) hostRejectCode(ctx context.Context, mod api.Module, stack []uint64) {
	stack[0] = api.EncodeU32(b.RejectCode(mod))
}

func (b *Bridge) hostRejectMsgSize(ctx context.Context, mod api.Module, stack []uint64) {
	stack[0] = api.EncodeU32(b.RejectMsgSize(mod))
}

func (b *Bridge) hostRejectMsgCopy(ctx context.Context, mod api.Module, stack []uint64) {
	err := b.RejectMsgCopy(mod, api.DecodeU32(stack[0]), api.DecodeU32(stack[1]), api.DecodeU32(stack[2]))
	if err != nil {
		panic(err)
	}
}

// CallNew starts a call from mod to the canister and method read from its
// memory. Only one call may be pending per guest.
func (b *Bridge) CallNew(mod api.Module, calleeSrc, calleeSize, nameSrc, nameSize uint32) error {
	raw, err := readGuest(mod, calleeSrc, calleeSize)
	if err != nil {
		return err
	}
	callee, err := principal.FromBytes(raw)
	if err != nil {
		return errors.Wrap(errors.PhaseHost, errors.KindInvalidInput, err, "call_new: invalid callee")
	}
	name, err := readGuest(mod, nameSrc, nameSize)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.state(mod)
	if s.pending != nil {
		return errors.InvalidInput(errors.PhaseHost, "call_new: a call is already pending")
	}
	s.pending = &pendingCall{callee: callee, method: string(name)}
	return nil
}

// CallDataAppend appends argument bytes to the pending call.
func (b *Bridge) CallDataAppend(mod api.Module, src, size uint32) error {
	data, err := readGuest(mod, src, size)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	p, err := b.pendingOf(mod, "call_data_append")
	if err != nil {
		return err
	}
	if len(p.arg)+len(data) > b.maxArg {
		return errors.New(errors.PhaseHost, errors.KindOverflow).
			Value(len(p.arg) + len(data)).
			Detail("call_data_append: argument exceeds %d bytes", b.maxArg).
			Build()
	}
	p.arg = append(p.arg, data...)
	return nil
}

// CallCyclesAdd128 adds high<<64|low cycles to the pending call's payment.
func (b *Bridge) CallCyclesAdd128(mod api.Module, high, low uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, err := b.pendingOf(mod, "call_cycles_add128")
	if err != nil {
		return err
	}
	sum, ok := cycles.CheckedAdd(p.payment, cycles.Join(high, low))
	if !ok {
		return errors.Overflow(errors.PhaseHost, nil, cycles.Join(high, low).String(), "cycles")
	}
	p.payment = sum
	return nil
}

// CallPerform dispatches the pending call and blocks until it completes.
// It returns 0 when the callee replied and the reject code otherwise.
// Failures that carry no reject code report SysTransient.
func (b *Bridge) CallPerform(ctx context.Context, mod api.Module) (uint32, error) {
	b.mu.Lock()
	p, err := b.pendingOf(mod, "call_perform")
	if err != nil {
		b.mu.Unlock()
		return 0, err
	}
	b.state(mod).pending = nil
	b.mu.Unlock()

	log := b.logger.With(
		zap.String("guest", mod.Name()),
		zap.Stringer("callee", p.callee),
		zap.String("method", p.method),
		zap.Int("arg_bytes", len(p.arg)),
		zap.Stringer("cycles", p.payment),
	)

	var (
		reply []byte
		ce    *errors.CallError
	)
	if b.allowed != nil && !b.allowed[p.callee] {
		ce = errors.NewCallError(errors.RejectDestinationInvalid, "callee "+p.callee.String()+" is not allowed")
	} else {
		var callErr error
		reply, callErr = b.caller.Call(ctx, p.callee, p.method, p.arg, p.payment)
		if callErr != nil {
			var ok bool
			if ce, ok = errors.AsCallError(callErr); !ok || ce.Code == errors.RejectUnknown {
				ce = &errors.CallError{Code: errors.RejectSysTransient, Message: callErr.Error(), Cause: callErr}
			}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.state(mod)
	if ce != nil {
		log.Debug("call rejected", zap.Stringer("code", ce.Code), zap.String("message", ce.Message))
		s.reply, s.rejectCode, s.rejectMsg = nil, uint32(ce.Code), ce.Message
		return uint32(ce.Code), nil
	}
	log.Debug("call replied", zap.Int("reply_bytes", len(reply)))
	s.reply, s.rejectCode, s.rejectMsg = reply, 0, ""
	return 0, nil
}

// ReplyDataSize is the size of the last reply mod received.
func (b *Bridge) ReplyDataSize(mod api.Module) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return uint32(len(b.state(mod).reply))
}

// ReplyDataCopy copies size bytes of the last reply, from offset, to dst.
func (b *Bridge) ReplyDataCopy(mod api.Module, dst, offset, size uint32) error {
	b.mu.Lock()
	reply := b.state(mod).reply
	b.mu.Unlock()
	return copyToGuest(mod, "msg_reply_data_copy", reply, dst, offset, size)
}

// RejectCode is the reject code of the last call mod performed, 0 after a
// reply.
func (b *Bridge) RejectCode(mod api.Module) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state(mod).rejectCode
}

func (b *Bridge) RejectMsgSize(mod api.Module) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return uint32(len(b.state(mod).rejectMsg))
}

func (b *Bridge) RejectMsgCopy(mod api.Module, dst, offset, size uint32) error {
	b.mu.Lock()
	msg := b.state(mod).rejectMsg
	b.mu.Unlock()
	return copyToGuest(mod, "msg_reject_msg_copy", []byte(msg), dst, offset, size)
}

func (b *Bridge) pendingOf(mod api.Module, fn string) (*pendingCall, error) {
	p := b.state(mod).pending
	if p == nil {
		return nil, errors.InvalidInput(errors.PhaseHost, fn+": no call pending")
	}
	return p, nil
}

var errNoMemory = errors.InvalidInput(errors.PhaseHost, "guest exports no memory")

func readGuest(mod api.Module, ptr, size uint32) ([]byte, error) {
	mem := mod.Memory()
	if mem == nil {
		return nil, errNoMemory
	}
	view, ok := mem.Read(ptr, size)
	if !ok {
		return nil, errors.New(errors.PhaseHost, errors.KindOutOfBounds).
			Value(ptr).
			Detail("read of %d bytes at %d is outside guest memory", size, ptr).
			Build()
	}
	out := make([]byte, len(view))
	copy(out, view)
	return out, nil
}

func copyToGuest(mod api.Module, fn string, src []byte, dst, offset, size uint32) error {
	if uint64(offset)+uint64(size) > uint64(len(src)) {
		return errors.OutOfBounds(errors.PhaseHost, []string{fn}, int(offset)+int(size), len(src))
	}
	mem := mod.Memory()
	if mem == nil {
		return errNoMemory
	}
	if !mem.Write(dst, src[offset:offset+size]) {
		return errors.New(errors.PhaseHost, errors.KindOutOfBounds).
			Path(fn).
			Value(dst).
			Detail("write of %d bytes at %d is outside guest memory", size, dst).
			Build()
	}
	return nil
}
