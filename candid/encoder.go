package candid

import (
	"encoding/binary"
	"math"
	"reflect"
	"strconv"
	"unicode/utf8"

	"github.com/wippyai/canister-outcall/errors"
	"github.com/wippyai/canister-outcall/principal"
)

// Magic prefixes every encoded argument list.
const Magic = "DIDL"

// Encoder serializes Go values into an IDL argument list.
type Encoder struct {
	compiler *Compiler
}

// NewEncoder creates an encoder with its own type cache.
func NewEncoder() *Encoder {
	return &Encoder{compiler: NewCompiler()}
}

// NewEncoderWithCompiler creates an encoder sharing c's type cache.
func NewEncoderWithCompiler(c *Compiler) *Encoder {
	return &Encoder{compiler: c}
}

var defaultEncoder = NewEncoderWithCompiler(defaultCompiler)

// Marshal encodes args as one argument list. A top-level pointer encodes as
// opt of its element.
func Marshal(args ...any) ([]byte, error) {
	return defaultEncoder.Encode(args...)
}

// Encode encodes args as one argument list.
func (e *Encoder) Encode(args ...any) ([]byte, error) {
	plans := make([]*CompiledType, len(args))
	values := make([]reflect.Value, len(args))
	for i, arg := range args {
		if arg == nil {
			return nil, errors.NilPointer(errors.PhaseEncode, argPath(i), "nil")
		}
		ct, err := e.compiler.Compile(reflect.TypeOf(arg))
		if err != nil {
			return nil, err
		}
		plans[i] = ct
		values[i] = reflect.ValueOf(arg)
	}

	table := newTypeTable()
	for _, ct := range plans {
		table.build(ct.idl)
	}

	w := &Writer{buf: make([]byte, 0, 256)}
	w.buf = append(w.buf, Magic...)
	w.buf = table.appendTo(w.buf)
	w.buf = appendUleb(w.buf, uint64(len(plans)))
	for _, ct := range plans {
		w.buf = table.appendRef(w.buf, ct.idl)
	}

	for i, ct := range plans {
		if err := w.writeValue(ct, values[i], argPath(i)); err != nil {
			return nil, err
		}
	}
	return w.buf, nil
}

func argPath(i int) []string {
	return []string{"arg[" + strconv.Itoa(i) + "]"}
}

// typeTable assigns table indices in pre-order: a compound type gets its
// index before its children. Structurally equal types share one entry.
type typeTable struct {
	index   map[string]int
	entries [][]byte
}

func newTypeTable() *typeTable {
	return &typeTable{index: make(map[string]int)}
}

func (tt *typeTable) build(t Type) {
	if t.Opcode().IsPrimitive() {
		return
	}
	key := t.String()
	if _, ok := tt.index[key]; ok {
		return
	}
	idx := len(tt.entries)
	tt.index[key] = idx
	tt.entries = append(tt.entries, nil)

	var entry []byte
	switch v := t.(type) {
	case *Opt:
		tt.build(v.Elem)
		entry = appendSleb(entry, int64(OpOpt))
		entry = tt.appendRef(entry, v.Elem)
	case *Vec:
		tt.build(v.Elem)
		entry = appendSleb(entry, int64(OpVec))
		entry = tt.appendRef(entry, v.Elem)
	case *Record:
		entry = tt.buildFields(entry, OpRecord, v.Fields)
	case *Variant:
		entry = tt.buildFields(entry, OpVariant, v.Fields)
	case *Func:
		for _, a := range v.Args {
			tt.build(a)
		}
		for _, r := range v.Rets {
			tt.build(r)
		}
		entry = appendSleb(entry, int64(OpFunc))
		entry = appendUleb(entry, uint64(len(v.Args)))
		for _, a := range v.Args {
			entry = tt.appendRef(entry, a)
		}
		entry = appendUleb(entry, uint64(len(v.Rets)))
		for _, r := range v.Rets {
			entry = tt.appendRef(entry, r)
		}
		entry = appendUleb(entry, uint64(len(v.Modes)))
		for _, m := range v.Modes {
			entry = append(entry, byte(m))
		}
	case *Service:
		for _, m := range v.Methods {
			tt.build(m.Type)
		}
		entry = appendSleb(entry, int64(OpService))
		entry = appendUleb(entry, uint64(len(v.Methods)))
		for _, m := range v.Methods {
			entry = appendUleb(entry, uint64(len(m.Name)))
			entry = append(entry, m.Name...)
			entry = tt.appendRef(entry, m.Type)
		}
	}
	tt.entries[idx] = entry
}

func (tt *typeTable) buildFields(entry []byte, op Opcode, fields []Field) []byte {
	for _, f := range fields {
		tt.build(f.Type)
	}
	entry = appendSleb(entry, int64(op))
	entry = appendUleb(entry, uint64(len(fields)))
	for _, f := range fields {
		entry = appendUleb(entry, uint64(f.ID))
		entry = tt.appendRef(entry, f.Type)
	}
	return entry
}

func (tt *typeTable) appendRef(b []byte, t Type) []byte {
	if t.Opcode().IsPrimitive() {
		return appendSleb(b, int64(t.Opcode()))
	}
	return appendSleb(b, int64(tt.index[t.String()]))
}

func (tt *typeTable) appendTo(b []byte) []byte {
	b = appendUleb(b, uint64(len(tt.entries)))
	for _, e := range tt.entries {
		b = append(b, e...)
	}
	return b
}

// Writer receives the value bytes of an argument list. Marshalers use it to
// write values of the type they declare.
type Writer struct {
	buf  []byte
	path []string
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Path returns the field path of the value being written.
func (w *Writer) Path() []string {
	return w.path
}

// WriteBool writes a bool value.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

// WriteNat64 writes a nat64 value.
func (w *Writer) WriteNat64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// WriteNat writes a nat value.
func (w *Writer) WriteNat(n NatValue) {
	w.buf = appendBigUleb(w.buf, n.v)
}

// WriteText writes a text value. Invalid UTF-8 is rejected.
func (w *Writer) WriteText(s string) error {
	if !utf8.ValidString(s) {
		return errors.InvalidUTF8(errors.PhaseEncode, w.path, []byte(s))
	}
	w.buf = appendUleb(w.buf, uint64(len(s)))
	w.buf = append(w.buf, s...)
	return nil
}

// WriteBlob writes a vec nat8 value.
func (w *Writer) WriteBlob(b []byte) {
	w.buf = appendUleb(w.buf, uint64(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteVariantIndex writes the discriminant of a variant value. The case
// payload, if any, follows.
func (w *Writer) WriteVariantIndex(idx int) {
	w.buf = appendUleb(w.buf, uint64(idx))
}

// WritePrincipal writes a transparent principal reference.
func (w *Writer) WritePrincipal(p principal.Principal) error {
	if p.Len() > principal.MaxLength {
		return errors.New(errors.PhaseEncode, errors.KindInvalidData).
			Path(w.path...).
			IDLType("principal").
			Value(p.Len()).
			Detail("principal is %d bytes, max %d", p.Len(), principal.MaxLength).
			Build()
	}
	w.buf = append(w.buf, 1)
	w.WriteBlob(p.Bytes())
	return nil
}

// WriteFuncRef writes a transparent reference to method on the entity p.
// Nothing is written when the reference cannot be represented.
func (w *Writer) WriteFuncRef(p principal.Principal, method string) error {
	if method == "" {
		return errors.New(errors.PhaseEncode, errors.KindInvalidData).
			Path(w.path...).
			IDLType("func").
			Detail("method name is empty").
			Build()
	}
	if !utf8.ValidString(method) {
		return errors.InvalidUTF8(errors.PhaseEncode, w.path, []byte(method))
	}

	mark := len(w.buf)
	w.buf = append(w.buf, 1)
	if err := w.WritePrincipal(p); err != nil {
		w.buf = w.buf[:mark]
		return err
	}
	w.buf = appendUleb(w.buf, uint64(len(method)))
	w.buf = append(w.buf, method...)
	return nil
}

func (w *Writer) writeValue(ct *CompiledType, v reflect.Value, path []string) error {
	switch ct.kind {
	case ckBool:
		w.WriteBool(v.Bool())
	case ckNat8:
		w.buf = append(w.buf, byte(v.Uint()))
	case ckNat16:
		w.buf = binary.LittleEndian.AppendUint16(w.buf, uint16(v.Uint()))
	case ckNat32:
		w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v.Uint()))
	case ckNat64:
		w.WriteNat64(v.Uint())
	case ckInt8:
		w.buf = append(w.buf, byte(int8(v.Int())))
	case ckInt16:
		w.buf = binary.LittleEndian.AppendUint16(w.buf, uint16(int16(v.Int())))
	case ckInt32:
		w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(int32(v.Int())))
	case ckInt64:
		w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(v.Int()))
	case ckFloat32:
		w.buf = binary.LittleEndian.AppendUint32(w.buf, math.Float32bits(float32(v.Float())))
	case ckFloat64:
		w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(v.Float()))
	case ckText:
		w.path = path
		return w.WriteText(v.String())
	case ckNat:
		w.WriteNat(v.Interface().(NatValue))
	case ckPrincipal:
		w.path = path
		return w.WritePrincipal(v.Interface().(principal.Principal))
	case ckBlob:
		w.WriteBlob(v.Bytes())
	case ckVec:
		n := v.Len()
		w.buf = appendUleb(w.buf, uint64(n))
		for i := 0; i < n; i++ {
			if err := w.writeValue(ct.elem, v.Index(i), append(path, "["+strconv.Itoa(i)+"]")); err != nil {
				return err
			}
		}
	case ckOpt:
		if v.IsNil() {
			w.buf = append(w.buf, 0)
			return nil
		}
		w.buf = append(w.buf, 1)
		return w.writeValue(ct.elem, v.Elem(), path)
	case ckRecord:
		for _, f := range ct.fields {
			if err := w.writeValue(f.ct, v.FieldByIndex(f.index), append(path, f.name)); err != nil {
				return err
			}
		}
	case ckCustom:
		w.path = path
		m := v.Interface().(Marshaler)
		if err := m.MarshalCandid(w); err != nil {
			return err
		}
	}
	return nil
}
