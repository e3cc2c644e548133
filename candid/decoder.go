package candid

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"unicode/utf8"

	"github.com/multiformats/go-varint"

	"github.com/wippyai/canister-outcall/errors"
	"github.com/wippyai/canister-outcall/principal"
)

// Safety limits applied while reading untrusted input.
const (
	MaxTableSize  = 1 << 12 // type table entries
	MaxFields     = 1 << 12 // fields per record or variant
	MaxListLength = 1 << 24 // elements per vec
	MaxNatBytes   = 1 << 10 // leb128 bytes per nat
)

// Decoder deserializes IDL argument lists into Go values.
type Decoder struct {
	compiler *Compiler
}

// NewDecoder creates a decoder with its own type cache.
func NewDecoder() *Decoder {
	return &Decoder{compiler: NewCompiler()}
}

// NewDecoderWithCompiler creates a decoder sharing c's type cache.
func NewDecoderWithCompiler(c *Compiler) *Decoder {
	return &Decoder{compiler: c}
}

var defaultDecoder = NewDecoderWithCompiler(defaultCompiler)

// Unmarshal decodes an argument list into outs, which must be non-nil
// pointers. The argument count must match and no bytes may remain.
func Unmarshal(data []byte, outs ...any) error {
	return defaultDecoder.Decode(data, outs...)
}

// Decode decodes an argument list into outs.
func (d *Decoder) Decode(data []byte, outs ...any) error {
	targets := make([]reflect.Value, len(outs))
	plans := make([]*CompiledType, len(outs))
	for i, out := range outs {
		rv := reflect.ValueOf(out)
		if rv.Kind() != reflect.Ptr || rv.IsNil() {
			return errors.New(errors.PhaseDecode, errors.KindNilPointer).
				Path(argPath(i)...).
				GoType(fmt.Sprintf("%T", out)).
				Detail("decode target must be a non-nil pointer").
				Build()
		}
		ct, err := d.compiler.Compile(rv.Type().Elem())
		if err != nil {
			return err
		}
		targets[i] = rv.Elem()
		plans[i] = ct
	}

	r := &Reader{data: data}
	args, err := r.readHeader()
	if err != nil {
		return err
	}
	if len(args) != len(outs) {
		return errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Detail("argument count mismatch: wire has %d, expected %d", len(args), len(outs)).
			Build()
	}

	for i := range outs {
		if err := r.readValue(args[i], plans[i], targets[i], argPath(i)); err != nil {
			return err
		}
	}
	if rest := len(r.data) - r.pos; rest != 0 {
		return errors.InvalidData(errors.PhaseDecode, nil, strconv.Itoa(rest)+" trailing bytes after argument list")
	}
	return nil
}

// ArgTypes returns the declared argument types of an encoded argument list
// without decoding any value.
func ArgTypes(data []byte) ([]Type, error) {
	r := &Reader{data: data}
	return r.readHeader()
}

// Reader reads the value bytes of an argument list. Unmarshalers use it to
// read values of the type they declare.
type Reader struct {
	data  []byte
	table []Type
	path  []string
	pos   int
}

// Path returns the field path of the value being read.
func (r *Reader) Path() []string {
	return r.path
}

func (r *Reader) readByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, errors.OutOfBounds(errors.PhaseDecode, r.path, 1, 0)
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *Reader) readN(n uint64) ([]byte, error) {
	rest := uint64(len(r.data) - r.pos)
	if n > rest {
		return nil, errors.OutOfBounds(errors.PhaseDecode, r.path, int(min(n, math.MaxInt32)), int(rest))
	}
	b := r.data[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}

func (r *Reader) readUleb() (uint64, error) {
	v, n, err := varint.FromUvarint(r.data[r.pos:])
	if err != nil {
		return 0, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Path(r.path...).
			Detail("invalid leb128").
			Cause(err).
			Build()
	}
	r.pos += n
	return v, nil
}

func (r *Reader) readSleb() (int64, error) {
	var result int64
	var shift uint
	var prev byte
	for i := 0; ; i++ {
		if i >= 10 {
			return 0, errors.Overflow(errors.PhaseDecode, r.path, "sleb128", "int64")
		}
		c, err := r.readByte()
		if err != nil {
			return 0, err
		}
		result |= int64(c&0x7f) << shift
		shift += 7
		if c&0x80 == 0 {
			// A final 0x00 after a positive byte, or 0x7f after a negative
			// one, only repeats the sign.
			if i > 0 && ((c == 0 && prev&0x40 == 0) || (c == 0x7f && prev&0x40 != 0)) {
				return 0, errors.InvalidData(errors.PhaseDecode, r.path, "non-minimal sleb128")
			}
			if shift < 64 && c&0x40 != 0 {
				result |= -1 << shift
			}
			return result, nil
		}
		prev = c
	}
}

func (r *Reader) readBigUleb() (*big.Int, error) {
	n := new(big.Int)
	chunk := new(big.Int)
	var shift uint
	for i := 0; ; i++ {
		if i >= MaxNatBytes {
			return nil, errors.Overflow(errors.PhaseDecode, r.path, "leb128", "nat")
		}
		c, err := r.readByte()
		if err != nil {
			return nil, err
		}
		chunk.SetUint64(uint64(c & 0x7f))
		n.Or(n, chunk.Lsh(chunk, shift))
		shift += 7
		if c&0x80 == 0 {
			if c == 0 && i > 0 {
				return nil, errors.InvalidData(errors.PhaseDecode, r.path, "non-minimal leb128")
			}
			return n, nil
		}
	}
}

func (r *Reader) readLength(what string, limit uint64) (uint64, error) {
	n, err := r.readUleb()
	if err != nil {
		return 0, err
	}
	if n > limit {
		return 0, errors.New(errors.PhaseDecode, errors.KindOverflow).
			Path(r.path...).
			Value(n).
			Detail("%s count %d exceeds limit %d", what, n, limit).
			Build()
	}
	return n, nil
}

// tableRef is an unresolved reference into the type table, used only while
// the table is being read.
type tableRef int

func (tableRef) Opcode() Opcode   { return OpReserved }
func (t tableRef) String() string { return "table" + strconv.Itoa(int(t)) }

func (r *Reader) readHeader() ([]Type, error) {
	magic, err := r.readN(uint64(len(Magic)))
	if err != nil || !bytes.Equal(magic, []byte(Magic)) {
		return nil, errors.InvalidData(errors.PhaseDecode, nil, "missing DIDL magic")
	}

	count, err := r.readLength("type table", MaxTableSize)
	if err != nil {
		return nil, err
	}
	r.table = make([]Type, count)
	for i := range r.table {
		t, err := r.readTableEntry(int(count))
		if err != nil {
			return nil, err
		}
		r.table[i] = t
	}
	for _, t := range r.table {
		r.link(t)
	}

	argc, err := r.readLength("argument", MaxFields)
	if err != nil {
		return nil, err
	}
	args := make([]Type, argc)
	for i := range args {
		ref, err := r.readTypeRef(int(count))
		if err != nil {
			return nil, err
		}
		args[i] = r.resolve(ref)
	}
	return args, nil
}

func (r *Reader) readTypeRef(tableSize int) (Type, error) {
	code, err := r.readSleb()
	if err != nil {
		return nil, err
	}
	if code >= 0 {
		if code >= int64(tableSize) {
			return nil, errors.New(errors.PhaseDecode, errors.KindOutOfBounds).
				Value(code).
				Detail("type index %d out of range (table has %d entries)", code, tableSize).
				Build()
		}
		return tableRef(code), nil
	}
	op := Opcode(code)
	if !op.IsPrimitive() {
		return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Value(code).
			Detail("opcode %s cannot be referenced inline", op).
			Build()
	}
	return Primitive(op), nil
}

func (r *Reader) readTableEntry(tableSize int) (Type, error) {
	code, err := r.readSleb()
	if err != nil {
		return nil, err
	}
	switch Opcode(code) {
	case OpOpt:
		elem, err := r.readTypeRef(tableSize)
		if err != nil {
			return nil, err
		}
		return &Opt{Elem: elem}, nil
	case OpVec:
		elem, err := r.readTypeRef(tableSize)
		if err != nil {
			return nil, err
		}
		return &Vec{Elem: elem}, nil
	case OpRecord:
		fields, err := r.readFieldList(tableSize)
		if err != nil {
			return nil, err
		}
		return &Record{Fields: fields}, nil
	case OpVariant:
		fields, err := r.readFieldList(tableSize)
		if err != nil {
			return nil, err
		}
		return &Variant{Fields: fields}, nil
	case OpFunc:
		return r.readFuncEntry(tableSize)
	case OpService:
		n, err := r.readLength("service method", MaxFields)
		if err != nil {
			return nil, err
		}
		svc := &Service{Methods: make([]Method, n)}
		for i := range svc.Methods {
			nameLen, err := r.readUleb()
			if err != nil {
				return nil, err
			}
			name, err := r.readN(nameLen)
			if err != nil {
				return nil, err
			}
			t, err := r.readTypeRef(tableSize)
			if err != nil {
				return nil, err
			}
			svc.Methods[i] = Method{Name: string(name), Type: t}
		}
		return svc, nil
	default:
		return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Value(code).
			Detail("invalid type table opcode %d", code).
			Build()
	}
}

func (r *Reader) readFieldList(tableSize int) ([]Field, error) {
	n, err := r.readLength("field", MaxFields)
	if err != nil {
		return nil, err
	}
	fields := make([]Field, n)
	for i := range fields {
		id, err := r.readUleb()
		if err != nil {
			return nil, err
		}
		if id > math.MaxUint32 {
			return nil, errors.Overflow(errors.PhaseDecode, nil, id, "field id")
		}
		if i > 0 && uint32(id) <= fields[i-1].ID {
			return nil, errors.InvalidData(errors.PhaseDecode, nil, "field ids are not strictly increasing")
		}
		t, err := r.readTypeRef(tableSize)
		if err != nil {
			return nil, err
		}
		fields[i] = Field{ID: uint32(id), Type: t}
	}
	return fields, nil
}

func (r *Reader) readFuncEntry(tableSize int) (Type, error) {
	f := &Func{}
	for _, list := range []*[]Type{&f.Args, &f.Rets} {
		n, err := r.readLength("func parameter", MaxFields)
		if err != nil {
			return nil, err
		}
		*list = make([]Type, n)
		for i := range *list {
			t, err := r.readTypeRef(tableSize)
			if err != nil {
				return nil, err
			}
			(*list)[i] = t
		}
	}
	n, err := r.readLength("func annotation", MaxFields)
	if err != nil {
		return nil, err
	}
	modes, err := r.readN(n)
	if err != nil {
		return nil, err
	}
	for _, m := range modes {
		if m < byte(ModeQuery) || m > byte(ModeCompositeQuery) {
			return nil, errors.InvalidData(errors.PhaseDecode, nil, "invalid func annotation "+strconv.Itoa(int(m)))
		}
		f.Modes = append(f.Modes, FuncMode(m))
	}
	return f, nil
}

func (r *Reader) resolve(t Type) Type {
	if ref, ok := t.(tableRef); ok {
		return r.table[ref]
	}
	return t
}

// link replaces table references inside t with the entries they point to.
func (r *Reader) link(t Type) {
	switch v := t.(type) {
	case *Opt:
		v.Elem = r.resolve(v.Elem)
	case *Vec:
		v.Elem = r.resolve(v.Elem)
	case *Record:
		for i := range v.Fields {
			v.Fields[i].Type = r.resolve(v.Fields[i].Type)
		}
	case *Variant:
		for i := range v.Fields {
			v.Fields[i].Type = r.resolve(v.Fields[i].Type)
		}
	case *Func:
		for i := range v.Args {
			v.Args[i] = r.resolve(v.Args[i])
		}
		for i := range v.Rets {
			v.Rets[i] = r.resolve(v.Rets[i])
		}
	case *Service:
		for i := range v.Methods {
			v.Methods[i].Type = r.resolve(v.Methods[i].Type)
		}
	}
}

func mismatch(path []string, ct *CompiledType, wire Type) error {
	return errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
		Path(path...).
		GoType(ct.goType.String()).
		IDLType(wire.Opcode().String()).
		Detail("expected %s", ct.idl.Opcode()).
		Build()
}

// expectOpcode fails unless wire has the opcode ct maps to.
func expectOpcode(path []string, ct *CompiledType, wire Type) error {
	if wire.Opcode() != ct.idl.Opcode() {
		return mismatch(path, ct, wire)
	}
	return nil
}

func (r *Reader) readValue(wire Type, ct *CompiledType, v reflect.Value, path []string) error {
	r.path = path

	if ct.kind == ckCustom {
		return r.readCustom(wire, ct, v, path)
	}
	if ct.kind == ckOpt {
		return r.readOpt(wire, ct, v, path)
	}
	if err := expectOpcode(path, ct, wire); err != nil {
		return err
	}

	switch ct.kind {
	case ckBool:
		b, err := r.readByte()
		if err != nil {
			return err
		}
		if b > 1 {
			return errors.InvalidData(errors.PhaseDecode, path, "invalid bool byte "+strconv.Itoa(int(b)))
		}
		v.SetBool(b == 1)
	case ckNat8, ckInt8:
		b, err := r.readN(1)
		if err != nil {
			return err
		}
		setInteger(v, ct.kind, uint64(b[0]))
	case ckNat16, ckInt16:
		b, err := r.readN(2)
		if err != nil {
			return err
		}
		setInteger(v, ct.kind, uint64(binary.LittleEndian.Uint16(b)))
	case ckNat32, ckInt32:
		b, err := r.readN(4)
		if err != nil {
			return err
		}
		setInteger(v, ct.kind, uint64(binary.LittleEndian.Uint32(b)))
	case ckNat64, ckInt64:
		b, err := r.readN(8)
		if err != nil {
			return err
		}
		setInteger(v, ct.kind, binary.LittleEndian.Uint64(b))
	case ckFloat32:
		b, err := r.readN(4)
		if err != nil {
			return err
		}
		v.SetFloat(float64(math.Float32frombits(binary.LittleEndian.Uint32(b))))
	case ckFloat64:
		b, err := r.readN(8)
		if err != nil {
			return err
		}
		v.SetFloat(math.Float64frombits(binary.LittleEndian.Uint64(b)))
	case ckText:
		s, err := r.ReadText()
		if err != nil {
			return err
		}
		v.SetString(s)
	case ckNat:
		n, err := r.readBigUleb()
		if err != nil {
			return err
		}
		v.Set(reflect.ValueOf(NatValue{v: n}))
	case ckPrincipal:
		p, err := r.readPrincipal()
		if err != nil {
			return err
		}
		v.Set(reflect.ValueOf(p))
	case ckBlob:
		vec := wire.(*Vec)
		if vec.Elem.Opcode() != OpNat8 {
			return mismatch(path, ct, vec.Elem)
		}
		b, err := r.ReadBlob()
		if err != nil {
			return err
		}
		v.SetBytes(b)
	case ckVec:
		return r.readVec(wire.(*Vec), ct, v, path)
	case ckRecord:
		return r.readRecord(wire.(*Record), ct, v, path)
	}
	return nil
}

func setInteger(v reflect.Value, kind compiledKind, raw uint64) {
	switch kind {
	case ckInt8:
		v.SetInt(int64(int8(raw)))
	case ckInt16:
		v.SetInt(int64(int16(raw)))
	case ckInt32:
		v.SetInt(int64(int32(raw)))
	case ckInt64:
		v.SetInt(int64(raw))
	default:
		v.SetUint(raw)
	}
}

func (r *Reader) readOpt(wire Type, ct *CompiledType, v reflect.Value, path []string) error {
	switch w := wire.(type) {
	case Primitive:
		if w.Opcode() != OpNull {
			return mismatch(path, ct, wire)
		}
		v.Set(reflect.Zero(v.Type()))
		return nil
	case *Opt:
		flag, err := r.readByte()
		if err != nil {
			return err
		}
		switch flag {
		case 0:
			v.Set(reflect.Zero(v.Type()))
			return nil
		case 1:
			elem := reflect.New(ct.elem.goType)
			if err := r.readValue(w.Elem, ct.elem, elem.Elem(), path); err != nil {
				return err
			}
			v.Set(elem)
			return nil
		default:
			return errors.InvalidData(errors.PhaseDecode, path, "invalid opt tag "+strconv.Itoa(int(flag)))
		}
	default:
		return mismatch(path, ct, wire)
	}
}

func (r *Reader) readVec(wire *Vec, ct *CompiledType, v reflect.Value, path []string) error {
	n, err := r.readLength("vec element", MaxListLength)
	if err != nil {
		return err
	}
	// Elements of all but zero-width wire types take at least one byte, so
	// the unread input bounds the starting capacity.
	capacity := min(n, uint64(len(r.data)-r.pos))
	out := reflect.MakeSlice(ct.goType, 0, int(capacity))
	zero := reflect.Zero(ct.goType.Elem())
	for i := 0; i < int(n); i++ {
		out = reflect.Append(out, zero)
		if err := r.readValue(wire.Elem, ct.elem, out.Index(i), append(path, "["+strconv.Itoa(i)+"]")); err != nil {
			return err
		}
	}
	v.Set(out)
	return nil
}

func (r *Reader) readRecord(wire *Record, ct *CompiledType, v reflect.Value, path []string) error {
	next := 0
	for _, wf := range wire.Fields {
		for next < len(ct.fields) && ct.fields[next].id < wf.ID {
			if err := missingField(ct.fields[next], v, path); err != nil {
				return err
			}
			next++
		}
		if next >= len(ct.fields) || ct.fields[next].id != wf.ID {
			return errors.FieldUnknown(errors.PhaseDecode, path, wf.ID)
		}
		f := ct.fields[next]
		if err := r.readValue(wf.Type, f.ct, v.FieldByIndex(f.index), append(path, f.name)); err != nil {
			return err
		}
		next++
	}
	for ; next < len(ct.fields); next++ {
		if err := missingField(ct.fields[next], v, path); err != nil {
			return err
		}
	}
	return nil
}

// missingField zeroes an opt field absent from the wire, and fails for
// anything else.
func missingField(f compiledField, v reflect.Value, path []string) error {
	if f.ct.kind != ckOpt {
		return errors.FieldMissing(errors.PhaseDecode, path, f.name)
	}
	fv := v.FieldByIndex(f.index)
	fv.Set(reflect.Zero(fv.Type()))
	return nil
}

func (r *Reader) readCustom(wire Type, ct *CompiledType, v reflect.Value, path []string) error {
	if !v.CanAddr() || !v.Addr().Type().Implements(unmarshalerType) {
		return errors.New(errors.PhaseDecode, errors.KindUnsupported).
			Path(path...).
			GoType(ct.goType.String()).
			IDLType(ct.idl.Opcode().String()).
			Detail("type cannot be decoded").
			Build()
	}
	if err := expectOpcode(path, ct, wire); err != nil {
		return err
	}
	return v.Addr().Interface().(Unmarshaler).UnmarshalCandid(r, wire)
}

func (r *Reader) readPrincipal() (principal.Principal, error) {
	flag, err := r.readByte()
	if err != nil {
		return principal.Principal{}, err
	}
	if flag != 1 {
		return principal.Principal{}, errors.Unsupported(errors.PhaseDecode, "opaque principal reference")
	}
	n, err := r.readUleb()
	if err != nil {
		return principal.Principal{}, err
	}
	if n > principal.MaxLength {
		return principal.Principal{}, errors.Overflow(errors.PhaseDecode, r.path, n, "principal")
	}
	b, err := r.readN(n)
	if err != nil {
		return principal.Principal{}, err
	}
	return principal.FromBytes(b)
}

// ReadText reads a text value.
func (r *Reader) ReadText() (string, error) {
	n, err := r.readUleb()
	if err != nil {
		return "", err
	}
	b, err := r.readN(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errors.InvalidUTF8(errors.PhaseDecode, r.path, b)
	}
	return string(b), nil
}

// ReadBlob reads a vec nat8 value into a fresh slice.
func (r *Reader) ReadBlob() ([]byte, error) {
	n, err := r.readUleb()
	if err != nil {
		return nil, err
	}
	b, err := r.readN(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// ReadVariant reads the discriminant of a variant value declared as wire
// and returns the selected case. The case payload, if any, follows.
func (r *Reader) ReadVariant(wire Type) (Field, error) {
	v, ok := wire.(*Variant)
	if !ok {
		return Field{}, errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
			Path(r.path...).
			IDLType(wire.Opcode().String()).
			Detail("expected variant").
			Build()
	}
	idx, err := r.readUleb()
	if err != nil {
		return Field{}, err
	}
	if idx >= uint64(len(v.Fields)) {
		return Field{}, errors.InvalidDiscriminant(errors.PhaseDecode, r.path, idx, len(v.Fields))
	}
	return v.Fields[idx], nil
}

// ReadFuncRef reads a transparent function reference declared as wire.
func (r *Reader) ReadFuncRef(wire Type) (principal.Principal, string, error) {
	if wire.Opcode() != OpFunc {
		return principal.Principal{}, "", errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
			Path(r.path...).
			IDLType(wire.Opcode().String()).
			Detail("expected func").
			Build()
	}
	flag, err := r.readByte()
	if err != nil {
		return principal.Principal{}, "", err
	}
	if flag != 1 {
		return principal.Principal{}, "", errors.Unsupported(errors.PhaseDecode, "opaque func reference")
	}
	p, err := r.readPrincipal()
	if err != nil {
		return principal.Principal{}, "", err
	}
	method, err := r.ReadText()
	if err != nil {
		return principal.Principal{}, "", err
	}
	return p, method, nil
}
