package candid

import (
	"sort"
	"strconv"
	"strings"
)

// Opcode is the signed type code used in type tables and argument lists.
// Primitive types are referenced by their negative opcode directly;
// compound types live in the type table and are referenced by index.
type Opcode int64

const (
	OpNull      Opcode = -1
	OpBool      Opcode = -2
	OpNat       Opcode = -3
	OpInt       Opcode = -4
	OpNat8      Opcode = -5
	OpNat16     Opcode = -6
	OpNat32     Opcode = -7
	OpNat64     Opcode = -8
	OpInt8      Opcode = -9
	OpInt16     Opcode = -10
	OpInt32     Opcode = -11
	OpInt64     Opcode = -12
	OpFloat32   Opcode = -13
	OpFloat64   Opcode = -14
	OpText      Opcode = -15
	OpReserved  Opcode = -16
	OpEmpty     Opcode = -17
	OpOpt       Opcode = -18
	OpVec       Opcode = -19
	OpRecord    Opcode = -20
	OpVariant   Opcode = -21
	OpFunc      Opcode = -22
	OpService   Opcode = -23
	OpPrincipal Opcode = -24
)

var opcodeNames = map[Opcode]string{
	OpNull:      "null",
	OpBool:      "bool",
	OpNat:       "nat",
	OpInt:       "int",
	OpNat8:      "nat8",
	OpNat16:     "nat16",
	OpNat32:     "nat32",
	OpNat64:     "nat64",
	OpInt8:      "int8",
	OpInt16:     "int16",
	OpInt32:     "int32",
	OpInt64:     "int64",
	OpFloat32:   "float32",
	OpFloat64:   "float64",
	OpText:      "text",
	OpReserved:  "reserved",
	OpEmpty:     "empty",
	OpOpt:       "opt",
	OpVec:       "vec",
	OpRecord:    "record",
	OpVariant:   "variant",
	OpFunc:      "func",
	OpService:   "service",
	OpPrincipal: "principal",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return "opcode(" + strconv.FormatInt(int64(o), 10) + ")"
}

// IsPrimitive reports whether o is referenced inline rather than through the
// type table.
func (o Opcode) IsPrimitive() bool {
	return o == OpPrincipal || (o <= OpNull && o >= OpEmpty)
}

// Type is an IDL type.
type Type interface {
	Opcode() Opcode
	// String renders the type in IDL text form. Structurally equal types
	// render identically. A type that contains itself, which only type
	// tables read off the wire can produce, renders the inner occurrence as
	// "rec <opcode>".
	String() string
}

// compound is implemented by types with components. render receives the
// compound types currently being rendered.
type compound interface {
	Type
	render(open map[Type]bool) string
}

func renderType(t Type, open map[Type]bool) string {
	c, ok := t.(compound)
	if !ok {
		return t.String()
	}
	if open[t] {
		return "rec " + t.Opcode().String()
	}
	open[t] = true
	defer delete(open, t)
	return c.render(open)
}

// Primitive is a type without parameters.
type Primitive Opcode

func (p Primitive) Opcode() Opcode { return Opcode(p) }
func (p Primitive) String() string { return Opcode(p).String() }

var (
	Null      Type = Primitive(OpNull)
	Bool      Type = Primitive(OpBool)
	Nat       Type = Primitive(OpNat)
	Int       Type = Primitive(OpInt)
	Nat8      Type = Primitive(OpNat8)
	Nat16     Type = Primitive(OpNat16)
	Nat32     Type = Primitive(OpNat32)
	Nat64     Type = Primitive(OpNat64)
	Int8      Type = Primitive(OpInt8)
	Int16     Type = Primitive(OpInt16)
	Int32     Type = Primitive(OpInt32)
	Int64     Type = Primitive(OpInt64)
	Float32   Type = Primitive(OpFloat32)
	Float64   Type = Primitive(OpFloat64)
	Text      Type = Primitive(OpText)
	Reserved  Type = Primitive(OpReserved)
	Empty     Type = Primitive(OpEmpty)
	Principal Type = Primitive(OpPrincipal)
)

// Opt is opt T.
type Opt struct {
	Elem Type
}

func NewOpt(elem Type) *Opt { return &Opt{Elem: elem} }

func (*Opt) Opcode() Opcode    { return OpOpt }
func (t *Opt) String() string { return renderType(t, map[Type]bool{}) }

func (t *Opt) render(open map[Type]bool) string {
	return "opt " + renderType(t.Elem, open)
}

// Vec is vec T. vec nat8 renders as blob.
type Vec struct {
	Elem Type
}

func NewVec(elem Type) *Vec { return &Vec{Elem: elem} }

// Blob is vec nat8.
func Blob() *Vec { return NewVec(Nat8) }

func (*Vec) Opcode() Opcode { return OpVec }

func (t *Vec) String() string { return renderType(t, map[Type]bool{}) }

func (t *Vec) render(open map[Type]bool) string {
	if t.Elem.Opcode() == OpNat8 {
		return "blob"
	}
	return "vec " + renderType(t.Elem, open)
}

// Field is a record field or variant case. On the wire only ID is carried;
// Name is empty for types read from a type table.
type Field struct {
	Type Type
	Name string
	ID   uint32
}

// F creates a named field.
func F(name string, t Type) Field {
	return Field{Name: name, ID: IDHash(name), Type: t}
}

func (f Field) label() string {
	if f.Name != "" {
		return f.Name
	}
	return strconv.FormatUint(uint64(f.ID), 10)
}

func sortFields(fields []Field) []Field {
	out := make([]Field, len(fields))
	copy(out, fields)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Record is record { ... } with fields in ascending ID order.
type Record struct {
	Fields []Field
}

// NewRecord creates a record type. Fields are sorted by ID.
func NewRecord(fields ...Field) *Record {
	return &Record{Fields: sortFields(fields)}
}

func (*Record) Opcode() Opcode { return OpRecord }

func (t *Record) String() string { return renderType(t, map[Type]bool{}) }

func (t *Record) render(open map[Type]bool) string {
	return "record {" + renderFields(t.Fields, false, open) + "}"
}

// Field returns the field with the given ID.
func (t *Record) Field(id uint32) (Field, bool) {
	return findField(t.Fields, id)
}

// Variant is variant { ... } with cases in ascending ID order. A case's
// position in Fields is its wire discriminant.
type Variant struct {
	Fields []Field
}

// NewVariant creates a variant type. Cases are sorted by ID.
func NewVariant(fields ...Field) *Variant {
	return &Variant{Fields: sortFields(fields)}
}

// Enum creates a variant whose cases all carry null.
func Enum(tags ...string) *Variant {
	fields := make([]Field, len(tags))
	for i, tag := range tags {
		fields[i] = F(tag, Null)
	}
	return NewVariant(fields...)
}

func (*Variant) Opcode() Opcode { return OpVariant }

func (t *Variant) String() string { return renderType(t, map[Type]bool{}) }

func (t *Variant) render(open map[Type]bool) string {
	return "variant {" + renderFields(t.Fields, true, open) + "}"
}

// IndexOf returns the discriminant of the named case.
func (t *Variant) IndexOf(name string) (int, bool) {
	id := IDHash(name)
	for i, f := range t.Fields {
		if f.ID == id {
			return i, true
		}
	}
	return 0, false
}

func findField(fields []Field, id uint32) (Field, bool) {
	i := sort.Search(len(fields), func(i int) bool { return fields[i].ID >= id })
	if i < len(fields) && fields[i].ID == id {
		return fields[i], true
	}
	return Field{}, false
}

func renderFields(fields []Field, variant bool, open map[Type]bool) string {
	if len(fields) == 0 {
		return ""
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		if variant && f.Type.Opcode() == OpNull {
			parts[i] = f.label()
			continue
		}
		parts[i] = f.label() + " : " + renderType(f.Type, open)
	}
	return " " + strings.Join(parts, "; ") + " "
}

// FuncMode annotates a function type.
type FuncMode byte

const (
	ModeQuery          FuncMode = 1
	ModeOneway         FuncMode = 2
	ModeCompositeQuery FuncMode = 3
)

func (m FuncMode) String() string {
	switch m {
	case ModeQuery:
		return "query"
	case ModeOneway:
		return "oneway"
	case ModeCompositeQuery:
		return "composite_query"
	default:
		return "mode(" + strconv.Itoa(int(m)) + ")"
	}
}

// Func is func (args) -> (rets) modes. Values of this type are references
// to a method on a specific entity.
type Func struct {
	Args  []Type
	Rets  []Type
	Modes []FuncMode
}

func (*Func) Opcode() Opcode { return OpFunc }

func (t *Func) String() string { return renderType(t, map[Type]bool{}) }

func (t *Func) render(open map[Type]bool) string {
	var b strings.Builder
	b.WriteString("func ")
	b.WriteString(renderTuple(t.Args, open))
	b.WriteString(" -> ")
	b.WriteString(renderTuple(t.Rets, open))
	for _, m := range t.Modes {
		b.WriteByte(' ')
		b.WriteString(m.String())
	}
	return b.String()
}

// IsQuery reports whether the function is annotated as a query.
func (t *Func) IsQuery() bool {
	for _, m := range t.Modes {
		if m == ModeQuery {
			return true
		}
	}
	return false
}

func renderTuple(ts []Type, open map[Type]bool) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = renderType(t, open)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Method is one entry of a service type.
type Method struct {
	Type Type
	Name string
}

// Service is service { ... }. It only appears when reading foreign type
// tables.
type Service struct {
	Methods []Method
}

func (*Service) Opcode() Opcode { return OpService }

func (t *Service) String() string { return renderType(t, map[Type]bool{}) }

func (t *Service) render(open map[Type]bool) string {
	parts := make([]string, len(t.Methods))
	for i, m := range t.Methods {
		parts[i] = strconv.Quote(m.Name) + " : " + renderType(m.Type, open)
	}
	return "service {" + strings.Join(parts, "; ") + "}"
}
