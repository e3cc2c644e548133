package candid

import (
	"reflect"
	"strings"
	"sync"

	"github.com/wippyai/canister-outcall/errors"
	"github.com/wippyai/canister-outcall/principal"
)

// Typer is implemented by Go types that declare their own IDL type instead
// of having one derived from their structure. The encoder then routes values
// of that type to MarshalCandid, and the decoder to UnmarshalCandid.
type Typer interface {
	CandidType() Type
}

// Marshaler writes a value of a Typer's declared type.
type Marshaler interface {
	MarshalCandid(w *Writer) error
}

// Unmarshaler reads a value of a Typer's declared type. wire is the type
// the sender declared for the value.
type Unmarshaler interface {
	UnmarshalCandid(r *Reader, wire Type) error
}

var (
	typerType       = reflect.TypeOf((*Typer)(nil)).Elem()
	marshalerType   = reflect.TypeOf((*Marshaler)(nil)).Elem()
	unmarshalerType = reflect.TypeOf((*Unmarshaler)(nil)).Elem()
	natValueType    = reflect.TypeOf(NatValue{})
	principalType   = reflect.TypeOf(principal.Principal{})
)

type compiledKind uint8

const (
	ckBool compiledKind = iota
	ckNat8
	ckNat16
	ckNat32
	ckNat64
	ckInt8
	ckInt16
	ckInt32
	ckInt64
	ckFloat32
	ckFloat64
	ckText
	ckNat
	ckPrincipal
	ckBlob
	ckVec
	ckOpt
	ckRecord
	ckCustom
)

// CompiledType is the codec plan for one Go type. It is immutable and safe
// for concurrent use.
type CompiledType struct {
	goType reflect.Type
	idl    Type
	elem   *CompiledType
	fields []compiledField // ascending id
	kind   compiledKind
}

// IDL returns the IDL type the Go type maps to.
func (ct *CompiledType) IDL() Type { return ct.idl }

// GoType returns the Go type the plan was compiled for.
func (ct *CompiledType) GoType() reflect.Type { return ct.goType }

type compiledField struct {
	ct    *CompiledType
	name  string
	index []int
	id    uint32
}

// Compiler maps Go types to IDL types and caches the result.
type Compiler struct {
	cache sync.Map // reflect.Type -> *CompiledType
}

// NewCompiler creates a compiler with an empty cache.
func NewCompiler() *Compiler {
	return &Compiler{}
}

var defaultCompiler = NewCompiler()

// TypeOf returns the IDL type of v.
func TypeOf(v any) (Type, error) {
	if v == nil {
		return nil, errors.NilPointer(errors.PhaseCompile, nil, "nil")
	}
	ct, err := defaultCompiler.Compile(reflect.TypeOf(v))
	if err != nil {
		return nil, err
	}
	return ct.idl, nil
}

// Compile returns the codec plan for goType.
func (c *Compiler) Compile(goType reflect.Type) (*CompiledType, error) {
	if goType == nil {
		return nil, errors.New(errors.PhaseCompile, errors.KindNilPointer).
			Detail("Go type cannot be nil").
			Build()
	}
	if cached, ok := c.cache.Load(goType); ok {
		return cached.(*CompiledType), nil
	}

	ct, err := c.compile(goType, nil, map[reflect.Type]bool{})
	if err != nil {
		return nil, err
	}

	actual, _ := c.cache.LoadOrStore(goType, ct)
	return actual.(*CompiledType), nil
}

func (c *Compiler) compile(goType reflect.Type, path []string, visiting map[reflect.Type]bool) (*CompiledType, error) {
	if cached, ok := c.cache.Load(goType); ok {
		return cached.(*CompiledType), nil
	}
	if visiting[goType] {
		return nil, errors.New(errors.PhaseCompile, errors.KindUnsupported).
			Path(path...).
			GoType(goType.String()).
			Detail("recursive types are not supported").
			Build()
	}

	if goType.Kind() != reflect.Ptr && goType.Implements(typerType) {
		return c.compileCustom(goType, path)
	}

	switch goType {
	case natValueType:
		return &CompiledType{goType: goType, idl: Nat, kind: ckNat}, nil
	case principalType:
		return &CompiledType{goType: goType, idl: Principal, kind: ckPrincipal}, nil
	}

	switch goType.Kind() {
	case reflect.Bool:
		return primitive(goType, Bool, ckBool), nil
	case reflect.Uint8:
		return primitive(goType, Nat8, ckNat8), nil
	case reflect.Uint16:
		return primitive(goType, Nat16, ckNat16), nil
	case reflect.Uint32:
		return primitive(goType, Nat32, ckNat32), nil
	case reflect.Uint64, reflect.Uint:
		return primitive(goType, Nat64, ckNat64), nil
	case reflect.Int8:
		return primitive(goType, Int8, ckInt8), nil
	case reflect.Int16:
		return primitive(goType, Int16, ckInt16), nil
	case reflect.Int32:
		return primitive(goType, Int32, ckInt32), nil
	case reflect.Int64, reflect.Int:
		return primitive(goType, Int64, ckInt64), nil
	case reflect.Float32:
		return primitive(goType, Float32, ckFloat32), nil
	case reflect.Float64:
		return primitive(goType, Float64, ckFloat64), nil
	case reflect.String:
		return primitive(goType, Text, ckText), nil
	case reflect.Slice:
		if goType.Elem().Kind() == reflect.Uint8 && !goType.Elem().Implements(typerType) {
			return &CompiledType{goType: goType, idl: Blob(), kind: ckBlob}, nil
		}
		elem, err := c.compile(goType.Elem(), append(path, "[]"), visiting)
		if err != nil {
			return nil, err
		}
		return &CompiledType{goType: goType, idl: NewVec(elem.idl), elem: elem, kind: ckVec}, nil
	case reflect.Ptr:
		visiting[goType] = true
		defer delete(visiting, goType)
		elem, err := c.compile(goType.Elem(), path, visiting)
		if err != nil {
			return nil, err
		}
		return &CompiledType{goType: goType, idl: NewOpt(elem.idl), elem: elem, kind: ckOpt}, nil
	case reflect.Struct:
		visiting[goType] = true
		defer delete(visiting, goType)
		return c.compileRecord(goType, path, visiting)
	default:
		return nil, errors.New(errors.PhaseCompile, errors.KindUnsupported).
			Path(path...).
			GoType(goType.String()).
			Detail("no IDL mapping for Go kind %s", goType.Kind()).
			Build()
	}
}

func primitive(goType reflect.Type, idl Type, kind compiledKind) *CompiledType {
	return &CompiledType{goType: goType, idl: idl, kind: kind}
}

func (c *Compiler) compileCustom(goType reflect.Type, path []string) (*CompiledType, error) {
	if !goType.Implements(marshalerType) {
		return nil, errors.New(errors.PhaseCompile, errors.KindUnsupported).
			Path(path...).
			GoType(goType.String()).
			Detail("type declares an IDL type but does not implement Marshaler").
			Build()
	}
	zero := reflect.Zero(goType).Interface().(Typer)
	idl := zero.CandidType()
	if idl == nil {
		return nil, errors.NilPointer(errors.PhaseCompile, path, goType.String())
	}
	return &CompiledType{goType: goType, idl: idl, kind: ckCustom}, nil
}

func (c *Compiler) compileRecord(goType reflect.Type, path []string, visiting map[reflect.Type]bool) (*CompiledType, error) {
	fields := make([]compiledField, 0, goType.NumField())
	idlFields := make([]Field, 0, goType.NumField())
	seen := make(map[uint32]string)

	for i := 0; i < goType.NumField(); i++ {
		sf := goType.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := sf.Name
		if tag, ok := sf.Tag.Lookup("candid"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}

		id := IDHash(name)
		if prev, dup := seen[id]; dup {
			return nil, errors.New(errors.PhaseCompile, errors.KindInvalidData).
				Path(append(path, name)...).
				GoType(goType.String()).
				Detail("field %q collides with %q (id %d)", name, prev, id).
				Build()
		}
		seen[id] = name

		ct, err := c.compile(sf.Type, append(path, name), visiting)
		if err != nil {
			return nil, err
		}
		fields = append(fields, compiledField{ct: ct, name: name, index: sf.Index, id: id})
		idlFields = append(idlFields, Field{Name: name, ID: id, Type: ct.idl})
	}

	record := NewRecord(idlFields...)
	ordered := make([]compiledField, len(fields))
	for i, f := range record.Fields {
		for _, cf := range fields {
			if cf.id == f.ID {
				ordered[i] = cf
				break
			}
		}
	}

	return &CompiledType{goType: goType, idl: record, fields: ordered, kind: ckRecord}, nil
}
