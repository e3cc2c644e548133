package mgmt

import (
	"bytes"
	"slices"
	"strconv"
	"strings"

	"github.com/wippyai/canister-outcall/candid"
	"github.com/wippyai/canister-outcall/errors"
	"github.com/wippyai/canister-outcall/principal"
)

// HttpHeader is one HTTP header. Header lists keep their order on the wire.
type HttpHeader struct {
	Name  string `candid:"name"`
	Value string `candid:"value"`
}

// HttpMethod is the request verb.
type HttpMethod uint8

const (
	GET HttpMethod = iota
	POST
	HEAD
)

// methodTags is the wire tag of each method, indexed by HttpMethod.
var methodTags = [...]string{
	GET:  "get",
	POST: "post",
	HEAD: "head",
}

var methodType = candid.Enum(methodTags[:]...)

// ParseHttpMethod accepts a method name in any case.
func ParseHttpMethod(s string) (HttpMethod, error) {
	tag := strings.ToLower(s)
	for i, t := range methodTags {
		if t == tag {
			return HttpMethod(i), nil
		}
	}
	return 0, errors.InvalidEnum(errors.PhaseValidate, nil, s, "HttpMethod")
}

func (m HttpMethod) String() string {
	if int(m) < len(methodTags) {
		return strings.ToUpper(methodTags[m])
	}
	return "HttpMethod(" + strconv.Itoa(int(m)) + ")"
}

func (HttpMethod) CandidType() candid.Type {
	return methodType
}

func (m HttpMethod) MarshalCandid(w *candid.Writer) error {
	if int(m) >= len(methodTags) {
		return errors.InvalidEnum(errors.PhaseEncode, w.Path(), uint8(m), "HttpMethod")
	}
	idx, _ := methodType.IndexOf(methodTags[m])
	w.WriteVariantIndex(idx)
	return nil
}

func (m *HttpMethod) UnmarshalCandid(r *candid.Reader, wire candid.Type) error {
	f, err := r.ReadVariant(wire)
	if err != nil {
		return err
	}
	for i, tag := range methodTags {
		if candid.IDHash(tag) != f.ID {
			continue
		}
		if f.Type.Opcode() != candid.OpNull {
			return errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
				Path(r.Path()...).
				IDLType(f.Type.Opcode().String()).
				Detail("method case %q carries a payload", tag).
				Build()
		}
		*m = HttpMethod(i)
		return nil
	}
	return errors.InvalidEnum(errors.PhaseDecode, r.Path(), f.ID, "HttpMethod")
}

// CanisterHttpRequestArgument is the argument of http_request.
type CanisterHttpRequestArgument struct {
	URL string `candid:"url"`
	// MaxResponseBytes caps the response size. Nil means 2 MiB.
	MaxResponseBytes *uint64           `candid:"max_response_bytes"`
	Method           HttpMethod        `candid:"method"`
	Headers          []HttpHeader      `candid:"headers"`
	Body             *[]byte           `candid:"body"`
	Transform        *TransformContext `candid:"transform"`
}

// HttpResponse is the reply of http_request and the result of a transform.
type HttpResponse struct {
	Status  candid.NatValue `candid:"status"`
	Headers []HttpHeader    `candid:"headers"`
	Body    []byte          `candid:"body"`
}

// Equal compares status numerically, headers in order and body bytewise.
// A nil and an empty slice are equal.
func (r HttpResponse) Equal(o HttpResponse) bool {
	return r.Status.Equal(o.Status) &&
		slices.Equal(r.Headers, o.Headers) &&
		bytes.Equal(r.Body, o.Body)
}

// TransformContext names the transform callback and the opaque state passed
// to it.
type TransformContext struct {
	Function TransformFunc `candid:"function"`
	Context  []byte        `candid:"context"`
}

// TransformArgs is the argument the system passes to a transform callback.
type TransformArgs struct {
	Response HttpResponse `candid:"response"`
	Context  []byte       `candid:"context"`
}

// TransformFunc references a query method on a canister. It encodes as
//
//	func (TransformArgs) -> (HttpResponse) query
//
// and never as a record of its two fields.
type TransformFunc struct {
	Principal principal.Principal
	Method    string
}

var transformFuncType = &candid.Func{
	Args:  []candid.Type{mustTypeOf(TransformArgs{})},
	Rets:  []candid.Type{mustTypeOf(HttpResponse{})},
	Modes: []candid.FuncMode{candid.ModeQuery},
}

func mustTypeOf(v any) candid.Type {
	t, err := candid.TypeOf(v)
	if err != nil {
		panic(err)
	}
	return t
}

func (TransformFunc) CandidType() candid.Type {
	return transformFuncType
}

// MarshalCandid fails, writing nothing, when the principal is longer than
// the platform allows or the method name is empty.
func (f TransformFunc) MarshalCandid(w *candid.Writer) error {
	return w.WriteFuncRef(f.Principal, f.Method)
}

func (f *TransformFunc) UnmarshalCandid(r *candid.Reader, wire candid.Type) error {
	p, method, err := r.ReadFuncRef(wire)
	if err != nil {
		return err
	}
	f.Principal, f.Method = p, method
	return nil
}
