package candid

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/wippyai/canister-outcall/errors"
	"github.com/wippyai/canister-outcall/principal"
)

type echoFunc struct {
	Target principal.Principal
	Method string
}

func (echoFunc) CandidType() Type {
	return &Func{Args: []Type{Text}, Rets: []Type{Text}, Modes: []FuncMode{ModeQuery}}
}

func (f echoFunc) MarshalCandid(w *Writer) error {
	return w.WriteFuncRef(f.Target, f.Method)
}

func mustHex(t *testing.T, data []byte, err error) string {
	t.Helper()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return hex.EncodeToString(data)
}

func TestMarshal_Primitives(t *testing.T) {
	small := uint8(5)

	tests := []struct {
		name string
		arg  any
		want string
	}{
		{"bool", true, "4449444c00017e01"},
		{"nat8", uint8(42), "4449444c00017b2a"},
		{"nat64", uint64(1), "4449444c0001780100000000000000"},
		{"int32", int32(-1), "4449444c000175ffffffff"},
		{"text", "hi", "4449444c0001710268 69"},
		{"nat", NewNat(300), "4449444c00017dac02"},
		{"nat zero", NatValue{}, "4449444c00017d00"},
		{"principal", principal.MustFromBytes([]byte{0xab}), "4449444c0001680101ab"},
		{"blob", []byte{1, 2}, "4449444c016d7b0100020102"},
		{"opt some", &small, "4449444c016e7b010001 05"},
		{"opt none", (*uint8)(nil), "4449444c016e7b010000"},
		{"record", struct {
			A uint8 `candid:"a"`
		}{A: 42}, "4449444c016c01617b01002a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Marshal(tt.arg)
			got := mustHex(t, data, err)
			want := strings.ReplaceAll(tt.want, " ", "")
			if got != want {
				t.Errorf("Marshal = %s, want %s", got, want)
			}
		})
	}
}

func TestMarshal_MultipleArgs(t *testing.T) {
	data, err := Marshal(true, uint8(1))
	got := mustHex(t, data, err)
	if got != "4449444c00027e7b0101" {
		t.Errorf("Marshal = %s", got)
	}
}

func TestMarshal_TypeTableDedup(t *testing.T) {
	type pair struct {
		A []uint16
		B []uint16
	}

	data, err := Marshal(pair{})
	got := mustHex(t, data, err)
	// record at index 0 (pre-order), shared vec nat16 at index 1
	if got != "4449444c026c02410142016d7a01000000" {
		t.Errorf("Marshal = %s", got)
	}
}

func TestMarshal_FieldOrderIsByHash(t *testing.T) {
	type rec struct {
		B uint8 `candid:"b"`
		A uint8 `candid:"a"`
	}

	data, err := Marshal(rec{B: 2, A: 1})
	got := mustHex(t, data, err)
	if got != "4449444c016c02617b627b01000102" {
		t.Errorf("Marshal = %s", got)
	}
}

func TestMarshal_FuncReference(t *testing.T) {
	f := echoFunc{Target: principal.MustFromBytes([]byte{1, 2}), Method: "go"}

	data, err := Marshal(f)
	got := mustHex(t, data, err)
	want := "4449444c01" + "6a017101710101" + "0100" + "01" + "01" + "020102" + "02676f"
	if got != want {
		t.Errorf("Marshal = %s, want %s", got, want)
	}

	types, err := ArgTypes(data)
	if err != nil {
		t.Fatalf("ArgTypes: %v", err)
	}
	fn, ok := types[0].(*Func)
	if !ok {
		t.Fatalf("arg type = %T, want *Func", types[0])
	}
	if !fn.IsQuery() || len(fn.Args) != 1 || len(fn.Rets) != 1 {
		t.Errorf("func type = %s", fn)
	}
}

func TestMarshal_FuncReferenceInvalid(t *testing.T) {
	tests := []struct {
		name string
		f    echoFunc
	}{
		{"oversized principal", echoFunc{Target: principal.Unchecked(make([]byte, 30)), Method: "go"}},
		{"empty method", echoFunc{Target: principal.ManagementCanister(), Method: ""}},
		{"invalid utf8 method", echoFunc{Target: principal.ManagementCanister(), Method: "\xff"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Marshal(tt.f)
			if err == nil {
				t.Fatal("expected encode error")
			}
			if !errors.IsEncoding(err) {
				t.Errorf("error %v is not an encoding error", err)
			}
		})
	}
}

func TestMarshal_Errors(t *testing.T) {
	type node struct {
		Next *node
	}

	tests := []struct {
		name string
		arg  any
		kind errors.Kind
	}{
		{"nil", nil, errors.KindNilPointer},
		{"map", map[string]int{}, errors.KindUnsupported},
		{"recursive", node{}, errors.KindUnsupported},
		{"invalid utf8", "\xff\xfe", errors.KindInvalidUTF8},
		{"oversized principal", principal.Unchecked(make([]byte, 30)), errors.KindInvalidData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Marshal(tt.arg)
			if err == nil {
				t.Fatal("expected error")
			}
			e, ok := err.(*errors.Error)
			if !ok {
				t.Fatalf("error type = %T", err)
			}
			if e.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v (%v)", e.Kind, tt.kind, err)
			}
		})
	}
}

func TestTypeOf(t *testing.T) {
	type header struct {
		Name  string `candid:"name"`
		Value string `candid:"value"`
	}
	type msg struct {
		Headers []header `candid:"headers"`
		Body    *[]byte  `candid:"body"`
		Skipped int      `candid:"-"`
	}

	typ, err := TypeOf(msg{})
	if err != nil {
		t.Fatalf("TypeOf: %v", err)
	}
	want := "record { body : opt blob; headers : vec record { name : text; value : text } }"
	if typ.String() != want {
		t.Errorf("TypeOf = %s, want %s", typ, want)
	}
}

func TestIDHash(t *testing.T) {
	if IDHash("a") != 97 {
		t.Errorf("IDHash(a) = %d", IDHash("a"))
	}
	if IDHash("ab") != 97*223+98 {
		t.Errorf("IDHash(ab) = %d", IDHash("ab"))
	}
	if IDHash("") != 0 {
		t.Errorf("IDHash() = %d", IDHash(""))
	}
}

func TestSleb(t *testing.T) {
	tests := []struct {
		v    int64
		want string
	}{
		{0, "00"},
		{-1, "7f"},
		{-24, "68"},
		{63, "3f"},
		{64, "c000"},
		{-65, "bf7f"},
	}
	for _, tt := range tests {
		got := hex.EncodeToString(appendSleb(nil, tt.v))
		if got != tt.want {
			t.Errorf("appendSleb(%d) = %s, want %s", tt.v, got, tt.want)
		}
		r := &Reader{data: appendSleb(nil, tt.v)}
		back, err := r.readSleb()
		if err != nil || back != tt.v {
			t.Errorf("readSleb(%s) = %d, %v", tt.want, back, err)
		}
	}

	for _, padded := range []string{"8000", "ff7f", "c08000", "ffff7f"} {
		data, _ := hex.DecodeString(padded)
		r := &Reader{data: data}
		if _, err := r.readSleb(); err == nil {
			t.Errorf("readSleb(%s) accepted a non-minimal encoding", padded)
		}
	}
}
