package cycles

import (
	"math"
	"testing"

	"lukechampine.com/uint128"
)

func TestHTTPRequestCost(t *testing.T) {
	capped := uint64(2_097_152)
	small := uint64(1024)

	tests := []struct {
		name     string
		argBytes int
		max      *uint64
		want     string
	}{
		{"explicit 2MiB", 100, &capped, "210126400000"},
		{"default cap", 100, nil, "210126400000"},
		{"small cap", 200, &small, "523600000"},
		{"zero everything", 0, new(uint64), "401200000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HTTPRequestCost(tt.argBytes, tt.max)
			if got.String() != tt.want {
				t.Errorf("HTTPRequestCost(%d) = %s, want %s", tt.argBytes, got, tt.want)
			}
		})
	}
}

func TestHTTPRequestCost_ConcreteCase(t *testing.T) {
	// 400_000_000 + 100_000 × (100 + 12 + 2_097_152)
	want := FromUint64(400_000_000).Add(FromUint64(209_726_400_000))
	if got := HTTPRequestCost(100, nil); !got.Equals(want) {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestOutcallCost_MethodLength(t *testing.T) {
	a := OutcallCost("http_request", 10, 0)
	b := OutcallCost("x", 10, 0)
	diff := a.Sub(b)
	if !diff.Equals64(11 * OutcallPerByteFee) {
		t.Errorf("method name length not priced per byte: diff %s", diff)
	}
	if len(HTTPRequestMethod) != 12 {
		t.Errorf("http_request is %d bytes", len(HTTPRequestMethod))
	}
}

func TestOutcallCost_Exceeds64Bits(t *testing.T) {
	got := OutcallCost(HTTPRequestMethod, 0, math.MaxUint64/2)
	if got.Hi == 0 {
		t.Errorf("expected a result wider than 64 bits, got %s", got)
	}
}

func TestEffectiveMaxResponseBytes(t *testing.T) {
	if EffectiveMaxResponseBytes(nil) != DefaultMaxResponseBytes {
		t.Error("nil cap should resolve to the default")
	}
	v := uint64(7)
	if EffectiveMaxResponseBytes(&v) != 7 {
		t.Error("explicit cap should be kept")
	}
}

func TestSplitJoin(t *testing.T) {
	a := OutcallCost(HTTPRequestMethod, 0, math.MaxUint64/2)
	hi, lo := Split(a)
	if !Join(hi, lo).Equals(a) {
		t.Errorf("Join(Split(%s)) mismatch", a)
	}
}

func TestParse(t *testing.T) {
	a, err := Parse("210126400000")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !a.Equals(HTTPRequestCost(100, nil)) {
		t.Errorf("Parse = %s", a)
	}
}

func TestCheckedAdd(t *testing.T) {
	top := uint128.Max

	sum, ok := CheckedAdd(FromUint64(1), FromUint64(2))
	if !ok || !sum.Equals64(3) {
		t.Errorf("1+2 = %s, %v", sum, ok)
	}

	sum, ok = CheckedAdd(Join(0, ^uint64(0)), FromUint64(1))
	if !ok || sum.Hi != 1 || sum.Lo != 0 {
		t.Errorf("carry into high word = %s, %v", sum, ok)
	}

	if _, ok := CheckedAdd(top, FromUint64(1)); ok {
		t.Error("max+1 should overflow")
	}
	if sum, ok := CheckedAdd(top, Zero); !ok || !sum.Equals(top) {
		t.Errorf("max+0 = %s, %v", sum, ok)
	}
}
