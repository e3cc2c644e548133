package mgmt

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"lukechampine.com/uint128"

	outcall "github.com/wippyai/canister-outcall"
	"github.com/wippyai/canister-outcall/candid"
	"github.com/wippyai/canister-outcall/cycles"
	"github.com/wippyai/canister-outcall/errors"
	"github.com/wippyai/canister-outcall/principal"
)

func expectedCost(encodedLen int, maxResponseBytes uint64) uint128.Uint128 {
	return uint128.From64(uint64(encodedLen) + 12 + maxResponseBytes).
		Mul64(100_000).
		Add64(400_000_000)
}

func replyWith(t *testing.T, resp HttpResponse) outcall.CallerFunc {
	t.Helper()
	reply, err := candid.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal reply: %v", err)
	}
	return func(context.Context, principal.Principal, string, []byte, uint128.Uint128) ([]byte, error) {
		return reply, nil
	}
}

func TestHTTPRequest_Success(t *testing.T) {
	arg := fullArgument()
	want := HttpResponse{
		Status:  candid.NewNat(200),
		Headers: []HttpHeader{{Name: "Content-Type", Value: "application/json"}},
		Body:    []byte(`{"rate":12.5}`),
	}
	reply, err := candid.Marshal(want)
	if err != nil {
		t.Fatal(err)
	}
	encoded, err := candid.Marshal(arg)
	if err != nil {
		t.Fatal(err)
	}

	var calls int
	caller := outcall.CallerFunc(func(ctx context.Context, callee principal.Principal, method string, a []byte, payment uint128.Uint128) ([]byte, error) {
		calls++
		if !callee.IsManagementCanister() {
			t.Errorf("callee = %s, want aaaaa-aa", callee)
		}
		if method != "http_request" {
			t.Errorf("method = %q", method)
		}
		if !bytes.Equal(a, encoded) {
			t.Errorf("argument bytes differ from the encoded request")
		}
		if want := expectedCost(len(encoded), 4096); !payment.Equals(want) {
			t.Errorf("payment = %s, want %s", payment, want)
		}
		return reply, nil
	})

	got, err := HTTPRequest(context.Background(), caller, arg)
	if err != nil {
		t.Fatalf("HTTPRequest: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !got.Equal(want) {
		t.Errorf("response = %+v, want %+v", got, want)
	}
}

func TestHTTPRequest_DefaultCap(t *testing.T) {
	arg := CanisterHttpRequestArgument{URL: "https://example.com", Method: GET}
	encoded, err := candid.Marshal(arg)
	if err != nil {
		t.Fatal(err)
	}

	var paid uint128.Uint128
	caller := outcall.CallerFunc(func(_ context.Context, _ principal.Principal, _ string, _ []byte, payment uint128.Uint128) ([]byte, error) {
		paid = payment
		return candid.Marshal(HttpResponse{Status: candid.NewNat(200)})
	})

	if _, err := HTTPRequest(context.Background(), caller, arg); err != nil {
		t.Fatalf("HTTPRequest: %v", err)
	}

	want := expectedCost(len(encoded), 2_097_152)
	if !paid.Equals(want) {
		t.Errorf("payment = %s, want %s", paid, want)
	}
	if arg.MaxResponseBytes != nil {
		t.Error("argument was mutated")
	}

	required, err := RequiredCycles(arg)
	if err != nil {
		t.Fatal(err)
	}
	if !required.Equals(paid) {
		t.Errorf("RequiredCycles = %s, paid %s", required, paid)
	}
}

func TestHTTPRequest_DefaultCapMatchesExplicit(t *testing.T) {
	arg := CanisterHttpRequestArgument{URL: "https://example.com", Method: GET}
	encoded, err := candid.Marshal(arg)
	if err != nil {
		t.Fatal(err)
	}
	implicit := cycles.HTTPRequestCost(len(encoded), nil)
	explicit := cycles.HTTPRequestCost(len(encoded), u64(DefaultMaxResponseBytes))
	if !implicit.Equals(explicit) {
		t.Errorf("implicit cap %s != explicit cap %s", implicit, explicit)
	}
}

func TestHTTPRequest_EncodingErrorMakesNoCall(t *testing.T) {
	arg := fullArgument()
	arg.Transform.Function.Principal = principal.Unchecked(make([]byte, 64))

	caller := outcall.CallerFunc(func(context.Context, principal.Principal, string, []byte, uint128.Uint128) ([]byte, error) {
		t.Fatal("caller must not be reached")
		return nil, nil
	})

	_, err := HTTPRequest(context.Background(), caller, arg)
	if !errors.IsEncoding(err) {
		t.Fatalf("err = %v, want encoding error", err)
	}
	if _, ok := errors.AsCallError(err); ok {
		t.Error("encoding failure reported as call error")
	}

	if _, err := RequiredCycles(arg); !errors.IsEncoding(err) {
		t.Errorf("RequiredCycles err = %v", err)
	}
}

func TestHTTPRequest_Rejected(t *testing.T) {
	tests := []struct {
		code    errors.RejectCode
		message string
	}{
		{errors.RejectCanisterReject, "http_request request sent with 10 cycles, but 210126400000 cycles are required."},
		{errors.RejectSysTransient, "Timeout expired"},
		{errors.RejectSysFatal, "Http body exceeds size limit of 4096 bytes."},
		{errors.RejectCanisterError, "transform trapped"},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			caller := outcall.CallerFunc(func(context.Context, principal.Principal, string, []byte, uint128.Uint128) ([]byte, error) {
				return nil, errors.NewCallError(tt.code, tt.message)
			})

			resp, err := HTTPRequest(context.Background(), caller, fullArgument())
			if err == nil {
				t.Fatal("expected error")
			}
			ce, ok := errors.AsCallError(err)
			if !ok {
				t.Fatalf("err = %T %v, want *CallError", err, err)
			}
			if ce.Code != tt.code || ce.Message != tt.message {
				t.Errorf("CallError = (%d, %q), want (%d, %q)", ce.Code, ce.Message, tt.code, tt.message)
			}
			if resp.Body != nil || resp.Headers != nil {
				t.Errorf("a response was synthesized: %+v", resp)
			}
			if !resp.Status.Equal(candid.NatValue{}) {
				t.Errorf("status = %s", resp.Status)
			}
		})
	}
}

func TestHTTPRequest_TransportError(t *testing.T) {
	broken := stderrors.New("connection reset")
	caller := outcall.CallerFunc(func(context.Context, principal.Principal, string, []byte, uint128.Uint128) ([]byte, error) {
		return nil, fmt.Errorf("dial replica: %w", broken)
	})

	_, err := HTTPRequest(context.Background(), caller, fullArgument())
	ce, ok := errors.AsCallError(err)
	if !ok {
		t.Fatalf("err = %v, want *CallError", err)
	}
	if ce.Code != errors.RejectUnknown {
		t.Errorf("Code = %s", ce.Code)
	}
	if ce.Message != "dial replica: connection reset" {
		t.Errorf("Message = %q", ce.Message)
	}
	if !stderrors.Is(err, broken) {
		t.Error("cause not preserved")
	}
}

func TestHTTPRequest_DecodeError(t *testing.T) {
	tests := []struct {
		name  string
		reply func() ([]byte, error)
	}{
		{"garbage", func() ([]byte, error) { return []byte("not idl"), nil }},
		{"empty", func() ([]byte, error) { return nil, nil }},
		{"wrong type", func() ([]byte, error) { return candid.Marshal("200 OK") }},
		{"two values", func() ([]byte, error) {
			r := HttpResponse{Status: candid.NewNat(200)}
			return candid.Marshal(r, r)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := tt.reply()
			if err != nil {
				t.Fatal(err)
			}
			caller := outcall.CallerFunc(func(context.Context, principal.Principal, string, []byte, uint128.Uint128) ([]byte, error) {
				return reply, nil
			})
			_, err = HTTPRequest(context.Background(), caller, fullArgument())
			if !errors.IsDecoding(err) {
				t.Errorf("err = %v, want decoding error", err)
			}
		})
	}
}

func TestHTTPRequest_DoesNotMutateArgument(t *testing.T) {
	arg := fullArgument()
	arg.MaxResponseBytes = nil
	before := fmt.Sprintf("%+v", arg)
	headers := append([]HttpHeader(nil), arg.Headers...)

	_, err := HTTPRequest(context.Background(), replyWith(t, HttpResponse{Status: candid.NewNat(200)}), arg)
	if err != nil {
		t.Fatalf("HTTPRequest: %v", err)
	}
	if arg.MaxResponseBytes != nil {
		t.Error("MaxResponseBytes was filled in")
	}
	if fmt.Sprintf("%+v", arg) != before {
		t.Error("argument changed")
	}
	for i := range headers {
		if arg.Headers[i] != headers[i] {
			t.Errorf("header %d changed", i)
		}
	}
}

func TestHTTPRequest_Concurrent(t *testing.T) {
	var calls atomic.Int32
	caller := outcall.CallerFunc(func(_ context.Context, _ principal.Principal, _ string, a []byte, payment uint128.Uint128) ([]byte, error) {
		calls.Add(1)
		var arg CanisterHttpRequestArgument
		if err := candid.Unmarshal(a, &arg); err != nil {
			return nil, err
		}
		if want := expectedCost(len(a), *arg.MaxResponseBytes); !payment.Equals(want) {
			return nil, errors.NewCallError(errors.RejectCanisterReject, "wrong payment "+payment.String())
		}
		return candid.Marshal(HttpResponse{Status: candid.NewNat(200), Body: []byte(arg.URL)})
	})

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			url := fmt.Sprintf("https://example.com/%d", i)
			arg := CanisterHttpRequestArgument{
				URL:              url,
				MaxResponseBytes: u64(uint64(1000 * (i + 1))),
				Method:           GET,
			}
			resp, err := HTTPRequest(context.Background(), caller, arg)
			if err != nil {
				errs <- err
				return
			}
			if string(resp.Body) != url {
				errs <- fmt.Errorf("response for %s carried %q", url, resp.Body)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	if calls.Load() != n {
		t.Errorf("calls = %d, want %d", calls.Load(), n)
	}
}

func TestRequiredCycles_ConcreteCase(t *testing.T) {
	// L = 100, M = 2 MiB
	got := cycles.HTTPRequestCost(100, nil)
	want := uint128.From64(400_000_000 + 209_726_400_000)
	if !got.Equals(want) {
		t.Errorf("cost = %s, want %s", got, want)
	}
}
