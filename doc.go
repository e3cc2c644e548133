// Package outcall lets code running inside a canister issue outbound HTTP
// requests through the management canister.
//
// # Architecture Overview
//
//	outcall/             Root package with the Caller interface
//	├── mgmt/            http_request argument/response types and the invoker
//	├── candid/          IDL binary encoding, including function references
//	├── cycles/          128-bit cycle amounts and outcall pricing
//	├── principal/       Entity identifiers and their textual form
//	├── host/            wazero host module bridging sandboxed canisters to a Caller
//	├── errors/          Structured error types for debugging
//	└── cmd/outcall/     Inspect the encoding and cost of a request
//
// # Quick Start
//
//	arg := mgmt.CanisterHttpRequestArgument{
//	    URL:    "https://example.com/rates",
//	    Method: mgmt.GET,
//	    Headers: []mgmt.HttpHeader{
//	        {Name: "Accept", Value: "application/json"},
//	    },
//	}
//
//	resp, err := mgmt.HTTPRequest(ctx, caller, arg)
//	if err != nil {
//	    var callErr *errors.CallError
//	    if stderrors.As(err, &callErr) {
//	        log.Printf("rejected: %s", callErr.Message)
//	    }
//	    return err
//	}
//
// The payment attached to the call is computed from the encoded argument:
//
//	400_000_000 + 100_000 × (len(arg) + len("http_request") + max_response_bytes)
//
// with max_response_bytes defaulting to 2 MiB when unset.
//
// # Transform Callbacks
//
// A request may name a query method that post-processes the raw response
// before it is agreed on across replicas. mgmt.TransformFunc encodes as an
// IDL function reference, not as a record:
//
//	arg.Transform = &mgmt.TransformContext{
//	    Function: mgmt.TransformFunc{Principal: self, Method: "transform"},
//	    Context:  []byte("rates"),
//	}
//
// # Thread Safety
//
// Every function in this module is safe for concurrent use. Concurrent
// requests share no state; each carries its own payment.
package outcall
