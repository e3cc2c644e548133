// Package errors provides structured error types for the canister outcall library.
//
// Codec errors are categorized by Phase (where the error occurred) and Kind
// (error category). The Error type carries the field path, the Go and IDL type
// names involved, and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseEncode, errors.KindInvalidData).
//		Path("transform", "function").
//		GoType("mgmt.TransformFunc").
//		IDLType("func").
//		Detail("principal is %d bytes, max %d", n, max).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.TypeMismatch(errors.PhaseDecode, path, "string", "nat64")
//	err := errors.FieldMissing(errors.PhaseDecode, path, "status")
//
// Failures reported by the system for an issued call are a separate type,
// CallError, which carries the reject code and message exactly as delivered.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
