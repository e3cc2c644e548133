// Package candid implements the platform's interface description language
// (IDL) binary encoding for Go values.
//
// # Wire Format
//
// An encoded argument list is laid out as:
//
//	┌──────┬────────────┬─────────────┬─────────────┐
//	│ DIDL │ type table │ arg types   │ arg values  │
//	└──────┴────────────┴─────────────┴─────────────┘
//
// The type table holds every compound type (opt, vec, record, variant,
// func, service) once. Argument types and table entries reference compound
// types by table index and primitive types by their negative opcode.
// Lengths, counts and field ids are unsigned LEB128; type references are
// signed LEB128.
//
// # Type Mapping
//
//	Go                       IDL
//	──────────────────────────────────────
//	bool                     bool
//	uint8/16/32/64           nat8/16/32/64
//	int8/16/32/64            int8/16/32/64
//	float32/64               float32/64
//	string                   text
//	NatValue                 nat
//	principal.Principal      principal
//	[]byte                   blob (vec nat8)
//	[]T                      vec T
//	*T                       opt T
//	struct                   record (field names from `candid:"name"` tags)
//	Typer + Marshaler        the declared type, written by MarshalCandid
//
// Record fields are ordered by the hash of their names (IDHash), never by
// Go declaration order.
//
// # Declared Types
//
// Types whose wire form is not derivable from their Go structure implement
// Typer and Marshaler, and optionally Unmarshaler. Enumerations supply an
// explicit tag table this way, and function references (func values) are
// written with Writer.WriteFuncRef. The encoder picks this path from the Go
// type alone.
//
// # Decoding
//
// Decoding is strict. The wire type must have the same shape as the Go
// type: fields present on the wire but not in the Go record fail with
// field_unknown, and non-opt Go fields absent from the wire fail with
// field_missing. Absent opt fields decode to nil.
//
// # Thread Safety
//
// Compiler, Encoder and Decoder are safe for concurrent use. Writer and
// Reader are owned by a single Encode or Decode call.
package candid
