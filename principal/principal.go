// Package principal implements the identifier of an addressable entity on the
// host platform: an opaque byte string of at most 29 bytes with a
// checksummed, dash-grouped base32 textual form.
package principal

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"strings"

	"github.com/multiformats/go-base32"

	"github.com/wippyai/canister-outcall/errors"
)

// MaxLength is the longest identifier the platform can address.
const MaxLength = 29

const (
	checksumLength = 4
	groupSize      = 5
)

// Principal identifies a canister or other entity. The zero value is the
// management canister.
type Principal struct {
	raw string
}

// ManagementCanister returns the identifier reserved for platform management.
// Its textual form is "aaaaa-aa".
func ManagementCanister() Principal {
	return Principal{}
}

// FromBytes creates a principal from its raw form. The bytes are copied.
func FromBytes(b []byte) (Principal, error) {
	if len(b) > MaxLength {
		return Principal{}, errors.New(errors.PhaseValidate, errors.KindOverflow).
			IDLType("principal").
			Value(len(b)).
			Detail("principal is %d bytes, max %d", len(b), MaxLength).
			Build()
	}
	return Principal{raw: string(b)}, nil
}

// MustFromBytes is FromBytes for constants; it panics on invalid input.
func MustFromBytes(b []byte) Principal {
	p, err := FromBytes(b)
	if err != nil {
		panic(err)
	}
	return p
}

// Unchecked wraps raw bytes without the length check. Encoders still reject
// oversized identifiers; this exists so such values can be constructed.
func Unchecked(b []byte) Principal {
	return Principal{raw: string(b)}
}

// Decode parses the textual form, verifying grouping and checksum.
func Decode(text string) (Principal, error) {
	compact := strings.ReplaceAll(text, "-", "")
	raw, err := base32.RawStdEncoding.DecodeString(strings.ToUpper(compact))
	if err != nil {
		return Principal{}, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			IDLType("principal").
			Detail("invalid principal text %q", text).
			Cause(err).
			Build()
	}
	if len(raw) < checksumLength {
		return Principal{}, errors.InvalidData(errors.PhaseDecode, nil, "principal text too short")
	}

	p, err := FromBytes(raw[checksumLength:])
	if err != nil {
		return Principal{}, err
	}
	if binary.BigEndian.Uint32(raw[:checksumLength]) != crc32.ChecksumIEEE(p.Bytes()) {
		return Principal{}, errors.InvalidData(errors.PhaseDecode, nil, "principal checksum mismatch")
	}
	if p.String() != strings.ToLower(text) {
		return Principal{}, errors.InvalidData(errors.PhaseDecode, nil, "principal text is not in canonical form")
	}
	return p, nil
}

// MustDecode is Decode for constants; it panics on invalid input.
func MustDecode(text string) Principal {
	p, err := Decode(text)
	if err != nil {
		panic(err)
	}
	return p
}

// Bytes returns a copy of the raw identifier.
func (p Principal) Bytes() []byte {
	return []byte(p.raw)
}

// Len returns the raw identifier length.
func (p Principal) Len() int {
	return len(p.raw)
}

// IsManagementCanister reports whether p is the management canister.
func (p Principal) IsManagementCanister() bool {
	return p.raw == ""
}

// Equal reports whether both identify the same entity.
func (p Principal) Equal(o Principal) bool {
	return p.raw == o.raw
}

// Compare orders principals by raw bytes.
func (p Principal) Compare(o Principal) int {
	return bytes.Compare([]byte(p.raw), []byte(o.raw))
}

// String returns the textual form.
func (p Principal) String() string {
	buf := make([]byte, checksumLength+len(p.raw))
	binary.BigEndian.PutUint32(buf, crc32.ChecksumIEEE([]byte(p.raw)))
	copy(buf[checksumLength:], p.raw)

	enc := strings.ToLower(base32.RawStdEncoding.EncodeToString(buf))

	var b strings.Builder
	b.Grow(len(enc) + len(enc)/groupSize)
	for i := 0; i < len(enc); i += groupSize {
		if i > 0 {
			b.WriteByte('-')
		}
		end := min(i+groupSize, len(enc))
		b.WriteString(enc[i:end])
	}
	return b.String()
}

// MarshalText implements encoding.TextMarshaler.
func (p Principal) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Principal) UnmarshalText(text []byte) error {
	d, err := Decode(string(text))
	if err != nil {
		return err
	}
	*p = d
	return nil
}
