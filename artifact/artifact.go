// Package artifact reads and writes compiled runner files.
//
// A file is a binary header followed by a CBOR payload. The header has a
// 21-byte fixed prefix; the ISA tag makes the rest variable, so its length
// is known only after isa_len is read:
//
//	[magic:4 "SJIT"] [version:2] [kind:1] [domain:1] [flags:2] [lanes:2]
//	[params:4] [outputs:4] [isa_len:1] [isa:...] [id:16]
//	[payload_len:8] [checksum:8] [payload:...]
//
// The checksum is the xxh3 hash of the payload bytes as stored, so a
// corrupt file is rejected before it is decompressed or decoded.
package artifact

import (
	"errors"

	"github.com/chazu/symbridge/config"
	"github.com/google/uuid"
)

// FormatVersion is the current artifact format version.
const FormatVersion uint16 = 1

// Magic identifies artifact files.
var Magic = [4]byte{'S', 'J', 'I', 'T'}

var (
	// ErrArchitectureMismatch is returned when native code was built for a
	// different ISA or vector width than the host offers.
	ErrArchitectureMismatch = errors.New("artifact: architecture mismatch")

	// ErrUnsupportedVersion is returned for files written by a newer format.
	ErrUnsupportedVersion = errors.New("artifact: unsupported format version")

	// ErrCorrupt is returned when a file is truncated, has a bad magic or
	// fails its checksum.
	ErrCorrupt = errors.New("artifact: corrupt")

	// ErrArityMismatch is returned when an artifact does not have the
	// parameter or output count the caller expects.
	ErrArityMismatch = errors.New("artifact: arity mismatch")
)

// Header flags.
const (
	FlagCompressed uint16 = 1 << 0 // payload is zstd compressed
	FlagTransposed uint16 = 1 << 1 // native code uses row-major buffers
)

// Header is the uncompressed part of an artifact, read before the payload.
type Header struct {
	Version uint16
	Kind    uint8
	Domain  uint8
	Flags   uint16
	Lanes   uint16
	Params  uint32
	Outputs uint32

	// ISA is the GOARCH the code was built for, or host.PortableISA.
	ISA string
	ID  uuid.UUID

	PayloadLen uint64
	Checksum   uint64
}

// Compressed reports whether the payload is zstd compressed.
func (h Header) Compressed() bool { return h.Flags&FlagCompressed != 0 }

// Native is machine-specific code produced by a codegen backend.
type Native struct {
	Arch       string `cbor:"1,keyasint"`
	Lanes      int    `cbor:"2,keyasint"`
	Transposed bool   `cbor:"3,keyasint,omitempty"`
	Code       []byte `cbor:"4,keyasint"`
}

// Payload is the CBOR body of an artifact. Exactly one of Native and
// Bytecode is set.
type Payload struct {
	Config   config.Config `cbor:"1,keyasint"`
	Native   *Native       `cbor:"2,keyasint,omitempty"`
	Bytecode []byte        `cbor:"3,keyasint,omitempty"`

	// Registers is the register file size of interpreted code.
	Registers int `cbor:"4,keyasint,omitempty"`
}

// Artifact is a decoded artifact file.
type Artifact struct {
	Header  Header
	Payload Payload
}
