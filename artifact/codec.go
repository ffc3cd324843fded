package artifact

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/xxh3"
)

// maxPayload bounds the payload length accepted from a header.
const maxPayload = 1 << 30

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("artifact: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em

	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("artifact: failed to create CBOR dec mode: %v", err))
	}
	cborDecMode = dm
}

var (
	zstdEncoder = sync.OnceValues(func() (*zstd.Encoder, error) { return zstd.NewWriter(nil) })
	zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
		return zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxPayload))
	})
)

// Encode writes a. The header's Version, PayloadLen and Checksum are
// computed; the caller fills in the rest. FlagCompressed selects zstd.
func Encode(w io.Writer, a *Artifact) error {
	payload, err := cborEncMode.Marshal(&a.Payload)
	if err != nil {
		return fmt.Errorf("artifact: marshal payload: %w", err)
	}
	if a.Header.Compressed() {
		enc, err := zstdEncoder()
		if err != nil {
			return fmt.Errorf("artifact: zstd: %w", err)
		}
		payload = enc.EncodeAll(payload, nil)
	}

	h := a.Header
	h.Version = FormatVersion
	h.PayloadLen = uint64(len(payload))
	h.Checksum = xxh3.Hash(payload)
	if len(h.ISA) > math.MaxUint8 {
		return fmt.Errorf("artifact: ISA tag %q too long", h.ISA)
	}

	buf := make([]byte, 0, 64+len(h.ISA))
	buf = append(buf, Magic[:]...)
	buf = binary.BigEndian.AppendUint16(buf, h.Version)
	buf = append(buf, h.Kind, h.Domain)
	buf = binary.BigEndian.AppendUint16(buf, h.Flags)
	buf = binary.BigEndian.AppendUint16(buf, h.Lanes)
	buf = binary.BigEndian.AppendUint32(buf, h.Params)
	buf = binary.BigEndian.AppendUint32(buf, h.Outputs)
	buf = append(buf, byte(len(h.ISA)))
	buf = append(buf, h.ISA...)
	buf = append(buf, h.ID[:]...)
	buf = binary.BigEndian.AppendUint64(buf, h.PayloadLen)
	buf = binary.BigEndian.AppendUint64(buf, h.Checksum)

	if _, err := w.Write(buf); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	a.Header = h
	return nil
}

// DecodeHeader reads only the header: the fixed prefix, then the ISA tag it
// sizes, then the ID, length and checksum.
func DecodeHeader(r io.Reader) (Header, error) {
	var h Header
	fixed := make([]byte, 21)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return h, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	if !bytes.Equal(fixed[:4], Magic[:]) {
		return h, fmt.Errorf("%w: magic %q", ErrCorrupt, fixed[:4])
	}
	h.Version = binary.BigEndian.Uint16(fixed[4:])
	if h.Version == 0 || h.Version > FormatVersion {
		return h, fmt.Errorf("%w: %d (supported %d)", ErrUnsupportedVersion, h.Version, FormatVersion)
	}
	h.Kind = fixed[6]
	h.Domain = fixed[7]
	h.Flags = binary.BigEndian.Uint16(fixed[8:])
	h.Lanes = binary.BigEndian.Uint16(fixed[10:])
	h.Params = binary.BigEndian.Uint32(fixed[12:])
	h.Outputs = binary.BigEndian.Uint32(fixed[16:])

	isa := make([]byte, int(fixed[20]))
	if _, err := io.ReadFull(r, isa); err != nil {
		return h, fmt.Errorf("%w: ISA tag: %v", ErrCorrupt, err)
	}
	h.ISA = string(isa)

	tail := make([]byte, 32)
	if _, err := io.ReadFull(r, tail); err != nil {
		return h, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	copy(h.ID[:], tail[:16])
	h.PayloadLen = binary.BigEndian.Uint64(tail[16:])
	h.Checksum = binary.BigEndian.Uint64(tail[24:])
	if h.PayloadLen > maxPayload {
		return h, fmt.Errorf("%w: payload length %d", ErrCorrupt, h.PayloadLen)
	}
	return h, nil
}

// Decode reads a complete artifact and verifies its checksum. It does not
// check the artifact against the host; see Verify.
func Decode(r io.Reader) (*Artifact, error) {
	h, err := DecodeHeader(r)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, h.PayloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrCorrupt, err)
	}
	if sum := xxh3.Hash(payload); sum != h.Checksum {
		return nil, fmt.Errorf("%w: checksum %016x, header says %016x", ErrCorrupt, sum, h.Checksum)
	}
	if h.Compressed() {
		dec, err := zstdDecoder()
		if err != nil {
			return nil, fmt.Errorf("artifact: zstd: %w", err)
		}
		payload, err = dec.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", ErrCorrupt, err)
		}
	}

	a := &Artifact{Header: h}
	if err := cborDecMode.Unmarshal(payload, &a.Payload); err != nil {
		return nil, fmt.Errorf("%w: unmarshal payload: %v", ErrCorrupt, err)
	}
	if (a.Payload.Native == nil) == (a.Payload.Bytecode == nil) {
		return nil, fmt.Errorf("%w: payload must hold exactly one of native code and bytecode", ErrCorrupt)
	}
	return a, nil
}

// WriteFile encodes a to path, replacing any existing file.
func WriteFile(path string, a *Artifact) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := Encode(f, a); err != nil {
		return err
	}
	return f.Close()
}

// ReadFile decodes the artifact at path.
func ReadFile(path string) (*Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// ReadHeaderFile decodes only the header of the artifact at path.
func ReadHeaderFile(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()
	return DecodeHeader(f)
}
