package artifact

import (
	"bytes"
	"encoding/binary"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/chazu/symbridge/config"
	"github.com/chazu/symbridge/host"
	"github.com/chazu/symbridge/pkg/bytecode"
	"github.com/google/uuid"
)

func sample(flags uint16) *Artifact {
	return &Artifact{
		Header: Header{
			Kind:    3,
			Domain:  uint8(bytecode.Complex),
			Flags:   flags,
			Lanes:   4,
			Params:  2,
			Outputs: 1,
			ISA:     "amd64",
			ID:      uuid.New(),
		},
		Payload: Payload{
			Config: config.Default().WithDomain(bytecode.Complex).WithSIMD(true),
			Native: &Native{
				Arch:  "amd64",
				Lanes: 4,
				Code:  bytes.Repeat([]byte{0x10, 0x20, 0x30}, 100),
			},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	for _, flags := range []uint16{0, FlagCompressed} {
		a := sample(flags)
		var buf bytes.Buffer
		if err := Encode(&buf, a); err != nil {
			t.Fatalf("Encode: %v", err)
		}
		got, err := Decode(&buf)
		if err != nil {
			t.Fatalf("Decode (flags %d): %v", flags, err)
		}
		if got.Header != a.Header {
			t.Errorf("header = %+v, want %+v", got.Header, a.Header)
		}
		if !reflect.DeepEqual(got.Payload, a.Payload) {
			t.Errorf("payload = %+v, want %+v", got.Payload, a.Payload)
		}
	}
}

func TestCompressionShrinksPayload(t *testing.T) {
	var plain, packed bytes.Buffer
	if err := Encode(&plain, sample(0)); err != nil {
		t.Fatal(err)
	}
	if err := Encode(&packed, sample(FlagCompressed)); err != nil {
		t.Fatal(err)
	}
	if packed.Len() >= plain.Len() {
		t.Errorf("compressed size %d >= plain size %d", packed.Len(), plain.Len())
	}
}

func TestDecodeRejectsCorruption(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, sample(0)); err != nil {
		t.Fatal(err)
	}
	good := buf.Bytes()

	flipped := append([]byte(nil), good...)
	flipped[len(flipped)-1] ^= 0xFF

	badMagic := append([]byte(nil), good...)
	copy(badMagic, "JUNK")

	newer := append([]byte(nil), good...)
	binary.BigEndian.PutUint16(newer[4:], FormatVersion+1)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"checksum", flipped, ErrCorrupt},
		{"magic", badMagic, ErrCorrupt},
		{"truncated header", good[:10], ErrCorrupt},
		{"truncated payload", good[:len(good)-5], ErrCorrupt},
		{"newer version", newer, ErrUnsupportedVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(bytes.NewReader(tt.data)); !errors.Is(err, tt.want) {
				t.Errorf("Decode() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeRequiresOneBody(t *testing.T) {
	a := sample(0)
	a.Payload.Bytecode = []byte{1}
	var buf bytes.Buffer
	if err := Encode(&buf, a); err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(&buf); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Decode() error = %v, want %v", err, ErrCorrupt)
	}
}

func TestFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.sjit")
	a := sample(FlagCompressed)
	if err := WriteFile(path, a); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	h, err := ReadHeaderFile(path)
	if err != nil {
		t.Fatalf("ReadHeaderFile: %v", err)
	}
	if h.ID != a.Header.ID || !h.Compressed() {
		t.Errorf("header = %+v", h)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got.Payload.Native.Arch != "amd64" {
		t.Errorf("native arch = %q", got.Payload.Native.Arch)
	}
	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("ReadFile of a missing file succeeded")
	}
}

func TestVerify(t *testing.T) {
	avx := host.Caps{Arch: "amd64", VectorBits: 256}
	tests := []struct {
		name   string
		h      Header
		caps   host.Caps
		expect *Expect
		want   error
	}{
		{"same host", Header{ISA: "amd64", Lanes: 4}, avx, nil, nil},
		{"scalar on same isa", Header{ISA: "amd64", Lanes: 1}, avx.WithoutSIMD(), nil, nil},
		{"foreign isa", Header{ISA: "arm64", Lanes: 1}, avx, nil, ErrArchitectureMismatch},
		{"missing lanes", Header{ISA: "amd64", Lanes: 4}, avx.WithoutSIMD(), nil, ErrArchitectureMismatch},
		{"fewer lanes than host", Header{ISA: "amd64", Lanes: 2}, avx, nil, nil},
		{"more lanes than host", Header{ISA: "amd64", Lanes: 8}, avx, nil, ErrArchitectureMismatch},
		{"portable", Header{ISA: host.PortableISA}, host.Caps{Arch: "riscv64"}, nil, nil},
		{"arity ok", Header{ISA: host.PortableISA, Params: 2, Outputs: 1}, avx, &Expect{2, 1}, nil},
		{"arity mismatch", Header{ISA: host.PortableISA, Params: 2, Outputs: 1}, avx, &Expect{3, 1}, ErrArityMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(tt.h, tt.caps, tt.expect)
			if tt.want == nil {
				if err != nil {
					t.Errorf("Verify() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Verify() error = %v, want %v", err, tt.want)
			}
		})
	}
}
