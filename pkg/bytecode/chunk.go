package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// BytecodeVersion is the current bytecode format version.
// Increment when making incompatible changes to the format.
const BytecodeVersion uint16 = 1

// Magic bytes for serialized chunks: "SJBC" (SymJit ByteCode)
var BytecodeMagic = []byte{'S', 'J', 'B', 'C'}

// ErrMalformed is returned when code or serialized data fails validation.
var ErrMalformed = errors.New("bytecode: malformed chunk")

// ChunkFlags contains compilation flags for a chunk.
type ChunkFlags uint16

const (
	// ChunkFlagHasBranches indicates the code contains jumps. Branching code
	// cannot be evaluated lane-parallel.
	ChunkFlagHasBranches ChunkFlags = 1 << 0

	// ChunkFlagHasExternals indicates the code calls external functions.
	ChunkFlagHasExternals ChunkFlags = 1 << 1
)

// Chunk is the canonical, validated form of an instruction stream.
//
// All operands are indices into a single register file laid out as
//
//	[params | constants | temps | outputs]
//
// so a chunk can be evaluated with nothing but a flat slice of values.
type Chunk struct {
	// Header
	Version uint16     // Bytecode format version
	Flags   ChunkFlags // Compilation flags

	// Code section
	Code []byte // Opcodes followed by big-endian uint32 operands

	// Constant pool, loaded into the constant registers before each call
	Constants []complex128

	// Parameter information
	ParamCount uint32
	ParamNames []string

	// Register counts beyond params and constants
	TempCount   uint32
	OutputCount uint32
}

// NewChunk creates a new empty chunk with the current version.
func NewChunk() *Chunk {
	return &Chunk{
		Version: BytecodeVersion,
		Code:    make([]byte, 0, 64),
	}
}

// ConstBase returns the register index of constant 0.
func (c *Chunk) ConstBase() uint32 { return c.ParamCount }

// TempBase returns the register index of temporary 0.
func (c *Chunk) TempBase() uint32 { return c.ParamCount + uint32(len(c.Constants)) }

// OutBase returns the register index of output 0.
func (c *Chunk) OutBase() uint32 { return c.TempBase() + c.TempCount }

// RegCount returns the size of the register file.
func (c *Chunk) RegCount() int { return int(c.OutBase() + c.OutputCount) }

// HasBranches reports whether the code contains jumps.
func (c *Chunk) HasBranches() bool { return c.Flags&ChunkFlagHasBranches != 0 }

// Emit appends an instruction and returns its offset.
func (c *Chunk) Emit(op Opcode, operands ...uint32) int {
	offset := len(c.Code)
	c.Code = append(c.Code, byte(op))
	for _, v := range operands {
		c.Code = binary.BigEndian.AppendUint32(c.Code, v)
	}
	return offset
}

// EmitJump emits a jump instruction with a placeholder target.
// Returns the offset of the placeholder for later patching.
func (c *Chunk) EmitJump(op Opcode, operands ...uint32) int {
	c.Emit(op, append(operands, math.MaxUint32)...)
	c.Flags |= ChunkFlagHasBranches
	return len(c.Code) - 4
}

// PatchJumpTo patches a jump placeholder to go to a specific offset.
func (c *Chunk) PatchJumpTo(placeholderOffset int, target int) {
	binary.BigEndian.PutUint32(c.Code[placeholderOffset:], uint32(target))
}

// CurrentOffset returns the current offset in the code section.
func (c *Chunk) CurrentOffset() int {
	return len(c.Code)
}

// CodeLen returns the length of the code section.
func (c *Chunk) CodeLen() int {
	return len(c.Code)
}

// Instr is one decoded instruction.
type Instr struct {
	Offset int
	Op     Opcode
	Args   [4]uint32
}

// Imm returns the signed immediate of an OpPowi instruction.
func (in Instr) Imm() int32 { return int32(in.Args[2]) }

// Target returns the jump target of a jump instruction.
func (in Instr) Target() int {
	if in.Op == OpJump {
		return int(in.Args[0])
	}
	return int(in.Args[1])
}

// Decode decodes the instruction at offset.
func (c *Chunk) Decode(offset int) (Instr, error) {
	if offset < 0 || offset >= len(c.Code) {
		return Instr{}, fmt.Errorf("%w: offset %d outside code", ErrMalformed, offset)
	}
	op := Opcode(c.Code[offset])
	if !op.IsValid() {
		return Instr{}, fmt.Errorf("%w: unknown opcode 0x%02X at %04X", ErrMalformed, byte(op), offset)
	}
	n := GetOpcodeInfo(op).Operands
	if offset+1+4*n > len(c.Code) {
		return Instr{}, fmt.Errorf("%w: truncated %s at %04X", ErrMalformed, op, offset)
	}
	in := Instr{Offset: offset, Op: op}
	for i := 0; i < n; i++ {
		in.Args[i] = binary.BigEndian.Uint32(c.Code[offset+1+4*i:])
	}
	return in, nil
}

// Instructions decodes the whole code section.
func (c *Chunk) Instructions() ([]Instr, error) {
	var out []Instr
	for offset := 0; offset < len(c.Code); {
		in, err := c.Decode(offset)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
		offset += in.Op.InstructionLen()
	}
	return out, nil
}

// Validate checks that every instruction decodes, every register operand
// lies inside the register file, every jump lands forward on an instruction
// boundary, and outputs are written only to temps or outputs.
func (c *Chunk) Validate() error {
	if int(c.ParamCount) != len(c.ParamNames) && len(c.ParamNames) != 0 {
		return fmt.Errorf("%w: %d parameter names for %d parameters", ErrMalformed, len(c.ParamNames), c.ParamCount)
	}
	instrs, err := c.Instructions()
	if err != nil {
		return err
	}
	starts := make(map[int]bool, len(instrs)+1)
	for _, in := range instrs {
		starts[in.Offset] = true
	}
	starts[len(c.Code)] = true

	nregs := uint32(c.RegCount())
	writable := c.TempBase()
	for _, in := range instrs {
		info := GetOpcodeInfo(in.Op)
		switch info.Class {
		case ClassJump:
			t := in.Target()
			if !starts[t] {
				return fmt.Errorf("%w: %s at %04X targets %04X, not an instruction", ErrMalformed, in.Op, in.Offset, t)
			}
			if t <= in.Offset {
				return fmt.Errorf("%w: backward jump at %04X", ErrMalformed, in.Offset)
			}
			if in.Op == OpJumpFalse && in.Args[0] >= nregs {
				return fmt.Errorf("%w: register %d out of range at %04X", ErrMalformed, in.Args[0], in.Offset)
			}
		case ClassNop:
		default:
			regs := info.Operands
			if info.Class == ClassPowi {
				regs = 2
			}
			for i := 0; i < regs; i++ {
				if in.Args[i] >= nregs {
					return fmt.Errorf("%w: register %d out of range at %04X", ErrMalformed, in.Args[i], in.Offset)
				}
			}
			if in.Args[0] < writable {
				return fmt.Errorf("%w: write to read-only register %d at %04X", ErrMalformed, in.Args[0], in.Offset)
			}
		}
	}
	return nil
}

// ErrRealOnly is returned when a chunk uses a real-only function in the
// complex domain.
var ErrRealOnly = errors.New("bytecode: function undefined in the complex domain")

// ErrComplexConstant is returned when a chunk with complex constants is used
// in the real domain.
var ErrComplexConstant = errors.New("bytecode: complex constant in the real domain")

// CheckDomain reports whether the chunk can be evaluated in domain d.
func (c *Chunk) CheckDomain(d Domain) error {
	if d == Real {
		for i, k := range c.Constants {
			if imag(k) != 0 {
				return fmt.Errorf("%w: constant %d = %v", ErrComplexConstant, i, k)
			}
		}
		return nil
	}
	instrs, err := c.Instructions()
	if err != nil {
		return err
	}
	for _, in := range instrs {
		if in.Op.IsRealOnly() {
			return fmt.Errorf("%w: %s at %04X", ErrRealOnly, in.Op, in.Offset)
		}
	}
	return nil
}

// Serialize encodes the chunk to bytes for storage/transport.
// Format:
//
//	[magic:4] [version:2] [flags:2]
//	[param_count:4] [param_names:...]
//	[temp_count:4] [output_count:4]
//	[const_count:4] [constants: re:8 im:8 ...]
//	[code_len:4] [code:...]
func (c *Chunk) Serialize() ([]byte, error) {
	estimatedSize := 32 + len(c.Code) + len(c.Constants)*16 + len(c.ParamNames)*8
	buf := make([]byte, 0, estimatedSize)

	buf = append(buf, BytecodeMagic...)
	buf = binary.BigEndian.AppendUint16(buf, c.Version)
	buf = binary.BigEndian.AppendUint16(buf, uint16(c.Flags))

	buf = binary.BigEndian.AppendUint32(buf, c.ParamCount)
	if len(c.ParamNames) != 0 && len(c.ParamNames) != int(c.ParamCount) {
		return nil, fmt.Errorf("%w: %d parameter names for %d parameters", ErrMalformed, len(c.ParamNames), c.ParamCount)
	}
	for i := 0; i < int(c.ParamCount); i++ {
		name := ""
		if i < len(c.ParamNames) {
			name = c.ParamNames[i]
		}
		if len(name) > math.MaxUint16 {
			return nil, fmt.Errorf("%w: parameter name %d too long", ErrMalformed, i)
		}
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(name)))
		buf = append(buf, name...)
	}

	buf = binary.BigEndian.AppendUint32(buf, c.TempCount)
	buf = binary.BigEndian.AppendUint32(buf, c.OutputCount)

	buf = binary.BigEndian.AppendUint32(buf, uint32(len(c.Constants)))
	for _, k := range c.Constants {
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(real(k)))
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(imag(k)))
	}

	buf = binary.BigEndian.AppendUint32(buf, uint32(len(c.Code)))
	buf = append(buf, c.Code...)

	return buf, nil
}

// Deserialize decodes and validates a chunk.
func Deserialize(data []byte) (*Chunk, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: need at least 8 bytes, got %d", ErrMalformed, len(data))
	}

	if string(data[0:4]) != string(BytecodeMagic) {
		return nil, fmt.Errorf("%w: magic %q, want %q", ErrMalformed, data[0:4], BytecodeMagic)
	}

	c := &Chunk{
		Version: binary.BigEndian.Uint16(data[4:6]),
		Flags:   ChunkFlags(binary.BigEndian.Uint16(data[6:8])),
	}
	if c.Version > BytecodeVersion {
		return nil, fmt.Errorf("%w: version %d is newer than supported version %d", ErrMalformed, c.Version, BytecodeVersion)
	}

	r := reader{data: data, pos: 8}

	c.ParamCount = r.u32("param count")
	if r.err == nil && int(c.ParamCount) > len(data) {
		return nil, fmt.Errorf("%w: implausible param count %d", ErrMalformed, c.ParamCount)
	}
	if r.err == nil {
		c.ParamNames = make([]string, c.ParamCount)
		for i := range c.ParamNames {
			n := r.u16("param name length")
			c.ParamNames[i] = string(r.bytes(int(n), "param name"))
		}
	}

	c.TempCount = r.u32("temp count")
	c.OutputCount = r.u32("output count")

	nconst := r.u32("constant count")
	if r.err == nil && int(nconst) > (len(data)-r.pos)/16 {
		return nil, fmt.Errorf("%w: constant pool of %d exceeds data", ErrMalformed, nconst)
	}
	if r.err == nil {
		c.Constants = make([]complex128, nconst)
		for i := range c.Constants {
			re := math.Float64frombits(r.u64("constant"))
			im := math.Float64frombits(r.u64("constant"))
			c.Constants[i] = complex(re, im)
		}
	}

	codeLen := r.u32("code length")
	code := r.bytes(int(codeLen), "code section")
	if r.err != nil {
		return nil, r.err
	}
	c.Code = append([]byte(nil), code...)

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// reader walks serialized data, latching the first error.
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) need(n int, what string) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.err = fmt.Errorf("%w: unexpected end reading %s at pos %d", ErrMalformed, what, r.pos)
		return false
	}
	return true
}

func (r *reader) u16(what string) uint16 {
	if !r.need(2, what) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v
}

func (r *reader) u32(what string) uint32 {
	if !r.need(4, what) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v
}

func (r *reader) u64(what string) uint64 {
	if !r.need(8, what) {
		return 0
	}
	v := binary.BigEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v
}

func (r *reader) bytes(n int, what string) []byte {
	if !r.need(n, what) {
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}
