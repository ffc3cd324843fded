package bytecode

import "fmt"

// Opcode represents a register-machine instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Moves (0x00-0x0F)
	// ========================================================================

	OpNop Opcode = 0x00 // No operation
	OpMov Opcode = 0x01 // r[dst] = r[a]

	// ========================================================================
	// Arithmetic (0x10-0x1F)
	// ========================================================================

	OpAdd  Opcode = 0x10 // r[dst] = r[a] + r[b]
	OpSub  Opcode = 0x11 // r[dst] = r[a] - r[b]
	OpMul  Opcode = 0x12 // r[dst] = r[a] * r[b]
	OpDiv  Opcode = 0x13 // r[dst] = r[a] / r[b]
	OpNeg  Opcode = 0x14 // r[dst] = -r[a]
	OpPowi Opcode = 0x15 // r[dst] = r[a] ^ imm (imm is a signed 32-bit exponent)
	OpPow  Opcode = 0x16 // r[dst] = r[a] ^ r[b]

	// ========================================================================
	// Unary functions (0x20-0x3F)
	// ========================================================================

	OpSqrt  Opcode = 0x20
	OpExp   Opcode = 0x21
	OpLog   Opcode = 0x22
	OpSin   Opcode = 0x23
	OpCos   Opcode = 0x24
	OpTan   Opcode = 0x25
	OpSinh  Opcode = 0x26
	OpCosh  Opcode = 0x27
	OpTanh  Opcode = 0x28
	OpAsin  Opcode = 0x29
	OpAcos  Opcode = 0x2A
	OpAtan  Opcode = 0x2B
	OpAsinh Opcode = 0x2C
	OpAcosh Opcode = 0x2D
	OpAtanh Opcode = 0x2E
	OpAbs   Opcode = 0x2F
	OpConj  Opcode = 0x30
	OpLog10 Opcode = 0x31
	OpLog2  Opcode = 0x32
	OpExpm1 Opcode = 0x33
	OpLog1p Opcode = 0x34
	OpCbrt  Opcode = 0x35 // real only
	OpFloor Opcode = 0x36 // real only
	OpCeil  Opcode = 0x37 // real only
	OpRound Opcode = 0x38 // real only
	OpSign  Opcode = 0x39 // real only

	// ========================================================================
	// Binary functions (0x40-0x4F)
	// ========================================================================

	OpAtan2 Opcode = 0x40 // real only
	OpMin   Opcode = 0x41 // real only
	OpMax   Opcode = 0x42 // real only
	OpHypot Opcode = 0x43 // real only

	// ========================================================================
	// Comparison (0x50-0x5F) - result is 1 or 0; complex values compare by
	// real part
	// ========================================================================

	OpLt Opcode = 0x50
	OpLe Opcode = 0x51
	OpGt Opcode = 0x52
	OpGe Opcode = 0x53
	OpEq Opcode = 0x54
	OpNe Opcode = 0x55

	// ========================================================================
	// Logical (0x60-0x6F)
	// ========================================================================

	OpAnd    Opcode = 0x60
	OpOr     Opcode = 0x61
	OpNot    Opcode = 0x62
	OpSelect Opcode = 0x63 // r[dst] = r[a] ? r[b] : r[c]

	// ========================================================================
	// Control flow (0x80-0x8F) - targets are absolute code offsets
	// ========================================================================

	OpJump      Opcode = 0x80 // goto target
	OpJumpFalse Opcode = 0x81 // if !r[a] goto target
)

// OpcodeClass groups opcodes by operand shape.
type OpcodeClass uint8

const (
	ClassMove OpcodeClass = iota
	ClassBinary
	ClassUnary
	ClassPowi
	ClassCompare
	ClassSelect
	ClassJump
	ClassNop
)

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name     string      // Human-readable name
	Class    OpcodeClass // Operand shape
	Operands int         // Number of 32-bit operands following the opcode
	RealOnly bool        // Undefined in the complex domain
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpNop: {"NOP", ClassNop, 0, false},
	OpMov: {"MOV", ClassMove, 2, false},

	OpAdd:  {"ADD", ClassBinary, 3, false},
	OpSub:  {"SUB", ClassBinary, 3, false},
	OpMul:  {"MUL", ClassBinary, 3, false},
	OpDiv:  {"DIV", ClassBinary, 3, false},
	OpNeg:  {"NEG", ClassUnary, 2, false},
	OpPowi: {"POWI", ClassPowi, 3, false},
	OpPow:  {"POW", ClassBinary, 3, false},

	OpSqrt:  {"SQRT", ClassUnary, 2, false},
	OpExp:   {"EXP", ClassUnary, 2, false},
	OpLog:   {"LOG", ClassUnary, 2, false},
	OpSin:   {"SIN", ClassUnary, 2, false},
	OpCos:   {"COS", ClassUnary, 2, false},
	OpTan:   {"TAN", ClassUnary, 2, false},
	OpSinh:  {"SINH", ClassUnary, 2, false},
	OpCosh:  {"COSH", ClassUnary, 2, false},
	OpTanh:  {"TANH", ClassUnary, 2, false},
	OpAsin:  {"ASIN", ClassUnary, 2, false},
	OpAcos:  {"ACOS", ClassUnary, 2, false},
	OpAtan:  {"ATAN", ClassUnary, 2, false},
	OpAsinh: {"ASINH", ClassUnary, 2, false},
	OpAcosh: {"ACOSH", ClassUnary, 2, false},
	OpAtanh: {"ATANH", ClassUnary, 2, false},
	OpAbs:   {"ABS", ClassUnary, 2, false},
	OpConj:  {"CONJ", ClassUnary, 2, false},
	OpLog10: {"LOG10", ClassUnary, 2, false},
	OpLog2:  {"LOG2", ClassUnary, 2, false},
	OpExpm1: {"EXPM1", ClassUnary, 2, false},
	OpLog1p: {"LOG1P", ClassUnary, 2, false},
	OpCbrt:  {"CBRT", ClassUnary, 2, true},
	OpFloor: {"FLOOR", ClassUnary, 2, true},
	OpCeil:  {"CEIL", ClassUnary, 2, true},
	OpRound: {"ROUND", ClassUnary, 2, true},
	OpSign:  {"SIGN", ClassUnary, 2, true},

	OpAtan2: {"ATAN2", ClassBinary, 3, true},
	OpMin:   {"MIN", ClassBinary, 3, true},
	OpMax:   {"MAX", ClassBinary, 3, true},
	OpHypot: {"HYPOT", ClassBinary, 3, true},

	OpLt: {"LT", ClassCompare, 3, false},
	OpLe: {"LE", ClassCompare, 3, false},
	OpGt: {"GT", ClassCompare, 3, false},
	OpGe: {"GE", ClassCompare, 3, false},
	OpEq: {"EQ", ClassCompare, 3, false},
	OpNe: {"NE", ClassCompare, 3, false},

	OpAnd:    {"AND", ClassBinary, 3, false},
	OpOr:     {"OR", ClassBinary, 3, false},
	OpNot:    {"NOT", ClassUnary, 2, false},
	OpSelect: {"SELECT", ClassSelect, 4, false},

	OpJump:      {"JUMP", ClassJump, 1, false},
	OpJumpFalse: {"JUMP_FALSE", ClassJump, 2, false},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op)), Class: ClassNop}
}

// IsValid reports whether op is a defined opcode.
func (op Opcode) IsValid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// OperandLen returns the number of operand bytes for this opcode.
func (op Opcode) OperandLen() int {
	return 4 * GetOpcodeInfo(op).Operands
}

// InstructionLen returns the total length of an instruction (1 + operand bytes).
func (op Opcode) InstructionLen() int {
	return 1 + op.OperandLen()
}

// IsJump returns true if this opcode is a jump instruction.
func (op Opcode) IsJump() bool {
	return op == OpJump || op == OpJumpFalse
}

// IsRealOnly returns true if the opcode has no complex-domain meaning.
func (op Opcode) IsRealOnly() bool {
	return GetOpcodeInfo(op).RealOnly
}

// AllOpcodes returns a slice of all defined opcodes.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
