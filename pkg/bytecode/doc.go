// Package bytecode defines the canonical register bytecode that every runner
// is built from, together with the adapter that produces it and a portable
// interpreter that executes it.
//
// # Register file
//
// A chunk addresses a single flat register file laid out as
//
//	[params | constants | temps | outputs]
//
// Parameters are copied in before a call and outputs copied out after it.
// Constant registers are loaded from the chunk's constant pool. Temps and
// outputs start at zero on every call. One extra temp past the ones the
// source stream names is reserved as a scratch accumulator.
//
// # Encoding
//
// Each instruction is a one-byte opcode followed by a fixed number of
// big-endian uint32 operands (see OpcodeInfo.Operands). Jumps carry absolute
// code offsets and must go forward, so every chunk terminates.
//
//   - Move, unary, binary and compare ops name their destination first.
//   - POWI carries a signed 32-bit exponent as its third operand.
//   - SELECT picks between two registers on the truth of a third.
//   - JUMP_FALSE tests a register and branches when it is zero.
//
// # Domains
//
// The same chunk runs in the real (float64) or complex (complex128) domain.
// Comparisons in the complex domain look at real parts only. A few functions
// (floor, min, atan2 and similar) exist only for reals; CheckDomain rejects
// them for complex evaluation.
//
// # Serialization
//
// Chunks serialize to a self-describing "SJBC" byte format used as the code
// section of compiled artifacts. Deserialize validates what it reads.
package bytecode
