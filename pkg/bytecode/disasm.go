package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing for the chunk.
func (c *Chunk) Disassemble() string {
	return c.DisassembleWithName("")
}

// DisassembleWithName returns a human-readable listing with a name header.
func (c *Chunk) DisassembleWithName(name string) string {
	var sb strings.Builder

	if name != "" {
		fmt.Fprintf(&sb, "; === %s ===\n", name)
	}
	fmt.Fprintf(&sb, "; SymJit Bytecode v%d\n", c.Version)
	fmt.Fprintf(&sb, "; Flags: 0x%04X", uint16(c.Flags))
	if c.Flags&ChunkFlagHasBranches != 0 {
		sb.WriteString(" [BRANCHES]")
	}
	if c.Flags&ChunkFlagHasExternals != 0 {
		sb.WriteString(" [EXTERNALS]")
	}
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "; Registers: %d params, %d constants, %d temps, %d outputs\n",
		c.ParamCount, len(c.Constants), c.TempCount, c.OutputCount)
	if len(c.ParamNames) > 0 {
		fmt.Fprintf(&sb, "; Parameters: %s\n", strings.Join(c.ParamNames, ", "))
	}
	sb.WriteString("\n")

	if len(c.Constants) > 0 {
		sb.WriteString("; Constants:\n")
		for i, k := range c.Constants {
			fmt.Fprintf(&sb, ";   %-6s = %s\n", c.RegName(c.ConstBase()+uint32(i)), formatConstant(k))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("; Code:\n")
	for _, line := range c.DisassembleToLines() {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

// RegName returns the symbolic name of a register: p<i>, k<i>, t<i> or o<i>.
// Parameters with names are shown by name.
func (c *Chunk) RegName(r uint32) string {
	switch {
	case r < c.ConstBase():
		if int(r) < len(c.ParamNames) && c.ParamNames[r] != "" {
			return c.ParamNames[r]
		}
		return fmt.Sprintf("p%d", r)
	case r < c.TempBase():
		return fmt.Sprintf("k%d", r-c.ConstBase())
	case r < c.OutBase():
		return fmt.Sprintf("t%d", r-c.TempBase())
	case r < uint32(c.RegCount()):
		return fmt.Sprintf("o%d", r-c.OutBase())
	default:
		return fmt.Sprintf("r%d?", r)
	}
}

func formatConstant(k complex128) string {
	if imag(k) == 0 {
		return fmt.Sprintf("%g", real(k))
	}
	return fmt.Sprintf("%g", k)
}

// disassembleInstruction formats the instruction at offset and returns its
// length. Undecodable bytes are shown as a one-byte pseudo instruction.
func (c *Chunk) disassembleInstruction(offset int) (string, int) {
	if offset >= len(c.Code) {
		return "<end of code>", 0
	}
	in, err := c.Decode(offset)
	if err != nil {
		return fmt.Sprintf(".byte 0x%02X", c.Code[offset]), 1
	}
	name := in.Op.String()
	n := in.Op.InstructionLen()
	a := in.Args

	switch GetOpcodeInfo(in.Op).Class {
	case ClassNop:
		return name, n
	case ClassMove, ClassUnary:
		return fmt.Sprintf("%-10s %s, %s", name, c.RegName(a[0]), c.RegName(a[1])), n
	case ClassBinary, ClassCompare:
		return fmt.Sprintf("%-10s %s, %s, %s", name, c.RegName(a[0]), c.RegName(a[1]), c.RegName(a[2])), n
	case ClassPowi:
		return fmt.Sprintf("%-10s %s, %s, #%d", name, c.RegName(a[0]), c.RegName(a[1]), in.Imm()), n
	case ClassSelect:
		return fmt.Sprintf("%-10s %s, %s ? %s : %s", name, c.RegName(a[0]), c.RegName(a[1]), c.RegName(a[2]), c.RegName(a[3])), n
	case ClassJump:
		if in.Op == OpJump {
			return fmt.Sprintf("%-10s -> %04X", name, in.Target()), n
		}
		return fmt.Sprintf("%-10s %s -> %04X", name, c.RegName(a[0]), in.Target()), n
	}
	return name, n
}

// DisassembleInstruction returns a human-readable representation of a single instruction.
func (c *Chunk) DisassembleInstruction(offset int) string {
	line, _ := c.disassembleInstruction(offset)
	return line
}

// DisassembleToLines returns the code listing as a slice of lines.
func (c *Chunk) DisassembleToLines() []string {
	var lines []string
	offset := 0
	for offset < len(c.Code) {
		line, instrLen := c.disassembleInstruction(offset)
		lines = append(lines, fmt.Sprintf("%04X  %s", offset, line))
		offset += instrLen
	}
	return lines
}

// InstructionCount returns the number of instructions in the chunk.
// Note: This iterates through all code, so it's O(n).
func (c *Chunk) InstructionCount() int {
	count := 0
	offset := 0
	for offset < len(c.Code) {
		op := Opcode(c.Code[offset])
		l := op.InstructionLen()
		if !op.IsValid() {
			l = 1
		}
		offset += l
		count++
	}
	return count
}
