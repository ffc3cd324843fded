package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

// ErrArgumentCount is returned when Run receives buffers of the wrong size.
var ErrArgumentCount = errors.New("bytecode: argument count mismatch")

// infoByOp mirrors opcodeInfoTable as an array for the dispatch loop.
var infoByOp [256]OpcodeInfo

func init() {
	for op, info := range opcodeInfoTable {
		infoByOp[op] = info
	}
}

// Interpreter executes a chunk op by op against a register file.
//
// The chunk and constant registers are read-only after construction. Each
// Run draws its own register file from a pool, so one Interpreter may be
// used from many goroutines at once.
type Interpreter[T Scalar] struct {
	chunk  *Chunk
	lib    *Library[T]
	consts []T
	frames sync.Pool
}

// NewInterpreter validates c for the domain of T and prepares it for
// execution.
func NewInterpreter[T Scalar](c *Chunk) (*Interpreter[T], error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := c.CheckDomain(DomainOf[T]()); err != nil {
		return nil, err
	}
	in := &Interpreter[T]{
		chunk:  c,
		lib:    LibraryFor[T](),
		consts: make([]T, len(c.Constants)),
	}
	for i, k := range c.Constants {
		in.consts[i] = FromComplex[T](k)
	}
	n := c.RegCount()
	in.frames.New = func() any {
		regs := make([]T, n)
		return &regs
	}
	return in, nil
}

// Chunk returns the chunk being interpreted.
func (in *Interpreter[T]) Chunk() *Chunk { return in.chunk }

// Run evaluates the chunk once. len(args) must equal the parameter count and
// len(outs) the output count.
func (in *Interpreter[T]) Run(args, outs []T) error {
	c := in.chunk
	if len(args) != int(c.ParamCount) {
		return fmt.Errorf("%w: got %d arguments, want %d", ErrArgumentCount, len(args), c.ParamCount)
	}
	if len(outs) != int(c.OutputCount) {
		return fmt.Errorf("%w: got %d outputs, want %d", ErrArgumentCount, len(outs), c.OutputCount)
	}

	frame := in.frames.Get().(*[]T)
	regs := *frame
	copy(regs, args)
	copy(regs[c.ConstBase():], in.consts)
	clear(regs[c.TempBase():])

	in.run(regs)

	copy(outs, regs[c.OutBase():])
	in.frames.Put(frame)
	return nil
}

// run is the main dispatch loop. The chunk was validated at construction so
// operands are known to be in range.
func (in *Interpreter[T]) run(regs []T) {
	code := in.chunk.Code
	lib := in.lib
	for ip := 0; ip < len(code); {
		op := Opcode(code[ip])
		info := &infoByOp[op]
		operand := func(k int) uint32 {
			return binary.BigEndian.Uint32(code[ip+1+4*k:])
		}

		switch info.Class {
		case ClassNop:
		case ClassMove:
			regs[operand(0)] = regs[operand(1)]
		case ClassUnary:
			regs[operand(0)] = lib.unary[op](regs[operand(1)])
		case ClassBinary, ClassCompare:
			regs[operand(0)] = lib.binary[op](regs[operand(1)], regs[operand(2)])
		case ClassPowi:
			regs[operand(0)] = Powi(regs[operand(1)], int32(operand(2)))
		case ClassSelect:
			if Truth(regs[operand(1)]) {
				regs[operand(0)] = regs[operand(2)]
			} else {
				regs[operand(0)] = regs[operand(3)]
			}
		case ClassJump:
			if op == OpJump {
				ip = int(operand(0))
				continue
			}
			if !Truth(regs[operand(0)]) {
				ip = int(operand(1))
				continue
			}
		}
		ip += 1 + 4*info.Operands
	}
}
