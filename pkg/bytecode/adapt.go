package bytecode

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/symbridge/pkg/expr"
)

// Adapter error kinds. Every adapter failure is an *AdapterError wrapping one
// of these, so callers can test with errors.Is.
var (
	ErrUnknownOperand               = errors.New("unknown operand")
	ErrOutOfRangeRegister           = errors.New("register out of range")
	ErrUnregisteredExternalFunction = errors.New("unregistered external function")
)

// AdapterError reports the instruction that failed to translate.
type AdapterError struct {
	Index int    // Instruction index in the source stream, -1 for stream-level errors
	Instr string // Rendered instruction
	Err   error
}

func (e *AdapterError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("bytecode: adapt: %v", e.Err)
	}
	return fmt.Sprintf("bytecode: adapt: instruction %d (%s): %v", e.Index, e.Instr, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// adapter translates an evaluator into a chunk.
type adapter struct {
	ev    *expr.Evaluator
	chunk *Chunk

	ntemps  int
	scratch uint32
	defined []bool

	labels map[int]int
	fixups []fixup

	index int
}

type fixup struct {
	placeholder int
	label       int
	index       int
}

// Adapt validates an exported evaluator and translates it into a chunk.
// It has no side effects; ev is not modified.
func Adapt(ev *expr.Evaluator) (*Chunk, error) {
	if ev == nil {
		return nil, &AdapterError{Index: -1, Err: fmt.Errorf("%w: nil evaluator", ErrUnknownOperand)}
	}
	a := &adapter{
		ev:     ev,
		chunk:  NewChunk(),
		ntemps: ev.NumTemps(),
		labels: make(map[int]int),
	}
	c := a.chunk
	c.ParamCount = uint32(len(ev.Params))
	c.ParamNames = append([]string(nil), ev.Params...)
	c.Constants = append([]complex128(nil), ev.Constants...)
	// One extra temporary serves as the accumulator for aliased reductions.
	c.TempCount = uint32(a.ntemps + 1)
	c.OutputCount = uint32(ev.NumOutputs())
	a.scratch = c.TempBase() + uint32(a.ntemps)

	a.defined = make([]bool, c.RegCount())
	for i := uint32(0); i < c.TempBase(); i++ {
		a.defined[i] = true
	}

	for i, in := range ev.Instructions {
		a.index = i
		if err := a.translate(in); err != nil {
			return nil, &AdapterError{Index: i, Instr: in.String(), Err: err}
		}
	}

	for _, f := range a.fixups {
		target, ok := a.labels[f.label]
		if !ok {
			in := ev.Instructions[f.index]
			return nil, &AdapterError{Index: f.index, Instr: in.String(),
				Err: fmt.Errorf("%w: label L%d is never placed", ErrUnknownOperand, f.label)}
		}
		if target <= f.placeholder {
			in := ev.Instructions[f.index]
			return nil, &AdapterError{Index: f.index, Instr: in.String(),
				Err: fmt.Errorf("%w: backward jump to L%d", ErrUnknownOperand, f.label)}
		}
		c.PatchJumpTo(f.placeholder, target)
	}

	if err := c.Validate(); err != nil {
		return nil, &AdapterError{Index: -1, Err: err}
	}
	return c, nil
}

// slot maps a source slot to its register index.
func (a *adapter) slot(s expr.Slot) (uint32, error) {
	c := a.chunk
	if s.Index < 0 {
		return 0, fmt.Errorf("%w: %s", ErrOutOfRangeRegister, s)
	}
	var limit int
	var base uint32
	switch s.Kind {
	case expr.SlotParam:
		limit, base = int(c.ParamCount), 0
	case expr.SlotConst:
		limit, base = len(c.Constants), c.ConstBase()
	case expr.SlotTemp:
		limit, base = a.ntemps, c.TempBase()
	case expr.SlotOut:
		limit, base = int(c.OutputCount), c.OutBase()
	default:
		return 0, fmt.Errorf("%w: slot kind %d", ErrUnknownOperand, s.Kind)
	}
	if s.Index >= limit {
		return 0, fmt.Errorf("%w: %s (have %d)", ErrOutOfRangeRegister, s, limit)
	}
	return base + uint32(s.Index), nil
}

// read maps a slot that must already hold a value.
func (a *adapter) read(s expr.Slot) (uint32, error) {
	r, err := a.slot(s)
	if err != nil {
		return 0, err
	}
	if !a.defined[r] {
		return 0, fmt.Errorf("%w: %s read before it is written", ErrUnknownOperand, s)
	}
	return r, nil
}

// write maps a destination slot and marks it defined.
func (a *adapter) write(s expr.Slot) (uint32, error) {
	if s.Kind == expr.SlotParam || s.Kind == expr.SlotConst {
		return 0, fmt.Errorf("%w: cannot write %s", ErrOutOfRangeRegister, s)
	}
	r, err := a.slot(s)
	if err != nil {
		return 0, err
	}
	a.defined[r] = true
	return r, nil
}

func (a *adapter) reads(slots []expr.Slot) ([]uint32, error) {
	regs := make([]uint32, len(slots))
	for i, s := range slots {
		r, err := a.read(s)
		if err != nil {
			return nil, err
		}
		regs[i] = r
	}
	return regs, nil
}

func arity(in expr.Instruction, n int) error {
	if len(in.Args) != n {
		return fmt.Errorf("%w: %s takes %d operands, got %d", ErrUnknownOperand, in.Op, n, len(in.Args))
	}
	return nil
}

func (a *adapter) translate(in expr.Instruction) error {
	c := a.chunk
	switch in.Op {
	case expr.OpAdd:
		return a.reduce(OpAdd, in)
	case expr.OpMul:
		return a.reduce(OpMul, in)

	case expr.OpPow:
		if err := arity(in, 1); err != nil {
			return err
		}
		if in.Exp > math.MaxInt32 || in.Exp < math.MinInt32 {
			return fmt.Errorf("%w: exponent %d exceeds 32 bits", ErrUnknownOperand, in.Exp)
		}
		src, err := a.read(in.Args[0])
		if err != nil {
			return err
		}
		dst, err := a.write(in.Dst)
		if err != nil {
			return err
		}
		c.Emit(OpPowi, dst, src, uint32(int32(in.Exp)))

	case expr.OpPowf:
		return a.call(OpPow, in, 2)

	case expr.OpAssign:
		return a.call(OpMov, in, 1)

	case expr.OpFun:
		op, ok := builtinOps[in.Func]
		if !ok {
			return fmt.Errorf("%w: builtin %s", ErrUnknownOperand, in.Func)
		}
		return a.call(op, in, 1)

	case expr.OpJoin:
		return a.call(OpSelect, in, 3)

	case expr.OpLabel:
		if _, dup := a.labels[in.Label]; dup {
			return fmt.Errorf("%w: label L%d placed twice", ErrUnknownOperand, in.Label)
		}
		a.labels[in.Label] = c.CurrentOffset()

	case expr.OpIfElse:
		if err := arity(in, 1); err != nil {
			return err
		}
		cond, err := a.read(in.Args[0])
		if err != nil {
			return err
		}
		p := c.EmitJump(OpJumpFalse, cond)
		a.fixups = append(a.fixups, fixup{placeholder: p, label: in.Label, index: a.index})

	case expr.OpGoto:
		p := c.EmitJump(OpJump)
		a.fixups = append(a.fixups, fixup{placeholder: p, label: in.Label, index: a.index})

	case expr.OpExternalFun:
		n, registered := a.ev.Functions.Lookup(in.Name)
		if !registered {
			return fmt.Errorf("%w: %q", ErrUnregisteredExternalFunction, in.Name)
		}
		op, libArity, ok := LookupExternal(in.Name)
		if !ok {
			return fmt.Errorf("%w: no implementation for external function %q", ErrUnknownOperand, in.Name)
		}
		if n != libArity {
			return fmt.Errorf("%w: %q registered with arity %d, library arity is %d", ErrUnknownOperand, in.Name, n, libArity)
		}
		c.Flags |= ChunkFlagHasExternals
		return a.call(op, in, libArity)

	default:
		return fmt.Errorf("%w: opcode %s", ErrUnknownOperand, in.Op)
	}
	return nil
}

var builtinOps = map[expr.Builtin]Opcode{
	expr.BuiltinExp:  OpExp,
	expr.BuiltinLog:  OpLog,
	expr.BuiltinSin:  OpSin,
	expr.BuiltinCos:  OpCos,
	expr.BuiltinSqrt: OpSqrt,
	expr.BuiltinAbs:  OpAbs,
	expr.BuiltinConj: OpConj,
}

// call emits a fixed-arity register instruction dst = op(args...).
func (a *adapter) call(op Opcode, in expr.Instruction, n int) error {
	if err := arity(in, n); err != nil {
		return err
	}
	src, err := a.reads(in.Args)
	if err != nil {
		return err
	}
	dst, err := a.write(in.Dst)
	if err != nil {
		return err
	}
	a.chunk.Emit(op, append([]uint32{dst}, src...)...)
	return nil
}

// reduce lowers an n-ary sum or product into a chain of binary operations.
// When the destination is also a later operand, the chain accumulates in the
// scratch register so the operand is not clobbered before it is read.
func (a *adapter) reduce(op Opcode, in expr.Instruction) error {
	if len(in.Args) == 0 {
		return fmt.Errorf("%w: %s with no operands", ErrUnknownOperand, in.Op)
	}
	src, err := a.reads(in.Args)
	if err != nil {
		return err
	}
	dst, err := a.write(in.Dst)
	if err != nil {
		return err
	}
	c := a.chunk
	if len(src) == 1 {
		c.Emit(OpMov, dst, src[0])
		return nil
	}

	acc := dst
	for _, r := range src[2:] {
		if r == dst {
			acc = a.scratch
			break
		}
	}
	c.Emit(op, acc, src[0], src[1])
	for _, r := range src[2:] {
		c.Emit(op, acc, acc, r)
	}
	if acc != dst {
		c.Emit(OpMov, dst, acc)
	}
	return nil
}
