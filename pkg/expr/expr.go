// Package expr models the instruction streams exported by a symbolic
// evaluator: an ordered list of register instructions over parameter,
// constant, temporary and output slots.
//
// The stream is produced upstream (a computer-algebra system performs the
// parsing and common-subexpression elimination) and is consumed read-only by
// the bytecode adapter. The Builder in this package produces the same shape
// by hand for callers without such a system.
package expr

import (
	"fmt"
	"strings"
)

// SlotKind identifies the storage class a Slot refers to.
type SlotKind uint8

const (
	SlotParam SlotKind = iota // Named input parameter
	SlotConst                 // Constant pool entry
	SlotTemp                  // Intermediate register
	SlotOut                   // Output register
)

// String returns a short name for the slot kind.
func (k SlotKind) String() string {
	switch k {
	case SlotParam:
		return "param"
	case SlotConst:
		return "const"
	case SlotTemp:
		return "temp"
	case SlotOut:
		return "out"
	default:
		return fmt.Sprintf("SlotKind(%d)", k)
	}
}

// Slot is an operand reference.
type Slot struct {
	Kind  SlotKind
	Index int
}

// Param returns a reference to input parameter i.
func Param(i int) Slot { return Slot{Kind: SlotParam, Index: i} }

// Const returns a reference to constant pool entry i.
func Const(i int) Slot { return Slot{Kind: SlotConst, Index: i} }

// Temp returns a reference to temporary register i.
func Temp(i int) Slot { return Slot{Kind: SlotTemp, Index: i} }

// Out returns a reference to output register i.
func Out(i int) Slot { return Slot{Kind: SlotOut, Index: i} }

func (s Slot) String() string {
	return fmt.Sprintf("%s[%d]", s.Kind, s.Index)
}

// Builtin is one of the functions every evaluator understands natively.
type Builtin uint8

const (
	BuiltinExp Builtin = iota
	BuiltinLog
	BuiltinSin
	BuiltinCos
	BuiltinSqrt
	BuiltinAbs
	BuiltinConj
)

var builtinNames = [...]string{"exp", "log", "sin", "cos", "sqrt", "abs", "conj"}

// String returns the builtin's function name.
func (b Builtin) String() string {
	if int(b) < len(builtinNames) {
		return builtinNames[b]
	}
	return fmt.Sprintf("Builtin(%d)", b)
}

// Op identifies an instruction kind.
type Op uint8

const (
	OpAdd         Op = iota // Dst = sum(Args)
	OpMul                   // Dst = product(Args)
	OpPow                   // Dst = Args[0] ^ Exp (integer power)
	OpPowf                  // Dst = Args[0] ^ Args[1]
	OpAssign                // Dst = Args[0]
	OpFun                   // Dst = Func(Args[0])
	OpJoin                  // Dst = Args[0] ? Args[1] : Args[2]
	OpLabel                 // Jump target Label
	OpIfElse                // if !Args[0] goto Label
	OpGoto                  // goto Label
	OpExternalFun           // Dst = Name(Args...)
)

var opNames = [...]string{
	"add", "mul", "pow", "powf", "assign", "fun", "join",
	"label", "ifelse", "goto", "external",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("Op(%d)", op)
}

// Instruction is one step of an exported evaluator.
type Instruction struct {
	Op    Op
	Dst   Slot
	Args  []Slot
	Exp   int64   // OpPow exponent
	Func  Builtin // OpFun function
	Name  string  // OpExternalFun function name
	Label int     // OpLabel, OpIfElse, OpGoto target

	// Real marks instructions the producer proved to be real valued.
	// It is a hint only.
	Real bool
}

func (in Instruction) String() string {
	args := make([]string, len(in.Args))
	for i, a := range in.Args {
		args[i] = a.String()
	}
	list := strings.Join(args, ", ")
	switch in.Op {
	case OpPow:
		return fmt.Sprintf("%s = pow(%s, %d)", in.Dst, list, in.Exp)
	case OpFun:
		return fmt.Sprintf("%s = %s(%s)", in.Dst, in.Func, list)
	case OpExternalFun:
		return fmt.Sprintf("%s = %s(%s)", in.Dst, in.Name, list)
	case OpLabel:
		return fmt.Sprintf("L%d:", in.Label)
	case OpIfElse:
		return fmt.Sprintf("ifnot %s goto L%d", list, in.Label)
	case OpGoto:
		return fmt.Sprintf("goto L%d", in.Label)
	default:
		return fmt.Sprintf("%s = %s(%s)", in.Dst, in.Op, list)
	}
}

// Evaluator is an exported instruction stream together with the data needed
// to interpret it.
type Evaluator struct {
	Params       []string
	Instructions []Instruction
	Constants    []complex128

	// OutputCount is the number of output registers. Zero means "derive
	// from the highest Out slot written".
	OutputCount int

	// Functions lists the external functions the stream may call.
	Functions *FunctionMap
}

// NumOutputs returns the output count, deriving it from the instructions
// when OutputCount is unset.
func (ev *Evaluator) NumOutputs() int {
	if ev.OutputCount > 0 {
		return ev.OutputCount
	}
	n := 0
	for _, in := range ev.Instructions {
		if in.Dst.Kind == SlotOut && in.Op != OpLabel && in.Op != OpIfElse && in.Op != OpGoto {
			if in.Dst.Index+1 > n {
				n = in.Dst.Index + 1
			}
		}
	}
	return n
}

// NumTemps returns one more than the highest temporary index referenced.
func (ev *Evaluator) NumTemps() int {
	n := 0
	visit := func(s Slot) {
		if s.Kind == SlotTemp && s.Index+1 > n {
			n = s.Index + 1
		}
	}
	for _, in := range ev.Instructions {
		visit(in.Dst)
		for _, a := range in.Args {
			visit(a)
		}
	}
	return n
}

// MapCoefficients returns a copy of ev whose constants have been passed
// through f.
func (ev *Evaluator) MapCoefficients(f func(complex128) complex128) *Evaluator {
	out := *ev
	out.Constants = make([]complex128, len(ev.Constants))
	for i, c := range ev.Constants {
		out.Constants[i] = f(c)
	}
	return &out
}

// RealCoefficients drops the imaginary part of every constant.
func RealCoefficients(c complex128) complex128 {
	return complex(real(c), 0)
}
