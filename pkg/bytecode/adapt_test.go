package bytecode

import (
	"errors"
	"testing"

	"github.com/chazu/symbridge/pkg/expr"
)

// xPlusYSquared builds x + y^2.
func xPlusYSquared() *expr.Evaluator {
	b := expr.NewBuilder("x", "y")
	b.Output(b.Add(b.Var("x"), b.Pow(b.Var("y"), 2)))
	return b.Build()
}

func TestAdaptLayout(t *testing.T) {
	c, err := Adapt(xPlusYSquared())
	if err != nil {
		t.Fatalf("Adapt: %v", err)
	}
	if c.ParamCount != 2 {
		t.Errorf("ParamCount = %d, want 2", c.ParamCount)
	}
	if c.OutputCount != 1 {
		t.Errorf("OutputCount = %d, want 1", c.OutputCount)
	}
	// Two builder temps plus the scratch register.
	if c.TempCount != 3 {
		t.Errorf("TempCount = %d, want 3", c.TempCount)
	}
	if c.HasBranches() {
		t.Error("straight-line code should not be flagged as branching")
	}
	instrs, err := c.Instructions()
	if err != nil {
		t.Fatalf("Instructions: %v", err)
	}
	want := []Opcode{OpPowi, OpAdd, OpMov}
	if len(instrs) != len(want) {
		t.Fatalf("got %d instructions, want %d", len(instrs), len(want))
	}
	for i, in := range instrs {
		if in.Op != want[i] {
			t.Errorf("instruction %d = %s, want %s", i, in.Op, want[i])
		}
	}
	if instrs[0].Imm() != 2 {
		t.Errorf("POWI exponent = %d, want 2", instrs[0].Imm())
	}
}

func TestAdaptDoesNotModifyInput(t *testing.T) {
	ev := xPlusYSquared()
	n := len(ev.Instructions)
	if _, err := Adapt(ev); err != nil {
		t.Fatalf("Adapt: %v", err)
	}
	if len(ev.Instructions) != n {
		t.Errorf("instruction count changed from %d to %d", n, len(ev.Instructions))
	}
}

func TestAdaptErrors(t *testing.T) {
	tests := []struct {
		name string
		ev   *expr.Evaluator
		want error
	}{
		{
			name: "read before write",
			ev: &expr.Evaluator{
				Params: []string{"x"},
				Instructions: []expr.Instruction{
					{Op: expr.OpAdd, Dst: expr.Out(0), Args: []expr.Slot{expr.Param(0), expr.Temp(0)}},
				},
			},
			want: ErrUnknownOperand,
		},
		{
			name: "parameter out of range",
			ev: &expr.Evaluator{
				Params: []string{"x"},
				Instructions: []expr.Instruction{
					{Op: expr.OpAssign, Dst: expr.Out(0), Args: []expr.Slot{expr.Param(3)}},
				},
			},
			want: ErrOutOfRangeRegister,
		},
		{
			name: "constant out of range",
			ev: &expr.Evaluator{
				Params: []string{"x"},
				Instructions: []expr.Instruction{
					{Op: expr.OpAssign, Dst: expr.Out(0), Args: []expr.Slot{expr.Const(0)}},
				},
			},
			want: ErrOutOfRangeRegister,
		},
		{
			name: "write to parameter",
			ev: &expr.Evaluator{
				Params: []string{"x"},
				Instructions: []expr.Instruction{
					{Op: expr.OpAssign, Dst: expr.Param(0), Args: []expr.Slot{expr.Param(0)}},
				},
			},
			want: ErrOutOfRangeRegister,
		},
		{
			name: "unregistered external",
			ev: &expr.Evaluator{
				Params: []string{"x"},
				Instructions: []expr.Instruction{
					{Op: expr.OpExternalFun, Dst: expr.Out(0), Args: []expr.Slot{expr.Param(0)}, Name: "tan"},
				},
			},
			want: ErrUnregisteredExternalFunction,
		},
		{
			name: "empty sum",
			ev: &expr.Evaluator{
				Params: []string{"x"},
				Instructions: []expr.Instruction{
					{Op: expr.OpAdd, Dst: expr.Out(0)},
				},
			},
			want: ErrUnknownOperand,
		},
		{
			name: "label never placed",
			ev: &expr.Evaluator{
				Params: []string{"x"},
				Instructions: []expr.Instruction{
					{Op: expr.OpGoto, Label: 7},
					{Op: expr.OpAssign, Dst: expr.Out(0), Args: []expr.Slot{expr.Param(0)}},
				},
			},
			want: ErrUnknownOperand,
		},
		{
			name: "backward jump",
			ev: &expr.Evaluator{
				Params: []string{"x"},
				Instructions: []expr.Instruction{
					{Op: expr.OpLabel, Label: 0},
					{Op: expr.OpAssign, Dst: expr.Out(0), Args: []expr.Slot{expr.Param(0)}},
					{Op: expr.OpGoto, Label: 0},
				},
			},
			want: ErrUnknownOperand,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Adapt(tt.ev)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Adapt() error = %v, want %v", err, tt.want)
			}
			var ae *AdapterError
			if !errors.As(err, &ae) {
				t.Errorf("error %T is not an *AdapterError", err)
			}
		})
	}
}

func TestAdaptExternalArity(t *testing.T) {
	fm := expr.NewFunctionMap()
	if err := fm.AddExternalFunction("atan2", 1); err != nil {
		t.Fatal(err)
	}
	b := expr.NewBuilder("x").WithFunctions(fm)
	b.Output(b.Call("atan2", b.Var("x")))
	if _, err := Adapt(b.Build()); !errors.Is(err, ErrUnknownOperand) {
		t.Errorf("Adapt() error = %v, want %v", err, ErrUnknownOperand)
	}
}

func TestAdaptAliasedReduction(t *testing.T) {
	// t0 = x; t0 = x + 1 + t0 must read the old t0.
	ev := &expr.Evaluator{
		Params:    []string{"x"},
		Constants: []complex128{1},
		Instructions: []expr.Instruction{
			{Op: expr.OpAssign, Dst: expr.Temp(0), Args: []expr.Slot{expr.Param(0)}},
			{Op: expr.OpAdd, Dst: expr.Temp(0), Args: []expr.Slot{expr.Param(0), expr.Const(0), expr.Temp(0)}},
			{Op: expr.OpAssign, Dst: expr.Out(0), Args: []expr.Slot{expr.Temp(0)}},
		},
	}
	c, err := Adapt(ev)
	if err != nil {
		t.Fatalf("Adapt: %v", err)
	}
	in, err := NewInterpreter[float64](c)
	if err != nil {
		t.Fatal(err)
	}
	out := make([]float64, 1)
	if err := in.Run([]float64{5}, out); err != nil {
		t.Fatal(err)
	}
	if out[0] != 11 {
		t.Errorf("result = %v, want 11", out[0])
	}
}

func TestAdaptBranches(t *testing.T) {
	c, err := Adapt(absByBranch())
	if err != nil {
		t.Fatalf("Adapt: %v", err)
	}
	if !c.HasBranches() {
		t.Error("expected branch flag")
	}
	if c.Flags&ChunkFlagHasExternals == 0 {
		t.Error("expected externals flag")
	}
}

// absByBranch computes |x| with an explicit branch.
func absByBranch() *expr.Evaluator {
	fm := expr.NewFunctionMap()
	_ = fm.AddExternalFunction("lt", 2)
	b := expr.NewBuilder("x").WithFunctions(fm)
	x := b.Var("x")
	r := b.NewTemp()
	neg := b.Call("lt", x, b.Real(0))
	elseL, endL := b.NewLabel(), b.NewLabel()
	b.IfElse(neg, elseL)
	b.Assign(r, b.Neg(x))
	b.Goto(endL)
	b.Mark(elseL)
	b.Assign(r, x)
	b.Mark(endL)
	b.Output(r)
	return b.Build()
}
