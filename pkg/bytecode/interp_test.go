package bytecode

import (
	"errors"
	"math"
	"math/cmplx"
	"sync"
	"testing"

	"github.com/chazu/symbridge/pkg/expr"
)

func mustInterp[T Scalar](t *testing.T, ev *expr.Evaluator) *Interpreter[T] {
	t.Helper()
	c, err := Adapt(ev)
	if err != nil {
		t.Fatalf("Adapt: %v", err)
	}
	in, err := NewInterpreter[T](c)
	if err != nil {
		t.Fatalf("NewInterpreter: %v", err)
	}
	return in
}

func TestInterpreterReal(t *testing.T) {
	in := mustInterp[float64](t, xPlusYSquared())
	out := make([]float64, 1)
	if err := in.Run([]float64{3, 4}, out); err != nil {
		t.Fatal(err)
	}
	if out[0] != 19 {
		t.Errorf("x+y^2 at (3,4) = %v, want 19", out[0])
	}
}

func TestInterpreterComplex(t *testing.T) {
	b := expr.NewBuilder("x", "y")
	b.Output(b.Add(b.Var("x"), b.Pow(b.Var("y"), 3)))
	in := mustInterp[complex128](t, b.Build())

	out := make([]complex128, 1)
	if err := in.Run([]complex128{2 + 1i, -2 + 4i}, out); err != nil {
		t.Fatal(err)
	}
	if out[0] != 90-15i {
		t.Errorf("x+y^3 = %v, want (90-15i)", out[0])
	}
}

func TestInterpreterBuiltins(t *testing.T) {
	b := expr.NewBuilder("x", "y")
	s := b.Add(b.Var("x"), b.Var("y"))
	b.Output(
		b.Fun(expr.BuiltinSin, s),
		b.Fun(expr.BuiltinExp, s),
		b.Div(b.Var("x"), b.Var("y")),
		b.Powf(b.Var("x"), b.Real(0.5)),
	)
	in := mustInterp[float64](t, b.Build())

	out := make([]float64, 4)
	if err := in.Run([]float64{2, -3}, out); err != nil {
		t.Fatal(err)
	}
	want := []float64{math.Sin(-1), math.Exp(-1), 2.0 / -3.0, math.Sqrt(2)}
	for i := range want {
		if math.Abs(out[i]-want[i]) > 1e-15 {
			t.Errorf("output %d = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestInterpreterBranches(t *testing.T) {
	in := mustInterp[float64](t, absByBranch())
	tests := []struct{ x, want float64 }{
		{-3, 3},
		{2.5, 2.5},
		{0, 0},
	}
	out := make([]float64, 1)
	for _, tt := range tests {
		if err := in.Run([]float64{tt.x}, out); err != nil {
			t.Fatal(err)
		}
		if out[0] != tt.want {
			t.Errorf("abs(%v) = %v, want %v", tt.x, out[0], tt.want)
		}
	}
}

func TestInterpreterComplexCompareUsesRealPart(t *testing.T) {
	in := mustInterp[complex128](t, absByBranch())
	out := make([]complex128, 1)
	if err := in.Run([]complex128{-2 + 5i}, out); err != nil {
		t.Fatal(err)
	}
	if out[0] != 2-5i {
		t.Errorf("result = %v, want (2-5i)", out[0])
	}
}

func TestInterpreterArgumentCount(t *testing.T) {
	in := mustInterp[float64](t, xPlusYSquared())
	if err := in.Run([]float64{1}, make([]float64, 1)); !errors.Is(err, ErrArgumentCount) {
		t.Errorf("Run() error = %v, want %v", err, ErrArgumentCount)
	}
	if err := in.Run([]float64{1, 2}, nil); !errors.Is(err, ErrArgumentCount) {
		t.Errorf("Run() error = %v, want %v", err, ErrArgumentCount)
	}
}

func TestInterpreterRejectsRealOnlyInComplex(t *testing.T) {
	fm := expr.NewFunctionMap()
	_ = fm.AddExternalFunction("floor", 1)
	b := expr.NewBuilder("x").WithFunctions(fm)
	b.Output(b.Call("floor", b.Var("x")))
	c, err := Adapt(b.Build())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewInterpreter[complex128](c); !errors.Is(err, ErrRealOnly) {
		t.Errorf("NewInterpreter() error = %v, want %v", err, ErrRealOnly)
	}
	if _, err := NewInterpreter[float64](c); err != nil {
		t.Errorf("NewInterpreter[float64]() error = %v", err)
	}
}

func TestInterpreterRejectsComplexConstantInReal(t *testing.T) {
	b := expr.NewBuilder("x")
	b.Output(b.Mul(b.Var("x"), b.Const(1i)))
	c, err := Adapt(b.Build())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewInterpreter[float64](c); !errors.Is(err, ErrComplexConstant) {
		t.Errorf("NewInterpreter() error = %v, want %v", err, ErrComplexConstant)
	}
}

func TestInterpreterConcurrent(t *testing.T) {
	in := mustInterp[float64](t, xPlusYSquared())
	var wg sync.WaitGroup
	errs := make(chan string, 64)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			out := make([]float64, 1)
			for i := 0; i < 100; i++ {
				x, y := float64(g), float64(i)
				if err := in.Run([]float64{x, y}, out); err != nil {
					errs <- err.Error()
					return
				}
				if out[0] != x+y*y {
					errs <- "wrong result"
					return
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
}

func TestPowi(t *testing.T) {
	tests := []struct {
		x    float64
		n    int32
		want float64
	}{
		{2, 0, 1},
		{2, 1, 2},
		{2, 10, 1024},
		{2, -2, 0.25},
		{-3, 3, -27},
		{2, math.MinInt32, 0},
		{1, math.MinInt32, 1},
		{-1, math.MinInt32, 1},
		{1, math.MaxInt32, 1},
	}
	for _, tt := range tests {
		if got := Powi(tt.x, tt.n); got != tt.want {
			t.Errorf("Powi(%v, %d) = %v, want %v", tt.x, tt.n, got, tt.want)
		}
	}
	if got := Powi(complex(0, 1), 2); got != -1 {
		t.Errorf("Powi(i, 2) = %v, want -1", got)
	}
}

func TestLibraryCoverage(t *testing.T) {
	rl, cplx := LibraryFor[float64](), LibraryFor[complex128]()
	for _, op := range AllOpcodes() {
		info := GetOpcodeInfo(op)
		switch info.Class {
		case ClassUnary:
			if rl.Unary(op) == nil {
				t.Errorf("real library lacks %s", op)
			}
			if !info.RealOnly && cplx.Unary(op) == nil {
				t.Errorf("complex library lacks %s", op)
			}
		case ClassBinary, ClassCompare:
			if rl.Binary(op) == nil {
				t.Errorf("real library lacks %s", op)
			}
			if !info.RealOnly && cplx.Binary(op) == nil {
				t.Errorf("complex library lacks %s", op)
			}
		}
	}
	if got := cplx.Unary(OpLog2)(8); cmplx.Abs(got-3) > 1e-15 {
		t.Errorf("log2(8) = %v, want 3", got)
	}
}
