package runner

import (
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"github.com/chazu/symbridge/config"
	"github.com/chazu/symbridge/host"
	"github.com/chazu/symbridge/pkg/bytecode"
	"github.com/chazu/symbridge/pkg/codegen"
	"github.com/chazu/symbridge/pkg/expr"
)

// testArch has a backend registered regardless of the machine running the
// tests; foreignArch never has one.
const (
	testArch    = "testarch"
	foreignArch = "foreignarch"
)

func init() {
	codegen.Register(codegen.NewThreaded(testArch))
}

var (
	avxCaps    = host.Caps{Arch: testArch, VectorBits: 256, HasAVX: true}
	neonCaps   = host.Caps{Arch: testArch, VectorBits: 128, HasASIMD: true}
	scalarCaps = host.Caps{Arch: testArch}
	noBackend  = host.Caps{Arch: foreignArch, VectorBits: 256}
)

func adapt(t testing.TB, ev *expr.Evaluator) *bytecode.Chunk {
	t.Helper()
	c, err := bytecode.Adapt(ev)
	if err != nil {
		t.Fatalf("Adapt: %v", err)
	}
	return c
}

func xPlusYPow(n int64) *expr.Evaluator {
	b := expr.NewBuilder("x", "y")
	b.Output(b.Add(b.Var("x"), b.Pow(b.Var("y"), n)))
	return b.Build()
}

func xMinusYSquared() *expr.Evaluator {
	b := expr.NewBuilder("x", "y")
	b.Output(b.Sub(b.Var("x"), b.Pow(b.Var("y"), 2)))
	return b.Build()
}

// twoOutputs computes (x*y + 1, sin(x) - y^2).
func twoOutputs() *expr.Evaluator {
	b := expr.NewBuilder("x", "y")
	x, y := b.Var("x"), b.Var("y")
	b.Output(
		b.Add(b.Mul(x, y), b.Real(1)),
		b.Sub(b.Fun(expr.BuiltinSin, x), b.Pow(y, 2)),
	)
	return b.Build()
}

// clampAtOne returns min(x, 1) using a branch.
func clampAtOne() *expr.Evaluator {
	fm := expr.NewFunctionMap()
	if err := fm.AddExternalFunction("gt", 2); err != nil {
		panic(err)
	}
	b := expr.NewBuilder("x").WithFunctions(fm)
	x := b.Var("x")
	r := b.NewTemp()
	skip := b.NewLabel()
	b.Assign(r, x)
	b.IfElse(b.Call("gt", x, b.Real(1)), skip)
	b.Assign(r, b.Real(1))
	b.Mark(skip)
	b.Output(r)
	return b.Build()
}

func TestSelect(t *testing.T) {
	straight := adapt(t, xPlusYPow(2))
	branchy := adapt(t, clampAtOne())
	simd := config.Default().WithSIMD(true)

	tests := []struct {
		name      string
		cfg       config.Config
		caps      host.Caps
		chunk     *bytecode.Chunk
		want      Kind
		wantLanes int
		wantSIMD  bool
	}{
		{"default", config.Default(), avxCaps, straight, KindCompiledReal, 1, false},
		{"complex", config.Default().WithDomain(bytecode.Complex), avxCaps, straight, KindCompiledComplex, 1, false},
		{"simd avx", simd, avxCaps, straight, KindCompiledSimdReal, 4, true},
		{"simd neon", simd, neonCaps, straight, KindCompiledSimdReal, 2, true},
		{"simd complex", simd.WithDomain(bytecode.Complex), avxCaps, straight, KindCompiledSimdComplex, 4, true},
		{"transposed", simd.WithTransposed(true), avxCaps, straight, KindTransposedSimdReal, 4, true},
		{"transposed complex", simd.WithTransposed(true).WithDomain(bytecode.Complex), avxCaps, straight, KindTransposedSimdComplex, 4, true},
		{"simd without lanes", simd, scalarCaps, straight, KindCompiledReal, 1, false},
		{"simd with branches", simd, avxCaps, branchy, KindCompiledReal, 1, false},
		{"interpret", simd.WithInterpret(true), avxCaps, straight, KindInterpretedReal, 1, false},
		{"no backend", simd, noBackend, straight, KindInterpretedReal, 1, false},
		{"no backend complex", config.Default().WithDomain(bytecode.Complex), noBackend, straight, KindInterpretedComplex, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := Select(tt.cfg, tt.caps, tt.chunk)
			if sel.Kind != tt.want {
				t.Errorf("Kind = %s, want %s", sel.Kind, tt.want)
			}
			if sel.Lanes != tt.wantLanes {
				t.Errorf("Lanes = %d, want %d", sel.Lanes, tt.wantLanes)
			}
			if sel.Effective.SIMD != tt.wantSIMD {
				t.Errorf("Effective.SIMD = %v, want %v", sel.Effective.SIMD, tt.wantSIMD)
			}
			if !sel.Effective.SIMD && sel.Effective.Transposed {
				t.Error("Transposed set without SIMD")
			}
			if tt.cfg.SIMD && !tt.wantSIMD && sel.Reason == "" {
				t.Error("downgrade without a reason")
			}
		})
	}
}

// allKinds builds every variant for ev in domain d.
func allKinds(t *testing.T, ev *expr.Evaluator, d bytecode.Domain) []Runner {
	t.Helper()
	c := adapt(t, ev)
	base := config.Default().WithDomain(d)
	cfgs := []config.Config{
		base,
		base.WithSIMD(true),
		base.WithSIMD(true).WithTransposed(true),
		base.WithInterpret(true),
	}
	var rs []Runner
	for _, cfg := range cfgs {
		r, err := New(c, cfg, avxCaps)
		if err != nil {
			t.Fatalf("New(%v): %v", cfg, err)
		}
		rs = append(rs, r)
	}
	return rs
}

func TestScenarioXPlusYSquared(t *testing.T) {
	for _, r := range allKinds(t, xPlusYPow(2), bytecode.Real) {
		out := make([]float64, 1)
		if err := r.Evaluate([]float64{3, 4}, out); err != nil {
			t.Fatalf("%s: %v", r.Kind(), err)
		}
		if out[0] != 19 {
			t.Errorf("%s: x+y^2 at (3,4) = %v, want 19", r.Kind(), out[0])
		}
	}
}

func TestScenarioComplexXPlusYCubed(t *testing.T) {
	for _, r := range allKinds(t, xPlusYPow(3), bytecode.Complex) {
		out := make([]complex128, 1)
		if err := r.EvaluateComplex([]complex128{2 + 1i, -2 + 4i}, out); err != nil {
			t.Fatalf("%s: %v", r.Kind(), err)
		}
		if out[0] != 90-15i {
			t.Errorf("%s: x+y^3 = %v, want (90-15i)", r.Kind(), out[0])
		}
		if err := r.EvaluateComplex([]complex128{2 + 5i, -2 + 3i}, out); err != nil {
			t.Fatal(err)
		}
		if out[0] != 48+14i {
			t.Errorf("%s: x+y^3 = %v, want (48+14i)", r.Kind(), out[0])
		}
	}
}

func TestScenarioExternalSinh(t *testing.T) {
	fm := expr.NewFunctionMap()
	if err := fm.AddExternalFunction("sinh", 1); err != nil {
		t.Fatal(err)
	}
	b := expr.NewBuilder("x", "y").WithFunctions(fm)
	b.Output(b.Call("sinh", b.Add(b.Var("x"), b.Var("y"))))
	for _, r := range allKinds(t, b.Build(), bytecode.Real) {
		out := make([]float64, 1)
		if err := r.Evaluate([]float64{2, -3}, out); err != nil {
			t.Fatal(err)
		}
		if math.Abs(out[0]-math.Sinh(-1)) > 1e-15 {
			t.Errorf("%s: sinh(x+y) = %v, want %v", r.Kind(), out[0], math.Sinh(-1))
		}
	}
}

func TestSIMDReal(t *testing.T) {
	r, err := CompileSimdReal(adapt(t, xPlusYPow(3)), config.Default(), avxCaps)
	if err != nil {
		t.Fatal(err)
	}
	if r.Lanes() != 4 {
		t.Fatalf("Lanes() = %d, want 4", r.Lanes())
	}
	out := make([]float64, 4)
	if err := r.EvaluateSIMD([]float64{1, 2, 3, 4, 5, 4, 3, 2}, out); err != nil {
		t.Fatal(err)
	}
	want := []float64{126, 66, 30, 12}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("lane %d = %v, want %v", i, out[i], want[i])
		}
	}
	if !r.Config().SIMD {
		t.Error("Config().SIMD = false")
	}
}

func TestSIMDComplex(t *testing.T) {
	r, err := CompileSimdComplex(adapt(t, xMinusYSquared()), config.Default(), avxCaps)
	if err != nil {
		t.Fatal(err)
	}
	args := []complex128{
		1 + 2i, 2 + 3i, 3 + 4i, 4 + 5i,
		0 - 5i, 1 - 4i, 2 - 3i, 3 - 2i,
	}
	out := make([]complex128, 4)
	if err := r.EvaluateSIMDComplex(args, out); err != nil {
		t.Fatal(err)
	}
	want := []complex128{26 + 2i, 17 + 11i, 8 + 16i, -1 + 17i}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("lane %d = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestTransposedLayout(t *testing.T) {
	r, err := CompileTransposedSimdReal(adapt(t, xPlusYPow(3)), config.Default(), avxCaps)
	if err != nil {
		t.Fatal(err)
	}
	// Rows (1,5), (2,4), (3,3), (4,2).
	out := make([]float64, 4)
	if err := r.EvaluateSIMD([]float64{1, 5, 2, 4, 3, 3, 4, 2}, out); err != nil {
		t.Fatal(err)
	}
	want := []float64{126, 66, 30, 12}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("row %d = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestSIMDDowngrade(t *testing.T) {
	r, err := New(adapt(t, xPlusYPow(2)), config.Default().WithSIMD(true).WithTransposed(true), scalarCaps)
	if err != nil {
		t.Fatal(err)
	}
	if r.Config().SIMD || r.Config().Transposed {
		t.Errorf("effective config = %v, want simd=false", r.Config())
	}
	if r.Kind() != KindCompiledReal {
		t.Errorf("Kind() = %s, want %s", r.Kind(), KindCompiledReal)
	}
	if p := PlanMatrix(r, 100); p.Lanes != 1 {
		t.Errorf("PlanMatrix lanes = %d, want 1", p.Lanes)
	}
	if _, err := CompileSimdReal(adapt(t, xPlusYPow(2)), config.Default(), scalarCaps); !errors.Is(err, ErrCompile) {
		t.Errorf("CompileSimdReal() error = %v, want %v", err, ErrCompile)
	}
}

func TestBranchingRunsScalar(t *testing.T) {
	r, err := New(adapt(t, clampAtOne()), config.Default().WithSIMD(true), avxCaps)
	if err != nil {
		t.Fatal(err)
	}
	if r.Kind().IsSIMD() {
		t.Fatalf("Kind() = %s for branching code", r.Kind())
	}
	args := []float64{0.5, 3, -2, 1, 7}
	outs := make([]float64, len(args))
	if err := EvaluateMatrix(r, args, outs, len(args)); err != nil {
		t.Fatal(err)
	}
	for i, x := range args {
		if want := math.Min(x, 1); outs[i] != want {
			t.Errorf("row %d = %v, want %v", i, outs[i], want)
		}
	}
}

func TestPreconditions(t *testing.T) {
	for _, r := range allKinds(t, xPlusYPow(2), bytecode.Real) {
		if err := r.Evaluate([]float64{1}, make([]float64, 1)); !errors.Is(err, ErrPrecondition) {
			t.Errorf("%s: short args error = %v", r.Kind(), err)
		}
		if err := r.Evaluate([]float64{1, 2}, make([]float64, 2)); !errors.Is(err, ErrPrecondition) {
			t.Errorf("%s: long outs error = %v", r.Kind(), err)
		}
		if err := r.EvaluateComplex([]complex128{1, 2}, make([]complex128, 1)); !errors.Is(err, ErrPrecondition) {
			t.Errorf("%s: domain mismatch error = %v", r.Kind(), err)
		}
		if err := r.EvaluateSIMD(make([]float64, 2*r.Lanes()+1), make([]float64, r.Lanes())); !errors.Is(err, ErrPrecondition) {
			t.Errorf("%s: bad lane buffer error = %v", r.Kind(), err)
		}
	}
}

func TestCompileErrors(t *testing.T) {
	b := expr.NewBuilder("x")
	b.Output(b.Mul(b.Var("x"), b.Const(2i)))
	c := adapt(t, b.Build())
	if _, err := New(c, config.Default(), avxCaps); !errors.Is(err, ErrCompile) || !errors.Is(err, bytecode.ErrComplexConstant) {
		t.Errorf("New() error = %v, want %v", err, bytecode.ErrComplexConstant)
	}
	if _, err := New(c, config.Default().WithDomain(bytecode.Complex), avxCaps); err != nil {
		t.Errorf("complex New() error = %v", err)
	}
	if _, err := New(c, config.Default().WithWorkers(-1), avxCaps); !errors.Is(err, ErrCompile) {
		t.Errorf("New() with bad config error = %v", err)
	}
	if _, err := CompileReal(c, config.Default(), noBackend); !errors.Is(err, ErrCompile) {
		t.Errorf("CompileReal() without backend error = %v", err)
	}
}

func TestCrossBackendConsistency(t *testing.T) {
	rs := allKinds(t, twoOutputs(), bytecode.Real)
	inputs := [][]float64{{0, 0}, {1.5, -2}, {-3.25, 0.125}, {10, 10}}
	for _, in := range inputs {
		want := make([]float64, 2)
		if err := rs[0].Evaluate(in, want); err != nil {
			t.Fatal(err)
		}
		for _, r := range rs[1:] {
			got := make([]float64, 2)
			if err := r.Evaluate(in, got); err != nil {
				t.Fatal(err)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Errorf("%s at %v: output %d = %v, want %v", r.Kind(), in, i, got[i], want[i])
				}
			}
		}
	}

	crs := allKinds(t, twoOutputs(), bytecode.Complex)
	z := []complex128{0.5 - 1i, 2 + 0.25i}
	want := make([]complex128, 2)
	if err := crs[0].EvaluateComplex(z, want); err != nil {
		t.Fatal(err)
	}
	for _, r := range crs[1:] {
		got := make([]complex128, 2)
		if err := r.EvaluateComplex(z, got); err != nil {
			t.Fatal(err)
		}
		for i := range want {
			if cmplx.Abs(got[i]-want[i]) > 1e-15 {
				t.Errorf("%s: output %d = %v, want %v", r.Kind(), i, got[i], want[i])
			}
		}
	}
}

func TestKindProperties(t *testing.T) {
	for k := KindCompiledReal; k <= KindInterpretedComplex; k++ {
		if !k.Valid() {
			t.Errorf("%d not valid", k)
		}
		got := kindFor(k.Domain(), k.IsInterpreted(), k.IsSIMD(), k.IsTransposed())
		if got != k {
			t.Errorf("kindFor(%s properties) = %s", k, got)
		}
	}
	if Kind(0).Valid() || Kind(99).Valid() {
		t.Error("out-of-range kind reported valid")
	}
}

func TestEvaluateSingle(t *testing.T) {
	for _, r := range allKinds(t, xPlusYPow(2), bytecode.Real) {
		v, err := r.EvaluateSingle([]float64{3, 4})
		if err != nil {
			t.Fatalf("%s: %v", r.Kind(), err)
		}
		if v != 19 {
			t.Errorf("%s: EvaluateSingle(3, 4) = %v, want 19", r.Kind(), v)
		}
		if _, err := r.EvaluateComplexSingle([]complex128{3, 4}); !errors.Is(err, ErrPrecondition) {
			t.Errorf("%s: EvaluateComplexSingle() on a real runner error = %v", r.Kind(), err)
		}
	}
	for _, r := range allKinds(t, xPlusYPow(3), bytecode.Complex) {
		v, err := r.EvaluateComplexSingle([]complex128{2 + 1i, -2 + 4i})
		if err != nil {
			t.Fatal(err)
		}
		if v != 90-15i {
			t.Errorf("%s: EvaluateComplexSingle() = %v, want (90-15i)", r.Kind(), v)
		}
	}
	for _, r := range allKinds(t, twoOutputs(), bytecode.Real) {
		if _, err := r.EvaluateSingle([]float64{1, 2}); !errors.Is(err, ErrPrecondition) {
			t.Errorf("%s: EvaluateSingle() with two outputs error = %v", r.Kind(), err)
		}
	}
}

func TestExtremeIntegerPower(t *testing.T) {
	for _, r := range allKinds(t, xPowMinInt32(), bytecode.Real) {
		for _, tt := range []struct{ x, want float64 }{{1, 1}, {-1, 1}, {2, 0}} {
			v, err := r.EvaluateSingle([]float64{tt.x})
			if err != nil {
				t.Fatalf("%s: %v", r.Kind(), err)
			}
			if v != tt.want {
				t.Errorf("%s: %v^MinInt32 = %v, want %v", r.Kind(), tt.x, v, tt.want)
			}
		}
	}
}

func xPowMinInt32() *expr.Evaluator {
	b := expr.NewBuilder("x")
	b.Output(b.Pow(b.Var("x"), math.MinInt32))
	return b.Build()
}
