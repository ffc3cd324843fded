// Package runner builds and drives the concrete execution strategies for a
// compiled chunk: native code from a codegen backend, scalar or lane-parallel,
// or the portable bytecode interpreter, in the real or complex domain.
package runner

import (
	"errors"
	"fmt"

	"github.com/chazu/symbridge/artifact"
	"github.com/chazu/symbridge/config"
	"github.com/chazu/symbridge/host"
	"github.com/chazu/symbridge/pkg/bytecode"
	"github.com/chazu/symbridge/pkg/codegen"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("symbridge.runner")

var (
	// ErrCompile is returned when a runner cannot be constructed.
	ErrCompile = errors.New("runner: compile error")

	// ErrPrecondition is returned when buffers have the wrong length or
	// element type. The call fails before any buffer is touched.
	ErrPrecondition = errors.New("runner: evaluation precondition violated")
)

// Runner is one concrete execution strategy. All variants are defined in
// this package.
//
// Evaluate and EvaluateComplex evaluate a single row: len(args) == Params()
// and len(outs) == Outputs(). The Single forms evaluate one row of a
// single-output expression and return the value. EvaluateSIMD and EvaluateSIMDComplex evaluate
// Lanes() rows at once; buffers are lane-packed (args[p*L+l]) except for
// transposed variants, which take consecutive rows (args[l*P+p]). Only the
// methods matching the runner's domain succeed.
//
// Runners are immutable once built and safe for concurrent use.
type Runner interface {
	Kind() Kind
	Config() config.Config
	ID() uuid.UUID
	ISA() string
	Params() int
	Outputs() int
	Lanes() int

	Evaluate(args, outs []float64) error
	EvaluateComplex(args, outs []complex128) error
	EvaluateSingle(args []float64) (float64, error)
	EvaluateComplexSingle(args []complex128) (complex128, error)
	EvaluateSIMD(args, outs []float64) error
	EvaluateSIMDComplex(args, outs []complex128) error

	// Artifact captures the runner for persistence.
	Artifact() (*artifact.Artifact, error)
	Save(path string) error

	sealed()
}

// nativeCode is the compiled body of a native runner.
type nativeCode struct {
	arch   string
	scalar *codegen.Routine
	packed *codegen.Routine // lane routine, SIMD variants only
}

// base carries the state shared by every variant. Exactly one of native and
// interp is set.
type base[T bytecode.Scalar] struct {
	kind    Kind
	cfg     config.Config
	id      uuid.UUID
	params  int
	outputs int
	lanes   int

	native *nativeCode
	interp *bytecode.Interpreter[T]
}

func (b *base[T]) sealed()               {}
func (b *base[T]) Kind() Kind            { return b.kind }
func (b *base[T]) Config() config.Config { return b.cfg }
func (b *base[T]) ID() uuid.UUID         { return b.id }
func (b *base[T]) Params() int           { return b.params }
func (b *base[T]) Outputs() int          { return b.outputs }
func (b *base[T]) Lanes() int            { return b.lanes }

// ISA returns the instruction set the runner's code targets.
func (b *base[T]) ISA() string {
	if b.native != nil {
		return b.native.arch
	}
	return host.PortableISA
}

func (b *base[T]) String() string {
	return fmt.Sprintf("%s runner %s (%d params, %d outputs, %d lanes)", b.kind, b.id, b.params, b.outputs, b.lanes)
}

// as reinterprets a buffer as []T when the element types agree.
func as[T, U bytecode.Scalar](s []U) ([]T, bool) {
	t, ok := any(s).([]T)
	return t, ok
}

func (b *base[T]) domainError(got bytecode.Domain) error {
	return fmt.Errorf("%w: %s buffers passed to a %s runner", ErrPrecondition, got, b.kind.Domain())
}

func (b *base[T]) Evaluate(args, outs []float64) error {
	a, ok := as[T](args)
	if !ok {
		return b.domainError(bytecode.Real)
	}
	o, _ := as[T](outs)
	return b.row(a, o)
}

func (b *base[T]) EvaluateComplex(args, outs []complex128) error {
	a, ok := as[T](args)
	if !ok {
		return b.domainError(bytecode.Complex)
	}
	o, _ := as[T](outs)
	return b.row(a, o)
}

func (b *base[T]) EvaluateSingle(args []float64) (float64, error) {
	var out [1]float64
	if err := b.checkSingle(); err != nil {
		return 0, err
	}
	err := b.Evaluate(args, out[:])
	return out[0], err
}

func (b *base[T]) EvaluateComplexSingle(args []complex128) (complex128, error) {
	var out [1]complex128
	if err := b.checkSingle(); err != nil {
		return 0, err
	}
	err := b.EvaluateComplex(args, out[:])
	return out[0], err
}

func (b *base[T]) checkSingle() error {
	if b.outputs != 1 {
		return fmt.Errorf("%w: single evaluation of %d outputs", ErrPrecondition, b.outputs)
	}
	return nil
}

func (b *base[T]) EvaluateSIMD(args, outs []float64) error {
	a, ok := as[T](args)
	if !ok {
		return b.domainError(bytecode.Real)
	}
	o, _ := as[T](outs)
	return b.packed(a, o)
}

func (b *base[T]) EvaluateSIMDComplex(args, outs []complex128) error {
	a, ok := as[T](args)
	if !ok {
		return b.domainError(bytecode.Complex)
	}
	o, _ := as[T](outs)
	return b.packed(a, o)
}

func (b *base[T]) checkLen(args, outs []T, rows int) error {
	if len(args) != b.params*rows {
		return fmt.Errorf("%w: got %d arguments, want %d", ErrPrecondition, len(args), b.params*rows)
	}
	if len(outs) != b.outputs*rows {
		return fmt.Errorf("%w: got %d outputs, want %d", ErrPrecondition, len(outs), b.outputs*rows)
	}
	return nil
}

// row evaluates one row.
func (b *base[T]) row(args, outs []T) error {
	if err := b.checkLen(args, outs, 1); err != nil {
		return err
	}
	if b.native != nil {
		return call(b.native.scalar, args, outs)
	}
	return b.interp.Run(args, outs)
}

// packed evaluates Lanes() rows. Scalar variants have one lane.
func (b *base[T]) packed(args, outs []T) error {
	if b.native == nil || b.native.packed == nil {
		return b.row(args, outs)
	}
	if err := b.checkLen(args, outs, b.lanes); err != nil {
		return err
	}
	return call(b.native.packed, args, outs)
}

func call[T bytecode.Scalar](r *codegen.Routine, args, outs []T) error {
	switch a := any(args).(type) {
	case []float64:
		return r.CallReal(a, any(outs).([]float64))
	case []complex128:
		return r.CallComplex(a, any(outs).([]complex128))
	}
	return fmt.Errorf("%w: unsupported element type", ErrPrecondition)
}

// The eight variants. Each is a distinct type so callers holding a concrete
// runner know its domain and layout statically.
type (
	CompiledRealRunner          struct{ base[float64] }
	CompiledComplexRunner       struct{ base[complex128] }
	CompiledSimdRealRunner      struct{ base[float64] }
	CompiledSimdComplexRunner   struct{ base[complex128] }
	TransposedSimdRealRunner    struct{ base[float64] }
	TransposedSimdComplexRunner struct{ base[complex128] }
	InterpretedRealRunner       struct{ base[float64] }
	InterpretedComplexRunner    struct{ base[complex128] }
)

// wrap puts a base into the variant type for its kind.
func wrap[T bytecode.Scalar](b *base[T]) Runner {
	switch rb := any(b).(type) {
	case *base[float64]:
		switch b.kind {
		case KindCompiledReal:
			return &CompiledRealRunner{*rb}
		case KindCompiledSimdReal:
			return &CompiledSimdRealRunner{*rb}
		case KindTransposedSimdReal:
			return &TransposedSimdRealRunner{*rb}
		case KindInterpretedReal:
			return &InterpretedRealRunner{*rb}
		}
	case *base[complex128]:
		switch b.kind {
		case KindCompiledComplex:
			return &CompiledComplexRunner{*rb}
		case KindCompiledSimdComplex:
			return &CompiledSimdComplexRunner{*rb}
		case KindTransposedSimdComplex:
			return &TransposedSimdComplexRunner{*rb}
		case KindInterpretedComplex:
			return &InterpretedComplexRunner{*rb}
		}
	}
	panic(fmt.Sprintf("runner: no %s variant for %T", b.kind, b))
}
