package runner

import (
	"fmt"

	"github.com/chazu/symbridge/config"
	"github.com/chazu/symbridge/host"
	"github.com/chazu/symbridge/pkg/bytecode"
	"github.com/chazu/symbridge/pkg/codegen"
	"github.com/google/uuid"
)

// New selects a variant for c under cfg on caps and builds it. The returned
// runner's Config reports what was actually honored.
func New(c *bytecode.Chunk, cfg config.Config, caps host.Caps) (Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	sel := Select(cfg, caps, c)
	if sel.Reason != "" {
		log.Debugf("downgraded to %s: %s", sel.Kind, sel.Reason)
	}

	var r Runner
	var err error
	if sel.Kind.Domain() == bytecode.Complex {
		r, err = build[complex128](c, sel, caps)
	} else {
		r, err = build[float64](c, sel, caps)
	}
	if err != nil {
		return nil, err
	}
	log.Debug("runner built", "kind", r.Kind(), "id", r.ID(), "lanes", r.Lanes(), "isa", r.ISA())
	return r, nil
}

func build[T bytecode.Scalar](c *bytecode.Chunk, sel Selection, caps host.Caps) (Runner, error) {
	var b *base[T]
	var err error
	if sel.Kind.IsInterpreted() {
		b, err = interpret[T](c, sel.Kind, sel.Effective)
	} else {
		b, err = compile[T](c, sel.Kind, sel.Effective, caps)
	}
	if err != nil {
		return nil, err
	}
	return wrap(b), nil
}

// strategy forces cfg to describe kind.
func strategy(cfg config.Config, kind Kind) config.Config {
	cfg.Domain = kind.Domain()
	cfg.SIMD = kind.IsSIMD()
	cfg.Transposed = kind.IsTransposed()
	cfg.Interpret = kind.IsInterpreted()
	return cfg
}

func compile[T bytecode.Scalar](c *bytecode.Chunk, kind Kind, cfg config.Config, caps host.Caps) (*base[T], error) {
	cfg = strategy(cfg, kind)
	be, ok := codegen.Lookup(caps.Arch)
	if !ok {
		return nil, fmt.Errorf("%w: no native backend for %s", ErrCompile, caps.Arch)
	}
	lanes := 1
	if kind.IsSIMD() {
		lanes = caps.Lanes(cfg.Domain)
		if lanes < 2 {
			return nil, fmt.Errorf("%w: %s needs vector lanes, host %s has none", ErrCompile, kind, caps.Arch)
		}
		if c.HasBranches() {
			return nil, fmt.Errorf("%w: %s cannot run branching code", ErrCompile, kind)
		}
	}

	scalar, err := be.Compile(c, codegen.Options{Domain: cfg.Domain, Lanes: 1})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	nc := &nativeCode{arch: be.Arch(), scalar: scalar}
	if lanes > 1 {
		nc.packed, err = be.Compile(c, codegen.Options{Domain: cfg.Domain, Lanes: lanes, Transposed: cfg.Transposed})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCompile, err)
		}
	}
	return &base[T]{
		kind:    kind,
		cfg:     cfg,
		id:      uuid.New(),
		params:  int(c.ParamCount),
		outputs: int(c.OutputCount),
		lanes:   lanes,
		native:  nc,
	}, nil
}

func interpret[T bytecode.Scalar](c *bytecode.Chunk, kind Kind, cfg config.Config) (*base[T], error) {
	cfg = strategy(cfg, kind)
	in, err := bytecode.NewInterpreter[T](c)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	return &base[T]{
		kind:    kind,
		cfg:     cfg,
		id:      uuid.New(),
		params:  int(c.ParamCount),
		outputs: int(c.OutputCount),
		lanes:   1,
		interp:  in,
	}, nil
}

// CompileReal builds a scalar native real-domain runner.
func CompileReal(c *bytecode.Chunk, cfg config.Config, caps host.Caps) (*CompiledRealRunner, error) {
	b, err := compile[float64](c, KindCompiledReal, cfg, caps)
	if err != nil {
		return nil, err
	}
	return &CompiledRealRunner{*b}, nil
}

// CompileComplex builds a scalar native complex-domain runner.
func CompileComplex(c *bytecode.Chunk, cfg config.Config, caps host.Caps) (*CompiledComplexRunner, error) {
	b, err := compile[complex128](c, KindCompiledComplex, cfg, caps)
	if err != nil {
		return nil, err
	}
	return &CompiledComplexRunner{*b}, nil
}

// CompileSimdReal builds a lane-packed native real-domain runner. It fails
// when caps has no vector lanes; use New to fall back automatically.
func CompileSimdReal(c *bytecode.Chunk, cfg config.Config, caps host.Caps) (*CompiledSimdRealRunner, error) {
	b, err := compile[float64](c, KindCompiledSimdReal, cfg, caps)
	if err != nil {
		return nil, err
	}
	return &CompiledSimdRealRunner{*b}, nil
}

// CompileSimdComplex builds a lane-packed native complex-domain runner.
func CompileSimdComplex(c *bytecode.Chunk, cfg config.Config, caps host.Caps) (*CompiledSimdComplexRunner, error) {
	b, err := compile[complex128](c, KindCompiledSimdComplex, cfg, caps)
	if err != nil {
		return nil, err
	}
	return &CompiledSimdComplexRunner{*b}, nil
}

// CompileTransposedSimdReal builds a native real-domain runner that
// evaluates consecutive row-major rows per call.
func CompileTransposedSimdReal(c *bytecode.Chunk, cfg config.Config, caps host.Caps) (*TransposedSimdRealRunner, error) {
	b, err := compile[float64](c, KindTransposedSimdReal, cfg, caps)
	if err != nil {
		return nil, err
	}
	return &TransposedSimdRealRunner{*b}, nil
}

// CompileTransposedSimdComplex is the complex-domain counterpart of
// CompileTransposedSimdReal.
func CompileTransposedSimdComplex(c *bytecode.Chunk, cfg config.Config, caps host.Caps) (*TransposedSimdComplexRunner, error) {
	b, err := compile[complex128](c, KindTransposedSimdComplex, cfg, caps)
	if err != nil {
		return nil, err
	}
	return &TransposedSimdComplexRunner{*b}, nil
}

// CompileInterpretedReal builds a real-domain interpreter runner.
func CompileInterpretedReal(c *bytecode.Chunk, cfg config.Config) (*InterpretedRealRunner, error) {
	b, err := interpret[float64](c, KindInterpretedReal, cfg)
	if err != nil {
		return nil, err
	}
	return &InterpretedRealRunner{*b}, nil
}

// CompileInterpretedComplex builds a complex-domain interpreter runner.
func CompileInterpretedComplex(c *bytecode.Chunk, cfg config.Config) (*InterpretedComplexRunner, error) {
	b, err := interpret[complex128](c, KindInterpretedComplex, cfg)
	if err != nil {
		return nil, err
	}
	return &InterpretedComplexRunner{*b}, nil
}
