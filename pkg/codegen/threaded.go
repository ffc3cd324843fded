package codegen

import (
	"fmt"
	"sync"

	"github.com/chazu/symbridge/pkg/bytecode"
)

// threadedBackend lowers bytecode to threaded code: one pre-bound closure
// per instruction, with register indices and the math function resolved at
// compile time. The code bytes are the serialized chunk; linking re-binds
// the closures.
type threadedBackend struct {
	arch string
}

// NewThreaded returns the threaded-code backend labelled with arch.
func NewThreaded(arch string) Backend {
	return &threadedBackend{arch: arch}
}

func (b *threadedBackend) Arch() string { return b.arch }

func (b *threadedBackend) Compile(c *bytecode.Chunk, opts Options) (*Routine, error) {
	opts = opts.normalized()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := c.CheckDomain(opts.Domain); err != nil {
		return nil, err
	}
	if opts.Lanes > 1 && c.HasBranches() {
		return nil, fmt.Errorf("%w: branching code cannot run %d lanes", ErrUnsupported, opts.Lanes)
	}
	code, err := c.Serialize()
	if err != nil {
		return nil, err
	}

	r := &Routine{
		Arch:    b.arch,
		Options: opts,
		Params:  int(c.ParamCount),
		Outputs: int(c.OutputCount),
		Code:    code,
	}
	switch opts.Domain {
	case bytecode.Real:
		r.real, err = emit[float64](c, opts)
	case bytecode.Complex:
		r.complex, err = emit[complex128](c, opts)
	default:
		err = fmt.Errorf("%w: domain %d", ErrUnsupported, opts.Domain)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (b *threadedBackend) Link(code []byte, opts Options) (*Routine, error) {
	c, err := bytecode.Deserialize(code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLink, err)
	}
	return b.Compile(c, opts)
}

// step executes one instruction and returns the index of the next one.
type step[T bytecode.Scalar] func(regs []T) int

// program is an emitted routine. Register r, lane l lives at regs[r*L+l].
type program[T bytecode.Scalar] struct {
	steps      []step[T]
	lanes      int
	params     int
	outputs    int
	constBase  int
	tempBase   int
	outBase    int
	consts     []T // already broadcast across lanes
	transposed bool
	frames     sync.Pool
}

func emit[T bytecode.Scalar](c *bytecode.Chunk, opts Options) (*program[T], error) {
	instrs, err := c.Instructions()
	if err != nil {
		return nil, err
	}
	L := opts.Lanes
	p := &program[T]{
		lanes:      L,
		params:     int(c.ParamCount),
		outputs:    int(c.OutputCount),
		constBase:  int(c.ConstBase()) * L,
		tempBase:   int(c.TempBase()) * L,
		outBase:    int(c.OutBase()) * L,
		consts:     make([]T, len(c.Constants)*L),
		transposed: opts.Transposed,
	}
	for i, k := range c.Constants {
		v := bytecode.FromComplex[T](k)
		for l := 0; l < L; l++ {
			p.consts[i*L+l] = v
		}
	}

	index := make(map[int]int, len(instrs)+1)
	for i, in := range instrs {
		index[in.Offset] = i
	}
	index[len(c.Code)] = len(instrs)

	lib := bytecode.LibraryFor[T]()
	p.steps = make([]step[T], len(instrs))
	for i, in := range instrs {
		s, err := lower(in, i+1, L, lib, index)
		if err != nil {
			return nil, err
		}
		p.steps[i] = s
	}

	n := c.RegCount() * L
	p.frames.New = func() any {
		regs := make([]T, n)
		return &regs
	}
	return p, nil
}

// lower binds one instruction. next is the index of the following step.
func lower[T bytecode.Scalar](in bytecode.Instr, next, L int, lib *bytecode.Library[T], index map[int]int) (step[T], error) {
	a := in.Args
	d, x, y, z := int(a[0])*L, int(a[1])*L, int(a[2])*L, int(a[3])*L
	info := bytecode.GetOpcodeInfo(in.Op)

	switch info.Class {
	case bytecode.ClassNop:
		return func([]T) int { return next }, nil

	case bytecode.ClassMove:
		return func(r []T) int {
			copy(r[d:d+L], r[x:x+L])
			return next
		}, nil

	case bytecode.ClassBinary, bytecode.ClassCompare:
		switch in.Op {
		case bytecode.OpAdd:
			return func(r []T) int {
				for l := 0; l < L; l++ {
					r[d+l] = r[x+l] + r[y+l]
				}
				return next
			}, nil
		case bytecode.OpSub:
			return func(r []T) int {
				for l := 0; l < L; l++ {
					r[d+l] = r[x+l] - r[y+l]
				}
				return next
			}, nil
		case bytecode.OpMul:
			return func(r []T) int {
				for l := 0; l < L; l++ {
					r[d+l] = r[x+l] * r[y+l]
				}
				return next
			}, nil
		case bytecode.OpDiv:
			return func(r []T) int {
				for l := 0; l < L; l++ {
					r[d+l] = r[x+l] / r[y+l]
				}
				return next
			}, nil
		}
		f := lib.Binary(in.Op)
		if f == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnsupported, in.Op)
		}
		return func(r []T) int {
			for l := 0; l < L; l++ {
				r[d+l] = f(r[x+l], r[y+l])
			}
			return next
		}, nil

	case bytecode.ClassUnary:
		if in.Op == bytecode.OpNeg {
			return func(r []T) int {
				for l := 0; l < L; l++ {
					r[d+l] = -r[x+l]
				}
				return next
			}, nil
		}
		f := lib.Unary(in.Op)
		if f == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnsupported, in.Op)
		}
		return func(r []T) int {
			for l := 0; l < L; l++ {
				r[d+l] = f(r[x+l])
			}
			return next
		}, nil

	case bytecode.ClassPowi:
		n := in.Imm()
		switch n {
		case 2:
			return func(r []T) int {
				for l := 0; l < L; l++ {
					v := r[x+l]
					r[d+l] = v * v
				}
				return next
			}, nil
		case 3:
			return func(r []T) int {
				for l := 0; l < L; l++ {
					v := r[x+l]
					r[d+l] = v * (v * v)
				}
				return next
			}, nil
		}
		return func(r []T) int {
			for l := 0; l < L; l++ {
				r[d+l] = bytecode.Powi(r[x+l], n)
			}
			return next
		}, nil

	case bytecode.ClassSelect:
		return func(r []T) int {
			for l := 0; l < L; l++ {
				if bytecode.Truth(r[x+l]) {
					r[d+l] = r[y+l]
				} else {
					r[d+l] = r[z+l]
				}
			}
			return next
		}, nil

	case bytecode.ClassJump:
		target, ok := index[in.Target()]
		if !ok {
			return nil, fmt.Errorf("%w: jump to %04X", bytecode.ErrMalformed, in.Target())
		}
		if in.Op == bytecode.OpJump {
			return func([]T) int { return target }, nil
		}
		// Branching code is only emitted for a single lane.
		cond := int(a[0])
		return func(r []T) int {
			if bytecode.Truth(r[cond]) {
				return next
			}
			return target
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, in.Op)
}

func (p *program[T]) call(args, outs []T) {
	frame := p.frames.Get().(*[]T)
	r := *frame
	L := p.lanes

	if p.transposed {
		for l := 0; l < L; l++ {
			row := args[l*p.params : (l+1)*p.params]
			for i, v := range row {
				r[i*L+l] = v
			}
		}
	} else {
		copy(r[:p.params*L], args)
	}
	copy(r[p.constBase:], p.consts)
	clear(r[p.tempBase:])

	for i := 0; i < len(p.steps); {
		i = p.steps[i](r)
	}

	if p.transposed {
		for l := 0; l < L; l++ {
			for o := 0; o < p.outputs; o++ {
				outs[l*p.outputs+o] = r[p.outBase+o*L+l]
			}
		}
	} else {
		copy(outs, r[p.outBase:])
	}
	p.frames.Put(frame)
}
