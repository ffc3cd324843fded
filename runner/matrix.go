package runner

import (
	"fmt"

	"github.com/chazu/symbridge/pkg/bytecode"
	"golang.org/x/sync/errgroup"
)

// Plan is how a matrix call is split up.
type Plan struct {
	Lanes   int // rows per call for the packed chunks
	Chunks  int // packed calls, or rows when Lanes is 1
	Tail    int // rows evaluated one at a time after the chunks
	Workers int // goroutines sharing the chunks
}

// PlanMatrix decides, per call, how nrows rows are evaluated on r. Lane
// packing is used only when r is a SIMD variant and there is at least one
// full chunk. Workers are used only when the runner's config asks for
// threads and there are at least MinParallelChunks chunks.
func PlanMatrix(r Runner, nrows int) Plan {
	p := Plan{Lanes: 1, Workers: 1}
	if nrows <= 0 {
		return p
	}
	if r.Kind().IsSIMD() && r.Lanes() > 1 && nrows >= r.Lanes() {
		p.Lanes = r.Lanes()
	}
	p.Chunks = nrows / p.Lanes
	p.Tail = nrows % p.Lanes

	cfg := r.Config()
	if cfg.Threads && p.Chunks >= cfg.EffectiveMinParallelChunks() {
		p.Workers = min(cfg.EffectiveWorkers(), p.Chunks)
	}
	return p
}

// EvaluateMatrix evaluates nrows row-major rows of args into outs.
// len(args) must be nrows*Params() and len(outs) nrows*Outputs(). Output row
// i always holds the result for input row i.
func EvaluateMatrix(r Runner, args, outs []float64, nrows int) error {
	return evaluateMatrix(r, args, outs, nrows, r.Evaluate, r.EvaluateSIMD)
}

// EvaluateComplexMatrix is EvaluateMatrix for the complex domain.
func EvaluateComplexMatrix(r Runner, args, outs []complex128, nrows int) error {
	return evaluateMatrix(r, args, outs, nrows, r.EvaluateComplex, r.EvaluateSIMDComplex)
}

type evalFunc[T bytecode.Scalar] func(args, outs []T) error

func evaluateMatrix[T bytecode.Scalar](r Runner, args, outs []T, nrows int, row, lanes evalFunc[T]) error {
	P, O := r.Params(), r.Outputs()
	if nrows < 0 {
		return fmt.Errorf("%w: negative row count %d", ErrPrecondition, nrows)
	}
	if len(args) != nrows*P {
		return fmt.Errorf("%w: got %d arguments for %d rows of %d", ErrPrecondition, len(args), nrows, P)
	}
	if len(outs) != nrows*O {
		return fmt.Errorf("%w: got %d outputs for %d rows of %d", ErrPrecondition, len(outs), nrows, O)
	}
	plan := PlanMatrix(r, nrows)
	if plan.Chunks == 0 && plan.Tail == 0 {
		return nil
	}
	m := &matrix[T]{
		plan:       plan,
		args:       args,
		outs:       outs,
		params:     P,
		outputs:    O,
		transposed: r.Kind().IsTransposed(),
		row:        row,
		lanes:      lanes,
	}

	if plan.Workers <= 1 {
		if err := m.chunks(0, plan.Chunks); err != nil {
			return err
		}
	} else {
		var g errgroup.Group
		for w := 0; w < plan.Workers; w++ {
			w := w
			lo := w * plan.Chunks / plan.Workers
			hi := (w + 1) * plan.Chunks / plan.Workers
			g.Go(func() (err error) {
				defer func() {
					if p := recover(); p != nil {
						err = fmt.Errorf("runner: matrix worker %d panicked: %v", w, p)
					}
				}()
				return m.chunks(lo, hi)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	for i := plan.Chunks * plan.Lanes; i < nrows; i++ {
		if err := row(args[i*P:(i+1)*P], outs[i*O:(i+1)*O]); err != nil {
			return err
		}
	}
	return nil
}

// matrix is the read-only state of one matrix call. Workers write disjoint
// output ranges derived from chunk indices.
type matrix[T bytecode.Scalar] struct {
	plan            Plan
	args, outs      []T
	params, outputs int
	transposed      bool
	row, lanes      evalFunc[T]
}

// chunks evaluates chunks [lo, hi) with buffers owned by the caller.
func (m *matrix[T]) chunks(lo, hi int) error {
	P, O, L := m.params, m.outputs, m.plan.Lanes
	if L == 1 {
		for i := lo; i < hi; i++ {
			if err := m.row(m.args[i*P:(i+1)*P], m.outs[i*O:(i+1)*O]); err != nil {
				return err
			}
		}
		return nil
	}

	var in, out []T
	if !m.transposed {
		in = make([]T, P*L)
		out = make([]T, O*L)
	}
	for c := lo; c < hi; c++ {
		r0 := c * L
		src := m.args[r0*P : (r0+L)*P]
		dst := m.outs[r0*O : (r0+L)*O]
		if m.transposed {
			if err := m.lanes(src, dst); err != nil {
				return err
			}
			continue
		}
		for l := 0; l < L; l++ {
			for p := 0; p < P; p++ {
				in[p*L+l] = src[l*P+p]
			}
		}
		if err := m.lanes(in, out); err != nil {
			return err
		}
		for l := 0; l < L; l++ {
			for o := 0; o < O; o++ {
				dst[l*O+o] = out[o*L+l]
			}
		}
	}
	return nil
}
