// Package symbridge compiles symbolic-expression evaluators into runners and
// drives them: single rows, lane-packed batches, and whole matrices, with
// artifacts that can be saved and loaded without the source evaluator.
//
// A typical caller builds an *expr.Evaluator, compiles it once and evaluates
// many times:
//
//	app, err := symbridge.Compile(ev, config.Default())
//	if err != nil {
//		return err
//	}
//	v, err := app.EvaluateSingle([]float64{3, 4})
//
// The returned Application picks the best runner for the host. Config reports
// what was actually honored, so a SIMD request on a host without vector
// support comes back with SIMD cleared.
package symbridge

import (
	"fmt"

	"github.com/chazu/symbridge/artifact"
	"github.com/chazu/symbridge/config"
	"github.com/chazu/symbridge/host"
	"github.com/chazu/symbridge/pkg/bytecode"
	"github.com/chazu/symbridge/pkg/expr"
	"github.com/chazu/symbridge/runner"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("symbridge")

// Application owns one runner and forwards the evaluation surface to it.
type Application struct {
	r       runner.Runner
	params  int
	outputs int
}

// Compile adapts ev and builds an Application for the current host.
func Compile(ev *expr.Evaluator, cfg config.Config) (*Application, error) {
	return CompileWithHost(ev, cfg, host.Detect())
}

// CompileWithHost is Compile against explicit host capabilities.
func CompileWithHost(ev *expr.Evaluator, cfg config.Config, caps host.Caps) (*Application, error) {
	c, err := bytecode.Adapt(ev)
	if err != nil {
		return nil, err
	}
	return CompileChunk(c, cfg, caps)
}

// CompileChunk builds an Application from an already adapted chunk.
func CompileChunk(c *bytecode.Chunk, cfg config.Config, caps host.Caps) (*Application, error) {
	r, err := runner.New(c, cfg, caps)
	if err != nil {
		return nil, err
	}
	return newApplication(r), nil
}

func newApplication(r runner.Runner) *Application {
	return &Application{r: r, params: r.Params(), outputs: r.Outputs()}
}

// Load restores an Application saved by Save on a compatible host.
func Load(path string) (*Application, error) {
	return LoadWithHost(path, host.Detect(), nil)
}

// LoadExpecting is Load that also requires the artifact to take params
// arguments and produce outputs values.
func LoadExpecting(path string, params, outputs int) (*Application, error) {
	return LoadWithHost(path, host.Detect(), &artifact.Expect{Params: params, Outputs: outputs})
}

// LoadWithHost is Load against explicit host capabilities.
func LoadWithHost(path string, caps host.Caps, expect *artifact.Expect) (*Application, error) {
	r, err := runner.Load(path, caps, expect)
	if err != nil {
		return nil, err
	}
	return newApplication(r), nil
}

// Runner returns the underlying runner.
func (a *Application) Runner() runner.Runner { return a.r }

func (a *Application) Config() config.Config { return a.r.Config() }
func (a *Application) Kind() runner.Kind     { return a.r.Kind() }
func (a *Application) Lanes() int            { return a.r.Lanes() }
func (a *Application) Params() int           { return a.params }
func (a *Application) Outputs() int          { return a.outputs }
func (a *Application) ID() uuid.UUID         { return a.r.ID() }

func (a *Application) String() string {
	return fmt.Sprintf("application %s (%s, %d params, %d outputs)", a.r.ID(), a.r.Kind(), a.params, a.outputs)
}

// Save writes the runner's artifact to path.
func (a *Application) Save(path string) error { return a.r.Save(path) }

// Evaluate evaluates one row. len(args) must be Params() and len(outs)
// Outputs().
func (a *Application) Evaluate(args, outs []float64) error {
	return a.r.Evaluate(args, outs)
}

// EvaluateComplex is Evaluate for the complex domain.
func (a *Application) EvaluateComplex(args, outs []complex128) error {
	return a.r.EvaluateComplex(args, outs)
}

// EvaluateSingle evaluates one row of a single-output expression and
// returns the value.
func (a *Application) EvaluateSingle(args []float64) (float64, error) {
	return a.r.EvaluateSingle(args)
}

// EvaluateComplexSingle is EvaluateSingle for the complex domain.
func (a *Application) EvaluateComplexSingle(args []complex128) (complex128, error) {
	return a.r.EvaluateComplexSingle(args)
}

// EvaluateSIMD evaluates a batch of lane-packed rows of any width: args holds
// Params() vectors of equal length w (args[p*w+l]) and outs receives
// Outputs() vectors of length w. The batch is cut into the runner's lane
// width, padding the last chunk, so the caller never sees Lanes().
func (a *Application) EvaluateSIMD(args, outs []float64) error {
	return evaluatePacked(a, args, outs, a.r.Evaluate, a.r.EvaluateSIMD)
}

// EvaluateSIMDComplex is EvaluateSIMD for the complex domain.
func (a *Application) EvaluateSIMDComplex(args, outs []complex128) error {
	return evaluatePacked(a, args, outs, a.r.EvaluateComplex, a.r.EvaluateSIMDComplex)
}

// EvaluateSIMDSingle is EvaluateSIMD for a single-output expression; it
// returns one value per lane.
func (a *Application) EvaluateSIMDSingle(args []float64) ([]float64, error) {
	if a.outputs != 1 {
		return nil, fmt.Errorf("%w: single evaluation of %d outputs", runner.ErrPrecondition, a.outputs)
	}
	width, err := a.width(len(args))
	if err != nil {
		return nil, err
	}
	outs := make([]float64, width)
	if err := a.EvaluateSIMD(args, outs); err != nil {
		return nil, err
	}
	return outs, nil
}

// EvaluateMatrix evaluates nrows row-major rows; see runner.EvaluateMatrix.
func (a *Application) EvaluateMatrix(args, outs []float64, nrows int) error {
	return runner.EvaluateMatrix(a.r, args, outs, nrows)
}

// EvaluateComplexMatrix is EvaluateMatrix for the complex domain.
func (a *Application) EvaluateComplexMatrix(args, outs []complex128, nrows int) error {
	return runner.EvaluateComplexMatrix(a.r, args, outs, nrows)
}

// width returns the lane count of a packed argument buffer of length n.
func (a *Application) width(n int) (int, error) {
	if a.params == 0 {
		return 0, fmt.Errorf("%w: packed evaluation of an expression without parameters", runner.ErrPrecondition)
	}
	if n%a.params != 0 {
		return 0, fmt.Errorf("%w: %d arguments do not split into %d vectors", runner.ErrPrecondition, n, a.params)
	}
	return n / a.params, nil
}

func evaluatePacked[T bytecode.Scalar](a *Application, args, outs []T, row, lanes func(args, outs []T) error) error {
	P, O := a.params, a.outputs
	w, err := a.width(len(args))
	if err != nil {
		return err
	}
	if len(outs) != w*O {
		return fmt.Errorf("%w: got %d outputs for %d lanes of %d", runner.ErrPrecondition, len(outs), w, O)
	}

	L := 1
	if a.r.Kind().IsSIMD() {
		L = a.r.Lanes()
	}
	transposed := a.r.Kind().IsTransposed()
	in := make([]T, P*L)
	out := make([]T, O*L)

	for s := 0; s < w; s += L {
		if L == 1 {
			for p := 0; p < P; p++ {
				in[p] = args[p*w+s]
			}
			if err := row(in, out); err != nil {
				return err
			}
			for o := 0; o < O; o++ {
				outs[o*w+s] = out[o]
			}
			continue
		}

		n := min(L, w-s)
		if n < L {
			clear(in)
		}
		for l := 0; l < n; l++ {
			for p := 0; p < P; p++ {
				if transposed {
					in[l*P+p] = args[p*w+s+l]
				} else {
					in[p*L+l] = args[p*w+s+l]
				}
			}
		}
		if err := lanes(in, out); err != nil {
			return err
		}
		for l := 0; l < n; l++ {
			for o := 0; o < O; o++ {
				if transposed {
					outs[o*w+s+l] = out[l*O+o]
				} else {
					outs[o*w+s+l] = out[o*L+l]
				}
			}
		}
	}
	return nil
}
