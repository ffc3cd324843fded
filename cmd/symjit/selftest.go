package main

import (
	"flag"
	"fmt"
	"io"
	"math"
	"math/cmplx"
	"os"
	"path/filepath"

	"github.com/chazu/symbridge"
	"github.com/chazu/symbridge/config"
	"github.com/chazu/symbridge/host"
	"github.com/chazu/symbridge/pkg/bytecode"
	"github.com/chazu/symbridge/pkg/expr"
)

// check is one reference evaluation.
type check struct {
	name   string
	domain bytecode.Domain
	build  func() *expr.Evaluator
	args   []complex128
	want   complex128
	tol    float64
}

func xPlusYPow(n int64) func() *expr.Evaluator {
	return func() *expr.Evaluator {
		b := expr.NewBuilder("x", "y")
		b.Output(b.Add(b.Var("x"), b.Pow(b.Var("y"), n)))
		return b.Build()
	}
}

func sinhSum() *expr.Evaluator {
	fm := expr.NewFunctionMap()
	if err := fm.AddExternalFunction("sinh", 1); err != nil {
		panic(err)
	}
	b := expr.NewBuilder("x", "y").WithFunctions(fm)
	b.Output(b.Call("sinh", b.Add(b.Var("x"), b.Var("y"))))
	return b.Build()
}

var checks = []check{
	{"x+y^2", bytecode.Real, xPlusYPow(2), []complex128{3, 4}, 19, 0},
	{"x+y^3", bytecode.Real, xPlusYPow(3), []complex128{3, 5}, 128, 0},
	{"sinh(x+y)", bytecode.Real, sinhSum, []complex128{2, -3}, complex(math.Sinh(-1), 0), 1e-15},
	{"x+y^3 complex", bytecode.Complex, xPlusYPow(3), []complex128{2 + 1i, -2 + 4i}, 90 - 15i, 0},
	{"x+y^3 complex", bytecode.Complex, xPlusYPow(3), []complex128{2 + 5i, -2 + 3i}, 48 + 14i, 0},
}

func runSelftest(args []string, cfg config.Config) error {
	fs := flag.NewFlagSet("selftest", flag.ExitOnError)
	saveDir := fs.String("save", "", "Directory to save each compiled artifact to")
	fs.Parse(args)

	failed, err := selftest(os.Stdout, cfg, host.Detect(), *saveDir)
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, len(checks))
	}
	return nil
}

// selftest runs every check under cfg (with each check's domain) and
// reports to w. When saveDir is set each application is saved, reloaded and
// checked again.
func selftest(w io.Writer, cfg config.Config, caps host.Caps, saveDir string) (int, error) {
	failed := 0
	for i, c := range checks {
		app, err := symbridge.CompileWithHost(c.build(), cfg.WithDomain(c.domain), caps)
		if err != nil {
			return failed, fmt.Errorf("%s: %w", c.name, err)
		}
		ok, got, err := c.run(app)
		if err != nil {
			return failed, fmt.Errorf("%s: %w", c.name, err)
		}

		if ok && saveDir != "" {
			path := filepath.Join(saveDir, fmt.Sprintf("check%d.sjit", i))
			if err := app.Save(path); err != nil {
				return failed, err
			}
			loaded, err := symbridge.LoadWithHost(path, caps, nil)
			if err != nil {
				return failed, err
			}
			if ok, got, err = c.run(loaded); err != nil {
				return failed, fmt.Errorf("%s (reloaded): %w", c.name, err)
			}
		}

		status := "ok  "
		if !ok {
			status = "FAIL"
			failed++
		}
		fmt.Fprintf(w, "%s %-16s %-24s = %v (want %v)\n", status, c.name, app.Kind(), got, c.want)
	}
	return failed, nil
}

func (c check) run(app *symbridge.Application) (bool, complex128, error) {
	if c.domain == bytecode.Complex {
		got, err := app.EvaluateComplexSingle(c.args)
		return cmplx.Abs(got-c.want) <= c.tol, got, err
	}
	args := make([]float64, len(c.args))
	for i, a := range c.args {
		args[i] = real(a)
	}
	got, err := app.EvaluateSingle(args)
	return math.Abs(got-real(c.want)) <= c.tol, complex(got, 0), err
}
