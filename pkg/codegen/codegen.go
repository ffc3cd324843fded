// Package codegen turns canonical bytecode into invocable routines.
//
// A Backend is registered per instruction set. Compile produces a Routine
// together with the code bytes that reproduce it; Link rebuilds an
// equivalent Routine from those bytes on a host of the same ISA.
package codegen

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/chazu/symbridge/pkg/bytecode"
)

var (
	// ErrUnsupported is returned when a backend cannot compile a chunk with
	// the requested options.
	ErrUnsupported = errors.New("codegen: unsupported")

	// ErrLink is returned when code bytes cannot be linked.
	ErrLink = errors.New("codegen: link failed")

	// ErrDomain is returned when a routine is called with the wrong element
	// type.
	ErrDomain = errors.New("codegen: domain mismatch")
)

// Options fixes the shape of a compiled routine.
type Options struct {
	Domain bytecode.Domain

	// Lanes is the number of rows one call evaluates. 1 means scalar.
	Lanes int

	// Transposed selects row-major argument and output buffers
	// (args[l*P+p]) instead of lane-packed ones (args[p*L+l]).
	Transposed bool
}

func (o Options) normalized() Options {
	if o.Lanes < 1 {
		o.Lanes = 1
	}
	return o
}

// Backend compiles and links routines for one ISA.
type Backend interface {
	// Arch returns the GOARCH the backend emits for.
	Arch() string

	// Compile emits a routine for c.
	Compile(c *bytecode.Chunk, opts Options) (*Routine, error)

	// Link rebuilds a routine from code bytes returned by an earlier
	// Compile with the same options.
	Link(code []byte, opts Options) (*Routine, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Backend)
)

// Register makes a backend available under its Arch. A later registration
// for the same arch replaces the earlier one.
func Register(b Backend) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[b.Arch()] = b
}

// Lookup returns the backend registered for arch.
func Lookup(arch string) (Backend, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	b, ok := registry[arch]
	return b, ok
}

// Supported lists the archs with a registered backend.
func Supported() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	archs := make([]string, 0, len(registry))
	for a := range registry {
		archs = append(archs, a)
	}
	sort.Strings(archs)
	return archs
}

// Routine is a compiled, read-only function over flat buffers. One call
// evaluates Lanes rows: len(args) == Params*Lanes and len(outs) ==
// Outputs*Lanes. Routines are safe for concurrent use.
type Routine struct {
	Arch    string
	Options Options
	Params  int
	Outputs int

	// Code reproduces the routine through Backend.Link.
	Code []byte

	real    *program[float64]
	complex *program[complex128]
}

// Lanes returns the rows evaluated per call.
func (r *Routine) Lanes() int { return r.Options.Lanes }

// CallReal evaluates a real-domain routine.
func (r *Routine) CallReal(args, outs []float64) error {
	if r.real == nil {
		return fmt.Errorf("%w: routine is %s", ErrDomain, r.Options.Domain)
	}
	r.real.call(args, outs)
	return nil
}

// CallComplex evaluates a complex-domain routine.
func (r *Routine) CallComplex(args, outs []complex128) error {
	if r.complex == nil {
		return fmt.Errorf("%w: routine is %s", ErrDomain, r.Options.Domain)
	}
	r.complex.call(args, outs)
	return nil
}
