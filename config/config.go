// Package config holds the evaluation options shared by runners and
// applications, and loads them from symjit.toml files.
package config

import (
	"fmt"
	"runtime"

	"github.com/chazu/symbridge/pkg/bytecode"
)

// DefaultMinParallelChunks is the number of lane chunks below which matrix
// evaluation stays on the calling goroutine.
const DefaultMinParallelChunks = 16

// Config selects the numeric domain and execution strategy. It is a plain
// value: the With methods return modified copies.
type Config struct {
	Domain     bytecode.Domain `toml:"domain" cbor:"1,keyasint"`
	SIMD       bool            `toml:"simd" cbor:"2,keyasint"`
	Threads    bool            `toml:"threads" cbor:"3,keyasint"`
	Transposed bool            `toml:"transposed" cbor:"4,keyasint"`
	Interpret  bool            `toml:"interpret" cbor:"5,keyasint"`

	// Workers caps matrix worker goroutines. Zero means one per CPU.
	Workers int `toml:"workers" cbor:"6,keyasint"`

	MinParallelChunks int  `toml:"min-parallel-chunks" cbor:"7,keyasint"`
	CompressArtifacts bool `toml:"compress-artifacts" cbor:"8,keyasint"`
}

// Default returns the real-domain, scalar, single-threaded configuration.
func Default() Config {
	return Config{
		Domain:            bytecode.Real,
		MinParallelChunks: DefaultMinParallelChunks,
	}
}

func (c Config) WithDomain(d bytecode.Domain) Config { c.Domain = d; return c }
func (c Config) WithSIMD(on bool) Config             { c.SIMD = on; return c }
func (c Config) WithThreads(on bool) Config          { c.Threads = on; return c }
func (c Config) WithTransposed(on bool) Config       { c.Transposed = on; return c }
func (c Config) WithInterpret(on bool) Config        { c.Interpret = on; return c }
func (c Config) WithWorkers(n int) Config            { c.Workers = n; return c }
func (c Config) WithMinParallelChunks(n int) Config  { c.MinParallelChunks = n; return c }
func (c Config) WithCompressArtifacts(on bool) Config {
	c.CompressArtifacts = on
	return c
}

// IsComplex reports whether the domain is complex.
func (c Config) IsComplex() bool { return c.Domain == bytecode.Complex }

// EffectiveWorkers resolves Workers against the CPU count.
func (c Config) EffectiveWorkers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

// EffectiveMinParallelChunks resolves an unset threshold to the default.
func (c Config) EffectiveMinParallelChunks() int {
	if c.MinParallelChunks > 0 {
		return c.MinParallelChunks
	}
	return DefaultMinParallelChunks
}

// Validate rejects values no runner can honor.
func (c Config) Validate() error {
	if c.Domain != bytecode.Real && c.Domain != bytecode.Complex {
		return fmt.Errorf("config: invalid domain %d", c.Domain)
	}
	if c.Workers < 0 {
		return fmt.Errorf("config: workers must be >= 0, got %d", c.Workers)
	}
	if c.MinParallelChunks < 0 {
		return fmt.Errorf("config: min-parallel-chunks must be >= 0, got %d", c.MinParallelChunks)
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("domain=%s simd=%t threads=%t transposed=%t interpret=%t",
		c.Domain, c.SIMD, c.Threads, c.Transposed, c.Interpret)
}
