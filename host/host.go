// Package host reports the capabilities of the machine a runner is built
// for: instruction set, usable vector width and a few descriptive facts
// about the CPU.
//
// Runners and artifacts take a Caps value rather than probing the machine
// themselves, so tests can describe hosts that do not exist.
package host

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/chazu/symbridge/pkg/bytecode"
	"github.com/klauspost/cpuid/v2"
	"golang.org/x/sys/cpu"
)

// PortableISA is the ISA tag of code that runs anywhere.
const PortableISA = "portable"

// Caps describes a host.
type Caps struct {
	// Arch uses GOARCH naming ("amd64", "arm64", ...).
	Arch string

	// VectorBits is the widest float64 vector the code generators may use,
	// or 0 when the host has no usable SIMD.
	VectorBits int

	// x86-64
	HasAVX     bool
	HasAVX2    bool
	HasFMA     bool
	HasAVX512F bool

	// arm64
	HasASIMD bool

	Brand         string
	PhysicalCores int
	LogicalCores  int
}

// Lanes returns how many values of domain d one vector holds. A complex lane
// keeps real and imaginary parts in separate vectors, so both domains get
// the same count. Hosts without SIMD report 1.
func (c Caps) Lanes(d bytecode.Domain) int {
	if c.VectorBits < 128 {
		return 1
	}
	return c.VectorBits / 64
}

// HasSIMD reports whether any vector width is usable.
func (c Caps) HasSIMD() bool { return c.VectorBits >= 128 }

// ISA returns the tag recorded in native artifacts built for this host.
func (c Caps) ISA() string { return c.Arch }

// WithoutSIMD returns a copy of c with vector support removed.
func (c Caps) WithoutSIMD() Caps {
	c.VectorBits = 0
	c.HasAVX, c.HasAVX2, c.HasFMA, c.HasAVX512F = false, false, false, false
	c.HasASIMD = false
	return c
}

// Features lists the detected vector extensions.
func (c Caps) Features() []string {
	var fs []string
	add := func(ok bool, name string) {
		if ok {
			fs = append(fs, name)
		}
	}
	add(c.HasAVX, "avx")
	add(c.HasAVX2, "avx2")
	add(c.HasFMA, "fma")
	add(c.HasAVX512F, "avx512f")
	add(c.HasASIMD, "asimd")
	return fs
}

func (c Caps) String() string {
	features := "none"
	if fs := c.Features(); len(fs) > 0 {
		features = strings.Join(fs, ",")
	}
	return fmt.Sprintf("%s vector=%d bits features=%s", c.Arch, c.VectorBits, features)
}

var (
	detected     Caps
	detectedOnce sync.Once
)

// Detect returns the capabilities of the running machine. The probe runs
// once per process.
func Detect() Caps {
	detectedOnce.Do(func() {
		detected = detect(runtime.GOARCH)
	})
	return detected
}

func detect(arch string) Caps {
	c := Caps{
		Arch:          arch,
		Brand:         cpuid.CPU.BrandName,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
	}
	if c.LogicalCores == 0 {
		c.LogicalCores = runtime.NumCPU()
	}
	if c.Brand == "" {
		c.Brand = "unknown"
	}

	switch arch {
	case "amd64":
		c.HasAVX = cpu.X86.HasAVX
		c.HasAVX2 = cpu.X86.HasAVX2
		c.HasFMA = cpu.X86.HasFMA
		c.HasAVX512F = cpu.X86.HasAVX512F
		// Lane width stays at four doubles even with AVX-512; wider
		// vectors downclock on many parts.
		if c.HasAVX {
			c.VectorBits = 256
		}
	case "arm64":
		c.HasASIMD = cpu.ARM64.HasASIMD
		if c.HasASIMD {
			c.VectorBits = 128
		}
	}
	return c
}
