package artifact

import (
	"fmt"

	"github.com/chazu/symbridge/host"
	"github.com/chazu/symbridge/pkg/bytecode"
)

// Expect is an arity the caller requires of a loaded artifact.
type Expect struct {
	Params  int
	Outputs int
}

// Verify checks that h can run on caps. Portable artifacts run anywhere.
// Native ones need the same ISA, and the host must offer at least h.Lanes
// vector lanes: lane counts are not required to match exactly, so a 2-lane
// artifact loads on a 4-lane host and still runs 2 lanes per call. When
// expect is non-nil the arity must match too.
func Verify(h Header, caps host.Caps, expect *Expect) error {
	if h.ISA != host.PortableISA {
		if h.ISA != caps.ISA() {
			return fmt.Errorf("%w: built for %s, host is %s", ErrArchitectureMismatch, h.ISA, caps.ISA())
		}
		if h.Lanes > 1 && int(h.Lanes) > caps.Lanes(bytecode.Domain(h.Domain)) {
			return fmt.Errorf("%w: built for %d lanes, host offers %d",
				ErrArchitectureMismatch, h.Lanes, caps.Lanes(bytecode.Domain(h.Domain)))
		}
	}
	if expect != nil {
		if int(h.Params) != expect.Params || int(h.Outputs) != expect.Outputs {
			return fmt.Errorf("%w: artifact has %d params and %d outputs, want %d and %d",
				ErrArityMismatch, h.Params, h.Outputs, expect.Params, expect.Outputs)
		}
	}
	return nil
}
