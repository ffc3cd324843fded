package runner

import (
	"github.com/chazu/symbridge/config"
	"github.com/chazu/symbridge/host"
	"github.com/chazu/symbridge/pkg/bytecode"
	"github.com/chazu/symbridge/pkg/codegen"
)

// Selection is the outcome of backend selection.
type Selection struct {
	Kind Kind

	// Effective is the configuration the runner will report: SIMD and
	// Transposed are cleared when they cannot be honored, and Interpret is
	// set when no native backend exists.
	Effective config.Config

	Lanes int

	// Reason explains a downgrade, empty when the request was honored.
	Reason string
}

// Select picks the runner variant for c under cfg on caps. It has no side
// effects.
//
//  1. Interpret forces the interpreter.
//  2. Without a native backend for the host the interpreter is used.
//  3. SIMD is honored when the host has lanes for the domain and c does not
//     branch.
//  4. Otherwise the scalar compiled variant is used.
func Select(cfg config.Config, caps host.Caps, c *bytecode.Chunk) Selection {
	eff := cfg
	sel := Selection{Lanes: 1}

	scalar := func(reason string) {
		if eff.SIMD && sel.Reason == "" {
			sel.Reason = reason
		}
		eff.SIMD = false
		eff.Transposed = false
	}

	switch {
	case cfg.Interpret:
		scalar("interpreter requested")
	case !hasBackend(caps):
		scalar("no native backend for " + caps.Arch)
		eff.Interpret = true
	case cfg.SIMD && caps.Lanes(cfg.Domain) < 2:
		scalar("host has no vector lanes")
	case cfg.SIMD && c.HasBranches():
		scalar("code branches")
	case cfg.SIMD:
		sel.Lanes = caps.Lanes(cfg.Domain)
	default:
		scalar("")
	}

	sel.Effective = eff
	sel.Kind = kindFor(eff.Domain, eff.Interpret, eff.SIMD, eff.Transposed)
	return sel
}

func hasBackend(caps host.Caps) bool {
	_, ok := codegen.Lookup(caps.Arch)
	return ok
}
