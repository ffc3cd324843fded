package runner

import (
	"fmt"
	"io"

	"github.com/chazu/symbridge/artifact"
	"github.com/chazu/symbridge/host"
	"github.com/chazu/symbridge/pkg/bytecode"
	"github.com/chazu/symbridge/pkg/codegen"
	"github.com/dustin/go-humanize"
)

// Artifact captures the runner. Native runners store their code bytes and
// calling convention; interpreters store the serialized chunk.
func (b *base[T]) Artifact() (*artifact.Artifact, error) {
	a := &artifact.Artifact{
		Header: artifact.Header{
			Kind:    uint8(b.kind),
			Domain:  uint8(b.kind.Domain()),
			Lanes:   uint16(b.lanes),
			Params:  uint32(b.params),
			Outputs: uint32(b.outputs),
			ISA:     b.ISA(),
			ID:      b.id,
		},
		Payload: artifact.Payload{Config: b.cfg},
	}
	if b.cfg.CompressArtifacts {
		a.Header.Flags |= artifact.FlagCompressed
	}
	if b.kind.IsTransposed() {
		a.Header.Flags |= artifact.FlagTransposed
	}

	if b.native != nil {
		a.Payload.Native = &artifact.Native{
			Arch:       b.native.arch,
			Lanes:      b.lanes,
			Transposed: b.kind.IsTransposed(),
			Code:       b.native.scalar.Code,
		}
		return a, nil
	}
	c := b.interp.Chunk()
	data, err := c.Serialize()
	if err != nil {
		return nil, err
	}
	a.Payload.Bytecode = data
	a.Payload.Registers = c.RegCount()
	return a, nil
}

// Save writes the runner's artifact to path.
func (b *base[T]) Save(path string) error {
	a, err := b.Artifact()
	if err != nil {
		return err
	}
	if err := artifact.WriteFile(path, a); err != nil {
		return fmt.Errorf("runner: save %s: %w", path, err)
	}
	log.Debugf("saved %s runner to %s (%s payload)", b.kind, path, humanize.Bytes(a.Header.PayloadLen))
	return nil
}

// Load reads an artifact and rebuilds its runner for caps. Native artifacts
// built for another ISA or a wider vector unit fail with
// artifact.ErrArchitectureMismatch before any code is linked. A non-nil
// expect also checks the arity.
func Load(path string, caps host.Caps, expect *artifact.Expect) (Runner, error) {
	a, err := artifact.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("runner: load %s: %w", path, err)
	}
	r, err := FromArtifact(a, caps, expect)
	if err != nil {
		return nil, fmt.Errorf("runner: load %s: %w", path, err)
	}
	log.Debugf("loaded %s runner from %s", r.Kind(), path)
	return r, nil
}

// Decode reads an artifact from rd and rebuilds its runner. See Load.
func Decode(rd io.Reader, caps host.Caps, expect *artifact.Expect) (Runner, error) {
	a, err := artifact.Decode(rd)
	if err != nil {
		return nil, err
	}
	return FromArtifact(a, caps, expect)
}

// FromArtifact rebuilds a runner from a decoded artifact.
func FromArtifact(a *artifact.Artifact, caps host.Caps, expect *artifact.Expect) (Runner, error) {
	h := a.Header
	if err := artifact.Verify(h, caps, expect); err != nil {
		return nil, err
	}
	kind := Kind(h.Kind)
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown runner kind %d", artifact.ErrCorrupt, h.Kind)
	}
	if uint8(kind.Domain()) != h.Domain {
		return nil, fmt.Errorf("%w: %s runner with domain %d", artifact.ErrCorrupt, kind, h.Domain)
	}
	if kind.IsInterpreted() != (a.Payload.Bytecode != nil) {
		return nil, fmt.Errorf("%w: %s runner with the wrong payload", artifact.ErrCorrupt, kind)
	}
	if !kind.IsInterpreted() && a.Payload.Native == nil {
		return nil, fmt.Errorf("%w: %s runner without native code", artifact.ErrCorrupt, kind)
	}

	if kind.Domain() == bytecode.Complex {
		return restore[complex128](a, kind)
	}
	return restore[float64](a, kind)
}

func restore[T bytecode.Scalar](a *artifact.Artifact, kind Kind) (Runner, error) {
	h, p := a.Header, a.Payload
	b := &base[T]{
		kind:    kind,
		cfg:     strategy(p.Config, kind),
		id:      h.ID,
		params:  int(h.Params),
		outputs: int(h.Outputs),
		lanes:   int(h.Lanes),
	}

	if kind.IsInterpreted() {
		c, err := bytecode.Deserialize(p.Bytecode)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", artifact.ErrCorrupt, err)
		}
		if c.RegCount() != p.Registers || int(c.ParamCount) != b.params || int(c.OutputCount) != b.outputs {
			return nil, fmt.Errorf("%w: bytecode does not match header", artifact.ErrCorrupt)
		}
		b.interp, err = bytecode.NewInterpreter[T](c)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", artifact.ErrCorrupt, err)
		}
		b.lanes = 1
		return wrap(b), nil
	}

	n := p.Native
	if n.Arch != h.ISA || n.Lanes != b.lanes || n.Transposed != kind.IsTransposed() {
		return nil, fmt.Errorf("%w: calling convention does not match header", artifact.ErrCorrupt)
	}
	be, ok := codegen.Lookup(h.ISA)
	if !ok {
		return nil, fmt.Errorf("%w: no backend for %s", artifact.ErrArchitectureMismatch, h.ISA)
	}
	domain := kind.Domain()
	scalar, err := be.Link(n.Code, codegen.Options{Domain: domain, Lanes: 1})
	if err != nil {
		return nil, err
	}
	if scalar.Params != b.params || scalar.Outputs != b.outputs {
		return nil, fmt.Errorf("%w: code does not match header arity", artifact.ErrCorrupt)
	}
	b.native = &nativeCode{arch: h.ISA, scalar: scalar}
	if kind.IsSIMD() {
		if b.lanes < 2 {
			return nil, fmt.Errorf("%w: %s runner with %d lanes", artifact.ErrCorrupt, kind, b.lanes)
		}
		b.native.packed, err = be.Link(n.Code, codegen.Options{Domain: domain, Lanes: b.lanes, Transposed: n.Transposed})
		if err != nil {
			return nil, err
		}
	} else {
		b.lanes = 1
	}
	return wrap(b), nil
}
