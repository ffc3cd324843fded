package symbridge

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/chazu/symbridge/artifact"
	"github.com/chazu/symbridge/config"
	"github.com/chazu/symbridge/host"
	"github.com/chazu/symbridge/pkg/bytecode"
	"github.com/chazu/symbridge/pkg/expr"
	"github.com/chazu/symbridge/runner"
	"github.com/chazu/symbridge/store"
	"github.com/zeebo/xxh3"
)

// CompileCached is Compile backed by an artifact store. A usable artifact
// for the same chunk, effective configuration and host is restored instead
// of compiled; otherwise the new runner's artifact is stored.
func CompileCached(st *store.Store, ev *expr.Evaluator, cfg config.Config) (*Application, error) {
	return CompileCachedWithHost(st, ev, cfg, host.Detect())
}

// CompileCachedWithHost is CompileCached against explicit host capabilities.
func CompileCachedWithHost(st *store.Store, ev *expr.Evaluator, cfg config.Config, caps host.Caps) (*Application, error) {
	c, err := bytecode.Adapt(ev)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", runner.ErrCompile, err)
	}
	key, err := CacheKey(c, cfg, caps)
	if err != nil {
		return nil, err
	}

	a, err := st.Get(key)
	switch {
	case err == nil:
		r, err := runner.FromArtifact(a, caps, &artifact.Expect{Params: int(c.ParamCount), Outputs: int(c.OutputCount)})
		if err == nil {
			log.Debugf("cache hit %s (%s)", key, r.Kind())
			return newApplication(r), nil
		}
		log.Warningf("discarding cached artifact %s: %s", key, err)
	case errors.Is(err, store.ErrNotFound):
	default:
		return nil, err
	}

	app, err := CompileChunk(c, cfg, caps)
	if err != nil {
		return nil, err
	}
	art, err := app.r.Artifact()
	if err != nil {
		return nil, err
	}
	if err := st.Put(key, art); err != nil {
		return nil, err
	}
	log.Debugf("cached %s as %s", app.r.Kind(), key)
	return app, nil
}

// CacheKey is the store key for c compiled under cfg on caps: an xxh3-128
// hash of the serialized chunk, the effective configuration, and the host's
// ISA and lane width.
func CacheKey(c *bytecode.Chunk, cfg config.Config, caps host.Caps) (string, error) {
	data, err := c.Serialize()
	if err != nil {
		return "", err
	}
	sel := runner.Select(cfg, caps, c)
	// Every field counts, not just the ones Config.String prints.
	type fields config.Config
	h := xxh3.New()
	h.Write(data)
	fmt.Fprintf(h, "\x00%+v\x00%s\x00%d", fields(sel.Effective), caps.ISA(), sel.Lanes)
	sum := h.Sum128().Bytes()
	return hex.EncodeToString(sum[:]), nil
}
