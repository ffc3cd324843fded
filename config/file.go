package config

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "symjit.toml"

// schema is the closed shape of a symjit.toml file. Unknown keys are errors.
const schema = `
#Config: {
	domain?:                "real" | "complex"
	simd?:                  bool
	threads?:               bool
	transposed?:            bool
	interpret?:             bool
	workers?:               int & >=0
	"min-parallel-chunks"?: int & >=1
	"compress-artifacts"?:  bool
}
`

// Parse decodes TOML data over the defaults after checking it against the
// schema.
func Parse(data []byte) (Config, error) {
	raw := map[string]any{}
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := checkSchema(raw); err != nil {
		return Config{}, err
	}

	c := Default()
	if err := toml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func checkSchema(raw map[string]any) error {
	ctx := cuecontext.New()
	s := ctx.CompileString(schema)
	if err := s.Err(); err != nil {
		return fmt.Errorf("config: schema: %w", err)
	}
	def := s.LookupPath(cue.ParsePath("#Config"))
	v := ctx.Encode(raw)
	if err := v.Err(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("config: invalid %s: %w", FileName, err)
	}
	return nil
}

// LoadFile parses the configuration file at path.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cannot read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return c, nil
}

// Load parses symjit.toml from the given directory.
func Load(dir string) (Config, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// FindAndLoad walks up from startDir to find a symjit.toml file and loads
// it. The boolean is false, with the defaults, when no file is found.
func FindAndLoad(startDir string) (Config, bool, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return Config{}, false, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			c, err := LoadFile(path)
			return c, err == nil, err
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), false, nil
		}
		dir = parent
	}
}
