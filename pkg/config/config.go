// Package config loads signature files: YAML documents that name
// scan configurations so tools can resolve addresses by name instead
// of hardcoding patterns.
//
// A signature file looks like this:
//
//	signatures:
//	  - name: unit-table
//	    pattern: "48 03 C7 49 8B 8C C6"
//	    ops: ["offset 7", "cmpi32 0x100000"]
//	    fallbacks:
//	      - pattern: "48 03 C7 49 8B 8C ??"
//	        ops: ["offset 7"]
//
// Each signature builds into a memsig.Fallback trying the primary
// pattern first and then each fallback in order.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/go-sigscan/sigscan/pkg/logflags"
	"github.com/go-sigscan/sigscan/pkg/memsig"
)

// Alternative is one fallback pattern of a signature.
type Alternative struct {
	Pattern string   `yaml:"pattern"`
	Ops     []string `yaml:"ops"`
}

// Signature is one named entry of a signature file.
type Signature struct {
	Name      string        `yaml:"name"`
	Pattern   string        `yaml:"pattern"`
	Ops       []string      `yaml:"ops"`
	Fallbacks []Alternative `yaml:"fallbacks"`
}

// File is a parsed signature file.
type File struct {
	Signatures []Signature `yaml:"signatures"`
}

// Load reads and parses the signature file at path. Parsing does not
// compile the patterns; call Build for that.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %v", path, err)
	}
	logflags.ConfigLogger().Debugf("loaded %d signatures from %s", len(f.Signatures), path)
	return &f, nil
}

// Build compiles every signature of the file and registers it in a
// fresh Registry. Compilation errors name the offending signature.
func (f *File) Build() (*Registry, error) {
	r := NewRegistry()
	for i := range f.Signatures {
		sig := &f.Signatures[i]
		if sig.Name == "" {
			return nil, fmt.Errorf("signature %d has no name", i)
		}
		fb, err := sig.build()
		if err != nil {
			return nil, fmt.Errorf("signature %q: %v", sig.Name, err)
		}
		if err := r.Register(sig.Name, fb); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (sig *Signature) build() (memsig.Fallback, error) {
	cfgs := make([]*memsig.ScanConfig, 0, 1+len(sig.Fallbacks))
	cfg, err := buildConfig(sig.Pattern, sig.Ops)
	if err != nil {
		return memsig.Fallback{}, err
	}
	cfgs = append(cfgs, cfg)
	for i, alt := range sig.Fallbacks {
		cfg, err := buildConfig(alt.Pattern, alt.Ops)
		if err != nil {
			return memsig.Fallback{}, fmt.Errorf("fallback %d: %v", i, err)
		}
		cfgs = append(cfgs, cfg)
	}
	return memsig.NewFallback(cfgs...), nil
}

func buildConfig(pattern string, ops []string) (*memsig.ScanConfig, error) {
	instrs, err := ParseOps(ops)
	if err != nil {
		return nil, err
	}
	return memsig.NewConfig(pattern, instrs...)
}
