package printer

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Printing policies
//
// A policy names sections, functions and symbols to leave out of the
// rendered text, mirroring what a compiler or linker will regenerate when
// the output is rebuilt.  Policies can come from the built-in table or a
// YAML file.
// ---------------------------------------------------------------------------

// Policy holds skip-sets applied while printing one module.
type Policy struct {
	Name string

	SkipSections  map[string]struct{}
	SkipFunctions map[string]struct{}
	SkipSymbols   map[string]struct{}
}

// NewPolicy returns an empty policy with the given name.
func NewPolicy(name string) *Policy {
	return &Policy{
		Name:          name,
		SkipSections:  map[string]struct{}{},
		SkipFunctions: map[string]struct{}{},
		SkipSymbols:   map[string]struct{}{},
	}
}

// linker-owned sections that must not be reproduced in relinkable output.
var defaultSkipSections = []string{
	".comment", ".interp", ".dynamic", ".dynsym", ".dynstr",
	".got", ".got.plt", ".plt", ".plt.got", ".plt.sec",
	".symtab", ".strtab", ".shstrtab",
	".eh_frame_hdr", ".note.ABI-tag", ".note.gnu.build-id",
	".rela.dyn", ".rela.plt", ".gnu.hash", ".hash",
}

// DefaultPolicy is the policy used when none is named: skip sections the
// toolchain regenerates, keep everything else.
func DefaultPolicy() *Policy {
	p := NewPolicy("default")
	for _, s := range defaultSkipSections {
		p.SkipSections[s] = struct{}{}
	}
	return p
}

// CompletePolicy prints everything, including linker-owned sections.  Not
// relinkable in general, but useful for inspection.
func CompletePolicy() *Policy {
	return NewPolicy("complete")
}

// FindPolicy returns a built-in policy by name.
func FindPolicy(name string) (*Policy, error) {
	switch name {
	case "", "default":
		return DefaultPolicy(), nil
	case "complete":
		return CompletePolicy(), nil
	}
	return nil, fmt.Errorf("unknown policy %q (want default or complete)", name)
}

// policyDoc is the YAML schema for policy files.
type policyDoc struct {
	Name          string   `yaml:"name"`
	UseDefaults   *bool    `yaml:"useDefaults,omitempty"`
	SkipSections  []string `yaml:"skipSections,omitempty"`
	KeepSections  []string `yaml:"keepSections,omitempty"`
	SkipFunctions []string `yaml:"skipFunctions,omitempty"`
	KeepFunctions []string `yaml:"keepFunctions,omitempty"`
	SkipSymbols   []string `yaml:"skipSymbols,omitempty"`
	KeepSymbols   []string `yaml:"keepSymbols,omitempty"`
}

// LoadPolicy reads a policy from a YAML file.  Unless useDefaults is false,
// the file's skip/keep lists are applied on top of the default policy.
func LoadPolicy(path string) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read policy file: %w", err)
	}
	var doc policyDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid policy file %s: %w", path, err)
	}

	var p *Policy
	if doc.UseDefaults == nil || *doc.UseDefaults {
		p = DefaultPolicy()
	} else {
		p = NewPolicy("file")
	}
	if doc.Name != "" {
		p.Name = doc.Name
	}

	applySet(p.SkipSections, doc.SkipSections, doc.KeepSections)
	applySet(p.SkipFunctions, doc.SkipFunctions, doc.KeepFunctions)
	applySet(p.SkipSymbols, doc.SkipSymbols, doc.KeepSymbols)
	return p, nil
}

func applySet(set map[string]struct{}, skip, keep []string) {
	for _, s := range skip {
		set[s] = struct{}{}
	}
	for _, s := range keep {
		delete(set, s)
	}
}

func (p *Policy) skipSection(name string) bool {
	_, ok := p.SkipSections[name]
	return ok
}

func (p *Policy) skipFunction(name string) bool {
	_, ok := p.SkipFunctions[name]
	return ok
}

func (p *Policy) skipSymbol(name string) bool {
	_, ok := p.SkipSymbols[name]
	return ok
}
