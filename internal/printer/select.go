package printer

import (
	"fmt"

	"asmprint/internal/ir"
)

// ---------------------------------------------------------------------------
// Module Selector
// ---------------------------------------------------------------------------

// Criterion selects which modules of a container to print.
type Criterion struct {
	all   bool
	index int
}

// AllModules selects every module, in container order.
func AllModules() Criterion { return Criterion{all: true} }

// ByIndex selects the single module at the given zero-based index.
func ByIndex(i int) Criterion { return Criterion{index: i} }

func (c Criterion) String() string {
	if c.all {
		return "all"
	}
	return fmt.Sprintf("index %d", c.index)
}

// ModuleIndexOutOfRangeError reports a selection index outside the
// container's module range.
type ModuleIndexOutOfRangeError struct {
	Index int
	Count int
}

func (e *ModuleIndexOutOfRangeError) Error() string {
	return fmt.Sprintf("module index %d out of range (container has %d modules, valid indices 0..%d)",
		e.Index, e.Count, e.Count-1)
}

// Selected pairs a module with its container index, which names its output
// file and scopes its error reports.
type Selected struct {
	Index  int
	Module *ir.Module
}

// Select returns the modules matching the criterion, preserving container
// order.  Select never mutates the container.
func Select(c *ir.Container, criterion Criterion) ([]Selected, error) {
	if criterion.all {
		out := make([]Selected, len(c.Modules))
		for i, m := range c.Modules {
			out[i] = Selected{Index: i, Module: m}
		}
		return out, nil
	}
	if criterion.index < 0 || criterion.index >= len(c.Modules) {
		return nil, &ModuleIndexOutOfRangeError{Index: criterion.index, Count: len(c.Modules)}
	}
	return []Selected{{Index: criterion.index, Module: c.Modules[criterion.index]}}, nil
}
