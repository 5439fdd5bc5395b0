package symtab

import (
	"sort"

	"asmprint/internal/ir"
)

// ---------------------------------------------------------------------------
// Symbol Table View
//
// A Table is an address-ordered, read-only index over one module's symbols,
// built once before printing.  Symbols never leak across modules: every
// Table is scoped to the module it was built from.
// ---------------------------------------------------------------------------

// Table indexes the symbols of a single module by address and by name.
type Table struct {
	module *ir.Module

	// byAddr holds ids of address-bearing symbols sorted by (address,
	// declaration order), so multiple symbols on one address keep their
	// input order.
	byAddr []ir.SymbolID
	byName map[string]ir.SymbolID
}

// New builds the symbol index for a module.
func New(m *ir.Module) *Table {
	t := &Table{
		module: m,
		byName: make(map[string]ir.SymbolID, len(m.Symbols)),
	}
	for i := range m.Symbols {
		id := ir.SymbolID(i + 1)
		sym := &m.Symbols[i]
		if _, dup := t.byName[sym.Name]; !dup {
			t.byName[sym.Name] = id
		}
		if sym.HasAddr() {
			t.byAddr = append(t.byAddr, id)
		}
	}
	sort.SliceStable(t.byAddr, func(a, b int) bool {
		return t.sym(t.byAddr[a]).Addr < t.sym(t.byAddr[b]).Addr
	})
	return t
}

func (t *Table) sym(id ir.SymbolID) *ir.Symbol { return t.module.Symbol(id) }

// Resolve returns a symbol defined exactly at addr, if any.  When several
// symbols share the address, the first-declared one is returned.
func (t *Table) Resolve(addr uint64) (*ir.Symbol, bool) {
	syms := t.At(addr)
	if len(syms) == 0 {
		return nil, false
	}
	return syms[0], true
}

// At returns all symbols defined at addr, in declaration order.
func (t *Table) At(addr uint64) []*ir.Symbol {
	i := sort.Search(len(t.byAddr), func(i int) bool {
		return t.sym(t.byAddr[i]).Addr >= addr
	})
	var out []*ir.Symbol
	for ; i < len(t.byAddr); i++ {
		s := t.sym(t.byAddr[i])
		if s.Addr != addr {
			break
		}
		out = append(out, s)
	}
	return out
}

// AddrsIn returns the distinct symbol-bearing addresses in [lo, hi),
// ascending.  The printer uses it to split gaps and data blocks at interior
// label positions.
func (t *Table) AddrsIn(lo, hi uint64) []uint64 {
	i := sort.Search(len(t.byAddr), func(i int) bool {
		return t.sym(t.byAddr[i]).Addr >= lo
	})
	var out []uint64
	for ; i < len(t.byAddr); i++ {
		a := t.sym(t.byAddr[i]).Addr
		if a >= hi {
			break
		}
		if n := len(out); n == 0 || out[n-1] != a {
			out = append(out, a)
		}
	}
	return out
}

// Lookup returns the symbol with the given name.
func (t *Table) Lookup(name string) (*ir.Symbol, bool) {
	id, ok := t.byName[name]
	if !ok {
		return nil, false
	}
	return t.sym(id), true
}

// Exported returns the module's exported symbols in declaration order.
func (t *Table) Exported() []*ir.Symbol {
	var out []*ir.Symbol
	for i := range t.module.Symbols {
		if t.module.Symbols[i].Scope == ir.ScopeExported {
			out = append(out, &t.module.Symbols[i])
		}
	}
	return out
}

// Absolutes returns the module's absolute-value symbols in declaration
// order.  These are printed as assembler constants, not labels.
func (t *Table) Absolutes() []*ir.Symbol {
	var out []*ir.Symbol
	for i := range t.module.Symbols {
		if t.module.Symbols[i].Kind == ir.SymAbsolute {
			out = append(out, &t.module.Symbols[i])
		}
	}
	return out
}

// Name resolves a SymbolID to its name.  Used by the dialect emitters when
// rendering symbolic operands.
func (t *Table) Name(id ir.SymbolID) (string, bool) {
	s := t.sym(id)
	if s == nil {
		return "", false
	}
	return s.Name, true
}

// IsFunctionEntry reports whether addr is a recorded function entry point.
func (t *Table) IsFunctionEntry(addr uint64) bool {
	for _, a := range t.module.FunctionEntries {
		if a == addr {
			return true
		}
	}
	return false
}
