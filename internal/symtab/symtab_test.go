package symtab

import (
	"testing"

	"asmprint/internal/ir"
)

func testModule() *ir.Module {
	m := &ir.Module{Name: "test", ISA: ir.ISAX86_64}
	m.AddSymbol(ir.Symbol{Name: "main", Kind: ir.SymCode, Scope: ir.ScopeExported, Addr: 0x401000})
	m.AddSymbol(ir.Symbol{Name: "helper", Kind: ir.SymCode, Scope: ir.ScopeLocal, Addr: 0x401020})
	m.AddSymbol(ir.Symbol{Name: "message", Kind: ir.SymData, Scope: ir.ScopeLocal, Addr: 0x402000})
	m.AddSymbol(ir.Symbol{Name: "PAGE_SIZE", Kind: ir.SymAbsolute, Value: 4096})
	m.AddSymbol(ir.Symbol{Name: "printf", Kind: ir.SymUndefined})
	m.FunctionEntries = []uint64{0x401000}
	return m
}

func TestResolve(t *testing.T) {
	tab := New(testModule())

	sym, ok := tab.Resolve(0x401020)
	if !ok || sym.Name != "helper" {
		t.Fatalf("Resolve(0x401020) = %v, %v", sym, ok)
	}
	if _, ok := tab.Resolve(0x401010); ok {
		t.Fatal("Resolve of unmapped address must fail")
	}
}

func TestMultipleSymbolsAtAddressKeepDeclarationOrder(t *testing.T) {
	m := &ir.Module{Name: "test", ISA: ir.ISAX86_64}
	m.AddSymbol(ir.Symbol{Name: "first", Kind: ir.SymCode, Addr: 0x1000})
	m.AddSymbol(ir.Symbol{Name: "second", Kind: ir.SymCode, Addr: 0x1000})
	m.AddSymbol(ir.Symbol{Name: "other", Kind: ir.SymCode, Addr: 0x900})

	syms := New(m).At(0x1000)
	if len(syms) != 2 {
		t.Fatalf("expected 2 symbols, got %d", len(syms))
	}
	if syms[0].Name != "first" || syms[1].Name != "second" {
		t.Fatalf("declaration order lost: %s, %s", syms[0].Name, syms[1].Name)
	}
}

func TestAtSkipsAddresslessSymbols(t *testing.T) {
	tab := New(testModule())
	if syms := tab.At(0); len(syms) != 0 {
		t.Fatalf("address 0 should have no symbols, got %d", len(syms))
	}
}

func TestAddrsIn(t *testing.T) {
	tab := New(testModule())

	got := tab.AddrsIn(0x401000, 0x402000)
	if len(got) != 2 || got[0] != 0x401000 || got[1] != 0x401020 {
		t.Fatalf("AddrsIn = %#x", got)
	}
	// Half-open on the right, deduplicated on ties.
	if got := tab.AddrsIn(0x401001, 0x401020); len(got) != 0 {
		t.Fatalf("AddrsIn(exclusive) = %#x", got)
	}

	m := &ir.Module{}
	m.AddSymbol(ir.Symbol{Name: "a", Kind: ir.SymCode, Addr: 0x10})
	m.AddSymbol(ir.Symbol{Name: "b", Kind: ir.SymCode, Addr: 0x10})
	if got := New(m).AddrsIn(0, 0x20); len(got) != 1 || got[0] != 0x10 {
		t.Fatalf("AddrsIn(dup) = %#x", got)
	}
}

func TestExported(t *testing.T) {
	tab := New(testModule())
	exported := tab.Exported()
	if len(exported) != 1 || exported[0].Name != "main" {
		t.Fatalf("Exported() = %v", exported)
	}
}

func TestAbsolutes(t *testing.T) {
	tab := New(testModule())
	abs := tab.Absolutes()
	if len(abs) != 1 || abs[0].Name != "PAGE_SIZE" || abs[0].Value != 4096 {
		t.Fatalf("Absolutes() = %v", abs)
	}
}

func TestLookupAndName(t *testing.T) {
	tab := New(testModule())
	if sym, ok := tab.Lookup("printf"); !ok || sym.Kind != ir.SymUndefined {
		t.Fatalf("Lookup(printf) = %v, %v", sym, ok)
	}
	if _, ok := tab.Lookup("nope"); ok {
		t.Fatal("Lookup of missing name must fail")
	}
	if name, ok := tab.Name(1); !ok || name != "main" {
		t.Fatalf("Name(1) = %q, %v", name, ok)
	}
	if _, ok := tab.Name(0); ok {
		t.Fatal("Name(0) must fail")
	}
}

func TestIsFunctionEntry(t *testing.T) {
	tab := New(testModule())
	if !tab.IsFunctionEntry(0x401000) {
		t.Fatal("0x401000 is a function entry")
	}
	if tab.IsFunctionEntry(0x401020) {
		t.Fatal("0x401020 is not a function entry")
	}
}
