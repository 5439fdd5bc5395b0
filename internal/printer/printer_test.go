package printer

import (
	"bytes"
	"strings"
	"testing"

	"asmprint/internal/ir"
	"asmprint/internal/syntax"
)

// ---------------------------------------------------------------------------
// Fixtures: a two-module container with the classic main/fun layout.
// ---------------------------------------------------------------------------

func mainModule() *ir.Module {
	m := &ir.Module{Name: "main", ISA: ir.ISAX86_64, Format: ir.FormatELF, Entry: 0x401000}
	m.AddSymbol(ir.Symbol{Name: "main", Kind: ir.SymCode, Scope: ir.ScopeExported, Addr: 0x401000})
	m.AddSymbol(ir.Symbol{Name: "message", Kind: ir.SymData, Scope: ir.ScopeLocal, Addr: 0x402000})
	m.FunctionEntries = []uint64{0x401000}

	m.Sections = []*ir.Section{
		{
			Name:  ".text",
			Flags: ir.SecCode | ir.SecInitialized | ir.SecReadOnly,
			Intervals: []*ir.ByteInterval{{
				Addr:  0x401000,
				Size:  8,
				Bytes: []byte{0x48, 0xc7, 0xc0, 0x3c, 0, 0, 0, 0x0f},
				Blocks: []ir.Block{{
					Kind: ir.BlockCode, Offset: 0, Size: 8,
					Instructions: []ir.Instruction{
						{Addr: 0x401000, Size: 7, Mnemonic: "movq",
							Operands: []ir.Operand{ir.Reg("rax"), ir.Imm(60)}},
						{Addr: 0x401007, Size: 1, Mnemonic: "syscall"},
					},
				}},
			}},
		},
		{
			Name:  ".data",
			Flags: ir.SecInitialized | ir.SecWritable,
			Intervals: []*ir.ByteInterval{{
				Addr:  0x402000,
				Size:  6,
				Bytes: []byte("hello\x00"),
				Blocks: []ir.Block{{
					Kind: ir.BlockData, Offset: 0, Size: 6,
					Data: ir.DataSpec{Type: ir.DataAsciz},
				}},
			}},
		},
	}
	return m
}

func funModule() *ir.Module {
	m := &ir.Module{Name: "fun", ISA: ir.ISAX86_64, Format: ir.FormatELF}
	m.AddSymbol(ir.Symbol{Name: "fun", Kind: ir.SymCode, Scope: ir.ScopeExported, Addr: 0x401000})
	m.Sections = []*ir.Section{{
		Name:  ".text",
		Flags: ir.SecCode | ir.SecInitialized,
		Intervals: []*ir.ByteInterval{{
			Addr:  0x401000,
			Size:  1,
			Bytes: []byte{0xc3},
			Blocks: []ir.Block{{
				Kind: ir.BlockCode, Offset: 0, Size: 1,
				Instructions: []ir.Instruction{
					{Addr: 0x401000, Size: 1, Mnemonic: "retq"},
				},
			}},
		}},
	}}
	return m
}

func twoModuleContainer() *ir.Container {
	return &ir.Container{Modules: []*ir.Module{mainModule(), funModule()}}
}

func renderModule(t *testing.T, m *ir.Module, opts Options) string {
	t.Helper()
	p, err := New(m, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var buf bytes.Buffer
	if err := p.Print(&buf); err != nil {
		t.Fatalf("Print: %v", err)
	}
	return buf.String()
}

// ---------------------------------------------------------------------------
// Symbol isolation and labels
// ---------------------------------------------------------------------------

func TestModuleIsolation(t *testing.T) {
	c := twoModuleContainer()

	out0 := renderModule(t, c.Modules[0], Options{})
	if !strings.Contains(out0, "main:") {
		t.Error("module 0 output lacks main label")
	}
	if strings.Contains(out0, "fun:") {
		t.Error("module 0 output leaks module 1 symbol fun")
	}

	out1 := renderModule(t, c.Modules[1], Options{})
	if !strings.Contains(out1, "fun:") {
		t.Error("module 1 output lacks fun label")
	}
	if strings.Contains(out1, "main") {
		t.Error("module 1 output leaks module 0 symbol main")
	}
}

func TestExportedSymbolGetsGlobl(t *testing.T) {
	out := renderModule(t, mainModule(), Options{})
	idx := strings.Index(out, ".globl main")
	lbl := strings.Index(out, "main:")
	if idx < 0 {
		t.Fatal("missing .globl main")
	}
	if lbl < idx {
		t.Fatal(".globl must precede the label")
	}
	if !strings.Contains(out, ".type main, @function") {
		t.Error("function entry missing .type directive")
	}
}

func TestInstructionAndDataRendering(t *testing.T) {
	out := renderModule(t, mainModule(), Options{})
	for _, want := range []string{
		".text",
		"movq $60, %rax",
		"syscall",
		".data",
		"message:",
		`.asciz "hello"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
}

func TestIntelDialectRendering(t *testing.T) {
	out := renderModule(t, mainModule(), Options{Dialect: syntax.Intel})
	if !strings.Contains(out, ".intel_syntax noprefix") {
		t.Error("missing intel syntax directive")
	}
	if !strings.Contains(out, "mov rax, 60") {
		t.Errorf("missing intel instruction\n%s", out)
	}
}

// ---------------------------------------------------------------------------
// Padding, bss, gaps, alignment
// ---------------------------------------------------------------------------

func TestPaddingBlockEmitsAlignment(t *testing.T) {
	m := funModule()
	sec := m.Sections[0]
	bi := sec.Intervals[0]
	bi.Size = 16
	bi.Bytes = append(bi.Bytes, make([]byte, 15)...)
	bi.Blocks = append(bi.Blocks, ir.Block{
		Kind: ir.BlockPadding, Offset: 1, Size: 15, Align: 16,
	})

	out := renderModule(t, m, Options{})
	if !strings.Contains(out, ".balign 16") {
		t.Fatalf("missing alignment directive\n%s", out)
	}
}

func TestBSSRendersZero(t *testing.T) {
	m := &ir.Module{Name: "b", ISA: ir.ISAX86_64}
	m.AddSymbol(ir.Symbol{Name: "buffer", Kind: ir.SymData, Addr: 0x403000})
	m.Sections = []*ir.Section{{
		Name:  ".bss",
		Flags: ir.SecWritable,
		Intervals: []*ir.ByteInterval{{
			Addr: 0x403000, Size: 64,
			Blocks: []ir.Block{{Kind: ir.BlockData, Offset: 0, Size: 64}},
		}},
	}}
	out := renderModule(t, m, Options{})
	if !strings.Contains(out, ".zero 64") {
		t.Fatalf("bss block must render as .zero\n%s", out)
	}
	if !strings.Contains(out, "buffer:") {
		t.Error("missing bss label")
	}
}

func TestBSSKeepsFullLayout(t *testing.T) {
	// 32-byte bss interval: zero block, align-less padding, trailing gap.
	// All three must land as .zero so later addresses survive reassembly.
	m := &ir.Module{Name: "b", ISA: ir.ISAX86_64}
	m.AddSymbol(ir.Symbol{Name: "buffer", Kind: ir.SymData, Addr: 0x403000})
	m.Sections = []*ir.Section{{
		Name:  ".bss",
		Flags: ir.SecWritable,
		Intervals: []*ir.ByteInterval{{
			Addr: 0x403000, Size: 32,
			Blocks: []ir.Block{
				{Kind: ir.BlockData, Offset: 0, Size: 8},
				{Kind: ir.BlockPadding, Offset: 8, Size: 8},
			},
		}},
	}}
	out := renderModule(t, m, Options{})
	if got := strings.Count(out, ".zero 8"); got != 2 {
		t.Errorf(".zero 8 appears %d times, want 2\n%s", got, out)
	}
	if !strings.Contains(out, ".zero 16") {
		t.Errorf("trailing bss gap lost\n%s", out)
	}
	if strings.Contains(out, ".byte") {
		t.Errorf(".byte rows are illegal in .bss\n%s", out)
	}
}

func TestLabelInsideUnclaimedGap(t *testing.T) {
	m := funModule()
	bi := m.Sections[0].Intervals[0]
	bi.Size = 4
	bi.Bytes = []byte{0x90, 0x90, 0x90, 0xc3}
	bi.Blocks = []ir.Block{{
		Kind: ir.BlockCode, Offset: 3, Size: 1,
		Instructions: []ir.Instruction{{Addr: 0x401003, Size: 1, Mnemonic: "retq"}},
	}}
	m.Symbols[0].Addr = 0x401003
	m.AddSymbol(ir.Symbol{Name: "gap_mark", Kind: ir.SymData, Addr: 0x401001})

	out := renderModule(t, m, Options{})
	want := ".byte 0x90\ngap_mark:\n    .byte 0x90,0x90"
	if !strings.Contains(out, want) {
		t.Fatalf("gap not split at symbol address\n%s", out)
	}
}

func TestLabelInsideDataBlock(t *testing.T) {
	m := mainModule()
	m.AddSymbol(ir.Symbol{Name: "tail", Kind: ir.SymData, Addr: 0x402004})

	out := renderModule(t, m, Options{})
	for _, want := range []string{`.ascii "hell"`, "tail:", `.asciz "o"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
	if strings.Index(out, "tail:") < strings.Index(out, `.ascii "hell"`) {
		t.Fatalf("label out of place\n%s", out)
	}
}

func TestUnclaimedBytesArePreserved(t *testing.T) {
	m := funModule()
	bi := m.Sections[0].Intervals[0]
	bi.Size = 3
	bi.Bytes = []byte{0x90, 0x90, 0xc3}
	bi.Blocks = []ir.Block{{
		Kind: ir.BlockCode, Offset: 2, Size: 1,
		Instructions: []ir.Instruction{{Addr: 0x401002, Size: 1, Mnemonic: "retq"}},
	}}
	m.Symbols[0].Addr = 0x401002

	out := renderModule(t, m, Options{})
	if !strings.Contains(out, ".byte 0x90,0x90") {
		t.Fatalf("gap bytes lost\n%s", out)
	}
}

func TestExplicitAlignmentOverride(t *testing.T) {
	m := funModule()
	m.Alignments = map[uint64]uint64{0x401000: 32}
	out := renderModule(t, m, Options{})
	if !strings.Contains(out, ".balign 32") {
		t.Fatalf("missing alignment override\n%s", out)
	}
}

func TestLabelsBetweenInstructions(t *testing.T) {
	m := mainModule()
	m.AddSymbol(ir.Symbol{Name: "after_mov", Kind: ir.SymCode, Scope: ir.ScopeLocal, Addr: 0x401007})
	out := renderModule(t, m, Options{})
	movIdx := strings.Index(out, "movq $60, %rax")
	lblIdx := strings.Index(out, "after_mov:")
	sysIdx := strings.Index(out, "syscall")
	if lblIdx < movIdx || sysIdx < lblIdx {
		t.Fatalf("mid-block label out of place (mov=%d label=%d syscall=%d)", movIdx, lblIdx, sysIdx)
	}
}

// ---------------------------------------------------------------------------
// Policies
// ---------------------------------------------------------------------------

func TestDefaultPolicySkipsLinkerSections(t *testing.T) {
	m := mainModule()
	m.Sections = append(m.Sections, &ir.Section{
		Name:  ".comment",
		Flags: ir.SecInitialized,
		Intervals: []*ir.ByteInterval{{
			Addr: 0, Size: 3, Bytes: []byte("gcc"),
			Blocks: []ir.Block{{Kind: ir.BlockData, Offset: 0, Size: 3}},
		}},
	})

	out := renderModule(t, m, Options{})
	if strings.Contains(out, ".comment") {
		t.Error("default policy must skip .comment")
	}

	out = renderModule(t, m, Options{Policy: CompletePolicy()})
	if !strings.Contains(out, ".comment") {
		t.Error("complete policy must keep .comment")
	}
}

func TestSkipFunctionSuppressesBlock(t *testing.T) {
	p := DefaultPolicy()
	p.SkipFunctions["main"] = struct{}{}
	out := renderModule(t, mainModule(), Options{Policy: p})
	if strings.Contains(out, "main:") {
		t.Error("skipped function label still printed")
	}
	if strings.Contains(out, "movq $60, %rax") {
		t.Error("skipped function body still printed")
	}
	// Sibling sections are unaffected.
	if !strings.Contains(out, `.asciz "hello"`) {
		t.Error("data section must survive function skipping")
	}
}

func TestSkipSymbolKeepsContents(t *testing.T) {
	p := DefaultPolicy()
	p.SkipSymbols["message"] = struct{}{}
	out := renderModule(t, mainModule(), Options{Policy: p})
	if strings.Contains(out, "message:") {
		t.Error("skipped symbol label still printed")
	}
	if !strings.Contains(out, `.asciz "hello"`) {
		t.Error("data contents must survive symbol skipping")
	}
}

// ---------------------------------------------------------------------------
// Resources and absolute symbols
// ---------------------------------------------------------------------------

func TestResourcePassthrough(t *testing.T) {
	m := mainModule()
	m.Format = ir.FormatPE
	m.Resources = []ir.Resource{{
		Name: "IDS_TEST", Type: "RT_STRING",
		Data: []byte("Test resource string"),
	}}
	out := renderModule(t, m, Options{})
	if !strings.Contains(out, ".section .rsrc") {
		t.Errorf("missing PE resource section\n%s", out)
	}
	if !strings.Contains(out, `.ascii "Test resource string"`) {
		t.Errorf("resource payload lost\n%s", out)
	}
}

func TestBinaryResourceRendersAsBytes(t *testing.T) {
	m := funModule()
	m.Resources = []ir.Resource{{Name: "ICON", Data: []byte{0x00, 0x01, 0x02}}}
	out := renderModule(t, m, Options{})
	if !strings.Contains(out, ".section .rodata.resources") {
		t.Errorf("missing ELF resource section\n%s", out)
	}
	if !strings.Contains(out, ".byte 0x00,0x01,0x02") {
		t.Errorf("resource bytes lost\n%s", out)
	}
}

func TestAbsoluteSymbolRendersAsSet(t *testing.T) {
	m := mainModule()
	m.AddSymbol(ir.Symbol{Name: "PAGE_SIZE", Kind: ir.SymAbsolute, Value: 4096})
	out := renderModule(t, m, Options{})
	if !strings.Contains(out, ".set PAGE_SIZE, 4096") {
		t.Fatalf("missing .set directive\n%s", out)
	}
}

// ---------------------------------------------------------------------------
// Failure behaviour
// ---------------------------------------------------------------------------

func TestFailedRenderWritesNothing(t *testing.T) {
	m := funModule()
	m.Sections[0].Intervals[0].Blocks[0].Instructions[0].Mnemonic = ""

	p, err := New(m, Options{})
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := p.Print(&buf); err == nil {
		t.Fatal("expected render error")
	}
	if buf.Len() != 0 {
		t.Fatalf("failed render must not write partial output, got %q", buf.String())
	}
}

func TestRenderErrorIsModuleScoped(t *testing.T) {
	c := twoModuleContainer()
	c.Modules[0].Sections[0].Intervals[0].Blocks[0].Instructions[0].Mnemonic = ""

	sel, err := Select(c, AllModules())
	if err != nil {
		t.Fatal(err)
	}
	results := Render(sel, Options{})
	if results[0].Err == nil {
		t.Fatal("module 0 should fail")
	}
	if results[1].Err != nil {
		t.Fatalf("module 1 should still render: %v", results[1].Err)
	}
	if !strings.Contains(string(results[1].Text), "fun:") {
		t.Error("module 1 text incomplete")
	}
	if !strings.Contains(results[0].Err.Error(), "module 0") {
		t.Errorf("error lacks module context: %v", results[0].Err)
	}
}
