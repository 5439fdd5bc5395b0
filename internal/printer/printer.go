package printer

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"asmprint/internal/ir"
	"asmprint/internal/symtab"
	"asmprint/internal/syntax"
)

// ---------------------------------------------------------------------------
// Section/Byte-Interval Printer
//
// Walks one module's sections and byte intervals in address order and emits
// labels, instructions, data directives and alignment through the dialect
// emitter.  The walk is a pure read over the IR; all output is buffered so
// a failed render writes nothing.
// ---------------------------------------------------------------------------

// Options configures a module render.
type Options struct {
	Dialect syntax.Dialect
	Policy  *Policy

	// Debug interleaves address comments with the output.
	Debug bool
}

// Printer renders a single module.
type Printer struct {
	module *ir.Module
	table  *symtab.Table
	em     syntax.Emitter
	policy *Policy
	debug  bool
}

// New builds a printer for one module.  The symbol table is built here,
// once, and only from this module's symbols.
func New(m *ir.Module, opts Options) (*Printer, error) {
	em, err := syntax.For(opts.Dialect, m)
	if err != nil {
		return nil, err
	}
	policy := opts.Policy
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Printer{
		module: m,
		table:  symtab.New(m),
		em:     em,
		policy: policy,
		debug:  opts.Debug,
	}, nil
}

// Print renders the module.  On error, nothing is written to w.
func (p *Printer) Print(w io.Writer) error {
	var buf bytes.Buffer
	if err := p.print(&buf); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func (p *Printer) print(w *bytes.Buffer) error {
	p.em.Header(w, p.module)

	// Named constants first, so later references assemble.
	for _, sym := range p.table.Absolutes() {
		if p.policy.skipSymbol(sym.Name) {
			continue
		}
		p.em.AbsoluteSymbol(w, sym.Name, sym.Value)
	}

	for _, sec := range p.module.Sections {
		if p.policy.skipSection(sec.Name) {
			continue
		}
		if err := p.printSection(w, sec); err != nil {
			return fmt.Errorf("section %s: %w", sec.Name, err)
		}
	}

	p.printResources(w)
	return nil
}

func (p *Printer) printSection(w *bytes.Buffer, sec *ir.Section) error {
	fmt.Fprintln(w)
	p.em.SectionHeader(w, sec)

	for _, bi := range sec.Intervals {
		if err := p.printInterval(w, sec, bi); err != nil {
			return fmt.Errorf("interval at %#x: %w", bi.Addr, err)
		}
	}
	return nil
}

func (p *Printer) printInterval(w *bytes.Buffer, sec *ir.Section, bi *ir.ByteInterval) error {
	var cursor uint64 // next unprinted offset
	for i := range bi.Blocks {
		blk := &bi.Blocks[i]

		// Bytes no block claims are preserved verbatim.
		if blk.Offset > cursor {
			p.printGap(w, sec, bi, cursor, blk.Offset)
		}
		cursor = blk.Offset + blk.Size

		if err := p.printBlock(w, sec, bi, blk); err != nil {
			return err
		}
	}
	if bi.Size > cursor {
		p.printGap(w, sec, bi, cursor, bi.Size)
	}
	return nil
}

// printGap preserves bytes no block claims, splitting at any symbol defined
// inside the gap so its label lands at the right address.
func (p *Printer) printGap(w *bytes.Buffer, sec *ir.Section, bi *ir.ByteInterval, from, to uint64) {
	if p.debug {
		fmt.Fprintf(w, "# %#x: %d unclaimed bytes\n", bi.Addr+from, to-from)
	}
	cur := from
	for _, addr := range p.table.AddrsIn(bi.Addr+from, bi.Addr+to) {
		p.printGapChunk(w, sec, bi, cur, addr-bi.Addr)
		p.printLabels(w, addr, false)
		cur = addr - bi.Addr
	}
	p.printGapChunk(w, sec, bi, cur, to)
}

// printGapChunk emits one label-free run of unclaimed bytes.  bss runs
// render as .zero so the section keeps its size through reassembly.
func (p *Printer) printGapChunk(w *bytes.Buffer, sec *ir.Section, bi *ir.ByteInterval, from, to uint64) {
	if to <= from {
		return
	}
	if sec.IsBSS() {
		fmt.Fprintf(w, "    .zero %d\n", to-from)
		return
	}
	syntax.WriteByteRows(w, p.intervalBytes(bi, from, to-from))
}

func (p *Printer) printBlock(w *bytes.Buffer, sec *ir.Section, bi *ir.ByteInterval, blk *ir.Block) error {
	addr := blk.Addr(bi)

	if blk.Kind == ir.BlockCode && p.blockIsSkippedFunction(addr) {
		return nil
	}

	if align, ok := p.module.Alignments[addr]; ok && align > 1 {
		p.em.Alignment(w, align)
	}
	p.printLabels(w, addr, blk.Kind == ir.BlockCode)

	switch blk.Kind {
	case ir.BlockPadding:
		if blk.Align > 1 {
			p.em.Alignment(w, blk.Align)
		} else if blk.Size > 0 {
			// Fixed-width padding with no alignment constraint.
			p.printGapChunk(w, sec, bi, blk.Offset, blk.Offset+blk.Size)
		}
		return nil

	case ir.BlockData:
		spec := blk.Data
		if sec.IsBSS() {
			spec.Type = ir.DataZero
		}
		raw := p.intervalBytes(bi, blk.Offset, blk.Size)
		if err := p.printData(w, addr, spec, raw); err != nil {
			return fmt.Errorf("data block at %#x: %w", addr, err)
		}
		return nil

	case ir.BlockCode:
		for i := range blk.Instructions {
			ins := &blk.Instructions[i]
			if i > 0 {
				// Labels may land between instructions inside one block.
				p.printLabels(w, ins.Addr, true)
			}
			if p.debug {
				fmt.Fprintf(w, "# %#x\n", ins.Addr)
			}
			if err := p.em.Instruction(w, ins, p.table); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("block at %#x has unknown kind %d", addr, blk.Kind)
	}
}

// printData emits one data block, splitting it at interior symbol addresses
// so every referenced label appears in the output.  String and byte runs may
// split anywhere; fixed-width entries only at element boundaries.
func (p *Printer) printData(w *bytes.Buffer, addr uint64, spec ir.DataSpec, raw []byte) error {
	cuts := p.table.AddrsIn(addr+1, addr+uint64(len(raw)))
	if len(cuts) == 0 {
		return p.em.Data(w, spec, raw, p.table)
	}
	if spec.Sym != 0 {
		return fmt.Errorf("symbol at %#x falls inside a symbolic data entry", cuts[0])
	}
	width := uint64(1)
	switch spec.Type {
	case ir.DataWord:
		width = 2
	case ir.DataLong:
		width = 4
	case ir.DataQuad:
		width = 8
	}

	emit := func(chunk []byte, last bool) error {
		if len(chunk) == 0 {
			return nil
		}
		cs := spec
		if cs.Type == ir.DataAsciz && !last {
			cs.Type = ir.DataAscii
		}
		return p.em.Data(w, cs, chunk, p.table)
	}

	var cur uint64
	for _, cut := range cuts {
		off := cut - addr
		if off%width != 0 {
			return fmt.Errorf("symbol at %#x splits a %s entry", cut, spec.Type)
		}
		if err := emit(raw[cur:off], false); err != nil {
			return err
		}
		p.printLabels(w, cut, false)
		cur = off
	}
	return emit(raw[cur:], true)
}

// blockIsSkippedFunction reports whether the code block at addr begins a
// function the policy skips.
func (p *Printer) blockIsSkippedFunction(addr uint64) bool {
	for _, sym := range p.table.At(addr) {
		if p.policy.skipFunction(sym.Name) {
			return true
		}
	}
	return false
}

// printLabels emits every symbol defined at addr, in declaration order,
// with visibility and type directives for exported code symbols.
func (p *Printer) printLabels(w *bytes.Buffer, addr uint64, code bool) {
	for _, sym := range p.table.At(addr) {
		if p.policy.skipSymbol(sym.Name) || p.policy.skipFunction(sym.Name) {
			continue
		}
		if sym.Scope == ir.ScopeExported {
			p.em.Global(w, sym.Name)
		}
		if code && sym.Kind == ir.SymCode && p.table.IsFunctionEntry(addr) {
			p.em.FunctionType(w, sym.Name)
		}
		p.em.Label(w, sym.Name)
	}
}

// intervalBytes slices the interval's raw bytes, zero-filling when the
// interval carries fewer bytes than its size (trailing bss-like content).
func (p *Printer) intervalBytes(bi *ir.ByteInterval, off, size uint64) []byte {
	have := uint64(len(bi.Bytes))
	if off >= have {
		return make([]byte, size)
	}
	end := off + size
	if end <= have {
		return bi.Bytes[off:end]
	}
	out := make([]byte, size)
	copy(out, bi.Bytes[off:have])
	return out
}

// printResources re-emits embedded resources as dedicated data sections so
// they survive re-assembly and relinking.
func (p *Printer) printResources(w *bytes.Buffer) {
	for i, res := range p.module.Resources {
		fmt.Fprintln(w)
		name := sectionNameForResource(p.module.Format, res, i)
		fmt.Fprintf(w, ".section %s,\"a\"\n", name)
		fmt.Fprintf(w, "# resource %q type %q\n", res.Name, res.Type)
		p.em.Label(w, resourceLabel(res, i))
		if printable(res.Data) {
			_ = p.em.Data(w, ir.DataSpec{Type: ir.DataAscii}, res.Data, p.table)
		} else {
			syntax.WriteByteRows(w, res.Data)
		}
	}
}

// printable reports whether a blob is plain text, in which case it is
// emitted as a string directive rather than byte rows.
func printable(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	for _, b := range data {
		if b >= 0x20 && b < 0x7f {
			continue
		}
		switch b {
		case '\t', '\n', '\r':
		default:
			return false
		}
	}
	return true
}

func sectionNameForResource(f ir.Format, res ir.Resource, i int) string {
	if f == ir.FormatPE {
		return ".rsrc"
	}
	return ".rodata.resources"
}

func resourceLabel(res ir.Resource, i int) string {
	s := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, res.Name)
	if s == "" {
		s = fmt.Sprintf("resource_%d", i)
	}
	return ".L" + s
}
