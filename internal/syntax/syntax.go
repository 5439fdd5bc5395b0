package syntax

import (
	"fmt"
	"io"
	"strings"

	"asmprint/internal/ir"
)

// ---------------------------------------------------------------------------
// Syntax Dialect Emitter
//
// An Emitter translates decoded instructions and directives into one
// assembly dialect.  Both dialects target the GNU assembler: Intel output
// opens with ".intel_syntax noprefix" so a single toolchain can reassemble
// either flavour.  Emitters are pure text producers; all dialect branching
// lives here, not in the printer.
// ---------------------------------------------------------------------------

// Dialect selects an assembly syntax convention.
type Dialect int

const (
	ATT Dialect = iota
	Intel
)

func (d Dialect) String() string {
	if d == Intel {
		return "intel"
	}
	return "att"
}

// ParseDialect maps CLI names to a Dialect.
func ParseDialect(s string) (Dialect, error) {
	switch s {
	case "att", "at&t", "gas":
		return ATT, nil
	case "intel":
		return Intel, nil
	}
	return ATT, fmt.Errorf("unknown syntax %q (want att or intel)", s)
}

// DefaultDialect returns the architecture-appropriate default syntax.
func DefaultDialect(isa ir.ISA) Dialect {
	// GNU toolchains default to AT&T on every ISA we print.
	return ATT
}

// Resolver maps symbol ids to names while rendering operands.  The
// per-module symbol table satisfies this.
type Resolver interface {
	Name(id ir.SymbolID) (string, bool)
}

// Emitter renders instructions and assembler directives in one dialect.
type Emitter interface {
	Dialect() Dialect

	// Header emits once at the top of a module's output.
	Header(w io.Writer, m *ir.Module)

	SectionHeader(w io.Writer, sec *ir.Section)
	Global(w io.Writer, name string)
	FunctionType(w io.Writer, name string)
	Label(w io.Writer, name string)
	AbsoluteSymbol(w io.Writer, name string, value int64)
	Alignment(w io.Writer, align uint64)

	// Instruction renders one instruction line.  On error nothing is
	// written to w.
	Instruction(w io.Writer, ins *ir.Instruction, res Resolver) error

	// Data renders one data block.  raw holds the block's bytes.
	Data(w io.Writer, spec ir.DataSpec, raw []byte, res Resolver) error
}

// For returns the emitter for a dialect and module ISA.
func For(d Dialect, m *ir.Module) (Emitter, error) {
	switch m.ISA {
	case ir.ISAX86_64, ir.ISAX86:
	default:
		return nil, fmt.Errorf("no %s emitter for ISA %s", d, m.ISA)
	}
	if d == Intel {
		return &intelEmitter{}, nil
	}
	return &attEmitter{}, nil
}

// ---------------------------------------------------------------------------
// Error conditions
// ---------------------------------------------------------------------------

// UnsupportedInstructionError reports an instruction the emitter cannot
// translate.  The printer treats it as fatal for the module being rendered.
type UnsupportedInstructionError struct {
	Addr     uint64
	Mnemonic string
	Reason   string
}

func (e *UnsupportedInstructionError) Error() string {
	return fmt.Sprintf("unsupported instruction %q at %#x: %s", e.Mnemonic, e.Addr, e.Reason)
}

// UnsupportedOperandError reports an operand form the emitter cannot
// translate for the requested dialect.
type UnsupportedOperandError struct {
	Addr     uint64
	Mnemonic string
	Index    int
	Reason   string
}

func (e *UnsupportedOperandError) Error() string {
	return fmt.Sprintf("unsupported operand %d of %q at %#x: %s", e.Index, e.Mnemonic, e.Addr, e.Reason)
}

// ---------------------------------------------------------------------------
// Shared GAS directive helpers
//
// Directives are dialect-independent when targeting GNU as; only operand
// text differs between AT&T and Intel.
// ---------------------------------------------------------------------------

type gasDirectives struct{}

func (gasDirectives) SectionHeader(w io.Writer, sec *ir.Section) {
	switch sec.Name {
	case ".text":
		fmt.Fprintf(w, ".text\n")
	case ".data":
		fmt.Fprintf(w, ".data\n")
	case ".bss":
		fmt.Fprintf(w, ".bss\n")
	default:
		fmt.Fprintf(w, ".section %s%s\n", sec.Name, gasSectionFlags(sec))
	}
	if sec.Align > 1 {
		fmt.Fprintf(w, ".balign %d\n", sec.Align)
	}
}

func gasSectionFlags(sec *ir.Section) string {
	// Every section in the model is mapped into the image, so "a" is
	// unconditional; initialized-vs-not is carried by @progbits/@nobits.
	flags := "a"
	if sec.Flags&ir.SecWritable != 0 {
		flags += "w"
	}
	if sec.Flags&ir.SecCode != 0 {
		flags += "x"
	}
	kind := "@progbits"
	if sec.IsBSS() {
		kind = "@nobits"
	}
	return fmt.Sprintf(",\"%s\",%s", flags, kind)
}

func (gasDirectives) Global(w io.Writer, name string) {
	fmt.Fprintf(w, ".globl %s\n", name)
}

func (gasDirectives) FunctionType(w io.Writer, name string) {
	fmt.Fprintf(w, ".type %s, @function\n", name)
}

func (gasDirectives) Label(w io.Writer, name string) {
	fmt.Fprintf(w, "%s:\n", name)
}

func (gasDirectives) AbsoluteSymbol(w io.Writer, name string, value int64) {
	fmt.Fprintf(w, ".set %s, %d\n", name, value)
}

func (gasDirectives) Alignment(w io.Writer, align uint64) {
	fmt.Fprintf(w, "    .balign %d\n", align)
}

// Data emits one typed data directive.  Shared between dialects: GAS data
// directives are syntax-neutral.
func (gasDirectives) Data(w io.Writer, spec ir.DataSpec, raw []byte, res Resolver) error {
	switch spec.Type {
	case ir.DataZero:
		fmt.Fprintf(w, "    .zero %d\n", len(raw))
		return nil
	case ir.DataAscii, ir.DataAsciz:
		s := raw
		directive := ".ascii"
		if spec.Type == ir.DataAsciz {
			directive = ".asciz"
			if n := len(s); n > 0 && s[n-1] == 0 {
				s = s[:n-1]
			}
		}
		fmt.Fprintf(w, "    %s %s\n", directive, gasQuote(string(s)))
		return nil
	case ir.DataWord, ir.DataLong, ir.DataQuad:
		directive, width := ".quad", 8
		switch spec.Type {
		case ir.DataWord:
			directive, width = ".word", 2
		case ir.DataLong:
			directive, width = ".long", 4
		}
		if spec.Sym != 0 {
			name, ok := res.Name(spec.Sym)
			if !ok {
				return fmt.Errorf("data block references unknown symbol id %d", spec.Sym)
			}
			fmt.Fprintf(w, "    %s %s%s\n", directive, name, addend(spec.Addend))
			return nil
		}
		if len(raw)%width != 0 {
			return fmt.Errorf("%s data block has %d bytes, not a multiple of %d", spec.Type, len(raw), width)
		}
		for off := 0; off < len(raw); off += width {
			var v uint64
			for i := width - 1; i >= 0; i-- {
				v = v<<8 | uint64(raw[off+i])
			}
			fmt.Fprintf(w, "    %s %#x\n", directive, v)
		}
		return nil
	default: // DataBytes
		WriteByteRows(w, raw)
		return nil
	}
}

// WriteByteRows emits raw bytes as .byte rows, 8 bytes per line.
func WriteByteRows(w io.Writer, raw []byte) {
	for off := 0; off < len(raw); off += 8 {
		end := off + 8
		if end > len(raw) {
			end = len(raw)
		}
		parts := make([]string, 0, 8)
		for _, b := range raw[off:end] {
			parts = append(parts, fmt.Sprintf("0x%02x", b))
		}
		fmt.Fprintf(w, "    .byte %s\n", strings.Join(parts, ","))
	}
}

// gasQuote renders a string literal with GAS escaping.
func gasQuote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			if c < 0x20 || c >= 0x7f {
				fmt.Fprintf(&b, `\%03o`, c)
			} else {
				b.WriteByte(c)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}

// addend renders "+n"/"-n" for non-zero addends.
func addend(n int64) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("%+d", n)
}

// validScale reports whether a memory operand scale is encodable.
func validScale(s int) bool {
	switch s {
	case 0, 1, 2, 4, 8:
		return true
	}
	return false
}

// symName resolves an operand's symbol reference.
func symName(res Resolver, ins *ir.Instruction, idx int, id ir.SymbolID) (string, error) {
	name, ok := res.Name(id)
	if !ok {
		return "", &UnsupportedOperandError{
			Addr: ins.Addr, Mnemonic: ins.Mnemonic, Index: idx,
			Reason: fmt.Sprintf("unresolved symbol id %d", id),
		}
	}
	return name, nil
}
