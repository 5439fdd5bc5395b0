package ir

import "fmt"

// ---------------------------------------------------------------------------
// IR: the in-memory model of one or more binary modules
//
// A Container holds an ordered list of Modules.  Each Module owns its
// Sections, Symbols and Resources.  Sections own ByteIntervals, which own
// typed Blocks (code, data, padding).  Cross-entity references (instruction
// operands or data blocks referring to symbols) go through SymbolID rather
// than pointers, so the whole model can be shared read-only across
// goroutines once loaded.
//
// The pretty-printer never mutates this model.
// ---------------------------------------------------------------------------

// ---------------------------------------------------------------------------
// Container / Module
// ---------------------------------------------------------------------------

// Container is the top-level IR object.  Module order is stable and
// addressable by zero-based index.
type Container struct {
	Modules []*Module
}

// Module is one logical binary image (executable or library).
type Module struct {
	Name   string
	ISA    ISA
	Format Format
	Entry  uint64

	Sections  []*Section
	Symbols   []Symbol // arena; SymbolID n refers to Symbols[n-1]
	Resources []Resource

	// FunctionEntries lists addresses of function entry points, when the
	// producer recorded them.  Used for .type directives on ELF output.
	FunctionEntries []uint64

	// Alignments maps addresses to explicit alignment requirements that
	// override the containing block's natural alignment.
	Alignments map[uint64]uint64
}

// ISA identifies the instruction set of a module.
type ISA int

const (
	ISAUnknown ISA = iota
	ISAX86_64
	ISAX86
	ISAARM64
)

var isaNames = map[ISA]string{
	ISAUnknown: "unknown",
	ISAX86_64:  "x86_64",
	ISAX86:     "x86",
	ISAARM64:   "arm64",
}

func (i ISA) String() string {
	if s, ok := isaNames[i]; ok {
		return s
	}
	return fmt.Sprintf("isa_%d", int(i))
}

// ParseISA maps the names used in container files to an ISA value.
func ParseISA(s string) (ISA, error) {
	switch s {
	case "x86_64", "amd64", "x64":
		return ISAX86_64, nil
	case "x86", "386", "ia32":
		return ISAX86, nil
	case "arm64", "aarch64":
		return ISAARM64, nil
	}
	return ISAUnknown, fmt.Errorf("unknown ISA %q", s)
}

// Format is the object file format of a module.
type Format int

const (
	FormatELF Format = iota
	FormatPE
	FormatMachO
)

var formatNames = map[Format]string{
	FormatELF:   "elf",
	FormatPE:    "pe",
	FormatMachO: "macho",
}

func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return fmt.Sprintf("format_%d", int(f))
}

// ParseFormat maps the names used in container files to a Format value.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "elf", "":
		return FormatELF, nil
	case "pe", "pe32", "pe32+", "coff":
		return FormatPE, nil
	case "macho", "mach-o":
		return FormatMachO, nil
	}
	return FormatELF, fmt.Errorf("unknown object format %q", s)
}

// ---------------------------------------------------------------------------
// Sections and byte intervals
// ---------------------------------------------------------------------------

// SectionFlags describes what a section may contain and how it is mapped.
type SectionFlags uint8

const (
	SecCode SectionFlags = 1 << iota // executable
	SecWritable
	SecInitialized // has bytes in the image (not bss)
	SecReadOnly
)

// Section is a named, flagged, ordered run of byte intervals.
type Section struct {
	Name      string
	Flags     SectionFlags
	Align     uint64
	Intervals []*ByteInterval
}

// IsBSS reports whether the section is uninitialized data.
func (s *Section) IsBSS() bool { return s.Flags&SecInitialized == 0 }

// ByteInterval is a contiguous address range of raw bytes, subdivided into
// typed, non-overlapping, address-ordered blocks.
type ByteInterval struct {
	Addr   uint64
	Size   uint64
	Bytes  []byte
	Blocks []Block
}

// BlockKind says how a block's bytes should be rendered.
type BlockKind int

const (
	BlockCode BlockKind = iota
	BlockData
	BlockPadding
)

var blockKindNames = map[BlockKind]string{
	BlockCode:    "code",
	BlockData:    "data",
	BlockPadding: "padding",
}

func (k BlockKind) String() string {
	if s, ok := blockKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("block_%d", int(k))
}

// Block is one typed sub-region of a byte interval.  Exactly one of the
// kind-specific field groups is meaningful, selected by Kind.
type Block struct {
	Kind   BlockKind
	Offset uint64 // offset from the interval start
	Size   uint64

	// Code blocks
	Instructions []Instruction

	// Data blocks
	Data DataSpec

	// Padding blocks
	Align uint64
}

// Addr returns the block's absolute address within its interval.
func (b *Block) Addr(bi *ByteInterval) uint64 { return bi.Addr + b.Offset }

// DataType selects the assembler directive used for a data block.
type DataType int

const (
	DataBytes DataType = iota // .byte rows
	DataWord                  // .word (2 bytes)
	DataLong                  // .long (4 bytes)
	DataQuad                  // .quad (8 bytes)
	DataAscii                 // .ascii
	DataAsciz                 // .asciz
	DataZero                  // .zero (uninitialized / explicit fill)
)

var dataTypeNames = map[DataType]string{
	DataBytes: "bytes", DataWord: "word", DataLong: "long",
	DataQuad: "quad", DataAscii: "ascii", DataAsciz: "asciz", DataZero: "zero",
}

func (d DataType) String() string {
	if s, ok := dataTypeNames[d]; ok {
		return s
	}
	return fmt.Sprintf("data_%d", int(d))
}

// DataSpec describes the contents of a data block.  Pointer-sized entries
// may carry a symbolic expression (Sym + Addend) instead of literal bytes.
type DataSpec struct {
	Type   DataType
	Sym    SymbolID // non-zero: emit symbol+addend instead of the raw value
	Addend int64
}

// ---------------------------------------------------------------------------
// Symbols
// ---------------------------------------------------------------------------

// SymbolID is a stable, per-module symbol handle.  Zero means "no symbol".
type SymbolID uint32

// SymbolKind is the referent kind of a symbol.
type SymbolKind int

const (
	SymCode SymbolKind = iota
	SymData
	SymAbsolute  // a named constant; Value holds the constant
	SymUndefined // external, no defining address in this module
)

var symbolKindNames = map[SymbolKind]string{
	SymCode: "code", SymData: "data", SymAbsolute: "absolute", SymUndefined: "undefined",
}

func (k SymbolKind) String() string {
	if s, ok := symbolKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("sym_%d", int(k))
}

// SymbolScope controls cross-module visibility.
type SymbolScope int

const (
	ScopeLocal SymbolScope = iota
	ScopeExported
)

func (s SymbolScope) String() string {
	if s == ScopeExported {
		return "exported"
	}
	return "local"
}

// Symbol is a named location or value in a module.  Symbols are referenced
// by SymbolID from instructions and data blocks, never owned by them.
type Symbol struct {
	Name  string
	Kind  SymbolKind
	Scope SymbolScope
	Addr  uint64 // defining address (SymCode / SymData)
	Value int64  // constant value (SymAbsolute)
}

// HasAddr reports whether the symbol has a defining address in its module.
func (s *Symbol) HasAddr() bool { return s.Kind == SymCode || s.Kind == SymData }

// Symbol returns the symbol for a SymbolID, or nil for the zero id.
func (m *Module) Symbol(id SymbolID) *Symbol {
	if id == 0 || int(id) > len(m.Symbols) {
		return nil
	}
	return &m.Symbols[id-1]
}

// AddSymbol appends a symbol to the module arena and returns its id.
// Only container producers call this; the printer treats modules as frozen.
func (m *Module) AddSymbol(sym Symbol) SymbolID {
	m.Symbols = append(m.Symbols, sym)
	return SymbolID(len(m.Symbols))
}

// ---------------------------------------------------------------------------
// Resources
// ---------------------------------------------------------------------------

// Resource is a named byte blob (PE resource entry or similar) carried
// through rendering and rebuilding unmodified.
type Resource struct {
	Name string
	Type string // e.g. "RT_STRING", "RT_MANIFEST"; free-form
	Data []byte
}
