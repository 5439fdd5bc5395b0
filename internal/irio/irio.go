package irio

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"asmprint/internal/ir"
)

// ---------------------------------------------------------------------------
// Container codec
//
// Containers are stored as YAML documents; raw bytes and resource blobs use
// the YAML !!binary tag.  The on-disk schema is decoupled from the ir
// package so the in-memory model can use typed enums.
// ---------------------------------------------------------------------------

// LoadError reports a container that could not be read or validated.
// It is always returned before any rendering begins.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("cannot load IR container %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ---------------------------------------------------------------------------
// On-disk schema
// ---------------------------------------------------------------------------

type containerDoc struct {
	Modules []moduleDoc `yaml:"modules"`
}

type moduleDoc struct {
	Name      string        `yaml:"name"`
	ISA       string        `yaml:"isa"`
	Format    string        `yaml:"format,omitempty"`
	Entry     uint64        `yaml:"entry,omitempty"`
	Symbols   []symbolDoc   `yaml:"symbols,omitempty"`
	Sections  []sectionDoc  `yaml:"sections,omitempty"`
	Resources []resourceDoc `yaml:"resources,omitempty"`
	Functions []uint64      `yaml:"functionEntries,omitempty"`

	Alignments map[uint64]uint64 `yaml:"alignments,omitempty"`
}

type symbolDoc struct {
	Name  string `yaml:"name"`
	Kind  string `yaml:"kind"` // code | data | absolute | undefined
	Scope string `yaml:"scope,omitempty"`
	Addr  uint64 `yaml:"addr,omitempty"`
	Value int64  `yaml:"value,omitempty"`
}

type sectionDoc struct {
	Name      string        `yaml:"name"`
	Flags     []string      `yaml:"flags,omitempty"` // code, writable, initialized, readonly
	Align     uint64        `yaml:"align,omitempty"`
	Intervals []intervalDoc `yaml:"intervals,omitempty"`
}

type intervalDoc struct {
	Addr   uint64     `yaml:"addr"`
	Size   uint64     `yaml:"size"`
	Bytes  []byte     `yaml:"bytes,omitempty"`
	Blocks []blockDoc `yaml:"blocks,omitempty"`
}

type blockDoc struct {
	Kind   string `yaml:"kind"` // code | data | padding
	Offset uint64 `yaml:"offset"`
	Size   uint64 `yaml:"size"`

	Instructions []insnDoc `yaml:"instructions,omitempty"`

	DataType string `yaml:"dataType,omitempty"`
	Sym      uint32 `yaml:"sym,omitempty"`
	Addend   int64  `yaml:"addend,omitempty"`

	Align uint64 `yaml:"align,omitempty"`
}

type insnDoc struct {
	Addr     uint64       `yaml:"addr"`
	Size     int          `yaml:"size"`
	Mnemonic string       `yaml:"mnemonic"`
	Prefixes []string     `yaml:"prefixes,omitempty"`
	Operands []operandDoc `yaml:"operands,omitempty"`
}

type operandDoc struct {
	Kind string `yaml:"kind"` // reg | imm | mem | sym

	Reg string `yaml:"reg,omitempty"`
	Imm int64  `yaml:"imm,omitempty"`

	Seg   string `yaml:"seg,omitempty"`
	Base  string `yaml:"base,omitempty"`
	Index string `yaml:"index,omitempty"`
	Scale int    `yaml:"scale,omitempty"`
	Disp  int64  `yaml:"disp,omitempty"`

	Sym    uint32 `yaml:"sym,omitempty"`
	Addend int64  `yaml:"addend,omitempty"`

	PtrSize   int    `yaml:"ptrSize,omitempty"`
	Mask      string `yaml:"mask,omitempty"`
	Zeroing   bool   `yaml:"zeroing,omitempty"`
	Broadcast string `yaml:"broadcast,omitempty"`
}

type resourceDoc struct {
	Name string `yaml:"name"`
	Type string `yaml:"type,omitempty"`
	Data []byte `yaml:"data"`
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

// Load reads and validates an IR container from path.
func Load(path string) (*ir.Container, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	c, err := Decode(raw)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return c, nil
}

// Decode parses a container document from raw YAML.
func Decode(raw []byte) (*ir.Container, error) {
	var doc containerDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if len(doc.Modules) == 0 {
		return nil, fmt.Errorf("container holds no modules")
	}

	c := &ir.Container{}
	for i, md := range doc.Modules {
		m, err := decodeModule(&md)
		if err != nil {
			return nil, fmt.Errorf("module %d (%s): %w", i, md.Name, err)
		}
		c.Modules = append(c.Modules, m)
	}
	return c, nil
}

func decodeModule(md *moduleDoc) (*ir.Module, error) {
	isa, err := ir.ParseISA(md.ISA)
	if err != nil {
		return nil, err
	}
	format, err := ir.ParseFormat(md.Format)
	if err != nil {
		return nil, err
	}

	m := &ir.Module{
		Name:            md.Name,
		ISA:             isa,
		Format:          format,
		Entry:           md.Entry,
		FunctionEntries: md.Functions,
		Alignments:      md.Alignments,
	}

	for i, sd := range md.Symbols {
		sym, err := decodeSymbol(&sd)
		if err != nil {
			return nil, fmt.Errorf("symbol %d (%s): %w", i, sd.Name, err)
		}
		m.AddSymbol(sym)
	}

	for _, sc := range md.Sections {
		sec, err := decodeSection(&sc, m)
		if err != nil {
			return nil, fmt.Errorf("section %s: %w", sc.Name, err)
		}
		m.Sections = append(m.Sections, sec)
	}

	for _, rd := range md.Resources {
		m.Resources = append(m.Resources, ir.Resource{
			Name: rd.Name, Type: rd.Type, Data: rd.Data,
		})
	}
	return m, nil
}

func decodeSymbol(sd *symbolDoc) (ir.Symbol, error) {
	sym := ir.Symbol{Name: sd.Name, Addr: sd.Addr, Value: sd.Value}
	if sym.Name == "" {
		return sym, fmt.Errorf("symbol has no name")
	}
	switch sd.Kind {
	case "code", "":
		sym.Kind = ir.SymCode
	case "data":
		sym.Kind = ir.SymData
	case "absolute":
		sym.Kind = ir.SymAbsolute
	case "undefined":
		sym.Kind = ir.SymUndefined
	default:
		return sym, fmt.Errorf("unknown symbol kind %q", sd.Kind)
	}
	switch sd.Scope {
	case "local", "":
		sym.Scope = ir.ScopeLocal
	case "exported", "global":
		sym.Scope = ir.ScopeExported
	default:
		return sym, fmt.Errorf("unknown symbol scope %q", sd.Scope)
	}
	return sym, nil
}

func decodeSection(sc *sectionDoc, m *ir.Module) (*ir.Section, error) {
	sec := &ir.Section{Name: sc.Name, Align: sc.Align}
	if sec.Name == "" {
		return nil, fmt.Errorf("section has no name")
	}
	for _, f := range sc.Flags {
		switch f {
		case "code":
			sec.Flags |= ir.SecCode
		case "writable":
			sec.Flags |= ir.SecWritable
		case "initialized":
			sec.Flags |= ir.SecInitialized
		case "readonly":
			sec.Flags |= ir.SecReadOnly
		default:
			return nil, fmt.Errorf("unknown section flag %q", f)
		}
	}

	for _, id := range sc.Intervals {
		bi, err := decodeInterval(&id, m)
		if err != nil {
			return nil, fmt.Errorf("interval at %#x: %w", id.Addr, err)
		}
		sec.Intervals = append(sec.Intervals, bi)
	}
	return sec, nil
}

func decodeInterval(id *intervalDoc, m *ir.Module) (*ir.ByteInterval, error) {
	bi := &ir.ByteInterval{Addr: id.Addr, Size: id.Size, Bytes: id.Bytes}
	if bi.Size == 0 {
		bi.Size = uint64(len(bi.Bytes))
	}

	var prevEnd uint64
	for i, bd := range id.Blocks {
		blk, err := decodeBlock(&bd, m)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		if blk.Offset < prevEnd {
			return nil, fmt.Errorf("block %d at offset %d overlaps previous block", i, blk.Offset)
		}
		if blk.Offset+blk.Size > bi.Size {
			return nil, fmt.Errorf("block %d exceeds interval size", i)
		}
		prevEnd = blk.Offset + blk.Size
		bi.Blocks = append(bi.Blocks, blk)
	}
	return bi, nil
}

func decodeBlock(bd *blockDoc, m *ir.Module) (ir.Block, error) {
	blk := ir.Block{Offset: bd.Offset, Size: bd.Size}
	switch bd.Kind {
	case "code":
		blk.Kind = ir.BlockCode
		for i, ind := range bd.Instructions {
			ins, err := decodeInsn(&ind, m)
			if err != nil {
				return blk, fmt.Errorf("instruction %d: %w", i, err)
			}
			blk.Instructions = append(blk.Instructions, ins)
		}
	case "data":
		blk.Kind = ir.BlockData
		dt, err := parseDataType(bd.DataType)
		if err != nil {
			return blk, err
		}
		blk.Data = ir.DataSpec{Type: dt, Sym: ir.SymbolID(bd.Sym), Addend: bd.Addend}
		if blk.Data.Sym != 0 && m.Symbol(blk.Data.Sym) == nil {
			return blk, fmt.Errorf("data block references unknown symbol id %d", bd.Sym)
		}
	case "padding":
		blk.Kind = ir.BlockPadding
		blk.Align = bd.Align
	default:
		return blk, fmt.Errorf("unknown block kind %q", bd.Kind)
	}
	return blk, nil
}

func parseDataType(s string) (ir.DataType, error) {
	switch s {
	case "bytes", "":
		return ir.DataBytes, nil
	case "word":
		return ir.DataWord, nil
	case "long":
		return ir.DataLong, nil
	case "quad":
		return ir.DataQuad, nil
	case "ascii":
		return ir.DataAscii, nil
	case "asciz", "string":
		return ir.DataAsciz, nil
	case "zero":
		return ir.DataZero, nil
	}
	return ir.DataBytes, fmt.Errorf("unknown data type %q", s)
}

func decodeInsn(ind *insnDoc, m *ir.Module) (ir.Instruction, error) {
	ins := ir.Instruction{
		Addr:     ind.Addr,
		Size:     ind.Size,
		Mnemonic: ind.Mnemonic,
		Prefixes: ind.Prefixes,
	}
	for i, od := range ind.Operands {
		op, err := decodeOperand(&od, m)
		if err != nil {
			return ins, fmt.Errorf("operand %d: %w", i, err)
		}
		ins.Operands = append(ins.Operands, op)
	}
	return ins, nil
}

func decodeOperand(od *operandDoc, m *ir.Module) (ir.Operand, error) {
	op := ir.Operand{
		Reg: od.Reg, Imm: od.Imm,
		Seg: od.Seg, Base: od.Base, Index: od.Index, Scale: od.Scale, Disp: od.Disp,
		Sym: ir.SymbolID(od.Sym), Addend: od.Addend,
		PtrSize: od.PtrSize, Mask: od.Mask, Zeroing: od.Zeroing, Broadcast: od.Broadcast,
	}
	switch od.Kind {
	case "reg":
		op.Kind = ir.OpReg
	case "imm":
		op.Kind = ir.OpImm
	case "mem":
		op.Kind = ir.OpMem
	case "sym":
		op.Kind = ir.OpSym
	default:
		return op, fmt.Errorf("unknown operand kind %q", od.Kind)
	}
	if op.Sym != 0 && m.Symbol(op.Sym) == nil {
		return op, fmt.Errorf("operand references unknown symbol id %d", od.Sym)
	}
	return op, nil
}
