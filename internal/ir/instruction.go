package ir

import "fmt"

// ---------------------------------------------------------------------------
// Decoded instructions
//
// Instructions arrive fully decoded from the upstream disassembler.  The
// printer renders them; it never decodes or mutates them.
// ---------------------------------------------------------------------------

// Instruction is one decoded machine instruction.
type Instruction struct {
	Addr     uint64
	Size     int // encoded length in bytes
	Mnemonic string
	Prefixes []string // e.g. "lock", "rep"
	Operands []Operand
}

// OperandKind describes what an instruction operand represents.
type OperandKind int

const (
	OpNone OperandKind = iota
	OpReg              // named register
	OpImm              // integer immediate
	OpMem              // memory reference [seg:base + index*scale + disp]
	OpSym              // symbolic reference (branch/call target, RIP-relative)
)

var operandKindNames = map[OperandKind]string{
	OpNone: "none", OpReg: "reg", OpImm: "imm", OpMem: "mem", OpSym: "sym",
}

func (k OperandKind) String() string {
	if s, ok := operandKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("op_%d", int(k))
}

// Operand is a single instruction operand.
type Operand struct {
	Kind OperandKind

	// OpReg
	Reg string

	// OpImm
	Imm int64

	// OpMem
	Seg   string
	Base  string
	Index string
	Scale int
	Disp  int64

	// OpSym, and symbolic displacement/immediate for OpMem/OpImm
	Sym    SymbolID
	Addend int64

	// PtrSize is the access width in bytes for memory operands (needed for
	// Intel "ptr" sizing and AT&T suffix checks on mem-only forms).
	PtrSize int

	// AVX-512 decorators.  Mask/Zeroing apply to destination registers,
	// Broadcast ("1to8" etc.) to memory sources.
	Mask      string
	Zeroing   bool
	Broadcast string
}

// Convenience constructors, used by container producers and tests.
func Reg(name string) Operand { return Operand{Kind: OpReg, Reg: name} }
func Imm(v int64) Operand     { return Operand{Kind: OpImm, Imm: v} }
func SymRef(id SymbolID, addend int64) Operand {
	return Operand{Kind: OpSym, Sym: id, Addend: addend}
}
func Mem(base string, disp int64) Operand {
	return Operand{Kind: OpMem, Base: base, Disp: disp}
}
func MemIdx(base, index string, scale int, disp int64) Operand {
	return Operand{Kind: OpMem, Base: base, Index: index, Scale: scale, Disp: disp}
}

// Masked returns a copy of the operand with an AVX-512 opmask applied.
func (o Operand) Masked(mask string, zeroing bool) Operand {
	o.Mask = mask
	o.Zeroing = zeroing
	return o
}

func (o Operand) String() string {
	switch o.Kind {
	case OpNone:
		return "<none>"
	case OpReg:
		return o.Reg
	case OpImm:
		return fmt.Sprintf("%d", o.Imm)
	case OpMem:
		return fmt.Sprintf("[%s+%s*%d%+d]", o.Base, o.Index, o.Scale, o.Disp)
	case OpSym:
		return fmt.Sprintf("sym#%d%+d", o.Sym, o.Addend)
	default:
		return "?"
	}
}
