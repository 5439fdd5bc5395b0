package syntax

import (
	"fmt"
	"io"
	"strings"

	"asmprint/internal/ir"
)

// ---------------------------------------------------------------------------
// Intel emitter
//
// Targets GNU as in ".intel_syntax noprefix" mode: bare register names,
// bare immediates, destination-first operand order, and
// "width ptr [base+index*scale+disp]" memory references.
// ---------------------------------------------------------------------------

type intelEmitter struct {
	gasDirectives
}

func (*intelEmitter) Dialect() Dialect { return Intel }

func (*intelEmitter) Header(w io.Writer, m *ir.Module) {
	fmt.Fprintf(w, "# module %s (%s, %s)\n", m.Name, m.ISA, m.Format)
	fmt.Fprintf(w, ".intel_syntax noprefix\n\n")
}

func (e *intelEmitter) Instruction(w io.Writer, ins *ir.Instruction, res Resolver) error {
	if ins.Mnemonic == "" {
		return &UnsupportedInstructionError{Addr: ins.Addr, Mnemonic: "", Reason: "empty mnemonic"}
	}

	var b strings.Builder
	b.WriteString("    ")
	for _, p := range ins.Prefixes {
		b.WriteString(p)
		b.WriteByte(' ')
	}
	b.WriteString(intelMnemonic(ins.Mnemonic))

	for i := range ins.Operands {
		text, err := e.operand(ins, i, res)
		if err != nil {
			return err
		}
		if i == 0 {
			b.WriteByte(' ')
		} else {
			b.WriteString(", ")
		}
		b.WriteString(text)
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

// intelMnemonic strips the AT&T size suffix from the handful of mnemonics
// where the decoder bakes one in and Intel syntax derives the width from
// the operands instead.  At most one trailing character is a suffix, so
// bases ending in a suffix letter ("imul", "shl") still match their table
// entry.  Mnemonics without a known suffix pass through.
func intelMnemonic(m string) string {
	n := len(m)
	if n < 2 {
		return m
	}
	switch m[n-1] {
	case 'b', 'w', 'l', 'q':
		if _, ok := suffixedMnemonics[m[:n-1]]; ok {
			return m[:n-1]
		}
	}
	return m
}

// suffixedMnemonics lists base mnemonics that commonly carry an AT&T size
// suffix.  Vector mnemonics (vpaddq etc.) are deliberately absent: their
// trailing letters are part of the operation, not a size suffix.
var suffixedMnemonics = map[string]struct{}{
	"mov": {}, "add": {}, "sub": {}, "and": {}, "or": {}, "xor": {},
	"cmp": {}, "test": {}, "lea": {}, "push": {}, "pop": {},
	"inc": {}, "dec": {}, "neg": {}, "not": {}, "imul": {}, "idiv": {},
	"shl": {}, "shr": {}, "sar": {},
}

func (e *intelEmitter) operand(ins *ir.Instruction, idx int, res Resolver) (string, error) {
	op := ins.Operands[idx]
	switch op.Kind {
	case ir.OpReg:
		if op.Reg == "" {
			return "", &UnsupportedOperandError{Addr: ins.Addr, Mnemonic: ins.Mnemonic, Index: idx, Reason: "register operand has no name"}
		}
		return op.Reg + intelDecorators(op), nil

	case ir.OpImm:
		if op.Sym != 0 {
			name, err := symName(res, ins, idx, op.Sym)
			if err != nil {
				return "", err
			}
			return "offset " + name + addend(op.Addend), nil
		}
		return fmt.Sprintf("%d", op.Imm), nil

	case ir.OpSym:
		name, err := symName(res, ins, idx, op.Sym)
		if err != nil {
			return "", err
		}
		return name + addend(op.Addend), nil

	case ir.OpMem:
		return e.memOperand(ins, idx, res)

	default:
		return "", &UnsupportedOperandError{Addr: ins.Addr, Mnemonic: ins.Mnemonic, Index: idx, Reason: fmt.Sprintf("operand kind %s", op.Kind)}
	}
}

func (e *intelEmitter) memOperand(ins *ir.Instruction, idx int, res Resolver) (string, error) {
	op := ins.Operands[idx]
	if !validScale(op.Scale) {
		return "", &UnsupportedOperandError{Addr: ins.Addr, Mnemonic: ins.Mnemonic, Index: idx, Reason: fmt.Sprintf("memory scale %d", op.Scale)}
	}
	if op.Index != "" && op.Scale == 0 {
		return "", &UnsupportedOperandError{Addr: ins.Addr, Mnemonic: ins.Mnemonic, Index: idx, Reason: "indexed memory operand without scale"}
	}

	var b strings.Builder
	if p := intelPtr(op.PtrSize); p != "" {
		b.WriteString(p)
		b.WriteByte(' ')
	}
	if op.Seg != "" {
		b.WriteString(op.Seg + ":")
	}
	b.WriteByte('[')

	needPlus := false
	if op.Base != "" {
		b.WriteString(op.Base)
		needPlus = true
	}
	if op.Index != "" {
		if needPlus {
			b.WriteByte('+')
		}
		fmt.Fprintf(&b, "%s*%d", op.Index, op.Scale)
		needPlus = true
	}
	if op.Sym != 0 {
		name, err := symName(res, ins, idx, op.Sym)
		if err != nil {
			return "", err
		}
		if needPlus {
			b.WriteByte('+')
		}
		b.WriteString(name + addend(op.Addend))
		needPlus = true
	} else if op.Disp != 0 || !needPlus {
		if needPlus {
			fmt.Fprintf(&b, "%+d", op.Disp)
		} else {
			fmt.Fprintf(&b, "%d", op.Disp)
		}
	}
	b.WriteByte(']')

	if op.Broadcast != "" {
		fmt.Fprintf(&b, "{%s}", op.Broadcast)
	}
	b.WriteString(intelDecorators(op))
	return b.String(), nil
}

// intelPtr maps an access width to the Intel pointer-size keyword.
func intelPtr(size int) string {
	switch size {
	case 1:
		return "byte ptr"
	case 2:
		return "word ptr"
	case 4:
		return "dword ptr"
	case 8:
		return "qword ptr"
	case 16:
		return "xmmword ptr"
	case 32:
		return "ymmword ptr"
	case 64:
		return "zmmword ptr"
	}
	return ""
}

// intelDecorators renders AVX-512 opmask/zeroing decorators, Intel style.
func intelDecorators(op ir.Operand) string {
	if op.Mask == "" {
		return ""
	}
	s := "{" + op.Mask + "}"
	if op.Zeroing {
		s += "{z}"
	}
	return s
}
