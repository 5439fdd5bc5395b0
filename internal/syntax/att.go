package syntax

import (
	"fmt"
	"io"
	"strings"

	"asmprint/internal/ir"
)

// ---------------------------------------------------------------------------
// AT&T emitter
//
// Register names carry a % sigil, immediates a $ sigil, operands run
// source-first, and memory references use disp(base,index,scale).  AVX-512
// opmask and zeroing decorators attach to the register ({%k1}{z}); broadcast
// decorators attach to the memory source ({1to8}).
// ---------------------------------------------------------------------------

type attEmitter struct {
	gasDirectives
}

func (*attEmitter) Dialect() Dialect { return ATT }

func (*attEmitter) Header(w io.Writer, m *ir.Module) {
	fmt.Fprintf(w, "# module %s (%s, %s)\n", m.Name, m.ISA, m.Format)
	fmt.Fprintf(w, ".att_syntax\n\n")
}

func (e *attEmitter) Instruction(w io.Writer, ins *ir.Instruction, res Resolver) error {
	if ins.Mnemonic == "" {
		return &UnsupportedInstructionError{Addr: ins.Addr, Mnemonic: "", Reason: "empty mnemonic"}
	}

	var b strings.Builder
	b.WriteString("    ")
	for _, p := range ins.Prefixes {
		b.WriteString(p)
		b.WriteByte(' ')
	}
	b.WriteString(ins.Mnemonic)

	// AT&T reverses the decoder's (destination-first) operand order.
	for i := len(ins.Operands) - 1; i >= 0; i-- {
		text, err := e.operand(ins, i, res)
		if err != nil {
			return err
		}
		if i == len(ins.Operands)-1 {
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

func (e *attEmitter) operand(ins *ir.Instruction, idx int, res Resolver) (string, error) {
	op := ins.Operands[idx]
	switch op.Kind {
	case ir.OpReg:
		if op.Reg == "" {
			return "", &UnsupportedOperandError{Addr: ins.Addr, Mnemonic: ins.Mnemonic, Index: idx, Reason: "register operand has no name"}
		}
		return "%" + op.Reg + attDecorators(op), nil

	case ir.OpImm:
		if op.Sym != 0 {
			name, err := symName(res, ins, idx, op.Sym)
			if err != nil {
				return "", err
			}
			return "$" + name + addend(op.Addend), nil
		}
		return fmt.Sprintf("$%d", op.Imm), nil

	case ir.OpSym:
		// Direct branch/call target: bare symbol, no sigil.
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

func (e *attEmitter) memOperand(ins *ir.Instruction, idx int, res Resolver) (string, error) {
	op := ins.Operands[idx]
	if !validScale(op.Scale) {
		return "", &UnsupportedOperandError{Addr: ins.Addr, Mnemonic: ins.Mnemonic, Index: idx, Reason: fmt.Sprintf("memory scale %d", op.Scale)}
	}
	if op.Index != "" && op.Scale == 0 {
		return "", &UnsupportedOperandError{Addr: ins.Addr, Mnemonic: ins.Mnemonic, Index: idx, Reason: "indexed memory operand without scale"}
	}

	var b strings.Builder
	if op.Seg != "" {
		b.WriteString("%" + op.Seg + ":")
	}

	// Displacement: symbolic beats numeric.
	if op.Sym != 0 {
		name, err := symName(res, ins, idx, op.Sym)
		if err != nil {
			return "", err
		}
		b.WriteString(name + addend(op.Addend))
	} else if op.Disp != 0 || (op.Base == "" && op.Index == "") {
		fmt.Fprintf(&b, "%d", op.Disp)
	}

	if op.Base != "" || op.Index != "" {
		b.WriteByte('(')
		if op.Base != "" {
			b.WriteString("%" + op.Base)
		}
		if op.Index != "" {
			fmt.Fprintf(&b, ",%%%s,%d", op.Index, op.Scale)
		}
		b.WriteByte(')')
	}

	if op.Broadcast != "" {
		fmt.Fprintf(&b, "{%s}", op.Broadcast)
	}
	b.WriteString(attDecorators(op))
	return b.String(), nil
}

// attDecorators renders AVX-512 opmask/zeroing decorators, AT&T style.
func attDecorators(op ir.Operand) string {
	if op.Mask == "" {
		return ""
	}
	s := "{%" + op.Mask + "}"
	if op.Zeroing {
		s += "{z}"
	}
	return s
}
