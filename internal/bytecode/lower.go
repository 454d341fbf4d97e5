package bytecode

import (
	"math/big"

	"github.com/gmofishsauce/clarionc/internal/ir"
	"github.com/gmofishsauce/clarionc/internal/sched"
)

// Context supplies the lowering tables Lower needs that are not already
// carried on the scheduled instruction stream: each external function's
// 4-byte ABI selector (spec.md §5).
type Context struct {
	Selectors map[string]uint32
}

// Lower converts every scheduled instruction in prog (dispatcher first,
// then each function body in order) into the target opcode stream. Jump
// targets remain symbolic (Instr.Target/Label) until Finalize resolves
// them to program-counter offsets.
func Lower(prog *sched.Program, ctx Context) []Instr {
	var out []Instr
	for _, si := range prog.Dispatch {
		out = append(out, lowerOne(si, ctx))
	}
	for _, fn := range prog.Functions {
		for _, si := range fn.Instrs {
			out = append(out, lowerOne(si, ctx))
		}
	}
	return out
}

func lowerOne(si sched.Instr, ctx Context) Instr {
	switch si.Op {
	case sched.OpPushConst:
		return Instr{Op: OpPush, Imm: encodeConst(si.Const, si.Bytes)}
	case sched.OpLoadLocal:
		return Instr{Op: OpLoadFrame, Arg: si.N}
	case sched.OpStoreLocal:
		return Instr{Op: OpStoreFrame, Arg: si.N}
	case sched.OpDup:
		return Instr{Op: OpDup, Arg: si.N}
	case sched.OpSwap:
		return Instr{Op: OpSwap, Arg: si.N}
	case sched.OpPop:
		return Instr{Op: OpPop}
	case sched.OpLabel:
		return Instr{Op: OpJumpDest, Label: si.Label}
	case sched.OpJump:
		return Instr{Op: OpJump, Target: si.Label}
	case sched.OpJumpIfZero:
		return Instr{Op: OpJumpZ, Target: si.Label}
	case sched.OpJumpIfNotZero:
		return Instr{Op: OpJumpNZ, Target: si.Label}
	case sched.OpFuncEntry:
		return Instr{Op: OpJumpDest, Label: si.Label}
	case sched.OpFuncExit:
		return Instr{Op: OpReturn, Arg: 0}
	case sched.OpIR:
		return lowerIR(si, ctx)
	default:
		return Instr{Op: OpHalt}
	}
}

func lowerIR(si sched.Instr, ctx Context) Instr {
	switch si.IR {
	case ir.OpAddChecked:
		return Instr{Op: OpAdd, Arg: 1}
	case ir.OpAddUnchecked:
		return Instr{Op: OpAdd, Arg: 0}
	case ir.OpSubChecked:
		return Instr{Op: OpSub, Arg: 1}
	case ir.OpSubUnchecked:
		return Instr{Op: OpSub, Arg: 0}
	case ir.OpMulChecked:
		return Instr{Op: OpMul, Arg: 1}
	case ir.OpMulUnchecked:
		return Instr{Op: OpMul, Arg: 0}
	case ir.OpDivChecked:
		return Instr{Op: OpDiv}
	case ir.OpModChecked:
		return Instr{Op: OpMod}
	case ir.OpNeg:
		return Instr{Op: OpNeg}
	case ir.OpAnd, ir.OpBoolAnd:
		return Instr{Op: OpAnd}
	case ir.OpOr, ir.OpBoolOr:
		return Instr{Op: OpOr}
	case ir.OpXor:
		return Instr{Op: OpXor}
	case ir.OpNot:
		return Instr{Op: OpNot}
	case ir.OpShl:
		return Instr{Op: OpShl}
	case ir.OpShr:
		return Instr{Op: OpShr}
	case ir.OpEq:
		return Instr{Op: OpEq}
	case ir.OpNe:
		return Instr{Op: OpNe}
	case ir.OpLt:
		return Instr{Op: OpLt}
	case ir.OpLe:
		return Instr{Op: OpLe}
	case ir.OpGt:
		return Instr{Op: OpGt}
	case ir.OpGe:
		return Instr{Op: OpGe}
	case ir.OpStorageLoad:
		return Instr{Op: OpSLoad}
	case ir.OpStorageStore:
		return Instr{Op: OpSStore}
	case ir.OpMemoryLoad:
		return Instr{Op: OpMLoad}
	case ir.OpMemoryStore:
		return Instr{Op: OpMStore}
	case ir.OpFieldExtract:
		return Instr{Op: OpFieldExtract, Arg: si.N}
	case ir.OpFieldInsert:
		return Instr{Op: OpFieldInsert, Arg: si.N}
	case ir.OpArrayElemAddr:
		return Instr{Op: OpArrayElemAddr}
	case ir.OpMappingSlot:
		return Instr{Op: OpMappingSlot}
	case ir.OpEnvQuery:
		return Instr{Op: OpEnv, Imm: []byte(si.Name)}
	case ir.OpCallInternal:
		return Instr{Op: OpCallInternal, Target: "fn_" + si.Name, Arg: si.NArgs}
	case ir.OpCallExternal:
		return Instr{Op: OpCallExternal, Imm: selectorBytes(ctx, si.Name), Arg: si.NArgs}
	case ir.OpCallDelegate:
		return Instr{Op: OpCallDelegate, Imm: selectorBytes(ctx, si.Name), Arg: si.NArgs}
	case ir.OpCallStatic:
		return Instr{Op: OpCallStatic, Imm: selectorBytes(ctx, si.Name), Arg: si.NArgs}
	case ir.OpLog:
		return Instr{Op: OpLog, Imm: []byte(si.Name), Arg: si.NArgs}
	case ir.OpReturn:
		return Instr{Op: OpReturn, Arg: si.NArgs}
	case ir.OpRevert:
		return Instr{Op: OpRevert, Arg: si.NArgs}
	case ir.OpStructLiteral:
		return Instr{Op: OpStructLiteral, Imm: []byte(si.Name), Arg: si.NArgs}
	case ir.OpFieldAccess:
		// TODO: thread the base expression's struct type through the
		// scheduler so this resolves to the field's real bit offset (see
		// layout.StructLayout); every struct read currently lowers as if
		// the accessed field were the struct's first field.
		return Instr{Op: OpFieldExtract, Arg: 0}
	default:
		return Instr{Op: OpHalt}
	}
}

// selectorBytes resolves an external call target's method name to its
// 4-byte ABI selector; a name absent from ctx.Selectors (a call through
// an interface value, whose concrete target is unknown until runtime)
// encodes as zero and is resolved by the callee's own dispatcher instead.
func selectorBytes(ctx Context, name string) []byte {
	sel, ok := ctx.Selectors[name]
	out := make([]byte, 4)
	if !ok {
		return out
	}
	out[0] = byte(sel >> 24)
	out[1] = byte(sel >> 16)
	out[2] = byte(sel >> 8)
	out[3] = byte(sel)
	return out
}

// encodeConst renders a folded constant as a 32-byte big-endian word. A
// byte-string literal (Bytes set, IntText empty) is left-packed the way
// fixed-length byte types are stored (spec.md §2 type lattice); a
// missing value of either kind encodes as zero.
func encodeConst(intText string, bytes []byte) []byte {
	out := make([]byte, 32)
	if len(bytes) > 0 {
		copy(out, bytes)
		return out
	}
	if intText == "" {
		return out
	}
	n, ok := new(big.Int).SetString(intText, 10)
	if !ok {
		return out
	}
	b := n.Bytes()
	if n.Sign() < 0 {
		// Two's-complement encoding over the full 256-bit word.
		mod := new(big.Int).Lsh(big.NewInt(1), 256)
		twos := new(big.Int).Add(mod, n)
		b = twos.Bytes()
	}
	if len(b) > 32 {
		b = b[len(b)-32:]
	}
	copy(out[32-len(b):], b)
	return out
}
