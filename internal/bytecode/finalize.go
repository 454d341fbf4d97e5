package bytecode

import "fmt"

// Finalize resolves every symbolic jump target to a byte-level program
// counter and serializes the stream to the target machine's encoding,
// producing the runtime bytecode and its source map (spec.md §4.7/§5).
//
// Label resolution is a two-pass scan — first compute every JUMPDEST's
// PC by summing preceding instruction sizes, then rewrite each jump's
// operand — following lang/yasm.Assembler's pass1 (size accounting) then
// pass2 (symbol-relative fixup) structure.
func Finalize(instrs []Instr) (*Program, error) {
	pcOf := make(map[string]int)
	pc := 0
	for i := range instrs {
		in := instrs[i]
		instrs[i].PC = pc
		if in.Op == OpJumpDest && in.Label != "" {
			pcOf[in.Label] = pc
		}
		pc += in.Size()
	}

	var code []byte
	var sm []SourceMapEntry
	pc = 0
	for _, in := range instrs {
		entryPC := pc
		switch in.Op {
		case OpJumpDest:
			code = append(code, byte(in.Op))
			sm = append(sm, SourceMapEntry{PC: entryPC, Span: in.Span, JumpKind: "jumpdest"})

		case OpPush:
			code = append(code, byte(in.Op))
			imm := in.Imm
			if len(imm) != 32 {
				padded := make([]byte, 32)
				copy(padded[32-len(imm):], imm)
				imm = padded
			}
			code = append(code, imm...)
			sm = append(sm, SourceMapEntry{PC: entryPC, Span: in.Span})

		case OpJump, OpJumpZ, OpJumpNZ:
			target, ok := pcOf[in.Target]
			if !ok {
				return nil, fmt.Errorf("unresolved jump target %q", in.Target)
			}
			code = append(code, byte(in.Op))
			code = append(code, byte(target>>24), byte(target>>16), byte(target>>8), byte(target))
			kind := map[Opcode]string{OpJump: "jump", OpJumpZ: "jumpz", OpJumpNZ: "jumpnz"}[in.Op]
			sm = append(sm, SourceMapEntry{PC: entryPC, Span: in.Span, JumpKind: kind})

		case OpCallInternal:
			target, ok := pcOf[in.Target]
			if !ok {
				return nil, fmt.Errorf("unresolved call target %q", in.Target)
			}
			code = append(code, byte(in.Op))
			code = append(code, byte(target>>24), byte(target>>16), byte(target>>8), byte(target))
			code = append(code, byte(in.Arg))
			sm = append(sm, SourceMapEntry{PC: entryPC, Span: in.Span, JumpKind: "call"})

		case OpCallExternal, OpCallDelegate, OpCallStatic:
			code = append(code, byte(in.Op))
			sel := in.Imm
			if len(sel) != 4 {
				sel = make([]byte, 4)
			}
			code = append(code, sel...)
			code = append(code, byte(in.Arg))
			sm = append(sm, SourceMapEntry{PC: entryPC, Span: in.Span, JumpKind: "call"})

		case OpEnv:
			code = append(code, byte(in.Op), byte(len(in.Imm)))
			code = append(code, in.Imm...)
			sm = append(sm, SourceMapEntry{PC: entryPC, Span: in.Span})

		case OpLog, OpStructLiteral:
			code = append(code, byte(in.Op), byte(len(in.Imm)))
			code = append(code, in.Imm...)
			code = append(code, byte(in.Arg))
			sm = append(sm, SourceMapEntry{PC: entryPC, Span: in.Span})

		default:
			code = append(code, byte(in.Op))
			if in.Size() == 2 {
				code = append(code, byte(in.Arg))
			}
			sm = append(sm, SourceMapEntry{PC: entryPC, Span: in.Span})
		}
		pc += in.Size()
	}

	return &Program{RuntimeCode: code, SourceMap: sm}, nil
}
