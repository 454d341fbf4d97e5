package sched

import (
	"sort"

	"github.com/gmofishsauce/clarionc/internal/ir"
)

// Program is every scheduled function plus the external-entry dispatcher
// that precedes them in the deployed bytecode (spec.md §4.6/§5).
type Program struct {
	Functions []*Function
	Dispatch  []Instr
}

// BuildDispatcher assembles the selector decision tree described in
// spec.md §5: the runtime entry point chains equality comparisons of the
// call's 4-byte selector, queried afresh for each comparison, against
// every external function's selector, jumping to the matching function's label and
// falling through to a revert if nothing matches. Functions are sorted
// by selector so the generated chain is deterministic run to run (spec.md
// §8 determinism property), matching lang/yasm.Assembler's ordering of
// the symbol table it builds on a single linear scan.
func BuildDispatcher(funcs []*Function, selectorOf func(name string) uint32) []Instr {
	type entry struct {
		sel uint32
		fn  *Function
	}
	var externals []entry
	for _, fn := range funcs {
		if fn.External {
			externals = append(externals, entry{sel: selectorOf(fn.Name), fn: fn})
		}
	}
	sort.Slice(externals, func(i, j int) bool { return externals[i].sel < externals[j].sel })

	var out []Instr
	out = append(out, Instr{Op: OpLabel, Label: "dispatch"})
	for _, en := range externals {
		missLabel := "L_dispatch_miss_" + fmtUint(en.sel)
		out = append(out,
			Instr{Op: OpIR, IR: ir.OpEnvQuery, Name: "selector"},
			Instr{Op: OpPushConst, Const: fmtUint(en.sel)},
			Instr{Op: OpIR, IR: ir.OpEq},
			Instr{Op: OpJumpIfZero, Label: missLabel},
			Instr{Op: OpJump, Label: en.fn.Label},
			Instr{Op: OpLabel, Label: missLabel},
		)
	}
	out = append(out, Instr{Op: OpIR, IR: ir.OpRevert, NArgs: 0})
	return out
}

func fmtUint(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
