package bytecode

import "bytes"

// Peephole runs every rewrite rule to a fixed point, mirroring the
// rewrite-until-no-change loop in lang/ypeep.optimize: push/pop pair
// elimination, swap-swap elimination, dup-pop elimination, jump-chain
// collapsing, and dead-code-after-terminator removal (spec.md §4.7).
func Peephole(instrs []Instr) []Instr {
	for {
		var changed bool
		instrs, changed = onePass(instrs)
		if !changed {
			return instrs
		}
	}
}

func onePass(instrs []Instr) ([]Instr, bool) {
	changed := false
	out := make([]Instr, 0, len(instrs))
	jumpTo := jumpChainTargets(instrs)

	i := 0
	terminated := false
	for i < len(instrs) {
		cur := instrs[i]

		if terminated && cur.Op != OpJumpDest {
			// Dead code after an unconditional terminator, up to the next
			// valid jump landing pad.
			changed = true
			i++
			continue
		}
		if cur.Op == OpJumpDest {
			terminated = false
		}

		// push X; pop  -> delete both (value never observed).
		if cur.Op == OpPush && i+1 < len(instrs) && instrs[i+1].Op == OpPop {
			changed = true
			i += 2
			continue
		}

		// dup 0; pop  -> delete both (redundant dup immediately discarded).
		if cur.Op == OpDup && cur.Arg == 0 && i+1 < len(instrs) && instrs[i+1].Op == OpPop {
			changed = true
			i += 2
			continue
		}

		// swap N; swap N  -> delete both (self-inverse).
		if cur.Op == OpSwap && i+1 < len(instrs) && instrs[i+1].Op == OpSwap && instrs[i+1].Arg == cur.Arg {
			changed = true
			i += 2
			continue
		}

		// Jump-chain collapsing: a jump whose target is itself an
		// unconditional jump is rewritten to target the chain's end.
		if (cur.Op == OpJump || cur.Op == OpJumpZ || cur.Op == OpJumpNZ) && cur.Target != "" {
			if final, ok := jumpTo[cur.Target]; ok && final != cur.Target {
				cur.Target = final
				changed = true
			}
		}

		out = append(out, cur)
		if cur.Op == OpJump || cur.Op == OpReturn || cur.Op == OpRevert {
			terminated = true
		}
		i++
	}
	return out, changed
}

// jumpChainTargets maps every label that is itself immediately followed
// by an unconditional jump to that jump's ultimate destination, so
// onePass can redirect any jump landing on it straight to the end of the
// chain in one step per iteration.
func jumpChainTargets(instrs []Instr) map[string]string {
	m := make(map[string]string)
	for i, in := range instrs {
		if in.Op != OpJumpDest || in.Label == "" {
			continue
		}
		j := i + 1
		for j < len(instrs) && instrs[j].Op == OpJumpDest {
			j++
		}
		if j < len(instrs) && instrs[j].Op == OpJump && instrs[j].Target != in.Label {
			m[in.Label] = instrs[j].Target
		}
	}
	return m
}

// Equal reports whether two lowered streams are byte-identical once
// labels are erased, used by the idempotence tests to confirm a second
// Peephole pass is a no-op (spec.md §8).
func Equal(a, b []Instr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Op != b[i].Op || a[i].Arg != b[i].Arg || a[i].Target != b[i].Target {
			return false
		}
		if !bytes.Equal(a[i].Imm, b[i].Imm) {
			return false
		}
	}
	return true
}
