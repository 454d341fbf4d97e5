package bytecode

import "testing"

func TestOpcodeString(t *testing.T) {
	tests := []struct {
		op   Opcode
		want string
	}{
		{OpHalt, "HALT"},
		{OpPush, "PUSH"},
		{OpCallInternal, "CALLINTERNAL"},
		{Opcode(255), "UNKNOWN"},
	}
	for _, tc := range tests {
		if got := tc.op.String(); got != tc.want {
			t.Errorf("%d.String() = %q, want %q", tc.op, got, tc.want)
		}
	}
}

func TestInstrSize(t *testing.T) {
	tests := []struct {
		name string
		in   Instr
		want int
	}{
		{"jumpdest", Instr{Op: OpJumpDest}, 1},
		{"push", Instr{Op: OpPush}, 33},
		{"dup", Instr{Op: OpDup}, 2},
		{"jump", Instr{Op: OpJump}, 5},
		{"call_internal", Instr{Op: OpCallInternal}, 6},
		{"call_external", Instr{Op: OpCallExternal}, 6},
		{"env_no_name", Instr{Op: OpEnv}, 2},
		{"env_with_name", Instr{Op: OpEnv, Imm: []byte("sender")}, 2 + 6},
		{"log", Instr{Op: OpLog, Imm: []byte("Transfer")}, 3 + 8},
		{"halt", Instr{Op: OpHalt}, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.in.Size(); got != tc.want {
				t.Errorf("Size() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestFinalizeResolvesJumpTarget(t *testing.T) {
	instrs := []Instr{
		{Op: OpPush, Imm: []byte{1}},
		{Op: OpJump, Target: "end"},
		{Op: OpJumpDest, Label: "end"},
		{Op: OpHalt},
	}
	prog, err := Finalize(instrs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// push(33 bytes) then jump(5 bytes) -> end's PC is 38.
	wantPC := 33 + 5
	if len(prog.SourceMap) < 3 {
		t.Fatalf("expected at least 3 source map entries, got %d", len(prog.SourceMap))
	}
	jumpEntry := prog.SourceMap[1]
	if jumpEntry.JumpKind != "jump" {
		t.Errorf("expected jump entry to be tagged jump, got %q", jumpEntry.JumpKind)
	}
	target := int(prog.RuntimeCode[33+1])<<24 | int(prog.RuntimeCode[33+2])<<16 | int(prog.RuntimeCode[33+3])<<8 | int(prog.RuntimeCode[33+4])
	if target != wantPC {
		t.Errorf("resolved jump target = %d, want %d", target, wantPC)
	}
}

func TestFinalizeUnresolvedJumpErrors(t *testing.T) {
	instrs := []Instr{{Op: OpJump, Target: "nowhere"}}
	if _, err := Finalize(instrs); err == nil {
		t.Fatal("expected an error for an unresolved jump target")
	}
}

func TestFinalizeCallInternalEncodesTargetAndArgCount(t *testing.T) {
	instrs := []Instr{
		{Op: OpJumpDest, Label: "fn_get"},
		{Op: OpCallInternal, Target: "fn_get", Arg: 2},
	}
	prog, err := Finalize(instrs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prog.RuntimeCode[1] != byte(OpCallInternal) {
		t.Fatalf("expected CALLINTERNAL opcode at offset 1, got %d", prog.RuntimeCode[1])
	}
	if prog.RuntimeCode[6] != 2 {
		t.Errorf("expected arg count 2 at the tail, got %d", prog.RuntimeCode[6])
	}
}

func TestPeepholeEliminatesPushPop(t *testing.T) {
	instrs := []Instr{
		{Op: OpPush, Imm: []byte{1}},
		{Op: OpPop},
		{Op: OpHalt},
	}
	out := Peephole(instrs)
	if len(out) != 1 || out[0].Op != OpHalt {
		t.Errorf("expected push/pop pair eliminated, got %+v", out)
	}
}

func TestPeepholeEliminatesDupPop(t *testing.T) {
	instrs := []Instr{
		{Op: OpDup, Arg: 0},
		{Op: OpPop},
		{Op: OpHalt},
	}
	out := Peephole(instrs)
	if len(out) != 1 || out[0].Op != OpHalt {
		t.Errorf("expected dup/pop pair eliminated, got %+v", out)
	}
}

func TestPeepholeEliminatesSwapSwap(t *testing.T) {
	instrs := []Instr{
		{Op: OpSwap, Arg: 1},
		{Op: OpSwap, Arg: 1},
		{Op: OpHalt},
	}
	out := Peephole(instrs)
	if len(out) != 1 || out[0].Op != OpHalt {
		t.Errorf("expected swap/swap pair eliminated, got %+v", out)
	}
}

func TestPeepholeCollapsesJumpChain(t *testing.T) {
	instrs := []Instr{
		{Op: OpJump, Target: "mid"},
		{Op: OpJumpDest, Label: "mid"},
		{Op: OpJump, Target: "final"},
		{Op: OpJumpDest, Label: "final"},
		{Op: OpHalt},
	}
	out := Peephole(instrs)
	if out[0].Target != "final" {
		t.Errorf("expected first jump to collapse straight to final, got %q", out[0].Target)
	}
}

func TestPeepholeRemovesDeadCodeAfterTerminator(t *testing.T) {
	instrs := []Instr{
		{Op: OpReturn},
		{Op: OpPush, Imm: []byte{1}},
		{Op: OpHalt},
	}
	out := Peephole(instrs)
	if len(out) != 1 || out[0].Op != OpReturn {
		t.Errorf("expected dead code after return removed, got %+v", out)
	}
}

func TestPeepholeKeepsLiveCodeAfterJumpDest(t *testing.T) {
	instrs := []Instr{
		{Op: OpReturn},
		{Op: OpPush, Imm: []byte{1}}, // dead: falls between Return and the next jumpdest
		{Op: OpJumpDest, Label: "reachable"},
		{Op: OpHalt},
	}
	out := Peephole(instrs)
	if len(out) != 3 {
		t.Fatalf("expected Return, JumpDest and Halt to survive, the Push to be dropped, got %+v", out)
	}
	if out[0].Op != OpReturn || out[1].Op != OpJumpDest || out[2].Op != OpHalt {
		t.Errorf("unexpected surviving instructions: %+v", out)
	}
}

func TestPeepholeIdempotent(t *testing.T) {
	instrs := []Instr{
		{Op: OpPush, Imm: []byte{1}},
		{Op: OpDup, Arg: 0},
		{Op: OpHalt},
	}
	once := Peephole(instrs)
	twice := Peephole(once)
	if !Equal(once, twice) {
		t.Errorf("expected a second Peephole pass to be a no-op")
	}
}

func TestDisassembleRoundTripsPushAndHalt(t *testing.T) {
	instrs := []Instr{
		{Op: OpPush, Imm: []byte{0x2a}},
		{Op: OpHalt},
	}
	prog, err := Finalize(instrs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := Disassemble(prog)
	if out == "" {
		t.Fatal("expected non-empty disassembly")
	}
	if !contains(out, "PUSH") || !contains(out, "HALT") {
		t.Errorf("expected disassembly to mention PUSH and HALT, got %q", out)
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
