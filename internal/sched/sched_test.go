package sched

import (
	"strings"
	"testing"

	"github.com/gmofishsauce/clarionc/internal/ast"
	"github.com/gmofishsauce/clarionc/internal/ir"
	"github.com/gmofishsauce/clarionc/internal/symtab"
	"github.com/gmofishsauce/clarionc/internal/types"
)

func constExpr(text string) *ir.Expr {
	e := ir.NewExpr(ir.OpConst, types.Uint(256), ast.Span{}, ir.EffectNone)
	e.Const = &ir.ConstValue{IntText: text}
	return e
}

func localRef(name string) *ir.Expr {
	e := ir.NewExpr(ir.OpLocalRef, types.Uint(256), ast.Span{}, ir.EffectNone)
	e.Symbol = name
	return e
}

func newTableWithStorage(name string, slot uint64) *symtab.Table {
	tbl := symtab.New()
	tbl.Module.Define(&symtab.Symbol{Name: name, Type: types.Uint(256), Loc: symtab.LocStorage, Slot: slot})
	return tbl
}

func TestScheduleEntryLabelConvention(t *testing.T) {
	fn := &ir.Function{Name: "increment"}
	sf, err := Schedule(fn, symtab.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sf.Label != "fn_increment" {
		t.Errorf("Label = %q, want %q", sf.Label, "fn_increment")
	}
	if len(sf.Instrs) < 2 {
		t.Fatalf("expected at least entry and exit instrs, got %d", len(sf.Instrs))
	}
	if sf.Instrs[0].Op != OpFuncEntry || sf.Instrs[0].Label != "fn_increment" {
		t.Errorf("expected first instr to be OpFuncEntry with the entry label, got %+v", sf.Instrs[0])
	}
	if sf.Instrs[len(sf.Instrs)-1].Op != OpFuncExit {
		t.Errorf("expected last instr to be OpFuncExit, got %+v", sf.Instrs[len(sf.Instrs)-1])
	}
}

func TestScheduleParamsGetFrameSlots(t *testing.T) {
	fn := &ir.Function{
		Name:   "f",
		Params: []ir.Param{{Name: "a", Type: types.Uint(256)}, {Name: "b", Type: types.Uint(256)}},
	}
	sf, err := Schedule(fn, symtab.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sf.ParamNames) != 2 || sf.ParamNames[0] != "a" || sf.ParamNames[1] != "b" {
		t.Errorf("unexpected ParamNames: %v", sf.ParamNames)
	}
	if sf.FrameSlots < 2 {
		t.Errorf("expected at least 2 frame slots for 2 params, got %d", sf.FrameSlots)
	}
}

func TestScheduleReturnEmitsExprThenReturn(t *testing.T) {
	ret := ir.NewStmt(ir.OpReturn, ast.Span{}, ir.EffectNone)
	ret.Results = []*ir.Expr{constExpr("1")}
	fn := &ir.Function{Name: "get", Body: []*ir.Stmt{ret}}

	sf, err := Schedule(fn, symtab.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var sawPush, sawReturn bool
	for _, instr := range sf.Instrs {
		if instr.Op == OpPushConst && instr.Const == "1" {
			sawPush = true
		}
		if instr.Op == OpIR && instr.IR == ir.OpReturn {
			sawReturn = true
			if instr.NArgs != 1 {
				t.Errorf("expected NArgs 1 on return, got %d", instr.NArgs)
			}
		}
	}
	if !sawPush || !sawReturn {
		t.Errorf("expected push-const then IR return, got %+v", sf.Instrs)
	}
}

func TestScheduleAssignToLocal(t *testing.T) {
	assign := ir.NewStmt(ir.OpAssign, ast.Span{}, ir.EffectNone)
	assign.Target = localRef("x")
	assign.Value = constExpr("5")
	fn := &ir.Function{Name: "setx", Body: []*ir.Stmt{assign}}

	sf, err := Schedule(fn, symtab.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var sawStore bool
	for _, instr := range sf.Instrs {
		if instr.Op == OpStoreLocal {
			sawStore = true
		}
	}
	if !sawStore {
		t.Errorf("expected an OpStoreLocal instruction, got %+v", sf.Instrs)
	}
}

func TestScheduleStorageWriteUsesSymbolSlot(t *testing.T) {
	target := ir.NewExpr(ir.OpStorageLoad, types.Uint(256), ast.Span{}, ir.EffectWritesStorage)
	target.Symbol = "count"
	assign := ir.NewStmt(ir.OpAssign, ast.Span{}, ir.EffectWritesStorage)
	assign.Target = target
	assign.Value = constExpr("9")
	fn := &ir.Function{Name: "bump", Body: []*ir.Stmt{assign}}

	sf, err := Schedule(fn, newTableWithStorage("count", 3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var sawSlotPush, sawInsert bool
	for _, instr := range sf.Instrs {
		if instr.Op == OpPushConst && instr.Const == "3" && instr.Name == "slot" {
			sawSlotPush = true
		}
		if instr.Op == OpIR && instr.IR == ir.OpFieldInsert {
			sawInsert = true
		}
	}
	if !sawSlotPush || !sawInsert {
		t.Errorf("expected slot push + field-insert for storage write, got %+v", sf.Instrs)
	}
}

func TestScheduleStorageReadUsesSymbolSlot(t *testing.T) {
	read := ir.NewExpr(ir.OpStorageLoad, types.Uint(256), ast.Span{}, ir.EffectReadsStorage)
	read.Symbol = "count"
	ret := ir.NewStmt(ir.OpReturn, ast.Span{}, ir.EffectReadsStorage)
	ret.Results = []*ir.Expr{read}
	fn := &ir.Function{Name: "get", Body: []*ir.Stmt{ret}}

	sf, err := Schedule(fn, newTableWithStorage("count", 2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var sawSlotPush, sawExtract bool
	for _, instr := range sf.Instrs {
		if instr.Op == OpPushConst && instr.Const == "2" && instr.Name == "slot" {
			sawSlotPush = true
		}
		if instr.Op == OpIR && instr.IR == ir.OpFieldExtract {
			sawExtract = true
		}
	}
	if !sawSlotPush || !sawExtract {
		t.Errorf("expected slot push + field-extract for storage read, got %+v", sf.Instrs)
	}
}

func TestScheduleSharedSubexprIsCached(t *testing.T) {
	shared := localRef("x")
	neg1 := ir.NewExpr(ir.OpNeg, types.Uint(256), ast.Span{}, ir.EffectNone, shared)
	neg2 := ir.NewExpr(ir.OpNeg, types.Uint(256), ast.Span{}, ir.EffectNone, shared)

	s1 := ir.NewStmt(ir.OpExprStmt, ast.Span{}, ir.EffectNone)
	s1.X = neg1
	s2 := ir.NewStmt(ir.OpExprStmt, ast.Span{}, ir.EffectNone)
	s2.X = neg2
	fn := &ir.Function{Name: "f", Body: []*ir.Stmt{s1, s2}}

	sf, err := Schedule(fn, symtab.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var loadCount, dupCount int
	for _, instr := range sf.Instrs {
		if instr.Op == OpLoadLocal {
			loadCount++
		}
		if instr.Op == OpDup {
			dupCount++
		}
	}
	if dupCount < 1 {
		t.Errorf("expected at least one dup for the cached shared value, got %+v", sf.Instrs)
	}
	if loadCount < 2 {
		t.Errorf("expected at least two loads (shared x loaded once, then reloaded from its cache slot), got %+v", sf.Instrs)
	}
}

func TestScheduleIfEmitsJumpsAndLabels(t *testing.T) {
	ifStmt := ir.NewStmt(ir.OpIf, ast.Span{}, ir.EffectNone)
	ifStmt.Cond = constExpr("1")
	ifStmt.Then = nil
	ifStmt.Else = nil
	fn := &ir.Function{Name: "f", Body: []*ir.Stmt{ifStmt}}

	sf, err := Schedule(fn, symtab.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var sawJumpIfZero, sawJump bool
	var labelCount int
	for _, instr := range sf.Instrs {
		switch instr.Op {
		case OpJumpIfZero:
			sawJumpIfZero = true
		case OpJump:
			sawJump = true
		case OpLabel:
			labelCount++
		}
	}
	if !sawJumpIfZero || !sawJump {
		t.Errorf("expected a conditional jump and an unconditional jump, got %+v", sf.Instrs)
	}
	if labelCount < 2 {
		t.Errorf("expected else and endif labels, got %d labels in %+v", labelCount, sf.Instrs)
	}
}

func TestScheduleBreakOutsideLoopErrors(t *testing.T) {
	brk := ir.NewStmt(ir.OpBreak, ast.Span{}, ir.EffectNone)
	fn := &ir.Function{Name: "f", Body: []*ir.Stmt{brk}}
	if _, err := Schedule(fn, symtab.New()); err == nil {
		t.Fatal("expected an error for break outside a loop")
	}
}

func TestScheduleRejectsExcessiveStackDepth(t *testing.T) {
	args := make([]*ir.Expr, MaxStackDepth+1)
	for i := range args {
		args[i] = constExpr("1")
	}
	log := ir.NewStmt(ir.OpLog, ast.Span{}, ir.EffectNone)
	log.Event = "Many"
	log.Args = args
	fn := &ir.Function{Name: "logTooMuch", Body: []*ir.Stmt{log}}

	_, err := Schedule(fn, symtab.New())
	if err == nil {
		t.Fatal("expected a stack-too-deep error, got nil")
	}
	if !strings.Contains(err.Error(), "logTooMuch") {
		t.Errorf("expected error to name the offending function, got %q", err.Error())
	}
}

func TestScheduleForLoopEmitsCounterAndComparison(t *testing.T) {
	forStmt := ir.NewStmt(ir.OpFor, ast.Span{}, ir.EffectNone)
	forStmt.LoopVar = "i"
	forStmt.LoopLow = constExpr("0")
	forStmt.LoopHigh = constExpr("10")
	fn := &ir.Function{Name: "loop", Body: []*ir.Stmt{forStmt}}

	sf, err := Schedule(fn, symtab.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var sawLt bool
	for _, instr := range sf.Instrs {
		if instr.Op == OpIR && instr.IR == ir.OpLt {
			sawLt = true
		}
	}
	if !sawLt {
		t.Errorf("expected a comparison against the loop bound, got %+v", sf.Instrs)
	}
}
