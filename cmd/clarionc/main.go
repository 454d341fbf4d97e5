// clarionc is a thin driver demonstrating the compiler pipeline wired
// end to end (pkg/clarionc). Producing a real ast.Module from Clarion
// source is out of scope here (the lexer/parser are external
// collaborators, spec.md §9); this driver instead compiles a small
// built-in sample module and prints the resulting ABI descriptor and
// disassembly, mirroring lang/ya/main.go's flag-driven single-file
// compile path without its multi-stage subprocess plumbing, since this
// pipeline runs in one process rather than as separate binaries.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gmofishsauce/clarionc/internal/ast"
	"github.com/gmofishsauce/clarionc/internal/bytecode"
	"github.com/gmofishsauce/clarionc/internal/types"
	"github.com/gmofishsauce/clarionc/pkg/clarionc"
)

var verbose = flag.Bool("v", false, "also print every diagnostic attached to a compile error")

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-v]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Compiles a built-in sample Clarion module and prints its ABI and disassembly.\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	mod := sampleModule()

	result, err := clarionc.NewCompiler().Compile(mod, clarionc.Options{ModuleName: "counter"})
	if err != nil {
		reportFailure(err)
		os.Exit(1)
	}

	fmt.Println("; ABI")
	fmt.Print(result.ABI.String())
	fmt.Println()
	fmt.Println("; disassembly")
	fmt.Print(bytecode.Disassemble(&bytecode.Program{RuntimeCode: result.RuntimeCode, SourceMap: result.SourceMap}))
}

func reportFailure(err error) {
	ce, ok := err.(*clarionc.CompileError)
	if !ok {
		fmt.Fprintf(os.Stderr, "clarionc: %v\n", err)
		return
	}
	fmt.Fprintf(os.Stderr, "clarionc: %v\n", ce)
	if !*verbose || len(ce.Diagnostics) == 0 {
		return
	}
	for _, d := range ce.Diagnostics {
		fmt.Fprintf(os.Stderr, "  %s\n", d)
	}
}

// sampleModule builds a minimal counter contract directly as an AST: one
// storage slot, an external mutator that increments it and logs an event,
// and an external view accessor.
func sampleModule() *ast.Module {
	sp := ast.Span{}
	uint256 := types.Uint(256)

	countVar := &ast.StateVarDecl{Name: "count", Type: uint256, Span_: sp}

	event := &ast.EventDecl{
		Name: "Incremented",
		Params: []ast.EventParam{
			{Name: "newValue", Type: uint256, Indexed: false},
		},
		Span_: sp,
	}

	increment := &ast.FuncDecl{
		Name:     "increment",
		Mut:      types.Nonpayable,
		External: true,
		Body: []ast.Stmt{
			&ast.AssignStmt{
				Target: &ast.Ident{Name: "count", Span_: sp},
				Op:     ast.AssignAdd,
				Value:  &ast.IntLiteral{Value: "1", Span_: sp},
				Span_:  sp,
			},
			&ast.LogStmt{
				Event: "Incremented",
				Args:  []ast.Expr{&ast.Ident{Name: "count", Span_: sp}},
				Span_: sp,
			},
		},
		Span_: sp,
	}

	get := &ast.FuncDecl{
		Name:     "get",
		Mut:      types.View,
		External: true,
		Results:  []*types.Type{uint256},
		Body: []ast.Stmt{
			&ast.ReturnStmt{Values: []ast.Expr{&ast.Ident{Name: "count", Span_: sp}}, Span_: sp},
		},
		Span_: sp,
	}

	return &ast.Module{Decls: []ast.Decl{countVar, event, increment, get}}
}
