// Package clarionc is the public entry point to the compiler pipeline:
// semantic analysis, constant folding, storage layout planning, IR
// construction and optimization, scheduling, and bytecode finalization
// (spec.md §3 Lifecycle). A single Compile call drives every phase over
// one module and returns the finished artifact or a CompileError
// identifying which phase failed.
//
// The shape (a narrow interface plus a config struct plus a typed error
// hierarchy) follows vybium-starks-vm/pkg/vybium-starks-vm's
// VM/VMConfig/VMError split; NewCompiler/Compile generalizes vm.go's
// NewVM/Execute two-step (build, then run) into a single call since a
// compiler has no persistent runtime state to hold between invocations.
package clarionc

import (
	"github.com/gmofishsauce/clarionc/internal/abi"
	"github.com/gmofishsauce/clarionc/internal/ast"
	"github.com/gmofishsauce/clarionc/internal/bytecode"
	"github.com/gmofishsauce/clarionc/internal/constfold"
	"github.com/gmofishsauce/clarionc/internal/diag"
	"github.com/gmofishsauce/clarionc/internal/ir"
	"github.com/gmofishsauce/clarionc/internal/iropt"
	"github.com/gmofishsauce/clarionc/internal/layout"
	"github.com/gmofishsauce/clarionc/internal/sched"
	"github.com/gmofishsauce/clarionc/internal/sema"
	"github.com/gmofishsauce/clarionc/internal/symtab"
	"github.com/gmofishsauce/clarionc/internal/types"
)

// Compiler runs the pipeline over successive modules, sharing nothing
// between calls; it exists as an interface so callers can mock it in
// tests that exercise cmd/clarionc's driver logic.
type Compiler interface {
	Compile(mod *ast.Module, opts Options) (*Result, error)
}

type compilerImpl struct{}

// NewCompiler returns the default pipeline implementation.
func NewCompiler() Compiler {
	return &compilerImpl{}
}

// Compile runs every phase of spec.md §3 over mod and returns the
// finished bytecode artifact and ABI descriptor, or the first
// CompileError encountered.
func (c *compilerImpl) Compile(mod *ast.Module, opts Options) (*Result, error) {
	sink := diag.NewSink()

	constEnv, err := foldConstants(mod, sink)
	if err != nil {
		return nil, err
	}
	_ = constEnv // retained for future const-expr re-folding call sites

	imports := make(map[string]*sema.Imported, len(opts.Imports))
	for k, v := range opts.Imports {
		imports[k] = v
	}

	analyzer := sema.New(mod, imports, sink)
	semaResult := analyzer.Analyze()
	if sink.HasErrors() {
		return nil, &CompileError{
			Code:        ErrDiagnostics,
			Message:     "semantic analysis reported errors",
			Diagnostics: sink.All(),
		}
	}
	table := semaResult.Table

	if err := planLayout(mod, table); err != nil {
		return nil, &CompileError{Code: ErrLayout, Message: "storage layout failed", Cause: err}
	}

	irMod, selectors, descriptor, err := buildModule(mod, table, semaResult.TypeOf, sink)
	if err != nil {
		return nil, err
	}

	scheduled := make([]*sched.Function, 0, len(irMod.Functions))
	for _, fn := range irMod.Functions {
		iropt.Optimize(fn)
		sf, err := sched.Schedule(fn, table)
		if err != nil {
			return nil, &CompileError{Code: ErrSchedule, Message: "scheduling function " + fn.Name + " failed", Cause: err}
		}
		scheduled = append(scheduled, sf)
	}

	dispatch := sched.BuildDispatcher(scheduled, func(name string) uint32 {
		return selectors[name]
	})
	prog := &sched.Program{Functions: scheduled, Dispatch: dispatch}

	lowered := bytecode.Lower(prog, bytecode.Context{Selectors: selectors})
	lowered = bytecode.Peephole(lowered)
	final, err := bytecode.Finalize(lowered)
	if err != nil {
		return nil, &CompileError{Code: ErrFinalize, Message: "bytecode finalization failed", Cause: err}
	}

	return &Result{
		RuntimeCode: final.RuntimeCode,
		SourceMap:   final.SourceMap,
		ABI:         descriptor,
	}, nil
}

// foldConstants evaluates every top-level ConstDecl in declaration order,
// so a later constant may reference an earlier one (spec.md §4.2). It
// returns a constfold.Env the IR builder's later constant re-folds can
// reuse, even though nothing in this module currently needs to re-fold a
// const reference outside its own initializer.
func foldConstants(mod *ast.Module, sink *diag.Sink) (*constEnv, error) {
	env := &constEnv{values: make(map[string]*constfold.Value)}
	for _, d := range mod.Decls {
		cd, ok := d.(*ast.ConstDecl)
		if !ok {
			continue
		}
		v, err := constfold.Fold(cd.Value, env, cd.Type, false)
		if err != nil {
			sink.Errorf(cd.Span_, "E-CONST-FOLD", "constant %q: %v", cd.Name, err)
			return nil, &CompileError{Code: ErrConstFold, Message: "folding constant " + cd.Name, Cause: err}
		}
		env.values[cd.Name] = v
	}
	return env, nil
}

type constEnv struct {
	values map[string]*constfold.Value
}

func (e *constEnv) Lookup(name string) (*constfold.Value, bool) {
	v, ok := e.values[name]
	return v, ok
}

// planLayout assigns storage slots and immutable offsets to every module-
// level state variable and immutable declared in mod, honoring explicit
// slot pins recorded on the AST (spec.md §4.3).
func planLayout(mod *ast.Module, table *symtab.Table) error {
	var syms []*symtab.Symbol
	explicit := make(map[*symtab.Symbol]bool)
	for _, d := range mod.Decls {
		var name string
		var pinned bool
		switch decl := d.(type) {
		case *ast.StateVarDecl:
			name, pinned = decl.Name, decl.ExplicitSlot != nil
		case *ast.ImmutableDecl:
			name = decl.Name
		default:
			continue
		}
		sym, ok := table.Module.Symbols[name]
		if !ok {
			continue
		}
		syms = append(syms, sym)
		if pinned {
			explicit[sym] = true
		}
	}
	return layout.NewPlanner().Plan(syms, explicit)
}

// buildModule lowers every function body to IR, and assembles the ABI
// descriptor and selector table the scheduler's dispatcher and the
// bytecode lowering pass both need.
func buildModule(mod *ast.Module, table *symtab.Table, typeOf map[ast.Expr]*types.Type, sink *diag.Sink) (*ir.Module, map[string]uint32, abi.Descriptor, error) {
	builder := ir.NewBuilder(table, typeOf, sink)

	irMod := &ir.Module{Arena: table.Arena}
	var descriptor abi.Descriptor
	selectors := make(map[string]uint32)

	for _, d := range mod.Decls {
		switch decl := d.(type) {
		case *ast.FuncDecl:
			fn, err := builder.BuildFunction(decl)
			if err != nil {
				return nil, nil, abi.Descriptor{}, &CompileError{
					Code: ErrIRBuild, Message: "building function " + decl.Name, Cause: err,
				}
			}
			irMod.Functions = append(irMod.Functions, fn)
			if decl.External {
				entry := abi.BuildFunction(decl)
				descriptor.Functions = append(descriptor.Functions, entry)
				selectors[decl.Name] = entry.Selector
			}
		case *ast.EventDecl:
			entry := abi.BuildEvent(decl)
			descriptor.Events = append(descriptor.Events, entry)
			irMod.Events = append(irMod.Events, ir.EventSchema{
				Name: decl.Name, Params: toIRParams(decl.Params), Anonymous: decl.Anonymous,
			})
		}
	}

	return irMod, selectors, descriptor, nil
}

func toIRParams(params []ast.EventParam) []ir.EventParam {
	out := make([]ir.EventParam, len(params))
	for i, p := range params {
		out[i] = ir.EventParam{Name: p.Name, Type: p.Type, Indexed: p.Indexed}
	}
	return out
}
