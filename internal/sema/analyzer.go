// Package sema implements the semantic analyzer from spec.md §4.1: name
// resolution, bidirectional type inference, mutability and visibility
// checking, and the structural interface conformance check. It is a
// two-pass design (collect declarations, then check bodies) over the
// three-phase module lifecycle from spec.md §3.
//
// The phase structure (collectDeclarations then checkFunctionBodies,
// accumulating errors per function rather than halting) follows
// lang/sem.Analyzer directly; checkStmt/checkExpr are the same dispatch
// shape generalized to Clarion's richer statement and expression sets.
package sema

import (
	"fmt"

	"github.com/gmofishsauce/clarionc/internal/ast"
	"github.com/gmofishsauce/clarionc/internal/diag"
	"github.com/gmofishsauce/clarionc/internal/symtab"
	"github.com/gmofishsauce/clarionc/internal/types"
)

// Imported is an already-analyzed imported module's exported symbols,
// the shared read-only cache from spec.md §5.
type Imported struct {
	Interfaces map[string]*types.InterfaceDef
}

// Analyzer performs semantic analysis over one module.
type Analyzer struct {
	mod     *ast.Module
	imports map[string]*Imported
	sink    *diag.Sink

	table *symtab.Table

	currentFn   *ast.FuncDecl
	currentMut  types.Mutability
	localScope  *symtab.Scope
	loopDepth   int

	// TypeOf annotates every expression node with its resolved type,
	// side-tabled rather than mutated into the (read-only) input AST.
	TypeOf map[ast.Expr]*types.Type

	uncheckedDepth int
}

// New creates an Analyzer for mod, with already-analyzed imports and a
// diagnostic sink shared across the whole compilation.
func New(mod *ast.Module, imports map[string]*Imported, sink *diag.Sink) *Analyzer {
	return &Analyzer{
		mod:     mod,
		imports: imports,
		sink:    sink,
		table:   symtab.New(),
		TypeOf:  make(map[ast.Expr]*types.Type),
	}
}

// Result is the output of a successful analysis: the module symbol table
// plus the expression type annotations.
type Result struct {
	Table  *symtab.Table
	TypeOf map[ast.Expr]*types.Type
}

// Analyze runs phases (i) and (ii) of spec.md §3. It always returns the
// partial table and records every diagnostic encountered; callers must
// check sink.HasErrors() before proceeding to phase (iii).
func (a *Analyzer) Analyze() *Result {
	a.collectDeclarations() // phase (i), pass 1: register names
	a.resolveForwardRefs()  // phase (i), pass 2: resolve field/param/return types
	a.checkInterfaces()     // structural conformance, depends on phase (i) completing
	a.checkFunctionBodies() // phase (ii): one function at a time, errors don't cross functions
	return &Result{Table: a.table, TypeOf: a.TypeOf}
}

// ---- Phase (i): declaration collection ----

func (a *Analyzer) collectDeclarations() {
	for _, d := range a.mod.Decls {
		switch decl := d.(type) {
		case *ast.StructDecl:
			if _, exists := a.table.Arena.Structs[decl.Name]; exists {
				a.errf(decl.Loc(), "E-DUP-STRUCT", "duplicate struct %q", decl.Name)
				continue
			}
			fields := make([]types.FieldDef, len(decl.Fields))
			for i, f := range decl.Fields {
				fields[i] = types.FieldDef{Name: f.Name, Type: f.Type}
			}
			a.table.Arena.Structs[decl.Name] = &types.StructDef{Name: decl.Name, Fields: fields}

		case *ast.InterfaceDecl:
			if _, exists := a.table.Arena.Interfaces[decl.Name]; exists {
				a.errf(decl.Loc(), "E-DUP-IFACE", "duplicate interface %q", decl.Name)
				continue
			}
			methods := make([]types.FieldDef, len(decl.Methods))
			for i, m := range decl.Methods {
				params := make([]*types.Type, len(m.Params))
				for j, p := range m.Params {
					params[j] = p.Type
				}
				methods[i] = types.FieldDef{
					Name: m.Name,
					Type: &types.Type{Kind: types.Function, Params: params, Results: m.Results, Mut: m.Mut},
				}
			}
			a.table.Arena.Interfaces[decl.Name] = &types.InterfaceDef{Name: decl.Name, Methods: methods}

		case *ast.StateVarDecl:
			a.defineStateVar(decl)

		case *ast.ImmutableDecl:
			sym := &symtab.Symbol{Name: decl.Name, Type: decl.Type, Loc: symtab.LocImmutable, Mutable: false}
			a.defineModuleSymbol(decl.Name, decl.Loc(), sym)

		case *ast.ConstDecl:
			// Constant values are folded by the compiler driver
			// (pkg/clarionc foldConstants) before analysis starts; the
			// symbol is registered here so references to the name resolve.
			sym := &symtab.Symbol{Name: decl.Name, Type: decl.Type, Loc: symtab.LocStack, Mutable: false}
			a.defineModuleSymbol(decl.Name, decl.Loc(), sym)

		case *ast.EventDecl:
			// Events have no runtime symbol; recorded only in the ABI
			// descriptor at emission time (see abi package).

		case *ast.FuncDecl:
			if _, exists := a.table.Functions[decl.Name]; exists {
				a.errf(decl.Loc(), "E-DUP-FUNC", "duplicate function %q", decl.Name)
				continue
			}
			params := make([]*types.Type, len(decl.Params))
			for i, p := range decl.Params {
				params[i] = p.Type
			}
			a.table.Functions[decl.Name] = &symtab.FuncSymbol{
				Name: decl.Name, Params: params, Results: decl.Results,
				Mut: decl.Mut, External: decl.External, Internal: decl.Internal,
			}

		case *ast.ImplementsDecl:
			a.table.Interfaces[decl.Interface] = nil // presence recorded; checked in checkInterfaces
		}
	}
}

func (a *Analyzer) defineStateVar(decl *ast.StateVarDecl) {
	loc := symtab.LocStorage
	if decl.Transient {
		loc = symtab.LocTransient
	}
	sym := &symtab.Symbol{Name: decl.Name, Type: decl.Type, Loc: loc, Mutable: true}
	if decl.ExplicitSlot != nil {
		sym.Slot = uint64(*decl.ExplicitSlot)
	}
	a.defineModuleSymbol(decl.Name, decl.Loc(), sym)
}

func (a *Analyzer) defineModuleSymbol(name string, span ast.Span, sym *symtab.Symbol) {
	if _, exists := a.table.Module.Symbols[name]; exists {
		a.errf(span, "E-DUP-NAME", "duplicate module-level name %q", name)
		return
	}
	a.table.Module.Define(sym)
}

// resolveForwardRefs is pass 2 of phase (i): nothing more to resolve
// structurally once all names are known, since ast nodes already carry
// resolved *types.Type (the parser/type-annotation boundary is out of
// scope); this pass instead validates that every referenced struct and
// interface name actually exists, catching forward-reference typos.
func (a *Analyzer) resolveForwardRefs() {
	for name, def := range a.table.Arena.Structs {
		for _, f := range def.Fields {
			a.validateTypeExists(f.Type, name)
		}
	}
	for _, sym := range a.table.Module.Symbols {
		a.validateTypeExists(sym.Type, sym.Name)
	}
	for _, fn := range a.table.Functions {
		for _, p := range fn.Params {
			a.validateTypeExists(p, fn.Name)
		}
		for _, r := range fn.Results {
			a.validateTypeExists(r, fn.Name)
		}
	}
}

func (a *Analyzer) validateTypeExists(t *types.Type, context string) {
	if t == nil {
		return
	}
	switch t.Kind {
	case types.Struct:
		if _, ok := a.table.Arena.Struct(t.Name); !ok {
			a.errf(ast.Span{}, "E-UNDEF-TYPE", "undefined struct %q referenced in %q", t.Name, context)
		}
	case types.Interface:
		if _, ok := a.table.Arena.Interface(t.Name); !ok {
			a.errf(ast.Span{}, "E-UNDEF-TYPE", "undefined interface %q referenced in %q", t.Name, context)
		}
	case types.FixedArray, types.DynamicArray:
		a.validateTypeExists(t.Elem, context)
	case types.Mapping:
		a.validateTypeExists(t.Key, context)
		a.validateTypeExists(t.Value, context)
	}
}

// checkInterfaces implements the structural interface check from
// spec.md §4.1: every function in I must be matched by a module function
// of the same name, parameter types, return type, and mutability <= I's
// declared class.
func (a *Analyzer) checkInterfaces() {
	for ifaceName := range a.table.Interfaces {
		def, ok := a.table.Arena.Interface(ifaceName)
		if !ok {
			a.errf(ast.Span{}, "E-UNDEF-IFACE", "undefined interface %q in implements clause", ifaceName)
			continue
		}
		for _, m := range def.Methods {
			fn, ok := a.table.Functions[m.Name]
			sig := m.Type
			if !ok {
				a.errf(ast.Span{}, "E-IFACE-MISSING", "interface %q: missing function %q", ifaceName, m.Name)
				continue
			}
			if !paramsMatch(fn.Params, sig.Params) || !resultsMatch(fn.Results, sig.Results) {
				a.errf(ast.Span{}, "E-IFACE-SIG", "interface %q: function %q signature mismatch", ifaceName, m.Name)
				continue
			}
			if !fn.Mut.LE(sig.Mut) {
				a.errf(ast.Span{}, "E-IFACE-MUT", "interface %q: function %q mutability %s exceeds required %s", ifaceName, m.Name, fn.Mut, sig.Mut)
			}
		}
	}
}

func paramsMatch(a, b []*types.Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !types.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

func resultsMatch(a, b []*types.Type) bool { return paramsMatch(a, b) }

func (a *Analyzer) errf(span ast.Span, id, format string, args ...interface{}) {
	a.sink.Add(diag.Diagnostic{
		Severity: diag.Error,
		ID:       id,
		Message:  fmt.Sprintf(format, args...),
		Primary:  diag.Span{FileID: span.FileID, Begin: span.Begin, End: span.End},
	})
}

func (a *Analyzer) warnf(span ast.Span, id, format string, args ...interface{}) {
	a.sink.Add(diag.Diagnostic{
		Severity: diag.Warning,
		ID:       id,
		Message:  fmt.Sprintf(format, args...),
		Primary:  diag.Span{FileID: span.FileID, Begin: span.Begin, End: span.End},
	})
}
