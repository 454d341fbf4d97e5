package clarionc

import (
	"github.com/gmofishsauce/clarionc/internal/abi"
	"github.com/gmofishsauce/clarionc/internal/bytecode"
	"github.com/gmofishsauce/clarionc/internal/sema"
)

// Options configures one Compile call.
type Options struct {
	// ModuleName labels the compiled artifact; purely informational.
	ModuleName string

	// Imports carries the already-analyzed interfaces of every module
	// this one imports, keyed by import path (spec.md §5). It is handed
	// to the analyzer, whose structural conformance check resolves
	// interfaces from this module's own declarations only.
	Imports map[string]*sema.Imported
}

// Result is the artifact a successful Compile produces: runtime bytecode,
// its source map, and the module's external ABI descriptor.
type Result struct {
	RuntimeCode []byte
	SourceMap   []bytecode.SourceMapEntry
	ABI         abi.Descriptor
}
