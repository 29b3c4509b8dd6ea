package vm

import (
	"io"
	"os"
)

// ---------------------------------------------------------------------------
// VM: The Paltry runtime
// ---------------------------------------------------------------------------

// VM owns the process-lifetime state of one Paltry runtime: the symbol table,
// the canonical truthy atom and the output used by display. Several VMs can
// coexist; nothing here is global except the immutable Nil.
//
// Values allocated by a VM are never reclaimed by the runtime.
type VM struct {
	Symbols *SymbolTable

	// T is the interned symbol t, bound to itself.
	T *Value

	out io.Writer
}

// NewVM creates a VM with t interned and the builtin native functions
// registered.
func NewVM() *VM {
	vm := &VM{
		Symbols: NewSymbolTable(),
		out:     os.Stdout,
	}
	vm.T = vm.Symbols.Intern("t")
	vm.T.Symbol().Bind(vm.T)
	vm.registerPrimitives()
	return vm
}

// SetOutput redirects display output.
func (vm *VM) SetOutput(w io.Writer) {
	vm.out = w
}

// Output returns the writer display prints to.
func (vm *VM) Output() io.Writer {
	return vm.out
}

// Intern is shorthand for vm.Symbols.Intern.
func (vm *VM) Intern(name string) *Value {
	return vm.Symbols.Intern(name)
}

// Bool maps a host boolean onto t or nil.
func (vm *VM) Bool(b bool) *Value {
	if b {
		return vm.T
	}
	return Nil
}
