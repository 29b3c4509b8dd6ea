package compiler

import (
	"github.com/TheBB/Paltry/ir"
	"github.com/TheBB/Paltry/vm"
)

// Env is a compile-time lexical environment: a chain of frames mapping
// symbols to the temps holding their values. Frames are never modified
// after Extend returns, so inner scopes share their parents. The nil *Env
// is the empty environment.
type Env struct {
	vars   map[*vm.Symbol]*ir.Temp
	parent *Env
}

// Extend returns a child of e binding every symbol in vars. When a symbol
// appears in both, the child's binding shadows the parent's.
func (e *Env) Extend(vars map[*vm.Symbol]*ir.Temp) *Env {
	return &Env{vars: vars, parent: e}
}

// Lookup finds the innermost binding of sym.
func (e *Env) Lookup(sym *vm.Symbol) (*ir.Temp, bool) {
	for f := e; f != nil; f = f.parent {
		if t, ok := f.vars[sym]; ok {
			return t, true
		}
	}
	return nil, false
}

// Depth returns the number of frames in the chain.
func (e *Env) Depth() int {
	n := 0
	for f := e; f != nil; f = f.parent {
		n++
	}
	return n
}
