package compiler

import (
	"testing"

	"github.com/TheBB/Paltry/ir"
	"github.com/TheBB/Paltry/vm"
)

func TestEnvShadowing(t *testing.T) {
	symbols := vm.NewSymbolTable()
	x := symbols.Intern("x").Symbol()
	y := symbols.Intern("y").Symbol()
	t0, t1, t2 := &ir.Temp{ID: 0}, &ir.Temp{ID: 1}, &ir.Temp{ID: 2}

	var empty *Env
	if _, ok := empty.Lookup(x); ok {
		t.Error("empty environment has a binding")
	}
	if empty.Depth() != 0 {
		t.Errorf("empty Depth() = %d", empty.Depth())
	}

	outer := empty.Extend(map[*vm.Symbol]*ir.Temp{x: t0, y: t1})
	inner := outer.Extend(map[*vm.Symbol]*ir.Temp{x: t2})

	if got, _ := inner.Lookup(x); got != t2 {
		t.Errorf("inner x = %v, want %v", got, t2)
	}
	if got, _ := inner.Lookup(y); got != t1 {
		t.Errorf("inner y = %v, want %v", got, t1)
	}
	if got, _ := outer.Lookup(x); got != t0 {
		t.Errorf("outer x = %v after extending, want %v", got, t0)
	}
	if inner.Depth() != 2 {
		t.Errorf("inner Depth() = %d, want 2", inner.Depth())
	}

	gx := symbols.Gensym("x").Symbol()
	if _, ok := inner.Lookup(gx); ok {
		t.Error("gensym named x resolved to the binding of x")
	}
}
