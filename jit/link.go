package jit

import (
	"fmt"

	"github.com/TheBB/Paltry/ir"
	"github.com/TheBB/Paltry/vm"
)

// ---------------------------------------------------------------------------
// Linking: lowering verified IR to executable code
// ---------------------------------------------------------------------------

// program is a unit lowered to Go closures over a register file with one
// slot per temp. Blocks are addressed by index; block 0 is the entry.
type program struct {
	name     string
	numTemps int
	blocks   []*block
}

type block struct {
	phis []phiOp
	ops  []op
	term termOp
}

// op executes one instruction against the registers.
type op func(regs []*vm.Value)

// termOp ends a block. It returns the index of the next block, or -1 with
// the unit's result.
type termOp func(regs []*vm.Value) (next int, result *vm.Value)

// phiOp copies into dst the register named for the predecessor control
// arrived from.
type phiOp struct {
	dst int
	src map[int]int // predecessor block index -> register
}

// run executes the program from its entry block.
func (p *program) run() *vm.Value {
	regs := make([]*vm.Value, p.numTemps)
	cur, prev := 0, -1
	for {
		b := p.blocks[cur]
		if len(b.phis) > 0 {
			b.enter(regs, prev)
		}
		for _, o := range b.ops {
			o(regs)
		}
		next, result := b.term(regs)
		if next < 0 {
			return result
		}
		prev, cur = cur, next
	}
}

// enter evaluates the block's phis as a group, so a phi reading another
// phi of the same block sees the value from before the edge was taken.
func (b *block) enter(regs []*vm.Value, pred int) {
	vals := make([]*vm.Value, len(b.phis))
	for i, phi := range b.phis {
		vals[i] = regs[phi.src[pred]]
	}
	for i, phi := range b.phis {
		regs[phi.dst] = vals[i]
	}
}

// lower translates a verified unit into a program. It rejects instructions
// it does not know, which verification cannot rule out.
func lower(u *ir.Unit) (*program, error) {
	index := make(map[string]int, len(u.Blocks))
	for i, b := range u.Blocks {
		index[b.Name] = i
	}
	p := &program{name: u.Name, numTemps: u.NumTemps, blocks: make([]*block, len(u.Blocks))}
	for i, b := range u.Blocks {
		lb := &block{}
		for _, ins := range b.Instr {
			if phi, ok := ins.(*ir.Phi); ok {
				po := phiOp{dst: phi.Dst.ID, src: make(map[int]int, len(phi.Edges))}
				for _, e := range phi.Edges {
					po.src[index[e.Block]] = e.Val.ID
				}
				lb.phis = append(lb.phis, po)
				continue
			}
			o, err := lowerInstr(u, ins)
			if err != nil {
				return nil, err
			}
			lb.ops = append(lb.ops, o)
		}
		t, err := lowerTerm(b.Term, index)
		if err != nil {
			return nil, err
		}
		lb.term = t
		p.blocks[i] = lb
	}
	return p, nil
}

func lowerInstr(u *ir.Unit, ins ir.Instr) (op, error) {
	dst := ins.Def().ID
	switch i := ins.(type) {
	case *ir.NewInteger:
		n := i.V
		return func(regs []*vm.Value) { regs[dst] = vm.Integer(n) }, nil
	case *ir.NewDouble:
		f := i.V
		return func(regs []*vm.Value) { regs[dst] = vm.Double(f) }, nil
	case *ir.NewBytes:
		s := u.Statics[i.Static]
		return func(regs []*vm.Value) { regs[dst] = vm.ByteString(s) }, nil
	case *ir.Const:
		v := i.Val
		return func(regs []*vm.Value) { regs[dst] = v }, nil
	case *ir.LoadGlobal:
		sym := i.Sym
		return func(regs []*vm.Value) { regs[dst] = sym.Binding() }, nil
	case *ir.MakeCons:
		car, cdr := i.Car.ID, i.Cdr.ID
		return func(regs []*vm.Value) { regs[dst] = vm.Cons(regs[car], regs[cdr]) }, nil
	case *ir.Call:
		callee := i.Callee.ID
		argRegs := make([]int, len(i.Args))
		for j, a := range i.Args {
			argRegs[j] = a.ID
		}
		return func(regs []*vm.Value) {
			args := make([]*vm.Value, len(argRegs))
			for j, r := range argRegs {
				args[j] = regs[r]
			}
			regs[dst] = regs[callee].Function().Call(args)
		}, nil
	}
	return nil, fmt.Errorf("jit: cannot link instruction %T in %s", ins, u.Name)
}

func lowerTerm(t ir.Term, index map[string]int) (termOp, error) {
	switch t := t.(type) {
	case *ir.Ret:
		if t.Val == nil {
			return func([]*vm.Value) (int, *vm.Value) { return -1, nil }, nil
		}
		val := t.Val.ID
		return func(regs []*vm.Value) (int, *vm.Value) { return -1, regs[val] }, nil
	case *ir.Br:
		target := index[t.Target]
		return func([]*vm.Value) (int, *vm.Value) { return target, nil }, nil
	case *ir.BrTruthy:
		cond, then, els := t.Cond.ID, index[t.Then], index[t.Else]
		return func(regs []*vm.Value) (int, *vm.Value) {
			c := regs[cond]
			if c == nil {
				return -1, nil
			}
			if c.Truthy() {
				return then, nil
			}
			return els, nil
		}, nil
	case *ir.Check:
		val, ok, fail := t.Val.ID, index[t.OK], index[t.Fail]
		switch t.Kind {
		case ir.CheckNonNull:
			return func(regs []*vm.Value) (int, *vm.Value) {
				if regs[val] == nil {
					return fail, nil
				}
				return ok, nil
			}, nil
		case ir.CheckFunction:
			return func(regs []*vm.Value) (int, *vm.Value) {
				if v := regs[val]; v == nil || v.Type() != vm.TypeFunction {
					return fail, nil
				}
				return ok, nil
			}, nil
		}
		return nil, fmt.Errorf("jit: unknown check kind %s", t.Kind)
	}
	return nil, fmt.Errorf("jit: cannot link terminator %T", t)
}
