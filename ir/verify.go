package ir

import (
	"fmt"
	"sort"
	"strings"
)

// VerifyError reports an internally inconsistent unit.
type VerifyError struct {
	Unit  string
	Block string
	Msg   string
}

func (e *VerifyError) Error() string {
	if e.Block == "" {
		return fmt.Sprintf("ir: verify %s: %s", e.Unit, e.Msg)
	}
	return fmt.Sprintf("ir: verify %s, block %s: %s", e.Unit, e.Block, e.Msg)
}

// Verify checks that u is well formed: every block is terminated and jumps
// only to blocks of the unit, every temp is defined once and its definition
// dominates every use, phis head their block with one edge per predecessor,
// and static references are in range.
func Verify(u *Unit) error {
	v := &verifier{u: u}
	return v.run()
}

type verifier struct {
	u      *Unit
	index  map[string]int
	defBlk map[int]int // temp ID -> defining block index
	defPos map[int]int // temp ID -> instruction position within its block
}

func (v *verifier) fail(block, format string, args ...interface{}) error {
	return &VerifyError{Unit: v.u.Name, Block: block, Msg: fmt.Sprintf(format, args...)}
}

func (v *verifier) run() error {
	u := v.u
	if len(u.Blocks) == 0 {
		return v.fail("", "no blocks")
	}

	v.index = make(map[string]int, len(u.Blocks))
	for i, b := range u.Blocks {
		if _, dup := v.index[b.Name]; dup {
			return v.fail(b.Name, "duplicate block name")
		}
		v.index[b.Name] = i
	}

	for _, b := range u.Blocks {
		if b.Term == nil {
			return v.fail(b.Name, "missing terminator")
		}
		for _, target := range b.Term.Targets() {
			if _, ok := v.index[target]; !ok {
				return v.fail(b.Name, "branch to unknown block %q", target)
			}
		}
	}
	if len(v.predsOf(0)) > 0 {
		return v.fail(u.Blocks[0].Name, "entry block has predecessors")
	}

	if err := v.collectDefs(); err != nil {
		return err
	}
	dom := v.dominators()

	preds := u.Preds()
	for bi, b := range u.Blocks {
		inPhis := true
		for pos, ins := range b.Instr {
			phi, isPhi := ins.(*Phi)
			if isPhi && !inPhis {
				return v.fail(b.Name, "phi %s after non-phi instruction", phi.Dst)
			}
			if !isPhi {
				inPhis = false
			}
			if isPhi {
				if err := v.checkPhi(b, phi, preds[b.Name], dom); err != nil {
					return err
				}
				continue
			}
			for _, use := range ins.Uses() {
				if err := v.checkUse(b, bi, pos, use, dom); err != nil {
					return err
				}
			}
			if nb, ok := ins.(*NewBytes); ok {
				if nb.Static < 0 || nb.Static >= len(u.Statics) {
					return v.fail(b.Name, "static @s%d out of range", nb.Static)
				}
			}
		}
		for _, use := range b.Term.Uses() {
			if err := v.checkUse(b, bi, len(b.Instr), use, dom); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v *verifier) collectDefs() error {
	v.defBlk = map[int]int{}
	v.defPos = map[int]int{}
	for bi, b := range v.u.Blocks {
		for pos, ins := range b.Instr {
			def := ins.Def()
			if def == nil {
				return v.fail(b.Name, "instruction %d defines no temp", pos)
			}
			if def.ID < 0 || def.ID >= v.u.NumTemps {
				return v.fail(b.Name, "temp %s out of range", def)
			}
			if _, dup := v.defBlk[def.ID]; dup {
				return v.fail(b.Name, "temp %s defined twice", def)
			}
			v.defBlk[def.ID] = bi
			v.defPos[def.ID] = pos
		}
	}
	return nil
}

// checkUse requires the definition of use to dominate position pos of
// block bi.
func (v *verifier) checkUse(b *Block, bi, pos int, use *Temp, dom [][]bool) error {
	if use == nil {
		return v.fail(b.Name, "use of null temp")
	}
	db, ok := v.defBlk[use.ID]
	if !ok {
		return v.fail(b.Name, "use of undefined temp %s", use)
	}
	if db == bi {
		if v.defPos[use.ID] >= pos {
			return v.fail(b.Name, "temp %s used before its definition", use)
		}
		return nil
	}
	if !dom[bi][db] {
		return v.fail(b.Name, "definition of %s does not dominate its use", use)
	}
	return nil
}

func (v *verifier) checkPhi(b *Block, phi *Phi, preds []string, dom [][]bool) error {
	edges := make([]string, 0, len(phi.Edges))
	for _, e := range phi.Edges {
		edges = append(edges, e.Block)
		pi, ok := v.index[e.Block]
		if !ok {
			return v.fail(b.Name, "phi %s edge from unknown block %q", phi.Dst, e.Block)
		}
		pb := v.u.Blocks[pi]
		// The incoming value must be available at the end of the edge's block.
		if err := v.checkUse(pb, pi, len(pb.Instr), e.Val, dom); err != nil {
			return err
		}
	}
	sort.Strings(edges)
	if strings.Join(edges, ",") != strings.Join(preds, ",") {
		return v.fail(b.Name, "phi %s edges [%s] do not match predecessors [%s]",
			phi.Dst, strings.Join(edges, ","), strings.Join(preds, ","))
	}
	return nil
}

func (v *verifier) predsOf(bi int) []int {
	name := v.u.Blocks[bi].Name
	var preds []int
	for i, b := range v.u.Blocks {
		for _, target := range b.Term.Targets() {
			if target == name {
				preds = append(preds, i)
				break
			}
		}
	}
	return preds
}

// dominators computes dom[b][d] = d dominates b, with the iterative data
// flow formulation. Blocks unreachable from the entry are dominated by
// every block, so uses inside them never fail the dominance check.
func (v *verifier) dominators() [][]bool {
	n := len(v.u.Blocks)
	preds := make([][]int, n)
	for i := range v.u.Blocks {
		preds[i] = v.predsOf(i)
	}

	dom := make([][]bool, n)
	for i := range dom {
		dom[i] = make([]bool, n)
		for j := range dom[i] {
			dom[i][j] = i != 0 || j == 0
		}
	}

	for changed := true; changed; {
		changed = false
		for b := 1; b < n; b++ {
			next := make([]bool, n)
			for j := range next {
				next[j] = true
			}
			for _, p := range preds[b] {
				for j := range next {
					next[j] = next[j] && dom[p][j]
				}
			}
			next[b] = true
			for j := range next {
				if next[j] != dom[b][j] {
					dom[b] = next
					changed = true
					break
				}
			}
		}
	}
	return dom
}
