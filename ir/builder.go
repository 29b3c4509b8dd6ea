package ir

import "fmt"

// Builder appends instructions to a unit under construction. It tracks the
// current insertion block; emitting never switches blocks implicitly.
type Builder struct {
	unit   *Unit
	cur    *Block
	nameID int
}

// NewBuilder starts a unit with an empty entry block as the insertion point.
func NewBuilder(name string) *Builder {
	b := &Builder{unit: &Unit{Name: name}}
	b.cur = b.newBlockNamed("entry")
	return b
}

// Unit returns the unit being built.
func (b *Builder) Unit() *Unit { return b.unit }

// NewTemp allocates a fresh temp.
func (b *Builder) NewTemp() *Temp {
	t := &Temp{ID: b.unit.NumTemps}
	b.unit.NumTemps++
	return t
}

// NewBlock appends an empty block whose name starts with prefix and is
// unique within the unit.
func (b *Builder) NewBlock(prefix string) *Block {
	name := fmt.Sprintf("%s_%d", prefix, b.nameID)
	b.nameID++
	return b.newBlockNamed(name)
}

func (b *Builder) newBlockNamed(name string) *Block {
	blk := &Block{Name: name}
	b.unit.Blocks = append(b.unit.Blocks, blk)
	return blk
}

// Block returns the insertion block.
func (b *Builder) Block() *Block { return b.cur }

// SetBlock moves the insertion point to the end of blk.
func (b *Builder) SetBlock(blk *Block) { b.cur = blk }

// Emit appends ins to the insertion block.
func (b *Builder) Emit(ins Instr) { b.cur.Instr = append(b.cur.Instr, ins) }

// Term closes the insertion block.
func (b *Builder) Term(t Term) { b.cur.Term = t }

// AddStatic embeds a read-only buffer in the unit and returns its index.
func (b *Builder) AddStatic(data string) int {
	b.unit.Statics = append(b.unit.Statics, data)
	return len(b.unit.Statics) - 1
}

// Finish returns the completed unit with blocks that no terminator reaches
// removed, leaving the entry block first.
func (b *Builder) Finish() *Unit {
	reach := reachable(b.unit)
	kept := b.unit.Blocks[:0]
	for _, blk := range b.unit.Blocks {
		if reach[blk.Name] {
			kept = append(kept, blk)
		}
	}
	b.unit.Blocks = kept
	return b.unit
}

func reachable(u *Unit) map[string]bool {
	seen := map[string]bool{}
	if len(u.Blocks) == 0 {
		return seen
	}
	byName := make(map[string]*Block, len(u.Blocks))
	for _, blk := range u.Blocks {
		byName[blk.Name] = blk
	}
	stack := []*Block{u.Blocks[0]}
	seen[u.Blocks[0].Name] = true
	for len(stack) > 0 {
		blk := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if blk.Term == nil {
			continue
		}
		for _, target := range blk.Term.Targets() {
			next, ok := byName[target]
			if ok && !seen[target] {
				seen[target] = true
				stack = append(stack, next)
			}
		}
	}
	return seen
}
