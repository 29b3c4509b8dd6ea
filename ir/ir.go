// Package ir defines the instruction sequences the code generator emits and
// the JIT links: units of basic blocks in SSA form, with explicit
// terminators, a text format and a verifier.
package ir

import (
	"fmt"
	"sort"
	"strings"

	"github.com/TheBB/Paltry/vm"
)

// Unit is one compiled top-level function. It takes no parameters and
// returns a value reference, or null on failure.
type Unit struct {
	Name     string
	Blocks   []*Block // Blocks[0] is the entry block
	Statics  []string // read-only buffers referenced by bytestring literals
	NumTemps int
}

// Block is a basic block: straight-line instructions closed by a terminator.
// Phi instructions, if any, come first.
type Block struct {
	Name  string
	Instr []Instr
	Term  Term
}

// Temp is an SSA temporary. Each temp is defined exactly once.
type Temp struct {
	ID int
}

func (t *Temp) String() string {
	if t == nil {
		return "null"
	}
	return fmt.Sprintf("%%t%d", t.ID)
}

// Instr is a non-terminating instruction.
type Instr interface {
	// Def returns the temp the instruction defines.
	Def() *Temp
	// Uses returns the temps the instruction reads.
	Uses() []*Temp
	fmtString() string
}

// Term ends a block.
type Term interface {
	Uses() []*Temp
	// Targets returns the names of the blocks control may pass to.
	Targets() []string
	fmtString() string
}

// ---------------------------------------------------------------------------
// Instructions
// ---------------------------------------------------------------------------

// NewInteger allocates a fresh Integer object.
type NewInteger struct {
	Dst *Temp
	V   int64
}

func (i *NewInteger) Def() *Temp    { return i.Dst }
func (i *NewInteger) Uses() []*Temp { return nil }
func (i *NewInteger) fmtString() string {
	return fmt.Sprintf("%s = new integer %d", i.Dst, i.V)
}

// NewDouble allocates a fresh Double object.
type NewDouble struct {
	Dst *Temp
	V   float64
}

func (i *NewDouble) Def() *Temp    { return i.Dst }
func (i *NewDouble) Uses() []*Temp { return nil }
func (i *NewDouble) fmtString() string {
	return fmt.Sprintf("%s = new double %s", i.Dst, vm.FormatDouble(i.V))
}

// NewBytes allocates a fresh ByteString object whose payload is the unit's
// static buffer at index Static.
type NewBytes struct {
	Dst    *Temp
	Static int
}

func (i *NewBytes) Def() *Temp    { return i.Dst }
func (i *NewBytes) Uses() []*Temp { return nil }
func (i *NewBytes) fmtString() string {
	return fmt.Sprintf("%s = new bytestring @s%d", i.Dst, i.Static)
}

// Const references an existing object (nil, or a symbol) without
// allocating.
type Const struct {
	Dst *Temp
	Val *vm.Value
}

func (i *Const) Def() *Temp    { return i.Dst }
func (i *Const) Uses() []*Temp { return nil }
func (i *Const) fmtString() string {
	return fmt.Sprintf("%s = const %s", i.Dst, constString(i.Val))
}

// LoadGlobal reads the binding cell of Sym at run time. The result is null
// while the symbol is unbound.
type LoadGlobal struct {
	Dst *Temp
	Sym *vm.Symbol
}

func (i *LoadGlobal) Def() *Temp    { return i.Dst }
func (i *LoadGlobal) Uses() []*Temp { return nil }
func (i *LoadGlobal) fmtString() string {
	return fmt.Sprintf("%s = load.global %s#%d", i.Dst, i.Sym.Name(), i.Sym.ID())
}

// MakeCons allocates a fresh pair.
type MakeCons struct {
	Dst *Temp
	Car *Temp
	Cdr *Temp
}

func (i *MakeCons) Def() *Temp    { return i.Dst }
func (i *MakeCons) Uses() []*Temp { return []*Temp{i.Car, i.Cdr} }
func (i *MakeCons) fmtString() string {
	return fmt.Sprintf("%s = cons %s, %s", i.Dst, i.Car, i.Cdr)
}

// Call invokes Callee, which must have been checked to be a Function, with
// Args through the fixed calling convention. The result may be null.
type Call struct {
	Dst    *Temp
	Callee *Temp
	Args   []*Temp
}

func (i *Call) Def() *Temp { return i.Dst }
func (i *Call) Uses() []*Temp {
	uses := make([]*Temp, 0, len(i.Args)+1)
	uses = append(uses, i.Callee)
	return append(uses, i.Args...)
}
func (i *Call) fmtString() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s = call %s(", i.Dst, i.Callee)
	for j, a := range i.Args {
		if j > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(a.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

// Phi merges values at a control-flow join: Dst takes the value of the edge
// control arrived from.
type Phi struct {
	Dst   *Temp
	Edges []PhiEdge
}

// PhiEdge is one incoming value of a Phi.
type PhiEdge struct {
	Block string
	Val   *Temp
}

func (i *Phi) Def() *Temp { return i.Dst }
func (i *Phi) Uses() []*Temp {
	uses := make([]*Temp, len(i.Edges))
	for j, e := range i.Edges {
		uses[j] = e.Val
	}
	return uses
}
func (i *Phi) fmtString() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s = phi", i.Dst)
	for j, e := range i.Edges {
		if j > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, " [%s, %s]", e.Val, e.Block)
	}
	return sb.String()
}

// ---------------------------------------------------------------------------
// Terminators
// ---------------------------------------------------------------------------

// Ret returns from the unit. A nil Val returns null, signalling failure.
type Ret struct {
	Val *Temp
}

func (t *Ret) Uses() []*Temp {
	if t.Val == nil {
		return nil
	}
	return []*Temp{t.Val}
}
func (t *Ret) Targets() []string { return nil }
func (t *Ret) fmtString() string { return fmt.Sprintf("ret %s", t.Val) }

// Br jumps unconditionally.
type Br struct {
	Target string
}

func (t *Br) Uses() []*Temp     { return nil }
func (t *Br) Targets() []string { return []string{t.Target} }
func (t *Br) fmtString() string { return fmt.Sprintf("br %s", t.Target) }

// BrTruthy branches on the truth value of Cond: Else when it is nil, Then
// otherwise.
type BrTruthy struct {
	Cond *Temp
	Then string
	Else string
}

func (t *BrTruthy) Uses() []*Temp     { return []*Temp{t.Cond} }
func (t *BrTruthy) Targets() []string { return []string{t.Then, t.Else} }
func (t *BrTruthy) fmtString() string {
	return fmt.Sprintf("br.truthy %s, %s, %s", t.Cond, t.Then, t.Else)
}

// CheckKind selects the property a Check tests.
type CheckKind int

const (
	// CheckNonNull passes when the value is not the null failure signal.
	CheckNonNull CheckKind = iota
	// CheckFunction passes when the value is a non-null Function.
	CheckFunction
)

func (k CheckKind) String() string {
	switch k {
	case CheckNonNull:
		return "nonnull"
	case CheckFunction:
		return "function"
	default:
		return "<bad>"
	}
}

// Check is the inline check-and-early-exit placed after every point that
// consumes a value which may signal failure. Control continues at OK when
// the check passes and at Fail otherwise.
type Check struct {
	Kind CheckKind
	Val  *Temp
	OK   string
	Fail string
}

func (t *Check) Uses() []*Temp     { return []*Temp{t.Val} }
func (t *Check) Targets() []string { return []string{t.OK, t.Fail} }
func (t *Check) fmtString() string {
	return fmt.Sprintf("check.%s %s, %s, %s", t.Kind, t.Val, t.OK, t.Fail)
}

// ---------------------------------------------------------------------------
// Formatting
// ---------------------------------------------------------------------------

func constString(v *vm.Value) string {
	if v == nil {
		return "null"
	}
	if v.Type() == vm.TypeSymbol {
		return fmt.Sprintf("%s#%d", v.Symbol().Name(), v.Symbol().ID())
	}
	return v.String()
}

// Format renders the unit as text.
func (u *Unit) Format() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "unit %s\n", u.Name)
	for i, s := range u.Statics {
		fmt.Fprintf(&sb, "static @s%d = %s\n", i, vm.QuoteBytes(s))
	}
	for _, b := range u.Blocks {
		sb.WriteString("block ")
		sb.WriteString(b.Name)
		sb.WriteString(":\n")
		for _, ins := range b.Instr {
			sb.WriteString("  ")
			sb.WriteString(ins.fmtString())
			sb.WriteByte('\n')
		}
		if b.Term != nil {
			sb.WriteString("  ")
			sb.WriteString(b.Term.fmtString())
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// Block returns the block called name, or nil.
func (u *Unit) Block(name string) *Block {
	for _, b := range u.Blocks {
		if b.Name == name {
			return b
		}
	}
	return nil
}

// Preds returns the predecessors of every block, keyed by name. Each list
// is sorted and free of duplicates.
func (u *Unit) Preds() map[string][]string {
	seen := make(map[string]map[string]bool, len(u.Blocks))
	for _, b := range u.Blocks {
		seen[b.Name] = map[string]bool{}
	}
	for _, b := range u.Blocks {
		if b.Term == nil {
			continue
		}
		for _, target := range b.Term.Targets() {
			if m, ok := seen[target]; ok {
				m[b.Name] = true
			}
		}
	}
	preds := make(map[string][]string, len(seen))
	for name, m := range seen {
		list := make([]string, 0, len(m))
		for p := range m {
			list = append(list, p)
		}
		sort.Strings(list)
		preds[name] = list
	}
	return preds
}
