package ir

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/TheBB/Paltry/vm"
)

// cborEncMode uses canonical options so the same units always encode to the
// same bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("ir: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Wire form of a unit. Temps are encoded by ID, blocks by name, symbols by
// name plus whether they were interned.

type wireImage struct {
	Version int        `cbor:"1,keyasint"`
	Units   []wireUnit `cbor:"2,keyasint"`
}

type wireUnit struct {
	Name     string      `cbor:"1,keyasint"`
	Statics  []string    `cbor:"2,keyasint,omitempty"`
	NumTemps int         `cbor:"3,keyasint"`
	Blocks   []wireBlock `cbor:"4,keyasint"`
}

type wireBlock struct {
	Name  string   `cbor:"1,keyasint"`
	Instr []wireOp `cbor:"2,keyasint,omitempty"`
	Term  wireOp   `cbor:"3,keyasint"`
}

type wireOp struct {
	Op      string   `cbor:"1,keyasint"`
	Dst     int      `cbor:"2,keyasint"`
	Args    []int    `cbor:"3,keyasint,omitempty"`
	Int     int64    `cbor:"4,keyasint,omitempty"`
	Float   float64  `cbor:"5,keyasint,omitempty"`
	Name    string   `cbor:"6,keyasint,omitempty"`
	Kind    string   `cbor:"7,keyasint,omitempty"`
	Targets []string `cbor:"8,keyasint,omitempty"`
}

const wireVersion = 1

// Constant kinds in the wire form.
const (
	kindNil    = "nil"
	kindSymbol = "symbol"
	kindGensym = "gensym"
)

// MarshalUnits encodes units to canonical CBOR. symbols decides which
// symbols are interned, so gensyms can be told apart when decoding.
func MarshalUnits(units []*Unit, symbols *vm.SymbolTable) ([]byte, error) {
	img := wireImage{Version: wireVersion}
	for _, u := range units {
		wu, err := encodeUnit(u, symbols)
		if err != nil {
			return nil, err
		}
		img.Units = append(img.Units, wu)
	}
	return cborEncMode.Marshal(img)
}

// UnmarshalUnits decodes units produced by MarshalUnits. Symbols are
// interned into symbols (or gensym'd there when they were uninterned), so
// decoded units format and verify like the originals.
func UnmarshalUnits(data []byte, symbols *vm.SymbolTable) ([]*Unit, error) {
	var img wireImage
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("ir: unmarshal units: %w", err)
	}
	if img.Version != wireVersion {
		return nil, fmt.Errorf("ir: unsupported image version %d", img.Version)
	}
	units := make([]*Unit, 0, len(img.Units))
	for _, wu := range img.Units {
		u, err := decodeUnit(wu, symbols)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, nil
}

func temps(ts []*Temp) []int {
	ids := make([]int, len(ts))
	for i, t := range ts {
		ids[i] = t.ID
	}
	return ids
}

func symbolKind(sym *vm.Symbol, symbols *vm.SymbolTable) string {
	if v, ok := symbols.Lookup(sym.Name()); ok && v.Type() == vm.TypeSymbol && v.Symbol() == sym {
		return kindSymbol
	}
	return kindGensym
}

func encodeUnit(u *Unit, symbols *vm.SymbolTable) (wireUnit, error) {
	wu := wireUnit{Name: u.Name, Statics: u.Statics, NumTemps: u.NumTemps}
	for _, b := range u.Blocks {
		wb := wireBlock{Name: b.Name}
		for _, ins := range b.Instr {
			op := wireOp{Dst: ins.Def().ID}
			switch i := ins.(type) {
			case *NewInteger:
				op.Op, op.Int = "new.integer", i.V
			case *NewDouble:
				op.Op, op.Float = "new.double", i.V
			case *NewBytes:
				op.Op, op.Int = "new.bytestring", int64(i.Static)
			case *Const:
				op.Op = "const"
				switch {
				case i.Val.IsNil():
					op.Kind = kindNil
				case i.Val.Type() == vm.TypeSymbol:
					op.Kind = symbolKind(i.Val.Symbol(), symbols)
					op.Name = i.Val.Symbol().Name()
				default:
					return wu, fmt.Errorf("ir: cannot encode constant %s in %s", i.Val, u.Name)
				}
			case *LoadGlobal:
				op.Op, op.Name, op.Kind = "load.global", i.Sym.Name(), symbolKind(i.Sym, symbols)
			case *MakeCons:
				op.Op, op.Args = "cons", temps(i.Uses())
			case *Call:
				op.Op, op.Args = "call", temps(i.Uses())
			case *Phi:
				op.Op, op.Args = "phi", temps(i.Uses())
				for _, e := range i.Edges {
					op.Targets = append(op.Targets, e.Block)
				}
			default:
				return wu, fmt.Errorf("ir: cannot encode instruction %T", ins)
			}
			wb.Instr = append(wb.Instr, op)
		}
		switch t := b.Term.(type) {
		case *Ret:
			wb.Term = wireOp{Op: "ret", Dst: -1}
			if t.Val != nil {
				wb.Term.Args = []int{t.Val.ID}
			}
		case *Br:
			wb.Term = wireOp{Op: "br", Dst: -1, Targets: t.Targets()}
		case *BrTruthy:
			wb.Term = wireOp{Op: "br.truthy", Dst: -1, Args: temps(t.Uses()), Targets: t.Targets()}
		case *Check:
			wb.Term = wireOp{Op: "check", Dst: -1, Args: temps(t.Uses()), Targets: t.Targets(), Int: int64(t.Kind)}
		default:
			return wu, fmt.Errorf("ir: cannot encode terminator %T", b.Term)
		}
		wu.Blocks = append(wu.Blocks, wb)
	}
	return wu, nil
}

func decodeUnit(wu wireUnit, symbols *vm.SymbolTable) (*Unit, error) {
	u := &Unit{Name: wu.Name, Statics: wu.Statics, NumTemps: wu.NumTemps}
	ts := make(map[int]*Temp)
	temp := func(id int) *Temp {
		if t, ok := ts[id]; ok {
			return t
		}
		t := &Temp{ID: id}
		ts[id] = t
		return t
	}
	gensyms := make(map[string]*vm.Value)
	symbol := func(name, kind string) *vm.Value {
		if kind == kindGensym {
			if g, ok := gensyms[name]; ok {
				return g
			}
			g := symbols.Gensym(name)
			gensyms[name] = g
			return g
		}
		return symbols.Intern(name)
	}
	args := func(op wireOp, n int) ([]*Temp, error) {
		if n >= 0 && len(op.Args) != n {
			return nil, fmt.Errorf("ir: %s in %s: want %d operands, got %d", op.Op, wu.Name, n, len(op.Args))
		}
		out := make([]*Temp, len(op.Args))
		for i, id := range op.Args {
			out[i] = temp(id)
		}
		return out, nil
	}

	for _, wb := range wu.Blocks {
		b := &Block{Name: wb.Name}
		for _, op := range wb.Instr {
			dst := temp(op.Dst)
			var ins Instr
			switch op.Op {
			case "new.integer":
				ins = &NewInteger{Dst: dst, V: op.Int}
			case "new.double":
				ins = &NewDouble{Dst: dst, V: op.Float}
			case "new.bytestring":
				ins = &NewBytes{Dst: dst, Static: int(op.Int)}
			case "const":
				if op.Kind == kindNil {
					ins = &Const{Dst: dst, Val: vm.Nil}
				} else {
					ins = &Const{Dst: dst, Val: symbol(op.Name, op.Kind)}
				}
			case "load.global":
				sym := symbol(op.Name, op.Kind)
				if sym.Type() != vm.TypeSymbol {
					return nil, fmt.Errorf("ir: load.global of %q in %s", op.Name, wu.Name)
				}
				ins = &LoadGlobal{Dst: dst, Sym: sym.Symbol()}
			case "cons":
				a, err := args(op, 2)
				if err != nil {
					return nil, err
				}
				ins = &MakeCons{Dst: dst, Car: a[0], Cdr: a[1]}
			case "call":
				a, err := args(op, -1)
				if err != nil {
					return nil, err
				}
				if len(a) == 0 {
					return nil, fmt.Errorf("ir: call without callee in %s", wu.Name)
				}
				ins = &Call{Dst: dst, Callee: a[0], Args: a[1:]}
			case "phi":
				a, err := args(op, len(op.Targets))
				if err != nil {
					return nil, err
				}
				phi := &Phi{Dst: dst}
				for i, blk := range op.Targets {
					phi.Edges = append(phi.Edges, PhiEdge{Block: blk, Val: a[i]})
				}
				ins = phi
			default:
				return nil, fmt.Errorf("ir: unknown op %q in %s", op.Op, wu.Name)
			}
			b.Instr = append(b.Instr, ins)
		}

		op := wb.Term
		switch op.Op {
		case "ret":
			a, err := args(op, -1)
			if err != nil {
				return nil, err
			}
			ret := &Ret{}
			if len(a) > 0 {
				ret.Val = a[0]
			}
			b.Term = ret
		case "br":
			if len(op.Targets) != 1 {
				return nil, fmt.Errorf("ir: br in %s: want 1 target", wu.Name)
			}
			b.Term = &Br{Target: op.Targets[0]}
		case "br.truthy", "check":
			a, err := args(op, 1)
			if err != nil {
				return nil, err
			}
			if len(op.Targets) != 2 {
				return nil, fmt.Errorf("ir: %s in %s: want 2 targets", op.Op, wu.Name)
			}
			if op.Op == "check" {
				b.Term = &Check{Kind: CheckKind(op.Int), Val: a[0], OK: op.Targets[0], Fail: op.Targets[1]}
			} else {
				b.Term = &BrTruthy{Cond: a[0], Then: op.Targets[0], Else: op.Targets[1]}
			}
		default:
			return nil, fmt.Errorf("ir: unknown terminator %q in %s", op.Op, wu.Name)
		}
		u.Blocks = append(u.Blocks, b)
	}
	return u, nil
}
