package compiler

import (
	"fmt"

	"github.com/TheBB/Paltry/ir"
	"github.com/TheBB/Paltry/vm"
)

// ---------------------------------------------------------------------------
// Codegen: Compile s-expressions to IR
// ---------------------------------------------------------------------------

// SyntaxError reports a form the code generator cannot compile, such as a
// malformed special form.
type SyntaxError struct {
	Form *vm.Value
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error: %s in %s", e.Msg, e.Form)
}

// Compiler translates code trees into IR units. A Compiler is reusable but
// not safe for concurrent use.
type Compiler struct {
	symbols *vm.SymbolTable

	// Special form heads, compared by identity
	symQuote *vm.Symbol
	symBegin *vm.Symbol
	symIf    *vm.Symbol
	symLet   *vm.Symbol

	// Current compilation context
	b    *ir.Builder
	fail *ir.Block // shared failure exit, created on first check
}

// NewCompiler creates a compiler whose special forms are recognized by the
// symbols interned in symbols.
func NewCompiler(symbols *vm.SymbolTable) *Compiler {
	sym := func(name string) *vm.Symbol { return symbols.Intern(name).Symbol() }
	return &Compiler{
		symbols:  symbols,
		symQuote: sym("quote"),
		symBegin: sym("begin"),
		symIf:    sym("if"),
		symLet:   sym("let"),
	}
}

// CompileUnit compiles forms into a zero-argument unit called name. The
// body is the begin of the forms against an empty environment, so an empty
// batch returns nil.
func (c *Compiler) CompileUnit(name string, forms []*vm.Value) (*ir.Unit, error) {
	c.b = ir.NewBuilder(name)
	c.fail = nil
	defer func() { c.b, c.fail = nil, nil }()

	val, err := c.compileBody(forms, nil)
	if err != nil {
		return nil, err
	}
	c.b.Term(&ir.Ret{Val: val})
	return c.b.Finish(), nil
}

// compile emits code evaluating form in env and returns the temp holding
// its value.
func (c *Compiler) compile(form *vm.Value, env *Env) (*ir.Temp, error) {
	switch form.Type() {
	case vm.TypeInteger, vm.TypeDouble, vm.TypeByteString:
		return c.literal(form), nil
	case vm.TypeSymbol:
		if t, ok := env.Lookup(form.Symbol()); ok {
			return t, nil
		}
		dst := c.b.NewTemp()
		c.b.Emit(&ir.LoadGlobal{Dst: dst, Sym: form.Symbol()})
		c.guard(ir.CheckNonNull, dst)
		return dst, nil
	case vm.TypeCons:
		if form.IsNil() {
			return c.constant(vm.Nil), nil
		}
		return c.compileCons(form, env)
	}
	return nil, &SyntaxError{Form: form, Msg: fmt.Sprintf("cannot compile %s object", form.Type())}
}

func (c *Compiler) compileCons(form *vm.Value, env *Env) (*ir.Temp, error) {
	if head := form.Car(); head.Type() == vm.TypeSymbol {
		switch head.Symbol() {
		case c.symQuote:
			return c.compileQuote(form)
		case c.symBegin:
			args, err := c.arguments(form)
			if err != nil {
				return nil, err
			}
			return c.compileBody(args, env)
		case c.symIf:
			return c.compileIf(form, env)
		case c.symLet:
			return c.compileLet(form, env)
		}
	}
	return c.compileCall(form, env)
}

// arguments returns the elements after the head of form, which must be a
// proper list.
func (c *Compiler) arguments(form *vm.Value) ([]*vm.Value, error) {
	elems, ok := form.Slice()
	if !ok {
		return nil, &SyntaxError{Form: form, Msg: "improper list"}
	}
	return elems[1:], nil
}

// guard ends the current block with a check of t, continuing in a fresh
// block when it passes and at the shared failure exit otherwise.
func (c *Compiler) guard(kind ir.CheckKind, t *ir.Temp) {
	ok := c.b.NewBlock("ok")
	c.b.Term(&ir.Check{Kind: kind, Val: t, OK: ok.Name, Fail: c.failBlock().Name})
	c.b.SetBlock(ok)
}

func (c *Compiler) failBlock() *ir.Block {
	if c.fail == nil {
		cur := c.b.Block()
		c.fail = c.b.NewBlock("fail")
		c.b.SetBlock(c.fail)
		c.b.Term(&ir.Ret{})
		c.b.SetBlock(cur)
	}
	return c.fail
}

// literal allocates a fresh copy of an Integer, Double or ByteString.
func (c *Compiler) literal(v *vm.Value) *ir.Temp {
	dst := c.b.NewTemp()
	switch v.Type() {
	case vm.TypeInteger:
		c.b.Emit(&ir.NewInteger{Dst: dst, V: v.Int()})
	case vm.TypeDouble:
		c.b.Emit(&ir.NewDouble{Dst: dst, V: v.Float()})
	case vm.TypeByteString:
		c.b.Emit(&ir.NewBytes{Dst: dst, Static: c.b.AddStatic(v.Bytes())})
	}
	return dst
}

func (c *Compiler) constant(v *vm.Value) *ir.Temp {
	dst := c.b.NewTemp()
	c.b.Emit(&ir.Const{Dst: dst, Val: v})
	return dst
}

// ---------------------------------------------------------------------------
// Special forms
// ---------------------------------------------------------------------------

// compileBody evaluates forms in sequence and yields the last value, or nil
// when there are none.
func (c *Compiler) compileBody(forms []*vm.Value, env *Env) (*ir.Temp, error) {
	if len(forms) == 0 {
		return c.constant(vm.Nil), nil
	}
	var last *ir.Temp
	for _, f := range forms {
		t, err := c.compile(f, env)
		if err != nil {
			return nil, err
		}
		last = t
	}
	return last, nil
}

func (c *Compiler) compileQuote(form *vm.Value) (*ir.Temp, error) {
	args, err := c.arguments(form)
	if err != nil {
		return nil, err
	}
	if len(args) != 1 {
		return nil, &SyntaxError{Form: form, Msg: "quote takes exactly one argument"}
	}
	return c.copyDatum(args[0]), nil
}

// copyDatum emits code rebuilding v at run time: literals are allocated
// afresh and pairs copied, while symbols and other objects are referenced.
func (c *Compiler) copyDatum(v *vm.Value) *ir.Temp {
	switch v.Type() {
	case vm.TypeInteger, vm.TypeDouble, vm.TypeByteString:
		return c.literal(v)
	case vm.TypeCons:
		if v.IsNil() {
			return c.constant(vm.Nil)
		}
		car := c.copyDatum(v.Car())
		cdr := c.copyDatum(v.Cdr())
		dst := c.b.NewTemp()
		c.b.Emit(&ir.MakeCons{Dst: dst, Car: car, Cdr: cdr})
		return dst
	}
	return c.constant(v)
}

func (c *Compiler) compileIf(form *vm.Value, env *Env) (*ir.Temp, error) {
	args, err := c.arguments(form)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, &SyntaxError{Form: form, Msg: "if requires a condition"}
	}
	cond, err := c.compile(args[0], env)
	if err != nil {
		return nil, err
	}

	thenBlk := c.b.NewBlock("then")
	elseBlk := c.b.NewBlock("else")
	join := c.b.NewBlock("join")
	c.b.Term(&ir.BrTruthy{Cond: cond, Then: thenBlk.Name, Else: elseBlk.Name})

	c.b.SetBlock(thenBlk)
	var thenVal *ir.Temp
	if len(args) > 1 {
		thenVal, err = c.compile(args[1], env)
	} else {
		thenVal = c.constant(vm.Nil)
	}
	if err != nil {
		return nil, err
	}
	thenEnd := c.b.Block()
	c.b.Term(&ir.Br{Target: join.Name})

	c.b.SetBlock(elseBlk)
	var elseForms []*vm.Value
	if len(args) > 2 {
		elseForms = args[2:]
	}
	elseVal, err := c.compileBody(elseForms, env)
	if err != nil {
		return nil, err
	}
	elseEnd := c.b.Block()
	c.b.Term(&ir.Br{Target: join.Name})

	c.b.SetBlock(join)
	dst := c.b.NewTemp()
	c.b.Emit(&ir.Phi{Dst: dst, Edges: []ir.PhiEdge{
		{Block: thenEnd.Name, Val: thenVal},
		{Block: elseEnd.Name, Val: elseVal},
	}})
	return dst, nil
}

func (c *Compiler) compileLet(form *vm.Value, env *Env) (*ir.Temp, error) {
	args, err := c.arguments(form)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, &SyntaxError{Form: form, Msg: "let requires a binding list"}
	}
	bindings, ok := args[0].Slice()
	if !ok {
		return nil, &SyntaxError{Form: form, Msg: "let bindings must be a list"}
	}

	// Every value is computed in the outer environment before any name is
	// visible.
	vars := make(map[*vm.Symbol]*ir.Temp, len(bindings))
	for _, binding := range bindings {
		sym, expr, err := c.binding(form, binding)
		if err != nil {
			return nil, err
		}
		var val *ir.Temp
		if expr == nil {
			val = c.constant(vm.Nil)
		} else if val, err = c.compile(expr, env); err != nil {
			return nil, err
		}
		vars[sym] = val
	}
	return c.compileBody(args[1:], env.Extend(vars))
}

// binding destructures one let binding: sym, (sym) or (sym expr). A nil expr
// means the symbol is bound to nil.
func (c *Compiler) binding(form, binding *vm.Value) (*vm.Symbol, *vm.Value, error) {
	if binding.Type() == vm.TypeSymbol {
		return binding.Symbol(), nil, nil
	}
	elems, ok := binding.Slice()
	if !ok || len(elems) == 0 || len(elems) > 2 || elems[0].Type() != vm.TypeSymbol {
		return nil, nil, &SyntaxError{Form: form, Msg: fmt.Sprintf("invalid let binding %s", binding)}
	}
	if len(elems) == 1 {
		return elems[0].Symbol(), nil, nil
	}
	return elems[0].Symbol(), elems[1], nil
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

func (c *Compiler) compileCall(form *vm.Value, env *Env) (*ir.Temp, error) {
	args, err := c.arguments(form)
	if err != nil {
		return nil, err
	}
	callee, err := c.compile(form.Car(), env)
	if err != nil {
		return nil, err
	}
	c.guard(ir.CheckFunction, callee)

	temps := make([]*ir.Temp, len(args))
	for i, arg := range args {
		if temps[i], err = c.compile(arg, env); err != nil {
			return nil, err
		}
	}

	dst := c.b.NewTemp()
	c.b.Emit(&ir.Call{Dst: dst, Callee: callee, Args: temps})
	c.guard(ir.CheckNonNull, dst)
	return dst, nil
}
