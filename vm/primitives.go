package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Builtin native functions
// ---------------------------------------------------------------------------

func (vm *VM) registerPrimitives() {
	vm.registerIOPrimitives()
	vm.registerSymbolPrimitives()
	vm.registerListPrimitives()
	vm.registerArithmeticPrimitives()
}

func (vm *VM) registerIOPrimitives() {
	// display - print rendered arguments separated by spaces
	vm.Register("display", true, 0, func(args []*Value) *Value {
		parts := make([]string, len(args))
		for i, arg := range args {
			parts[i] = arg.String()
		}
		if _, err := fmt.Fprintln(vm.out, strings.Join(parts, " ")); err != nil {
			return nil
		}
		return Nil
	})
}

func (vm *VM) registerSymbolPrimitives() {
	// intern - bytestring to interned symbol
	vm.Register("intern", false, 1, func(args []*Value) *Value {
		if args[0].Type() != TypeByteString {
			return nil
		}
		return vm.Symbols.Intern(args[0].Bytes())
	})

	// gensym - fresh uninterned symbol, optionally named
	vm.Register("gensym", true, 0, func(args []*Value) *Value {
		switch len(args) {
		case 0:
			return vm.Symbols.Gensym("g")
		case 1:
			if args[0].Type() != TypeByteString {
				return nil
			}
			return vm.Symbols.Gensym(args[0].Bytes())
		}
		return nil
	})

	// bind - store a value in a symbol's binding cell
	vm.Register("bind", false, 2, func(args []*Value) *Value {
		if args[0].Type() != TypeSymbol {
			return nil
		}
		args[0].Symbol().Bind(args[1])
		return args[1]
	})
}

func (vm *VM) registerListPrimitives() {
	vm.Register("cons", false, 2, func(args []*Value) *Value {
		return Cons(args[0], args[1])
	})

	vm.Register("car", false, 1, func(args []*Value) *Value {
		return args[0].Car()
	})

	vm.Register("cdr", false, 1, func(args []*Value) *Value {
		return args[0].Cdr()
	})

	vm.Register("list", true, 0, func(args []*Value) *Value {
		return List(args...)
	})

	// eq - identity; symbols by identifier
	vm.Register("eq", false, 2, func(args []*Value) *Value {
		a, b := args[0], args[1]
		if a.Type() == TypeSymbol && b.Type() == TypeSymbol {
			return vm.Bool(a.Symbol().ID() == b.Symbol().ID())
		}
		return vm.Bool(a == b)
	})

	vm.Register("equal", false, 2, func(args []*Value) *Value {
		return vm.Bool(Equal(args[0], args[1]))
	})
}

func (vm *VM) registerArithmeticPrimitives() {
	vm.Register("+", true, 0, func(args []*Value) *Value {
		return fold(args, 0, func(a, b int64) int64 { return a + b },
			func(a, b float64) float64 { return a + b })
	})

	vm.Register("*", true, 0, func(args []*Value) *Value {
		return fold(args, 1, func(a, b int64) int64 { return a * b },
			func(a, b float64) float64 { return a * b })
	})

	// - with one argument negates
	vm.Register("-", true, 1, func(args []*Value) *Value {
		if len(args) == 1 {
			args = []*Value{Integer(0), args[0]}
		}
		first, rest := args[0], args[1:]
		return foldFrom(first, rest, func(a, b int64) int64 { return a - b },
			func(a, b float64) float64 { return a - b })
	})
}

func fold(args []*Value, unit int64, ints func(a, b int64) int64, floats func(a, b float64) float64) *Value {
	return foldFrom(Integer(unit), args, ints, floats)
}

// foldFrom combines numeric arguments left to right. Integers wrap; any
// double operand promotes the running result to a double.
func foldFrom(acc *Value, args []*Value, ints func(a, b int64) int64, floats func(a, b float64) float64) *Value {
	if !isNumber(acc) {
		return nil
	}
	for _, arg := range args {
		if !isNumber(arg) {
			return nil
		}
		if acc.Type() == TypeInteger && arg.Type() == TypeInteger {
			acc = Integer(ints(acc.Int(), arg.Int()))
			continue
		}
		acc = Double(floats(toFloat(acc), toFloat(arg)))
	}
	return acc
}

func isNumber(v *Value) bool {
	return v.Type() == TypeInteger || v.Type() == TypeDouble
}

func toFloat(v *Value) float64 {
	if v.Type() == TypeInteger {
		return float64(v.Int())
	}
	return v.Float()
}
