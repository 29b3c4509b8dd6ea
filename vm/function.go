package vm

// NativeFunc is the fixed calling convention shared by native functions and
// compiled units: the slice carries the argument count and the contiguous
// argument array. A nil result means failure and must be propagated by the
// caller.
type NativeFunc func(args []*Value) *Value

// Function is the payload of a Function value.
type Function struct {
	Name     string
	Arity    int  // exact argument count, or the minimum when Variadic
	Variadic bool
	Entry    NativeFunc
}

// Call invokes the entry point. A call with an argument count the function
// does not accept fails without entering it.
func (f *Function) Call(args []*Value) *Value {
	if f.Variadic {
		if len(args) < f.Arity {
			return nil
		}
	} else if len(args) != f.Arity {
		return nil
	}
	return f.Entry(args)
}

// Register binds the interned symbol name to a Function wrapping entry and
// returns the Function value. Registering a name again replaces the earlier
// binding.
func (vm *VM) Register(name string, variadic bool, arity int, entry NativeFunc) *Value {
	fn := NewFunction(&Function{
		Name:     name,
		Arity:    arity,
		Variadic: variadic,
		Entry:    entry,
	})
	sym := vm.Symbols.Intern(name)
	if sym.Type() == TypeSymbol {
		sym.Symbol().Bind(fn)
	}
	return fn
}
