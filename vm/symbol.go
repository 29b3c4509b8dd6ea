package vm

import (
	"sort"
	"sync"
)

// ---------------------------------------------------------------------------
// Symbol: name, identity and a binding cell
// ---------------------------------------------------------------------------

// Symbol is the payload of a Symbol value. Identity is the id; two symbols
// with the same name but different ids are different symbols.
type Symbol struct {
	name    string
	id      int64
	binding *Value // global binding cell, null while unbound
}

// Name returns the symbol's print name.
func (s *Symbol) Name() string { return s.name }

// ID returns the symbol's unique identifier.
func (s *Symbol) ID() int64 { return s.id }

// Binding returns the value currently held in the binding cell, or nil when
// the symbol is unbound.
func (s *Symbol) Binding() *Value { return s.binding }

// Bind stores v in the binding cell. Binding nil unbinds the symbol.
func (s *Symbol) Bind(v *Value) { s.binding = v }

// ---------------------------------------------------------------------------
// SymbolTable: Interned symbols
// ---------------------------------------------------------------------------

// SymbolTable interns names to unique symbol values. Entries are never
// removed. Identifiers are shared between interned and uninterned symbols
// so a gensym can never collide with an interned symbol.
type SymbolTable struct {
	mu     sync.RWMutex
	byName map[string]*Value
	nextID int64
}

// NewSymbolTable creates a symbol table holding only the name nil, which
// interns to the empty list itself.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		byName: map[string]*Value{"nil": Nil},
	}
}

// Intern returns the value for name, creating a new symbol if needed.
func (st *SymbolTable) Intern(name string) *Value {
	// Fast path: read-only lookup
	st.mu.RLock()
	if v, ok := st.byName[name]; ok {
		st.mu.RUnlock()
		return v
	}
	st.mu.RUnlock()

	st.mu.Lock()
	defer st.mu.Unlock()

	// Double-check after acquiring write lock
	if v, ok := st.byName[name]; ok {
		return v
	}
	v := st.newSymbolLocked(name)
	st.byName[name] = v
	return v
}

// Gensym returns a fresh symbol that is never registered in the table. It
// compares unequal to every other symbol, including ones with the same name.
func (st *SymbolTable) Gensym(name string) *Value {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.newSymbolLocked(name)
}

func (st *SymbolTable) newSymbolLocked(name string) *Value {
	sym := &Symbol{name: name, id: st.nextID}
	st.nextID++
	return &Value{typ: TypeSymbol, sym: sym}
}

// Lookup returns the interned value for name without creating one.
func (st *SymbolTable) Lookup(name string) (*Value, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	v, ok := st.byName[name]
	return v, ok
}

// Len returns the number of interned names.
func (st *SymbolTable) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.byName)
}

// Names returns all interned names in sorted order.
func (st *SymbolTable) Names() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()

	names := make([]string, 0, len(st.byName))
	for name := range st.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
