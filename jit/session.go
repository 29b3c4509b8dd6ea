// Package jit compiles and runs Paltry code. A Session turns each batch of
// top-level forms into a fresh IR unit, verifies it, links it into a
// persistent image and executes it immediately.
package jit

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/tliron/commonlog"

	"github.com/TheBB/Paltry/compiler"
	"github.com/TheBB/Paltry/ir"
	"github.com/TheBB/Paltry/vm"
)

// ErrEvalFailed is returned when a unit signals failure by returning null,
// for instance after reading an unbound symbol or calling a non-function.
var ErrEvalFailed = errors.New("evaluation failed")

// Session owns the image of linked units for one VM. It is meant to be
// driven from one goroutine; the mutex only serializes embedders that
// share a session.
type Session struct {
	vm       *vm.VM
	compiler *compiler.Compiler
	log      commonlog.Logger
	showIR   io.Writer
	recorder Recorder

	mu     sync.Mutex
	units  map[string]*CompiledUnit
	order  []string
	nextID int
	stats  Stats
}

// CompiledUnit is a unit resident in the image.
type CompiledUnit struct {
	unit *ir.Unit
	prog *program
	fn   *vm.Value
}

// Name returns the unit's name.
func (cu *CompiledUnit) Name() string { return cu.unit.Name }

// IR returns the unit as it was verified.
func (cu *CompiledUnit) IR() *ir.Unit { return cu.unit }

// Function returns the unit as a zero-argument Function value.
func (cu *CompiledUnit) Function() *vm.Value { return cu.fn }

// Stats counts session activity.
type Stats struct {
	UnitsCompiled  uint64
	UnitsLinked    uint64
	VerifyFailures uint64
	Evaluations    uint64
	EvalFailures   uint64
}

// Entry describes one evaluation for a Recorder.
type Entry struct {
	Unit   string
	Source string // the evaluated forms, rendered
	Result string // rendered result, empty on error
	Err    string
	At     time.Time
}

// Recorder receives an Entry after every evaluation that reached the
// compiler. A failing recorder is logged and otherwise ignored.
type Recorder interface {
	Record(Entry) error
}

// Option configures a Session.
type Option func(*Session)

// WithShowIR writes the text form of every compiled unit to w before it is
// verified.
func WithShowIR(w io.Writer) Option {
	return func(s *Session) { s.showIR = w }
}

// WithLogger replaces the session's logger.
func WithLogger(l commonlog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithRecorder reports every evaluation to r.
func WithRecorder(r Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// NewSession creates a session with an empty image over v.
func NewSession(v *vm.VM, opts ...Option) *Session {
	s := &Session{
		vm:       v,
		compiler: compiler.NewCompiler(v.Symbols),
		log:      commonlog.GetLogger("paltry.jit"),
		units:    make(map[string]*CompiledUnit),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VM returns the VM the session runs on.
func (s *Session) VM() *vm.VM { return s.vm }

// EvalString reads every form in src and evaluates them as one batch.
func (s *Session) EvalString(src string) (*vm.Value, error) {
	forms, err := compiler.ReadAll(s.vm.Symbols, src)
	if err != nil {
		return nil, err
	}
	return s.Eval(forms...)
}

// Eval compiles forms into a new unit named anonymous_N, links it and runs
// it, returning its result. A null result is reported as ErrEvalFailed.
// Units that fail to compile or verify are never linked and leave the
// image untouched.
func (s *Session) Eval(forms ...*vm.Value) (*vm.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := fmt.Sprintf("anonymous_%d", s.nextID)
	s.nextID++

	result, err := s.eval(name, forms)
	s.record(name, forms, result, err)
	return result, err
}

func (s *Session) eval(name string, forms []*vm.Value) (*vm.Value, error) {
	u, err := s.compiler.CompileUnit(name, forms)
	if err != nil {
		return nil, fmt.Errorf("jit: compile %s: %w", name, err)
	}
	s.stats.UnitsCompiled++
	s.log.Debugf("compiled %s: %d blocks, %d temps", name, len(u.Blocks), u.NumTemps)

	cu, err := s.link(u)
	if err != nil {
		return nil, err
	}
	return s.invoke(cu)
}

func (s *Session) record(name string, forms []*vm.Value, result *vm.Value, err error) {
	if s.recorder == nil {
		return
	}
	src := make([]string, len(forms))
	for i, f := range forms {
		src[i] = f.String()
	}
	e := Entry{Unit: name, Source: strings.Join(src, " "), At: time.Now()}
	if err != nil {
		e.Err = err.Error()
	} else {
		e.Result = result.String()
	}
	if rerr := s.recorder.Record(e); rerr != nil {
		s.log.Errorf("recording %s: %s", name, rerr)
	}
}

// Check reads and compiles src into a unit that is verified but never
// linked or run. Reading interns the symbols src mentions.
func (s *Session) Check(src string) error {
	forms, err := compiler.ReadAll(s.vm.Symbols, src)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.compiler.CompileUnit("check", forms)
	if err != nil {
		return err
	}
	return ir.Verify(u)
}

// Link verifies u and adds it to the image without running it.
func (s *Session) Link(u *ir.Unit) (*CompiledUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.link(u)
}

func (s *Session) link(u *ir.Unit) (*CompiledUnit, error) {
	if s.showIR != nil {
		io.WriteString(s.showIR, u.Format())
	}
	if _, dup := s.units[u.Name]; dup {
		return nil, fmt.Errorf("jit: unit %s already linked", u.Name)
	}
	if err := ir.Verify(u); err != nil {
		s.stats.VerifyFailures++
		s.log.Errorf("dropping %s: %s", u.Name, err)
		return nil, fmt.Errorf("jit: %w", err)
	}
	prog, err := lower(u)
	if err != nil {
		return nil, err
	}

	cu := &CompiledUnit{unit: u, prog: prog}
	cu.fn = vm.NewFunction(&vm.Function{
		Name:  u.Name,
		Entry: func([]*vm.Value) *vm.Value { return prog.run() },
	})
	s.units[u.Name] = cu
	s.order = append(s.order, u.Name)
	s.stats.UnitsLinked++
	s.log.Debugf("linked %s", u.Name)
	return cu, nil
}

// invoke runs a linked unit. A panic escaping a native function is
// reported as an evaluation failure.
func (s *Session) invoke(cu *CompiledUnit) (result *vm.Value, err error) {
	s.stats.Evaluations++
	defer func() {
		if r := recover(); r != nil {
			s.stats.EvalFailures++
			s.log.Errorf("panic in %s: %v", cu.Name(), r)
			result, err = nil, fmt.Errorf("%w in %s: panic: %v", ErrEvalFailed, cu.Name(), r)
		}
	}()

	result = cu.prog.run()
	if result == nil {
		s.stats.EvalFailures++
		return nil, fmt.Errorf("%w in %s", ErrEvalFailed, cu.Name())
	}
	return result, nil
}

// Run invokes a resident unit again.
func (s *Session) Run(name string) (*vm.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cu, ok := s.units[name]
	if !ok {
		return nil, fmt.Errorf("jit: no unit %s", name)
	}
	return s.invoke(cu)
}

// Unit returns the resident unit called name.
func (s *Session) Unit(name string) (*CompiledUnit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cu, ok := s.units[name]
	return cu, ok
}

// Lookup returns the resident unit called name as a Function value.
func (s *Session) Lookup(name string) (*vm.Value, bool) {
	cu, ok := s.Unit(name)
	if !ok {
		return nil, false
	}
	return cu.fn, true
}

// Units returns the names of resident units in link order.
func (s *Session) Units() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Stats returns a copy of the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Snapshot encodes every resident unit as CBOR, in link order.
func (s *Session) Snapshot() ([]byte, error) {
	s.mu.Lock()
	units := make([]*ir.Unit, 0, len(s.order))
	for _, name := range s.order {
		units = append(units, s.units[name].unit)
	}
	s.mu.Unlock()
	return ir.MarshalUnits(units, s.vm.Symbols)
}
