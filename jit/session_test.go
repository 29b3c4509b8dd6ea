package jit

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/TheBB/Paltry/compiler"
	"github.com/TheBB/Paltry/ir"
	"github.com/TheBB/Paltry/vm"
)

func newSession(opts ...Option) *Session {
	return NewSession(vm.NewVM(), opts...)
}

func mustEval(t *testing.T, s *Session, src string) *vm.Value {
	t.Helper()
	v, err := s.EvalString(src)
	if err != nil {
		t.Fatalf("EvalString(%q): %v", src, err)
	}
	return v
}

// ---------------------------------------------------------------------------
// Evaluation
// ---------------------------------------------------------------------------

func TestEvalResults(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"", "nil"},
		{"42", "42"},
		{"-0x10", "-16"},
		{"2.5", "2.5"},
		{`"s"`, `"s"`},
		{"nil", "nil"},
		{"t", "t"},
		{"'a", "a"},
		{"'(1 \"two\" (3 . 4))", `(1 "two" (3 . 4))`},
		{"(quote ())", "nil"},
		{"1 2 3", "3"},
		{"(begin)", "nil"},
		{"(begin 1 2)", "2"},
		{"(if nil 1 2 3)", "3"},
		{"(if 0 'yes 'no)", "yes"},
		{`(if "" 'yes 'no)`, "yes"},
		{"(if nil 1)", "nil"},
		{"(if t)", "nil"},
		{"(let ((x 1)) x)", "1"},
		{"(let (x) x)", "nil"},
		{"(let ((x)) x)", "nil"},
		{"(let ((a 1) (b 2)) (list b a))", "(2 1)"},
		{"(let ((x 1)) (let ((x 2)) x))", "2"},
		{"(let ((x (if t 1 2))) (if x (+ x 1) 0))", "2"},
		{"(let ((car cdr)) (car '(1 2)))", "(2)"},
		{"(let ())", "nil"},
		{"(let () 1)", "1"},
		{"(let ((a nil)) a)", "nil"},
		{"(let ((a 3)) (let ((b a)) (let ((a 4)) (list a b))))", "(4 3)"},
		{"(quote (a b c))", "(a b c)"},
		{"''symbol", "(quote symbol)"},
		{"'(a . b)", "(a . b)"},
		{"'(a b . c)", "(a b . c)"},
		{"(begin 1 2 3)", "3"},
		{"(if t 1)", "1"},
		{"(if nil 1 2)", "2"},
		{"0xf", "15"},
		{"-0.0", "-0.0"},
		{`""`, `""`},
		{"(car '(1 2))", "1"},
		{"(cdr '(1 2))", "(2)"},
		{"(car (cdr '(1 2 3)))", "2"},
		{"(cons 1 2)", "(1 . 2)"},
		{"(list)", "nil"},
		{`(intern "alpha")`, "alpha"},
		{`(eq (intern "alpha") 'alpha)`, "t"},
		{"(eq (gensym) (gensym))", "nil"},
		{"(eq 'a 'a)", "t"},
		{"(eq '(1) '(1))", "nil"},
		{"(equal '(1) '(1))", "t"},
		{"(+ 1 2.5)", "3.5"},
		{"(* 2 3 7)", "42"},
		{"(- 5)", "-5"},
		{"((car (list car)) '(9))", "9"},
	}

	for _, tc := range tests {
		s := newSession()
		got := mustEval(t, s, tc.src)
		if got.String() != tc.want {
			t.Errorf("eval %q = %s, want %s", tc.src, got, tc.want)
		}
	}
}

func TestEvalFailures(t *testing.T) {
	tests := []string{
		"unbound",
		"(unbound 1)",
		"(1 2)",
		"('car '(1))",
		"(car nil)",
		"(car 1 2)",
		"(if unbound 1 2)",
		"(let ((a 1) (b a)) b)",
		"(list 1 (car nil))",
		"(intern 1)",
		"(+ 'a 1)",
		"1 unbound 2",
	}
	for _, src := range tests {
		s := newSession()
		v, err := s.EvalString(src)
		if !errors.Is(err, ErrEvalFailed) {
			t.Errorf("eval %q = %v, %v; want ErrEvalFailed", src, v, err)
		}
		if v != nil {
			t.Errorf("eval %q returned %v alongside failure", src, v)
		}
	}
}

func TestFailedEvaluationKeepsUnit(t *testing.T) {
	s := newSession()
	if _, err := s.EvalString("unbound"); !errors.Is(err, ErrEvalFailed) {
		t.Fatalf("err = %v", err)
	}
	if _, ok := s.Unit("anonymous_0"); !ok {
		t.Error("a unit that ran and failed should stay linked")
	}
	st := s.Stats()
	if st.Evaluations != 1 || st.EvalFailures != 1 {
		t.Errorf("stats = %+v", st)
	}

	// Binding the symbol later makes the same unit succeed.
	mustEval(t, s, "(bind 'unbound 7)")
	v, err := s.Run("anonymous_0")
	if err != nil || v.Int() != 7 {
		t.Errorf("Run after binding = %v, %v; want 7", v, err)
	}
}

func TestStatePersistsAcrossEvaluations(t *testing.T) {
	s := newSession()
	mustEval(t, s, "(bind 'x 5)")
	if got := mustEval(t, s, "x"); got.Int() != 5 {
		t.Errorf("x = %v, want 5", got)
	}
	mustEval(t, s, "(bind 'y 1)")
	if got := mustEval(t, s, "(let ((y 2)) y)"); got.Int() != 2 {
		t.Errorf("shadowed y = %v, want 2", got)
	}
	if got := mustEval(t, s, "y"); got.Int() != 1 {
		t.Errorf("global y = %v, want 1", got)
	}
	mustEval(t, s, "(bind 'first car)")
	if got := mustEval(t, s, "(first '(a b))"); got.String() != "a" {
		t.Errorf("(first '(a b)) = %v, want a", got)
	}
}

func TestQuotedLiteralsAreFreshPerEvaluation(t *testing.T) {
	s := newSession()
	a := mustEval(t, s, "'(1 2)")
	b, err := s.Run("anonymous_0")
	if err != nil {
		t.Fatal(err)
	}
	if a == b || a.Car() == b.Car() {
		t.Error("re-running a quote returned the same objects")
	}
	if !vm.Equal(a, b) {
		t.Errorf("re-running a quote changed its value: %v vs %v", a, b)
	}

	x := mustEval(t, s, "'sym")
	y, _ := s.Run("anonymous_1")
	if x != y {
		t.Error("quoted symbol is not the interned object")
	}
}

func TestDisplay(t *testing.T) {
	v := vm.NewVM()
	var out bytes.Buffer
	v.SetOutput(&out)
	s := NewSession(v)

	got := mustEval(t, s, `(display "hi" 1 '(a))`)
	if !got.IsNil() {
		t.Errorf("display returned %v, want nil", got)
	}
	if out.String() != "\"hi\" 1 (a)\n" {
		t.Errorf("display wrote %q", out.String())
	}
}

func TestNativePanicIsFailure(t *testing.T) {
	s := newSession()
	s.VM().Register("boom", false, 0, func([]*vm.Value) *vm.Value { panic("kaboom") })

	_, err := s.EvalString("(boom)")
	if !errors.Is(err, ErrEvalFailed) || !strings.Contains(err.Error(), "kaboom") {
		t.Errorf("err = %v, want ErrEvalFailed mentioning the panic", err)
	}
	if got := mustEval(t, s, "1"); got.Int() != 1 {
		t.Error("session unusable after a panic")
	}
}

// ---------------------------------------------------------------------------
// Compile errors
// ---------------------------------------------------------------------------

func TestReadAndSyntaxErrorsLinkNothing(t *testing.T) {
	s := newSession()

	_, err := s.EvalString("(car")
	if !compiler.IsIncomplete(err) {
		t.Errorf("unterminated input: err = %v", err)
	}

	_, err = s.EvalString("(if)")
	var se *compiler.SyntaxError
	if !errors.As(err, &se) {
		t.Errorf("(if): err = %v, want SyntaxError", err)
	}
	if !strings.Contains(err.Error(), "compile anonymous_0") {
		t.Errorf("compile error does not name the unit: %v", err)
	}

	if units := s.Units(); len(units) != 0 {
		t.Errorf("units = %v, want none", units)
	}
	if st := s.Stats(); st.UnitsCompiled != 0 || st.UnitsLinked != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestUnitNaming(t *testing.T) {
	s := newSession()
	mustEval(t, s, "1")
	s.EvalString("(if)")
	mustEval(t, s, "2")

	units := s.Units()
	want := []string{"anonymous_0", "anonymous_2"}
	if strings.Join(units, ",") != strings.Join(want, ",") {
		t.Errorf("Units() = %v, want %v", units, want)
	}
}

func TestCheckDoesNotLink(t *testing.T) {
	s := newSession()
	if err := s.Check("(car x) (if 1 2 3)"); err != nil {
		t.Errorf("Check: %v", err)
	}
	if err := s.Check("(let)"); err == nil {
		t.Error("Check accepted (let)")
	}
	if err := s.Check("(a"); !compiler.IsIncomplete(err) {
		t.Errorf("Check(unterminated) = %v", err)
	}
	if len(s.Units()) != 0 {
		t.Errorf("Check linked units: %v", s.Units())
	}
	mustEval(t, s, "1")
	if s.Units()[0] != "anonymous_0" {
		t.Error("Check consumed a unit number")
	}
}

// ---------------------------------------------------------------------------
// Linking
// ---------------------------------------------------------------------------

func TestLinkRejectsMalformedUnit(t *testing.T) {
	s := newSession()
	bad := &ir.Unit{
		Name:     "bad",
		NumTemps: 1,
		Blocks: []*ir.Block{{
			Name:  "entry",
			Instr: []ir.Instr{&ir.NewInteger{Dst: &ir.Temp{ID: 0}, V: 1}},
			Term:  &ir.Ret{Val: &ir.Temp{ID: 3}},
		}},
	}

	_, err := s.Link(bad)
	var ve *ir.VerifyError
	if !errors.As(err, &ve) {
		t.Fatalf("Link err = %v, want VerifyError", err)
	}
	if _, ok := s.Unit("bad"); ok {
		t.Error("malformed unit was linked")
	}
	if _, ok := s.Lookup("bad"); ok {
		t.Error("malformed unit is callable")
	}
	if st := s.Stats(); st.VerifyFailures != 1 || st.UnitsLinked != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestLinkAndRun(t *testing.T) {
	s := newSession()
	b := ir.NewBuilder("seven")
	t0 := b.NewTemp()
	b.Emit(&ir.NewInteger{Dst: t0, V: 7})
	b.Term(&ir.Ret{Val: t0})

	cu, err := s.Link(b.Finish())
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if cu.Name() != "seven" || cu.IR().Name != "seven" {
		t.Errorf("unit name = %s", cu.Name())
	}
	if got, err := s.Run("seven"); err != nil || got.Int() != 7 {
		t.Errorf("Run = %v, %v", got, err)
	}

	fn, ok := s.Lookup("seven")
	if !ok || fn.Type() != vm.TypeFunction {
		t.Fatalf("Lookup = %v, %v", fn, ok)
	}
	if got := fn.Function().Call(nil); got.Int() != 7 {
		t.Errorf("calling unit function = %v", got)
	}
	if fn.Function().Call([]*vm.Value{vm.Nil}) != nil {
		t.Error("unit function accepted an argument")
	}

	if _, err := s.Link(b.Unit()); err == nil || !strings.Contains(err.Error(), "already linked") {
		t.Errorf("relinking: err = %v", err)
	}
	if _, err := s.Run("missing"); err == nil {
		t.Error("Run of an unknown unit succeeded")
	}
}

func TestUnitFunctionCallableFromCode(t *testing.T) {
	s := newSession()
	mustEval(t, s, "(+ 40 2)")
	fn, _ := s.Lookup("anonymous_0")
	s.VM().Intern("answer").Symbol().Bind(fn)

	if got := mustEval(t, s, "(answer)"); got.Int() != 42 {
		t.Errorf("(answer) = %v, want 42", got)
	}
}

func TestPhiAcrossNestedJoins(t *testing.T) {
	s := newSession()
	got := mustEval(t, s, "(list (if (if nil t nil) 'a 'b) (if t (if nil 'c 'd) 'e))")
	if got.String() != "(b d)" {
		t.Errorf("got %s, want (b d)", got)
	}
}

// ---------------------------------------------------------------------------
// Introspection
// ---------------------------------------------------------------------------

func TestShowIR(t *testing.T) {
	var buf bytes.Buffer
	s := newSession(WithShowIR(&buf))
	mustEval(t, s, "(car '(1))")
	out := buf.String()
	for _, want := range []string{"unit anonymous_0", "load.global car#", "check.function"} {
		if !strings.Contains(out, want) {
			t.Errorf("show-ir output missing %q:\n%s", want, out)
		}
	}
}

func TestSnapshot(t *testing.T) {
	s := newSession()
	mustEval(t, s, `"hello"`)
	mustEval(t, s, "(car '(a))")

	data, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	units, err := ir.UnmarshalUnits(data, s.VM().Symbols)
	if err != nil {
		t.Fatalf("UnmarshalUnits: %v", err)
	}
	if len(units) != 2 || units[0].Name != "anonymous_0" || units[1].Name != "anonymous_1" {
		t.Fatalf("snapshot units = %d", len(units))
	}
	cu, _ := s.Unit("anonymous_1")
	if units[1].Format() != cu.IR().Format() {
		t.Errorf("snapshot differs:\n%s\nwant\n%s", units[1].Format(), cu.IR().Format())
	}
}

func TestStats(t *testing.T) {
	s := newSession()
	mustEval(t, s, "1")
	s.EvalString("nope")
	s.Run("anonymous_0")

	st := s.Stats()
	want := Stats{UnitsCompiled: 2, UnitsLinked: 2, Evaluations: 3, EvalFailures: 1}
	if st != want {
		t.Errorf("Stats() = %+v, want %+v", st, want)
	}
}

func TestConcurrentEval(t *testing.T) {
	s := newSession()
	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.EvalString("(+ 1 2)")
			if err == nil && v.Int() != 3 {
				err = errors.New("wrong result " + v.String())
			}
			if err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	if len(s.Units()) != n {
		t.Errorf("%d units linked, want %d", len(s.Units()), n)
	}
}

type memRecorder struct {
	entries []Entry
	err     error
}

func (r *memRecorder) Record(e Entry) error {
	r.entries = append(r.entries, e)
	return r.err
}

func TestRecorder(t *testing.T) {
	rec := &memRecorder{}
	s := newSession(WithRecorder(rec))
	mustEval(t, s, "(car '(1 2))")
	s.EvalString("nope")
	s.EvalString("(if)")
	s.EvalString("(unterminated")

	if len(rec.entries) != 3 {
		t.Fatalf("recorded %d entries, want 3 (read errors are not recorded)", len(rec.entries))
	}
	first := rec.entries[0]
	if first.Unit != "anonymous_0" || first.Source != "(car (quote (1 2)))" || first.Result != "1" || first.Err != "" {
		t.Errorf("first entry = %+v", first)
	}
	if first.At.IsZero() {
		t.Error("entry has no timestamp")
	}
	if e := rec.entries[1]; e.Result != "" || !strings.Contains(e.Err, "evaluation failed") {
		t.Errorf("failed entry = %+v", e)
	}
	if e := rec.entries[2]; !strings.Contains(e.Err, "syntax error") {
		t.Errorf("syntax error entry = %+v", e)
	}
}

func TestRecorderErrorIsIgnored(t *testing.T) {
	rec := &memRecorder{err: errors.New("disk full")}
	s := newSession(WithRecorder(rec))
	if got := mustEval(t, s, "5"); got.Int() != 5 {
		t.Errorf("got %v", got)
	}
}
