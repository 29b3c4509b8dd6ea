package compiler

import (
	"errors"
	"strings"
	"testing"

	"github.com/TheBB/Paltry/ir"
	"github.com/TheBB/Paltry/vm"
)

// compileSource reads src and compiles it into a unit that must verify.
func compileSource(t *testing.T, src string) *ir.Unit {
	t.Helper()
	symbols := vm.NewSymbolTable()
	forms, err := ReadAll(symbols, src)
	if err != nil {
		t.Fatalf("ReadAll(%q): %v", src, err)
	}
	u, err := NewCompiler(symbols).CompileUnit("test", forms)
	if err != nil {
		t.Fatalf("CompileUnit(%q): %v", src, err)
	}
	if err := ir.Verify(u); err != nil {
		t.Fatalf("Verify(%q): %v\n%s", src, err, u.Format())
	}
	return u
}

func countOps(u *ir.Unit, op string) int {
	return strings.Count(u.Format(), op)
}

// ---------------------------------------------------------------------------
// Atoms
// ---------------------------------------------------------------------------

func TestCompileLiterals(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"42", "%t0 = new integer 42"},
		{"2.5", "%t0 = new double 2.5"},
		{`"hi"`, "%t0 = new bytestring @s0"},
		{"nil", "%t0 = const nil"},
		{"()", "%t0 = const nil"},
		{"", "%t0 = const nil"},
	}
	for _, tc := range tests {
		out := compileSource(t, tc.src).Format()
		if !strings.Contains(out, tc.want) || !strings.Contains(out, "ret %t0") {
			t.Errorf("compile %q:\n%s\nwant %q", tc.src, out, tc.want)
		}
	}
}

func TestCompileStringStatic(t *testing.T) {
	u := compileSource(t, `"a" "a"`)
	if len(u.Statics) != 2 || u.Statics[0] != "a" {
		t.Errorf("statics = %q, want one buffer per literal", u.Statics)
	}
}

func TestCompileGlobalChecksBinding(t *testing.T) {
	u := compileSource(t, "x")
	out := u.Format()
	if !strings.Contains(out, "load.global x#") || !strings.Contains(out, "check.nonnull %t0") {
		t.Errorf("global read lacks a binding check:\n%s", out)
	}
	if !strings.Contains(out, "ret null") {
		t.Errorf("no failure exit:\n%s", out)
	}
}

func TestCompileSharesFailBlock(t *testing.T) {
	u := compileSource(t, "a b c")
	if n := countOps(u, "ret null"); n != 1 {
		t.Errorf("%d failure exits, want one shared block:\n%s", n, u.Format())
	}
	if n := countOps(u, "check.nonnull"); n != 3 {
		t.Errorf("%d checks, want 3", n)
	}
}

func TestCompileNoChecksWithoutFailurePoints(t *testing.T) {
	u := compileSource(t, "'(1 . 2)")
	if len(u.Blocks) != 1 {
		t.Errorf("block count = %d, want 1 for a quoted literal:\n%s", len(u.Blocks), u.Format())
	}
}

// ---------------------------------------------------------------------------
// Special forms
// ---------------------------------------------------------------------------

func TestCompileQuote(t *testing.T) {
	u := compileSource(t, "'(a 1 \"s\" (b))")
	out := u.Format()
	if n := countOps(u, "= cons"); n != 5 {
		t.Errorf("quoted list built with %d conses, want 5:\n%s", n, out)
	}
	if !strings.Contains(out, "const a#") || !strings.Contains(out, "new integer 1") {
		t.Errorf("quoted atoms not rebuilt:\n%s", out)
	}
	if strings.Contains(out, "load.global") {
		t.Errorf("quoted symbol evaluated:\n%s", out)
	}
}

func TestCompileBegin(t *testing.T) {
	u := compileSource(t, "(begin 1 2)")
	if !strings.Contains(u.Format(), "ret %t1") {
		t.Errorf("begin does not return its last form:\n%s", u.Format())
	}
	u = compileSource(t, "(begin)")
	if !strings.Contains(u.Format(), "const nil") {
		t.Errorf("(begin) is not nil:\n%s", u.Format())
	}
}

func TestCompileIf(t *testing.T) {
	u := compileSource(t, "(if 1 2 3 4)")
	out := u.Format()
	for _, want := range []string{"br.truthy %t0, then_", "new integer 4", "= phi ["} {
		if !strings.Contains(out, want) {
			t.Errorf("if missing %q:\n%s", want, out)
		}
	}

	u = compileSource(t, "(if 1)")
	if n := countOps(u, "const nil"); n != 2 {
		t.Errorf("(if 1) has %d nil arms, want 2:\n%s", n, u.Format())
	}
}

func TestCompileNestedIfVerifies(t *testing.T) {
	compileSource(t, "(if (if a b c) (if d e) (f (if g h)))")
}

func TestCompileLetIsLexical(t *testing.T) {
	u := compileSource(t, "(let ((x 1) y (z)) x y z)")
	if strings.Contains(u.Format(), "load.global") {
		t.Errorf("let-bound names read as globals:\n%s", u.Format())
	}

	u = compileSource(t, "(let ((x 1)) (let ((x 2)) x))")
	if !strings.Contains(u.Format(), "ret %t1") {
		t.Errorf("inner binding does not shadow:\n%s", u.Format())
	}

	u = compileSource(t, "(begin (let ((x 1)) x) x)")
	if !strings.Contains(u.Format(), "load.global x#") {
		t.Errorf("let binding leaked out of its body:\n%s", u.Format())
	}
}

func TestCompileLetBindingsSeeOuterScope(t *testing.T) {
	u := compileSource(t, "(let ((a 1) (b a)) b)")
	if !strings.Contains(u.Format(), "load.global a#") {
		t.Errorf("second binding saw the first:\n%s", u.Format())
	}
}

func TestCompileSpecialFormsAreNotGlobals(t *testing.T) {
	u := compileSource(t, "(quote x) (begin) (if nil nil) (let ())")
	if strings.Contains(u.Format(), "load.global") {
		t.Errorf("special form head compiled as a call:\n%s", u.Format())
	}
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

func TestCompileCall(t *testing.T) {
	u := compileSource(t, "(cons 1 2)")
	out := u.Format()
	for _, want := range []string{
		"%t0 = load.global cons#",
		"check.nonnull %t0",
		"check.function %t0",
		"%t3 = call %t0(%t1, %t2)",
		"check.nonnull %t3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("call missing %q:\n%s", want, out)
		}
	}
}

func TestCompileCallNonSymbolHead(t *testing.T) {
	u := compileSource(t, "(1 2)")
	out := u.Format()
	if !strings.Contains(out, "check.function %t0") || !strings.Contains(out, "call %t0(%t1)") {
		t.Errorf("computed callee not checked:\n%s", out)
	}
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

func TestCompileSyntaxErrors(t *testing.T) {
	tests := []struct {
		src string
		msg string
	}{
		{"(quote)", "quote takes exactly one argument"},
		{"(quote a b)", "quote takes exactly one argument"},
		{"(if)", "if requires a condition"},
		{"(let)", "let requires a binding list"},
		{"(let x x)", "let bindings must be a list"},
		{"(let (a . b) a)", "let bindings must be a list"},
		{"(let ((1 2)) 1)", "invalid let binding (1 2)"},
		{"(let ((a 1 2)) a)", "invalid let binding (a 1 2)"},
		{"(let (()) 1)", "invalid let binding nil"},
		{"(f . x)", "improper list"},
		{"(begin . 1)", "improper list"},
		{"(begin (if))", "if requires a condition"},
	}

	for _, tc := range tests {
		symbols := vm.NewSymbolTable()
		forms, err := ReadAll(symbols, tc.src)
		if err != nil {
			t.Fatalf("ReadAll(%q): %v", tc.src, err)
		}
		_, err = NewCompiler(symbols).CompileUnit("test", forms)
		var se *SyntaxError
		if !errors.As(err, &se) {
			t.Errorf("compile %q: err = %v, want SyntaxError", tc.src, err)
			continue
		}
		if !strings.Contains(err.Error(), tc.msg) {
			t.Errorf("compile %q: err = %q, want %q", tc.src, err, tc.msg)
		}
	}
}

func TestCompileFunctionObject(t *testing.T) {
	symbols := vm.NewSymbolTable()
	fn := vm.NewFunction(&vm.Function{Name: "f", Entry: func([]*vm.Value) *vm.Value { return vm.Nil }})
	_, err := NewCompiler(symbols).CompileUnit("test", []*vm.Value{fn})
	if err == nil || !strings.Contains(err.Error(), "cannot compile function object") {
		t.Errorf("err = %v, want cannot compile function object", err)
	}
}

func TestCompilerIsReusable(t *testing.T) {
	symbols := vm.NewSymbolTable()
	c := NewCompiler(symbols)
	bad, _ := ReadAll(symbols, "(if)")
	if _, err := c.CompileUnit("bad", bad); err == nil {
		t.Fatal("expected error")
	}
	good, _ := ReadAll(symbols, "x")
	u, err := c.CompileUnit("good", good)
	if err != nil {
		t.Fatalf("CompileUnit after failure: %v", err)
	}
	if u.Name != "good" || ir.Verify(u) != nil {
		t.Errorf("unit after a failed compile is malformed:\n%s", u.Format())
	}
}
