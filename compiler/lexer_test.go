package compiler

import (
	"testing"
)

func TestLexerBasicTokens(t *testing.T) {
	input := "( ) ' ` , ,@ . foo"
	expected := []struct {
		typ TokenType
		lit string
	}{
		{TokenLParen, "("},
		{TokenRParen, ")"},
		{TokenQuote, "'"},
		{TokenBackquote, "`"},
		{TokenUnquote, ","},
		{TokenUnquoteSplice, ",@"},
		{TokenAtom, "."},
		{TokenAtom, "foo"},
		{TokenEOF, ""},
	}

	l := NewLexer(input)
	for i, exp := range expected {
		tok, err := l.NextToken()
		if err != nil {
			t.Fatalf("token[%d]: %v", i, err)
		}
		if tok.Type != exp.typ {
			t.Errorf("token[%d] type = %v, want %v", i, tok.Type, exp.typ)
		}
		if tok.Literal != exp.lit {
			t.Errorf("token[%d] literal = %q, want %q", i, tok.Literal, exp.lit)
		}
	}
}

func TestLexerAtomsEndAtDelimiters(t *testing.T) {
	l := NewLexer(`(foo"bar"baz'qux)`)
	var lits []string
	for {
		tok, err := l.NextToken()
		if err != nil {
			t.Fatal(err)
		}
		if tok.Type == TokenEOF {
			break
		}
		lits = append(lits, tok.Literal)
	}
	want := []string{"(", "foo", "bar", "baz", "'", "qux", ")"}
	if len(lits) != len(want) {
		t.Fatalf("tokens = %q, want %q", lits, want)
	}
	for i := range want {
		if lits[i] != want[i] {
			t.Errorf("token[%d] = %q, want %q", i, lits[i], want[i])
		}
	}
}

func TestLexerComments(t *testing.T) {
	l := NewLexer("; leading\nfoo ; trailing\n;; end")
	tok, _ := l.NextToken()
	if tok.Type != TokenAtom || tok.Literal != "foo" {
		t.Errorf("first token = %v %q, want ATOM foo", tok.Type, tok.Literal)
	}
	tok, _ = l.NextToken()
	if tok.Type != TokenEOF {
		t.Errorf("second token = %v, want EOF", tok.Type)
	}
}

func TestLexerPositions(t *testing.T) {
	l := NewLexer("a\n  (b")
	expected := []Position{
		{Offset: 0, Line: 1, Column: 1},
		{Offset: 4, Line: 2, Column: 3},
		{Offset: 5, Line: 2, Column: 4},
	}
	for i, exp := range expected {
		tok, _ := l.NextToken()
		if tok.Pos != exp {
			t.Errorf("token[%d] pos = %+v, want %+v", i, tok.Pos, exp)
		}
	}
	if s := expected[1].String(); s != "2:3" {
		t.Errorf("Position.String() = %q, want 2:3", s)
	}
}

func TestLexerStrings(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`""`, ""},
		{`"hello"`, "hello"},
		{`"a\nb\tc\r"`, "a\nb\tc\r"},
		{`"\a\b\f\v\0"`, "\a\b\f\v\x00"},
		{`"\\ \" \'"`, `\ " '`},
		{`"\x41\xff"`, "A\xff"},
		{"\"line\\\ncontinued\"", "linecontinued"},
		{`"\q"`, `\q`},
		{"\"multi\nline\"", "multi\nline"},
		{`"é"`, "é"},
	}

	for _, tc := range tests {
		tok, err := NewLexer(tc.input).NextToken()
		if err != nil {
			t.Errorf("Lexer(%q): %v", tc.input, err)
			continue
		}
		if tok.Type != TokenString {
			t.Errorf("Lexer(%q): type = %v, want STRING", tc.input, tok.Type)
		}
		if tok.Literal != tc.want {
			t.Errorf("Lexer(%q): literal = %q, want %q", tc.input, tok.Literal, tc.want)
		}
	}
}

func TestLexerStringErrors(t *testing.T) {
	tests := []struct {
		input      string
		incomplete bool
	}{
		{`"open`, true},
		{`"trailing\`, true},
		{`"\x4"`, false},
		{`"\xzz"`, false},
	}
	for _, tc := range tests {
		_, err := NewLexer(tc.input).NextToken()
		if err == nil {
			t.Errorf("Lexer(%q): expected error", tc.input)
			continue
		}
		if IsIncomplete(err) != tc.incomplete {
			t.Errorf("Lexer(%q): incomplete = %v, want %v", tc.input, IsIncomplete(err), tc.incomplete)
		}
	}
}

func TestIsDelimiter(t *testing.T) {
	for _, r := range "()\"'`, \t\n;" {
		if !IsDelimiter(r) {
			t.Errorf("IsDelimiter(%q) = false", r)
		}
	}
	for _, r := range "a.-+@0#" {
		if IsDelimiter(r) {
			t.Errorf("IsDelimiter(%q) = true", r)
		}
	}
}
