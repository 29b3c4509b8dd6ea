package compiler

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/TheBB/Paltry/vm"
)

// ReadError reports source text that does not form valid s-expressions.
type ReadError struct {
	Pos Position
	Msg string

	// Incomplete is set when the input ended in the middle of a form, so
	// more input could complete it.
	Incomplete bool
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read error at %s: %s", e.Pos, e.Msg)
}

// IsIncomplete reports whether err is a ReadError caused by input that ended
// before the form was complete.
func IsIncomplete(err error) bool {
	var re *ReadError
	return errors.As(err, &re) && re.Incomplete
}

// Reader builds s-expression trees from source text. Symbols are interned in
// the reader's symbol table; the name nil reads as the empty list.
type Reader struct {
	lex     *Lexer
	symbols *vm.SymbolTable
	tok     Token
	peeked  bool
}

// NewReader creates a reader over src.
func NewReader(symbols *vm.SymbolTable, src string) *Reader {
	return &Reader{lex: NewLexer(src), symbols: symbols}
}

// Read parses exactly one form from src.
func Read(symbols *vm.SymbolTable, src string) (*vm.Value, error) {
	r := NewReader(symbols, src)
	form, err := r.Next()
	if err != nil {
		return nil, err
	}
	if form == nil {
		return nil, &ReadError{Pos: Position{Line: 1, Column: 1}, Msg: "no form in input", Incomplete: true}
	}
	tok, err := r.peek()
	if err != nil {
		return nil, err
	}
	if tok.Type != TokenEOF {
		return nil, &ReadError{Pos: tok.Pos, Msg: fmt.Sprintf("unexpected %s after form", tok.Type)}
	}
	return form, nil
}

// ReadAll parses every top-level form in src.
func ReadAll(symbols *vm.SymbolTable, src string) ([]*vm.Value, error) {
	r := NewReader(symbols, src)
	var forms []*vm.Value
	for {
		form, err := r.Next()
		if err != nil {
			return nil, err
		}
		if form == nil {
			return forms, nil
		}
		forms = append(forms, form)
	}
}

// Next returns the next top-level form, or nil at end of input.
func (r *Reader) Next() (*vm.Value, error) {
	tok, err := r.peek()
	if err != nil {
		return nil, err
	}
	if tok.Type == TokenEOF {
		return nil, nil
	}
	return r.readForm()
}

func (r *Reader) peek() (Token, error) {
	if !r.peeked {
		tok, err := r.lex.NextToken()
		if err != nil {
			return Token{}, err
		}
		r.tok = tok
		r.peeked = true
	}
	return r.tok, nil
}

func (r *Reader) next() (Token, error) {
	tok, err := r.peek()
	r.peeked = false
	return tok, err
}

// shorthands maps prefix tokens to the symbol they wrap their form in.
var shorthands = map[TokenType]string{
	TokenQuote:         "quote",
	TokenBackquote:     "backquote",
	TokenUnquote:       "unquote",
	TokenUnquoteSplice: "unquote-splice",
}

func (r *Reader) readForm() (*vm.Value, error) {
	tok, err := r.next()
	if err != nil {
		return nil, err
	}
	switch tok.Type {
	case TokenEOF:
		return nil, &ReadError{Pos: tok.Pos, Msg: "unexpected end of input", Incomplete: true}
	case TokenRParen:
		return nil, &ReadError{Pos: tok.Pos, Msg: "unexpected )"}
	case TokenLParen:
		return r.readList(tok.Pos)
	case TokenString:
		return vm.ByteString(tok.Literal), nil
	case TokenQuote, TokenBackquote, TokenUnquote, TokenUnquoteSplice:
		inner, err := r.readForm()
		if err != nil {
			return nil, err
		}
		return vm.List(r.symbols.Intern(shorthands[tok.Type]), inner), nil
	case TokenAtom:
		if tok.Literal == "." {
			return nil, &ReadError{Pos: tok.Pos, Msg: "unexpected ."}
		}
		return r.atom(tok)
	}
	return nil, &ReadError{Pos: tok.Pos, Msg: fmt.Sprintf("unexpected %s", tok.Type)}
}

func (r *Reader) readList(open Position) (*vm.Value, error) {
	var elems []*vm.Value
	for {
		tok, err := r.peek()
		if err != nil {
			return nil, err
		}
		switch {
		case tok.Type == TokenEOF:
			return nil, &ReadError{Pos: open, Msg: "unterminated list", Incomplete: true}
		case tok.Type == TokenRParen:
			r.next()
			return vm.List(elems...), nil
		case tok.Type == TokenAtom && tok.Literal == ".":
			r.next()
			if len(elems) == 0 {
				return nil, &ReadError{Pos: tok.Pos, Msg: "dot without preceding element"}
			}
			tail, err := r.readForm()
			if err != nil {
				return nil, err
			}
			closing, err := r.next()
			if err != nil {
				return nil, err
			}
			if closing.Type == TokenEOF {
				return nil, &ReadError{Pos: open, Msg: "unterminated list", Incomplete: true}
			}
			if closing.Type != TokenRParen {
				return nil, &ReadError{Pos: closing.Pos, Msg: "expected ) after dotted tail"}
			}
			return vm.ListStar(tail, elems...), nil
		default:
			form, err := r.readForm()
			if err != nil {
				return nil, err
			}
			elems = append(elems, form)
		}
	}
}

var (
	binInteger = regexp.MustCompile(`^[+-]?0b[01]+$`)
	octInteger = regexp.MustCompile(`^[+-]?0o[0-7]+$`)
	hexInteger = regexp.MustCompile(`^[+-]?0x[0-9a-fA-F]+$`)
	decInteger = regexp.MustCompile(`^[+-]?[0-9]+$`)
	double     = regexp.MustCompile(`^[+-]?([0-9]*([0-9]\.|\.[0-9])[0-9]*([eE][+-]?[0-9]+)?|[0-9]+[eE][+-]?[0-9]+)$`)
)

// atom classifies a bare token as a number or a symbol.
func (r *Reader) atom(tok Token) (*vm.Value, error) {
	text := tok.Literal
	switch {
	case double.MatchString(text):
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, &ReadError{Pos: tok.Pos, Msg: fmt.Sprintf("invalid double %q", text)}
		}
		return vm.Double(f), nil
	case binInteger.MatchString(text):
		return r.integer(tok, 2)
	case octInteger.MatchString(text):
		return r.integer(tok, 8)
	case hexInteger.MatchString(text):
		return r.integer(tok, 16)
	case decInteger.MatchString(text):
		return r.integer(tok, 10)
	}
	return r.symbols.Intern(text), nil
}

func (r *Reader) integer(tok Token, base int) (*vm.Value, error) {
	text := tok.Literal
	neg := false
	switch {
	case strings.HasPrefix(text, "-"):
		neg, text = true, text[1:]
	case strings.HasPrefix(text, "+"):
		text = text[1:]
	}
	if base != 10 {
		text = text[2:]
	}
	u, err := strconv.ParseUint(text, base, 64)
	if err != nil || (!neg && u > 1<<63-1) || (neg && u > 1<<63) {
		return nil, &ReadError{Pos: tok.Pos, Msg: fmt.Sprintf("integer %q out of range", tok.Literal)}
	}
	n := int64(u)
	if neg {
		n = -n
	}
	return vm.Integer(n), nil
}
