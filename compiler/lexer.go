package compiler

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: Tokenizer for Paltry s-expressions
// ---------------------------------------------------------------------------

// TokenType identifies a lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenLParen
	TokenRParen
	TokenQuote         // '
	TokenBackquote     // `
	TokenUnquote       // ,
	TokenUnquoteSplice // ,@
	TokenString
	TokenAtom // symbol, number or the dot of a dotted pair
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenLParen:
		return "("
	case TokenRParen:
		return ")"
	case TokenQuote:
		return "'"
	case TokenBackquote:
		return "`"
	case TokenUnquote:
		return ","
	case TokenUnquoteSplice:
		return ",@"
	case TokenString:
		return "STRING"
	case TokenAtom:
		return "ATOM"
	default:
		return fmt.Sprintf("TokenType(%d)", int(t))
	}
}

// Position is a location in source text.
type Position struct {
	Offset int
	Line   int // 1-based
	Column int // 1-based
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token is one lexical token. For strings, Literal holds the decoded
// contents.
type Token struct {
	Type    TokenType
	Literal string
	Pos     Position
}

// Lexer tokenizes Paltry source code.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int  // current line (1-based)
	col     int  // current column (1-based)
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
		col:   0,
	}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
		l.pos = l.readPos
		l.col++
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
	l.col++
}

func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

func (l *Lexer) position() Position {
	return Position{Offset: l.pos, Line: l.line, Column: l.col}
}

// IsDelimiter reports whether r ends a symbol or number.
func IsDelimiter(r rune) bool {
	switch r {
	case '(', ')', '"', '\'', '`', ',', ' ', '\t', '\n', '\r', '\f', '\v', ';':
		return true
	}
	return false
}

func (l *Lexer) skipWhitespaceAndComments() {
	for !l.atEOF() {
		switch {
		case l.ch == ';':
			for !l.atEOF() && l.ch != '\n' {
				l.readChar()
			}
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' || l.ch == '\f' || l.ch == '\v':
			l.readChar()
		default:
			return
		}
	}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() (Token, error) {
	l.skipWhitespaceAndComments()

	pos := l.position()
	if l.atEOF() {
		return Token{Type: TokenEOF, Pos: pos}, nil
	}

	switch l.ch {
	case '(':
		l.readChar()
		return Token{Type: TokenLParen, Literal: "(", Pos: pos}, nil
	case ')':
		l.readChar()
		return Token{Type: TokenRParen, Literal: ")", Pos: pos}, nil
	case '\'':
		l.readChar()
		return Token{Type: TokenQuote, Literal: "'", Pos: pos}, nil
	case '`':
		l.readChar()
		return Token{Type: TokenBackquote, Literal: "`", Pos: pos}, nil
	case ',':
		l.readChar()
		if !l.atEOF() && l.ch == '@' {
			l.readChar()
			return Token{Type: TokenUnquoteSplice, Literal: ",@", Pos: pos}, nil
		}
		return Token{Type: TokenUnquote, Literal: ",", Pos: pos}, nil
	case '"':
		return l.readString(pos)
	}

	start := l.pos
	for !l.atEOF() && !IsDelimiter(l.ch) {
		l.readChar()
	}
	return Token{Type: TokenAtom, Literal: l.input[start:l.pos], Pos: pos}, nil
}

// readString reads a double-quoted string, decoding backslash escapes.
// Unknown escapes keep the backslash.
func (l *Lexer) readString(pos Position) (Token, error) {
	l.readChar() // opening quote
	var sb strings.Builder
	for {
		if l.atEOF() {
			return Token{}, &ReadError{Pos: pos, Msg: "unterminated string", Incomplete: true}
		}
		switch l.ch {
		case '"':
			l.readChar()
			return Token{Type: TokenString, Literal: sb.String(), Pos: pos}, nil
		case '\\':
			l.readChar()
			if l.atEOF() {
				return Token{}, &ReadError{Pos: pos, Msg: "unterminated string", Incomplete: true}
			}
			if err := l.readEscape(&sb); err != nil {
				return Token{}, err
			}
		default:
			sb.WriteString(l.input[l.pos:l.readPos])
			l.readChar()
		}
	}
}

func (l *Lexer) readEscape(sb *strings.Builder) error {
	esc := l.position()
	c := l.ch
	switch c {
	case 'n':
		sb.WriteByte('\n')
	case 't':
		sb.WriteByte('\t')
	case 'r':
		sb.WriteByte('\r')
	case 'a':
		sb.WriteByte('\a')
	case 'b':
		sb.WriteByte('\b')
	case 'f':
		sb.WriteByte('\f')
	case 'v':
		sb.WriteByte('\v')
	case '0':
		sb.WriteByte(0)
	case '\\', '"', '\'':
		sb.WriteRune(c)
	case '\n':
		// line continuation
	case 'x':
		var b byte
		for i := 0; i < 2; i++ {
			l.readChar()
			d, ok := hexDigit(l.ch)
			if l.atEOF() || !ok {
				return &ReadError{Pos: esc, Msg: `invalid \x escape`}
			}
			b = b<<4 | d
		}
		sb.WriteByte(b)
	default:
		sb.WriteByte('\\')
		sb.WriteString(l.input[l.pos:l.readPos])
	}
	l.readChar()
	return nil
}

func hexDigit(r rune) (byte, bool) {
	switch {
	case r >= '0' && r <= '9':
		return byte(r - '0'), true
	case r >= 'a' && r <= 'f':
		return byte(r-'a') + 10, true
	case r >= 'A' && r <= 'F':
		return byte(r-'A') + 10, true
	}
	return 0, false
}
