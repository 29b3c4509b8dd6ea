package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// String renders v in its canonical textual form. Rendered literals read
// back as equal values.
func (v *Value) String() string {
	if v == nil {
		return "<null>"
	}
	var sb strings.Builder
	writeValue(&sb, v)
	return sb.String()
}

func writeValue(sb *strings.Builder, v *Value) {
	switch v.typ {
	case TypeInteger:
		sb.WriteString(strconv.FormatInt(v.Int(), 10))
	case TypeDouble:
		sb.WriteString(FormatDouble(v.Float()))
	case TypeByteString:
		sb.WriteString(QuoteBytes(v.str))
	case TypeSymbol:
		sb.WriteString(v.sym.name)
	case TypeFunction:
		fmt.Fprintf(sb, "#<function %s>", v.fn.Name)
	case TypeCons:
		if v.IsNil() {
			sb.WriteString("nil")
			return
		}
		sb.WriteByte('(')
		writeValue(sb, v.car)
		cur := v.cdr
		for {
			if cur.IsNil() {
				break
			}
			if cur.typ != TypeCons {
				sb.WriteString(" . ")
				writeValue(sb, cur)
				break
			}
			sb.WriteByte(' ')
			writeValue(sb, cur.car)
			cur = cur.cdr
		}
		sb.WriteByte(')')
	default:
		sb.WriteString("#<invalid>")
	}
}

// FormatDouble formats f with the shortest representation that reads back
// as the same double. Finite results always carry a '.' or an exponent so
// they never read back as integers.
func FormatDouble(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if strings.ContainsAny(s, ".e") {
		return s
	}
	return s + ".0"
}

// QuoteBytes renders s double-quoted, escaping quotes, backslashes and
// bytes that are not printable ASCII.
func QuoteBytes(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		default:
			if c < 0x20 || c >= 0x7f {
				fmt.Fprintf(&sb, `\x%02x`, c)
			} else {
				sb.WriteByte(c)
			}
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
