package vm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStringLiteral is returned by EncodeString for malformed literals.
var ErrStringLiteral = errors.New("malformed string literal")

// EncodeString encodes a quoted string literal into the word layout used for
// inline string data: one word per character code, a terminating NUL word and,
// if the resulting length is odd, one extra 0 word of padding.
//
// The surrounding double quotes are stripped. Supported escapes are \n, \\,
// \", \r, \t and \v.
func EncodeString(lit string) ([]Word, error) {
	if len(lit) < 2 || lit[0] != '"' || lit[len(lit)-1] != '"' {
		return nil, fmt.Errorf("%w: %s: missing quotes", ErrStringLiteral, lit)
	}
	body := []rune(lit[1 : len(lit)-1])
	s := make([]Word, 0, len(body)+2)
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c == '\\' {
			i++
			if i >= len(body) {
				return nil, fmt.Errorf("%w: %s: dangling backslash", ErrStringLiteral, lit)
			}
			switch body[i] {
			case 'n':
				c = '\n'
			case '\\':
				c = '\\'
			case '"':
				c = '"'
			case 'r':
				c = '\r'
			case 't':
				c = '\t'
			case 'v':
				c = '\v'
			default:
				return nil, fmt.Errorf("%w: %s: unknown escape \\%c", ErrStringLiteral, lit, body[i])
			}
		} else if c == '"' {
			return nil, fmt.Errorf("%w: %s: unescaped quote", ErrStringLiteral, lit)
		}
		s = append(s, Word(c))
	}
	s = append(s, 0)
	if len(s)%2 == 1 {
		s = append(s, 0)
	}
	return s, nil
}

// EncodedLen returns len(EncodeString(lit)) without allocating the words.
func EncodedLen(lit string) (int, error) {
	w, err := EncodeString(lit)
	if err != nil {
		return 0, err
	}
	return len(w), nil
}

// DecodeString reads the NUL-terminated string stored at addr in mem.
func DecodeString(mem []Word, addr Word) (string, error) {
	var sb strings.Builder
	for p := addr; ; p++ {
		if p < 0 || p >= Word(len(mem)) {
			return sb.String(), fmt.Errorf("%w: string at %d runs past address %d", ErrAddress, addr, p)
		}
		c := mem[p]
		if c == 0 {
			return sb.String(), nil
		}
		sb.WriteRune(rune(c))
	}
}
