package asm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/chazu/wordvm/vm"
)

// Pos is a source position. Line and Col are 1-based; Col counts bytes.
type Pos struct {
	File string
	Line int
	Col  int
}

func (p Pos) String() string {
	if p.File == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Col)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Col)
}

// Kind is the kind of an assembly item.
type Kind int

const (
	KindLabel  Kind = iota // name:
	KindInstr              // mnemonic [operand]
	KindInt                // integer data word
	KindFloat              // float data word
	KindString             // quoted string, encoded with vm.EncodeString
)

var kindNames = [...]string{"label", "instruction", "integer", "float", "string"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// OperandKind tells how an instruction operand was written.
type OperandKind int

const (
	OperandInt OperandKind = iota
	OperandFloat
	OperandName
)

// Operand is the immediate argument of an instruction.
type Operand struct {
	Kind  OperandKind
	Pos   Pos
	Int   int64
	Float float64
	Name  string
}

// Item is one element of a parsed assembly program.
type Item struct {
	Kind Kind
	Pos  Pos
	// Name is the label name for KindLabel and the mnemonic for KindInstr.
	Name  string
	Arg   *Operand // KindInstr only, nil if absent
	Int   int64    // KindInt
	Float float64  // KindFloat
	Text  string   // KindString: the quoted literal as written
}

// Program is a parsed assembly source.
type Program struct {
	Name  string
	Items []Item
}

// token is a whitespace-separated field of a line.
type token struct {
	text string
	col  int
}

// Parse reads assembly source from r. Name is used in source positions only.
//
// Each line holds at most one label declaration, optionally followed by one
// instruction or data directive. Comments start with ';' or '#' and run to
// the end of the line. The returned error, if not nil, is an ErrAsm.
func Parse(name string, r io.Reader) (*Program, error) {
	p := &Program{Name: name}
	var errs errList
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for line := 1; sc.Scan() && !errs.full(); line++ {
		parseLine(p, &errs, Pos{File: name, Line: line}, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("asm: %s: %w", name, err)
	}
	return p, errs.err()
}

// ParseString parses assembly source held in a string.
func ParseString(name, src string) (*Program, error) {
	return Parse(name, strings.NewReader(src))
}

func parseLine(p *Program, errs *errList, pos Pos, line string) {
	line, err := stripComment(line)
	if err != nil {
		errs.add(pos.at(len(line)), ErrSyntax, "%v", err)
		return
	}
	rest, col := trimLeft(line, 0)
	if rest == "" {
		return
	}

	// label declaration
	if i := labelEnd(rest); i >= 0 {
		name := rest[:i]
		if !isIdent(name) {
			errs.add(pos.at(col), ErrSyntax, "invalid label name %q", name)
			return
		}
		p.Items = append(p.Items, Item{Kind: KindLabel, Pos: pos.at(col), Name: name})
		rest, col = trimLeft(rest[i+1:], col+i+1)
		if rest == "" {
			return
		}
	}

	// string directive
	if rest[0] == '"' {
		lit := strings.TrimRightFunc(rest, unicode.IsSpace)
		if _, err := vm.EncodeString(lit); err != nil {
			errs.add(pos.at(col), ErrSyntax, "%v", err)
			return
		}
		p.Items = append(p.Items, Item{Kind: KindString, Pos: pos.at(col), Text: lit})
		return
	}

	toks := fields(rest, col)
	first := toks[0]

	// numeric data directive
	if isNumberStart(first.text) {
		if len(toks) > 1 {
			errs.add(pos.at(toks[1].col), ErrSyntax, "unexpected %q after data directive", toks[1].text)
			return
		}
		it := Item{Pos: pos.at(first.col)}
		switch n, err := parseNumber(first.text); {
		case err != nil:
			errs.add(it.Pos, ErrSyntax, "%v", err)
			return
		case n.Kind == OperandInt:
			it.Kind, it.Int = KindInt, n.Int
		default:
			it.Kind, it.Float = KindFloat, n.Float
		}
		p.Items = append(p.Items, it)
		return
	}

	// instruction
	if !isIdent(first.text) {
		errs.add(pos.at(first.col), ErrSyntax, "unexpected %q", first.text)
		return
	}
	it := Item{Kind: KindInstr, Pos: pos.at(first.col), Name: first.text}
	if len(toks) > 2 {
		errs.add(pos.at(toks[2].col), ErrSyntax, "unexpected %q after operand", toks[2].text)
		return
	}
	if len(toks) == 2 {
		arg := toks[1]
		switch {
		case isNumberStart(arg.text):
			n, err := parseNumber(arg.text)
			if err != nil {
				errs.add(pos.at(arg.col), ErrSyntax, "%v", err)
				return
			}
			n.Pos = pos.at(arg.col)
			it.Arg = &n
		case isIdent(arg.text):
			it.Arg = &Operand{Kind: OperandName, Pos: pos.at(arg.col), Name: arg.text}
		default:
			errs.add(pos.at(arg.col), ErrSyntax, "invalid operand %q", arg.text)
			return
		}
	}
	p.Items = append(p.Items, it)
}

// at returns p at the 0-based byte offset col.
func (p Pos) at(col int) Pos {
	p.Col = col + 1
	return p
}

// stripComment removes a trailing comment, ignoring comment characters
// inside string literals.
func stripComment(line string) (string, error) {
	inString := false
	for i := 0; i < len(line); i++ {
		switch c := line[i]; {
		case inString && c == '\\':
			i++
		case c == '"':
			inString = !inString
		case !inString && (c == ';' || c == '#'):
			return line[:i], nil
		}
	}
	if inString {
		return line, errors.New("unterminated string")
	}
	return line, nil
}

func trimLeft(s string, col int) (string, int) {
	t := strings.TrimLeftFunc(s, unicode.IsSpace)
	return t, col + len(s) - len(t)
}

// labelEnd returns the index of the colon ending a label declaration at the
// start of s, or -1.
func labelEnd(s string) int {
	i := strings.IndexFunc(s, func(r rune) bool { return unicode.IsSpace(r) || r == ':' || r == '"' })
	if i <= 0 || s[i] != ':' {
		return -1
	}
	return i
}

func fields(s string, col int) []token {
	var toks []token
	for {
		s, col = trimLeft(s, col)
		if s == "" {
			return toks
		}
		i := strings.IndexFunc(s, unicode.IsSpace)
		if i < 0 {
			i = len(s)
		}
		toks = append(toks, token{s[:i], col})
		s, col = s[i:], col+i
	}
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && (unicode.IsDigit(r) || r == '.')) {
			continue
		}
		return false
	}
	return true
}

func isNumberStart(s string) bool {
	switch c := s[0]; {
	case c >= '0' && c <= '9', c == '+', c == '-', c == '.':
		return true
	}
	return false
}

// parseNumber parses an integer literal (decimal, 0x, 0o or 0b) or a float
// literal.
func parseNumber(s string) (Operand, error) {
	i, err := strconv.ParseInt(s, 0, 64)
	if err == nil {
		return Operand{Kind: OperandInt, Int: i}, nil
	}
	if errors.Is(err, strconv.ErrRange) {
		return Operand{}, fmt.Errorf("integer %s out of range", s)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Operand{}, fmt.Errorf("malformed number %q", s)
	}
	return Operand{Kind: OperandFloat, Float: f}, nil
}
