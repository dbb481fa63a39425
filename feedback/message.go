// Package feedback renders assembly and runtime errors for a terminal.
package feedback

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/fatih/color"

	"github.com/chazu/wordvm/asm"
	"github.com/chazu/wordvm/vm"
)

// Render takes an error returned by the assembler and produces a fully
// rendered message of the form:
//
//	error: <kind>
//	  --> <filename>:<line number>:<column number>
//	   |
//	 1 | <offending line of source code>
//	   |      ^^^^^^^ <details>
//
// Every error of an asm.ErrAsm is rendered, separated by blank lines. Errors
// of other types are rendered as a single header line. src is the source the
// positions refer to and may be nil.
func Render(err error, src []byte, withColor bool) string {
	color.NoColor = !withColor
	var list asm.ErrAsm
	if errors.As(err, &list) {
		lines := splitLines(src)
		msgs := make([]string, len(list))
		for i, e := range list {
			msgs[i] = makeMessage(e, lines)
		}
		return strings.Join(msgs, "\n\n")
	}
	var single *asm.Error
	if errors.As(err, &single) {
		return makeMessage(single, splitLines(src))
	}
	return header("error", err.Error())
}

// RenderRuntime renders a VM runtime error together with the failing
// instruction, disassembled from code.
func RenderRuntime(err *vm.RuntimeError, code []vm.Word, withColor bool) string {
	color.NoColor = !withColor
	blue := color.New(color.FgBlue).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	kind := err.Err
	for u := errors.Unwrap(kind); u != nil; u = errors.Unwrap(u) {
		kind = u
	}
	lines := []string{
		header("runtime error", kind.Error()),
		fmt.Sprintf("  %s address %d", blue("-->"), err.PC),
	}
	if err.PC >= 0 && err.PC < len(code) {
		var sb strings.Builder
		asm.Disassemble(code, err.PC, &sb)
		lines = append(lines,
			blue("   |"),
			fmt.Sprintf(" %s %s", blue("  |"), red(sb.String())),
		)
	}
	if kind != err.Err {
		lines = append(lines, fmt.Sprintf("   %s %s", blue("="), err.Err))
	}
	return strings.Join(lines, "\n")
}

func header(what, classification string) string {
	redBold := color.New(color.FgRed, color.Bold).SprintFunc()
	return redBold(fmt.Sprintf("%s: %s", what, classification))
}

func makeMessage(e *asm.Error, src []string) string {
	blue := color.New(color.FgBlue).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	margin := len(strconv.Itoa(e.Pos.Line))
	pad := strings.Repeat(" ", margin)
	lines := []string{
		header("error", e.Err.Error()),
		fmt.Sprintf(" %s%s %s", pad, blue("-->"), e.Pos),
	}
	if e.Pos.Line < 1 || e.Pos.Line > len(src) {
		if e.Msg != "" {
			lines = append(lines, fmt.Sprintf(" %s %s %s", pad, blue("="), e.Msg))
		}
		return strings.Join(lines, "\n")
	}

	srcLine := strings.TrimRight(src[e.Pos.Line-1], "\r")
	col := e.Pos.Col
	if col < 1 {
		col = 1
	}
	prefix, focus, suffix := highlight(srcLine, col)
	lines = append(lines,
		blue(fmt.Sprintf(" %s |", pad)),
		fmt.Sprintf(" %s %s %s%s%s", blue(strconv.Itoa(e.Pos.Line)), blue("|"), prefix, red(focus), suffix),
	)
	underline := strings.Repeat("^", max(utf8.RuneCountInString(focus), 1))
	leftPad := strings.Repeat(" ", utf8.RuneCountInString(prefix))
	desc := e.Msg
	lines = append(lines, strings.TrimRight(fmt.Sprintf(" %s %s %s%s %s", pad, blue("|"), leftPad, red(underline), red(desc)), " "))
	return strings.Join(lines, "\n")
}

// highlight splits line around the token starting at the 1-based byte
// column col. The token runs to the next whitespace, or to the closing quote
// of a string literal.
func highlight(line string, col int) (prefix, focus, suffix string) {
	start := col - 1
	if start > len(line) {
		start = len(line)
	}
	rest := line[start:]
	end := strings.IndexFunc(rest, unicode.IsSpace)
	if strings.HasPrefix(rest, `"`) {
		end = closingQuote(rest)
	}
	if end < 0 {
		end = len(rest)
	}
	return line[:start], rest[:end], rest[end:]
}

func closingQuote(s string) int {
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i + 1
		}
	}
	return -1
}

func splitLines(src []byte) []string {
	if src == nil {
		return nil
	}
	return strings.Split(string(src), "\n")
}
