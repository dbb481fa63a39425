package vm

import (
	"fmt"
	"strconv"

	"github.com/chazu/wordvm/internal/errwriter"
)

// ReservedBase is the first address of the reserved range. Addresses at or
// above it are never code: Call treats them as native function entries.
const ReservedBase Word = 0x0ff0000000000000

// Native function addresses.
const (
	Printf = ReservedBase + 1 + iota
)

// Native is a host-implemented function reached through Call. It may pop its
// arguments from and push results onto the operand stack.
type Native struct {
	Name string
	Fn   func(*VM) error
}

var stdlib = map[Word]Native{
	Printf: {"printf", printf},
}

// NativeNames returns the name to address table the assembler merges with
// user labels.
func NativeNames() map[string]Word {
	t := make(map[string]Word, len(stdlib))
	for addr, n := range stdlib {
		t[n.Name] = addr
	}
	return t
}

// NativeName returns the name of the standard native function at addr.
func NativeName(addr Word) (string, bool) {
	n, ok := stdlib[addr]
	return n.Name, ok
}

// Natives returns the name to address table of the natives bound to m,
// including those added with BindNative.
func (m *VM) Natives() map[string]Word {
	t := make(map[string]Word, len(m.natives))
	for addr, n := range m.natives {
		t[n.Name] = addr
	}
	return t
}

// printf pops the address of a NUL-terminated format string and writes it to
// the output, replacing each directive with a popped operand:
//
//	%d %i	integer
//	%f %g	float, 6 significant digits
//	%c	character code
//	%s	address of another string
//	%%	a literal %
//
// A % followed by any other character prints nothing.
func printf(m *VM) error {
	addr, err := m.Pop()
	if err != nil {
		return err
	}
	w := errwriter.New(m.out)
	for p := addr; ; p++ {
		c, err := m.Fetch(p)
		if err != nil {
			return err
		}
		if c == 0 {
			break
		}
		if c != '%' {
			w.WriteRune(rune(c))
			continue
		}
		p++
		if c, err = m.Fetch(p); err != nil {
			return err
		}
		switch c {
		case 0:
			return w.Err
		case 'd', 'i':
			v, err := m.Pop()
			if err != nil {
				return err
			}
			w.WriteString(strconv.FormatInt(v.Int(), 10))
		case 'f', 'g':
			v, err := m.Pop()
			if err != nil {
				return err
			}
			w.WriteString(formatFloat(v.Float()))
		case 'c':
			v, err := m.Pop()
			if err != nil {
				return err
			}
			w.WriteRune(rune(v))
		case 's':
			v, err := m.Pop()
			if err != nil {
				return err
			}
			s, err := DecodeString(m.mem, v)
			if err != nil {
				return err
			}
			w.WriteString(s)
		case '%':
			w.WriteRune('%')
		}
	}
	if w.Err != nil {
		return fmt.Errorf("printf: %w", w.Err)
	}
	return nil
}

// formatFloat formats f the way a default C++ ostream does.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', 6, 64)
}
