package asm

import (
	"github.com/chazu/wordvm/vm"
)

// Labels maps label names to word addresses.
type Labels map[string]vm.Word

// Size returns the number of words it emits.
func (it *Item) Size() (int, error) {
	switch it.Kind {
	case KindLabel:
		return 0, nil
	case KindInt, KindFloat:
		return 1, nil
	case KindString:
		n, err := vm.EncodedLen(it.Text)
		if err != nil {
			return 0, ErrSyntax
		}
		return n, nil
	case KindInstr:
		op, ok := vm.Lookup(it.Name)
		if !ok {
			return 0, ErrUnknownMnemonic
		}
		return op.Width(), nil
	}
	return 0, ErrSyntax
}

// Resolve is the first assembler pass. It computes the address of every
// label declared in prog without emitting code: a label is bound to the
// address of the next word emitted after it.
//
// Unknown mnemonics and duplicate labels are errors. The table built so far
// is returned even on error; the error, if not nil, is an ErrAsm.
func Resolve(prog *Program) (Labels, error) {
	labels := make(Labels)
	var errs errList
	var addr int
	for i := range prog.Items {
		it := &prog.Items[i]
		if it.Kind == KindLabel {
			if _, dup := labels[it.Name]; dup {
				if !errs.add(it.Pos, ErrDuplicateLabel, "%s", it.Name) {
					break
				}
				continue
			}
			labels[it.Name] = vm.Word(addr)
			continue
		}
		n, err := it.Size()
		if err != nil {
			if !errs.add(it.Pos, err, "%s", it.Name) {
				break
			}
			continue
		}
		addr += n
	}
	return labels, errs.err()
}
