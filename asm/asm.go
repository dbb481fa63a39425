package asm

import (
	"io"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/wordvm/vm"
)

var log = commonlog.GetLogger("wordvm.asm")

// Result is the output of Assemble.
type Result struct {
	Code    []vm.Word
	Labels  Labels            // user labels
	Natives map[string]vm.Word // native table the code was linked against
	Program *Program
}

type config struct {
	natives map[string]vm.Word
}

// Option configures Assemble.
type Option func(*config)

// Natives sets the name to address table of native functions operands may
// refer to. The default is vm.NativeNames().
func Natives(t map[string]vm.Word) Option {
	return func(c *config) { c.natives = t }
}

// Assemble compiles assembly read from r into a program for the VM.
//
// The name parameter is used only in error messages to name the source of
// the error. If r is a file, name should be the file name.
//
// The returned error, if not nil, is an ErrAsm holding up to 10 entries,
// unless reading from r failed.
func Assemble(name string, r io.Reader, opts ...Option) (*Result, error) {
	cfg := config{natives: vm.NativeNames()}
	for _, opt := range opts {
		opt(&cfg)
	}
	prog, err := Parse(name, r)
	if err != nil {
		return nil, err
	}
	labels, err := Resolve(prog)
	if err != nil {
		return nil, err
	}
	table, err := Link(prog, labels, cfg.natives)
	if err != nil {
		return nil, err
	}
	code, err := Emit(prog, table)
	if err != nil {
		return nil, err
	}
	log.Debugf("%s: %d words, %d labels", name, len(code), len(labels))
	return &Result{Code: code, Labels: labels, Natives: cfg.natives, Program: prog}, nil
}

// AssembleString compiles assembly held in a string.
func AssembleString(src string, opts ...Option) (*Result, error) {
	return Assemble("", strings.NewReader(src), opts...)
}

// Link merges the label table of prog with a native table. A label that
// shadows a native name is an ErrDuplicateLabel.
func Link(prog *Program, labels Labels, natives map[string]vm.Word) (map[string]vm.Word, error) {
	table := make(map[string]vm.Word, len(labels)+len(natives))
	for name, addr := range natives {
		table[name] = addr
	}
	var errs errList
	for _, it := range prog.Items {
		if it.Kind != KindLabel {
			continue
		}
		if _, ok := natives[it.Name]; ok {
			if !errs.add(it.Pos, ErrDuplicateLabel, "%s is a native function", it.Name) {
				break
			}
			continue
		}
		table[it.Name] = labels[it.Name]
	}
	return table, errs.err()
}

// Emit is the second assembler pass. It encodes prog into words, resolving
// name operands through table. The returned error, if not nil, is an ErrAsm.
func Emit(prog *Program, table map[string]vm.Word) ([]vm.Word, error) {
	var code []vm.Word
	var errs errList
	for i := range prog.Items {
		it := &prog.Items[i]
		switch it.Kind {
		case KindLabel:
		case KindInt:
			code = append(code, vm.FromInt(it.Int))
		case KindFloat:
			code = append(code, vm.FromFloat(it.Float))
		case KindString:
			s, err := vm.EncodeString(it.Text)
			if err != nil {
				errs.add(it.Pos, ErrSyntax, "%v", err)
				continue
			}
			code = append(code, s...)
		case KindInstr:
			w, err := encode(it, table)
			if err != nil {
				errs.errs = append(errs.errs, err)
				if errs.full() {
					return nil, errs.err()
				}
				continue
			}
			code = append(code, w...)
		}
		if errs.full() {
			break
		}
	}
	if err := errs.err(); err != nil {
		return nil, err
	}
	return code, nil
}

// encode returns the words of a single instruction.
func encode(it *Item, table map[string]vm.Word) ([]vm.Word, *Error) {
	op, ok := vm.Lookup(it.Name)
	if !ok {
		return nil, &Error{Pos: it.Pos, Err: ErrUnknownMnemonic, Msg: it.Name}
	}
	if op.Arity() == vm.NoImmediate {
		if it.Arg != nil {
			return nil, &Error{Pos: it.Arg.Pos, Err: ErrOperand, Msg: it.Name + " takes no operand"}
		}
		return []vm.Word{vm.Word(op)}, nil
	}
	if it.Arg == nil {
		return nil, &Error{Pos: it.Pos, Err: ErrOperand, Msg: it.Name + " expects an operand"}
	}
	var imm vm.Word
	switch it.Arg.Kind {
	case OperandInt:
		imm = vm.FromInt(it.Arg.Int)
	case OperandFloat:
		imm = vm.FromFloat(it.Arg.Float)
	case OperandName:
		addr, ok := table[it.Arg.Name]
		if !ok {
			return nil, &Error{Pos: it.Arg.Pos, Err: ErrUndefinedLabel, Msg: it.Arg.Name}
		}
		imm = addr
	}
	return []vm.Word{vm.Word(op), imm}, nil
}
