package asm

import (
	"errors"
	"fmt"
	"strings"
)

// Kinds of assembly errors. Every *Error wraps one of these.
var (
	ErrSyntax          = errors.New("syntax error")
	ErrUnknownMnemonic = errors.New("unknown mnemonic")
	ErrUndefinedLabel  = errors.New("undefined label")
	ErrDuplicateLabel  = errors.New("duplicate label")
	ErrOperand         = errors.New("invalid operand")
)

// maxErrors is the number of errors collected before assembly gives up.
const maxErrors = 10

// Error is an assembly error at a source position.
type Error struct {
	Pos Pos
	Err error  // one of the Err* kinds
	Msg string // details, may be empty
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Pos, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Pos, e.Err, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrAsm is the error returned by Parse, Resolve, Emit and Assemble. It holds
// up to 10 errors in source order.
type ErrAsm []*Error

func (e ErrAsm) Error() string {
	var sb strings.Builder
	for i, err := range e {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Unwrap lets errors.Is and errors.As look at individual errors.
func (e ErrAsm) Unwrap() []error {
	errs := make([]error, len(e))
	for i, err := range e {
		errs[i] = err
	}
	return errs
}

// errList collects errors up to maxErrors.
type errList struct {
	errs ErrAsm
}

// add records an error and reports whether more errors may be collected.
func (l *errList) add(pos Pos, kind error, format string, args ...any) bool {
	if len(l.errs) < maxErrors {
		l.errs = append(l.errs, &Error{Pos: pos, Err: kind, Msg: fmt.Sprintf(format, args...)})
	}
	return len(l.errs) < maxErrors
}

func (l *errList) full() bool { return len(l.errs) >= maxErrors }

func (l *errList) err() error {
	if len(l.errs) == 0 {
		return nil
	}
	return l.errs
}
