package vm

import (
	"errors"
	"fmt"
)

// Errors reported by Load and during execution. Runtime errors are always
// wrapped in a *RuntimeError carrying the failing instruction's address.
var (
	ErrProgramTooLarge    = errors.New("program larger than memory")
	ErrStackUnderflow     = errors.New("operand stack underflow")
	ErrStackOverflow      = errors.New("operand stack overflow")
	ErrCallStackUnderflow = errors.New("return without call")
	ErrCallStackOverflow  = errors.New("call stack overflow")
	ErrAddress            = errors.New("address out of bounds")
	ErrDivisionByZero     = errors.New("division by zero")
	ErrNegativeExponent   = errors.New("negative exponent")
	ErrOutOfMemory        = errors.New("heap exhausted")
	ErrUnknownOpcode      = errors.New("unknown opcode")
	ErrUnknownNative      = errors.New("unknown native function")
	ErrStepLimit          = errors.New("step limit exceeded")
)

// RuntimeError describes an error raised while executing the instruction at
// PC. Err is one of the package's sentinel errors, possibly wrapped.
type RuntimeError struct {
	PC  int
	Op  Opcode
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("vm: %s at %d: %v", e.Op, e.PC, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }
