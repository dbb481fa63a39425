package vm

import (
	"fmt"
	"sort"
)

// Opcode is the numeric code of an instruction as stored in memory.
type Opcode int64

// Instruction set. The numeric values are part of the binary format.
const (
	OpNoop Opcode = iota
	OpLoadS
	OpLoadM
	OpStore
	OpAlloc
	OpFree
	OpCall
	OpReturn
	OpIfJump
	OpJump
	OpCastfi
	OpCastif
	OpNot
	OpAnd
	OpOr
	OpUsubi
	OpUsubf
	OpPowi
	OpPowf
	OpMuli
	OpMulf
	OpDivi
	OpDivf
	OpModi
	OpAddi
	OpAddf
	OpSubi
	OpSubf
	OpLteqi
	OpLteqf
	OpLti
	OpLtf
	OpGti
	OpGtf
	OpGteqi
	OpGteqf
	OpEqi
	OpEqf
	OpNeqi
	OpNeqf
	OpEnd

	opcodeCount
)

// Arity is the arity class of an opcode: whether it is followed by an
// immediate word.
type Arity int

const (
	NoImmediate Arity = iota // 1 word: opcode
	Immediate                // 2 words: opcode, immediate
)

// Width returns the number of words an instruction of this class occupies.
func (a Arity) Width() int { return 1 + int(a) }

// handler executes one instruction. imm is the immediate word, or 0 for
// NoImmediate opcodes.
type handler func(m *VM, imm Word) error

// OpcodeInfo provides metadata about each opcode.
type OpcodeInfo struct {
	Name  string // assembler mnemonic
	Arity Arity
	Pop   int    // operand stack words consumed (checked before execution)
	Push  int    // operand stack words produced
	Doc   string // one-line description

	exec handler
}

// opcodeTable is the single source of truth for mnemonics, arity classes
// and dispatch. It is filled in by init in exec.go.
var opcodeTable [opcodeCount]OpcodeInfo

// mnemonics maps assembler mnemonics to opcodes.
var mnemonics = make(map[string]Opcode, opcodeCount)

func def(op Opcode, name string, arity Arity, pop, push int, doc string, fn handler) {
	if opcodeTable[op].Name != "" {
		panic(fmt.Sprintf("vm: opcode %d defined twice", op))
	}
	opcodeTable[op] = OpcodeInfo{Name: name, Arity: arity, Pop: pop, Push: push, Doc: doc, exec: fn}
	mnemonics[name] = op
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	return op >= 0 && op < opcodeCount
}

// Info returns the metadata of op. ok is false for undefined opcodes.
func (op Opcode) Info() (info OpcodeInfo, ok bool) {
	if !op.Valid() {
		return OpcodeInfo{}, false
	}
	return opcodeTable[op], true
}

// String returns the mnemonic of op, or UNKNOWN(n).
func (op Opcode) String() string {
	if !op.Valid() {
		return fmt.Sprintf("UNKNOWN(%d)", int64(op))
	}
	return opcodeTable[op].Name
}

// Arity returns the arity class of op. Undefined opcodes are NoImmediate.
func (op Opcode) Arity() Arity {
	if !op.Valid() {
		return NoImmediate
	}
	return opcodeTable[op].Arity
}

// Width returns the number of words an instruction with this opcode occupies.
func (op Opcode) Width() int { return op.Arity().Width() }

// IsJump reports whether op transfers control to its immediate address.
func (op Opcode) IsJump() bool {
	return op == OpJump || op == OpIfJump || op == OpCall
}

// Lookup returns the opcode for an assembler mnemonic. Mnemonics are case
// sensitive.
func Lookup(mnemonic string) (Opcode, bool) {
	op, ok := mnemonics[mnemonic]
	return op, ok
}

// Mnemonics returns all assembler mnemonics in sorted order.
func Mnemonics() []string {
	names := make([]string, 0, len(mnemonics))
	for n := range mnemonics {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Opcodes returns all defined opcodes in numeric order.
func Opcodes() []Opcode {
	ops := make([]Opcode, opcodeCount)
	for i := range ops {
		ops[i] = Opcode(i)
	}
	return ops
}
