package asm

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/chazu/wordvm/internal/errwriter"
	"github.com/chazu/wordvm/vm"
)

// Disassemble writes a disassembly of the instruction at position pc in code
// to w and returns the position of the next instruction and any write error.
//
// Words that are not valid opcodes are written as ".word N". Call targets in
// the reserved range are written as native names when known. A pc outside
// code is an error wrapping vm.ErrAddress.
func Disassemble(code []vm.Word, pc int, w io.Writer) (next int, err error) {
	if pc < 0 || pc >= len(code) {
		return pc, fmt.Errorf("asm: disassemble: %w: %d", vm.ErrAddress, pc)
	}
	ew := errwriter.New(w)
	op := vm.Opcode(code[pc])
	if !op.Valid() {
		ew.WriteString(".word ")
		ew.WriteString(strconv.FormatInt(int64(code[pc]), 10))
		return pc + 1, ew.Err
	}
	ew.WriteString(op.String())
	pc++
	if op.Arity() == vm.NoImmediate {
		return pc, ew.Err
	}
	if pc >= len(code) {
		ew.WriteString(" ???")
		return pc, ew.Err
	}
	ew.WriteString(" ")
	imm := code[pc]
	if name, ok := vm.NativeName(imm); ok && op == vm.OpCall {
		ew.WriteString(name)
	} else {
		ew.WriteString(imm.String())
	}
	return pc + 1, ew.Err
}

// DisassembleAll writes a listing of code to w, one instruction per line
// prefixed with its address. Label declarations from labels are written on
// their own line before the address they name, and jump, call and memory
// operands that match a label are annotated with its name.
func DisassembleAll(code []vm.Word, labels Labels, w io.Writer) error {
	ew := errwriter.New(w)
	byAddr := make(map[vm.Word][]string, len(labels))
	for name, addr := range labels {
		byAddr[addr] = append(byAddr[addr], name)
	}
	for _, names := range byAddr {
		sort.Strings(names)
	}
	for pc := 0; pc < len(code); {
		for _, name := range byAddr[vm.Word(pc)] {
			fmt.Fprintf(ew, "%s:\n", name)
		}
		fmt.Fprintf(ew, "%6d  ", pc)
		op := vm.Opcode(code[pc])
		next, _ := Disassemble(code, pc, ew)
		if op.Valid() && op.Arity() == vm.Immediate && next == pc+2 && annotated(op) {
			if names := byAddr[code[pc+1]]; len(names) > 0 {
				fmt.Fprintf(ew, "  ; %s", names[0])
			}
		}
		ew.WriteString("\n")
		if ew.Err != nil {
			return ew.Err
		}
		pc = next
	}
	return nil
}

func annotated(op vm.Opcode) bool {
	return op.IsJump() || op == vm.OpLoadM || op == vm.OpStore
}
