// Package asm provides a two-pass assembler and a disassembler for the
// wordvm instruction set.
//
// Source is line oriented. A line holds an optional label declaration
// followed by an optional instruction or data directive:
//
//	; comments start with ';' or '#'
//	        loads 28472         ; push an integer
//	        store n             ; operand resolved through the label table
//	loop:   loadm n
//	        call printf         ; native function
//	        end
//	n:      0                   ; integer data word
//	pi:     3.14159             ; float data word, stored as IEEE-754 bits
//	fmt:    "%d\n"              ; NUL terminated string, padded to even length
//
// Instructions are written as their case sensitive mnemonic, optionally
// followed by one operand: an integer literal (decimal, 0x, 0o or 0b), a
// float literal or a name. Names resolve to label addresses or to native
// function addresses.
//
// The first pass (Resolve) sizes every item and binds each label to the
// address of the next word emitted. Link merges the labels with the native
// table. The second pass (Emit) encodes the program. Assemble runs all of
// them. Errors are collected in an ErrAsm, up to 10 per run, each with the
// source position it refers to.
package asm
