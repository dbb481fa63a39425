// Package vm implements the wordvm virtual machine.
//
// This package contains:
//   - the Word type, the VM's only storage unit, with explicit int/float
//     reinterpretation
//   - the canonical opcode table shared with the assembler and disassembler
//   - the fetch-decode-execute loop over a flat, word-addressed memory image
//   - native (host) functions reached through the reserved address range
//
// Memory is a single []Word holding code, literal data and a bump-allocated
// heap. The operand stack and the call stack are separate. Binary operators
// pop a (top of stack) then b and push a op b, so programs push the right
// operand first:
//
//	loads 2
//	loadm n
//	divi		( n / 2 )
package vm
