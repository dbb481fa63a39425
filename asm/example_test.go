package asm_test

import (
	"fmt"
	"os"

	"github.com/chazu/wordvm/asm"
	"github.com/chazu/wordvm/vm"
)

func ExampleAssemble() {
	src := `
	loads 3             ; b
	loads 4             ; a
	subi                ; a - b
	loads fmt
	call printf
	end
fmt:	"4 - 3 = %d\n"
`
	res, err := asm.AssembleString(src)
	if err != nil {
		fmt.Println(err)
		return
	}
	m, err := vm.New(vm.Output(os.Stdout))
	if err != nil {
		fmt.Println(err)
		return
	}
	if err := m.Load(res.Code); err != nil {
		fmt.Println(err)
		return
	}
	if err := m.Run(); err != nil {
		fmt.Println(err)
	}
	// Output:
	// 4 - 3 = 1
}

func ExampleDisassembleAll() {
	res, err := asm.AssembleString("loop:\tloads 1\n\tifjump loop\n\tend")
	if err != nil {
		fmt.Println(err)
		return
	}
	asm.DisassembleAll(res.Code, res.Labels, os.Stdout)
	// Output:
	// loop:
	//      0  loads 1
	//      2  ifjump 0  ; loop
	//      4  end
}

func ExampleAssembleString_errors() {
	_, err := asm.AssembleString("loads 1\njump missing\nadd\n")
	fmt.Println(err)
	// Output:
	// 3:1: unknown mnemonic: add
}
