package vm

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

// code builds a program from opcodes, integers, words and floats.
func code(items ...any) []Word {
	var c []Word
	for _, it := range items {
		switch v := it.(type) {
		case Opcode:
			c = append(c, Word(v))
		case Word:
			c = append(c, v)
		case int:
			c = append(c, Word(v))
		case rune:
			c = append(c, Word(v))
		case float64:
			c = append(c, FromFloat(v))
		default:
			panic("code: unsupported item")
		}
	}
	return c
}

func newTestVM(t *testing.T, prog []Word, opts ...Option) (*VM, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	opts = append([]Option{MemorySize(1024), Output(&out)}, opts...)
	m, err := New(opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.Load(prog); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return m, &out
}

func runProg(t *testing.T, prog []Word, opts ...Option) (*VM, *bytes.Buffer) {
	t.Helper()
	m, out := newTestVM(t, prog, opts...)
	if err := m.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return m, out
}

func assertStack(t *testing.T, m *VM, want ...Word) {
	t.Helper()
	got := m.Stack()
	if len(got) != len(want) {
		t.Fatalf("stack = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("stack = %v, want %v", got, want)
		}
	}
}

func TestLoadS(t *testing.T) {
	m, _ := runProg(t, code(OpLoadS, 42, OpLoadS, -7, OpEnd))
	assertStack(t, m, 42, -7)
	if m.PC() != 4 {
		t.Errorf("PC = %d, want 4", m.PC())
	}
}

func TestIntArithmetic(t *testing.T) {
	// Programs push the right operand first: a is the top of stack.
	tests := []struct {
		op   Opcode
		a, b int64
		want int64
	}{
		{OpAddi, 7, 3, 10},
		{OpSubi, 7, 3, 4},
		{OpMuli, 7, 3, 21},
		{OpDivi, 7, 3, 2},
		{OpDivi, -7, 2, -3},
		{OpModi, 7, 3, 1},
		{OpModi, -7, 3, -1},
		{OpPowi, 2, 10, 1024},
		{OpPowi, 3, 0, 1},
		{OpPowi, -2, 3, -8},
		{OpLti, 1, 2, 1},
		{OpLti, 2, 1, 0},
		{OpLteqi, 2, 2, 1},
		{OpGti, 3, 2, 1},
		{OpGteqi, 1, 2, 0},
		{OpEqi, 5, 5, 1},
		{OpNeqi, 5, 5, 0},
		{OpAnd, 1, 0, 0},
		{OpAnd, 3, 4, 1},
		{OpOr, 0, 9, 1},
		{OpOr, 0, 0, 0},
	}
	for _, tt := range tests {
		m, _ := runProg(t, code(OpLoadS, int(tt.b), OpLoadS, int(tt.a), tt.op, OpEnd))
		if got := m.Stack(); len(got) != 1 || got[0].Int() != tt.want {
			t.Errorf("%d %s %d = %v, want %d", tt.a, tt.op, tt.b, got, tt.want)
		}
	}
}

func TestFloatArithmetic(t *testing.T) {
	tests := []struct {
		op   Opcode
		a, b float64
		want float64
	}{
		{OpAddf, 1.25, 2.5, 3.75},
		{OpSubf, 5.5, 0.25, 5.25},
		{OpMulf, 1.5, -4, -6},
		{OpDivf, 1, 3, 1.0 / 3.0},
		{OpDivf, 1, 0, math.Inf(1)},
	}
	for _, tt := range tests {
		m, _ := runProg(t, code(OpLoadS, tt.b, OpLoadS, tt.a, tt.op, OpEnd))
		got := m.Stack()
		if len(got) != 1 || got[0].Float() != tt.want {
			t.Errorf("%g %s %g = %v, want %g", tt.a, tt.op, tt.b, got, tt.want)
		}
	}
}

func TestAddfMatchesIEEE(t *testing.T) {
	x, y := 0.1, 0.2
	m, _ := runProg(t, code(OpLoadS, y, OpLoadS, x, OpAddf, OpEnd))
	if got := m.Stack()[0].Float(); got != x+y {
		t.Errorf("0.1 addf 0.2 = %v, want %v", got, x+y)
	}
}

func TestFloatComparisonPushesInt(t *testing.T) {
	tests := []struct {
		op   Opcode
		a, b float64
		want Word
	}{
		{OpLtf, 1.5, 2.5, 1},
		{OpLteqf, 2.5, 2.5, 1},
		{OpGtf, 1.5, 2.5, 0},
		{OpGteqf, 3, 2.5, 1},
		{OpEqf, 0.5, 0.5, 1},
		{OpNeqf, 0.5, 0.5, 0},
		{OpEqf, math.NaN(), math.NaN(), 0},
	}
	for _, tt := range tests {
		m, _ := runProg(t, code(OpLoadS, tt.b, OpLoadS, tt.a, tt.op, OpEnd))
		assertStack(t, m, tt.want)
	}
}

func TestUnaryOps(t *testing.T) {
	m, _ := runProg(t, code(OpLoadS, 5, OpUsubi, OpEnd))
	assertStack(t, m, -5)

	m, _ = runProg(t, code(OpLoadS, 2.5, OpUsubf, OpEnd))
	assertStack(t, m, FromFloat(-2.5))

	m, _ = runProg(t, code(OpLoadS, 0, OpNot, OpLoadS, 7, OpNot, OpEnd))
	assertStack(t, m, 1, 0)
}

func TestCasts(t *testing.T) {
	m, _ := runProg(t, code(OpLoadS, 3.99, OpCastfi, OpEnd))
	assertStack(t, m, 3)

	m, _ = runProg(t, code(OpLoadS, -3.99, OpCastfi, OpEnd))
	assertStack(t, m, -3)

	m, _ = runProg(t, code(OpLoadS, 12, OpCastif, OpEnd))
	assertStack(t, m, FromFloat(12))
}

func TestPowf(t *testing.T) {
	m, _ := runProg(t, code(OpLoadS, 3, OpLoadS, 1.5, OpPowf, OpEnd))
	assertStack(t, m, FromFloat(1.5*1.5*1.5))
}

func TestPowfShortcuts(t *testing.T) {
	tests := []struct {
		base float64
		exp  int
		want float64
	}{
		{1.5, 0, 1},
		{1, 1 << 62, 1},
		{-1, 1 << 62, 1},
		{-1, 1<<62 + 1, -1},
		{0, 5, 0},
		{2, 1 << 40, math.Inf(1)},
		{-2, 1 << 40, math.Inf(1)},
		{-2, 1<<40 + 1, math.Inf(-1)},
		{0.5, 1 << 40, 0},
	}
	for _, tt := range tests {
		m, _ := runProg(t, code(OpLoadS, tt.exp, OpLoadS, tt.base, OpPowf, OpEnd))
		if got := m.Stack()[0].Float(); got != tt.want {
			t.Errorf("powf(%v, %d) = %v, want %v", tt.base, tt.exp, got, tt.want)
		}
	}
}

func TestPowfHonoursStepLimit(t *testing.T) {
	m, _ := newTestVM(t, code(OpLoadS, 1<<40, OpLoadS, 1.0000001, OpPowf, OpEnd), StepLimit(3))
	err := m.Run()
	if !errors.Is(err, ErrStepLimit) {
		t.Fatalf("Run() = %v, want ErrStepLimit", err)
	}
	if m.PC() != 4 {
		t.Errorf("PC = %d, want 4", m.PC())
	}
	assertStack(t, m, 1<<40, FromFloat(1.0000001))
}

func TestPowfHonoursContext(t *testing.T) {
	m, _ := newTestVM(t, code(OpLoadS, 1<<40, OpLoadS, 1.0000001, OpPowf, OpEnd))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := m.RunContext(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("RunContext = %v, want context.DeadlineExceeded", err)
	}
	var rerr *RuntimeError
	if !errors.As(err, &rerr) || rerr.Op != OpPowf {
		t.Errorf("RunContext = %#v, want *RuntimeError at powf", err)
	}
}

// A failing instruction leaves the operand stack as it found it.
func TestFailedInstructionKeepsStack(t *testing.T) {
	tests := []struct {
		name string
		prog []Word
		want []Word
	}{
		{"divi", code(OpLoadS, 0, OpLoadS, 7, OpDivi, OpEnd), []Word{0, 7}},
		{"modi", code(OpLoadS, 0, OpLoadS, 7, OpModi, OpEnd), []Word{0, 7}},
		{"powi", code(OpLoadS, -1, OpLoadS, 2, OpPowi, OpEnd), []Word{-1, 2}},
		{"powf", code(OpLoadS, -1, OpLoadS, 2.0, OpPowf, OpEnd), []Word{-1, FromFloat(2)}},
		{"ifjump", code(OpLoadS, 1, OpIfJump, -3, OpEnd), []Word{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestVM(t, tt.prog)
			if err := m.Run(); err == nil {
				t.Fatal("Run() succeeded, want an error")
			}
			assertStack(t, m, tt.want...)
		})
	}
}

func TestMemory(t *testing.T) {
	// store at 20, load back, alloc twice from heap top
	m, _ := runProg(t, code(
		OpLoadS, 99,
		OpStore, 20,
		OpLoadM, 20,
		OpAlloc, 4,
		OpAlloc, 2,
		OpFree, 0,
		OpEnd,
	))
	assertStack(t, m, 99, 13, 17)
	if m.HeapTop() != 19 {
		t.Errorf("HeapTop = %d, want 19", m.HeapTop())
	}
	if m.Memory()[20] != 99 {
		t.Errorf("memory[20] = %d, want 99", m.Memory()[20])
	}
}

func TestControlFlow(t *testing.T) {
	// LoadS 1, IfJump L, LoadS 0, Jump End, L: LoadS 99, End
	prog := code(
		OpLoadS, 1, // 0
		OpIfJump, 10, // 2
		OpLoadS, 0, // 4
		OpJump, 12, // 6
		OpNoop, OpNoop, // 8
		OpLoadS, 99, // 10: L
		OpEnd, // 12
	)
	m, _ := runProg(t, prog)
	assertStack(t, m, 99)
}

func TestIfJumpFallsThrough(t *testing.T) {
	prog := code(OpLoadS, 0, OpIfJump, 7, OpLoadS, 5, OpEnd, OpLoadS, 6, OpEnd)
	m, _ := runProg(t, prog)
	assertStack(t, m, 5)
}

func TestNestedCallReturn(t *testing.T) {
	prog := code(
		OpCall, 6, // 0: main calls f
		OpLoadS, 3, // 2
		OpEnd, OpNoop, // 4
		OpLoadS, 1, // 6: f
		OpCall, 12, // 8: f calls g
		OpReturn, OpNoop, // 10
		OpLoadS, 2, // 12: g
		OpReturn, // 14
	)
	m, _ := runProg(t, prog)
	assertStack(t, m, 1, 2, 3)
	if len(m.CallStack()) != 0 {
		t.Errorf("call stack = %v, want empty", m.CallStack())
	}
}

func TestStep(t *testing.T) {
	m, _ := newTestVM(t, code(OpLoadS, 1, OpJump, 0, OpEnd))
	if err := m.Step(); err != nil {
		t.Fatal(err)
	}
	if m.PC() != 2 {
		t.Errorf("PC after loads = %d, want 2", m.PC())
	}
	if err := m.Step(); err != nil {
		t.Fatal(err)
	}
	if m.PC() != 0 {
		t.Errorf("PC after jump = %d, want 0", m.PC())
	}
	if m.InstructionCount() != 2 {
		t.Errorf("InstructionCount = %d, want 2", m.InstructionCount())
	}
}

func TestEndDoesNotAdvance(t *testing.T) {
	m, _ := newTestVM(t, code(OpEnd))
	if err := m.Step(); err != nil {
		t.Fatal(err)
	}
	if m.PC() != 0 || !m.Halted() {
		t.Errorf("PC = %d halted = %v, want 0 true", m.PC(), m.Halted())
	}
}

func TestRuntimeErrors(t *testing.T) {
	tests := []struct {
		name string
		prog []Word
		opts []Option
		want error
		pc   int
	}{
		{"underflow", code(OpAddi, OpEnd), nil, ErrStackUnderflow, 0},
		{"store underflow", code(OpStore, 10, OpEnd), nil, ErrStackUnderflow, 0},
		{"overflow", code(OpLoadS, 1, OpLoadS, 2, OpEnd), []Option{StackSize(1)}, ErrStackOverflow, 2},
		{"return", code(OpReturn, OpEnd), nil, ErrCallStackUnderflow, 0},
		{"call depth", code(OpCall, 0), []Option{CallDepth(3)}, ErrCallStackOverflow, 0},
		{"divi", code(OpLoadS, 0, OpLoadS, 1, OpDivi, OpEnd), nil, ErrDivisionByZero, 4},
		{"modi", code(OpLoadS, 0, OpLoadS, 1, OpModi, OpEnd), nil, ErrDivisionByZero, 4},
		{"powi", code(OpLoadS, -1, OpLoadS, 2, OpPowi, OpEnd), nil, ErrNegativeExponent, 4},
		{"powf", code(OpLoadS, -1, OpLoadS, 2.0, OpPowf, OpEnd), nil, ErrNegativeExponent, 4},
		{"ifjump", code(OpLoadS, 1, OpIfJump, 1<<20, OpEnd), nil, ErrAddress, 2},
		{"loadm", code(OpLoadM, 5000, OpEnd), nil, ErrAddress, 0},
		{"store", code(OpLoadS, 1, OpStore, -1, OpEnd), nil, ErrAddress, 2},
		{"jump", code(OpJump, 1 << 20), nil, ErrAddress, 0},
		{"alloc", code(OpAlloc, 2000, OpEnd), nil, ErrOutOfMemory, 0},
		{"opcode", code(OpLoadS, 1, 777), nil, ErrUnknownOpcode, 2},
		{"native", code(OpCall, ReservedBase+99, OpEnd), nil, ErrUnknownNative, 0},
		{"fall off", code(OpNoop), []Option{MemorySize(1)}, ErrAddress, 1},
		{"step limit", code(OpJump, 0), []Option{StepLimit(10)}, ErrStepLimit, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestVM(t, tt.prog, tt.opts...)
			err := m.Run()
			if !errors.Is(err, tt.want) {
				t.Fatalf("Run() = %v, want %v", err, tt.want)
			}
			var rerr *RuntimeError
			if !errors.As(err, &rerr) {
				t.Fatalf("Run() = %T, want *RuntimeError", err)
			}
			if rerr.PC != tt.pc {
				t.Errorf("error PC = %d, want %d", rerr.PC, tt.pc)
			}
			if m.PC() != tt.pc {
				t.Errorf("VM PC = %d, want %d", m.PC(), tt.pc)
			}
		})
	}
}

func TestLoadTooLarge(t *testing.T) {
	m, err := New(MemorySize(4))
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Load(code(OpLoadS, 1, OpLoadS, 2, OpEnd)); !errors.Is(err, ErrProgramTooLarge) {
		t.Errorf("Load = %v, want ErrProgramTooLarge", err)
	}
}

func TestReloadClearsState(t *testing.T) {
	m, _ := runProg(t, code(OpLoadS, 1, OpStore, 30, OpLoadS, 2, OpEnd))
	if err := m.Load(code(OpEnd)); err != nil {
		t.Fatal(err)
	}
	if len(m.Stack()) != 0 || m.PC() != 0 || m.HeapTop() != 1 {
		t.Errorf("after reload: stack %v pc %d heap %d", m.Stack(), m.PC(), m.HeapTop())
	}
	if m.Memory()[30] != 0 || len(m.Memory()) != 1024 {
		t.Errorf("memory not reset: [30]=%d len=%d", m.Memory()[30], len(m.Memory()))
	}
}

func TestRunContextCancel(t *testing.T) {
	m, _ := newTestVM(t, code(OpJump, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.RunContext(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("RunContext = %v, want context.Canceled", err)
	}
}

func TestInvalidOptions(t *testing.T) {
	for _, opt := range []Option{MemorySize(0), StackSize(-1), CallDepth(0), StepLimit(-5),
		BindNative(12, "low", func(*VM) error { return nil })} {
		if _, err := New(opt); err == nil {
			t.Errorf("New with invalid option succeeded")
		}
	}
}
