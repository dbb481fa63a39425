package vm

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"
)

// Default sizes, in words.
const (
	DefaultMemorySize = 1 << 16
	DefaultStackSize  = 1 << 12
	DefaultCallDepth  = 1 << 10
)

// cancelCheckInterval is the number of instructions RunContext executes
// between two checks of ctx.Done().
const cancelCheckInterval = 1024

// ---------------------------------------------------------------------------
// VM: a word-addressed stack machine
// ---------------------------------------------------------------------------

// VM is a virtual machine instance. Its memory, stacks and heap pointer are
// owned by the instance; a VM must not be used from several goroutines at
// once.
type VM struct {
	mem     []Word
	pc      int
	next    int // PC after the current instruction, set by Step
	heapTop int
	stack   []Word
	calls   []Word // resume addresses

	natives   map[Word]Native
	out       io.Writer
	log       commonlog.Logger
	trace     bool
	stackSize int
	callDepth int
	stepLimit int64
	insCount  int64
	ctx       context.Context // set while RunContext runs
}

// Option configures a VM.
type Option func(*VM) error

// MemorySize sets the memory size in words. Loading a program longer than
// this fails with ErrProgramTooLarge. The default is DefaultMemorySize.
func MemorySize(size int) Option {
	return func(m *VM) error {
		if size <= 0 {
			return fmt.Errorf("vm: invalid memory size %d", size)
		}
		if size > len(m.mem) {
			t := make([]Word, size)
			copy(t, m.mem)
			m.mem = t
		} else {
			m.mem = m.mem[:size]
		}
		return nil
	}
}

// StackSize sets the maximum depth of the operand stack.
func StackSize(size int) Option {
	return func(m *VM) error {
		if size <= 0 {
			return fmt.Errorf("vm: invalid stack size %d", size)
		}
		m.stackSize = size
		return nil
	}
}

// CallDepth sets the maximum depth of the call stack.
func CallDepth(depth int) Option {
	return func(m *VM) error {
		if depth <= 0 {
			return fmt.Errorf("vm: invalid call depth %d", depth)
		}
		m.callDepth = depth
		return nil
	}
}

// StepLimit bounds the number of instructions executed after Load. Run
// returns ErrStepLimit once the budget is spent. 0 means unlimited.
func StepLimit(n int64) Option {
	return func(m *VM) error {
		if n < 0 {
			return fmt.Errorf("vm: invalid step limit %d", n)
		}
		m.stepLimit = n
		return nil
	}
}

// Output sets the sink native functions write to. The default is os.Stdout;
// nil discards all output.
func Output(w io.Writer) Option {
	return func(m *VM) error {
		if w == nil {
			w = io.Discard
		}
		m.out = w
		return nil
	}
}

// Logger sets the logger used for load summaries and instruction traces.
func Logger(log commonlog.Logger) Option {
	return func(m *VM) error {
		m.log = log
		return nil
	}
}

// Trace enables per-instruction tracing at debug level.
func Trace(enable bool) Option {
	return func(m *VM) error {
		m.trace = enable
		return nil
	}
}

// BindNative registers fn as the native function at addr, which must lie in
// the reserved range.
func BindNative(addr Word, name string, fn func(*VM) error) Option {
	return func(m *VM) error {
		if addr < ReservedBase {
			return fmt.Errorf("vm: native %s: address %#x below reserved range", name, addr)
		}
		m.natives[addr] = Native{Name: name, Fn: fn}
		return nil
	}
}

// SetOptions applies the provided options.
func (m *VM) SetOptions(opts ...Option) error {
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return err
		}
	}
	return nil
}

// New creates a VM with empty memory and the standard native functions.
func New(opts ...Option) (*VM, error) {
	m := &VM{
		mem:       make([]Word, DefaultMemorySize),
		natives:   make(map[Word]Native, len(stdlib)),
		out:       os.Stdout,
		log:       commonlog.GetLogger("wordvm.vm"),
		stackSize: DefaultStackSize,
		callDepth: DefaultCallDepth,
	}
	for addr, n := range stdlib {
		m.natives[addr] = n
	}
	if err := m.SetOptions(opts...); err != nil {
		return nil, err
	}
	return m, nil
}

// Load copies program into memory at address 0 and resets the machine: the
// rest of memory is zeroed, the heap starts right after the program, both
// stacks are emptied and PC is 0.
func (m *VM) Load(program []Word) error {
	if len(program) > len(m.mem) {
		return fmt.Errorf("vm: %w: %d words, memory is %d words", ErrProgramTooLarge, len(program), len(m.mem))
	}
	n := copy(m.mem, program)
	clear(m.mem[n:])
	m.heapTop = n
	m.pc = 0
	m.next = 0
	m.stack = m.stack[:0]
	m.calls = m.calls[:0]
	m.insCount = 0
	m.log.Infof("loaded %d words, %d words free", n, len(m.mem)-n)
	return nil
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

// Step executes exactly one instruction. On error, PC is left on the failing
// instruction and the error is a *RuntimeError.
func (m *VM) Step() error {
	pc := m.pc
	if pc < 0 || pc >= len(m.mem) {
		return &RuntimeError{PC: pc, Op: OpNoop, Err: ErrAddress}
	}
	op := Opcode(m.mem[pc])
	info, ok := op.Info()
	if !ok {
		return &RuntimeError{PC: pc, Op: op, Err: ErrUnknownOpcode}
	}
	var imm Word
	if info.Arity == Immediate {
		if pc+1 >= len(m.mem) {
			return &RuntimeError{PC: pc, Op: op, Err: ErrAddress}
		}
		imm = m.mem[pc+1]
	}
	if len(m.stack) < info.Pop {
		return &RuntimeError{PC: pc, Op: op, Err: ErrStackUnderflow}
	}
	if m.trace {
		m.traceInstruction(pc, op, info, imm)
	}
	m.next = pc + info.Arity.Width()
	if err := info.exec(m, imm); err != nil {
		return &RuntimeError{PC: pc, Op: op, Err: err}
	}
	m.pc = m.next
	m.insCount++
	return nil
}

func (m *VM) traceInstruction(pc int, op Opcode, info OpcodeInfo, imm Word) {
	if info.Arity == Immediate {
		m.log.Debugf("%06d  %-7s %-20d %v", pc, op, imm, m.stack)
	} else {
		m.log.Debugf("%06d  %-28s %v", pc, op, m.stack)
	}
}

func (m *VM) opAt(pc int) Opcode {
	if pc < 0 || pc >= len(m.mem) {
		return OpNoop
	}
	return Opcode(m.mem[pc])
}

// Halted reports whether PC points at an End instruction.
func (m *VM) Halted() bool {
	return m.pc >= 0 && m.pc < len(m.mem) && m.opAt(m.pc) == OpEnd
}

// Run executes instructions until an End instruction is fetched or an error
// occurs. An ill-formed program that never reaches End runs forever unless a
// StepLimit is set.
func (m *VM) Run() error {
	return m.RunContext(context.Background())
}

// RunContext is like Run but stops with ctx.Err() when ctx is done. The
// context is polled between instructions, and inside powf. Cancellation
// inside an instruction is reported as a *RuntimeError wrapping ctx.Err().
func (m *VM) RunContext(ctx context.Context) error {
	done := ctx.Done()
	m.ctx = ctx
	defer func() { m.ctx = nil }()
	for n := 0; ; n++ {
		if m.Halted() {
			m.log.Infof("halted at %d after %d instructions", m.pc, m.insCount)
			return nil
		}
		if m.stepLimit > 0 && m.insCount >= m.stepLimit {
			return &RuntimeError{PC: m.pc, Op: m.opAt(m.pc), Err: ErrStepLimit}
		}
		if done != nil && n%cancelCheckInterval == 0 {
			select {
			case <-done:
				return ctx.Err()
			default:
			}
		}
		if err := m.Step(); err != nil {
			return err
		}
	}
}

// ---------------------------------------------------------------------------
// Stacks and memory
// ---------------------------------------------------------------------------

// Push pushes v on the operand stack.
func (m *VM) Push(v Word) error {
	if len(m.stack) >= m.stackSize {
		return ErrStackOverflow
	}
	m.stack = append(m.stack, v)
	return nil
}

// Pop pops the value on top of the operand stack.
func (m *VM) Pop() (Word, error) {
	n := len(m.stack)
	if n == 0 {
		return 0, ErrStackUnderflow
	}
	v := m.stack[n-1]
	m.stack = m.stack[:n-1]
	return v, nil
}

// pop1 pops without checking. Callers rely on Step's OpcodeInfo.Pop check.
func (m *VM) pop1() Word {
	n := len(m.stack) - 1
	v := m.stack[n]
	m.stack = m.stack[:n]
	return v
}

// pop2 pops a (top of stack) then b, without checking.
func (m *VM) pop2() (a, b Word) {
	n := len(m.stack)
	a, b = m.stack[n-1], m.stack[n-2]
	m.stack = m.stack[:n-2]
	return a, b
}

// peek1 returns the top of the stack without popping it.
func (m *VM) peek1() Word { return m.stack[len(m.stack)-1] }

// peek2 returns a (top of stack) and b without popping them, so that a
// handler can fail with the stack untouched.
func (m *VM) peek2() (a, b Word) {
	n := len(m.stack)
	return m.stack[n-1], m.stack[n-2]
}

// poll lets an instruction that loops internally honour the step limit and
// cancellation. work is the number of units done so far, each counted as
// one instruction.
func (m *VM) poll(work int64) error {
	if m.stepLimit > 0 && m.insCount+work >= m.stepLimit {
		return ErrStepLimit
	}
	if m.ctx != nil {
		return m.ctx.Err()
	}
	return nil
}

func (m *VM) checkAddr(addr Word) error {
	if addr < 0 || addr >= Word(len(m.mem)) {
		return fmt.Errorf("%w: %d", ErrAddress, addr)
	}
	return nil
}

// Fetch returns the word at addr.
func (m *VM) Fetch(addr Word) (Word, error) {
	if err := m.checkAddr(addr); err != nil {
		return 0, err
	}
	return m.mem[addr], nil
}

// PC returns the program counter.
func (m *VM) PC() int { return m.pc }

// SetPC moves the program counter, e.g. to start at an entry label.
func (m *VM) SetPC(pc int) { m.pc = pc }

// HeapTop returns the address of the next word Alloc will hand out.
func (m *VM) HeapTop() int { return m.heapTop }

// Stack returns the operand stack, bottom first. Value changes are reflected
// in the VM but re-slicing is not; use Push and Pop for that.
func (m *VM) Stack() []Word { return m.stack }

// CallStack returns the saved resume addresses, oldest first.
func (m *VM) CallStack() []Word { return m.calls }

// Memory returns the memory image.
func (m *VM) Memory() []Word { return m.mem }

// Output returns the sink native functions write to.
func (m *VM) Output() io.Writer { return m.out }

// InstructionCount returns the number of instructions executed since Load.
func (m *VM) InstructionCount() int64 { return m.insCount }
