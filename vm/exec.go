package vm

import "math"

// powfPollInterval is the number of powf multiplications between two checks
// of the step limit and cancellation.
const powfPollInterval = 1024

func init() {
	// Memory and control flow
	def(OpNoop, "noop", NoImmediate, 0, 0, "no operation", (*VM).noop)
	def(OpLoadS, "loads", Immediate, 0, 1, "push the immediate value", (*VM).loads)
	def(OpLoadM, "loadm", Immediate, 0, 1, "push memory[addr]", (*VM).loadm)
	def(OpStore, "store", Immediate, 1, 0, "pop a value into memory[addr]", (*VM).store)
	def(OpAlloc, "alloc", Immediate, 0, 1, "push the heap top, then grow the heap by n words", (*VM).alloc)
	def(OpFree, "free", Immediate, 0, 0, "release memory (no-op: the heap is never reclaimed)", (*VM).noop)
	def(OpCall, "call", Immediate, 0, 0, "call a user address or a native function", (*VM).call)
	def(OpReturn, "return", NoImmediate, 0, 0, "resume after the matching call", (*VM).ret)
	def(OpIfJump, "ifjump", Immediate, 1, 0, "pop a condition, jump to addr if nonzero", (*VM).ifjump)
	def(OpJump, "jump", Immediate, 0, 0, "jump to addr", (*VM).jump)

	// Casts and logic
	def(OpCastfi, "castfi", NoImmediate, 1, 1, "convert float to int", unary(func(a Word) Word { return FromInt(int64(a.Float())) }))
	def(OpCastif, "castif", NoImmediate, 1, 1, "convert int to float", unary(func(a Word) Word { return FromFloat(float64(a.Int())) }))
	def(OpNot, "not", NoImmediate, 1, 1, "logical not", unary(func(a Word) Word { return FromBool(!a.Bool()) }))
	def(OpAnd, "and", NoImmediate, 2, 1, "logical and", binary(func(a, b Word) Word { return FromBool(a.Bool() && b.Bool()) }))
	def(OpOr, "or", NoImmediate, 2, 1, "logical or", binary(func(a, b Word) Word { return FromBool(a.Bool() || b.Bool()) }))

	// Arithmetic
	def(OpUsubi, "usubi", NoImmediate, 1, 1, "integer negation", unary(func(a Word) Word { return FromInt(-a.Int()) }))
	def(OpUsubf, "usubf", NoImmediate, 1, 1, "float negation", unary(func(a Word) Word { return FromFloat(-a.Float()) }))
	def(OpPowi, "powi", NoImmediate, 2, 1, "integer power: a ** b", (*VM).powi)
	def(OpPowf, "powf", NoImmediate, 2, 1, "float power with integer exponent: a ** b", (*VM).powf)
	def(OpMuli, "muli", NoImmediate, 2, 1, "integer multiply", intOp(func(a, b int64) int64 { return a * b }))
	def(OpMulf, "mulf", NoImmediate, 2, 1, "float multiply", floatOp(func(a, b float64) float64 { return a * b }))
	def(OpDivi, "divi", NoImmediate, 2, 1, "integer divide: a / b", (*VM).divi)
	def(OpDivf, "divf", NoImmediate, 2, 1, "float divide: a / b", floatOp(func(a, b float64) float64 { return a / b }))
	def(OpModi, "modi", NoImmediate, 2, 1, "integer remainder: a % b", (*VM).modi)
	def(OpAddi, "addi", NoImmediate, 2, 1, "integer add", intOp(func(a, b int64) int64 { return a + b }))
	def(OpAddf, "addf", NoImmediate, 2, 1, "float add", floatOp(func(a, b float64) float64 { return a + b }))
	def(OpSubi, "subi", NoImmediate, 2, 1, "integer subtract: a - b", intOp(func(a, b int64) int64 { return a - b }))
	def(OpSubf, "subf", NoImmediate, 2, 1, "float subtract: a - b", floatOp(func(a, b float64) float64 { return a - b }))

	// Comparison
	def(OpLteqi, "lteqi", NoImmediate, 2, 1, "integer a <= b", intCmp(func(a, b int64) bool { return a <= b }))
	def(OpLteqf, "lteqf", NoImmediate, 2, 1, "float a <= b", floatCmp(func(a, b float64) bool { return a <= b }))
	def(OpLti, "lti", NoImmediate, 2, 1, "integer a < b", intCmp(func(a, b int64) bool { return a < b }))
	def(OpLtf, "ltf", NoImmediate, 2, 1, "float a < b", floatCmp(func(a, b float64) bool { return a < b }))
	def(OpGti, "gti", NoImmediate, 2, 1, "integer a > b", intCmp(func(a, b int64) bool { return a > b }))
	def(OpGtf, "gtf", NoImmediate, 2, 1, "float a > b", floatCmp(func(a, b float64) bool { return a > b }))
	def(OpGteqi, "gteqi", NoImmediate, 2, 1, "integer a >= b", intCmp(func(a, b int64) bool { return a >= b }))
	def(OpGteqf, "gteqf", NoImmediate, 2, 1, "float a >= b", floatCmp(func(a, b float64) bool { return a >= b }))
	def(OpEqi, "eqi", NoImmediate, 2, 1, "integer a == b", intCmp(func(a, b int64) bool { return a == b }))
	def(OpEqf, "eqf", NoImmediate, 2, 1, "float a == b", floatCmp(func(a, b float64) bool { return a == b }))
	def(OpNeqi, "neqi", NoImmediate, 2, 1, "integer a != b", intCmp(func(a, b int64) bool { return a != b }))
	def(OpNeqf, "neqf", NoImmediate, 2, 1, "float a != b", floatCmp(func(a, b float64) bool { return a != b }))

	def(OpEnd, "end", NoImmediate, 0, 0, "halt", (*VM).end)
}

// ---------------------------------------------------------------------------
// Handler builders
// ---------------------------------------------------------------------------

// Step has already checked that the stack holds OpcodeInfo.Pop words, so the
// builders below pop without checking.

func unary(f func(a Word) Word) handler {
	return func(m *VM, _ Word) error {
		n := len(m.stack) - 1
		m.stack[n] = f(m.stack[n])
		return nil
	}
}

func binary(f func(a, b Word) Word) handler {
	return func(m *VM, _ Word) error {
		a, b := m.pop2()
		return m.Push(f(a, b))
	}
}

func intOp(f func(a, b int64) int64) handler {
	return binary(func(a, b Word) Word { return FromInt(f(a.Int(), b.Int())) })
}

func floatOp(f func(a, b float64) float64) handler {
	return binary(func(a, b Word) Word { return FromFloat(f(a.Float(), b.Float())) })
}

func intCmp(f func(a, b int64) bool) handler {
	return binary(func(a, b Word) Word { return FromBool(f(a.Int(), b.Int())) })
}

func floatCmp(f func(a, b float64) bool) handler {
	return binary(func(a, b Word) Word { return FromBool(f(a.Float(), b.Float())) })
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (m *VM) noop(Word) error { return nil }

// end leaves the PC on the End instruction so that Run stops there.
func (m *VM) end(Word) error {
	m.next = m.pc
	return nil
}

func (m *VM) loads(imm Word) error { return m.Push(imm) }

func (m *VM) loadm(imm Word) error {
	v, err := m.Fetch(imm)
	if err != nil {
		return err
	}
	return m.Push(v)
}

func (m *VM) store(imm Word) error {
	if err := m.checkAddr(imm); err != nil {
		return err
	}
	m.mem[imm] = m.pop1()
	return nil
}

func (m *VM) alloc(n Word) error {
	if n < 0 || n > Word(len(m.mem)-m.heapTop) {
		return ErrOutOfMemory
	}
	if err := m.Push(Word(m.heapTop)); err != nil {
		return err
	}
	m.heapTop += int(n)
	return nil
}

func (m *VM) call(target Word) error {
	if target >= ReservedBase {
		fn, ok := m.natives[target]
		if !ok {
			return ErrUnknownNative
		}
		return fn.Fn(m)
	}
	if err := m.checkAddr(target); err != nil {
		return err
	}
	if len(m.calls) >= m.callDepth {
		return ErrCallStackOverflow
	}
	// Save the resume address, not the call site.
	m.calls = append(m.calls, Word(m.next))
	m.next = int(target)
	return nil
}

func (m *VM) ret(Word) error {
	n := len(m.calls)
	if n == 0 {
		return ErrCallStackUnderflow
	}
	m.next = int(m.calls[n-1])
	m.calls = m.calls[:n-1]
	return nil
}

func (m *VM) jump(target Word) error {
	if err := m.checkAddr(target); err != nil {
		return err
	}
	m.next = int(target)
	return nil
}

func (m *VM) ifjump(target Word) error {
	if !m.peek1().Bool() {
		m.pop1()
		return nil
	}
	if err := m.checkAddr(target); err != nil {
		return err
	}
	m.pop1()
	m.next = int(target)
	return nil
}

func (m *VM) divi(Word) error {
	a, b := m.peek2()
	if b == 0 {
		return ErrDivisionByZero
	}
	m.pop2()
	return m.Push(FromInt(a.Int() / b.Int()))
}

func (m *VM) modi(Word) error {
	a, b := m.peek2()
	if b == 0 {
		return ErrDivisionByZero
	}
	m.pop2()
	return m.Push(FromInt(a.Int() % b.Int()))
}

// powi computes a**b by squaring; integer multiplication wraps identically in
// any order so this matches repeated multiplication bit for bit.
func (m *VM) powi(Word) error {
	a, b := m.peek2()
	if b < 0 {
		return ErrNegativeExponent
	}
	m.pop2()
	base, exp, p := a.Int(), b.Int(), int64(1)
	for exp > 0 {
		if exp&1 == 1 {
			p *= base
		}
		base *= base
		exp >>= 1
	}
	return m.Push(FromInt(p))
}

// powf multiplies a float base by itself b times, rounding after every step.
// Each multiplication counts against the step limit. The loop stops early once
// the product can no longer change.
func (m *VM) powf(Word) error {
	a, b := m.peek2()
	if b < 0 {
		return ErrNegativeExponent
	}
	base, n, p := a.Float(), b.Int(), 1.0
	switch {
	case n == 0:
	case base == 1, math.IsNaN(base):
		p = base
	case base == -1:
		p = 1 - 2*float64(n&1)
	default:
		for i := int64(0); i < n; i++ {
			if i%powfPollInterval == 0 {
				if err := m.poll(i); err != nil {
					return err
				}
			}
			p *= base
			if p == 0 || math.IsInf(p, 0) {
				// each remaining factor only flips the sign
				if math.Signbit(base) && (n-i-1)&1 == 1 {
					p = -p
				}
				break
			}
		}
	}
	m.pop2()
	return m.Push(FromFloat(p))
}
