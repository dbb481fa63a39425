package vm

import (
	"math"
	"strconv"
)

// Word is the raw type stored in a memory location or on a stack.
//
// Words are untyped: a float64 is stored as its exact IEEE-754 bit pattern
// and only the opcode used on it decides how the bits are read.
type Word int64

// FromInt returns the word holding i.
func FromInt(i int64) Word { return Word(i) }

// FromFloat returns the word holding the bit pattern of f. No numeric
// conversion takes place.
func FromFloat(f float64) Word { return Word(math.Float64bits(f)) }

// FromBool returns 1 for true and 0 for false.
func FromBool(b bool) Word {
	if b {
		return 1
	}
	return 0
}

// Int returns w as a signed integer.
func (w Word) Int() int64 { return int64(w) }

// Float reinterprets the bits of w as a float64.
func (w Word) Float() float64 { return math.Float64frombits(uint64(w)) }

// Bool reports whether w is truthy (nonzero).
func (w Word) Bool() bool { return w != 0 }

// String returns the decimal representation of w as an integer.
func (w Word) String() string { return strconv.FormatInt(int64(w), 10) }

// Words converts a slice of int64 into a slice of Word.
func Words(v []int64) []Word {
	w := make([]Word, len(v))
	for i, x := range v {
		w[i] = Word(x)
	}
	return w
}

// Ints converts a slice of Word into a slice of int64.
func Ints(w []Word) []int64 {
	v := make([]int64, len(w))
	for i, x := range w {
		v[i] = int64(x)
	}
	return v
}
