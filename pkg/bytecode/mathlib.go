package bytecode

import (
	"math"
	"math/cmplx"
)

// Library binds opcodes to their implementation in one numeric domain. The
// interpreter and the code generators share it so every backend computes the
// same function for the same opcode.
type Library[T Scalar] struct {
	unary  [256]func(T) T
	binary [256]func(T, T) T
	re     func(T) float64
}

// Unary returns the implementation of a one-operand opcode, or nil.
func (l *Library[T]) Unary(op Opcode) func(T) T { return l.unary[op] }

// Binary returns the implementation of a two-operand opcode, or nil.
// Comparisons and logical connectives are included and yield 1 or 0.
func (l *Library[T]) Binary(op Opcode) func(T, T) T { return l.binary[op] }

var (
	realLibrary    = newRealLibrary()
	complexLibrary = newComplexLibrary()
)

// LibraryFor returns the shared library for T.
func LibraryFor[T Scalar]() *Library[T] {
	if lib, ok := any(realLibrary).(*Library[T]); ok {
		return lib
	}
	return any(complexLibrary).(*Library[T])
}

// Truth reports whether x counts as true in a condition.
func Truth[T Scalar](x T) bool { return x != 0 }

// FromBool returns 1 for true and 0 for false.
func FromBool[T Scalar](b bool) T {
	if b {
		return 1
	}
	return 0
}

// FromComplex converts a constant pool entry to T. The imaginary part is
// dropped for float64.
func FromComplex[T Scalar](c complex128) T {
	var zero T
	if _, ok := any(zero).(complex128); ok {
		return any(c).(T)
	}
	return any(real(c)).(T)
}

// Powi raises x to an integer power by repeated squaring. A negative n
// squares up the magnitude, which fits a uint32 even for MinInt32, and
// takes the reciprocal.
func Powi[T Scalar](x T, n int32) T {
	k := uint32(n)
	if n < 0 {
		k = uint32(-int64(n))
	}
	var r T = 1
	for ; k > 0; k >>= 1 {
		if k&1 == 1 {
			r *= x
		}
		x *= x
	}
	if n < 0 {
		return 1 / r
	}
	return r
}

// common fills in the opcodes whose definition does not depend on the
// domain.
func common[T Scalar](l *Library[T]) {
	l.unary[OpNeg] = func(x T) T { return -x }
	l.unary[OpNot] = func(x T) T { return FromBool[T](!Truth(x)) }

	l.binary[OpAdd] = func(a, b T) T { return a + b }
	l.binary[OpSub] = func(a, b T) T { return a - b }
	l.binary[OpMul] = func(a, b T) T { return a * b }
	l.binary[OpDiv] = func(a, b T) T { return a / b }
	l.binary[OpAnd] = func(a, b T) T { return FromBool[T](Truth(a) && Truth(b)) }
	l.binary[OpOr] = func(a, b T) T { return FromBool[T](Truth(a) || Truth(b)) }
	l.binary[OpEq] = func(a, b T) T { return FromBool[T](a == b) }
	l.binary[OpNe] = func(a, b T) T { return FromBool[T](a != b) }

	re := l.re
	l.binary[OpLt] = func(a, b T) T { return FromBool[T](re(a) < re(b)) }
	l.binary[OpLe] = func(a, b T) T { return FromBool[T](re(a) <= re(b)) }
	l.binary[OpGt] = func(a, b T) T { return FromBool[T](re(a) > re(b)) }
	l.binary[OpGe] = func(a, b T) T { return FromBool[T](re(a) >= re(b)) }
}

func newRealLibrary() *Library[float64] {
	l := &Library[float64]{re: func(x float64) float64 { return x }}
	common(l)

	u := &l.unary
	u[OpSqrt] = math.Sqrt
	u[OpExp] = math.Exp
	u[OpLog] = math.Log
	u[OpSin] = math.Sin
	u[OpCos] = math.Cos
	u[OpTan] = math.Tan
	u[OpSinh] = math.Sinh
	u[OpCosh] = math.Cosh
	u[OpTanh] = math.Tanh
	u[OpAsin] = math.Asin
	u[OpAcos] = math.Acos
	u[OpAtan] = math.Atan
	u[OpAsinh] = math.Asinh
	u[OpAcosh] = math.Acosh
	u[OpAtanh] = math.Atanh
	u[OpAbs] = math.Abs
	u[OpConj] = func(x float64) float64 { return x }
	u[OpLog10] = math.Log10
	u[OpLog2] = math.Log2
	u[OpExpm1] = math.Expm1
	u[OpLog1p] = math.Log1p
	u[OpCbrt] = math.Cbrt
	u[OpFloor] = math.Floor
	u[OpCeil] = math.Ceil
	u[OpRound] = math.Round
	u[OpSign] = func(x float64) float64 {
		switch {
		case x > 0:
			return 1
		case x < 0:
			return -1
		default:
			return x
		}
	}

	b := &l.binary
	b[OpPow] = math.Pow
	b[OpAtan2] = math.Atan2
	b[OpMin] = math.Min
	b[OpMax] = math.Max
	b[OpHypot] = math.Hypot
	return l
}

func newComplexLibrary() *Library[complex128] {
	l := &Library[complex128]{re: func(z complex128) float64 { return real(z) }}
	common(l)

	u := &l.unary
	u[OpSqrt] = cmplx.Sqrt
	u[OpExp] = cmplx.Exp
	u[OpLog] = cmplx.Log
	u[OpSin] = cmplx.Sin
	u[OpCos] = cmplx.Cos
	u[OpTan] = cmplx.Tan
	u[OpSinh] = cmplx.Sinh
	u[OpCosh] = cmplx.Cosh
	u[OpTanh] = cmplx.Tanh
	u[OpAsin] = cmplx.Asin
	u[OpAcos] = cmplx.Acos
	u[OpAtan] = cmplx.Atan
	u[OpAsinh] = cmplx.Asinh
	u[OpAcosh] = cmplx.Acosh
	u[OpAtanh] = cmplx.Atanh
	u[OpAbs] = func(z complex128) complex128 { return complex(cmplx.Abs(z), 0) }
	u[OpConj] = cmplx.Conj
	u[OpLog10] = cmplx.Log10
	u[OpLog2] = func(z complex128) complex128 { return cmplx.Log(z) / math.Ln2 }
	u[OpExpm1] = func(z complex128) complex128 { return cmplx.Exp(z) - 1 }
	u[OpLog1p] = func(z complex128) complex128 { return cmplx.Log(1 + z) }

	l.binary[OpPow] = cmplx.Pow
	return l
}
