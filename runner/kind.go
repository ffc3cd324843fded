package runner

import (
	"fmt"

	"github.com/chazu/symbridge/pkg/bytecode"
)

// Kind names a concrete runner variant.
type Kind uint8

const (
	KindCompiledReal Kind = iota + 1
	KindCompiledComplex
	KindCompiledSimdReal
	KindCompiledSimdComplex
	KindTransposedSimdReal
	KindTransposedSimdComplex
	KindInterpretedReal
	KindInterpretedComplex
)

var kindNames = map[Kind]string{
	KindCompiledReal:          "compiled-real",
	KindCompiledComplex:       "compiled-complex",
	KindCompiledSimdReal:      "compiled-simd-real",
	KindCompiledSimdComplex:   "compiled-simd-complex",
	KindTransposedSimdReal:    "transposed-simd-real",
	KindTransposedSimdComplex: "transposed-simd-complex",
	KindInterpretedReal:       "interpreted-real",
	KindInterpretedComplex:    "interpreted-complex",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Valid reports whether k is a defined variant.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// Domain returns the numeric domain of the variant.
func (k Kind) Domain() bytecode.Domain {
	switch k {
	case KindCompiledComplex, KindCompiledSimdComplex, KindTransposedSimdComplex, KindInterpretedComplex:
		return bytecode.Complex
	default:
		return bytecode.Real
	}
}

// IsSIMD reports whether the variant evaluates several rows per call.
func (k Kind) IsSIMD() bool {
	switch k {
	case KindCompiledSimdReal, KindCompiledSimdComplex, KindTransposedSimdReal, KindTransposedSimdComplex:
		return true
	}
	return false
}

// IsTransposed reports whether SIMD buffers are row-major.
func (k Kind) IsTransposed() bool {
	return k == KindTransposedSimdReal || k == KindTransposedSimdComplex
}

// IsInterpreted reports whether the variant runs bytecode directly.
func (k Kind) IsInterpreted() bool {
	return k == KindInterpretedReal || k == KindInterpretedComplex
}

// kindFor maps a strategy to its variant.
func kindFor(d bytecode.Domain, interpret, simd, transposed bool) Kind {
	cplx := d == bytecode.Complex
	switch {
	case interpret && cplx:
		return KindInterpretedComplex
	case interpret:
		return KindInterpretedReal
	case simd && transposed && cplx:
		return KindTransposedSimdComplex
	case simd && transposed:
		return KindTransposedSimdReal
	case simd && cplx:
		return KindCompiledSimdComplex
	case simd:
		return KindCompiledSimdReal
	case cplx:
		return KindCompiledComplex
	default:
		return KindCompiledReal
	}
}
