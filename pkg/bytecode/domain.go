package bytecode

import (
	"fmt"
	"strings"
)

// Domain is the numeric domain a chunk is evaluated in.
type Domain uint8

const (
	Real    Domain = 0 // float64
	Complex Domain = 1 // complex128
)

// Scalar is the set of element types the interpreter and the code
// generators operate on.
type Scalar interface {
	float64 | complex128
}

// DomainOf returns the domain matching the element type T.
func DomainOf[T Scalar]() Domain {
	var zero T
	if _, ok := any(zero).(complex128); ok {
		return Complex
	}
	return Real
}

// ElemSize returns the width in bytes of one value.
func (d Domain) ElemSize() int {
	if d == Complex {
		return 16
	}
	return 8
}

// String returns "real" or "complex".
func (d Domain) String() string {
	switch d {
	case Real:
		return "real"
	case Complex:
		return "complex"
	default:
		return fmt.Sprintf("Domain(%d)", d)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (d Domain) MarshalText() ([]byte, error) {
	if d != Real && d != Complex {
		return nil, fmt.Errorf("bytecode: invalid domain %d", d)
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Domain) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "real", "":
		*d = Real
	case "complex":
		*d = Complex
	default:
		return fmt.Errorf("bytecode: unknown domain %q", text)
	}
	return nil
}
