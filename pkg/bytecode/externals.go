package bytecode

import "sort"

// external describes a function callable through an ExternalFun instruction.
type external struct {
	op    Opcode
	arity int
}

// externalTable is the math library available to external-function calls.
// A name must also be registered in the evaluator's FunctionMap before a
// stream may call it.
var externalTable = map[string]external{
	"sqrt":  {OpSqrt, 1},
	"exp":   {OpExp, 1},
	"log":   {OpLog, 1},
	"ln":    {OpLog, 1},
	"sin":   {OpSin, 1},
	"cos":   {OpCos, 1},
	"tan":   {OpTan, 1},
	"sinh":  {OpSinh, 1},
	"cosh":  {OpCosh, 1},
	"tanh":  {OpTanh, 1},
	"asin":  {OpAsin, 1},
	"acos":  {OpAcos, 1},
	"atan":  {OpAtan, 1},
	"asinh": {OpAsinh, 1},
	"acosh": {OpAcosh, 1},
	"atanh": {OpAtanh, 1},
	"abs":   {OpAbs, 1},
	"conj":  {OpConj, 1},
	"log10": {OpLog10, 1},
	"log2":  {OpLog2, 1},
	"expm1": {OpExpm1, 1},
	"log1p": {OpLog1p, 1},
	"cbrt":  {OpCbrt, 1},
	"floor": {OpFloor, 1},
	"ceil":  {OpCeil, 1},
	"round": {OpRound, 1},
	"sign":  {OpSign, 1},
	"neg":   {OpNeg, 1},
	"not":   {OpNot, 1},

	"atan2": {OpAtan2, 2},
	"min":   {OpMin, 2},
	"max":   {OpMax, 2},
	"hypot": {OpHypot, 2},
	"power": {OpPow, 2},
	"lt":    {OpLt, 2},
	"leq":   {OpLe, 2},
	"gt":    {OpGt, 2},
	"geq":   {OpGe, 2},
	"eq":    {OpEq, 2},
	"neq":   {OpNe, 2},
	"and":   {OpAnd, 2},
	"or":    {OpOr, 2},

	"ifelse": {OpSelect, 3},
}

// LookupExternal returns the opcode and arity implementing name.
func LookupExternal(name string) (Opcode, int, bool) {
	e, ok := externalTable[name]
	return e.op, e.arity, ok
}

// ExternalNames returns the library's function names in sorted order.
func ExternalNames() []string {
	names := make([]string, 0, len(externalTable))
	for name := range externalTable {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
