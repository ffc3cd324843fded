package expr

// Builder assembles an Evaluator one instruction at a time. Every value
// producing call allocates a fresh temporary, so streams built this way are
// in single-assignment form.
type Builder struct {
	ev     Evaluator
	consts map[complex128]int
	temps  int
	labels int
	outs   int
}

// NewBuilder starts a stream over the named parameters.
func NewBuilder(params ...string) *Builder {
	return &Builder{
		ev:     Evaluator{Params: append([]string(nil), params...)},
		consts: make(map[complex128]int),
	}
}

// WithFunctions attaches an external-function table to the stream.
func (b *Builder) WithFunctions(fm *FunctionMap) *Builder {
	b.ev.Functions = fm
	return b
}

// Param returns the slot of parameter i.
func (b *Builder) Param(i int) Slot { return Param(i) }

// Var returns the slot of the parameter called name. It panics if the name
// was not passed to NewBuilder.
func (b *Builder) Var(name string) Slot {
	for i, p := range b.ev.Params {
		if p == name {
			return Param(i)
		}
	}
	panic("expr: unknown parameter " + name)
}

// Const interns c in the constant pool.
func (b *Builder) Const(c complex128) Slot {
	if idx, ok := b.consts[c]; ok {
		return Const(idx)
	}
	idx := len(b.ev.Constants)
	b.ev.Constants = append(b.ev.Constants, c)
	b.consts[c] = idx
	return Const(idx)
}

// Real interns a real constant.
func (b *Builder) Real(f float64) Slot { return b.Const(complex(f, 0)) }

func (b *Builder) temp() Slot {
	s := Temp(b.temps)
	b.temps++
	return s
}

func (b *Builder) emit(in Instruction) Slot {
	b.ev.Instructions = append(b.ev.Instructions, in)
	return in.Dst
}

// Add returns the sum of its operands.
func (b *Builder) Add(args ...Slot) Slot {
	return b.emit(Instruction{Op: OpAdd, Dst: b.temp(), Args: args})
}

// Mul returns the product of its operands.
func (b *Builder) Mul(args ...Slot) Slot {
	return b.emit(Instruction{Op: OpMul, Dst: b.temp(), Args: args})
}

// Sub returns x - y.
func (b *Builder) Sub(x, y Slot) Slot {
	return b.Add(x, b.Neg(y))
}

// Neg returns -x.
func (b *Builder) Neg(x Slot) Slot {
	return b.Mul(b.Real(-1), x)
}

// Div returns x / y.
func (b *Builder) Div(x, y Slot) Slot {
	return b.Mul(x, b.Pow(y, -1))
}

// Pow returns x raised to an integer power.
func (b *Builder) Pow(x Slot, n int64) Slot {
	return b.emit(Instruction{Op: OpPow, Dst: b.temp(), Args: []Slot{x}, Exp: n})
}

// Powf returns x raised to the power e.
func (b *Builder) Powf(x, e Slot) Slot {
	return b.emit(Instruction{Op: OpPowf, Dst: b.temp(), Args: []Slot{x, e}})
}

// Fun applies a builtin function.
func (b *Builder) Fun(f Builtin, x Slot) Slot {
	return b.emit(Instruction{Op: OpFun, Dst: b.temp(), Args: []Slot{x}, Func: f})
}

// Call applies a registered external function.
func (b *Builder) Call(name string, args ...Slot) Slot {
	return b.emit(Instruction{Op: OpExternalFun, Dst: b.temp(), Args: args, Name: name})
}

// Join returns t when cond is true and f otherwise.
func (b *Builder) Join(cond, t, f Slot) Slot {
	return b.emit(Instruction{Op: OpJoin, Dst: b.temp(), Args: []Slot{cond, t, f}})
}

// Assign copies src into dst.
func (b *Builder) Assign(dst, src Slot) {
	b.emit(Instruction{Op: OpAssign, Dst: dst, Args: []Slot{src}})
}

// NewTemp reserves a temporary for use with Assign, typically as the
// merge point of a branch.
func (b *Builder) NewTemp() Slot { return b.temp() }

// NewLabel reserves a label id.
func (b *Builder) NewLabel() int {
	id := b.labels
	b.labels++
	return id
}

// Mark places label id at the current position.
func (b *Builder) Mark(id int) {
	b.emit(Instruction{Op: OpLabel, Label: id})
}

// IfElse jumps to label id when cond is false.
func (b *Builder) IfElse(cond Slot, id int) {
	b.emit(Instruction{Op: OpIfElse, Args: []Slot{cond}, Label: id})
}

// Goto jumps to label id.
func (b *Builder) Goto(id int) {
	b.emit(Instruction{Op: OpGoto, Label: id})
}

// Output appends values as the next output registers.
func (b *Builder) Output(values ...Slot) {
	for _, v := range values {
		b.Assign(Out(b.outs), v)
		b.outs++
	}
}

// Build returns the assembled evaluator. The builder must not be used
// afterwards.
func (b *Builder) Build() *Evaluator {
	ev := b.ev
	ev.OutputCount = b.outs
	return &ev
}
