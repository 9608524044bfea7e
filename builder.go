// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package effc

// FuncBuilder assembles one Func instruction by instruction. Fresh
// registers are allocated on demand; block 0 exists from the start and is
// the initial emission target.
type FuncBuilder struct {
	p   *Program
	id  FuncID
	f   *Func
	cur int
}

// NewFunc starts a function with nparams parameters and registers it with
// the program immediately, so recursive and mutually recursive references
// resolve before the body is complete.
func (p *Program) NewFunc(name string, nparams int) *FuncBuilder {
	f := &Func{Name: name, NParams: nparams, NRegs: nparams, Blocks: make([]Block, 1)}
	p.Funcs = append(p.Funcs, f)
	return &FuncBuilder{p: p, id: FuncID(len(p.Funcs) - 1), f: f}
}

// Fn returns the identifier of the function under construction.
func (b *FuncBuilder) Fn() FuncID { return b.id }

// Param returns the register holding parameter i.
func (b *FuncBuilder) Param(i int) Reg { return Reg(i) }

// Block appends an empty basic block and returns its index.
func (b *FuncBuilder) Block() int {
	b.f.Blocks = append(b.f.Blocks, Block{})
	return len(b.f.Blocks) - 1
}

// SetBlock switches the emission target.
func (b *FuncBuilder) SetBlock(i int) { b.cur = i }

func (b *FuncBuilder) fresh() Reg {
	r := Reg(b.f.NRegs)
	b.f.NRegs++
	return r
}

func (b *FuncBuilder) emit(in Instr) Reg {
	if in.Op.writesDst() && in.Dst == 0 {
		in.Dst = b.fresh()
	}
	blk := &b.f.Blocks[b.cur]
	blk.Code = append(blk.Code, in)
	return in.Dst
}

// Const loads a literal.
func (b *FuncBuilder) Const(v Value) Reg { return b.emit(Instr{Op: OpConst, Val: v}) }

// Mov copies a register.
func (b *FuncBuilder) Mov(a Reg) Reg { return b.emit(Instr{Op: OpMov, A: a}) }

// Add emits integer addition.
func (b *FuncBuilder) Add(a, c Reg) Reg { return b.emit(Instr{Op: OpAdd, A: a, B: c}) }

// Sub emits integer subtraction.
func (b *FuncBuilder) Sub(a, c Reg) Reg { return b.emit(Instr{Op: OpSub, A: a, B: c}) }

// Mul emits integer multiplication.
func (b *FuncBuilder) Mul(a, c Reg) Reg { return b.emit(Instr{Op: OpMul, A: a, B: c}) }

// Less emits an integer comparison.
func (b *FuncBuilder) Less(a, c Reg) Reg { return b.emit(Instr{Op: OpLess, A: a, B: c}) }

// Eq emits an equality test.
func (b *FuncBuilder) Eq(a, c Reg) Reg { return b.emit(Instr{Op: OpEq, A: a, B: c}) }

// Not emits boolean negation.
func (b *FuncBuilder) Not(a Reg) Reg { return b.emit(Instr{Op: OpNot, A: a}) }

// Call emits a direct call.
func (b *FuncBuilder) Call(fn FuncID, args ...Reg) Reg {
	return b.emit(Instr{Op: OpCall, Fn: fn, Args: args})
}

// Perform emits an effect operation through a fresh dynamic evidence slot.
func (b *FuncBuilder) Perform(e EffectID, opIx int, args ...Reg) Reg {
	return b.emit(Instr{
		Op: OpPerform, Effect: e, OpIx: opIx, Args: args,
		Site: b.p.newSite(), Slot: EvidenceSlot{Kind: SlotDynamic},
	})
}

// PerformStatic emits an effect operation through a pre-resolved static
// slot, bypassing propagation for hand-lowered inputs.
func (b *FuncBuilder) PerformStatic(e EffectID, opIx int, h HandlerID, args ...Reg) Reg {
	return b.emit(Instr{
		Op: OpPerform, Effect: e, OpIx: opIx, Args: args,
		Site: b.p.newSite(), Slot: EvidenceSlot{Kind: SlotStatic, Handler: h},
	})
}

// Handle installs one handler around a body call.
func (b *FuncBuilder) Handle(h HandlerID, body FuncID, args ...Reg) Reg {
	return b.HandleMulti([]HandlerID{h}, body, args...)
}

// HandleState installs one handler with an initial value for its state
// cell.
func (b *FuncBuilder) HandleState(h HandlerID, init Reg, body FuncID, args ...Reg) Reg {
	return b.emit(Instr{
		Op: OpHandle, Handlers: []HandlerID{h}, CellArgs: []Reg{init},
		Fn: body, Args: args,
	})
}

// HandleMulti installs several handlers at once around a body call; later
// entries shadow earlier ones for the same effect.
func (b *FuncBuilder) HandleMulti(hs []HandlerID, body FuncID, args ...Reg) Reg {
	return b.emit(Instr{Op: OpHandle, Handlers: hs, Fn: body, Args: args})
}

// Resume resumes the continuation in k with v.
func (b *FuncBuilder) Resume(k, v Reg) Reg { return b.emit(Instr{Op: OpResume, A: k, B: v}) }

// Clone duplicates the continuation in k.
func (b *FuncBuilder) Clone(k Reg) Reg { return b.emit(Instr{Op: OpClone, A: k}) }

// Discard drops the continuation in k without resuming.
func (b *FuncBuilder) Discard(k Reg) { b.emit(Instr{Op: OpDiscard, A: k}) }

// CellGet reads the state cell of the current handler instance.
func (b *FuncBuilder) CellGet() Reg {
	return b.emit(Instr{Op: OpCellGet, Effect: -1})
}

// CellSet writes the state cell of the current handler instance.
func (b *FuncBuilder) CellSet(v Reg) {
	b.emit(Instr{Op: OpCellSet, Effect: -1, A: v})
}

// Foreign emits a foreign call under the given barrier strategy.
func (b *FuncBuilder) Foreign(ix int, strategy BarrierStrategy, args ...Reg) Reg {
	return b.emit(Instr{
		Op: OpForeign, ForeignIx: ix, Barrier: strategy, Args: args,
		Site: b.p.newSite(),
	})
}

// Await polls the future in a until ready.
func (b *FuncBuilder) Await(a Reg) Reg { return b.emit(Instr{Op: OpAwait, A: a}) }

// Ret terminates the current block returning r; pass NoReg to return nil.
func (b *FuncBuilder) Ret(r Reg) {
	b.f.Blocks[b.cur].Term = Term{Kind: TermRet, A: r}
}

// Jmp terminates the current block with an unconditional jump.
func (b *FuncBuilder) Jmp(to int) {
	b.f.Blocks[b.cur].Term = Term{Kind: TermJmp, To: to}
}

// Br terminates the current block branching on cond.
func (b *FuncBuilder) Br(cond Reg, to, els int) {
	b.f.Blocks[b.cur].Term = Term{Kind: TermBr, A: cond, To: to, Else: els}
}
