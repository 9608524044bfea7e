// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package effc

// Value is the universal runtime value of the reference evaluator.
type Value = any

// Reg is a virtual register index within one function frame.
// Registers 0..NParams-1 hold the arguments on entry.
type Reg int

// NoReg marks an absent optional register operand.
const NoReg Reg = -1

// Opcode enumerates the instruction set of the effect-handler IR.
type Opcode uint8

const (
	OpConst Opcode = iota
	OpMov
	OpAdd
	OpSub
	OpMul
	OpLess
	OpEq
	OpNot

	// OpCall invokes Fn with Args, storing the result in Dst.
	OpCall

	// OpPerform performs operation OpIx of Effect through the evidence
	// slot recorded in Slot, storing the operation result in Dst.
	OpPerform

	// OpCallHandler is the direct lowering of a tail-resumptive perform:
	// the handler operation body is invoked as a plain call through the
	// resolved slot, with a nil continuation argument.
	OpCallHandler

	// OpHandle installs Handlers and runs body Fn with Args under them,
	// storing the body result in Dst. The installation scope is exactly
	// the dynamic extent of the body call.
	OpHandle

	// OpResume resumes the continuation in A with the value in B,
	// storing the final result of the resumed computation in Dst.
	OpResume

	// OpClone duplicates the continuation in A into Dst. The clone and
	// the original each carry an independent resume permit and
	// independent handler state cells.
	OpClone

	// OpDiscard drops the continuation in A without resuming, running
	// teardown notifications for the handlers it holds.
	OpDiscard

	// OpCellGet reads the state cell of a handler instance. Effect == -1
	// addresses the cell of the currently executing handler instance;
	// after inlining the instruction carries the site's resolved slot.
	OpCellGet

	// OpCellSet writes the state cell, same addressing as OpCellGet.
	OpCellSet

	// OpForeign invokes foreign registry entry ForeignIx with Args under
	// the Barrier strategy, storing the result in Dst.
	OpForeign

	// OpAwait polls the future in A, suspending the enclosing execution
	// context until it is ready, storing the result in Dst.
	OpAwait
)

// BarrierStrategy selects how a Foreign site interacts with continuation
// capture.
type BarrierStrategy uint8

const (
	// BarrierProhibit rejects compilation when a General handler is
	// provably in force over the site, so no continuation can span the
	// foreign frame. Foreign calls run synchronously and never re-enter
	// managed code, so no run-time check remains.
	BarrierProhibit BarrierStrategy = iota

	// BarrierCallbackConvert rewrites the call so the foreign side
	// completes an explicit result slot; the managed side awaits the
	// slot and no continuation spans the foreign frame.
	BarrierCallbackConvert

	// BarrierSaveRestore snapshots the evidence context around the
	// foreign call so re-entrant managed callbacks observe a clean
	// context and the caller's context is restored afterwards.
	BarrierSaveRestore
)

// Instr is one IR instruction. A single struct covers every opcode; the
// populated fields depend on Op.
type Instr struct {
	Op  Opcode
	Dst Reg

	A, B Reg
	Val  Value
	Args []Reg

	Effect EffectID
	OpIx   int
	Site   SiteID
	Slot   EvidenceSlot

	Handlers []HandlerID
	CellArgs []Reg

	Fn FuncID

	Barrier   BarrierStrategy
	ForeignIx int
}

// TermKind enumerates block terminators.
type TermKind uint8

const (
	TermRet TermKind = iota
	TermJmp
	TermBr
)

// Term ends a basic block. Ret returns A (or nil when A == NoReg);
// Jmp continues at block To; Br continues at To when A is truthy and at
// Else otherwise.
type Term struct {
	Kind TermKind
	A    Reg
	To   int
	Else int
}

// Block is one basic block: straight-line instructions plus a terminator.
type Block struct {
	Code []Instr
	Term Term
}

// Func is one function body in destination-register form. Block 0 is the
// entry; registers 0..NParams-1 hold the arguments.
type Func struct {
	Name    string
	NParams int
	NRegs   int
	Blocks  []Block
}

// clone deep-copies a function, detaching all instruction and block
// slices so pass rewrites never alias the source.
func (f *Func) clone() *Func {
	g := &Func{Name: f.Name, NParams: f.NParams, NRegs: f.NRegs}
	g.Blocks = make([]Block, len(f.Blocks))
	for i, b := range f.Blocks {
		nb := Block{Term: b.Term}
		nb.Code = make([]Instr, len(b.Code))
		for j, in := range b.Code {
			ni := in
			if in.Args != nil {
				ni.Args = append([]Reg(nil), in.Args...)
			}
			if in.Handlers != nil {
				ni.Handlers = append([]HandlerID(nil), in.Handlers...)
			}
			if in.CellArgs != nil {
				ni.CellArgs = append([]Reg(nil), in.CellArgs...)
			}
			nb.Code[j] = ni
		}
		g.Blocks[i] = nb
	}
	return g
}

// asInt coerces the numeric Values the evaluator computes with.
func asInt(v Value) int {
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	case bool:
		if x {
			return 1
		}
		return 0
	default:
		return 0
	}
}

// arith evaluates the pure binary opcodes.
func arith(op Opcode, a, b Value) Value {
	switch op {
	case OpAdd:
		return asInt(a) + asInt(b)
	case OpSub:
		return asInt(a) - asInt(b)
	case OpMul:
		return asInt(a) * asInt(b)
	case OpLess:
		return asInt(a) < asInt(b)
	case OpEq:
		return a == b
	default:
		return nil
	}
}

// truthy reports the branch interpretation of a Value.
func truthy(v Value) bool {
	switch x := v.(type) {
	case bool:
		return x
	case int:
		return x != 0
	case int64:
		return x != 0
	case nil:
		return false
	default:
		return true
	}
}

// writesDst reports whether the opcode defines its Dst register.
func (op Opcode) writesDst() bool {
	switch op {
	case OpDiscard, OpCellSet:
		return false
	default:
		return true
	}
}

// pure reports whether the instruction is free of side effects and
// therefore removable when its destination is dead.
func (in *Instr) pure() bool {
	switch in.Op {
	case OpConst, OpMov, OpAdd, OpSub, OpMul, OpLess, OpEq, OpNot:
		return true
	default:
		return false
	}
}

// uses appends every register the instruction reads to buf.
func (in *Instr) uses(buf []Reg) []Reg {
	switch in.Op {
	case OpConst:
	case OpMov, OpNot, OpClone, OpDiscard, OpAwait:
		buf = append(buf, in.A)
	case OpAdd, OpSub, OpMul, OpLess, OpEq, OpResume:
		buf = append(buf, in.A, in.B)
	case OpCall, OpPerform, OpCallHandler, OpForeign:
		buf = append(buf, in.Args...)
	case OpHandle:
		buf = append(buf, in.Args...)
		for _, r := range in.CellArgs {
			if r != NoReg {
				buf = append(buf, r)
			}
		}
	case OpCellGet:
		buf = append(buf, in.CellArgs...)
	case OpCellSet:
		buf = append(buf, in.CellArgs...)
		buf = append(buf, in.A)
	}
	return buf
}
