// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package effc

import "code.hybscloud.com/iox"

// asyncspec is the specializer pass. A function whose only suspension
// points are awaits in straight-line position compiles to a flat state
// machine: a position plus a fixed register record, no frame copying and
// no continuation objects. The pass is analysis only; the plan records
// which functions qualify and the artifact serves them through
// StateMachine.
//
// A function qualifies when
//
//   - every await sits in an acyclic block,
//   - the register record fits StateBudget,
//   - it is not recursive,
//   - it and its callees suspend through awaits only: no performs,
//     handles, continuation operations, or callback-converted foreign
//     calls anywhere in the call closure, and callees contain no awaits
//     of their own.
type asyncspec struct{}

func (asyncspec) name() string { return "asyncspec" }

func (asyncspec) run(pc *passCtx) (bool, error) {
	p := pc.prog
	sf := syncOnly(p)
	for fi, f := range p.Funcs {
		fid := FuncID(fi)
		ok := specializable(pc, fid, f, sf)
		if pc.asyncFns[fid] != ok {
			pc.asyncFns[fid] = ok
		}
	}
	return false, nil
}

func specializable(pc *passCtx, fid FuncID, f *Func, sf map[FuncID]bool) bool {
	if f.NRegs > pc.cfg.StateBudget {
		return false
	}
	cyc := cyclicBlocks(f)
	awaits := 0
	for bi := range f.Blocks {
		for ii := range f.Blocks[bi].Code {
			in := &f.Blocks[bi].Code[ii]
			switch in.Op {
			case OpAwait:
				if cyc[bi] {
					return false
				}
				awaits++
			case OpCall:
				if in.Fn == fid || !sf[in.Fn] {
					return false
				}
			case OpForeign:
				if in.Barrier != BarrierProhibit {
					return false
				}
			case OpPerform, OpCallHandler, OpHandle, OpResume, OpClone, OpDiscard, OpCellGet, OpCellSet:
				return false
			}
		}
	}
	return awaits > 0
}

// syncOnly computes which functions complete synchronously: no awaits, no
// effect machinery, no callback-converted foreign calls, transitively.
func syncOnly(p *Program) map[FuncID]bool {
	ok := make(map[FuncID]bool, len(p.Funcs))
	for fi := range p.Funcs {
		ok[FuncID(fi)] = true
	}
	for {
		changed := false
		for fi, f := range p.Funcs {
			if !ok[FuncID(fi)] {
				continue
			}
			good := true
		scan:
			for bi := range f.Blocks {
				for ii := range f.Blocks[bi].Code {
					in := &f.Blocks[bi].Code[ii]
					switch in.Op {
					case OpAwait, OpPerform, OpCallHandler, OpHandle,
						OpResume, OpClone, OpDiscard, OpCellGet, OpCellSet:
						good = false
						break scan
					case OpForeign:
						if in.Barrier != BarrierProhibit {
							good = false
							break scan
						}
					case OpCall:
						if !ok[in.Fn] {
							good = false
							break scan
						}
					}
				}
			}
			if !good {
				ok[FuncID(fi)] = false
				changed = true
			}
		}
		if !changed {
			return ok
		}
	}
}

// cyclicBlocks marks blocks that sit on a cycle of the block graph.
func cyclicBlocks(f *Func) []bool {
	n := len(f.Blocks)
	succ := func(b *Block) []int {
		switch b.Term.Kind {
		case TermJmp:
			return []int{b.Term.To}
		case TermBr:
			return []int{b.Term.To, b.Term.Else}
		default:
			return nil
		}
	}
	// Reachability closure per block; a block on a cycle reaches itself.
	reach := make([][]bool, n)
	for i := range reach {
		reach[i] = make([]bool, n)
		for _, s := range succ(&f.Blocks[i]) {
			reach[i][s] = true
		}
	}
	for {
		changed := false
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if !reach[i][j] {
					continue
				}
				for k := 0; k < n; k++ {
					if reach[j][k] && !reach[i][k] {
						reach[i][k] = true
						changed = true
					}
				}
			}
		}
		if !changed {
			break
		}
	}
	cyc := make([]bool, n)
	for i := 0; i < n; i++ {
		cyc[i] = reach[i][i]
	}
	return cyc
}

// StateMachine is the specialized execution form of an async function: a
// resume position and a flat register record. Poll advances execution to
// the next unready await or to completion; it never copies frames and
// never allocates continuations.
type StateMachine struct {
	art    *Artifact
	fn     *Func
	regs   []Value
	block  int
	ip     int
	done   bool
	result Value
}

// StateMachine instantiates the specialized form of fn. It fails when the
// specializer did not qualify the function.
func (a *Artifact) StateMachine(fn FuncID, args ...Value) (*StateMachine, error) {
	if !a.Plan.AsyncFuncs[fn] {
		return nil, &CompileError{Fn: fn, Reason: "not specializable"}
	}
	f := a.prog.Func(fn)
	if len(args) != f.NParams {
		return nil, &CompileError{Fn: fn, Reason: "argument count mismatch"}
	}
	m := &StateMachine{art: a, fn: f, regs: make([]Value, f.NRegs)}
	copy(m.regs, args)
	return m, nil
}

// Poll resumes execution. It returns the final value on completion,
// iox.ErrWouldBlock while an await is pending, and any trap otherwise.
// Poll after completion returns the result again.
func (m *StateMachine) Poll() (Value, error) {
	if m.done {
		return m.result, nil
	}
	for {
		b := &m.fn.Blocks[m.block]
		for m.ip < len(b.Code) {
			in := &b.Code[m.ip]
			switch in.Op {
			case OpConst:
				m.regs[in.Dst] = in.Val
			case OpMov:
				m.regs[in.Dst] = m.regs[in.A]
			case OpAdd, OpSub, OpMul, OpLess, OpEq:
				m.regs[in.Dst] = arith(in.Op, m.regs[in.A], m.regs[in.B])
			case OpNot:
				m.regs[in.Dst] = !truthy(m.regs[in.A])
			case OpCall:
				v, err := m.callSync(in.Fn, in.Args)
				if err != nil {
					return nil, err
				}
				m.regs[in.Dst] = v
			case OpForeign:
				fd := &m.art.prog.Foreigns[in.ForeignIx]
				args := make([]Value, len(in.Args))
				for i, r := range in.Args {
					args[i] = m.regs[r]
				}
				v, err := fd.Sync(args)
				if err != nil {
					return nil, err
				}
				m.regs[in.Dst] = v
			case OpAwait:
				fut, ok := m.regs[in.A].(Future)
				if !ok {
					return nil, &trapError{reason: "await of non-future"}
				}
				v, err := fut.Poll()
				if err == ErrNotReady || iox.IsWouldBlock(err) {
					return nil, iox.ErrWouldBlock
				}
				if err != nil {
					return nil, err
				}
				m.regs[in.Dst] = v
			}
			m.ip++
		}
		switch b.Term.Kind {
		case TermRet:
			m.done = true
			if b.Term.A != NoReg {
				m.result = m.regs[b.Term.A]
			}
			return m.result, nil
		case TermJmp:
			m.block, m.ip = b.Term.To, 0
		case TermBr:
			if truthy(m.regs[b.Term.A]) {
				m.block, m.ip = b.Term.To, 0
			} else {
				m.block, m.ip = b.Term.Else, 0
			}
		}
	}
}

// Drive polls the machine to completion with adaptive backoff.
func (m *StateMachine) Drive() (Value, error) {
	return Drive(FutureFunc(m.Poll))
}

// callSync evaluates a suspension-free callee with plain recursion.
func (m *StateMachine) callSync(fn FuncID, argRegs []Reg) (Value, error) {
	args := make([]Value, len(argRegs))
	for i, r := range argRegs {
		args[i] = m.regs[r]
	}
	return syncEval(m.art.prog, fn, args)
}

// syncEval is the recursive evaluator for functions the specializer
// proved free of suspensions.
func syncEval(p *Program, fn FuncID, args []Value) (Value, error) {
	f := p.Func(fn)
	regs := make([]Value, f.NRegs)
	copy(regs, args)
	block, ip := 0, 0
	for {
		b := &f.Blocks[block]
		for ip < len(b.Code) {
			in := &b.Code[ip]
			switch in.Op {
			case OpConst:
				regs[in.Dst] = in.Val
			case OpMov:
				regs[in.Dst] = regs[in.A]
			case OpAdd, OpSub, OpMul, OpLess, OpEq:
				regs[in.Dst] = arith(in.Op, regs[in.A], regs[in.B])
			case OpNot:
				regs[in.Dst] = !truthy(regs[in.A])
			case OpCall:
				sub := make([]Value, len(in.Args))
				for i, r := range in.Args {
					sub[i] = regs[r]
				}
				v, err := syncEval(p, in.Fn, sub)
				if err != nil {
					return nil, err
				}
				regs[in.Dst] = v
			case OpForeign:
				fd := &p.Foreigns[in.ForeignIx]
				args := make([]Value, len(in.Args))
				for i, r := range in.Args {
					args[i] = regs[r]
				}
				v, err := fd.Sync(args)
				if err != nil {
					return nil, err
				}
				regs[in.Dst] = v
			}
			ip++
		}
		switch b.Term.Kind {
		case TermRet:
			if b.Term.A != NoReg {
				return regs[b.Term.A], nil
			}
			return nil, nil
		case TermJmp:
			block, ip = b.Term.To, 0
		case TermBr:
			if truthy(regs[b.Term.A]) {
				block, ip = b.Term.To, 0
			} else {
				block, ip = b.Term.Else, 0
			}
		}
	}
}
