// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package effc

import "code.hybscloud.com/iox"

// run evaluates the fiber until it completes, suspends, or traps.
//
// The instruction pointer advances before an instruction executes, so a
// frame inside a captured segment resumes immediately after its perform;
// Resume deposits the operation result into the perform's destination.
func (fb *fiber) run() (Value, *Suspension, error) {
	for {
		fr := fb.top()
		b := &fr.f.Blocks[fr.block]
		if fr.ip >= len(b.Code) {
			v, done, err := fb.terminate(fr, b)
			if err != nil {
				return nil, nil, err
			}
			if done {
				return v, nil, nil
			}
			continue
		}
		in := &b.Code[fr.ip]
		fr.ip++
		switch in.Op {
		case OpConst:
			fr.regs[in.Dst] = in.Val
		case OpMov:
			fr.regs[in.Dst] = fr.regs[in.A]
		case OpAdd, OpSub, OpMul, OpLess, OpEq:
			fr.regs[in.Dst] = arith(in.Op, fr.regs[in.A], fr.regs[in.B])
		case OpNot:
			fr.regs[in.Dst] = !truthy(fr.regs[in.A])

		case OpCall:
			fb.push(fb.newFrame(in.Fn, fb.gather(fr, in.Args), in.Dst, frameCall))

		case OpHandle:
			nf := fb.newFrame(in.Fn, fb.gather(fr, in.Args), in.Dst, frameHandle)
			nf.insts = make([]*handlerInst, len(in.Handlers))
			for i, h := range in.Handlers {
				inst := &handlerInst{h: h}
				if i < len(in.CellArgs) && in.CellArgs[i] != NoReg {
					inst.cell = fr.regs[in.CellArgs[i]]
				}
				nf.insts[i] = inst
			}
			fb.push(nf)

		case OpPerform:
			o, inst := fb.findHandler(in.Effect, in.Slot)
			if inst == nil {
				return nil, fb.suspendOp(fr, in), nil
			}
			k, err := fb.capture(o, in.Dst)
			if err != nil {
				return nil, nil, err
			}
			decl := fb.art.prog.Handler(inst.h)
			vargs := make([]Value, 0, len(in.Args)+1)
			for _, r := range in.Args {
				vargs = append(vargs, fr.regs[r])
			}
			vargs = append(vargs, k)
			hf := fb.newFrame(decl.Ops[in.OpIx], vargs, k.segment[0].retDst, frameHandler)
			hf.hinst = inst
			fb.push(hf)

		case OpCallHandler:
			o, inst := fb.findHandler(in.Effect, in.Slot)
			if inst == nil {
				// The resolved installation came from a caller that is
				// not on this fiber: the function was entered directly.
				// The site keeps its original effect and arguments, so
				// it suspends like an unresolved perform.
				return nil, fb.suspendOp(fr, in), nil
			}
			decl := fb.art.prog.Handler(inst.h)
			vargs := make([]Value, 0, len(in.Args)+1)
			for _, r := range in.Args {
				vargs = append(vargs, fr.regs[r])
			}
			vargs = append(vargs, nil)
			hf := fb.newFrame(decl.Ops[in.OpIx], vargs, in.Dst, frameHandler)
			hf.hinst = inst
			hf.direct = true
			hf.owner = o
			fb.push(hf)

		case OpResume:
			if fr.kind == frameHandler && fr.direct && in.A == Reg(fr.f.NParams-1) {
				v := fr.regs[in.B]
				fb.stack = fb.stack[:len(fb.stack)-1]
				fb.top().regs[fr.retDst] = v
				continue
			}
			k, ok := fr.regs[in.A].(*Continuation)
			if !ok {
				return nil, nil, &trapError{fn: fr.fn, reason: "resume of non-continuation"}
			}
			if err := k.consume(); err != nil {
				return nil, nil, err
			}
			fb.reattach(k.segment, k.resumeDst, in.Dst, fr.regs[in.B])

		case OpClone:
			k, ok := fr.regs[in.A].(*Continuation)
			if !ok {
				return nil, nil, &trapError{fn: fr.fn, reason: "clone of non-continuation"}
			}
			nk, err := k.Clone()
			if err != nil {
				return nil, nil, err
			}
			fr.regs[in.Dst] = nk

		case OpDiscard:
			k, ok := fr.regs[in.A].(*Continuation)
			if !ok {
				return nil, nil, &trapError{fn: fr.fn, reason: "discard of non-continuation"}
			}
			if err := k.Discard(); err != nil {
				return nil, nil, err
			}

		case OpCellGet:
			inst, err := fb.resolveCell(fr, in)
			if err != nil {
				return nil, nil, err
			}
			fr.regs[in.Dst] = inst.cell

		case OpCellSet:
			inst, err := fb.resolveCell(fr, in)
			if err != nil {
				return nil, nil, err
			}
			inst.cell = fr.regs[in.A]

		case OpForeign:
			fd := &fb.art.prog.Foreigns[in.ForeignIx]
			vargs := fb.gather(fr, in.Args)
			switch in.Barrier {
			case BarrierCallbackConvert:
				if fd.Async == nil {
					return nil, nil, &trapError{fn: fr.fn, reason: "callback-convert without async foreign"}
				}
				pr := NewPromise()
				fd.Async(vargs, pr.Complete)
				if v, err := pr.Poll(); err == nil {
					fr.regs[in.Dst] = v
					continue
				}
				return nil, fb.suspendFuture(pr, in.Dst), nil
			default:
				if fd.Sync == nil {
					return nil, nil, &trapError{fn: fr.fn, reason: "foreign without sync implementation"}
				}
				v, err := fd.Sync(vargs)
				if err != nil {
					return nil, nil, err
				}
				fr.regs[in.Dst] = v
			}

		case OpAwait:
			fut, ok := fr.regs[in.A].(Future)
			if !ok {
				return nil, nil, &trapError{fn: fr.fn, reason: "await of non-future"}
			}
			v, err := fut.Poll()
			switch {
			case err == nil:
				fr.regs[in.Dst] = v
			case err == ErrNotReady || iox.IsWouldBlock(err):
				return nil, fb.suspendFuture(fut, in.Dst), nil
			default:
				return nil, nil, err
			}
		}
	}
}

// terminate executes the block terminator of the top frame. It reports
// completion of the whole fiber through done.
func (fb *fiber) terminate(fr *frame, b *Block) (Value, bool, error) {
	switch b.Term.Kind {
	case TermJmp:
		fr.block, fr.ip = b.Term.To, 0
		return nil, false, nil
	case TermBr:
		if truthy(fr.regs[b.Term.A]) {
			fr.block, fr.ip = b.Term.To, 0
		} else {
			fr.block, fr.ip = b.Term.Else, 0
		}
		return nil, false, nil
	}
	var v Value
	if b.Term.A != NoReg {
		v = fr.regs[b.Term.A]
	}
	return fb.ret(fr, v)
}

// ret pops the top frame, routing its value. A direct handler body that
// returns without resuming aborts: the stack unwinds to the owning
// Handle, which completes with the body's value. A general handler body
// that returns with its continuation unconsumed discards it, firing
// teardowns, unless the continuation itself escapes as the return value.
func (fb *fiber) ret(fr *frame, v Value) (Value, bool, error) {
	fb.stack = fb.stack[:len(fb.stack)-1]

	if fr.kind == frameHandler {
		if fr.direct {
			fb.unwindTo(fr.owner)
			owner := fb.top()
			fb.stack = fb.stack[:len(fb.stack)-1]
			return fb.deposit(owner.retDst, v)
		}
		if k, ok := fr.regs[Reg(fr.f.NParams-1)].(*Continuation); ok && !k.used {
			if kr, escaped := v.(*Continuation); !escaped || kr != k {
				_ = k.Discard()
			}
		}
	}
	return fb.deposit(fr.retDst, v)
}

func (fb *fiber) deposit(dst Reg, v Value) (Value, bool, error) {
	if len(fb.stack) == 0 {
		return v, true, nil
	}
	if dst != NoReg {
		fb.top().regs[dst] = v
	}
	return nil, false, nil
}

func (fb *fiber) gather(fr *frame, args []Reg) []Value {
	vs := make([]Value, len(args))
	for i, r := range args {
		vs[i] = fr.regs[r]
	}
	return vs
}

func (fb *fiber) resolveCell(fr *frame, in *Instr) (*handlerInst, error) {
	if in.Effect == -1 {
		if inst := fb.currentInst(); inst != nil {
			return inst, nil
		}
		return nil, &trapError{fn: fr.fn, reason: "cell access outside handler"}
	}
	if _, inst := fb.findHandler(in.Effect, in.Slot); inst != nil {
		return inst, nil
	}
	return nil, &trapError{fn: fr.fn, reason: "cell access without installation"}
}
