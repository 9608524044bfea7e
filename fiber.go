// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package effc

// handlerInst is one run-time handler installation: the declaration plus
// a state cell scoped to the installation. Clones of a captured
// continuation receive independent copies of the cell.
type handlerInst struct {
	h    HandlerID
	cell Value
}

// frameKind discriminates stack frames.
type frameKind uint8

const (
	// frameCall is an ordinary function activation.
	frameCall frameKind = iota

	// frameHandle is a Handle body activation; it carries the handler
	// instances installed over it and delimits continuation capture.
	frameHandle

	// frameHandler is a handler operation body activation.
	frameHandler
)

// frame is one activation record of the reference evaluator.
type frame struct {
	fn    FuncID
	f     *Func
	block int
	ip    int
	regs  []Value

	// retDst is the destination register in the frame below for this
	// frame's return value.
	retDst Reg
	kind   frameKind

	// insts holds the installations of a frameHandle, in install order.
	insts []*handlerInst

	// hinst is the instance a frameHandler runs for.
	hinst *handlerInst

	// direct marks a frameHandler entered through the tail-resumptive
	// lowering: its resume returns straight to the performer and its
	// plain return aborts to the owning Handle.
	direct bool

	// owner is the stack index of the owning frameHandle, valid for
	// direct frameHandler frames.
	owner int
}

// fiber is one logical thread of execution: a stack of frames evaluated
// step by step. Fibers are created per Exec or Step call and when an
// escaped continuation is resumed outside its original stack.
type fiber struct {
	art   *Artifact
	stack []*frame
}

func newFiber(a *Artifact) *fiber {
	return &fiber{art: a, stack: make([]*frame, 0, 8)}
}

func (fb *fiber) push(fr *frame) { fb.stack = append(fb.stack, fr) }

func (fb *fiber) top() *frame { return fb.stack[len(fb.stack)-1] }

func (fb *fiber) newFrame(fn FuncID, args []Value, retDst Reg, kind frameKind) *frame {
	f := fb.art.prog.Func(fn)
	fr := &frame{fn: fn, f: f, regs: make([]Value, f.NRegs), retDst: retDst, kind: kind}
	copy(fr.regs, args)
	return fr
}

// findHandler walks the stack from the top looking for the innermost
// installation handling effect e. With a static slot the walk instead
// locates the instance of the resolved handler; the effect must agree,
// which the propagation result guarantees.
func (fb *fiber) findHandler(e EffectID, slot EvidenceSlot) (int, *handlerInst) {
	for i := len(fb.stack) - 1; i >= 0; i-- {
		fr := fb.stack[i]
		if fr.kind != frameHandle {
			continue
		}
		for j := len(fr.insts) - 1; j >= 0; j-- {
			inst := fr.insts[j]
			decl := fb.art.prog.Handler(inst.h)
			if slot.Kind == SlotStatic {
				if inst.h == slot.Handler {
					return i, inst
				}
				continue
			}
			if decl.Effect == e {
				return i, inst
			}
		}
	}
	return -1, nil
}

// currentInst returns the instance of the innermost running handler
// operation body.
func (fb *fiber) currentInst() *handlerInst {
	for i := len(fb.stack) - 1; i >= 0; i-- {
		if fb.stack[i].kind == frameHandler {
			return fb.stack[i].hinst
		}
	}
	return nil
}

// capture detaches the stack segment from the frameHandle at index o to
// the top and wraps it in a one-shot continuation. The top frame must
// already point past the perform; dst is where Resume deposits its value.
func (fb *fiber) capture(o int, dst Reg) (*Continuation, error) {
	a := fb.art
	if a.liveConts.Load() >= int64(a.cfg.MaxLiveContexts) {
		return nil, ErrContextBudget
	}
	seg := make([]*frame, len(fb.stack)-o)
	copy(seg, fb.stack[o:])
	fb.stack = fb.stack[:o]
	k := newContinuation(a, seg, dst)
	a.liveConts.Add(1)
	a.captures.Add(1)
	return k, nil
}

// reattach appends a consumed continuation's segment above the current
// top, rebasing the segment's completion into retDst and depositing v at
// the suspended perform.
func (fb *fiber) reattach(seg []*frame, resumeDst Reg, retDst Reg, v Value) {
	seg[0].retDst = retDst
	top := seg[len(seg)-1]
	top.regs[resumeDst] = v
	fb.stack = append(fb.stack, seg...)
}

// unwindTo pops every frame strictly above index o, running teardown
// notifications for the handler installations it discards, innermost
// first.
func (fb *fiber) unwindTo(o int) {
	for i := len(fb.stack) - 1; i > o; i-- {
		fr := fb.stack[i]
		if fr.kind == frameHandle {
			runTeardowns(fb.art, fr.insts)
		}
	}
	fb.stack = fb.stack[:o+1]
}
