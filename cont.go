// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package effc

import "code.hybscloud.com/kont"

// Continuation is a captured execution context: the stack segment between
// a perform and its handler's installation, suspended mid-instruction.
//
// A continuation carries one resume permit. Resume and Discard consume
// it; a second consumption attempt returns ErrResumeCompleted, never
// panics. Multi-shot use goes through Clone, which mints an independent
// permit and independent handler state cells.
type Continuation struct {
	serial    Serial
	art       *Artifact
	segment   []*frame
	resumeDst Reg
	permit    *kont.Affine[struct{}, struct{}]
	used      bool
}

func newContinuation(a *Artifact, seg []*frame, dst Reg) *Continuation {
	return &Continuation{
		serial:    nextSerial(),
		art:       a,
		segment:   seg,
		resumeDst: dst,
		permit:    kont.Once[struct{}](func(struct{}) struct{} { return struct{}{} }),
	}
}

// Serial returns the unique identifier of this continuation. Clones get
// fresh serials.
func (k *Continuation) Serial() Serial { return k.serial }

// consume claims the resume permit.
func (k *Continuation) consume() error {
	if _, ok := k.permit.TryResume(struct{}{}); !ok {
		return ErrResumeCompleted
	}
	k.used = true
	k.art.liveConts.Add(-1)
	return nil
}

// Resume runs the continuation to completion on a fresh fiber, supplying
// v as the result of the suspended perform. This is the external entry
// for continuations that escaped their handler; resumes inside handler
// bodies go through the Resume instruction and splice onto the running
// stack instead.
func (k *Continuation) Resume(v Value) (Value, error) {
	if err := k.consume(); err != nil {
		return nil, err
	}
	fb := newFiber(k.art)
	fb.reattach(k.segment, k.resumeDst, NoReg, v)
	return k.art.drive(fb)
}

// Discard consumes the continuation without running it. Teardown
// notifications fire for every handler installation held by the segment,
// innermost first.
func (k *Continuation) Discard() error {
	if err := k.consume(); err != nil {
		return err
	}
	for i := len(k.segment) - 1; i >= 0; i-- {
		fr := k.segment[i]
		if fr.kind == frameHandle {
			runTeardowns(k.art, fr.insts)
		}
	}
	return nil
}

// Clone duplicates the continuation: frames, registers, and handler
// state cells are copied, so the clone and the original resume into
// disjoint state. Cloning a consumed continuation fails with
// ErrResumeCompleted.
func (k *Continuation) Clone() (*Continuation, error) {
	if k.used {
		return nil, ErrResumeCompleted
	}
	a := k.art
	if a.liveConts.Load() >= int64(a.cfg.MaxLiveContexts) {
		return nil, ErrContextBudget
	}
	seg := cloneSegment(k.segment)
	nk := newContinuation(a, seg, k.resumeDst)
	a.liveConts.Add(1)
	a.captures.Add(1)
	return nk, nil
}

// cloneSegment deep-copies a stack segment. Handler instances installed
// inside the segment are duplicated and every frame reference to them is
// remapped; instances installed below the segment stay shared, since they
// are outside the captured context.
func cloneSegment(seg []*frame) []*frame {
	remap := make(map[*handlerInst]*handlerInst)
	out := make([]*frame, len(seg))
	for i, fr := range seg {
		nf := &frame{
			fn: fr.fn, f: fr.f, block: fr.block, ip: fr.ip,
			retDst: fr.retDst, kind: fr.kind, direct: fr.direct, owner: fr.owner,
		}
		nf.regs = make([]Value, len(fr.regs))
		copy(nf.regs, fr.regs)
		if fr.insts != nil {
			nf.insts = make([]*handlerInst, len(fr.insts))
			for j, inst := range fr.insts {
				ni := &handlerInst{h: inst.h, cell: inst.cell}
				remap[inst] = ni
				nf.insts[j] = ni
			}
		}
		nf.hinst = fr.hinst
		out[i] = nf
	}
	for _, fr := range out {
		if fr.hinst != nil {
			if ni, ok := remap[fr.hinst]; ok {
				fr.hinst = ni
			}
		}
	}
	return out
}

// runTeardowns fires the teardown notification of each installation that
// declares one, innermost (latest installed) first. Teardowns run on a
// private fiber; a teardown that suspends is abandoned.
func runTeardowns(a *Artifact, insts []*handlerInst) {
	for j := len(insts) - 1; j >= 0; j-- {
		inst := insts[j]
		decl := a.prog.Handler(inst.h)
		if decl.Teardown == NoFunc || decl.Teardown < 0 {
			continue
		}
		fb := newFiber(a)
		fb.push(fb.newFrame(decl.Teardown, []Value{inst.cell}, NoReg, frameCall))
		_, _, _ = fb.run()
	}
}
