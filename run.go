// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package effc

import (
	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
)

// Suspension is a paused fiber. It is produced when execution reaches an
// effect operation with no installed handler, or an await whose future is
// not ready. The holder inspects the pending operation, supplies its
// result with Resume, or abandons the fiber with Discard.
//
// A suspension carries one resume permit; the second consumption attempt
// returns ErrResumeCompleted.
type Suspension struct {
	fb     *fiber
	dst    Reg
	effect EffectID
	opIx   int
	args   []Value
	fut    Future
	permit *kont.Affine[struct{}, struct{}]
}

func (fb *fiber) suspendOp(fr *frame, in *Instr) *Suspension {
	return &Suspension{
		fb: fb, dst: in.Dst, effect: in.Effect, opIx: in.OpIx,
		args:   fb.gather(fr, in.Args),
		permit: kont.Once[struct{}](func(struct{}) struct{} { return struct{}{} }),
	}
}

func (fb *fiber) suspendFuture(fut Future, dst Reg) *Suspension {
	return &Suspension{
		fb: fb, dst: dst, effect: -1, fut: fut,
		permit: kont.Once[struct{}](func(struct{}) struct{} { return struct{}{} }),
	}
}

// Effect reports the pending effect, or -1 for an await suspension.
func (s *Suspension) Effect() EffectID { return s.effect }

// OpIndex reports the pending operation index within the effect.
func (s *Suspension) OpIndex() int { return s.opIx }

// Args returns the operation arguments at the suspended site.
func (s *Suspension) Args() []Value { return s.args }

// Future returns the pending future of an await suspension, nil for an
// effect suspension.
func (s *Suspension) Future() Future { return s.fut }

// Resume supplies the operation result and continues the fiber until the
// next suspension or completion.
func (s *Suspension) Resume(v Value) (Value, *Suspension, error) {
	if _, ok := s.permit.TryResume(struct{}{}); !ok {
		return nil, nil, ErrResumeCompleted
	}
	if s.dst != NoReg {
		s.fb.top().regs[s.dst] = v
	}
	return s.fb.run()
}

// TryResume is Resume with the consumed case reported through ok instead
// of an error.
func (s *Suspension) TryResume(v Value) (Value, *Suspension, bool, error) {
	r, next, err := s.Resume(v)
	if err == ErrResumeCompleted {
		return nil, nil, false, nil
	}
	return r, next, true, err
}

// Discard abandons the fiber, firing teardown notifications for every
// handler installation still on its stack, innermost first.
func (s *Suspension) Discard() error {
	if _, ok := s.permit.TryResume(struct{}{}); !ok {
		return ErrResumeCompleted
	}
	for i := len(s.fb.stack) - 1; i >= 0; i-- {
		fr := s.fb.stack[i]
		if fr.kind == frameHandle {
			runTeardowns(s.fb.art, fr.insts)
		}
	}
	s.fb.stack = s.fb.stack[:0]
	return nil
}

// Exec runs fn to completion on the calling goroutine. Pending futures
// are polled with adaptive backoff; no goroutines are spawned and no
// channels are created. Reaching an effect operation with no installed
// handler is an error: use Step when the caller dispatches operations
// itself.
func (a *Artifact) Exec(fn FuncID, args ...Value) (Value, error) {
	fb, err := a.newRun(fn, args)
	if err != nil {
		return nil, err
	}
	return a.drive(fb)
}

// Step runs fn until its first suspension. It returns (result, nil, nil)
// on completion, or (nil, suspension, nil) with the pending operation or
// future for the caller to dispatch.
func (a *Artifact) Step(fn FuncID, args ...Value) (Value, *Suspension, error) {
	fb, err := a.newRun(fn, args)
	if err != nil {
		return nil, nil, err
	}
	return fb.run()
}

// ExecEither is Exec with the result folded into an Either: Left carries
// the error, Right the value.
func (a *Artifact) ExecEither(fn FuncID, args ...Value) kont.Either[error, Value] {
	v, err := a.Exec(fn, args...)
	if err != nil {
		return kont.Left[error, Value](err)
	}
	return kont.Right[error](v)
}

func (a *Artifact) newRun(fn FuncID, args []Value) (*fiber, error) {
	f := a.prog.Func(fn)
	if len(args) != f.NParams {
		return nil, &CompileError{Fn: fn, Reason: "argument count mismatch"}
	}
	fb := newFiber(a)
	fb.push(fb.newFrame(fn, args, NoReg, frameCall))
	return fb, nil
}

// drive pumps a fiber to completion, waiting out await suspensions with
// adaptive backoff.
func (a *Artifact) drive(fb *fiber) (Value, error) {
	v, s, err := fb.run()
	var bo iox.Backoff
	for {
		switch {
		case err != nil:
			return nil, err
		case s == nil:
			return v, nil
		case s.fut == nil:
			name := "?"
			if int(s.effect) >= 0 && int(s.effect) < len(a.prog.Effects) {
				name = a.prog.Effects[s.effect].Name
			}
			return nil, &trapError{reason: "unhandled effect operation " + name}
		}
		for {
			rv, perr := s.fut.Poll()
			if perr == nil {
				v, s, err = s.Resume(rv)
				bo.Reset()
				break
			}
			if perr == ErrNotReady || iox.IsWouldBlock(perr) {
				bo.Wait()
				continue
			}
			return nil, perr
		}
	}
}
