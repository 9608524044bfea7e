// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package effc_test

import (
	"errors"
	"testing"

	"code.hybscloud.com/effc"
	"go.uber.org/multierr"
)

// choiceProgram builds a non-tail-resumptive handler over a body that
// performs the effect and then crosses a foreign boundary with the given
// strategy. The handler resumes and keeps computing afterwards, so captures
// over the foreign frame are possible.
func choiceProgram(strategy effc.BarrierStrategy) (*effc.Program, effc.FuncID) {
	p := effc.NewProgram()
	native := p.AddForeign(effc.ForeignDecl{
		Name: "native",
		Sync: func(args []effc.Value) (effc.Value, error) { return 100, nil },
	})
	choice := p.AddEffect(effc.EffectDecl{Name: "choice", Ops: []effc.OpDecl{
		{Name: "flip", NParams: 0, Observable: true},
	}})
	flip := p.NewFunc("choice.flip", 1)
	one := flip.Const(1)
	r := flip.Resume(flip.Param(0), one)
	flip.Ret(flip.Add(r, one))
	h := p.AddHandler(effc.HandlerDecl{Effect: choice, Ops: []effc.FuncID{flip.Fn()}})

	body := p.NewFunc("body", 0)
	v := body.Perform(choice, 0)
	w := body.Foreign(native, strategy)
	body.Ret(body.Add(v, w))

	main := p.NewFunc("main", 0)
	main.Ret(main.Handle(h, body.Fn()))
	return p, main.Fn()
}

func TestProhibitedBoundaryUnderGeneralHandlerRejected(t *testing.T) {
	p, _ := choiceProgram(effc.BarrierProhibit)
	_, err := effc.Compile(p, effc.DefaultConfig())
	var viol *effc.FfiViolationError
	if !errors.As(err, &viol) {
		t.Fatalf("got %v, want an FfiViolationError", err)
	}
	if viol.Foreign != "native" {
		t.Fatalf("violation names foreign %q, want %q", viol.Foreign, "native")
	}
}

func TestSaveRestoreBoundaryAccepted(t *testing.T) {
	p, main := choiceProgram(effc.BarrierSaveRestore)
	art := mustCompile(t, p, effc.DefaultConfig())
	// flip resumes with 1, the body adds the foreign 100, flip adds 1.
	if got := mustExec(t, art, main); got != 102 {
		t.Fatalf("got %v, want 102", got)
	}
}

func TestProhibitedBoundaryUnderTailHandlerAccepted(t *testing.T) {
	// A tail-resumptive handler never keeps a capture, so Prohibit is fine.
	p, main := buildCounter(3)
	native := p.AddForeign(effc.ForeignDecl{
		Name: "native",
		Sync: func(args []effc.Value) (effc.Value, error) { return args[0], nil },
	})
	wrap := p.NewFunc("wrap", 0)
	v := wrap.Call(main)
	wrap.Ret(wrap.Foreign(native, effc.BarrierProhibit, v))
	art := mustCompile(t, p, effc.DefaultConfig())
	if got := mustExec(t, art, wrap.Fn()); got != 3 {
		t.Fatalf("got %v, want 3", got)
	}
}

func TestContinuationAcrossBoundaryRejected(t *testing.T) {
	p := effc.NewProgram()
	native := p.AddForeign(effc.ForeignDecl{
		Name: "sink",
		Sync: func(args []effc.Value) (effc.Value, error) { return nil, nil },
	})
	esc := p.AddEffect(effc.EffectDecl{Name: "esc", Ops: []effc.OpDecl{
		{Name: "grab", NParams: 0, Observable: true},
	}})
	grab := p.NewFunc("esc.grab", 1)
	grab.Foreign(native, effc.BarrierSaveRestore, grab.Param(0))
	unit := grab.Const(nil)
	grab.Ret(grab.Resume(grab.Param(0), unit))
	h := p.AddHandler(effc.HandlerDecl{Effect: esc, Ops: []effc.FuncID{grab.Fn()}})

	body := p.NewFunc("body", 0)
	body.Ret(body.Perform(esc, 0))
	main := p.NewFunc("main", 0)
	main.Ret(main.Handle(h, body.Fn()))

	_, err := effc.Compile(p, effc.DefaultConfig())
	var viol *effc.FfiViolationError
	if !errors.As(err, &viol) {
		t.Fatalf("got %v, want an FfiViolationError", err)
	}
	if viol.Reason != "continuation passed across foreign boundary" {
		t.Fatalf("unexpected reason %q", viol.Reason)
	}
}

func TestViolationsAggregatePerSite(t *testing.T) {
	p := effc.NewProgram()
	native := p.AddForeign(effc.ForeignDecl{
		Name: "native",
		Sync: func(args []effc.Value) (effc.Value, error) { return nil, nil },
	})
	choice := p.AddEffect(effc.EffectDecl{Name: "choice", Ops: []effc.OpDecl{
		{Name: "flip", NParams: 0, Observable: true},
	}})
	flip := p.NewFunc("choice.flip", 1)
	one := flip.Const(1)
	r := flip.Resume(flip.Param(0), one)
	flip.Ret(flip.Add(r, one))
	h := p.AddHandler(effc.HandlerDecl{Effect: choice, Ops: []effc.FuncID{flip.Fn()}})

	mkBad := func(name string) effc.FuncID {
		f := p.NewFunc(name, 0)
		v := f.Perform(choice, 0)
		f.Foreign(native, effc.BarrierProhibit)
		f.Ret(v)
		return f.Fn()
	}
	badA, badB := mkBad("badA"), mkBad("badB")
	main := p.NewFunc("main", 0)
	a := main.Handle(h, badA)
	b := main.Handle(h, badB)
	main.Ret(main.Add(a, b))

	_, err := effc.Compile(p, effc.DefaultConfig())
	if err == nil {
		t.Fatal("compile accepted two prohibited boundaries")
	}
	if got := len(multierr.Errors(err)); got != 2 {
		t.Fatalf("got %d aggregated violations, want 2", got)
	}
}

func TestCallbackConvertSuspendsOnFuture(t *testing.T) {
	skipRace(t)
	var complete func(effc.Value)
	p := effc.NewProgram()
	slow := p.AddForeign(effc.ForeignDecl{
		Name:  "slow",
		Async: func(args []effc.Value, done func(effc.Value)) { complete = done },
	})
	body := p.NewFunc("body", 0)
	body.Ret(body.Foreign(slow, effc.BarrierCallbackConvert))

	art := mustCompile(t, p, effc.DefaultConfig())
	_, s, err := art.Step(body.Fn())
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if s == nil || s.Future() == nil {
		t.Fatal("expected an await suspension with a pending future")
	}
	if _, err := s.Future().Poll(); !errors.Is(err, effc.ErrNotReady) {
		t.Fatalf("poll before completion got %v, want ErrNotReady", err)
	}
	complete(7)
	rv, err := s.Future().Poll()
	if err != nil {
		t.Fatalf("poll after completion: %v", err)
	}
	v, s2, err := s.Resume(rv)
	if err != nil || s2 != nil {
		t.Fatalf("resume: %v, %v", s2, err)
	}
	if v != 7 {
		t.Fatalf("got %v, want 7", v)
	}
}

func TestCallbackConvertImmediateCompletion(t *testing.T) {
	skipRace(t)
	p := effc.NewProgram()
	fast := p.AddForeign(effc.ForeignDecl{
		Name:  "fast",
		Async: func(args []effc.Value, done func(effc.Value)) { done(9) },
	})
	body := p.NewFunc("body", 0)
	body.Ret(body.Foreign(fast, effc.BarrierCallbackConvert))

	art := mustCompile(t, p, effc.DefaultConfig())
	if got := mustExec(t, art, body.Fn()); got != 9 {
		t.Fatalf("got %v, want 9", got)
	}
}
