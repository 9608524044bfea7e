// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package effc_test

import (
	"testing"

	"code.hybscloud.com/effc"
)

// buildCounter returns a program whose main runs a get/put state loop up
// to limit under a tail-resumptive state handler and returns the final
// cell value.
func buildCounter(limit int) (*effc.Program, effc.FuncID) {
	p := effc.NewProgram()
	state := p.AddEffect(effc.EffectDecl{Name: "state", Ops: []effc.OpDecl{
		{Name: "get", NParams: 0, Observable: false},
		{Name: "put", NParams: 1, Observable: true},
	}})

	get := p.NewFunc("state.get", 1)
	get.Ret(get.Resume(get.Param(0), get.CellGet()))

	put := p.NewFunc("state.put", 2)
	put.CellSet(put.Param(0))
	unit := put.Const(nil)
	put.Ret(put.Resume(put.Param(1), unit))

	h := p.AddHandler(effc.HandlerDecl{
		Effect: state, Ops: []effc.FuncID{get.Fn(), put.Fn()}, Teardown: effc.NoFunc,
	})

	loop := p.NewFunc("counter", 1)
	cond, body, done := loop.Block(), loop.Block(), loop.Block()
	loop.Jmp(cond)
	loop.SetBlock(cond)
	g := loop.Perform(state, 0)
	c := loop.Less(g, loop.Param(0))
	loop.Br(c, body, done)
	loop.SetBlock(body)
	one := loop.Const(1)
	ng := loop.Add(g, one)
	loop.Perform(state, 1, ng)
	loop.Jmp(cond)
	loop.SetBlock(done)
	loop.Ret(loop.Perform(state, 0))

	main := p.NewFunc("main", 0)
	lim := main.Const(limit)
	init := main.Const(0)
	main.Ret(main.HandleState(h, init, loop.Fn(), lim))
	return p, main.Fn()
}

// buildAmb returns a program with a multi-shot handler: flip is performed
// once, the handler clones the continuation and resumes both branches,
// summing their results. The expected value is 30 (false branch 20 plus
// true branch 10).
func buildAmb() (*effc.Program, effc.FuncID) {
	p := effc.NewProgram()
	amb := p.AddEffect(effc.EffectDecl{Name: "amb", Ops: []effc.OpDecl{
		{Name: "flip", NParams: 0, Observable: true},
	}})

	flip := p.NewFunc("amb.flip", 1)
	k2 := flip.Clone(flip.Param(0))
	fv := flip.Const(false)
	a := flip.Resume(flip.Param(0), fv)
	tv := flip.Const(true)
	b := flip.Resume(k2, tv)
	flip.Ret(flip.Add(a, b))

	h := p.AddHandler(effc.HandlerDecl{
		Effect: amb, Ops: []effc.FuncID{flip.Fn()},
		Strategy: effc.StrategyMulti, Teardown: effc.NoFunc,
	})

	body := p.NewFunc("choose", 0)
	bt, bf := body.Block(), body.Block()
	f := body.Perform(amb, 0)
	body.Br(f, bt, bf)
	body.SetBlock(bt)
	body.Ret(body.Const(10))
	body.SetBlock(bf)
	body.Ret(body.Const(20))

	main := p.NewFunc("main", 0)
	main.Ret(main.Handle(h, body.Fn()))
	return p, main.Fn()
}

// buildAbort returns a program with an abortive handler: throw never
// resumes, so the handle completes with the thrown value and the code
// after the perform never runs.
func buildAbort() (*effc.Program, effc.FuncID) {
	p := effc.NewProgram()
	exc := p.AddEffect(effc.EffectDecl{Name: "exc", Ops: []effc.OpDecl{
		{Name: "throw", NParams: 1, Observable: true},
	}})

	throw := p.NewFunc("exc.throw", 2)
	throw.Ret(throw.Param(0))

	h := p.AddHandler(effc.HandlerDecl{
		Effect: exc, Ops: []effc.FuncID{throw.Fn()},
		Strategy: effc.StrategyAbort, Teardown: effc.NoFunc,
	})

	body := p.NewFunc("raise", 0)
	nine := body.Const(9)
	x := body.Perform(exc, 0, nine)
	big := body.Const(1000)
	body.Ret(body.Add(x, big))

	main := p.NewFunc("main", 0)
	main.Ret(main.Handle(h, body.Fn()))
	return p, main.Fn()
}

// buildEscape returns a program whose handler lets the continuation
// escape: main returns the captured continuation itself. The suspended
// computation increments an inner state cell once and returns the final
// cell value, so every independent resume yields 1.
func buildEscape() (*effc.Program, effc.FuncID) {
	p := effc.NewProgram()
	esc := p.AddEffect(effc.EffectDecl{Name: "esc", Ops: []effc.OpDecl{
		{Name: "grab", NParams: 0, Observable: true},
	}})
	state := p.AddEffect(effc.EffectDecl{Name: "cell", Ops: []effc.OpDecl{
		{Name: "get", NParams: 0, Observable: false},
		{Name: "put", NParams: 1, Observable: true},
	}})

	grab := p.NewFunc("esc.grab", 1)
	grab.Ret(grab.Param(0))
	hEsc := p.AddHandler(effc.HandlerDecl{
		Effect: esc, Ops: []effc.FuncID{grab.Fn()}, Teardown: effc.NoFunc,
	})

	get := p.NewFunc("cell.get", 1)
	get.Ret(get.Resume(get.Param(0), get.CellGet()))
	put := p.NewFunc("cell.put", 2)
	put.CellSet(put.Param(0))
	unit := put.Const(nil)
	put.Ret(put.Resume(put.Param(1), unit))
	hCell := p.AddHandler(effc.HandlerDecl{
		Effect: state, Ops: []effc.FuncID{get.Fn(), put.Fn()}, Teardown: effc.NoFunc,
	})

	inner := p.NewFunc("inner", 0)
	inner.Perform(esc, 0)
	g := inner.Perform(state, 0)
	one := inner.Const(1)
	n := inner.Add(g, one)
	inner.Perform(state, 1, n)
	inner.Ret(inner.Perform(state, 0))

	mid := p.NewFunc("mid", 0)
	init := mid.Const(0)
	mid.Ret(mid.HandleState(hCell, init, inner.Fn()))

	main := p.NewFunc("main", 0)
	main.Ret(main.Handle(hEsc, mid.Fn()))
	return p, main.Fn()
}

func mustCompile(tb testing.TB, p *effc.Program, cfg effc.Config) *effc.Artifact {
	tb.Helper()
	art, err := effc.Compile(p, cfg)
	if err != nil {
		tb.Fatalf("compile: %v", err)
	}
	return art
}

func mustExec(tb testing.TB, art *effc.Artifact, fn effc.FuncID, args ...effc.Value) effc.Value {
	tb.Helper()
	v, err := art.Exec(fn, args...)
	if err != nil {
		tb.Fatalf("exec: %v", err)
	}
	return v
}
