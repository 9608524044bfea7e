// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package effc_test

import (
	"testing"

	"code.hybscloud.com/effc"
)

// buildAbortOverTeardown nests a teardown-carrying state installation
// inside an abortive handler, with the inner install living in a
// trampoline function that does nothing else. The abort must unwind the
// inner installation and fire its teardown whether or not the two
// installs end up fused.
func buildAbortOverTeardown(notify func()) (*effc.Program, effc.FuncID) {
	p := effc.NewProgram()

	rec := p.AddForeign(effc.ForeignDecl{
		Name: "notify",
		Sync: func(args []effc.Value) (effc.Value, error) {
			notify()
			return nil, nil
		},
	})

	exc := p.AddEffect(effc.EffectDecl{Name: "exc", Ops: []effc.OpDecl{
		{Name: "throw", NParams: 1, Observable: true},
	}})
	throw := p.NewFunc("exc.throw", 2)
	throw.Ret(throw.Param(0))
	habort := p.AddHandler(effc.HandlerDecl{
		Effect: exc, Ops: []effc.FuncID{throw.Fn()},
		Strategy: effc.StrategyAbort, Teardown: effc.NoFunc,
	})

	cell := p.AddEffect(effc.EffectDecl{Name: "cell", Ops: []effc.OpDecl{
		{Name: "get", NParams: 0, Observable: false},
	}})
	get := p.NewFunc("cell.get", 1)
	get.Ret(get.Resume(get.Param(0), get.CellGet()))
	td := p.NewFunc("cell.teardown", 1)
	td.Foreign(rec, effc.BarrierProhibit, td.Param(0))
	td.Ret(effc.NoReg)
	hcell := p.AddHandler(effc.HandlerDecl{
		Effect: cell, Ops: []effc.FuncID{get.Fn()}, Teardown: td.Fn(),
	})

	body := p.NewFunc("body", 0)
	nine := body.Const(9)
	x := body.Perform(exc, 0, nine)
	g := body.Perform(cell, 0)
	body.Ret(body.Add(x, g))

	wrapper := p.NewFunc("wrapper", 1)
	wrapper.Ret(wrapper.HandleState(hcell, wrapper.Param(0), body.Fn()))

	main := p.NewFunc("main", 0)
	init := main.Const(0)
	main.Ret(main.Handle(habort, wrapper.Fn(), init))
	return p, main.Fn()
}

func TestAbortFiresNestedTeardown(t *testing.T) {
	for _, mode := range []struct {
		name string
		cfg  effc.Config
	}{
		{"optimized", effc.DefaultConfig()},
		{"reference", func() effc.Config {
			c := effc.DefaultConfig()
			c.DisableOpt = true
			return c
		}()},
	} {
		t.Run(mode.name, func(t *testing.T) {
			fired := 0
			p, main := buildAbortOverTeardown(func() { fired++ })
			art := mustCompile(t, p, mode.cfg)
			got := mustExec(t, art, main)
			if got != 9 {
				t.Fatalf("result = %v, want 9", got)
			}
			if fired != 1 {
				t.Fatalf("teardown fired %d times, want 1", fired)
			}
			if n := art.LiveContinuations(); n != 0 {
				t.Fatalf("live continuations = %d, want 0", n)
			}
		})
	}
}
