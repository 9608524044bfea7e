// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package effc compiles and executes algebraic effect handlers: programs
// declare effects, install handlers, and perform operations; the pipeline
// classifies every perform site and lowers as much as it can to plain
// calls, reserving continuation capture for the sites that need it.
//
// # Architecture
//
//   - Classification: every handler and site is rated tail-resumptive, general,
//     or an FFI boundary; tail-resumptive sites lower to direct calls with no
//     continuation object.
//   - Evidence: perform sites start Dynamic (run-time handler lookup) and are
//     upgraded to Static slots when propagation proves a unique handler.
//   - Pipeline: classify, inline, propagate, tail-convert, eliminate, fuse,
//     specialize, guard, lower. The pass loop runs to a fixpoint, so
//     recompiling an already optimized artifact changes nothing.
//   - Runtime: a frame-stack evaluator with one-shot continuations
//     ([code.hybscloud.com/kont] enforces the single resume permit); clones are
//     explicit and carry independent handler state.
//   - Async: functions whose only suspensions are awaits compile to flat
//     [StateMachine] values polled with [code.hybscloud.com/iox.ErrWouldBlock]
//     semantics and adaptive backoff.
//   - FFI: foreign call sites declare Prohibit, CallbackConvert, or SaveRestore;
//     the guard rejects captures that would cross a prohibited boundary at
//     compile time and the runtime traps the rest. Callback conversion routes
//     results through a bounded SPSC slot from [code.hybscloud.com/lfq].
//
// # Integration
//
//   - Building: [Program] and [FuncBuilder] assemble effect declarations,
//     handlers, and function bodies.
//   - Compiling: [Compile] runs the pipeline and yields an [Artifact] holding
//     the [LoweringPlan] consumed by downstream code generators.
//   - Stepping: [Artifact.Step] evaluates until the first unhandled operation
//     or pending await, returning a [Suspension] for the caller to dispatch.
//   - Blocking: [Artifact.Exec] (and [Artifact.ExecEither]) drive execution to
//     completion with adaptive backoff, spawning no goroutines.
//
// # Example
//
//	p := effc.NewProgram()
//	ask := p.AddEffect(effc.EffectDecl{Name: "ask", Ops: []effc.OpDecl{{Name: "get"}}})
//	get := p.NewFunc("ask.get", 1)
//	get.Ret(get.Resume(get.Param(0), get.CellGet()))
//	h := p.AddHandler(effc.HandlerDecl{Effect: ask, Ops: []effc.FuncID{get.Fn()}, Teardown: effc.NoFunc})
//	body := p.NewFunc("body", 0)
//	body.Ret(body.Perform(ask, 0))
//	main := p.NewFunc("main", 0)
//	seed := main.Const(21)
//	main.Ret(main.HandleState(h, seed, body.Fn()))
//	art, _ := effc.Compile(p, effc.DefaultConfig())
//	v, _ := art.Exec(main.Fn()) // 21, through a direct call
package effc
