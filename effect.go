// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package effc

// EffectID identifies an interned effect declaration within a Program.
type EffectID int

// HandlerID identifies a handler declaration within a Program.
type HandlerID int

// FuncID identifies a function within a Program.
type FuncID int

// SiteID identifies one effect-operation call site. Site identifiers are
// assigned by the Builder and are stable across optimization passes.
type SiteID int

// NoFunc marks an absent optional function reference (e.g. no teardown).
const NoFunc FuncID = -1

// OpDecl declares one operation of an effect: a parameter count, a result,
// and whether performing it is externally observable.
//
// Observable operations (I/O, mutation, raising) are never removed by
// dead code elimination even when their result is unused. Non-observable
// operations (pure reads) may be removed when the result is unused.
type OpDecl struct {
	Name       string
	NParams    int
	Observable bool
}

// EffectDecl declares a named effect: a capability consisting of zero or
// more operations. Effects compose into the effect context of a function.
type EffectDecl struct {
	Name string
	Ops  []OpDecl
}

// ResumeStrategy declares how a handler intends to use captured
// continuations. The Classifier verifies the declaration against the
// handler's operation bodies; Multi forces the General classification.
type ResumeStrategy uint8

const (
	// StrategySingle is the default: each operation resumes at most once.
	StrategySingle ResumeStrategy = iota

	// StrategyAbort declares that operations never resume
	// (exception-like handlers).
	StrategyAbort

	// StrategyMulti declares that operations may clone and resume a
	// continuation more than once.
	StrategyMulti
)

// HandlerDecl declares an implementation for every operation of one effect.
//
// Each operation body is a Func whose parameters are the operation's
// arguments followed by one trailing continuation parameter. In the direct
// (tail-resumptive) lowering the continuation parameter is never
// materialized. Teardown, when present, is invoked with the handler's
// state cell when a continuation holding this handler's frame is discarded
// without resuming.
type HandlerDecl struct {
	Effect   EffectID
	Ops      []FuncID
	Strategy ResumeStrategy
	Teardown FuncID
}

// ForeignFunc is a synchronous foreign implementation invoked by the
// reference evaluator for a Foreign site lowered with BarrierProhibit or
// BarrierSaveRestore.
type ForeignFunc func(args []Value) (Value, error)

// ForeignAsyncFunc is a callback-converted foreign implementation: instead
// of returning a value it receives a completion callback that resolves an
// explicit result slot. The caller awaits the slot; no continuation ever
// spans the foreign frame.
type ForeignAsyncFunc func(args []Value, complete func(Value))

// ForeignDecl registers a foreign function with the Program. Exactly one
// of Sync or Async must be set, matching the barrier strategy of the
// Foreign sites that reference it.
type ForeignDecl struct {
	Name  string
	Sync  ForeignFunc
	Async ForeignAsyncFunc
}

// Program is the compilation unit: effect and handler declarations, the
// function bodies of both ordinary code and handler operations, and the
// foreign function registry.
type Program struct {
	Effects  []EffectDecl
	Handlers []HandlerDecl
	Funcs    []*Func
	Foreigns []ForeignDecl

	nextSite SiteID
}

// NewProgram creates an empty Program.
func NewProgram() *Program {
	return &Program{}
}

// AddEffect interns an effect declaration and returns its identifier.
func (p *Program) AddEffect(decl EffectDecl) EffectID {
	p.Effects = append(p.Effects, decl)
	return EffectID(len(p.Effects) - 1)
}

// AddHandler interns a handler declaration and returns its identifier.
// A zero-valued Teardown is treated as NoFunc: a teardown must be an
// explicitly registered function, and function 0 predates every handler.
func (p *Program) AddHandler(decl HandlerDecl) HandlerID {
	if decl.Teardown == 0 {
		decl.Teardown = NoFunc
	}
	p.Handlers = append(p.Handlers, decl)
	return HandlerID(len(p.Handlers) - 1)
}

// AddForeign registers a foreign function and returns its registry index.
func (p *Program) AddForeign(decl ForeignDecl) int {
	p.Foreigns = append(p.Foreigns, decl)
	return len(p.Foreigns) - 1
}

// Effect returns the declaration for id.
func (p *Program) Effect(id EffectID) *EffectDecl { return &p.Effects[id] }

// Handler returns the declaration for id.
func (p *Program) Handler(id HandlerID) *HandlerDecl { return &p.Handlers[id] }

// Func returns the function for id.
func (p *Program) Func(id FuncID) *Func { return p.Funcs[id] }

// FuncByName returns the identifier of the first function with the given
// name, or (0, false) when absent.
func (p *Program) FuncByName(name string) (FuncID, bool) {
	for i, f := range p.Funcs {
		if f.Name == name {
			return FuncID(i), true
		}
	}
	return 0, false
}

func (p *Program) newSite() SiteID {
	s := p.nextSite
	p.nextSite++
	return s
}
