// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package effc

import "fmt"

// LowerKind enumerates the per-site shapes of the lowering contract.
type LowerKind uint8

const (
	// LowerDirect calls the handler operation through the slot; no
	// continuation exists.
	LowerDirect LowerKind = iota

	// LowerSuspend captures the execution context up to the handler and
	// enters the operation with a first-class continuation.
	LowerSuspend

	// LowerBarrier is a foreign call; Strategy selects the boundary
	// treatment.
	LowerBarrier
)

func (k LowerKind) String() string {
	switch k {
	case LowerDirect:
		return "direct-call"
	case LowerSuspend:
		return "suspend-call"
	default:
		return "barrier"
	}
}

// Lowering is the downstream contract for one site. Direct and Suspend
// sites carry the resolved slot and operation index; Suspend sites name
// the runtime entry points a code generator binds; Barrier sites carry
// the strategy.
type Lowering struct {
	Kind         LowerKind
	Slot         EvidenceSlot
	OpIndex      int
	ResumeEntry  string
	CaptureEntry string
	Strategy     BarrierStrategy
}

// LoweringPlan is the whole-program output of the pipeline: one lowering
// per site, the functions the specializer qualified, and the per-function
// evidence layouts.
type LoweringPlan struct {
	Sites      map[SiteID]Lowering
	AsyncFuncs map[FuncID]bool
	Layouts    map[FuncID]*EvidenceLayout
}

// lowerer is the final pass: it folds the accumulated classifications,
// slots, and specializer results into the plan.
type lowerer struct{}

func (lowerer) name() string { return "lower" }

func (lowerer) run(pc *passCtx) (bool, error) {
	p := pc.prog
	plan := &LoweringPlan{
		Sites:      make(map[SiteID]Lowering),
		AsyncFuncs: make(map[FuncID]bool, len(pc.asyncFns)),
		Layouts:    pc.layouts,
	}
	for fn, ok := range pc.asyncFns {
		if ok {
			plan.AsyncFuncs[fn] = true
		}
	}
	for _, f := range p.Funcs {
		for bi := range f.Blocks {
			for ii := range f.Blocks[bi].Code {
				in := &f.Blocks[bi].Code[ii]
				switch in.Op {
				case OpCallHandler:
					plan.Sites[in.Site] = Lowering{
						Kind: LowerDirect, Slot: in.Slot, OpIndex: in.OpIx,
					}
				case OpPerform:
					eff := p.Effect(in.Effect)
					op := eff.Ops[in.OpIx].Name
					plan.Sites[in.Site] = Lowering{
						Kind: LowerSuspend, Slot: in.Slot, OpIndex: in.OpIx,
						ResumeEntry:  fmt.Sprintf("%s.%s.resume", eff.Name, op),
						CaptureEntry: fmt.Sprintf("%s.%s.capture", eff.Name, op),
					}
				case OpForeign:
					plan.Sites[in.Site] = Lowering{
						Kind: LowerBarrier, Strategy: in.Barrier,
					}
				}
			}
		}
	}
	pc.plan = plan
	return false, nil
}
