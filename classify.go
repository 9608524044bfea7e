// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package effc

// SiteClass is the per-site classification that drives lowering.
type SiteClass uint8

const (
	// ClassGeneral is the conservative default: the site may capture a
	// first-class continuation and must go through the suspend path.
	ClassGeneral SiteClass = iota

	// ClassTailResumptive marks a site whose handler provably resumes
	// exactly once, immediately, with no use of the continuation as a
	// value. The site lowers to a direct call.
	ClassTailResumptive

	// ClassFfiBoundary marks a foreign call site; capture must not
	// cross it and the barrier strategy governs the lowering.
	ClassFfiBoundary
)

func (c SiteClass) String() string {
	switch c {
	case ClassTailResumptive:
		return "tail-resumptive"
	case ClassFfiBoundary:
		return "ffi-boundary"
	default:
		return "general"
	}
}

// classifier is the first pipeline pass. It is total: every handler and
// every site receives a classification and no input is rejected.
type classifier struct{}

func (classifier) name() string { return "classify" }

func (classifier) run(pc *passCtx) (bool, error) {
	changed := false
	for h := range pc.prog.Handlers {
		tail := handlerTailResumptive(pc.prog, HandlerID(h))
		if prev, ok := pc.handlerTail[HandlerID(h)]; !ok || prev != tail {
			pc.handlerTail[HandlerID(h)] = tail
			changed = true
		}
	}
	for _, f := range pc.prog.Funcs {
		for bi := range f.Blocks {
			for ii := range f.Blocks[bi].Code {
				in := &f.Blocks[bi].Code[ii]
				var cls SiteClass
				switch in.Op {
				case OpPerform:
					cls = pc.siteClassFor(in)
				case OpForeign:
					cls = ClassFfiBoundary
				default:
					continue
				}
				if prev, ok := pc.siteClass[in.Site]; !ok || prev != cls {
					pc.siteClass[in.Site] = cls
					changed = true
				}
			}
		}
	}
	return changed, nil
}

// siteClassFor classifies one perform site from the information currently
// attached to it: a site whose handler is known (static slot or a
// propagated constant) inherits the handler's classification; anything
// else stays General.
func (pc *passCtx) siteClassFor(in *Instr) SiteClass {
	h, ok := pc.siteHandler(in)
	if !ok {
		return ClassGeneral
	}
	if pc.handlerTail[h] {
		return ClassTailResumptive
	}
	return ClassGeneral
}

// siteHandler resolves the unique handler of a perform site when one is
// provable, consulting the slot first and propagation results second.
func (pc *passCtx) siteHandler(in *Instr) (HandlerID, bool) {
	if in.Slot.Kind == SlotStatic {
		return in.Slot.Handler, true
	}
	if h, ok := pc.constHandler[in.Site]; ok {
		return h, true
	}
	return 0, false
}

// handlerTailResumptive decides whether every operation body of a handler
// satisfies the tail-resumptive shape: the continuation parameter is
// resumed at most once, in tail position, and never escapes as a value.
// Abortive bodies (zero resumes) qualify; a Multi strategy disqualifies
// the handler outright.
func handlerTailResumptive(p *Program, h HandlerID) bool {
	decl := p.Handler(h)
	if decl.Strategy == StrategyMulti {
		return false
	}
	for _, fid := range decl.Ops {
		if !opBodyTailResumptive(p.Func(fid)) {
			return false
		}
	}
	return true
}

func opBodyTailResumptive(f *Func) bool {
	contReg := Reg(f.NParams - 1)
	resumes := 0
	var buf []Reg
	for bi := range f.Blocks {
		b := &f.Blocks[bi]
		for ii := range b.Code {
			in := &b.Code[ii]
			if in.Op == OpResume && in.A == contReg {
				resumes++
				if resumes > 1 {
					return false
				}
				// Tail position: last instruction of its block, result
				// returned by the terminator.
				if ii != len(b.Code)-1 {
					return false
				}
				if b.Term.Kind != TermRet || b.Term.A != in.Dst {
					return false
				}
				continue
			}
			if contEscapes(in, contReg, &buf) {
				return false
			}
		}
		if b.Term.Kind == TermRet && b.Term.A == contReg {
			return false
		}
	}
	return true
}

// contEscapes reports any use of the continuation register other than the
// one permitted tail resume: cloning it, discarding it, passing it to a
// call or foreign function, or flowing it through a value-producing
// instruction.
func contEscapes(in *Instr, cont Reg, buf *[]Reg) bool {
	switch in.Op {
	case OpClone, OpDiscard:
		return in.A == cont
	}
	*buf = in.uses((*buf)[:0])
	for _, r := range *buf {
		if r == cont {
			return true
		}
	}
	return false
}
