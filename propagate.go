// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package effc

// propagator is the evidence propagation pass: a forward interprocedural
// dataflow over (function, effect) facts. A Handle seeds a Constant fact
// for its body; Call edges forward the caller's facts; facts meeting over
// distinct paths combine with evFact.meet. Dynamic perform sites whose
// fact is Constant are upgraded to Static slots.
//
// Handler operation bodies and teardowns receive no seed: they run in the
// context of the perform site, which varies per installation, so their
// own performs stay Dynamic.
type propagator struct{}

func (propagator) name() string { return "propagate" }

func (propagator) run(pc *passCtx) (bool, error) {
	p := pc.prog
	facts := make(map[evKey]evFact)

	merge := func(fn FuncID, e EffectID, f evFact) bool {
		k := evKey{fn: fn, effect: e}
		old := facts[k]
		nw := old.meet(f)
		if nw != old {
			facts[k] = nw
			return true
		}
		return false
	}

	opBody := make(map[FuncID]bool)
	for _, h := range p.Handlers {
		for _, fid := range h.Ops {
			opBody[fid] = true
		}
		if h.Teardown != NoFunc && h.Teardown >= 0 {
			opBody[h.Teardown] = true
		}
	}

	// effectsOf returns the per-effect winner among a Handle's handlers;
	// later installs shadow earlier ones for the same effect.
	effectsOf := func(hs []HandlerID) map[EffectID]HandlerID {
		m := make(map[EffectID]HandlerID, len(hs))
		for _, h := range hs {
			m[p.Handler(h).Effect] = h
		}
		return m
	}

	// Fixpoint over call and handle edges. The lattice has height two
	// per key, so the loop terminates quickly.
	for {
		changed := false
		for fi, f := range p.Funcs {
			from := FuncID(fi)
			for bi := range f.Blocks {
				for ii := range f.Blocks[bi].Code {
					in := &f.Blocks[bi].Code[ii]
					switch in.Op {
					case OpCall, OpCallHandler:
						for eid := range p.Effects {
							k := evKey{fn: from, effect: EffectID(eid)}
							if fct, ok := facts[k]; ok && fct.lat != latUnknown {
								if merge(in.Fn, EffectID(eid), fct) {
									changed = true
								}
							}
						}
					case OpHandle:
						if opBody[in.Fn] {
							break
						}
						installed := effectsOf(in.Handlers)
						for e, h := range installed {
							if merge(in.Fn, e, evFact{lat: latConstant, h: h}) {
								changed = true
							}
						}
						for eid := range p.Effects {
							e := EffectID(eid)
							if _, shadowed := installed[e]; shadowed {
								continue
							}
							k := evKey{fn: from, effect: e}
							if fct, ok := facts[k]; ok && fct.lat != latUnknown {
								if merge(in.Fn, e, fct) {
									changed = true
								}
							}
						}
					}
				}
			}
		}
		if !changed {
			break
		}
	}

	// Apply: upgrade Dynamic sites whose fact is a single constant.
	rewrote := false
	for fi, f := range p.Funcs {
		layout := &EvidenceLayout{Const: make(map[EffectID]HandlerID)}
		for eid := range p.Effects {
			k := evKey{fn: FuncID(fi), effect: EffectID(eid)}
			if fct, ok := facts[k]; ok && fct.lat == latConstant {
				layout.Const[EffectID(eid)] = fct.h
			}
		}
		pc.layouts[FuncID(fi)] = layout
		if opBody[FuncID(fi)] {
			continue
		}
		for bi := range f.Blocks {
			for ii := range f.Blocks[bi].Code {
				in := &f.Blocks[bi].Code[ii]
				if in.Op != OpPerform || in.Slot.Kind != SlotDynamic {
					continue
				}
				h, ok := layout.constHandler(in.Effect)
				if !ok {
					continue
				}
				in.Slot = EvidenceSlot{Kind: SlotStatic, Handler: h}
				pc.constHandler[in.Site] = h
				rewrote = true
			}
		}
	}
	return rewrote, nil
}
