// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package effc

// deadcode is the effect-aware elimination pass. Three rewrites run to a
// local fixpoint:
//
//   - a tail-resumptive perform of a non-observable operation whose
//     result is unused is deleted; observable operations are kept
//     unconditionally,
//   - a Handle whose body provably never performs any of the installed
//     effects degrades to a plain call,
//   - pure instructions with a dead destination are deleted.
type deadcode struct{}

func (deadcode) name() string { return "dce" }

func (deadcode) run(pc *passCtx) (bool, error) {
	esc := escapeSets(pc.prog)
	changed := false
	for _, f := range pc.prog.Funcs {
		for dceFunc(pc, f, esc) {
			changed = true
		}
	}
	return changed, nil
}

func dceFunc(pc *passCtx, f *Func, esc map[FuncID]effectSet) bool {
	used := usedRegs(f)
	changed := false
	for bi := range f.Blocks {
		b := &f.Blocks[bi]
		out := b.Code[:0]
		for _, in := range b.Code {
			switch {
			case in.pure() && !used[in.Dst]:
				changed = true
				continue
			case removablePerform(pc, &in, used):
				changed = true
				continue
			case in.Op == OpHandle && inertHandle(pc.prog, &in, esc):
				in = Instr{Op: OpCall, Dst: in.Dst, Fn: in.Fn, Args: in.Args}
				changed = true
			}
			out = append(out, in)
		}
		b.Code = out
	}
	return changed
}

func removablePerform(pc *passCtx, in *Instr, used map[Reg]bool) bool {
	if in.Op != OpPerform && in.Op != OpCallHandler {
		return false
	}
	if pc.siteClass[in.Site] != ClassTailResumptive {
		return false
	}
	if used[in.Dst] {
		return false
	}
	return !pc.prog.Effect(in.Effect).Ops[in.OpIx].Observable
}

// inertHandle reports whether none of the installed effects can reach a
// perform anywhere in the body's call closure. An installation with a
// teardown notification is never inert: discarding a suspension of the
// body must still fire it.
func inertHandle(p *Program, in *Instr, esc map[FuncID]effectSet) bool {
	body := esc[in.Fn]
	for _, h := range in.Handlers {
		decl := p.Handler(h)
		if decl.Teardown != NoFunc {
			return false
		}
		if body[decl.Effect] {
			return false
		}
	}
	return true
}

func usedRegs(f *Func) map[Reg]bool {
	used := make(map[Reg]bool, f.NRegs)
	var buf []Reg
	for bi := range f.Blocks {
		b := &f.Blocks[bi]
		for ii := range b.Code {
			buf = b.Code[ii].uses(buf[:0])
			for _, r := range buf {
				used[r] = true
			}
		}
		if b.Term.A != NoReg && (b.Term.Kind == TermRet || b.Term.Kind == TermBr) {
			used[b.Term.A] = true
		}
	}
	return used
}

type effectSet map[EffectID]bool

// escapeSets computes, per function, the effects its call closure may
// perform. Handler operation bodies reached through a Handle contribute
// too: a perform inside an operation body executes in the site's dynamic
// context and may be re-dispatched outward.
func escapeSets(p *Program) map[FuncID]effectSet {
	esc := make(map[FuncID]effectSet, len(p.Funcs))
	for fi := range p.Funcs {
		esc[FuncID(fi)] = make(effectSet)
	}
	add := func(dst effectSet, src effectSet) bool {
		grew := false
		for e := range src {
			if !dst[e] {
				dst[e] = true
				grew = true
			}
		}
		return grew
	}
	for {
		changed := false
		for fi, f := range p.Funcs {
			set := esc[FuncID(fi)]
			for bi := range f.Blocks {
				for ii := range f.Blocks[bi].Code {
					in := &f.Blocks[bi].Code[ii]
					switch in.Op {
					case OpPerform, OpCallHandler:
						if !set[in.Effect] {
							set[in.Effect] = true
							changed = true
						}
						if in.Op == OpCallHandler && add(set, esc[in.Fn]) {
							changed = true
						}
					case OpCellGet, OpCellSet:
						// retargeted cell access still needs the frame
						if in.Effect >= 0 && !set[in.Effect] {
							set[in.Effect] = true
							changed = true
						}
					case OpCall:
						if add(set, esc[in.Fn]) {
							changed = true
						}
					case OpHandle:
						if add(set, esc[in.Fn]) {
							changed = true
						}
						for _, h := range in.Handlers {
							for _, op := range p.Handler(h).Ops {
								if add(set, esc[op]) {
									changed = true
								}
							}
						}
					}
				}
			}
		}
		if !changed {
			return esc
		}
	}
}
