// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package effc

// inliner splices small tail-resumptive handler operation bodies directly
// into their perform sites, eliminating even the direct call. A body is
// inlinable when the handler is resolved, the body is a single block of at
// most InlineThreshold instructions, it resumes exactly once in tail
// position, and it does not call itself. Abortive operations are never
// inlined: their non-local exit needs the run-time unwind.
//
// Handler state access inside the spliced code is retargeted from the
// implicit current instance to the site's resolved handler.
type inliner struct{}

func (inliner) name() string { return "inline" }

func (inliner) run(pc *passCtx) (bool, error) {
	changed := false
	for _, f := range pc.prog.Funcs {
		used := usedRegs(f)
		for bi := range f.Blocks {
			if inlineBlock(pc, f, bi, used) {
				changed = true
			}
		}
	}
	return changed, nil
}

func inlineBlock(pc *passCtx, f *Func, bi int, used map[Reg]bool) bool {
	p := pc.prog
	b := &f.Blocks[bi]
	changed := false
	out := make([]Instr, 0, len(b.Code))
	for _, in := range b.Code {
		h, body, ok := inlineTarget(pc, &in, used)
		if !ok {
			out = append(out, in)
			continue
		}
		out = splice(p, f, out, &in, h, body)
		changed = true
	}
	if changed {
		b.Code = out
	}
	return changed
}

// inlineTarget reports the handler and operation body for a site that
// qualifies for inlining. A non-observable site with a dead result is
// left alone: elimination removes it outright.
func inlineTarget(pc *passCtx, in *Instr, used map[Reg]bool) (HandlerID, *Func, bool) {
	var h HandlerID
	switch in.Op {
	case OpCallHandler:
		h = in.Slot.Handler
	case OpPerform:
		var ok bool
		if h, ok = pc.siteHandler(in); !ok {
			return 0, nil, false
		}
		if !pc.handlerTail[h] {
			return 0, nil, false
		}
	default:
		return 0, nil, false
	}
	if !used[in.Dst] && !pc.prog.Effect(in.Effect).Ops[in.OpIx].Observable {
		return 0, nil, false
	}
	fid := pc.prog.Handler(h).Ops[in.OpIx]
	body := pc.prog.Func(fid)
	if !inlinableBody(pc, fid, body) {
		return 0, nil, false
	}
	return h, body, true
}

func inlinableBody(pc *passCtx, fid FuncID, body *Func) bool {
	if len(body.Blocks) != 1 {
		return false
	}
	blk := &body.Blocks[0]
	if len(blk.Code) > pc.cfg.InlineThreshold {
		return false
	}
	resumes := 0
	for i := range blk.Code {
		in := &blk.Code[i]
		switch in.Op {
		case OpResume:
			resumes++
		case OpCall, OpCallHandler:
			if in.Fn == fid {
				return false
			}
		case OpHandle:
			return false
		}
	}
	return resumes == 1 && opBodyTailResumptive(body)
}

// splice copies the body's single block into out, remapping registers:
// parameters bind to the site arguments, locals get fresh registers, the
// tail resume becomes a move into the site destination, and the return is
// dropped.
func splice(p *Program, f *Func, out []Instr, site *Instr, h HandlerID, body *Func) []Instr {
	contReg := Reg(body.NParams - 1)
	remap := make([]Reg, body.NRegs)
	for i := range remap {
		switch {
		case i < body.NParams-1:
			remap[i] = site.Args[i]
		case Reg(i) == contReg:
			remap[i] = NoReg
		default:
			remap[i] = Reg(f.NRegs)
			f.NRegs++
		}
	}
	mp := func(r Reg) Reg {
		if r == NoReg {
			return NoReg
		}
		return remap[r]
	}
	for _, in := range body.Blocks[0].Code {
		if in.Op == OpResume && in.A == contReg {
			out = append(out, Instr{Op: OpMov, Dst: site.Dst, A: mp(in.B)})
			continue
		}
		ni := in
		ni.Dst = mp(in.Dst)
		ni.A, ni.B = mp(in.A), mp(in.B)
		if in.Args != nil {
			ni.Args = make([]Reg, len(in.Args))
			for k, r := range in.Args {
				ni.Args[k] = mp(r)
			}
		}
		if in.CellArgs != nil {
			ni.CellArgs = make([]Reg, len(in.CellArgs))
			for k, r := range in.CellArgs {
				ni.CellArgs[k] = mp(r)
			}
		}
		switch in.Op {
		case OpCellGet, OpCellSet:
			if in.Effect == -1 {
				ni.Effect = p.Handler(h).Effect
				ni.Slot = EvidenceSlot{Kind: SlotStatic, Handler: h}
			}
		case OpPerform, OpForeign:
			ni.Site = p.newSite()
		}
		out = append(out, ni)
	}
	return out
}
