// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package effc

// fuser merges adjacent evidence installations. A Handle whose body does
// nothing but install further handlers and run an inner body collapses
// into one multi-install Handle, so the runtime pushes a single handler
// frame instead of a chain. Installations also float upward past
// unrelated pure instructions to expose more collapses.
//
// Floating never crosses a perform through a Dynamic slot: the lookup
// observes installation order, so a Dynamic site is a fence.
type fuser struct{}

func (fuser) name() string { return "fuse" }

func (fuser) run(pc *passCtx) (bool, error) {
	changed := false
	for _, f := range pc.prog.Funcs {
		for bi := range f.Blocks {
			b := &f.Blocks[bi]
			for ii := range b.Code {
				in := &b.Code[ii]
				if in.Op != OpHandle {
					continue
				}
				if collapseHandle(pc.prog, in) {
					changed = true
				}
			}
			if floatHandles(b) {
				changed = true
			}
		}
	}
	return changed, nil
}

// collapseHandle rewrites Handle(hs, wrapperBody, args) into
// Handle(hs+inner, innerBody, args') when wrapperBody is a pure
// trampoline: a single block holding exactly one inner Handle whose
// arguments are the wrapper's own parameters and whose result is
// returned unchanged.
func collapseHandle(p *Program, in *Instr) bool {
	body := p.Func(in.Fn)
	if len(body.Blocks) != 1 || len(body.Blocks[0].Code) != 1 {
		return false
	}
	inner := &body.Blocks[0].Code[0]
	if inner.Op != OpHandle {
		return false
	}
	t := body.Blocks[0].Term
	if t.Kind != TermRet || t.A != inner.Dst {
		return false
	}
	// Merging loses the nesting between the two installations. An abort
	// to the outer set unwinds every frame strictly above it, so a
	// teardown declared on either set must keep its own frame.
	for _, h := range in.Handlers {
		if p.Handler(h).Teardown != NoFunc {
			return false
		}
	}
	for _, h := range inner.Handlers {
		if p.Handler(h).Teardown != NoFunc {
			return false
		}
	}
	args := make([]Reg, len(inner.Args))
	for i, r := range inner.Args {
		if int(r) >= body.NParams {
			return false
		}
		args[i] = in.Args[r]
	}
	cells := make([]Reg, 0, len(in.Handlers)+len(inner.Handlers))
	for i := range in.Handlers {
		if i < len(in.CellArgs) {
			cells = append(cells, in.CellArgs[i])
		} else {
			cells = append(cells, NoReg)
		}
	}
	for i := range inner.Handlers {
		if i >= len(inner.CellArgs) {
			cells = append(cells, NoReg)
			continue
		}
		r := inner.CellArgs[i]
		if int(r) >= body.NParams {
			return false
		}
		cells = append(cells, in.Args[r])
	}
	hs := make([]HandlerID, 0, len(in.Handlers)+len(inner.Handlers))
	hs = append(hs, in.Handlers...)
	hs = append(hs, inner.Handlers...)
	in.Handlers = hs
	in.Fn = inner.Fn
	in.Args = args
	in.CellArgs = cells
	return true
}

// floatHandles bubbles Handle instructions toward the block head across
// pure instructions they do not depend on.
func floatHandles(b *Block) bool {
	changed := false
	for i := 1; i < len(b.Code); i++ {
		if b.Code[i].Op != OpHandle {
			continue
		}
		j := i
		for j > 0 && floatableOver(&b.Code[j-1], &b.Code[j]) {
			b.Code[j-1], b.Code[j] = b.Code[j], b.Code[j-1]
			j--
			changed = true
		}
	}
	return changed
}

func floatableOver(prev, h *Instr) bool {
	if !prev.pure() {
		return false
	}
	if prev.Dst == h.Dst {
		return false
	}
	for _, a := range h.Args {
		if prev.Dst == a {
			return false
		}
	}
	for _, a := range h.CellArgs {
		if prev.Dst == a {
			return false
		}
	}
	return true
}
