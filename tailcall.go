// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package effc

// tailconv is the tail-resumptive conversion pass. A perform site whose
// handler is provably unique and tail-resumptive is rewritten into a
// direct call of the handler's operation body: no continuation is
// materialized, no frames are copied, and the resume is a plain return to
// the performer. Abortive operations keep the direct form too; their
// non-local exit unwinds to the owning Handle at run time.
type tailconv struct{}

func (tailconv) name() string { return "tailconv" }

func (tailconv) run(pc *passCtx) (bool, error) {
	p := pc.prog
	changed := false
	for _, f := range p.Funcs {
		for bi := range f.Blocks {
			for ii := range f.Blocks[bi].Code {
				in := &f.Blocks[bi].Code[ii]
				if in.Op != OpPerform {
					continue
				}
				if pc.siteClass[in.Site] != ClassTailResumptive {
					continue
				}
				h, ok := pc.siteHandler(in)
				if !ok {
					continue
				}
				decl := p.Handler(h)
				in.Op = OpCallHandler
				in.Fn = decl.Ops[in.OpIx]
				in.Slot = EvidenceSlot{Kind: SlotStatic, Handler: h}
				changed = true
			}
		}
	}
	return changed, nil
}
