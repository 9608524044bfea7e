// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package effc

// ffiguard validates every foreign call site against the handlers that
// may be in force over it. A general handler in force means a perform
// reached from inside the foreign frame could try to capture across it;
// with the Prohibit strategy that is a compile-time rejection, while
// CallbackConvert and SaveRestore carry it. Passing a continuation value
// itself into a foreign call is rejected under every strategy.
//
// Violations are collected per function: one bad site does not stop the
// analysis of sibling functions.
type ffiguard struct{}

func (ffiguard) name() string { return "ffiguard" }

func (ffiguard) run(pc *passCtx) (bool, error) {
	p := pc.prog
	force := generalInForce(pc)
	pc.ffiErrs = pc.ffiErrs[:0]
	for fi, f := range p.Funcs {
		fid := FuncID(fi)
		taint := contRegs(p, fid, f)
		hot := len(force[fid]) > 0
	nextFn:
		for bi := range f.Blocks {
			for ii := range f.Blocks[bi].Code {
				in := &f.Blocks[bi].Code[ii]
				if in.Op != OpForeign {
					continue
				}
				name := p.Foreigns[in.ForeignIx].Name
				for _, a := range in.Args {
					if taint[a] {
						pc.ffiErrs = append(pc.ffiErrs, &FfiViolationError{
							Fn: fid, Site: in.Site, Foreign: name,
							Reason: "continuation passed across foreign boundary",
						})
						continue nextFn
					}
				}
				if hot && in.Barrier == BarrierProhibit {
					pc.ffiErrs = append(pc.ffiErrs, &FfiViolationError{
						Fn: fid, Site: in.Site, Foreign: name,
						Reason: "general handler in force over prohibited boundary",
					})
					continue nextFn
				}
			}
		}
	}
	return false, nil
}

type handlerSet map[HandlerID]bool

// generalInForce computes, per function, the set of general handlers that
// may be installed somewhere below it on the stack when it runs. Handle
// edges add the installed general handlers; call edges forward the
// caller's set; handler operation bodies inherit from every function that
// installs their handler, since they run at arbitrary perform sites under
// that installation.
func generalInForce(pc *passCtx) map[FuncID]handlerSet {
	p := pc.prog
	force := make(map[FuncID]handlerSet, len(p.Funcs))
	for fi := range p.Funcs {
		force[FuncID(fi)] = make(handlerSet)
	}
	add := func(dst handlerSet, src handlerSet) bool {
		grew := false
		for h := range src {
			if !dst[h] {
				dst[h] = true
				grew = true
			}
		}
		return grew
	}
	for {
		changed := false
		for fi, f := range p.Funcs {
			from := force[FuncID(fi)]
			for bi := range f.Blocks {
				for ii := range f.Blocks[bi].Code {
					in := &f.Blocks[bi].Code[ii]
					switch in.Op {
					case OpCall, OpCallHandler:
						if add(force[in.Fn], from) {
							changed = true
						}
					case OpHandle:
						body := force[in.Fn]
						if add(body, from) {
							changed = true
						}
						for _, h := range in.Handlers {
							if !pc.handlerTail[h] && !body[h] {
								body[h] = true
								changed = true
							}
							for _, op := range p.Handler(h).Ops {
								if add(force[op], body) {
									changed = true
								}
							}
						}
					}
				}
			}
		}
		if !changed {
			return force
		}
	}
}

// contRegs marks registers of f that may hold a first-class continuation:
// clone results and, in a general handler's operation body, the trailing
// continuation parameter.
func contRegs(p *Program, fid FuncID, f *Func) map[Reg]bool {
	taint := make(map[Reg]bool)
	for _, h := range p.Handlers {
		for _, op := range h.Ops {
			if op == fid {
				taint[Reg(f.NParams-1)] = true
			}
		}
	}
	for {
		grew := false
		for bi := range f.Blocks {
			for ii := range f.Blocks[bi].Code {
				in := &f.Blocks[bi].Code[ii]
				switch in.Op {
				case OpClone:
					if !taint[in.Dst] {
						taint[in.Dst] = true
						grew = true
					}
				case OpMov:
					if taint[in.A] && !taint[in.Dst] {
						taint[in.Dst] = true
						grew = true
					}
				}
			}
		}
		if !grew {
			return taint
		}
	}
}
