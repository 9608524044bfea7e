// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package effc

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint hashes a canonical binary rendering of every function body
// in the artifact. Two artifacts with identical bodies hash identically,
// so a pipeline that is a fixpoint leaves the fingerprint unchanged.
func (a *Artifact) Fingerprint() uint64 {
	d := xxhash.New()
	var buf [8]byte
	w64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = d.Write(buf[:])
	}
	wi := func(v int) { w64(uint64(int64(v))) }
	for _, f := range a.prog.Funcs {
		wi(f.NParams)
		wi(f.NRegs)
		wi(len(f.Blocks))
		for bi := range f.Blocks {
			b := &f.Blocks[bi]
			wi(len(b.Code))
			for ii := range b.Code {
				in := &b.Code[ii]
				wi(int(in.Op))
				wi(int(in.Dst))
				wi(int(in.A))
				wi(int(in.B))
				wi(int(in.Effect))
				wi(in.OpIx)
				wi(int(in.Site))
				wi(int(in.Slot.Kind))
				wi(int(in.Slot.Handler))
				wi(int(in.Fn))
				wi(int(in.Barrier))
				wi(in.ForeignIx)
				wi(len(in.Args))
				for _, r := range in.Args {
					wi(int(r))
				}
				wi(len(in.Handlers))
				for _, h := range in.Handlers {
					wi(int(h))
				}
				wi(len(in.CellArgs))
				for _, r := range in.CellArgs {
					wi(int(r))
				}
				if in.Op == OpConst {
					_, _ = d.Write([]byte(fmt.Sprint(in.Val)))
				}
			}
			wi(int(b.Term.Kind))
			wi(int(b.Term.A))
			wi(b.Term.To)
			wi(b.Term.Else)
		}
	}
	return d.Sum64()
}
