// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package effc

import "github.com/google/uuid"

// Report records one pipeline decision for a site: its classification
// and the lowering it received. Reports are diagnostic output for tooling
// and logs; execution never consults them.
type Report struct {
	ID    uuid.UUID
	Site  SiteID
	Class SiteClass
	Lower LowerKind
	Note  string
}

func buildReports(pc *passCtx) []Report {
	if pc.plan == nil {
		return nil
	}
	reports := make([]Report, 0, len(pc.plan.Sites))
	for site, lw := range pc.plan.Sites {
		r := Report{
			ID:    uuid.New(),
			Site:  site,
			Class: pc.siteClass[site],
			Lower: lw.Kind,
		}
		switch lw.Kind {
		case LowerDirect:
			r.Note = "direct: " + lw.Slot.String()
		case LowerSuspend:
			r.Note = "suspend: " + lw.Slot.String()
		case LowerBarrier:
			switch lw.Strategy {
			case BarrierCallbackConvert:
				r.Note = "barrier: callback-convert"
			case BarrierSaveRestore:
				r.Note = "barrier: save-restore"
			default:
				r.Note = "barrier: prohibit"
			}
		}
		reports = append(reports, r)
	}
	return reports
}
