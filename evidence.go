// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package effc

import "fmt"

// SlotKind discriminates evidence slot resolution.
type SlotKind uint8

const (
	// SlotDynamic resolves the handler by walking the installed-handler
	// chain at run time.
	SlotDynamic SlotKind = iota

	// SlotStatic resolves the handler to a fixed offset computed by
	// evidence propagation; the run-time walk is skipped and the bound
	// handler is the propagated constant.
	SlotStatic
)

// EvidenceSlot records how one perform site reaches its handler. Fresh
// sites are Dynamic; evidence propagation upgrades sites with a provably
// constant handler to Static.
type EvidenceSlot struct {
	Kind    SlotKind
	Handler HandlerID
}

func (s EvidenceSlot) String() string {
	if s.Kind == SlotStatic {
		return fmt.Sprintf("static(h%d)", s.Handler)
	}
	return "dynamic"
}

// evLat is the per-(function, effect) dataflow lattice of evidence
// propagation: Unknown is the identity element, Constant carries one
// provably unique handler, Partial is the top element used where call
// paths disagree.
type evLat uint8

const (
	latUnknown evLat = iota
	latConstant
	latPartial
)

// evFact is one lattice point, pairing the level with the constant
// handler when level == latConstant.
type evFact struct {
	lat evLat
	h   HandlerID
}

// meet combines facts arriving over distinct call paths. Conflicting
// constants degrade to Partial; Unknown is absorbed.
func (a evFact) meet(b evFact) evFact {
	switch {
	case a.lat == latUnknown:
		return b
	case b.lat == latUnknown:
		return a
	case a.lat == latPartial || b.lat == latPartial:
		return evFact{lat: latPartial}
	case a.h == b.h:
		return a
	default:
		return evFact{lat: latPartial}
	}
}

// evKey addresses one fact in the interprocedural table.
type evKey struct {
	fn     FuncID
	effect EffectID
}

// EvidenceLayout is the per-function result of evidence propagation:
// which effects have a constant handler on every path into the function.
type EvidenceLayout struct {
	Const map[EffectID]HandlerID
}

// constHandler reports the propagated constant handler for an effect,
// when one exists.
func (l *EvidenceLayout) constHandler(e EffectID) (HandlerID, bool) {
	if l == nil {
		return 0, false
	}
	h, ok := l.Const[e]
	return h, ok
}
