// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package effc

import (
	"errors"
	"fmt"
)

// ErrResumeCompleted is returned by Resume and Discard on a continuation
// whose single resume permit has already been consumed.
var ErrResumeCompleted = errors.New("effc: continuation already resumed or discarded")

// ErrContextBudget is returned when capturing a continuation would exceed
// the artifact's MaxLiveContexts budget.
var ErrContextBudget = errors.New("effc: live execution context budget exceeded")

// ErrNotReady is the polling result of a future that has not completed.
var ErrNotReady = errors.New("effc: future not ready")

// CompileError reports a malformed input program.
type CompileError struct {
	Fn     FuncID
	Reason string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("effc: compile: fn %d: %s", e.Fn, e.Reason)
}

// PipelineError reports an optimization pipeline failure: a pass returned
// an error or the pass loop exceeded its iteration bound.
type PipelineError struct {
	Pass string
	Err  error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("effc: pipeline: pass %s: %v", e.Pass, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// FfiViolationError reports a foreign call site that a general handler
// may be in force over, without a barrier strategy that can carry it.
type FfiViolationError struct {
	Fn      FuncID
	Site    SiteID
	Foreign string
	Reason  string
}

func (e *FfiViolationError) Error() string {
	return fmt.Sprintf("effc: ffi: fn %d site %d (%s): %s", e.Fn, e.Site, e.Foreign, e.Reason)
}

// trapError carries a run-time fault out of the evaluator loop.
type trapError struct {
	fn     FuncID
	reason string
}

func (e *trapError) Error() string {
	return fmt.Sprintf("effc: trap: fn %d: %s", e.fn, e.reason)
}
