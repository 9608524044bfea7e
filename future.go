// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package effc

import (
	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
)

// Future is a pollable asynchronous result. Poll never blocks: it returns
// the value once ready and ErrNotReady until then. Poll after completion
// keeps returning the same value.
type Future interface {
	Poll() (Value, error)
}

// Promise is the single-producer side of a one-value Future. The result
// travels through a bounded lock-free SPSC slot, so Complete may be called
// from a foreign callback thread while the managed side polls.
type Promise struct {
	slot lfq.SPSC[Value]
	done bool
	v    Value
}

// NewPromise creates an unresolved promise.
func NewPromise() *Promise {
	p := &Promise{}
	p.slot.Init(2)
	return p
}

// Complete resolves the promise. Completing twice is a no-op: the slot
// holds one value and the second enqueue is rejected by the queue.
func (p *Promise) Complete(v Value) {
	_ = p.slot.Enqueue(&v)
}

// Poll implements Future.
func (p *Promise) Poll() (Value, error) {
	if p.done {
		return p.v, nil
	}
	v, err := p.slot.Dequeue()
	if err != nil {
		return nil, ErrNotReady
	}
	p.done = true
	p.v = v
	return v, nil
}

// ready is a pre-resolved future.
type ready struct{ v Value }

func (r ready) Poll() (Value, error) { return r.v, nil }

// Resolved returns a future that is ready immediately.
func Resolved(v Value) Future { return ready{v: v} }

// pollable adapts a plain function to Future.
type pollable func() (Value, error)

func (f pollable) Poll() (Value, error) { return f() }

// FutureFunc wraps a poll function as a Future. The function reports
// ErrNotReady until the result is available.
func FutureFunc(f func() (Value, error)) Future { return pollable(f) }

// Drive polls a future to completion on the calling goroutine using
// adaptive backoff. It spawns no goroutines and creates no channels.
func Drive(f Future) (Value, error) {
	var bo iox.Backoff
	for {
		v, err := f.Poll()
		switch {
		case err == nil:
			return v, nil
		case err == ErrNotReady || iox.IsWouldBlock(err):
			bo.Wait()
		default:
			return nil, err
		}
	}
}
