// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package effc_test

import (
	"testing"

	"code.hybscloud.com/effc"
	"code.hybscloud.com/iox"
)

// BenchmarkCompile measures the full pipeline over the counter program.
func BenchmarkCompile(b *testing.B) {
	p, _ := buildCounter(100)
	cfg := effc.DefaultConfig()
	b.ReportAllocs()
	for b.Loop() {
		if _, err := effc.Compile(p, cfg); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkStateLoop measures a 100-step state loop after optimization:
// every state access runs as a direct call, no captures.
func BenchmarkStateLoop(b *testing.B) {
	p, main := buildCounter(100)
	art, err := effc.Compile(p, effc.DefaultConfig())
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	for b.Loop() {
		if _, err := art.Exec(main); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkStateLoopUnoptimized runs the same loop with the pipeline off:
// every state access captures and resumes a continuation.
func BenchmarkStateLoopUnoptimized(b *testing.B) {
	p, main := buildCounter(100)
	cfg := effc.DefaultConfig()
	cfg.DisableOpt = true
	art, err := effc.Compile(p, cfg)
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	for b.Loop() {
		if _, err := art.Exec(main); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkMultiShot measures a clone-and-resume-twice handler round.
func BenchmarkMultiShot(b *testing.B) {
	p, main := buildAmb()
	art, err := effc.Compile(p, effc.DefaultConfig())
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	for b.Loop() {
		if _, err := art.Exec(main); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkAbort measures an abortive handler unwinding one frame.
func BenchmarkAbort(b *testing.B) {
	p, main := buildAbort()
	art, err := effc.Compile(p, effc.DefaultConfig())
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	for b.Loop() {
		if _, err := art.Exec(main); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkEscapeResume measures capturing a continuation out of a run and
// resuming it externally.
func BenchmarkEscapeResume(b *testing.B) {
	p, main := buildEscape()
	art, err := effc.Compile(p, effc.DefaultConfig())
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	for b.Loop() {
		v, err := art.Exec(main)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := v.(*effc.Continuation).Resume(nil); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkStateMachinePending measures one pending poll of a specialized
// async function.
func BenchmarkStateMachinePending(b *testing.B) {
	skipRace(b)
	p, after := buildAfter()
	art, err := effc.Compile(p, effc.DefaultConfig())
	if err != nil {
		b.Fatal(err)
	}
	m, err := art.StateMachine(after, effc.NewPromise())
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	for b.Loop() {
		if _, err := m.Poll(); !iox.IsWouldBlock(err) {
			b.Fatal(err)
		}
	}
}

// BenchmarkStateMachineRun measures instantiating and driving a specialized
// async function over a resolved future.
func BenchmarkStateMachineRun(b *testing.B) {
	p, after := buildAfter()
	art, err := effc.Compile(p, effc.DefaultConfig())
	if err != nil {
		b.Fatal(err)
	}
	fut := effc.Resolved(21)
	b.ReportAllocs()
	for b.Loop() {
		m, err := art.StateMachine(after, fut)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := m.Drive(); err != nil {
			b.Fatal(err)
		}
	}
}
