// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package effc

import (
	"errors"
	"fmt"

	"code.hybscloud.com/atomix"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Config tunes compilation. The zero value is not usable; start from
// DefaultConfig.
type Config struct {
	// Logger receives per-pass debug output. Nil means no logging.
	Logger *zap.Logger

	// InlineThreshold is the largest handler operation body, in
	// instructions, that the inliner will splice into a perform site.
	InlineThreshold int

	// StateBudget is the largest register record the async specializer
	// will flatten into a state machine.
	StateBudget int

	// MaxLiveContexts bounds simultaneously captured continuations per
	// artifact; exceeding it fails the capture with ErrContextBudget.
	MaxLiveContexts int

	// DisableOpt skips every rewriting pass, leaving the program in its
	// source form for reference execution.
	DisableOpt bool
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		InlineThreshold: 8,
		StateBudget:     64,
		MaxLiveContexts: 1 << 16,
	}
}

// maxPipelineRounds bounds the pass fixpoint loop. A well-formed pass set
// stabilizes in a handful of rounds; hitting the bound means a pass pair
// oscillates and is reported instead of looping.
const maxPipelineRounds = 32

// pass is one pipeline stage. run reports whether it rewrote anything;
// analysis passes always report false.
type pass interface {
	name() string
	run(pc *passCtx) (bool, error)
}

// passCtx carries the shared analysis state across passes and rounds.
type passCtx struct {
	prog *Program
	cfg  Config
	log  *zap.Logger

	handlerTail  map[HandlerID]bool
	siteClass    map[SiteID]SiteClass
	constHandler map[SiteID]HandlerID
	layouts      map[FuncID]*EvidenceLayout
	asyncFns     map[FuncID]bool
	ffiErrs      []error
	plan         *LoweringPlan
}

func newPassCtx(p *Program, cfg Config) *passCtx {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &passCtx{
		prog:         p,
		cfg:          cfg,
		log:          log,
		handlerTail:  make(map[HandlerID]bool),
		siteClass:    make(map[SiteID]SiteClass),
		constHandler: make(map[SiteID]HandlerID),
		layouts:      make(map[FuncID]*EvidenceLayout),
		asyncFns:     make(map[FuncID]bool),
	}
}

func rewritePasses() []pass {
	return []pass{
		classifier{},
		inliner{},
		propagator{},
		tailconv{},
		deadcode{},
		fuser{},
		asyncspec{},
		ffiguard{},
		lowerer{},
	}
}

func analysisPasses() []pass {
	return []pass{classifier{}, asyncspec{}, ffiguard{}, lowerer{}}
}

// Artifact is a compiled program: the optimized function bodies, the
// per-site lowering plan, and the reference evaluator that executes them.
type Artifact struct {
	prog *Program
	cfg  Config
	log  *zap.Logger

	// Plan is the downstream lowering contract.
	Plan *LoweringPlan

	// Reports describe what the pipeline decided, one entry per site.
	Reports []Report

	liveConts atomix.Int64
	captures  atomix.Int64
}

// Compile runs the pipeline over a deep copy of p and returns the
// executable artifact. The input program is never modified. Foreign
// boundary violations are aggregated: every offending site in every
// function is reported in one combined error.
func Compile(p *Program, cfg Config) (*Artifact, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	work := cloneProgram(p)
	pc := newPassCtx(work, cfg)
	if err := runPipeline(pc); err != nil {
		return nil, err
	}
	if len(pc.ffiErrs) > 0 {
		return nil, multierr.Combine(pc.ffiErrs...)
	}
	a := &Artifact{
		prog:    work,
		cfg:     cfg,
		log:     pc.log,
		Plan:    pc.plan,
		Reports: buildReports(pc),
	}
	return a, nil
}

func runPipeline(pc *passCtx) error {
	passes := rewritePasses()
	if pc.cfg.DisableOpt {
		passes = analysisPasses()
	}
	for round := 0; ; round++ {
		if round == maxPipelineRounds {
			return &PipelineError{Pass: "fixpoint", Err: errors.New("round bound exceeded")}
		}
		changed := false
		for _, ps := range passes {
			ch, err := ps.run(pc)
			if err != nil {
				return &PipelineError{Pass: ps.name(), Err: err}
			}
			if ch {
				changed = true
			}
			pc.log.Debug("pass finished",
				zap.String("pass", ps.name()),
				zap.Int("round", round),
				zap.Bool("changed", ch),
			)
		}
		if err := verifyTailInvariants(pc); err != nil {
			return &PipelineError{Pass: "verify", Err: err}
		}
		if !changed {
			return nil
		}
	}
}

// verifyTailInvariants re-checks, after every round of rewrites, that
// each handler the classifier recorded as tail-resumptive still
// satisfies the predicate and that every direct call site targets a
// tail-shaped op body. A rewrite that grew a second resume into a
// directly-lowered body would otherwise corrupt the frame stack at run
// time; it is reported here as a compile failure instead.
func verifyTailInvariants(pc *passCtx) error {
	for h, tail := range pc.handlerTail {
		if tail && !handlerTailResumptive(pc.prog, h) {
			return fmt.Errorf("handler %d no longer tail-resumptive after rewrite", h)
		}
	}
	for _, f := range pc.prog.Funcs {
		for bi := range f.Blocks {
			for ii := range f.Blocks[bi].Code {
				in := &f.Blocks[bi].Code[ii]
				if in.Op != OpCallHandler {
					continue
				}
				if !opBodyTailResumptive(pc.prog.Func(in.Fn)) {
					return fmt.Errorf("direct site in %s targets a non-tail op body", f.Name)
				}
			}
		}
	}
	return nil
}

// Reoptimize re-runs the full pipeline over the artifact's current
// function bodies. The pipeline runs to a fixpoint inside Compile, so a
// reoptimized artifact carries byte-identical bodies and an identical
// fingerprint.
func (a *Artifact) Reoptimize() error {
	pc := newPassCtx(a.prog, a.cfg)
	if err := runPipeline(pc); err != nil {
		return err
	}
	if len(pc.ffiErrs) > 0 {
		return multierr.Combine(pc.ffiErrs...)
	}
	a.Plan = pc.plan
	a.Reports = buildReports(pc)
	return nil
}

// LiveContinuations reports the number of captured, not yet consumed
// continuations held against this artifact's budget.
func (a *Artifact) LiveContinuations() int64 {
	return a.liveConts.Load()
}

// Captures reports the total number of continuations materialized over
// the artifact's lifetime, counting both captures and clones. Directly
// lowered sites never contribute.
func (a *Artifact) Captures() int64 {
	return a.captures.Load()
}

// validate rejects structurally malformed programs before any pass runs.
func validate(p *Program) error {
	for fi, f := range p.Funcs {
		if len(f.Blocks) == 0 {
			return &CompileError{Fn: FuncID(fi), Reason: "no blocks"}
		}
		if f.NRegs < f.NParams {
			return &CompileError{Fn: FuncID(fi), Reason: "register file smaller than parameter list"}
		}
		for bi := range f.Blocks {
			t := f.Blocks[bi].Term
			if t.Kind == TermJmp && (t.To < 0 || t.To >= len(f.Blocks)) {
				return &CompileError{Fn: FuncID(fi), Reason: "jump target out of range"}
			}
			if t.Kind == TermBr && (t.To < 0 || t.To >= len(f.Blocks) || t.Else < 0 || t.Else >= len(f.Blocks)) {
				return &CompileError{Fn: FuncID(fi), Reason: "branch target out of range"}
			}
		}
	}
	for hi, h := range p.Handlers {
		if int(h.Effect) >= len(p.Effects) {
			return &CompileError{Fn: FuncID(hi), Reason: "handler references unknown effect"}
		}
		if len(h.Ops) != len(p.Effects[h.Effect].Ops) {
			return &CompileError{Fn: FuncID(hi), Reason: "handler operation count mismatch"}
		}
	}
	return nil
}

func cloneProgram(p *Program) *Program {
	q := &Program{
		Effects:  append([]EffectDecl(nil), p.Effects...),
		Handlers: append([]HandlerDecl(nil), p.Handlers...),
		Foreigns: append([]ForeignDecl(nil), p.Foreigns...),
		nextSite: p.nextSite,
	}
	q.Funcs = make([]*Func, len(p.Funcs))
	for i, f := range p.Funcs {
		q.Funcs[i] = f.clone()
	}
	return q
}
