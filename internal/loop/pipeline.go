// Package loop orchestrates the generate, compile and repair cycle for one
// deck run.
//
// A run owns a directory under the output root named by its run ID. All
// artifacts land there: the final source, the PDF, the compile log, the page
// map and optional per-attempt source snapshots. Repairs move forward only;
// the loop never returns to an earlier source revision.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/deckforge/internal/assets"
	"git.home.luguber.info/inful/deckforge/internal/classify"
	"git.home.luguber.info/inful/deckforge/internal/config"
	"git.home.luguber.info/inful/deckforge/internal/logfields"
	"git.home.luguber.info/inful/deckforge/internal/metrics"
	"git.home.luguber.info/inful/deckforge/internal/observability"
	"git.home.luguber.info/inful/deckforge/internal/pagemap"
	"git.home.luguber.info/inful/deckforge/internal/plan"
	"git.home.luguber.info/inful/deckforge/internal/repair"
	"git.home.luguber.info/inful/deckforge/internal/runstore"
	"git.home.luguber.info/inful/deckforge/internal/synth"
	"git.home.luguber.info/inful/deckforge/internal/texc"
	"git.home.luguber.info/inful/deckforge/internal/workspace"
)

// Outcome is the terminal result of a run.
type Outcome struct {
	RunID        string
	Success      bool
	Status       runstore.RunStatus
	Message      string
	ArtifactPath string
	SourcePath   string
	RunDir       string
	Attempts     int
}

// Pipeline wires the pipeline components for generation and revision runs.
type Pipeline struct {
	synthesizer *synth.Synthesizer
	repairer    *repair.Agent
	compiler    *texc.Compiler
	store       *runstore.Store
	recorder    metrics.Recorder
	loopCfg     config.LoopConfig
	engine      config.CompilerEngine
	engineBin   string
	outDir      string
}

// New creates a Pipeline writing run directories under outDir.
func New(s *synth.Synthesizer, r *repair.Agent, c *texc.Compiler, loopCfg config.LoopConfig, engine config.CompilerEngine, outDir string) *Pipeline {
	return &Pipeline{
		synthesizer: s,
		repairer:    r,
		compiler:    c,
		recorder:    metrics.NoopRecorder{},
		loopCfg:     loopCfg,
		engine:      engine,
		outDir:      outDir,
	}
}

// WithStore attaches run history persistence.
func (p *Pipeline) WithStore(store *runstore.Store) *Pipeline {
	p.store = store
	return p
}

// WithEngineBinary overrides the engine binary resolved from configuration.
// Used when the LaTeX toolchain lives outside PATH.
func (p *Pipeline) WithEngineBinary(bin string) *Pipeline {
	p.engineBin = bin
	return p
}

// WithRecorder attaches a metrics recorder.
func (p *Pipeline) WithRecorder(rec metrics.Recorder) *Pipeline {
	if rec != nil {
		p.recorder = rec
	}
	return p
}

// OutDir returns the output root runs are written under.
func (p *Pipeline) OutDir() string { return p.outDir }

// Store returns the attached run store, nil when history is disabled.
func (p *Pipeline) Store() *runstore.Store { return p.store }

// Run generates a deck from the plan and drives it through the compile and
// repair loop. inputAssetDir holds the caller's figure files and may be empty.
func (p *Pipeline) Run(ctx context.Context, pl *plan.Plan, inputAssetDir string) (*Outcome, error) {
	runID := uuid.NewString()
	ctx = observability.WithRunID(ctx, runID)
	start := time.Now()

	runDir, assetDir, err := p.prepareRunDir(runID, inputAssetDir)
	if err != nil {
		return nil, err
	}
	engine := p.resolveEngine(pl.IsCJK())
	p.recordRunStart(ctx, runID, "generate", engine, pl.Language)

	resolved, err := assets.NewResolver(assetDir).Resolve(pl)
	if err != nil {
		return p.finish(ctx, &Outcome{
			RunID: runID, RunDir: runDir,
			Status:  runstore.StatusFatal,
			Message: fmt.Sprintf("resolve assets: %v", err),
		}, start), nil
	}

	// Keep the resolved plan next to the artifacts; revisions map slides to
	// frames through it.
	if err := resolved.Save(filepath.Join(runDir, plan.FileName)); err != nil {
		observability.WarnContext(ctx, "Plan persistence failed", logfields.Error(err))
	}

	sctx := observability.WithStage(ctx, "synthesize")
	observability.InfoContext(sctx, "Generating deck source",
		logfields.Language(resolved.Language), slog.Int("slides", len(resolved.Slides)),
		slog.Int("figures", len(resolved.FigureSlides())))
	source, err := p.synthesizer.Generate(sctx, resolved)
	if err != nil {
		observability.ErrorContext(sctx, "Generation failed", logfields.Error(err))
		return p.finish(ctx, &Outcome{
			RunID: runID, RunDir: runDir,
			Status:  runstore.StatusFatal,
			Message: fmt.Sprintf("generate source: %v", err),
		}, start), nil
	}

	out := p.compileLoop(ctx, compileJob{
		runID:      runID,
		runDir:     runDir,
		assetDir:   assetDir,
		source:     source,
		engine:     engine,
		slideCount: len(resolved.Slides),
		pdfName:    "deck.pdf",
		sourceName: "source.tex",
	})
	return p.finish(ctx, out, start), nil
}

// SourceRequest drives the compile loop over already-built source. Revisions
// use this path: the source exists, only compilation and repair remain.
type SourceRequest struct {
	Kind       string
	Source     string
	AssetDir   string // existing resolved assets to copy into the new run
	PlanPath   string // previous run's plan copy, carried into the new run
	CJK        bool
	Language   string
	SlideCount int
	PDFName    string
	SourceName string
}

// RunSource compiles the given source in a fresh run directory.
func (p *Pipeline) RunSource(ctx context.Context, req SourceRequest) (*Outcome, error) {
	runID := uuid.NewString()
	ctx = observability.WithRunID(ctx, runID)
	start := time.Now()

	runDir, assetDir, err := p.prepareRunDir(runID, req.AssetDir)
	if err != nil {
		return nil, err
	}
	kind := req.Kind
	if kind == "" {
		kind = "revise"
	}
	engine := p.resolveEngine(req.CJK)
	p.recordRunStart(ctx, runID, kind, engine, req.Language)

	if req.PlanPath != "" {
		if err := workspace.CopyFile(req.PlanPath, filepath.Join(runDir, plan.FileName)); err != nil {
			observability.WarnContext(ctx, "Plan carry-over failed", logfields.Error(err))
		}
	}

	pdfName := req.PDFName
	if pdfName == "" {
		pdfName = "deck.pdf"
	}
	sourceName := req.SourceName
	if sourceName == "" {
		sourceName = "source.tex"
	}
	out := p.compileLoop(ctx, compileJob{
		runID:      runID,
		runDir:     runDir,
		assetDir:   assetDir,
		source:     req.Source,
		engine:     engine,
		slideCount: req.SlideCount,
		pdfName:    pdfName,
		sourceName: sourceName,
	})
	return p.finish(ctx, out, start), nil
}

type compileJob struct {
	runID      string
	runDir     string
	assetDir   string
	source     string
	engine     string
	slideCount int
	pdfName    string
	sourceName string
}

// compileLoop runs up to MaxAttempts compiles, repairing between failures.
func (p *Pipeline) compileLoop(ctx context.Context, job compileJob) *Outcome {
	out := &Outcome{RunID: job.runID, RunDir: job.runDir}
	source := job.source
	maxAttempts := p.loopCfg.MaxAttempts
	var lastCls classify.Classification

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		actx := observability.WithStage(ctx, "compile")
		out.Attempts = attempt

		sourcePath := filepath.Join(job.runDir, job.sourceName)
		if err := os.WriteFile(sourcePath, []byte(source), 0o600); err != nil {
			out.Status = runstore.StatusFatal
			out.Message = fmt.Sprintf("persist source: %v", err)
			return out
		}
		if p.loopCfg.KeepAttemptHistory {
			snap := filepath.Join(job.runDir, fmt.Sprintf("source.attempt-%d.tex", attempt))
			if err := os.WriteFile(snap, []byte(source), 0o600); err != nil {
				observability.WarnContext(actx, "Attempt snapshot failed", logfields.Error(err))
			}
		}

		observability.InfoContext(actx, "Compiling deck",
			logfields.Attempt(attempt), slog.String("engine", job.engine))
		attemptStart := time.Now()
		res, err := p.compiler.Compile(actx, texc.Request{
			Source:   source,
			AssetDir: job.assetDir,
			Engine:   job.engine,
			OutDir:   job.runDir,
			PDFName:  job.pdfName,
			LogName:  "compile.log",
		})
		attemptDur := time.Since(attemptStart)
		p.recorder.ObserveCompileDuration(job.engine, attemptDur, err == nil)

		if err == nil {
			p.recordAttempt(ctx, runstore.Attempt{
				RunID: job.runID, Number: attempt, Success: true, Duration: attemptDur,
			})
			if job.slideCount > 0 {
				p.savePageMap(ctx, job.runID, job.runDir, job.slideCount)
			}
			observability.InfoContext(actx, "Deck compiled",
				logfields.Attempt(attempt), logfields.Path(res.PDFPath),
				logfields.DurationMS(float64(attemptDur.Milliseconds())))
			out.Success = true
			out.Status = runstore.StatusSuccess
			out.ArtifactPath = res.PDFPath
			out.SourcePath = sourcePath
			return out
		}

		var cerr *texc.Error
		if !errors.As(err, &cerr) {
			observability.ErrorContext(actx, "Compile aborted", logfields.Error(err))
			out.Status = runstore.StatusFatal
			out.Message = err.Error()
			return out
		}

		cls := classify.Classify(cerr.Log)
		if cerr.Timeout {
			cls = classify.Timeout()
		}
		lastCls = cls
		p.recorder.IncCompileError(string(cls.Kind))
		p.recordAttempt(ctx, runstore.Attempt{
			RunID: job.runID, Number: attempt, Success: false,
			ErrorKind: string(cls.Kind), Detail: cls.Detail, Duration: attemptDur,
		})
		p.persistFailureLog(actx, job.runDir, cerr.Log)
		observability.WarnContext(actx, "Compile failed",
			logfields.Attempt(attempt), logfields.ErrorKind(string(cls.Kind)))

		if attempt == maxAttempts {
			break
		}
		if err := sleepCtx(ctx, p.loopCfg.RepairDelay.Std()); err != nil {
			out.Status = runstore.StatusFatal
			out.Message = err.Error()
			return out
		}

		rctx := observability.WithStage(ctx, "repair")
		observability.InfoContext(rctx, "Requesting repair",
			logfields.Attempt(attempt), logfields.ErrorKind(string(cls.Kind)))
		fixed, err := p.repairer.Repair(rctx, source, cls)
		if err != nil {
			observability.ErrorContext(rctx, "Repair failed", logfields.Error(err))
			out.Status = runstore.StatusFatal
			out.Message = fmt.Sprintf("repair after attempt %d: %v", attempt, err)
			return out
		}
		p.recorder.IncRepair()
		source = fixed
	}

	// The last-written source stays on disk for manual continuation; the
	// final classification rides along so callers see what stopped the run.
	out.Status = runstore.StatusExhausted
	out.SourcePath = filepath.Join(job.runDir, job.sourceName)
	msg := fmt.Sprintf("compile failed after %d attempts: %s", maxAttempts, lastCls.Kind)
	if lastCls.Detail != "" {
		msg += ": " + lastCls.Detail
	}
	if lastCls.Excerpt != "" {
		msg += "\n" + lastCls.Excerpt
	}
	out.Message = msg
	return out
}

func (p *Pipeline) resolveEngine(cjk bool) string {
	if p.engineBin != "" {
		return p.engineBin
	}
	return texc.ResolveEngine(p.engine, cjk)
}

func (p *Pipeline) prepareRunDir(runID, inputAssetDir string) (runDir, assetDir string, err error) {
	runDir = filepath.Join(p.outDir, runID)
	assetDir = filepath.Join(runDir, assets.CompileRelDir)
	if err := os.MkdirAll(assetDir, 0o750); err != nil {
		return "", "", fmt.Errorf("create run directory: %w", err)
	}
	if inputAssetDir != "" {
		if _, err := workspace.CopyTree(inputAssetDir, assetDir); err != nil {
			return "", "", fmt.Errorf("copy input assets: %w", err)
		}
	}
	return runDir, assetDir, nil
}

func (p *Pipeline) savePageMap(ctx context.Context, runID, runDir string, slideCount int) {
	pm := pagemap.Build(slideCount)
	if err := pm.Save(runDir); err != nil {
		observability.WarnContext(ctx, "Page map write failed", logfields.Error(err))
	}
	if p.store != nil {
		if err := p.store.SavePageMap(ctx, runID, pm); err != nil {
			observability.WarnContext(ctx, "Page map persistence failed", logfields.Error(err))
		}
	}
}

func (p *Pipeline) persistFailureLog(ctx context.Context, runDir, log string) {
	path := filepath.Join(runDir, "compile.log")
	if err := os.WriteFile(path, []byte(log), 0o600); err != nil {
		observability.WarnContext(ctx, "Compile log write failed", logfields.Error(err))
	}
}

func (p *Pipeline) recordRunStart(ctx context.Context, runID, kind, engine, language string) {
	if p.store == nil {
		return
	}
	if err := p.store.CreateRun(ctx, runID, kind, engine, language); err != nil {
		observability.WarnContext(ctx, "Run persistence failed", logfields.Error(err))
	}
}

func (p *Pipeline) recordAttempt(ctx context.Context, a runstore.Attempt) {
	if p.store == nil {
		return
	}
	if err := p.store.RecordAttempt(ctx, a); err != nil {
		observability.WarnContext(ctx, "Attempt persistence failed", logfields.Error(err))
	}
}

func (p *Pipeline) finish(ctx context.Context, out *Outcome, start time.Time) *Outcome {
	p.recorder.ObserveRunDuration(time.Since(start))
	switch out.Status {
	case runstore.StatusSuccess:
		p.recorder.IncRunOutcome(metrics.OutcomeSuccess)
	case runstore.StatusExhausted:
		p.recorder.IncRunOutcome(metrics.OutcomeExhausted)
	default:
		p.recorder.IncRunOutcome(metrics.OutcomeFatal)
	}
	if p.store != nil {
		if err := p.store.FinishRun(ctx, out.RunID, out.Status, out.ArtifactPath, out.Message); err != nil {
			observability.WarnContext(ctx, "Run completion persistence failed", logfields.Error(err))
		}
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
