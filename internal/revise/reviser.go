// Package revise rewrites an already-built deck from a natural-language
// instruction, either as a whole document or as a single-slide patch.
//
// Revisions never touch the previous run's artifacts: the revised source
// compiles into a fresh run directory, with the previous run's resolved
// assets copied along.
package revise

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"git.home.luguber.info/inful/deckforge/internal/llm"
	"git.home.luguber.info/inful/deckforge/internal/logfields"
	"git.home.luguber.info/inful/deckforge/internal/loop"
	"git.home.luguber.info/inful/deckforge/internal/observability"
	"git.home.luguber.info/inful/deckforge/internal/pagemap"
	"git.home.luguber.info/inful/deckforge/internal/plan"
	"git.home.luguber.info/inful/deckforge/internal/texsrc"
)

var (
	// ErrSlideNotFound means the requested slide has no frame in the source.
	ErrSlideNotFound = errors.New("slide not found in document")
	// ErrUneditableSlide means the instruction targets the title or contents
	// page, which are derived and cannot be revised directly.
	ErrUneditableSlide = errors.New("title and contents pages cannot be revised")
)

// pageRefRe matches explicit page references in instructions, in English
// ("page 5") and Chinese ("第5页" style).
var pageRefRe = regexp.MustCompile(`(?i)(?:page|第)\s*(\d+)`)

// ParsePageReference extracts the first page number named by an instruction.
func ParsePageReference(instruction string) (int, bool) {
	m := pageRefRe.FindStringSubmatch(instruction)
	if m == nil {
		return 0, false
	}
	page, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return page, true
}

// Request describes one revision.
type Request struct {
	RunDir      string // previous run directory holding source.tex and assets
	Instruction string
	Slide       int    // explicit target slide, 0 to derive from the instruction
	WholeDoc    bool   // force whole-document strategy
	Language    string // deck language, drives engine selection
}

// Reviser rewrites deck source and recompiles it.
type Reviser struct {
	client   llm.Client
	pipeline *loop.Pipeline
}

func New(client llm.Client, pipeline *loop.Pipeline) *Reviser {
	return &Reviser{client: client, pipeline: pipeline}
}

// Revise applies the instruction and compiles the result into a new run.
func (r *Reviser) Revise(ctx context.Context, req Request) (*loop.Outcome, error) {
	source, err := loadSource(req.RunDir)
	if err != nil {
		return nil, err
	}
	pl, planPath, err := loadPlan(req.RunDir)
	if err != nil {
		return nil, err
	}

	slide, localized, err := r.target(req)
	if err != nil {
		return nil, err
	}

	ctx = observability.WithStage(ctx, "revise")
	var revised string
	if localized {
		revised, err = r.reviseSlide(ctx, source, pl, slide, req.Instruction)
	} else {
		revised, err = r.reviseDocument(ctx, source, req.Instruction)
	}
	if err != nil {
		return nil, err
	}

	pm, err := pagemap.Load(req.RunDir)
	if err != nil {
		observability.WarnContext(ctx, "Page map unreadable, positional fallback stays in effect", logfields.Error(err))
		pm = pagemap.Map{}
	}

	stamp := time.Now().Format("20060102-150405")
	return r.pipeline.RunSource(ctx, loop.SourceRequest{
		Kind:       "revise",
		Source:     revised,
		AssetDir:   filepath.Join(req.RunDir, "assets"),
		PlanPath:   planPath,
		CJK:        plan.IsCJKLanguage(req.Language),
		Language:   req.Language,
		SlideCount: len(pm),
		PDFName:    fmt.Sprintf("deck-revised-%s.pdf", stamp),
		SourceName: fmt.Sprintf("revised-%s.tex", stamp),
	})
}

// target decides between the localized and whole-document strategies. An
// explicit slide wins; otherwise a page reference in the instruction selects
// a slide via the page map; without either the whole document is revised.
func (r *Reviser) target(req Request) (slide int, localized bool, err error) {
	if req.WholeDoc {
		return 0, false, nil
	}
	if req.Slide > 0 {
		return req.Slide, true, nil
	}
	page, ok := ParsePageReference(req.Instruction)
	if !ok {
		return 0, false, nil
	}
	if page <= pagemap.FrontMatterPages {
		return 0, false, ErrUneditableSlide
	}
	pm, err := pagemap.Load(req.RunDir)
	if err != nil {
		return 0, false, err
	}
	slide, ok = pm.SlideForPage(page)
	if !ok {
		return 0, false, fmt.Errorf("%w: page %d maps to no slide", ErrSlideNotFound, page)
	}
	return slide, true, nil
}

const slideSystemPrompt = `You are an expert LaTeX Beamer editor. You receive one frame from a
presentation and an instruction. Return the revised frame only, from
\begin{frame} to \end{frame}, keeping the same \frametitle unless the
instruction says otherwise. Reply with LaTeX source only.`

// reviseSlide patches a single frame and splices it back verbatim.
func (r *Reviser) reviseSlide(ctx context.Context, source string, pl *plan.Plan, slide int, instruction string) (string, error) {
	frame, err := frameForSlide(source, pl, slide)
	if err != nil {
		return "", err
	}

	observability.InfoContext(ctx, "Revising slide", logfields.Slide(slide))
	raw, err := r.client.Complete(ctx, llm.Prompt{
		System: slideSystemPrompt,
		User: fmt.Sprintf("Instruction: %s\n\nFrame:\n%s\n\nReturn the complete revised frame.",
			instruction, frame),
	})
	if err != nil {
		return "", fmt.Errorf("revise slide %d: %w", slide, err)
	}
	newFrame := texsrc.Clean(raw)
	if !strings.HasPrefix(newFrame, `\begin{frame}`) || !strings.HasSuffix(newFrame, `\end{frame}`) {
		return "", fmt.Errorf("revise slide %d: model did not return a frame block", slide)
	}
	revised, ok := texsrc.ReplaceBlock(source, frame, newFrame)
	if !ok {
		return "", fmt.Errorf("revise slide %d: frame no longer present in source", slide)
	}
	if err := texsrc.Validate(revised); err != nil {
		return "", fmt.Errorf("revised document unusable: %w", err)
	}
	return revised, nil
}

const docSystemPrompt = `You are an expert LaTeX Beamer editor. You receive a complete
presentation and an instruction. Return the revised, complete document.
Apply the instruction and change nothing else. Reply with LaTeX source only.`

// reviseDocument rewrites the document wholesale.
func (r *Reviser) reviseDocument(ctx context.Context, source, instruction string) (string, error) {
	observability.InfoContext(ctx, "Revising whole document")
	raw, err := r.client.Complete(ctx, llm.Prompt{
		System: docSystemPrompt,
		User: fmt.Sprintf("Instruction: %s\n\nDocument:\n%s\n\nReturn the complete revised document.",
			instruction, source),
	})
	if err != nil {
		return "", fmt.Errorf("revise document: %w", err)
	}
	revised := texsrc.Clean(raw)
	if err := texsrc.Validate(revised); err != nil {
		return "", fmt.Errorf("revised document unusable: %w", err)
	}
	return revised, nil
}

// frameForSlide locates the frame block for a content slide. With the run's
// plan on hand the slide's \frametitle marker identifies the frame no matter
// how the deck is laid out; a deck without a persisted plan falls back to
// position, counting the title and contents frames first.
func frameForSlide(source string, pl *plan.Plan, slide int) (string, error) {
	if pl != nil {
		spec := pl.SlideByNumber(slide)
		if spec == nil {
			return "", fmt.Errorf("%w: slide %d is not in the plan", ErrSlideNotFound, slide)
		}
		frame, ok := texsrc.FrameForTitle(source, spec.Title)
		if !ok {
			return "", fmt.Errorf("%w: no frame titled %q", ErrSlideNotFound, spec.Title)
		}
		return frame, nil
	}
	frames := texsrc.Frames(source)
	frameIdx := slide + pagemap.FrontMatterPages
	if frameIdx > len(frames) {
		return "", fmt.Errorf("%w: slide %d of %d", ErrSlideNotFound, slide, len(frames)-pagemap.FrontMatterPages)
	}
	return frames[frameIdx-1], nil
}

func loadSource(runDir string) (string, error) {
	path := filepath.Join(runDir, "source.tex")
	if _, err := os.Stat(path); err != nil {
		// Revision runs persist timestamped sources instead of source.tex.
		path, err = newestTexSource(runDir)
		if err != nil {
			return "", fmt.Errorf("load deck source: %w", err)
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("load deck source: %w", err)
	}
	slog.Debug("Loaded deck source for revision", logfields.Path(path))
	return string(data), nil
}

// newestTexSource picks the most recently written .tex file in the run
// directory, skipping per-attempt snapshots.
func newestTexSource(runDir string) (string, error) {
	entries, err := os.ReadDir(runDir)
	if err != nil {
		return "", err
	}
	var newest string
	var newestMod time.Time
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".tex" || strings.HasPrefix(name, "source.attempt-") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = filepath.Join(runDir, name)
			newestMod = info.ModTime()
		}
	}
	if newest == "" {
		return "", fmt.Errorf("no deck source in %s", runDir)
	}
	return newest, nil
}

// loadPlan reads the run's persisted plan copy. Decks built before plans
// were persisted have none; that is not an error.
func loadPlan(runDir string) (*plan.Plan, string, error) {
	path := filepath.Join(runDir, plan.FileName)
	if _, err := os.Stat(path); err != nil {
		return nil, "", nil
	}
	pl, err := plan.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("load run plan: %w", err)
	}
	return pl, path, nil
}
