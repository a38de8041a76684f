// Package assets resolves figure references in a presentation plan to files
// that exist on disk before any LaTeX is generated.
//
// Resolution never fails for a missing figure: a placeholder image carrying
// the originally requested path is synthesized instead, so the compiler is
// never handed a dangling \includegraphics target.
package assets

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/deckforge/internal/logfields"
	"git.home.luguber.info/inful/deckforge/internal/plan"
)

// CompileRelDir is the asset directory name relative to the compile working
// directory; generated LaTeX refers to figures as "assets/<name>".
const CompileRelDir = "assets"

// Resolver maps figure references to real files in a per-run asset directory.
type Resolver struct {
	assetDir string
}

// NewResolver creates a resolver over the run's asset directory. The directory
// is owned by a single run, so placeholder writes cannot race across runs.
func NewResolver(assetDir string) *Resolver {
	return &Resolver{assetDir: assetDir}
}

// AssetDir returns the directory holding resolved assets for this run.
func (r *Resolver) AssetDir() string { return r.assetDir }

// Resolve returns a new plan in which every figure-bearing slide carries a
// ResolvedPath naming an existing file, and a Path relative to the compile
// working directory. The input plan is never mutated.
func (r *Resolver) Resolve(p *plan.Plan) (*plan.Plan, error) {
	resolved := p.Clone()
	for i := range resolved.Slides {
		s := &resolved.Slides[i]
		if !s.IncludesFigure || s.FigureReference == nil {
			continue
		}
		if err := r.resolveRef(s.SlideNumber, s.FigureReference); err != nil {
			return nil, err
		}
	}
	return resolved, nil
}

func (r *Resolver) resolveRef(slideNumber int, ref *plan.FigureReference) error {
	requested := ref.Path
	filename := filepath.Base(requested)
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		return fmt.Errorf("slide %d: figure reference has no usable filename: %q", slideNumber, requested)
	}

	existing := filepath.Join(r.assetDir, filename)
	if fileExists(existing) {
		abs, err := filepath.Abs(existing)
		if err != nil {
			return fmt.Errorf("resolve asset path: %w", err)
		}
		ref.ResolvedPath = abs
		ref.Path = filepath.ToSlash(filepath.Join(CompileRelDir, filename))
		slog.Debug("Resolved figure", logfields.Slide(slideNumber), logfields.Path(abs))
		return nil
	}

	placeholderName := fmt.Sprintf("placeholder_%s.png", filename)
	placeholderPath := filepath.Join(r.assetDir, placeholderName)
	if !fileExists(placeholderPath) {
		if err := writePlaceholder(placeholderPath, requested); err != nil {
			return fmt.Errorf("slide %d: synthesize placeholder: %w", slideNumber, err)
		}
	}
	abs, err := filepath.Abs(placeholderPath)
	if err != nil {
		return fmt.Errorf("resolve placeholder path: %w", err)
	}
	ref.ResolvedPath = abs
	ref.Path = filepath.ToSlash(filepath.Join(CompileRelDir, placeholderName))
	slog.Warn("Figure missing, substituted placeholder",
		logfields.Slide(slideNumber), slog.String("requested", requested), logfields.Path(abs))
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
