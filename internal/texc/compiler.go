// Package texc runs the external LaTeX engine and turns its outcome into
// structured results.
package texc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/deckforge/internal/config"
	"git.home.luguber.info/inful/deckforge/internal/logfields"
	"git.home.luguber.info/inful/deckforge/internal/workspace"
)

// Request describes one compile: the full source, where resolved assets
// live, and where the produced artifacts should be persisted.
type Request struct {
	Source   string
	AssetDir string
	Engine   string
	OutDir   string
	PDFName  string // defaults to deck.pdf
	LogName  string // defaults to compile.log
}

// Result reports a successful compile.
type Result struct {
	PDFPath  string
	LogPath  string
	Log      string
	Passes   int
	Duration time.Duration
}

// Error is a failed compile. Log carries the engine output for
// classification; Timeout marks deadline kills, which produce no usable log.
type Error struct {
	Timeout bool
	Log     string
	Err     error
}

func (e *Error) Error() string {
	if e.Timeout {
		return fmt.Sprintf("compile timed out: %v", e.Err)
	}
	return fmt.Sprintf("compile failed: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Compiler executes the LaTeX engine in isolated workspaces.
type Compiler struct {
	cfg     config.CompilerConfig
	workdir string
}

// New creates a Compiler. workdir roots the ephemeral compile directories;
// empty means the system temp dir.
func New(cfg config.CompilerConfig, workdir string) *Compiler {
	return &Compiler{cfg: cfg, workdir: workdir}
}

// ResolveEngine picks the concrete engine binary. Auto selects xelatex for
// CJK decks, which need its font handling, and pdflatex otherwise.
func ResolveEngine(engine config.CompilerEngine, cjk bool) string {
	switch engine {
	case config.EnginePDFLaTeX:
		return "pdflatex"
	case config.EngineXeLaTeX:
		return "xelatex"
	default:
		if cjk {
			return "xelatex"
		}
		return "pdflatex"
	}
}

// Compile runs the engine on req.Source in a fresh workspace. On success it
// runs the configured extra passes so cross-references and the table of
// contents settle, then copies the PDF and log into req.OutDir.
func (c *Compiler) Compile(ctx context.Context, req Request) (*Result, error) {
	if req.Engine == "" {
		return nil, fmt.Errorf("compile request missing engine")
	}
	ws := workspace.NewManager(c.workdir)
	if err := ws.Create(); err != nil {
		return nil, err
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			slog.Warn("Workspace cleanup failed", logfields.Error(err))
		}
	}()

	srcPath := filepath.Join(ws.Path(), "source.tex")
	if err := os.WriteFile(srcPath, []byte(req.Source), 0o600); err != nil {
		return nil, fmt.Errorf("write source: %w", err)
	}
	if req.AssetDir != "" {
		assetDst, err := ws.CreateSubdir("assets")
		if err != nil {
			return nil, err
		}
		if _, err := workspace.CopyTree(req.AssetDir, assetDst); err != nil {
			return nil, fmt.Errorf("stage assets: %w", err)
		}
	}

	start := time.Now()
	passes := 1 + c.cfg.ExtraPasses
	var log string
	for pass := 1; pass <= passes; pass++ {
		out, err := c.runPass(ctx, req.Engine, ws.Path())
		log = out
		if err != nil {
			if pass > 1 {
				// Later passes only refine references; the first pass
				// already produced a complete document.
				slog.Warn("Extra compile pass failed, keeping first-pass output",
					slog.Int("pass", pass), logfields.Error(err))
				break
			}
			return nil, err
		}
	}

	pdfSrc := filepath.Join(ws.Path(), "source.pdf")
	if _, err := os.Stat(pdfSrc); err != nil {
		return nil, &Error{Log: log, Err: errors.New("engine exited cleanly but produced no PDF")}
	}

	pdfName := req.PDFName
	if pdfName == "" {
		pdfName = "deck.pdf"
	}
	logName := req.LogName
	if logName == "" {
		logName = "compile.log"
	}
	if err := os.MkdirAll(req.OutDir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	pdfDst := filepath.Join(req.OutDir, pdfName)
	logDst := filepath.Join(req.OutDir, logName)
	if err := workspace.CopyFile(pdfSrc, pdfDst); err != nil {
		return nil, fmt.Errorf("persist pdf: %w", err)
	}
	if err := os.WriteFile(logDst, []byte(log), 0o600); err != nil {
		return nil, fmt.Errorf("persist log: %w", err)
	}

	return &Result{
		PDFPath:  pdfDst,
		LogPath:  logDst,
		Log:      log,
		Passes:   passes,
		Duration: time.Since(start),
	}, nil
}

// runPass executes a single engine invocation and returns its combined output.
func (c *Compiler) runPass(ctx context.Context, engine, dir string) (string, error) {
	timeout := c.cfg.Timeout.Std()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	args := []string{"-interaction=nonstopmode"}
	if c.cfg.ShellEscape {
		args = append(args, "-shell-escape")
	}
	args = append(args, "source.tex")

	// #nosec G204 -- engine is one of two fixed binary names
	cmd := exec.CommandContext(ctx, engine, args...)
	cmd.Dir = dir

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	out := buf.String()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return out, &Error{Timeout: true, Log: out, Err: ctx.Err()}
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		return out, &Error{Log: out, Err: err}
	}
	return out, nil
}
