package texc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"git.home.luguber.info/inful/deckforge/internal/config"
)

// fakeEngine writes a shell script standing in for pdflatex. The script body
// runs in the compile workspace, so it can inspect staged files and decide
// whether to emit source.pdf.
func fakeEngine(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake engine scripts need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fakelatex")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o700); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestResolveEngine(t *testing.T) {
	cases := []struct {
		engine config.CompilerEngine
		cjk    bool
		want   string
	}{
		{config.EngineAuto, false, "pdflatex"},
		{config.EngineAuto, true, "xelatex"},
		{config.EnginePDFLaTeX, true, "pdflatex"},
		{config.EngineXeLaTeX, false, "xelatex"},
	}
	for _, tc := range cases {
		if got := ResolveEngine(tc.engine, tc.cjk); got != tc.want {
			t.Fatalf("ResolveEngine(%s, %v) = %s, want %s", tc.engine, tc.cjk, got, tc.want)
		}
	}
}

func TestCompileSuccessPersistsArtifacts(t *testing.T) {
	engine := fakeEngine(t, `echo "This is fake LaTeX"; printf 'pdf' > source.pdf`)
	outDir := filepath.Join(t.TempDir(), "run")

	assetDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(assetDir, "fig.png"), []byte("png"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := config.CompilerConfig{ExtraPasses: 2}
	res, err := New(cfg, t.TempDir()).Compile(context.Background(), Request{
		Source:   `\documentclass{beamer}\begin{document}x\end{document}`,
		AssetDir: assetDir,
		Engine:   engine,
		OutDir:   outDir,
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if res.Passes != 3 {
		t.Fatalf("passes = %d, want 3", res.Passes)
	}
	for _, name := range []string{"deck.pdf", "compile.log"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Fatalf("missing artifact %s: %v", name, err)
		}
	}
	if !strings.Contains(res.Log, "fake LaTeX") {
		t.Fatalf("log not captured: %q", res.Log)
	}
}

func TestCompileStagesAssetsIntoWorkspace(t *testing.T) {
	// The script fails unless the asset was staged under assets/.
	engine := fakeEngine(t, `test -f assets/fig.png || exit 1; printf 'pdf' > source.pdf`)
	assetDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(assetDir, "fig.png"), []byte("png"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := New(config.CompilerConfig{}, t.TempDir()).Compile(context.Background(), Request{
		Source:   "x",
		AssetDir: assetDir,
		Engine:   engine,
		OutDir:   t.TempDir(),
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
}

func TestCompileFailureCarriesLog(t *testing.T) {
	engine := fakeEngine(t, `echo '! Undefined control sequence.'; exit 1`)
	_, err := New(config.CompilerConfig{}, t.TempDir()).Compile(context.Background(), Request{
		Source: "x",
		Engine: engine,
		OutDir: t.TempDir(),
	})
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if cerr.Timeout {
		t.Fatal("exit failure must not be a timeout")
	}
	if !strings.Contains(cerr.Log, "Undefined control sequence") {
		t.Fatalf("log missing engine output: %q", cerr.Log)
	}
}

func TestCompileNoPDFIsError(t *testing.T) {
	engine := fakeEngine(t, `echo ok`)
	_, err := New(config.CompilerConfig{}, t.TempDir()).Compile(context.Background(), Request{
		Source: "x",
		Engine: engine,
		OutDir: t.TempDir(),
	})
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if !strings.Contains(cerr.Err.Error(), "no PDF") {
		t.Fatalf("unexpected cause: %v", cerr.Err)
	}
}

func TestCompileTimeout(t *testing.T) {
	engine := fakeEngine(t, `sleep 5`)
	cfg := config.CompilerConfig{Timeout: config.Duration(50 * time.Millisecond)}
	_, err := New(cfg, t.TempDir()).Compile(context.Background(), Request{
		Source: "x",
		Engine: engine,
		OutDir: t.TempDir(),
	})
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if !cerr.Timeout {
		t.Fatalf("expected timeout, got %v", cerr)
	}
}
