package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/deckforge/internal/config"
	"git.home.luguber.info/inful/deckforge/internal/llm"
	"git.home.luguber.info/inful/deckforge/internal/loop"
	"git.home.luguber.info/inful/deckforge/internal/pagemap"
	"git.home.luguber.info/inful/deckforge/internal/repair"
	"git.home.luguber.info/inful/deckforge/internal/revise"
	"git.home.luguber.info/inful/deckforge/internal/runstore"
	"git.home.luguber.info/inful/deckforge/internal/synth"
	"git.home.luguber.info/inful/deckforge/internal/texc"
)

const validDoc = `\documentclass{beamer}
\begin{document}
\begin{frame}
\titlepage
\end{frame}
\begin{frame}
\tableofcontents
\end{frame}
\begin{frame}
\frametitle{Overview}
alpha
\end{frame}
\end{document}`

const planJSON = `{
  "paper_info": {"title": "Test Paper", "authors": ["Doe"]},
  "slides_plan": [
    {"slide_number": 1, "title": "Overview", "content": ["point one"], "includes_figure": false}
  ],
  "language": "en"
}`

func fakeEngine(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake engine scripts need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fakelatex")
	if err := os.WriteFile(path, []byte("#!/bin/sh\nprintf pdf > source.pdf\n"), 0o700); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestServer(t *testing.T, client llm.Client) (*Server, *runstore.Store) {
	t.Helper()
	store, err := runstore.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	pipeline := loop.New(
		synth.New(client, ""),
		repair.New(client),
		texc.New(config.CompilerConfig{}, t.TempDir()),
		config.LoopConfig{MaxAttempts: 2},
		config.EngineAuto,
		t.TempDir(),
	).WithStore(store).WithEngineBinary(fakeEngine(t))
	reviser := revise.New(client, pipeline)
	return New(config.Default(), pipeline, reviser, store, prometheus.NewRegistry()), store
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateRunEndpoint(t *testing.T) {
	s, _ := newTestServer(t, llm.NewFake(validDoc))
	h := s.Routes()

	rec := doJSON(t, h, http.MethodPost, "/api/runs", `{"plan": `+planJSON+`}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var out outcomeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if !out.Success || out.RunID == "" || out.Attempts != 1 {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/runs/"+out.RunID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get run status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"success"`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestCreateRunRejectsBadInput(t *testing.T) {
	s, _ := newTestServer(t, llm.NewFake())
	h := s.Routes()

	if rec := doJSON(t, h, http.MethodPost, "/api/runs", `{not json`); rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: status = %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodPost, "/api/runs", `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing plan: status = %d", rec.Code)
	}
	noSlides := `{"plan": {"paper_info": {"title": "x"}, "slides_plan": []}}`
	if rec := doJSON(t, h, http.MethodPost, "/api/runs", noSlides); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty plan: status = %d", rec.Code)
	}
}

func TestGetRunNotFound(t *testing.T) {
	s, _ := newTestServer(t, llm.NewFake())
	rec := doJSON(t, s.Routes(), http.MethodGet, "/api/runs/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRevisionEndpoint(t *testing.T) {
	client := llm.NewFake(
		"\\begin{frame}\n\\frametitle{Overview}\nomega\n\\end{frame}",
	)
	s, _ := newTestServer(t, client)

	// Lay out the previous run directory by hand.
	runID := "prev-run"
	runDir := filepath.Join(s.pipeline.OutDir(), runID)
	if err := os.MkdirAll(filepath.Join(runDir, "assets"), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(runDir, "source.tex"), []byte(validDoc), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := pagemap.Build(1).Save(runDir); err != nil {
		t.Fatal(err)
	}

	body := `{"run_id": "` + runID + `", "instruction": "rewrite page 3", "language": "en"}`
	rec := doJSON(t, s.Routes(), http.MethodPost, "/api/revisions", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Page 1 is the title page.
	body = `{"run_id": "` + runID + `", "instruction": "rewrite page 1"}`
	if rec := doJSON(t, s.Routes(), http.MethodPost, "/api/revisions", body); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("uneditable page: status = %d", rec.Code)
	}

	body = `{"run_id": "` + runID + `", "instruction": "rewrite page 42"}`
	if rec := doJSON(t, s.Routes(), http.MethodPost, "/api/revisions", body); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown page: status = %d", rec.Code)
	}
}

func TestListRunsAndHealth(t *testing.T) {
	s, store := newTestServer(t, llm.NewFake())
	if err := store.CreateRun(t.Context(), "r1", "generate", "pdflatex", "en"); err != nil {
		t.Fatal(err)
	}
	h := s.Routes()

	rec := doJSON(t, h, http.MethodGet, "/api/runs", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"r1"`) {
		t.Fatalf("list runs: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("healthz: status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: status = %d", rec.Code)
	}
}

func TestJanitorPrunesExpiredRuns(t *testing.T) {
	outDir := t.TempDir()
	oldDir := filepath.Join(outDir, "old-run")
	newDir := filepath.Join(outDir, "new-run")
	for _, d := range []string{oldDir, newDir} {
		if err := os.MkdirAll(d, 0o750); err != nil {
			t.Fatal(err)
		}
	}
	stale := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(oldDir, stale, stale); err != nil {
		t.Fatal(err)
	}

	j, err := NewJanitor(outDir, func() time.Duration { return 24 * time.Hour }, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = j.Stop() }()
	j.prune()

	if _, err := os.Stat(oldDir); !os.IsNotExist(err) {
		t.Fatal("expired run directory survived")
	}
	if _, err := os.Stat(newDir); err != nil {
		t.Fatal("fresh run directory pruned")
	}
}

func TestApplyConfigRejectsInvalid(t *testing.T) {
	s, _ := newTestServer(t, llm.NewFake())
	bad := config.Default()
	bad.Loop.MaxAttempts = 0
	if err := s.ApplyConfig(bad); err == nil {
		t.Fatal("expected validation error")
	}
	good := config.Default()
	if err := s.ApplyConfig(good); err != nil {
		t.Fatalf("apply: %v", err)
	}
}
