package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"

	"git.home.luguber.info/inful/deckforge/internal/logfields"
	"git.home.luguber.info/inful/deckforge/internal/loop"
	"git.home.luguber.info/inful/deckforge/internal/plan"
	"git.home.luguber.info/inful/deckforge/internal/revise"
	"git.home.luguber.info/inful/deckforge/internal/runstore"
)

type runRequest struct {
	Plan     json.RawMessage `json:"plan"`
	AssetDir string          `json:"asset_dir,omitempty"`
}

type revisionRequest struct {
	RunID       string `json:"run_id"`
	Instruction string `json:"instruction"`
	Slide       int    `json:"slide,omitempty"`
	WholeDoc    bool   `json:"whole_document,omitempty"`
	Language    string `json:"language,omitempty"`
}

type outcomeResponse struct {
	RunID        string `json:"run_id"`
	Success      bool   `json:"success"`
	Status       string `json:"status"`
	Message      string `json:"message,omitempty"`
	ArtifactPath string `json:"artifact_path,omitempty"`
	Attempts     int    `json:"attempts"`
}

func outcomeToResponse(out *loop.Outcome) outcomeResponse {
	return outcomeResponse{
		RunID:        out.RunID,
		Success:      out.Success,
		Status:       string(out.Status),
		Message:      out.Message,
		ArtifactPath: out.ArtifactPath,
		Attempts:     out.Attempts,
	}
}

// handleCreateRun generates a deck from a submitted plan. The request is
// served synchronously: the response carries the terminal outcome.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Plan) == 0 {
		writeError(w, http.StatusBadRequest, "plan is required")
		return
	}
	p, err := plan.Parse(req.Plan)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid plan: "+err.Error())
		return
	}

	out, err := s.pipeline.Run(r.Context(), p, req.AssetDir)
	if err != nil {
		slog.Error("Run setup failed", logfields.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusCreated
	if !out.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, outcomeToResponse(out))
}

func (s *Server) handleCreateRevision(w http.ResponseWriter, r *http.Request) {
	var req revisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.RunID == "" || req.Instruction == "" {
		writeError(w, http.StatusBadRequest, "run_id and instruction are required")
		return
	}

	out, err := s.reviser.Revise(r.Context(), revise.Request{
		RunDir:      filepath.Join(s.pipeline.OutDir(), req.RunID),
		Instruction: req.Instruction,
		Slide:       req.Slide,
		WholeDoc:    req.WholeDoc,
		Language:    req.Language,
	})
	switch {
	case errors.Is(err, revise.ErrUneditableSlide):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, revise.ErrSlideNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		slog.Error("Revision failed", logfields.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusCreated
	if !out.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, outcomeToResponse(out))
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotImplemented, "run history is disabled")
		return
	}
	runs, err := s.store.ListRuns(r.Context(), 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []runstore.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotImplemented, "run history is disabled")
		return
	}
	run, attempts, err := s.store.GetRun(r.Context(), r.PathValue("id"))
	if errors.Is(err, runstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if attempts == nil {
		attempts = []runstore.Attempt{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run, "attempts": attempts})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Response encoding failed", logfields.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
