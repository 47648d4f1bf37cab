package simserver

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/spreads/client/internal/api"
	apperrors "github.com/spreads/client/internal/errors"
	"github.com/spreads/client/internal/protocol"
)

// maxBodySize caps REST request bodies.
const maxBodySize = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("simserver: encode response: %v", err)
	}
}

// writeError maps a coded error to a status and the {"error": "..."} body
// the REST client reads.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperrors.GetCode(err) {
	case apperrors.CodeStorageNotFound:
		status = http.StatusNotFound
	case apperrors.CodeValidationFailed:
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		log.Printf("simserver: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": apperrors.GetMessage(err)})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v); err != nil {
		return apperrors.ValidationFailed(map[string]string{"body": fmt.Sprintf("invalid JSON: %v", err)})
	}
	return nil
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := s.store.ListWorkflows(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if workflows == nil {
		workflows = []api.Workflow{}
	}
	writeJSON(w, http.StatusOK, workflows)
}

func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var wf api.Workflow
	if err := decodeBody(w, r, &wf); err != nil {
		writeError(w, err)
		return
	}
	if err := api.ValidateWorkflow(wf); err != nil {
		writeError(w, err)
		return
	}

	created, err := s.store.CreateWorkflow(r.Context(), wf)
	if err != nil {
		writeError(w, err)
		return
	}
	s.Broadcast(protocol.Notification{Message: fmt.Sprintf("Workflow %s created", created.Name)})
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.store.GetWorkflow(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handleUpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	var u api.WorkflowUpdate
	if err := decodeBody(w, r, &u); err != nil {
		writeError(w, err)
		return
	}

	wf, err := s.store.UpdateWorkflow(r.Context(), r.PathValue("id"), u)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteWorkflow(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	s.Broadcast(protocol.Notification{Message: fmt.Sprintf("Workflow %s deleted", id)})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.store.GetConfig(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	var cfg map[string]any
	if err := decodeBody(w, r, &cfg); err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.SaveConfig(r.Context(), cfg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}
