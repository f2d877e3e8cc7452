package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/chainweave/forge/eventbus"
	"github.com/chainweave/forge/sandbox"
	"github.com/chainweave/forge/storage"
)

// maxDirectCodeBytes caps the source size accepted in direct mode.
const maxDirectCodeBytes = 50 * 1024

type simulateRequest struct {
	Mode       string `json:"mode"`
	WorkflowID string `json:"workflowId,omitempty"`
	Code       string `json:"code,omitempty"`
	Config     string `json:"config,omitempty"`
}

type simulateResponse struct {
	*sandbox.Result
	WorkflowID string `json:"workflowId"`
}

// handleSimulate runs a workflow through the sandbox, either by stored
// workflow id or from source pasted directly into the request. A failed
// simulation is still a 200 with success=false; only a missing CLI binary or
// the sandbox itself breaking produce error envelopes.
func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, http.StatusBadRequest, CodeInvalidInput, "request body must be valid JSON")
		return
	}

	var source, configJSON, workflowID string
	switch req.Mode {
	case "stored":
		if req.WorkflowID == "" {
			s.fail(w, http.StatusBadRequest, CodeInvalidInput, "workflowId is required in stored mode")
			return
		}
		wf, err := s.store.GetWorkflow(r.Context(), req.WorkflowID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				s.fail(w, http.StatusNotFound, CodeWorkflowNotFound, "workflow not found")
				return
			}
			s.failErr(w, http.StatusInternalServerError, CodeInternalError, "load workflow failed", err)
			return
		}
		source = wf.Code
		configJSON = wf.Config
		if req.Config != "" {
			configJSON = req.Config
		}
		workflowID = wf.ID
	case "direct":
		if strings.TrimSpace(req.Code) == "" {
			s.fail(w, http.StatusBadRequest, CodeInvalidInput, "code is required in direct mode")
			return
		}
		if len(req.Code) > maxDirectCodeBytes {
			s.fail(w, http.StatusBadRequest, CodeInvalidInput, "code exceeds the 50 KiB limit")
			return
		}
		source = req.Code
		configJSON = req.Config
		workflowID = "direct-" + uuid.NewString()[:8]
	default:
		s.fail(w, http.StatusBadRequest, CodeInvalidInput, `mode must be "stored" or "direct"`)
		return
	}
	if configJSON == "" {
		configJSON = "{}"
	}

	result, err := s.sandbox.Simulate(r.Context(), source, configJSON)
	if err != nil {
		var cliErr *sandbox.CLIError
		if errors.As(err, &cliErr) {
			s.failErr(w, http.StatusInternalServerError, CodeCRECLIError, "simulator CLI is not available", err)
			return
		}
		s.failErr(w, http.StatusInternalServerError, CodeExecutionFailed, "simulation failed", err)
		return
	}

	// Durable record first, then the event. A lost row is an error; a lost
	// event only loses a live notification.
	exec := &storage.Execution{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		Status:     storage.ExecutionStatusSuccess,
		Input:      configJSON,
		DurationMs: result.DurationMS,
	}
	if !result.Success {
		exec.Status = storage.ExecutionStatusFailed
		exec.Error = strings.Join(result.Errors, "; ")
	}
	if out, err := json.Marshal(result.Steps); err == nil {
		exec.Output = string(out)
	}
	if err := s.store.CreateExecution(r.Context(), exec); err != nil {
		s.failErr(w, http.StatusInternalServerError, CodeInternalError, "record execution failed", err)
		return
	}

	payload, _ := json.Marshal(map[string]any{
		"executionId": exec.ID,
		"workflowId":  workflowID,
		"success":     result.Success,
		"duration":    result.DurationMS,
	})
	if _, err := s.bus.Emit(r.Context(), eventbus.TypeExecution, payload); err != nil {
		s.logger.Warn("execution event emit failed", "execution_id", exec.ID, "error", err)
	}

	s.writeJSON(w, http.StatusOK, simulateResponse{Result: result, WorkflowID: workflowID})
}
