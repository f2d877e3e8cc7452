package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/chainweave/forge/pipeline"
	"github.com/chainweave/forge/schema"
	"github.com/chainweave/forge/storage"
)

type createPipelineRequest struct {
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	OwnerAddress string          `json:"ownerAddress"`
	Steps        json.RawMessage `json:"steps"`
}

type pipelineResponse struct {
	Pipeline *storage.Pipeline `json:"pipeline"`
	Pricing  pipeline.Quote    `json:"pricing"`
}

// validateSteps parses a steps document and confirms every referenced
// workflow exists and carries parseable schemas. Returns the parsed steps and
// the workflow rows for pricing.
func (s *Server) validateSteps(w http.ResponseWriter, r *http.Request, raw string) ([]pipeline.StepConfig, map[string]*storage.Workflow, bool) {
	steps, err := pipeline.ParseSteps(raw)
	if err != nil {
		s.fail(w, http.StatusBadRequest, CodeInvalidInput, fmt.Sprintf("invalid steps: %v", err))
		return nil, nil, false
	}

	ids := make([]string, 0, len(steps))
	seen := make(map[string]bool, len(steps))
	for _, st := range steps {
		if !seen[st.WorkflowID] {
			seen[st.WorkflowID] = true
			ids = append(ids, st.WorkflowID)
		}
	}
	workflows, err := s.store.GetWorkflows(r.Context(), ids)
	if err != nil {
		s.failErr(w, http.StatusInternalServerError, CodeInternalError, "load workflows failed", err)
		return nil, nil, false
	}
	for _, id := range ids {
		wf, ok := workflows[id]
		if !ok {
			s.fail(w, http.StatusBadRequest, CodeWorkflowNotFound, fmt.Sprintf("workflow %s not found", id))
			return nil, nil, false
		}
		for name, doc := range map[string]string{"input": wf.InputSchema, "output": wf.OutputSchema} {
			if strings.TrimSpace(doc) == "" {
				continue
			}
			if _, err := schema.Parse([]byte(doc)); err != nil {
				s.fail(w, http.StatusBadRequest, CodeInvalidInput,
					fmt.Sprintf("workflow %s has an invalid %s schema", id, name))
				return nil, nil, false
			}
		}
	}
	return steps, workflows, true
}

func (s *Server) handleCreatePipeline(w http.ResponseWriter, r *http.Request) {
	var req createPipelineRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, http.StatusBadRequest, CodeInvalidInput, "request body must be valid JSON")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.fail(w, http.StatusBadRequest, CodeInvalidInput, "name is required")
		return
	}
	if len(req.Steps) == 0 {
		s.fail(w, http.StatusBadRequest, CodeInvalidInput, "steps are required")
		return
	}

	steps, workflows, ok := s.validateSteps(w, r, string(req.Steps))
	if !ok {
		return
	}

	p := &storage.Pipeline{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Description:  req.Description,
		OwnerAddress: req.OwnerAddress,
		Steps:        string(req.Steps),
		Active:       true,
	}
	if err := s.store.CreatePipeline(r.Context(), p); err != nil {
		s.failErr(w, http.StatusInternalServerError, CodeInternalError, "create pipeline failed", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, pipelineResponse{
		Pipeline: p,
		Pricing:  pipeline.Price(steps, workflows),
	})
}

func (s *Server) handleListPipelines(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	pipelines, err := s.store.ListPipelines(r.Context(), activeOnly, limit)
	if err != nil {
		s.failErr(w, http.StatusInternalServerError, CodeInternalError, "list pipelines failed", err)
		return
	}
	if pipelines == nil {
		pipelines = []*storage.Pipeline{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"pipelines": pipelines})
}

func (s *Server) handleGetPipeline(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadPipeline(w, r)
	if !ok {
		return
	}

	steps, err := pipeline.ParseSteps(p.Steps)
	if err != nil {
		// Row predates stricter validation; serve it without pricing.
		s.writeJSON(w, http.StatusOK, pipelineResponse{Pipeline: p})
		return
	}
	workflows, err := s.store.GetWorkflows(r.Context(), stepWorkflowIDs(steps))
	if err != nil {
		s.failErr(w, http.StatusInternalServerError, CodeInternalError, "load workflows failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, pipelineResponse{
		Pipeline: p,
		Pricing:  pipeline.Price(steps, workflows),
	})
}

type updatePipelineRequest struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	Steps       *json.RawMessage `json:"steps,omitempty"`
	Active      *bool            `json:"active,omitempty"`
}

func (s *Server) handleUpdatePipeline(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadPipeline(w, r)
	if !ok {
		return
	}
	if p.OwnerAddress != ownerAddress(r.Context()) {
		s.fail(w, http.StatusForbidden, CodeUnauthorized, "pipeline belongs to a different owner")
		return
	}

	var req updatePipelineRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, http.StatusBadRequest, CodeInvalidInput, "request body must be valid JSON")
		return
	}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			s.fail(w, http.StatusBadRequest, CodeInvalidInput, "name must not be empty")
			return
		}
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Steps != nil {
		if _, _, ok := s.validateSteps(w, r, string(*req.Steps)); !ok {
			return
		}
		p.Steps = string(*req.Steps)
	}
	if req.Active != nil {
		p.Active = *req.Active
	}

	if err := s.store.UpdatePipeline(r.Context(), p); err != nil {
		s.failErr(w, http.StatusInternalServerError, CodeInternalError, "update pipeline failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"pipeline": p})
}

func (s *Server) handleDeletePipeline(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadPipeline(w, r)
	if !ok {
		return
	}
	if p.OwnerAddress != ownerAddress(r.Context()) {
		s.fail(w, http.StatusForbidden, CodeUnauthorized, "pipeline belongs to a different owner")
		return
	}

	if err := s.store.DeactivatePipeline(r.Context(), p.ID); err != nil {
		s.failErr(w, http.StatusInternalServerError, CodeInternalError, "deactivate pipeline failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type executePipelineRequest struct {
	TriggerInput map[string]any `json:"triggerInput,omitempty"`
}

// handleExecutePipeline runs a pipeline synchronously. A run that finishes
// with status failed or partial is still a 200; the envelope errors cover the
// run not happening at all.
func (s *Server) handleExecutePipeline(w http.ResponseWriter, r *http.Request) {
	var req executePipelineRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.fail(w, http.StatusBadRequest, CodeInvalidInput, "request body must be valid JSON")
			return
		}
	}

	result, err := s.executor.Execute(r.Context(), chi.URLParam(r, "id"), req.TriggerInput)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrPipelineNotFound):
			s.fail(w, http.StatusNotFound, CodePipelineNotFound, "pipeline not found")
		case errors.Is(err, pipeline.ErrPipelineDeactivated):
			s.fail(w, http.StatusBadRequest, CodePipelineDeactivated, "pipeline is deactivated")
		default:
			s.failErr(w, http.StatusInternalServerError, CodePipelineExecutionFailed, "pipeline execution failed", err)
		}
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePipelineHistory(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadPipeline(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	executions, err := s.store.ListPipelineExecutions(r.Context(), p.ID, limit)
	if err != nil {
		s.failErr(w, http.StatusInternalServerError, CodeInternalError, "list pipeline executions failed", err)
		return
	}
	if executions == nil {
		executions = []*storage.PipelineExecution{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"executions": executions})
}

func (s *Server) handleSuggestPipelines(w http.ResponseWriter, r *http.Request) {
	suggestions, err := s.suggester.Suggest(r.Context())
	if err != nil {
		s.failErr(w, http.StatusInternalServerError, CodeDiscoveryFailed, "pipeline discovery failed", err)
		return
	}
	if suggestions == nil {
		suggestions = []pipeline.Suggestion{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

func (s *Server) handlePipelineMetrics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.recorder.Snapshot())
}

type checkCompatibilityRequest struct {
	SourceWorkflowID string `json:"sourceWorkflowId"`
	TargetWorkflowID string `json:"targetWorkflowId"`
}

// handleCheckCompatibility scores chaining one stored workflow's output into
// another's input.
func (s *Server) handleCheckCompatibility(w http.ResponseWriter, r *http.Request) {
	var req checkCompatibilityRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, http.StatusBadRequest, CodeInvalidInput, "request body must be valid JSON")
		return
	}
	if req.SourceWorkflowID == "" || req.TargetWorkflowID == "" {
		s.fail(w, http.StatusBadRequest, CodeInvalidInput, "sourceWorkflowId and targetWorkflowId are required")
		return
	}

	source, ok := s.loadWorkflow(w, r, req.SourceWorkflowID)
	if !ok {
		return
	}
	target, ok := s.loadWorkflow(w, r, req.TargetWorkflowID)
	if !ok {
		return
	}

	output, err := schema.Parse([]byte(source.OutputSchema))
	if err != nil {
		s.fail(w, http.StatusBadRequest, CodeInvalidInput, "source workflow has no usable output schema")
		return
	}
	input, err := schema.Parse([]byte(target.InputSchema))
	if err != nil {
		s.fail(w, http.StatusBadRequest, CodeInvalidInput, "target workflow has no usable input schema")
		return
	}
	s.writeJSON(w, http.StatusOK, schema.CheckCompatibility(output, input))
}

// loadPipeline fetches the pipeline named by the id route param, writing the
// 404 envelope itself when absent.
func (s *Server) loadPipeline(w http.ResponseWriter, r *http.Request) (*storage.Pipeline, bool) {
	p, err := s.store.GetPipeline(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.fail(w, http.StatusNotFound, CodePipelineNotFound, "pipeline not found")
			return nil, false
		}
		s.failErr(w, http.StatusInternalServerError, CodeInternalError, "load pipeline failed", err)
		return nil, false
	}
	return p, true
}

func (s *Server) loadWorkflow(w http.ResponseWriter, r *http.Request, id string) (*storage.Workflow, bool) {
	wf, err := s.store.GetWorkflow(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.fail(w, http.StatusNotFound, CodeWorkflowNotFound, fmt.Sprintf("workflow %s not found", id))
			return nil, false
		}
		s.failErr(w, http.StatusInternalServerError, CodeInternalError, "load workflow failed", err)
		return nil, false
	}
	return wf, true
}

func stepWorkflowIDs(steps []pipeline.StepConfig) []string {
	seen := make(map[string]bool, len(steps))
	var ids []string
	for _, st := range steps {
		if !seen[st.WorkflowID] {
			seen[st.WorkflowID] = true
			ids = append(ids, st.WorkflowID)
		}
	}
	return ids
}
