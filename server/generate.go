package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/chainweave/forge/generator"
)

type generateRequest struct {
	Prompt       string `json:"prompt"`
	TemplateHint int    `json:"templateHint,omitempty"`
	OwnerAddress string `json:"ownerAddress,omitempty"`
}

// handleGenerate runs the generation pipeline for a natural-language prompt.
// Generation itself never fails closed (the orchestrator falls back to a
// template), so errors here are either bad input or the service being unable
// to produce anything at all.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, http.StatusBadRequest, CodeInvalidInput, "request body must be valid JSON")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		s.fail(w, http.StatusBadRequest, CodeInvalidInput, "prompt is required")
		return
	}

	result, err := s.generator.Generate(r.Context(), generator.Request{
		Prompt:       req.Prompt,
		TemplateHint: req.TemplateHint,
		OwnerAddress: req.OwnerAddress,
	})
	if err != nil {
		if errors.Is(err, generator.ErrTemplateNotFound) {
			s.fail(w, http.StatusBadRequest, CodeTemplateNotFound, "no template matches the requested hint")
			return
		}
		s.failErr(w, http.StatusInternalServerError, CodeAIServiceError, "generation failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}
