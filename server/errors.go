package server

import "net/http"

// Code is a stable, machine-readable error identifier. Clients switch on
// codes, not on messages or HTTP status.
type Code string

const (
	CodeInvalidInput            Code = "INVALID_INPUT"
	CodeUnauthorized            Code = "UNAUTHORIZED"
	CodeWorkflowNotFound        Code = "WORKFLOW_NOT_FOUND"
	CodePipelineNotFound        Code = "PIPELINE_NOT_FOUND"
	CodePipelineDeactivated     Code = "PIPELINE_DEACTIVATED"
	CodePipelineExecutionFailed Code = "PIPELINE_EXECUTION_FAILED"
	CodeTemplateNotFound        Code = "TEMPLATE_NOT_FOUND"
	CodeAIServiceError          Code = "AI_SERVICE_ERROR"
	CodeCRECLIError             Code = "CRE_CLI_ERROR"
	CodeDiscoveryFailed         Code = "DISCOVERY_FAILED"
	CodeSSECapacityFull         Code = "SSE_CAPACITY_FULL"
	CodeExecutionFailed         Code = "EXECUTION_FAILED"
	CodeInternalError           Code = "INTERNAL_ERROR"
)

type apiError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

// fail writes the error envelope with the given status, code and message.
func (s *Server) fail(w http.ResponseWriter, status int, code Code, message string) {
	s.writeJSON(w, status, errorEnvelope{Error: apiError{Code: code, Message: message}})
}

// failErr writes the envelope for an internal failure, logging the cause.
// The cause itself reaches the client only in development mode.
func (s *Server) failErr(w http.ResponseWriter, status int, code Code, message string, err error) {
	s.logger.Error("request failed", "code", code, "error", err)
	e := apiError{Code: code, Message: message}
	if s.cfg.Development() && err != nil {
		e.Details = err.Error()
	}
	s.writeJSON(w, status, errorEnvelope{Error: e})
}
