package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainweave/forge/metrics"
	"github.com/chainweave/forge/pipeline"
	"github.com/chainweave/forge/schema"
	"github.com/chainweave/forge/storage"
)

const ownerAddr = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"

// seedWorkflowPair stores a feed and an alert workflow whose schemas chain
// cleanly.
func seedWorkflowPair(w *world) {
	w.store.workflows["wf-feed"] = &storage.Workflow{
		ID:           "wf-feed",
		Name:         "Price Feed",
		Code:         "feed-code",
		Config:       `{"pair":"ETH/USD"}`,
		OutputSchema: `{"type":"object","properties":{"price":{"type":"number"}}}`,
		PriceUSDC:    1_500_000,
		Published:    true,
	}
	w.store.workflows["wf-alert"] = &storage.Workflow{
		ID:           "wf-alert",
		Name:         "Threshold Alert",
		Code:         "alert-code",
		Config:       `{"threshold":3000}`,
		InputSchema:  `{"type":"object","properties":{"value":{"type":"number"}},"required":["value"]}`,
		OutputSchema: `{"type":"object","properties":{"alerted":{"type":"boolean"}}}`,
		PriceUSDC:    500_000,
		Published:    true,
	}
}

const chainedSteps = `[
	{"id":"s1","workflowId":"wf-feed","position":0},
	{"id":"s2","workflowId":"wf-alert","position":1,
	 "inputMapping":{"value":{"source":"s1","field":"price"}}}
]`

// seedPipeline persists an active pipeline over the seeded workflow pair and
// returns its id.
func seedPipeline(t *testing.T, w *world, owner string) string {
	t.Helper()
	id := uuid.NewString()
	require.NoError(t, w.store.CreatePipeline(context.Background(), &storage.Pipeline{
		ID:           id,
		Name:         "Price alerting",
		OwnerAddress: owner,
		Steps:        chainedSteps,
		Active:       true,
	}))
	return id
}

func TestCreatePipeline(t *testing.T) {
	w := newWorld(t)
	seedWorkflowPair(w)

	body := fmt.Sprintf(`{"name":"Price alerting","description":"feed into alert",
		"ownerAddress":%q,"steps":%s}`, ownerAddr, chainedSteps)
	resp := w.request(t, http.MethodPost, "/pipelines", body, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		Pipeline storage.Pipeline `json:"pipeline"`
		Pricing  pipeline.Quote   `json:"pricing"`
	}
	decodeBody(t, resp, &created)

	assert.NotEmpty(t, created.Pipeline.ID)
	assert.Equal(t, "Price alerting", created.Pipeline.Name)
	assert.Equal(t, ownerAddr, created.Pipeline.OwnerAddress)
	assert.True(t, created.Pipeline.Active, "new pipelines start active")

	assert.Equal(t, int64(2_000_000), created.Pricing.TotalUSDC)
	require.Len(t, created.Pricing.Steps, 2)
	assert.Equal(t, "Price Feed", created.Pricing.Steps[0].Name)
	assert.Empty(t, created.Pricing.Warnings)

	stored, err := w.store.GetPipeline(context.Background(), created.Pipeline.ID)
	require.NoError(t, err)
	assert.JSONEq(t, chainedSteps, stored.Steps)
}

func TestCreatePipelineValidation(t *testing.T) {
	w := newWorld(t)
	seedWorkflowPair(w)

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{
			name:     "missing name",
			body:     fmt.Sprintf(`{"steps":%s}`, chainedSteps),
			wantCode: "INVALID_INPUT",
		},
		{
			name:     "missing steps",
			body:     `{"name":"p"}`,
			wantCode: "INVALID_INPUT",
		},
		{
			name:     "duplicate step ids",
			body:     `{"name":"p","steps":[{"id":"s1","workflowId":"wf-feed","position":0},{"id":"s1","workflowId":"wf-alert","position":1}]}`,
			wantCode: "INVALID_INPUT",
		},
		{
			name:     "mapping references unknown step",
			body:     `{"name":"p","steps":[{"id":"s1","workflowId":"wf-feed","position":0,"inputMapping":{"v":{"source":"nope","field":"x"}}}]}`,
			wantCode: "INVALID_INPUT",
		},
		{
			name:     "unknown workflow",
			body:     `{"name":"p","steps":[{"id":"s1","workflowId":"wf-ghost","position":0}]}`,
			wantCode: "WORKFLOW_NOT_FOUND",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := w.request(t, http.MethodPost, "/pipelines", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.wantCode, decodeError(t, resp).Error.Code)
		})
	}
}

func TestCreatePipelineRejectsBrokenWorkflowSchema(t *testing.T) {
	w := newWorld(t)
	w.store.workflows["wf-broken"] = &storage.Workflow{
		ID:           "wf-broken",
		Name:         "Broken",
		OutputSchema: `{"type":"decimal"}`,
	}

	body := `{"name":"p","steps":[{"id":"s1","workflowId":"wf-broken","position":0}]}`
	resp := w.request(t, http.MethodPost, "/pipelines", body, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	e := decodeError(t, resp)
	assert.Equal(t, "INVALID_INPUT", e.Error.Code)
	assert.Contains(t, e.Error.Message, "wf-broken")
}

func TestListPipelines(t *testing.T) {
	w := newWorld(t)
	seedWorkflowPair(w)
	active := seedPipeline(t, w, ownerAddr)
	inactive := seedPipeline(t, w, ownerAddr)
	require.NoError(t, w.store.DeactivatePipeline(context.Background(), inactive))

	resp := w.request(t, http.MethodGet, "/pipelines", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var all struct {
		Pipelines []*storage.Pipeline `json:"pipelines"`
	}
	decodeBody(t, resp, &all)
	assert.Len(t, all.Pipelines, 2)

	resp = w.request(t, http.MethodGet, "/pipelines?active=true", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var activeOnly struct {
		Pipelines []*storage.Pipeline `json:"pipelines"`
	}
	decodeBody(t, resp, &activeOnly)
	require.Len(t, activeOnly.Pipelines, 1)
	assert.Equal(t, active, activeOnly.Pipelines[0].ID)
}

func TestListPipelinesEmptyIsNotNull(t *testing.T) {
	w := newWorld(t)

	resp := w.request(t, http.MethodGet, "/pipelines", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Pipelines json.RawMessage `json:"pipelines"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, "[]", string(body.Pipelines))
}

func TestGetPipeline(t *testing.T) {
	w := newWorld(t)
	seedWorkflowPair(w)
	id := seedPipeline(t, w, ownerAddr)

	resp := w.request(t, http.MethodGet, "/pipelines/"+id, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Pipeline storage.Pipeline `json:"pipeline"`
		Pricing  pipeline.Quote   `json:"pricing"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, id, body.Pipeline.ID)
	assert.Equal(t, int64(2_000_000), body.Pricing.TotalUSDC)
}

func TestGetPipelineNotFound(t *testing.T) {
	w := newWorld(t)

	resp := w.request(t, http.MethodGet, "/pipelines/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "PIPELINE_NOT_FOUND", decodeError(t, resp).Error.Code)
}

func TestPipelineIDMustBeUUIDv4(t *testing.T) {
	w := newWorld(t)

	for _, id := range []string{"abc", "123", "00000000-0000-0000-0000-000000000000"} {
		resp := w.request(t, http.MethodGet, "/pipelines/"+id, "", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "id %q", id)
		assert.Equal(t, "INVALID_INPUT", decodeError(t, resp).Error.Code)
	}
}

// Malformed ids are rejected before authentication is even considered.
func TestPipelineIDCheckPrecedesAuth(t *testing.T) {
	w := newWorld(t)

	resp := w.request(t, http.MethodDelete, "/pipelines/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_INPUT", decodeError(t, resp).Error.Code)
}

func TestUpdatePipelineAuth(t *testing.T) {
	w := newWorld(t)
	seedWorkflowPair(w)
	id := seedPipeline(t, w, ownerAddr)

	body := `{"name":"Renamed"}`

	t.Run("missing headers", func(t *testing.T) {
		resp := w.request(t, http.MethodPut, "/pipelines/"+id, body, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "UNAUTHORIZED", decodeError(t, resp).Error.Code)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		ts := strconv.FormatInt(time.Now().Add(-10*time.Minute).UnixMilli(), 10)
		headers := map[string]string{
			"X-Owner-Address":   ownerAddr,
			"X-Owner-Signature": w.verifier.Sign(ownerAddr, id+":"+ts),
			"X-Owner-Timestamp": ts,
		}
		resp := w.request(t, http.MethodPut, "/pipelines/"+id, body, headers)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("tampered signature", func(t *testing.T) {
		headers := w.ownerHeaders(id, ownerAddr)
		headers["X-Owner-Signature"] = "deadbeef"
		resp := w.request(t, http.MethodPut, "/pipelines/"+id, body, headers)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("wrong owner", func(t *testing.T) {
		other := "0x0000000000000000000000000000000000000001"
		resp := w.request(t, http.MethodPut, "/pipelines/"+id, body, w.ownerHeaders(id, other))
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "UNAUTHORIZED", decodeError(t, resp).Error.Code)
	})

	t.Run("owner succeeds", func(t *testing.T) {
		resp := w.request(t, http.MethodPut, "/pipelines/"+id, body, w.ownerHeaders(id, ownerAddr))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var updated struct {
			Pipeline storage.Pipeline `json:"pipeline"`
		}
		decodeBody(t, resp, &updated)
		assert.Equal(t, "Renamed", updated.Pipeline.Name)
	})
}

func TestUpdatePipelinePartialFields(t *testing.T) {
	w := newWorld(t)
	seedWorkflowPair(w)
	id := seedPipeline(t, w, ownerAddr)

	resp := w.request(t, http.MethodPut, "/pipelines/"+id,
		`{"description":"now documented","active":false}`, w.ownerHeaders(id, ownerAddr))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	stored, err := w.store.GetPipeline(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Price alerting", stored.Name, "unset fields stay untouched")
	assert.Equal(t, "now documented", stored.Description)
	assert.False(t, stored.Active)
}

func TestUpdatePipelineRevalidatesSteps(t *testing.T) {
	w := newWorld(t)
	seedWorkflowPair(w)
	id := seedPipeline(t, w, ownerAddr)

	resp := w.request(t, http.MethodPut, "/pipelines/"+id,
		`{"steps":[{"id":"s1","workflowId":"wf-ghost","position":0}]}`, w.ownerHeaders(id, ownerAddr))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "WORKFLOW_NOT_FOUND", decodeError(t, resp).Error.Code)

	stored, err := w.store.GetPipeline(context.Background(), id)
	require.NoError(t, err)
	assert.JSONEq(t, chainedSteps, stored.Steps, "rejected update must not persist")
}

func TestDeletePipelineDeactivates(t *testing.T) {
	w := newWorld(t)
	seedWorkflowPair(w)
	id := seedPipeline(t, w, ownerAddr)

	resp := w.request(t, http.MethodDelete, "/pipelines/"+id, "", w.ownerHeaders(id, ownerAddr))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	stored, err := w.store.GetPipeline(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, stored.Active, "delete soft-deactivates, the row survives")
}

func TestExecutePipeline(t *testing.T) {
	w := newWorld(t)
	seedWorkflowPair(w)
	id := seedPipeline(t, w, ownerAddr)

	resp := w.request(t, http.MethodPost, "/pipelines/"+id+"/execute",
		`{"triggerInput":{"pair":"ETH/USD"}}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result pipeline.Result
	decodeBody(t, resp, &result)
	assert.Equal(t, storage.PipelineStatusCompleted, result.Status)

	call := w.exec.lastCall(t)
	assert.Equal(t, id, call.pipelineID)
	assert.Equal(t, map[string]any{"pair": "ETH/USD"}, call.trigger)
}

func TestExecutePipelineAcceptsEmptyBody(t *testing.T) {
	w := newWorld(t)
	seedWorkflowPair(w)
	id := seedPipeline(t, w, ownerAddr)

	resp := w.request(t, http.MethodPost, "/pipelines/"+id+"/execute", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	assert.Nil(t, w.exec.lastCall(t).trigger)
}

func TestExecutePipelineErrorMapping(t *testing.T) {
	w := newWorld(t)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", pipeline.ErrPipelineNotFound, http.StatusNotFound, "PIPELINE_NOT_FOUND"},
		{"deactivated", pipeline.ErrPipelineDeactivated, http.StatusBadRequest, "PIPELINE_DEACTIVATED"},
		{"infrastructure", errors.New("finish pipeline execution: disk full"), http.StatusInternalServerError, "PIPELINE_EXECUTION_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w.exec.fn = func(context.Context, string, map[string]any) (*pipeline.Result, error) {
				return nil, tt.err
			}
			resp := w.request(t, http.MethodPost, "/pipelines/"+uuid.NewString()+"/execute", "", nil)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantCode, decodeError(t, resp).Error.Code)
		})
	}
}

// A pipeline run that finishes with failed steps is a completed request, not
// an HTTP error.
func TestExecutePipelineFailedRunIsStill200(t *testing.T) {
	w := newWorld(t)
	w.exec.fn = func(_ context.Context, id string, _ map[string]any) (*pipeline.Result, error) {
		return &pipeline.Result{
			ExecutionID: "pe-9",
			PipelineID:  id,
			Status:      storage.PipelineStatusFailed,
			StepResults: []pipeline.StepResult{{StepID: "s1", Success: false, Error: "boom", Attempts: 2}},
		}, nil
	}

	resp := w.request(t, http.MethodPost, "/pipelines/"+uuid.NewString()+"/execute", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result pipeline.Result
	decodeBody(t, resp, &result)
	assert.Equal(t, storage.PipelineStatusFailed, result.Status)
}

func TestPipelineHistory(t *testing.T) {
	w := newWorld(t)
	seedWorkflowPair(w)
	id := seedPipeline(t, w, ownerAddr)
	w.store.plExecs = append(w.store.plExecs,
		&storage.PipelineExecution{ID: "pe-1", PipelineID: id, Status: storage.PipelineStatusCompleted},
		&storage.PipelineExecution{ID: "pe-2", PipelineID: "other", Status: storage.PipelineStatusFailed},
	)

	resp := w.request(t, http.MethodGet, "/pipelines/"+id+"/history", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Executions []*storage.PipelineExecution `json:"executions"`
	}
	decodeBody(t, resp, &body)
	require.Len(t, body.Executions, 1)
	assert.Equal(t, "pe-1", body.Executions[0].ID)
}

func TestPipelineHistoryNotFound(t *testing.T) {
	w := newWorld(t)

	resp := w.request(t, http.MethodGet, "/pipelines/"+uuid.NewString()+"/history", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "PIPELINE_NOT_FOUND", decodeError(t, resp).Error.Code)
}

func TestSuggestPipelines(t *testing.T) {
	w := newWorld(t)
	w.sugg.fn = func(context.Context) ([]pipeline.Suggestion, error) {
		return []pipeline.Suggestion{{
			SourceWorkflowID: "wf-feed",
			TargetWorkflowID: "wf-alert",
			Score:            1.0,
			Compatible:       true,
		}}, nil
	}

	resp := w.request(t, http.MethodGet, "/pipelines/suggest", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Suggestions []pipeline.Suggestion `json:"suggestions"`
	}
	decodeBody(t, resp, &body)
	require.Len(t, body.Suggestions, 1)
	assert.Equal(t, "wf-feed", body.Suggestions[0].SourceWorkflowID)
}

func TestSuggestPipelinesEmptyIsNotNull(t *testing.T) {
	w := newWorld(t)

	resp := w.request(t, http.MethodGet, "/pipelines/suggest", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Suggestions json.RawMessage `json:"suggestions"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, "[]", string(body.Suggestions))
}

func TestSuggestPipelinesFailure(t *testing.T) {
	w := newWorld(t)
	w.sugg.fn = func(context.Context) ([]pipeline.Suggestion, error) {
		return nil, errors.New("list published workflows: database is locked")
	}

	resp := w.request(t, http.MethodGet, "/pipelines/suggest", "", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "DISCOVERY_FAILED", decodeError(t, resp).Error.Code)
}

func TestPipelineMetricsSnapshot(t *testing.T) {
	w := newWorld(t)

	resp := w.request(t, http.MethodGet, "/pipelines/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap metrics.Snapshot
	decodeBody(t, resp, &snap)
	assert.Zero(t, snap.PipelineExecutions)
	assert.Zero(t, snap.SSEClients)
}

func TestCheckCompatibility(t *testing.T) {
	w := newWorld(t)
	seedWorkflowPair(w)

	resp := w.request(t, http.MethodPost, "/pipelines/check-compatibility",
		`{"sourceWorkflowId":"wf-feed","targetWorkflowId":"wf-alert"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var compat schema.Compatibility
	decodeBody(t, resp, &compat)
	assert.True(t, compat.Compatible)
	assert.InDelta(t, 1.0, compat.Score, 1e-9)
	require.Len(t, compat.MatchedFields, 1)
	assert.Equal(t, "price", compat.MatchedFields[0].SourceField)
	assert.Equal(t, "value", compat.MatchedFields[0].TargetField)
}

func TestCheckCompatibilityValidation(t *testing.T) {
	w := newWorld(t)
	seedWorkflowPair(w)
	w.store.workflows["wf-bare"] = &storage.Workflow{ID: "wf-bare", Name: "Bare"}

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing ids",
			body:       `{"sourceWorkflowId":"wf-feed"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
		},
		{
			name:       "unknown source",
			body:       `{"sourceWorkflowId":"ghost","targetWorkflowId":"wf-alert"}`,
			wantStatus: http.StatusNotFound,
			wantCode:   "WORKFLOW_NOT_FOUND",
		},
		{
			name:       "source without schema",
			body:       `{"sourceWorkflowId":"wf-bare","targetWorkflowId":"wf-alert"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := w.request(t, http.MethodPost, "/pipelines/check-compatibility", tt.body, nil)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantCode, decodeError(t, resp).Error.Code)
		})
	}
}
