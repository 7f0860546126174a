package apiserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/sleuth/internal/dialogue"
	"github.com/moolen/sleuth/internal/evidence"
	"github.com/moolen/sleuth/internal/llm"
	"github.com/moolen/sleuth/internal/mcp"
	"github.com/moolen/sleuth/internal/metrics"
	"github.com/moolen/sleuth/internal/models"
	"github.com/moolen/sleuth/internal/session"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	steps := []models.DiagnosticStep{
		{ID: "conn-1", IncidentID: "conn", StepIndex: 1, ObservedFact: "active connections reach max_connections",
			Method: "SELECT count(*) FROM pg_stat_activity", RootCause: "connection pool exhaustion"},
		{ID: "conn-2", IncidentID: "conn", StepIndex: 2, ObservedFact: "application logs show too many clients errors",
			Method: "grep logs", RootCause: "connection pool exhaustion"},
		{ID: "io-1", IncidentID: "io", StepIndex: 1, ObservedFact: "disk await above 50ms",
			Method: "iostat -x 1", RootCause: "disk io saturation"},
	}
	store, err := evidence.NewMemoryStore(context.Background(), steps, nil)
	require.NoError(t, err)
	sessions, err := session.NewMemoryStore(8, nil)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	manager, err := dialogue.NewManager(dialogue.Options{
		Store:       store,
		Sessions:    sessions,
		Interpreter: llm.NewHeuristicInterpreter(),
		Policy:      dialogue.DefaultPolicy(),
		Metrics:     metrics.NewMetrics(reg),
	})
	require.NoError(t, err)

	s, err := New(Options{
		Diagnoser: manager,
		Gatherer:  reg,
		MCPServer: mcp.NewServer(manager, "test").MCPServer(),
	})
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "healthy", decode(t, resp)["status"])
}

func TestServer_DiagnosisFlow(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/v1/sessions", "application/json",
		strings.NewReader(`{"problem":"database rejects connections"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	started := decode(t, resp)

	sess := started["session"].(map[string]interface{})
	id := sess["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "conn-1", sess["pending_step_id"])
	assert.Equal(t, "recommend_step", started["action"].(map[string]interface{})["kind"])

	resp, err = http.Post(ts.URL+"/v1/sessions/"+id+"/turns", "application/json",
		strings.NewReader(`{"message":"Yes, I checked. Active connections reach max_connections."}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	turn := decode(t, resp)
	executed := turn["session"].(map[string]interface{})["executed_steps"].([]interface{})
	require.Len(t, executed, 1)
	assert.Equal(t, "conn-1", executed[0].(map[string]interface{})["step_id"])

	resp, err = http.Get(ts.URL + "/v1/sessions/" + id)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode(t, resp)["transcript"], 4)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "sleuth_sessions_started_total 1")
	assert.Contains(t, string(body), `sleuth_turns_total{outcome="ok"} 2`)
}

func TestServer_Errors(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"unknown session", http.MethodGet, "/v1/sessions/ghost", "", http.StatusNotFound},
		{"blank problem", http.MethodPost, "/v1/sessions", `{"problem":"  "}`, http.StatusBadRequest},
		{"unknown endpoint", http.MethodGet, "/v2/nothing", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, ts.URL+tt.path, strings.NewReader(tt.body))
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, decode(t, resp)["error"])
		})
	}
}

func TestServer_MCPToolsList(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/mcp",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "start_diagnosis")
	assert.Contains(t, string(body), "report_observation")
}

func TestNew_RequiresDiagnoser(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}
