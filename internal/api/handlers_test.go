package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/moolen/sleuth/internal/dialogue"
	"github.com/moolen/sleuth/internal/models"
)

type fakeDiagnoser struct {
	err       error
	gotText   string
	gotID     string
	gotTopK   int
	sessionAt time.Time
}

func (f *fakeDiagnoser) result(id string) dialogue.TurnResult {
	return dialogue.TurnResult{
		Session: models.NewSession(id, "p", f.sessionAt),
		Action:  models.AskGeneral{},
		Message: "tell me more",
	}
}

func (f *fakeDiagnoser) StartSession(_ context.Context, problem string) (dialogue.TurnResult, error) {
	f.gotText = problem
	if f.err != nil {
		return dialogue.TurnResult{}, f.err
	}
	return f.result("new"), nil
}

func (f *fakeDiagnoser) HandleTurn(_ context.Context, id, text string) (dialogue.TurnResult, error) {
	f.gotID, f.gotText = id, text
	if f.err != nil {
		return dialogue.TurnResult{}, f.err
	}
	return f.result(id), nil
}

func (f *fakeDiagnoser) GetSession(_ context.Context, id string) (models.SessionState, error) {
	f.gotID = id
	if f.err != nil {
		return models.SessionState{}, f.err
	}
	return models.NewSession(id, "p", f.sessionAt), nil
}

func (f *fakeDiagnoser) SearchSteps(_ context.Context, query string, topK int) ([]models.ScoredStep, error) {
	f.gotText, f.gotTopK = query, topK
	if f.err != nil {
		return nil, f.err
	}
	return []models.ScoredStep{{Step: models.DiagnosticStep{ID: "s1"}, Score: 0.5}}, nil
}

func newTestMux(d Diagnoser) *http.ServeMux {
	mux := http.NewServeMux()
	NewHandler(d, noop.NewTracerProvider().Tracer("test")).Register(mux)
	return mux
}

func do(t *testing.T, mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestStartSession(t *testing.T) {
	d := &fakeDiagnoser{}
	rec := do(t, newTestMux(d), http.MethodPost, "/v1/sessions", `{"problem":"db is slow"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "db is slow", d.gotText)

	var body struct {
		Session models.SessionState `json:"session"`
		Action  struct {
			Kind string `json:"kind"`
		} `json:"action"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "new", body.Session.ID)
	assert.Equal(t, "ask_general", body.Action.Kind)
	assert.Equal(t, "tell me more", body.Message)
}

func TestTurn(t *testing.T) {
	d := &fakeDiagnoser{}
	rec := do(t, newTestMux(d), http.MethodPost, "/v1/sessions/abc/turns", `{"message":"yes, done"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", d.gotID)
	assert.Equal(t, "yes, done", d.gotText)
}

func TestGetSession(t *testing.T) {
	d := &fakeDiagnoser{}
	rec := do(t, newTestMux(d), http.MethodGet, "/v1/sessions/abc", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var s models.SessionState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.Equal(t, "abc", s.ID)
}

func TestSearch(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		wantCode int
		wantTopK int
	}{
		{"default k", "/v1/steps/search?q=disk+latency", http.StatusOK, defaultSearchTop},
		{"explicit k", "/v1/steps/search?q=disk&k=3", http.StatusOK, 3},
		{"missing q", "/v1/steps/search", http.StatusBadRequest, 0},
		{"bad k", "/v1/steps/search?q=disk&k=zero", http.StatusBadRequest, 0},
		{"k too large", "/v1/steps/search?q=disk&k=1000", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDiagnoser{}
			rec := do(t, newTestMux(d), http.MethodGet, tt.path, "")
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantTopK, d.gotTopK)
		})
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  ErrorCode
	}{
		{"not found", models.NewSessionNotFound("abc"), http.StatusNotFound, ErrorCodeNotFound},
		{"validation", models.NewValidationError("message is required"), http.StatusBadRequest, ErrorCodeInvalidRequest},
		{"wrapped not found", errors.Join(errors.New("load"), models.NewStepNotFound("s")), http.StatusNotFound, ErrorCodeNotFound},
		{"internal", errors.New("disk on fire"), http.StatusInternalServerError, ErrorCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newTestMux(&fakeDiagnoser{err: tt.err}), http.MethodPost, "/v1/sessions/abc/turns", `{"message":"hi"}`)

			assert.Equal(t, tt.wantCode, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, string(tt.wantErr), body.Error)
			assert.NotContains(t, body.Message, "disk on fire")
		})
	}
}

func TestBadBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"malformed", `{"problem":`},
		{"unknown field", `{"problem":"x","extra":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDiagnoser{}
			rec := do(t, newTestMux(d), http.MethodPost, "/v1/sessions", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, d.gotText, "diagnoser must not be called")
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	rec := do(t, newTestMux(&fakeDiagnoser{}), http.MethodDelete, "/v1/sessions/abc", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
