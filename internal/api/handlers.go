// Package api implements the HTTP handlers of the diagnosis API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/moolen/sleuth/internal/dialogue"
	"github.com/moolen/sleuth/internal/logging"
	"github.com/moolen/sleuth/internal/models"
)

const (
	maxBodyBytes     = 1 << 20
	defaultSearchTop = 10
	maxSearchTop     = 100
)

// Diagnoser is the dialogue surface the handlers need.
type Diagnoser interface {
	StartSession(ctx context.Context, problem string) (dialogue.TurnResult, error)
	HandleTurn(ctx context.Context, sessionID, text string) (dialogue.TurnResult, error)
	GetSession(ctx context.Context, id string) (models.SessionState, error)
	SearchSteps(ctx context.Context, query string, topK int) ([]models.ScoredStep, error)
}

// StartSessionRequest is the body of POST /v1/sessions.
type StartSessionRequest struct {
	Problem string `json:"problem"`
}

// TurnRequest is the body of POST /v1/sessions/{id}/turns.
type TurnRequest struct {
	Message string `json:"message"`
}

// SearchResponse is returned by GET /v1/steps/search.
type SearchResponse struct {
	Query string              `json:"query"`
	Steps []models.ScoredStep `json:"steps"`
}

// Handler serves the session and step endpoints.
type Handler struct {
	diagnoser Diagnoser
	logger    *logging.Logger
	tracer    trace.Tracer
}

// NewHandler creates the handler set.
func NewHandler(diagnoser Diagnoser, tracer trace.Tracer) *Handler {
	return &Handler{
		diagnoser: diagnoser,
		logger:    logging.GetLogger("api"),
		tracer:    tracer,
	}
}

// Register mounts the handlers on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/sessions", h.handleStartSession)
	mux.HandleFunc("POST /v1/sessions/{id}/turns", h.handleTurn)
	mux.HandleFunc("GET /v1/sessions/{id}", h.handleGetSession)
	mux.HandleFunc("GET /v1/steps/search", h.handleSearch)
}

func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "api.startSession")
	defer span.End()

	var req StartSessionRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.respondWithError(w, err)
		return
	}

	res, err := h.diagnoser.StartSession(ctx, req.Problem)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	span.SetAttributes(attribute.String("session.id", res.Session.ID))
	writeStatus(w, http.StatusCreated, res)
}

func (h *Handler) handleTurn(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx, span := h.tracer.Start(r.Context(), "api.turn", trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()

	var req TurnRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.respondWithError(w, err)
		return
	}

	res, err := h.diagnoser.HandleTurn(ctx, id, req.Message)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	writeStatus(w, http.StatusOK, res)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.diagnoser.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	writeStatus(w, http.StatusOK, s)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		h.respondWithError(w, NewInvalidRequestError("query parameter q is required"))
		return
	}

	topK := defaultSearchTop
	if raw := r.URL.Query().Get("k"); raw != "" {
		k, err := strconv.Atoi(raw)
		if err != nil || k < 1 || k > maxSearchTop {
			h.respondWithError(w, NewInvalidRequestError("k must be an integer between 1 and %d", maxSearchTop))
			return
		}
		topK = k
	}

	steps, err := h.diagnoser.SearchSteps(r.Context(), query, topK)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	writeStatus(w, http.StatusOK, SearchResponse{Query: query, Steps: steps})
}

func (h *Handler) respondWithError(w http.ResponseWriter, err error) {
	apiErr := FromError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		h.logger.Error("Request failed: %v", err)
	} else {
		h.logger.Debug("Request rejected: %v", err)
	}
	WriteError(w, apiErr.StatusCode, apiErr.Code, apiErr.Message)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return NewInvalidRequestError("request body is required")
		}
		return NewInvalidRequestError("invalid request body: %v", err)
	}
	return nil
}
