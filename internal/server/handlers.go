package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
	"github.com/infohyun/aramcrm-sub000/internal/core/ports"
	"github.com/infohyun/aramcrm-sub000/internal/orchestrator"
	"github.com/infohyun/aramcrm-sub000/internal/usage"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Orchestrator runs one message through the pipeline.
type Orchestrator interface {
	Orchestrate(ctx context.Context, req orchestrator.Request) (*domain.OrchestratorResult, error)
}

// UsageReader returns the usage buckets of a day.
type UsageReader interface {
	Daily(ctx context.Context, date string) ([]domain.UsageBucket, error)
}

// AgentCatalog lists the registered agents.
type AgentCatalog interface {
	ListRegistered() []domain.AgentID
	Name(id domain.AgentID) string
}

// AdminStore is the persistence behind the admin endpoints.
type AdminStore interface {
	ports.AgentConfigStore
	ports.AgentLogStore
}

// API holds the HTTP handlers.
type API struct {
	Orchestrator Orchestrator
	Usage        UsageReader
	Agents       AgentCatalog
	Store        AdminStore
	// Metrics serves /metrics; nil leaves the route unmounted.
	Metrics      http.Handler

	now func() time.Time
}

// Mount registers every route on r.
func (a *API) Mount(r chi.Router) {
	if a.now == nil {
		a.now = time.Now
	}
	r.Get("/healthz", a.handleHealth)
	if a.Metrics != nil {
		r.Handle("/metrics", a.Metrics)
	}
	r.Route("/v1", func(r chi.Router) {
		r.Post("/orchestrate", a.handleOrchestrate)
		r.Get("/usage", a.handleUsage)
		r.Get("/agents", a.handleListAgents)
		r.Put("/agents/{agent_id}", a.handleSetAgent)
		r.Get("/conversations/{conversation_id}/logs", a.handleAgentLogs)
	})
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, errType string, err error) {
	AddError(r.Context(), err)
	writeJSON(w, status, ErrorResponse{Error: ErrorBody{
		Type:      errType,
		Message:   err.Error(),
		RequestID: GetRequestID(r.Context()),
	}})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleOrchestrate(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", errors.New("malformed JSON body: "+err.Error()))
		return
	}
	AddLogField(r.Context(), "conversation_id", req.ConversationID)

	res, err := a.Orchestrator.Orchestrate(r.Context(), req)
	if err != nil {
		if errors.Is(err, orchestrator.ErrInvalidRequest) {
			writeError(w, r, http.StatusBadRequest, "invalid_request", err)
			return
		}
		writeError(w, r, http.StatusInternalServerError, "server_error", err)
		return
	}
	AddLogField(r.Context(), "agent_id", string(res.AgentID))
	writeJSON(w, http.StatusOK, res)
}

// UsageResponse is the body of GET /v1/usage.
type UsageResponse struct {
	Date    string               `json:"date"`
	Buckets []domain.UsageBucket `json:"buckets"`
}

func (a *API) handleUsage(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = a.now().UTC().Format(usage.DateLayout)
	}
	if _, err := time.Parse(usage.DateLayout, date); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", errors.New("date must be YYYY-MM-DD"))
		return
	}

	buckets, err := a.Usage.Daily(r.Context(), date)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "server_error", err)
		return
	}
	if buckets == nil {
		buckets = []domain.UsageBucket{}
	}
	writeJSON(w, http.StatusOK, UsageResponse{Date: date, Buckets: buckets})
}

// AgentInfo describes one registered agent.
type AgentInfo struct {
	ID         domain.AgentID `json:"id"`
	Name       string         `json:"name"`
	Specialist bool           `json:"specialist"`
	Enabled    bool           `json:"enabled"`
}

func (a *API) handleListAgents(w http.ResponseWriter, r *http.Request) {
	cfgs, err := a.Store.ListAgentConfigs(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "server_error", err)
		return
	}
	enabled := make(map[domain.AgentID]bool, len(cfgs))
	for _, c := range cfgs {
		enabled[c.AgentID] = c.Enabled
	}

	ids := a.Agents.ListRegistered()
	out := make([]AgentInfo, 0, len(ids))
	for _, id := range ids {
		on, ok := enabled[id]
		out = append(out, AgentInfo{
			ID:         id,
			Name:       a.Agents.Name(id),
			Specialist: id.IsSpecialist(),
			Enabled:    !ok || on,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": out})
}

func (a *API) handleSetAgent(w http.ResponseWriter, r *http.Request) {
	id := domain.AgentID(chi.URLParam(r, "agent_id"))
	if !isRegistered(a.Agents, id) {
		writeError(w, r, http.StatusNotFound, "not_found", &domain.AgentNotFoundError{ID: id})
		return
	}

	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil || body.Enabled == nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", errors.New(`body must be {"enabled": true|false}`))
		return
	}

	if err := a.Store.SetAgentEnabled(r.Context(), id, *body.Enabled); err != nil {
		writeError(w, r, http.StatusInternalServerError, "server_error", err)
		return
	}
	AddLogField(r.Context(), "agent_id", string(id))
	writeJSON(w, http.StatusOK, AgentInfo{
		ID:         id,
		Name:       a.Agents.Name(id),
		Specialist: id.IsSpecialist(),
		Enabled:    *body.Enabled,
	})
}

func isRegistered(c AgentCatalog, id domain.AgentID) bool {
	for _, v := range c.ListRegistered() {
		if v == id {
			return true
		}
	}
	return false
}

func (a *API) handleAgentLogs(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "conversation_id")
	q := r.URL.Query()

	opts := ports.LogListOptions{Limit: 100}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, r, http.StatusBadRequest, "invalid_request", errors.New("limit must be between 1 and 1000"))
			return
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, "invalid_request", errors.New("offset must be a non-negative integer"))
			return
		}
		opts.Offset = n
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_request", errors.New("since must be RFC 3339"))
			return
		}
		opts.Since = t
	}

	entries, err := a.Store.ListAgentLogs(r.Context(), convID, opts)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "server_error", err)
		return
	}
	if entries == nil {
		entries = []domain.AgentLogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": convID,
		"logs":            entries,
	})
}
