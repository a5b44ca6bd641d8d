package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"hgsolve/internal/cvrp"
	"hgsolve/internal/model"
	"hgsolve/internal/store"
)

// SolveHandler handles POST /v1/solve: validates the instance, creates a
// queued job, and starts the search on its own goroutine.
func (s *Server) SolveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	pr := s.getPrincipal(r)
	if !pr.CanSubmit() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "submitter or admin required", r.URL.Path)
		return
	}
	key := pr.Token
	if key == "" {
		key = pr.Tenant
	}
	if !s.limiter.allow(key) {
		writeProblem(w, http.StatusTooManyRequests, "Rate limited", "too many solve submissions", r.URL.Path)
		return
	}

	var req model.SolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateSolveRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid request", err.Error(), r.URL.Path)
		return
	}
	p, err := problemFromRequest(req)
	if err != nil {
		if errors.Is(err, cvrp.ErrInvalidInstance) {
			writeProblem(w, http.StatusUnprocessableEntity, "Invalid instance", err.Error(), r.URL.Path)
		} else {
			writeProblem(w, http.StatusBadRequest, "Unparseable instance", err.Error(), r.URL.Path)
		}
		return
	}
	cfg := s.mergeConfig(req.Config)
	if err := cfg.Normalize(); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid config", err.Error(), r.URL.Path)
		return
	}

	job := newJob(pr.Tenant, p.Name)
	if err := s.Store.CreateJob(r.Context(), job); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Create job failed", err.Error(), r.URL.Path)
		return
	}
	s.startJob(job, p, cfg)
	writeJSON(w, http.StatusAccepted, job)
}

// JobsHandler handles GET /v1/jobs (listing, admin only).
func (s *Server) JobsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	pr := s.getPrincipal(r)
	if !pr.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	status := r.URL.Query().Get("status")
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListJobs(r.Context(), pr.Tenant, status, cursor, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List jobs failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// JobByIDHandler handles /v1/jobs/{id}, /v1/jobs/{id}/solution,
// /v1/jobs/{id}/events (SSE), /v1/jobs/{id}/ws and DELETE /v1/jobs/{id}.
func (s *Server) JobByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/jobs/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing job id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	pr := s.getPrincipal(r)

	if len(parts) > 1 {
		switch parts[1] {
		case "solution":
			s.solutionResponse(w, r, pr, id)
		case "events":
			s.eventStream(w, r, pr, id)
		case "ws":
			s.jobWebSocket(w, r, pr, id)
		default:
			writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		job, err := s.Store.GetJob(r.Context(), pr.Tenant, id)
		if err != nil {
			s.jobError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	case http.MethodDelete:
		job, err := s.Store.GetJob(r.Context(), pr.Tenant, id)
		if err != nil {
			s.jobError(w, r, err)
			return
		}
		if s.cancelJob(id) {
			writeJSON(w, http.StatusOK, map[string]any{"jobId": id, "cancelled": true})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"jobId": id, "cancelled": false, "status": job.Status})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) jobError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Job not found", "", r.URL.Path)
		return
	}
	writeProblem(w, http.StatusInternalServerError, "Job lookup failed", err.Error(), r.URL.Path)
}

// solutionResponse serves the best solution as JSON, or as the plain text
// format when the client asks for text/plain.
func (s *Server) solutionResponse(w http.ResponseWriter, r *http.Request, pr Principal, id string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sol, err := s.Store.GetSolution(r.Context(), pr.Tenant, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			job, jerr := s.Store.GetJob(r.Context(), pr.Tenant, id)
			if jerr != nil {
				s.jobError(w, r, jerr)
				return
			}
			writeProblem(w, http.StatusConflict, "No solution yet",
				fmt.Sprintf("job is %s", job.Status), r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Solution lookup failed", err.Error(), r.URL.Path)
		return
	}
	if strings.Contains(r.Header.Get("Accept"), "text/plain") && sol.Text != "" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, sol.Text)
		return
	}
	writeJSON(w, http.StatusOK, sol)
}

// eventStream serves job progress over SSE with periodic heartbeats.
func (s *Server) eventStream(w http.ResponseWriter, r *http.Request, pr Principal, id string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, err := s.Store.GetJob(r.Context(), pr.Tenant, id); err != nil {
		s.jobError(w, r, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)

	heartbeat := func() {
		fmt.Fprintf(w, "event: heartbeat\n")
		fmt.Fprintf(w, "data: {\"jobId\":%q,\"ts\":%q}\n\n", id, time.Now().Format(time.RFC3339))
		flusher.Flush()
	}
	heartbeat()
	done := r.Context().Done()
	for {
		select {
		case <-done:
			return
		case evt := <-ch:
			b, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", b)
			flusher.Flush()
			if evt.Type == "solve.done" {
				return
			}
		case <-time.After(15 * time.Second):
			heartbeat()
		}
	}
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions.
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	pr := s.getPrincipal(r)
	switch r.Method {
	case http.MethodPost:
		if !pr.IsAdmin() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
			return
		}
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.URL == "" || len(req.Events) == 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url and events required", r.URL.Path)
			return
		}
		req.TenantID = pr.Tenant
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		sub.Secret = ""
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		items, next, err := s.Store.ListSubscriptions(r.Context(), pr.Tenant, r.URL.Query().Get("cursor"), 100)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		for i := range items {
			items[i].Secret = ""
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}.
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if id == "" || r.Method != http.MethodDelete {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	pr := s.getPrincipal(r)
	if !pr.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	if err := s.Store.DeleteSubscription(r.Context(), pr.Tenant, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Subscription not found", "", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Delete subscription failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HealthHandler reports liveness.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
