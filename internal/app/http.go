package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"sort"
	"strconv"

	"claimaudit/internal/audit"
	"claimaudit/internal/inference"
	"claimaudit/internal/store"
)

const maxBodyBytes = 1 << 20

type claimAuditResponse struct {
	ClaimID  int64         `json:"claim_id"`
	Analysis string        `json:"analysis"`
	Success  bool          `json:"success"`
	Details  audit.Details `json:"details"`
}

type processRequest struct {
	ClaimData *string `json:"claim_data"`
	Model     string  `json:"model"`
}

type generateRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
}

func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", a.handleReady)
	mux.HandleFunc("/debug", a.handleDebug)
	mux.HandleFunc("GET /v1/audit/models", a.handleModels)
	mux.HandleFunc("POST /v1/audit/claims/{id}", a.handleAuditClaim)
	mux.HandleFunc("POST /v1/audit/claims/{id}/enqueue", a.handleEnqueue)
	mux.HandleFunc("GET /v1/audit/claims/{id}/runs", a.handleRuns)
	mux.HandleFunc("POST /v1/audit/process", a.handleProcess)
	mux.HandleFunc("POST /v1/generate", a.handleGenerate)
	return mux
}

func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if a.Store == nil || a.Queue == nil {
		http.Error(w, "storage not configured", http.StatusServiceUnavailable)
		return
	}
	if err := a.Store.Ping(ctx); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if err := a.Queue.Ping(ctx); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (a *App) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"default":  a.Registry.Default().ID,
		"fallback": a.Registry.Fallback().ID,
		"models":   a.Registry.Profiles(),
	})
}

func (a *App) handleAuditClaim(w http.ResponseWriter, r *http.Request) {
	id, ok := claimID(w, r)
	if !ok {
		return
	}
	res, err := a.AuditClaim(r.Context(), id, r.URL.Query().Get("model"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, claimAuditResponse{
		ClaimID:  id,
		Analysis: res.Analysis,
		Success:  res.Success,
		Details:  res.Details,
	})
}

func (a *App) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	id, ok := claimID(w, r)
	if !ok {
		return
	}
	if err := a.EnqueueClaim(r.Context(), id, r.URL.Query().Get("model")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"claim_id": id, "queued": true})
}

func (a *App) handleRuns(w http.ResponseWriter, r *http.Request) {
	id, ok := claimID(w, r)
	if !ok {
		return
	}
	if a.Store == nil {
		writeError(w, http.StatusServiceUnavailable, ErrNoStore)
		return
	}
	runs, err := a.Store.ListAuditRuns(r.Context(), id, 20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"claim_id": id, "runs": runs})
}

func (a *App) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.ClaimData == nil {
		writeError(w, http.StatusBadRequest, errors.New("claim_data is required"))
		return
	}
	a.Logger.Info().Int("claim_data_length", len(*req.ClaimData)).Msg("processing audit request")
	writeJSON(w, http.StatusOK, a.AuditText(r.Context(), *req.ClaimData, req.Model))
}

func (a *App) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	res, err := a.Audit.Generate(r.Context(), req.Prompt, req.Model)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *App) handleDebug(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var depth int64
	if a.Queue != nil {
		depth, _ = a.Queue.Depth(ctx)
	}
	var runs []store.AuditRun
	if a.Store != nil {
		runs, _ = a.Store.ListAuditRuns(ctx, 0, 20)
	}
	outcomes := a.Observer.Snapshot()
	routings := make([]string, 0, len(outcomes))
	for k := range outcomes {
		routings = append(routings, k)
	}
	sort.Strings(routings)

	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, "<html><body><h1>Claim Audit Debug</h1>")
	_, _ = fmt.Fprintf(w, "<p>Queue depth: %d</p>", depth)
	_, _ = fmt.Fprintf(w, "<p>Default model: %s</p>", html.EscapeString(a.Registry.Default().ID))
	_, _ = fmt.Fprintf(w, "<h2>Outcomes since start</h2><ul>")
	for _, k := range routings {
		_, _ = fmt.Fprintf(w, "<li>%s: %d</li>", html.EscapeString(k), outcomes[k])
	}
	_, _ = fmt.Fprintf(w, "</ul>")
	_, _ = fmt.Fprintf(w, "<h2>Recent audits</h2><ul>")
	for _, run := range runs {
		claim := "free-form"
		if run.ClaimID != nil {
			claim = strconv.FormatInt(*run.ClaimID, 10)
		}
		_, _ = fmt.Fprintf(w, "<li>%s claim=%s model=%s routing=%s score=%.2f</li>",
			run.CreatedAt.Format("2006-01-02 15:04:05"), claim, html.EscapeString(run.ModelUsed), run.Routing, run.FraudScore)
	}
	_, _ = fmt.Fprintf(w, "</ul></body></html>")
}

func claimID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid claim id %q", r.PathValue("id")))
		return 0, false
	}
	return id, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrClaimNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNoStore), errors.Is(err, ErrNoQueue):
		return http.StatusServiceUnavailable
	case errors.Is(err, audit.ErrEmptyPrompt):
		return http.StatusBadRequest
	}
	var inferErr *inference.Error
	if errors.As(err, &inferErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
