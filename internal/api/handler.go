package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/open-forensics/muletrace/internal/domain"
	"github.com/open-forensics/muletrace/internal/export"
	"github.com/open-forensics/muletrace/internal/forensics"
	"github.com/open-forensics/muletrace/internal/graph"
	"github.com/open-forensics/muletrace/internal/repository"
)

// resultCacheTTL is how long completed results stay in the cache.
const resultCacheTTL = time.Hour

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	engine   *forensics.Engine
	exporter export.Client
	version  string

	// lastGraphs keeps the most recent analyzed graph per tenant so the
	// account profile endpoint can deep-dive without re-uploading the ledger.
	mu         sync.RWMutex
	lastGraphs map[string]*graph.Graph
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *forensics.Engine, exporter export.Client, version string) *Handler {
	return &Handler{
		repo:       repo,
		cache:      cache,
		bus:        bus,
		engine:     engine,
		exporter:   exporter,
		version:    version,
		lastGraphs: make(map[string]*graph.Graph),
	}
}

// AnalyzeRequest is the request body for POST /analyze and /analyze/stream.
type AnalyzeRequest struct {
	Transactions []domain.TransactionRecord `json:"transactions"`
	Allowlist    []string                   `json:"allowlist,omitempty"`
}

// runAnalysis executes one analysis run end to end: decode, merge the
// persisted allowlist, analyze, persist, cache, export, publish.
func (h *Handler) runAnalysis(r *http.Request, req *AnalyzeRequest, cp forensics.Checkpoint) (*domain.AnalysisResult, error) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	analysisID := uuid.New().String()
	start := time.Now().UTC()

	txs, decodeWarnings := forensics.DecodeLedger(req.Transactions)

	// Static allowlist = persisted entries + per-request ids.
	allow := req.Allowlist
	if h.repo != nil {
		entries, err := h.repo.ListAllowlist(ctx, tenantID)
		if err != nil {
			slog.Warn("failed to load allowlist", "tenant_id", tenantID, "error", err)
		}
		for _, e := range entries {
			allow = append(allow, e.AccountID)
		}
	}

	result, err := h.engine.Analyze(ctx, forensics.Request{
		Transactions: txs,
		Allowlist:    allow,
	}, cp)
	if err != nil {
		if h.repo != nil {
			_ = h.repo.SaveAnalysis(ctx, tenantID, &domain.AnalysisRecord{
				ID:          analysisID,
				TenantID:    tenantID,
				Status:      domain.AnalysisFailed,
				Error:       err.Error(),
				CreatedAt:   start,
				CompletedAt: time.Now().UTC(),
			})
		}
		return nil, err
	}

	result.AnalysisID = analysisID
	result.Warnings = append(decodeWarnings, result.Warnings...)

	if h.repo != nil {
		rec := &domain.AnalysisRecord{
			ID:          analysisID,
			TenantID:    tenantID,
			Status:      domain.AnalysisCompleted,
			Result:      result,
			CreatedAt:   start,
			CompletedAt: time.Now().UTC(),
		}
		if err := h.repo.SaveAnalysis(ctx, tenantID, rec); err != nil {
			slog.Error("failed to save analysis", "analysis_id", analysisID, "error", err)
		}
	}

	if h.cache != nil {
		if err := h.cache.SetAnalysis(ctx, tenantID, analysisID, result, resultCacheTTL); err != nil {
			slog.Warn("failed to cache analysis", "analysis_id", analysisID, "error", err)
		}
	}

	if h.exporter != nil {
		if err := h.exporter.ExportGraph(ctx, tenantID, analysisID, &result.GraphData); err != nil {
			slog.Warn("failed to export graph", "analysis_id", analysisID, "error", err)
		}
	}

	if h.bus != nil {
		payload, _ := json.Marshal(result)
		if err := h.bus.Publish(ctx, tenantID, domain.TopicAnalysisCompleted, payload); err != nil {
			slog.Warn("failed to publish result", "analysis_id", analysisID, "error", err)
		}
	}

	// Retain the scored graph for account profile deep-dives.
	g, _ := graph.Build(txs)
	h.mu.Lock()
	h.lastGraphs[tenantID] = g
	h.mu.Unlock()

	return result, nil
}

// Analyze handles POST /analyze: synchronous ledger analysis.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	result, err := h.runAnalysis(r, &req, nil)
	if err != nil {
		slog.Error("analysis failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "analysis failed: " + err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// streamResult is the terminal SSE frame: the full result plus a
// completion marker so clients can stop reading.
type streamResult struct {
	*domain.AnalysisResult
	Complete bool `json:"complete"`
}

// AnalyzeStream handles POST /analyze/stream: Server-Sent Events with
// per-stage progress frames terminated by the full result (or an error).
func (h *Handler) AnalyzeStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "streaming not supported",
		})
		return
	}

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sendFrame := func(v any) {
		data, err := json.Marshal(v)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	// Immediate heartbeat so proxies do not time out the connection.
	sendFrame(domain.ProgressEvent{Status: "System Initializing", Progress: 0.05})

	result, err := h.runAnalysis(r, &req, func(ev domain.ProgressEvent) {
		sendFrame(ev)
	})
	if err != nil {
		sendFrame(map[string]any{"error": err.Error(), "complete": true})
		return
	}

	sendFrame(streamResult{AnalysisResult: result, Complete: true})
}

// GetAnalysis retrieves a completed analysis by ID, cache first.
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	analysisID := chi.URLParam(r, "id")

	if analysisID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "analysis id is required",
		})
		return
	}

	if h.cache != nil {
		if result, err := h.cache.GetAnalysis(ctx, tenantID, analysisID); err == nil && result != nil {
			writeJSON(w, http.StatusOK, result)
			return
		}
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	rec, err := h.repo.GetAnalysis(ctx, tenantID, analysisID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to get analysis", "id", analysisID, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "analysis not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// ListAnalyses returns recent analysis records for the tenant.
func (h *Handler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := h.repo.ListAnalyses(ctx, tenantID, limit)
	if err != nil {
		slog.Error("failed to list analyses", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list analyses",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"analyses": records,
		"count":    len(records),
	})
}

// ListAllowlist returns all allowlisted accounts for the tenant.
func (h *Handler) ListAllowlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	entries, err := h.repo.ListAllowlist(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list allowlist", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list allowlist",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// CreateAllowlistEntry upserts an allowlisted account.
func (h *Handler) CreateAllowlistEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var entry domain.AllowlistEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if entry.AccountID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "account_id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	entry.CreatedAt = time.Now().UTC()
	if err := h.repo.SaveAllowlistEntry(ctx, tenantID, &entry); err != nil {
		slog.Error("failed to save allowlist entry", "account_id", entry.AccountID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save allowlist entry",
		})
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

// DeleteAllowlistEntry removes an allowlisted account.
func (h *Handler) DeleteAllowlistEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	accountID := chi.URLParam(r, "accountID")

	if accountID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "account id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.DeleteAllowlistEntry(ctx, tenantID, accountID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "allowlist entry not found",
			})
			return
		}
		slog.Error("failed to delete allowlist entry", "account_id", accountID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to delete allowlist entry",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"deleted": accountID,
	})
}

// AccountProfile handles GET /accounts/{id}/profile: a behavioral
// deep-dive over the tenant's most recently analyzed ledger.
func (h *Handler) AccountProfile(w http.ResponseWriter, r *http.Request) {
	tenantID := GetTenantID(r.Context())
	accountID := chi.URLParam(r, "id")

	h.mu.RLock()
	g := h.lastGraphs[tenantID]
	h.mu.RUnlock()

	if g == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no analyzed ledger for tenant",
		})
		return
	}

	acct := g.Account(accountID)
	if acct == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "account not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, buildProfile(acct))
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
