package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/catalog"
	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
)

// lookback is how far back transactions are fetched when an evaluation
// reads history from the repository. The longest metric window is twelve
// months.
const lookback = 12 * 31 * 24 * time.Hour

// decisionTTL bounds how long a cached decision serves before the
// applicant is re-evaluated.
const decisionTTL = 15 * time.Minute

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	store     *catalog.Store
	processor *decision.Processor
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, store *catalog.Store, processor *decision.Processor, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		store:     store,
		processor: processor,
		version:   version,
	}
}

// IngestRequest is the request body for POST /applicants/{id}/transactions.
type IngestRequest struct {
	Transactions []domain.TransactionRecord `json:"transactions"`
}

// IngestTransactions handles POST /applicants/{id}/transactions.
func (h *Handler) IngestTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	applicantID := chi.URLParam(r, "id")
	if applicantID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "applicant id is required",
		})
		return
	}

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Transactions) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "at least one transaction is required",
		})
		return
	}

	txs := make([]*domain.Transaction, 0, len(req.Transactions))
	for i := range req.Transactions {
		rec := &req.Transactions[i]
		if err := rec.Validate(); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("transaction %d: %s", i, err),
			})
			return
		}
		txs = append(txs, rec.ToTransaction(uuid.New().String(), applicantID))
	}

	if err := h.repo.SaveTransactions(ctx, txs); err != nil {
		slog.Error("failed to save transactions",
			"applicant_id", applicantID,
			"count", len(txs),
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save transactions",
		})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"applicantId": applicantID,
		"saved":       len(txs),
	})
}

// EvaluateRequest is the request body for POST /evaluate. Transactions may
// be supplied inline; when omitted the applicant's stored history is used.
type EvaluateRequest struct {
	ApplicantID  string                     `json:"applicantId"`
	Transactions []domain.TransactionRecord `json:"transactions,omitempty"`
	AsOf         time.Time                  `json:"asOf,omitempty"`
}

// Evaluate handles POST /evaluate requests.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	traceID := GetTraceID(ctx)

	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.ApplicantID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "applicantId is required",
		})
		return
	}

	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	// One snapshot for the whole request.
	snap := h.store.Current()

	var txs []*domain.Transaction
	if len(req.Transactions) > 0 {
		txs = make([]*domain.Transaction, 0, len(req.Transactions))
		for i := range req.Transactions {
			rec := &req.Transactions[i]
			if err := rec.Validate(); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{
					"error": err.Error(),
				})
				return
			}
			txs = append(txs, rec.ToTransaction(uuid.New().String(), req.ApplicantID))
		}
	} else {
		// Stored history: a cached decision under the active catalog
		// version is still valid. An explicit asOf anchors the rolling
		// windows elsewhere, so it always re-evaluates.
		if h.cache != nil && req.AsOf.IsZero() {
			if cached, err := h.cache.GetDecision(ctx, req.ApplicantID, snap.Version); err == nil && cached != nil {
				writeJSON(w, http.StatusOK, cached)
				return
			}
		}

		var err error
		txs, err = h.repo.GetTransactionsByApplicant(ctx, req.ApplicantID, asOf.Add(-lookback))
		if err != nil {
			slog.Error("failed to load transactions",
				"applicant_id", req.ApplicantID,
				"error", err,
			)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to load transactions",
			})
			return
		}
	}

	d := h.processor.Process(ctx, &decision.Input{
		ApplicantID:  req.ApplicantID,
		TraceID:      traceID,
		Transactions: txs,
		AsOf:         asOf,
		StartTime:    start,
	}, snap)

	if h.repo != nil {
		if err := h.repo.SaveDecision(ctx, d); err != nil {
			slog.Error("failed to save decision",
				"decision_id", d.ID,
				"error", err,
			)
		}
	}
	if h.cache != nil && len(req.Transactions) == 0 && req.AsOf.IsZero() {
		if err := h.cache.SetDecision(ctx, d, decisionTTL); err != nil {
			slog.Warn("failed to cache decision",
				"decision_id", d.ID,
				"error", err,
			)
		}
	}

	payload, _ := json.Marshal(d)
	if h.bus != nil {
		if err := h.bus.Publish(ctx, domain.TopicDecision, payload); err != nil {
			slog.Error("failed to publish decision", "error", err)
		}
		if d.HasFraudIndicators() {
			if err := h.bus.Publish(ctx, domain.TopicAlert, payload); err != nil {
				slog.Error("failed to publish alert", "error", err)
			}
		}
	}

	writeJSON(w, http.StatusOK, d)
}

// GetDecision retrieves a decision by ID.
func (h *Handler) GetDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	decisionID := chi.URLParam(r, "id")
	if decisionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "decision id is required",
		})
		return
	}

	d, err := h.repo.GetDecision(ctx, decisionID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to get decision", "id", decisionID, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "decision not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// GetLatestDecision retrieves the most recent decision for an applicant.
func (h *Handler) GetLatestDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	applicantID := chi.URLParam(r, "id")
	if applicantID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "applicant id is required",
		})
		return
	}

	d, err := h.repo.GetLatestDecision(ctx, applicantID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to get latest decision", "applicant_id", applicantID, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no decision found for applicant",
		})
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// GetCatalog returns the active catalog.
func (h *Handler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Current()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":  snap.Version,
		"warnings": snap.Warnings,
		"catalog":  snap.Catalog,
	})
}

// PutCatalog handles PUT /catalog: validates, persists, and activates a new
// catalog document. A document that fails to load is rejected and the active
// catalog keeps serving.
func (h *Handler) PutCatalog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "failed to read request body",
		})
		return
	}

	snap, err := catalog.Load(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid catalog: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveCatalogDocument(ctx, snap.Version, raw); err != nil {
			slog.Error("failed to persist catalog document",
				"version", snap.Version,
				"error", err,
			)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to persist catalog",
			})
			return
		}
	}

	oldVersion := h.store.Replace(snap)

	if h.bus != nil {
		payload, _ := json.Marshal(map[string]string{
			"oldVersion": oldVersion,
			"newVersion": snap.Version,
		})
		if err := h.bus.Publish(ctx, domain.TopicCatalogReload, payload); err != nil {
			slog.Error("failed to publish catalog reload event", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":    snap.Version,
		"oldVersion": oldVersion,
		"warnings":   snap.Warnings,
	})
}

// ReloadCatalog handles POST /catalog/reload: re-fetches the catalog from
// its configured source.
func (h *Handler) ReloadCatalog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.store.Reload(ctx); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":         "catalog reload failed: " + err.Error(),
			"activeVersion": h.store.Version(),
		})
		return
	}

	snap := h.store.Current()

	if h.bus != nil {
		payload, _ := json.Marshal(map[string]string{
			"newVersion": snap.Version,
		})
		if err := h.bus.Publish(ctx, domain.TopicCatalogReload, payload); err != nil {
			slog.Error("failed to publish catalog reload event", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":  snap.Version,
		"warnings": snap.Warnings,
	})
}

// RescoreRequest is the request body for POST /rescore. An empty applicant
// list requests a rescore of every known applicant.
type RescoreRequest struct {
	ApplicantIDs []string  `json:"applicantIds,omitempty"`
	AsOf         time.Time `json:"asOf,omitempty"`
}

// Rescore handles POST /rescore: publishes a rescore request for async
// processing by the worker.
func (h *Handler) Rescore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := GetTraceID(ctx)

	var req RescoreRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid JSON request body",
			})
			return
		}
	}

	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"applicantIds": req.ApplicantIDs,
		"traceId":      traceID,
		"asOf":         req.AsOf,
	})
	if err := h.bus.Publish(ctx, domain.TopicRescoreRequest, payload); err != nil {
		slog.Error("failed to publish rescore request", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to publish rescore request",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"traceId":   traceID,
		"requested": len(req.ApplicantIDs),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":         status,
		"version":        h.version,
		"catalogVersion": h.store.Version(),
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
