package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/catalog"
	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "api-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	b := bus.NewChannelBus(100)
	t.Cleanup(func() { b.Close() })

	store := catalog.NewStore(catalog.DefaultSnapshot(), nil)
	return NewServer(domain.ServerConfig{}, repo, cache.NewLRUCache(100), b, store, decision.NewProcessor(), "test")
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func historyRecords(asOf time.Time, months int) []map[string]interface{} {
	var recs []map[string]interface{}
	for m := 0; m < months; m++ {
		for i := 0; i < 8; i++ {
			n := m*8 + i
			recs = append(recs, map[string]interface{}{
				"timestamp":      asOf.AddDate(0, -m, -7).Add(time.Duration(i) * time.Hour).Format(time.RFC3339),
				"amount":         "25000",
				"counterpartyId": fmt.Sprintf("cp-%02d", n%20),
				"direction":      "CREDIT",
				"status":         "SUCCESS",
			})
		}
	}
	return recs
}

func TestIngestTransactions(t *testing.T) {
	srv := newTestServer(t)
	asOf := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

	t.Run("Created", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/applicants/app-1/transactions", map[string]interface{}{
			"transactions": historyRecords(asOf, 1),
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
		}
		var resp struct {
			ApplicantID string `json:"applicantId"`
			Saved       int    `json:"saved"`
		}
		json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp.ApplicantID != "app-1" || resp.Saved != 8 {
			t.Errorf("response = %+v", resp)
		}
	})

	t.Run("EmptyBatchRejected", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/applicants/app-1/transactions", map[string]interface{}{
			"transactions": []interface{}{},
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("InvalidRecordRejected", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/applicants/app-1/transactions", map[string]interface{}{
			"transactions": []map[string]interface{}{{
				"timestamp": asOf.Format(time.RFC3339),
				"amount":    "100",
				"direction": "SIDEWAYS",
				"status":    "SUCCESS",
			}},
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "transaction 0") {
			t.Errorf("error should name the offending record: %s", rec.Body)
		}
	})
}

func TestEvaluateInline(t *testing.T) {
	srv := newTestServer(t)
	asOf := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

	rec := doJSON(t, srv, http.MethodPost, "/evaluate", map[string]interface{}{
		"applicantId":  "app-1",
		"transactions": historyRecords(asOf, 12),
		"asOf":         asOf.Format(time.RFC3339),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var d domain.Decision
	if err := json.Unmarshal(rec.Body.Bytes(), &d); err != nil {
		t.Fatalf("response did not parse as decision: %v", err)
	}
	if d.ApplicantID != "app-1" || d.ID == "" {
		t.Errorf("decision identity = %s/%s", d.ID, d.ApplicantID)
	}
	if d.Score == nil || d.Metrics == nil || d.Eligibility == nil {
		t.Error("decision sections missing")
	}
	if d.CatalogVersion != catalog.DefaultVersion {
		t.Errorf("catalog version = %s", d.CatalogVersion)
	}
	if d.Metadata.TransactionCount != 96 {
		t.Errorf("transaction count = %d, want 96", d.Metadata.TransactionCount)
	}

	// The inline decision is persisted and retrievable.
	got := doJSON(t, srv, http.MethodGet, "/decisions/"+d.ID, nil)
	if got.Code != http.StatusOK {
		t.Errorf("get decision status = %d", got.Code)
	}
}

func TestEvaluateValidation(t *testing.T) {
	srv := newTestServer(t)

	t.Run("MissingApplicant", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/evaluate", map[string]interface{}{})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("MalformedBody", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/evaluate", strings.NewReader("{nope"))
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d", rec.Code)
		}
	})
}

func TestEvaluateStoredHistoryUsesCache(t *testing.T) {
	srv := newTestServer(t)
	// Seeded relative to now: evaluations without an asOf anchor at the
	// current time and hit the cache on the second call.
	now := time.Now().UTC()

	rec := doJSON(t, srv, http.MethodPost, "/applicants/app-1/transactions", map[string]interface{}{
		"transactions": historyRecords(now, 6),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("ingest failed: %d %s", rec.Code, rec.Body)
	}

	first := doJSON(t, srv, http.MethodPost, "/evaluate", map[string]interface{}{
		"applicantId": "app-1",
	})
	if first.Code != http.StatusOK {
		t.Fatalf("evaluate failed: %d %s", first.Code, first.Body)
	}
	var d1 domain.Decision
	json.Unmarshal(first.Body.Bytes(), &d1)
	if d1.Metadata.TransactionCount != 48 {
		t.Errorf("transaction count = %d, want 48", d1.Metadata.TransactionCount)
	}

	// Second call under the same catalog version is served from cache:
	// same decision ID, no recompute.
	second := doJSON(t, srv, http.MethodPost, "/evaluate", map[string]interface{}{
		"applicantId": "app-1",
	})
	if second.Code != http.StatusOK {
		t.Fatalf("evaluate failed: %d", second.Code)
	}
	var d2 domain.Decision
	json.Unmarshal(second.Body.Bytes(), &d2)
	if d2.ID != d1.ID {
		t.Errorf("expected cached decision %s, got %s", d1.ID, d2.ID)
	}

	// Latest decision retrieval works too.
	latest := doJSON(t, srv, http.MethodGet, "/applicants/app-1/decision", nil)
	if latest.Code != http.StatusOK {
		t.Errorf("latest decision status = %d", latest.Code)
	}
}

func TestEvaluateExplicitAsOfBypassesCache(t *testing.T) {
	srv := newTestServer(t)
	asOf := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

	rec := doJSON(t, srv, http.MethodPost, "/applicants/app-1/transactions", map[string]interface{}{
		"transactions": historyRecords(asOf, 6),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("ingest failed: %d %s", rec.Code, rec.Body)
	}

	first := doJSON(t, srv, http.MethodPost, "/evaluate", map[string]interface{}{
		"applicantId": "app-1",
		"asOf":        asOf.Format(time.RFC3339),
	})
	if first.Code != http.StatusOK {
		t.Fatalf("evaluate failed: %d %s", first.Code, first.Body)
	}
	var d1 domain.Decision
	json.Unmarshal(first.Body.Bytes(), &d1)
	if d1.Metrics == nil || d1.Metrics.Volume3M.IsZero() {
		t.Fatalf("expected non-zero 3-month volume at the seeded anchor: %+v", d1.Metrics)
	}

	// Re-anchoring nine months earlier must produce a fresh evaluation
	// whose rolling windows see none of the seeded history, not a replay
	// of the first decision.
	earlier := asOf.AddDate(0, -9, 0)
	second := doJSON(t, srv, http.MethodPost, "/evaluate", map[string]interface{}{
		"applicantId": "app-1",
		"asOf":        earlier.Format(time.RFC3339),
	})
	if second.Code != http.StatusOK {
		t.Fatalf("evaluate failed: %d %s", second.Code, second.Body)
	}
	var d2 domain.Decision
	json.Unmarshal(second.Body.Bytes(), &d2)
	if d2.ID == d1.ID {
		t.Errorf("decision %s served for a different asOf anchor", d2.ID)
	}
	if d2.Metrics == nil || !d2.Metrics.Volume3M.IsZero() {
		t.Errorf("3-month volume at earlier anchor = %s, want 0", d2.Metrics.Volume3M)
	}
}

func TestDecisionNotFound(t *testing.T) {
	srv := newTestServer(t)

	if rec := doJSON(t, srv, http.MethodGet, "/decisions/nope", nil); rec.Code != http.StatusNotFound {
		t.Errorf("get decision status = %d, want 404", rec.Code)
	}
	if rec := doJSON(t, srv, http.MethodGet, "/applicants/nope/decision", nil); rec.Code != http.StatusNotFound {
		t.Errorf("latest decision status = %d, want 404", rec.Code)
	}
}

func TestCatalogEndpoints(t *testing.T) {
	srv := newTestServer(t)

	t.Run("GetDefault", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/catalog", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var resp struct {
			Version string `json:"version"`
		}
		json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp.Version != catalog.DefaultVersion {
			t.Errorf("version = %s", resp.Version)
		}
	})

	t.Run("PutValidSwaps", func(t *testing.T) {
		doc := `{
			"version": "2025-custom",
			"scoring": {
				"components": {
					"volume": {
						"weight": 1.0,
						"metric": "avg_monthly_volume",
						"tiers": [
							{"min": 0, "max": 100000, "score": 50},
							{"min": 100000, "score": 80}
						]
					}
				}
			}
		}`
		req := httptest.NewRequest(http.MethodPut, "/catalog", strings.NewReader(doc))
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
		}
		var resp struct {
			Version    string `json:"version"`
			OldVersion string `json:"oldVersion"`
		}
		json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp.Version != "2025-custom" || resp.OldVersion != catalog.DefaultVersion {
			t.Errorf("response = %+v", resp)
		}

		got := doJSON(t, srv, http.MethodGet, "/catalog", nil)
		if !strings.Contains(got.Body.String(), "2025-custom") {
			t.Errorf("new catalog not active: %s", got.Body)
		}
	})

	t.Run("PutInvalidRejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/catalog", strings.NewReader(`{"version":""}`))
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("Reload", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/catalog/reload", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, body = %s", rec.Code, rec.Body)
		}
	})
}

func TestRescoreAccepted(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/rescore", map[string]interface{}{
		"applicantIds": []string{"app-1", "app-2"},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var resp struct {
		Requested int `json:"requested"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Requested != 2 {
		t.Errorf("requested = %d", resp.Requested)
	}
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["status"] != "healthy" {
		t.Errorf("status = %s", resp["status"])
	}
	if resp["catalogVersion"] != catalog.DefaultVersion {
		t.Errorf("catalogVersion = %s", resp["catalogVersion"])
	}

	if rec := doJSON(t, srv, http.MethodGet, "/ready", nil); rec.Code != http.StatusOK {
		t.Errorf("ready status = %d", rec.Code)
	}
}
