//go:build integration
// +build integration

// Package integration exercises the complete Kestrel pipeline end to end:
//
//	Ingest → Metrics → Score → Eligibility → Fraud → Loan Terms
//
// against the in-process HTTP surface, a real SQLite repository, the LRU
// cache, and the channel event bus.
//
// Run with: go test -tags=integration -v ./tests/integration/...
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/catalog"
	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// strictCatalog raises the volume bar high enough that only the strong
// applicant below clears eligibility.
const strictCatalog = `{
  "version": "integration-v1",
  "scoring": {
    "components": {
      "volume": {
        "weight": 0.5,
        "metric": "avg_monthly_volume",
        "tiers": [
          {"min": 0, "max": 100000, "score": 40, "label": "low"},
          {"min": 100000, "max": 500000, "score": 70, "label": "medium"},
          {"min": 500000, "score": 90, "label": "high"}
        ]
      },
      "bounce": {
        "weight": 0.5,
        "metric": "bounce_rate",
        "tiers": [
          {"min": 0, "max": 5, "score": 90, "label": "clean"},
          {"min": 5, "score": 40, "label": "bouncy"}
        ]
      }
    }
  },
  "risk_categories": {
    "LOW": {"min": 80, "max": 100},
    "MEDIUM": {"min": 55, "max": 79},
    "HIGH": {"min": 0, "max": 54}
  },
  "eligibility": {
    "rules": [
      {
        "id": "min-monthly-volume",
        "metric": "avg_monthly_volume",
        "operator": ">=",
        "value": 100000,
        "failure_message": "average monthly volume below minimum",
        "recommendation": "maintain higher monthly volume"
      }
    ]
  },
  "loan_parameters": {
    "amount": {
      "by_risk_category": {
        "LOW": {"multiplier": 3},
        "MEDIUM": {"multiplier": 2},
        "HIGH": {"multiplier": 1}
      },
      "limits": {"min": 10000, "max": 5000000}
    },
    "tenure": {
      "by_risk_category": {
        "LOW": {"max_days": 365},
        "MEDIUM": {"max_days": 180},
        "HIGH": {"max_days": 90}
      },
      "consistency_adjustment": {"enabled": true, "threshold": 40, "reduction_factor": 0.5}
    },
    "interest_rate": {
      "by_risk_category": {
        "LOW": {"annual_rate": 14},
        "MEDIUM": {"annual_rate": 18},
        "HIGH": {"annual_rate": 24}
      }
    }
  }
}`

type stack struct {
	srv  *api.Server
	repo domain.Repository
	bus  *bus.ChannelBus
}

func newStack(t *testing.T) *stack {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "integration.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	b := bus.NewChannelBus(100)
	t.Cleanup(func() { b.Close() })

	store := catalog.NewStore(catalog.DefaultSnapshot(), nil)
	processor := decision.NewProcessor()

	w := worker.NewWorker(b, repo, store, processor, worker.Config{Concurrency: 2})
	if err := w.Start(); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}
	t.Cleanup(func() { w.Stop() })

	srv := api.NewServer(domain.ServerConfig{}, repo, cache.NewLRUCache(100), b, store, processor, "integration")
	return &stack{srv: srv, repo: repo, bus: b}
}

func (s *stack) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch v := body.(type) {
		case string:
			buf.WriteString(v)
		default:
			if err := json.NewEncoder(&buf).Encode(v); err != nil {
				t.Fatalf("failed to encode body: %v", err)
			}
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.srv.Router().ServeHTTP(rec, req)
	return rec
}

func monthlyHistory(asOf time.Time, months int, perMonth int, amount string) []map[string]interface{} {
	var recs []map[string]interface{}
	for m := 0; m < months; m++ {
		for i := 0; i < perMonth; i++ {
			n := m*perMonth + i
			recs = append(recs, map[string]interface{}{
				"timestamp":      asOf.AddDate(0, -m, -7).Add(time.Duration(i) * time.Hour).Format(time.RFC3339),
				"amount":         amount,
				"counterpartyId": fmt.Sprintf("cp-%02d", n%20),
				"direction":      "CREDIT",
				"status":         "SUCCESS",
			})
		}
	}
	return recs
}

func TestFullPipeline(t *testing.T) {
	s := newStack(t)
	asOf := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

	// Activate the integration catalog.
	rec := s.do(t, http.MethodPut, "/catalog", strictCatalog)
	if rec.Code != http.StatusOK {
		t.Fatalf("catalog activation failed: %d %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), "integration-v1") {
		t.Fatalf("unexpected catalog response: %s", rec.Body)
	}

	// Ingest twelve months of strong, well-spread history.
	rec = s.do(t, http.MethodPost, "/applicants/strong/transactions", map[string]interface{}{
		"transactions": monthlyHistory(asOf, 12, 8, "25000"),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("ingest failed: %d %s", rec.Code, rec.Body)
	}

	// Evaluate from stored history.
	rec = s.do(t, http.MethodPost, "/evaluate", map[string]interface{}{
		"applicantId": "strong",
		"asOf":        asOf.Format(time.RFC3339),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("evaluate failed: %d %s", rec.Code, rec.Body)
	}

	var d domain.Decision
	if err := json.Unmarshal(rec.Body.Bytes(), &d); err != nil {
		t.Fatalf("decision did not parse: %v", err)
	}
	if d.CatalogVersion != "integration-v1" {
		t.Errorf("catalog version = %s", d.CatalogVersion)
	}
	// 8 x 25000 = 200k per month, clears the 100k eligibility bar.
	if d.Eligibility == nil || !d.Eligibility.Eligible {
		t.Fatalf("strong applicant should be eligible: %+v", d.Eligibility)
	}
	if d.LoanTerms == nil {
		t.Fatal("eligible decision missing loan terms")
	}
	if d.LoanTerms.EligibleAmount.IsZero() {
		t.Error("loan amount is zero")
	}
	if len(d.FraudIndicators) != 0 {
		t.Errorf("unexpected fraud indicators: %+v", d.FraudIndicators)
	}

	// The decision is durable and retrievable both ways.
	if got := s.do(t, http.MethodGet, "/decisions/"+d.ID, nil); got.Code != http.StatusOK {
		t.Errorf("get decision = %d", got.Code)
	}
	if got := s.do(t, http.MethodGet, "/applicants/strong/decision", nil); got.Code != http.StatusOK {
		t.Errorf("latest decision = %d", got.Code)
	}
}

func TestWeakApplicantIneligible(t *testing.T) {
	s := newStack(t)
	asOf := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

	if rec := s.do(t, http.MethodPut, "/catalog", strictCatalog); rec.Code != http.StatusOK {
		t.Fatalf("catalog activation failed: %d", rec.Code)
	}

	// 8 x 1000 = 8k per month, far below the 100k bar.
	if rec := s.do(t, http.MethodPost, "/applicants/weak/transactions", map[string]interface{}{
		"transactions": monthlyHistory(asOf, 6, 8, "1000"),
	}); rec.Code != http.StatusCreated {
		t.Fatalf("ingest failed: %d", rec.Code)
	}

	rec := s.do(t, http.MethodPost, "/evaluate", map[string]interface{}{
		"applicantId": "weak",
		"asOf":        asOf.Format(time.RFC3339),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("evaluate failed: %d %s", rec.Code, rec.Body)
	}

	var d domain.Decision
	json.Unmarshal(rec.Body.Bytes(), &d)
	if d.Eligibility == nil || d.Eligibility.Eligible {
		t.Fatalf("weak applicant should be ineligible: %+v", d.Eligibility)
	}
	if d.Eligibility.FailureReason == "" {
		t.Error("ineligible decision missing failure reason")
	}
	if d.LoanTerms != nil {
		t.Error("ineligible decision should carry no loan terms")
	}
}

func TestRescoreFlowThroughWorker(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	asOf := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

	if rec := s.do(t, http.MethodPost, "/applicants/app-1/transactions", map[string]interface{}{
		"transactions": monthlyHistory(asOf, 6, 8, "25000"),
	}); rec.Code != http.StatusCreated {
		t.Fatalf("ingest failed: %d", rec.Code)
	}

	rec := s.do(t, http.MethodPost, "/rescore", map[string]interface{}{
		"applicantIds": []string{"app-1"},
		"asOf":         asOf.Format(time.RFC3339),
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("rescore request = %d %s", rec.Code, rec.Body)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := s.repo.GetLatestDecision(ctx, "app-1"); err == nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("rescore produced no decision")
}
