// Package worker provides async rescoring driven by the event bus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/catalog"
	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// lookback is how far back transactions are fetched for a rescore.
// The longest rolling window is twelve months.
const lookback = 12 * 31 * 24 * time.Hour

// Worker listens for rescore requests and re-evaluates applicants against
// the current catalog, saving and publishing each resulting decision.
type Worker struct {
	bus       domain.EventBus
	repo      domain.Repository
	store     *catalog.Store
	processor *decision.Processor

	concurrency   int
	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// Concurrency is the number of applicants rescored in parallel.
	Concurrency int
}

// RescoreRequest is the payload published on the rescore topic.
// An empty ApplicantIDs list means rescore every known applicant.
type RescoreRequest struct {
	ApplicantIDs []string  `json:"applicantIds,omitempty"`
	TraceID      string    `json:"traceId,omitempty"`
	AsOf         time.Time `json:"asOf,omitempty"`
}

// NewWorker creates a rescore worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, store *catalog.Store, processor *decision.Processor, cfg Config) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:         bus,
		repo:        repo,
		store:       store,
		processor:   processor,
		concurrency: cfg.Concurrency,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start subscribes to the rescore topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicRescoreRequest, w.handleRescore)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("rescore worker started",
		"topic", domain.TopicRescoreRequest,
		"concurrency", w.concurrency,
	)
	return nil
}

// handleRescore fans a rescore request out across applicants. The batch is
// tracked on the worker WaitGroup so Stop drains it before returning.
func (w *Worker) handleRescore(ctx context.Context, msg *domain.Message) error {
	w.wg.Add(1)
	defer w.wg.Done()

	start := time.Now()

	var req RescoreRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse rescore request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	applicants := req.ApplicantIDs
	if len(applicants) == 0 {
		var err error
		applicants, err = w.repo.ListApplicantIDs(ctx)
		if err != nil {
			slog.Error("failed to list applicants for rescore",
				"message_id", msg.ID,
				"error", err,
			)
			return err
		}
	}

	traceID := req.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	// One snapshot for the whole batch, so every applicant in a request
	// is scored against the same catalog version.
	snap := w.store.Current()

	slog.Info("rescore started",
		"trace_id", traceID,
		"applicant_count", len(applicants),
		"catalog_version", snap.Version,
	)

	sem := make(chan struct{}, w.concurrency)
	var wg sync.WaitGroup
	for _, applicantID := range applicants {
		select {
		case <-w.ctx.Done():
			return w.ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()
			w.rescoreApplicant(ctx, id, traceID, asOf, snap)
		}(applicantID)
	}
	wg.Wait()

	slog.Info("rescore finished",
		"trace_id", traceID,
		"applicant_count", len(applicants),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// rescoreApplicant evaluates one applicant and persists the outcome.
func (w *Worker) rescoreApplicant(ctx context.Context, applicantID, traceID string, asOf time.Time, snap *catalog.Snapshot) {
	start := time.Now()

	txs, err := w.repo.GetTransactionsByApplicant(ctx, applicantID, asOf.Add(-lookback))
	if err != nil {
		slog.Error("failed to load transactions for rescore",
			"applicant_id", applicantID,
			"error", err,
		)
		return
	}

	d := w.processor.Process(ctx, &decision.Input{
		ApplicantID:  applicantID,
		TraceID:      traceID,
		Transactions: txs,
		AsOf:         asOf,
		StartTime:    start,
	}, snap)

	if err := w.repo.SaveDecision(ctx, d); err != nil {
		slog.Error("failed to save decision",
			"applicant_id", applicantID,
			"decision_id", d.ID,
			"error", err,
		)
	}

	payload, _ := json.Marshal(d)
	if err := w.bus.Publish(ctx, domain.TopicDecision, payload); err != nil {
		slog.Error("failed to publish decision",
			"applicant_id", applicantID,
			"error", err,
		)
	}

	if d.HasFraudIndicators() {
		if err := w.bus.Publish(ctx, domain.TopicAlert, payload); err != nil {
			slog.Error("failed to publish alert",
				"applicant_id", applicantID,
				"error", err,
			)
		}
	}

	slog.Info("applicant rescored",
		"applicant_id", applicantID,
		"score", d.Score.Score,
		"risk_band", d.Score.RiskBand,
		"eligible", d.Eligibility.Eligible,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("rescore worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
