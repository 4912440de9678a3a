// Benchmark tool for load-testing Kestrel evaluation throughput.
//
// Usage:
//
//	go run cmd/benchmark/main.go -url http://localhost:8080 -applicants 500
//
// This tool:
//  1. Generates synthetic applicant transaction histories
//  2. Sends each applicant to Kestrel for evaluation with inline history
//  3. Measures throughput and latency
//  4. Reports the risk band and eligibility distribution
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// TransactionRecord mirrors the ingestion payload.
type TransactionRecord struct {
	Timestamp      time.Time `json:"timestamp"`
	Amount         string    `json:"amount"`
	CounterpartyID string    `json:"counterpartyId,omitempty"`
	Direction      string    `json:"direction"`
	Status         string    `json:"status"`
}

// EvaluateRequest is the Kestrel API request format.
type EvaluateRequest struct {
	ApplicantID  string              `json:"applicantId"`
	Transactions []TransactionRecord `json:"transactions"`
}

// EvaluateResponse holds the response fields the benchmark cares about.
type EvaluateResponse struct {
	ID    string `json:"id"`
	Score struct {
		Score    int    `json:"score"`
		RiskBand string `json:"riskBand"`
	} `json:"score"`
	Eligibility struct {
		Eligible bool `json:"eligible"`
	} `json:"eligibility"`
	FraudIndicators []json.RawMessage `json:"fraudIndicators"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TotalProcessed int64
	TotalErrors    int64
	TotalEligible  int64
	TotalFlagged   int64

	LowBand    int64
	MediumBand int64
	HighBand   int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (m *Metrics) recordLatency(d time.Duration) {
	m.mu.Lock()
	m.latencies = append(m.latencies, d)
	m.mu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	applicants := flag.Int("applicants", 500, "Number of synthetic applicants")
	months := flag.Int("months", 12, "Months of history per applicant")
	txPerMonth := flag.Int("tx-per-month", 40, "Average transactions per month")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	seed := flag.Int64("seed", 42, "Random seed for reproducible histories")
	verbose := flag.Bool("verbose", false, "Print each applicant result")
	flag.Parse()

	fmt.Println("KESTREL BENCHMARK - Evaluation Throughput")
	fmt.Printf("\nKestrel URL: %s\n", *baseURL)
	fmt.Printf("Applicants:  %d\n", *applicants)
	fmt.Printf("History:     %d months, ~%d tx/month\n", *months, *txPerMonth)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("Kestrel is healthy")

	rng := rand.New(rand.NewSource(*seed))
	histories := make([][]TransactionRecord, *applicants)
	for i := range histories {
		histories[i] = generateHistory(rng, *months, *txPerMonth)
	}
	fmt.Printf("Generated %d applicant histories\n", len(histories))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(histories, *baseURL, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// generateHistory builds a plausible merchant history: mostly successful
// credits with lognormal-ish amounts, a handful of counterparties, and a
// small failure rate.
func generateHistory(rng *rand.Rand, months, txPerMonth int) []TransactionRecord {
	counterparties := make([]string, 5+rng.Intn(20))
	for i := range counterparties {
		counterparties[i] = fmt.Sprintf("cp-%04d", rng.Intn(10000))
	}

	now := time.Now().UTC()
	var records []TransactionRecord

	for m := 0; m < months; m++ {
		monthStart := now.AddDate(0, -m, 0)
		count := txPerMonth/2 + rng.Intn(txPerMonth)
		for i := 0; i < count; i++ {
			amount := 500 + rng.Float64()*9500
			status := "SUCCESS"
			if rng.Float64() < 0.05 {
				status = "FAILED"
			}
			direction := "CREDIT"
			if rng.Float64() < 0.2 {
				direction = "DEBIT"
			}
			records = append(records, TransactionRecord{
				Timestamp:      monthStart.Add(-time.Duration(rng.Intn(28*24)) * time.Hour),
				Amount:         fmt.Sprintf("%.2f", amount),
				CounterpartyID: counterparties[rng.Intn(len(counterparties))],
				Direction:      direction,
				Status:         status,
			})
		}
	}

	return records
}

func runBenchmark(histories [][]TransactionRecord, baseURL string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	type job struct {
		applicantID string
		history     []TransactionRecord
	}

	work := make(chan job, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 30 * time.Second}

			for j := range work {
				start := time.Now()
				result, err := evaluateApplicant(client, baseURL, j.applicantID, j.history)
				elapsed := time.Since(start)

				metrics.recordLatency(elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", j.applicantID, err)
					}
					continue
				}

				if result.Eligibility.Eligible {
					atomic.AddInt64(&metrics.TotalEligible, 1)
				}
				if len(result.FraudIndicators) > 0 {
					atomic.AddInt64(&metrics.TotalFlagged, 1)
				}

				switch result.Score.RiskBand {
				case "LOW":
					atomic.AddInt64(&metrics.LowBand, 1)
				case "MEDIUM":
					atomic.AddInt64(&metrics.MediumBand, 1)
				default:
					atomic.AddInt64(&metrics.HighBand, 1)
				}

				if verbose {
					fmt.Printf("%s | score: %3d | band: %-6s | eligible: %-5v | %6.1fms\n",
						j.applicantID,
						result.Score.Score,
						result.Score.RiskBand,
						result.Eligibility.Eligible,
						float64(elapsed.Microseconds())/1000.0,
					)
				}
			}
		}()
	}

	for i, history := range histories {
		work <- job{
			applicantID: fmt.Sprintf("bench-%05d", i),
			history:     history,
		}
	}
	close(work)

	wg.Wait()

	return metrics
}

func evaluateApplicant(client *http.Client, baseURL, applicantID string, history []TransactionRecord) (*EvaluateResponse, error) {
	req := EvaluateRequest{
		ApplicantID:  applicantID,
		Transactions: history,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/evaluate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result EvaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nBENCHMARK RESULTS")

	fmt.Printf("\n  Total Processed: %d\n", m.TotalProcessed)
	fmt.Printf("  Errors:          %d\n", m.TotalErrors)
	fmt.Printf("  Eligible:        %d\n", m.TotalEligible)
	fmt.Printf("  Fraud Flagged:   %d\n", m.TotalFlagged)

	fmt.Printf("\n  Risk Bands:\n")
	fmt.Printf("    LOW:    %d\n", m.LowBand)
	fmt.Printf("    MEDIUM: %d\n", m.MediumBand)
	fmt.Printf("    HIGH:   %d\n", m.HighBand)

	fmt.Printf("\n  Duration:   %.2fs\n", duration.Seconds())
	if duration.Seconds() > 0 {
		fmt.Printf("  Throughput: %.1f evaluations/sec\n", float64(m.TotalProcessed)/duration.Seconds())
	}

	if len(m.latencies) > 0 {
		sort.Slice(m.latencies, func(i, j int) bool { return m.latencies[i] < m.latencies[j] })
		p := func(q float64) time.Duration {
			idx := int(q * float64(len(m.latencies)-1))
			return m.latencies[idx]
		}
		fmt.Printf("\n  Latency:\n")
		fmt.Printf("    p50: %6.1fms\n", float64(p(0.50).Microseconds())/1000.0)
		fmt.Printf("    p95: %6.1fms\n", float64(p(0.95).Microseconds())/1000.0)
		fmt.Printf("    p99: %6.1fms\n", float64(p(0.99).Microseconds())/1000.0)
	}
	fmt.Println()
}
