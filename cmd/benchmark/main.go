// Benchmark tool for load-testing Kestrel case evaluation.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -cases 1000
//
// This tool:
//   1. Seeds an indicator catalog and an active matrix configuration
//   2. Tags a population of synthetic cases with random indicators
//   3. Evaluates every case concurrently and measures latency
//   4. Reports throughput and the traffic-light distribution
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// indicatorSpec describes one synthetic catalog entry.
type indicatorSpec struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Category string `json:"category,omitempty"`
}

type tagRequest struct {
	Severity *int `json:"severity,omitempty"`
}

type configRequest struct {
	Version  string         `json:"version"`
	Document configDocument `json:"document"`
}

type configDocument struct {
	CategoryWeights      map[string]float64 `json:"categoryWeights,omitempty"`
	DefaultWeight        float64            `json:"defaultWeight,omitempty"`
	HardHits             []string           `json:"hardHits,omitempty"`
	ProtectiveIndicators []string           `json:"protectiveIndicators,omitempty"`
	Reduction            map[string]any     `json:"reduction"`
	Thresholds           map[string]float64 `json:"thresholds"`
}

type evaluateResponse struct {
	Snapshot struct {
		ID     string `json:"id"`
		Result struct {
			RawScore     float64 `json:"rawScore"`
			FinalScore   float64 `json:"finalScore"`
			TrafficLight string  `json:"trafficLight"`
		} `json:"result"`
	} `json:"snapshot"`
}

// metrics tracks benchmark results.
type metrics struct {
	totalEvaluated int64
	totalErrors    int64
	greenCount     int64
	yellowCount    int64
	redCount       int64
	latencyMs      int64
	maxLatencyMs   int64
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	caseCount := flag.Int("cases", 1000, "Number of synthetic cases")
	indicatorCount := flag.Int("indicators", 20, "Number of catalog indicators")
	maxTags := flag.Int("max-tags", 5, "Maximum tags per case")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	seed := flag.Int64("seed", 42, "Random seed for reproducible populations")
	verbose := flag.Bool("verbose", false, "Print each evaluation result")
	flag.Parse()

	fmt.Println("+---------------------------------------------------------------+")
	fmt.Println("|              KESTREL BENCHMARK - Case Evaluation              |")
	fmt.Println("+---------------------------------------------------------------+")
	fmt.Printf("\nKestrel URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Cases:       %d\n", *caseCount)
	fmt.Printf("Indicators:  %d\n", *indicatorCount)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("Kestrel is healthy")

	client := &http.Client{Timeout: 10 * time.Second}
	rng := rand.New(rand.NewSource(*seed))

	fmt.Printf("\nSeeding %d indicators...\n", *indicatorCount)
	indicators, err := seedIndicators(client, *baseURL, *tenantID, *indicatorCount)
	if err != nil {
		fmt.Printf("ERROR: failed to seed indicators: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Creating and activating matrix configuration...")
	if err := seedConfig(client, *baseURL, *tenantID, indicators); err != nil {
		fmt.Printf("ERROR: failed to seed config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Tagging %d cases (up to %d tags each)...\n", *caseCount, *maxTags)
	caseIDs, err := seedCases(client, *baseURL, *tenantID, indicators, *caseCount, *maxTags, rng)
	if err != nil {
		fmt.Printf("ERROR: failed to tag cases: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nEvaluating %d cases with %d workers...\n", len(caseIDs), *workers)
	startTime := time.Now()
	m := runBenchmark(caseIDs, *baseURL, *tenantID, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(m, duration)
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

var categories = []string{"BODY", "PSY", "ENV", "CARE"}

func seedIndicators(client *http.Client, baseURL, tenantID string, count int) ([]indicatorSpec, error) {
	indicators := make([]indicatorSpec, 0, count)
	for i := 0; i < count; i++ {
		ind := indicatorSpec{
			ID:       fmt.Sprintf("IND_%03d", i),
			Label:    fmt.Sprintf("Synthetic indicator %d", i),
			Category: categories[i%len(categories)],
		}
		if err := post(client, baseURL+"/indicators", tenantID, ind, nil); err != nil {
			return nil, err
		}
		indicators = append(indicators, ind)
	}
	return indicators, nil
}

func seedConfig(client *http.Client, baseURL, tenantID string, indicators []indicatorSpec) error {
	doc := configDocument{
		CategoryWeights: map[string]float64{
			"BODY": 3,
			"PSY":  2,
			"ENV":  1.5,
			"CARE": 1,
		},
		DefaultWeight: 1,
		// Last indicator acts as a hard hit, first as protective
		HardHits:             []string{indicators[len(indicators)-1].ID},
		ProtectiveIndicators: []string{indicators[0].ID},
		Reduction: map[string]any{
			"kind":       "percent",
			"percent":    10,
			"maxPercent": 30,
		},
		Thresholds: map[string]float64{"green": 0, "yellow": 5, "red": 12},
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := post(client, baseURL+"/configs", tenantID, configRequest{
		Version:  fmt.Sprintf("bench-%d", time.Now().Unix()),
		Document: doc,
	}, &created); err != nil {
		return err
	}

	return post(client, fmt.Sprintf("%s/configs/%s/activate", baseURL, created.ID), tenantID, nil, nil)
}

func seedCases(client *http.Client, baseURL, tenantID string, indicators []indicatorSpec, count, maxTags int, rng *rand.Rand) ([]string, error) {
	caseIDs := make([]string, 0, count)
	for i := 0; i < count; i++ {
		caseID := fmt.Sprintf("case-%05d", i)
		tagCount := 1 + rng.Intn(maxTags)
		for j := 0; j < tagCount; j++ {
			ind := indicators[rng.Intn(len(indicators))]
			var req tagRequest
			if rng.Float64() < 0.3 {
				sev := rng.Intn(4)
				req.Severity = &sev
			}
			url := fmt.Sprintf("%s/cases/%s/tags/%s", baseURL, caseID, ind.ID)
			if err := put(client, url, tenantID, req); err != nil {
				return nil, err
			}
		}
		caseIDs = append(caseIDs, caseID)
	}
	return caseIDs, nil
}

func runBenchmark(caseIDs []string, baseURL, tenantID string, numWorkers int, verbose bool) *metrics {
	m := &metrics{}

	work := make(chan string, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for caseID := range work {
				start := time.Now()
				result, err := evaluateCase(client, baseURL, tenantID, caseID)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&m.latencyMs, elapsed)
				for {
					prev := atomic.LoadInt64(&m.maxLatencyMs)
					if elapsed <= prev || atomic.CompareAndSwapInt64(&m.maxLatencyMs, prev, elapsed) {
						break
					}
				}

				if err != nil {
					atomic.AddInt64(&m.totalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", caseID, err)
					}
					continue
				}

				atomic.AddInt64(&m.totalEvaluated, 1)
				switch result.Snapshot.Result.TrafficLight {
				case "GREEN":
					atomic.AddInt64(&m.greenCount, 1)
				case "YELLOW":
					atomic.AddInt64(&m.yellowCount, 1)
				case "RED":
					atomic.AddInt64(&m.redCount, 1)
				}

				if verbose {
					fmt.Printf("%s | raw %7.2f | final %7.2f | %-6s | %4dms\n",
						caseID,
						result.Snapshot.Result.RawScore,
						result.Snapshot.Result.FinalScore,
						result.Snapshot.Result.TrafficLight,
						elapsed,
					)
				}
			}
		}()
	}

	for _, caseID := range caseIDs {
		work <- caseID
	}
	close(work)

	wg.Wait()

	return m
}

func evaluateCase(client *http.Client, baseURL, tenantID, caseID string) (*evaluateResponse, error) {
	url := fmt.Sprintf("%s/cases/%s/evaluate", baseURL, caseID)
	var result evaluateResponse
	if err := post(client, url, tenantID, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func post(client *http.Client, url, tenantID string, body, out any) error {
	return send(client, http.MethodPost, url, tenantID, body, out)
}

func put(client *http.Client, url, tenantID string, body any) error {
	return send(client, http.MethodPut, url, tenantID, body, nil)
}

func send(client *http.Client, method, url, tenantID string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d", method, url, resp.StatusCode)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func printResults(m *metrics, duration time.Duration) {
	fmt.Println("\n+---------------------------------------------------------------+")
	fmt.Println("|                      BENCHMARK RESULTS                        |")
	fmt.Println("+---------------------------------------------------------------+")

	fmt.Printf("\nEVALUATIONS\n")
	fmt.Printf("   Evaluated:  %d\n", m.totalEvaluated)
	fmt.Printf("   Errors:     %d\n", m.totalErrors)

	fmt.Printf("\nTRAFFIC LIGHT DISTRIBUTION\n")
	total := m.greenCount + m.yellowCount + m.redCount
	if total > 0 {
		fmt.Printf("   GREEN:   %6d (%.1f%%)\n", m.greenCount, 100*float64(m.greenCount)/float64(total))
		fmt.Printf("   YELLOW:  %6d (%.1f%%)\n", m.yellowCount, 100*float64(m.yellowCount)/float64(total))
		fmt.Printf("   RED:     %6d (%.1f%%)\n", m.redCount, 100*float64(m.redCount)/float64(total))
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:  %v\n", duration.Round(time.Millisecond))
	if m.totalEvaluated > 0 {
		avgMs := float64(m.latencyMs) / float64(m.totalEvaluated)
		eps := float64(m.totalEvaluated) / duration.Seconds()
		fmt.Printf("   Avg Latency:     %.2f ms\n", avgMs)
		fmt.Printf("   Max Latency:     %d ms\n", m.maxLatencyMs)
		fmt.Printf("   Throughput:      %.2f evaluations/sec\n", eps)
	}

	fmt.Println()
}
