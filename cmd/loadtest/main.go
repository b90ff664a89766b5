// Command loadtest drives the ingest API with generated documents. A share
// of the documents carry fields the mapping has not seen yet, so the run
// also exercises concurrent dynamic mapping updates.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	BaseURL      string
	Types        []string
	Concurrency  int
	Duration     time.Duration
	NewFieldRate float64
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the ingest API")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	newFields := flag.Float64("new-field-rate", 0.05, "fraction of documents that add a previously unseen field")
	flag.Parse()

	cfg := Config{
		BaseURL:      *baseURL,
		Types:        []string{"article", "event", "profile"},
		Concurrency:  *concurrency,
		Duration:     *duration,
		NewFieldRate: *newFields,
	}

	fmt.Println("=== Ingest Load Test ===")
	fmt.Printf("Target:         %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency:    %d\n", cfg.Concurrency)
	fmt.Printf("Duration:       %s\n", cfg.Duration)
	fmt.Printf("New field rate: %.2f\n", cfg.NewFieldRate)
	fmt.Println()

	stats := runLoadTest(cfg)
	if !printReport(stats, cfg.Duration) {
		os.Exit(1)
	}
}

var words = []string{
	"distributed", "mapping", "dynamic", "template", "nested",
	"object", "keyword", "analyzer", "shard", "segment",
	"posting", "document", "update", "version", "cluster",
}

// generator builds random documents. It is not safe for concurrent use;
// each worker owns one.
type generator struct {
	rng     *rand.Rand
	worker  int
	seq     int
	newRate float64
}

func newGenerator(worker int, seed int64, newRate float64) *generator {
	return &generator{rng: rand.New(rand.NewSource(seed)), worker: worker, newRate: newRate}
}

func (g *generator) sentence(n int) string {
	var buf bytes.Buffer
	for i := 0; i < n; i++ {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(words[g.rng.Intn(len(words))])
	}
	return buf.String()
}

func (g *generator) document(docType string) map[string]any {
	g.seq++
	doc := map[string]any{
		"title":      g.sentence(4),
		"body":       g.sentence(30),
		"author_id":  fmt.Sprintf("u%d", g.rng.Intn(1000)),
		"views":      g.rng.Intn(100000),
		"score":      g.rng.Float64() * 10,
		"published":  g.rng.Intn(2) == 1,
		"created_at": time.Now().Add(-time.Duration(g.rng.Intn(86400)) * time.Second).UTC().Format(time.RFC3339),
		"tags":       []string{words[g.rng.Intn(len(words))], words[g.rng.Intn(len(words))]},
		"stats":      map[string]any{"likes": g.rng.Intn(500), "shares": g.rng.Intn(50)},
	}
	switch docType {
	case "event":
		doc["location"] = map[string]any{"lat": g.rng.Float64()*180 - 90, "lon": g.rng.Float64()*360 - 180}
	case "profile":
		doc["addresses"] = []map[string]any{{"city": g.sentence(1), "zip": fmt.Sprintf("%05d", g.rng.Intn(99999))}}
	}
	if g.rng.Float64() < g.newRate {
		doc[fmt.Sprintf("extra_w%d_%d", g.worker, g.seq)] = g.sentence(2)
	}
	return doc
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	seed := time.Now().UnixNano()
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			gen := newGenerator(workerID, seed+int64(workerID), cfg.NewFieldRate)

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				docType := cfg.Types[gen.seq%len(cfg.Types)]
				body, err := json.Marshal(gen.document(docType))
				if err != nil {
					stats.RecordRequest(0, 0, err)
					continue
				}

				start := time.Now()
				status, err := post(ctx, client, fmt.Sprintf("%s/documents/%s", cfg.BaseURL, docType), body)
				if ctx.Err() != nil {
					return
				}
				stats.RecordRequest(time.Since(start), status, err)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func post(ctx context.Context, client *http.Client, target string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func printReport(stats *Stats, duration time.Duration) bool {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Accepted:        %d\n", success)
	fmt.Printf("Errors:          %d\n", errors)

	if total > 0 {
		errorRate := float64(errors) / float64(total) * 100
		fmt.Printf("Error Rate:      %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Printf("Requests/sec:    %.2f\n", rps)
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P90:    %s\n", percentile(latencies, 90))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, stats.statusCodes[code].Load())
	}
	stats.statusCodesMu.Unlock()

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the indexer running?")
		return false
	}
	return true
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
