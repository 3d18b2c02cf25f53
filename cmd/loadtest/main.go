// Command loadtest drives GET /api/v1/search with a fixed mix of literary
// queries and reports throughput, latency percentiles and the share of
// zero-result answers.
//
// Usage:
//
//	go run ./cmd/loadtest [-url http://localhost:7003] [-concurrency 10] [-duration 30s] [-rps 0]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"maps"
	"math"
	"net/http"
	"net/url"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// queries mixes common words, rare words and filtered searches.
var queries = []url.Values{
	{"q": {"truth universally acknowledged"}},
	{"q": {"whale"}},
	{"q": {"Whale ISHMAEL"}},
	{"q": {"pride prejudice"}, "author": {"Jane Austen"}},
	{"q": {"monster creator"}, "language": {"en"}},
	{"q": {"captain"}, "year": {"1870"}},
	{"q": {"liberté égalité"}, "language": {"fr"}},
	{"q": {"love"}},
	{"q": {"the"}},
	{"q": {"xyzzyplugh"}},
}

type Stats struct {
	total       atomic.Int64
	errors      atomic.Int64
	zeroResults atomic.Int64
	mu          sync.Mutex
	latencies   []time.Duration
	statusCodes map[int]int64
}

func (s *Stats) record(d time.Duration, status int, count int, err error) {
	s.total.Add(1)
	if err != nil {
		s.errors.Add(1)
		return
	}
	if status != http.StatusOK {
		s.errors.Add(1)
	} else if count == 0 {
		s.zeroResults.Add(1)
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.statusCodes[status]++
	s.mu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:7003", "base URL of the search or gateway service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	rps := flag.Float64("rps", 0, "overall request rate limit; 0 means unlimited")
	flag.Parse()

	fmt.Println("=== Book Search Load Test ===")
	fmt.Printf("Target:      %s\n", *baseURL)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Duration:    %s\n", *duration)
	fmt.Printf("Queries:     %d\n\n", len(queries))

	stats := &Stats{latencies: make([]time.Duration, 0, 100000), statusCodes: make(map[int]int64)}
	if err := run(*baseURL, *concurrency, *duration, *rps, stats); err != nil {
		fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}
	if !report(stats, *duration) {
		os.Exit(1)
	}
}

func run(baseURL string, concurrency int, duration time.Duration, rps float64, stats *Stats) error {
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        concurrency * 2,
			MaxIdleConnsPerHost: concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for w := range concurrency {
		g.Go(func() error {
			for i := w; ; i++ {
				if err := limiter.Wait(ctx); err != nil {
					return nil
				}
				target := baseURL + "/api/v1/search?" + queries[i%len(queries)].Encode()
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
				if err != nil {
					return fmt.Errorf("building request: %w", err)
				}
				start := time.Now()
				resp, err := client.Do(req)
				if ctx.Err() != nil {
					return nil
				}
				if err != nil {
					stats.record(time.Since(start), 0, 0, err)
					continue
				}
				var body struct {
					Count int `json:"count"`
				}
				json.NewDecoder(resp.Body).Decode(&body)
				resp.Body.Close()
				stats.record(time.Since(start), resp.StatusCode, body.Count, nil)
			}
		})
	}
	return g.Wait()
}

func report(stats *Stats, duration time.Duration) bool {
	total := stats.total.Load()
	errs := stats.errors.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Errors:          %d\n", errs)
	if total == 0 {
		fmt.Println("\nWARNING: No requests completed. Is the service running?")
		return false
	}
	fmt.Printf("Error Rate:      %.2f%%\n", float64(errs)/float64(total)*100)
	fmt.Printf("Zero Results:    %.2f%%\n", float64(stats.zeroResults.Load())/float64(total)*100)
	fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())

	stats.mu.Lock()
	defer stats.mu.Unlock()
	latencies := slices.Clone(stats.latencies)
	slices.Sort(latencies)
	if len(latencies) > 0 {
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		fmt.Println("\n=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", sum/time.Duration(len(latencies)))
		for _, p := range []float64{50, 90, 95, 99} {
			fmt.Printf("P%-5.0f %s\n", p, percentile(latencies, p))
		}
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
	}

	fmt.Println("\n=== Status Codes ===")
	for _, code := range slices.Sorted(maps.Keys(stats.statusCodes)) {
		fmt.Printf("  %d: %d\n", code, stats.statusCodes[code])
	}
	return true
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
