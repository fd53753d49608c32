// Package simulation replays the tagged rows workload against a row store
// and its column indexes, recording write and query latencies.
package simulation

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Stats holds latency measurements for a set of operations. Workers record
// into it concurrently.
type Stats struct {
	mu        sync.Mutex
	latencies []time.Duration
}

// NewStats creates a Stats object
func NewStats() *Stats {
	return &Stats{
		latencies: make([]time.Duration, 0, 1000),
	}
}

// Record adds one measurement (the latency) to the stats
func (s *Stats) Record(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latencies = append(s.latencies, d)
}

// Len returns how many measurements we have
func (s *Stats) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.latencies)
}

// Compute returns the p50, p95 and p99 latencies and the throughput of
// totalOps operations over totalTime.
func (s *Stats) Compute(totalOps int, totalTime time.Duration) (p50, p95, p99 time.Duration, opsSec float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.latencies)
	if n == 0 {
		return 0, 0, 0, 0
	}

	sort.Slice(s.latencies, func(i, j int) bool {
		return s.latencies[i] < s.latencies[j]
	})

	percentileIndex := func(p float64) int {
		if p <= 0 {
			return 0
		}
		idx := int(float64(n)*p) - 1
		if idx < 0 {
			return 0
		}
		if idx >= n {
			return n - 1
		}
		return idx
	}

	p50 = s.latencies[percentileIndex(0.50)]
	p95 = s.latencies[percentileIndex(0.95)]
	p99 = s.latencies[percentileIndex(0.99)]

	if totalTime > 0 {
		opsSec = float64(totalOps) / totalTime.Seconds()
	}
	return p50, p95, p99, opsSec
}

// ResultRecord holds the stats of one phase of a run.
type ResultRecord struct {
	TestName  string
	RunNumber int
	Phase     string
	OpsCount  int
	OpsSec    float64
	P50Us     float64 // p50 in microseconds
	P95Us     float64 // p95 in microseconds
	P99Us     float64 // p99 in microseconds
	TotalTime time.Duration
}

// WriteCSV writes a list of ResultRecords to a CSV file.
func WriteCSV(filename string, records []ResultRecord) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)

	header := []string{
		"test_name", "run_number", "phase",
		"ops_count", "ops_sec",
		"p50_us", "p95_us", "p99_us",
		"total_time_ms",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, rec := range records {
		row := []string{
			rec.TestName,
			strconv.Itoa(rec.RunNumber),
			rec.Phase,
			strconv.Itoa(rec.OpsCount),
			fmt.Sprintf("%.2f", rec.OpsSec),
			fmt.Sprintf("%.2f", rec.P50Us),
			fmt.Sprintf("%.2f", rec.P95Us),
			fmt.Sprintf("%.2f", rec.P99Us),
			fmt.Sprintf("%d", rec.TotalTime.Milliseconds()),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// record summarizes stats of ops operations taking total.
func record(test string, run int, phase string, stats *Stats, ops int, total time.Duration) ResultRecord {
	p50, p95, p99, opsSec := stats.Compute(ops, total)
	return ResultRecord{
		TestName:  test,
		RunNumber: run,
		Phase:     phase,
		OpsCount:  ops,
		OpsSec:    opsSec,
		P50Us:     float64(p50.Microseconds()),
		P95Us:     float64(p95.Microseconds()),
		P99Us:     float64(p99.Microseconds()),
		TotalTime: total,
	}
}
