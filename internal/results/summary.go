package results

import (
	"fmt"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// PointStats summarizes runtime across the repetitions of one parameter
// value.
type PointStats struct {
	Label  string
	Runs   int
	Failed int
	AvgMs  float64
	P50Ms  float64
	P95Ms  float64
	MaxMs  float64
}

// AggregatePoints groups records by run label and computes runtime
// percentiles per parameter value. Runtimes are recorded in microseconds
// into an HdrHistogram and reported in milliseconds. Failed runs count
// toward the group but contribute no runtime sample.
func AggregatePoints(records []RunRecord) []PointStats {
	order := make([]string, 0)
	hists := make(map[string]*hdrhistogram.Histogram)
	failed := make(map[string]int)
	runs := make(map[string]int)

	for i := range records {
		r := &records[i]
		if _, ok := hists[r.Name]; !ok {
			// 1us to 10min, 3 significant figures
			hists[r.Name] = hdrhistogram.New(1, int64(10*time.Minute/time.Microsecond), 3)
			order = append(order, r.Name)
		}
		runs[r.Name]++
		if r.Error != "" {
			failed[r.Name]++
			continue
		}
		sample := int64(r.RuntimeMs * 1000)
		if sample < 1 {
			// RecordValue rejects values below the 1us low bound; a
			// degenerate run still contributes a sample.
			sample = 1
		}
		_ = hists[r.Name].RecordValue(sample)
	}

	stats := make([]PointStats, 0, len(order))
	for _, name := range order {
		h := hists[name]
		ps := PointStats{
			Label:  name,
			Runs:   runs[name],
			Failed: failed[name],
		}
		if h.TotalCount() > 0 {
			ps.AvgMs = Round2(h.Mean() / 1000)
			ps.P50Ms = Round2(float64(h.ValueAtQuantile(50)) / 1000)
			ps.P95Ms = Round2(float64(h.ValueAtQuantile(95)) / 1000)
			ps.MaxMs = Round2(float64(h.Max()) / 1000)
		}
		stats = append(stats, ps)
	}
	return stats
}

// PrintSummary renders the per-run table and the per-point rollup for
// interactive inspection. A convenience view only: the CSV export is the
// contract, this is for eyeballs.
func PrintSummary(records []RunRecord) {
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                        SWEEP SUMMARY                         ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Println()

	fmt.Println("  Run                   BW(Mbps)  Lat(ms)  Runtime(ms)     Sent     Recvd  Status")
	fmt.Println("  --------------------  --------  -------  -----------  -------  --------  ------")

	for i := range records {
		r := &records[i]
		status := "ok"
		if r.Error != "" {
			status = "FAILED"
		}
		fmt.Printf("  %-20s  %8.2f  %7.2f  %11.2f  %7d  %8d  %s\n",
			truncate(r.Name, 20),
			r.BandwidthMbps,
			r.LatencyMs,
			r.RuntimeMs,
			r.SendBytes,
			r.RecvBytes,
			status,
		)
		if r.Error != "" {
			fmt.Printf("          error: %s\n", truncate(r.Error, 70))
		}
	}

	points := AggregatePoints(records)
	if len(points) == 0 {
		return
	}

	fmt.Println()
	fmt.Println("  Per-point runtime")
	fmt.Println()
	fmt.Println("  Point                 Runs      Avg      P50      P95      Max  Failed")
	fmt.Println("  --------------------  ----  -------  -------  -------  -------  ------")
	for _, p := range points {
		fmt.Printf("  %-20s  %4d  %7.2f  %7.2f  %7.2f  %7.2f  %6d\n",
			truncate(p.Label, 20), p.Runs, p.AvgMs, p.P50Ms, p.P95Ms, p.MaxMs, p.Failed)
	}
	fmt.Println()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
