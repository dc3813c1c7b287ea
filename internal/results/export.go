package results

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// CSVHeader is the column contract downstream plotting depends on.
// Order is fixed; changing it breaks every consumer.
var CSVHeader = []string{
	"kind",
	"name",
	"bandwidth(Mbps)",
	"latency(ms)",
	"request_size(B)",
	"response_size(B)",
	"runtime(ms)",
	"send_bytes(B)",
	"recv_bytes(B)",
	"memory_rss(MB)",
	"tls_handshake_ms",
	"online_ms",
	"zk_proof_total",
	"zk_generate_ms",
	"zk_proof_bytes",
	"zk_verify_attestor_ms",
	"third_party_verify_ms",
	"error",
}

// ExportCSV writes one row per record, in execution order, to path.
// Unset optional fields export as empty strings so failed runs stay
// visible as rows rather than disappearing.
func ExportCSV(records []RunRecord, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create output dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write(CSVHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i := range records {
		if err := w.Write(csvRow(&records[i])); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	w.Flush()
	return w.Error()
}

func csvRow(r *RunRecord) []string {
	return []string{
		r.Kind,
		r.Name,
		formatFloat(r.BandwidthMbps),
		formatFloat(r.LatencyMs),
		strconv.FormatInt(r.RequestSize, 10),
		strconv.FormatInt(r.ResponseSize, 10),
		formatFloat(r.RuntimeMs),
		strconv.FormatInt(r.SendBytes, 10),
		strconv.FormatInt(r.RecvBytes, 10),
		formatFloat(r.MemoryRSSMB),
		optionalFloat(r.TLSHandshakeMs),
		optionalFloat(r.OnlineMs),
		optionalInt(r.ZKProofTotal),
		optionalFloat(r.ZKGenerateMs),
		optionalInt64(r.ZKProofBytes),
		optionalFloat(r.ZKVerifyAttestorMs),
		optionalFloat(r.ThirdPartyVerifyMs),
		r.Error,
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func optionalFloat(p *float64) string {
	if p == nil {
		return ""
	}
	return formatFloat(*p)
}

func optionalInt(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}

func optionalInt64(p *int64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatInt(*p, 10)
}
