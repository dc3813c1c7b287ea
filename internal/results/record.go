// Package results accumulates per-run measurements, rounds them for
// deterministic output, and exports them as CSV plus a human summary.
package results

import (
	"math"
)

// RunRecord is the measurement of one protocol round under one shaped
// network condition. The phase fields are pointers because a failed run
// records an error and no phase timings at all; an absent value must stay
// distinguishable from a measured zero. Byte counts are always populated
// (falling back to the configured nominal sizes when counter reads fail)
// so those columns never have holes.
type RunRecord struct {
	Kind          string  `json:"kind"`
	Name          string  `json:"name"`
	BandwidthMbps float64 `json:"bandwidth_mbps"`
	LatencyMs     float64 `json:"latency_ms"`
	RequestSize   int64   `json:"request_size"`
	ResponseSize  int64   `json:"response_size"`
	RuntimeMs     float64 `json:"runtime_ms"`
	SendBytes     int64   `json:"send_bytes"`
	RecvBytes     int64   `json:"recv_bytes"`
	MemoryRSSMB   float64 `json:"memory_rss_mb"`

	TLSHandshakeMs     *float64 `json:"tls_handshake_ms,omitempty"`
	OnlineMs           *float64 `json:"online_ms,omitempty"`
	ZKProofTotal       *int     `json:"zk_proof_total,omitempty"`
	ZKGenerateMs       *float64 `json:"zk_generate_ms,omitempty"`
	ZKProofBytes       *int64   `json:"zk_proof_bytes,omitempty"`
	ZKVerifyAttestorMs *float64 `json:"zk_verify_attestor_ms,omitempty"`
	ThirdPartyVerifyMs *float64 `json:"third_party_verify_ms,omitempty"`

	Error string `json:"error,omitempty"`
}

// HasPhaseTimings reports whether any phase metric was captured.
func (r *RunRecord) HasPhaseTimings() bool {
	return r.TLSHandshakeMs != nil ||
		r.OnlineMs != nil ||
		r.ZKProofTotal != nil ||
		r.ZKGenerateMs != nil ||
		r.ZKProofBytes != nil ||
		r.ZKVerifyAttestorMs != nil ||
		r.ThirdPartyVerifyMs != nil
}

// ClearPhases drops every phase metric. A failed run keeps its error,
// runtime and byte counts but no phase timings, even if some phases
// completed before the failure.
func (r *RunRecord) ClearPhases() {
	r.TLSHandshakeMs = nil
	r.OnlineMs = nil
	r.ZKProofTotal = nil
	r.ZKGenerateMs = nil
	r.ZKProofBytes = nil
	r.ZKVerifyAttestorMs = nil
	r.ThirdPartyVerifyMs = nil
}

// Finalize rounds every duration and byte-derived float to two decimals.
// Absent phase values stay absent. Finalize is idempotent: re-rounding an
// already rounded record changes nothing.
func (r *RunRecord) Finalize() {
	r.BandwidthMbps = Round2(r.BandwidthMbps)
	r.LatencyMs = Round2(r.LatencyMs)
	r.RuntimeMs = Round2(r.RuntimeMs)
	r.MemoryRSSMB = Round2(r.MemoryRSSMB)

	roundPtr(r.TLSHandshakeMs)
	roundPtr(r.OnlineMs)
	roundPtr(r.ZKGenerateMs)
	roundPtr(r.ZKVerifyAttestorMs)
	roundPtr(r.ThirdPartyVerifyMs)
}

func roundPtr(p *float64) {
	if p != nil {
		*p = Round2(*p)
	}
}

// Round2 rounds to two decimal places. Every exported or logged float
// passes through here so output is deterministic and comparable across
// sweeps.
func Round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// Float64Ptr returns a pointer to f. Phase setters use it to distinguish
// "measured" from "absent".
func Float64Ptr(f float64) *float64 { return &f }

// IntPtr returns a pointer to n.
func IntPtr(n int) *int { return &n }

// Int64Ptr returns a pointer to n.
func Int64Ptr(n int64) *int64 { return &n }
