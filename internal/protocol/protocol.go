// Package protocol defines the boundary to the attestation collaborator:
// the round-execution contract, the phase events it reports, and the
// lifecycle of the external endpoints (attestor and mock target) the
// rounds run against. Everything behind this boundary is opaque to the
// harness; it consumes only phase events and a terminal success/error.
package protocol

import (
	"context"
	"fmt"
	"strings"
)

// Phase names reported by the collaborator. Unknown names must be
// tolerated by consumers: newer collaborator builds report phases this
// harness does not yet understand.
const (
	StepHandshakeDone      = "tls-handshake-done"
	StepOnlineDone         = "online-done"
	StepProofBatchDone     = "zk-proofs-batch-done"
	StepProofsDone         = "zk-proofs-done"
	StepProofSize          = "zk-proof-size"
	StepAttestorVerifyDone = "attestor-verify-done"
)

// StepEvent is one phase-completion notification. Exactly one of the
// payload fields is meaningful per phase: a duration for the timing
// phases, a count for batch completion, a byte length for proof size.
type StepEvent struct {
	Name       string  `json:"name"`
	DurationMs float64 `json:"duration_ms,omitempty"`
	Count      int     `json:"count,omitempty"`
	Bytes      int64   `json:"bytes,omitempty"`
}

// RoundSpec describes one protocol round to execute.
type RoundSpec struct {
	AttestorURL  string
	TargetURL    string
	RequestSize  int64
	ResponseSize int64
	Version      string
	Engine       string
}

// RoundResult is the terminal outcome of one round. Phase timings arrive
// through step events, not here.
type RoundResult struct {
	ProofBytes int64  `json:"proof_bytes"`
	Receipt    []byte `json:"receipt,omitempty"`
}

// RoundRunner executes protocol rounds. The harness owns nothing inside
// Run: it attaches onStep as a passive observer and waits for the result.
type RoundRunner interface {
	Run(ctx context.Context, spec RoundSpec, onStep func(StepEvent)) (*RoundResult, error)
	// Verify performs third-party verification of a completed round.
	// The orchestrator times this call itself; no step event covers it.
	Verify(ctx context.Context, result *RoundResult) error
}

// ProtocolError marks a failed round. The run is recorded with the error
// text and no phase metrics; the sweep continues.
type ProtocolError struct {
	Stage string
	Err   error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol %s: %v", e.Stage, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// benignTerminationMarkers are the collaborator's "normal closure"
// sentinels. The attestor tears the session down with an empty error code
// once the exchange finishes; that termination is part of a successful
// round, not a failure.
var benignTerminationMarkers = []string{
	"terminated with no error",
	"connection terminated (code: none)",
}

// IsBenignTermination reports whether err is the collaborator's normal
// session-closure sentinel. All other termination errors are genuine.
func IsBenignTermination(err error) bool {
	if err == nil {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range benignTerminationMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
