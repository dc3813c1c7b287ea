package sweep

import (
	"attestor-bench/internal/protocol"
	"attestor-bench/internal/results"
)

// StepCollector is a passive observer attached to one protocol round. It
// maps each known phase event onto the corresponding RunRecord field and
// ignores everything else: newer collaborator builds report phases this
// harness does not understand yet, and that must never fail a run.
type StepCollector struct {
	record *results.RunRecord
}

func NewStepCollector(record *results.RunRecord) *StepCollector {
	return &StepCollector{record: record}
}

// OnStep records one phase-completion event. Batch-completion events
// accumulate; a round may report several proof batches.
func (c *StepCollector) OnStep(ev protocol.StepEvent) {
	switch ev.Name {
	case protocol.StepHandshakeDone:
		c.record.TLSHandshakeMs = results.Float64Ptr(ev.DurationMs)
	case protocol.StepOnlineDone:
		c.record.OnlineMs = results.Float64Ptr(ev.DurationMs)
	case protocol.StepProofBatchDone:
		if c.record.ZKProofTotal == nil {
			c.record.ZKProofTotal = results.IntPtr(0)
		}
		*c.record.ZKProofTotal += ev.Count
	case protocol.StepProofsDone:
		c.record.ZKGenerateMs = results.Float64Ptr(ev.DurationMs)
	case protocol.StepProofSize:
		c.record.ZKProofBytes = results.Int64Ptr(ev.Bytes)
	case protocol.StepAttestorVerifyDone:
		c.record.ZKVerifyAttestorMs = results.Float64Ptr(ev.DurationMs)
	}
}
