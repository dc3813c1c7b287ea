package sweep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attestor-bench/internal/protocol"
	"attestor-bench/internal/results"
)

func TestCollectorMapsKnownPhases(t *testing.T) {
	var rec results.RunRecord
	c := NewStepCollector(&rec)

	c.OnStep(protocol.StepEvent{Name: protocol.StepHandshakeDone, DurationMs: 312.4})
	c.OnStep(protocol.StepEvent{Name: protocol.StepOnlineDone, DurationMs: 845.0})
	c.OnStep(protocol.StepEvent{Name: protocol.StepProofsDone, DurationMs: 2200.5})
	c.OnStep(protocol.StepEvent{Name: protocol.StepProofSize, Bytes: 32768})
	c.OnStep(protocol.StepEvent{Name: protocol.StepAttestorVerifyDone, DurationMs: 98.7})

	require.NotNil(t, rec.TLSHandshakeMs)
	assert.Equal(t, 312.4, *rec.TLSHandshakeMs)
	require.NotNil(t, rec.OnlineMs)
	assert.Equal(t, 845.0, *rec.OnlineMs)
	require.NotNil(t, rec.ZKGenerateMs)
	assert.Equal(t, 2200.5, *rec.ZKGenerateMs)
	require.NotNil(t, rec.ZKProofBytes)
	assert.Equal(t, int64(32768), *rec.ZKProofBytes)
	require.NotNil(t, rec.ZKVerifyAttestorMs)
	assert.Equal(t, 98.7, *rec.ZKVerifyAttestorMs)
}

func TestCollectorAccumulatesBatches(t *testing.T) {
	var rec results.RunRecord
	c := NewStepCollector(&rec)

	c.OnStep(protocol.StepEvent{Name: protocol.StepProofBatchDone, Count: 2})
	c.OnStep(protocol.StepEvent{Name: protocol.StepProofBatchDone, Count: 3})
	c.OnStep(protocol.StepEvent{Name: protocol.StepProofBatchDone, Count: 1})

	require.NotNil(t, rec.ZKProofTotal)
	assert.Equal(t, 6, *rec.ZKProofTotal)
}

func TestCollectorIgnoresUnknownPhases(t *testing.T) {
	var rec results.RunRecord
	c := NewStepCollector(&rec)

	// Forward compatibility: phases from newer collaborator builds must
	// be silently dropped, never crash the harness.
	c.OnStep(protocol.StepEvent{Name: "quantum-resistance-check-done", DurationMs: 9000})
	c.OnStep(protocol.StepEvent{Name: "", DurationMs: 1})

	assert.False(t, rec.HasPhaseTimings())
}
