package results

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregatePointsGroupsByLabel(t *testing.T) {
	records := []RunRecord{
		{Name: "bandwidth-10", RuntimeMs: 100},
		{Name: "bandwidth-10", RuntimeMs: 200},
		{Name: "bandwidth-1000", RuntimeMs: 50},
	}

	points := AggregatePoints(records)
	require.Len(t, points, 2)

	assert.Equal(t, "bandwidth-10", points[0].Label)
	assert.Equal(t, 2, points[0].Runs)
	assert.Zero(t, points[0].Failed)
	assert.InDelta(t, 150, points[0].AvgMs, 1)

	assert.Equal(t, "bandwidth-1000", points[1].Label)
	assert.Equal(t, 1, points[1].Runs)
}

func TestAggregatePointsCountsFailures(t *testing.T) {
	records := []RunRecord{
		{Name: "latency-25", RuntimeMs: 100},
		{Name: "latency-25", RuntimeMs: 300, Error: "timeout"},
		{Name: "latency-25", RuntimeMs: 120},
	}

	points := AggregatePoints(records)
	require.Len(t, points, 1)

	// Failed runs count toward the group but contribute no sample.
	assert.Equal(t, 3, points[0].Runs)
	assert.Equal(t, 1, points[0].Failed)
	assert.InDelta(t, 110, points[0].AvgMs, 1)
}

func TestAggregatePointsSamplesZeroRuntimes(t *testing.T) {
	records := []RunRecord{
		{Name: "payload-256", RuntimeMs: 0},
		{Name: "payload-256", RuntimeMs: 100},
	}

	points := AggregatePoints(records)
	require.Len(t, points, 1)

	// A zero-runtime success still contributes a sample; dropping it
	// would report the average of the remaining run (100) instead.
	assert.Equal(t, 2, points[0].Runs)
	assert.Zero(t, points[0].Failed)
	assert.InDelta(t, 50, points[0].AvgMs, 1)
}

func TestAggregatePointsEmpty(t *testing.T) {
	assert.Empty(t, AggregatePoints(nil))
}

func TestAggregatePointsPreservesAxisOrder(t *testing.T) {
	records := []RunRecord{
		{Name: "payload-4096", RuntimeMs: 10},
		{Name: "payload-256", RuntimeMs: 10},
		{Name: "payload-1024", RuntimeMs: 10},
	}
	points := AggregatePoints(records)
	require.Len(t, points, 3)
	assert.Equal(t, "payload-4096", points[0].Label)
	assert.Equal(t, "payload-256", points[1].Label)
	assert.Equal(t, "payload-1024", points[2].Label)
}
