package results

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryAppendAndLoad(t *testing.T) {
	store, err := OpenHistoryAt(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	entry := HistoryEntry{
		SweepID:   "test-sweep-1",
		Timestamp: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		Kind:      "bandwidth",
		Records: []RunRecord{
			{Kind: "zk", Name: "bandwidth-10", RuntimeMs: 120.5},
			{Kind: "zk", Name: "bandwidth-1000", Error: "boom"},
		},
	}
	require.NoError(t, store.Append(entry))

	loaded, err := store.Load("test-sweep-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, entry.SweepID, loaded.SweepID)
	assert.Equal(t, entry.Kind, loaded.Kind)
	require.Len(t, loaded.Records, 2)
	assert.Equal(t, 120.5, loaded.Records[0].RuntimeMs)
	assert.Equal(t, "boom", loaded.Records[1].Error)
}

func TestHistoryLoadMissing(t *testing.T) {
	store, err := OpenHistoryAt(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	loaded, err := store.Load("never-stored")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}
