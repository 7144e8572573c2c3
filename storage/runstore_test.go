package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/suoja/executor"
	"github.com/yairfalse/suoja/types"
)

func testRecord(runID string) RunRecord {
	return RunRecord{
		RunID:     runID,
		ClusterID: "vhs",
		Mode:      "ENABLED",
		StartedAt: time.Now(),
		Evaluated: 3,
		InScope:   2,
		Operations: []types.ReconcileOperation{
			{Kind: types.OpEnroll, ResourceID: "cdn-1"},
			{Kind: types.OpUnenroll, ResourceID: "lb-9"},
		},
		Report: &executor.Report{
			Applied: []string{"cdn-1", "lb-9"},
			Failed:  map[string]types.ErrorKind{},
		},
	}
}

func TestSaveRunAndLastRuns(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	for i := 1; i <= 5; i++ {
		rev, err := store.SaveRun(testRecord(fmt.Sprintf("run-%d", i)))
		require.NoError(t, err)
		assert.Equal(t, int64(i), rev)
	}

	records, err := store.LastRuns(3)
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Newest first
	assert.Equal(t, "run-5", records[0].RunID)
	assert.Equal(t, "run-4", records[1].RunID)
	assert.Equal(t, "run-3", records[2].RunID)
}

func TestLastKnownEnrollment(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	_, err = store.SaveRun(testRecord("run-1"))
	require.NoError(t, err)

	enrolled, known := store.LastKnownEnrollment("cdn-1")
	assert.True(t, known)
	assert.True(t, enrolled, "enroll op should record enrolled=true")

	enrolled, known = store.LastKnownEnrollment("lb-9")
	assert.True(t, known)
	assert.False(t, enrolled, "unenroll op should record enrolled=false")

	_, known = store.LastKnownEnrollment("ghost")
	assert.False(t, known)
}

func TestDryRunLeavesEnrollmentIndexAlone(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	record := testRecord("run-dry")
	record.DryRun = true
	_, err = store.SaveRun(record)
	require.NoError(t, err)

	_, known := store.LastKnownEnrollment("cdn-1")
	assert.False(t, known, "dry runs must not touch enrollment state")

	records, err := store.LastRuns(1)
	require.NoError(t, err)
	require.Len(t, records, 1, "dry runs are still recorded")
}

func TestReopenRestoresState(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(dir)
	require.NoError(t, err)
	_, err = store.SaveRun(testRecord("run-1"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	assert.Equal(t, int64(1), reopened.CurrentRevision())

	enrolled, known := reopened.LastKnownEnrollment("cdn-1")
	assert.True(t, known)
	assert.True(t, enrolled)

	states := reopened.KnownResources()
	require.Len(t, states, 2)
	// btree walks in resource ID order
	assert.Equal(t, "cdn-1", states[0].ResourceID)
	assert.Equal(t, "lb-9", states[1].ResourceID)
}

func TestLastRunsEmptyStore(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	records, err := store.LastRuns(10)
	require.NoError(t, err)
	assert.Empty(t, records)
}
