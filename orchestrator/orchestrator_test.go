package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/suoja/executor"
	"github.com/yairfalse/suoja/intent"
	"github.com/yairfalse/suoja/providers/memory"
	"github.com/yairfalse/suoja/scope"
	"github.com/yairfalse/suoja/storage"
	"github.com/yairfalse/suoja/types"
	"github.com/yairfalse/suoja/wal"
)

func testPolicy() *intent.PolicyIntent {
	return &intent.PolicyIntent{
		Version:       "1",
		ClusterID:     "vhs",
		Mode:          intent.ModeEnabled,
		Action:        types.ActionBlock,
		ResourceTypes: []types.ResourceType{types.TypeCDNDistribution},
		RequiredTags: []intent.TagPair{
			{Key: "IS_CLUSTER_vhs", Value: "true"},
		},
	}
}

func testProvider() *memory.Provider {
	p := memory.New()
	p.SeedResources(
		types.ResourceRecord{
			ID: "cdn-in", Type: types.TypeCDNDistribution,
			Tags: map[string]string{"IS_CLUSTER_vhs": "true"}, AccountID: "111",
		},
		types.ResourceRecord{
			ID: "cdn-out", Type: types.TypeCDNDistribution,
			Tags: map[string]string{"IS_CLUSTER_other": "true"}, AccountID: "111",
		},
		types.ResourceRecord{
			ID: "lb-ignored", Type: types.TypeLoadBalancer,
			Tags: map[string]string{"IS_CLUSTER_vhs": "true"}, AccountID: "111",
		},
	)
	p.SeedEnrolled("cdn-stale")
	return p
}

func fastExecOptions() executor.Options {
	return executor.Options{
		MaxConcurrency: 2,
		MaxAttempts:    2,
		BaseBackoff:    time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func TestRunConverges(t *testing.T) {
	provider := testProvider()

	result, err := New(testPolicy(), provider).
		WithExecutorOptions(fastExecOptions()).
		Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 3, result.Evaluated)
	assert.Equal(t, 1, result.InScope)
	assert.Equal(t, 1, result.Enrolled, "cdn-in should be enrolled")
	assert.Equal(t, 1, result.Unenrolled, "cdn-stale should be unenrolled")
	assert.Equal(t, 0, result.ExitCode())

	assert.True(t, provider.IsEnrolled("cdn-in"))
	assert.False(t, provider.IsEnrolled("cdn-stale"))
	assert.Equal(t, types.ActionBlock, provider.ActionFor("cdn-in"))
}

func TestRunIsIdempotent(t *testing.T) {
	provider := testProvider()
	orch := New(testPolicy(), provider).WithExecutorOptions(fastExecOptions())

	_, err := orch.Run(context.Background())
	require.NoError(t, err)

	second, err := orch.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, second.Operations, "converged state must replan to nothing")
	assert.Equal(t, 1, second.NoopCount)
	assert.Equal(t, 0, second.Enrolled)
	assert.Equal(t, 0, second.Unenrolled)
}

func TestDryRunPlansWithoutMutating(t *testing.T) {
	provider := testProvider()

	result, err := New(testPolicy(), provider).
		WithExecutorOptions(fastExecOptions()).
		WithDryRun(true).
		Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, result.Operations, 2)
	assert.Nil(t, result.Report, "dry run must not execute")
	assert.False(t, provider.IsEnrolled("cdn-in"))
	assert.True(t, provider.IsEnrolled("cdn-stale"))
}

func TestDisabledModeTearsDown(t *testing.T) {
	provider := testProvider()
	policy := testPolicy()
	policy.Mode = intent.ModeDisabled
	policy.Action = ""

	result, err := New(policy, provider).
		WithExecutorOptions(fastExecOptions()).
		Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, result.Enrolled)
	assert.Equal(t, 1, result.Unenrolled)
	assert.False(t, provider.IsEnrolled("cdn-stale"))
	assert.False(t, provider.IsEnrolled("cdn-in"), "disabled mode must not enroll anything")
}

func TestIgnoredModeDoesNothing(t *testing.T) {
	provider := testProvider()
	policy := testPolicy()
	policy.Mode = intent.ModeIgnored

	result, err := New(policy, provider).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, result.Operations)
	assert.Equal(t, 0, result.Evaluated, "ignored mode must not list inventory")
	assert.True(t, provider.IsEnrolled("cdn-stale"), "ignored mode must not touch enrollment")
}

func TestInventoryFailureAbortsBeforeMutation(t *testing.T) {
	provider := testProvider()
	provider.FailListings(types.KindInventoryUnavailable)

	_, err := New(testPolicy(), provider).
		WithExecutorOptions(fastExecOptions()).
		Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, types.KindInventoryUnavailable, types.KindOf(err))
	assert.True(t, provider.IsEnrolled("cdn-stale"), "no mutation after listing failure")
}

func TestPartialFailureSurfacesInReport(t *testing.T) {
	provider := testProvider()
	provider.FailWith("cdn-in", types.KindPermissionDenied)

	result, err := New(testPolicy(), provider).
		WithExecutorOptions(fastExecOptions()).
		Run(context.Background())
	require.NoError(t, err, "per-operation failures do not fail the run itself")

	require.NotNil(t, result.Report)
	assert.Equal(t, types.KindPermissionDenied, result.Report.Failed["cdn-in"])
	assert.Equal(t, 1, result.ExitCode())
	assert.Equal(t, 1, result.Unenrolled, "siblings still converge")
}

func TestExemptionsNarrowScope(t *testing.T) {
	provider := memory.New()
	provider.SeedResources(
		types.ResourceRecord{
			ID: "cdn-kept", Type: types.TypeCDNDistribution,
			Tags: map[string]string{"IS_CLUSTER_vhs": "true"}, AccountID: "111",
		},
		types.ResourceRecord{
			ID: "cdn-exempt", Type: types.TypeCDNDistribution,
			Tags: map[string]string{"IS_CLUSTER_vhs": "true", "SHIELD_EXEMPT": "true"},
			AccountID: "111",
		},
	)

	policyCode := `package suoja

import rego.v1

exempt if input.resource.tags["SHIELD_EXEMPT"] == "true"
`
	exemptions, err := scope.CompileExemptionPolicy(context.Background(), "shield-exempt", policyCode)
	require.NoError(t, err)

	result, err := New(testPolicy(), provider).
		WithExecutorOptions(fastExecOptions()).
		WithExemptions(exemptions).
		Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.InScope)
	assert.True(t, provider.IsEnrolled("cdn-kept"))
	assert.False(t, provider.IsEnrolled("cdn-exempt"))
}

func TestRunPersistsHistory(t *testing.T) {
	store, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	provider := testProvider()
	result, err := New(testPolicy(), provider).
		WithExecutorOptions(fastExecOptions()).
		WithStore(store).
		Run(context.Background())
	require.NoError(t, err)

	records, err := store.LastRuns(1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, result.RunID, records[0].RunID)
	assert.Equal(t, "vhs", records[0].ClusterID)

	enrolled, known := store.LastKnownEnrollment("cdn-in")
	assert.True(t, known)
	assert.True(t, enrolled)
}

func TestRunWritesAuditLog(t *testing.T) {
	dir := t.TempDir()
	auditLog, err := wal.Open(dir, "test-run")
	require.NoError(t, err)

	provider := testProvider()
	_, err = New(testPolicy(), provider).
		WithExecutorOptions(fastExecOptions()).
		WithWAL(auditLog).
		Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, auditLog.Close())

	entries, err := wal.ReadAll(dir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	byType := map[wal.EntryType]int{}
	for _, entry := range entries {
		byType[entry.Type]++
	}
	assert.Equal(t, 1, byType[wal.EntryObserved])
	assert.Equal(t, 2, byType[wal.EntryPlanned])
	assert.Equal(t, 2, byType[wal.EntryApplied])
}
