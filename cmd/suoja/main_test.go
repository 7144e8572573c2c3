package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/suoja/providers/memory"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

const testIntentYAML = `version: "1"
cluster_id: vhs
mode: ENABLED
action: BLOCK
resource_types:
  - cdn_distribution
required_tags:
  - key: IS_CLUSTER_vhs
    value: "true"
`

const testFixtureYAML = `resources:
  - id: cdn-1
    type: cdn_distribution
    account_id: "111"
    tags:
      IS_CLUSTER_vhs: "true"
enrolled:
  - cdn-stale
`

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "intent.yaml", testIntentYAML)

	rootCmd.SetArgs([]string{"validate", "--intent", path})
	assert.NoError(t, rootCmd.Execute())
}

func TestValidateCommandRejectsBadIntent(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "intent.yaml", `cluster_id: toolong`)

	rootCmd.SetArgs([]string{"validate", "--intent", path})
	rootCmd.SilenceErrors = true
	defer func() { rootCmd.SilenceErrors = false }()
	assert.Error(t, rootCmd.Execute())
}

func TestPlanCommandWithFixture(t *testing.T) {
	memory.Register()

	dir := t.TempDir()
	intentPath := writeFile(t, dir, "intent.yaml", testIntentYAML)
	fixture := writeFile(t, dir, "fixture.yaml", testFixtureYAML)

	rootCmd.SetArgs([]string{
		"plan",
		"--intent", intentPath,
		"--provider", "memory",
		"--fixture", fixture,
	})
	assert.NoError(t, rootCmd.Execute())
}
