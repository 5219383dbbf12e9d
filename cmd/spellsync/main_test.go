package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/alicebob/miniredis/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/spellflare/spellsync/internal/cloud"
	"github.com/spellflare/spellsync/internal/profile"
)

// resetFlags puts every flag back to its default so commands run in one
// test process do not leak into each other.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// spellsync runs the CLI against dataDir and returns its stdout.
func spellsync(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	configFile = ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--data-dir", dataDir}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, dataDir string, args ...string) string {
	t.Helper()
	out, err := spellsync(t, dataDir, args...)
	require.NoError(t, err, "spellsync %v:\n%s", args, out)
	return out
}

type shown struct {
	Role              string            `json:"role"`
	DeviceIdentifier  string            `json:"deviceIdentifier"`
	HasPendingChanges bool              `json:"hasPendingChanges"`
	Profile           *profile.Syncable `json:"profile"`
}

func show(t *testing.T, dataDir string) shown {
	t.Helper()
	var s shown
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, dataDir, "show", "--json")), &s))
	return s
}

func TestCLI_ProfileLifecycle(t *testing.T) {
	dir := t.TempDir()

	assert.Nil(t, show(t, dir).Profile)
	assert.Contains(t, mustRun(t, dir, "show"), "No profile yet")

	out := mustRun(t, dir, "init", "--name", "Ada", "--grade", "3")
	assert.Contains(t, out, "Created profile for Ada (grade 3)")

	_, err := spellsync(t, dir, "init", "--name", "Ada")
	assert.ErrorContains(t, err, "already exists")

	mustRun(t, dir, "complete", "1")
	mustRun(t, dir, "complete", "2")
	mustRun(t, dir, "award", "50")
	mustRun(t, dir, "rename", "Grace")
	out = mustRun(t, dir, "grade", "4")
	assert.Contains(t, out, "syncs when")

	s := show(t, dir)
	require.NotNil(t, s.Profile)
	assert.Equal(t, "Grace", s.Profile.Profile.Name)
	assert.Equal(t, 4, s.Profile.Profile.Grade)
	assert.Equal(t, 50, s.Profile.Profile.TotalCoins)
	assert.Equal(t, 2, s.Profile.Profile.TotalCompletedLevels())
	assert.True(t, s.HasPendingChanges, "offline edits stay pending")
	assert.Equal(t, "primary", s.Role)
	assert.NotEmpty(t, s.DeviceIdentifier)

	out = mustRun(t, dir, "show")
	assert.Contains(t, out, "Grace")
	assert.Contains(t, out, "Coins")
}

func TestCLI_MutationErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := spellsync(t, dir, "complete", "1")
	assert.ErrorContains(t, err, "no profile yet")

	mustRun(t, dir, "init", "--name", "Ada")
	_, err = spellsync(t, dir, "award", "lots")
	assert.ErrorContains(t, err, "must be a number")

	_, err = spellsync(t, dir, "--role", "watch", "show")
	assert.ErrorContains(t, err, "invalid role")
}

func TestCLI_InitRejectsBlankName(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"", "   ", "\t"} {
		_, err := spellsync(t, dir, "init", "--name", name)
		assert.ErrorContains(t, err, "name cannot be empty", "name %q", name)
	}
	assert.Nil(t, show(t, dir).Profile)

	assert.NoError(t, validateName(" Ada "))
}

func TestCLI_ExportImport(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, dir, "init", "--name", "Ada", "--grade", "2")
	mustRun(t, dir, "complete", "1")

	var asYAML map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(mustRun(t, dir, "export", "--format", "yaml")), &asYAML))
	assert.Equal(t, "Ada", asYAML["name"])
	grades := asYAML["grades"].(map[string]any)
	assert.Equal(t, []any{1}, grades["2"].(map[string]any)["completedLevels"])

	var asTOML exportView
	_, err := toml.Decode(mustRun(t, dir, "export", "-f", "toml"), &asTOML)
	require.NoError(t, err)
	assert.Equal(t, "Ada", asTOML.Name)
	assert.Equal(t, []int{1}, asTOML.Grades["2"].CompletedLevels)

	_, err = spellsync(t, dir, "export", "--format", "xml")
	assert.ErrorContains(t, err, "unknown format")

	file := filepath.Join(t.TempDir(), "ada.json")
	mustRun(t, dir, "export", "-o", file)

	_, err = spellsync(t, dir, "reset")
	assert.ErrorContains(t, err, "--force")
	mustRun(t, dir, "reset", "--force")
	assert.Nil(t, show(t, dir).Profile)

	out := mustRun(t, dir, "import", file)
	assert.Contains(t, out, "Imported Ada")
	s := show(t, dir)
	require.NotNil(t, s.Profile)
	assert.True(t, s.Profile.Profile.IsLevelCompleted(1))

	out = mustRun(t, dir, "import", "--policy", "progress", file)
	assert.Contains(t, out, "Kept the local profile")

	_, err = spellsync(t, dir, "import", "--policy", "newest", file)
	assert.ErrorContains(t, err, "unknown policy")
}

func TestCLI_ImportLegacyProfile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(t.TempDir(), "legacy.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"name":"Ada","grade":1,"completedLevels":[1,2,3],"currentLevel":4}`), 0o644))

	out := mustRun(t, dir, "import", file)
	assert.Contains(t, out, "granted 300 coins")

	s := show(t, dir)
	require.NotNil(t, s.Profile)
	assert.Equal(t, 300, s.Profile.Profile.TotalCoins)
	assert.Equal(t, profile.CurrentSchemaVersion, s.Profile.SchemaVersion)
}

func TestCLI_Backup(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, dir, "init", "--name", "Ada")

	_, err := spellsync(t, dir, "backup")
	assert.ErrorContains(t, err, "not configured")

	mr := miniredis.RunT(t)
	t.Setenv("SPELLSYNC_CLOUD_REDIS_ADDR", mr.Addr())
	t.Setenv("SPELLSYNC_CLOUD_ACCOUNT", "ada")

	assert.Contains(t, mustRun(t, dir, "backup"), "Backup uploaded")
	assert.Contains(t, mustRun(t, dir, "backup"), "Backup unchanged")
	assert.True(t, mr.Exists(cloud.KeyPrefix+"ada"))

	mustRun(t, dir, "reset", "--force", "--cloud")
	assert.False(t, mr.Exists(cloud.KeyPrefix+"ada"))
	assert.Nil(t, show(t, dir).Profile)
}

func TestCLI_ConfigShow(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SPELLSYNC_CLOUD_PASSWORD", "hunter2")

	out := mustRun(t, dir, "config", "show")
	assert.Contains(t, out, "role: primary")
	assert.Contains(t, out, dir)
	assert.NotContains(t, out, "hunter2")
}
