package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rxpost.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 100*time.Second, cfg.Pacing.Min())
	assert.Equal(t, 150*time.Second, cfg.Pacing.Max())
	assert.Equal(t, "openai", cfg.Generator.Provider)
	assert.False(t, cfg.TextFallback)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
post_id: " 1abcde "
destinations:
  - golang
  - r/programming
  - ""
  - "@bluesky"
pacing:
  min_seconds: 30
  max_seconds: 45
generator:
  provider: Gemini
  model: gemini-2.0-flash
text_fallback: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "1abcde", cfg.PostID)
	assert.Equal(t, []string{"golang", "r/programming", "@bluesky"}, cfg.Destinations)
	assert.Equal(t, Pacing{MinSeconds: 30, MaxSeconds: 45}, cfg.Pacing)
	assert.Equal(t, "gemini", cfg.Generator.Provider)
	assert.Equal(t, "gemini-2.0-flash", cfg.Generator.Model)
	assert.True(t, cfg.TextFallback)
	assert.NoError(t, cfg.Validate())
}

func TestLoadKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "post_id: abc\n"))
	require.NoError(t, err)
	assert.Equal(t, Pacing{MinSeconds: DefaultPaceMinSeconds, MaxSeconds: DefaultPaceMaxSeconds}, cfg.Pacing)
	assert.Equal(t, "openai", cfg.Generator.Provider)
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(writeConfig(t, "post_id: abc\nsubreddits: [golang]\n"))
	assert.ErrorContains(t, err, "subreddits")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Pacing = Pacing{MinSeconds: 10, MaxSeconds: 5}
	cfg.Generator.Provider = "clippy"
	cfg.Destinations = []string{"golang", "@myspace"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "post id is required")
	assert.ErrorContains(t, err, "max_seconds (5) must be at least min_seconds (10)")
	assert.ErrorContains(t, err, `unsupported generator provider "clippy"`)
	assert.NotContains(t, err.Error(), "@myspace")
}

func TestValidateZeroDestinations(t *testing.T) {
	cfg := Default()
	cfg.PostID = "abc"
	assert.NoError(t, cfg.Validate())
}

func TestValidateLeavesDestinationNamesToTheRun(t *testing.T) {
	cfg := Default()
	cfg.PostID = "abc"
	cfg.Destinations = []string{"golang", "a", "@myspace"}
	assert.NoError(t, cfg.Validate())
}
