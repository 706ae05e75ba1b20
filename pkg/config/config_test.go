package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "buddy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadFileAppliesDefaults(t *testing.T) {
	path := writeTestConfig(t, `
brain:
  model_id: gpt-test
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 900, cfg.Brain.ArchivistInterval)
	assert.Equal(t, 256, cfg.Queues.InputMaxSize)
	assert.True(t, cfg.Brain.ProactiveLighting)
}

func TestLoadFileMissingModelIDFails(t *testing.T) {
	path := writeTestConfig(t, `
brain:
  temperature: 0.5
`)
	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestLoadFileRejectsAdapterWithoutClass(t *testing.T) {
	path := writeTestConfig(t, `
brain:
  model_id: gpt-test
adapters:
  input:
    - config: { key: value }
`)
	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestLoadFileDecodesAdapterEntries(t *testing.T) {
	path := writeTestConfig(t, `
brain:
  model_id: gpt-test
adapters:
  input:
    - class: wakeword
      config:
        threshold: 0.8
  output:
    - class: tts
      config:
        voice: f1
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, cfg.Adapters.Input, 1)
	assert.Equal(t, "wakeword", cfg.Adapters.Input[0].Class)
	require.Len(t, cfg.Adapters.Output, 1)
	assert.Equal(t, "tts", cfg.Adapters.Output[0].Class)
}

func TestResolveConfigPathRequiresEnvVar(t *testing.T) {
	t.Setenv("BUDDY_CONFIG", "")
	_, err := ResolveConfigPath()
	assert.Error(t, err)
}

func TestResolveConfigPathJoinsBuddyHome(t *testing.T) {
	t.Setenv("BUDDY_HOME", "/opt/buddy")
	t.Setenv("BUDDY_CONFIG", "config/buddy.yaml")

	path, err := ResolveConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/opt/buddy", "config/buddy.yaml"), path)
}

func TestResolveConfigPathAbsoluteIgnoresHome(t *testing.T) {
	t.Setenv("BUDDY_HOME", "/opt/buddy")
	t.Setenv("BUDDY_CONFIG", "/etc/buddy/config.yaml")

	path, err := ResolveConfigPath()
	require.NoError(t, err)
	assert.Equal(t, "/etc/buddy/config.yaml", path)
}
