package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir()) // no global config file
	t.Setenv("LETTA_BASE_URL", "")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, DefaultServerLogLevel, cfg.Server.LogLevel)
	assert.Equal(t, DefaultAgentBaseURL, cfg.Agent.BaseURL)
	assert.Equal(t, DefaultAgentTutorName, cfg.Agent.TutorName)
	assert.Equal(t, DefaultAgentCuratorName, cfg.Agent.CuratorName)
	assert.Equal(t, DefaultRelayToolResultLimit, cfg.Relay.ToolResultLimit)
	assert.Equal(t, DefaultCurationSchedule, cfg.Curation.Schedule)
	assert.True(t, cfg.Curation.Enabled)
	assert.Empty(t, cfg.Agent.TutorID, "agent ids have no default")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GIDEON_SERVER_PORT", "7001")
	t.Setenv("GIDEON_AGENT_TUTOR_ID", "agent-abc")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, 7001, cfg.Server.Port)
	assert.Equal(t, "agent-abc", cfg.Agent.TutorID)
}

func TestLoadHonorsLettaBaseURL(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("LETTA_BASE_URL", "http://letta.internal:8283")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "http://letta.internal:8283", cfg.Agent.BaseURL)
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 6100
agent:
  tutor_id: agent-from-file
  curator_id: curator-from-file
curation:
  schedule: "@every 2h"
`), 0644))

	cmd := &cobra.Command{}
	cmd.Flags().String("config", path, "")

	cfg, err := Load(cmd)
	require.NoError(t, err)

	assert.Equal(t, 6100, cfg.Server.Port)
	assert.Equal(t, "agent-from-file", cfg.Agent.TutorID)
	assert.Equal(t, "curator-from-file", cfg.Agent.CuratorID)
	assert.Equal(t, "@every 2h", cfg.Curation.Schedule)
	assert.Equal(t, DefaultAgentBaseURL, cfg.Agent.BaseURL, "untouched keys keep defaults")
}

func TestLoadMissingConfigFile(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("config", "/nonexistent/config.yaml", "")

	_, err := Load(cmd)
	assert.Error(t, err, "an explicitly named config file must exist")
}

func TestDurationOrDefault(t *testing.T) {
	d, err := DurationOrDefault("250ms", "1s")
	require.NoError(t, err)
	assert.Equal(t, "250ms", d.String())

	d, err = DurationOrDefault("", "1s")
	require.NoError(t, err)
	assert.Equal(t, "1s", d.String())

	d, err = DurationOrDefault("  ", "30m")
	require.NoError(t, err)
	assert.Equal(t, "30m0s", d.String())

	_, err = DurationOrDefault("soon", "1s")
	assert.Error(t, err)

	_, err = DurationOrDefault("", "")
	assert.Error(t, err)
}
