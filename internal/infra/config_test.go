package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
)

func TestLoadConfigFrom_DefaultsAndFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9001
directory:
  self_id: conductor
bridge:
  grants:
    - agent_id: "*"
      data_type: identity
      effect: ALLOW
  data:
    identity:
      name: Ada
`), 0o600))

	cfg, err := LoadConfigFrom(path)
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, "conductor", cfg.Directory.SelfID)
	assert.Equal(t, 5*time.Second, cfg.Orchestrator.DigestTimeout)
	assert.Equal(t, []string{"project-coordinator-agent", "communications-agent"}, cfg.Orchestrator.FallbackAgents)
	assert.Equal(t, 1000, cfg.Audit.MaxEntries)
	require.Len(t, cfg.Bridge.Grants, 1)
	assert.Equal(t, domain.EffectAllow, cfg.Bridge.Grants[0].Effect)
	assert.Equal(t, "Ada", cfg.Bridge.Data["identity"]["name"])
}

func TestLoadConfigFrom_EnvOverride(t *testing.T) {
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logger:\n  level: debug\n"), 0o600))

	cfg, err := LoadConfigFrom(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "sk-test", cfg.Completion.APIKey)
	assert.Equal(t, "debug", cfg.Logger.Level)
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger(LoggerConfig{Level: "warn", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, l)

	_, err = NewLogger(LoggerConfig{Level: "loud"})
	assert.Error(t, err)
}
