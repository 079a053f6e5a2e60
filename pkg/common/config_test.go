package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cm, err := NewConfigManagerFrom[types.AppConfig](defaultConfig, "", "")
	require.NoError(t, err)

	config := cm.GetConfig()
	assert.True(t, config.IsLocalMode())
	assert.Equal(t, 20, config.Sessions.MaxSessions)
	assert.Equal(t, 2*time.Hour, config.Sessions.Timeout)
	assert.Equal(t, 30*time.Second, config.Orchestrator.ExecTimeout)
	assert.Equal(t, []string{"/v1/messages"}, config.Proxy.AllowedPaths)
	assert.Equal(t, time.Minute, config.Proxy.RateLimit.Window)
	assert.Equal(t, 30, config.Proxy.RateLimit.MaxRequests)
	assert.Equal(t, "ANTHROPIC_API_KEY", config.Proxy.APIKeyEnv)
	assert.Equal(t, "/home/claude/CLAUDE.md", config.Stages.DefinitionPath)
}

func TestConfigLayering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: remote\nsessions:\n  maxSessions: 5\n  timeout: 30m\n"), 0o600))

	inline := `{"sessions":{"maxSessions":7},"proxy":{"allowedPaths":"/v1/messages, /v1/complete"}}`
	cm, err := NewConfigManagerFrom[types.AppConfig](defaultConfig, path, inline)
	require.NoError(t, err)

	config := cm.GetConfig()
	assert.Equal(t, types.ModeRemote, config.Mode)
	assert.Equal(t, 7, config.Sessions.MaxSessions)
	assert.Equal(t, 30*time.Minute, config.Sessions.Timeout)
	assert.Equal(t, []string{"/v1/messages", "/v1/complete"}, config.Proxy.AllowedPaths)
	assert.Equal(t, "remote", cm.Get("mode"))
}

func TestConfigJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"proxy":{"rateLimit":{"maxRequests":3}}}`), 0o600))

	cm, err := NewConfigManagerFrom[types.AppConfig](defaultConfig, path, "")
	require.NoError(t, err)
	assert.Equal(t, 3, cm.GetConfig().Proxy.RateLimit.MaxRequests)
}

func TestConfigErrors(t *testing.T) {
	_, err := NewConfigManagerFrom[types.AppConfig](defaultConfig, filepath.Join(t.TempDir(), "missing.yaml"), "")
	assert.Error(t, err)

	_, err = NewConfigManagerFrom[types.AppConfig](defaultConfig, "", "{not json")
	assert.Error(t, err)
}
