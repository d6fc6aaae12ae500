package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, "design", cfg.VectorStore.Chromem.Collection)
	assert.Equal(t, 10, cfg.Search.ImageResults)
	assert.Equal(t, 5, cfg.Search.TextResults)
	assert.Equal(t, 3, cfg.WebSearch.MaxResults)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.TranslatorModel)
	assert.Equal(t, time.Hour, cfg.Session.TTL.Duration())
	assert.Equal(t, 10*time.Minute, cfg.Session.CleanupInterval.Duration())
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"bad provider", func(c *Config) { c.VectorStore.Provider = "pinecone" }, "vectorstore.provider"},
		{"bad store", func(c *Config) { c.Session.Store = "disk" }, "session.store"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"negative retries", func(c *Config) { c.LLM.MaxRetries = -1 }, "llm.max_retries"},
		{"bad sample rate", func(c *Config) { c.Telemetry.SampleRate = 2 }, "telemetry.sample_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"DESIGND_SERVER_PORT":                "server.port",
		"DESIGND_LLM_API_KEY":                "llm.api_key",
		"DESIGND_VECTORSTORE_PROVIDER":       "vectorstore.provider",
		"DESIGND_VECTORSTORE_QDRANT_API_KEY": "vectorstore.qdrant.api_key",
		"DESIGND_VECTORSTORE_CHROMEM_PATH":   "vectorstore.chromem.path",
		"DESIGND_SESSION_REDIS_ADDR":         "session.redis.addr",
		"DESIGND_SESSION_TTL":                "session.ttl",
		"DESIGND_LOGGING_FILE_MAX_SIZE_MB":   "logging.file.max_size_mb",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, envKey(in))
		})
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9000
vectorstore:
  provider: qdrant
  qdrant:
    host: qdrant.internal
session:
  ttl: 30m
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv("DESIGND_SERVER_PORT", "9100")
	t.Setenv("DESIGND_LLM_API_KEY", "sk-test")
	t.Setenv("DESIGND_SEARCH_IMAGE_RESULTS", "7")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port, "env overrides file")
	assert.Equal(t, "qdrant", cfg.VectorStore.Provider)
	assert.Equal(t, "qdrant.internal", cfg.VectorStore.Qdrant.Host)
	assert.Equal(t, 6334, cfg.VectorStore.Qdrant.Port, "defaults fill gaps")
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL.Duration())
	assert.Equal(t, "sk-test", cfg.LLM.APIKey.Value())
	assert.Equal(t, 7, cfg.Search.ImageResults)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestLoad_RejectsInsecurePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure permissions")
}

func TestSecret_Redacts(t *testing.T) {
	s := Secret("sk-live-123")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.NotContains(t, fmt.Sprintf("%#v", s), "sk-live")
	assert.Equal(t, "sk-live-123", s.Value())
	assert.True(t, s.IsSet())

	out, err := json.Marshal(struct {
		Key Secret `json:"key"`
	}{Key: s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"[REDACTED]"}`, string(out))

	assert.Equal(t, "", Secret("").String())
	assert.False(t, Secret("").IsSet())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-5s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
