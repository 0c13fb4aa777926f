package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks the variables Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "HOST", "PORT", "QDRANT_HOST", "QDRANT_PORT", "QDRANT_COLLECTION",
		"EMBEDDING_DIMENSION", "EMBEDDING_TIMEOUT", "VECTOR_TIMEOUT", "LLM_TIMEOUT",
		"CAPTIONS_TIMEOUT", "LOG_FORMAT", "ANTHROPIC_MODEL", "ANTHROPIC_TEMPERATURE", "QDRANT_USE_TLS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 1536, cfg.Embedding.Dimension)
	assert.Equal(t, "transcripts", cfg.Qdrant.Collection)
	assert.Empty(t, cfg.Qdrant.Host, "no host means no vector index")
	assert.Equal(t, 15*time.Second, cfg.EmbeddingTimeout())
	assert.Equal(t, 10*time.Second, cfg.VectorTimeout())
	assert.Equal(t, 120*time.Second, cfg.LLMTimeout())
	assert.Equal(t, 15*time.Second, cfg.CaptionsTimeout())
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.InDelta(t, 0.7, cfg.Anthropic.Temperature, 1e-9)
}

func TestLoad_ZeroTemperature(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANTHROPIC_TEMPERATURE", "0")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Zero(t, cfg.Anthropic.Temperature)
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = 9090

[qdrant]
host = "qdrant.internal"
collection = "lectures"

[anthropic]
model = "claude-from-file"

[timeouts]
llm = "30s"
`), 0o644))

	t.Setenv("QDRANT_COLLECTION", "from-env")
	t.Setenv("EMBEDDING_DIMENSION", "256")
	t.Setenv("QDRANT_USE_TLS", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "qdrant.internal", cfg.Qdrant.Host)
	assert.Equal(t, "from-env", cfg.Qdrant.Collection, "environment wins over file")
	assert.Equal(t, "claude-from-file", cfg.Anthropic.Model)
	assert.Equal(t, 256, cfg.Embedding.Dimension)
	assert.True(t, cfg.Qdrant.UseTLS)
	assert.Equal(t, 30*time.Second, cfg.LLMTimeout())
	assert.Equal(t, 6334, cfg.Qdrant.Port, "unset values keep defaults")
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[server\nport = "), 0o644))
	_, err := Load(bad)
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)

	t.Setenv("LLM_TIMEOUT", "soon")
	_, err = Load("")
	assert.ErrorContains(t, err, "llm timeout")
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_INT", "not-a-number")
	assert.Equal(t, 7, getEnvInt("TEST_INT", 7))

	t.Setenv("TEST_FLOAT", "2.5")
	assert.Equal(t, 2.5, getEnvFloat("TEST_FLOAT", 1))

	t.Setenv("TEST_BOOL", "yes")
	assert.False(t, getEnvBool("TEST_BOOL", false))
}
