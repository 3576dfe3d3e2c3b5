package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewConfig_Defaults 测试默认配置
func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, ":19970", cfg.Server.HTTPPort)
	assert.Equal(t, "openai", cfg.Provider.Name)
	assert.Equal(t, "text-embedding-3-small", cfg.Provider.EmbeddingModel)
	assert.Equal(t, "gpt-4o-mini", cfg.Provider.ChatModel)
	assert.Equal(t, "semantic", cfg.Chunking.Strategy)
	assert.Equal(t, 512, cfg.Chunking.MaxTokens)
	assert.Equal(t, 64, cfg.Chunking.OverlapTokens)
	assert.True(t, cfg.Ingest.Incremental)
	assert.Equal(t, 5, cfg.Query.MaxResults)
}

// TestLoad_MissingFile 测试配置文件不存在时返回默认配置
func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, NewConfig(), cfg)
}

// TestLoad_Overrides 测试配置文件覆盖和缺省回填
func TestLoad_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  http_port: ":28080"
provider:
  name: ollama
  embedding_model: nomic-embed-text
chunking:
  strategy: section
ingest:
  patterns: "*.md"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":28080", cfg.Server.HTTPPort)
	assert.Equal(t, "ollama", cfg.Provider.Name)
	assert.Equal(t, "nomic-embed-text", cfg.Provider.EmbeddingModel)
	assert.Equal(t, "section", cfg.Chunking.Strategy)
	assert.Equal(t, "*.md", cfg.Ingest.Patterns)

	// 未配置的字段回填默认值
	assert.Equal(t, "gpt-4o-mini", cfg.Provider.ChatModel)
	assert.Equal(t, 512, cfg.Chunking.MaxTokens)
	assert.Equal(t, 5, cfg.Query.MaxResults)
}

// TestLoad_InvalidYAML 测试非法配置文件
func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [broken"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

// TestDBPath 测试数据库路径解析
func TestDBPath(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv(EnvDataDir, dataDir)
	ResetDataDir()
	t.Cleanup(ResetDataDir)

	cfg := NewConfig()
	assert.Equal(t, filepath.Join(dataDir, "sourcechat.db"), cfg.DBPath())

	cfg.Database.Path = "/custom/path.db"
	assert.Equal(t, "/custom/path.db", cfg.DBPath())
}

// TestGetDataDir_EnvOverride 测试数据目录环境变量覆盖
func TestGetDataDir_EnvOverride(t *testing.T) {
	t.Setenv(EnvDataDir, "/tmp/sc-data")
	ResetDataDir()
	t.Cleanup(ResetDataDir)

	assert.Equal(t, "/tmp/sc-data", GetDataDir())
}

// TestAPIKey 测试 API Key 从环境变量读取
func TestAPIKey(t *testing.T) {
	p := &ProviderConfig{APIKeyEnv: "SC_TEST_API_KEY"}
	t.Setenv("SC_TEST_API_KEY", "sk-test123")
	assert.Equal(t, "sk-test123", p.APIKey())

	empty := &ProviderConfig{}
	assert.Empty(t, empty.APIKey())
}
