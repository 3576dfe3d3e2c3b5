package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Provider ProviderConfig `yaml:"provider"`
	Chunking ChunkingConfig `yaml:"chunking"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Query    QueryConfig    `yaml:"query"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTPPort string `yaml:"http_port"`
}

// DatabaseConfig 向量数据库配置
type DatabaseConfig struct {
	// Path 向量数据库文件路径，留空表示 <数据目录>/sourcechat.db
	Path string `yaml:"path"`
}

// ProviderConfig AI 后端配置
type ProviderConfig struct {
	// Name 激活的后端：openai / azureopenai / ollama
	Name string `yaml:"name"`
	// BaseURL API 基地址，留空按后端使用默认值
	BaseURL string `yaml:"base_url"`
	// APIKeyEnv 存放 API Key 的环境变量名
	APIKeyEnv string `yaml:"api_key_env"`
	// EmbeddingModel 嵌入模型名
	EmbeddingModel string `yaml:"embedding_model"`
	// ChatModel 对话模型名
	ChatModel string `yaml:"chat_model"`
}

// APIKey 读取 API Key
func (p *ProviderConfig) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// ChunkingConfig 切块配置
type ChunkingConfig struct {
	// Strategy 切块策略：semantic / section / structural
	Strategy string `yaml:"strategy"`
	// MaxTokens 单块 Token 上限
	MaxTokens int `yaml:"max_tokens"`
	// OverlapTokens 相邻块重叠 Token 数
	OverlapTokens int `yaml:"overlap_tokens"`
}

// IngestConfig 入库配置
type IngestConfig struct {
	// Root 默认的入库根目录，也是文件监听的目标
	Root string `yaml:"root"`
	// Patterns 分号分隔的 glob 模式列表
	Patterns string `yaml:"patterns"`
	// Incremental 是否默认增量入库
	Incremental bool `yaml:"incremental"`
	// Watch 是否启用文件监听自动增量入库（需要设置 Root）
	Watch bool `yaml:"watch"`
}

// QueryConfig 查询配置
type QueryConfig struct {
	// MaxResults 相似度检索条数上限
	MaxResults int `yaml:"max_results"`
}

// NewConfig 创建配置（默认值）
func NewConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: ":19970",
		},
		Database: DatabaseConfig{
			Path: "",
		},
		Provider: ProviderConfig{
			Name:           "openai",
			APIKeyEnv:      "OPENAI_API_KEY",
			EmbeddingModel: "text-embedding-3-small",
			ChatModel:      "gpt-4o-mini",
		},
		Chunking: ChunkingConfig{
			Strategy:      "semantic",
			MaxTokens:     512,
			OverlapTokens: 64,
		},
		Ingest: IngestConfig{
			Patterns:    "*.md;*.txt;*.go;*.cs;*.py",
			Incremental: true,
			Watch:       false,
		},
		Query: QueryConfig{
			MaxResults: 5,
		},
	}
}

// Load 从指定路径读取配置文件，文件不存在时返回默认配置
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

// LoadDefault 读取数据目录下的 config.yaml，不存在时返回默认配置
func LoadDefault() (*Config, error) {
	return Load(filepath.Join(GetDataDir(), "config.yaml"))
}

// DBPath 解析向量数据库文件路径
func (c *Config) DBPath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(GetDataDir(), "sourcechat.db")
}

// applyDefaults 对缺省字段回填默认值
func applyDefaults(cfg *Config) {
	def := NewConfig()
	if cfg.Server.HTTPPort == "" {
		cfg.Server.HTTPPort = def.Server.HTTPPort
	}
	if cfg.Provider.Name == "" {
		cfg.Provider.Name = def.Provider.Name
	}
	if cfg.Provider.EmbeddingModel == "" {
		cfg.Provider.EmbeddingModel = def.Provider.EmbeddingModel
	}
	if cfg.Provider.ChatModel == "" {
		cfg.Provider.ChatModel = def.Provider.ChatModel
	}
	if cfg.Chunking.Strategy == "" {
		cfg.Chunking.Strategy = def.Chunking.Strategy
	}
	if cfg.Chunking.MaxTokens <= 0 {
		cfg.Chunking.MaxTokens = def.Chunking.MaxTokens
	}
	if cfg.Chunking.OverlapTokens < 0 {
		cfg.Chunking.OverlapTokens = def.Chunking.OverlapTokens
	}
	if cfg.Ingest.Patterns == "" {
		cfg.Ingest.Patterns = def.Ingest.Patterns
	}
	if cfg.Query.MaxResults <= 0 {
		cfg.Query.MaxResults = def.Query.MaxResults
	}
}
