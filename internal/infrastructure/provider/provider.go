package provider

import (
	"fmt"
	"strings"
)

// Kind AI 后端类型
// 封闭枚举，避免字符串分支散落在各处
type Kind int

const (
	// OpenAI 官方 OpenAI API
	OpenAI Kind = iota
	// AzureOpenAI Azure 托管的 OpenAI 部署
	AzureOpenAI
	// Ollama 本地 Ollama 服务
	Ollama
)

// ParseKind 解析后端名（大小写不敏感）
// 未知后端是启动期的硬性配置错误，不延迟到入库时
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "openai":
		return OpenAI, nil
	case "azureopenai", "azure":
		return AzureOpenAI, nil
	case "ollama":
		return Ollama, nil
	default:
		return OpenAI, fmt.Errorf("unknown provider %q (expected openai, azureopenai or ollama)", name)
	}
}

// String 返回后端名
func (k Kind) String() string {
	switch k {
	case AzureOpenAI:
		return "azureopenai"
	case Ollama:
		return "ollama"
	default:
		return "openai"
	}
}

// DefaultBaseURL 后端默认 API 基地址
func (k Kind) DefaultBaseURL() string {
	switch k {
	case Ollama:
		return "http://localhost:11434"
	case AzureOpenAI:
		return "" // Azure 无公共默认地址，必须显式配置
	default:
		return "https://api.openai.com/v1"
	}
}

// 嵌入模型维度静态表
// 维度最终以向量库写入时的校验为准，这里只用于建集合
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"bge-m3":                 1024,
}

// 对话模型使用 o200k_base 编码的前缀
var o200kPrefixes = []string{"gpt-4o", "gpt-4.1", "o1", "o3", "o4"}

// Resolver 后端配置解析器
// 纯函数集合：根据后端和模型名推导嵌入维度与分词器标识
type Resolver struct {
	kind Kind
}

// NewResolver 创建解析器
func NewResolver(kind Kind) *Resolver {
	return &Resolver{kind: kind}
}

// Kind 返回激活的后端
func (r *Resolver) Kind() Kind {
	return r.kind
}

// Dimension 推导嵌入模型维度
// 未知模型回退到后端默认维度而不是报错：维度只在向量库写入时权威确认
func (r *Resolver) Dimension(embeddingModel string) int {
	if dim, ok := modelDimensions[strings.ToLower(embeddingModel)]; ok {
		return dim
	}
	if r.kind == Ollama {
		return 768
	}
	return 1536
}

// Tokenizer 推导切块用的分词器编码名
func (r *Resolver) Tokenizer(model string) string {
	lower := strings.ToLower(model)
	for _, prefix := range o200kPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return "o200k_base"
		}
	}
	// 嵌入模型与旧对话模型统一使用 cl100k_base；
	// Ollama 模型没有官方 BPE 发布，同样用 cl100k_base 近似预算
	return "cl100k_base"
}
