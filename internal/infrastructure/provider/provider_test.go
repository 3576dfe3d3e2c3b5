package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseKind 测试后端名解析（大小写不敏感）
func TestParseKind(t *testing.T) {
	cases := map[string]Kind{
		"openai":      OpenAI,
		"OpenAI":      OpenAI,
		" OPENAI ":    OpenAI,
		"azureopenai": AzureOpenAI,
		"Azure":       AzureOpenAI,
		"ollama":      Ollama,
		"OLLAMA":      Ollama,
	}
	for name, want := range cases {
		kind, err := ParseKind(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, kind, name)
	}
}

// TestParseKind_Unknown 测试未知后端是硬错误
func TestParseKind_Unknown(t *testing.T) {
	_, err := ParseKind("bedrock")
	assert.Error(t, err)

	_, err = ParseKind("")
	assert.Error(t, err)
}

// TestDimension 测试嵌入维度静态表和回退默认值
func TestDimension(t *testing.T) {
	openai := NewResolver(OpenAI)
	assert.Equal(t, 1536, openai.Dimension("text-embedding-3-small"))
	assert.Equal(t, 3072, openai.Dimension("text-embedding-3-large"))
	assert.Equal(t, 1536, openai.Dimension("text-embedding-ada-002"))

	ollama := NewResolver(Ollama)
	assert.Equal(t, 768, ollama.Dimension("nomic-embed-text"))
	assert.Equal(t, 1024, ollama.Dimension("mxbai-embed-large"))
	assert.Equal(t, 384, ollama.Dimension("all-minilm"))
	assert.Equal(t, 1024, ollama.Dimension("bge-m3"))

	// 未知模型回退而不是报错
	assert.Equal(t, 1536, openai.Dimension("some-future-model"))
	assert.Equal(t, 1536, NewResolver(AzureOpenAI).Dimension("some-future-model"))
	assert.Equal(t, 768, ollama.Dimension("some-future-model"))
}

// TestTokenizer 测试分词器编码名推导
func TestTokenizer(t *testing.T) {
	r := NewResolver(OpenAI)

	assert.Equal(t, "o200k_base", r.Tokenizer("gpt-4o-mini"))
	assert.Equal(t, "o200k_base", r.Tokenizer("gpt-4.1"))
	assert.Equal(t, "o200k_base", r.Tokenizer("o3-mini"))
	assert.Equal(t, "cl100k_base", r.Tokenizer("gpt-4-turbo"))
	assert.Equal(t, "cl100k_base", r.Tokenizer("text-embedding-3-small"))
	assert.Equal(t, "cl100k_base", NewResolver(Ollama).Tokenizer("llama3"))
}

// TestDefaultBaseURL 测试后端默认 API 地址
func TestDefaultBaseURL(t *testing.T) {
	assert.Equal(t, "https://api.openai.com/v1", OpenAI.DefaultBaseURL())
	assert.Equal(t, "http://localhost:11434", Ollama.DefaultBaseURL())
	assert.Empty(t, AzureOpenAI.DefaultBaseURL())
}
