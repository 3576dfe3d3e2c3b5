package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGet_Memoized 测试编码器按名称缓存
func TestGet_Memoized(t *testing.T) {
	first, err := Get("cl100k_base")
	require.NoError(t, err)

	second, err := Get("cl100k_base")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

// TestGet_UnknownEncoding 测试未知编码名
func TestGet_UnknownEncoding(t *testing.T) {
	_, err := Get("no_such_encoding")
	assert.Error(t, err)
}

// TestEncodeDecodeRoundTrip 测试编解码往返和 Token 计数
func TestEncodeDecodeRoundTrip(t *testing.T) {
	est, err := Get("cl100k_base")
	require.NoError(t, err)

	text := "Incremental ingestion keeps the vector index fresh."
	tokens := est.Encode(text)
	assert.NotEmpty(t, tokens)
	assert.Equal(t, len(tokens), est.CountTokens(text))
	assert.Equal(t, text, est.Decode(tokens))

	assert.Zero(t, est.CountTokens(""))
}
