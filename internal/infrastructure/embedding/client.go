package embedding

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sourcechat/backend/internal/infrastructure/log"
	"github.com/sourcechat/backend/internal/infrastructure/provider"
)

// Client Embedding API 客户端
// 同一套批量/重试逻辑适配 OpenAI、Azure OpenAI 和 Ollama 三种后端
type Client struct {
	kind       provider.Kind
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient 创建 Embedding 客户端
func NewClient(kind provider.Kind, baseURL, apiKey, model string) *Client {
	if baseURL == "" {
		baseURL = kind.DefaultBaseURL()
	}

	return &Client{
		kind:    kind,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: log.NewModuleLogger("embedding", "client"),
	}
}

// Model 返回配置的嵌入模型名
func (c *Client) Model() string {
	return c.model
}

// buildURL 构建 Embedding API URL
func (c *Client) buildURL() string {
	switch c.kind {
	case provider.AzureOpenAI:
		// Azure 部署名即模型名，API 版本固定
		return fmt.Sprintf("%s/openai/deployments/%s/embeddings?api-version=2024-02-01", c.baseURL, c.model)
	case provider.Ollama:
		return c.baseURL + "/api/embed"
	default:
		return buildOpenAIURL(c.baseURL)
	}
}

// buildOpenAIURL 智能拼接 /v1/embeddings 路径
// 兼容已带完整路径、以 /v1 结尾等多种 baseURL 写法
func buildOpenAIURL(baseURL string) string {
	if strings.Contains(baseURL, "/v1/embeddings") {
		return baseURL
	}
	if strings.HasSuffix(baseURL, "/v1") {
		return baseURL + "/embeddings"
	}
	return fmt.Sprintf("%s/v1/embeddings", baseURL)
}

// openAIRequest OpenAI/Azure 风格 Embedding 请求
type openAIRequest struct {
	Model string   `json:"model,omitempty"`
	Input []string `json:"input"`
}

// openAIResponse OpenAI/Azure 风格 Embedding 响应
type openAIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// ollamaRequest Ollama Embedding 请求
type ollamaRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// ollamaResponse Ollama Embedding 响应
type ollamaResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// EmbedTexts 批量向量化文本
func (c *Client) EmbedTexts(texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("texts cannot be empty")
	}

	// OpenAI embeddings API 批量限制：每次最多 2048 个文本
	const maxBatchSize = 2048
	const maxRetriesPerBatch = 3

	if len(texts) <= maxBatchSize {
		return c.embedTextsWithRetry(texts, maxRetriesPerBatch)
	}

	c.logger.Info("Splitting texts into batches",
		"total_texts", len(texts),
		"batch_limit", maxBatchSize,
	)

	allVectors := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += maxBatchSize {
		end := i + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := texts[i:end]
		batchNum := (i / maxBatchSize) + 1

		vectors, err := c.embedTextsWithRetry(batch, maxRetriesPerBatch)
		if err != nil {
			c.logger.Error("Failed to embed batch",
				"batch", batchNum,
				"error", err,
			)
			return nil, fmt.Errorf("failed to embed batch %d: %w", batchNum, err)
		}
		allVectors = append(allVectors, vectors...)
	}

	return allVectors, nil
}

// EmbedText 向量化单条文本
func (c *Client) EmbedText(text string) ([]float32, error) {
	vectors, err := c.EmbedTexts([]string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("invalid embedding response")
	}
	return vectors[0], nil
}

// embedTextsWithRetry 带重试的嵌入处理
func (c *Client) embedTextsWithRetry(texts []string, maxRetries int) ([][]float32, error) {
	jsonData, err := c.marshalRequest(texts)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.buildURL()

	// API Key 脱敏
	apiKeyMasked := c.apiKey
	if len(apiKeyMasked) > 8 {
		apiKeyMasked = apiKeyMasked[:4] + "..." + apiKeyMasked[len(apiKeyMasked)-4:]
	} else if apiKeyMasked != "" {
		apiKeyMasked = "***"
	}

	c.logger.Debug("Sending embedding request",
		"url", url,
		"provider", c.kind.String(),
		"batch_size", len(texts),
		"model", c.model,
		"api_key", apiKeyMasked,
	)

	var lastErr error
	for retry := 0; retry < maxRetries; retry++ {
		req, err := http.NewRequest("POST", url, bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		c.setAuth(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
		} else {
			vectors, err := c.decodeResponse(resp.Body, len(texts))
			resp.Body.Close()
			if err != nil {
				return nil, err
			}
			return vectors, nil
		}

		if retry < maxRetries-1 {
			c.logger.Warn("Embedding request failed, retrying",
				"attempt", retry+1,
				"max_retries", maxRetries,
				"error", lastErr,
			)
			time.Sleep(time.Duration(retry+1) * time.Second) // 递增延迟
		}
	}

	c.logger.Error("Embedding request failed after all retries",
		"max_retries", maxRetries,
		"error", lastErr,
	)
	return nil, fmt.Errorf("failed to send request: %w", lastErr)
}

// marshalRequest 按后端序列化请求体
func (c *Client) marshalRequest(texts []string) ([]byte, error) {
	switch c.kind {
	case provider.Ollama:
		return json.Marshal(ollamaRequest{Model: c.model, Input: texts})
	case provider.AzureOpenAI:
		// Azure 的模型由 URL 中的部署名决定
		return json.Marshal(openAIRequest{Input: texts})
	default:
		return json.Marshal(openAIRequest{Model: c.model, Input: texts})
	}
}

// setAuth 按后端设置认证头
func (c *Client) setAuth(req *http.Request) {
	switch c.kind {
	case provider.AzureOpenAI:
		req.Header.Set("api-key", c.apiKey)
	case provider.Ollama:
		// 本地服务无需认证
	default:
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	}
}

// decodeResponse 按后端解析响应并还原输入顺序
func (c *Client) decodeResponse(body io.Reader, want int) ([][]float32, error) {
	if c.kind == provider.Ollama {
		var resp ollamaResponse
		if err := json.NewDecoder(body).Decode(&resp); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		if len(resp.Embeddings) != want {
			return nil, fmt.Errorf("expected %d embeddings, got %d", want, len(resp.Embeddings))
		}
		return resp.Embeddings, nil
	}

	var resp openAIResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(resp.Data) != want {
		return nil, fmt.Errorf("expected %d embeddings, got %d", want, len(resp.Data))
	}

	vectors := make([][]float32, len(resp.Data))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range", data.Index)
		}
		vectors[data.Index] = data.Embedding
	}
	return vectors, nil
}
