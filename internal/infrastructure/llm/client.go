package llm

import (
	"bytes"
	"context"
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

// Message 对话消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client Chat Completion API 客户端
type Client struct {
	kind       provider.Kind
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient 创建 Chat Completion 客户端
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
			Timeout: 120 * time.Second,
		},
		logger: log.NewModuleLogger("llm", "client"),
	}
}

// Model 返回配置的对话模型名
func (c *Client) Model() string {
	return c.model
}

// buildURL 构建 Chat Completion API URL
func (c *Client) buildURL() string {
	switch c.kind {
	case provider.AzureOpenAI:
		return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=2024-02-01", c.baseURL, c.model)
	case provider.Ollama:
		return c.baseURL + "/api/chat"
	default:
		if strings.HasSuffix(c.baseURL, "/v1") {
			return c.baseURL + "/chat/completions"
		}
		return c.baseURL + "/v1/chat/completions"
	}
}

// chatRequest OpenAI 风格 Chat Completion 请求
type chatRequest struct {
	Model    string    `json:"model,omitempty"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// chatResponse OpenAI 风格 Chat Completion 响应
type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// ollamaChatResponse Ollama /api/chat 响应
type ollamaChatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
}

// Complete 发送对话请求并返回模型回复文本
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("messages cannot be empty")
	}

	reqBody := chatRequest{
		Messages: messages,
		Stream:   false,
	}
	if c.kind != provider.AzureOpenAI {
		reqBody.Model = c.model
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.buildURL()
	c.logger.Debug("Sending chat completion request",
		"url", url,
		"provider", c.kind.String(),
		"model", c.model,
		"messages", len(messages),
	)

	const maxRetries = 3
	var lastErr error
	for retry := 0; retry < maxRetries; retry++ {
		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		c.setAuth(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
		} else if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
		} else {
			content, err := c.decodeResponse(resp.Body)
			resp.Body.Close()
			if err != nil {
				return "", err
			}
			return content, nil
		}

		if retry < maxRetries-1 {
			c.logger.Warn("Chat completion request failed, retrying",
				"attempt", retry+1,
				"max_retries", maxRetries,
				"error", lastErr,
			)
			time.Sleep(time.Duration(retry+1) * time.Second)
		}
	}

	return "", fmt.Errorf("failed to send request: %w", lastErr)
}

// setAuth 按后端设置认证头
func (c *Client) setAuth(req *http.Request) {
	switch c.kind {
	case provider.AzureOpenAI:
		req.Header.Set("api-key", c.apiKey)
	case provider.Ollama:
	default:
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	}
}

// decodeResponse 按后端解析响应，提取回复文本
func (c *Client) decodeResponse(body io.Reader) (string, error) {
	if c.kind == provider.Ollama {
		var resp ollamaChatResponse
		if err := json.NewDecoder(body).Decode(&resp); err != nil {
			return "", fmt.Errorf("failed to decode response: %w", err)
		}
		return resp.Message.Content, nil
	}

	var resp chatResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}
