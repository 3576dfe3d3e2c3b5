package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sourcechat/backend/internal/domain/chat"
	"github.com/sourcechat/backend/internal/domain/index"
	"github.com/sourcechat/backend/internal/infrastructure/llm"
	"github.com/sourcechat/backend/internal/infrastructure/log"
	"github.com/sourcechat/backend/internal/infrastructure/vectorstore"
)

// systemPromptTemplate 有据生成的系统提示词模板
const systemPromptTemplate = `You are a helpful assistant answering questions about a local codebase and its documents.
Answer strictly based on the context fragments below. If the context does not contain the answer, say so instead of guessing.

Context fragments:
%s`

// Embedder 查询侧嵌入生成器接口
type Embedder interface {
	EmbedText(text string) ([]float32, error)
}

// Completer 对话补全接口
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

// Service 查询编排器
// 驱动检索增强问答：打开集合 → 相似度搜索 → 组装提示词 → 调用补全 → 更新会话
type Service struct {
	store     *vectorstore.Store
	embedder  Embedder
	completer Completer
	logger    *slog.Logger
}

// NewService 创建查询编排器
func NewService(store *vectorstore.Store, embedder Embedder, completer Completer) *Service {
	return &Service{
		store:     store,
		embedder:  embedder,
		completer: completer,
		logger:    log.NewModuleLogger("query", "service"),
	}
}

// Search 对索引执行一次相似度搜索
// 集合不存在返回 CollectionNotFound；零命中返回 NoSearchResults
func (s *Service) Search(ctx context.Context, text string, topK int) ([]index.SearchHit, error) {
	collection, err := s.store.OpenCollection()
	if err != nil {
		return nil, err
	}

	vector, err := s.embedder.EmbedText(text)
	if err != nil {
		return nil, index.WrapError(index.ErrQueryExecution, err, "failed to embed query")
	}

	hits, err := collection.Search(vector, topK)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, index.NewError(index.ErrNoSearchResults, "no results for query")
	}
	return hits, nil
}

// Ask 回答一个自然语言问题
// 检索到的片段注入系统提示词，会话历史随消息列表一并发送；
// session 可为 nil，表示单次问答不保留历史；
// 成功后问题与回答写入会话，检索片段计入会话累计
func (s *Service) Ask(ctx context.Context, question string, maxResults int, session *chat.Session) (string, error) {
	hits, err := s.Search(ctx, question, maxResults)
	if err != nil {
		return "", err
	}

	var history []chat.Turn
	if session != nil {
		history = session.Turns()
	}

	messages := make([]llm.Message, 0, 2+len(history))
	messages = append(messages, llm.Message{
		Role:    chat.RoleSystem,
		Content: fmt.Sprintf(systemPromptTemplate, formatContext(hits)),
	})
	for _, turn := range history {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, llm.Message{Role: chat.RoleUser, Content: question})

	answer, err := s.completer.Complete(ctx, messages)
	if err != nil {
		return "", index.WrapError(index.ErrQueryExecution, err, "completion failed")
	}

	if session != nil {
		session.AddTurn(chat.RoleUser, question)
		session.AddTurn(chat.RoleAssistant, answer)
		session.Accumulate(hits)

		s.logger.Debug("Answered question",
			"session", session.ID(),
			"hits", len(hits),
			"history_turns", len(session.Turns()),
			"retrieved_total", session.Retrieved(),
		)
	}
	return answer, nil
}

// formatContext 将检索命中格式化为提示词中的上下文片段
func formatContext(hits []index.SearchHit) string {
	var sb strings.Builder
	for i, hit := range hits {
		fmt.Fprintf(&sb, "[%d] (source: %s, score: %.3f)\n", i+1, hit.Record.DocumentID, hit.Score)
		sb.WriteString(hit.Record.Content)
		if hit.Record.Context != "" {
			sb.WriteString("\n")
			sb.WriteString(hit.Record.Context)
		}
		sb.WriteString("\n\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
