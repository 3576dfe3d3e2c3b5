package chat

import (
	"github.com/google/uuid"
	"github.com/sourcechat/backend/internal/domain/index"
)

// 消息角色常量
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn 一轮对话消息
type Turn struct {
	Role    string
	Content string
}

// Session 交互会话上下文
// 保存历史轮次和整个会话累计检索到的片段，进程内存态，不持久化
type Session struct {
	id        string
	turns     []Turn
	retrieved []index.SearchHit
}

// NewSession 创建空会话
func NewSession() *Session {
	return &Session{id: uuid.NewString()}
}

// ID 返回会话标识
func (s *Session) ID() string {
	return s.id
}

// AddTurn 追加一轮消息
func (s *Session) AddTurn(role, content string) {
	s.turns = append(s.turns, Turn{Role: role, Content: content})
}

// Turns 返回历史轮次快照
func (s *Session) Turns() []Turn {
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Accumulate 记录本轮检索到的片段
func (s *Session) Accumulate(hits []index.SearchHit) {
	s.retrieved = append(s.retrieved, hits...)
}

// Retrieved 返回会话累计检索片段数
func (s *Session) Retrieved() int {
	return len(s.retrieved)
}

// Clear 清空历史和累计片段
func (s *Session) Clear() {
	s.turns = nil
	s.retrieved = nil
}
