package index

import (
	"fmt"
	"strings"
)

// TrackedFile 文件追踪记录
// 记录一个已成功入库文件的变更检测信息，支持增量入库
type TrackedFile struct {
	Path        string `json:"path"`         // 源文件绝对路径（主键）
	ModifiedAt  int64  `json:"modified_at"`  // 文件修改时间（Unix 秒）
	ContentHash string `json:"content_hash"` // 文件内容 SHA256 哈希
	ProcessedAt int64  `json:"processed_at"` // 最后处理时间（Unix 秒）
}

// Chunk 切块结果
// 由切块策略产出的带 Token 计数的文本单元
type Chunk struct {
	Content    string // 切块文本
	TokenCount int    // Token 数量
	DocumentID string // 来源文档标识（源文件路径）
}

// Record 向量集合的一行记录
// 固定 Schema：key + 向量 + 三个字符串字段
type Record struct {
	Key        string    // 行主键
	Vector     []float32 // 嵌入向量（维度由集合固定）
	Content    string    // 切块文本
	Context    string    // 可选的上下文补充文本
	DocumentID string    // 来源文档标识
}

// SearchHit 相似度搜索命中
type SearchHit struct {
	Score  float64 // 相似度分数（降序）
	Record Record
}

// SampleHit 入库后抽样检索的样本
type SampleHit struct {
	Score   float64 `json:"score"`
	Preview string  `json:"preview"` // 截断后的内容预览
}

// IngestionResult 一次入库的结果汇总
type IngestionResult struct {
	FilesProcessed int         `json:"files_processed"` // 成功处理的文件数
	Errors         int         `json:"errors"`          // 失败文件数（非致命）
	Sample         []SampleHit `json:"sample"`          // 入库后抽样检索结果
}

// ChunkStrategy 切块策略
type ChunkStrategy int

const (
	// StrategySemantic 语义切块：按段落边界打包 Token 预算
	StrategySemantic ChunkStrategy = iota
	// StrategySection 章节切块：按 Markdown 标题分节
	StrategySection
	// StrategyStructural 结构切块：按行/缩进切分（面向代码）
	StrategyStructural
)

// ParseChunkStrategy 解析切块策略名（大小写不敏感）
func ParseChunkStrategy(s string) (ChunkStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "semantic", "":
		return StrategySemantic, nil
	case "section":
		return StrategySection, nil
	case "structural":
		return StrategyStructural, nil
	default:
		return StrategySemantic, fmt.Errorf("unknown chunk strategy %q", s)
	}
}

// String 返回策略名
func (s ChunkStrategy) String() string {
	switch s {
	case StrategySection:
		return "section"
	case StrategyStructural:
		return "structural"
	default:
		return "semantic"
	}
}
