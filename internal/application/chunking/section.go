package chunking

import (
	"strings"

	"github.com/sourcechat/backend/internal/domain/index"
	"github.com/sourcechat/backend/internal/infrastructure/tokenizer"
)

// sectionChunker 章节分块器
// 以 Markdown 标题为边界切分，标题与正文保持在同一块中
type sectionChunker struct {
	estimator *tokenizer.Estimator
	opts      Options
}

func (c *sectionChunker) Chunk(content, documentID string) ([]index.Chunk, error) {
	sections := splitSections(content)
	if len(sections) <= 1 {
		// 无标题结构时退化为语义分块
		fallback := &semanticChunker{estimator: c.estimator, opts: c.opts}
		return fallback.Chunk(content, documentID)
	}
	return packUnits(sections, "\n\n", documentID, c.estimator, c.opts)
}

// splitSections 按 ATX 标题行切分文档
func splitSections(content string) []string {
	lines := strings.Split(content, "\n")

	var sections []string
	var current []string
	inFence := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
		}

		if !inFence && isHeading(trimmed) && len(current) > 0 {
			sections = append(sections, strings.TrimSpace(strings.Join(current, "\n")))
			current = current[:0]
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		sections = append(sections, strings.TrimSpace(strings.Join(current, "\n")))
	}

	return sections
}

// isHeading 判断是否为 ATX 标题行（# 到 ######）
func isHeading(line string) bool {
	if !strings.HasPrefix(line, "#") {
		return false
	}
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level > 6 {
		return false
	}
	return level == len(line) || line[level] == ' ' || line[level] == '\t'
}
