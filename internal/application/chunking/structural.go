package chunking

import (
	"strings"

	"github.com/sourcechat/backend/internal/domain/index"
	"github.com/sourcechat/backend/internal/infrastructure/tokenizer"
)

// structuralChunker 结构分块器
// 面向代码文件：以顶层声明边界（零缩进非空行前的空行）切分代码块
type structuralChunker struct {
	estimator *tokenizer.Estimator
	opts      Options
}

func (c *structuralChunker) Chunk(content, documentID string) ([]index.Chunk, error) {
	blocks := splitBlocks(content)
	return packUnits(blocks, "\n\n", documentID, c.estimator, c.opts)
}

// splitBlocks 将代码按顶层块切分
// 新块从空行之后的零缩进行开始，缩进行始终归属当前块
func splitBlocks(content string) []string {
	lines := strings.Split(content, "\n")

	var blocks []string
	var current []string
	prevBlank := true

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		isBlank := trimmed == ""
		topLevel := !isBlank && line[0] != ' ' && line[0] != '\t'

		if topLevel && prevBlank && len(current) > 0 {
			blocks = append(blocks, strings.TrimSpace(strings.Join(current, "\n")))
			current = current[:0]
		}

		current = append(current, line)
		prevBlank = isBlank
	}
	if len(current) > 0 {
		blocks = append(blocks, strings.TrimSpace(strings.Join(current, "\n")))
	}

	return blocks
}
