package chunking

import (
	"regexp"

	"github.com/sourcechat/backend/internal/domain/index"
	"github.com/sourcechat/backend/internal/infrastructure/tokenizer"
)

// paragraphSplit 以空行为段落边界
var paragraphSplit = regexp.MustCompile(`\n[ \t]*\n+`)

// semanticChunker 语义分块器
// 按段落切分后贪心打包，保持自然语义边界
type semanticChunker struct {
	estimator *tokenizer.Estimator
	opts      Options
}

func (c *semanticChunker) Chunk(content, documentID string) ([]index.Chunk, error) {
	paragraphs := paragraphSplit.Split(content, -1)
	return packUnits(paragraphs, "\n\n", documentID, c.estimator, c.opts)
}
