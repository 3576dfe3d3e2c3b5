package chunking

import (
	"fmt"
	"strings"

	"github.com/sourcechat/backend/internal/domain/index"
	"github.com/sourcechat/backend/internal/infrastructure/tokenizer"
)

// Chunker 分块策略接口
// 将文档内容切分为带 Token 计数的块序列
type Chunker interface {
	Chunk(content, documentID string) ([]index.Chunk, error)
}

// Options 分块参数
type Options struct {
	MaxTokens     int // 单块 Token 上限
	OverlapTokens int // 相邻块重叠 Token 数
}

// normalize 填充默认参数并修正非法组合
func (o Options) normalize() Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = 512
	}
	if o.OverlapTokens < 0 {
		o.OverlapTokens = 0
	}
	if o.OverlapTokens >= o.MaxTokens {
		o.OverlapTokens = o.MaxTokens / 4
	}
	return o
}

// ForStrategy 按策略枚举选择具体分块器
func ForStrategy(strategy index.ChunkStrategy, estimator *tokenizer.Estimator, opts Options) (Chunker, error) {
	opts = opts.normalize()

	switch strategy {
	case index.StrategySemantic:
		return &semanticChunker{estimator: estimator, opts: opts}, nil
	case index.StrategySection:
		return &sectionChunker{estimator: estimator, opts: opts}, nil
	case index.StrategyStructural:
		return &structuralChunker{estimator: estimator, opts: opts}, nil
	default:
		return nil, fmt.Errorf("unknown chunk strategy: %s", strategy)
	}
}

// packUnits 将文本单元贪心打包为块
// 超出 Token 上限的单元先做硬切分，再参与打包；相邻块按 Token 预算保留尾部单元作为重叠
func packUnits(units []string, joiner, documentID string, estimator *tokenizer.Estimator, opts Options) ([]index.Chunk, error) {
	var chunks []index.Chunk
	var current []string
	currentTokens := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		content := strings.Join(current, joiner)
		chunks = append(chunks, index.Chunk{
			Content:    content,
			TokenCount: estimator.CountTokens(content),
			DocumentID: documentID,
		})

		// 保留尾部单元作为下一块的重叠前缀
		if opts.OverlapTokens > 0 {
			var carry []string
			carryTokens := 0
			for i := len(current) - 1; i >= 0; i-- {
				t := estimator.CountTokens(current[i])
				if carryTokens+t > opts.OverlapTokens {
					break
				}
				carry = append([]string{current[i]}, carry...)
				carryTokens += t
			}
			current = carry
			currentTokens = carryTokens
		} else {
			current = nil
			currentTokens = 0
		}
	}

	for _, unit := range units {
		unit = strings.TrimRight(unit, " \t")
		if strings.TrimSpace(unit) == "" {
			continue
		}

		tokens := estimator.CountTokens(unit)
		if tokens > opts.MaxTokens {
			// 单元本身超限，硬切分后逐段处理
			flush()
			for _, piece := range splitByTokens(unit, estimator, opts) {
				chunks = append(chunks, index.Chunk{
					Content:    piece,
					TokenCount: estimator.CountTokens(piece),
					DocumentID: documentID,
				})
			}
			current = nil
			currentTokens = 0
			continue
		}

		if currentTokens+tokens > opts.MaxTokens {
			flush()
		}
		current = append(current, unit)
		currentTokens += tokens
	}
	flush()

	return chunks, nil
}

// splitByTokens 按 Token 窗口硬切分超长文本
func splitByTokens(text string, estimator *tokenizer.Estimator, opts Options) []string {
	tokens := estimator.Encode(text)

	stride := opts.MaxTokens - opts.OverlapTokens
	if stride <= 0 {
		stride = opts.MaxTokens
	}

	var pieces []string
	for start := 0; start < len(tokens); start += stride {
		end := start + opts.MaxTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		pieces = append(pieces, estimator.Decode(tokens[start:end]))
		if end == len(tokens) {
			break
		}
	}
	return pieces
}
