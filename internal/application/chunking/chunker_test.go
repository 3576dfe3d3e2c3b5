package chunking

import (
	"strings"
	"testing"

	"github.com/sourcechat/backend/internal/domain/index"
	"github.com/sourcechat/backend/internal/infrastructure/tokenizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEstimator 获取测试用的离线分词器
func testEstimator(t *testing.T) *tokenizer.Estimator {
	t.Helper()
	est, err := tokenizer.Get("cl100k_base")
	require.NoError(t, err)
	return est
}

// TestForStrategy 测试策略选择
func TestForStrategy(t *testing.T) {
	est := testEstimator(t)

	for _, strategy := range []index.ChunkStrategy{
		index.StrategySemantic,
		index.StrategySection,
		index.StrategyStructural,
	} {
		chunker, err := ForStrategy(strategy, est, Options{MaxTokens: 128})
		require.NoError(t, err)
		assert.NotNil(t, chunker)
	}

	_, err := ForStrategy(index.ChunkStrategy(99), est, Options{})
	assert.Error(t, err)
}

// TestSemanticChunker_PacksParagraphs 测试段落打包在预算内
func TestSemanticChunker_PacksParagraphs(t *testing.T) {
	est := testEstimator(t)
	chunker, err := ForStrategy(index.StrategySemantic, est, Options{MaxTokens: 512})
	require.NoError(t, err)

	doc := "First paragraph about ingestion.\n\nSecond paragraph about retrieval.\n\nThird paragraph about answers."
	chunks, err := chunker.Chunk(doc, "/src/doc.md")
	require.NoError(t, err)

	// 三个短段落在预算内合并为一个块
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Content, "First paragraph")
	assert.Contains(t, chunks[0].Content, "Third paragraph")
	assert.Equal(t, "/src/doc.md", chunks[0].DocumentID)
	assert.Positive(t, chunks[0].TokenCount)
}

// TestSemanticChunker_SplitsAndOverlaps 测试超预算切分和相邻块重叠
func TestSemanticChunker_SplitsAndOverlaps(t *testing.T) {
	est := testEstimator(t)

	p1 := "The ingestion pipeline reads every discovered file."
	p2 := "Chunks are embedded and written to the collection."
	p3 := "Tracking records are flushed at the end of the run."

	t1 := est.CountTokens(p1)
	t2 := est.CountTokens(p2)
	t3 := est.CountTokens(p3)
	budget := t1
	if t3 > budget {
		budget = t3
	}

	chunker, err := ForStrategy(index.StrategySemantic, est, Options{
		MaxTokens:     budget + t2,
		OverlapTokens: t2,
	})
	require.NoError(t, err)

	chunks, err := chunker.Chunk(p1+"\n\n"+p2+"\n\n"+p3, "/src/doc.md")
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Contains(t, chunks[0].Content, p1)
	assert.Contains(t, chunks[0].Content, p2)
	// 第二块携带上一块的尾部段落作为重叠
	assert.Contains(t, chunks[1].Content, p2)
	assert.Contains(t, chunks[1].Content, p3)
}

// TestSemanticChunker_HardSplitOversizedUnit 测试超长单段的硬切分
func TestSemanticChunker_HardSplitOversizedUnit(t *testing.T) {
	est := testEstimator(t)
	chunker, err := ForStrategy(index.StrategySemantic, est, Options{MaxTokens: 16, OverlapTokens: 0})
	require.NoError(t, err)

	long := strings.Repeat("incremental ingestion keeps the index fresh ", 50)
	chunks, err := chunker.Chunk(long, "/src/long.md")
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for _, chunk := range chunks {
		assert.LessOrEqual(t, chunk.TokenCount, 16)
		assert.NotEmpty(t, chunk.Content)
	}
}

// TestSectionChunker_SplitsOnHeadings 测试按标题分节
func TestSectionChunker_SplitsOnHeadings(t *testing.T) {
	est := testEstimator(t)
	chunker, err := ForStrategy(index.StrategySection, est, Options{MaxTokens: 24, OverlapTokens: 0})
	require.NoError(t, err)

	doc := `# Overview

SourceChat indexes local files for retrieval.

## Ingestion

Files are discovered by glob patterns and chunked by token budget.

## Querying

Questions are answered with retrieved fragments.`

	chunks, err := chunker.Chunk(doc, "/src/readme.md")
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	assert.True(t, strings.HasPrefix(chunks[0].Content, "# Overview"))

	joined := ""
	for _, chunk := range chunks {
		joined += chunk.Content + "\n"
	}
	assert.Contains(t, joined, "## Ingestion")
	assert.Contains(t, joined, "## Querying")
}

// TestSectionChunker_NoHeadings 测试无标题文档退化为语义分块
func TestSectionChunker_NoHeadings(t *testing.T) {
	est := testEstimator(t)
	chunker, err := ForStrategy(index.StrategySection, est, Options{MaxTokens: 512})
	require.NoError(t, err)

	chunks, err := chunker.Chunk("Just a plain paragraph.\n\nAnd another one.", "/src/notes.txt")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Content, "plain paragraph")
}

// TestSectionChunker_IgnoresHeadingsInCodeFence 测试代码围栏内的 # 行不视为标题
func TestSectionChunker_IgnoresHeadingsInCodeFence(t *testing.T) {
	doc := "# Real heading\n\nIntro text.\n\n```\n# not a heading\ncode line\n```\n\nOutro text."
	sections := splitSections(doc)
	require.Len(t, sections, 1)
	assert.Contains(t, sections[0], "# not a heading")
}

// TestStructuralChunker_SplitsTopLevelBlocks 测试按顶层代码块切分
func TestStructuralChunker_SplitsTopLevelBlocks(t *testing.T) {
	est := testEstimator(t)
	chunker, err := ForStrategy(index.StrategyStructural, est, Options{MaxTokens: 20, OverlapTokens: 0})
	require.NoError(t, err)

	code := `func ingest() {
	discover()
	embed()
}

func query() {
	search()
	complete()
}

func clear() {
	drop()
}`

	chunks, err := chunker.Chunk(code, "/src/main.go")
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	assert.True(t, strings.HasPrefix(chunks[0].Content, "func ingest()"))
	// 缩进行归属所在的顶层块
	assert.Contains(t, chunks[0].Content, "discover()")
}

// TestOptionsNormalize 测试非法参数组合修正
func TestOptionsNormalize(t *testing.T) {
	opts := Options{}.normalize()
	assert.Equal(t, 512, opts.MaxTokens)
	assert.Zero(t, opts.OverlapTokens)

	opts = Options{MaxTokens: 100, OverlapTokens: 200}.normalize()
	assert.Equal(t, 100, opts.MaxTokens)
	assert.Equal(t, 25, opts.OverlapTokens)
}
