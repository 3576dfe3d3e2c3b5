package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/sourcechat/backend/internal/application/chunking"
	"github.com/sourcechat/backend/internal/domain/index"
	"github.com/sourcechat/backend/internal/infrastructure/tokenizer"
	"github.com/sourcechat/backend/internal/infrastructure/tracking"
	"github.com/sourcechat/backend/internal/infrastructure/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder 确定性嵌入器
// 按词哈希到固定维度的桶，相同文本产生相同向量
type fakeEmbedder struct {
	dim    int
	failOn string // 文本包含该子串时嵌入失败
}

func (f *fakeEmbedder) EmbedText(text string) ([]float32, error) {
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return nil, fmt.Errorf("embedding backend unavailable")
	}
	vec := make([]float32, f.dim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		sum := 0
		for _, b := range []byte(word) {
			sum += int(b)
		}
		vec[sum%f.dim]++
	}
	return vec, nil
}

func (f *fakeEmbedder) EmbedTexts(texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := f.EmbedText(text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// fakeEnricher 为每个切块附加固定上下文
type fakeEnricher struct {
	fail bool
}

func (f *fakeEnricher) Enrich(ctx context.Context, chunk index.Chunk) (string, error) {
	if f.fail {
		return "", fmt.Errorf("enrichment backend unavailable")
	}
	return "source: " + chunk.DocumentID, nil
}

// testHarness 测试夹具
type testHarness struct {
	svc     *Service
	store   *vectorstore.Store
	tracker *tracking.Tracker
	root    string
}

// newHarness 创建带临时库和临时源目录的入库服务
// dimension 为 0 时集合维度由首批向量决定
func newHarness(t *testing.T, embedder Embedder, dimension int, enricher Enricher) *testHarness {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := vectorstore.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	tracker := tracking.NewTracker(dbPath)
	est, err := tokenizer.Get("cl100k_base")
	require.NoError(t, err)

	return &testHarness{
		svc:     NewService(store, tracker, embedder, est, chunking.Options{MaxTokens: 128, OverlapTokens: 0}, dimension, enricher),
		store:   store,
		tracker: tracker,
		root:    t.TempDir(),
	}
}

// writeFile 在源目录写一个文件
func (h *testHarness) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(h.root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// collectionCount 读取集合行数
func (h *testHarness) collectionCount(t *testing.T) int {
	t.Helper()
	collection, err := h.store.OpenCollection()
	require.NoError(t, err)
	n, err := collection.Count()
	require.NoError(t, err)
	return n
}

// TestSplitPatterns 测试模式列表拆分去重
func TestSplitPatterns(t *testing.T) {
	assert.Equal(t, []string{"*.md", "*.go"}, SplitPatterns("*.md;*.go"))
	assert.Equal(t, []string{"*.md"}, SplitPatterns("*.md; *.md ;"))
	assert.Empty(t, SplitPatterns(""))
	assert.Empty(t, SplitPatterns(" ; ; "))
}

// TestDiscoverFiles 测试递归发现和隐藏目录跳过
func TestDiscoverFiles(t *testing.T) {
	h := newHarness(t, &fakeEmbedder{dim: 4}, 0, nil)
	a := h.writeFile(t, "a.md", "alpha")
	h.writeFile(t, "b.txt", "beta")
	c := h.writeFile(t, "sub/c.md", "gamma")
	h.writeFile(t, ".git/d.md", "hidden")

	files, err := DiscoverFiles(h.root, []string{"*.md"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a, c}, files)
}

// TestIngestDirectory_DirectoryNotFound 测试根目录不存在
func TestIngestDirectory_DirectoryNotFound(t *testing.T) {
	h := newHarness(t, &fakeEmbedder{dim: 4}, 0, nil)

	_, err := h.svc.IngestDirectory(context.Background(), filepath.Join(h.root, "missing"), "*.md", index.StrategySemantic, false)
	require.Error(t, err)
	assert.True(t, index.IsCode(err, index.ErrDirectoryNotFound))
	assert.Contains(t, err.Error(), "missing")
}

// TestIngestDirectory_ZeroMatches 测试零匹配是零进展的成功
func TestIngestDirectory_ZeroMatches(t *testing.T) {
	h := newHarness(t, &fakeEmbedder{dim: 4}, 0, nil)
	h.writeFile(t, "a.go", "package main")

	result, err := h.svc.IngestDirectory(context.Background(), h.root, "*.md", index.StrategySemantic, false)
	require.NoError(t, err)
	assert.Zero(t, result.FilesProcessed)
	assert.Zero(t, result.Errors)
	// 集合从未创建时抽样为空，依旧是成功
	assert.Empty(t, result.Sample)
}

// TestIngestDirectory_FullRun 测试完整入库和入库后抽样
func TestIngestDirectory_FullRun(t *testing.T) {
	h := newHarness(t, &fakeEmbedder{dim: 8}, 0, nil)
	h.writeFile(t, "a.md", "Ingestion discovers files and writes vectors.")
	h.writeFile(t, "b.md", "Query answers questions with retrieved fragments.")

	result, err := h.svc.IngestDirectory(context.Background(), h.root, "*.md", index.StrategySemantic, false)
	require.NoError(t, err)

	assert.Equal(t, 2, result.FilesProcessed)
	assert.Zero(t, result.Errors)
	assert.NotEmpty(t, result.Sample)
	assert.Positive(t, h.collectionCount(t))

	// 追踪文件落盘
	require.FileExists(t, h.tracker.Path())
	assert.Len(t, h.svc.ListTrackedFiles(), 2)
}

// TestIngestDirectory_IncrementalIdempotent 测试增量入库幂等
func TestIngestDirectory_IncrementalIdempotent(t *testing.T) {
	h := newHarness(t, &fakeEmbedder{dim: 8}, 0, nil)
	a := h.writeFile(t, "a.md", "alpha content")
	h.writeFile(t, "b.md", "beta content")

	result, err := h.svc.IngestDirectory(context.Background(), h.root, "*.md", index.StrategySemantic, true)
	require.NoError(t, err)
	assert.Equal(t, 2, result.FilesProcessed)

	// 无变更的第二次运行不处理任何文件
	result, err = h.svc.IngestDirectory(context.Background(), h.root, "*.md", index.StrategySemantic, true)
	require.NoError(t, err)
	assert.Zero(t, result.FilesProcessed)

	// 修改时间变化触发重处理
	newTime := time.Now().Add(2 * time.Hour)
	require.NoError(t, os.Chtimes(a, newTime, newTime))

	result, err = h.svc.IngestDirectory(context.Background(), h.root, "*.md", index.StrategySemantic, true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesProcessed)
}

// TestIngestDirectory_DeletionKeepsVectors 测试删除文件只回收追踪记录，向量行保留
func TestIngestDirectory_DeletionKeepsVectors(t *testing.T) {
	h := newHarness(t, &fakeEmbedder{dim: 8}, 0, nil)
	h.writeFile(t, "keep.md", "kept content stays here")
	gone := h.writeFile(t, "gone.md", "removed content goes away")

	_, err := h.svc.IngestDirectory(context.Background(), h.root, "*.md", index.StrategySemantic, true)
	require.NoError(t, err)
	countBefore := h.collectionCount(t)
	require.Len(t, h.svc.ListTrackedFiles(), 2)

	require.NoError(t, os.Remove(gone))

	_, err = h.svc.IngestDirectory(context.Background(), h.root, "*.md", index.StrategySemantic, true)
	require.NoError(t, err)

	// 追踪记录只剩存活文件
	files := h.svc.ListTrackedFiles()
	require.Len(t, files, 1)
	assert.Contains(t, files[0].Path, "keep.md")

	// 已删除文件的向量行保留在集合中
	assert.Equal(t, countBefore, h.collectionCount(t))
}

// TestIngestDirectory_PerFileErrorNonFatal 测试单文件失败计数后继续
func TestIngestDirectory_PerFileErrorNonFatal(t *testing.T) {
	h := newHarness(t, &fakeEmbedder{dim: 8, failOn: "poison"}, 0, nil)
	h.writeFile(t, "good.md", "healthy content")
	h.writeFile(t, "bad.md", "poison content")

	result, err := h.svc.IngestDirectory(context.Background(), h.root, "*.md", index.StrategySemantic, false)
	require.NoError(t, err)

	assert.Equal(t, 1, result.FilesProcessed)
	assert.Equal(t, 1, result.Errors)
	// 有错误的运行跳过抽样
	assert.Empty(t, result.Sample)

	// 失败文件未被记录，下次增量运行会重试
	files := h.svc.ListTrackedFiles()
	require.Len(t, files, 1)
	assert.Contains(t, files[0].Path, "good.md")
}

// TestIngestDirectory_DimensionMismatchAborts 测试维度不匹配中止整次入库
func TestIngestDirectory_DimensionMismatchAborts(t *testing.T) {
	h := newHarness(t, &fakeEmbedder{dim: 4}, 0, nil)
	h.writeFile(t, "a.md", "content one")
	h.writeFile(t, "b.md", "content two")

	// 预先以不同维度固定集合
	_, err := h.store.OpenOrCreateCollection(8)
	require.NoError(t, err)

	result, err := h.svc.IngestDirectory(context.Background(), h.root, "*.md", index.StrategySemantic, false)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, index.IsCode(err, index.ErrDimensionMismatch))

	// 中止的文件不留下追踪记录
	assert.Empty(t, h.svc.ListTrackedFiles())
}

// TestIngestDirectory_ProvisionsResolvedDimension 测试集合以解析出的嵌入维度创建
func TestIngestDirectory_ProvisionsResolvedDimension(t *testing.T) {
	h := newHarness(t, &fakeEmbedder{dim: 8}, 8, nil)
	h.writeFile(t, "a.md", "dimension comes from the resolver")

	_, err := h.svc.IngestDirectory(context.Background(), h.root, "*.md", index.StrategySemantic, false)
	require.NoError(t, err)

	collection, err := h.store.OpenCollection()
	require.NoError(t, err)
	assert.Equal(t, 8, collection.Dimension())
}

// TestIngestDirectory_ResolvedDimensionMismatchAborts 测试解析维度与实际向量不符时中止
func TestIngestDirectory_ResolvedDimensionMismatchAborts(t *testing.T) {
	h := newHarness(t, &fakeEmbedder{dim: 4}, 8, nil)
	h.writeFile(t, "a.md", "actual vectors disagree with the resolver")

	result, err := h.svc.IngestDirectory(context.Background(), h.root, "*.md", index.StrategySemantic, false)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, index.IsCode(err, index.ErrDimensionMismatch))
}

// TestIngestDirectory_Enricher 测试切块增强写入上下文字段
func TestIngestDirectory_Enricher(t *testing.T) {
	h := newHarness(t, &fakeEmbedder{dim: 8}, 0, &fakeEnricher{})
	path := h.writeFile(t, "a.md", "enriched content")

	_, err := h.svc.IngestDirectory(context.Background(), h.root, "*.md", index.StrategySemantic, false)
	require.NoError(t, err)

	collection, err := h.store.OpenCollection()
	require.NoError(t, err)
	embedder := &fakeEmbedder{dim: 8}
	vec, err := embedder.EmbedText("enriched content")
	require.NoError(t, err)

	hits, err := collection.Search(vec, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "source: "+path, hits[0].Record.Context)
}

// TestIngestDirectory_EnricherFailureNonFatal 测试增强失败不影响入库
func TestIngestDirectory_EnricherFailureNonFatal(t *testing.T) {
	h := newHarness(t, &fakeEmbedder{dim: 8}, 0, &fakeEnricher{fail: true})
	h.writeFile(t, "a.md", "plain content")

	result, err := h.svc.IngestDirectory(context.Background(), h.root, "*.md", index.StrategySemantic, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesProcessed)
	assert.Zero(t, result.Errors)
}

// TestTruncatePreview 测试预览截断不切断多字节字符
func TestTruncatePreview(t *testing.T) {
	short := "short content"
	assert.Equal(t, short, truncatePreview(short))

	// 前缀一个 ASCII 字节让截断边界落在汉字中间
	long := "x" + strings.Repeat("索引内容", 20)
	require.Greater(t, len(long), samplePreviewLen)
	require.False(t, utf8.RuneStart(long[samplePreviewLen]))

	preview := truncatePreview(long)
	assert.True(t, utf8.ValidString(preview))
	assert.True(t, strings.HasSuffix(preview, "..."))
	assert.Less(t, len(preview), samplePreviewLen+3)
}

// TestClearAll 测试清空索引与追踪状态
func TestClearAll(t *testing.T) {
	h := newHarness(t, &fakeEmbedder{dim: 8}, 0, nil)
	h.writeFile(t, "a.md", "some content")

	_, err := h.svc.IngestDirectory(context.Background(), h.root, "*.md", index.StrategySemantic, false)
	require.NoError(t, err)
	require.NotEmpty(t, h.svc.ListTrackedFiles())

	require.NoError(t, h.svc.ClearAll())

	assert.Empty(t, h.svc.ListTrackedFiles())
	_, err = h.store.OpenCollection()
	assert.True(t, index.IsCode(err, index.ErrCollectionNotFound))
}
