package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"unicode/utf8"

	"github.com/sourcechat/backend/internal/application/chunking"
	"github.com/sourcechat/backend/internal/domain/index"
	"github.com/sourcechat/backend/internal/infrastructure/log"
	"github.com/sourcechat/backend/internal/infrastructure/tokenizer"
	"github.com/sourcechat/backend/internal/infrastructure/tracking"
	"github.com/sourcechat/backend/internal/infrastructure/vectorstore"
)

// sampleQuery 入库后抽样检索使用的固定查询文本
const sampleQuery = "summary overview content"

// samplePreviewLen 抽样结果的内容预览截断长度
const samplePreviewLen = 120

// Embedder 嵌入生成器接口
type Embedder interface {
	EmbedTexts(texts []string) ([][]float32, error)
	EmbedText(text string) ([]float32, error)
}

// Enricher 切块增强器接口
// 为切块补充上下文文本（摘要、图片替代文本等）；尽力而为，失败不影响入库
type Enricher interface {
	Enrich(ctx context.Context, chunk index.Chunk) (string, error)
}

// Service 入库编排器
// 驱动完整的入库流程：发现文件 → 增量过滤 → 切块 → 嵌入 → 写入 → 追踪
type Service struct {
	store     *vectorstore.Store
	tracker   *tracking.Tracker
	embedder  Embedder
	estimator *tokenizer.Estimator
	chunkOpts chunking.Options
	dimension int
	enricher  Enricher
	logger    *slog.Logger
}

// NewService 创建入库编排器
// dimension 是后端解析出的嵌入维度，用于创建集合；非正值时退化为首批向量的实际维度。
// 集合一旦创建，维度校验以存储层为准。
// enricher 可为 nil，表示不做切块增强
func NewService(store *vectorstore.Store, tracker *tracking.Tracker, embedder Embedder, estimator *tokenizer.Estimator, chunkOpts chunking.Options, dimension int, enricher Enricher) *Service {
	return &Service{
		store:     store,
		tracker:   tracker,
		embedder:  embedder,
		estimator: estimator,
		chunkOpts: chunkOpts,
		dimension: dimension,
		enricher:  enricher,
		logger:    log.NewModuleLogger("ingest", "service"),
	}
}

// IngestDirectory 对一个根目录执行一次完整入库
// incremental 为 true 时只处理变更文件并清理已删除文件的追踪记录；
// 单文件失败计入错误数后继续，维度不匹配立即中止整次入库
func (s *Service) IngestDirectory(ctx context.Context, root, patterns string, strategy index.ChunkStrategy, incremental bool) (result *index.IngestionResult, retErr error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, index.NewError(index.ErrDirectoryNotFound, "directory not found: %s", root)
	}

	files, err := DiscoverFiles(root, SplitPatterns(patterns))
	if err != nil {
		return nil, err
	}

	s.logger.Info("Starting ingestion",
		"root", root,
		"patterns", patterns,
		"strategy", strategy.String(),
		"incremental", incremental,
		"discovered", len(files),
	)

	// 追踪文件必须落盘，即使中途失败
	defer func() {
		if err := s.tracker.Persist(); err != nil {
			s.logger.Error("Failed to persist tracking store", "error", err)
			if retErr == nil {
				result = nil
				retErr = err
			}
		}
	}()

	if incremental {
		current := make(map[string]struct{}, len(files))
		for _, f := range files {
			current[f] = struct{}{}
		}
		// 已删除文件只清理追踪记录，对应向量行保留
		removed := s.tracker.ReconcileDeletions(current)
		if len(removed) > 0 {
			s.logger.Info("Reconciled deleted files", "removed", len(removed))
		}

		filtered := files[:0]
		for _, f := range files {
			fi, err := os.Stat(f)
			if err != nil {
				continue
			}
			if s.tracker.NeedsProcessing(f, fi.ModTime()) {
				filtered = append(filtered, f)
			}
		}
		files = filtered
	}

	chunker, err := chunking.ForStrategy(strategy, s.estimator, s.chunkOpts)
	if err != nil {
		return nil, index.WrapError(index.ErrFileProcessing, err, "failed to select chunker")
	}

	res := &index.IngestionResult{}
	var collection *vectorstore.Collection

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, index.WrapError(index.ErrFileProcessing, err, "ingestion cancelled")
		}

		collection, err = s.processFile(ctx, file, chunker, collection)
		if err != nil {
			if index.IsCode(err, index.ErrDimensionMismatch) {
				// 继续写入会破坏索引一致性，整次入库立即中止
				s.logger.Error("Dimension mismatch, aborting ingestion", "file", file, "error", err)
				return nil, err
			}
			s.logger.Warn("Failed to process file", "file", file, "error", err)
			res.Errors++
			continue
		}
		res.FilesProcessed++
	}

	if res.Errors == 0 {
		sample, err := s.sampleSearch()
		if err != nil {
			return nil, err
		}
		res.Sample = sample
	}

	s.logger.Info("Ingestion finished",
		"processed", res.FilesProcessed,
		"errors", res.Errors,
	)
	return res, nil
}

// processFile 处理单个文件：读取、切块、增强、嵌入、写入、记录
// 首次写入时以实际向量维度创建集合
func (s *Service) processFile(ctx context.Context, path string, chunker chunking.Chunker, collection *vectorstore.Collection) (*vectorstore.Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return collection, index.WrapError(index.ErrFileProcessing, err, "failed to read file %s", path)
	}

	fi, err := os.Stat(path)
	if err != nil {
		return collection, index.WrapError(index.ErrFileProcessing, err, "failed to stat file %s", path)
	}

	chunks, err := chunker.Chunk(string(data), path)
	if err != nil {
		return collection, index.WrapError(index.ErrFileProcessing, err, "failed to chunk file %s", path)
	}

	if len(chunks) > 0 {
		contexts := make([]string, len(chunks))
		if s.enricher != nil {
			for i, chunk := range chunks {
				enriched, err := s.enricher.Enrich(ctx, chunk)
				if err != nil {
					// 增强是尽力而为的，失败不阻塞入库
					s.logger.Debug("Enrichment failed, continuing without context", "file", path, "error", err)
					continue
				}
				contexts[i] = enriched
			}
		}

		texts := make([]string, len(chunks))
		for i, chunk := range chunks {
			texts[i] = chunk.Content
		}
		vectors, err := s.embedder.EmbedTexts(texts)
		if err != nil {
			return collection, index.WrapError(index.ErrFileProcessing, err, "failed to embed file %s", path)
		}
		if len(vectors) != len(chunks) {
			return collection, index.NewError(index.ErrFileProcessingFailed, "embedding returned %d vectors for %d chunks of %s", len(vectors), len(chunks), path)
		}

		// 首个写入者固定集合维度：优先使用解析出的嵌入维度，
		// 未解析时以实际向量维度为准；写入校验始终由存储层把关
		if collection == nil {
			dim := s.dimension
			if dim <= 0 {
				dim = len(vectors[0])
			}
			collection, err = s.store.OpenOrCreateCollection(dim)
			if err != nil {
				return nil, err
			}
		}

		records := make([]index.Record, len(chunks))
		for i, chunk := range chunks {
			records[i] = index.Record{
				Key:        fmt.Sprintf("%s#%d", path, i),
				Vector:     vectors[i],
				Content:    chunk.Content,
				Context:    contexts[i],
				DocumentID: chunk.DocumentID,
			}
		}
		if err := collection.Write(records); err != nil {
			return collection, err
		}
	}

	hash := sha256.Sum256(data)
	s.tracker.RecordSuccess(path, fi.ModTime(), hex.EncodeToString(hash[:]))
	return collection, nil
}

// sampleSearch 入库后的抽样检索
// 用固定查询验证索引可检索；集合不存在（本次没有写入任何内容）视为成功的空样本
func (s *Service) sampleSearch() ([]index.SampleHit, error) {
	collection, err := s.store.OpenCollection()
	if err != nil {
		if index.IsCode(err, index.ErrCollectionNotFound) {
			return nil, nil
		}
		return nil, index.WrapError(index.ErrSummaryRetrieval, err, "failed to open collection for sampling")
	}

	vector, err := s.embedder.EmbedText(sampleQuery)
	if err != nil {
		return nil, index.WrapError(index.ErrSummaryRetrieval, err, "failed to embed sample query")
	}

	hits, err := collection.Search(vector, 3)
	if err != nil {
		return nil, index.WrapError(index.ErrSummaryRetrieval, err, "sample search failed")
	}

	sample := make([]index.SampleHit, 0, len(hits))
	for _, hit := range hits {
		sample = append(sample, index.SampleHit{Score: hit.Score, Preview: truncatePreview(hit.Record.Content)})
	}
	return sample, nil
}

// truncatePreview 截断内容预览，保证不切断多字节字符
func truncatePreview(content string) string {
	if len(content) <= samplePreviewLen {
		return content
	}
	cut := samplePreviewLen
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + "..."
}

// ListTrackedFiles 返回当前追踪的全部文件记录（按路径排序）
func (s *Service) ListTrackedFiles() []index.TrackedFile {
	paths := s.tracker.Paths()
	records := make([]index.TrackedFile, 0, len(paths))
	for _, p := range paths {
		if rec, ok := s.tracker.Get(p); ok {
			records = append(records, rec)
		}
	}
	return records
}

// ClearAll 清空索引与追踪状态
func (s *Service) ClearAll() error {
	if err := s.store.DropCollection(); err != nil {
		return err
	}
	return s.tracker.Clear()
}
