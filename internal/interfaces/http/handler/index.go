package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/sourcechat/backend/internal/application/ingest"
	"github.com/sourcechat/backend/internal/application/query"
	"github.com/sourcechat/backend/internal/domain/chat"
	"github.com/sourcechat/backend/internal/domain/index"
	"github.com/sourcechat/backend/internal/infrastructure/config"
	"github.com/sourcechat/backend/internal/infrastructure/log"
	"github.com/sourcechat/backend/internal/interfaces/http/response"
)

// IndexHandler 索引处理器
// 覆盖入库、查询、搜索和索引管理接口
type IndexHandler struct {
	ingestService *ingest.Service
	queryService  *query.Service
	cfg           *config.Config
	logger        *slog.Logger
}

// NewIndexHandler 创建索引处理器
func NewIndexHandler(ingestService *ingest.Service, queryService *query.Service, cfg *config.Config) *IndexHandler {
	return &IndexHandler{
		ingestService: ingestService,
		queryService:  queryService,
		cfg:           cfg,
		logger:        log.NewModuleLogger("http", "index_handler"),
	}
}

// IngestRequest 入库请求
type IngestRequest struct {
	Root        string `json:"root" binding:"required"` // 入库根目录
	Patterns    string `json:"patterns,omitempty"`      // 分号分隔的 glob 模式，缺省用配置值
	Strategy    string `json:"strategy,omitempty"`      // 切块策略：semantic/section/structural
	Incremental *bool  `json:"incremental,omitempty"`   // 缺省用配置值
}

// Ingest 处理入库请求
// POST /api/v1/ingest
func (h *IndexHandler) Ingest(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	patterns := req.Patterns
	if patterns == "" {
		patterns = h.cfg.Ingest.Patterns
	}

	strategyName := req.Strategy
	if strategyName == "" {
		strategyName = h.cfg.Chunking.Strategy
	}
	strategy, err := index.ParseChunkStrategy(strategyName)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	incremental := h.cfg.Ingest.Incremental
	if req.Incremental != nil {
		incremental = *req.Incremental
	}

	result, err := h.ingestService.IngestDirectory(c.Request.Context(), req.Root, patterns, strategy, incremental)
	if err != nil {
		h.logger.Error("Ingestion failed", "root", req.Root, "error", err)
		response.DomainError(c, err)
		return
	}

	response.Success(c, result)
}

// QueryRequest 问答请求
type QueryRequest struct {
	Question   string `json:"question" binding:"required"`
	MaxResults int    `json:"max_results,omitempty"`
}

// Query 处理问答请求
// POST /api/v1/query
func (h *IndexHandler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = h.cfg.Query.MaxResults
	}

	// HTTP 接口不保留会话历史，每个请求使用独立会话
	answer, err := h.queryService.Ask(c.Request.Context(), req.Question, maxResults, chat.NewSession())
	if err != nil {
		h.logger.Error("Query failed", "error", err)
		response.DomainError(c, err)
		return
	}

	response.Success(c, gin.H{"answer": answer})
}

// SearchRequest 搜索请求
type SearchRequest struct {
	Query string `json:"query" binding:"required"`
	TopK  int    `json:"top_k,omitempty"`
}

// SearchResult 搜索结果条目
type SearchResult struct {
	Score      float64 `json:"score"`
	Content    string  `json:"content"`
	Context    string  `json:"context,omitempty"`
	DocumentID string  `json:"document_id"`
}

// Search 处理相似度搜索请求
// POST /api/v1/search
func (h *IndexHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	topK := req.TopK
	if topK <= 0 {
		topK = h.cfg.Query.MaxResults
	}

	hits, err := h.queryService.Search(c.Request.Context(), req.Query, topK)
	if err != nil {
		response.DomainError(c, err)
		return
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, SearchResult{
			Score:      hit.Score,
			Content:    hit.Record.Content,
			Context:    hit.Record.Context,
			DocumentID: hit.Record.DocumentID,
		})
	}

	response.Success(c, gin.H{
		"results": results,
		"count":   len(results),
	})
}

// ListFiles 返回当前追踪的文件列表
// GET /api/v1/files
func (h *IndexHandler) ListFiles(c *gin.Context) {
	files := h.ingestService.ListTrackedFiles()
	response.Success(c, gin.H{
		"files": files,
		"count": len(files),
	})
}

// ClearIndex 清空索引与追踪状态
// DELETE /api/v1/index
func (h *IndexHandler) ClearIndex(c *gin.Context) {
	if err := h.ingestService.ClearAll(); err != nil {
		h.logger.Error("Failed to clear index", "error", err)
		response.DomainError(c, err)
		return
	}
	response.Success(c, nil)
}
