package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sourcechat/backend/internal/domain/chat"
	"github.com/sourcechat/backend/internal/domain/index"
)

// SearchIndexInput 索引搜索工具输入
type SearchIndexInput struct {
	Query string `json:"query" jsonschema:"Search query - describe what you're looking for in natural language (required)"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"Maximum number of results to return, defaults to 5, max 20"`
}

// SearchIndexOutput 索引搜索工具输出
type SearchIndexOutput struct {
	Results    []*IndexSearchResult `json:"results" jsonschema:"List of relevant fragments"`
	TotalCount int                  `json:"total_count" jsonschema:"Total number of results found"`
}

// IndexSearchResult 索引搜索结果条目
type IndexSearchResult struct {
	Score      float64 `json:"score" jsonschema:"Relevance score, higher is more relevant"`
	Content    string  `json:"content" jsonschema:"Fragment content"`
	DocumentID string  `json:"document_id" jsonschema:"Source document the fragment came from"`
}

// searchIndexTool 索引搜索工具实现
func (s *MCPServer) searchIndexTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SearchIndexInput,
) (*mcp.CallToolResult, SearchIndexOutput, error) {
	output := SearchIndexOutput{
		Results: []*IndexSearchResult{},
	}

	if input.Query == "" {
		return nil, output, fmt.Errorf("query is required")
	}

	topK := input.TopK
	if topK <= 0 {
		topK = 5
	}
	if topK > 20 {
		topK = 20
	}

	hits, err := s.queryService.Search(ctx, input.Query, topK)
	if err != nil {
		if index.IsCode(err, index.ErrNoSearchResults) {
			return nil, output, nil
		}
		return nil, output, err
	}

	for _, hit := range hits {
		output.Results = append(output.Results, &IndexSearchResult{
			Score:      hit.Score,
			Content:    hit.Record.Content,
			DocumentID: hit.Record.DocumentID,
		})
	}
	output.TotalCount = len(output.Results)
	return nil, output, nil
}

// AskIndexInput 索引问答工具输入
type AskIndexInput struct {
	Question   string `json:"question" jsonschema:"The question to answer (required)"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"Number of fragments to retrieve for grounding"`
}

// AskIndexOutput 索引问答工具输出
type AskIndexOutput struct {
	Answer        string `json:"answer" jsonschema:"The grounded answer text"`
	FragmentsUsed int    `json:"fragments_used" jsonschema:"Number of fragments retrieved for grounding"`
}

// askIndexTool 索引问答工具实现
func (s *MCPServer) askIndexTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AskIndexInput,
) (*mcp.CallToolResult, AskIndexOutput, error) {
	var output AskIndexOutput

	if input.Question == "" {
		return nil, output, fmt.Errorf("question is required")
	}

	maxResults := input.MaxResults
	if maxResults <= 0 {
		maxResults = s.cfg.Query.MaxResults
	}

	// 工具调用之间不保留会话历史
	session := chat.NewSession()
	answer, err := s.queryService.Ask(ctx, input.Question, maxResults, session)
	if err != nil {
		return nil, output, err
	}

	output.Answer = answer
	output.FragmentsUsed = session.Retrieved()
	return nil, output, nil
}

// IngestDirectoryInput 目录入库工具输入
type IngestDirectoryInput struct {
	Root        string `json:"root" jsonschema:"Directory to ingest (required), e.g., /Users/xxx/code/myproject"`
	Patterns    string `json:"patterns,omitempty" jsonschema:"Semicolon-delimited glob patterns, e.g., *.md;*.go"`
	Incremental *bool  `json:"incremental,omitempty" jsonschema:"Only process changed files, defaults to true"`
}

// IngestDirectoryOutput 目录入库工具输出
type IngestDirectoryOutput struct {
	FilesProcessed int      `json:"files_processed" jsonschema:"Number of files successfully processed"`
	Errors         int      `json:"errors" jsonschema:"Number of files that failed, non-fatal"`
	Sample         []string `json:"sample,omitempty" jsonschema:"Sample of retrieved chunk previews after ingestion"`
}

// ingestDirectoryTool 目录入库工具实现
func (s *MCPServer) ingestDirectoryTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input IngestDirectoryInput,
) (*mcp.CallToolResult, IngestDirectoryOutput, error) {
	var output IngestDirectoryOutput

	if input.Root == "" {
		return nil, output, fmt.Errorf("root is required")
	}

	patterns := input.Patterns
	if patterns == "" {
		patterns = s.cfg.Ingest.Patterns
	}

	incremental := true
	if input.Incremental != nil {
		incremental = *input.Incremental
	}

	strategy, err := index.ParseChunkStrategy(s.cfg.Chunking.Strategy)
	if err != nil {
		return nil, output, err
	}

	result, err := s.ingestService.IngestDirectory(ctx, input.Root, patterns, strategy, incremental)
	if err != nil {
		return nil, output, err
	}

	output.FilesProcessed = result.FilesProcessed
	output.Errors = result.Errors
	for _, hit := range result.Sample {
		output.Sample = append(output.Sample, fmt.Sprintf("%.3f %s", hit.Score, hit.Preview))
	}
	return nil, output, nil
}
