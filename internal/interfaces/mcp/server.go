package mcp

import (
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sourcechat/backend/internal/application/ingest"
	"github.com/sourcechat/backend/internal/application/query"
	"github.com/sourcechat/backend/internal/infrastructure/config"
)

// MCPServer MCP 服务器
type MCPServer struct {
	server        *mcp.Server
	handler       http.Handler
	ingestService *ingest.Service
	queryService  *query.Service
	cfg           *config.Config
}

// NewServer 创建 MCP 服务器
func NewServer(ingestService *ingest.Service, queryService *query.Service, cfg *config.Config) *MCPServer {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "sourcechat-daemon",
			Version: "0.1.0",
		},
		nil, // 使用默认能力
	)

	mcpServer := &MCPServer{
		server:        server,
		ingestService: ingestService,
		queryService:  queryService,
		cfg:           cfg,
	}

	// 注册工具：search_index
	mcp.AddTool(server, &mcp.Tool{
		Name: "search_index",
		Description: `Search the local source index for fragments relevant to a query.

Use this tool when you need to find code or documentation fragments from the indexed project.

Parameters:
- query (string, required): Natural language description of what you're looking for.
- top_k (int, optional): Maximum number of results to return (1-20, default: 5)

Returns: List of fragments with relevance score, content, and source document.`,
	}, mcpServer.searchIndexTool)

	// 注册工具：ask_index
	mcp.AddTool(server, &mcp.Tool{
		Name: "ask_index",
		Description: `Ask a natural language question grounded on the local source index.

The question is answered by retrieving relevant fragments and composing them into a grounded prompt for the configured chat model.

Parameters:
- question (string, required): The question to answer.
- max_results (int, optional): Number of fragments to retrieve for grounding, defaults to the configured value.

Returns: The answer text and the number of fragments used.`,
	}, mcpServer.askIndexTool)

	// 注册工具：ingest_directory
	mcp.AddTool(server, &mcp.Tool{
		Name: "ingest_directory",
		Description: `Ingest a local directory into the source index.

Parameters:
- root (string, required): Directory to ingest, e.g., /Users/xxx/code/myproject
- patterns (string, optional): Semicolon-delimited glob patterns, defaults to the configured value.
- incremental (bool, optional): Only process changed files, defaults to true.

Returns: files processed count, error count, and a sample of retrieved chunks.`,
	}, mcpServer.ingestDirectoryTool)

	// 创建 SSE Handler
	handler := mcp.NewSSEHandler(
		func(r *http.Request) *mcp.Server {
			// 每个请求返回同一个服务器实例
			return server
		},
		nil, // SSEOptions，使用默认值
	)

	mcpServer.handler = handler
	return mcpServer
}

// GetHandler 获取 HTTP Handler（用于集成到 HTTP 服务器）
func (s *MCPServer) GetHandler() http.Handler {
	return s.handler
}
