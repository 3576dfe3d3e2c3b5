package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sourcechat/backend/internal/application/chunking"
	"github.com/sourcechat/backend/internal/application/ingest"
	"github.com/sourcechat/backend/internal/application/query"
	"github.com/sourcechat/backend/internal/domain/index"
	"github.com/sourcechat/backend/internal/infrastructure/config"
	"github.com/sourcechat/backend/internal/infrastructure/embedding"
	"github.com/sourcechat/backend/internal/infrastructure/llm"
	"github.com/sourcechat/backend/internal/infrastructure/log"
	"github.com/sourcechat/backend/internal/infrastructure/provider"
	"github.com/sourcechat/backend/internal/infrastructure/tokenizer"
	"github.com/sourcechat/backend/internal/infrastructure/tracking"
	"github.com/sourcechat/backend/internal/infrastructure/vectorstore"
	"github.com/sourcechat/backend/internal/infrastructure/watcher"
	httpserver "github.com/sourcechat/backend/internal/interfaces/http"
	"github.com/sourcechat/backend/internal/interfaces/http/handler"
	"github.com/sourcechat/backend/internal/interfaces/mcp"
)

// App 应用实例
// 持有全部服务与长生命周期资源，负责统一启动和关闭
type App struct {
	cfg        *config.Config
	store      *vectorstore.Store
	httpServer *httpserver.HTTPServer
	dirWatcher *watcher.DirWatcher
	logger     *slog.Logger
}

// NewApp 组装应用
// 不可用的后端名是启动期硬错误
func NewApp(cfg *config.Config) (*App, error) {
	kind, err := provider.ParseKind(cfg.Provider.Name)
	if err != nil {
		return nil, err
	}
	resolver := provider.NewResolver(kind)

	estimator, err := tokenizer.Get(resolver.Tokenizer(cfg.Provider.ChatModel))
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}

	store, err := vectorstore.Open(cfg.DBPath())
	if err != nil {
		return nil, err
	}
	tracker := tracking.NewTracker(cfg.DBPath())

	embedClient := embedding.NewClient(kind, cfg.Provider.BaseURL, cfg.Provider.APIKey(), cfg.Provider.EmbeddingModel)
	chatClient := llm.NewClient(kind, cfg.Provider.BaseURL, cfg.Provider.APIKey(), cfg.Provider.ChatModel)

	ingestService := ingest.NewService(store, tracker, embedClient, estimator, chunking.Options{
		MaxTokens:     cfg.Chunking.MaxTokens,
		OverlapTokens: cfg.Chunking.OverlapTokens,
	}, resolver.Dimension(cfg.Provider.EmbeddingModel), nil)
	queryService := query.NewService(store, embedClient, chatClient)

	indexHandler := handler.NewIndexHandler(ingestService, queryService, cfg)
	mcpServer := mcp.NewServer(ingestService, queryService, cfg)
	httpServer := httpserver.NewServer(indexHandler, mcpServer, cfg.Server.HTTPPort)

	app := &App{
		cfg:        cfg,
		store:      store,
		httpServer: httpServer,
		logger:     log.NewModuleLogger("app", "server"),
	}

	if cfg.Ingest.Watch && cfg.Ingest.Root != "" {
		strategy, err := index.ParseChunkStrategy(cfg.Chunking.Strategy)
		if err != nil {
			return nil, err
		}

		dw, err := watcher.NewDirWatcher(
			watcher.DefaultWatchConfig(cfg.Ingest.Root, ingest.SplitPatterns(cfg.Ingest.Patterns)),
			func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
				defer cancel()
				if _, err := ingestService.IngestDirectory(ctx, cfg.Ingest.Root, cfg.Ingest.Patterns, strategy, true); err != nil {
					app.logger.Error("Watch-triggered ingestion failed", "error", err)
				}
			},
		)
		if err != nil {
			return nil, err
		}
		app.dirWatcher = dw
	}

	return app, nil
}

// Start 启动所有服务
func (a *App) Start() error {
	if a.dirWatcher != nil {
		if err := a.dirWatcher.Start(); err != nil {
			return err
		}
	}

	go func() {
		if err := a.httpServer.Start(); err != nil {
			a.logger.Error("HTTP server exited", "error", err)
		}
	}()

	a.logger.Info("Application started",
		"http_port", a.cfg.Server.HTTPPort,
		"db_path", a.cfg.DBPath(),
		"provider", a.cfg.Provider.Name,
	)
	return nil
}

// Stop 停止所有服务并释放资源
func (a *App) Stop() error {
	if a.dirWatcher != nil {
		a.dirWatcher.Stop()
	}

	if err := a.httpServer.Stop(); err != nil {
		a.logger.Error("Failed to stop HTTP server", "error", err)
	}

	return a.store.Close()
}
