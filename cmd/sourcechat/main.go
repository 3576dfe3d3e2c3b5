package main

import (
	"fmt"
	"os"

	"github.com/sourcechat/backend/internal/application/chunking"
	"github.com/sourcechat/backend/internal/application/ingest"
	"github.com/sourcechat/backend/internal/application/query"
	"github.com/sourcechat/backend/internal/infrastructure/config"
	"github.com/sourcechat/backend/internal/infrastructure/embedding"
	"github.com/sourcechat/backend/internal/infrastructure/llm"
	applog "github.com/sourcechat/backend/internal/infrastructure/log"
	"github.com/sourcechat/backend/internal/infrastructure/provider"
	"github.com/sourcechat/backend/internal/infrastructure/tokenizer"
	"github.com/sourcechat/backend/internal/infrastructure/tracking"
	"github.com/sourcechat/backend/internal/infrastructure/vectorstore"
	"github.com/spf13/cobra"
)

// services CLI 命令共享的服务集合
type services struct {
	cfg    *config.Config
	ingest *ingest.Service
	query  *query.Service
	store  *vectorstore.Store
}

// close 释放长生命周期资源
func (s *services) close() {
	_ = s.store.Close()
}

// buildServices 按配置组装服务
func buildServices() (*services, error) {
	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, err
	}

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

	return &services{
		cfg: cfg,
		ingest: ingest.NewService(store, tracker, embedClient, estimator, chunking.Options{
			MaxTokens:     cfg.Chunking.MaxTokens,
			OverlapTokens: cfg.Chunking.OverlapTokens,
		}, resolver.Dimension(cfg.Provider.EmbeddingModel), nil),
		query: query.NewService(store, embedClient, chatClient),
		store: store,
	}, nil
}

var rootCmd = &cobra.Command{
	Use:   "sourcechat",
	Short: "Ingest local sources into a vector index and chat about them",
}

func main() {
	applog.Init(nil)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
