package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sourcechat/backend/internal/domain/index"
	"github.com/spf13/cobra"
)

var (
	flagPatterns string
	flagStrategy string
	flagFull     bool
	flagTopK     int
)

// ingestCmd 入库命令
var ingestCmd = &cobra.Command{
	Use:   "ingest <root>",
	Short: "Ingest a directory into the index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildServices()
		if err != nil {
			return err
		}
		defer svc.close()

		patterns := flagPatterns
		if patterns == "" {
			patterns = svc.cfg.Ingest.Patterns
		}
		strategyName := flagStrategy
		if strategyName == "" {
			strategyName = svc.cfg.Chunking.Strategy
		}
		strategy, err := index.ParseChunkStrategy(strategyName)
		if err != nil {
			return err
		}

		result, err := svc.ingest.IngestDirectory(cmd.Context(), args[0], patterns, strategy, !flagFull)
		if err != nil {
			return err
		}

		fmt.Printf("Processed %d files, %d errors\n", result.FilesProcessed, result.Errors)
		for _, hit := range result.Sample {
			fmt.Printf("  %.3f %s\n", hit.Score, hit.Preview)
		}
		return nil
	},
}

// chatCmd 交互式问答命令
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive question answering session",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildServices()
		if err != nil {
			return err
		}
		defer svc.close()

		return svc.query.RunInteractive(cmd.Context(), os.Stdin, os.Stdout, svc.cfg.Query.MaxResults)
	},
}

// searchCmd 相似度搜索命令
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the index for relevant fragments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildServices()
		if err != nil {
			return err
		}
		defer svc.close()

		topK := flagTopK
		if topK <= 0 {
			topK = svc.cfg.Query.MaxResults
		}

		hits, err := svc.query.Search(cmd.Context(), args[0], topK)
		if err != nil {
			return err
		}

		for _, hit := range hits {
			fmt.Printf("%.3f  %s\n%s\n\n", hit.Score, hit.Record.DocumentID, hit.Record.Content)
		}
		return nil
	},
}

// filesCmd 追踪文件列表命令
var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List tracked files",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildServices()
		if err != nil {
			return err
		}
		defer svc.close()

		files := svc.ingest.ListTrackedFiles()
		for _, f := range files {
			fmt.Printf("%s  processed %s\n", f.Path, time.Unix(f.ProcessedAt, 0).Format(time.RFC3339))
		}
		fmt.Printf("%d files tracked\n", len(files))
		return nil
	},
}

// clearCmd 清空索引命令
var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop the vector collection and tracking state",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildServices()
		if err != nil {
			return err
		}
		defer svc.close()

		if err := svc.ingest.ClearAll(); err != nil {
			return err
		}
		fmt.Println("Index cleared")
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&flagPatterns, "patterns", "", "semicolon-delimited glob patterns")
	ingestCmd.Flags().StringVar(&flagStrategy, "strategy", "", "chunking strategy: semantic, section or structural")
	ingestCmd.Flags().BoolVar(&flagFull, "full", false, "reprocess all files instead of only changed ones")
	searchCmd.Flags().IntVar(&flagTopK, "top-k", 0, "maximum number of results")

	rootCmd.AddCommand(ingestCmd, chatCmd, searchCmd, filesCmd, clearCmd)
}
