package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/kortix-ai/kb-fusion/src/go/config"
	"github.com/kortix-ai/kb-fusion/src/go/embedcache"
	"github.com/kortix-ai/kb-fusion/src/go/embedder"
	"github.com/kortix-ai/kb-fusion/src/go/ftsindex"
	"github.com/kortix-ai/kb-fusion/src/go/obslog"
	"github.com/kortix-ai/kb-fusion/src/go/retrieval"
	"github.com/kortix-ai/kb-fusion/src/go/types"
)

var (
	searchFilePath string
	searchQueries  []string
	jsonOutput     bool
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search one indexed file",
	Long:  `Run one or more queries against a single indexed file's chunks.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logger, err := obslog.New(false)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		defer logger.Sync() //nolint:errcheck

		ctx := context.Background()

		idx, err := ftsindex.Open(filepath.Join(cfg.DataDir, "fts.db"))
		if err != nil {
			return fmt.Errorf("failed to open fts index: %w", err)
		}
		defer idx.Close()

		store, err := embedcache.Open(filepath.Join(cfg.DataDir, "embed_cache.db"))
		if err != nil {
			return fmt.Errorf("failed to open embedding cache: %w", err)
		}
		defer store.Close()

		client, err := buildEmbedClient(cfg)
		if err != nil {
			return fmt.Errorf("failed to build embedding client: %w", err)
		}
		cache := embedcache.NewCache(store, client.Model(), client.Dim(), client.VersionKey())

		engine := retrieval.NewEngine(idx, cache, client, cfg, logger)

		results, err := engine.Search(ctx, searchFilePath, searchQueries)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}

		if jsonOutput {
			return outputJSON(results)
		}
		return outputText(searchQueries, results)
	},
}

func buildEmbedClient(cfg *config.Config) (embedder.Client, error) {
	var provider embedder.Provider
	switch cfg.Embedding.Provider {
	case "http":
		provider = embedder.NewHTTPProvider(cfg.Embedding.Endpoint, cfg.Embedding.Model, cfg.Embedding.Dim, cfg.Embedding.APIKey)
	case "onnx":
		provider = embedder.NewONNXProvider(cfg.DataDir, cfg.Embedding.Dim)
	case "stub", "":
		provider = embedder.NewStubProvider(cfg.Embedding.Dim)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}

	timeout := time.Duration(cfg.Tunables.OAITimeoutSeconds * float64(time.Second))
	return embedder.NewClient(provider, cfg.Embedding.Model, cfg.Embedding.Dim, cfg.Embedding.VersionKey, timeout), nil
}

func outputJSON(results [][]types.Result) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(results)
}

func outputText(queries []string, results [][]types.Result) error {
	for qi, hits := range results {
		query := ""
		if qi < len(queries) {
			query = queries[qi]
		}
		fmt.Printf("query %d: %q (%d hits)\n", qi+1, query, len(hits))
		for i, h := range hits {
			fmt.Printf("  %d. chunk=%d score=%.4f stage=%s\n", i+1, h.ChunkID, h.Score, h.RankStage)
			fmt.Printf("     %s\n", h.Snippet)
		}
		if len(hits) == 0 {
			fmt.Println("  no results")
		}
		fmt.Println()
	}
	return nil
}

func init() {
	searchCmd.Flags().StringVarP(&searchFilePath, "file", "f", "", "Indexed file path to search (required)")
	searchCmd.Flags().StringArrayVarP(&searchQueries, "query", "q", nil, "Query text (repeatable, required)")
	searchCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	searchCmd.MarkFlagRequired("file")
	searchCmd.MarkFlagRequired("query")

	rootCmd.AddCommand(searchCmd)
}
