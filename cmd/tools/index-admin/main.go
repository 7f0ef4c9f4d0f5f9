// cmd/tools/index-admin/main.go
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"nisu-recommender/internal/common/config"
	"nisu-recommender/internal/common/database"
	apphttp "nisu-recommender/internal/common/http"
	"nisu-recommender/internal/common/logger"
	"nisu-recommender/internal/recommendation/embedding"
	"nisu-recommender/internal/recommendation/indexing"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "index-admin",
	Short: "Manage the recommendation search indices",
	Long: `index-admin creates the search indices, loads winkers and events into
them, and prints the query a search request compiles to.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (defaults to configs/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// env is what every subcommand needs from the configuration.
type env struct {
	cfg      *config.Config
	log      logger.Logger
	es       *database.ElasticsearchClient
	embedder *embedding.Lazy
}

func loadEnv() (*env, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level := "warn"
	if verbose {
		level = "debug"
	}
	log := logger.NewStructured(level, "console")

	es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
	if err != nil {
		return nil, err
	}

	ec := cfg.Embedding
	dims := cfg.Recommender.VectorDims
	httpClient := apphttp.NewClient("embeddings", config.GetDuration(ec.Timeout))
	embedder := embedding.NewLazy(dims, func() (embedding.Embedder, error) {
		return embedding.NewOpenAIModel(embedding.OpenAIConfig{
			BaseURL:    ec.BaseURL,
			APIKey:     ec.APIKey,
			Model:      ec.Model,
			Dimensions: dims,
			Normalize:  ec.Normalize,
			CacheSize:  ec.CacheSize,
			HTTPClient: httpClient.HTTPClient(),
		})
	})

	return &env{cfg: cfg, log: log, es: es, embedder: embedder}, nil
}

func (e *env) indexer() *indexing.Indexer {
	dims := e.cfg.Recommender.VectorDims
	return indexing.NewIndexer(e.es.Client, indexing.NewBuilder(e.embedder, dims), dims, e.log)
}

func (e *env) indices() indexing.Indices {
	idx := e.cfg.Recommender.Indices
	return indexing.Indices{Winkers: idx.Winkers, Events: idx.Events, Conversations: idx.Conversations}
}
