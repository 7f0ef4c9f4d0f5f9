package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"nisu-recommender/internal/common/observability"
	"nisu-recommender/internal/recommendation/embedding"
	"nisu-recommender/internal/recommendation/fusion"
	"nisu-recommender/internal/recommendation/indexing"
	"nisu-recommender/internal/recommendation/pipeline"
	"nisu-recommender/internal/recommendation/retriever"
)

var (
	explainQuery     string
	explainRequester int64
	explainLat       float64
	explainLon       float64
	explainPage      int
	explainPerPage   int
	explainNoEmbed   bool
)

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Print the Elasticsearch body an event search compiles to",
	Long: `Resolve an event search exactly as the search-events worker does and print
the request body instead of sending it. Weights and radii come from the
recommender defaults in the config file.

Examples:
  index-admin explain --query "jazz brunch" --lat 48.85 --lon 2.35
  index-admin explain --query jazz --no-embed`,
	RunE: runExplain,
}

func init() {
	rootCmd.AddCommand(explainCmd)

	explainCmd.Flags().StringVarP(&explainQuery, "query", "q", "", "Free-text query")
	explainCmd.Flags().Int64Var(&explainRequester, "requester", 0, "Requester id, seeds the diversity term")
	explainCmd.Flags().Float64Var(&explainLat, "lat", 0, "Requester latitude")
	explainCmd.Flags().Float64Var(&explainLon, "lon", 0, "Requester longitude")
	explainCmd.Flags().IntVar(&explainPage, "page", 1, "Page number")
	explainCmd.Flags().IntVar(&explainPerPage, "per-page", 0, "Page size (unset uses the configured default)")
	explainCmd.Flags().BoolVar(&explainNoEmbed, "no-embed", false, "Skip the embedding call and leave the vector signal out")
}

func runExplain(cmd *cobra.Command, _ []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	rc := e.cfg.Recommender

	var embedder embedding.Embedder = e.embedder
	if explainNoEmbed {
		embedder = noEmbedder{dims: rc.VectorDims}
	}

	events := retriever.New(e.es.Client, retriever.Config{
		Index:            rc.Indices.Events,
		VectorDims:       rc.VectorDims,
		VectorFields:     indexing.VectorFields(indexing.EventMapping(rc.VectorDims)),
		ScriptingEnabled: rc.ScriptingEnabled,
		K:                rc.KNN.K,
		CandidateFactor:  rc.KNN.CandidateFactor,
		RescoreWindow:    rc.KNN.RescoreWindow,
	}, fusion.NewEngine(), e.log)

	svc := pipeline.New(pipeline.Dependencies{
		Embedder:      embedder,
		Events:        events,
		Observability: observability.NewNoop(),
	}, pipeline.SettingsFromConfig(rc), e.log)

	in := pipeline.SearchRequest{
		RequesterID: explainRequester,
		Query:       explainQuery,
		Page:        explainPage,
	}
	if cmd.Flags().Changed("per-page") {
		perPage := explainPerPage
		in.PerPage = &perPage
	}
	if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lon") {
		lat, lon := explainLat, explainLon
		in.Lat, in.Lon = &lat, &lon
	}

	body, err := svc.ExplainSearch(cmd.Context(), in)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "POST /%s/_search\n", events.Index())
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(body)
}

// noEmbedder returns no vector, which drops the vector signal from the query.
type noEmbedder struct{ dims int }

func (noEmbedder) Embed(context.Context, string) ([]float32, error) { return nil, nil }
func (n noEmbedder) Dimension() int                                { return n.dims }
