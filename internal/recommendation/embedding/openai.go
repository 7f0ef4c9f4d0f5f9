package embedding

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"

	"nisu-recommender/internal/common/metrics"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/viterin/vek/vek32"
)

// OpenAIConfig points at any OpenAI-compatible /v1/embeddings endpoint.
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Normalize  bool
	CacheSize  int
	HTTPClient *http.Client
}

// OpenAIModel embeds text through the embeddings API and keeps recent
// results in an LRU cache keyed by the exact input text.
type OpenAIModel struct {
	client *openai.Client
	config OpenAIConfig
	cache  *lru.Cache[string, []float32]
}

func NewOpenAIModel(cfg OpenAIConfig) (*OpenAIModel, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model name is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	client := openai.NewClient(opts...)

	m := &OpenAIModel{client: &client, config: cfg}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, []float32](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create embedding cache: %w", err)
		}
		m.cache = cache
	}
	return m, nil
}

func (m *OpenAIModel) Dimension() int {
	return m.config.Dimensions
}

func (m *OpenAIModel) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.cache != nil {
		if vec, ok := m.cache.Get(text); ok {
			metrics.EmbeddingCacheLookups.WithLabelValues("hit").Inc()
			return vec, nil
		}
		metrics.EmbeddingCacheLookups.WithLabelValues("miss").Inc()
	}

	params := openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model:          openai.EmbeddingModel(m.config.Model),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	// only the text-embedding-3 family accepts a requested width
	if m.config.Dimensions > 0 && strings.HasPrefix(m.config.Model, "text-embedding-3") {
		params.Dimensions = openai.Int(int64(m.config.Dimensions))
	}

	resp, err := m.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("embeddings request: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embeddings response has no data")
	}

	vec := toFloat32(resp.Data[0].Embedding)
	if m.config.Normalize {
		Normalize(vec)
	}

	if m.cache != nil && len(vec) > 0 {
		m.cache.Add(text, vec)
	}
	return vec, nil
}

// Normalize scales vec to unit length in place. Zero vectors are left as is.
func Normalize(vec []float32) {
	if len(vec) == 0 {
		return
	}
	norm := math.Sqrt(float64(vek32.Dot(vec, vec)))
	if norm == 0 {
		return
	}
	vek32.MulNumber_Inplace(vec, float32(1/norm))
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
