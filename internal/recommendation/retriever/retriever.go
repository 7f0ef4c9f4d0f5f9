// Package retriever fetches ranked candidates from the search index, either
// by lexical/vector fusion or by seed-vector nearest neighbours with a
// bounded rescore.
package retriever

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	apperrors "nisu-recommender/internal/common/errors"
	"nisu-recommender/internal/common/logger"
	"nisu-recommender/internal/recommendation/fusion"
	"nisu-recommender/internal/recommendation/geo"
	"nisu-recommender/internal/recommendation/pagination"
	"nisu-recommender/internal/recommendation/scoring"
)

// Mode names the retrieval strategy that produced a result.
type Mode string

const (
	ModeFusion Mode = "fusion"
	ModeKNN    Mode = "knn"
)

// Config describes one index. VectorFields are the dense_vector fields its
// mapping declares; vector signals on any other field are left out.
type Config struct {
	Index            string
	VectorDims       int
	VectorFields     []string
	ScriptingEnabled bool
	K                int
	CandidateFactor  int
	RescoreWindow    int
}

// Candidate is one retrieved entity. Arrival is its position in the
// retriever's ordering and is the tie-breaker for every later sort.
type Candidate struct {
	ID         int64
	Score      float64
	DistanceKm *float64
	Arrival    int
	Features   *fusion.Features
}

// Result is one page of candidates. Total is the index's match count before
// any hydration filtering.
type Result struct {
	Candidates []Candidate
	Total      int
	Mode       Mode
	Local      bool
	TookMs     int64
}

// Seed is the embedding a KNN retrieval starts from.
type Seed struct {
	Field      string
	Vector     []float32
	ExcludeIDs []int64
}

type Retriever struct {
	client *elasticsearch.Client
	config Config
	engine *fusion.Engine
	logger logger.Logger
}

func New(client *elasticsearch.Client, config Config, engine *fusion.Engine, log logger.Logger) *Retriever {
	if engine == nil {
		engine = fusion.NewEngine()
	}
	return &Retriever{
		client: client,
		config: config,
		engine: engine,
		logger: log.WithFields(map[string]interface{}{"index": config.Index}),
	}
}

// Index returns the index this retriever reads.
func (r *Retriever) Index() string {
	return r.config.Index
}

// SearchBody is the body Search would send for the same arguments.
func (r *Retriever) SearchBody(req scoring.Request, spec scoring.Spec, page pagination.Page) map[string]interface{} {
	return BuildSearchBody(req, spec.RestrictVectors(r.config.VectorFields), page.Offset, page.PerPage, r.config.ScriptingEnabled)
}

// Search runs the lexical/vector fusion query for one page.
func (r *Retriever) Search(ctx context.Context, req scoring.Request, spec scoring.Spec, page pagination.Page) (*Result, error) {
	spec = spec.RestrictVectors(r.config.VectorFields)
	resp, err := r.do(ctx, string(ModeFusion), BuildSearchBody(req, spec, page.Offset, page.PerPage, r.config.ScriptingEnabled))
	if err != nil {
		return nil, err
	}

	result := &Result{Mode: ModeFusion, Total: totalHits(resp.Hits.Total), TookMs: resp.Took}
	if r.config.ScriptingEnabled {
		result.Candidates = r.native(resp.Hits.Hits, page.Offset)
		return result, nil
	}

	feats := r.collectFeatures(resp.Hits.Hits)
	result.Local = true
	result.Candidates = r.slice(r.engine.Rank(spec, feats), req.Origin, page)
	return result, nil
}

// SimilarTo runs a seed-vector nearest-neighbour search. The fusion spec is
// applied to the first RescoreWindow neighbours only.
func (r *Retriever) SimilarTo(ctx context.Context, req scoring.Request, spec scoring.Spec, seed Seed, page pagination.Page) (*Result, error) {
	if r.config.VectorDims > 0 && len(seed.Vector) != r.config.VectorDims {
		return nil, apperrors.NewSearchQueryFailedError(string(ModeKNN),
			fmt.Errorf("seed vector has %d dims, index expects %d", len(seed.Vector), r.config.VectorDims), nil)
	}

	spec = spec.RestrictVectors(r.config.VectorFields)
	q := KNNQuery{
		Field:         seed.Field,
		Vector:        seed.Vector,
		K:             r.config.K,
		NumCandidates: r.config.K * max(r.config.CandidateFactor, 1),
		RescoreWindow: r.config.RescoreWindow,
		ExcludeIDs:    seed.ExcludeIDs,
	}
	body := BuildKNNBody(req, spec, q, page.Offset, page.PerPage, r.config.ScriptingEnabled)

	resp, err := r.do(ctx, string(ModeKNN), body)
	if err != nil {
		return nil, err
	}

	result := &Result{Mode: ModeKNN, Total: totalHits(resp.Hits.Total), TookMs: resp.Took}
	if r.config.ScriptingEnabled {
		result.Candidates = r.native(resp.Hits.Hits, page.Offset)
		return result, nil
	}

	// A short window means the neighbours ran out before the fetch size,
	// so nothing beyond it can be paged to.
	if n := len(resp.Hits.Hits); n < q.LocalWindow(page.End()) {
		result.Total = min(result.Total, n)
	}
	feats := r.collectFeatures(resp.Hits.Hits)
	result.Local = true
	result.Candidates = r.slice(r.engine.Rescore(spec, feats, r.config.RescoreWindow), req.Origin, page)
	return result, nil
}

// native keeps the index's ordering and scores.
func (r *Retriever) native(hits []searchHit, offset int) []Candidate {
	out := make([]Candidate, 0, len(hits))
	for i, h := range hits {
		id, ok := ParseID(h.ID)
		if !ok {
			r.logger.Debug("skipping hit with non-numeric id", map[string]interface{}{"id": h.ID})
			continue
		}
		out = append(out, Candidate{
			ID:         id,
			Score:      h.score(),
			DistanceKm: h.distanceKm(),
			Arrival:    offset + i,
		})
	}
	return out
}

func (r *Retriever) collectFeatures(hits []searchHit) []fusion.Features {
	feats := make([]fusion.Features, 0, len(hits))
	for _, h := range hits {
		id, ok := ParseID(h.ID)
		if !ok {
			r.logger.Debug("skipping hit with non-numeric id", map[string]interface{}{"id": h.ID})
			continue
		}
		feats = append(feats, h.features(id))
	}
	return feats
}

// slice cuts the requested page out of a locally ordered window and
// computes distances the index would otherwise have returned.
func (r *Retriever) slice(scored []fusion.Scored, origin *geo.Point, page pagination.Page) []Candidate {
	start := min(page.Offset, len(scored))
	end := min(page.End(), len(scored))

	out := make([]Candidate, 0, end-start)
	for _, s := range scored[start:end] {
		feats := s.Features
		c := Candidate{
			ID:       s.ID,
			Score:    s.Score,
			Arrival:  s.Arrival,
			Features: &feats,
		}
		if origin != nil && s.Location != nil {
			d := origin.DistanceTo(*s.Location)
			c.DistanceKm = &d
		}
		out = append(out, c)
	}
	return out
}

func (r *Retriever) do(ctx context.Context, queryType string, body map[string]interface{}) (*searchResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("encode %s query: %w", queryType, err))
	}

	req := esapi.SearchRequest{
		Index: []string{r.config.Index},
		Body:  bytes.NewReader(payload),
	}

	res, err := req.Do(ctx, r.client)
	if err != nil {
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apperrors.NewSearchTimeoutError(queryType, err)
		}
		return nil, apperrors.NewSearchQueryFailedError(queryType, err, nil)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, r.responseError(queryType, res)
	}

	var resp searchResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, apperrors.NewSearchQueryFailedError(queryType, fmt.Errorf("decode response: %w", err), nil)
	}
	return &resp, nil
}

// responseError keeps the index's structured error so callers can see why
// the query was rejected.
func (r *Retriever) responseError(queryType string, res *esapi.Response) error {
	var payload struct {
		Error interface{} `json:"error"`
	}
	_ = json.NewDecoder(res.Body).Decode(&payload)

	if res.StatusCode == http.StatusNotFound && isIndexNotFound(payload.Error) {
		return apperrors.NewIndexNotFoundError(r.config.Index)
	}

	r.logger.Warn("search rejected", map[string]interface{}{
		"queryType": queryType,
		"status":    res.StatusCode,
	})
	return apperrors.NewSearchQueryFailedError(queryType,
		fmt.Errorf("elasticsearch returned %s", res.Status()), payload.Error)
}

func isIndexNotFound(info interface{}) bool {
	m, ok := info.(map[string]interface{})
	if !ok {
		return true
	}
	t, _ := m["type"].(string)
	return t == "" || t == "index_not_found_exception"
}
