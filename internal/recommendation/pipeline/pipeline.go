// Package pipeline runs the recommendation stages for one request: requester
// profile, embedding, retrieval, classification, hydration and paging.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"nisu-recommender/internal/common/config"
	apperrors "nisu-recommender/internal/common/errors"
	"nisu-recommender/internal/common/logger"
	"nisu-recommender/internal/common/metrics"
	"nisu-recommender/internal/common/observability"
	"nisu-recommender/internal/recommendation/embedding"
	"nisu-recommender/internal/recommendation/fusion"
	"nisu-recommender/internal/recommendation/geo"
	"nisu-recommender/internal/recommendation/hydration"
	"nisu-recommender/internal/recommendation/pagination"
	"nisu-recommender/internal/recommendation/profiletext"
	"nisu-recommender/internal/recommendation/relevance"
	"nisu-recommender/internal/recommendation/retriever"
	"nisu-recommender/internal/recommendation/scoring"
)

// CandidateSource is the slice of the retriever the pipeline drives.
type CandidateSource interface {
	Search(ctx context.Context, req scoring.Request, spec scoring.Spec, page pagination.Page) (*retriever.Result, error)
	SimilarTo(ctx context.Context, req scoring.Request, spec scoring.Spec, seed retriever.Seed, page pagination.Page) (*retriever.Result, error)
}

type Hydrator interface {
	Merge(ctx context.Context, kind hydration.Kind, ranked []hydration.Ranked, opts hydration.Options) ([]hydration.Item, error)
}

type RequesterStore interface {
	FetchRequester(ctx context.Context, id int64) (map[string]interface{}, error)
}

// Defaults apply to every field a request leaves unset.
type Defaults struct {
	Weights      scoring.Weights
	SigmaKm      float64
	SoftRadiusKm float64
	HardRadiusKm float64
	PerPage      int
}

type Decay struct {
	RecencyScaleHours float64
	AgeScaleYears     float64
	AgeOffsetYears    float64
}

type Settings struct {
	VectorDims int
	Defaults   Defaults
	Decay      Decay
	Thresholds relevance.Thresholds
}

// SettingsFromConfig maps the recommender section onto pipeline settings.
// Zero thresholds fall back to the default tiers.
func SettingsFromConfig(cfg config.RecommenderConfig) Settings {
	d := cfg.Defaults
	thresholds := relevance.Thresholds{High: cfg.Relevance.High, Medium: cfg.Relevance.Medium, Low: cfg.Relevance.Low}
	if thresholds == (relevance.Thresholds{}) {
		thresholds = relevance.DefaultThresholds
	}

	return Settings{
		VectorDims: cfg.VectorDims,
		Defaults: Defaults{
			Weights: scoring.Weights{
				Text:       d.Text,
				Vector:     d.Vector,
				Geo:        d.Geo,
				Popularity: d.Popularity,
				Recency:    d.Recency,
				Age:        d.Age,
				Diversity:  d.Diversity,
			},
			SigmaKm:      d.SigmaKm,
			SoftRadiusKm: d.SoftRadiusKm,
			HardRadiusKm: d.HardRadiusKm,
			PerPage:      d.PerPage,
		},
		Decay: Decay{
			RecencyScaleHours: cfg.Decay.RecencyScaleHours,
			AgeScaleYears:     cfg.Decay.AgeScaleYears,
			AgeOffsetYears:    cfg.Decay.AgeOffsetYears,
		},
		Thresholds: thresholds,
	}
}

// Overrides are the per-request tuning knobs. Nil keeps the default.
type Overrides struct {
	Text         *float64 `json:"text,omitempty"`
	Vector       *float64 `json:"vector,omitempty"`
	Geo          *float64 `json:"geo,omitempty"`
	Popularity   *float64 `json:"popularity,omitempty"`
	Recency      *float64 `json:"recency,omitempty"`
	Age          *float64 `json:"age,omitempty"`
	Diversity    *float64 `json:"diversity,omitempty"`
	SigmaKm      *float64 `json:"sigma_km,omitempty"`
	SoftRadiusKm *float64 `json:"soft_radius_km,omitempty"`
	HardRadiusKm *float64 `json:"hard_radius_km,omitempty"`
}

type SearchRequest struct {
	RequesterID int64
	Query       string
	Lat         *float64
	Lon         *float64
	Overrides   Overrides
	Page        int
	// PerPage nil means the configured default; any value is clamped.
	PerPage     *int
	FollowFlags bool
}

type RecommendRequest struct {
	RequesterID int64
	// Lat/Lon override the requester's stored location.
	Lat             *float64
	Lon             *float64
	RequireLocation bool
	Overrides       Overrides
	Page            int
	PerPage         *int
	FollowFlags     bool
}

// ResultPage is the decorated page returned to the caller.
type ResultPage struct {
	Items      []hydration.Item `json:"items"`
	Page       int              `json:"page"`
	PerPage    int              `json:"per_page"`
	TotalCount int              `json:"total_count"`
	HasMore    bool             `json:"has_more"`
	RequestID  string           `json:"request_id"`
	Mode       string           `json:"mode"`
}

type Dependencies struct {
	Embedder      embedding.Embedder
	Winkers       CandidateSource
	Events        CandidateSource
	Merger        Hydrator
	Requesters    RequesterStore
	Profiles      *ProfileCache
	Observability *observability.Observability
	Now           func() time.Time
}

type Service struct {
	deps     Dependencies
	settings Settings
	logger   logger.Logger
}

func New(deps Dependencies, settings Settings, log logger.Logger) *Service {
	if deps.Observability == nil {
		deps.Observability = observability.NewNoop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{deps: deps, settings: settings, logger: log}
}

// SearchEvents ranks events against free text and an optional location.
// Diversity is off unless the request asks for it.
func (s *Service) SearchEvents(ctx context.Context, in SearchRequest) (*ResultPage, error) {
	const entity = "events"
	requestID := uuid.NewString()
	log := s.logger.WithFields(map[string]interface{}{"requestId": requestID, "entity": entity, "mode": "search"})

	req, spec, page, err := s.prepareSearch(ctx, in)
	if err != nil {
		return nil, err
	}

	var result *retriever.Result
	err = s.stage(ctx, entity, "retrieve", func(ctx context.Context) error {
		var searchErr error
		result, searchErr = s.deps.Events.Search(ctx, req, spec, page)
		return searchErr
	})
	if err != nil {
		return nil, err
	}

	log.Debug("retrieved candidates", map[string]interface{}{
		"signals":    spec.Kinds(),
		"candidates": len(result.Candidates),
		"total":      result.Total,
		"local":      result.Local,
	})

	return s.finish(ctx, entity, hydration.KindEvents, result, req, page, in.FollowFlags, requestID)
}

// QueryExplainer is implemented by sources that can show the query they
// would send without sending it.
type QueryExplainer interface {
	SearchBody(req scoring.Request, spec scoring.Spec, page pagination.Page) map[string]interface{}
}

// ExplainSearch resolves in exactly like SearchEvents, including the query
// embedding, and returns the search body instead of running it.
func (s *Service) ExplainSearch(ctx context.Context, in SearchRequest) (map[string]interface{}, error) {
	explainer, ok := s.deps.Events.(QueryExplainer)
	if !ok {
		return nil, apperrors.NewInternalError(fmt.Errorf("event source cannot explain queries"))
	}
	req, spec, page, err := s.prepareSearch(ctx, in)
	if err != nil {
		return nil, err
	}
	return explainer.SearchBody(req, spec, page), nil
}

func (s *Service) prepareSearch(ctx context.Context, in SearchRequest) (scoring.Request, scoring.Spec, pagination.Page, error) {
	origin, err := requestOrigin(in.Lat, in.Lon)
	if err != nil {
		return scoring.Request{}, scoring.Spec{}, pagination.Page{}, err
	}

	page := s.clamp(in.Page, in.PerPage)
	req := s.request(in.Overrides, false)
	req.Query = in.Query
	req.Origin = origin
	req.Page, req.PerPage = page.Page, page.PerPage
	req.RequesterID = in.RequesterID
	if in.RequesterID > 0 {
		req.Seed = fusion.DiversitySeed(in.RequesterID, s.deps.Now())
	}

	var vec []float32
	if req.Query != "" {
		err = s.stage(ctx, "events", "embed", func(ctx context.Context) error {
			var embedErr error
			vec, embedErr = s.deps.Embedder.Embed(ctx, req.Query)
			return embedErr
		})
		if err != nil {
			return scoring.Request{}, scoring.Spec{}, pagination.Page{}, err
		}
	}

	return req, scoring.ForSearch(req, vec, s.settings.VectorDims), page, nil
}

// RecommendWinkers ranks people near the requester's profile embedding.
// The requester is never recommended to themself.
func (s *Service) RecommendWinkers(ctx context.Context, in RecommendRequest) (*ResultPage, error) {
	return s.recommend(ctx, "winkers", hydration.KindWinkers, s.deps.Winkers, in, []int64{in.RequesterID})
}

// RecommendEvents ranks events near the requester's profile embedding.
func (s *Service) RecommendEvents(ctx context.Context, in RecommendRequest) (*ResultPage, error) {
	return s.recommend(ctx, "events", hydration.KindEvents, s.deps.Events, in, nil)
}

func (s *Service) recommend(ctx context.Context, entity string, kind hydration.Kind, source CandidateSource, in RecommendRequest, exclude []int64) (*ResultPage, error) {
	requestID := uuid.NewString()
	log := s.logger.WithFields(map[string]interface{}{
		"requestId":   requestID,
		"entity":      entity,
		"mode":        "recommend",
		"requesterId": in.RequesterID,
	})

	var attrs map[string]interface{}
	err := s.stage(ctx, entity, "profile", func(ctx context.Context) error {
		var loadErr error
		attrs, loadErr = s.deps.Profiles.Load(ctx, in.RequesterID, s.loadRequester)
		return loadErr
	})
	if err != nil {
		return nil, err
	}
	if attrs == nil {
		return nil, apperrors.NewRequesterNotFoundError(in.RequesterID)
	}

	text := profiletext.Build(profiletext.FromAttributes(attrs), profiletext.Requester)
	if !profiletext.Eligible(text) {
		return nil, apperrors.NewIneligibleSeedError(in.RequesterID, "profile text is empty")
	}

	origin, err := requestOrigin(in.Lat, in.Lon)
	if err != nil {
		return nil, err
	}
	if origin == nil {
		if p := geo.FromAttributes(attrs); p != nil && p.Valid() {
			origin = p
		}
	}
	if origin == nil && in.RequireLocation {
		return nil, apperrors.NewIneligibleSeedError(in.RequesterID, "requester has no location")
	}

	var vec []float32
	err = s.stage(ctx, entity, "embed", func(ctx context.Context) error {
		var embedErr error
		vec, embedErr = s.deps.Embedder.Embed(ctx, text)
		return embedErr
	})
	if err != nil {
		return nil, err
	}
	if s.settings.VectorDims > 0 && len(vec) != s.settings.VectorDims {
		return nil, apperrors.NewEmbeddingFailedError(
			fmt.Errorf("profile embedding has %d dims, expected %d", len(vec), s.settings.VectorDims))
	}

	now := s.deps.Now()
	page := s.clamp(in.Page, in.PerPage)
	req := s.request(in.Overrides, true)
	req.Origin = origin
	req.Page, req.PerPage = page.Page, page.PerPage
	req.RequesterID = in.RequesterID
	req.Seed = fusion.DiversitySeed(in.RequesterID, now)

	age := requesterAge(attrs, now)
	spec := scoring.ForEntity(req, vec, s.settings.VectorDims, scoring.EntityContext{
		Now:               now,
		RequesterAge:      age,
		RecencyScaleHours: s.settings.Decay.RecencyScaleHours,
		AgeScaleYears:     s.settings.Decay.AgeScaleYears,
		AgeOffsetYears:    s.settings.Decay.AgeOffsetYears,
	})

	seed := retriever.Seed{Field: scoring.FieldProfileVec, Vector: vec, ExcludeIDs: exclude}

	var result *retriever.Result
	err = s.stage(ctx, entity, "retrieve", func(ctx context.Context) error {
		var searchErr error
		result, searchErr = source.SimilarTo(ctx, req, spec, seed, page)
		return searchErr
	})
	if err != nil {
		return nil, err
	}

	log.Debug("retrieved neighbours", map[string]interface{}{
		"signals":      spec.Kinds(),
		"requesterAge": age,
		"candidates":   len(result.Candidates),
		"total":        result.Total,
		"local":        result.Local,
	})

	return s.finish(ctx, entity, kind, result, req, page, in.FollowFlags, requestID)
}

// finish labels the retrieved page, hydrates it and demotes out-of-zone
// items behind the in-zone ones. Order within each group is score order.
func (s *Service) finish(ctx context.Context, entity string, kind hydration.Kind, result *retriever.Result,
	req scoring.Request, page pagination.Page, followFlags bool, requestID string) (*ResultPage, error) {

	metrics.RetrievedCandidates.WithLabelValues(entity, string(result.Mode)).Observe(float64(len(result.Candidates)))

	classifier := relevance.NewClassifier(s.settings.Thresholds, req.SoftRadiusKm)
	ranked := make([]hydration.Ranked, len(result.Candidates))
	for i, c := range result.Candidates {
		label, distanceLabel := classifier.Classify(c.Score, c.DistanceKm)
		ranked[i] = hydration.Ranked{
			ID:            c.ID,
			Score:         c.Score,
			Relevance:     label,
			DistanceKm:    c.DistanceKm,
			DistanceLabel: distanceLabel,
		}
	}

	var items []hydration.Item
	err := s.stage(ctx, entity, "hydrate", func(ctx context.Context) error {
		var mergeErr error
		items, mergeErr = s.deps.Merger.Merge(ctx, kind, ranked, hydration.Options{
			RequesterID: req.RequesterID,
			FollowFlags: followFlags,
			Origin:      req.Origin,
			Classifier:  &classifier,
		})
		return mergeErr
	})
	if err != nil {
		return nil, err
	}

	// Demotion is per page: out-of-zone items here still precede in-zone
	// items on later pages.
	DemoteOutOfZone(items)

	return &ResultPage{
		Items:      items,
		Page:       page.Page,
		PerPage:    page.PerPage,
		TotalCount: result.Total,
		HasMore:    page.HasMore(result.Total),
		RequestID:  requestID,
		Mode:       string(result.Mode),
	}, nil
}

// DemoteOutOfZone moves HORS_ZONE items after every other item, keeping
// relative order inside both groups.
func DemoteOutOfZone(items []hydration.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Relevance != relevance.HorsZone && items[j].Relevance == relevance.HorsZone
	})
}

func (s *Service) loadRequester(ctx context.Context, id int64) (map[string]interface{}, error) {
	attrs, err := s.deps.Requesters.FetchRequester(ctx, id)
	if err != nil {
		return nil, apperrors.NewHydrationFailedError("requester", err)
	}
	return attrs, nil
}

func (s *Service) stage(ctx context.Context, entity, name string, fn func(ctx context.Context) error) error {
	ctx, span := s.deps.Observability.StartSpan(ctx, "recommender."+name,
		attribute.String("entity", entity))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	metrics.PipelineStageDuration.WithLabelValues(entity, name).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *Service) clamp(page int, requested *int) pagination.Page {
	if requested != nil {
		return pagination.Clamp(page, *requested)
	}
	perPage := s.settings.Defaults.PerPage
	if perPage == 0 {
		perPage = pagination.DefaultPerPage
	}
	return pagination.Clamp(page, perPage)
}

// request resolves weights and radii. Recency and age only exist for entity
// recommendation; diversity defaults on there and off for search.
func (s *Service) request(o Overrides, entityMode bool) scoring.Request {
	d := s.settings.Defaults
	w := scoring.Weights{
		Text:       pick(o.Text, d.Weights.Text),
		Vector:     pick(o.Vector, d.Weights.Vector),
		Geo:        pick(o.Geo, d.Weights.Geo),
		Popularity: pick(o.Popularity, d.Weights.Popularity),
	}
	if entityMode {
		w.Recency = pick(o.Recency, d.Weights.Recency)
		w.Age = pick(o.Age, d.Weights.Age)
		w.Diversity = pick(o.Diversity, d.Weights.Diversity)
	} else {
		w.Diversity = pick(o.Diversity, 0)
	}

	return scoring.Request{
		Weights:      w,
		SigmaKm:      pick(o.SigmaKm, d.SigmaKm),
		SoftRadiusKm: pick(o.SoftRadiusKm, d.SoftRadiusKm),
		HardRadiusKm: pick(o.HardRadiusKm, d.HardRadiusKm),
	}
}

func pick(v *float64, def float64) float64 {
	if v != nil {
		return *v
	}
	return def
}

func requestOrigin(lat, lon *float64) (*geo.Point, error) {
	if (lat == nil) != (lon == nil) {
		return nil, apperrors.NewInvalidInputError("lat and lon must be given together")
	}
	p := geo.ParsePoint(lat, lon)
	if p != nil && !p.Valid() {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("coordinates out of range: %s", p))
	}
	return p, nil
}

// requesterAge prefers a birth year, then a birth date, then a stored age.
func requesterAge(attrs map[string]interface{}, now time.Time) int {
	for _, key := range []string{"anneeNaissance", "birthYear", "annee_naissance"} {
		if year, ok := intValue(attrs[key]); ok && year > 0 {
			return scoring.RequesterAge(year, now)
		}
	}

	for _, key := range []string{"dateNaissance", "birthDate"} {
		if raw, ok := attrs[key].(string); ok {
			if ts, err := time.Parse("2006-01-02", firstN(raw, 10)); err == nil {
				return scoring.RequesterAge(ts.Year(), now)
			}
		}
	}

	if age, ok := intValue(attrs["age"]); ok && age > 0 {
		return min(age, 120)
	}
	return 0
}

func firstN(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func intValue(v interface{}) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			return int(f), ferr == nil
		}
		return int(i), true
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}
