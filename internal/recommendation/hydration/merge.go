// Package hydration resolves ranked entity ids into full relational records
// without ever changing their order.
package hydration

import (
	"context"
	"encoding/json"
	"strconv"

	apperrors "nisu-recommender/internal/common/errors"
	"nisu-recommender/internal/common/logger"
	"nisu-recommender/internal/common/metrics"
	"nisu-recommender/internal/recommendation/geo"
	"nisu-recommender/internal/recommendation/relevance"
)

// Ranked is one entry of the ranked id list with its scoring metadata.
type Ranked struct {
	ID            int64
	Score         float64
	Relevance     relevance.Label
	DistanceKm    *float64
	DistanceLabel *relevance.DistanceLabel
}

// Options control the decorations added after the merge.
type Options struct {
	RequesterID int64
	FollowFlags bool
	// Origin lets the merger fill distance_km from the record's own
	// coordinates when the retriever did not compute it.
	Origin     *geo.Point
	Classifier *relevance.Classifier
}

// Item is a hydrated result: the record plus its ranking metadata.
type Item struct {
	Ranked
	Record         map[string]interface{}
	IsFollowing    *bool
	IsFollowedBack *bool
}

// MarshalJSON flattens the record and the metadata into one object.
func (i Item) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(i.Record)+6)
	for k, v := range i.Record {
		out[k] = v
	}
	out["score"] = i.Score
	out["relevance"] = i.Relevance
	out["distance_km"] = i.DistanceKm
	out["distance_label"] = i.DistanceLabel
	if i.IsFollowing != nil {
		out["is_following"] = *i.IsFollowing
	}
	if i.IsFollowedBack != nil {
		out["is_followed_back"] = *i.IsFollowedBack
	}
	return json.Marshal(out)
}

type Merger struct {
	store  Store
	logger logger.Logger
}

func NewMerger(store Store, log logger.Logger) *Merger {
	return &Merger{store: store, logger: log}
}

// Merge hydrates ranked in one batched fetch, then walks ranked again and
// emits the ids that resolved. Unresolved ids are dropped, so the result can
// be shorter than the input. Any store error aborts the merge.
func (m *Merger) Merge(ctx context.Context, kind Kind, ranked []Ranked, opts Options) ([]Item, error) {
	ordered := Dedupe(ranked)
	if len(ordered) == 0 {
		return []Item{}, nil
	}

	ids := make([]int64, len(ordered))
	for i, r := range ordered {
		ids[i] = r.ID
	}

	records, err := m.fetch(ctx, kind, ids)
	if err != nil {
		return nil, apperrors.NewHydrationFailedError(string(kind), err)
	}

	byID := make(map[int64]map[string]interface{}, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec.Data
	}

	items := make([]Item, 0, len(ordered))
	for _, r := range ordered {
		data, ok := byID[r.ID]
		if !ok {
			continue
		}
		item := Item{Ranked: r, Record: data}
		fillDistance(&item, opts)
		items = append(items, item)
	}

	if dropped := len(ordered) - len(items); dropped > 0 {
		metrics.HydrationDropped.WithLabelValues(string(kind)).Add(float64(dropped))
		m.logger.Debug("dropped unresolved ids", map[string]interface{}{
			"entity":  string(kind),
			"dropped": dropped,
		})
	}

	if opts.FollowFlags && opts.RequesterID > 0 && len(items) > 0 {
		if err := m.decorateFollows(ctx, kind, items, opts.RequesterID); err != nil {
			return nil, apperrors.NewHydrationFailedError(string(kind), err)
		}
	}

	return items, nil
}

func (m *Merger) fetch(ctx context.Context, kind Kind, ids []int64) ([]Record, error) {
	if kind == KindWinkers {
		return m.store.FetchWinkers(ctx, ids)
	}
	return m.store.FetchEvents(ctx, ids)
}

// decorateFollows looks up every follow edge of the page in one query. For
// winkers the edge is to the winker itself; for events it is to the creator.
func (m *Merger) decorateFollows(ctx context.Context, kind Kind, items []Item, requesterID int64) error {
	targets := make([]int64, len(items))
	var lookup []int64
	seen := make(map[int64]bool, len(items))

	for i, item := range items {
		target, ok := followTarget(kind, item)
		if !ok {
			continue
		}
		targets[i] = target
		if !seen[target] {
			seen[target] = true
			lookup = append(lookup, target)
		}
	}

	flags, err := m.store.FetchFollowFlags(ctx, requesterID, lookup)
	if err != nil {
		return err
	}

	for i := range items {
		if targets[i] == 0 {
			continue
		}
		following := flags.Following[targets[i]]
		followedBack := flags.FollowedBack[targets[i]]
		items[i].IsFollowing = &following
		items[i].IsFollowedBack = &followedBack
	}
	return nil
}

func followTarget(kind Kind, item Item) (int64, bool) {
	if kind == KindWinkers {
		return item.ID, true
	}
	creator, ok := item.Record["creatorWinker"].(map[string]interface{})
	if !ok {
		return 0, false
	}
	return toInt64(creator["id"])
}

func fillDistance(item *Item, opts Options) {
	if item.DistanceKm != nil || opts.Origin == nil {
		return
	}
	loc := geo.FromAttributes(item.Record)
	if loc == nil {
		return
	}
	d := opts.Origin.DistanceTo(*loc)
	item.DistanceKm = &d
	if opts.Classifier != nil {
		item.Relevance, item.DistanceLabel = opts.Classifier.Classify(item.Score, &d)
	}
}

// Dedupe keeps the first occurrence of every id.
func Dedupe(ranked []Ranked) []Ranked {
	seen := make(map[int64]bool, len(ranked))
	out := make([]Ranked, 0, len(ranked))
	for _, r := range ranked {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		id, err := n.Int64()
		return id, err == nil
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case string:
		id, err := strconv.ParseInt(n, 10, 64)
		return id, err == nil
	}
	return 0, false
}
