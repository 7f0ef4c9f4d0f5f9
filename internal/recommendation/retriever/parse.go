package retriever

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"nisu-recommender/internal/recommendation/fusion"
	"nisu-recommender/internal/recommendation/geo"
	"nisu-recommender/internal/recommendation/scoring"
)

type searchResponse struct {
	Took int64 `json:"took"`
	Hits struct {
		Total json.RawMessage `json:"total"`
		Hits  []searchHit     `json:"hits"`
	} `json:"hits"`
}

type searchHit struct {
	ID     string                   `json:"_id"`
	Score  *float64                 `json:"_score"`
	Fields map[string][]interface{} `json:"fields"`
	Source map[string]interface{}   `json:"_source"`
}

// ParseID converts an index document id to an entity id. Anything that is
// not a base-10 integer is rejected and the hit is excluded.
func ParseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// totalHits accepts both the object form and the legacy bare number.
func totalHits(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var obj struct {
		Value int `json:"value"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Value
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	return 0
}

func (h searchHit) score() float64 {
	if h.Score == nil || math.IsNaN(*h.Score) {
		return 0
	}
	return *h.Score
}

func (h searchHit) distanceKm() *float64 {
	values := h.Fields["distance_km"]
	if len(values) == 0 {
		return nil
	}
	d, ok := toFloat(values[0])
	if !ok {
		return nil
	}
	return &d
}

// features reads the scoring inputs out of _source. Malformed fields are
// treated as absent.
func (h searchHit) features(id int64) fusion.Features {
	f := fusion.Features{
		ID:          id,
		NativeScore: h.score(),
		Vectors:     make(map[string][]float32),
	}

	for _, field := range []string{scoring.FieldTitleVector, scoring.FieldBioVector, scoring.FieldPrefVector} {
		if vec, ok := toVector(h.Source[field]); ok {
			f.Vectors[field] = vec
		}
	}

	f.Location = parseLocation(h.Source[scoring.FieldLocation])

	if boost, ok := toFloat(h.Source[scoring.FieldBoost]); ok {
		f.Boost = &boost
	}
	if ts, ok := parseTime(h.Source[scoring.FieldLastActivity]); ok {
		f.LastActivity = &ts
	}
	if age, ok := toFloat(h.Source[scoring.FieldAge]); ok {
		f.Age = &age
	}
	return f
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func toVector(v interface{}) ([]float32, bool) {
	raw, ok := v.([]interface{})
	if !ok || len(raw) == 0 {
		return nil, false
	}
	out := make([]float32, len(raw))
	for i, x := range raw {
		f, ok := toFloat(x)
		if !ok {
			return nil, false
		}
		out[i] = float32(f)
	}
	return out, true
}

// parseLocation accepts the geo_point forms the index stores: an object,
// a [lon, lat] array or a "lat,lon" string.
func parseLocation(v interface{}) *geo.Point {
	switch loc := v.(type) {
	case map[string]interface{}:
		return geo.FromAttributes(loc)
	case []interface{}:
		if len(loc) != 2 {
			return nil
		}
		lon, okLon := toFloat(loc[0])
		lat, okLat := toFloat(loc[1])
		if !okLon || !okLat {
			return nil
		}
		return &geo.Point{Lat: lat, Lon: lon}
	case string:
		parts := strings.Split(loc, ",")
		if len(parts) != 2 {
			return nil
		}
		lat, okLat := toFloat(strings.TrimSpace(parts[0]))
		lon, okLon := toFloat(strings.TrimSpace(parts[1]))
		if !okLat || !okLon {
			return nil
		}
		return &geo.Point{Lat: lat, Lon: lon}
	}
	return nil
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// parseTime accepts the date forms the index stores: an ISO string or epoch
// milliseconds.
func parseTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts, true
			}
		}
	case float64:
		return time.UnixMilli(int64(t)).UTC(), true
	}
	return time.Time{}, false
}
