// Package fusion interprets a scoring.Spec locally: it computes each
// signal's contribution for a candidate and sums them.
package fusion

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"sort"
	"strconv"
	"time"

	"nisu-recommender/internal/recommendation/geo"
	"nisu-recommender/internal/recommendation/scoring"

	"github.com/viterin/vek/vek32"
)

// Features is what the engine knows about one candidate. Nil pointers and
// missing map entries mean the field is absent on the document.
type Features struct {
	ID           int64
	NativeScore  float64
	Vectors      map[string][]float32
	Location     *geo.Point
	Boost        *float64
	LastActivity *time.Time
	Age          *float64
}

// Scored is a candidate with its fused score. Arrival is the position the
// retriever returned it at and breaks score ties.
type Scored struct {
	Features
	Score   float64
	Arrival int
}

// Engine evaluates specs. The zero value is ready to use.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Score returns Σ weight × contribution over the spec's signals.
func (e *Engine) Score(spec scoring.Spec, f Features) float64 {
	total := 0.0
	for _, sig := range spec.Signals {
		total += sig.Weight * Contribution(sig, f)
	}
	return total
}

// Rank scores every candidate and orders them by descending score. The sort
// is stable, so equal scores keep retriever order.
func (e *Engine) Rank(spec scoring.Spec, feats []Features) []Scored {
	out := make([]Scored, len(feats))
	for i, f := range feats {
		out[i] = Scored{Features: f, Score: e.Score(spec, f), Arrival: i}
	}
	sortByScore(out)
	return out
}

// Rescore applies the spec to the first window candidates only, adding it to
// their native (nearest-neighbour) score and reordering that slice. The tail
// keeps its native score and order, after the window.
func (e *Engine) Rescore(spec scoring.Spec, feats []Features, window int) []Scored {
	if window < 0 {
		window = 0
	}
	if window > len(feats) {
		window = len(feats)
	}

	out := make([]Scored, len(feats))
	for i, f := range feats {
		score := f.NativeScore
		if i < window {
			score += e.Score(spec, f)
		}
		out[i] = Scored{Features: f, Score: score, Arrival: i}
	}
	sortByScore(out[:window])
	return out
}

func sortByScore(s []Scored) {
	sort.SliceStable(s, func(i, j int) bool {
		return s[i].Score > s[j].Score
	})
}

// Contribution returns the raw, unweighted value of one signal. Absent
// inputs yield 0, as does any non-finite intermediate.
func Contribution(sig scoring.Signal, f Features) float64 {
	var v float64

	switch sig.Kind {
	case scoring.Text:
		v = f.NativeScore
	case scoring.Vector:
		if sig.Vector != nil {
			v = VectorSimilarity(sig.Vector.Query, sig.Vector.Fields, f.Vectors)
		}
	case scoring.Geo:
		if sig.Geo != nil {
			v = GeoDecay(sig.Geo.Origin, f.Location, sig.Geo.SigmaMeters)
		}
	case scoring.Recency:
		if sig.Decay != nil && f.LastActivity != nil {
			v = Decay(float64(f.LastActivity.UnixMilli()), *sig.Decay)
		}
	case scoring.Age:
		if sig.Decay != nil && f.Age != nil && *f.Age > 0 {
			v = Decay(*f.Age, *sig.Decay)
		}
	case scoring.Popularity:
		v = Popularity(f.Boost)
	case scoring.Diversity:
		v = Diversity(sig.Seed, f.ID)
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Gaussian returns exp(-0.5 (x/sigma)^2), or 0 when sigma <= 0.
func Gaussian(x, sigma float64) float64 {
	if sigma <= 0 {
		return 0
	}
	r := x / sigma
	return math.Exp(-0.5 * r * r)
}

// GeoDecay is the Gaussian of the great-circle distance in meters.
func GeoDecay(origin geo.Point, loc *geo.Point, sigmaMeters float64) float64 {
	if loc == nil {
		return 0
	}
	return Gaussian(origin.DistanceTo(*loc)*1000, sigmaMeters)
}

// Decay is the Gaussian of max(0, |value-origin| - offset).
func Decay(value float64, p scoring.DecayParams) float64 {
	d := math.Max(0, math.Abs(value-p.Origin)-p.Offset)
	return Gaussian(d, p.Scale)
}

// Popularity is sqrt of the boost counter; missing or negative counts as 0.
func Popularity(boost *float64) float64 {
	if boost == nil || *boost <= 0 {
		return 0
	}
	return math.Sqrt(*boost)
}

// VectorSimilarity sums factor × cosine over the fields the document has.
// Fields whose length differs from the query are skipped. The sum is floored
// at 0 to match the index-side script, which may not return negative scores.
func VectorSimilarity(query []float32, fields []scoring.VectorField, docVectors map[string][]float32) float64 {
	if len(query) == 0 {
		return 0
	}
	s := 0.0
	for _, field := range fields {
		vec, ok := docVectors[field.Name]
		if !ok || len(vec) != len(query) {
			continue
		}
		s += field.Factor * CosineSimilarity(query, vec)
	}
	return math.Max(0, s)
}

// CosineSimilarity of two equal-length vectors; 0 for zero vectors or a
// length mismatch.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	na := float64(vek32.Dot(a, a))
	nb := float64(vek32.Dot(b, b))
	if na == 0 || nb == 0 {
		return 0
	}
	return float64(vek32.Dot(a, b)) / (math.Sqrt(na) * math.Sqrt(nb))
}

// DiversitySeed derives the per-day seed from requester id and calendar date
// (in the date's own location).
func DiversitySeed(requesterID int64, day time.Time) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strconv.FormatInt(requesterID, 10) + ":" + day.Format("2006-01-02")))
	if seed := h.Sum64(); seed != 0 {
		return seed
	}
	return 1
}

// Diversity maps (seed, id) to a stable value in [0, 1).
func Diversity(seed uint64, id int64) float64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], seed)
	binary.LittleEndian.PutUint64(buf[8:], uint64(id))

	h := fnv.New64a()
	_, _ = h.Write(buf[:])
	return float64(mix64(h.Sum64())>>11) / (1 << 53)
}

// mix64 is the splitmix64 finalizer; FNV alone leaves the high bits poorly
// spread for inputs that differ only in their last bytes.
func mix64(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
