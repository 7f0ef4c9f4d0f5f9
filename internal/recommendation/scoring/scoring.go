// Package scoring describes a ranking as a declarative list of named,
// weighted signals. The retriever compiles a Spec into an Elasticsearch
// function_score; the fusion engine interprets the same Spec locally when
// index-side scripting is unavailable.
package scoring

import (
	"time"

	"nisu-recommender/internal/recommendation/geo"
)

// Kind names a signal.
type Kind string

const (
	Text       Kind = "text"
	Vector     Kind = "vector"
	Geo        Kind = "geo"
	Recency    Kind = "recency"
	Age        Kind = "age"
	Popularity Kind = "popularity"
	Diversity  Kind = "diversity"
)

// Index document fields the signals read.
const (
	FieldTitle        = "titre"
	FieldBio          = "bio"
	FieldTitleVector  = "titre_vector"
	FieldBioVector    = "bio_vector"
	FieldPrefVector   = "preferences_vector"
	FieldProfileVec   = "profile_vector"
	FieldLocation     = "localisation"
	FieldBoost        = "boost"
	FieldLastActivity = "last_activity"
	FieldAge          = "age"
)

// Weights are the per-signal multipliers. Zero disables a signal.
type Weights struct {
	Text       float64 `json:"text"`
	Vector     float64 `json:"vector"`
	Geo        float64 `json:"geo"`
	Popularity float64 `json:"popularity"`
	Recency    float64 `json:"recency"`
	Age        float64 `json:"age"`
	Diversity  float64 `json:"diversity"`
}

// Request is the immutable description of one ranking request.
type Request struct {
	Query        string
	Origin       *geo.Point
	Weights      Weights
	SigmaKm      float64
	SoftRadiusKm float64
	HardRadiusKm float64
	Page         int
	PerPage      int
	RequesterID  int64
	Seed         uint64
}

// SigmaMeters returns the geo width in meters.
func (r Request) SigmaMeters() float64 {
	return r.SigmaKm * 1000
}

// VectorField is one guarded dense_vector field and its multiplier.
type VectorField struct {
	Name   string
	Factor float64
}

// DefaultVectorFields are the per-document embedding fields: title counts
// twice, bio and preferences once.
var DefaultVectorFields = []VectorField{
	{Name: FieldTitleVector, Factor: 2},
	{Name: FieldBioVector, Factor: 1},
	{Name: FieldPrefVector, Factor: 1},
}

type VectorParams struct {
	Query  []float32
	Fields []VectorField
}

type GeoParams struct {
	Origin      geo.Point
	SigmaMeters float64
}

// DecayParams describe a Gaussian over |value - Origin|, with Offset of
// slack before decay starts. Units depend on the signal: epoch milliseconds
// for recency, years for age.
type DecayParams struct {
	Origin float64
	Scale  float64
	Offset float64
}

// Signal is one weighted term of the fused score. Exactly the params that
// match Kind are set.
type Signal struct {
	Kind   Kind
	Weight float64
	Vector *VectorParams
	Geo    *GeoParams
	Decay  *DecayParams
	Seed   uint64
}

// Spec is the full ranking description.
type Spec struct {
	Signals []Signal
}

// Has reports whether the spec contains an enabled signal of kind k.
func (s Spec) Has(k Kind) bool {
	_, ok := s.Find(k)
	return ok
}

// Find returns the signal of kind k.
func (s Spec) Find(k Kind) (Signal, bool) {
	for _, sig := range s.Signals {
		if sig.Kind == k {
			return sig, true
		}
	}
	return Signal{}, false
}

// Kinds lists the signal kinds in evaluation order.
func (s Spec) Kinds() []Kind {
	out := make([]Kind, len(s.Signals))
	for i, sig := range s.Signals {
		out[i] = sig.Kind
	}
	return out
}

// RestrictVectors keeps only the vector fields named in mapped. A vector
// signal left with no field is dropped. An empty mapped list keeps s as is.
func (s Spec) RestrictVectors(mapped []string) Spec {
	if len(mapped) == 0 {
		return s
	}
	allowed := make(map[string]bool, len(mapped))
	for _, name := range mapped {
		allowed[name] = true
	}

	out := Spec{Signals: make([]Signal, 0, len(s.Signals))}
	for _, sig := range s.Signals {
		if sig.Kind == Vector && sig.Vector != nil {
			var fields []VectorField
			for _, f := range sig.Vector.Fields {
				if allowed[f.Name] {
					fields = append(fields, f)
				}
			}
			if len(fields) == 0 {
				continue
			}
			vec := *sig.Vector
			vec.Fields = fields
			sig.Vector = &vec
		}
		out.Signals = append(out.Signals, sig)
	}
	return out
}

// ForSearch builds the spec of a free-text search. The vector signal is
// dropped when vec does not have exactly dims components.
func ForSearch(req Request, vec []float32, dims int) Spec {
	var signals []Signal

	if req.Query != "" && req.Weights.Text > 0 {
		signals = append(signals, Signal{Kind: Text, Weight: req.Weights.Text})
	}
	signals = appendCommon(signals, req, vec, dims)
	return Spec{Signals: signals}
}

// EntityContext carries what entity recommendation knows about the requester
// beyond the request itself.
type EntityContext struct {
	Now               time.Time
	RequesterAge      int
	RecencyScaleHours float64
	AgeScaleYears     float64
	AgeOffsetYears    float64
}

// ForEntity builds the spec used to rescore seed-vector neighbours. It adds
// recency and, when the requester age is known, age proximity.
func ForEntity(req Request, vec []float32, dims int, ec EntityContext) Spec {
	signals := appendCommon(nil, req, vec, dims)

	if req.Weights.Recency > 0 && ec.RecencyScaleHours > 0 {
		signals = append(signals, Signal{
			Kind:   Recency,
			Weight: req.Weights.Recency,
			Decay: &DecayParams{
				Origin: float64(ec.Now.UnixMilli()),
				Scale:  ec.RecencyScaleHours * float64(time.Hour/time.Millisecond),
			},
		})
	}

	if req.Weights.Age > 0 && ec.RequesterAge > 0 && ec.AgeScaleYears > 0 {
		signals = append(signals, Signal{
			Kind:   Age,
			Weight: req.Weights.Age,
			Decay: &DecayParams{
				Origin: float64(ec.RequesterAge),
				Scale:  ec.AgeScaleYears,
				Offset: ec.AgeOffsetYears,
			},
		})
	}

	return Spec{Signals: signals}
}

func appendCommon(signals []Signal, req Request, vec []float32, dims int) []Signal {
	if req.Weights.Vector > 0 && dims > 0 && len(vec) == dims {
		signals = append(signals, Signal{
			Kind:   Vector,
			Weight: req.Weights.Vector,
			Vector: &VectorParams{Query: vec, Fields: DefaultVectorFields},
		})
	}

	if req.Weights.Geo > 0 && req.Origin != nil && req.SigmaKm > 0 {
		signals = append(signals, Signal{
			Kind:   Geo,
			Weight: req.Weights.Geo,
			Geo:    &GeoParams{Origin: *req.Origin, SigmaMeters: req.SigmaMeters()},
		})
	}

	if req.Weights.Popularity > 0 {
		signals = append(signals, Signal{Kind: Popularity, Weight: req.Weights.Popularity})
	}

	if req.Weights.Diversity > 0 && req.Seed != 0 {
		signals = append(signals, Signal{Kind: Diversity, Weight: req.Weights.Diversity, Seed: req.Seed})
	}

	return signals
}

// RequesterAge derives an age from a birth year, clamped to [0, 120]. Zero
// means unknown.
func RequesterAge(birthYear int, now time.Time) int {
	if birthYear <= 0 {
		return 0
	}
	age := now.Year() - birthYear
	if age < 0 {
		return 0
	}
	if age > 120 {
		return 120
	}
	return age
}
