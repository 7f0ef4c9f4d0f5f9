package retriever

import (
	"strconv"
	"strings"

	"nisu-recommender/internal/recommendation/geo"
	"nisu-recommender/internal/recommendation/scoring"
)

const vectorScript = `
double s = 0.0;
for (int i = 0; i < params.fields.size(); ++i) {
  String f = params.fields[i];
  if (doc.containsKey(f) && doc[f].size() != 0) {
    s += cosineSimilarity(params.q, f) * params.factors[i];
  }
}
return Math.max(0.0, s);
`

const geoScript = `
if (!doc.containsKey(params.field) || doc[params.field].size() == 0) return 0.0;
double sigma = params.sigma_m;
if (sigma <= 0) return 0.0;
double x = doc[params.field].arcDistance(params.lat, params.lon) / sigma;
return Math.exp(-0.5 * x * x);
`

const dateDecayScript = `
if (!doc.containsKey(params.field) || doc[params.field].size() == 0) return 0.0;
double v = doc[params.field].value.toInstant().toEpochMilli();
double d = Math.max(0.0, Math.abs(v - params.origin) - params.offset);
double x = d / params.scale;
return Math.exp(-0.5 * x * x);
`

const numberDecayScript = `
if (!doc.containsKey(params.field) || doc[params.field].size() == 0) return 0.0;
double v = doc[params.field].value;
if (v <= 0) return 0.0;
double d = Math.max(0.0, Math.abs(v - params.origin) - params.offset);
double x = d / params.scale;
return Math.exp(-0.5 * x * x);
`

const distanceScript = `
if (!doc.containsKey(params.field) || doc[params.field].size() == 0) return null;
return doc[params.field].arcDistance(params.lat, params.lon) / 1000.0;
`

// featureSource lists the _source fields the local interpreter reads.
var featureSource = []string{
	scoring.FieldTitleVector,
	scoring.FieldBioVector,
	scoring.FieldPrefVector,
	scoring.FieldLocation,
	scoring.FieldBoost,
	scoring.FieldLastActivity,
	scoring.FieldAge,
}

// baseQuery is the lexical part of a search. The filter clause keeps the
// text should clauses optional, so a document matching no term still comes
// back with a text score of 0.
func baseQuery(req scoring.Request, textWeight float64) map[string]interface{} {
	boolQuery := map[string]interface{}{
		"filter": filterClauses(req),
	}

	q := strings.TrimSpace(req.Query)
	if q != "" && textWeight > 0 {
		boolQuery["should"] = []interface{}{
			map[string]interface{}{
				"match": map[string]interface{}{
					scoring.FieldTitle: map[string]interface{}{"query": q, "boost": 2},
				},
			},
			map[string]interface{}{
				"match": map[string]interface{}{
					scoring.FieldBio: map[string]interface{}{"query": q},
				},
			},
		}
		boolQuery["minimum_should_match"] = 0
		boolQuery["boost"] = textWeight
	}

	return map[string]interface{}{"bool": boolQuery}
}

// filterClauses always holds match_all so the bool is never empty; a hard
// radius adds a geo_distance filter.
func filterClauses(req scoring.Request) []interface{} {
	filters := []interface{}{
		map[string]interface{}{"match_all": map[string]interface{}{}},
	}
	if hard := hardRadiusFilter(req); hard != nil {
		filters = append(filters, hard)
	}
	return filters
}

func hardRadiusFilter(req scoring.Request) map[string]interface{} {
	if req.Origin == nil || req.HardRadiusKm <= 0 {
		return nil
	}
	return map[string]interface{}{
		"geo_distance": map[string]interface{}{
			"distance":            strconv.FormatFloat(req.HardRadiusKm, 'f', -1, 64) + "km",
			scoring.FieldLocation: pointParam(*req.Origin),
		},
	}
}

// compileFunctions turns every non-text signal of spec into a function_score
// function. Text is carried by the base query boost instead.
func compileFunctions(spec scoring.Spec) []interface{} {
	functions := make([]interface{}, 0, len(spec.Signals))
	for _, sig := range spec.Signals {
		var fn map[string]interface{}

		switch sig.Kind {
		case scoring.Vector:
			fn = vectorFunction(sig)
		case scoring.Geo:
			fn = geoFunction(sig)
		case scoring.Recency:
			fn = decayFunction(sig, scoring.FieldLastActivity, dateDecayScript)
		case scoring.Age:
			fn = decayFunction(sig, scoring.FieldAge, numberDecayScript)
		case scoring.Popularity:
			fn = map[string]interface{}{
				"field_value_factor": map[string]interface{}{
					"field":    scoring.FieldBoost,
					"missing":  0,
					"modifier": "sqrt",
				},
			}
		case scoring.Diversity:
			fn = map[string]interface{}{
				"random_score": map[string]interface{}{
					"seed":  strconv.FormatUint(sig.Seed, 10),
					"field": "_seq_no",
				},
			}
		}

		if fn == nil {
			continue
		}
		fn["weight"] = sig.Weight
		functions = append(functions, fn)
	}
	return functions
}

func vectorFunction(sig scoring.Signal) map[string]interface{} {
	if sig.Vector == nil || len(sig.Vector.Query) == 0 {
		return nil
	}
	fields := make([]string, len(sig.Vector.Fields))
	factors := make([]float64, len(sig.Vector.Fields))
	for i, f := range sig.Vector.Fields {
		fields[i] = f.Name
		factors[i] = f.Factor
	}
	return scriptScore(vectorScript, map[string]interface{}{
		"q":       sig.Vector.Query,
		"fields":  fields,
		"factors": factors,
	})
}

func geoFunction(sig scoring.Signal) map[string]interface{} {
	if sig.Geo == nil {
		return nil
	}
	return scriptScore(geoScript, map[string]interface{}{
		"field":   scoring.FieldLocation,
		"lat":     sig.Geo.Origin.Lat,
		"lon":     sig.Geo.Origin.Lon,
		"sigma_m": sig.Geo.SigmaMeters,
	})
}

func decayFunction(sig scoring.Signal, field, source string) map[string]interface{} {
	if sig.Decay == nil || sig.Decay.Scale <= 0 {
		return nil
	}
	return scriptScore(source, map[string]interface{}{
		"field":  field,
		"origin": sig.Decay.Origin,
		"scale":  sig.Decay.Scale,
		"offset": sig.Decay.Offset,
	})
}

func scriptScore(source string, params map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"script_score": map[string]interface{}{
			"script": map[string]interface{}{
				"source": source,
				"params": params,
			},
		},
	}
}

func functionScore(query map[string]interface{}, functions []interface{}) map[string]interface{} {
	return map[string]interface{}{
		"function_score": map[string]interface{}{
			"query":      query,
			"functions":  functions,
			"score_mode": "sum",
			"boost_mode": "sum",
		},
	}
}

func distanceField(origin *geo.Point) map[string]interface{} {
	if origin == nil {
		return nil
	}
	return map[string]interface{}{
		"distance_km": map[string]interface{}{
			"script": map[string]interface{}{
				"source": distanceScript,
				"params": map[string]interface{}{
					"field": scoring.FieldLocation,
					"lat":   origin.Lat,
					"lon":   origin.Lon,
				},
			},
		},
	}
}

func pointParam(p geo.Point) map[string]interface{} {
	return map[string]interface{}{"lat": p.Lat, "lon": p.Lon}
}

// BuildSearchBody compiles a lexical/vector fusion search. With scripting
// disabled it returns the plain lexical query over a window of from+size
// hits, carrying the feature fields so the caller can score locally.
func BuildSearchBody(req scoring.Request, spec scoring.Spec, from, size int, scripting bool) map[string]interface{} {
	textWeight := 0.0
	if sig, ok := spec.Find(scoring.Text); ok {
		textWeight = sig.Weight
	}
	body := map[string]interface{}{
		"track_total_hits": true,
	}

	if !scripting {
		// the local engine applies the text weight itself
		if textWeight > 0 {
			textWeight = 1
		}
		body["from"] = 0
		body["size"] = from + size
		body["_source"] = featureSource
		body["query"] = baseQuery(req, textWeight)
		return body
	}

	body["from"] = from
	body["size"] = size
	body["_source"] = false
	body["query"] = functionScore(baseQuery(req, textWeight), compileFunctions(spec))
	if fields := distanceField(req.Origin); fields != nil {
		body["script_fields"] = fields
	}
	return body
}

// KNNQuery describes a seed-vector retrieval.
type KNNQuery struct {
	Field         string
	Vector        []float32
	K             int
	NumCandidates int
	RescoreWindow int
	ExcludeIDs    []int64
}

// LocalWindow is how many neighbours local scoring fetches: K, or more when
// the requested page ends past K.
func (q KNNQuery) LocalWindow(end int) int {
	return max(q.K, end)
}

// BuildKNNBody compiles a seed-vector nearest-neighbour search followed by a
// bounded rescore. Only the first RescoreWindow hits get the fusion
// function; the rest keep their nearest-neighbour score and order. The knn
// query form is used rather than the top-level knn section because rescore
// only applies to the query phase.
func BuildKNNBody(req scoring.Request, spec scoring.Spec, q KNNQuery, from, size int, scripting bool) map[string]interface{} {
	knn := map[string]interface{}{
		"field":          q.Field,
		"query_vector":   q.Vector,
		"num_candidates": q.NumCandidates,
	}
	if hard := hardRadiusFilter(req); hard != nil {
		knn["filter"] = []interface{}{hard}
	}

	boolQuery := map[string]interface{}{
		"must": []interface{}{map[string]interface{}{"knn": knn}},
	}
	if len(q.ExcludeIDs) > 0 {
		ids := make([]string, len(q.ExcludeIDs))
		for i, id := range q.ExcludeIDs {
			ids[i] = strconv.FormatInt(id, 10)
		}
		boolQuery["must_not"] = []interface{}{
			map[string]interface{}{"ids": map[string]interface{}{"values": ids}},
		}
	}

	body := map[string]interface{}{
		"track_total_hits": true,
		"query":            map[string]interface{}{"bool": boolQuery},
	}

	if !scripting {
		body["from"] = 0
		body["size"] = q.LocalWindow(from + size)
		body["_source"] = featureSource
		return body
	}

	body["from"] = from
	body["size"] = size
	body["_source"] = false
	if fields := distanceField(req.Origin); fields != nil {
		body["script_fields"] = fields
	}

	functions := compileFunctions(spec)
	if len(functions) > 0 && q.RescoreWindow > 0 {
		rescoreBase := map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []interface{}{map[string]interface{}{"match_all": map[string]interface{}{}}},
			},
		}
		body["rescore"] = map[string]interface{}{
			"window_size": q.RescoreWindow,
			"query": map[string]interface{}{
				"rescore_query":        functionScore(rescoreBase, functions),
				"query_weight":         1,
				"rescore_query_weight": 1,
				"score_mode":           "total",
			},
		}
	}
	return body
}
