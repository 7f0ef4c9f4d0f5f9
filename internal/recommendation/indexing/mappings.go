package indexing

import (
	"sort"

	"nisu-recommender/internal/recommendation/scoring"
)

func denseVector(dims int) map[string]interface{} {
	return map[string]interface{}{
		"type":       "dense_vector",
		"dims":       dims,
		"index":      true,
		"similarity": "cosine",
	}
}

// scoringProperties are the fields every ranked index shares.
func scoringProperties(dims int) map[string]interface{} {
	return map[string]interface{}{
		scoring.FieldBio:          map[string]interface{}{"type": "text"},
		scoring.FieldBioVector:    denseVector(dims),
		scoring.FieldPrefVector:   denseVector(dims),
		scoring.FieldProfileVec:   denseVector(dims),
		scoring.FieldLocation:     map[string]interface{}{"type": "geo_point"},
		scoring.FieldBoost:        map[string]interface{}{"type": "float"},
		scoring.FieldLastActivity: map[string]interface{}{"type": "date"},
		scoring.FieldAge:          map[string]interface{}{"type": "integer"},
		"city":                    map[string]interface{}{"type": "keyword"},
		"region":                  map[string]interface{}{"type": "keyword"},
		"preferences":             map[string]interface{}{"type": "keyword"},
	}
}

// WinkerMapping is the people index.
func WinkerMapping(dims int) map[string]interface{} {
	props := scoringProperties(dims)
	props["username"] = map[string]interface{}{"type": "keyword"}
	props["sexe"] = map[string]interface{}{"type": "keyword"}
	props["pays"] = map[string]interface{}{"type": "keyword"}
	return map[string]interface{}{"mappings": map[string]interface{}{"properties": props}}
}

// EventMapping is the event index. Events add a title and its vector.
func EventMapping(dims int) map[string]interface{} {
	props := scoringProperties(dims)
	props[scoring.FieldTitle] = map[string]interface{}{"type": "text"}
	props[scoring.FieldTitleVector] = denseVector(dims)
	props["dateEvent"] = map[string]interface{}{"type": "date"}
	props["isFull"] = map[string]interface{}{"type": "boolean"}
	return map[string]interface{}{"mappings": map[string]interface{}{"properties": props}}
}

// VectorFields lists the dense_vector fields a mapping declares, sorted.
func VectorFields(mapping map[string]interface{}) []string {
	mappings, _ := mapping["mappings"].(map[string]interface{})
	props, _ := mappings["properties"].(map[string]interface{})

	var out []string
	for name, def := range props {
		field, _ := def.(map[string]interface{})
		if field["type"] == "dense_vector" {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// ConversationMapping has no vectors; conversations are only listed.
func ConversationMapping() map[string]interface{} {
	return map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"title":                map[string]interface{}{"type": "text"},
				"description":          map[string]interface{}{"type": "text"},
				"city":                 map[string]interface{}{"type": "keyword"},
				"region":               map[string]interface{}{"type": "keyword"},
				"sexe":                 map[string]interface{}{"type": "keyword"},
				"age_min":              map[string]interface{}{"type": "integer"},
				"age_max":              map[string]interface{}{"type": "integer"},
				"is_private":           map[string]interface{}{"type": "keyword"},
				"isOnline":             map[string]interface{}{"type": "boolean"},
				"last_message_summary": map[string]interface{}{"type": "text"},
				"datePublication":      map[string]interface{}{"type": "date"},
				"nb_waiting_count":     map[string]interface{}{"type": "integer"},
			},
		},
	}
}
