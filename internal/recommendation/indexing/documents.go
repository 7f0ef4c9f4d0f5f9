package indexing

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	apperrors "nisu-recommender/internal/common/errors"
	"nisu-recommender/internal/recommendation/embedding"
	"nisu-recommender/internal/recommendation/geo"
	"nisu-recommender/internal/recommendation/profiletext"
	"nisu-recommender/internal/recommendation/scoring"
)

// Document is one index write.
type Document struct {
	ID   int64
	Body map[string]interface{}
}

// Builder turns relational records into index documents, embedding the
// candidate-side texts.
type Builder struct {
	embedder embedding.Embedder
	dims     int
}

func NewBuilder(embedder embedding.Embedder, dims int) *Builder {
	return &Builder{embedder: embedder, dims: dims}
}

var winkerPassthrough = []string{"username", "sexe", "city", "region", "subregion", "pays"}

var eventPassthrough = []string{"city", "region", "subregion", "pays", "codePostal", "dateEvent", "isFull"}

// Winker builds a people document. The profile vector is the candidate
// projection, so a winker's own last search never reaches the index.
func (b *Builder) Winker(ctx context.Context, attrs map[string]interface{}) (Document, error) {
	id, ok := intAttr(attrs["id"])
	if !ok {
		return Document{}, apperrors.NewInvalidInputError("winker without a numeric id")
	}

	profile := profiletext.FromAttributes(attrs)
	body := passthrough(attrs, winkerPassthrough)
	body[scoring.FieldBio] = strings.TrimSpace(profile.Bio)
	if len(profile.Preferences) > 0 {
		body["preferences"] = profile.Preferences
	}

	texts := map[string]string{
		scoring.FieldBioVector:  profile.Bio,
		scoring.FieldPrefVector: strings.Join(profile.Preferences, " "),
		scoring.FieldProfileVec: profiletext.Build(profile, profiletext.Candidate),
	}
	if err := b.embedInto(ctx, body, texts); err != nil {
		return Document{}, err
	}

	applyScoringFields(body, attrs, "age", "last_activity", "lastActivity", "derniereConnexion")
	return Document{ID: id, Body: body}, nil
}

// Event builds an event document. The event description is indexed under
// bio so both indices answer the same text query.
func (b *Builder) Event(ctx context.Context, attrs map[string]interface{}) (Document, error) {
	id, ok := intAttr(attrs["id"])
	if !ok {
		return Document{}, apperrors.NewInvalidInputError("event without a numeric id")
	}

	title := strings.TrimSpace(stringAttr(attrs, "titre"))
	description := strings.TrimSpace(stringAttr(attrs, "bioEvent"))
	tags := profiletext.PreferenceTokens(attrs["hastagEvents"])

	body := passthrough(attrs, eventPassthrough)
	body[scoring.FieldTitle] = title
	body[scoring.FieldBio] = description
	if len(tags) > 0 {
		body["preferences"] = tags
	}

	profile := profiletext.Profile{
		Bio:         strings.TrimSpace(title + " " + description),
		Preferences: tags,
		City:        stringAttr(attrs, "city"),
		Region:      stringAttr(attrs, "region"),
	}
	texts := map[string]string{
		scoring.FieldTitleVector: title,
		scoring.FieldBioVector:   description,
		scoring.FieldPrefVector:  strings.Join(tags, " "),
		scoring.FieldProfileVec:  profiletext.Build(profile, profiletext.Candidate),
	}
	if err := b.embedInto(ctx, body, texts); err != nil {
		return Document{}, err
	}

	applyScoringFields(body, attrs, "moyenneAge", "last_activity", "datePublication")
	return Document{ID: id, Body: body}, nil
}

// embedInto stores a vector per non-empty text. Vectors of the wrong width
// are left out so the mapping never rejects the document.
func (b *Builder) embedInto(ctx context.Context, body map[string]interface{}, texts map[string]string) error {
	for field, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		vec, err := b.embedder.Embed(ctx, text)
		if err != nil {
			return err
		}
		if len(vec) != b.dims {
			continue
		}
		body[field] = vec
	}
	return nil
}

// applyScoringFields copies location, boost, age and the first usable
// activity timestamp. A negative boost is stored as 0: the index applies a
// square root to it.
func applyScoringFields(body, attrs map[string]interface{}, ageKey string, activityKeys ...string) {
	if p := geo.FromAttributes(attrs); p != nil && p.Valid() {
		body[scoring.FieldLocation] = map[string]interface{}{"lat": p.Lat, "lon": p.Lon}
	}

	if boost, ok := floatAttr(attrs["boost"]); ok {
		body[scoring.FieldBoost] = math.Max(0, boost)
	}

	if age, ok := floatAttr(attrs[ageKey]); ok && age > 0 {
		body[scoring.FieldAge] = int(age)
	}

	for _, key := range activityKeys {
		if ts, ok := timeAttr(attrs[key]); ok {
			body[scoring.FieldLastActivity] = ts.UTC().Format(time.RFC3339)
			break
		}
	}
}

func passthrough(attrs map[string]interface{}, keys []string) map[string]interface{} {
	body := make(map[string]interface{}, len(keys)+10)
	for _, k := range keys {
		if v, ok := attrs[k]; ok && v != nil {
			body[k] = v
		}
	}
	return body
}

func stringAttr(attrs map[string]interface{}, key string) string {
	switch v := attrs[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func intAttr(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		id, err := n.Int64()
		return id, err == nil
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return id, err == nil
	}
	return 0, false
}

func floatAttr(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

func timeAttr(v interface{}) (time.Time, bool) {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
