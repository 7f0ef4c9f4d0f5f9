// Package profiletext projects a sparse profile into the single string that
// is embedded for similarity search.
package profiletext

import (
	"fmt"
	"strings"
)

// Side selects which projection to build. Candidate text never carries the
// last-search signal: a candidate's own search history would otherwise pull
// its vector towards queries it issued rather than what it is.
type Side int

const (
	Requester Side = iota
	Candidate
)

const separator = " | "

// Profile is the explicit optional-field view of a winker or event record.
// Empty strings and an empty slice mean absent.
type Profile struct {
	Bio         string
	Preferences []string
	City        string
	Region      string
	LastSearch  string
}

// Build concatenates, in order, bio, preferences, location and (requester
// side only) last search. It returns "" when every part is absent.
func Build(p Profile, side Side) string {
	parts := make([]string, 0, 4)

	if bio := strings.TrimSpace(p.Bio); bio != "" {
		parts = append(parts, bio)
	}

	if prefs := joinTokens(p.Preferences); prefs != "" {
		parts = append(parts, prefs)
	}

	if loc := joinTokens([]string{p.City, p.Region}); loc != "" {
		parts = append(parts, loc)
	}

	if side == Requester {
		if last := strings.TrimSpace(p.LastSearch); !isSentinel(last) {
			parts = append(parts, last)
		}
	}

	return strings.Join(parts, separator)
}

// Eligible reports whether text can seed a recommendation request.
func Eligible(text string) bool {
	return strings.TrimSpace(text) != ""
}

// FromAttributes normalizes a loosely typed record. Preferences come from the
// first non-empty of listPreference, preferences and tags, as either a
// delimited string or a list of tokens.
func FromAttributes(attrs map[string]interface{}) Profile {
	p := Profile{
		Bio:        stringAttr(attrs, "bio"),
		City:       stringAttr(attrs, "city"),
		Region:     stringAttr(attrs, "region"),
		LastSearch: stringAttr(attrs, "derniereRechercheEvent"),
	}

	for _, key := range []string{"listPreference", "preferences", "tags"} {
		raw, ok := attrs[key]
		if !ok || isEmptyValue(raw) {
			continue
		}
		p.Preferences = PreferenceTokens(raw)
		break
	}

	return p
}

// PreferenceTokens converts a preference value into tokens. Sentinel strings
// ("", "null", "[]", "{}") yield nil.
func PreferenceTokens(raw interface{}) []string {
	switch v := raw.(type) {
	case string:
		s := strings.TrimSpace(v)
		if isSentinel(s) {
			return nil
		}
		return []string{s}
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if item == nil {
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return nil
}

func joinTokens(tokens []string) string {
	kept := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			kept = append(kept, t)
		}
	}
	return strings.Join(kept, " ")
}

func isSentinel(s string) bool {
	switch s {
	case "", "null", "[]", "{}":
		return true
	}
	return false
}

func isEmptyValue(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []interface{}:
		return len(t) == 0
	case []string:
		return len(t) == 0
	}
	return false
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
