package profiletext

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuild_LastSearchOnlyOnRequesterSide(t *testing.T) {
	p := Profile{
		Bio:         "  Amateur de jazz  ",
		Preferences: []string{"musique", "concert"},
		City:        "Paris",
		Region:      "Ile-de-France",
		LastSearch:  "festival electro",
	}

	assert.Equal(t, "Amateur de jazz | musique concert | Paris Ile-de-France | festival electro", Build(p, Requester))
	assert.Equal(t, "Amateur de jazz | musique concert | Paris Ile-de-France", Build(p, Candidate))
}

func TestBuild_OmitsAbsentParts(t *testing.T) {
	tests := []struct {
		name string
		p    Profile
		want string
	}{
		{"empty", Profile{}, ""},
		{"only city", Profile{City: "Lyon"}, "Lyon"},
		{"only region", Profile{Region: "Bretagne"}, "Bretagne"},
		{"blank bio", Profile{Bio: "   ", City: "Lyon"}, "Lyon"},
		{"sentinel last search", Profile{Bio: "x", LastSearch: "{}"}, "x"},
		{"null last search", Profile{Bio: "x", LastSearch: "null"}, "x"},
		{"blank preference tokens", Profile{Preferences: []string{" ", ""}, Bio: "x"}, "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Build(tt.p, Requester))
		})
	}
}

func TestEligible(t *testing.T) {
	assert.False(t, Eligible(""))
	assert.False(t, Eligible("   "))
	assert.True(t, Eligible("Lyon"))
}

func TestFromAttributes(t *testing.T) {
	attrs := map[string]interface{}{
		"bio":                    "Runner",
		"listPreference":         "sport, voyage",
		"tags":                   []interface{}{"ignored"},
		"city":                   "Nantes",
		"derniereRechercheEvent": "trail",
	}

	p := FromAttributes(attrs)
	assert.Equal(t, []string{"sport, voyage"}, p.Preferences)
	assert.Equal(t, "Runner | sport, voyage | Nantes | trail", Build(p, Requester))
	assert.Equal(t, "Runner | sport, voyage | Nantes", Build(p, Candidate))
}

func TestFromAttributes_PreferenceFallbackAndSentinels(t *testing.T) {
	p := FromAttributes(map[string]interface{}{
		"listPreference": "",
		"preferences":    []interface{}{},
		"tags":           []interface{}{"party", 42},
	})
	assert.Equal(t, []string{"party", "42"}, p.Preferences)

	for _, sentinel := range []string{"null", "[]", "{}"} {
		p := FromAttributes(map[string]interface{}{"listPreference": sentinel, "tags": []interface{}{"x"}})
		assert.Nil(t, p.Preferences, sentinel)
	}
}
