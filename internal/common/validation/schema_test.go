package validation

import (
	"testing"

	"nisu-recommender/pkg/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_SearchEvents(t *testing.T) {
	v := NewValidator(registry.Default())

	tests := []struct {
		name      string
		document  string
		wantValid bool
		wantField string
	}{
		{"empty query is fine", `{"query": ""}`, true, ""},
		{"full request", `{"query":"jazz","lat":48.85,"lon":2.35,"sigmaKm":5,"geoWeight":1,"vecWeight":1,"page":2,"perPage":20}`, true, ""},
		{"oversized page size is clamped later", `{"perPage": 500, "page": 0}`, true, ""},
		{"sigma too small", `{"sigmaKm": 0.01}`, false, "sigmaKm"},
		{"sigma too large", `{"sigmaKm": 250}`, false, "sigmaKm"},
		{"weight out of range", `{"geoWeight": 11}`, false, "geoWeight"},
		{"latitude out of range", `{"lat": 91, "lon": 2}`, false, "lat"},
		{"query wrong type", `{"query": 12}`, false, "query"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := v.ValidateJSON("search-events", tt.document)
			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, result.Valid, result.GetErrorMessages())
			if tt.wantField != "" {
				assert.True(t, result.HasErrors(tt.wantField), result.GetErrorMessages())
			}
		})
	}
}

func TestValidator_RecommendRequiresRequester(t *testing.T) {
	v := NewValidator(registry.Default())

	result, err := v.ValidateJSON("recommend-winkers", `{"page": 1}`)
	require.NoError(t, err)
	assert.False(t, result.Valid)

	result, err = v.ValidateJSON("recommend-winkers", `{"requesterId": 42, "ageWeight": 0.5}`)
	require.NoError(t, err)
	assert.True(t, result.Valid, result.GetErrorMessages())
}

func TestValidator_UnknownTaskTypeAccepted(t *testing.T) {
	v := NewValidator(registry.Default())
	result, err := v.ValidateJSON("does-not-exist", `{"anything": true}`)
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestValidateInput_IndexEvents(t *testing.T) {
	activity, ok := registry.Default().FindByTaskType("index-events")
	require.True(t, ok)

	result, err := ValidateInput(map[string]interface{}{
		"events": []interface{}{map[string]interface{}{"id": 3, "titre": "Concert"}},
	}, activity.InputSchema)
	require.NoError(t, err)
	assert.True(t, result.Valid, result.GetErrorMessages())

	result, err = ValidateInput(map[string]interface{}{"events": []interface{}{}}, activity.InputSchema)
	require.NoError(t, err)
	assert.False(t, result.Valid)
}

func TestValidateActivityNaming(t *testing.T) {
	for _, a := range registry.Default().Activities {
		assert.NoError(t, ValidateActivityNaming(a.ID), a.ID)
	}
	assert.Error(t, ValidateActivityNaming("Search-Events"))
}
