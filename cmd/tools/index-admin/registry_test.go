package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nisu-recommender/pkg/registry"
)

func TestValidateRegistry_EmbeddedRegistryIsValid(t *testing.T) {
	require.NoError(t, validateRegistry(registry.Default()))
}

func TestValidateRegistry_Failures(t *testing.T) {
	tests := []struct {
		name       string
		activities []registry.Activity
		want       string
	}{
		{"empty", nil, "no activities"},
		{"missing task type", []registry.Activity{{ID: "search.events.query", Category: "search"}}, "taskType"},
		{"bad naming", []registry.Activity{{ID: "search-events", TaskType: "search-events", Category: "search"}}, "domain.subdomain.action"},
		{
			"duplicate task type",
			[]registry.Activity{
				{ID: "search.events.query", TaskType: "search-events", Category: "search"},
				{ID: "search.events.again", TaskType: "search-events", Category: "search"},
			},
			"duplicate task type",
		},
		{
			"bad timeout",
			[]registry.Activity{{ID: "search.events.query", TaskType: "search-events", Category: "search", Timeout: "ten"}},
			"invalid timeout",
		},
		{
			"unknown error code",
			[]registry.Activity{{ID: "search.events.query", TaskType: "search-events", Category: "search", ErrorCodes: []string{"SEARCH_TIMEOUT"}}},
			"unknown error code SEARCH_TIMEOUT",
		},
		{
			"schema does not compile",
			[]registry.Activity{{
				ID: "search.events.query", TaskType: "search-events", Category: "search",
				InputSchema: map[string]interface{}{"type": 12},
			}},
			"search.events.query",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRegistry(&registry.ActivityRegistry{Activities: tt.activities})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
