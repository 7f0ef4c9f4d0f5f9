package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		name          string
		page, perPage int
		want          Page
	}{
		{"defaults", 1, 20, Page{Page: 1, PerPage: 20, Offset: 0}},
		{"per page too large", 1, 500, Page{Page: 1, PerPage: 100, Offset: 0}},
		{"page zero", 0, 20, Page{Page: 1, PerPage: 20, Offset: 0}},
		{"negative page", -3, 20, Page{Page: 1, PerPage: 20, Offset: 0}},
		{"per page zero", 2, 0, Page{Page: 2, PerPage: 1, Offset: 1}},
		{"third page", 3, 10, Page{Page: 3, PerPage: 10, Offset: 20}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clamp(tt.page, tt.perPage))
		})
	}
}

func TestHasMore(t *testing.T) {
	p := Clamp(2, 10)
	assert.True(t, p.HasMore(21))
	assert.False(t, p.HasMore(20))
	assert.False(t, p.HasMore(0))
	assert.Equal(t, 20, p.End())
}
