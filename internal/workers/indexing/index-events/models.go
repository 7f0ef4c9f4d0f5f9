// internal/workers/indexing/index-events/models.go
package indexevents

import "nisu-recommender/internal/recommendation/indexing"

const (
	StatusIndexed = "indexed"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

type Input struct {
	Events  []map[string]interface{} `json:"events"`
	Refresh bool                     `json:"refresh"`
}

type Output struct {
	Status string               `json:"status"`
	Count  int                  `json:"count"`
	Failed int                  `json:"failed"`
	Errors []indexing.ItemError `json:"errors,omitempty"`
}
