// internal/workers/indexing/index-winkers/models.go
package indexwinkers

import "nisu-recommender/internal/recommendation/indexing"

const (
	StatusIndexed = "indexed"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

type Input struct {
	Winkers []map[string]interface{} `json:"winkers"`
	Refresh bool                     `json:"refresh"`
}

type Output struct {
	Status string               `json:"status"`
	Count  int                  `json:"count"`
	Failed int                  `json:"failed"`
	Errors []indexing.ItemError `json:"errors,omitempty"`
}
