// internal/workers/search/search-events/models.go
package searchevents

import "nisu-recommender/internal/recommendation/hydration"

type Input struct {
	Query              string   `json:"query"`
	RequesterID        int64    `json:"requesterId,omitempty"`
	Page               int      `json:"page"`
	PerPage            *int     `json:"perPage,omitempty"`
	Lat                *float64 `json:"lat,omitempty"`
	Lon                *float64 `json:"lon,omitempty"`
	SigmaKm            *float64 `json:"sigmaKm,omitempty"`
	SoftRadiusKm       *float64 `json:"softRadiusKm,omitempty"`
	HardRadiusKm       *float64 `json:"hardRadiusKm,omitempty"`
	TextWeight         *float64 `json:"textWeight,omitempty"`
	VecWeight          *float64 `json:"vecWeight,omitempty"`
	GeoWeight          *float64 `json:"geoWeight,omitempty"`
	PopularityWeight   *float64 `json:"popularityWeight,omitempty"`
	DiversityWeight    *float64 `json:"diversityWeight,omitempty"`
	IncludeFollowFlags bool     `json:"includeFollowFlags"`
}

type Output struct {
	Items      []hydration.Item `json:"items"`
	Page       int              `json:"page"`
	PerPage    int              `json:"perPage"`
	TotalCount int              `json:"totalCount"`
	HasMore    bool             `json:"hasMore"`
	RequestID  string           `json:"requestId"`
	Mode       string           `json:"mode"`
}
