// internal/workers/indexing/index-events/config.go
package indexevents

import (
	"time"

	"nisu-recommender/internal/common/config"
)

type Config struct {
	Timeout time.Duration
	Index   string
}

// LoadConfig resolves the target index from the recommender settings so the
// worker and the retrievers always agree on it.
func LoadConfig(app *config.Config) *Config {
	wc := config.GetWorkerConfig(app, TaskType)
	return &Config{
		Timeout: config.GetDuration(wc.Timeout),
		Index:   app.Recommender.Indices.Events,
	}
}
