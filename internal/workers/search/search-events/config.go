// internal/workers/search/search-events/config.go
package searchevents

import (
	"time"

	"nisu-recommender/internal/common/config"
)

type Config struct {
	Timeout time.Duration
}

// LoadConfig reads the worker's timeout budget; every backend call of a job
// shares it.
func LoadConfig(app *config.Config) *Config {
	wc := config.GetWorkerConfig(app, TaskType)
	return &Config{
		Timeout: config.GetDuration(wc.Timeout),
	}
}
