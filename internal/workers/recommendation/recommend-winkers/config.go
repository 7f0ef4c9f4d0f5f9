// internal/workers/recommendation/recommend-winkers/config.go
package recommendwinkers

import (
	"time"

	"nisu-recommender/internal/common/config"
)

type Config struct {
	Timeout time.Duration
}

func LoadConfig(app *config.Config) *Config {
	wc := config.GetWorkerConfig(app, TaskType)
	return &Config{
		Timeout: config.GetDuration(wc.Timeout),
	}
}
