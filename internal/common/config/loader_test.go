package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
camunda:
  broker_address: localhost:26500
database:
  postgres:
    host: localhost
    database: nisu
    user: nisu
  elasticsearch:
    addresses:
      - http://localhost:9200
  redis:
    address: localhost:6379
embedding:
  base_url: http://localhost:8081/v1
workers:
  search-events:
    enabled: true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "nisu_winkers", cfg.Recommender.Indices.Winkers)
	assert.Equal(t, "nisu_events", cfg.Recommender.Indices.Events)
	assert.Equal(t, 768, cfg.Recommender.VectorDims)
	assert.True(t, cfg.Recommender.ScriptingEnabled)
	assert.Equal(t, 5.0, cfg.Recommender.Defaults.SigmaKm)
	assert.Equal(t, 0.2, cfg.Recommender.Defaults.Popularity)
	assert.Equal(t, 20, cfg.Recommender.Defaults.PerPage)
	assert.Equal(t, 2.5, cfg.Recommender.Relevance.High)
	assert.Equal(t, "sentence-transformers/all-mpnet-base-v2", cfg.Embedding.Model)
	assert.Equal(t, "http://localhost:9200", cfg.Database.Elasticsearch.URL)
	assert.Equal(t, "disable", cfg.Database.Postgres.SSLMode)

	worker := cfg.Workers["search-events"]
	assert.True(t, worker.Enabled)
	assert.Equal(t, 5, worker.MaxJobsActive)
	assert.Equal(t, 30000, worker.Timeout)
}

func TestLoadFromFile_ExplicitValuesWin(t *testing.T) {
	body := minimalYAML + `
recommender:
  scripting_enabled: false
  knn:
    k: 50
  defaults:
    sigma_km: 12
`
	cfg, err := LoadFromFile(writeConfig(t, body))
	require.NoError(t, err)

	assert.False(t, cfg.Recommender.ScriptingEnabled)
	assert.Equal(t, 50, cfg.Recommender.KNN.K)
	assert.Equal(t, 5, cfg.Recommender.KNN.CandidateFactor)
	assert.Equal(t, 12.0, cfg.Recommender.Defaults.SigmaKm)
}

func TestLoadFromFile_ExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("NISU_TEST_LOG_LEVEL", "debug")
	path := writeConfig(t, minimalYAML+`
logging:
  level: ${NISU_TEST_LOG_LEVEL}
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing broker", func(c *Config) { c.Camunda.BrokerAddress = "" }, "camunda.broker_address"},
		{"missing postgres host", func(c *Config) { c.Database.Postgres.Host = "" }, "database.postgres.host"},
		{"missing es", func(c *Config) {
			c.Database.Elasticsearch.Addresses = nil
			c.Database.Elasticsearch.URL = ""
		}, "database.elasticsearch"},
		{"missing redis", func(c *Config) { c.Database.Redis.Address = "" }, "database.redis.address"},
		{"missing embedding", func(c *Config) { c.Embedding.BaseURL = "" }, "embedding.base_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.Camunda.BrokerAddress = "localhost:26500"
			cfg.Database.Postgres = PostgresConfig{Host: "h", Database: "d", User: "u"}
			cfg.Database.Elasticsearch.URL = "http://localhost:9200"
			cfg.Database.Redis.Address = "localhost:6379"
			cfg.Embedding.BaseURL = "http://localhost:8081/v1"
			tt.mutate(cfg)

			err := validateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetWorkerConfig_Fallback(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{}}
	wc := GetWorkerConfig(cfg, "recommend-winkers")
	assert.True(t, wc.Enabled)
	assert.Equal(t, 30000, wc.Timeout)
	assert.True(t, IsWorkerEnabled(cfg, "recommend-winkers"))
}

func TestPostgresConfig_GetDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "nisu", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=nisu sslmode=disable", p.GetDSN())
}
