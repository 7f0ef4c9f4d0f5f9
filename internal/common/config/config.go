// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App         AppConfig               `mapstructure:"app"`
	Camunda     CamundaConfig           `mapstructure:"camunda"`
	Database    DatabaseConfig          `mapstructure:"database"`
	Embedding   EmbeddingConfig         `mapstructure:"embedding"`
	Recommender RecommenderConfig       `mapstructure:"recommender"`
	Workers     map[string]WorkerConfig `mapstructure:"workers"`
	Logging     LoggingConfig           `mapstructure:"logging"`
	Metrics     MetricsConfig           `mapstructure:"metrics"`
	Registry    RegistryConfig          `mapstructure:"registry"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses          []string `mapstructure:"addresses"`
	Username           string   `mapstructure:"username"`
	Password           string   `mapstructure:"password"`
	SSLEnabled         bool     `mapstructure:"ssl_enabled"`
	InsecureSkipVerify bool     `mapstructure:"insecure_skip_verify"`
	URL                string   `mapstructure:"url"` // Single URL for backwards compatibility
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

// GetAddresses returns every configured node, falling back to URL.
func (e ElasticsearchConfig) GetAddresses() []string {
	if len(e.Addresses) > 0 {
		return e.Addresses
	}
	if e.URL != "" {
		return []string{e.URL}
	}
	return nil
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
	Timeout  int    `mapstructure:"timeout"` // milliseconds
}

// EmbeddingConfig points at an OpenAI-compatible embeddings endpoint
// (OpenAI itself, or a self-hosted text-embeddings-inference server).
type EmbeddingConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
	Normalize  bool   `mapstructure:"normalize"`
	CacheSize  int    `mapstructure:"cache_size"`
	Timeout    int    `mapstructure:"timeout"` // milliseconds
}

// RecommenderConfig holds index names and scoring defaults shared by every
// recommendation worker.
type RecommenderConfig struct {
	Indices          IndicesConfig      `mapstructure:"indices"`
	VectorDims       int                `mapstructure:"vector_dims"`
	ScriptingEnabled bool               `mapstructure:"scripting_enabled"`
	KNN              KNNConfig          `mapstructure:"knn"`
	Defaults         WeightsConfig      `mapstructure:"defaults"`
	Decay            DecayConfig        `mapstructure:"decay"`
	Relevance        RelevanceConfig    `mapstructure:"relevance"`
	ProfileCache     ProfileCacheConfig `mapstructure:"profile_cache"`
}

type IndicesConfig struct {
	Winkers       string `mapstructure:"winkers"`
	Events        string `mapstructure:"events"`
	Conversations string `mapstructure:"conversations"`
}

type KNNConfig struct {
	K               int `mapstructure:"k"`
	CandidateFactor int `mapstructure:"candidate_factor"`
	RescoreWindow   int `mapstructure:"rescore_window"`
}

type WeightsConfig struct {
	Text         float64 `mapstructure:"text"`
	Vector       float64 `mapstructure:"vector"`
	Geo          float64 `mapstructure:"geo"`
	Popularity   float64 `mapstructure:"popularity"`
	Recency      float64 `mapstructure:"recency"`
	Age          float64 `mapstructure:"age"`
	Diversity    float64 `mapstructure:"diversity"`
	SigmaKm      float64 `mapstructure:"sigma_km"`
	SoftRadiusKm float64 `mapstructure:"soft_radius_km"`
	HardRadiusKm float64 `mapstructure:"hard_radius_km"`
	PerPage      int     `mapstructure:"per_page"`
}

type DecayConfig struct {
	RecencyScaleHours float64 `mapstructure:"recency_scale_hours"`
	AgeScaleYears     float64 `mapstructure:"age_scale_years"`
	AgeOffsetYears    float64 `mapstructure:"age_offset_years"`
}

type RelevanceConfig struct {
	High   float64 `mapstructure:"high"`
	Medium float64 `mapstructure:"medium"`
	Low    float64 `mapstructure:"low"`
}

type ProfileCacheConfig struct {
	Enabled bool `mapstructure:"enabled"`
	TTL     int  `mapstructure:"ttl"` // seconds
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig holds the health/metrics HTTP listener settings.
type MetricsConfig struct {
	Address string `mapstructure:"address"`
}

// RegistryConfig locates the activity registry carrying the input schemas.
type RegistryConfig struct {
	Path string `mapstructure:"path"`
}
