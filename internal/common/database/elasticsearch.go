// internal/common/database/elasticsearch.go
package database

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nisu-recommender/internal/common/config"

	"github.com/elastic/go-elasticsearch/v8"
)

// knnQueryMinVersion is the first release accepting knn as a query clause,
// which the seed-vector retriever relies on.
var knnQueryMinVersion = [2]int{8, 12}

// ElasticsearchClient wraps the client shared by the retrievers and the indexer.
type ElasticsearchClient struct {
	Client *elasticsearch.Client
}

// NewElasticsearch builds the client. Gateway errors are retried by the
// transport; search and bulk bodies are compressed.
func NewElasticsearch(cfg config.ElasticsearchConfig) (*ElasticsearchClient, error) {
	esCfg := elasticsearch.Config{
		Addresses:           cfg.GetAddresses(),
		RetryOnStatus:       []int{502, 503, 504},
		MaxRetries:          2,
		CompressRequestBody: true,
	}

	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	if cfg.SSLEnabled && cfg.InsecureSkipVerify {
		esCfg.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // self-signed dev clusters
		}
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	return &ElasticsearchClient{Client: es}, nil
}

// Ping tests the Elasticsearch connection
func (c *ElasticsearchClient) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := c.Client.Ping(
		c.Client.Ping.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch ping failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping error: %s", res.Status())
	}

	return nil
}

// Info checks that the cluster answers with a usable info document.
func (c *ElasticsearchClient) Info(ctx context.Context) error {
	_, err := c.ServerVersion(ctx)
	return err
}

// ServerVersion returns the version number reported by the cluster.
func (c *ElasticsearchClient) ServerVersion(ctx context.Context) (string, error) {
	res, err := c.Client.Info(
		c.Client.Info.WithContext(ctx),
	)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.IsError() {
		return "", fmt.Errorf("elasticsearch info error: %s", res.Status())
	}

	var info struct {
		Version struct {
			Number string `json:"number"`
		} `json:"version"`
	}
	if err := json.NewDecoder(res.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("decode elasticsearch info: %w", err)
	}
	if info.Version.Number == "" {
		return "", fmt.Errorf("elasticsearch info has no version")
	}
	return info.Version.Number, nil
}

// SupportsKNNQuery reports whether a cluster version accepts the knn query
// clause. Unparseable versions are treated as unsupported.
func SupportsKNNQuery(version string) bool {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 {
		return false
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return false
	}
	minor, err := strconv.Atoi(strings.TrimFunc(parts[1], func(r rune) bool { return r < '0' || r > '9' }))
	if err != nil {
		return false
	}
	if major != knnQueryMinVersion[0] {
		return major > knnQueryMinVersion[0]
	}
	return minor >= knnQueryMinVersion[1]
}
