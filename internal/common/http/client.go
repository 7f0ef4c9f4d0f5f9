package http

import (
	"net/http"
	"strconv"
	"time"

	"nisu-recommender/internal/common/metrics"
)

// Client is the outbound HTTP client of the embedding backend. Every round
// trip is timed under the configured upstream name.
type Client struct {
	httpClient *http.Client
}

func NewClient(upstream string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &instrumentedTransport{
				upstream: upstream,
				next: &http.Transport{
					MaxIdleConns:        50,
					MaxIdleConnsPerHost: 10,
					IdleConnTimeout:     90 * time.Second,
				},
			},
		},
	}
}

// HTTPClient exposes the underlying client for SDKs that take one.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

type instrumentedTransport struct {
	upstream string
	next     http.RoundTripper
}

func (t *instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	res, err := t.next.RoundTrip(req)

	status := "error"
	if err == nil {
		status = statusClass(res.StatusCode)
	}
	metrics.UpstreamRequestDuration.WithLabelValues(t.upstream, status).Observe(time.Since(start).Seconds())
	return res, err
}

// statusClass folds a status code to 2xx, 4xx and so on.
func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}
