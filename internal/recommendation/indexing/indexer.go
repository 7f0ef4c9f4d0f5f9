// Package indexing builds and writes the search documents the retriever
// reads, and creates the indices when they are missing.
package indexing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/elastic/go-elasticsearch/v8/esutil"

	apperrors "nisu-recommender/internal/common/errors"
	"nisu-recommender/internal/common/logger"
	"nisu-recommender/internal/common/metrics"
)

// Indices names the three indices the service owns.
type Indices struct {
	Winkers       string
	Events        string
	Conversations string
}

// ItemError is one document the index refused.
type ItemError struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// Report summarizes an indexing call.
type Report struct {
	Index   string      `json:"index"`
	Indexed int         `json:"indexed"`
	Failed  int         `json:"failed"`
	Errors  []ItemError `json:"errors,omitempty"`
}

func (r *Report) fail(id, reason string) {
	r.Failed++
	r.Errors = append(r.Errors, ItemError{ID: id, Reason: reason})
}

type Indexer struct {
	client  *elasticsearch.Client
	builder *Builder
	dims    int
	logger  logger.Logger
}

func NewIndexer(client *elasticsearch.Client, builder *Builder, dims int, log logger.Logger) *Indexer {
	return &Indexer{client: client, builder: builder, dims: dims, logger: log}
}

// EnsureIndices creates every missing index with its mapping. Existing
// indices are left untouched.
func (ix *Indexer) EnsureIndices(ctx context.Context, names Indices) ([]string, error) {
	wanted := []struct {
		name    string
		mapping map[string]interface{}
	}{
		{names.Winkers, WinkerMapping(ix.dims)},
		{names.Events, EventMapping(ix.dims)},
		{names.Conversations, ConversationMapping()},
	}

	var created []string
	for _, w := range wanted {
		if w.name == "" {
			continue
		}
		ok, err := ix.ensureIndex(ctx, w.name, w.mapping)
		if err != nil {
			return created, err
		}
		if ok {
			created = append(created, w.name)
		}
	}
	return created, nil
}

func (ix *Indexer) ensureIndex(ctx context.Context, name string, mapping map[string]interface{}) (bool, error) {
	exists, err := esapi.IndicesExistsRequest{Index: []string{name}}.Do(ctx, ix.client)
	if err != nil {
		return false, apperrors.NewIndexingFailedError(name, err)
	}
	exists.Body.Close()

	switch exists.StatusCode {
	case http.StatusOK:
		return false, nil
	case http.StatusNotFound:
	default:
		return false, apperrors.NewIndexingFailedError(name, fmt.Errorf("exists check returned %s", exists.Status()))
	}

	body, err := json.Marshal(mapping)
	if err != nil {
		return false, apperrors.NewIndexingFailedError(name, err)
	}

	res, err := esapi.IndicesCreateRequest{Index: name, Body: bytes.NewReader(body)}.Do(ctx, ix.client)
	if err != nil {
		return false, apperrors.NewIndexingFailedError(name, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		// another replica may have won the race
		if bytes.Contains(raw, []byte("resource_already_exists_exception")) {
			return false, nil
		}
		return false, apperrors.NewIndexingFailedError(name, fmt.Errorf("create index: %s: %s", res.Status(), raw))
	}

	ix.logger.Info("created index", map[string]interface{}{"index": name})
	return true, nil
}

// IndexWinkers builds and writes winker documents.
func (ix *Indexer) IndexWinkers(ctx context.Context, index string, records []map[string]interface{}, refresh bool) (*Report, error) {
	return ix.index(ctx, index, records, refresh, ix.builder.Winker)
}

// IndexEvents builds and writes event documents.
func (ix *Indexer) IndexEvents(ctx context.Context, index string, records []map[string]interface{}, refresh bool) (*Report, error) {
	return ix.index(ctx, index, records, refresh, ix.builder.Event)
}

type buildFunc func(ctx context.Context, attrs map[string]interface{}) (Document, error)

// index builds every document first so an embedding failure aborts before
// anything is written. Records rejected by the builder are reported, not
// fatal.
func (ix *Indexer) index(ctx context.Context, index string, records []map[string]interface{}, refresh bool, build buildFunc) (*Report, error) {
	report := &Report{Index: index}
	docs := make([]Document, 0, len(records))

	for i, attrs := range records {
		doc, err := build(ctx, attrs)
		if err != nil {
			stdErr, ok := apperrors.As(err)
			if ok && stdErr.Code == apperrors.ErrCodeInvalidInput {
				report.fail(fmt.Sprintf("#%d", i), stdErr.Details)
				continue
			}
			return nil, apperrors.NewIndexingFailedError(index, err)
		}
		docs = append(docs, doc)
	}

	var err error
	switch len(docs) {
	case 0:
	case 1:
		err = ix.indexOne(ctx, index, docs[0], refresh, report)
	default:
		err = ix.bulk(ctx, index, docs, refresh, report)
	}
	if err != nil {
		return nil, err
	}

	metrics.IndexedDocuments.WithLabelValues(index, "indexed").Add(float64(report.Indexed))
	metrics.IndexedDocuments.WithLabelValues(index, "failed").Add(float64(report.Failed))
	ix.logger.Info("indexed documents", map[string]interface{}{
		"index":   index,
		"indexed": report.Indexed,
		"failed":  report.Failed,
	})
	return report, nil
}

func (ix *Indexer) indexOne(ctx context.Context, index string, doc Document, refresh bool, report *Report) error {
	body, err := json.Marshal(doc.Body)
	if err != nil {
		return apperrors.NewIndexingFailedError(index, err)
	}

	req := esapi.IndexRequest{
		Index:      index,
		DocumentID: strconv.FormatInt(doc.ID, 10),
		Body:       bytes.NewReader(body),
	}
	if refresh {
		req.Refresh = "true"
	}

	res, err := req.Do(ctx, ix.client)
	if err != nil {
		return apperrors.NewIndexingFailedError(index, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return apperrors.NewIndexNotFoundError(index)
	}
	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		if res.StatusCode >= http.StatusInternalServerError {
			return apperrors.NewIndexingFailedError(index, fmt.Errorf("%s: %s", res.Status(), raw))
		}
		report.fail(req.DocumentID, string(raw))
		return nil
	}

	report.Indexed++
	return nil
}

func (ix *Indexer) bulk(ctx context.Context, index string, docs []Document, refresh bool, report *Report) error {
	cfg := esutil.BulkIndexerConfig{
		Client:     ix.client,
		Index:      index,
		NumWorkers: 1,
	}
	if refresh {
		cfg.Refresh = "true"
	}

	var flushErr error
	var mu sync.Mutex
	cfg.OnError = func(_ context.Context, err error) {
		mu.Lock()
		defer mu.Unlock()
		if flushErr == nil {
			flushErr = err
		}
	}

	bi, err := esutil.NewBulkIndexer(cfg)
	if err != nil {
		return apperrors.NewIndexingFailedError(index, err)
	}

	for _, doc := range docs {
		body, err := json.Marshal(doc.Body)
		if err != nil {
			_ = bi.Close(ctx)
			return apperrors.NewIndexingFailedError(index, err)
		}

		err = bi.Add(ctx, esutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: strconv.FormatInt(doc.ID, 10),
			Body:       bytes.NewReader(body),
			OnFailure: func(_ context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				reason := res.Error.Reason
				if err != nil {
					reason = err.Error()
				}
				mu.Lock()
				report.fail(item.DocumentID, reason)
				mu.Unlock()
			},
		})
		if err != nil {
			_ = bi.Close(ctx)
			return apperrors.NewIndexingFailedError(index, err)
		}
	}

	if err := bi.Close(ctx); err != nil {
		return apperrors.NewIndexingFailedError(index, err)
	}
	if flushErr != nil {
		return apperrors.NewIndexingFailedError(index, flushErr)
	}

	stats := bi.Stats()
	report.Indexed = int(stats.NumIndexed + stats.NumCreated + stats.NumUpdated)
	return nil
}
