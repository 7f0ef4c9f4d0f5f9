package indexing

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "nisu-recommender/internal/common/errors"
	"nisu-recommender/internal/common/logger"
	"nisu-recommender/internal/recommendation/scoring"
)

const dims = 3

// recordingEmbedder returns a fixed-width vector and remembers every text.
type recordingEmbedder struct {
	mu    sync.Mutex
	texts []string
	width int
	err   error
}

func (e *recordingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	e.texts = append(e.texts, text)
	width := e.width
	if width == 0 {
		width = dims
	}
	vec := make([]float32, width)
	vec[0] = float32(len(text))
	return vec, nil
}

func (e *recordingEmbedder) Dimension() int { return dims }

func TestBuilder_WinkerUsesCandidateProjection(t *testing.T) {
	emb := &recordingEmbedder{}
	doc, err := NewBuilder(emb, dims).Winker(context.Background(), map[string]interface{}{
		"id":                     json.Number("42"),
		"username":               "lea",
		"bio":                    "J'aime le jazz",
		"listPreference":         []interface{}{"jazz", "brunch"},
		"city":                   "Paris",
		"derniereRechercheEvent": "concert techno",
		"lat":                    48.85,
		"lon":                    2.35,
		"boost":                  json.Number("-3"),
		"age":                    json.Number("29"),
		"last_activity":          "2026-10-01T10:00:00Z",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(42), doc.ID)
	assert.Equal(t, "lea", doc.Body["username"])
	assert.Equal(t, "J'aime le jazz", doc.Body[scoring.FieldBio])
	assert.Equal(t, map[string]interface{}{"lat": 48.85, "lon": 2.35}, doc.Body[scoring.FieldLocation])
	assert.Equal(t, 0.0, doc.Body[scoring.FieldBoost])
	assert.Equal(t, 29, doc.Body[scoring.FieldAge])
	assert.Equal(t, "2026-10-01T10:00:00Z", doc.Body[scoring.FieldLastActivity])
	assert.Contains(t, doc.Body, scoring.FieldProfileVec)
	assert.Contains(t, doc.Body, scoring.FieldBioVector)
	assert.Contains(t, doc.Body, scoring.FieldPrefVector)

	for _, text := range emb.texts {
		assert.NotContains(t, text, "techno", "last search must never reach the index")
	}
}

func TestBuilder_EventIndexesDescriptionAsBio(t *testing.T) {
	doc, err := NewBuilder(&recordingEmbedder{}, dims).Event(context.Background(), map[string]interface{}{
		"id":              float64(7),
		"titre":           "Soirée jazz",
		"bioEvent":        "Concert au sunset",
		"hastagEvents":    []interface{}{"jazz"},
		"moyenneAge":      json.Number("31.5"),
		"datePublication": "2026-10-10",
		"isFull":          false,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(7), doc.ID)
	assert.Equal(t, "Soirée jazz", doc.Body[scoring.FieldTitle])
	assert.Equal(t, "Concert au sunset", doc.Body[scoring.FieldBio])
	assert.Equal(t, []string{"jazz"}, doc.Body["preferences"])
	assert.Equal(t, 31, doc.Body[scoring.FieldAge])
	assert.Equal(t, "2026-10-10T00:00:00Z", doc.Body[scoring.FieldLastActivity])
	assert.Equal(t, false, doc.Body["isFull"])
	assert.Contains(t, doc.Body, scoring.FieldTitleVector)
	assert.NotContains(t, doc.Body, scoring.FieldLocation)
}

func TestBuilder_SkipsEmptyTextsAndWrongWidths(t *testing.T) {
	emb := &recordingEmbedder{width: dims + 1}
	doc, err := NewBuilder(emb, dims).Winker(context.Background(), map[string]interface{}{
		"id":  "5",
		"bio": "Hello",
	})
	require.NoError(t, err)

	assert.NotContains(t, doc.Body, scoring.FieldBioVector)
	assert.NotContains(t, doc.Body, scoring.FieldProfileVec)
	// preferences are empty, so only bio and profile were embedded
	assert.Len(t, emb.texts, 2)
}

func TestBuilder_RejectsMissingID(t *testing.T) {
	_, err := NewBuilder(&recordingEmbedder{}, dims).Event(context.Background(), map[string]interface{}{"titre": "x"})
	require.Error(t, err)
	stdErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, stdErr.Code)
}

// fakeCluster answers the index admin, single-document and bulk endpoints.
type fakeCluster struct {
	mu       sync.Mutex
	existing map[string]bool
	created  map[string]map[string]interface{}
	bulkIDs  []string
	rejectID string
	requests []string
}

func (f *fakeCluster) start(t *testing.T) *elasticsearch.Client {
	t.Helper()
	f.created = map[string]map[string]interface{}{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		f.requests = append(f.requests, r.Method+" "+r.URL.RequestURI())
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

		switch {
		case r.Method == http.MethodHead && len(parts) == 1:
			if f.existing[parts[0]] {
				w.WriteHeader(http.StatusOK)
				return
			}
			w.WriteHeader(http.StatusNotFound)

		case r.Method == http.MethodPut && len(parts) == 1:
			var mapping map[string]interface{}
			_ = json.NewDecoder(r.Body).Decode(&mapping)
			f.created[parts[0]] = mapping
			_, _ = w.Write([]byte(`{"acknowledged":true}`))

		case parts[len(parts)-1] == "_bulk":
			f.answerBulk(w, r)

		case len(parts) == 3 && parts[1] == "_doc":
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"result":"created","_id":"` + parts[2] + `"}`))

		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(server.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    []string{server.URL},
		DisableRetry: true,
	})
	require.NoError(t, err)
	return client
}

func (f *fakeCluster) answerBulk(w http.ResponseWriter, r *http.Request) {
	type item map[string]map[string]interface{}
	var items []item

	scanner := bufio.NewScanner(r.Body)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)
	for scanner.Scan() {
		var meta map[string]map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &meta); err != nil || meta["index"] == nil {
			continue
		}
		id, _ := meta["index"]["_id"].(string)
		f.bulkIDs = append(f.bulkIDs, id)
		// the next line is the document source
		scanner.Scan()

		result := map[string]interface{}{"_id": id, "status": 201, "result": "created"}
		if id == f.rejectID {
			result["status"] = 400
			result["error"] = map[string]interface{}{"type": "mapper_parsing_exception", "reason": "failed to parse field [boost]"}
		}
		items = append(items, item{"index": result})
	}

	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"took":   1,
		"errors": f.rejectID != "",
		"items":  items,
	})
}

func TestEnsureIndices_CreatesOnlyMissing(t *testing.T) {
	es := &fakeCluster{existing: map[string]bool{"nisu_events": true}}
	ix := NewIndexer(es.start(t), NewBuilder(&recordingEmbedder{}, dims), dims, logger.NewTestLogger(t))

	created, err := ix.EnsureIndices(context.Background(), Indices{
		Winkers:       "nisu_winkers",
		Events:        "nisu_events",
		Conversations: "nisu_conversations",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"nisu_winkers", "nisu_conversations"}, created)
	require.Contains(t, es.created, "nisu_winkers")

	props := es.created["nisu_winkers"]["mappings"].(map[string]interface{})["properties"].(map[string]interface{})
	vector := props[scoring.FieldProfileVec].(map[string]interface{})
	assert.Equal(t, "dense_vector", vector["type"])
	assert.Equal(t, float64(dims), vector["dims"])
	assert.Equal(t, "geo_point", props[scoring.FieldLocation].(map[string]interface{})["type"])
}

func TestIndexWinkers_SingleDocumentRefreshes(t *testing.T) {
	es := &fakeCluster{}
	ix := NewIndexer(es.start(t), NewBuilder(&recordingEmbedder{}, dims), dims, logger.NewTestLogger(t))

	report, err := ix.IndexWinkers(context.Background(), "nisu_winkers",
		[]map[string]interface{}{{"id": json.Number("7"), "bio": "hi"}}, true)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Indexed)
	assert.Zero(t, report.Failed)
	require.Len(t, es.requests, 1)
	assert.Contains(t, es.requests[0], "/nisu_winkers/_doc/7")
	assert.Contains(t, es.requests[0], "refresh=true")
}

func TestIndexEvents_BulkReportsRejectedItems(t *testing.T) {
	es := &fakeCluster{rejectID: "2"}
	ix := NewIndexer(es.start(t), NewBuilder(&recordingEmbedder{}, dims), dims, logger.NewTestLogger(t))

	records := []map[string]interface{}{
		{"id": json.Number("1"), "titre": "a"},
		{"id": json.Number("2"), "titre": "b"},
		{"titre": "no id"},
		{"id": json.Number("3"), "titre": "c"},
	}
	report, err := ix.IndexEvents(context.Background(), "nisu_events", records, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2", "3"}, es.bulkIDs)
	assert.Equal(t, 2, report.Indexed)
	assert.Equal(t, 2, report.Failed)

	reasons := map[string]string{}
	for _, e := range report.Errors {
		reasons[e.ID] = e.Reason
	}
	assert.Equal(t, "failed to parse field [boost]", reasons["2"])
	assert.Contains(t, reasons["#2"], "numeric id")
}

func TestIndex_EmbeddingFailureWritesNothing(t *testing.T) {
	es := &fakeCluster{}
	emb := &recordingEmbedder{err: errors.New("model offline")}
	ix := NewIndexer(es.start(t), NewBuilder(emb, dims), dims, logger.NewTestLogger(t))

	_, err := ix.IndexWinkers(context.Background(), "nisu_winkers",
		[]map[string]interface{}{{"id": 1, "bio": "x"}, {"id": 2, "bio": "y"}}, false)
	require.Error(t, err)

	stdErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeIndexingFailed, stdErr.Code)
	assert.Empty(t, es.requests)
}

func TestVectorFields_FollowMappings(t *testing.T) {
	assert.Equal(t,
		[]string{scoring.FieldBioVector, scoring.FieldPrefVector, scoring.FieldProfileVec},
		VectorFields(WinkerMapping(8)))
	assert.Contains(t, VectorFields(EventMapping(8)), scoring.FieldTitleVector)
	assert.NotContains(t, VectorFields(WinkerMapping(8)), scoring.FieldTitleVector)
	assert.Empty(t, VectorFields(ConversationMapping()))
}
