package indexwinkers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "nisu-recommender/internal/common/errors"
	"nisu-recommender/internal/common/logger"
	"nisu-recommender/internal/common/validation"
	"nisu-recommender/internal/recommendation/indexing"
	"nisu-recommender/internal/recommendation/pipeline"
	"nisu-recommender/pkg/registry"
)

type mockIndexer struct {
	mock.Mock
}

func (m *mockIndexer) IndexWinkers(ctx context.Context, index string, records []map[string]interface{}, refresh bool) (*indexing.Report, error) {
	args := m.Called(ctx, index, records, refresh)
	report, _ := args.Get(0).(*indexing.Report)
	return report, args.Error(1)
}

func newTestHandler(t *testing.T, ix Indexer, profiles ProfileInvalidator) *Handler {
	cfg := &Config{Timeout: 5 * time.Second, Index: "nisu_winkers"}
	return NewHandler(cfg, ix, profiles, validation.NewValidator(registry.Default()), logger.NewTestLogger(t))
}

func TestExecute_IndexesAndInvalidatesProfiles(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.Set("nisu:requester:7", `{"id":7}`)
	mr.Set("nisu:requester:8", `{"id":8}`)
	mr.Set("nisu:requester:9", `{"id":9}`)
	cache := pipeline.NewProfileCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute, logger.NewTestLogger(t))

	ix := &mockIndexer{}
	ix.On("IndexWinkers", mock.Anything, "nisu_winkers", mock.Anything, true).
		Return(&indexing.Report{Index: "nisu_winkers", Indexed: 2}, nil)

	h := newTestHandler(t, ix, cache)
	input, err := h.parseInput(`{"winkers":[{"id":7,"bio":"jazz"},{"id":8,"bio":"rock"}],"refresh":true}`)
	require.NoError(t, err)

	out, err := h.Execute(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, StatusIndexed, out.Status)
	assert.Equal(t, 2, out.Count)
	assert.Zero(t, out.Failed)
	assert.False(t, mr.Exists("nisu:requester:7"))
	assert.False(t, mr.Exists("nisu:requester:8"))
	assert.True(t, mr.Exists("nisu:requester:9"))
	ix.AssertExpectations(t)
}

func TestExecute_ReportsPartialFailures(t *testing.T) {
	ix := &mockIndexer{}
	ix.On("IndexWinkers", mock.Anything, "nisu_winkers", mock.Anything, false).
		Return(&indexing.Report{
			Index:   "nisu_winkers",
			Indexed: 1,
			Failed:  1,
			Errors:  []indexing.ItemError{{ID: "8", Reason: "mapper_parsing_exception"}},
		}, nil)

	out, err := newTestHandler(t, ix, nil).Execute(context.Background(), &Input{
		Winkers: []map[string]interface{}{{"id": json.Number("7")}, {"id": json.Number("8")}},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, out.Status)
	assert.Equal(t, 1, out.Failed)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, "8", out.Errors[0].ID)
}

func TestExecute_IndexerErrorFailsTheJob(t *testing.T) {
	ix := &mockIndexer{}
	ix.On("IndexWinkers", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, apperrors.NewIndexingFailedError("nisu_winkers", errors.New("embedding backend down")))

	_, err := newTestHandler(t, ix, nil).Execute(context.Background(), &Input{
		Winkers: []map[string]interface{}{{"id": 1}},
	})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeIndexingFailed))
}

type failingInvalidator struct{ calls int }

func (f *failingInvalidator) Invalidate(context.Context, ...int64) error {
	f.calls++
	return errors.New("redis unavailable")
}

func TestExecute_CacheFailureIsNotFatal(t *testing.T) {
	ix := &mockIndexer{}
	ix.On("IndexWinkers", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&indexing.Report{Indexed: 1}, nil)
	inv := &failingInvalidator{}

	out, err := newTestHandler(t, ix, inv).Execute(context.Background(), &Input{
		Winkers: []map[string]interface{}{{"id": 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusIndexed, out.Status)
	assert.Equal(t, 1, inv.calls)
}

func TestParseInput(t *testing.T) {
	h := newTestHandler(t, &mockIndexer{}, nil)

	input, err := h.parseInput(`{"winkers":[{"id":9007199254740993}]}`)
	require.NoError(t, err)
	assert.Equal(t, json.Number("9007199254740993"), input.Winkers[0]["id"])

	for _, bad := range []string{
		`{"winkers":[]}`,
		`{"winkers":[{"bio":"no id"}]}`,
		`{"winkers":[{"id":1,"boost":-1}]}`,
		`{}`,
	} {
		_, err := h.parseInput(bad)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput), bad)
	}
}

func TestStatus(t *testing.T) {
	assert.Equal(t, StatusIndexed, status(&indexing.Report{Indexed: 3}))
	assert.Equal(t, StatusPartial, status(&indexing.Report{Indexed: 2, Failed: 1}))
	assert.Equal(t, StatusFailed, status(&indexing.Report{Failed: 2}))
}
