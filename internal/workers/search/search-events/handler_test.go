package searchevents

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"nisu-recommender/internal/common/config"
	apperrors "nisu-recommender/internal/common/errors"
	"nisu-recommender/internal/common/logger"
	"nisu-recommender/internal/common/validation"
	"nisu-recommender/internal/recommendation/hydration"
	"nisu-recommender/internal/recommendation/pipeline"
	"nisu-recommender/internal/recommendation/relevance"
	"nisu-recommender/pkg/registry"
)

type mockSearcher struct {
	mock.Mock
}

func (m *mockSearcher) SearchEvents(ctx context.Context, in pipeline.SearchRequest) (*pipeline.ResultPage, error) {
	args := m.Called(ctx, in)
	page, _ := args.Get(0).(*pipeline.ResultPage)
	return page, args.Error(1)
}

func createTestConfig() *Config {
	return &Config{Timeout: 5 * time.Second}
}

func createTestLogger(t *testing.T) logger.Logger {
	return logger.NewZapAdapter(zaptest.NewLogger(t))
}

func createTestHandler(t *testing.T, searcher Searcher) *Handler {
	return NewHandler(createTestConfig(), searcher, validation.NewValidator(registry.Default()), createTestLogger(t))
}

func f(v float64) *float64 { return &v }

func intPtr(n int) *int { return &n }

func TestExecute_MapsInputToPipeline(t *testing.T) {
	searcher := &mockSearcher{}
	searcher.On("SearchEvents", mock.Anything, pipeline.SearchRequest{
		RequesterID: 100,
		Query:       "jazz",
		Lat:         f(48.85),
		Lon:         f(2.35),
		Page:        2,
		PerPage:     intPtr(10),
		FollowFlags: true,
		Overrides: pipeline.Overrides{
			Geo:     f(2),
			SigmaKm: f(8),
		},
	}).Return(&pipeline.ResultPage{
		Items: []hydration.Item{{
			Ranked: hydration.Ranked{ID: 5, Score: 2.7, Relevance: relevance.TresPertinent},
			Record: map[string]interface{}{"titre": "Jazz"},
		}},
		Page:       2,
		PerPage:    10,
		TotalCount: 31,
		HasMore:    true,
		RequestID:  "req-1",
		Mode:       "fusion",
	}, nil)

	output, err := createTestHandler(t, searcher).Execute(context.Background(), &Input{
		Query:              "  jazz ",
		RequesterID:        100,
		Page:               2,
		PerPage:            intPtr(10),
		Lat:                f(48.85),
		Lon:                f(2.35),
		GeoWeight:          f(2),
		SigmaKm:            f(8),
		IncludeFollowFlags: true,
	})
	require.NoError(t, err)

	assert.Len(t, output.Items, 1)
	assert.Equal(t, 31, output.TotalCount)
	assert.True(t, output.HasMore)
	assert.Equal(t, "req-1", output.RequestID)
	searcher.AssertExpectations(t)

	raw, err := json.Marshal(output)
	require.NoError(t, err)
	var vars map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &vars))
	for _, key := range []string{"items", "page", "perPage", "totalCount", "hasMore", "requestId"} {
		assert.Contains(t, vars, key)
	}
	item := vars["items"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "TRES_PERTINENT", item["relevance"])
	assert.Equal(t, "Jazz", item["titre"])
}

func TestExecute_PropagatesPipelineErrors(t *testing.T) {
	searcher := &mockSearcher{}
	searcher.On("SearchEvents", mock.Anything, mock.Anything).
		Return(nil, apperrors.NewIndexNotFoundError("nisu_events"))

	_, err := createTestHandler(t, searcher).Execute(context.Background(), &Input{Query: "jazz"})
	stdErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeIndexNotFound, stdErr.Code)
}

func TestExecute_DeadlineBecomesTimeout(t *testing.T) {
	searcher := &mockSearcher{}
	searcher.On("SearchEvents", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
		Return(nil, errors.New("request canceled"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := createTestHandler(t, searcher).Execute(ctx, &Input{Query: "jazz"})
	stdErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeSearchTimeout, stdErr.Code)
	assert.False(t, stdErr.Retryable)
}

func TestExecute_NilInput(t *testing.T) {
	_, err := createTestHandler(t, &mockSearcher{}).Execute(context.Background(), nil)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
}

func TestParseInput(t *testing.T) {
	h := createTestHandler(t, &mockSearcher{})

	tests := []struct {
		name      string
		variables string
		wantErr   bool
	}{
		{"minimal", `{"query": "jazz"}`, false},
		{"with location and weights", `{"query":"jazz","lat":48.85,"lon":2.35,"vecWeight":1.5,"perPage":500}`, false},
		{"sigma out of range", `{"query":"jazz","sigmaKm":0}`, true},
		{"latitude out of range", `{"lat":123,"lon":2}`, true},
		{"not json", `{"query":`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, err := h.parseInput(tt.variables)
			if tt.wantErr {
				assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, input)
		})
	}
}

func TestParseInput_KeepsExplicitZeroPerPage(t *testing.T) {
	h := createTestHandler(t, &mockSearcher{})

	input, err := h.parseInput(`{"query":"jazz","perPage":0}`)
	require.NoError(t, err)
	require.NotNil(t, input.PerPage)
	assert.Equal(t, 0, *input.PerPage)

	input, err = h.parseInput(`{"query":"jazz"}`)
	require.NoError(t, err)
	assert.Nil(t, input.PerPage)
}

func TestLoadConfig_UsesWorkerTimeout(t *testing.T) {
	app := &config.Config{Workers: map[string]config.WorkerConfig{
		TaskType: {Enabled: true, Timeout: 1500},
	}}
	assert.Equal(t, 1500*time.Millisecond, LoadConfig(app).Timeout)

	assert.Equal(t, 30*time.Second, LoadConfig(&config.Config{}).Timeout)
}
