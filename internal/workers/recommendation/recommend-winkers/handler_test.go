package recommendwinkers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "nisu-recommender/internal/common/errors"
	"nisu-recommender/internal/common/logger"
	"nisu-recommender/internal/common/validation"
	"nisu-recommender/internal/recommendation/hydration"
	"nisu-recommender/internal/recommendation/pipeline"
	"nisu-recommender/pkg/registry"
)

type mockRecommender struct {
	mock.Mock
}

func (m *mockRecommender) RecommendWinkers(ctx context.Context, in pipeline.RecommendRequest) (*pipeline.ResultPage, error) {
	args := m.Called(ctx, in)
	page, _ := args.Get(0).(*pipeline.ResultPage)
	return page, args.Error(1)
}

func newTestHandler(t *testing.T, rec Recommender) *Handler {
	return NewHandler(&Config{Timeout: 5 * time.Second}, rec, validation.NewValidator(registry.Default()), logger.NewTestLogger(t))
}

func ptr[T any](v T) *T { return &v }

func TestExecute_ForwardsEntityWeights(t *testing.T) {
	rec := &mockRecommender{}
	rec.On("RecommendWinkers", mock.Anything, mock.MatchedBy(func(in pipeline.RecommendRequest) bool {
		return in.RequesterID == 100 &&
			in.RequireLocation &&
			*in.Overrides.Recency == 0.8 &&
			*in.Overrides.Age == 1.5 &&
			in.Overrides.Text == nil &&
			in.PerPage != nil && *in.PerPage == 5
	})).Return(&pipeline.ResultPage{
		Items:      []hydration.Item{{Ranked: hydration.Ranked{ID: 7, Score: 3}}, {Ranked: hydration.Ranked{ID: 8, Score: 2}}},
		Page:       1,
		PerPage:    5,
		TotalCount: 2,
		RequestID:  "abc",
	}, nil)

	out, err := newTestHandler(t, rec).Execute(context.Background(), &Input{
		RequesterID:     100,
		PerPage:         ptr(5),
		RequireLocation: true,
		RecencyWeight:   ptr(0.8),
		AgeWeight:       ptr(1.5),
	})
	require.NoError(t, err)

	assert.Len(t, out.Items, 2)
	assert.False(t, out.HasMore)
	assert.Equal(t, "abc", out.RequestID)
	rec.AssertExpectations(t)
}

func TestExecute_RequiresRequester(t *testing.T) {
	rec := &mockRecommender{}
	_, err := newTestHandler(t, rec).Execute(context.Background(), &Input{})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
	rec.AssertNotCalled(t, "RecommendWinkers", mock.Anything, mock.Anything)
}

func TestExecute_SurfacesSeedErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code apperrors.ErrorCode
	}{
		{"unknown requester", apperrors.NewRequesterNotFoundError(100), apperrors.ErrCodeRequesterNotFound},
		{"empty profile", apperrors.NewIneligibleSeedError(100, "profile has no text"), apperrors.ErrCodeIneligibleSeed},
		{"embedding down", apperrors.NewEmbeddingFailedError(assert.AnError), apperrors.ErrCodeEmbeddingFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &mockRecommender{}
			rec.On("RecommendWinkers", mock.Anything, mock.Anything).Return(nil, tt.err)

			_, err := newTestHandler(t, rec).Execute(context.Background(), &Input{RequesterID: 100})
			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestParseInput_RequiresRequesterID(t *testing.T) {
	h := newTestHandler(t, &mockRecommender{})

	_, err := h.parseInput(`{"page": 1}`)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))

	_, err = h.parseInput(`{"requesterId": 0}`)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))

	input, err := h.parseInput(`{"requesterId": 12, "ageWeight": 0.7, "requireLocation": true}`)
	require.NoError(t, err)
	assert.Equal(t, int64(12), input.RequesterID)
	assert.Equal(t, 0.7, *input.AgeWeight)
	assert.True(t, input.RequireLocation)
}
