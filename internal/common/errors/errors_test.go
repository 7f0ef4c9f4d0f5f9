package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertToBPMNError_PipelineFailuresAreNotRetried(t *testing.T) {
	codes := []*StandardError{
		NewInvalidInputError("page must be >= 1"),
		NewIneligibleSeedError(7, "empty profile text"),
		NewRequesterNotFoundError(7),
		NewEmbeddingFailedError(fmt.Errorf("model returned no vector")),
		NewSearchQueryFailedError("events", fmt.Errorf("boom"), nil),
		NewSearchTimeoutError("winkers", context.DeadlineExceeded),
		NewIndexNotFoundError("nisu_events"),
		NewHydrationFailedError("events", fmt.Errorf("conn reset")),
		NewIndexingFailedError("nisu_winkers", fmt.Errorf("mapping conflict")),
	}

	for _, stdErr := range codes {
		t.Run(string(stdErr.Code), func(t *testing.T) {
			bpmnErr := ConvertToBPMNError(stdErr)
			assert.False(t, bpmnErr.Retryable)
			assert.Equal(t, 0, bpmnErr.Retries)
			assert.Equal(t, string(stdErr.Code), bpmnErr.ErrorVariables["originalErrorCode"])
		})
	}
}

func TestConvertToBPMNError_BackendFailuresShareCode(t *testing.T) {
	assert.Equal(t, "BACKEND_FAILURE", ConvertToBPMNError(NewEmbeddingFailedError(nil)).Code)
	assert.Equal(t, "BACKEND_FAILURE", ConvertToBPMNError(NewHydrationFailedError("winkers", nil)).Code)
	assert.Equal(t, "INELIGIBLE_SEED", ConvertToBPMNError(NewIneligibleSeedError(1, "x")).Code)
}

func TestSearchQueryFailed_CarriesBackendInfo(t *testing.T) {
	info := map[string]interface{}{"type": "search_phase_execution_exception"}
	stdErr := NewSearchQueryFailedError("winkers", fmt.Errorf("400 Bad Request"), info)

	require.Contains(t, stdErr.Metadata, "elasticsearch_error")
	assert.Equal(t, info, stdErr.Metadata["elasticsearch_error"])

	vars := ConvertToBPMNError(stdErr).ToErrorVariables()
	assert.Equal(t, info, vars["elasticsearch_error"])
	assert.Equal(t, "SEARCH", vars["errorCategory"])
}

func TestAs_UnwrapsChains(t *testing.T) {
	wrapped := fmt.Errorf("pipeline: %w", NewSearchTimeoutError("events", context.DeadlineExceeded))

	stdErr, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrCodeSearchTimeout, stdErr.Code)
	assert.True(t, HasCode(wrapped, ErrCodeSearchTimeout))
	assert.True(t, stderrors.Is(wrapped, context.DeadlineExceeded))

	_, ok = As(fmt.Errorf("plain"))
	assert.False(t, ok)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, ErrCodeInternal, Normalize(fmt.Errorf("plain")).Code)
	assert.Equal(t, ErrCodeInvalidInput, Normalize(NewInvalidInputError("x")).Code)
}

func TestGetErrorCategory(t *testing.T) {
	tests := map[ErrorCode]string{
		ErrCodeInvalidInput:       "CLIENT",
		ErrCodeRequesterNotFound:  "CLIENT",
		ErrCodeEmbeddingFailed:    "EMBEDDING",
		ErrCodeSearchQueryFailed:  "SEARCH",
		ErrCodeIndexingFailed:     "SEARCH",
		ErrCodeHydrationFailed:    "DATABASE",
		ErrCodeDatabaseConnection: "DATABASE",
		ErrCodeInternal:           "OTHER",
	}
	for code, want := range tests {
		assert.Equal(t, want, GetErrorCategory(code), string(code))
	}
}

func TestDatabaseConnectionIsRetryable(t *testing.T) {
	stdErr := NewDatabaseConnectionFailedError(fmt.Errorf("refused"))
	assert.True(t, stdErr.Retryable)
	assert.Equal(t, 3, ConvertToBPMNError(stdErr).Retries)
}

func TestRetryBackoff_GrowsWithConsumedRetries(t *testing.T) {
	assert.Equal(t, 2*time.Second, RetryBackoff(3, 3))
	assert.Equal(t, 4*time.Second, RetryBackoff(3, 2))
	assert.Equal(t, 8*time.Second, RetryBackoff(3, 1))
	assert.Equal(t, 30*time.Second, RetryBackoff(12, 0))
	assert.Equal(t, 2*time.Second, RetryBackoff(1, 5))
}
