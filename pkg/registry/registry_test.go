package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_CoversEveryWorker(t *testing.T) {
	reg := Default()
	for _, taskType := range []string{"search-events", "recommend-winkers", "recommend-events", "index-winkers", "index-events"} {
		activity, ok := reg.FindByTaskType(taskType)
		require.True(t, ok, taskType)
		assert.NotEmpty(t, activity.InputSchema, taskType)
		assert.Equal(t, 0, activity.Retries, taskType)
	}

	_, ok := reg.FindByTaskType("unknown")
	assert.False(t, ok)
}

func TestLoadRegistry_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"2","activities":[{"id":"a.b.c","taskType":"x"}]}`), 0o600))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, "2", reg.Version)
	require.Len(t, reg.Activities, 1)

	_, err = LoadRegistry(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestActivity_TimeoutDuration(t *testing.T) {
	d, err := Activity{ID: "a.b.c", Timeout: "60s"}.TimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)

	d, err = Activity{ID: "a.b.c"}.TimeoutDuration()
	require.NoError(t, err)
	assert.Zero(t, d)

	for _, bad := range []string{"soon", "-5s", "0s"} {
		_, err := Activity{ID: "a.b.c", Timeout: bad}.TimeoutDuration()
		assert.Error(t, err, bad)
	}
}

func TestActivity_Raises(t *testing.T) {
	activity, ok := Default().FindByTaskType("recommend-winkers")
	require.True(t, ok)
	assert.True(t, activity.Raises("REQUESTER_NOT_FOUND"))
	assert.True(t, activity.Raises("BACKEND_FAILURE"))
	assert.False(t, activity.Raises("INDEXING_FAILED"))
}
