package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rxreader/internal/tasks"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, 10, cfg.Worker.Concurrency)
	assert.Equal(t, 2, cfg.Jobs.MaxCorrections)
	assert.True(t, cfg.Jobs.UseTranscriber)
	assert.Equal(t, 3, cfg.Retry.MaxRateLimitRetries)

	// The default worker queue must be the queue tasks are enqueued on
	assert.Equal(t, 1, cfg.Worker.Queues[tasks.QueuePrescriptions])
}
