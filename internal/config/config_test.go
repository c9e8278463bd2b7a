package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		DBHost:               "postgres",
		BucketName:           "docs",
		GeminiAPIKey:         "key",
		ChunkSize:            1000,
		ChunkOverlap:         200,
		EmbedMinSuccessRatio: 0.95,
		StageTimeoutSec:      120,
		RetryBaseDelayMS:     1000,
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("Missing bucket", func(t *testing.T) {
		cfg := validConfig()
		cfg.BucketName = ""
		assert.ErrorIs(t, cfg.Validate(), ErrMissingRequired)
	})

	t.Run("Missing API key", func(t *testing.T) {
		cfg := validConfig()
		cfg.GeminiAPIKey = ""
		assert.ErrorIs(t, cfg.Validate(), ErrMissingRequired)
	})

	t.Run("Zero chunk size", func(t *testing.T) {
		cfg := validConfig()
		cfg.ChunkSize = 0
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidSetting)
	})

	t.Run("Overlap equal to size", func(t *testing.T) {
		cfg := validConfig()
		cfg.ChunkOverlap = cfg.ChunkSize
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidSetting)
	})

	t.Run("Zero overlap", func(t *testing.T) {
		cfg := validConfig()
		cfg.ChunkOverlap = 0
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidSetting)
	})

	t.Run("Ratio above one", func(t *testing.T) {
		cfg := validConfig()
		cfg.EmbedMinSuccessRatio = 1.5
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidSetting)
	})
}

func TestConfig_Durations(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, 2*time.Minute, cfg.StageTimeout())
	assert.Equal(t, time.Second, cfg.RetryBaseDelay())
}
