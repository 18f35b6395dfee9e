package upload

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_Defaults(t *testing.T) {
	opts := Options{}.withDefaults()

	assert.Equal(t, DefaultChunkSize, opts.ChunkSize)
	assert.Equal(t, DefaultMaxConcurrentParts, opts.MaxConcurrentParts)
	assert.Equal(t, DefaultMaxRetries, opts.MaxRetries)
	assert.Equal(t, DefaultRetryDelay, opts.RetryDelay)
	assert.Equal(t, ModeUpfront, opts.Mode)
}

func TestOptions_Validate(t *testing.T) {
	cases := []struct {
		name string
		opts Options
		ok   bool
	}{
		{"zero value", Options{}, true},
		{"explicit chunk size", Options{ChunkSize: 8 * 1024 * 1024}, true},
		{"part count only", Options{PartCount: 4}, true},
		{"negative chunk size", Options{ChunkSize: -1}, false},
		{"negative part count", Options{PartCount: -1}, false},
		{"chunk size and part count together", Options{ChunkSize: DefaultChunkSize, PartCount: 4}, false},
		{"negative concurrency", Options{MaxConcurrentParts: -1}, false},
		{"negative retries", Options{MaxRetries: -1}, false},
		{"negative retry delay", Options{RetryDelay: -time.Second}, false},
		{"unknown mode", Options{Mode: Mode(9)}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.opts.validate()
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, CodeInvalidConfig, cfgErr.ErrorCode())
		})
	}
}
