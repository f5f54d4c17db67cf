package tuner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	tt := []struct {
		desc        string
		modify      func(*Config)
		expectError bool
	}{
		{desc: "default", modify: func(*Config) {}},
		{desc: "no channel rate", modify: func(c *Config) { c.ChannelRate = 0 }, expectError: true},
		{desc: "pass band too wide", modify: func(c *Config) { c.PassBand = 24000 }, expectError: true},
		{desc: "no attenuation", modify: func(c *Config) { c.StopBandAttenuation = 0 }, expectError: true},
		{desc: "no queue", modify: func(c *Config) { c.QueueCapacity = 0 }, expectError: true},
		{desc: "reset at capacity", modify: func(c *Config) { c.ResetThreshold = c.QueueCapacity }, expectError: true},
		{desc: "no period", modify: func(c *Config) { c.ProcessingPeriod = 0 }, expectError: true},
		{desc: "short period", modify: func(c *Config) { c.ProcessingPeriod = time.Millisecond }},
		{desc: "no batch", modify: func(c *Config) { c.BatchSize = 0 }, expectError: true},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			config := DefaultConfig()
			tc.modify(&config)

			err := config.Validate()

			if tc.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, 48000, config.ChannelRate)
	assert.Equal(t, 12000, config.PassBand)
	assert.Equal(t, 300, config.QueueCapacity)
	assert.Equal(t, 100, config.ResetThreshold)
	assert.Equal(t, 9*time.Millisecond, config.ProcessingPeriod)
	assert.Equal(t, 20, config.BatchSize)
	assert.Equal(t, 48000, config.FilterConfig().OutputRate)
}
