package main

import (
	"testing"
	"time"

	"github.com/Netflix/go-env"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults_Are_Valid(t *testing.T) {
	req := require.New(t)
	t.Setenv("TRANSPORT", "memory")
	t.Setenv("MESSAGE_CACHE_TTL", "1h")

	var config Config
	_, err := env.UnmarshalFromEnviron(&config)
	req.NoError(err)

	req.NoError(config.Validate())
	req.Equal("chat_exchange", config.Exchange)
	req.Equal("chat.to.", config.InboxPrefix)
	req.Equal(time.Hour, config.MessageCacheTTL)
	req.False(config.FanoutGroupEdits)
}

func TestConfig_Validate_Rejects(t *testing.T) {
	valid := Config{Transport: transportAMQP, NumberOfWorkers: 1, MessageCacheSize: 1,
		MetricInterval: time.Second, ErrorRateThreshold: 0.1}
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown transport", func(c *Config) { c.Transport = "kafka" }},
		{"no worker", func(c *Config) { c.NumberOfWorkers = 0 }},
		{"negative buffer", func(c *Config) { c.BufferSize = -1 }},
		{"empty cache", func(c *Config) { c.MessageCacheSize = 0 }},
		{"no metric interval", func(c *Config) { c.MetricInterval = 0 }},
		{"threshold above one", func(c *Config) { c.ErrorRateThreshold = 1.5 }},
	}
	require.NoError(t, valid.Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid
			tt.mutate(&config)
			require.Error(t, config.Validate())
		})
	}
}
