package lessons

import "time"

// Config holds lesson generation settings.
type Config struct {
	MaxTokens       int           `mapstructure:"max_tokens"`
	Temperature     float64       `mapstructure:"temperature"`
	PrefetchTimeout time.Duration `mapstructure:"prefetch_timeout"`
}

func DefaultConfig() Config {
	return Config{
		MaxTokens:       768,
		Temperature:     0.5,
		PrefetchTimeout: 90 * time.Second,
	}
}
