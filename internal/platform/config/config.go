// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"local"`
	PostgresDSN string `env:"POSTGRES_DSN,required"`
	HealthPort  int    `env:"HEALTH_PORT" envDefault:"8080"`

	// Worker pool
	WorkerCount        int           `env:"WORKER_COUNT" envDefault:"4"`
	WorkerPollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"5s"`
	ItemTimeout        time.Duration `env:"ITEM_TIMEOUT" envDefault:"120s"`

	// LLM summarization
	LLMAPIKey          string        `env:"LLM_API_KEY,required"`
	LLMModel           string        `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	LLMRateLimitRPS    float64       `env:"LLM_RATE_LIMIT_RPS" envDefault:"1"`
	LLMMaxInputChars   int           `env:"LLM_MAX_INPUT_CHARS" envDefault:"48000"`
	LLMRequestTimeout  time.Duration `env:"LLM_REQUEST_TIMEOUT" envDefault:"90s"`
	TranscriptionModel string        `env:"TRANSCRIPTION_MODEL" envDefault:"whisper-1"`

	// HTTP fetching
	FetchRPS         float64       `env:"FETCH_RPS" envDefault:"2"`
	FetchTimeout     time.Duration `env:"FETCH_TIMEOUT" envDefault:"30s"`
	FetchMaxBodyMB   int           `env:"FETCH_MAX_BODY_MB" envDefault:"10"`
	FetchUserAgent   string        `env:"FETCH_USER_AGENT" envDefault:"readstack/1.0 (content pipeline)"`
	MaxContentLength int           `env:"MAX_CONTENT_LENGTH" envDefault:"100000"`

	// Discussion fetcher
	DiscussionEnabled  bool          `env:"DISCUSSION_ENABLED" envDefault:"false"`
	DiscussionInterval time.Duration `env:"DISCUSSION_INTERVAL" envDefault:"15m"`
	DiscussionAPIURL   string        `env:"DISCUSSION_API_URL" envDefault:"https://hn.algolia.com/api/v1"`

	// Transcription sub-pipeline
	TranscribeEnabled bool `env:"TRANSCRIBE_ENABLED" envDefault:"true"`
	MaxAudioSizeMB    int  `env:"MAX_AUDIO_SIZE_MB" envDefault:"100"`

	// Database pool
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"10"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"2"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"5m"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBHealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	return cfg, nil
}
