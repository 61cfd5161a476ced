package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/readstack")
	t.Setenv("LLM_API_KEY", "mock")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.WorkerCount != 4 {
		t.Errorf("WorkerCount = %d, want 4", cfg.WorkerCount)
	}

	if cfg.WorkerPollInterval != 5*time.Second {
		t.Errorf("WorkerPollInterval = %v, want 5s", cfg.WorkerPollInterval)
	}

	if cfg.LLMModel != "gpt-4o-mini" {
		t.Errorf("LLMModel = %q", cfg.LLMModel)
	}

	if cfg.TranscriptionModel != "whisper-1" {
		t.Errorf("TranscriptionModel = %q", cfg.TranscriptionModel)
	}

	if !cfg.TranscribeEnabled {
		t.Error("TranscribeEnabled should default to true")
	}

	if cfg.DiscussionEnabled {
		t.Error("DiscussionEnabled should default to false")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/readstack")
	t.Setenv("LLM_API_KEY", "key")
	t.Setenv("WORKER_COUNT", "8")
	t.Setenv("ITEM_TIMEOUT", "45s")
	t.Setenv("FETCH_MAX_BODY_MB", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.WorkerCount != 8 {
		t.Errorf("WorkerCount = %d, want 8", cfg.WorkerCount)
	}

	if cfg.ItemTimeout != 45*time.Second {
		t.Errorf("ItemTimeout = %v, want 45s", cfg.ItemTimeout)
	}

	if cfg.FetchMaxBodyMB != 2 {
		t.Errorf("FetchMaxBodyMB = %d, want 2", cfg.FetchMaxBodyMB)
	}
}
