package config

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"LOCALGENIUS_WORKSPACE", "LOCALGENIUS_STORAGE", "LOCALGENIUS_JOBS_DIR",
		"LOCALGENIUS_STEP_TIMEOUT", "LOCALGENIUS_EXEC_TIMEOUT", "LOCALGENIUS_MEMORY_LIMIT", "LOCALGENIUS_LLM_MODEL",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, StorageFile, cfg.Storage)
	assert.Equal(t, filepath.Join("workspace", "jobs"), cfg.JobsDir)
	assert.Equal(t, 30*time.Second, cfg.ExecTimeout)
	assert.Equal(t, 5*time.Minute, cfg.StepTimeout)
	assert.Equal(t, 3, cfg.MemorySearchLimit)
	assert.Equal(t, "llama3:8b", cfg.LLMModel)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LOCALGENIUS_WORKSPACE", "/tmp/ws")
	t.Setenv("LOCALGENIUS_JOBS_DIR", "")
	t.Setenv("LOCALGENIUS_STORAGE", StorageSQLite)
	t.Setenv("LOCALGENIUS_STEP_TIMEOUT", "45")
	t.Setenv("LOCALGENIUS_EMBED_DIMENSION", "768")

	cfg := Load()
	assert.Equal(t, "/tmp/ws/jobs", cfg.JobsDir)
	assert.Equal(t, StorageSQLite, cfg.Storage)
	assert.Equal(t, 45*time.Second, cfg.StepTimeout)
	assert.Equal(t, 768, cfg.EmbedDimension)
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name string
		val  string
		want time.Duration
	}{
		{"unset", "", time.Minute},
		{"go duration", "90s", 90 * time.Second},
		{"seconds", "5", 5 * time.Second},
		{"garbage", "soon", time.Minute},
		{"negative", "-5s", time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.val)
			if got := getEnvDuration("TEST_DURATION", time.Minute); got != tt.want {
				t.Errorf("getEnvDuration(%q) = %v, want %v", tt.val, got, tt.want)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("job created", "job_id", "abc")

	assert.Contains(t, stderr.String(), "job_id=abc")
	assert.True(t, strings.HasPrefix(file.String(), "{"), "file output should be JSON")
	assert.Contains(t, file.String(), `"job_id":"abc"`)
	assert.NotContains(t, stderr.String(), "hidden")
}
