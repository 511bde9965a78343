package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SURREAL_URL", "ws://localhost:8000/rpc")
	t.Setenv("SURREAL_NS", "pulse")
	t.Setenv("SURREAL_DB", "pulse")
	t.Setenv("SESSION_SECRET", "test-secret")
}

func TestNew_Defaults(t *testing.T) {
	setRequired(t)

	cfg := New()
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "data/media", cfg.MediaRoot)
	assert.Equal(t, 15*time.Second, cfg.SendTimeout)
	assert.Equal(t, "ws://localhost:8000/rpc", cfg.DBUrl)
}

func TestNew_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ADDR", ":9999")
	t.Setenv("MEDIA_ROOT", "/tmp/media")
	t.Setenv("SEND_TIMEOUT", "30s")

	cfg := New()
	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, "/tmp/media", cfg.MediaRoot)
	assert.Equal(t, 30*time.Second, cfg.SendTimeout)
}

func TestNew_InvalidDurationFallsBack(t *testing.T) {
	setRequired(t)
	t.Setenv("SEND_TIMEOUT", "soon")

	cfg := New()
	assert.Equal(t, 15*time.Second, cfg.SendTimeout)
}
