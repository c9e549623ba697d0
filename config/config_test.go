package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()

	require.Equal(t, time.Hour, cfg.TransferConfig.TTL)
	require.Equal(t, 10*time.Minute, cfg.ExpirySweepInterval)
	require.Equal(t, 60*time.Second, cfg.LivenessTimeout)
	require.Equal(t, 30*time.Second, cfg.LivenessSweepInterval)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("TRANSFER_TTL", "90")
	t.Setenv("LIVENESS_TIMEOUT", "2m")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("TRACING", "true")

	cfg := LoadConfig()

	require.Equal(t, ":9999", cfg.HTTPAddr)
	require.Equal(t, 90*time.Second, cfg.TransferConfig.TTL)
	require.Equal(t, 2*time.Minute, cfg.LivenessTimeout)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	require.True(t, cfg.Tracing)
}

func TestLoadConfig_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("TRANSFER_TTL", "soon")
	t.Setenv("OUTBOX_SIZE", "lots")

	cfg := LoadConfig()

	require.Equal(t, time.Hour, cfg.TransferConfig.TTL)
	require.Equal(t, 256, cfg.OutboxSize)
}

func TestValidate_RejectsNonPositive(t *testing.T) {
	t.Setenv("TRANSFER_TTL", "-1s")
	t.Setenv("OUTBOX_SIZE", "0")

	err := LoadConfig().Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "TRANSFER_TTL")
	require.Contains(t, err.Error(), "OUTBOX_SIZE")
}
