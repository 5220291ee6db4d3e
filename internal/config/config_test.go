package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "chat", cfg.NATSSubjectPrefix)
	assert.Equal(t, 5*time.Minute, cfg.SessionIdleTimeout)
	assert.Equal(t, 3, cfg.StatePersistAttempts)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAIModel)
	assert.False(t, cfg.EmailEnabled())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DEBUG", "true")
	t.Setenv("REDIS_URL", "redis://localhost:6379/2")
	t.Setenv("LOCK_TTL", "5s")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_USERNAME", "bot@example.com")
	t.Setenv("SMTP_PASSWORD", "secret")
	t.Setenv("ALERT_EMAIL", "ops@example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "redis://localhost:6379/2", cfg.RedisURL)
	assert.Equal(t, 5*time.Second, cfg.LockTTL)
	assert.Equal(t, "bot@example.com", cfg.SMTPFrom)
	assert.True(t, cfg.EmailEnabled())
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("SMTP_PORT", "not-a-number")
	t.Setenv("SESSION_IDLE_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 587, cfg.SMTPPort)
	assert.Equal(t, 5*time.Minute, cfg.SessionIdleTimeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "Alert email without SMTP",
			env:     map[string]string{"ALERT_EMAIL": "ops@example.com"},
			wantErr: "SMTP configuration is required",
		},
		{
			name:    "Zero persist attempts",
			env:     map[string]string{"STATE_PERSIST_ATTEMPTS": "0"},
			wantErr: "STATE_PERSIST_ATTEMPTS",
		},
		{
			name:    "Negative timeout",
			env:     map[string]string{"SIDE_EFFECT_TIMEOUT": "-1s"},
			wantErr: "SIDE_EFFECT_TIMEOUT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
