package config_test

import (
	"log/slog"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/appropriation-engine/config"
)

func newViper(values map[string]any) *viper.Viper {
	v := viper.New()
	config.Defaults(v)
	for k, val := range values {
		v.Set(k, val)
	}
	return v
}

func TestFromViper_Defaults(t *testing.T) {
	cfg, err := config.FromViper(newViper(nil))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "appropriation.db", cfg.DBPath)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "XXX", cfg.AccountingDepartment)
	assert.Equal(t, "XXX", cfg.AccountingKind)
	assert.Equal(t, "0 3 * * *", cfg.HorizonCron)
	assert.True(t, cfg.SchedulerEnabled)
	assert.Empty(t, cfg.CORSOrigins)
	assert.Empty(t, cfg.Managers)
}

func TestFromViper_Overrides(t *testing.T) {
	cfg, err := config.FromViper(newViper(map[string]any{
		"LOG_LEVEL":         "debug",
		"SCHEDULER_ENABLED": "false",
		"CORS_ORIGINS":      "http://localhost:3000, https://bevillinger.example.dk,",
		"SMTP_ADDR":         "smtp.example.dk:25",
		"SMTP_FROM":         "bevillinger@example.dk",
		"NOTIFY_TO":         "udbetalinger@example.dk",
	}))
	require.NoError(t, err)

	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.False(t, cfg.SchedulerEnabled)
	assert.Equal(t, []string{"http://localhost:3000", "https://bevillinger.example.dk"}, cfg.CORSOrigins)
}

func TestFromViper_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]any
	}{
		{name: "log level", values: map[string]any{"LOG_LEVEL": "loud"}},
		{name: "cron", values: map[string]any{"HORIZON_CRON": "every night"}},
		{name: "empty port", values: map[string]any{"PORT": ""}},
		{name: "smtp without recipient", values: map[string]any{"SMTP_ADDR": "smtp:25", "SMTP_FROM": "a@b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.FromViper(newViper(tt.values))
			assert.Error(t, err)
		})
	}
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ACCOUNTING_DEPARTMENT", "12345")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "12345", cfg.AccountingDepartment)
}
