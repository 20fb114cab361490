package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func TestDefaults(t *testing.T) {
	cfg := fromViper(newTestViper())

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, "Başkanlık", cfg.Workflow.ExecutiveDepartment)
	assert.Equal(t, 8, cfg.Notifications.FanoutConcurrency)
	assert.Equal(t, 5*time.Minute, cfg.Notifications.DirectoryCacheTTL)
	assert.False(t, cfg.SideEffects.Async)
	assert.Equal(t, time.Second, cfg.SideEffects.RetryDelay)
	assert.Equal(t, "migrations", cfg.Database.MigrationsDir)
	assert.Equal(t, time.Hour, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, 5*time.Second, cfg.Database.ConnectTimeout)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("EXECUTIVE_DEPARTMENT", "  Mayor Office ")
	t.Setenv("NOTIFY_FANOUT_CONCURRENCY", "-1")
	t.Setenv("SIDE_EFFECTS_ASYNC", "true")
	t.Setenv("JWT_EXPIRATION", "not-a-duration")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg := fromViper(newTestViper())

	require.Equal(t, "Mayor Office", cfg.Workflow.ExecutiveDepartment)
	assert.Equal(t, 8, cfg.Notifications.FanoutConcurrency)
	assert.True(t, cfg.SideEffects.Async)
	assert.Equal(t, 24*time.Hour, cfg.JWT.Expiration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}
