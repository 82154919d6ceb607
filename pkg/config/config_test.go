package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 40, cfg.Enrollment.MaxCreditsPerSemester)
	assert.Equal(t, 10, cfg.Enrollment.MinCreditsPerSemester)
	assert.InDelta(t, 2.0, cfg.Enrollment.PassThreshold, 1e-9)
	assert.Equal(t, 5*time.Second, cfg.Enrollment.OperationTimeout)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 20*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, 2*time.Minute, cfg.Cache.TTL)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("STORE_DRIVER", "MEMORY")
	v.Set("ENROLLMENT_MAX_CREDITS", 24)
	v.Set("OPERATION_TIMEOUT", "not-a-duration")
	v.Set("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg := fromViper(v)
	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, 24, cfg.Enrollment.MaxCreditsPerSemester)
	assert.Equal(t, 5*time.Second, cfg.Enrollment.OperationTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}
