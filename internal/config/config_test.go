package config_test

import (
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otc-service/internal/config"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := config.Parse(envconfig.MapLookuper(map[string]string{}))
	require.NoError(t, err)

	assert.Equal(t, config.EnvDevelopment, cfg.Environment)
	assert.Equal(t, 6, cfg.OTP.Length)
	assert.Equal(t, 10*time.Minute, cfg.OTP.TTL)
	assert.Equal(t, 5, cfg.OTP.MaxAttempts)
	assert.Equal(t, 60*time.Second, cfg.OTP.ResendCooldown)
	assert.Equal(t, config.BackendMemory, cfg.Storage.Credentials)
	assert.Equal(t, config.BackendMemory, cfg.Storage.Accounts)
	assert.Equal(t, "otc", cfg.Redis.KeyPrefix)
	assert.Equal(t, []string{"127.0.0.1"}, cfg.Scylla.Nodes)
	assert.Equal(t, "0.0.0.0:8080", cfg.GetServerAddress())
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestParseOverrides(t *testing.T) {
	cfg, err := config.Parse(envconfig.MapLookuper(map[string]string{
		"OTC_OTP_LENGTH":          "8",
		"OTC_OTP_TTL":             "5m",
		"OTC_OTP_MAX_ATTEMPTS":    "3",
		"OTC_OTP_RESEND_COOLDOWN": "0s",
		"OTC_STORAGE_CREDENTIALS": "redis",
		"OTC_STORAGE_ACCOUNTS":    "mongo",
		"OTC_HASH_PEPPERS":        "1:a,2:b",
		"OTC_KAFKA_BROKERS":       "k1:9092,k2:9092",
		"OTC_SERVER_PORT":         "9090",
	}))
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.OTP.Length)
	assert.Equal(t, 5*time.Minute, cfg.OTP.TTL)
	assert.Equal(t, 3, cfg.OTP.MaxAttempts)
	assert.Zero(t, cfg.OTP.ResendCooldown)
	assert.Equal(t, config.BackendRedis, cfg.Storage.Credentials)
	assert.Equal(t, config.BackendMongo, cfg.Storage.Accounts)
	assert.Equal(t, []string{"1:a", "2:b"}, cfg.Hashing.Peppers)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"short code", map[string]string{"OTC_OTP_LENGTH": "3"}, "OTC_OTP_LENGTH"},
		{"zero ttl", map[string]string{"OTC_OTP_TTL": "0s"}, "OTC_OTP_TTL"},
		{"no attempts", map[string]string{"OTC_OTP_MAX_ATTEMPTS": "0"}, "OTC_OTP_MAX_ATTEMPTS"},
		{"negative cooldown", map[string]string{"OTC_OTP_RESEND_COOLDOWN": "-1s"}, "OTC_OTP_RESEND_COOLDOWN"},
		{"unknown credential backend", map[string]string{"OTC_STORAGE_CREDENTIALS": "postgres"}, "credential backend"},
		{"redis accounts", map[string]string{"OTC_STORAGE_ACCOUNTS": "redis"}, "account backend"},
		{"kms without key", map[string]string{"OTC_KMS_ENABLED": "true"}, "OTC_KMS_KEY_ID"},
		{"production without secrets", map[string]string{"OTC_ENV": "production"}, "OTC_JWT_SECRET"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Parse(envconfig.MapLookuper(tt.env))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseProduction(t *testing.T) {
	cfg, err := config.Parse(envconfig.MapLookuper(map[string]string{
		"OTC_ENV":                  "production",
		"OTC_JWT_SECRET":           "secret",
		"OTC_HASH_PEPPERS":         "1:pepper",
		"OTC_KMS_LOCAL_MASTER_KEY": "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=",
	}))
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}
