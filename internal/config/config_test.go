package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"APP_ENV", "PORT", "AUTH_SECRET", "KAFKA_BROKERS", "KAFKA_TOPIC",
		"ACCESS_TOKEN_TTL_MINUTES", "REPORT_CACHE_TTL_SECONDS",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, ":8080", cfg.Address())
	assert.Empty(t, cfg.AuthSecret, "no weak default secret may be injected")
	assert.Nil(t, cfg.KafkaBrokers)
	assert.Equal(t, "pos.sales", cfg.KafkaTopic)
	assert.Equal(t, 480, cfg.AccessTokenTTLMinutes)
	assert.Equal(t, 30, cfg.ReportCacheTTLSeconds)
}

func TestLoadParsesBrokerList(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092 ,")

	cfg := Load()
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)
}

func TestLoadFallsBackOnBadNumbers(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "banana")
	t.Setenv("REPORT_CACHE_TTL_SECONDS", "-5")

	cfg := Load()
	assert.Equal(t, 480, cfg.AccessTokenTTLMinutes)
	assert.Equal(t, 30, cfg.ReportCacheTTLSeconds)
}
