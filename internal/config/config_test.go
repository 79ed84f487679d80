package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Thresholds, cfg.Thresholds)
	assert.Equal(t, "sensors/data", cfg.Topics.SensorData)
	assert.Equal(t, 1883, cfg.MQTT.Port)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	p := writeFile(t, `
service:
  http_addr: ":8081"
  dedup_ttl: 30s
mqtt:
  host: broker
thresholds:
  max_temperature: 32.5
database:
  driver: postgres
  dsn: "host=db user=gh dbname=gh"
retention:
  action_logs: 720h
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, ":8081", cfg.Service.HTTPAddr)
	assert.Equal(t, 30*time.Second, cfg.Service.DedupTTL)
	assert.Equal(t, "broker", cfg.MQTT.Host)
	assert.Equal(t, 32.5, cfg.Thresholds.MaxTemperature)
	assert.Equal(t, 30.0, cfg.Thresholds.MinSoilMoisture)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 720*time.Hour, cfg.Retention.ActionLogs)
	assert.Equal(t, Default().Retention.AcknowledgedAlerts, cfg.Retention.AcknowledgedAlerts)
}

func TestLoad_EnvWinsOverFile(t *testing.T) {
	p := writeFile(t, "mqtt:\n  host: from-file\n")
	t.Setenv("RABBITMQ_HOST", "from-env")
	t.Setenv("RABBITMQ_PORT", "1884")
	t.Setenv("PORT", "9000")
	t.Setenv("THRESHOLD_MIN_SOIL_MOISTURE", "22")
	t.Setenv("ALLOWED_ORIGINS", "http://a, http://b")

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.MQTT.Host)
	assert.Equal(t, 1884, cfg.MQTT.Port)
	assert.Equal(t, ":9000", cfg.Service.HTTPAddr)
	assert.Equal(t, 22.0, cfg.Thresholds.MinSoilMoisture)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.Service.AllowedOrigins)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(writeFile(t, "database:\n  driver: oracle\n"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "mqtt: [nope"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "thresholds:\n  max_humidity: .nan\n"))
	assert.Error(t, err)
}

func TestMQTTConfig_Rabbit(t *testing.T) {
	r := Default().MQTT.Rabbit()
	assert.Equal(t, "tcp://localhost:1883", r.BrokerURL())
	assert.Equal(t, "greenhouse-backend", r.ClientID)
}
