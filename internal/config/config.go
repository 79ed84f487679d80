// Package config loads the controller configuration from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/model/entities"
	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/services/controller"
	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/services/persistence"
	"github.com/LeonardoBeccarini/sdcc_greenhouse/pkg/rabbitmq"
)

type ServiceConfig struct {
	Name            string        `yaml:"name"`
	DeviceID        string        `yaml:"device_id"`
	HTTPAddr        string        `yaml:"http_addr"`
	GRPCAddr        string        `yaml:"grpc_addr"`
	HTTPTimeout     time.Duration `yaml:"http_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	DedupTTL        time.Duration `yaml:"dedup_ttl"`
	DeviceTTL       time.Duration `yaml:"device_ttl"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MQTTConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	ClientID       string `yaml:"client_id"`
	ConnectRetries int    `yaml:"connect_retries"`
}

// Rabbit converts the section into the connection config used by pkg/rabbitmq.
func (m MQTTConfig) Rabbit() *rabbitmq.RabbitMQConfig {
	return &rabbitmq.RabbitMQConfig{
		Host:           m.Host,
		Port:           m.Port,
		User:           m.User,
		Password:       m.Password,
		ClientID:       m.ClientID,
		ConnectRetries: m.ConnectRetries,
	}
}

type Config struct {
	Service    ServiceConfig               `yaml:"service"`
	Logging    LoggingConfig               `yaml:"logging"`
	MQTT       MQTTConfig                  `yaml:"mqtt"`
	Topics     controller.Topics           `yaml:"topics"`
	Thresholds entities.ThresholdSet       `yaml:"thresholds"`
	Database   persistence.SQLConfig       `yaml:"database"`
	Influx     persistence.InfluxConfig    `yaml:"influx"`
	Redis      persistence.RedisConfig     `yaml:"redis"`
	Retention  persistence.RetentionConfig `yaml:"retention"`
}

func Default() Config {
	return Config{
		Service: ServiceConfig{
			Name:            "greenhouse-controller",
			DeviceID:        entities.DefaultDeviceID,
			HTTPAddr:        ":5000",
			GRPCAddr:        ":50051",
			HTTPTimeout:     10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			DedupTTL:        10 * time.Minute,
			DeviceTTL:       60 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		MQTT: MQTTConfig{
			Host:           "localhost",
			Port:           1883,
			User:           "guest",
			Password:       "guest",
			ClientID:       "greenhouse-backend",
			ConnectRetries: 5,
		},
		Topics:     controller.DefaultTopics(),
		Thresholds: entities.DefaultThresholds(),
		Database: persistence.SQLConfig{
			Driver:       "sqlite",
			DSN:          "greenhouse.db",
			MaxIdleConns: 5,
			MaxOpenConns: 10,
		},
		Influx: persistence.InfluxConfig{
			URL:         "http://localhost:8086",
			Org:         "greenhouse",
			Bucket:      "sensors",
			Measurement: "sensor_reading",
		},
		Redis:     persistence.RedisConfig{Addr: "localhost:6379", TTL: 24 * time.Hour},
		Retention: persistence.DefaultRetention(),
	}
}

// Load reads path (or CONFIG_PATH when path is empty) over the defaults, then
// applies environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Service.DeviceID = env("DEVICE_ID", c.Service.DeviceID)
	c.Service.HTTPAddr = env("HTTP_ADDR", c.Service.HTTPAddr)
	if port := env("PORT", ""); port != "" {
		c.Service.HTTPAddr = ":" + port
	}
	c.Service.GRPCAddr = env("GRPC_ADDR", c.Service.GRPCAddr)
	if origins := env("ALLOWED_ORIGINS", ""); origins != "" {
		c.Service.AllowedOrigins = splitList(origins)
	}

	c.Logging.Level = env("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = env("LOG_FORMAT", c.Logging.Format)

	c.MQTT.Host = env("RABBITMQ_HOST", c.MQTT.Host)
	c.MQTT.Port = envInt("RABBITMQ_PORT", c.MQTT.Port)
	c.MQTT.User = env("RABBITMQ_USER", c.MQTT.User)
	c.MQTT.Password = env("RABBITMQ_PASSWORD", c.MQTT.Password)
	c.MQTT.ClientID = env("RABBITMQ_CLIENTID", c.MQTT.ClientID)

	c.Database.Driver = env("DB_DRIVER", c.Database.Driver)
	c.Database.DSN = env("DB_DSN", c.Database.DSN)

	c.Influx.URL = env("INFLUX_URL", c.Influx.URL)
	c.Influx.Token = env("INFLUX_TOKEN", c.Influx.Token)
	c.Influx.Org = env("INFLUX_ORG", c.Influx.Org)
	c.Influx.Bucket = env("INFLUX_BUCKET", c.Influx.Bucket)

	c.Redis.Addr = env("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = env("REDIS_PASSWORD", c.Redis.Password)

	t := &c.Thresholds
	t.MinSoilMoisture = envFloat("THRESHOLD_MIN_SOIL_MOISTURE", t.MinSoilMoisture)
	t.MaxSoilMoisture = envFloat("THRESHOLD_MAX_SOIL_MOISTURE", t.MaxSoilMoisture)
	t.MinTemperature = envFloat("THRESHOLD_MIN_TEMPERATURE", t.MinTemperature)
	t.MaxTemperature = envFloat("THRESHOLD_MAX_TEMPERATURE", t.MaxTemperature)
	t.MinWaterLevel = envFloat("THRESHOLD_MIN_WATER_LEVEL", t.MinWaterLevel)
	t.MaxHumidity = envFloat("THRESHOLD_MAX_HUMIDITY", t.MaxHumidity)
}

func (c *Config) Validate() error {
	if c.MQTT.Host == "" {
		return errors.New("mqtt host is required")
	}
	if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
		return fmt.Errorf("mqtt port out of range: %d", c.MQTT.Port)
	}
	switch c.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database dsn is required")
	}
	if c.Service.HTTPAddr == "" {
		return errors.New("http address is required")
	}
	if err := c.Thresholds.Partial().Validate(); err != nil {
		return err
	}
	if c.Topics == (controller.Topics{}) {
		c.Topics = controller.DefaultTopics()
	}
	return nil
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
