package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/model/entities"
)

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// LatestCache keeps the most recent reading so /current survives an Influx outage.
type LatestCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewLatestCache(client *redis.Client, ttl time.Duration) *LatestCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &LatestCache{client: client, prefix: "greenhouse:reading:latest", ttl: ttl}
}

func (c *LatestCache) key() string { return c.prefix }

func (c *LatestCache) SaveReading(ctx context.Context, s entities.SensorSample) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.key(), b, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *LatestCache) Latest(ctx context.Context) (entities.SensorSample, error) {
	var s entities.SensorSample
	b, err := c.client.Get(ctx, c.key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return s, ErrNotFound
	}
	if err != nil {
		return s, fmt.Errorf("redis get: %w", err)
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("decode cached reading: %w", err)
	}
	return s, nil
}

func (c *LatestCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
