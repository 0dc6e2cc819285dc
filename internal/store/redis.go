package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kjstillabower/currentweather-service/internal/models"
)

const redisKeyPrefix = "currentweather:"

// RedisStore keeps each record as JSON under currentweather:record:{id} and indexes it
// in a per-city sorted set (currentweather:city:{city}) scored by timestamp in milliseconds.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// OpenRedis connects using a redis:// URL and verifies the connection.
func OpenRedis(ctx context.Context, url string) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStore(client), nil
}

func cityKey(city string) string { return redisKeyPrefix + "city:" + city }
func recordKey(id string) string { return redisKeyPrefix + "record:" + id }

func (s *RedisStore) FindFresh(ctx context.Context, city string, notOlderThan time.Time) (models.WeatherRecord, error) {
	ids, err := s.client.ZRangeByScore(ctx, cityKey(city), &redis.ZRangeBy{
		Min:   strconv.FormatInt(notOlderThan.UnixMilli(), 10),
		Max:   "+inf",
		Count: 1,
	}).Result()
	if err != nil {
		return models.WeatherRecord{}, fmt.Errorf("find fresh weather for %q: %w", city, err)
	}
	if len(ids) == 0 {
		return models.WeatherRecord{}, ErrNotFound
	}

	raw, err := s.client.Get(ctx, recordKey(ids[0])).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.WeatherRecord{}, ErrNotFound
	}
	if err != nil {
		return models.WeatherRecord{}, fmt.Errorf("load weather record %s: %w", ids[0], err)
	}
	var rec models.WeatherRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return models.WeatherRecord{}, fmt.Errorf("decode weather record %s: %w", ids[0], err)
	}
	return rec, nil
}

// Save writes the record and its index entry in one MULTI/EXEC transaction.
func (s *RedisStore) Save(ctx context.Context, rec models.WeatherRecord) (models.WeatherRecord, error) {
	rec = prepareInsert(rec)
	raw, err := json.Marshal(rec)
	if err != nil {
		return models.WeatherRecord{}, fmt.Errorf("encode weather record: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, recordKey(rec.ID), raw, 0)
		pipe.ZAdd(ctx, cityKey(rec.City), redis.Z{Score: float64(rec.Timestamp.UnixMilli()), Member: rec.ID})
		return nil
	})
	if err != nil {
		return models.WeatherRecord{}, fmt.Errorf("insert weather for %q: %w", rec.City, err)
	}
	return rec, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
