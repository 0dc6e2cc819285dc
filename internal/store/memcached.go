package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjstillabower/currentweather-service/internal/models"
	"github.com/kjstillabower/currentweather-service/internal/observability"
)

const memcachedKeyPrefix = "currentweather:"

// memcachedNamespace derives fixed-length keys from city names, which may contain
// spaces and non-ASCII characters that memcached rejects.
var memcachedNamespace = uuid.MustParse("6f3c1c0e-5a7e-4d55-9c8e-0b1f3f4d2a61")

// MemcachedStore is a read-through front for another Store. It remembers the last record
// saved per city and answers FindFresh from memcached when that record is fresh enough.
// Misses, stale entries and memcached errors fall through to the wrapped store; Save
// always writes to the wrapped store first.
type MemcachedStore struct {
	next   Store
	client *memcache.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewMemcachedStore creates a front for next. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). ttl bounds how long memcached
// keeps an entry; timeout and maxIdleConns use package defaults if zero.
func NewMemcachedStore(next Store, addrs string, ttl, timeout time.Duration, maxIdleConns int, logger *zap.Logger) *MemcachedStore {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemcachedStore{next: next, client: client, ttl: ttl, logger: logger}
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (s *MemcachedStore) key(city string) string {
	return memcachedKeyPrefix + uuid.NewSHA1(memcachedNamespace, []byte(city)).String()
}

func (s *MemcachedStore) FindFresh(ctx context.Context, city string, notOlderThan time.Time) (models.WeatherRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.WeatherRecord{}, err
	}
	rec, err := s.lookup(city)
	switch {
	case errors.Is(err, memcache.ErrCacheMiss):
		observability.MemcachedFrontTotal.WithLabelValues("miss").Inc()
	case err != nil:
		observability.MemcachedFrontTotal.WithLabelValues("error").Inc()
		s.logger.Warn("memcached get failed", zap.String("city", city), zap.Error(err))
	case rec.City == city && rec.Timestamp.UnixMilli() >= notOlderThan.UnixMilli():
		observability.MemcachedFrontTotal.WithLabelValues("hit").Inc()
		return rec, nil
	default:
		observability.MemcachedFrontTotal.WithLabelValues("stale").Inc()
	}
	return s.next.FindFresh(ctx, city, notOlderThan)
}

func (s *MemcachedStore) lookup(city string) (models.WeatherRecord, error) {
	item, err := s.client.Get(s.key(city))
	if err != nil {
		return models.WeatherRecord{}, err
	}
	var rec models.WeatherRecord
	if err := json.Unmarshal(item.Value, &rec); err != nil {
		return models.WeatherRecord{}, fmt.Errorf("decode memcached entry: %w", err)
	}
	return rec, nil
}

// Save persists through the wrapped store, then remembers the saved record.
// A memcached write failure is logged and does not fail the save.
func (s *MemcachedStore) Save(ctx context.Context, rec models.WeatherRecord) (models.WeatherRecord, error) {
	saved, err := s.next.Save(ctx, rec)
	if err != nil {
		return models.WeatherRecord{}, err
	}
	if err := s.remember(saved); err != nil {
		observability.MemcachedFrontTotal.WithLabelValues("error").Inc()
		s.logger.Warn("memcached set failed", zap.String("city", saved.City), zap.Error(err))
	}
	return saved, nil
}

func (s *MemcachedStore) remember(rec models.WeatherRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	expSec := int32(s.ttl.Seconds())
	const maxRelativeExp = 30 * 24 * 60 * 60 // 30 days
	if expSec <= 0 || expSec > maxRelativeExp {
		expSec = 3600
	}
	return s.client.Set(&memcache.Item{
		Key:        s.key(rec.City),
		Value:      raw,
		Expiration: expSec,
	})
}

// Ping checks the wrapped store only. The front is optional: lookups keep working
// without memcached, so its reachability is reported separately by PingMemcached.
func (s *MemcachedStore) Ping(ctx context.Context) error {
	return s.next.Ping(ctx)
}

// PingMemcached checks that every memcached server answers.
func (s *MemcachedStore) PingMemcached(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.client.Ping(); err != nil {
		return fmt.Errorf("memcached: %w", err)
	}
	return nil
}

// Close closes the memcached connections and the wrapped store.
func (s *MemcachedStore) Close() error {
	return errors.Join(s.client.Close(), s.next.Close())
}
