package service

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/currentweather-service/internal/models"
)

// defaultSharedFetchTimeout bounds a shared fetch-and-save when no timeout is configured.
const defaultSharedFetchTimeout = 15 * time.Second

// coalescer lets concurrent misses for the same city share one fetch-and-save.
// The shared call runs detached from the caller that started it: it keeps that caller's
// context values (logger, correlation id) but not its cancellation, and ends after timeout.
// Every caller, the starter included, stops waiting when its own context ends.
type coalescer struct {
	group   singleflight.Group
	timeout time.Duration
}

func newCoalescer(timeout time.Duration) *coalescer {
	if timeout <= 0 {
		timeout = defaultSharedFetchTimeout
	}
	return &coalescer{timeout: timeout}
}

// Do runs fn once per key among concurrent callers. shared reports whether the result
// was delivered to more than one caller.
func (c *coalescer) Do(ctx context.Context, key string, fn func(context.Context) (models.WeatherRecord, error)) (rec models.WeatherRecord, shared bool, err error) {
	ch := c.group.DoChan(key, func() (interface{}, error) {
		sharedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return fn(sharedCtx)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return models.WeatherRecord{}, res.Shared, res.Err
		}
		return res.Val.(models.WeatherRecord), res.Shared, nil
	case <-ctx.Done():
		return models.WeatherRecord{}, false, ctx.Err()
	}
}
