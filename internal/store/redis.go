package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"faceattend/internal/attendance"
)

const summaryKeyPrefix = "attendance:summary:"

// Redis wraps redis client.
type Redis struct {
	Client     *redis.Client
	SummaryTTL time.Duration
}

var _ attendance.SummaryCache = (*Redis)(nil)

// NewRedis connects to redis with short timeouts.
func NewRedis(addr string, summaryTTL time.Duration) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client, SummaryTTL: summaryTTL}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// GetSummary returns the cached summary for day, if any.
func (r *Redis) GetSummary(ctx context.Context, day string) (attendance.Summary, bool, error) {
	raw, err := r.Client.Get(ctx, summaryKeyPrefix+day).Bytes()
	if errors.Is(err, redis.Nil) {
		return attendance.Summary{}, false, nil
	}
	if err != nil {
		return attendance.Summary{}, false, err
	}
	var s attendance.Summary
	if err := json.Unmarshal(raw, &s); err != nil {
		return attendance.Summary{}, false, err
	}
	return s, true, nil
}

// SetSummary caches s for SummaryTTL.
func (r *Redis) SetSummary(ctx context.Context, day string, s attendance.Summary) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.Client.Set(ctx, summaryKeyPrefix+day, raw, r.SummaryTTL).Err()
}

// InvalidateSummary drops the cached summary for day.
func (r *Redis) InvalidateSummary(ctx context.Context, day string) error {
	return r.Client.Del(ctx, summaryKeyPrefix+day).Err()
}

// Close closes the client.
func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}
