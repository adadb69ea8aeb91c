package attendance

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// SummaryCache holds computed summaries keyed by local day.
type SummaryCache interface {
	GetSummary(ctx context.Context, day string) (Summary, bool, error)
	SetSummary(ctx context.Context, day string, s Summary) error
	InvalidateSummary(ctx context.Context, day string) error
}

// Dashboard reads aggregate views over the store.
type Dashboard struct {
	store Store
	cache SummaryCache // optional
	now   func() time.Time
}

// NewDashboard returns a dashboard; cache may be nil.
func NewDashboard(store Store, cache SummaryCache) *Dashboard {
	return &Dashboard{store: store, cache: cache, now: time.Now}
}

// DayKey names the local calendar day of t.
func DayKey(t time.Time) string { return t.Format("2006-01-02") }

// StartOfDay is local midnight of t's day.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Summary counts today's check-ins, all users and the mean confidence of
// today's records. The mean is zero when there are no records today.
func (d *Dashboard) Summary(ctx context.Context) (Summary, error) {
	now := d.now()
	key := DayKey(now)
	if d.cache != nil {
		s, ok, err := d.cache.GetSummary(ctx, key)
		if err != nil {
			slog.Warn("summary cache read failed", slog.Any("error", err))
		} else if ok {
			return s, nil
		}
	}

	confs, err := d.store.ListConfidencesSince(ctx, StartOfDay(now))
	if err != nil {
		return Summary{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	users, err := d.store.CountUsers(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	s := Summary{TotalToday: len(confs), TotalUsers: users, AverageConfidence: mean(confs)}
	if d.cache != nil {
		if err := d.cache.SetSummary(ctx, key, s); err != nil {
			slog.Warn("summary cache write failed", slog.Any("error", err))
		}
	}
	return s, nil
}

// Recent lists the latest attendance records. A non-positive limit means
// DefaultListLimit and limits above MaxListLimit are clamped.
func (d *Dashboard) Recent(ctx context.Context, limit int) ([]Record, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	recs, err := d.store.ListAttendance(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return recs, nil
}

// Invalidate drops the cached summary for the day of at.
func (d *Dashboard) Invalidate(ctx context.Context, at time.Time) error {
	if d.cache == nil {
		return nil
	}
	return d.cache.InvalidateSummary(ctx, DayKey(at.In(d.now().Location())))
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return math.Round(sum/float64(len(xs))*100) / 100
}
