package attendance

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
)

// Sessions tracks open enrollments so a browser can capture and submit in
// separate requests. Idle sessions expire after ttl.
type Sessions struct {
	deps EnrollDeps
	ttl  time.Duration
	m    cmap.ConcurrentMap[string, *Enrollment]
}

// NewSessions creates an empty registry.
func NewSessions(deps EnrollDeps, ttl time.Duration) *Sessions {
	return &Sessions{deps: deps.withDefaults(), ttl: ttl, m: cmap.New[*Enrollment]()}
}

// Open starts a new enrollment.
func (s *Sessions) Open() *Enrollment {
	e := NewEnrollment(uuid.NewString(), s.deps)
	s.m.Set(e.ID, e)
	return e
}

// Get returns the enrollment with id or ErrSessionNotFound.
func (s *Sessions) Get(id string) (*Enrollment, error) {
	e, ok := s.m.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e, nil
}

// Close cancels and forgets the enrollment. A caller still holding it gets
// ErrSessionNotFound on its next operation.
func (s *Sessions) Close(id string) error {
	e, ok := s.m.Pop(id)
	if !ok {
		return ErrSessionNotFound
	}
	if !e.expire() {
		e.Cancel()
	}
	return nil
}

// Len is the number of open sessions.
func (s *Sessions) Len() int { return s.m.Count() }

// Sweep expires sessions idle since before now-ttl and returns how many.
// A session with a capture or submit in progress is left for the next sweep.
func (s *Sessions) Sweep(now time.Time) int {
	cutoff := now.Add(-s.ttl)
	n := 0
	for _, id := range s.m.Keys() {
		removed := s.m.RemoveCb(id, func(_ string, e *Enrollment, exists bool) bool {
			return exists && e.LastActive().Before(cutoff) && e.expire()
		})
		if removed {
			n++
		}
	}
	return n
}

// Run sweeps on every tick until ctx is done.
func (s *Sessions) Run(ctx context.Context, every time.Duration) {
	sweepEvery(ctx, every, "enrollment sessions", s.Sweep)
}

// sweepEvery calls sweep on every tick until ctx is done.
func sweepEvery(ctx context.Context, every time.Duration, what string, sweep func(time.Time) int) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := sweep(now); n > 0 {
				slog.Info("expired idle "+what, slog.Int("count", n))
			}
		}
	}
}
