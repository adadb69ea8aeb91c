package attendance

import (
	"context"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// Flows holds one MatchFlow per kiosk so each device has at most one
// capture in progress. Flows idle for longer than ttl are dropped.
type Flows struct {
	deps MatchDeps
	ttl  time.Duration
	m    cmap.ConcurrentMap[string, *MatchFlow]
}

// NewFlows creates an empty registry whose flows share deps.
func NewFlows(deps MatchDeps, ttl time.Duration) *Flows {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Flows{deps: deps, ttl: ttl, m: cmap.New[*MatchFlow]()}
}

// For returns the flow owned by key, creating it on first use.
func (fs *Flows) For(key string) *MatchFlow {
	return fs.m.Upsert(key, nil, func(exists bool, cur, _ *MatchFlow) *MatchFlow {
		if exists {
			return cur
		}
		return NewMatchFlow(fs.deps)
	})
}

// Len is the number of live flows.
func (fs *Flows) Len() int { return fs.m.Count() }

// Sweep drops flows idle since before now-ttl and returns how many. A flow
// with a run in progress is kept.
func (fs *Flows) Sweep(now time.Time) int {
	cutoff := now.Add(-fs.ttl)
	n := 0
	for _, key := range fs.m.Keys() {
		removed := fs.m.RemoveCb(key, func(_ string, f *MatchFlow, exists bool) bool {
			return exists && !f.busy.Load() && f.LastActive().Before(cutoff)
		})
		if removed {
			n++
		}
	}
	return n
}

// Run sweeps on every tick until ctx is done.
func (fs *Flows) Run(ctx context.Context, every time.Duration) {
	sweepEvery(ctx, every, "match flows", fs.Sweep)
}
