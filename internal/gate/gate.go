// Package gate decides whether a classified reading may produce a dashboard
// alert. Low-confidence classifications never alert; the rest are throttled
// by a per-(site, severity) cooldown.
package gate

import (
	"sync"
	"time"

	"aquaguard/internal/model"
)

type Gate struct {
	mu                  sync.Mutex
	last                map[string]time.Time
	confidenceThreshold float64
	cooldown            time.Duration
	now                 func() time.Time
}

func New(confidenceThreshold float64, cooldown time.Duration) *Gate {
	return &Gate{
		last:                make(map[string]time.Time),
		confidenceThreshold: confidenceThreshold,
		cooldown:            cooldown,
		now:                 func() time.Time { return time.Now().UTC() },
	}
}

// Allow reports whether an alert of the given severity should fire for the
// site. The cooldown check-and-set is atomic per key, so two concurrent
// readings cannot both pass the gate within one cooldown window. The map is
// only mutated on a true outcome.
func (g *Gate) Allow(siteID string, severity model.Severity, confidence float64) bool {
	key := siteID + "|" + string(severity)
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()
	if confidence < g.confidenceThreshold {
		return false
	}
	if g.cooldown > 0 {
		if ts, ok := g.last[key]; ok && now.Sub(ts) < g.cooldown {
			return false
		}
	}
	g.last[key] = now
	return true
}

// UpdateConfig swaps the gate thresholds on a config reload. Cooldown state
// for already-fired keys is preserved.
func (g *Gate) UpdateConfig(confidenceThreshold float64, cooldown time.Duration) {
	g.mu.Lock()
	g.confidenceThreshold = confidenceThreshold
	g.cooldown = cooldown
	g.mu.Unlock()
}

// SetClock overrides the clock. Test hook.
func (g *Gate) SetClock(now func() time.Time) {
	g.now = now
}
