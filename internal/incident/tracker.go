// Package incident tracks the per-site critical-incident state machine.
//
// A site is NORMAL until a critical reading arrives (pollutant status with
// turbidity above the critical threshold), then IN_INCIDENT until enough
// consecutive safe readings accumulate. The hysteresis keeps single noisy
// readings from flapping the incident flag. Emergency-call dispatch is gated
// by its own cooldown, evaluated on every critical reading independently of
// the state transition, so the first reading of a fresh incident goes through
// the same gate as a repeat.
package incident

import (
	"log/slog"
	"sync"
	"time"

	"aquaguard/internal/config"
	"aquaguard/internal/model"
)

type siteState struct {
	inIncident       bool
	lastCallDispatch time.Time
	safeReadings     int
}

// SiteSnapshot is a read-only copy of one site's incident state.
type SiteSnapshot struct {
	SiteID           string    `json:"site_id"`
	InIncident       bool      `json:"in_incident"`
	LastCallDispatch time.Time `json:"last_call_dispatch,omitempty"`
	SafeReadings     int       `json:"safe_readings"`
}

type Tracker struct {
	mu     sync.Mutex
	sites  map[string]*siteState
	cfg    config.IncidentConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewTracker(cfg config.IncidentConfig, logger *slog.Logger) *Tracker {
	return &Tracker{
		sites:  make(map[string]*siteState),
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Observe feeds one reading through the state machine and reports whether the
// emergency call sequence should be dispatched now. The transition and the
// dispatch decision happen under one lock, so two near-simultaneous critical
// readings for the same site cannot both claim the dispatch slot.
func (t *Tracker) Observe(r model.Reading) bool {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	critical := r.Status == model.StatusPollutant && r.TurbidityNTU > t.cfg.CriticalNTUThreshold

	state, ok := t.sites[r.SiteID]
	if !ok {
		state = &siteState{}
		t.sites[r.SiteID] = state
	}

	if !critical {
		if state.inIncident {
			state.safeReadings++
			if state.safeReadings >= t.cfg.SafeReadingThreshold {
				state.inIncident = false
				state.safeReadings = 0
				if t.logger != nil {
					t.logger.Info("site stabilized, lifting incident lock", "site_id", r.SiteID)
				}
			}
		}
		return false
	}

	state.safeReadings = 0
	if !state.inIncident {
		state.inIncident = true
		if t.logger != nil {
			t.logger.Warn("critical contamination detected, locking incident state",
				"site_id", r.SiteID,
				"turbidity_ntu", r.TurbidityNTU,
			)
		}
	}

	if state.lastCallDispatch.IsZero() || now.Sub(state.lastCallDispatch) > t.cfg.CallCooldown {
		state.lastCallDispatch = now
		return true
	}
	return false
}

// InIncident reports whether the site is currently locked in an incident.
func (t *Tracker) InIncident(siteID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.sites[siteID]
	return ok && state.inIncident
}

// Snapshot returns a copy of every tracked site's state for the operator API.
func (t *Tracker) Snapshot() []SiteSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]SiteSnapshot, 0, len(t.sites))
	for id, s := range t.sites {
		out = append(out, SiteSnapshot{
			SiteID:           id,
			InIncident:       s.inIncident,
			LastCallDispatch: s.lastCallDispatch,
			SafeReadings:     s.safeReadings,
		})
	}
	return out
}

// UpdateConfig swaps the incident thresholds on a config reload. Site state
// (incident locks, safe counters, dispatch times) is preserved.
func (t *Tracker) UpdateConfig(cfg config.IncidentConfig) {
	t.mu.Lock()
	t.cfg = cfg
	t.mu.Unlock()
}

// SetClock overrides the clock. Test hook.
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}
