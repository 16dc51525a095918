// Package pipeline orchestrates incident handling for classified readings.
// Every reading is evaluated on two independent paths: the dashboard-alert
// path (confidence gate plus per-(site,severity) cooldown) and the
// emergency-call path (per-site incident state machine plus call cooldown).
// A reading can produce an alert without a call, a call without a new alert,
// or both.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"aquaguard/internal/alerts"
	"aquaguard/internal/config"
	"aquaguard/internal/fanout"
	"aquaguard/internal/gate"
	"aquaguard/internal/incident"
	"aquaguard/internal/model"
	"aquaguard/internal/notify"
	"aquaguard/internal/sitestate"
	"aquaguard/internal/storage"
)

type Pipeline struct {
	logger     *slog.Logger
	gate       *gate.Gate
	tracker    *incident.Tracker
	dispatcher *notify.Dispatcher
	alerts     *alerts.Store
	sites      *sitestate.Store
	store      storage.Store
	hub        *fanout.Hub
	cfg        atomic.Value

	dispatchCtx    context.Context
	dispatchCancel context.CancelFunc
	wg             sync.WaitGroup
}

func New(cfg *config.Config, logger *slog.Logger, g *gate.Gate, tracker *incident.Tracker, dispatcher *notify.Dispatcher, alertStore *alerts.Store, sites *sitestate.Store, store storage.Store, hub *fanout.Hub) *Pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		logger:         logger,
		gate:           g,
		tracker:        tracker,
		dispatcher:     dispatcher,
		alerts:         alertStore,
		sites:          sites,
		store:          store,
		hub:            hub,
		dispatchCtx:    ctx,
		dispatchCancel: cancel,
	}
	p.cfg.Store(cfg)
	return p
}

func (p *Pipeline) config() *config.Config {
	if v := p.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

// UpdateConfig applies a reloaded config to the running pipeline: alert and
// incident thresholds swap in place, cooldown and incident state carry over.
// Ingest, dialer, and storage settings are read once at startup and need a
// restart.
func (p *Pipeline) UpdateConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	p.cfg.Store(cfg)
	p.gate.UpdateConfig(cfg.Alerting.ConfidenceThreshold, cfg.Alerting.Cooldown)
	p.tracker.UpdateConfig(cfg.Incident)
	if p.logger != nil {
		p.logger.Info("config applied",
			"confidence_threshold", cfg.Alerting.ConfidenceThreshold,
			"alert_cooldown", cfg.Alerting.Cooldown.String(),
			"critical_ntu_threshold", cfg.Incident.CriticalNTUThreshold,
		)
	}
}

// Start consumes readings from the ingest channel until ctx is cancelled.
func (p *Pipeline) Start(ctx context.Context, in <-chan model.Reading) {
	go func() {
		for {
			select {
			case r := <-in:
				if err := p.Handle(ctx, r); err != nil {
					if p.logger != nil {
						p.logger.Warn("rejected reading", "site_id", r.SiteID, "err", err)
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Handle processes one classified reading. It returns an error only for
// validation failures; everything downstream is contained and logged.
func (p *Pipeline) Handle(ctx context.Context, r model.Reading) error {
	if err := r.Validate(); err != nil {
		return err
	}

	score := contaminationScore(r.TurbidityNTU)

	if p.tracker.Observe(r) {
		if p.logger != nil {
			p.logger.Warn("initiating emergency call protocol", "site_id", r.SiteID, "contamination_score", score)
		}
		p.wg.Add(1)
		go func(siteID string, score float64) {
			defer p.wg.Done()
			p.dispatcher.Run(p.dispatchCtx, siteID, score)
		}(r.SiteID, score)
	}

	if severity, msg, ok := alertFor(r, p.config().Alerting.WarningNTUThreshold); ok {
		if p.gate.Allow(r.SiteID, severity, r.Confidence) {
			p.emitAlert(ctx, r, severity, msg)
		}
	}

	if p.store != nil {
		if err := p.store.SavePrediction(ctx, r); err != nil && p.logger != nil {
			p.logger.Error("failed to persist prediction", "site_id", r.SiteID, "err", err)
		}
	}
	if p.sites != nil {
		p.sites.Update(r)
	}
	if p.hub != nil {
		p.hub.Publish(fanout.Event{Type: "prediction", Data: r})
	}
	return nil
}

func (p *Pipeline) emitAlert(ctx context.Context, r model.Reading, severity model.Severity, msg string) {
	alert := model.Alert{
		Timestamp: r.Timestamp.UTC(),
		SiteID:    r.SiteID,
		Severity:  severity,
		Message:   msg,
	}
	if p.logger != nil {
		p.logger.Warn("alert triggered",
			"site_id", alert.SiteID,
			"severity", string(alert.Severity),
			"turbidity_ntu", r.TurbidityNTU,
		)
	}
	if p.alerts != nil {
		p.alerts.Add(alert)
	}
	if p.store != nil {
		if err := p.store.SaveAlert(ctx, alert); err != nil && p.logger != nil {
			p.logger.Error("failed to persist alert", "site_id", alert.SiteID, "err", err)
		}
	}
	if p.hub != nil {
		p.hub.Publish(fanout.Event{Type: "alert", Data: alert})
	}
}

// Close cancels in-flight dispatch sequences and waits for them to wind down.
// Each sequence finishes its current contact attempt before exiting, so no
// call-attempt record is left half-written.
func (p *Pipeline) Close() {
	p.dispatchCancel()
	p.wg.Wait()
}

// Wait blocks until all outstanding dispatch sequences have completed,
// without cancelling them.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// contaminationScore is a crude normalized severity derived purely from
// turbidity, decoupled from the classifier's confidence output.
func contaminationScore(turbidity float64) float64 {
	score := turbidity / 100.0
	if score > 1.0 {
		return 1.0
	}
	return score
}

func alertFor(r model.Reading, warningNTU float64) (model.Severity, string, bool) {
	switch {
	case r.Status == model.StatusPollutant:
		msg := fmt.Sprintf("Pollutant detected! Turbidity=%.2f NTU, pH=%.2f", r.TurbidityNTU, r.PH)
		return model.SeverityCritical, msg, true
	case r.Status == model.StatusModerate && r.TurbidityNTU > warningNTU:
		msg := fmt.Sprintf("Elevated turbidity %.2f NTU at %s", r.TurbidityNTU, r.SiteID)
		return model.SeverityWarning, msg, true
	default:
		return "", "", false
	}
}
