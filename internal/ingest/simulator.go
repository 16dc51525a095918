package ingest

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"aquaguard/internal/config"
	"aquaguard/internal/model"
)

// Simulator emits synthetic readings for sites that have no live camera feed.
// Statuses are weighted toward clear/moderate with the occasional pollutant,
// and per-status value ranges mirror what the classifier produces for real
// frames.
type Simulator struct {
	cfg    config.SimulatorConfig
	out    chan<- model.Reading
	logger *slog.Logger
	rng    *rand.Rand
}

func NewSimulator(cfg config.SimulatorConfig, out chan<- model.Reading, logger *slog.Logger) *Simulator {
	return &Simulator{
		cfg:    cfg,
		out:    out,
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func StartSimulator(ctx context.Context, cfg *config.Manager, out chan<- model.Reading, logger *slog.Logger) {
	current := cfg.Get().Ingest.Simulator
	if !current.Enabled {
		if logger != nil {
			logger.Info("simulator disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("simulator enabled", "interval", current.Interval, "sites", current.Sites)
	}
	sim := NewSimulator(current, out, logger)
	go sim.run(ctx)
}

func (s *Simulator) run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, site := range s.cfg.Sites {
				SendNonBlocking(ctx, s.out, s.Next(site), s.logger)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Next builds one synthetic reading for the given site.
func (s *Simulator) Next(siteID string) model.Reading {
	status := s.weightedStatus()
	r := model.Reading{
		Timestamp: time.Now().UTC(),
		SiteID:    siteID,
		Status:    status,
	}
	switch status {
	case model.StatusClear:
		r.TurbidityNTU = s.uniform(0.5, 4.0)
		r.PH = s.uniform(6.8, 7.5)
		r.Confidence = s.uniform(88, 99)
		r.ComplianceScore = s.uniform(92, 100)
	case model.StatusModerate:
		r.TurbidityNTU = s.uniform(4.0, 25.0)
		r.PH = s.uniform(6.0, 8.5)
		r.Confidence = s.uniform(75, 92)
		r.ComplianceScore = s.uniform(65, 90)
	default:
		r.TurbidityNTU = s.uniform(25.0, 120.0)
		r.PH = s.uniform(4.0, 10.5)
		r.Confidence = s.uniform(82, 97)
		r.ComplianceScore = s.uniform(10, 55)
	}
	return r
}

// 55% clear, 35% moderate, 10% pollutant.
func (s *Simulator) weightedStatus() model.Status {
	n := s.rng.Intn(100)
	switch {
	case n < 55:
		return model.StatusClear
	case n < 90:
		return model.StatusModerate
	default:
		return model.StatusPollutant
	}
}

func (s *Simulator) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}
