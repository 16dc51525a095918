package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"aquaguard/internal/alerts"
	"aquaguard/internal/config"
	"aquaguard/internal/fanout"
	"aquaguard/internal/incident"
	"aquaguard/internal/sitestate"
)

type Server struct {
	cfg     *config.Manager
	alerts  *alerts.Store
	sites   *sitestate.Store
	tracker *incident.Tracker
	hub     *fanout.Hub
	logger  *slog.Logger
	version string
	started time.Time
}

type statusResponse struct {
	Status    string         `json:"status"`
	Time      string         `json:"time"`
	Version   string         `json:"version"`
	UptimeSec int64          `json:"uptime_sec"`
	Ingest    ingestStatus   `json:"ingest"`
	Alerting  alertingStatus `json:"alerting"`
	Incidents int            `json:"incidents_active"`
	Contacts  int            `json:"contacts_configured"`
}

type ingestStatus struct {
	REST      bool `json:"rest"`
	Kafka     bool `json:"kafka"`
	Simulator bool `json:"simulator"`
}

type alertingStatus struct {
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	Cooldown            string  `json:"cooldown"`
}

func Start(ctx context.Context, cfg *config.Manager, alertStore *alerts.Store, sites *sitestate.Store, tracker *incident.Tracker, hub *fanout.Hub, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{
		cfg:     cfg,
		alerts:  alertStore,
		sites:   sites,
		tracker: tracker,
		hub:     hub,
		logger:  logger,
		version: version,
		started: time.Now().UTC(),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/alerts", server.handleAlerts)
	mux.HandleFunc("/sites", server.handleSites)
	mux.HandleFunc("/incidents", server.handleIncidents)
	mux.HandleFunc("/stream", server.handleStream)
	mux.HandleFunc("/admin/clear", server.handleClear)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	active := 0
	if s.tracker != nil {
		for _, snap := range s.tracker.Snapshot() {
			if snap.InIncident {
				active++
			}
		}
	}
	resp := statusResponse{
		Status:    "ok",
		Time:      time.Now().UTC().Format(time.RFC3339Nano),
		Version:   s.version,
		UptimeSec: int64(time.Since(s.started).Seconds()),
		Ingest: ingestStatus{
			REST:      cfg.Ingest.REST.Enabled,
			Kafka:     cfg.Ingest.Kafka.Enabled,
			Simulator: cfg.Ingest.Simulator.Enabled,
		},
		Alerting: alertingStatus{
			ConfidenceThreshold: cfg.Alerting.ConfidenceThreshold,
			Cooldown:            cfg.Alerting.Cooldown.String(),
		},
		Incidents: active,
		Contacts:  len(cfg.Contacts),
	}
	writeJSON(w, resp)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			limit = v
		}
	}
	writeJSON(w, s.alerts.List(limit))
}

func (s *Server) handleSites(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.sites.GetAll())
}

func (s *Server) handleIncidents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.tracker.Snapshot())
}

// handleClear drops the in-memory alert history. Persisted rows are not
// touched.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.alerts != nil {
		s.alerts.Clear()
	}
	if s.logger != nil {
		s.logger.Info("alert history cleared")
	}
	writeJSON(w, map[string]any{"status": "ok"})
}

// handleStream serves pipeline events to dashboard clients over SSE.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.hub.Subscribe()
	defer s.hub.Unsubscribe(ch)

	for {
		select {
		case ev, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}
