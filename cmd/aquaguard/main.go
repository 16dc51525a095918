package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aquaguard/internal/alerts"
	"aquaguard/internal/api"
	"aquaguard/internal/config"
	"aquaguard/internal/dialer"
	"aquaguard/internal/fanout"
	"aquaguard/internal/gate"
	"aquaguard/internal/incident"
	"aquaguard/internal/ingest"
	"aquaguard/internal/logging"
	"aquaguard/internal/model"
	"aquaguard/internal/notify"
	"aquaguard/internal/pipeline"
	"aquaguard/internal/sitestate"
	"aquaguard/internal/storage"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "path to config file (yaml or json)")
	flag.Parse()

	var mgr *config.Manager
	if *configPath != "" {
		m, err := config.NewManager(config.ResolvePath(*configPath))
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		mgr = m
	} else {
		mgr = config.NewManagerFromConfig(config.DefaultConfig())
	}
	cfg := mgr.Get()

	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("starting aquaguard", "version", version)

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("failed to open storage", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if store != nil {
		if err := store.Init(ctx); err != nil {
			logger.Error("failed to init storage", "err", err)
			os.Exit(1)
		}
		defer store.Close()
	}

	alertStore := alerts.NewStore(cfg.Alerting.StoreLimit)
	sites := sitestate.NewStore(0)
	hub := fanout.NewHub(0)
	g := gate.New(cfg.Alerting.ConfidenceThreshold, cfg.Alerting.Cooldown)
	tracker := incident.NewTracker(cfg.Incident, logger)
	caller := dialer.NewClient(cfg.Dialer, logger)
	dispatcher := notify.NewDispatcher(cfg.Contacts, caller, store, cfg.Dialer.ContactPacing, logger)
	pipe := pipeline.New(cfg, logger, g, tracker, dispatcher, alertStore, sites, store, hub)

	if len(cfg.Contacts) == 0 {
		logger.Warn("no emergency contacts configured, call dispatch will be a no-op")
	}

	readings := make(chan model.Reading, cfg.Ingest.ChannelBuffer)
	pipe.Start(ctx, readings)
	ingest.StartREST(ctx, mgr, readings, logger)
	ingest.StartKafka(ctx, mgr, readings, logger)
	ingest.StartSimulator(ctx, mgr, readings, logger)
	api.Start(ctx, mgr, alertStore, sites, tracker, hub, logger, version)

	if mgr.Path() != "" {
		go mgr.Watch(3*time.Second,
			func(updated *config.Config) {
				logger.Info("config file changed, reloading", "path", mgr.Path())
				pipe.UpdateConfig(updated)
			},
			func(err error) {
				logger.Warn("config reload failed, keeping previous config", "err", err)
			},
			ctx.Done())
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutdown signal received")
	cancel()
	pipe.Close()
	logger.Info("shutdown complete")
}
