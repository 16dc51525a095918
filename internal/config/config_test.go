package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"aquaguard/internal/model"
)

func TestDefaultConfigValidates(t *testing.T) {
	if err := Validate(DefaultConfig()); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
log_level: debug
alerting:
  confidence_threshold: 70
  cooldown: 45s
incident:
  critical_ntu_threshold: 50
  call_cooldown: 5m
contacts:
  - name: Ops One
    phone: "+15550000001"
  - name: Ops Two
    phone: "+15550000002"
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log_level not applied")
	}
	if cfg.Alerting.ConfidenceThreshold != 70 {
		t.Fatalf("confidence_threshold not applied: %v", cfg.Alerting.ConfidenceThreshold)
	}
	if cfg.Alerting.Cooldown != 45*time.Second {
		t.Fatalf("cooldown not applied: %v", cfg.Alerting.Cooldown)
	}
	if cfg.Incident.CallCooldown != 5*time.Minute {
		t.Fatalf("call_cooldown not applied: %v", cfg.Incident.CallCooldown)
	}
	if len(cfg.Contacts) != 2 || cfg.Contacts[0].Phone != "+15550000001" {
		t.Fatalf("contacts not applied: %v", cfg.Contacts)
	}
	// Untouched sections keep their defaults.
	if cfg.Incident.SafeReadingThreshold != 10 {
		t.Fatalf("defaults lost on partial config")
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	data := []byte(`{"log_level":"warn","api":{"enabled":true,"addr":":9999"}}`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LogLevel != "warn" || cfg.API.Addr != ":9999" {
		t.Fatalf("json config not applied: %+v", cfg)
	}
}

func TestLoadRejectsEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("  \n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for empty config")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ingest.Kafka.Enabled = true
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for kafka without brokers")
	}

	cfg = DefaultConfig()
	cfg.Alerting.ConfidenceThreshold = 120
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for confidence threshold above 100")
	}

	cfg = DefaultConfig()
	cfg.Contacts = append(cfg.Contacts, model.Contact{Name: "No Phone"})
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for contact without phone")
	}
}

func TestManagerReloadPicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := DefaultConfig()
	cfg.Alerting.ConfidenceThreshold = 70
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if got := mgr.Get().Alerting.ConfidenceThreshold; got != 70 {
		t.Fatalf("initial threshold = %v, want 70", got)
	}

	needs, err := mgr.NeedsReload()
	if err != nil {
		t.Fatalf("NeedsReload failed: %v", err)
	}
	if needs {
		t.Fatalf("unchanged file must not need reload")
	}

	cfg.Alerting.ConfidenceThreshold = 85
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	needs, err = mgr.NeedsReload()
	if err != nil {
		t.Fatalf("NeedsReload failed: %v", err)
	}
	if !needs {
		t.Fatalf("rewritten file must need reload")
	}

	updated, err := mgr.Reload()
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if updated.Alerting.ConfidenceThreshold != 85 {
		t.Fatalf("reloaded threshold = %v, want 85", updated.Alerting.ConfidenceThreshold)
	}
	if mgr.Get().Alerting.ConfidenceThreshold != 85 {
		t.Fatalf("Get must see the reloaded config")
	}
	needs, err = mgr.NeedsReload()
	if err != nil {
		t.Fatalf("NeedsReload failed: %v", err)
	}
	if needs {
		t.Fatalf("reload must consume the pending change")
	}
}

func TestManagerWatchAppliesUpdate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := DefaultConfig()
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	cfg.Incident.CriticalNTUThreshold = 60
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	reloaded := make(chan *Config, 1)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		mgr.Watch(5*time.Millisecond,
			func(c *Config) {
				select {
				case reloaded <- c:
				default:
				}
			},
			func(err error) { t.Errorf("watch error: %v", err) },
			stop)
		close(done)
	}()

	select {
	case c := <-reloaded:
		if c.Incident.CriticalNTUThreshold != 60 {
			t.Fatalf("watched threshold = %v, want 60", c.Incident.CriticalNTUThreshold)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("watcher never delivered the updated config")
	}
	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("watcher did not stop")
	}
}

func TestManagerWatchReportsBrokenConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := Save(path, DefaultConfig()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("alerting:\n  confidence_threshold: 500\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	errs := make(chan error, 1)
	stop := make(chan struct{})
	go mgr.Watch(5*time.Millisecond,
		func(c *Config) { t.Errorf("broken config must not reload, got %+v", c.Alerting) },
		func(err error) {
			select {
			case errs <- err:
			default:
			}
		},
		stop)

	select {
	case <-errs:
	case <-time.After(2 * time.Second):
		t.Fatalf("watcher never reported the invalid config")
	}
	close(stop)

	// The previous good config stays in effect.
	if got := mgr.Get().Alerting.ConfidenceThreshold; got != 60 {
		t.Fatalf("threshold after failed reload = %v, want 60", got)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	cfg := DefaultConfig()
	cfg.Contacts = []model.Contact{{Name: "Ops", Phone: "+15550000001"}}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Contacts) != 1 || loaded.Contacts[0].Phone != "+15550000001" {
		t.Fatalf("contacts lost in round trip: %+v", loaded.Contacts)
	}
}

func TestApplyDefaultsClampsContactPacing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dialer.ContactPacing = 100 * time.Millisecond
	applyDefaults(cfg)
	if cfg.Dialer.ContactPacing < time.Second {
		t.Fatalf("pacing below 1s must be clamped, got %v", cfg.Dialer.ContactPacing)
	}
}
