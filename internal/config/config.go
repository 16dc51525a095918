package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"aquaguard/internal/model"
)

type Config struct {
	LogLevel string          `json:"log_level" yaml:"log_level"`
	Ingest   IngestConfig    `json:"ingest" yaml:"ingest"`
	Alerting AlertingConfig  `json:"alerting" yaml:"alerting"`
	Incident IncidentConfig  `json:"incident" yaml:"incident"`
	Dialer   DialerConfig    `json:"dialer" yaml:"dialer"`
	Contacts []model.Contact `json:"contacts" yaml:"contacts"`
	API      APIConfig       `json:"api" yaml:"api"`
	Storage  StorageConfig   `json:"storage" yaml:"storage"`
}

type IngestConfig struct {
	ChannelBuffer int             `json:"channel_buffer" yaml:"channel_buffer"`
	REST          RESTConfig      `json:"rest" yaml:"rest"`
	Kafka         KafkaConfig     `json:"kafka" yaml:"kafka"`
	Simulator     SimulatorConfig `json:"simulator" yaml:"simulator"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type SimulatorConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Interval time.Duration `json:"interval" yaml:"interval"`
	Sites    []string      `json:"sites" yaml:"sites"`
}

type AlertingConfig struct {
	ConfidenceThreshold float64       `json:"confidence_threshold" yaml:"confidence_threshold"`
	Cooldown            time.Duration `json:"cooldown" yaml:"cooldown"`
	WarningNTUThreshold float64       `json:"warning_ntu_threshold" yaml:"warning_ntu_threshold"`
	StoreLimit          int           `json:"store_limit" yaml:"store_limit"`
}

type IncidentConfig struct {
	CriticalNTUThreshold float64       `json:"critical_ntu_threshold" yaml:"critical_ntu_threshold"`
	CallCooldown         time.Duration `json:"call_cooldown" yaml:"call_cooldown"`
	SafeReadingThreshold int           `json:"safe_reading_threshold" yaml:"safe_reading_threshold"`
}

type DialerConfig struct {
	ProviderURL   string        `json:"provider_url" yaml:"provider_url"`
	APIKey        string        `json:"api_key" yaml:"api_key"`
	AssistantID   string        `json:"assistant_id" yaml:"assistant_id"`
	PhoneNumberID string        `json:"phone_number_id" yaml:"phone_number_id"`
	Timeout       time.Duration `json:"timeout" yaml:"timeout"`
	MaxRetries    int           `json:"max_retries" yaml:"max_retries"`
	RetryBackoff  time.Duration `json:"retry_backoff" yaml:"retry_backoff"`
	ContactPacing time.Duration `json:"contact_pacing" yaml:"contact_pacing"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Ingest: IngestConfig{
			ChannelBuffer: 10000,
			REST:          RESTConfig{Enabled: true, Addr: ":8080"},
			Kafka:         KafkaConfig{Enabled: false},
			Simulator:     SimulatorConfig{Enabled: false, Interval: 2 * time.Second, Sites: []string{"SITE-02"}},
		},
		Alerting: AlertingConfig{
			ConfidenceThreshold: 60.0,
			Cooldown:            30 * time.Second,
			WarningNTUThreshold: 15.0,
			StoreLimit:          1000,
		},
		Incident: IncidentConfig{
			CriticalNTUThreshold: 45.0,
			CallCooldown:         600 * time.Second,
			SafeReadingThreshold: 10,
		},
		Dialer: DialerConfig{
			ProviderURL:   "https://api.vapi.ai/call",
			Timeout:       10 * time.Second,
			MaxRetries:    2,
			RetryBackoff:  2 * time.Second,
			ContactPacing: 1 * time.Second,
		},
		API:     APIConfig{Enabled: true, Addr: ":8081"},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:aquaguard.db?_pragma=busy_timeout(5000)"},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 10000
	}
	if cfg.Ingest.Simulator.Interval <= 0 {
		cfg.Ingest.Simulator.Interval = 2 * time.Second
	}
	if len(cfg.Ingest.Simulator.Sites) == 0 {
		cfg.Ingest.Simulator.Sites = []string{"SITE-02"}
	}
	if cfg.Alerting.StoreLimit <= 0 {
		cfg.Alerting.StoreLimit = 1000
	}
	if cfg.Alerting.WarningNTUThreshold <= 0 {
		cfg.Alerting.WarningNTUThreshold = 15.0
	}
	if cfg.Dialer.ProviderURL == "" {
		cfg.Dialer.ProviderURL = "https://api.vapi.ai/call"
	}
	if cfg.Dialer.Timeout <= 0 {
		cfg.Dialer.Timeout = 10 * time.Second
	}
	if cfg.Dialer.MaxRetries < 0 {
		cfg.Dialer.MaxRetries = 2
	}
	if cfg.Dialer.RetryBackoff <= 0 {
		cfg.Dialer.RetryBackoff = 2 * time.Second
	}
	if cfg.Dialer.ContactPacing < time.Second {
		cfg.Dialer.ContactPacing = 1 * time.Second
	}
	if cfg.Incident.SafeReadingThreshold <= 0 {
		cfg.Incident.SafeReadingThreshold = 10
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Alerting.ConfidenceThreshold < 0 || cfg.Alerting.ConfidenceThreshold > 100 {
		return errors.New("alerting.confidence_threshold must be within [0,100]")
	}
	if cfg.Alerting.Cooldown < 0 {
		return errors.New("alerting.cooldown must be >= 0")
	}
	if cfg.Incident.CriticalNTUThreshold <= 0 {
		return errors.New("incident.critical_ntu_threshold must be > 0")
	}
	if cfg.Incident.CallCooldown < 0 {
		return errors.New("incident.call_cooldown must be >= 0")
	}
	for i, c := range cfg.Contacts {
		if c.Phone == "" {
			return fmt.Errorf("contacts[%d] missing phone", i)
		}
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

// NewManagerFromConfig wraps an already-built config, for tests and for
// running without a config file on disk.
func NewManagerFromConfig(cfg *Config) *Manager {
	m := &Manager{}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	if m.path == "" {
		return m.Get(), nil
	}
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
