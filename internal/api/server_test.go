package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aquaguard/internal/alerts"
	"aquaguard/internal/config"
	"aquaguard/internal/fanout"
	"aquaguard/internal/incident"
	"aquaguard/internal/model"
	"aquaguard/internal/sitestate"
)

func testServer() *Server {
	cfg := config.DefaultConfig()
	return &Server{
		cfg:     config.NewManagerFromConfig(cfg),
		alerts:  alerts.NewStore(10),
		sites:   sitestate.NewStore(10),
		tracker: incident.NewTracker(cfg.Incident, nil),
		hub:     fanout.NewHub(4),
		version: "test",
		started: time.Now().UTC(),
	}
}

func TestStatusEndpoint(t *testing.T) {
	s := testServer()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.handleStatus(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad status body: %v", err)
	}
	if resp.Status != "ok" || resp.Version != "test" {
		t.Fatalf("unexpected status response: %+v", resp)
	}
}

func TestAlertsEndpointLimit(t *testing.T) {
	s := testServer()
	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		s.alerts.Add(model.Alert{Timestamp: now, SiteID: "SITE-01", Severity: model.SeverityWarning, Message: "x"})
	}
	req := httptest.NewRequest(http.MethodGet, "/alerts?limit=2", nil)
	rec := httptest.NewRecorder()
	s.handleAlerts(rec, req)
	var got []model.Alert
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("bad alerts body: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(got))
	}
}

func TestIncidentsEndpoint(t *testing.T) {
	s := testServer()
	s.tracker.Observe(model.Reading{
		Timestamp:    time.Now().UTC(),
		SiteID:       "SITE-01",
		Status:       model.StatusPollutant,
		Confidence:   99,
		TurbidityNTU: 99.9,
	})
	req := httptest.NewRequest(http.MethodGet, "/incidents", nil)
	rec := httptest.NewRecorder()
	s.handleIncidents(rec, req)
	var got []incident.SiteSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("bad incidents body: %v", err)
	}
	if len(got) != 1 || !got[0].InIncident {
		t.Fatalf("expected one active incident, got %v", got)
	}
}

func TestAdminClearEmptiesAlertHistory(t *testing.T) {
	s := testServer()
	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		s.alerts.Add(model.Alert{Timestamp: now, SiteID: "SITE-01", Severity: model.SeverityCritical, Message: "x"})
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/clear", nil)
	rec := httptest.NewRecorder()
	s.handleClear(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", rec.Code)
	}
	if len(s.alerts.List(0)) != 3 {
		t.Fatalf("GET must not clear alerts")
	}

	req = httptest.NewRequest(http.MethodPost, "/admin/clear", nil)
	rec = httptest.NewRecorder()
	s.handleClear(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := s.alerts.List(0); len(got) != 0 {
		t.Fatalf("expected empty alert history, got %v", got)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := testServer()
	req := httptest.NewRequest(http.MethodPost, "/status", nil)
	rec := httptest.NewRecorder()
	s.handleStatus(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
