package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"aquaguard/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:aquaguard.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS predictions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			site_id TEXT NOT NULL,
			status TEXT NOT NULL,
			confidence REAL NOT NULL,
			turbidity_ntu REAL NOT NULL,
			ph REAL NOT NULL,
			compliance_score REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_site_ts ON predictions(site_id, ts)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			site_id TEXT NOT NULL,
			severity TEXT NOT NULL,
			message TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts)`,
		`CREATE TABLE IF NOT EXISTS call_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			phone_number TEXT NOT NULL,
			status TEXT NOT NULL,
			contamination_score REAL NOT NULL,
			site_id TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_call_logs_site_ts ON call_logs(site_id, ts)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) SavePrediction(ctx context.Context, r model.Reading) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO predictions (ts, site_id, status, confidence, turbidity_ntu, ph, compliance_score)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.Timestamp.UTC(),
		r.SiteID,
		string(r.Status),
		r.Confidence,
		r.TurbidityNTU,
		r.PH,
		r.ComplianceScore,
	)
	return err
}

func (s *sqliteStore) SaveAlert(ctx context.Context, alert model.Alert) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (ts, site_id, severity, message) VALUES (?, ?, ?, ?)`,
		alert.Timestamp.UTC(),
		alert.SiteID,
		string(alert.Severity),
		alert.Message,
	)
	return err
}

func (s *sqliteStore) SaveCallAttempt(ctx context.Context, attempt model.CallAttempt) error {
	if s.db == nil {
		return nil
	}
	ts := attempt.Timestamp
	if ts.IsZero() {
		ts = nowUTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO call_logs (ts, phone_number, status, contamination_score, site_id)
		VALUES (?, ?, ?, ?, ?)`,
		ts.UTC(),
		attempt.PhoneNumber,
		string(attempt.Status),
		attempt.ContaminationScore,
		attempt.SiteID,
	)
	return err
}
