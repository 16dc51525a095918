package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"aquaguard/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/aquaguard?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS predictions (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			site_id TEXT NOT NULL,
			status TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			turbidity_ntu DOUBLE PRECISION NOT NULL,
			ph DOUBLE PRECISION NOT NULL,
			compliance_score DOUBLE PRECISION NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_site_ts ON predictions(site_id, ts)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			site_id TEXT NOT NULL,
			severity TEXT NOT NULL,
			message TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts)`,
		`CREATE TABLE IF NOT EXISTS call_logs (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			phone_number TEXT NOT NULL,
			status TEXT NOT NULL,
			contamination_score DOUBLE PRECISION NOT NULL,
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

func (s *postgresStore) SavePrediction(ctx context.Context, r model.Reading) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO predictions (ts, site_id, status, confidence, turbidity_ntu, ph, compliance_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
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

func (s *postgresStore) SaveAlert(ctx context.Context, alert model.Alert) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (ts, site_id, severity, message) VALUES ($1, $2, $3, $4)`,
		alert.Timestamp.UTC(),
		alert.SiteID,
		string(alert.Severity),
		alert.Message,
	)
	return err
}

func (s *postgresStore) SaveCallAttempt(ctx context.Context, attempt model.CallAttempt) error {
	if s.db == nil {
		return nil
	}
	ts := attempt.Timestamp
	if ts.IsZero() {
		ts = nowUTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO call_logs (ts, phone_number, status, contamination_score, site_id)
		VALUES ($1, $2, $3, $4, $5)`,
		ts.UTC(),
		attempt.PhoneNumber,
		string(attempt.Status),
		attempt.ContaminationScore,
		attempt.SiteID,
	)
	return err
}
