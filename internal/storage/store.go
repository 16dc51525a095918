package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"aquaguard/internal/config"
	"aquaguard/internal/model"
)

type Store interface {
	Init(ctx context.Context) error
	Close() error
	SavePrediction(ctx context.Context, r model.Reading) error
	SaveAlert(ctx context.Context, alert model.Alert) error
	SaveCallAttempt(ctx context.Context, attempt model.CallAttempt) error
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
