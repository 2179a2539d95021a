package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"riskwatch/internal/activity"
	"riskwatch/internal/config"
	"riskwatch/internal/correlate"
	"riskwatch/internal/model"
)

// Store persists the outputs of a run, keyed by run id. Counters and
// other engine-internal state are never persisted; each run starts
// clean.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveWarning(ctx context.Context, runID string, w model.Warning) error
	SaveAnomalies(ctx context.Context, runID, userID string, anomalies []model.Anomaly) error
	SaveSummary(ctx context.Context, runID string, s activity.Summary) error
	SaveHighRisk(ctx context.Context, runID string, results []correlate.Result) error
}

// NewStore returns nil without error when storage is disabled.
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

func encodeJSON(value any) string {
	data, _ := json.Marshal(value)
	return string(data)
}
