package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"riskwatch/internal/activity"
	"riskwatch/internal/correlate"
	"riskwatch/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:riskwatch.db?_pragma=busy_timeout(5000)"
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
		`CREATE TABLE IF NOT EXISTS warnings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			ts TEXT NOT NULL,
			user_id TEXT NOT NULL,
			date TEXT NOT NULL,
			event_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			message TEXT NOT NULL,
			session_key TEXT,
			client_ip TEXT,
			context_json TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_warnings_run_user ON warnings(run_id, user_id)`,
		`CREATE TABLE IF NOT EXISTS anomalies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			type TEXT NOT NULL,
			severity TEXT NOT NULL,
			description TEXT NOT NULL,
			ts TEXT,
			multiplier REAL NOT NULL,
			details_json TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_anomalies_run_user ON anomalies(run_id, user_id)`,
		`CREATE TABLE IF NOT EXISTS summaries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			username TEXT,
			total_logins INTEGER NOT NULL,
			unique_days INTEGER NOT NULL,
			risk_score INTEGER NOT NULL,
			risk_level TEXT NOT NULL,
			warning_counts_json TEXT,
			factors_json TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_summaries_run ON summaries(run_id)`,
		`CREATE TABLE IF NOT EXISTS high_risk (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			score REAL NOT NULL,
			records_json TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_high_risk_run ON high_risk(run_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) SaveWarning(ctx context.Context, runID string, w model.Warning) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO warnings (run_id, ts, user_id, date, event_type, severity, message, session_key, client_ip, context_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		w.Timestamp.UTC(),
		w.UserID,
		w.Date,
		w.EventType,
		string(w.Severity),
		w.Message,
		w.SessionKey,
		w.ClientIP,
		encodeJSON(w.Context),
	)
	return err
}

func (s *sqliteStore) SaveAnomalies(ctx context.Context, runID, userID string, anomalies []model.Anomaly) error {
	if s.db == nil || userID == "" || len(anomalies) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO anomalies (run_id, user_id, type, severity, description, ts, multiplier, details_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, an := range anomalies {
		if _, err := stmt.ExecContext(ctx,
			runID,
			userID,
			string(an.Type),
			string(an.Severity),
			an.Description,
			an.Timestamp.UTC(),
			an.Multiplier,
			encodeJSON(an.Details),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) SaveSummary(ctx context.Context, runID string, sum activity.Summary) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO summaries (run_id, user_id, username, total_logins, unique_days, risk_score, risk_level, warning_counts_json, factors_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		sum.UserID,
		sum.Username,
		sum.LoginStats.TotalLogins,
		sum.LoginStats.UniqueDays,
		sum.RiskScore,
		string(sum.RiskLevel),
		encodeJSON(sum.WarningCounts),
		encodeJSON(sum.RiskFactors),
	)
	return err
}

func (s *sqliteStore) SaveHighRisk(ctx context.Context, runID string, results []correlate.Result) error {
	if s.db == nil || len(results) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO high_risk (run_id, user_id, score, records_json) VALUES (?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, res := range results {
		if _, err := stmt.ExecContext(ctx, runID, res.UserID, res.Score, encodeJSON(res.Records)); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
