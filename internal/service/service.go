package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"riskwatch/internal/activity"
	"riskwatch/internal/anomaly"
	"riskwatch/internal/config"
	"riskwatch/internal/correlate"
	"riskwatch/internal/engine"
	"riskwatch/internal/fetch"
	"riskwatch/internal/geo"
	"riskwatch/internal/model"
	"riskwatch/internal/rules"
	"riskwatch/internal/storage"
)

// LoginHistory is one user's ordered login records, loaded in bulk
// before analysis.
type LoginHistory struct {
	UserID   string
	Username string
	Records  []model.LoginRecord
}

// RunResult summarizes one completed batch run.
type RunResult struct {
	RunID         string                      `json:"run_id"`
	RowsProcessed int                         `json:"rows_processed"`
	UsersAnalyzed int                         `json:"users_analyzed"`
	WarningCount  int                         `json:"warning_count"`
	Correlations  map[string]correlate.Result `json:"correlations"`
	HighRisk      []correlate.Result          `json:"high_risk"`
}

// Service wires the detection pipeline for one batch: fetch rows,
// evaluate rules, derive anomalies, score, correlate, persist.
type Service struct {
	cfg        *config.Config
	logger     *slog.Logger
	catalog    *rules.Catalog
	engine     *engine.Engine
	detector   *anomaly.Detector
	activities *activity.Store
	correlator *correlate.Engine
	runner     *fetch.Runner
	store      storage.Store

	lastRun *RunResult
}

func New(cfg *config.Config, resolver geo.Resolver, store storage.Store, logger *slog.Logger) (*Service, error) {
	catalog := rules.DefaultCatalog()
	registry := rules.NewRegistry(cfg.Detection.AllowedIPs)
	if err := catalog.ApplyOverrides(cfg.Rules.Overrides, registry, logger); err != nil {
		return nil, err
	}
	return &Service{
		cfg:        cfg,
		logger:     logger,
		catalog:    catalog,
		engine:     engine.New(catalog, registry, logger),
		detector:   anomaly.NewDetector(resolver, logger),
		activities: activity.NewStore(),
		correlator: correlate.New(cfg.Correlation, logger),
		runner:     fetch.NewRunner(cfg.Fetch.Concurrency, logger),
		store:      store,
	}, nil
}

// LoadLoginHistory registers the monitored users and their login
// records. Must be called before Run.
func (s *Service) LoadLoginHistory(histories []LoginHistory) error {
	for _, h := range histories {
		if err := s.activities.AddLoginHistory(h.UserID, h.Username, h.Records); err != nil {
			return err
		}
	}
	return nil
}

// Run executes one batch. Preconditions are checked before any row is
// processed; everything past that point degrades instead of aborting,
// so a run with partial failures still yields a usable report.
func (s *Service) Run(ctx context.Context, sources []fetch.Source) (*RunResult, error) {
	if s.catalog.Len() == 0 {
		return nil, errors.New("no rules loaded")
	}
	if s.activities.Len() == 0 {
		return nil, errors.New("no users to monitor")
	}
	runID := uuid.NewString()
	s.logger.Info("starting run", "run_id", runID, "sources", len(sources), "users", s.activities.Len())

	rows := s.runner.Run(ctx, sources, func(ev model.Event) {
		for _, w := range s.engine.Evaluate(ev) {
			s.activities.AddWarning(w)
			s.persist(func() error { return s.store.SaveWarning(ctx, runID, w) }, "warning", w.UserID)
		}
	})

	for _, userID := range s.activities.UserIDs() {
		anomalies := s.detector.Analyze(userID, s.activities.Logins(userID))
		s.activities.ReplaceAnomalies(userID, anomalies)
		s.persist(func() error { return s.store.SaveAnomalies(ctx, runID, userID, anomalies) }, "anomalies", userID)
	}

	correlations := s.correlator.AnalyzeAll(s.activities)
	highRisk := s.correlator.HighRiskUsers(s.cfg.Correlation.HighRiskThreshold)

	warningCount := 0
	for _, userID := range s.activities.UserIDs() {
		sum, ok := s.activities.Summary(userID)
		if !ok {
			continue
		}
		for _, n := range sum.WarningCounts {
			warningCount += n
		}
		s.persist(func() error { return s.store.SaveSummary(ctx, runID, sum) }, "summary", userID)
	}
	s.persist(func() error { return s.store.SaveHighRisk(ctx, runID, highRisk) }, "high_risk", "")

	result := &RunResult{
		RunID:         runID,
		RowsProcessed: rows,
		UsersAnalyzed: s.activities.Len(),
		WarningCount:  warningCount,
		Correlations:  correlations,
		HighRisk:      highRisk,
	}
	s.lastRun = result
	s.logger.Info("run complete",
		"run_id", runID,
		"rows", rows,
		"warnings", warningCount,
		"high_risk_users", len(highRisk),
	)
	return result, nil
}

// persist runs a storage write when storage is configured; failures
// are logged and never abort the run.
func (s *Service) persist(write func() error, kind, userID string) {
	if s.store == nil {
		return
	}
	if err := write(); err != nil && s.logger != nil {
		s.logger.Warn("storage write failed", "kind", kind, "user_id", userID, "err", err)
	}
}

func (s *Service) Summary(userID string) (activity.Summary, bool) {
	return s.activities.Summary(userID)
}

func (s *Service) CSVRows(userID string) [][]string {
	return s.activities.CSVRows(userID)
}

func (s *Service) HighRiskUsers(threshold float64) []correlate.Result {
	return s.correlator.HighRiskUsers(threshold)
}

func (s *Service) Warnings() []model.Warning {
	return s.engine.Warnings()
}

func (s *Service) UserIDs() []string {
	return s.activities.UserIDs()
}

func (s *Service) RuleCount() int {
	return s.catalog.Len()
}

func (s *Service) LastRun() *RunResult {
	return s.lastRun
}

// Describe renders a short status line for logs and the API.
func (s *Service) Describe() string {
	return fmt.Sprintf("%d rules, %d users", s.catalog.Len(), s.activities.Len())
}
