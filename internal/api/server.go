package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"riskwatch/internal/activity"
	"riskwatch/internal/config"
	"riskwatch/internal/service"
)

// Server exposes completed run results to the reporting layer.
// Read-only: nothing here mutates engine state.
type Server struct {
	svc     *service.Service
	logger  *slog.Logger
	version string
}

type statusResponse struct {
	Status  string             `json:"status"`
	Time    string             `json:"time"`
	Version string             `json:"version"`
	Rules   int                `json:"rules"`
	Users   int                `json:"users"`
	LastRun *service.RunResult `json:"last_run,omitempty"`
}

func Start(ctx context.Context, cfg config.APIConfig, svc *service.Service, logger *slog.Logger, version string) *http.Server {
	if !cfg.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", cfg.Addr)
	}
	server := &Server{svc: svc, logger: logger, version: version}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/users", server.handleUsers)
	mux.HandleFunc("/users/summary", server.handleSummary)
	mux.HandleFunc("/users/warnings.csv", server.handleCSV)
	mux.HandleFunc("/highrisk", server.handleHighRisk)
	mux.HandleFunc("/warnings", server.handleWarnings)

	httpServer := &http.Server{Addr: cfg.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, statusResponse{
		Status:  "ok",
		Time:    time.Now().UTC().Format(time.RFC3339),
		Version: s.version,
		Rules:   s.svc.RuleCount(),
		Users:   len(s.svc.UserIDs()),
		LastRun: s.svc.LastRun(),
	})
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.svc.UserIDs())
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	userID := r.URL.Query().Get("user_id")
	summary, ok := s.svc.Summary(userID)
	if !ok {
		http.Error(w, "unknown user", http.StatusNotFound)
		return
	}
	writeJSON(w, summary)
}

func (s *Server) handleCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	userID := r.URL.Query().Get("user_id")
	rows := s.svc.CSVRows(userID)
	if rows == nil {
		http.Error(w, "unknown user", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	cw := csv.NewWriter(w)
	_ = cw.Write(activity.CSVHeader())
	_ = cw.WriteAll(rows)
}

func (s *Server) handleHighRisk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	threshold := 0.0
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			http.Error(w, "invalid threshold", http.StatusBadRequest)
			return
		}
		threshold = v
	}
	writeJSON(w, s.svc.HighRiskUsers(threshold))
}

func (s *Server) handleWarnings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.svc.Warnings())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
