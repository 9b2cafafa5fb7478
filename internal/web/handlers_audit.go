package web

// Audit trail and risk scans.

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/datacompile/internal/core"
	"github.com/JonMunkholm/datacompile/internal/logging"
	"github.com/JonMunkholm/datacompile/internal/risk"
)

// TaskRiskScan is the background task type of a risk scan.
const TaskRiskScan = "RISK_SCAN"

var errRiskDisabled = errors.New("risk scan storage is not configured")

func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	project, ok := s.currentProject(w, r)
	if !ok {
		return
	}
	entries, err := s.service.AuditLog(r.Context(), project)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	if entries == nil {
		entries = []core.AuditEntry{}
	}
	writeJSON(w, map[string]any{"entries": entries, "total": len(entries)})
}

func (s *Server) requireRisk(w http.ResponseWriter, r *http.Request) bool {
	if s.risk == nil {
		s.respondError(w, r, errRiskDisabled, http.StatusServiceUnavailable)
		return false
	}
	return true
}

// handleStartRiskScan runs the risk checks over the current table in the
// background and answers with the task id. The scan is stored and audited
// when it completes.
func (s *Server) handleStartRiskScan(w http.ResponseWriter, r *http.Request) {
	if !s.requireRisk(w, r) {
		return
	}
	project, ok := s.currentProject(w, r)
	if !ok {
		return
	}
	table, err := s.service.Table(project)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	st, err := s.service.Settings(project)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	store := s.risk
	id := s.service.Tasks().Start(withClient(r), TaskRiskScan, fmt.Sprintf("Risk scan of %s", project),
		func(ctx context.Context, report func(int)) (any, error) {
			report(10)
			rep := risk.Run(table, st)
			report(80)
			scan, err := store.SaveScan(ctx, project, rep)
			if err != nil {
				return nil, err
			}
			s.service.Record(ctx, project, core.ActionRiskScan,
				fmt.Sprintf("%d finding(s): %d high, %d medium, %d low", scan.Findings, scan.High, scan.Medium, scan.Low))
			logging.WithFields(ctx, "project", project, "scan_id", scan.ID).Info("risk scan stored", "findings", scan.Findings)
			return scan, nil
		})

	writeJSONStatus(w, http.StatusAccepted, map[string]any{"task_id": id, "status": core.TaskRunning})
}

func (s *Server) handleListRiskScans(w http.ResponseWriter, r *http.Request) {
	if !s.requireRisk(w, r) {
		return
	}
	project, ok := s.currentProject(w, r)
	if !ok {
		return
	}
	limit := parseIntParam(r, "limit", risk.DefaultScanLimit)
	if limit == 0 {
		limit = risk.DefaultScanLimit
	}
	scans, err := s.risk.ListScans(r.Context(), project, limit)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	if scans == nil {
		scans = []risk.Scan{}
	}
	writeJSON(w, map[string]any{"scans": scans})
}

func (s *Server) handleRiskFindings(w http.ResponseWriter, r *http.Request) {
	if !s.requireRisk(w, r) {
		return
	}
	id := chi.URLParam(r, "id")
	findings, err := s.risk.Findings(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	if findings == nil {
		findings = []risk.Finding{}
	}
	writeJSON(w, map[string]any{"scan_id": id, "findings": findings})
}
