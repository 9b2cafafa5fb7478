package web

// Read-only views over the consolidated table: stats, analytics and report
// downloads.

import (
	"bytes"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/datacompile/internal/core"
)

// defaultTopN is the number of trend groups when top_n is absent.
const defaultTopN = 10

// handleStats describes the current project's table. Without a selected
// project it answers no_project rather than an error.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	project, err := s.service.CurrentProject()
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	stats, err := s.service.Stats(project)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, stats)
}

// handleDownload serves the consolidated table as a spreadsheet (default)
// or as CSV.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	project, ok := s.currentProject(w, r)
	if !ok {
		return
	}
	base := core.SafeFilename(project) + "_consolidated_data"

	switch format := strings.ToLower(r.URL.Query().Get("format")); format {
	case "", "xlsx":
		path, err := s.service.ExportXLSX(r.Context(), project)
		if err != nil {
			s.respondError(w, r, err, 0)
			return
		}
		w.Header().Set("Content-Type", core.ContentTypeXLSX)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", base+".xlsx"))
		http.ServeFile(w, r, filepath.Clean(path))
	case "csv":
		var buf bytes.Buffer
		if err := s.service.ExportCSV(project, &buf); err != nil {
			s.respondError(w, r, err, 0)
			return
		}
		writeReport(w, &core.Report{Filename: base + ".csv", ContentType: core.ContentTypeCSV, Data: buf.Bytes()})
	default:
		s.respondError(w, r, fmt.Errorf("%w: unknown format %q", core.ErrInvalidArgument, format), http.StatusBadRequest)
	}
}

func (s *Server) handleColumns(w http.ResponseWriter, r *http.Request) {
	project, ok := s.currentProject(w, r)
	if !ok {
		return
	}
	info, err := s.service.Columns(project)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, info)
}

func (s *Server) handleDataSummary(w http.ResponseWriter, r *http.Request) {
	project, ok := s.currentProject(w, r)
	if !ok {
		return
	}
	sum, err := s.service.DataSummary(project)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, sum)
}

func (s *Server) handleDateRange(w http.ResponseWriter, r *http.Request) {
	project, ok := s.currentProject(w, r)
	if !ok {
		return
	}
	dr, err := s.service.DateRange(project)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, dr)
}

func (s *Server) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	project, ok := s.currentProject(w, r)
	if !ok {
		return
	}
	stats, err := s.service.DashboardStats(project, dateFilter(r, "start_date", "end_date"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, stats)
}

func compareRequest(r *http.Request) core.CompareRequest {
	return core.CompareRequest{
		Column:  r.URL.Query().Get("column"),
		Period1: dateFilter(r, "period1_start", "period1_end"),
		Period2: dateFilter(r, "period2_start", "period2_end"),
	}
}

func advancedRequest(r *http.Request) core.AdvancedRequest {
	q := r.URL.Query()
	return core.AdvancedRequest{
		DateColumn:  q.Get("date_column"),
		GroupColumn: q.Get("group_column"),
		ValueColumn: q.Get("value_column"),
		AggMethod:   q.Get("agg_method"),
		Period1:     dateFilter(r, "period1_start", "period1_end"),
		Period2:     dateFilter(r, "period2_start", "period2_end"),
	}
}

func trendRequest(r *http.Request) core.TrendRequest {
	q := r.URL.Query()
	return core.TrendRequest{
		Range:          dateFilter(r, "start_date", "end_date"),
		TrendRange:     dateFilter(r, "trend_start", "trend_end"),
		GroupColumn:    q.Get("group_column"),
		ValueColumn:    q.Get("value_column"),
		AggMethod:      q.Get("agg_method"),
		TopN:           parseIntParam(r, "top_n", defaultTopN),
		SpecificGroups: splitList(q.Get("groups")),
		BaselineMonth:  q.Get("baseline_month"),
	}
}

func (s *Server) handleCompareColumn(w http.ResponseWriter, r *http.Request) {
	project, ok := s.currentProject(w, r)
	if !ok {
		return
	}
	res, err := s.service.CompareColumn(project, compareRequest(r))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleAdvancedAnalysis(w http.ResponseWriter, r *http.Request) {
	project, ok := s.currentProject(w, r)
	if !ok {
		return
	}
	res, err := s.service.AdvancedAnalysis(project, advancedRequest(r))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleColumnStats(w http.ResponseWriter, r *http.Request) {
	project, ok := s.currentProject(w, r)
	if !ok {
		return
	}
	res, err := s.service.ColumnStats(project)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleTrendLine(w http.ResponseWriter, r *http.Request) {
	project, ok := s.currentProject(w, r)
	if !ok {
		return
	}
	res, err := s.service.TrendLine(project, trendRequest(r))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, res)
}

// reportHandler adapts a report builder to a download route.
func (s *Server) reportHandler(build func(project string, r *http.Request) (*core.Report, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project, ok := s.currentProject(w, r)
		if !ok {
			return
		}
		rep, err := build(project, r)
		if err != nil {
			s.respondError(w, r, err, 0)
			return
		}
		writeReport(w, rep)
	}
}

func (s *Server) handleDownloadComparison(w http.ResponseWriter, r *http.Request) {
	s.reportHandler(func(project string, r *http.Request) (*core.Report, error) {
		return s.service.ComparisonReport(project, compareRequest(r))
	})(w, r)
}

func (s *Server) handleDownloadAdvanced(w http.ResponseWriter, r *http.Request) {
	s.reportHandler(func(project string, r *http.Request) (*core.Report, error) {
		return s.service.AdvancedReport(project, advancedRequest(r))
	})(w, r)
}

func (s *Server) handleDownloadColumnStats(w http.ResponseWriter, r *http.Request) {
	s.reportHandler(func(project string, _ *http.Request) (*core.Report, error) {
		return s.service.ColumnStatsReport(project)
	})(w, r)
}

func (s *Server) handleDownloadTrendLine(w http.ResponseWriter, r *http.Request) {
	s.reportHandler(func(project string, r *http.Request) (*core.Report, error) {
		return s.service.TrendReport(project, trendRequest(r))
	})(w, r)
}

func (s *Server) handleDownloadFiltered(w http.ResponseWriter, r *http.Request) {
	s.reportHandler(func(project string, r *http.Request) (*core.Report, error) {
		return s.service.FilteredReport(project, dateFilter(r, "start_date", "end_date"), r.URL.Query().Get("format"))
	})(w, r)
}

func (s *Server) handleDownloadTop10(w http.ResponseWriter, r *http.Request) {
	s.reportHandler(func(project string, r *http.Request) (*core.Report, error) {
		q := r.URL.Query()
		return s.service.Top10Report(project, q.Get("column"), q.Get("display_name"), dateFilter(r, "start_date", "end_date"))
	})(w, r)
}
