package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/datacompile/internal/config"
	"github.com/JonMunkholm/datacompile/internal/core"
	"github.com/JonMunkholm/datacompile/internal/risk"
)

// =============================================================================
// Test Helpers
// =============================================================================

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Upload.MaxFileSize = 10 << 20
	cfg.Upload.Timeout = time.Minute
	cfg.Security.EnableCSP = true
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *core.Service) {
	t.Helper()
	dir := t.TempDir()
	svc, err := core.NewService(core.Options{DataDir: dir})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	store, err := risk.OpenStore(filepath.Join(dir, "risk.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	srv := NewServer(cfg, svc, store)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return srv, svc
}

func do(t *testing.T, srv *Server, method, path string, body []byte, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func createProject(t *testing.T, srv *Server, name string) {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/api/projects", []byte(`{"name":"`+name+`","description":"test"}`),
		map[string]string{"Content-Type": "application/json"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create project status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func uploadCSV(t *testing.T, srv *Server, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("files", name)
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte(content))
	mw.Close()
	return do(t, srv, http.MethodPost, "/upload", buf.Bytes(), map[string]string{"Content-Type": mw.FormDataContentType()})
}

const salesCSV = "Customer,Amount,Date\nAcme,100,2024-01-05\nGlobex,250.5,2024-02-10\nAcme,75,2024-02-11\n"

// =============================================================================
// Projects and Uploads
// =============================================================================

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	rec := do(t, srv, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	decode(t, rec, &body)
	if body["status"] != "ok" || body["risk_store"] != "ok" {
		t.Errorf("body = %v, want status ok and risk_store ok", body)
	}
}

func TestStatsWithoutProject(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	rec := do(t, srv, http.MethodGet, "/stats", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var st core.Stats
	decode(t, rec, &st)
	if !st.NoProject || st.Exists {
		t.Errorf("stats = %+v, want no_project", st)
	}
}

func TestProjectLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	createProject(t, srv, "Alpha")
	createProject(t, srv, "Beta")

	rec := do(t, srv, http.MethodPost, "/api/projects", []byte(`{"name":"Alpha"}`), nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want %d", rec.Code, http.StatusConflict)
	}

	rec = do(t, srv, http.MethodPost, "/api/projects/Alpha/select", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("select status = %d", rec.Code)
	}

	var list struct {
		Projects []core.ProjectInfo `json:"projects"`
		Current  string             `json:"current_project"`
	}
	decode(t, do(t, srv, http.MethodGet, "/api/projects", nil, nil), &list)
	if len(list.Projects) != 2 || list.Current != "Alpha" {
		t.Errorf("projects = %+v current %q, want 2 projects with Alpha current", list.Projects, list.Current)
	}

	rec = do(t, srv, http.MethodDelete, "/api/projects/Missing", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("delete missing status = %d, want 404", rec.Code)
	}
	rec = do(t, srv, http.MethodDelete, "/api/projects/Beta", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("delete status = %d, want 200", rec.Code)
	}
}

func TestNoProjectErrors(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	rec := do(t, srv, http.MethodGet, "/api/columns", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var er ErrorResponse
	decode(t, rec, &er)
	if er.Code != "PRJ001" {
		t.Errorf("code = %q, want PRJ001", er.Code)
	}

	rec = do(t, srv, http.MethodGet, "/api/columns", nil, map[string]string{"HX-Request": "true"})
	if !strings.Contains(rec.Body.String(), `class="alert alert-error"`) {
		t.Errorf("HTMX error body = %q, want alert fragment", rec.Body.String())
	}
}

func TestUploadFlow(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	createProject(t, srv, "Sales")

	rec := uploadCSV(t, srv, "jan.csv", salesCSV)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body.String())
	}
	var res core.UploadResult
	decode(t, rec, &res)
	if !res.Success || res.RowsAdded != 3 || res.TotalRows != 3 || res.Columns != 3 {
		t.Errorf("upload = %+v, want 3 rows and 3 columns", res)
	}

	rec = uploadCSV(t, srv, "notes.txt", "a,b\n1,2\n")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid type status = %d, want 400", rec.Code)
	}
	var failure uploadFailure
	decode(t, rec, &failure)
	if len(failure.FailedFiles) != 1 || !strings.Contains(failure.FailedFiles[0], "notes.txt") {
		t.Errorf("failed_files = %v, want notes.txt", failure.FailedFiles)
	}

	var st core.Stats
	decode(t, do(t, srv, http.MethodGet, "/stats", nil, nil), &st)
	if !st.Exists || st.TotalRows != 3 {
		t.Errorf("stats = %+v, want 3 rows", st)
	}

	rec = do(t, srv, http.MethodGet, "/download?format=csv", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("csv download status = %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Body.String(), "Customer,Amount,Date\n") {
		t.Errorf("csv = %q, want header without upload id", rec.Body.String())
	}

	rec = do(t, srv, http.MethodGet, "/download?format=xlsx", nil, nil)
	if rec.Code != http.StatusOK || !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Errorf("xlsx download status = %d, want a zip package", rec.Code)
	}

	var page core.UploadPage
	decode(t, do(t, srv, http.MethodGet, "/api/uploads?per_page=500", nil, nil), &page)
	if len(page.Uploads) != 1 || page.Pagination.PerPage != maxPerPage {
		t.Fatalf("uploads = %+v, want one upload and per_page capped", page)
	}

	rec = do(t, srv, http.MethodDelete, "/api/uploads/"+page.Uploads[0].ID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete upload status = %d, body %s", rec.Code, rec.Body.String())
	}
	rec = do(t, srv, http.MethodDelete, "/api/uploads/"+page.Uploads[0].ID, nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestReset(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	createProject(t, srv, "Sales")

	if rec := do(t, srv, http.MethodPost, "/reset", nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("reset without data status = %d, want 404", rec.Code)
	}
	uploadCSV(t, srv, "jan.csv", salesCSV)
	if rec := do(t, srv, http.MethodPost, "/reset", nil, nil); rec.Code != http.StatusOK {
		t.Errorf("reset status = %d, want 200", rec.Code)
	}
}

// =============================================================================
// Analytics and Reports
// =============================================================================

func TestSettingsAndDashboard(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	createProject(t, srv, "Sales")
	uploadCSV(t, srv, "jan.csv", salesCSV)

	rec := do(t, srv, http.MethodPost, "/api/settings",
		[]byte(`{"top_columns":[{"column":"Customer","display_name":"Client"}],"date_column":"Date"}`), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("save settings status = %d, body %s", rec.Code, rec.Body.String())
	}

	var ds core.DashboardStats
	decode(t, do(t, srv, http.MethodGet, "/api/dashboard-stats?start_date=2024-02-01&end_date=2024-02-28", nil, nil), &ds)
	if ds.TotalRecords != 2 {
		t.Errorf("total_records = %d, want 2", ds.TotalRecords)
	}

	var dr core.DateRange
	decode(t, do(t, srv, http.MethodGet, "/api/date-range", nil, nil), &dr)
	if dr.MinDate == nil || *dr.MinDate != "2024-01-05" {
		t.Errorf("min_date = %v, want 2024-01-05", dr.MinDate)
	}

	rec = do(t, srv, http.MethodGet, "/dashboard", nil, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Top 10 Client") {
		t.Errorf("dashboard status = %d, want the labelled top column", rec.Code)
	}

	rec = do(t, srv, http.MethodGet, "/", nil, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "jan.csv") {
		t.Errorf("index status = %d, want the upload listed", rec.Code)
	}
}

func TestReportDownloads(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	createProject(t, srv, "Sales")
	uploadCSV(t, srv, "jan.csv", salesCSV)
	do(t, srv, http.MethodPost, "/api/settings", []byte(`{"top_columns":["Customer"],"date_column":"Date"}`), nil)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"column stats", "/api/download-column-stats", http.StatusOK},
		{"filtered csv", "/api/download-filtered", http.StatusOK},
		{"top10", "/api/download-top10?column=Customer", http.StatusOK},
		{"comparison", "/api/download-comparison?column=Customer&period1_start=2024-01-01&period1_end=2024-01-31&period2_start=2024-02-01&period2_end=2024-02-28", http.StatusOK},
		{"comparison missing params", "/api/download-comparison?column=Customer", http.StatusBadRequest},
		{"top10 unknown column", "/api/download-top10?column=Nope", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, tt.path, nil, nil)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
			if tt.want == http.StatusOK && !strings.HasPrefix(rec.Header().Get("Content-Disposition"), "attachment;") {
				t.Errorf("Content-Disposition = %q, want attachment", rec.Header().Get("Content-Disposition"))
			}
		})
	}
}

// =============================================================================
// Tasks and Risk Scans
// =============================================================================

func TestRiskScan(t *testing.T) {
	srv, svc := newTestServer(t, testConfig())
	createProject(t, srv, "Sales")

	if rec := do(t, srv, http.MethodPost, "/api/risk-scan", nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("scan without data status = %d, want 404", rec.Code)
	}
	uploadCSV(t, srv, "jan.csv", salesCSV)

	rec := do(t, srv, http.MethodPost, "/api/risk-scan", nil, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("scan status = %d, body %s", rec.Code, rec.Body.String())
	}
	var started struct {
		TaskID string `json:"task_id"`
	}
	decode(t, rec, &started)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	task, err := svc.Tasks().Wait(ctx, started.TaskID)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if task.Status != core.TaskCompleted {
		t.Fatalf("task = %+v, want completed", task)
	}

	var tr core.Task
	decode(t, do(t, srv, http.MethodGet, "/api/background-tasks/"+started.TaskID, nil, nil), &tr)
	if tr.Type != TaskRiskScan {
		t.Errorf("task type = %q, want %q", tr.Type, TaskRiskScan)
	}

	var scans struct {
		Scans []risk.Scan `json:"scans"`
	}
	decode(t, do(t, srv, http.MethodGet, "/api/risk-scans", nil, nil), &scans)
	if len(scans.Scans) != 1 || scans.Scans[0].TotalRows != 3 {
		t.Fatalf("scans = %+v, want one scan over 3 rows", scans.Scans)
	}

	rec = do(t, srv, http.MethodGet, "/api/risk-scans/"+scans.Scans[0].ID+"/findings", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("findings status = %d, want 200", rec.Code)
	}
	rec = do(t, srv, http.MethodGet, "/api/risk-scans/unknown/findings", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown scan status = %d, want 404", rec.Code)
	}

	var audit struct {
		Entries []core.AuditEntry `json:"entries"`
	}
	decode(t, do(t, srv, http.MethodGet, "/api/audit-log", nil, nil), &audit)
	if len(audit.Entries) == 0 || audit.Entries[0].Action != core.ActionRiskScan {
		t.Errorf("newest audit entry = %+v, want %s", audit.Entries, core.ActionRiskScan)
	}
}

func TestUnknownTask(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	if rec := do(t, srv, http.MethodGet, "/api/background-tasks/nope", nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if rec := do(t, srv, http.MethodPost, "/api/clear-cache", nil, nil); rec.Code != http.StatusOK {
		t.Errorf("clear-cache status = %d, want 200", rec.Code)
	}
}

// =============================================================================
// Middleware Wiring
// =============================================================================

func TestAPIKeyRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RequireAPIKey = true
	cfg.Security.APIKeys = []string{"secret"}
	srv, _ := newTestServer(t, cfg)

	if rec := do(t, srv, http.MethodGet, "/api/projects", nil, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("without key status = %d, want 401", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/api/projects", nil, map[string]string{"X-API-Key": "secret"}); rec.Code != http.StatusOK {
		t.Errorf("with key status = %d, want 200", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/healthz", nil, nil); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", rec.Code)
	}
}

func TestRateLimitEnabled(t *testing.T) {
	cfg := testConfig()
	cfg.Rate.Enabled = true
	cfg.Rate.RequestsPerMinute = 2
	cfg.Rate.UploadLimit = 1
	srv, _ := newTestServer(t, cfg)

	codes := make([]int, 3)
	for i := range codes {
		codes[i] = do(t, srv, http.MethodGet, "/stats", nil, nil).Code
	}
	if codes[0] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want 200 first and 429 third", codes)
	}
}

func TestRateLimitUploads(t *testing.T) {
	cfg := testConfig()
	cfg.Rate.Enabled = true
	cfg.Rate.RequestsPerMinute = 100
	cfg.Rate.UploadLimit = 1
	srv, _ := newTestServer(t, cfg)

	if rec := do(t, srv, http.MethodPost, "/upload", nil, nil); rec.Code == http.StatusTooManyRequests {
		t.Errorf("first upload status = %d, want it through the limit", rec.Code)
	}
	if rec := do(t, srv, http.MethodPost, "/upload", nil, nil); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second upload status = %d, want 429", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/healthz", nil, nil); rec.Code != http.StatusOK {
		t.Errorf("healthz after upload limit = %d, want 200", rec.Code)
	}
}
