package core

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
)

// salesFixture uploads six rows over three months and configures the date
// column.
func salesFixture(t *testing.T) *Service {
	t.Helper()
	svc := newTestService(t)
	mustUpload(t, svc, csvFile("sales.csv",
		"Date,Vendor,Region,Amount",
		"2024-01-05,Acme,East,100",
		"2024-01-20,Globex,West,50",
		"2024-02-03,Acme,East,200",
		"2024-02-15,Acme,West,25",
		"2024-03-01,Initech,East,10",
		"2024-03-09,Globex,,40",
	))
	err := svc.SaveSettings(context.Background(), "Sales", Settings{
		TopColumns: []TopColumn{{Column: "Vendor", DisplayName: "Supplier"}, {Column: "Missing"}},
		DateColumn: "Date",
	})
	if err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	return svc
}

var (
	january  = DateFilter{Start: "2024-01-01", End: "2024-01-31"}
	february = DateFilter{Start: "2024-02-01", End: "2024-02-29"}
	march    = DateFilter{Start: "2024-03-01", End: "2024-03-31"}
)

// ============================================================================
// Stats / Columns Tests
// ============================================================================

func TestStats(t *testing.T) {
	svc := newTestService(t)

	st, err := svc.Stats("")
	if err != nil || !st.NoProject || st.Exists {
		t.Errorf("Stats(\"\") = %+v, %v, want no_project", st, err)
	}
	st, err = svc.Stats("Sales")
	if err != nil || st.Exists {
		t.Errorf("Stats before upload = %+v, %v, want exists false", st, err)
	}

	mustUpload(t, svc, csvFile("a.csv", "Vendor,Amount", "Acme,1"))
	st, err = svc.Stats("Sales")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if !st.Exists || st.TotalRows != 1 || st.TotalColumns != 2 || st.FileSize == 0 {
		t.Errorf("Stats = %+v", st)
	}
	if slices.Contains(st.Columns, UploadIDColumn) {
		t.Errorf("Columns include %s", UploadIDColumn)
	}
}

func TestColumns_DetectsRoles(t *testing.T) {
	svc := salesFixture(t)

	info, err := svc.Columns("Sales")
	if err != nil {
		t.Fatalf("Columns: %v", err)
	}
	if got := strings.Join(info.Columns, ","); got != "Date,Vendor,Region,Amount" {
		t.Errorf("Columns = %s", got)
	}
	if !slices.Equal(info.DateColumns, []string{"Date"}) {
		t.Errorf("DateColumns = %v, want [Date]", info.DateColumns)
	}
	if !slices.Equal(info.NumericColumns, []string{"Amount"}) {
		t.Errorf("NumericColumns = %v, want [Amount]", info.NumericColumns)
	}

	again, _ := svc.Columns("Sales")
	if again != info {
		t.Errorf("second call should be served from cache")
	}
}

func TestDataSummary(t *testing.T) {
	svc := salesFixture(t)

	sum, err := svc.DataSummary("Sales")
	if err != nil {
		t.Fatalf("DataSummary: %v", err)
	}
	if sum.TotalRows != 6 || sum.TotalColumns != 4 || sum.FileCount != 1 {
		t.Errorf("DataSummary = %+v", sum)
	}
	if !strings.HasSuffix(sum.FileSize, "B") {
		t.Errorf("FileSize = %q", sum.FileSize)
	}
	want := map[string]ColumnSummary{
		"Date":   {Name: "Date", Dtype: "Text", NonNull: 100},
		"Region": {Name: "Region", Dtype: "Text", NonNull: 83.3},
		"Amount": {Name: "Amount", Dtype: "Integer", NonNull: 100},
	}
	for _, c := range sum.ColumnInfo {
		if w, ok := want[c.Name]; ok && c != w {
			t.Errorf("column %s = %+v, want %+v", c.Name, c, w)
		}
	}
}

func TestHumanSize(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{3 * 1024 * 1024, "3.0 MB"},
	}
	for _, tt := range tests {
		if got := humanSize(tt.n); got != tt.want {
			t.Errorf("humanSize(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestDateRange(t *testing.T) {
	svc := salesFixture(t)

	dr, err := svc.DateRange("Sales")
	if err != nil {
		t.Fatalf("DateRange: %v", err)
	}
	if dr.MinDate == nil || *dr.MinDate != "2024-01-05" || dr.MaxDate == nil || *dr.MaxDate != "2024-03-09" {
		t.Errorf("DateRange = %v to %v", dr.MinDate, dr.MaxDate)
	}

	if err := svc.SaveSettings(context.Background(), "Sales", Settings{}); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	if _, err := svc.DateRange("Sales"); !errors.Is(err, ErrNoDateColumn) {
		t.Errorf("DateRange without date column = %v, want ErrNoDateColumn", err)
	}
}

func TestDashboardStats(t *testing.T) {
	svc := salesFixture(t)

	ds, err := svc.DashboardStats("Sales", DateFilter{Start: "2024-01-01", End: "2024-02-29"})
	if err != nil {
		t.Fatalf("DashboardStats: %v", err)
	}
	if ds.TotalRecords != 4 {
		t.Errorf("TotalRecords = %d, want 4", ds.TotalRecords)
	}
	if len(ds.TopData) != 1 || ds.TopData[0].Column != "Vendor" {
		t.Fatalf("TopData = %+v, want Vendor only", ds.TopData)
	}
	want := []ValueCount{{"Acme", 3}, {"Globex", 1}}
	if !slices.Equal(ds.TopData[0].Values, want) {
		t.Errorf("Vendor top = %v, want %v", ds.TopData[0].Values, want)
	}

	all, err := svc.DashboardStats("Sales", DateFilter{})
	if err != nil {
		t.Fatalf("DashboardStats: %v", err)
	}
	if all.TotalRecords != 6 {
		t.Errorf("unfiltered TotalRecords = %d, want 6", all.TotalRecords)
	}

	if _, err := svc.DashboardStats("Sales", DateFilter{Start: "soon", End: "later"}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("bad dates = %v, want ErrInvalidArgument", err)
	}
}

// ============================================================================
// CompareColumn Tests
// ============================================================================

func TestCompareColumn(t *testing.T) {
	svc := salesFixture(t)

	res, err := svc.CompareColumn("Sales", CompareRequest{Column: "Vendor", Period1: january, Period2: february})
	if err != nil {
		t.Fatalf("CompareColumn: %v", err)
	}
	if res.Period1.Total != 2 || res.Period2.Total != 2 {
		t.Errorf("totals = %+v / %+v, want 2 / 2", res.Period1, res.Period2)
	}
	want := []CompareRow{
		{Value: "Acme", Count1: 1, Count2: 2, ChangePct: 100},
		{Value: "Globex", Count1: 1, Count2: 0, ChangePct: -100},
	}
	if !slices.Equal(res.Comparison, want) {
		t.Errorf("Comparison = %+v, want %+v", res.Comparison, want)
	}
}

func TestCompareColumn_NewValueChange(t *testing.T) {
	svc := salesFixture(t)

	res, err := svc.CompareColumn("Sales", CompareRequest{Column: "Vendor", Period1: february, Period2: march})
	if err != nil {
		t.Fatalf("CompareColumn: %v", err)
	}
	for _, r := range res.Comparison {
		if r.Value == "Initech" && r.ChangePct != 100 {
			t.Errorf("Initech change = %v, want 100 (count2 x 100)", r.ChangePct)
		}
	}
}

func TestCompareColumn_Errors(t *testing.T) {
	svc := salesFixture(t)

	tests := []struct {
		name    string
		req     CompareRequest
		wantErr error
	}{
		{"missing column", CompareRequest{Period1: january, Period2: february}, ErrInvalidArgument},
		{"missing period", CompareRequest{Column: "Vendor", Period1: january}, ErrInvalidArgument},
		{"unknown column", CompareRequest{Column: "Nope", Period1: january, Period2: february}, ErrColumnNotFound},
		{"hidden column", CompareRequest{Column: UploadIDColumn, Period1: january, Period2: february}, ErrColumnNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CompareColumn("Sales", tt.req); !errors.Is(err, tt.wantErr) {
				t.Errorf("CompareColumn = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestChangePct(t *testing.T) {
	tests := []struct {
		a, b, want float64
	}{
		{10, 15, 50},
		{3, 1, -66.7},
		{0, 4, 400},
		{0, 0, 0},
	}
	for _, tt := range tests {
		if got := changePct(tt.a, tt.b); got != tt.want {
			t.Errorf("changePct(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

// ============================================================================
// AdvancedAnalysis Tests
// ============================================================================

func TestAdvancedAnalysis_Sum(t *testing.T) {
	svc := salesFixture(t)

	res, err := svc.AdvancedAnalysis("Sales", AdvancedRequest{
		DateColumn:  "Date",
		GroupColumn: "Vendor",
		ValueColumn: "Amount",
		AggMethod:   "SUM",
		Period1:     DateFilter{Start: "2024-01-01", End: "2024-02-29"},
		Period2:     march,
	})
	if err != nil {
		t.Fatalf("AdvancedAnalysis: %v", err)
	}
	if res.AggMethod != AggSum || res.Period1.Rows != 4 || res.Period2.Rows != 2 {
		t.Errorf("result header = %+v", res)
	}
	want := []AdvancedRow{
		{Group: "Acme", Value1: 325, Value2: 0, ChangePct: -100},
		{Group: "Globex", Value1: 50, Value2: 40, ChangePct: -20},
		{Group: "Initech", Value1: 0, Value2: 10, ChangePct: 1000},
	}
	if !slices.Equal(res.Comparison, want) {
		t.Errorf("Comparison = %+v, want %+v", res.Comparison, want)
	}
}

func TestAdvancedAnalysis_Methods(t *testing.T) {
	svc := salesFixture(t)

	tests := []struct {
		method string
		want   float64
	}{
		{"average", 108.33},
		{"count", 3},
		{"min", 25},
		{"max", 200},
		{"median", 325},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			res, err := svc.AdvancedAnalysis("Sales", AdvancedRequest{
				DateColumn:  "Date",
				GroupColumn: "Vendor",
				ValueColumn: "Amount",
				AggMethod:   tt.method,
				Period1:     DateFilter{Start: "2024-01-01", End: "2024-02-29"},
				Period2:     march,
			})
			if err != nil {
				t.Fatalf("AdvancedAnalysis: %v", err)
			}
			for _, r := range res.Comparison {
				if r.Group == "Acme" && r.Value1 != tt.want {
					t.Errorf("Acme value1 = %v, want %v", r.Value1, tt.want)
				}
			}
		})
	}
}

func TestAdvancedAnalysis_Errors(t *testing.T) {
	svc := salesFixture(t)
	base := AdvancedRequest{
		DateColumn:  "Date",
		GroupColumn: "Vendor",
		ValueColumn: "Amount",
		Period1:     january,
		Period2:     february,
	}

	missing := base
	missing.ValueColumn = ""
	if _, err := svc.AdvancedAnalysis("Sales", missing); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("missing value column = %v, want ErrInvalidArgument", err)
	}

	unknown := base
	unknown.GroupColumn = "Nope"
	if _, err := svc.AdvancedAnalysis("Sales", unknown); !errors.Is(err, ErrColumnNotFound) {
		t.Errorf("unknown group column = %v, want ErrColumnNotFound", err)
	}

	empty := base
	empty.Period1 = DateFilter{Start: "2020-01-01", End: "2020-12-31"}
	empty.Period2 = DateFilter{Start: "2021-01-01", End: "2021-12-31"}
	if _, err := svc.AdvancedAnalysis("Sales", empty); !errors.Is(err, ErrNoPeriodData) {
		t.Errorf("empty periods = %v, want ErrNoPeriodData", err)
	}
}

// ============================================================================
// ColumnStats Tests
// ============================================================================

func TestColumnStats(t *testing.T) {
	svc := salesFixture(t)

	res, err := svc.ColumnStats("Sales")
	if err != nil {
		t.Fatalf("ColumnStats: %v", err)
	}
	if res.TotalRows != 6 || len(res.Columns) != 4 {
		t.Fatalf("ColumnStats = %+v", res)
	}
	region := res.Columns[2]
	if region.Name != "Region" || region.FillPct != 83.3 || region.UniqueCount != 2 {
		t.Errorf("Region = %+v", region)
	}
	if region.SampleValues != "East, West, East" {
		t.Errorf("Region sample = %q", region.SampleValues)
	}
	if amount := res.Columns[3]; amount.Dtype != "Integer" || amount.UniqueCount != 6 {
		t.Errorf("Amount = %+v", amount)
	}

	again, _ := svc.ColumnStats("Sales")
	if again != res {
		t.Errorf("second call should be served from cache")
	}
}

func TestColumnStats_TruncatesSample(t *testing.T) {
	svc := newTestService(t)
	long := strings.Repeat("x", 40)
	mustUpload(t, svc, csvFile("a.csv", "Note", long, long, long))

	res, err := svc.ColumnStats("Sales")
	if err != nil {
		t.Fatalf("ColumnStats: %v", err)
	}
	got := res.Columns[0]
	if len(got.SampleValues) != sampleLimit+3 || !strings.HasSuffix(got.SampleValues, "...") {
		t.Errorf("SampleValues = %q", got.SampleValues)
	}
	if got.samples != strings.Join([]string{long, long, long}, ", ") {
		t.Errorf("full samples = %q", got.samples)
	}
}

// ============================================================================
// TrendLine Tests
// ============================================================================

func TestTrendLine_Count(t *testing.T) {
	svc := salesFixture(t)

	res, err := svc.TrendLine("Sales", TrendRequest{GroupColumn: "Vendor", TopN: 2})
	if err != nil {
		t.Fatalf("TrendLine: %v", err)
	}
	if !slices.Equal(res.Months, []string{"2024-01", "2024-02", "2024-03"}) {
		t.Errorf("Months = %v", res.Months)
	}
	if !slices.Equal(res.Groups, []string{"Acme", "Globex"}) {
		t.Errorf("Groups = %v", res.Groups)
	}
	if !slices.Equal(res.Series["Acme"], []float64{1, 2, 0}) {
		t.Errorf("Acme = %v", res.Series["Acme"])
	}
	if !slices.Equal(res.Series["Globex"], []float64{1, 0, 1}) {
		t.Errorf("Globex = %v", res.Series["Globex"])
	}
	if res.GroupTotals["Acme"] != 3 || res.GroupTotals["Globex"] != 2 {
		t.Errorf("GroupTotals = %v", res.GroupTotals)
	}
	if res.MovementSeries != nil {
		t.Errorf("MovementSeries without baseline = %v", res.MovementSeries)
	}
}

func TestTrendLine_SumWithBaseline(t *testing.T) {
	svc := salesFixture(t)

	res, err := svc.TrendLine("Sales", TrendRequest{
		GroupColumn:   "Vendor",
		ValueColumn:   "Amount",
		AggMethod:     "sum",
		TopN:          1,
		BaselineMonth: "2024-02",
	})
	if err != nil {
		t.Fatalf("TrendLine: %v", err)
	}
	if !slices.Equal(res.Groups, []string{"Acme"}) {
		t.Fatalf("Groups = %v, want [Acme]", res.Groups)
	}
	if !slices.Equal(res.Months, []string{"2024-01", "2024-02"}) {
		t.Errorf("Months = %v", res.Months)
	}
	if !slices.Equal(res.Series["Acme"], []float64{100, 225}) {
		t.Errorf("Acme = %v", res.Series["Acme"])
	}
	if res.BaselineMonth != "2024-02" || res.BaselineValues["Acme"] != 225 {
		t.Errorf("baseline = %q %v", res.BaselineMonth, res.BaselineValues)
	}
	if !slices.Equal(res.MovementSeries["Acme"], []float64{-125, 0}) {
		t.Errorf("movement = %v", res.MovementSeries["Acme"])
	}
}

func TestTrendLine_AvailableGroups(t *testing.T) {
	svc := salesFixture(t)

	res, err := svc.TrendLine("Sales", TrendRequest{GroupColumn: "Region"})
	if err != nil {
		t.Fatalf("TrendLine: %v", err)
	}
	want := []string{"East", "West", blankGroup}
	if !slices.Equal(res.AvailableGroups, want) {
		t.Errorf("AvailableGroups = %v, want %v", res.AvailableGroups, want)
	}
	if res.Series != nil {
		t.Errorf("Series should be empty in list mode")
	}
}

func TestTrendLine_SpecificGroupsAndRange(t *testing.T) {
	svc := salesFixture(t)

	res, err := svc.TrendLine("Sales", TrendRequest{
		Range:          DateFilter{Start: "2024-01-01", End: "2024-12-31"},
		TrendRange:     DateFilter{Start: "2024-02-01"},
		GroupColumn:    "Vendor",
		SpecificGroups: []string{"Initech", "Nobody"},
	})
	if err != nil {
		t.Fatalf("TrendLine: %v", err)
	}
	if !slices.Equal(res.Months, []string{"2024-03"}) {
		t.Errorf("Months = %v", res.Months)
	}
	if !slices.Equal(res.Series["Nobody"], []float64{0}) {
		t.Errorf("Nobody = %v, want zeros", res.Series["Nobody"])
	}
	if !slices.Equal(res.pivoted, []string{"Initech"}) {
		t.Errorf("pivoted = %v", res.pivoted)
	}
}

func TestTrendLine_Errors(t *testing.T) {
	svc := salesFixture(t)

	tests := []struct {
		name    string
		req     TrendRequest
		wantErr error
	}{
		{"no group", TrendRequest{}, ErrInvalidArgument},
		{"unknown group", TrendRequest{GroupColumn: "Nope"}, ErrColumnNotFound},
		{"empty range", TrendRequest{GroupColumn: "Vendor", Range: DateFilter{Start: "2030-01-01", End: "2030-02-01"}}, ErrEmptyRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.TrendLine("Sales", tt.req); !errors.Is(err, tt.wantErr) {
				t.Errorf("TrendLine = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
