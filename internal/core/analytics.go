package core

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/JonMunkholm/datacompile/internal/xlsx"
)

// DateFilter is a date range as received from a request: two YYYY-MM-DD
// bounds, both inclusive. An unset filter selects every row.
type DateFilter struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Set reports whether both bounds were given.
func (f DateFilter) Set() bool {
	return f.Start != "" && f.End != ""
}

// Period parses the bounds.
func (f DateFilter) Period() (Period, error) {
	start, ok := ParseDay(f.Start)
	if !ok {
		return Period{}, argError(fmt.Sprintf("invalid start date %q", f.Start))
	}
	end, ok := ParseDay(f.End)
	if !ok {
		return Period{}, argError(fmt.Sprintf("invalid end date %q", f.End))
	}
	return Period{Start: start, End: end}, nil
}

// label renders "dd-Mon-YYYY to dd-Mon-YYYY".
func (p Period) label() string {
	return formatLabelDay(p.Start) + " to " + formatLabelDay(p.End)
}

// periodRows returns the rows of col whose date falls in p. Rows without a
// readable date never match.
func periodRows(col *xlsx.Column, p Period) []int {
	rows := make([]int, 0, col.Len())
	for i := range col.Len() {
		if d, ok := dateAt(col, i); ok && p.Contains(d) {
			rows = append(rows, i)
		}
	}
	return rows
}

// filteredRows applies f to the settings date column. When no date column
// is configured, or it is absent from t, every row is returned.
func filteredRows(t *xlsx.Sheet, dateColumn string, f DateFilter) ([]int, error) {
	if dateColumn == "" || !f.Set() {
		return allRows(t.Rows()), nil
	}
	col, err := column(t, dateColumn)
	if err != nil {
		return allRows(t.Rows()), nil
	}
	p, err := f.Period()
	if err != nil {
		return nil, err
	}
	return periodRows(col, p), nil
}

// Stats describes the project's consolidated table. A project without data
// yields Exists false rather than an error.
func (s *Service) Stats(project string) (*Stats, error) {
	if project == "" {
		return &Stats{NoProject: true}, nil
	}
	t, mtime, err := s.table(project)
	if errors.Is(err, ErrNoData) {
		return &Stats{Project: project}, nil
	}
	if err != nil {
		return nil, err
	}
	_, size, err := snapshotMTime(s.store.SnapshotPath(project))
	if err != nil {
		return nil, err
	}
	cols := visibleColumns(t)
	return &Stats{
		Exists:       true,
		Project:      project,
		TotalRows:    t.Rows(),
		TotalColumns: len(cols),
		Columns:      cols,
		FileSize:     size,
		LastModified: mtime.Local().Format(TimestampLayout),
	}, nil
}

// Columns lists the visible columns with the ones that look like dates and
// the numeric ones. The result is cached with the table.
func (s *Service) Columns(project string) (*ColumnInfo, error) {
	t, mtime, err := s.table(project)
	if err != nil {
		return nil, err
	}
	if info, ok := s.cache.Columns(project, mtime); ok {
		return info, nil
	}
	info := &ColumnInfo{
		Columns:        visibleColumns(t),
		DateColumns:    []string{},
		NumericColumns: []string{},
	}
	for _, name := range info.Columns {
		col, _ := column(t, name)
		if looksLikeDates(col) {
			info.DateColumns = append(info.DateColumns, name)
		}
		if col.Kind == xlsx.KindNumeric {
			info.NumericColumns = append(info.NumericColumns, name)
		}
	}
	s.cache.SetColumns(project, info)
	return info, nil
}

// ColumnSummary is one column of DataSummary.
type ColumnSummary struct {
	Name    string  `json:"name"`
	Dtype   string  `json:"dtype"`
	NonNull float64 `json:"non_null"`
}

// DataSummary describes the table and its upload history.
type DataSummary struct {
	TotalRows    int             `json:"total_rows"`
	TotalColumns int             `json:"total_columns"`
	FileCount    int             `json:"file_count"`
	FileSize     string          `json:"file_size"`
	ColumnInfo   []ColumnSummary `json:"column_info"`
}

// DataSummary returns row and column counts, the number of uploads, the
// snapshot size and per-column fill rates.
func (s *Service) DataSummary(project string) (*DataSummary, error) {
	t, _, err := s.table(project)
	if err != nil {
		return nil, err
	}
	_, size, err := snapshotMTime(s.store.SnapshotPath(project))
	if err != nil {
		return nil, err
	}
	log, err := s.store.LoadUploadLog(project)
	if err != nil {
		return nil, err
	}

	cols := visibleColumns(t)
	out := &DataSummary{
		TotalRows:    t.Rows(),
		TotalColumns: len(cols),
		FileCount:    len(log),
		FileSize:     humanSize(size),
		ColumnInfo:   make([]ColumnSummary, 0, len(cols)),
	}
	for _, name := range cols {
		col, _ := column(t, name)
		out.ColumnInfo = append(out.ColumnInfo, ColumnSummary{
			Name:    name,
			Dtype:   dtypeName(col),
			NonNull: fillPct(col, t.Rows()),
		})
	}
	return out, nil
}

// dtypeName is Text, Integer (whole numbers, nothing missing) or Decimal.
func dtypeName(col *xlsx.Column) string {
	if col.Kind != xlsx.KindNumeric {
		return "Text"
	}
	if isIntegral(col) && filled(col) == col.Len() {
		return "Integer"
	}
	return "Decimal"
}

func filled(col *xlsx.Column) int {
	n := 0
	for i := range col.Len() {
		if !col.IsMissing(i) {
			n++
		}
	}
	return n
}

func fillPct(col *xlsx.Column, total int) float64 {
	if total == 0 {
		return 0
	}
	return round(float64(filled(col))/float64(total)*100, 1)
}

func humanSize(n int64) string {
	switch {
	case n > 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	case n > 1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// DateRange is the span of the configured date column.
type DateRange struct {
	DateColumn string  `json:"date_column"`
	MinDate    *string `json:"min_date"`
	MaxDate    *string `json:"max_date"`
}

// DateRange returns the earliest and latest readable dates of the settings
// date column. ErrNoDateColumn means the dashboard still needs setup.
func (s *Service) DateRange(project string) (*DateRange, error) {
	st, err := s.Settings(project)
	if err != nil {
		return nil, err
	}
	t, err := s.Table(project)
	if err != nil {
		return nil, err
	}
	if st.DateColumn == "" {
		return nil, ErrNoDateColumn
	}
	col, err := column(t, st.DateColumn)
	if err != nil {
		return nil, ErrNoDateColumn
	}

	out := &DateRange{DateColumn: st.DateColumn}
	var lo, hi time.Time
	for i := range col.Len() {
		d, ok := dateAt(col, i)
		if !ok {
			continue
		}
		if lo.IsZero() || d.Before(lo) {
			lo = d
		}
		if hi.IsZero() || d.After(hi) {
			hi = d
		}
	}
	if !lo.IsZero() {
		first, last := formatDay(lo), formatDay(hi)
		out.MinDate, out.MaxDate = &first, &last
	}
	return out, nil
}

// ColumnTop is the top-ten frequency table of one dashboard column.
type ColumnTop struct {
	Column string       `json:"column"`
	Values []ValueCount `json:"values"`
}

// DashboardStats is the dashboard headline for a date range.
type DashboardStats struct {
	Project      string      `json:"project"`
	TotalRecords int         `json:"total_records"`
	DateRange    DateFilter  `json:"date_range"`
	DateColumn   string      `json:"date_column"`
	TopData      []ColumnTop `json:"top_data"`
}

// DashboardStats counts the rows in f and the ten most frequent values of
// every configured top column.
func (s *Service) DashboardStats(project string, f DateFilter) (*DashboardStats, error) {
	st, err := s.Settings(project)
	if err != nil {
		return nil, err
	}
	t, err := s.Table(project)
	if err != nil {
		return nil, err
	}
	rows, err := filteredRows(t, st.DateColumn, f)
	if err != nil {
		return nil, err
	}

	out := &DashboardStats{
		Project:      project,
		TotalRecords: len(rows),
		DateRange:    f,
		DateColumn:   st.DateColumn,
		TopData:      []ColumnTop{},
	}
	for _, tc := range st.TopColumns {
		col, err := column(t, tc.Column)
		if err != nil {
			continue
		}
		counts := valueCounts(col, rows)
		out.TopData = append(out.TopData, ColumnTop{Column: tc.Column, Values: counts[:min(10, len(counts))]})
	}
	return out, nil
}

// changePct is the relative change from a to b in percent. When a is not
// positive the change is b·100.
func changePct(a, b float64) float64 {
	if a > 0 {
		return round((b-a)/a*100, 1)
	}
	return round(b*100, 1)
}

// CompareRequest selects a column and two periods.
type CompareRequest struct {
	Column  string
	Period1 DateFilter
	Period2 DateFilter
}

func (r CompareRequest) validate() error {
	if r.Column == "" || !r.Period1.Set() || !r.Period2.Set() {
		return argError("Missing parameters")
	}
	return nil
}

// CompareRow is one value of a column comparison.
type CompareRow struct {
	Value     string  `json:"value"`
	Count1    int     `json:"count1"`
	Count2    int     `json:"count2"`
	ChangePct float64 `json:"change_pct"`
}

// PeriodTotal is the row count of one compared period.
type PeriodTotal struct {
	Total int `json:"total"`
}

// CompareResult compares a column's value counts across two periods.
type CompareResult struct {
	Column     string       `json:"column"`
	Period1    PeriodTotal  `json:"period1"`
	Period2    PeriodTotal  `json:"period2"`
	Comparison []CompareRow `json:"comparison"`
}

// compareLimit bounds the rows returned by CompareColumn.
const compareLimit = 25

// CompareColumn counts each value of a column in both periods, most common
// overall first, and returns the top 25.
func (s *Service) CompareColumn(project string, req CompareRequest) (*CompareResult, error) {
	c, err := s.compare(project, req)
	if err != nil {
		return nil, err
	}
	res := &CompareResult{
		Column:     req.Column,
		Period1:    PeriodTotal{Total: len(c.rows1)},
		Period2:    PeriodTotal{Total: len(c.rows2)},
		Comparison: c.rows[:min(compareLimit, len(c.rows))],
	}
	return res, nil
}

// comparison holds everything CompareColumn and its report need.
type comparison struct {
	table        *xlsx.Sheet
	dateColumn   string
	rows1, rows2 []int
	rows         []CompareRow
}

func (s *Service) compare(project string, req CompareRequest) (*comparison, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	st, err := s.Settings(project)
	if err != nil {
		return nil, err
	}
	t, err := s.Table(project)
	if err != nil {
		return nil, err
	}
	col, err := column(t, req.Column)
	if err != nil {
		return nil, err
	}

	c := &comparison{table: t}
	if dc, err := column(t, st.DateColumn); st.DateColumn != "" && err == nil {
		p1, err := req.Period1.Period()
		if err != nil {
			return nil, err
		}
		p2, err := req.Period2.Period()
		if err != nil {
			return nil, err
		}
		c.dateColumn = st.DateColumn
		c.rows1, c.rows2 = periodRows(dc, p1), periodRows(dc, p2)
	} else {
		c.rows1, c.rows2 = allRows(t.Rows()), allRows(t.Rows())
	}

	list1, list2 := valueCounts(col, c.rows1), valueCounts(col, c.rows2)
	counts1, counts2 := countMap(list1), countMap(list2)
	for _, vc := range list1 {
		c.rows = append(c.rows, compareRow(vc.Value, vc.Count, counts2[vc.Value]))
	}
	for _, vc := range list2 {
		if _, ok := counts1[vc.Value]; !ok {
			c.rows = append(c.rows, compareRow(vc.Value, 0, vc.Count))
		}
	}
	slices.SortFunc(c.rows, func(a, b CompareRow) int {
		if d := (b.Count1 + b.Count2) - (a.Count1 + a.Count2); d != 0 {
			return d
		}
		return strings.Compare(a.Value, b.Value)
	})
	return c, nil
}

func compareRow(value string, c1, c2 int) CompareRow {
	return CompareRow{Value: value, Count1: c1, Count2: c2, ChangePct: changePct(float64(c1), float64(c2))}
}

func countMap(counts []ValueCount) map[string]int {
	m := make(map[string]int, len(counts))
	for _, vc := range counts {
		m[vc.Value] = vc.Count
	}
	return m
}

// Aggregation methods for AdvancedAnalysis and TrendLine.
const (
	AggSum     = "sum"
	AggCount   = "count"
	AggAverage = "average"
	AggMin     = "min"
	AggMax     = "max"
)

// normalizeAgg lower-cases method; unknown methods fall back to sum.
func normalizeAgg(method string) string {
	switch m := strings.ToLower(strings.TrimSpace(method)); m {
	case AggSum, AggCount, AggAverage, AggMin, AggMax:
		return m
	default:
		return AggSum
	}
}

// aggregate folds the finite values of vals with method. An empty input
// yields 0.
func aggregate(method string, vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	switch method {
	case AggCount:
		return float64(len(vals))
	case AggAverage:
		sum := 0.0
		for _, v := range vals {
			sum += v
		}
		return sum / float64(len(vals))
	case AggMin:
		return slices.Min(vals)
	case AggMax:
		return slices.Max(vals)
	default:
		sum := 0.0
		for _, v := range vals {
			sum += v
		}
		return sum
	}
}

// AdvancedRequest selects a grouped aggregation over two periods. The date
// column is chosen per request rather than taken from the settings.
type AdvancedRequest struct {
	DateColumn  string
	GroupColumn string
	ValueColumn string
	AggMethod   string
	Period1     DateFilter
	Period2     DateFilter
}

// PeriodInfo echoes one analysed period.
type PeriodInfo struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Rows  int    `json:"rows"`
}

// AdvancedRow is one group of an advanced analysis.
type AdvancedRow struct {
	Group     string  `json:"group"`
	Value1    float64 `json:"value1"`
	Value2    float64 `json:"value2"`
	ChangePct float64 `json:"change_pct"`
}

// AdvancedResult compares a grouped aggregate across two periods.
type AdvancedResult struct {
	GroupColumn string        `json:"group_column"`
	ValueColumn string        `json:"value_column"`
	AggMethod   string        `json:"agg_method"`
	Period1     PeriodInfo    `json:"period1"`
	Period2     PeriodInfo    `json:"period2"`
	Comparison  []AdvancedRow `json:"comparison"`
}

// advancedLimit bounds the groups returned by AdvancedAnalysis.
const advancedLimit = 50

// AdvancedAnalysis aggregates value_column by group_column in both periods
// and returns the 50 largest groups by combined value.
func (s *Service) AdvancedAnalysis(project string, req AdvancedRequest) (*AdvancedResult, error) {
	a, err := s.advanced(project, req)
	if err != nil {
		return nil, err
	}
	res := a.result
	res.Comparison = a.rows[:min(advancedLimit, len(a.rows))]
	return &res, nil
}

type advancedAnalysis struct {
	table        *xlsx.Sheet
	req          AdvancedRequest
	p1, p2       Period
	rows1, rows2 []int
	rows         []AdvancedRow
	result       AdvancedResult
}

func (s *Service) advanced(project string, req AdvancedRequest) (*advancedAnalysis, error) {
	if req.DateColumn == "" || req.GroupColumn == "" || req.ValueColumn == "" ||
		!req.Period1.Set() || !req.Period2.Set() {
		return nil, argError("Missing required parameters")
	}
	req.AggMethod = normalizeAgg(req.AggMethod)
	t, err := s.Table(project)
	if err != nil {
		return nil, err
	}
	var cols [3]*xlsx.Column
	for i, name := range []string{req.DateColumn, req.GroupColumn, req.ValueColumn} {
		if cols[i], err = column(t, name); err != nil {
			return nil, err
		}
	}
	dates, groups, values := cols[0], cols[1], cols[2]

	p1, err := req.Period1.Period()
	if err != nil {
		return nil, err
	}
	p2, err := req.Period2.Period()
	if err != nil {
		return nil, err
	}
	a := &advancedAnalysis{table: t, req: req, p1: p1, p2: p2}
	a.rows1, a.rows2 = periodRows(dates, p1), periodRows(dates, p2)
	if len(a.rows1) == 0 && len(a.rows2) == 0 {
		return nil, ErrNoPeriodData
	}

	agg1, order1 := groupValues(groups, values, a.rows1)
	agg2, order2 := groupValues(groups, values, a.rows2)
	order := order1
	for _, g := range order2 {
		if _, ok := agg1[g]; !ok {
			order = append(order, g)
		}
	}
	for _, g := range order {
		v1 := round(aggregate(req.AggMethod, agg1[g]), 2)
		v2 := round(aggregate(req.AggMethod, agg2[g]), 2)
		a.rows = append(a.rows, AdvancedRow{Group: g, Value1: v1, Value2: v2, ChangePct: changeAny(v1, v2)})
	}
	slices.SortStableFunc(a.rows, func(x, y AdvancedRow) int {
		return cmp.Compare(y.Value1+y.Value2, x.Value1+x.Value2)
	})

	a.result = AdvancedResult{
		GroupColumn: req.GroupColumn,
		ValueColumn: req.ValueColumn,
		AggMethod:   req.AggMethod,
		Period1:     PeriodInfo{Start: req.Period1.Start, End: req.Period1.End, Rows: len(a.rows1)},
		Period2:     PeriodInfo{Start: req.Period2.Start, End: req.Period2.End, Rows: len(a.rows2)},
	}
	return a, nil
}

// changeAny is changePct for values that may be negative: any non-zero base
// is used as the divisor.
func changeAny(a, b float64) float64 {
	if a != 0 {
		return round((b-a)/a*100, 1)
	}
	return round(b*100, 1)
}

// groupValues collects the numeric values of rows per group, in first-seen
// group order. Rows with a missing group are dropped; a group whose values
// are all missing is kept with no values.
func groupValues(groups, values *xlsx.Column, rows []int) (map[string][]float64, []string) {
	out := make(map[string][]float64)
	var order []string
	for _, r := range rows {
		if groups.IsMissing(r) {
			continue
		}
		g := groups.Text(r)
		vals, ok := out[g]
		if !ok {
			order = append(order, g)
			vals = []float64{}
		}
		if v, ok := numericValue(values, r); ok {
			vals = append(vals, v)
		}
		out[g] = vals
	}
	return out, order
}

// sampleLimit truncates the JSON sample of ColumnStats.
const sampleLimit = 50

// ColumnStat describes one visible column.
type ColumnStat struct {
	Name         string  `json:"name"`
	Dtype        string  `json:"dtype"`
	FillPct      float64 `json:"fill_pct"`
	UniqueCount  int     `json:"unique_count"`
	SampleValues string  `json:"sample_values"`

	samples string
}

// ColumnStatsResult is the per-column profile of a table.
type ColumnStatsResult struct {
	Columns   []ColumnStat `json:"columns"`
	TotalRows int          `json:"total_rows"`
}

// ColumnStats profiles every visible column: type, fill rate, distinct
// count and the first three values. The result is cached with the table.
func (s *Service) ColumnStats(project string) (*ColumnStatsResult, error) {
	t, mtime, err := s.table(project)
	if err != nil {
		return nil, err
	}
	if res, ok := s.cache.ColumnStats(project, mtime); ok {
		return res, nil
	}

	res := &ColumnStatsResult{TotalRows: t.Rows()}
	for _, name := range visibleColumns(t) {
		col, _ := column(t, name)
		distinct := make(map[string]struct{})
		var sample []string
		for i := range col.Len() {
			if col.IsMissing(i) {
				continue
			}
			v := col.Text(i)
			distinct[v] = struct{}{}
			if len(sample) < 3 {
				sample = append(sample, v)
			}
		}
		full := strings.Join(sample, ", ")
		short := full
		if len(short) > sampleLimit {
			short = truncate(short, sampleLimit) + "..."
		}
		res.Columns = append(res.Columns, ColumnStat{
			Name:         name,
			Dtype:        dtypeName(col),
			FillPct:      fillPct(col, t.Rows()),
			UniqueCount:  len(distinct),
			SampleValues: short,
			samples:      full,
		})
	}
	s.cache.SetColumnStats(project, res)
	return res, nil
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// blankGroup labels rows whose group value is missing.
const blankGroup = "(blank)"

// availableGroupLimit bounds the group list returned when no groups are
// selected.
const availableGroupLimit = 500

// TrendRequest selects a monthly trend line. Range applies unless the
// trend-specific range is given. TopN 0 with no SpecificGroups asks for the
// list of available groups instead of a series.
type TrendRequest struct {
	Range          DateFilter
	TrendRange     DateFilter
	GroupColumn    string
	ValueColumn    string
	AggMethod      string
	TopN           int
	SpecificGroups []string
	BaselineMonth  string
}

// effectiveRange returns the trend range, falling back to the main range
// per bound.
func (r TrendRequest) effectiveRange() DateFilter {
	f := r.Range
	if r.TrendRange.Start != "" {
		f.Start = r.TrendRange.Start
	}
	if r.TrendRange.End != "" {
		f.End = r.TrendRange.End
	}
	return f
}

// summed reports whether the trend sums a value column rather than
// counting rows.
func (r TrendRequest) summed(t *xlsx.Sheet) bool {
	if r.AggMethod != AggSum || r.ValueColumn == "" {
		return false
	}
	_, err := column(t, r.ValueColumn)
	return err == nil
}

// TrendResult is a monthly series per group.
type TrendResult struct {
	AvailableGroups []string             `json:"available_groups,omitempty"`
	Months          []string             `json:"months,omitempty"`
	Groups          []string             `json:"groups,omitempty"`
	Series          map[string][]float64 `json:"series,omitempty"`
	GroupTotals     map[string]float64   `json:"group_totals,omitempty"`
	MovementSeries  map[string][]float64 `json:"movement_series,omitempty"`
	BaselineMonth   string               `json:"baseline_month,omitempty"`
	BaselineValues  map[string]float64   `json:"baseline_values,omitempty"`

	// pivoted lists the selected groups that have rows, in selection order.
	pivoted []string
	summed  bool
}

// TrendLine pivots the rows in range by month and group. The groups are the
// TopN largest (by summed value or by row count) or the given ones. With a
// baseline month among the result months, each series is also returned as
// movement relative to that month.
func (s *Service) TrendLine(project string, req TrendRequest) (*TrendResult, error) {
	return s.trend(project, req, true)
}

// trend builds the pivot. With listGroups unset, TopN 0 and no groups
// ranks the default number of groups instead of listing them.
func (s *Service) trend(project string, req TrendRequest, listGroups bool) (*TrendResult, error) {
	if req.GroupColumn == "" {
		return nil, argError("No group column specified")
	}
	req.AggMethod = strings.ToLower(strings.TrimSpace(req.AggMethod))
	if req.AggMethod == "" {
		req.AggMethod = AggCount
	}
	st, err := s.Settings(project)
	if err != nil {
		return nil, err
	}
	t, err := s.Table(project)
	if err != nil {
		return nil, err
	}
	if st.DateColumn == "" {
		return nil, ErrNoDateColumn
	}
	dates, err := column(t, st.DateColumn)
	if err != nil {
		return nil, ErrNoDateColumn
	}
	groups, err := column(t, req.GroupColumn)
	if err != nil {
		return nil, err
	}
	rows, err := filteredRows(t, st.DateColumn, req.effectiveRange())
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrEmptyRange
	}

	groupOf := func(r int) string {
		if groups.IsMissing(r) {
			return blankGroup
		}
		return groups.Text(r)
	}
	labels := xlsx.TextColumn(req.GroupColumn, make([]string, t.Rows()))
	for _, r := range rows {
		labels.Texts[r] = groupOf(r)
	}

	if listGroups && req.TopN == 0 && len(req.SpecificGroups) == 0 {
		counts := valueCounts(&labels, rows)
		out := &TrendResult{AvailableGroups: make([]string, 0, min(availableGroupLimit, len(counts)))}
		for _, vc := range counts[:min(availableGroupLimit, len(counts))] {
			out.AvailableGroups = append(out.AvailableGroups, vc.Value)
		}
		return out, nil
	}

	summed := req.summed(t)
	var values *xlsx.Column
	if summed {
		values, _ = column(t, req.ValueColumn)
	}
	weight := func(r int) float64 {
		if !summed {
			return 1
		}
		if v, ok := numericValue(values, r); ok {
			return v
		}
		return 0
	}

	selected := req.SpecificGroups
	if req.TopN != 0 || len(selected) == 0 {
		selected = rankGroups(labels.Texts, rows, weight, req.TopN)
	}
	want := make(map[string]bool, len(selected))
	for _, g := range selected {
		want[g] = true
	}

	pivot := make(map[string]map[string]float64)
	present := make(map[string]bool)
	for _, r := range rows {
		g := labels.Texts[r]
		if !want[g] {
			continue
		}
		d, ok := dateAt(dates, r)
		if !ok {
			continue
		}
		m := monthKey(d)
		if pivot[m] == nil {
			pivot[m] = make(map[string]float64)
		}
		pivot[m][g] += weight(r)
		present[g] = true
	}
	months := make([]string, 0, len(pivot))
	for m := range pivot {
		months = append(months, m)
	}
	slices.Sort(months)

	out := &TrendResult{
		Months:      months,
		Series:      make(map[string][]float64, len(selected)),
		GroupTotals: make(map[string]float64, len(selected)),
		summed:      summed,
	}
	for _, g := range selected {
		vals := make([]float64, len(months))
		total := 0.0
		for i, m := range months {
			vals[i] = round(pivot[m][g], 2)
			total += vals[i]
		}
		out.Series[g] = vals
		out.GroupTotals[g] = round(total, 2)
		if present[g] {
			out.pivoted = append(out.pivoted, g)
		}
	}
	out.Groups = slices.Clone(selected)
	slices.SortStableFunc(out.Groups, func(a, b string) int {
		return cmp.Compare(out.GroupTotals[b], out.GroupTotals[a])
	})

	if bi := slices.Index(months, req.BaselineMonth); req.BaselineMonth != "" && bi >= 0 {
		out.BaselineMonth = req.BaselineMonth
		out.MovementSeries = make(map[string][]float64, len(out.Groups))
		out.BaselineValues = make(map[string]float64, len(out.Groups))
		for _, g := range out.Groups {
			base := out.Series[g][bi]
			out.BaselineValues[g] = base
			out.MovementSeries[g] = movement(out.Series[g], base)
		}
	}
	return out, nil
}

// defaultTopN is the ranking size used when none is given.
const defaultTopN = 10

// rankGroups orders the groups of rows by total weight, largest first, and
// keeps n of them (10 when n is not positive).
func rankGroups(labels []string, rows []int, weight func(int) float64, n int) []string {
	if n <= 0 {
		n = defaultTopN
	}
	totals := make(map[string]float64)
	var order []string
	for _, r := range rows {
		g := labels[r]
		if _, ok := totals[g]; !ok {
			order = append(order, g)
		}
		totals[g] += weight(r)
	}
	slices.SortStableFunc(order, func(a, b string) int {
		return cmp.Compare(totals[b], totals[a])
	})
	return order[:min(n, len(order))]
}

func movement(vals []float64, base float64) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = round(v-base, 2)
	}
	return out
}
