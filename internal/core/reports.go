package core

import (
	"bytes"
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/JonMunkholm/datacompile/internal/xlsx"
)

// Content types of generated downloads.
const (
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypeCSV  = "text/csv; charset=utf-8"
)

// Report is a generated download.
type Report struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (s *Service) xlsxReport(filename string, sheets ...*xlsx.Sheet) (*Report, error) {
	out := make([]*xlsx.Sheet, len(sheets))
	for i, sh := range sheets {
		out[i] = withExportDates(sh)
	}
	data, err := s.assembler.Bytes(out...)
	if err != nil {
		return nil, err
	}
	return &Report{Filename: filename, ContentType: ContentTypeXLSX, Data: data}, nil
}

// pairSheet builds a two-column text sheet from key/value pairs.
func pairSheet(name, keyHeader string, pairs [][2]string) *xlsx.Sheet {
	keys := make([]string, len(pairs))
	vals := make([]string, len(pairs))
	for i, p := range pairs {
		keys[i], vals[i] = p[0], p[1]
	}
	return xlsx.NewSheet(name, xlsx.TextColumn(keyHeader, keys), xlsx.TextColumn("Value", vals))
}

// compareCells orders two rows of col: numbers numerically, text
// lexically, missing values last.
func compareCells(col *xlsx.Column, a, b int) int {
	ma, mb := col.IsMissing(a), col.IsMissing(b)
	switch {
	case ma && mb:
		return 0
	case ma:
		return 1
	case mb:
		return -1
	}
	if col.Kind == xlsx.KindNumeric {
		return cmp.Compare(col.Numbers[a], col.Numbers[b])
	}
	return strings.Compare(col.Texts[a], col.Texts[b])
}

// withDisplayDates rewrites the named column as dd-Mon-YYYY text. Values
// that are not dates become blank.
func withDisplayDates(s *xlsx.Sheet, name string) *xlsx.Sheet {
	i, ok := s.Index(name)
	if !ok || name == "" {
		return s
	}
	col := &s.Columns[i]
	vals := make([]string, col.Len())
	for r := range vals {
		if d, ok := dateAt(col, r); ok {
			vals[r] = formatLabelDay(d)
		}
	}
	out := &xlsx.Sheet{Name: s.Name, Columns: slices.Clone(s.Columns)}
	out.Columns[i] = xlsx.TextColumn(name, vals)
	return out
}

type periodPart struct {
	label string
	rows  []int
}

// periodData stacks the rows of each part under a leading Period column,
// ordered by the sortBy column and then by period label.
func periodData(t *xlsx.Sheet, sortBy, dateColumn string, parts ...periodPart) *xlsx.Sheet {
	type entry struct {
		row   int
		label string
	}
	var entries []entry
	for _, p := range parts {
		for _, r := range p.rows {
			entries = append(entries, entry{row: r, label: p.label})
		}
	}
	if i, ok := t.Index(sortBy); ok {
		key := &t.Columns[i]
		slices.SortStableFunc(entries, func(a, b entry) int {
			if c := compareCells(key, a.row, b.row); c != 0 {
				return c
			}
			return strings.Compare(a.label, b.label)
		})
	}

	rows := make([]int, len(entries))
	labels := make([]string, len(entries))
	for i, e := range entries {
		rows[i], labels[i] = e.row, e.label
	}
	data := withDisplayDates(selectRows(exportView(t, "Data"), rows), dateColumn)
	data.Columns = append([]xlsx.Column{xlsx.TextColumn("Period", labels)}, data.Columns...)
	return data
}

func periodLabel(n int, p Period) string {
	return fmt.Sprintf("Period %d (%s)", n, p.label())
}

// parsePeriods parses both request periods.
func parsePeriods(f1, f2 DateFilter) (Period, Period, error) {
	p1, err := f1.Period()
	if err != nil {
		return Period{}, Period{}, err
	}
	p2, err := f2.Period()
	if err != nil {
		return Period{}, Period{}, err
	}
	return p1, p2, nil
}

// ComparisonReport renders CompareColumn with every value, plus the rows of
// both periods.
func (s *Service) ComparisonReport(project string, req CompareRequest) (*Report, error) {
	c, err := s.compare(project, req)
	if err != nil {
		return nil, err
	}
	p1, p2, err := parsePeriods(req.Period1, req.Period2)
	if err != nil {
		return nil, err
	}
	l1, l2 := periodLabel(1, p1), periodLabel(2, p2)

	n := len(c.rows)
	values := make([]string, n)
	c1, c2, change := make([]float64, n), make([]float64, n), make([]float64, n)
	for i, r := range c.rows {
		values[i] = r.Value
		c1[i], c2[i], change[i] = float64(r.Count1), float64(r.Count2), r.ChangePct
	}
	comparison := xlsx.NewSheet("Comparison",
		xlsx.TextColumn("Value", values),
		xlsx.NumericColumn(l1, c1),
		xlsx.NumericColumn(l2, c2),
		xlsx.NumericColumn("Change %", change),
	)
	summary := pairSheet("Summary", "Metric", [][2]string{
		{"Period 1 Total Records", strconv.Itoa(len(c.rows1))},
		{"Period 2 Total Records", strconv.Itoa(len(c.rows2))},
		{"Column Compared", req.Column},
	})
	data := periodData(c.table, req.Column, c.dateColumn,
		periodPart{label: l1, rows: c.rows1},
		periodPart{label: l2, rows: c.rows2},
	)
	name := fmt.Sprintf("Comparison_%s_%s_to_%s.xlsx", req.Column, req.Period1.Start, req.Period2.End)
	return s.xlsxReport(name, summary, comparison, data)
}

// AdvancedReport renders AdvancedAnalysis with every group, plus the rows of
// both periods.
func (s *Service) AdvancedReport(project string, req AdvancedRequest) (*Report, error) {
	a, err := s.advanced(project, req)
	if err != nil {
		return nil, err
	}
	req = a.req
	l1, l2 := periodLabel(1, a.p1), periodLabel(2, a.p2)

	n := len(a.rows)
	groups := make([]string, n)
	v1, v2, change := make([]float64, n), make([]float64, n), make([]float64, n)
	for i, r := range a.rows {
		groups[i] = r.Group
		v1[i], v2[i], change[i] = r.Value1, r.Value2, r.ChangePct
	}
	comparison := xlsx.NewSheet("Comparison",
		xlsx.TextColumn(req.GroupColumn, groups),
		xlsx.NumericColumn(l1, v1),
		xlsx.NumericColumn(l2, v2),
		xlsx.NumericColumn("Change %", change),
	)
	summary := pairSheet("Summary", "Metric", [][2]string{
		{"Group Column", req.GroupColumn},
		{"Value Column", req.ValueColumn},
		{"Aggregation Method", strings.ToUpper(req.AggMethod)},
		{"Period 1", a.p1.label()},
		{"Period 1 Rows", strconv.Itoa(len(a.rows1))},
		{"Period 2", a.p2.label()},
		{"Period 2 Rows", strconv.Itoa(len(a.rows2))},
	})
	data := periodData(a.table, req.GroupColumn, req.DateColumn,
		periodPart{label: l1, rows: a.rows1},
		periodPart{label: l2, rows: a.rows2},
	)
	name := fmt.Sprintf("Advanced_Analysis_%s_%s_%s_to_%s.xlsx",
		req.GroupColumn, req.AggMethod, req.Period1.Start, req.Period2.End)
	return s.xlsxReport(name, summary, comparison, data)
}

// compactDay renders a request date as 02Jan2006 for filenames, leaving
// unparseable input as given.
func compactDay(s string) string {
	if d, ok := ParseDay(s); ok {
		return d.Format("02Jan2006")
	}
	return s
}

// TrendReport renders the trend pivot: a summary, the raw monthly values
// and, with a valid baseline month, the movement from that month.
func (s *Service) TrendReport(project string, req TrendRequest) (*Report, error) {
	res, err := s.trend(project, req, false)
	if err != nil {
		return nil, err
	}
	agg := strings.ToUpper(strings.TrimSpace(req.AggMethod))
	if agg == "" {
		agg = strings.ToUpper(AggCount)
	}
	valueLabel := "(Row Count)"
	if req.ValueColumn != "" && strings.EqualFold(agg, AggSum) {
		valueLabel = req.ValueColumn
	}
	eff := req.effectiveRange()

	pairs := [][2]string{
		{"Project", project},
		{"Date Range", eff.Start + " to " + eff.End},
		{"Group Column", req.GroupColumn},
		{"Value Column", valueLabel},
		{"Aggregation", agg},
		{"Groups", strconv.Itoa(len(res.pivoted))},
		{"Months", strconv.Itoa(len(res.Months))},
	}
	if res.BaselineMonth != "" {
		pairs = append(pairs, [2]string{"Baseline Month", res.BaselineMonth})
	}
	sheets := []*xlsx.Sheet{
		pairSheet("Summary", "Field", pairs),
		monthSheet("Raw Data", res.Months, res.pivoted, res.Series),
	}
	if res.BaselineMonth != "" {
		sheets = append(sheets, monthSheet("Movement Data", res.Months, res.pivoted, res.MovementSeries))
	}
	name := fmt.Sprintf("Trend_Line_%s_%s_to_%s.xlsx", agg, compactDay(eff.Start), compactDay(eff.End))
	return s.xlsxReport(name, sheets...)
}

// monthSheet lays out series with one row per month and one column per
// group.
func monthSheet(name string, months, groups []string, series map[string][]float64) *xlsx.Sheet {
	cols := []xlsx.Column{xlsx.TextColumn("Month", slices.Clone(months))}
	for _, g := range groups {
		cols = append(cols, xlsx.NumericColumn(g, slices.Clone(series[g])))
	}
	return xlsx.NewSheet(name, cols...)
}

// ColumnStatsReport renders ColumnStats with untruncated samples.
func (s *Service) ColumnStatsReport(project string) (*Report, error) {
	stats, err := s.ColumnStats(project)
	if err != nil {
		return nil, err
	}
	n := len(stats.Columns)
	names, types, dups, samples := make([]string, n), make([]string, n), make([]string, n), make([]string, n)
	fill, unique := make([]float64, n), make([]float64, n)
	for i, c := range stats.Columns {
		names[i], types[i], samples[i] = c.Name, c.Dtype, c.samples
		fill[i], unique[i] = c.FillPct, float64(c.UniqueCount)
		dups[i] = "No"
		if c.UniqueCount < stats.TotalRows {
			dups[i] = "Yes"
		}
	}
	analysis := xlsx.NewSheet("Column Analysis",
		xlsx.TextColumn("Column", names),
		xlsx.TextColumn("Type", types),
		xlsx.NumericColumn("Filled %", fill),
		xlsx.NumericColumn("Unique Values", unique),
		xlsx.TextColumn("Duplicates", dups),
		xlsx.TextColumn("Sample Values", samples),
	)
	summary := pairSheet("Summary", "Metric", [][2]string{
		{"Project", project},
		{"Total Rows", strconv.Itoa(stats.TotalRows)},
		{"Total Columns", strconv.Itoa(n)},
	})
	return s.xlsxReport(reportName(project)+"_Column_Analysis.xlsx", analysis, summary)
}

// reportName keeps letters, digits, spaces, dashes and underscores.
func reportName(project string) string {
	var b strings.Builder
	for _, r := range project {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// FilteredReport exports the rows in f as CSV, or as a spreadsheet when
// format is "xlsx".
func (s *Service) FilteredReport(project string, f DateFilter, format string) (*Report, error) {
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
	data := selectRows(exportView(t, "Data"), rows)
	if f.Set() {
		data = withDisplayDates(data, st.DateColumn)
	}

	base := fmt.Sprintf("%s_%s_to_%s", project, f.Start, f.End)
	if strings.EqualFold(format, "xlsx") {
		return s.xlsxReport(base+".xlsx", data)
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, data); err != nil {
		return nil, err
	}
	return &Report{Filename: base + ".csv", ContentType: ContentTypeCSV, Data: buf.Bytes()}, nil
}

// top10Rank names the leading rank column of the top-ten export.
const top10Rank = "Top10_Rank"

// Top10Report exports the rows holding the ten most frequent values of
// column within f, ranked by frequency.
func (s *Service) Top10Report(project, columnName, displayName string, f DateFilter) (*Report, error) {
	if columnName == "" {
		return nil, argError("No column specified")
	}
	if displayName == "" {
		displayName = columnName
	}
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
	col, err := column(t, columnName)
	if err != nil {
		return nil, err
	}

	counts := valueCounts(col, rows)
	counts = counts[:min(10, len(counts))]
	rank := make(map[string]int, len(counts))
	for i, vc := range counts {
		rank[vc.Value] = i + 1
	}
	var kept []int
	for _, r := range rows {
		if !col.IsMissing(r) && rank[col.Text(r)] > 0 {
			kept = append(kept, r)
		}
	}
	slices.SortStableFunc(kept, func(a, b int) int {
		return rank[col.Text(a)] - rank[col.Text(b)]
	})

	ranks := make([]float64, len(kept))
	for i, r := range kept {
		ranks[i] = float64(rank[col.Text(r)])
	}
	data := selectRows(exportView(t, "Data"), kept)
	if f.Set() {
		data = withDisplayDates(data, st.DateColumn)
	}
	data.Columns = append([]xlsx.Column{xlsx.NumericColumn(top10Rank, ranks)}, data.Columns...)

	n := len(counts)
	pos, values, tally := make([]float64, n), make([]string, n), make([]float64, n)
	for i, vc := range counts {
		pos[i], values[i], tally[i] = float64(i+1), vc.Value, float64(vc.Count)
	}
	summary := xlsx.NewSheet("Summary",
		xlsx.NumericColumn("Rank", pos),
		xlsx.TextColumn(displayName, values),
		xlsx.NumericColumn("Count", tally),
	)
	name := fmt.Sprintf("Top10_%s_%s_to_%s.xlsx", displayName, f.Start, f.End)
	return s.xlsxReport(name, summary, data)
}
