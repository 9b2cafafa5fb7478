package core

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/JonMunkholm/datacompile/internal/xlsx"
)

// Tables are *xlsx.Sheet values treated as immutable: every helper here
// returns a new sheet and never writes into the columns it was given.

// visibleColumns returns the column names users see, in order.
func visibleColumns(s *xlsx.Sheet) []string {
	out := make([]string, 0, s.Width())
	for _, c := range s.Columns {
		if c.Name != UploadIDColumn {
			out = append(out, c.Name)
		}
	}
	return out
}

// column returns the named column.
func column(s *xlsx.Sheet, name string) (*xlsx.Column, error) {
	i, ok := s.Index(name)
	if !ok || name == UploadIDColumn {
		return nil, columnError(name)
	}
	return &s.Columns[i], nil
}

// emptyLike returns a column of kind k with n missing values.
func emptyLike(name string, k xlsx.ColumnKind, n int) xlsx.Column {
	if k == xlsx.KindNumeric {
		vals := make([]float64, n)
		for i := range vals {
			vals[i] = math.NaN()
		}
		return xlsx.NumericColumn(name, vals)
	}
	return xlsx.TextColumn(name, make([]string, n))
}

// asText converts any column to its textual form.
func asText(c xlsx.Column) xlsx.Column {
	if c.Kind == xlsx.KindText {
		return c
	}
	out := make([]string, c.Len())
	for i := range out {
		out[i] = c.Text(i)
	}
	return xlsx.TextColumn(c.Name, out)
}

// concatSheets appends the rows of b below a. Columns are matched by name;
// columns present on one side only are filled with missing values. A column
// that is numeric on one side and text on the other becomes text.
func concatSheets(a, b *xlsx.Sheet) *xlsx.Sheet {
	na, nb := a.Rows(), b.Rows()
	names := a.Headers()
	for _, c := range b.Columns {
		if _, ok := a.Index(c.Name); !ok {
			names = append(names, c.Name)
		}
	}

	out := &xlsx.Sheet{Name: a.Name, Columns: make([]xlsx.Column, 0, len(names))}
	for _, name := range names {
		var ca, cb xlsx.Column
		ia, okA := a.Index(name)
		ib, okB := b.Index(name)
		switch {
		case okA && okB:
			ca, cb = a.Columns[ia], b.Columns[ib]
		case okA:
			ca = a.Columns[ia]
			cb = emptyLike(name, ca.Kind, nb)
		default:
			cb = b.Columns[ib]
			ca = emptyLike(name, cb.Kind, na)
		}
		if ca.Kind == xlsx.KindNumeric && cb.Kind == xlsx.KindNumeric {
			vals := make([]float64, 0, na+nb)
			vals = append(append(vals, ca.Numbers...), cb.Numbers...)
			out.Columns = append(out.Columns, xlsx.NumericColumn(name, vals))
			continue
		}
		ta, tb := asText(ca), asText(cb)
		vals := make([]string, 0, na+nb)
		vals = append(append(vals, ta.Texts...), tb.Texts...)
		out.Columns = append(out.Columns, xlsx.TextColumn(name, vals))
	}
	return out
}

// selectRows returns the rows at idx, in that order.
func selectRows(s *xlsx.Sheet, idx []int) *xlsx.Sheet {
	out := &xlsx.Sheet{Name: s.Name, Columns: make([]xlsx.Column, len(s.Columns))}
	for c, col := range s.Columns {
		if col.Kind == xlsx.KindNumeric {
			vals := make([]float64, len(idx))
			for i, r := range idx {
				vals[i] = col.Numbers[r]
			}
			out.Columns[c] = xlsx.NumericColumn(col.Name, vals)
			continue
		}
		vals := make([]string, len(idx))
		for i, r := range idx {
			vals[i] = col.Texts[r]
		}
		out.Columns[c] = xlsx.TextColumn(col.Name, vals)
	}
	return out
}

// filterRows keeps the rows for which keep returns true.
func filterRows(s *xlsx.Sheet, keep func(row int) bool) *xlsx.Sheet {
	idx := make([]int, 0, s.Rows())
	for r := range s.Rows() {
		if keep(r) {
			idx = append(idx, r)
		}
	}
	return selectRows(s, idx)
}

// withoutColumn drops the named column if present.
func withoutColumn(s *xlsx.Sheet, name string) *xlsx.Sheet {
	out := &xlsx.Sheet{Name: s.Name, Columns: make([]xlsx.Column, 0, s.Width())}
	for _, c := range s.Columns {
		if c.Name != name {
			out.Columns = append(out.Columns, c)
		}
	}
	return out
}

// withConstant appends (or replaces) a text column holding value in every row.
func withConstant(s *xlsx.Sheet, name, value string) *xlsx.Sheet {
	vals := make([]string, s.Rows())
	for i := range vals {
		vals[i] = value
	}
	out := withoutColumn(s, name)
	out.Columns = append(out.Columns, xlsx.TextColumn(name, vals))
	return out
}

// renamed returns s with its name replaced.
func renamed(s *xlsx.Sheet, name string) *xlsx.Sheet {
	return &xlsx.Sheet{Name: name, Columns: s.Columns}
}

// exportView drops the upload tag column.
func exportView(s *xlsx.Sheet, name string) *xlsx.Sheet {
	return renamed(withoutColumn(s, UploadIDColumn), name)
}

// parseNumber accepts plain decimal literals only: no hex, no inf or nan
// spellings, no thousands separators.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	digits := false
	for i := 0; i < len(s); i++ {
		switch ch := s[i]; {
		case ch >= '0' && ch <= '9':
			digits = true
		case ch == '.' || ch == '+' || ch == '-' || ch == 'e' || ch == 'E':
		default:
			return 0, false
		}
	}
	if !digits {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !xlsx.IsFinite(v) {
		return 0, false
	}
	return v, true
}

// inferKinds converts every text column whose non-missing values all parse
// as numbers into a numeric column. Columns with no values stay text.
func inferKinds(s *xlsx.Sheet) *xlsx.Sheet {
	out := &xlsx.Sheet{Name: s.Name, Columns: make([]xlsx.Column, len(s.Columns))}
	for c, col := range s.Columns {
		out.Columns[c] = inferColumn(col)
	}
	return out
}

func inferColumn(col xlsx.Column) xlsx.Column {
	if col.Kind != xlsx.KindText {
		return col
	}
	vals := make([]float64, len(col.Texts))
	seen := false
	for i, raw := range col.Texts {
		text := xlsx.NormalizeText(strings.TrimSpace(raw))
		if text == "" {
			vals[i] = math.NaN()
			continue
		}
		v, ok := parseNumber(text)
		if !ok {
			return col
		}
		vals[i] = v
		seen = true
	}
	if !seen {
		return col
	}
	return xlsx.NumericColumn(col.Name, vals)
}

// numericValue returns row i of col as a number, parsing text when needed.
func numericValue(col *xlsx.Column, i int) (float64, bool) {
	if col.Kind == xlsx.KindNumeric {
		v := col.Numbers[i]
		return v, xlsx.IsFinite(v)
	}
	return parseNumber(xlsx.NormalizeText(col.Texts[i]))
}

// isIntegral reports whether every finite value of a numeric column is whole.
func isIntegral(col *xlsx.Column) bool {
	for _, v := range col.Numbers {
		if xlsx.IsFinite(v) && v != math.Trunc(v) {
			return false
		}
	}
	return true
}

// ValueCount is one entry of a frequency table.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// valueCounts counts the non-missing display values of col over rows,
// most frequent first. Ties keep first-seen order.
func valueCounts(col *xlsx.Column, rows []int) []ValueCount {
	index := make(map[string]int)
	var out []ValueCount
	for _, r := range rows {
		if col.IsMissing(r) {
			continue
		}
		v := col.Text(r)
		if i, ok := index[v]; ok {
			out[i].Count++
			continue
		}
		index[v] = len(out)
		out = append(out, ValueCount{Value: v, Count: 1})
	}
	slices.SortStableFunc(out, func(a, b ValueCount) int {
		return b.Count - a.Count
	})
	return out
}

// allRows returns 0..n-1.
func allRows(n int) []int {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return rows
}

// round rounds v to the given number of decimal places, half away from zero.
func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
