package core

import (
	"slices"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/datacompile/internal/xlsx"
)

// dateLayouts are tried in order by ParseDate.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01/02/2006 15:04:05",
	"1/2/2006 15:04",
	"02-Jan-2006",
	"2-Jan-2006",
	"02 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 January 2006",
	"20060102",
}

// Excel serial bounds: serials outside [1, 9999-12-31] are not dates, and
// only serials between 1970 and 2100 count when guessing a column's role.
const (
	serialMin      = 1
	serialMax      = 2958465
	serialGuessMin = 25569
	serialGuessMax = 73051
)

// ParseDate parses the date spellings that show up in uploaded sheets.
// Times are returned in UTC.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ParseDay parses a request date bound (YYYY-MM-DD or any ParseDate layout)
// truncated to midnight.
func ParseDay(s string) (time.Time, bool) {
	t, ok := ParseDate(s)
	if !ok {
		return time.Time{}, false
	}
	return t.Truncate(24 * time.Hour), true
}

// serialDate converts an Excel serial day number.
func serialDate(v float64) (time.Time, bool) {
	if v < serialMin || v > serialMax {
		return time.Time{}, false
	}
	t, err := excelize.ExcelDateToTime(v, false)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// dateAt reads row i of col as a date. Numeric cells are Excel serials.
func dateAt(col *xlsx.Column, i int) (time.Time, bool) {
	if col.Kind == xlsx.KindNumeric {
		v := col.Numbers[i]
		if !xlsx.IsFinite(v) {
			return time.Time{}, false
		}
		return serialDate(v)
	}
	return ParseDate(xlsx.NormalizeText(col.Texts[i]))
}

// ParseDates reads every row of col as a date; ok[i] reports whether row i
// parsed.
func ParseDates(col *xlsx.Column) (dates []time.Time, ok []bool) {
	n := col.Len()
	dates = make([]time.Time, n)
	ok = make([]bool, n)
	for i := range n {
		dates[i], ok[i] = dateAt(col, i)
	}
	return dates, ok
}

// dateSampleSize is how many non-missing values decide a column's role.
const dateSampleSize = 10

// looksLikeDates guesses whether col holds dates: at least 80% of the first
// ten non-missing values must parse. Samples made only of short digit runs
// (years, codes) are rejected outright.
func looksLikeDates(col *xlsx.Column) bool {
	var sample []int
	for i := range col.Len() {
		if !col.IsMissing(i) {
			sample = append(sample, i)
			if len(sample) == dateSampleSize {
				break
			}
		}
	}
	if len(sample) == 0 {
		return false
	}

	shortDigits := true
	for _, i := range sample {
		if !isShortDigits(col.Text(i)) {
			shortDigits = false
			break
		}
	}
	if shortDigits {
		return false
	}

	parsed := 0
	for _, i := range sample {
		if col.Kind == xlsx.KindNumeric {
			v := col.Numbers[i]
			if v >= serialGuessMin && v <= serialGuessMax {
				parsed++
			}
			continue
		}
		if _, ok := dateAt(col, i); ok {
			parsed++
		}
	}
	return float64(parsed)/float64(len(sample)) >= 0.8
}

func isShortDigits(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 4 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// formatDay renders YYYY-MM-DD.
func formatDay(t time.Time) string {
	return t.Format("2006-01-02")
}

// formatLabelDay renders dd-Mon-YYYY for report labels.
func formatLabelDay(t time.Time) string {
	return t.Format("02-Jan-2006")
}

// monthKey renders YYYY-MM.
func monthKey(t time.Time) string {
	return t.Format("2006-01")
}

// parseDateCell parses a date cell exactly as the package readers render it.
func parseDateCell(s string) (time.Time, bool) {
	for _, layout := range []string{xlsx.DateLayout, xlsx.DateTimeLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// isDateCellColumn reports whether col holds date cells: a text column whose
// non-missing values all parse with parseDateCell, with at least one value.
func isDateCellColumn(col *xlsx.Column) bool {
	if col.Kind != xlsx.KindText {
		return false
	}
	seen := false
	for i, v := range col.Texts {
		if col.IsMissing(i) {
			continue
		}
		if _, ok := parseDateCell(v); !ok {
			return false
		}
		seen = true
	}
	return seen
}

// withExportDates renders every date-cell column of s as dd-Mon-YYYY, the
// way spreadsheet downloads show dates. s itself is not modified.
func withExportDates(s *xlsx.Sheet) *xlsx.Sheet {
	out := s
	for i := range s.Columns {
		col := &s.Columns[i]
		if !isDateCellColumn(col) {
			continue
		}
		if out == s {
			out = &xlsx.Sheet{Name: s.Name, Columns: slices.Clone(s.Columns)}
		}
		vals := make([]string, len(col.Texts))
		for r, v := range col.Texts {
			if d, ok := parseDateCell(v); ok {
				vals[r] = formatLabelDay(d)
			}
		}
		out.Columns[i] = xlsx.TextColumn(col.Name, vals)
	}
	return out
}
