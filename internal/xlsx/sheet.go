package xlsx

import (
	"fmt"
	"math"
	"strconv"
)

// ColumnKind classifies a column's scalar values.
type ColumnKind uint8

const (
	KindText ColumnKind = iota
	KindNumeric
)

func (k ColumnKind) String() string {
	if k == KindNumeric {
		return "numeric"
	}
	return "text"
}

// Column is one named, homogeneous column of a sheet. Numeric columns use
// Numbers (NaN marks a missing value); text columns use Texts.
type Column struct {
	Name    string
	Kind    ColumnKind
	Numbers []float64
	Texts   []string
}

// TextColumn builds a textual column.
func TextColumn(name string, values []string) Column {
	return Column{Name: name, Kind: KindText, Texts: values}
}

// NumericColumn builds a numeric column.
func NumericColumn(name string, values []float64) Column {
	return Column{Name: name, Kind: KindNumeric, Numbers: values}
}

// Len returns the number of values in the column.
func (c Column) Len() int {
	if c.Kind == KindNumeric {
		return len(c.Numbers)
	}
	return len(c.Texts)
}

// Text returns the display string of row i. Missing values render as "".
func (c Column) Text(i int) string {
	if c.Kind == KindNumeric {
		v := c.Numbers[i]
		if !IsFinite(v) {
			return ""
		}
		return FormatNumber(v)
	}
	return NormalizeText(c.Texts[i])
}

// IsMissing reports whether row i holds no value.
func (c Column) IsMissing(i int) bool {
	if c.Kind == KindNumeric {
		return math.IsNaN(c.Numbers[i])
	}
	return NormalizeText(c.Texts[i]) == ""
}

// Sheet is a named, column-oriented table. A sheet is treated as immutable
// once built; helpers that change shape return a new sheet.
type Sheet struct {
	Name    string
	Columns []Column
}

// NewSheet builds a sheet from columns.
func NewSheet(name string, cols ...Column) *Sheet {
	return &Sheet{Name: name, Columns: cols}
}

// Width returns the number of columns.
func (s *Sheet) Width() int {
	if s == nil {
		return 0
	}
	return len(s.Columns)
}

// Rows returns the number of data rows (the header row is not counted).
func (s *Sheet) Rows() int {
	if s == nil || len(s.Columns) == 0 {
		return 0
	}
	return s.Columns[0].Len()
}

// Headers returns the column names in order.
func (s *Sheet) Headers() []string {
	out := make([]string, s.Width())
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// Index returns the position of the named column.
func (s *Sheet) Index(name string) (int, bool) {
	for i, c := range s.Columns {
		if c.Name == name {
			return i, true
		}
	}
	return -1, false
}

// Validate checks that every column has the same length.
func (s *Sheet) Validate() error {
	n := s.Rows()
	for _, c := range s.Columns {
		if c.Len() != n {
			return fmt.Errorf("column %q has %d values, want %d", c.Name, c.Len(), n)
		}
	}
	return nil
}

// missingTokens are the literal spellings of an absent value that upstream
// tools write into text columns.
var missingTokens = map[string]struct{}{
	"nan":  {},
	"None": {},
	"<NA>": {},
	"NaT":  {},
}

// NormalizeText maps missing-value tokens to the empty string.
func NormalizeText(s string) string {
	if _, ok := missingTokens[s]; ok {
		return ""
	}
	return s
}

// IsFinite reports whether v is neither NaN nor an infinity.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// FormatNumber renders a finite float as the shortest literal that parses
// back to the same value. Integral values within the exact float range
// render without a fractional part.
func FormatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
