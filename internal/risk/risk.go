// Package risk runs audit checks over a consolidated table and keeps a
// history of scans.
//
// Run is pure: it reads the table and the project settings and returns a
// Report. Store persists reports in SQLite so earlier scans can be listed
// and their findings reloaded.
package risk

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/JonMunkholm/datacompile/internal/core"
	"github.com/JonMunkholm/datacompile/internal/xlsx"
)

// Level is a finding's severity.
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

func (l Level) rank() int {
	switch l {
	case LevelHigh:
		return 0
	case LevelMedium:
		return 1
	case LevelLow:
		return 2
	}
	return 3
}

// Check types.
const (
	CheckDuplicate        = "duplicate"
	CheckOutlier          = "outlier"
	CheckConcentration    = "concentration"
	CheckTrendAnomaly     = "trend_anomaly"
	CheckMissingData      = "missing_data"
	CheckRoundNumbers     = "round_numbers"
	CheckWeekendActivity  = "weekend_activity"
	CheckBenford          = "benfords_law"
	CheckSplitTransaction = "split_transaction"
)

// Finding is one issue raised by a check.
type Finding struct {
	ID        int64          `json:"id,omitempty"`
	CheckType string         `json:"check_type"`
	Level     Level          `json:"level"`
	Title     string         `json:"title"`
	Detail    string         `json:"detail"`
	Evidence  []any          `json:"evidence"`
	Stats     map[string]any `json:"stats,omitempty"`
}

// Summary counts findings by severity.
type Summary struct {
	TotalRows     int `json:"total_rows"`
	TotalFindings int `json:"total_findings"`
	High          int `json:"high"`
	Medium        int `json:"medium"`
	Low           int `json:"low"`
}

// Report is the result of one scan, findings ordered high to low.
type Report struct {
	Summary  Summary   `json:"summary"`
	Findings []Finding `json:"findings"`
}

// Keywords matched against top column display names (party, amount) and,
// for amounts, against numeric column names.
var (
	partyWords  = []string{"vendor", "supplier", "transporter", "agent", "party"}
	amountWords = []string{"amount", "value", "cost", "price", "total"}
	amountNames = []string{"amount", "value", "cost", "price", "total", "sum"}
)

// Run executes every check against t.
//
// The settings' top columns are the duplicate keys. A top column whose
// display name mentions a party (vendor, supplier...) or an amount (amount,
// cost...) feeds the split-transaction check. Without an amount top column,
// the first numeric column whose name looks like an amount is used.
// Date-based checks run only when the date column exists.
func Run(t *xlsx.Sheet, st core.Settings) Report {
	var keys []string
	var party, amount string
	for _, tc := range st.TopColumns {
		if tc.Column == "" {
			continue
		}
		keys = append(keys, tc.Column)
		display := strings.ToLower(tc.DisplayName)
		if containsAny(display, partyWords) {
			party = tc.Column
		}
		if containsAny(display, amountWords) {
			amount = tc.Column
		}
	}

	numeric := columnsOfKind(t, xlsx.KindNumeric)
	text := columnsOfKind(t, xlsx.KindText)
	if amount == "" {
		for _, c := range numeric {
			if containsAny(strings.ToLower(c.Name), amountNames) {
				amount = c.Name
				break
			}
		}
	}

	var findings []Finding
	findings = append(findings, checkDuplicates(t, keys)...)
	findings = append(findings, checkOutliers(t, numeric)...)
	findings = append(findings, checkConcentration(text)...)

	var dates []time.Time
	var ok []bool
	if col := lookup(t, st.DateColumn); col != nil {
		dates, ok = core.ParseDates(col)
		findings = append(findings, checkTrendAnomalies(dates, ok)...)
	}
	findings = append(findings, checkMissingData(t)...)
	findings = append(findings, checkRoundNumbers(numeric)...)
	if dates != nil {
		findings = append(findings, checkWeekendActivity(dates, ok)...)
	}
	findings = append(findings, checkBenford(numeric)...)
	if amountCol := lookup(t, amount); dates != nil && amountCol != nil && amountCol.Kind == xlsx.KindNumeric {
		findings = append(findings, checkSplitTransactions(t, dates, ok, amountCol, lookup(t, party))...)
	}

	slices.SortStableFunc(findings, func(a, b Finding) int { return cmp.Compare(a.Level.rank(), b.Level.rank()) })
	return Report{Summary: summarize(t.Rows(), findings), Findings: findings}
}

func summarize(rows int, findings []Finding) Summary {
	s := Summary{TotalRows: rows, TotalFindings: len(findings)}
	for _, f := range findings {
		switch f.Level {
		case LevelHigh:
			s.High++
		case LevelMedium:
			s.Medium++
		case LevelLow:
			s.Low++
		}
	}
	return s
}

// lookup returns the named visible column, or nil.
func lookup(t *xlsx.Sheet, name string) *xlsx.Column {
	if name == "" || name == core.UploadIDColumn {
		return nil
	}
	if i, ok := t.Index(name); ok {
		return &t.Columns[i]
	}
	return nil
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
