package risk

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/datacompile/internal/core"
	"github.com/JonMunkholm/datacompile/internal/xlsx"
)

// Check column caps.
const (
	maxOutlierColumns       = 20
	maxConcentrationColumns = 15
	maxRoundColumns         = 15
	maxBenfordColumns       = 10
)

// benfordCritical is the chi-squared critical value for 8 degrees of
// freedom at 0.05 significance.
const benfordCritical = 15.51

// splitThresholds are common approval limits.
var splitThresholds = []float64{1000, 5000, 10000, 25000, 50000, 100000}

// checkDuplicates flags rows that repeat across the key columns (all
// visible columns when keys is empty).
func checkDuplicates(t *xlsx.Sheet, keys []string) []Finding {
	cols := presentColumns(t, keys)
	if len(cols) == 0 {
		cols = presentColumns(t, visible(t))
	}
	if len(cols) == 0 {
		return nil
	}

	rowKeys := make([]string, t.Rows())
	groups := make(map[string]int)
	for r := range rowKeys {
		var b strings.Builder
		for _, c := range cols {
			if c.IsMissing(r) {
				b.WriteString("\x00")
			} else {
				b.WriteString(c.Text(r))
			}
			b.WriteByte('\x1f')
		}
		rowKeys[r] = b.String()
		groups[rowKeys[r]]++
	}

	var dupes []int
	for r, k := range rowKeys {
		if groups[k] > 1 {
			dupes = append(dupes, r)
		}
	}
	if len(dupes) == 0 {
		return nil
	}
	nGroups := 0
	for _, n := range groups {
		if n > 1 {
			nGroups++
		}
	}

	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	var evidence []any
	for _, r := range dupes[:min(len(dupes), 20)] {
		row := make(map[string]any, len(cols))
		for _, c := range cols {
			row[c.Name] = cellValue(c, r)
		}
		evidence = append(evidence, row)
	}

	n := len(dupes)
	return []Finding{{
		CheckType: CheckDuplicate,
		Level:     grade(float64(n), 100, 10),
		Title:     fmt.Sprintf("%d duplicate rows found", n),
		Detail:    fmt.Sprintf("%d groups of duplicate records detected across %d columns.", nGroups, len(cols)),
		Evidence:  evidence,
		Stats:     map[string]any{"total_duplicates": n, "groups": nGroups, "columns_checked": names},
	}}
}

// checkOutliers applies the 1.5×IQR rule to each numeric column.
func checkOutliers(t *xlsx.Sheet, cols []*xlsx.Column) []Finding {
	var out []Finding
	total := t.Rows()
	for _, c := range cols[:min(len(cols), maxOutlierColumns)] {
		values := numbers(c)
		if len(values) < 10 {
			continue
		}
		slices.Sort(values)
		q1, q3 := quantile(values, 0.25), quantile(values, 0.75)
		iqr := q3 - q1
		if iqr == 0 {
			continue
		}
		lower, upper := q1-1.5*iqr, q3+1.5*iqr

		var hits []float64
		for i := range c.Len() {
			if c.IsMissing(i) {
				continue
			}
			if v := c.Numbers[i]; v < lower || v > upper {
				hits = append(hits, v)
			}
		}
		if len(hits) == 0 {
			continue
		}

		pct := round1(float64(len(hits)) / float64(total) * 100)
		expected := fmt.Sprintf("%.2f - %.2f", lower, upper)
		evidence := make([]any, 0, 10)
		for _, v := range hits[:min(len(hits), 10)] {
			evidence = append(evidence, map[string]any{"value": v, "expected_range": expected})
		}
		out = append(out, Finding{
			CheckType: CheckOutlier,
			Level:     grade(pct, 10, 3),
			Title:     fmt.Sprintf("%d outliers in %q (%s%%)", len(hits), c.Name, pctString(pct)),
			Detail:    fmt.Sprintf("Values outside IQR range [%.2f, %.2f]. Q1=%.2f, Q3=%.2f.", lower, upper, q1, q3),
			Evidence:  evidence,
			Stats: map[string]any{
				"column": c.Name, "outlier_count": len(hits), "pct": pct,
				"lower_bound": lower, "upper_bound": upper,
			},
		})
	}
	return out
}

// checkConcentration flags text columns where one value holds at least a
// quarter of the non-missing values.
func checkConcentration(cols []*xlsx.Column) []Finding {
	var out []Finding
	for _, c := range cols[:min(len(cols), maxConcentrationColumns)] {
		counts := valueCounts(c)
		if len(counts) == 0 {
			continue
		}
		filled := 0
		for _, vc := range counts {
			filled += vc.count
		}
		share := func(n int) float64 { return round1(float64(n) / float64(filled) * 100) }

		top := counts[0]
		topPct := share(top.count)
		if topPct < 25 {
			continue
		}
		var evidence []any
		for _, vc := range counts[:min(len(counts), 5)] {
			evidence = append(evidence, map[string]any{
				"value": vc.value, "percentage": share(vc.count), "count": vc.count,
			})
		}
		out = append(out, Finding{
			CheckType: CheckConcentration,
			Level:     grade(topPct, 60, 40),
			Title:     fmt.Sprintf("%q: top value is %s%% of all records", c.Name, pctString(topPct)),
			Detail:    fmt.Sprintf("%q accounts for %s%% (%d rows).", top.value, pctString(topPct), top.count),
			Evidence:  evidence,
			Stats: map[string]any{
				"column": c.Name, "top_value": top.value, "top_pct": topPct, "unique_count": len(counts),
			},
		})
	}
	return out
}

// checkTrendAnomalies flags months whose row count moved by more than twice
// the mean absolute month-over-month change.
func checkTrendAnomalies(dates []time.Time, ok []bool) []Finding {
	monthly := make(map[string]int)
	for i, d := range dates {
		if ok[i] {
			monthly[d.Format("2006-01")]++
		}
	}
	if len(monthly) < 3 {
		return nil
	}
	months := make([]string, 0, len(monthly))
	for m := range monthly {
		months = append(months, m)
	}
	slices.Sort(months)

	var sum float64
	for i := 1; i < len(months); i++ {
		sum += math.Abs(float64(monthly[months[i]] - monthly[months[i-1]]))
	}
	avg := sum / float64(len(months)-1)
	if avg == 0 {
		return nil
	}

	var evidence []any
	for i := 1; i < len(months); i++ {
		cur, prev := monthly[months[i]], monthly[months[i-1]]
		change := cur - prev
		if math.Abs(float64(change)) <= 2*avg {
			continue
		}
		pctChange := 0.0
		if prev != 0 {
			pctChange = round1(float64(change) / float64(prev) * 100)
		}
		evidence = append(evidence, map[string]any{
			"month": months[i], "count": cur, "prev_count": prev,
			"change": change, "pct_change": pctChange,
		})
	}
	if len(evidence) == 0 {
		return nil
	}
	n := len(evidence)
	return []Finding{{
		CheckType: CheckTrendAnomaly,
		Level:     grade(float64(n), 3, 1),
		Title:     fmt.Sprintf("%d monthly trend anomalies detected", n),
		Detail:    fmt.Sprintf("Months with volume changes exceeding 2x the average monthly variation (%.0f).", avg),
		Evidence:  evidence[:min(n, 10)],
		Stats:     map[string]any{"anomaly_count": n, "avg_monthly_change": round1(avg)},
	}}
}

// checkMissingData flags columns with at least 5% missing values.
func checkMissingData(t *xlsx.Sheet) []Finding {
	total := t.Rows()
	if total == 0 {
		return nil
	}
	var out []Finding
	for i := range t.Columns {
		c := &t.Columns[i]
		if c.Name == core.UploadIDColumn {
			continue
		}
		nulls := 0
		for r := range total {
			if c.IsMissing(r) {
				nulls++
			}
		}
		pct := round1(float64(nulls) / float64(total) * 100)
		if pct < 5 {
			continue
		}
		out = append(out, Finding{
			CheckType: CheckMissingData,
			Level:     grade(pct, 50, 20),
			Title:     fmt.Sprintf("%q: %s%% missing (%d rows)", c.Name, pctString(pct), nulls),
			Detail:    fmt.Sprintf("Column has %d null/empty values out of %d total rows.", nulls, total),
			Evidence:  []any{},
			Stats:     map[string]any{"column": c.Name, "null_count": nulls, "pct": pct},
		})
	}
	return out
}

// checkRoundNumbers flags numeric columns dominated by exact multiples of
// 1,000 or 100.
func checkRoundNumbers(cols []*xlsx.Column) []Finding {
	var out []Finding
	for _, c := range cols[:min(len(cols), maxRoundColumns)] {
		values := numbers(c)
		if len(values) < 20 {
			continue
		}
		var thousands, hundreds int
		for _, v := range values {
			if math.Mod(v, 1000) == 0 {
				thousands++
			}
			if math.Mod(v, 100) == 0 {
				hundreds++
			}
		}
		pct1000 := round1(float64(thousands) / float64(len(values)) * 100)
		pct100 := round1(float64(hundreds) / float64(len(values)) * 100)

		switch {
		case pct1000 > 30:
			level := LevelLow
			if pct1000 > 50 {
				level = LevelMedium
			}
			out = append(out, Finding{
				CheckType: CheckRoundNumbers,
				Level:     level,
				Title:     fmt.Sprintf("%q: %s%% are round thousands", c.Name, pctString(pct1000)),
				Detail:    fmt.Sprintf("%d values are exact multiples of 1,000, which may indicate estimation or rounding.", thousands),
				Evidence:  []any{},
				Stats: map[string]any{
					"column": c.Name, "round_1000_count": thousands,
					"round_1000_pct": pct1000, "round_100_pct": pct100,
				},
			})
		case pct100 > 40:
			out = append(out, Finding{
				CheckType: CheckRoundNumbers,
				Level:     LevelLow,
				Title:     fmt.Sprintf("%q: %s%% are round hundreds", c.Name, pctString(pct100)),
				Detail:    fmt.Sprintf("%d values are exact multiples of 100.", hundreds),
				Evidence:  []any{},
				Stats:     map[string]any{"column": c.Name, "round_100_count": hundreds, "round_100_pct": pct100},
			})
		}
	}
	return out
}

// checkWeekendActivity reports records dated on Saturday or Sunday.
func checkWeekendActivity(dates []time.Time, ok []bool) []Finding {
	var valid []time.Time
	for i, d := range dates {
		if ok[i] {
			valid = append(valid, d)
		}
	}
	if len(valid) < 10 {
		return nil
	}

	weekend := 0
	byDay := make(map[string]int)
	var order []string
	for _, d := range valid {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			weekend++
		}
		name := d.Weekday().String()
		if byDay[name] == 0 {
			order = append(order, name)
		}
		byDay[name]++
	}
	if weekend == 0 {
		return nil
	}
	slices.SortStableFunc(order, func(a, b string) int { return byDay[b] - byDay[a] })
	evidence := make([]any, 0, len(order))
	for _, day := range order {
		evidence = append(evidence, map[string]any{"day": day, "count": byDay[day]})
	}

	total := len(valid)
	pct := round1(float64(weekend) / float64(total) * 100)
	level := LevelLow
	if pct > 15 {
		level = LevelMedium
	}
	return []Finding{{
		CheckType: CheckWeekendActivity,
		Level:     level,
		Title:     fmt.Sprintf("%d weekend transactions (%s%%)", weekend, pctString(pct)),
		Detail:    fmt.Sprintf("%d records dated on Saturday/Sunday out of %d total.", weekend, total),
		Evidence:  evidence,
		Stats:     map[string]any{"weekend_count": weekend, "total": total, "pct": pct},
	}}
}

// checkBenford compares each numeric column's first-digit distribution with
// Benford's law using a chi-squared statistic.
func checkBenford(cols []*xlsx.Column) []Finding {
	var out []Finding
	for _, c := range cols[:min(len(cols), maxBenfordColumns)] {
		var digits [10]int
		n := 0
		for _, v := range numbers(c) {
			v = math.Abs(v)
			if v == 0 {
				continue
			}
			digits[firstDigit(v)]++
			n++
		}
		if n < 100 {
			continue
		}

		var chi2 float64
		evidence := make([]any, 0, 9)
		for d := 1; d <= 9; d++ {
			observed := float64(digits[d]) / float64(n)
			expected := math.Log10(1 + 1/float64(d))
			chi2 += (observed - expected) * (observed - expected) / expected * float64(n)
			evidence = append(evidence, map[string]any{
				"digit":        d,
				"observed_pct": round1(observed * 100),
				"expected_pct": round1(expected * 100),
				"deviation":    round1((observed - expected) * 100),
			})
		}
		if chi2 <= benfordCritical {
			continue
		}
		level := LevelMedium
		if chi2 > 30 {
			level = LevelHigh
		}
		out = append(out, Finding{
			CheckType: CheckBenford,
			Level:     level,
			Title:     fmt.Sprintf("%q deviates from Benford's Law (chi2=%.1f)", c.Name, chi2),
			Detail: fmt.Sprintf("First-digit distribution significantly deviates from expected pattern. "+
				"High chi-squared (%.1f > %.2f) may indicate data manipulation.", chi2, benfordCritical),
			Evidence: evidence,
			Stats:    map[string]any{"column": c.Name, "chi_squared": math.Round(chi2*100) / 100, "sample_size": n},
		})
	}
	return out
}

// firstDigit returns the leading significant digit of a positive number.
func firstDigit(v float64) int {
	return int(strconv.FormatFloat(v, 'e', -1, 64)[0] - '0')
}

type splitGroup struct {
	day     string
	party   string
	amounts []float64
}

// checkSplitTransactions looks for same-day groups (per party when party is
// set) whose amounts each stay under an approval threshold while their total
// reaches it, with at least two amounts above half the threshold.
func checkSplitTransactions(t *xlsx.Sheet, dates []time.Time, ok []bool, amount, party *xlsx.Column) []Finding {
	index := make(map[[2]string]*splitGroup)
	var groups []*splitGroup
	usable := 0
	for r := range t.Rows() {
		if !ok[r] || amount.IsMissing(r) {
			continue
		}
		usable++
		key := [2]string{dates[r].Format("2006-01-02"), "N/A"}
		if party != nil {
			if party.IsMissing(r) {
				continue
			}
			key[1] = party.Text(r)
		}
		g, seen := index[key]
		if !seen {
			g = &splitGroup{day: key[0], party: key[1]}
			index[key] = g
			groups = append(groups, g)
		}
		g.amounts = append(g.amounts, amount.Numbers[r])
	}
	if usable < 10 {
		return nil
	}
	slices.SortFunc(groups, func(a, b *splitGroup) int {
		if c := strings.Compare(a.day, b.day); c != 0 {
			return c
		}
		return strings.Compare(a.party, b.party)
	})

	var evidence []any
	for _, g := range groups {
		if len(g.amounts) < 2 {
			continue
		}
		var total float64
		largest := math.Inf(-1)
		for _, v := range g.amounts {
			total += v
			largest = max(largest, v)
		}
		for _, threshold := range splitThresholds {
			if largest >= threshold || total < threshold {
				continue
			}
			near := 0
			for _, v := range g.amounts {
				if v > threshold*0.5 {
					near++
				}
			}
			if near < 2 {
				continue
			}
			evidence = append(evidence, map[string]any{
				"date":               g.day,
				"vendor":             g.party,
				"transaction_count":  len(g.amounts),
				"individual_amounts": slices.Clone(g.amounts[:min(len(g.amounts), 5)]),
				"total":              total,
				"threshold":          threshold,
			})
			break
		}
		if len(evidence) >= 20 {
			break
		}
	}
	if len(evidence) == 0 {
		return nil
	}
	n := len(evidence)
	return []Finding{{
		CheckType: CheckSplitTransaction,
		Level:     grade(float64(n), 5, 2),
		Title:     fmt.Sprintf("%d potential split transactions detected", n),
		Detail: "Same-day transactions by the same party with individual amounts below approval " +
			"thresholds but combined total exceeding them.",
		Evidence: evidence[:min(n, 15)],
		Stats:    map[string]any{"groups_flagged": n},
	}}
}

// ============================================================================
// Helpers
// ============================================================================

// grade maps v to high above high, medium above medium, low otherwise.
func grade(v, high, medium float64) Level {
	switch {
	case v > high:
		return LevelHigh
	case v > medium:
		return LevelMedium
	}
	return LevelLow
}

func visible(t *xlsx.Sheet) []string {
	var out []string
	for _, c := range t.Columns {
		if c.Name != core.UploadIDColumn {
			out = append(out, c.Name)
		}
	}
	return out
}

// presentColumns resolves names against t, skipping unknown ones and the
// upload tag.
func presentColumns(t *xlsx.Sheet, names []string) []*xlsx.Column {
	var out []*xlsx.Column
	for _, name := range names {
		if name == core.UploadIDColumn {
			continue
		}
		if i, ok := t.Index(name); ok {
			out = append(out, &t.Columns[i])
		}
	}
	return out
}

// columnsOfKind returns the visible columns of kind k in table order.
func columnsOfKind(t *xlsx.Sheet, k xlsx.ColumnKind) []*xlsx.Column {
	var out []*xlsx.Column
	for i := range t.Columns {
		c := &t.Columns[i]
		if c.Kind == k && c.Name != core.UploadIDColumn {
			out = append(out, c)
		}
	}
	return out
}

// numbers returns the non-missing values of a numeric column.
func numbers(c *xlsx.Column) []float64 {
	out := make([]float64, 0, c.Len())
	for i := range c.Len() {
		if !c.IsMissing(i) {
			out = append(out, c.Numbers[i])
		}
	}
	return out
}

type valueCount struct {
	value string
	count int
}

// valueCounts counts non-missing values, most frequent first with ties in
// first-seen order.
func valueCounts(c *xlsx.Column) []valueCount {
	index := make(map[string]int)
	var out []valueCount
	for i := range c.Len() {
		if c.IsMissing(i) {
			continue
		}
		v := c.Text(i)
		if j, ok := index[v]; ok {
			out[j].count++
			continue
		}
		index[v] = len(out)
		out = append(out, valueCount{value: v, count: 1})
	}
	slices.SortStableFunc(out, func(a, b valueCount) int { return b.count - a.count })
	return out
}

// quantile interpolates linearly between the closest ranks of sorted.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := min(lo+1, len(sorted)-1)
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

func cellValue(c *xlsx.Column, i int) any {
	if c.IsMissing(i) {
		return nil
	}
	if c.Kind == xlsx.KindNumeric {
		return c.Numbers[i]
	}
	return c.Texts[i]
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

// pctString formats a one-decimal percentage the way it is displayed.
func pctString(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) }
