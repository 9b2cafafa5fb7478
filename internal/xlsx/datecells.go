package xlsx

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Date cells are serial day numbers with a date number format. Both package
// readers render them as ISO text with the helpers below so they agree.

// Layouts of date cells as returned by the package readers.
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04:05"
)

// maxSerial is 9999-12-31 in the 1900 date system.
const maxSerial = 2958465

var (
	epoch1900 = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
	epoch1904 = time.Date(1904, 1, 1, 0, 0, 0, 0, time.UTC)
)

// SerialTime converts a serial day number to a UTC time, to the second. In
// the 1900 system serials below 60 are shifted by a day to step over the
// nonexistent 1900-02-29.
func SerialTime(v float64, date1904 bool) (time.Time, bool) {
	if math.IsNaN(v) || v < 0 || v > maxSerial {
		return time.Time{}, false
	}
	base := epoch1900
	if date1904 {
		base = epoch1904
	} else if v < 60 {
		v++
	}
	days := math.Floor(v)
	secs := math.Round((v - days) * 86400)
	return base.AddDate(0, 0, int(days)).Add(time.Duration(secs) * time.Second), true
}

// FormatSerial renders a raw numeric cell value as ISO text: a date alone at
// midnight, date and time otherwise. ok is false when raw is not a serial.
func FormatSerial(raw string, date1904 bool) (string, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return "", false
	}
	t, ok := SerialTime(v, date1904)
	if !ok {
		return "", false
	}
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format(DateLayout), true
	}
	return t.Format(DateTimeLayout), true
}

// builtInFormat reports whether id is a built-in number format. A built-in
// id wins over a custom format declared with the same id.
func builtInFormat(id int) bool {
	return id <= 4 || (id >= 9 && id <= 22) || (id >= 27 && id <= 62) || (id >= 67 && id <= 81)
}

// builtInDateFormat reports whether a built-in number format id renders a
// date or a time of day. Elapsed-time formats (45-47) are not dates.
func builtInDateFormat(id int) bool {
	switch {
	case id >= 14 && id <= 22:
		return true
	case id >= 27 && id <= 36:
		return true
	case id >= 50 && id <= 58:
		return true
	case id >= 71 && id <= 81:
		return true
	}
	return false
}

// IsDateFormat reports whether a number format code renders dates or times.
// Only the first section counts. Quoted text, escapes, locale and color
// brackets are skipped; [h], [m] and [s] mark elapsed time, not a date.
func IsDateFormat(code string) bool {
	if i := strings.IndexByte(code, ';'); i >= 0 {
		code = code[:i]
	}
	code = strings.ToLower(code)
	for i := 0; i < len(code); i++ {
		switch ch := code[i]; ch {
		case '"':
			j := strings.IndexByte(code[i+1:], '"')
			if j < 0 {
				return false
			}
			i += j + 1
		case '\\', '_', '*':
			i++
		case '[':
			j := strings.IndexByte(code[i+1:], ']')
			if j < 0 {
				return false
			}
			switch code[i+1 : i+1+j] {
			case "h", "hh", "m", "mm", "s", "ss":
				return false
			}
			i += j + 1
		case 'y', 'd', 'h', 's', 'm':
			return true
		}
	}
	return false
}

// dateStyleSet marks the cell style indices whose number format is a date.
type dateStyleSet []bool

func (d dateStyleSet) has(style int) bool {
	return style >= 0 && style < len(d) && d[style]
}

func (d dateStyleSet) any() bool {
	for _, ok := range d {
		if ok {
			return true
		}
	}
	return false
}
