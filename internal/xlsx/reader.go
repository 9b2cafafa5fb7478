package xlsx

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	// ErrMalformedPackage means the bytes are not a readable spreadsheet
	// package. It is never returned for a merely short sheet.
	ErrMalformedPackage = errors.New("malformed spreadsheet package")

	// ErrEmptyFile means the input held no bytes or no header row.
	ErrEmptyFile = errors.New("file is empty")

	// ErrUnsupportedFormat means the file extension has no reader.
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// DecodeError records which input failed to decode and why.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Path == "" {
		return "decode: " + e.Err.Error()
	}
	return "decode " + e.Path + ": " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }

// SheetReader extracts the first sheet of a package. Implementations must
// agree on output for identical input.
type SheetReader interface {
	ReadSheet(data []byte) (*Sheet, error)
	Name() string
}

// Reader strategies accepted by ReaderFor.
const (
	StrategyFast = "fast"
	StrategyDOM  = "dom"
)

// ReaderFor returns the package reader for a configured strategy. An empty
// strategy selects the fast path.
func ReaderFor(strategy string) (SheetReader, error) {
	switch strings.ToLower(strings.TrimSpace(strategy)) {
	case "", StrategyFast:
		return ExcelizeReader{}, nil
	case StrategyDOM:
		return DOMReader{}, nil
	default:
		return nil, fmt.Errorf("unknown reader strategy %q (want %s or %s)", strategy, StrategyFast, StrategyDOM)
	}
}

// Decoder routes an uploaded file to the reader for its extension.
type Decoder struct {
	Package SheetReader
	CSV     CSVOptions
}

// NewDecoder returns a decoder using pkg for .xlsx input.
func NewDecoder(pkg SheetReader, csv CSVOptions) *Decoder {
	if pkg == nil {
		pkg = ExcelizeReader{}
	}
	return &Decoder{Package: pkg, CSV: csv}
}

// Decode reads data according to the extension of name. Errors are wrapped
// in a DecodeError naming the file.
func (d *Decoder) Decode(name string, data []byte) (*Sheet, error) {
	var (
		s   *Sheet
		err error
	)
	switch Ext(name) {
	case "xlsx":
		s, err = d.Package.ReadSheet(data)
	case "xls":
		s, err = XLSReader{}.ReadSheet(data)
	case "csv":
		s, err = ReadCSVBytes(data, d.CSV)
	default:
		err = ErrUnsupportedFormat
	}
	if err != nil {
		return nil, &DecodeError{Path: name, Err: err}
	}
	return s, nil
}

// Ext returns the lower-cased extension of name without the dot.
func Ext(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}

// sheetFromRows turns a raw row grid into a text sheet. The first row with
// a value is the header; blank rows above it are skipped, as are blank rows
// at the end, so readers that do and do not report them agree. Fewer than
// two rows yields an empty sheet. The width is the widest row; short rows
// and the header are padded with "".
func sheetFromRows(name string, rows [][]string) *Sheet {
	for len(rows) > 0 && blankRow(rows[0]) {
		rows = rows[1:]
	}
	for len(rows) > 0 && blankRow(rows[len(rows)-1]) {
		rows = rows[:len(rows)-1]
	}
	if len(rows) < 2 {
		return &Sheet{Name: name}
	}

	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}

	header := make([]string, width)
	copy(header, rows[0])
	header = DedupHeaders(header)

	data := rows[1:]
	cols := make([]Column, width)
	for c := range cols {
		values := make([]string, len(data))
		for r, row := range data {
			if c < len(row) {
				values[r] = row[c]
			}
		}
		cols[c] = TextColumn(header[c], values)
	}
	return &Sheet{Name: name, Columns: cols}
}

func blankRow(row []string) bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}
