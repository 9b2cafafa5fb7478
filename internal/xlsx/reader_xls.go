package xlsx

import (
	"bytes"
	"fmt"

	"github.com/extrame/xls"
)

// XLSReader decodes legacy binary workbooks. It follows the same row rules
// as the package readers.
type XLSReader struct {
	// Charset for pre-Unicode string records. Defaults to utf-8.
	Charset string
}

func (XLSReader) Name() string { return "xls" }

func (r XLSReader) ReadSheet(data []byte) (s *Sheet, err error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	// The decoder panics on some corrupt streams.
	defer func() {
		if p := recover(); p != nil {
			s, err = nil, fmt.Errorf("%w: %v", ErrMalformedPackage, p)
		}
	}()

	charset := r.Charset
	if charset == "" {
		charset = "utf-8"
	}
	wb, err := xls.OpenReader(bytes.NewReader(data), charset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPackage, err)
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return &Sheet{}, nil
	}

	grid := make([][]string, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			grid = append(grid, nil)
			continue
		}
		cols := make([]string, row.LastCol())
		for j := range cols {
			cols[j] = row.Col(j)
		}
		grid = append(grid, cols)
	}
	return sheetFromRows(sheet.Name, grid), nil
}
