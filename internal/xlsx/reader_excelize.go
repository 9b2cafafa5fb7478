package xlsx

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// ExcelizeReader is the fast path: it streams rows of the first sheet with
// excelize's row iterator and takes raw cell values, so numbers arrive as
// stored rather than formatted. Numeric cells with a date format are then
// rendered as ISO dates.
type ExcelizeReader struct{}

func (ExcelizeReader) Name() string { return StrategyFast }

func (ExcelizeReader) ReadSheet(data []byte) (*Sheet, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPackage, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return &Sheet{}, nil
	}
	name := sheets[0]

	rows, err := f.Rows(name)
	if err != nil {
		return nil, fmt.Errorf("%w: sheet %q: %v", ErrMalformedPackage, name, err)
	}
	defer rows.Close()

	var grid [][]string
	for rows.Next() {
		cols, err := rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("%w: sheet %q row %d: %v", ErrMalformedPackage, name, len(grid)+1, err)
		}
		grid = append(grid, cols)
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("%w: sheet %q: %v", ErrMalformedPackage, name, err)
	}
	if err := markDateCells(f, name, grid); err != nil {
		return nil, fmt.Errorf("%w: sheet %q: %v", ErrMalformedPackage, name, err)
	}
	return sheetFromRows(name, grid), nil
}

// excelizeDateStyles classifies every cell style of the workbook.
func excelizeDateStyles(f *excelize.File) dateStyleSet {
	var set dateStyleSet
	for i := 0; ; i++ {
		st, err := f.GetStyle(i)
		if err != nil {
			return set
		}
		// excelize only sets CustomNumFmt for ids outside the built-in range.
		isDate := builtInDateFormat(st.NumFmt)
		if st.CustomNumFmt != nil {
			isDate = IsDateFormat(*st.CustomNumFmt)
		}
		set = append(set, isDate)
	}
}

// markDateCells rewrites date-styled numeric cells of grid in place. The row
// iterator does not report cell styles, so they are looked up per cell, and
// only when the workbook defines a date style at all.
func markDateCells(f *excelize.File, sheet string, grid [][]string) error {
	dates := excelizeDateStyles(f)
	if !dates.any() {
		return nil
	}
	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}
	for r, row := range grid {
		for c, v := range row {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}
			style, err := f.GetCellStyle(sheet, cell)
			if err != nil {
				return err
			}
			if !dates.has(style) {
				continue
			}
			typ, err := f.GetCellType(sheet, cell)
			if err != nil {
				return err
			}
			if typ != excelize.CellTypeUnset && typ != excelize.CellTypeNumber {
				continue
			}
			if text, ok := FormatSerial(v, date1904); ok {
				row[c] = text
			}
		}
	}
	return nil
}

// SheetNames lists the sheets of a package in workbook order.
func SheetNames(data []byte) ([]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPackage, err)
	}
	defer f.Close()
	return f.GetSheetList(), nil
}
