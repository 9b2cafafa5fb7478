package xlsx

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// ErrUnindexedString means a sheet referenced a string that the package's
// string table does not hold. The table must be collected over every sheet
// before any of them is encoded.
var ErrUnindexedString = errors.New("string not present in shared string table")

// SheetEncoder renders worksheet parts against one shared string table.
type SheetEncoder struct {
	table   *StringTable
	columns *ColumnAddressCache
}

// NewSheetEncoder returns an encoder bound to table.
func NewSheetEncoder(table *StringTable) *SheetEncoder {
	return &SheetEncoder{table: table, columns: defaultColumns}
}

// Encode renders the worksheet XML for s. Row 1 holds the headers as shared
// string cells; data starts at row 2.
func (e *SheetEncoder) Encode(s *Sheet) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.EncodeTo(&buf, s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeTo appends the worksheet XML for s to buf.
func (e *SheetEncoder) EncodeTo(buf *bytes.Buffer, s *Sheet) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("encode sheet %q: %w", s.Name, err)
	}

	buf.WriteString(xmlProlog)
	buf.WriteString(`<worksheet xmlns="`)
	buf.WriteString(nsMain)
	buf.WriteString(`">`)

	cols := s.Width()
	if cols == 0 {
		buf.WriteString("<sheetData/></worksheet>")
		return nil
	}

	letters := make([]string, cols)
	for c := range cols {
		letters[c] = e.columns.Letter(c)
	}
	empty := e.table.EmptyIndex()

	buf.WriteString("<sheetData>")
	buf.WriteString(`<row r="1">`)
	for c, col := range s.Columns {
		idx, ok := e.table.Index(col.Name)
		if !ok {
			return fmt.Errorf("encode sheet %q header %q: %w", s.Name, col.Name, ErrUnindexedString)
		}
		writeSharedCell(buf, letters[c], "1", idx)
	}
	buf.WriteString("</row>")

	rows := s.Rows()
	for r := range rows {
		rowNum := strconv.Itoa(r + 2)
		buf.WriteString(`<row r="`)
		buf.WriteString(rowNum)
		buf.WriteString(`">`)
		for c := range s.Columns {
			col := &s.Columns[c]
			if col.Kind == KindNumeric {
				v := col.Numbers[r]
				if !IsFinite(v) {
					writeSharedCell(buf, letters[c], rowNum, empty)
					continue
				}
				buf.WriteString(`<c r="`)
				buf.WriteString(letters[c])
				buf.WriteString(rowNum)
				buf.WriteString(`"><v>`)
				buf.WriteString(FormatNumber(v))
				buf.WriteString("</v></c>")
				continue
			}
			text := NormalizeText(col.Texts[r])
			idx, ok := e.table.Index(text)
			if !ok {
				return fmt.Errorf("encode sheet %q cell %s%s: %w", s.Name, letters[c], rowNum, ErrUnindexedString)
			}
			writeSharedCell(buf, letters[c], rowNum, idx)
		}
		buf.WriteString("</row>")
	}
	buf.WriteString("</sheetData></worksheet>")
	return nil
}

func writeSharedCell(buf *bytes.Buffer, letter, row string, idx int) {
	buf.WriteString(`<c r="`)
	buf.WriteString(letter)
	buf.WriteString(row)
	buf.WriteString(`" t="s"><v>`)
	buf.WriteString(strconv.Itoa(idx))
	buf.WriteString("</v></c>")
}
