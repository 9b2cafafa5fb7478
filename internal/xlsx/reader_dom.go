package xlsx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
)

// DOMReader is the fallback path: it opens the archive directly and
// unmarshals the workbook, its relationships, the shared strings and the
// first worksheet.
type DOMReader struct{}

func (DOMReader) Name() string { return StrategyDOM }

type xmlRelationships struct {
	Items []struct {
		ID     string `xml:"Id,attr"`
		Type   string `xml:"Type,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

type xmlWorkbook struct {
	Pr struct {
		Date1904 string `xml:"date1904,attr"`
	} `xml:"workbookPr"`
	Sheets []struct {
		Name string `xml:"name,attr"`
		RID  string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
	} `xml:"sheets>sheet"`
}

type xmlRichText struct {
	T *string `xml:"t"`
	R []struct {
		T string `xml:"t"`
	} `xml:"r"`
}

func (x xmlRichText) String() string {
	if x.T != nil {
		return *x.T
	}
	var sb strings.Builder
	for _, r := range x.R {
		sb.WriteString(r.T)
	}
	return sb.String()
}

type xmlSST struct {
	Items []xmlRichText `xml:"si"`
}

type xmlStyleSheet struct {
	NumFmts []struct {
		ID   int    `xml:"numFmtId,attr"`
		Code string `xml:"formatCode,attr"`
	} `xml:"numFmts>numFmt"`
	CellXfs []struct {
		NumFmtID int `xml:"numFmtId,attr"`
	} `xml:"cellXfs>xf"`
}

// dateStyles classifies every cell style of the style sheet.
func (ss xmlStyleSheet) dateStyles() dateStyleSet {
	custom := make(map[int]string, len(ss.NumFmts))
	for _, nf := range ss.NumFmts {
		custom[nf.ID] = nf.Code
	}
	set := make(dateStyleSet, len(ss.CellXfs))
	for i, xf := range ss.CellXfs {
		code, ok := custom[xf.NumFmtID]
		if ok && !builtInFormat(xf.NumFmtID) {
			set[i] = IsDateFormat(code)
		} else {
			set[i] = builtInDateFormat(xf.NumFmtID)
		}
	}
	return set
}

type xmlWorksheet struct {
	Cols []struct {
		Min   int `xml:"min,attr"`
		Max   int `xml:"max,attr"`
		Style int `xml:"style,attr"`
	} `xml:"cols>col"`
	Rows []struct {
		R     int `xml:"r,attr"`
		S     int `xml:"s,attr"`
		Cells []struct {
			R  string       `xml:"r,attr"`
			S  int          `xml:"s,attr"`
			T  string       `xml:"t,attr"`
			V  string       `xml:"v"`
			IS *xmlRichText `xml:"is"`
		} `xml:"c"`
	} `xml:"sheetData>row"`
}

// cellStyle resolves the style of a cell: its own, else its row's, else its
// column's.
func (ws *xmlWorksheet) cellStyle(cell, row, col int) int {
	if cell != 0 {
		return cell
	}
	if row != 0 {
		return row
	}
	for _, c := range ws.Cols {
		if c.Min <= col+1 && col+1 <= c.Max && c.Style != 0 {
			return c.Style
		}
	}
	return 0
}

func (DOMReader) ReadSheet(data []byte) (*Sheet, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPackage, err)
	}
	parts := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		parts[strings.TrimPrefix(f.Name, "/")] = f
	}

	wbPath := partWorkbook
	var root xmlRelationships
	if err := unmarshalPart(parts, partRootRels, &root); err == nil {
		for _, r := range root.Items {
			if strings.HasSuffix(r.Type, "/officeDocument") {
				wbPath = strings.TrimPrefix(r.Target, "/")
				break
			}
		}
	}

	var wb xmlWorkbook
	if err := unmarshalPart(parts, wbPath, &wb); err != nil {
		return nil, err
	}
	if len(wb.Sheets) == 0 {
		return &Sheet{}, nil
	}

	wbDir := path.Dir(wbPath)
	relsPath := path.Join(wbDir, "_rels", path.Base(wbPath)+".rels")
	var rels xmlRelationships
	if err := unmarshalPart(parts, relsPath, &rels); err != nil {
		return nil, err
	}

	first := wb.Sheets[0]
	sheetPath := ""
	stringsPath := ""
	stylesPath := ""
	for _, r := range rels.Items {
		target := resolveTarget(wbDir, r.Target)
		switch {
		case r.ID == first.RID:
			sheetPath = target
		case strings.HasSuffix(r.Type, "/sharedStrings"):
			stringsPath = target
		case strings.HasSuffix(r.Type, "/styles"):
			stylesPath = target
		}
	}
	if sheetPath == "" {
		return nil, fmt.Errorf("%w: no relationship for sheet %q", ErrMalformedPackage, first.Name)
	}

	var shared []string
	if stringsPath != "" {
		var sst xmlSST
		if err := unmarshalPart(parts, stringsPath, &sst); err != nil {
			return nil, err
		}
		shared = make([]string, len(sst.Items))
		for i, si := range sst.Items {
			shared[i] = si.String()
		}
	}

	var dates dateStyleSet
	if stylesPath != "" {
		var ss xmlStyleSheet
		if err := unmarshalPart(parts, stylesPath, &ss); err != nil {
			return nil, err
		}
		dates = ss.dateStyles()
	}
	date1904 := wb.Pr.Date1904 == "1" || wb.Pr.Date1904 == "true"

	var ws xmlWorksheet
	if err := unmarshalPart(parts, sheetPath, &ws); err != nil {
		return nil, err
	}

	var grid [][]string
	for _, row := range ws.Rows {
		rowNum := row.R
		if rowNum <= 0 {
			rowNum = len(grid) + 1
		}
		for len(grid) < rowNum {
			grid = append(grid, nil)
		}
		cells := grid[rowNum-1]
		for _, c := range row.Cells {
			col := len(cells)
			if c.R != "" {
				if col, err = ColumnIndex(c.R); err != nil {
					return nil, fmt.Errorf("%w: %v", ErrMalformedPackage, err)
				}
			}
			if col >= MaxColumns {
				return nil, fmt.Errorf("%w: cell %s beyond column limit", ErrMalformedPackage, c.R)
			}
			var val string
			switch c.T {
			case "s":
				idx, err := strconv.Atoi(strings.TrimSpace(c.V))
				if err != nil || idx < 0 || idx >= len(shared) {
					return nil, fmt.Errorf("%w: cell %s references shared string %q", ErrMalformedPackage, c.R, c.V)
				}
				val = shared[idx]
			case "inlineStr":
				if c.IS != nil {
					val = c.IS.String()
				}
			case "", "n":
				val = c.V
				if dates.has(ws.cellStyle(c.S, row.S, col)) {
					if text, ok := FormatSerial(val, date1904); ok {
						val = text
					}
				}
			default:
				val = c.V
			}
			for len(cells) <= col {
				cells = append(cells, "")
			}
			cells[col] = val
		}
		grid[rowNum-1] = cells
	}
	return sheetFromRows(first.Name, grid), nil
}

func resolveTarget(base, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Join(base, target)
}

func unmarshalPart(parts map[string]*zip.File, name string, v any) error {
	f, ok := parts[name]
	if !ok {
		return fmt.Errorf("%w: missing part %s", ErrMalformedPackage, name)
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrMalformedPackage, name, err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrMalformedPackage, name, err)
	}
	if err := xml.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrMalformedPackage, name, err)
	}
	return nil
}
