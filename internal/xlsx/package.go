package xlsx

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"golang.org/x/sync/errgroup"
)

// ContentType is the MIME type of a spreadsheet package.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	xmlProlog  = "<?xml version=\"1.0\" encoding=\"UTF-8\" standalone=\"yes\"?>\n"
	nsMain     = "http://schemas.openxmlformats.org/spreadsheetml/2006/main"
	nsRelsPkg  = "http://schemas.openxmlformats.org/package/2006/relationships"
	nsRelsDoc  = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	nsTypes    = "http://schemas.openxmlformats.org/package/2006/content-types"
	ctMain     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet.main+xml"
	ctSheet    = "application/vnd.openxmlformats-officedocument.spreadsheetml.worksheet+xml"
	ctStyles   = "application/vnd.openxmlformats-officedocument.spreadsheetml.styles+xml"
	ctStrings  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sharedStrings+xml"
	ctRels     = "application/vnd.openxmlformats-package.relationships+xml"
	relSheet   = nsRelsDoc + "/worksheet"
	relStyles  = nsRelsDoc + "/styles"
	relStrings = nsRelsDoc + "/sharedStrings"
	relOffice  = nsRelsDoc + "/officeDocument"
)

// Part names inside the archive.
const (
	partContentTypes  = "[Content_Types].xml"
	partRootRels      = "_rels/.rels"
	partWorkbookRels  = "xl/_rels/workbook.xml.rels"
	partWorkbook      = "xl/workbook.xml"
	partStyles        = "xl/styles.xml"
	partSharedStrings = "xl/sharedStrings.xml"
)

const stylesXML = xmlProlog +
	`<styleSheet xmlns="` + nsMain + `">` +
	`<fonts count="1"><font><sz val="11"/><name val="Calibri"/></font></fonts>` +
	`<fills count="2"><fill><patternFill patternType="none"/></fill><fill><patternFill patternType="gray125"/></fill></fills>` +
	`<borders count="1"><border><left/><right/><top/><bottom/><diagonal/></border></borders>` +
	`<cellStyleXfs count="1"><xf numFmtId="0" fontId="0" fillId="0" borderId="0"/></cellStyleXfs>` +
	`<cellXfs count="1"><xf numFmtId="0" fontId="0" fillId="0" borderId="0" xfId="0"/></cellXfs>` +
	`</styleSheet>`

const rootRelsXML = xmlProlog +
	`<Relationships xmlns="` + nsRelsPkg + `">` +
	`<Relationship Id="rId1" Type="` + relOffice + `" Target="xl/workbook.xml"/>` +
	`</Relationships>`

func sheetPart(i int) string {
	return "xl/worksheets/sheet" + strconv.Itoa(i+1) + ".xml"
}

// PackageAssembler writes named sheets as one spreadsheet package.
type PackageAssembler struct {
	// Parallelism bounds concurrent sheet encoding. Zero means GOMAXPROCS.
	Parallelism int
}

// Assemble encodes sheets into a complete package and writes it to w with a
// single Write call. Nothing is written if any part fails to encode.
func (a *PackageAssembler) Assemble(w io.Writer, sheets ...*Sheet) error {
	data, err := a.Bytes(sheets...)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write package: %w", err)
	}
	return nil
}

// Bytes encodes sheets into an in-memory package.
func (a *PackageAssembler) Bytes(sheets ...*Sheet) ([]byte, error) {
	table := CollectStrings(sheets...)

	parts, err := a.encodeSheets(table, sheets)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	entries := []struct {
		name string
		data []byte
	}{
		{partContentTypes, contentTypesXML(len(sheets))},
		{partRootRels, []byte(rootRelsXML)},
		{partWorkbookRels, workbookRelsXML(len(sheets))},
		{partWorkbook, workbookXML(sheets)},
		{partStyles, []byte(stylesXML)},
		{partSharedStrings, table.Bytes()},
	}
	for _, e := range entries {
		if err := writeEntry(zw, e.name, e.data); err != nil {
			return nil, err
		}
	}
	for i, p := range parts {
		if err := writeEntry(zw, sheetPart(i), p); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize package: %w", err)
	}
	return buf.Bytes(), nil
}

// encodeSheets renders every sheet against the shared table. The table is
// read-only here so sheets are encoded in parallel.
func (a *PackageAssembler) encodeSheets(table *StringTable, sheets []*Sheet) ([][]byte, error) {
	parts := make([][]byte, len(sheets))
	enc := NewSheetEncoder(table)

	limit := a.Parallelism
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i, s := range sheets {
		g.Go(func() error {
			p, err := enc.Encode(s)
			if err != nil {
				return err
			}
			parts[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return parts, nil
}

func writeEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func contentTypesXML(n int) []byte {
	var buf bytes.Buffer
	buf.WriteString(xmlProlog)
	buf.WriteString(`<Types xmlns="` + nsTypes + `">`)
	buf.WriteString(`<Default Extension="rels" ContentType="` + ctRels + `"/>`)
	buf.WriteString(`<Default Extension="xml" ContentType="application/xml"/>`)
	buf.WriteString(`<Override PartName="/xl/workbook.xml" ContentType="` + ctMain + `"/>`)
	for i := range n {
		buf.WriteString(`<Override PartName="/`)
		buf.WriteString(sheetPart(i))
		buf.WriteString(`" ContentType="` + ctSheet + `"/>`)
	}
	buf.WriteString(`<Override PartName="/xl/styles.xml" ContentType="` + ctStyles + `"/>`)
	buf.WriteString(`<Override PartName="/xl/sharedStrings.xml" ContentType="` + ctStrings + `"/>`)
	buf.WriteString(`</Types>`)
	return buf.Bytes()
}

// workbookRelsXML assigns rId1..rIdN to the sheets, then styles and the
// string table.
func workbookRelsXML(n int) []byte {
	var buf bytes.Buffer
	buf.WriteString(xmlProlog)
	buf.WriteString(`<Relationships xmlns="` + nsRelsPkg + `">`)
	for i := range n {
		buf.WriteString(`<Relationship Id="rId`)
		buf.WriteString(strconv.Itoa(i + 1))
		buf.WriteString(`" Type="` + relSheet + `" Target="worksheets/sheet`)
		buf.WriteString(strconv.Itoa(i + 1))
		buf.WriteString(`.xml"/>`)
	}
	buf.WriteString(`<Relationship Id="rId` + strconv.Itoa(n+1) + `" Type="` + relStyles + `" Target="styles.xml"/>`)
	buf.WriteString(`<Relationship Id="rId` + strconv.Itoa(n+2) + `" Type="` + relStrings + `" Target="sharedStrings.xml"/>`)
	buf.WriteString(`</Relationships>`)
	return buf.Bytes()
}

func workbookXML(sheets []*Sheet) []byte {
	var buf bytes.Buffer
	buf.WriteString(xmlProlog)
	buf.WriteString(`<workbook xmlns="` + nsMain + `" xmlns:r="` + nsRelsDoc + `"><sheets>`)
	for i, s := range sheets {
		id := strconv.Itoa(i + 1)
		name := s.Name
		if name == "" {
			name = "Sheet" + id
		}
		buf.WriteString(`<sheet name="`)
		escape(&buf, name)
		buf.WriteString(`" sheetId="` + id + `" r:id="rId` + id + `"/>`)
	}
	buf.WriteString(`</sheets></workbook>`)
	return buf.Bytes()
}

// Assemble writes sheets to w using a default assembler.
func Assemble(w io.Writer, sheets ...*Sheet) error {
	var a PackageAssembler
	return a.Assemble(w, sheets...)
}

// WriteFile writes a package to path atomically: the archive is written to a
// temporary file in the same directory and renamed over path on success.
func WriteFile(path string, sheets ...*Sheet) error {
	var a PackageAssembler
	data, err := a.Bytes(sheets...)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, 0o644)
}

// WriteFileAtomic writes data to a temp file next to path, syncs it, and
// renames it into place.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err = os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
