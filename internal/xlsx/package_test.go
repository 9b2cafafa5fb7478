package xlsx

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func assemble(t *testing.T, sheets ...*Sheet) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := Assemble(&buf, sheets...); err != nil {
		t.Fatalf("Assemble() error: %v", err)
	}
	return buf.Bytes()
}

func readParts(t *testing.T, data []byte) (names []string, parts map[string]string) {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	parts = make(map[string]string)
	for _, f := range zr.File {
		if f.Method != zip.Deflate {
			t.Errorf("%s stored with method %d, want deflate", f.Name, f.Method)
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		names = append(names, f.Name)
		parts[f.Name] = string(b)
	}
	return names, parts
}

func TestAssembleLayout(t *testing.T) {
	data := assemble(t,
		NewSheet("First", TextColumn("A", []string{"x"})),
		NewSheet("Second", NumericColumn("B", []float64{2})),
	)
	names, parts := readParts(t, data)

	wantNames := []string{
		"[Content_Types].xml",
		"_rels/.rels",
		"xl/_rels/workbook.xml.rels",
		"xl/workbook.xml",
		"xl/styles.xml",
		"xl/sharedStrings.xml",
		"xl/worksheets/sheet1.xml",
		"xl/worksheets/sheet2.xml",
	}
	if !reflect.DeepEqual(names, wantNames) {
		t.Fatalf("entries = %v, want %v", names, wantNames)
	}

	ct := parts["[Content_Types].xml"]
	for _, p := range []string{"/xl/worksheets/sheet1.xml", "/xl/worksheets/sheet2.xml", "/xl/workbook.xml", "/xl/styles.xml", "/xl/sharedStrings.xml"} {
		if !strings.Contains(ct, `PartName="`+p+`"`) {
			t.Errorf("content types missing override for %s", p)
		}
	}

	rels := parts["xl/_rels/workbook.xml.rels"]
	for _, want := range []string{
		`Id="rId1" Type="` + relSheet + `" Target="worksheets/sheet1.xml"`,
		`Id="rId2" Type="` + relSheet + `" Target="worksheets/sheet2.xml"`,
		`Id="rId3" Type="` + relStyles + `" Target="styles.xml"`,
		`Id="rId4" Type="` + relStrings + `" Target="sharedStrings.xml"`,
	} {
		if !strings.Contains(rels, want) {
			t.Errorf("workbook rels missing %s", want)
		}
	}

	wb := parts["xl/workbook.xml"]
	if !strings.Contains(wb, `<sheet name="First" sheetId="1" r:id="rId1"/><sheet name="Second" sheetId="2" r:id="rId2"/>`) {
		t.Errorf("workbook sheets out of order: %s", wb)
	}
	for _, name := range names {
		if !strings.HasPrefix(parts[name], xmlProlog) {
			t.Errorf("part %s missing UTF-8 prolog", name)
		}
	}
}

func TestAssembleEmptyPackage(t *testing.T) {
	data := assemble(t)
	names, parts := readParts(t, data)
	if len(names) != 6 {
		t.Errorf("entries = %v, want 6 boilerplate parts", names)
	}
	if !strings.Contains(parts["xl/workbook.xml"], "<sheets></sheets>") {
		t.Errorf("workbook = %s, want empty sheet list", parts["xl/workbook.xml"])
	}

	s, err := DOMReader{}.ReadSheet(data)
	if err != nil {
		t.Fatalf("ReadSheet() error: %v", err)
	}
	if s.Width() != 0 || s.Rows() != 0 {
		t.Errorf("got %dx%d sheet, want empty", s.Width(), s.Rows())
	}
}

func TestEncodeZeroColumns(t *testing.T) {
	table := CollectStrings()
	out, err := NewSheetEncoder(table).Encode(NewSheet("empty"))
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	want := xmlProlog + `<worksheet xmlns="` + nsMain + `"><sheetData/></worksheet>`
	if string(out) != want {
		t.Errorf("Encode() = %s, want %s", out, want)
	}
}

func TestEncodeUnindexedString(t *testing.T) {
	table := CollectStrings()
	_, err := NewSheetEncoder(table).Encode(NewSheet("s", TextColumn("H", []string{"v"})))
	if !errors.Is(err, ErrUnindexedString) {
		t.Errorf("Encode() error = %v, want ErrUnindexedString", err)
	}
}

func TestEncodeRaggedSheet(t *testing.T) {
	s := NewSheet("s", TextColumn("A", []string{"1", "2"}), TextColumn("B", []string{"1"}))
	if err := Assemble(io.Discard, s); err == nil {
		t.Error("Assemble() accepted columns of different lengths")
	}
}

func TestNumericAndBlankCells(t *testing.T) {
	s := NewSheet("Data",
		NumericColumn("Amount", []float64{100, math.NaN(), math.Inf(-1)}),
		TextColumn("Note", []string{"ok", "None", "x"}),
	)
	table := CollectStrings(s)
	out, err := NewSheetEncoder(table).Encode(s)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	xml := string(out)
	empty := table.EmptyIndex()
	noteX, _ := table.Index("x")

	for _, want := range []string{
		`<c r="A2"><v>100</v></c>`,
		`<c r="A3" t="s"><v>` + itoa(empty) + `</v></c>`,
		`<c r="B3" t="s"><v>` + itoa(empty) + `</v></c>`,
		`<c r="A4" t="s"><v>` + itoa(empty) + `</v></c>`,
		`<c r="B4" t="s"><v>` + itoa(noteX) + `</v></c>`,
	} {
		if !strings.Contains(xml, want) {
			t.Errorf("sheet missing %s\n%s", want, xml)
		}
	}

	data := assemble(t, s)
	for _, r := range []SheetReader{DOMReader{}, ExcelizeReader{}} {
		t.Run(r.Name(), func(t *testing.T) {
			got, err := r.ReadSheet(data)
			if err != nil {
				t.Fatalf("ReadSheet() error: %v", err)
			}
			if want := []string{"Amount", "Note"}; !reflect.DeepEqual(got.Headers(), want) {
				t.Fatalf("headers = %v, want %v", got.Headers(), want)
			}
			if want := []string{"100", "", ""}; !reflect.DeepEqual(got.Columns[0].Texts, want) {
				t.Errorf("Amount = %q, want %q", got.Columns[0].Texts, want)
			}
			if want := []string{"ok", "", "x"}; !reflect.DeepEqual(got.Columns[1].Texts, want) {
				t.Errorf("Note = %q, want %q", got.Columns[1].Texts, want)
			}
		})
	}
}

func TestRoundTripDOM(t *testing.T) {
	in := NewSheet("Round Trip",
		TextColumn("Vendor", []string{"Acme", "Bolt & Nut", "<none>", "nan", "Ünïcode"}),
		NumericColumn("Amount", []float64{1.5, -2, 1e20, 0, math.NaN()}),
		NumericColumn("Qty", []float64{1, 2, 3, 4, 5}),
	)
	data := assemble(t, in, NewSheet("Other", TextColumn("Vendor", []string{"Acme"})))

	out, err := DOMReader{}.ReadSheet(data)
	if err != nil {
		t.Fatalf("ReadSheet() error: %v", err)
	}
	if out.Name != "Round Trip" {
		t.Errorf("Name = %q, want Round Trip", out.Name)
	}
	if !reflect.DeepEqual(out.Headers(), in.Headers()) {
		t.Fatalf("headers = %v, want %v", out.Headers(), in.Headers())
	}
	for c, col := range in.Columns {
		for r := range in.Rows() {
			if got, want := out.Columns[c].Texts[r], col.Text(r); got != want {
				t.Errorf("%s[%d] = %q, want %q", col.Name, r, got, want)
			}
		}
	}
}

func TestSheetNameEscaping(t *testing.T) {
	name := `R&D <"Q1"> 'draft'`
	data := assemble(t, NewSheet(name, TextColumn("H", []string{"v"})))

	_, parts := readParts(t, data)
	if strings.Contains(parts["xl/workbook.xml"], "R&D") {
		t.Errorf("sheet name not escaped: %s", parts["xl/workbook.xml"])
	}
	s, err := DOMReader{}.ReadSheet(data)
	if err != nil {
		t.Fatalf("ReadSheet() error: %v", err)
	}
	if s.Name != name {
		t.Errorf("Name = %q, want %q", s.Name, name)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.xlsx")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := WriteFile(path, NewSheet("S", TextColumn("H", []string{"v"}))); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := zip.NewReader(bytes.NewReader(data), int64(len(data))); err != nil {
		t.Errorf("written file is not an archive: %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("dir holds %d entries, want only the output", len(entries))
	}
}

func TestWriteFileFailureLeavesTarget(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.xlsx")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	bad := NewSheet("S", TextColumn("A", []string{"1"}), TextColumn("B", nil))
	if err := WriteFile(path, bad); err == nil {
		t.Fatal("WriteFile() expected error")
	}
	data, _ := os.ReadFile(path)
	if string(data) != "old" {
		t.Errorf("target = %q, want untouched", data)
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestAssembleWriteError(t *testing.T) {
	err := Assemble(failWriter{}, NewSheet("S", TextColumn("H", []string{"v"})))
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Assemble() error = %v, want write failure", err)
	}
}

func itoa(n int) string {
	return FormatNumber(float64(n))
}
