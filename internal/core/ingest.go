package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/JonMunkholm/datacompile/internal/xlsx"
)

// SafeFilename reduces name to an ASCII file name that cannot escape its
// directory: accents are decomposed and dropped, path separators and runs of
// whitespace become underscores, and anything outside [A-Za-z0-9_.-] is
// removed. Leading and trailing dots and underscores are trimmed.
func SafeFilename(name string) string {
	name = norm.NFKD.String(name)
	name = strings.NewReplacer("/", " ", "\\", " ").Replace(name)
	name = strings.Join(strings.Fields(name), "_")

	var b strings.Builder
	for i := 0; i < len(name); i++ {
		ch := name[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9',
			ch == '_', ch == '.', ch == '-':
			b.WriteByte(ch)
		}
	}
	return strings.Trim(b.String(), "._")
}

// NewUploadID builds YYYYmmdd_HHMMSS_ffffff_<safe filename>.
func NewUploadID(now time.Time, filename string) string {
	return fmt.Sprintf("%s_%06d_%s", now.Format("20060102_150405"), now.Nanosecond()/1000, SafeFilename(filename))
}

// ColumnMapping renames one source column to a target column.
type ColumnMapping struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// ParseMapping decodes a {"source": "target", ...} JSON object, keeping the
// key order of the document.
func ParseMapping(data []byte) ([]ColumnMapping, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, argError("invalid column mapping")
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, argError("column mapping must be an object")
	}
	var out []ColumnMapping
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, argError("invalid column mapping")
		}
		key, _ := keyTok.(string)
		var target string
		if err := dec.Decode(&target); err != nil {
			return nil, argError(fmt.Sprintf("mapping for %q must be a string", key))
		}
		out = append(out, ColumnMapping{Source: key, Target: target})
	}
	if _, err := dec.Token(); err != nil {
		return nil, argError("invalid column mapping")
	}
	if len(out) == 0 {
		return nil, argError("No column mapping provided")
	}
	return out, nil
}

// applyMapping renames the mapped columns and keeps only the targets, in
// mapping order.
func applyMapping(s *xlsx.Sheet, mapping []ColumnMapping) (*xlsx.Sheet, error) {
	out := &xlsx.Sheet{Name: s.Name}
	seen := make(map[string]bool, len(mapping))
	for _, m := range mapping {
		i, ok := s.Index(m.Source)
		if !ok {
			return nil, columnError(m.Source)
		}
		if seen[m.Target] {
			return nil, argError(fmt.Sprintf("column %q is mapped twice", m.Target))
		}
		seen[m.Target] = true
		col := s.Columns[i]
		col.Name = m.Target
		out.Columns = append(out.Columns, col)
	}
	return out, nil
}

// sameSignature compares ordered visible column names.
func sameSignature(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// prepareIncoming infers column kinds and tags every row with uploadID.
// A sheet with no columns is rejected as empty.
func prepareIncoming(s *xlsx.Sheet, uploadID string) (*xlsx.Sheet, error) {
	if s.Width() == 0 {
		return nil, xlsx.ErrEmptyFile
	}
	return withConstant(inferKinds(s), UploadIDColumn, uploadID), nil
}

// ensureTagged adds the legacy upload id to tables written before tagging.
func ensureTagged(s *xlsx.Sheet) *xlsx.Sheet {
	if _, ok := s.Index(UploadIDColumn); ok {
		return s
	}
	return withConstant(s, UploadIDColumn, LegacyUploadID)
}

// mergeChecked appends incoming to current after the signature check.
// current may be nil.
func mergeChecked(current, incoming *xlsx.Sheet) (*xlsx.Sheet, error) {
	if current == nil {
		return incoming, nil
	}
	current = ensureTagged(current)
	existing, got := visibleColumns(current), visibleColumns(incoming)
	if !sameSignature(existing, got) {
		return nil, &SchemaMismatchError{Existing: existing, Incoming: got}
	}
	return concatSheets(current, incoming), nil
}
