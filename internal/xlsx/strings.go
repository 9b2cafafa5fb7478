package xlsx

import (
	"bytes"
	"encoding/xml"
	"sort"
	"strconv"
)

// StringTable is the shared string table of one package. It is built once
// over every sheet that will be written and is read-only afterwards, so
// sheets may be encoded against it concurrently.
type StringTable struct {
	values []string
	index  map[string]int
}

// CollectStrings gathers every header and every normalized text cell of the
// given sheets, plus the empty string, and assigns indices in sorted order.
func CollectStrings(sheets ...*Sheet) *StringTable {
	set := map[string]struct{}{"": {}}
	for _, s := range sheets {
		if s == nil {
			continue
		}
		for _, c := range s.Columns {
			set[c.Name] = struct{}{}
			if c.Kind != KindText {
				continue
			}
			for _, v := range c.Texts {
				set[NormalizeText(v)] = struct{}{}
			}
		}
	}

	values := make([]string, 0, len(set))
	for v := range set {
		values = append(values, v)
	}
	sort.Strings(values)

	index := make(map[string]int, len(values))
	for i, v := range values {
		index[v] = i
	}
	return &StringTable{values: values, index: index}
}

// Index returns the table position of s.
func (t *StringTable) Index(s string) (int, bool) {
	i, ok := t.index[s]
	return i, ok
}

// EmptyIndex returns the position of the reserved empty string.
func (t *StringTable) EmptyIndex() int {
	return t.index[""]
}

// Len returns the number of unique strings.
func (t *StringTable) Len() int {
	return len(t.values)
}

// Values returns the strings in index order. The slice must not be modified.
func (t *StringTable) Values() []string {
	return t.values
}

// Bytes renders the sharedStrings part.
func (t *StringTable) Bytes() []byte {
	var buf bytes.Buffer
	buf.Grow(128 + len(t.values)*16)
	buf.WriteString(xmlProlog)
	buf.WriteString(`<sst xmlns="`)
	buf.WriteString(nsMain)
	buf.WriteString(`" count="0" uniqueCount="`)
	buf.WriteString(strconv.Itoa(len(t.values)))
	buf.WriteString(`">`)
	for _, v := range t.values {
		buf.WriteString("<si><t>")
		escape(&buf, v)
		buf.WriteString("</t></si>")
	}
	buf.WriteString("</sst>")
	return buf.Bytes()
}

// escape writes s as XML character data. Quotes are escaped too so the same
// routine serves attribute values.
func escape(buf *bytes.Buffer, s string) {
	// bytes.Buffer writes never fail.
	_ = xml.EscapeText(buf, []byte(s))
}
