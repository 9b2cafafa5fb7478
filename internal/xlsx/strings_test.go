package xlsx

import (
	"math"
	"strings"
	"testing"
)

func TestCollectStringsTotality(t *testing.T) {
	s1 := NewSheet("one",
		TextColumn("Name", []string{"b", "a", "None", "nan"}),
		NumericColumn("Qty", []float64{1, math.NaN(), 3, 4}),
	)
	s2 := NewSheet("two",
		TextColumn("Name", []string{"a", "<NA>", "c", "NaT"}),
	)
	table := CollectStrings(s1, s2)

	for _, want := range []string{"", "Name", "Qty", "a", "b", "c"} {
		if _, ok := table.Index(want); !ok {
			t.Errorf("table missing %q", want)
		}
	}
	for _, token := range []string{"None", "nan", "<NA>", "NaT"} {
		if _, ok := table.Index(token); ok {
			t.Errorf("table holds missing token %q", token)
		}
	}
	if table.Len() != 6 {
		t.Errorf("Len() = %d, want 6 (%v)", table.Len(), table.Values())
	}

	seen := make(map[int]string)
	for _, v := range table.Values() {
		idx, _ := table.Index(v)
		if other, dup := seen[idx]; dup {
			t.Errorf("index %d assigned to %q and %q", idx, other, v)
		}
		seen[idx] = v
	}
}

func TestCollectStringsEmptyAlwaysPresent(t *testing.T) {
	tests := []struct {
		name   string
		sheets []*Sheet
	}{
		{"no sheets", nil},
		{"all numeric", []*Sheet{NewSheet("n", NumericColumn("X", []float64{1, 2}))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := CollectStrings(tt.sheets...)
			if _, ok := table.Index(""); !ok {
				t.Fatal("empty string missing")
			}
			if table.EmptyIndex() != 0 {
				t.Errorf("EmptyIndex() = %d, want 0", table.EmptyIndex())
			}
		})
	}
}

func TestStringTableBytesEscapes(t *testing.T) {
	table := CollectStrings(NewSheet("s", TextColumn("H", []string{`a<b & "c"`})))
	out := string(table.Bytes())

	if !strings.HasPrefix(out, xmlProlog+`<sst xmlns="`+nsMain+`" count="0" uniqueCount="3">`) {
		t.Errorf("unexpected prefix: %s", out)
	}
	if !strings.Contains(out, "<si><t>a&lt;b &amp; &#34;c&#34;</t></si>") {
		t.Errorf("value not escaped: %s", out)
	}
	if !strings.Contains(out, "<si><t></t></si>") {
		t.Errorf("empty entry missing: %s", out)
	}
}
