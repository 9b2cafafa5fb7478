package xlsx

import (
	"sync"
	"testing"
)

func TestColumnLetter(t *testing.T) {
	tests := []struct {
		index int
		want  string
	}{
		{0, "A"},
		{1, "B"},
		{25, "Z"},
		{26, "AA"},
		{27, "AB"},
		{51, "AZ"},
		{52, "BA"},
		{701, "ZZ"},
		{702, "AAA"},
		{16383, "XFD"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := ColumnLetter(tt.index); got != tt.want {
				t.Errorf("ColumnLetter(%d) = %q, want %q", tt.index, got, tt.want)
			}
		})
	}
}

func TestColumnLetterBijection(t *testing.T) {
	seen := make(map[string]int, 1000)
	prev := ""
	for i := range 1000 {
		l := ColumnLetter(i)
		if j, dup := seen[l]; dup {
			t.Fatalf("ColumnLetter(%d) = %q, same as index %d", i, l, j)
		}
		seen[l] = i

		// Shorter names sort first, equal lengths sort lexically.
		if prev != "" && (len(l) < len(prev) || (len(l) == len(prev) && l <= prev)) {
			t.Fatalf("ColumnLetter(%d) = %q does not follow %q", i, l, prev)
		}
		prev = l

		back, err := ColumnIndex(l)
		if err != nil {
			t.Fatalf("ColumnIndex(%q) error: %v", l, err)
		}
		if back != i {
			t.Errorf("ColumnIndex(%q) = %d, want %d", l, back, i)
		}
	}
}

func TestColumnAddressCacheGrows(t *testing.T) {
	c := NewColumnAddressCache(3)
	if c.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", c.Len())
	}
	if got := c.Letter(702); got != "AAA" {
		t.Errorf("Letter(702) = %q, want AAA", got)
	}
	if c.Len() != 703 {
		t.Errorf("Len() = %d, want 703", c.Len())
	}
	if got := c.Letter(2); got != "C" {
		t.Errorf("Letter(2) = %q, want C", got)
	}
}

func TestColumnAddressCacheConcurrent(t *testing.T) {
	c := NewColumnAddressCache(0)
	var wg sync.WaitGroup
	errs := make(chan string, 8)
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 2000; i++ {
				idx := (i*7 + w*13) % 2000
				if got, want := c.Letter(idx), columnLetter(idx); got != want {
					errs <- got + " != " + want
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
}

func TestColumnIndexErrors(t *testing.T) {
	for _, ref := range []string{"", "12", "$A1"} {
		if _, err := ColumnIndex(ref); err == nil {
			t.Errorf("ColumnIndex(%q) expected error", ref)
		}
	}
	if got, err := ColumnIndex("ab12"); err != nil || got != 27 {
		t.Errorf("ColumnIndex(ab12) = %d, %v, want 27, nil", got, err)
	}
}

func TestCellRef(t *testing.T) {
	if got := CellRef(27, 5); got != "AB5" {
		t.Errorf("CellRef(27, 5) = %q, want AB5", got)
	}
}
