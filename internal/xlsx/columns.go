package xlsx

import (
	"fmt"
	"strconv"
	"sync"
)

// MaxColumns is the widest sheet the format allows (column XFD).
const MaxColumns = 16384

// PrecomputedColumns is the number of column letters built when a cache is created.
const PrecomputedColumns = 300

// ColumnAddressCache maps zero-based column indices to spreadsheet column
// letters (A, B, ..., Z, AA, AB, ...). Reads of populated entries take a
// read lock only; the table grows append-only under the write lock.
type ColumnAddressCache struct {
	mu      sync.RWMutex
	letters []string
}

// NewColumnAddressCache returns a cache with the first n letters precomputed.
func NewColumnAddressCache(n int) *ColumnAddressCache {
	if n < 0 {
		n = 0
	}
	c := &ColumnAddressCache{letters: make([]string, n)}
	for i := range n {
		c.letters[i] = columnLetter(i)
	}
	return c
}

// Letter returns the column letter for index i, growing the cache if needed.
// It panics on a negative index.
func (c *ColumnAddressCache) Letter(i int) string {
	if i < 0 {
		panic(fmt.Sprintf("xlsx: negative column index %d", i))
	}

	c.mu.RLock()
	if i < len(c.letters) {
		l := c.letters[i]
		c.mu.RUnlock()
		return l
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.letters) <= i {
		c.letters = append(c.letters, columnLetter(len(c.letters)))
	}
	return c.letters[i]
}

// Len reports how many letters are currently cached.
func (c *ColumnAddressCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.letters)
}

// defaultColumns is shared by every encoder in the process.
var defaultColumns = NewColumnAddressCache(PrecomputedColumns)

// ColumnLetter returns the letter for a zero-based column index using the
// process-wide cache.
func ColumnLetter(i int) string {
	return defaultColumns.Letter(i)
}

// CellRef renders a cell address from a zero-based column and a one-based row.
func CellRef(col, row int) string {
	return ColumnLetter(col) + strconv.Itoa(row)
}

// columnLetter computes the bijective base-26 name of idx.
func columnLetter(idx int) string {
	var buf [16]byte
	pos := len(buf)
	for {
		pos--
		buf[pos] = byte('A' + idx%26)
		idx = idx/26 - 1
		if idx < 0 {
			break
		}
	}
	return string(buf[pos:])
}

// ColumnIndex parses the letter prefix of a cell reference ("AB12" or "AB")
// back to a zero-based column index.
func ColumnIndex(ref string) (int, error) {
	n := 0
	i := 0
	for ; i < len(ref); i++ {
		ch := ref[i]
		if ch >= 'a' && ch <= 'z' {
			ch -= 'a' - 'A'
		}
		if ch < 'A' || ch > 'Z' {
			break
		}
		n = n*26 + int(ch-'A'+1)
		if n > 1<<24 {
			return 0, fmt.Errorf("column reference %q out of range", ref)
		}
	}
	if i == 0 {
		return 0, fmt.Errorf("invalid cell reference %q", ref)
	}
	return n - 1, nil
}
