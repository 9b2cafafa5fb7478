package xlsx

// streaming.go holds the reader wrappers applied to delimited text before it
// reaches the CSV decoder:
//
//   - a BOM-aware decoder (UTF-8 BOM stripped, UTF-16 LE/BE transcoded)
//   - UTF8Sanitizer: replaces invalid UTF-8 bytes with '?'
//   - CountingReader: tracks bytes consumed for progress reporting
//
// NewTextReader applies them in that order.

import (
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// NewTextReader returns r decoded to clean UTF-8. Input without a BOM is
// passed through as UTF-8.
func NewTextReader(r io.Reader) io.Reader {
	decoded := transform.NewReader(r, unicode.BOMOverride(transform.Nop))
	return NewUTF8Sanitizer(decoded)
}

// UTF8Sanitizer rewrites invalid UTF-8 on the fly using a constant amount of
// memory. Each invalid byte becomes '?' so the output never grows.
type UTF8Sanitizer struct {
	reader io.Reader

	// bytes of a multi-byte rune split across reads
	pending []byte
}

// NewUTF8Sanitizer wraps r.
func NewUTF8Sanitizer(r io.Reader) *UTF8Sanitizer {
	return &UTF8Sanitizer{
		reader:  r,
		pending: make([]byte, 0, utf8.UTFMax),
	}
}

func (s *UTF8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	offset := 0
	if len(s.pending) > 0 {
		offset = copy(p, s.pending)
		s.pending = s.pending[:0]
	}

	n, err := s.reader.Read(p[offset:])
	n += offset
	if n == 0 {
		return 0, err
	}
	if isASCII(p[:n]) {
		return n, err
	}
	return s.sanitize(p[:n], err == io.EOF), err
}

func isASCII(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// sanitize rewrites data in place and returns the length to hand out. Unless
// atEOF, an incomplete rune at the end is held back for the next call.
func (s *UTF8Sanitizer) sanitize(data []byte, atEOF bool) int {
	if utf8.Valid(data) {
		if !atEOF {
			if tail := partialTail(data); tail > 0 {
				s.pending = append(s.pending, data[len(data)-tail:]...)
				return len(data) - tail
			}
		}
		return len(data)
	}

	w := 0
	for r := 0; r < len(data); {
		ch, size := utf8.DecodeRune(data[r:])
		if !atEOF && ch == utf8.RuneError && size == 1 && !utf8.FullRune(data[r:]) {
			s.pending = append(s.pending, data[r:]...)
			return w
		}
		if ch == utf8.RuneError && size == 1 {
			data[w] = '?'
			w++
			r++
			continue
		}
		copy(data[w:], data[r:r+size])
		w += size
		r += size
	}
	return w
}

// partialTail reports how many trailing bytes of data begin a rune that is
// not yet complete.
func partialTail(data []byte) int {
	for i := 1; i <= utf8.UTFMax-1 && i <= len(data); i++ {
		b := data[len(data)-i]
		if utf8.RuneStart(b) {
			if b >= 0xC0 && !utf8.FullRune(data[len(data)-i:]) {
				return i
			}
			return 0
		}
	}
	return 0
}

// CountingReader tracks bytes read against an optional known total.
type CountingReader struct {
	reader    io.Reader
	BytesRead int64
	Total     int64
}

// NewCountingReader wraps r. total may be zero when unknown.
func NewCountingReader(r io.Reader, total int64) *CountingReader {
	return &CountingReader{reader: r, Total: total}
}

func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)
	return n, err
}

// Progress returns percent read, or 0 when the total is unknown.
func (r *CountingReader) Progress() int {
	if r.Total <= 0 {
		return 0
	}
	return int(min(r.BytesRead*100/r.Total, 100))
}
