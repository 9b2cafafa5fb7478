package xlsx

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// Defaults for CSVOptions.
const (
	DefaultChunkThreshold = 50 << 20
	DefaultChunkRows      = 10000
)

// CSVOptions controls delimited-text decoding.
type CSVOptions struct {
	// Inputs larger than ChunkThreshold bytes are decoded ChunkRows
	// records at a time.
	ChunkThreshold int64
	ChunkRows      int

	// Comma is the field delimiter. Zero means ','.
	Comma rune

	// OnChunk, if set, is called after each chunk with the rows decoded so
	// far and the percent of input consumed.
	OnChunk func(rows, percent int)
}

func (o CSVOptions) withDefaults() CSVOptions {
	if o.ChunkThreshold <= 0 {
		o.ChunkThreshold = DefaultChunkThreshold
	}
	if o.ChunkRows <= 0 {
		o.ChunkRows = DefaultChunkRows
	}
	if o.Comma == 0 {
		o.Comma = ','
	}
	return o
}

// ReadCSVBytes decodes an in-memory CSV file.
func ReadCSVBytes(data []byte, opts CSVOptions) (*Sheet, error) {
	return ReadCSV(bytes.NewReader(data), int64(len(data)), opts)
}

// ReadCSV decodes delimited text into a text sheet. The first record is the
// header; a header with no records yields columns with zero rows. Records
// shorter than the header are padded with "" and longer ones are an error.
func ReadCSV(r io.Reader, size int64, opts CSVOptions) (*Sheet, error) {
	opts = opts.withDefaults()

	counter := NewCountingReader(r, size)
	cr := csv.NewReader(NewTextReader(counter))
	cr.Comma = opts.Comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	b := newColumnBuilder(DedupHeaders(header))

	if size <= opts.ChunkThreshold {
		records, err := cr.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("read records: %w", err)
		}
		if err := b.append(records); err != nil {
			return nil, err
		}
		return b.sheet(), nil
	}

	cr.ReuseRecord = true
	chunk := make([][]string, 0, opts.ChunkRows)
	for {
		chunk = chunk[:0]
		var readErr error
		for len(chunk) < opts.ChunkRows {
			rec, err := cr.Read()
			if err != nil {
				readErr = err
				break
			}
			chunk = append(chunk, append([]string(nil), rec...))
		}
		if err := b.append(chunk); err != nil {
			return nil, err
		}
		if opts.OnChunk != nil {
			opts.OnChunk(b.rows, counter.Progress())
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("read records: %w", readErr)
		}
	}
	return b.sheet(), nil
}

type columnBuilder struct {
	header []string
	values [][]string
	rows   int
}

func newColumnBuilder(header []string) *columnBuilder {
	return &columnBuilder{header: header, values: make([][]string, len(header))}
}

func (b *columnBuilder) append(records [][]string) error {
	for _, rec := range records {
		if len(rec) > len(b.header) {
			return fmt.Errorf("row %d has %d fields, header has %d", b.rows+2, len(rec), len(b.header))
		}
		for c := range b.values {
			v := ""
			if c < len(rec) {
				v = rec[c]
			}
			b.values[c] = append(b.values[c], v)
		}
		b.rows++
	}
	return nil
}

func (b *columnBuilder) sheet() *Sheet {
	cols := make([]Column, len(b.header))
	for c, name := range b.header {
		vals := b.values[c]
		if vals == nil {
			vals = []string{}
		}
		cols[c] = TextColumn(name, vals)
	}
	return &Sheet{Name: "Sheet1", Columns: cols}
}
