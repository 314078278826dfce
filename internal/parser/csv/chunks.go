// Package csv streams a delimited census file as bounded-size row chunks.
//
// The reader is tolerant by default: variable field counts are accepted,
// malformed lines are soft-dropped through the onErr callback, and header
// names are normalized (trimmed, BOM- and diacritic-stripped, lowercased,
// spaces replaced by underscores) before mapping, so an accented variant such
// as "GÉNERO" resolves to the same canonical column as "GENERO".
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"census/internal/config"
)

// Chunk is one bounded run of rows. Rows are aligned to the columns slice
// passed to StreamChunks; missing or empty cells hold "".
//
// A Chunk is immutable once emitted; workers must not write into Rows.
type Chunk struct {
	// Index is the 0-based position of the chunk in the source order.
	Index int

	// FirstLine is the 1-based source line of the chunk's first row,
	// for diagnostics.
	FirstLine int

	// Rows holds the aligned cell values.
	Rows [][]string
}

// Len returns the number of rows in the chunk.
func (c *Chunk) Len() int { return len(c.Rows) }

// StreamChunks reads src as CSV and emits chunks of at most chunkSize rows,
// each aligned to the target 'columns' order.
//
// Header handling:
//   - If options.has_header==true (the default), the first line is treated as
//     header. Names are normalized (see package doc) and then mapped via
//     options.header_map (source-name -> canonical); the map is consulted
//     with both the raw trimmed name and the normalized one.
//   - The resulting dest→source mapping aligns every data row. A target
//     column absent from the header is a fatal error: the aggregates cannot
//     be computed without their inputs.
//   - If has_header==false, positional mapping is assumed.
//
// Tuning/robustness (all optional via options):
//   - comma (string; first rune used; default ';')
//   - trim_space (bool; default true)
//   - lazy_quotes (bool; default false) → csv.Reader.LazyQuotes
//
// onErr(line, err) receives recoverable row errors (soft-drop). A nil onErr
// silently drops them.
//
// StreamChunks closes src before returning and never closes out.
func StreamChunks(
	ctx context.Context,
	src io.ReadCloser,
	columns []string,
	opt config.Options,
	chunkSize int,
	out chan<- *Chunk,
	onErr func(line int, err error),
) error {
	defer src.Close()

	if chunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}

	hasHeader := opt.Bool("has_header", true)
	comma := opt.Rune("comma", ';')
	trim := opt.Bool("trim_space", true)
	hm := opt.StringMap("header_map")
	lazy := opt.Bool("lazy_quotes", false)

	cr := csv.NewReader(src)
	cr.Comma = comma
	cr.ReuseRecord = true
	cr.LazyQuotes = lazy
	cr.FieldsPerRecord = -1 // tolerant by default

	line := 0
	read := func() ([]string, error) { line++; return cr.Read() }

	// Build dest→source mapping.
	colIx := make([]int, len(columns)) // colIx[target] = source index, or -1
	for i := range colIx {
		colIx[i] = -1
	}

	if hasHeader {
		hdr, err := read()
		if err != nil {
			return fmt.Errorf("read header: %w", err)
		}
		srcToIdx := make(map[string]int, len(hdr))
		for i, h := range hdr {
			h = strings.TrimSpace(h)
			if i == 0 {
				h = strings.TrimPrefix(h, "\uFEFF") // strip BOM
			}
			if mapped, ok := hm[h]; ok {
				h = mapped
			} else if mapped, ok := hm[NormalizeHeader(h)]; ok {
				h = mapped
			} else {
				h = NormalizeHeader(h)
			}
			srcToIdx[h] = i
		}
		var missing []string
		for t, target := range columns {
			si, ok := srcToIdx[target]
			if !ok {
				missing = append(missing, target)
				continue
			}
			colIx[t] = si
		}
		if len(missing) > 0 {
			return fmt.Errorf("required columns missing from header: %s", strings.Join(missing, ", "))
		}
	} else {
		for i := range columns {
			colIx[i] = i // positional
		}
	}

	chunkIndex := 0
	cur := &Chunk{Index: chunkIndex, FirstLine: line + 1, Rows: make([][]string, 0, chunkSize)}

	flush := func() error {
		if len(cur.Rows) == 0 {
			return nil
		}
		select {
		case out <- cur:
		case <-ctx.Done():
			return ctx.Err()
		}
		chunkIndex++
		cur = &Chunk{Index: chunkIndex, FirstLine: line + 1, Rows: make([][]string, 0, chunkSize)}
		return nil
	}

	for {
		// cooperative cancel
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := read()
		if err == io.EOF {
			return flush()
		}
		if err != nil {
			if onErr != nil {
				onErr(line, fmt.Errorf("csv read: %w", err))
			}
			continue
		}

		row := make([]string, len(columns))
		for t := range columns {
			si := colIx[t]
			if si < 0 || si >= len(rec) {
				continue
			}
			v := rec[si]
			if trim {
				v = strings.TrimSpace(v)
			}
			row[t] = v
		}
		cur.Rows = append(cur.Rows, row)

		if len(cur.Rows) >= chunkSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
}

// foldDiacritics decomposes s, removes combining marks, and recomposes, so
// "GÉNERO" becomes "GENERO". Errors from the transform leave s unchanged.
func foldDiacritics(s string) string {
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

// NormalizeHeader converts a raw header cell into canonical form: trimmed,
// diacritics folded, lowercased, internal spaces replaced by underscores.
func NormalizeHeader(h string) string {
	h = foldDiacritics(strings.TrimSpace(h))
	return strings.ReplaceAll(strings.ToLower(h), " ", "_")
}
