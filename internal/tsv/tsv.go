// Package tsv implements the typed tab-separated line format used for
// version indexes and the tree cache: a header row of column names
// followed by one row per record, blank cells denoting absent values.
package tsv

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/multiformats/go-multihash"
)

// MalformedRowError reports a row that does not satisfy the schema.
type MalformedRowError struct {
	Line   int
	Column string
	Reason string
}

func (e *MalformedRowError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("tsv: malformed row at line %d, column %q: %s", e.Line, e.Column, e.Reason)
	}
	return fmt.Sprintf("tsv: malformed row at line %d: %s", e.Line, e.Reason)
}

// Writer emits a header row followed by data rows.
type Writer struct {
	w    *bufio.Writer
	cols []string
}

// NewWriter writes the header immediately.
func NewWriter(w io.Writer, columns ...string) (*Writer, error) {
	tw := &Writer{w: bufio.NewWriter(w), cols: columns}
	if _, err := tw.w.WriteString(strings.Join(columns, "\t") + "\n"); err != nil {
		return nil, err
	}
	return tw, nil
}

// WriteRow writes one row. The number of cells must match the header.
func (w *Writer) WriteRow(cells ...string) error {
	if len(cells) != len(w.cols) {
		return fmt.Errorf("tsv: row has %d cells, header has %d", len(cells), len(w.cols))
	}
	for i, c := range cells {
		if strings.ContainsAny(c, "\t\n") {
			return fmt.Errorf("tsv: cell %q in column %q contains a separator", c, w.cols[i])
		}
	}
	_, err := w.w.WriteString(strings.Join(cells, "\t") + "\n")
	return err
}

// Flush drains the buffered output to the underlying writer.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

// Row is one parsed data row with access to typed cells by column name.
type Row struct {
	line  int
	cols  map[string]int
	cells []string
}

// Reader parses a header row and yields data rows.
type Reader struct {
	s    *bufio.Scanner
	cols map[string]int
	line int
}

// NewReader reads the header row.
func NewReader(r io.Reader) (*Reader, error) {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 4*1024*1024)
	if !s.Scan() {
		if err := s.Err(); err != nil {
			return nil, err
		}
		return nil, &MalformedRowError{Line: 1, Reason: "missing header row"}
	}
	cols := make(map[string]int)
	for i, name := range strings.Split(s.Text(), "\t") {
		cols[name] = i
	}
	return &Reader{s: s, cols: cols, line: 1}, nil
}

// Columns reports whether the header contains every named column.
func (r *Reader) Columns(names ...string) error {
	for _, n := range names {
		if _, ok := r.cols[n]; !ok {
			return &MalformedRowError{Line: 1, Column: n, Reason: "missing column"}
		}
	}
	return nil
}

// Next returns the next data row, or io.EOF when the input is
// exhausted.
func (r *Reader) Next() (Row, error) {
	if !r.s.Scan() {
		if err := r.s.Err(); err != nil {
			return Row{}, err
		}
		return Row{}, io.EOF
	}
	r.line++
	return Row{line: r.line, cols: r.cols, cells: strings.Split(r.s.Text(), "\t")}, nil
}

func (row Row) cell(col string) (string, bool) {
	i, ok := row.cols[col]
	if !ok || i >= len(row.cells) {
		return "", false
	}
	return row.cells[i], true
}

// String returns the raw cell. A missing column or blank cell yields "".
func (row Row) String(col string) string {
	s, _ := row.cell(col)
	return s
}

// RequireString returns the cell and fails if it is blank.
func (row Row) RequireString(col string) (string, error) {
	s, ok := row.cell(col)
	if !ok || s == "" {
		return "", &MalformedRowError{Line: row.line, Column: col, Reason: "required cell is blank"}
	}
	return s, nil
}

// Int64 parses a base-10 integer cell. Blank yields (0, false, nil).
func (row Row) Int64(col string) (int64, bool, error) {
	s, ok := row.cell(col)
	if !ok || s == "" {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false, &MalformedRowError{Line: row.line, Column: col, Reason: err.Error()}
	}
	return n, true, nil
}

// Time parses an ISO-8601 cell. Blank yields a zero time.
func (row Row) Time(col string) (time.Time, bool, error) {
	s, ok := row.cell(col)
	if !ok || s == "" {
		return time.Time{}, false, nil
	}
	t, err := ParseTime(s)
	if err != nil {
		return time.Time{}, false, &MalformedRowError{Line: row.line, Column: col, Reason: err.Error()}
	}
	return t, true, nil
}

// Multihash parses a lowercase-hex multihash cell. Blank yields nil.
func (row Row) Multihash(col string) (multihash.Multihash, error) {
	s, ok := row.cell(col)
	if !ok || s == "" {
		return nil, nil
	}
	mh, err := multihash.FromHexString(s)
	if err != nil {
		return nil, &MalformedRowError{Line: row.line, Column: col, Reason: err.Error()}
	}
	return mh, nil
}

// Cell encoders. Absent values encode as "".

func FormatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}

// FormatTime renders an instant as ISO-8601 with nanosecond precision
// in UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z")
}

func ParseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// FormatMultihash renders a multihash as lowercase hex; nil encodes as
// a blank cell.
func FormatMultihash(mh multihash.Multihash) string {
	if len(mh) == 0 {
		return ""
	}
	return mh.HexString()
}
