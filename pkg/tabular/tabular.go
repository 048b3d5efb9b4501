// Package tabular serializes parsed rows for import tools.
package tabular

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/coolbeans/rollcall/pkg/roll"
)

// Format names an output layout.
type Format string

const (
	// CSV is comma-delimited.
	CSV Format = "csv"

	// PSV is pipe-delimited. Files keep the .csv extension.
	PSV Format = "psv"
)

// Extension is used for every delimited output file.
const Extension = ".csv"

// ParseFormat accepts "csv", "psv" or the delimiter itself.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv", ",":
		return CSV, nil
	case "psv", "|", "pipe":
		return PSV, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want csv or psv)", s)
	}
}

// Delimiter returns the field separator of the format.
func (f Format) Delimiter() rune {
	if f == PSV {
		return '|'
	}
	return ','
}

// Writer writes rows as delimited lines with minimal quoting and no header.
type Writer struct {
	w *csv.Writer
}

// NewWriter returns a Writer that separates fields with delim.
func NewWriter(w io.Writer, delim rune) *Writer {
	cw := csv.NewWriter(w)
	cw.Comma = delim
	return &Writer{w: cw}
}

// Write writes one row.
func (w *Writer) Write(row roll.Row) error {
	return w.w.Write(row.Columns())
}

// WriteAll writes rows and flushes.
func (w *Writer) WriteAll(rows []roll.Row) error {
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Flush flushes buffered output and reports any write error.
func (w *Writer) Flush() error {
	w.w.Flush()
	return w.w.Error()
}

// Encode renders rows in format f.
func Encode(rows []roll.Row, f Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := NewWriter(&buf, f.Delimiter()).WriteAll(rows); err != nil {
		return nil, fmt.Errorf("encoding rows: %w", err)
	}
	return buf.Bytes(), nil
}

// Matrix returns the rows as 8-wide string slices, the shape the web front
// end expects.
func Matrix(rows []roll.Row) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = row.Columns()
	}
	return out
}

// WriteJSON writes rows as a JSON array of 8-wide arrays.
func WriteJSON(w io.Writer, rows []roll.Row) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Matrix(rows))
}
