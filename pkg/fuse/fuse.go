// Package fuse reassembles physical lines of roll text into logical records,
// one per listed person.
package fuse

import "strings"

// Signature decides how a trimmed physical line takes part in fusing.
type Signature interface {
	// IsPageHeader reports whether the line is a printed page header.
	IsPageHeader(line string) bool

	// StartsRecord reports whether the line opens a new record.
	StartsRecord(line string) bool
}

// Record is one logical record assembled from contiguous physical lines.
type Record struct {
	// Text is the space-joined content of the contributing lines.
	Text string

	// Lines holds the 1-indexed physical line numbers that were joined.
	Lines []int
}

// Fuse groups the lines of text into logical records. Blank lines and page
// headers never contribute to a record. A continuation line seen before any
// record has started opens an implicit record so no input is dropped.
func Fuse(text string, sig Signature) []Record {
	var (
		records []Record
		parts   []string
		lines   []int
	)

	flush := func() {
		joined := strings.TrimSpace(strings.Join(parts, " "))
		if joined != "" {
			records = append(records, Record{Text: joined, Lines: lines})
		}
		parts = nil
		lines = nil
	}

	for i, raw := range splitLines(text) {
		line := strings.TrimSpace(raw)
		if line == "" || sig.IsPageHeader(line) {
			continue
		}

		if sig.StartsRecord(line) {
			flush()
		}
		parts = append(parts, line)
		lines = append(lines, i+1)
	}
	flush()

	return records
}

// Texts returns only the text of each record.
func Texts(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Text
	}
	return out
}

// splitLines splits on \n, \r\n and lone \r line endings.
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}
