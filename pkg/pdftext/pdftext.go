// Package pdftext extracts roll text from PDF pages.
package pdftext

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	// ErrPageRange is returned when a page request selects no page of the
	// document.
	ErrPageRange = errors.New("page range outside document")

	// ErrNoMapping is returned when a printed page cannot be mapped to a
	// PDF page.
	ErrNoMapping = errors.New("no printed page mapping")
)

var (
	headerPattern      = regexp.MustCompile(`^[A-Z][a-z]+ \d+$`)
	hyphenBreakPattern = regexp.MustCompile(`-\n(\S)`)
	blankRunPattern    = regexp.MustCompile(`\n+`)
)

// Options controls extraction.
type Options struct {
	// Pages selects 1-based pages, e.g. "36-43" or "36,38,40-41". Empty
	// selects every page.
	Pages string

	// KeepHeaders keeps printed page headers such as "Maine 23".
	KeepHeaders bool

	// KeepHyphens keeps words split across line breaks as they are.
	KeepHyphens bool
}

// Extract reads the selected pages of the PDF at path.
func Extract(path string, opts Options) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return extract(r, opts)
}

// ExtractBytes reads the selected pages of an in-memory PDF.
func ExtractBytes(data []byte, opts Options) (string, error) {
	return ExtractReader(bytes.NewReader(data), int64(len(data)), opts)
}

// ExtractReader reads the selected pages of a PDF from r.
func ExtractReader(r io.ReaderAt, size int64, opts Options) (string, error) {
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("reading pdf: %w", err)
	}
	return extract(reader, opts)
}

// ExtractRange reads pages start through end, clamped to the document.
// Blank pages are skipped. A range that selects no page is ErrPageRange.
func ExtractRange(data []byte, start, end int) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("reading pdf: %w", err)
	}

	first := max(1, start)
	last := min(reader.NumPage(), end)
	if first > last {
		return "", fmt.Errorf("%w: %d-%d of %d", ErrPageRange, start, end, reader.NumPage())
	}

	var chunks []string
	for n := first; n <= last; n++ {
		text, err := pageText(reader, n)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) != "" {
			chunks = append(chunks, text)
		}
	}
	return strings.Join(chunks, "\n"), nil
}

// NumPages returns the page count of an in-memory PDF.
func NumPages(data []byte) (int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("reading pdf: %w", err)
	}
	return reader.NumPage(), nil
}

func extract(r *pdf.Reader, opts Options) (string, error) {
	pages, err := ParsePages(opts.Pages, r.NumPage())
	if err != nil {
		return "", err
	}
	if len(pages) == 0 {
		return "", fmt.Errorf("%w: %q of %d", ErrPageRange, opts.Pages, r.NumPage())
	}

	texts := make([]string, 0, len(pages))
	for _, n := range pages {
		text, err := pageText(r, n)
		if err != nil {
			return "", err
		}
		texts = append(texts, text)
	}
	return Clean(texts, opts), nil
}

// pageText returns the text of page n, one line per text row.
func pageText(r *pdf.Reader, n int) (string, error) {
	page := r.Page(n)
	if page.V.IsNull() {
		return "", nil
	}
	rows, err := page.GetTextByRow()
	if err != nil {
		return "", fmt.Errorf("reading page %d: %w", n, err)
	}

	var b strings.Builder
	for _, row := range rows {
		for _, word := range row.Content {
			b.WriteString(word.S)
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// Clean joins page texts, drops blank lines and page headers, and merges
// words hyphenated across line breaks.
func Clean(pages []string, opts Options) string {
	var lines []string
	for _, page := range pages {
		for _, raw := range strings.Split(strings.ReplaceAll(page, "\r\n", "\n"), "\n") {
			line := strings.TrimRight(raw, " \t\r")
			if line == "" {
				continue
			}
			if !opts.KeepHeaders && headerPattern.MatchString(strings.TrimSpace(line)) {
				continue
			}
			lines = append(lines, line)
		}
	}

	text := strings.Join(lines, "\n")
	if !opts.KeepHyphens {
		text = hyphenBreakPattern.ReplaceAllString(text, "$1")
		text = blankRunPattern.ReplaceAllString(text, "\n")
	}
	return text
}

// ParsePages expands a page spec such as "36-43,38" into 1-based page
// numbers in request order. Pages outside 1..numPages are dropped. An empty
// spec selects every page.
func ParsePages(spec string, numPages int) ([]int, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		pages := make([]int, numPages)
		for i := range pages {
			pages[i] = i + 1
		}
		return pages, nil
	}

	var pages []int
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		start, end := part, part
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			start, end = lo, hi
		}
		first, err := strconv.Atoi(strings.TrimSpace(start))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid page %q in %q", ErrPageRange, start, spec)
		}
		last, err := strconv.Atoi(strings.TrimSpace(end))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid page %q in %q", ErrPageRange, end, spec)
		}

		for n := max(first, 1); n <= min(last, numPages); n++ {
			pages = append(pages, n)
		}
	}
	return pages, nil
}
