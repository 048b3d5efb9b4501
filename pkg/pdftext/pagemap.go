package pdftext

import (
	"fmt"
	"sort"
	"strings"
)

// Chapter ties the first printed page of a book chapter to the PDF page it
// appears on.
type Chapter struct {
	Name         string `koanf:"name" yaml:"name" json:"name" validate:"required"`
	PrintedStart int    `koanf:"printed_start" yaml:"printed_start" json:"printed_start" validate:"gt=0"`
	PDFStart     int    `koanf:"pdf_start" yaml:"pdf_start" json:"pdf_start" validate:"gt=0"`
}

// PageMap converts printed page numbers to PDF page numbers.
type PageMap struct {
	chapters []Chapter
}

// DefaultChapters are the chapter offsets known for the DAR Forgotten
// Patriots volume.
func DefaultChapters() []Chapter {
	return []Chapter{
		{Name: "Maine", PrintedStart: 9, PDFStart: 25},
		{Name: "New Hampshire", PrintedStart: 52, PDFStart: 68},
		{Name: "Massachusetts", PrintedStart: 77, PDFStart: 93},
		{Name: "Pennsylvania", PrintedStart: 414, PDFStart: 245},
	}
}

// NewPageMap builds a map over chapters. Chapters without both start pages
// are ignored.
func NewPageMap(chapters []Chapter) *PageMap {
	m := &PageMap{}
	for _, c := range chapters {
		if c.PrintedStart > 0 && c.PDFStart > 0 {
			m.chapters = append(m.chapters, c)
		}
	}
	sort.SliceStable(m.chapters, func(i, j int) bool {
		return m.chapters[i].PrintedStart < m.chapters[j].PrintedStart
	})
	return m
}

// Chapters returns the configured chapters ordered by printed start.
func (m *PageMap) Chapters() []Chapter {
	return append([]Chapter(nil), m.chapters...)
}

// Resolve maps a printed page using the chapter with the greatest printed
// start not after it.
func (m *PageMap) Resolve(printed int) (int, error) {
	if printed <= 0 {
		return 0, fmt.Errorf("printed page %d must be positive", printed)
	}
	if len(m.chapters) == 0 {
		return 0, fmt.Errorf("%w: no chapters configured", ErrNoMapping)
	}

	var chapter *Chapter
	for i := range m.chapters {
		if m.chapters[i].PrintedStart <= printed {
			chapter = &m.chapters[i]
		}
	}
	if chapter == nil {
		return 0, fmt.Errorf("%w: printed page %d is before the first chapter", ErrNoMapping, printed)
	}
	return translate(*chapter, printed)
}

// ResolveState maps a printed page using the named state's chapter.
func (m *PageMap) ResolveState(state string, printed int) (int, error) {
	if printed <= 0 {
		return 0, fmt.Errorf("printed page %d must be positive", printed)
	}
	for _, c := range m.chapters {
		if strings.EqualFold(c.Name, strings.TrimSpace(state)) {
			return translate(c, printed)
		}
	}
	return 0, fmt.Errorf("%w: state %q", ErrNoMapping, state)
}

func translate(c Chapter, printed int) (int, error) {
	page := c.PDFStart + printed - c.PrintedStart
	if page < 1 {
		return 0, fmt.Errorf("computed pdf page %d for printed page %d is invalid", page, printed)
	}
	return page, nil
}
