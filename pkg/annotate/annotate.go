// Package annotate pulls parenthesized and bracketed asides out of a logical
// record and sorts them into race notes and source notes.
package annotate

import (
	"regexp"
	"strings"
)

// Kind tags an extracted annotation.
type Kind string

const (
	KindRaceNote   Kind = "race-note"
	KindSourceNote Kind = "source-note"
)

// Keywords reports whether annotation text mentions a race, a race note
// (complexion and similar descriptors) or a tribe.
type Keywords interface {
	IsRaceOrTribe(text string) bool
}

// Annotation is one removed span.
type Annotation struct {
	// Raw is the span including its delimiters, e.g. "(negro)".
	Raw string `json:"raw"`

	// Inner is the trimmed text between the delimiters.
	Inner string `json:"inner"`

	Kind Kind `json:"kind"`
}

// Result holds a cleaned record and the annotations removed from it.
type Result struct {
	Text        string
	RaceNotes   []Annotation
	SourceNotes []Annotation
}

var (
	spanPattern = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]`)

	doubleCommaPattern   = regexp.MustCompile(`\s*,\s*,\s*`)
	commaRunPattern      = regexp.MustCompile(`,+`)
	leadingCommaPattern  = regexp.MustCompile(`^,\s*`)
	trailingCommaPattern = regexp.MustCompile(`\s*,\s*$`)
)

// Extract removes every non-nested (...) or [...] span from record. A span
// whose inner text carries any race or tribe keyword is a race note, even if
// it also holds citation codes; every other span is a source note.
func Extract(record string, kw Keywords) Result {
	var res Result

	cleaned := spanPattern.ReplaceAllStringFunc(record, func(span string) string {
		a := Annotation{
			Raw:   span,
			Inner: strings.TrimSpace(span[1 : len(span)-1]),
		}
		if kw.IsRaceOrTribe(a.Inner) {
			a.Kind = KindRaceNote
			res.RaceNotes = append(res.RaceNotes, a)
		} else {
			a.Kind = KindSourceNote
			res.SourceNotes = append(res.SourceNotes, a)
		}
		return ""
	})

	res.Text = NormalizeCommas(cleaned)
	return res
}

// NormalizeCommas repairs the comma punctuation left behind after spans are
// cut out of a record.
func NormalizeCommas(text string) string {
	text = doubleCommaPattern.ReplaceAllString(text, ",")
	text = commaRunPattern.ReplaceAllString(text, ",")
	text = leadingCommaPattern.ReplaceAllString(text, "")
	text = trailingCommaPattern.ReplaceAllString(text, "")
	return text
}

// Raws returns the raw text of each annotation.
func Raws(annotations []Annotation) []string {
	out := make([]string, len(annotations))
	for i, a := range annotations {
		out[i] = a.Raw
	}
	return out
}
