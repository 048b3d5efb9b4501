// Package classify decomposes a logical roll record into canonical fields.
//
// Two strategies share one interface: General reads comma-ordered entries
// with race, tribe, alias and residence cues, and Regional reads Virginia
// lists with unnamed-person markers, owner phrases and citation codes. Both
// are driven entirely by a *ruleset.RuleSet.
package classify

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/coolbeans/rollcall/pkg/ruleset"
)

var (
	// ErrBlank is returned for a record with no non-space content.
	ErrBlank = errors.New("blank or empty record")

	// ErrNoData is returned when nothing usable survives cleaning.
	ErrNoData = errors.New("no data after cleaning")
)

// Fields is the classified content of one record.
type Fields struct {
	Surname   string   `json:"surname"`
	GivenName string   `json:"given_name"`
	Race      string   `json:"race"`
	Owner     string   `json:"owner"`
	Sources   []string `json:"sources"`
	Notes     string   `json:"notes"`

	// SurnameIsPlaceholder is set when the surname names a racial category
	// or an unnamed-person marker rather than a person.
	SurnameIsPlaceholder bool `json:"surname_is_placeholder"`
}

// Classifier turns one logical record into Fields.
type Classifier interface {
	Classify(record string) (Fields, error)
}

// New returns the classifier matching the rule set's variant.
func New(rs *ruleset.RuleSet) (Classifier, error) {
	if rs == nil {
		return nil, fmt.Errorf("rule set cannot be nil")
	}
	if !rs.IsCompiled() {
		if err := rs.Compile(); err != nil {
			return nil, err
		}
	}
	switch rs.Variant {
	case ruleset.VariantGeneral:
		return NewGeneral(rs), nil
	case ruleset.VariantRegional:
		return NewRegional(rs), nil
	default:
		return nil, fmt.Errorf("rule set %q has unknown variant %q", rs.ID, rs.Variant)
	}
}

var whitespacePattern = regexp.MustCompile(`\s+`)

// cleanNotes collapses whitespace and trims stray separators.
func cleanNotes(text string) string {
	return strings.Trim(whitespacePattern.ReplaceAllString(text, " "), " ;,")
}

// splitSegments splits on commas and keeps trimmed non-empty segments.
func splitSegments(text string) []string {
	var segments []string
	for _, part := range strings.Split(text, ",") {
		if part = strings.TrimSpace(part); part != "" {
			segments = append(segments, part)
		}
	}
	return segments
}

// Segments returns the trimmed non-empty comma segments of a record.
func Segments(record string) []string {
	return splitSegments(record)
}

// capitalize upper-cases the first letter and lower-cases the rest.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func hasLower(s string) bool {
	return strings.IndexFunc(s, unicode.IsLower) >= 0
}

func hasLetter(s string) bool {
	return strings.IndexFunc(s, unicode.IsLetter) >= 0
}

func isAllCapsWord(token string) bool {
	return hasLetter(token) && token == strings.ToUpper(token)
}
