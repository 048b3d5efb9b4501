package classify

import (
	"regexp"
	"sort"
	"strings"

	"github.com/coolbeans/rollcall/pkg/ruleset"
)

// Regional classifies Virginia-style entries, including records opened by
// an unnamed-person marker such as "NEGRO MAN, slave of James Doe, VAPC:1:338".
type Regional struct {
	rules *ruleset.RuleSet
}

// NewRegional returns a Regional classifier backed by rs.
func NewRegional(rs *ruleset.RuleSet) *Regional {
	return &Regional{rules: rs}
}

var givenNamePattern = regexp.MustCompile(`^[A-Z][A-Z .'-]*$`)

// regionalState carries a named record through namedSteps.
type regionalState struct {
	rest     string
	fields   Fields
	phrases  []string
	enslaved bool
}

type regionalStep struct {
	name  string
	apply func(rs *ruleset.RuleSet, st *regionalState)
}

// namedSteps run in order on the text after the surname and given name.
var namedSteps = []regionalStep{
	{name: "race-phrase", apply: func(rs *ruleset.RuleSet, st *regionalState) {
		st.fields.Race, st.phrases, st.rest = extractRace(rs, st.rest)
	}},
	{name: "enslaved", apply: func(rs *ruleset.RuleSet, st *regionalState) {
		st.enslaved = containsFold(st.rest, rs.Owner.EnslavedMarker)
		for _, phrase := range st.phrases {
			if rs.IsAfricanDescent(phrase) {
				st.enslaved = true
			}
		}
	}},
	{name: "owner", apply: func(rs *ruleset.RuleSet, st *regionalState) {
		st.fields.Owner, st.rest = extractOwner(rs, st.rest, st.enslaved)
	}},
	{name: "citation-code", apply: func(rs *ruleset.RuleSet, st *regionalState) {
		st.fields.Sources, st.rest = extractSources(rs, st.rest)
	}},
	{name: "notes", apply: func(_ *ruleset.RuleSet, st *regionalState) {
		st.fields.Notes = cleanNotes(st.rest)
	}},
}

// Classify implements Classifier.
func (c *Regional) Classify(record string) (Fields, error) {
	line := strings.TrimSpace(record)
	if line == "" {
		return Fields{}, ErrBlank
	}
	if marker := c.rules.MarkerPrefix(line); marker != "" {
		return c.unnamed(line, marker), nil
	}
	return c.named(line)
}

// unnamed handles a record whose marker phrase stands in for the surname.
func (c *Regional) unnamed(line, marker string) Fields {
	rs := c.rules
	rest := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line[len(marker):]), ",; "))

	f := Fields{
		Surname:              strings.TrimSpace(marker),
		Race:                 rs.Unnamed.RaceTag,
		SurnameIsPlaceholder: true,
	}

	enslaved := rs.Unnamed.FreeMarker == "" || !containsFold(rest, rs.Unnamed.FreeMarker)

	var remainder string
	f.Owner, remainder = extractOwner(rs, rest, enslaved)
	f.Sources, remainder = extractSources(rs, remainder)
	f.Notes = cleanNotes(remainder)
	return f
}

// named handles "SURNAME, [GIVEN,] rest" records. A line without a comma is
// all surname.
func (c *Regional) named(line string) (Fields, error) {
	rs := c.rules

	var surname, rest string
	if idx := strings.Index(line, ","); idx >= 0 {
		surname = strings.TrimSpace(line[:idx])
		rest = strings.TrimSpace(line[idx+1:])
	} else {
		surname = line
	}
	if surname == "" {
		return Fields{}, ErrNoData
	}

	st := regionalState{fields: Fields{Surname: surname}}

	parts := strings.SplitN(rest, ",", 2)
	maybeGiven := strings.TrimSpace(parts[0])
	if givenNamePattern.MatchString(maybeGiven) && !isRegionalCode(rs, maybeGiven) {
		st.fields.GivenName = maybeGiven
		if len(parts) > 1 {
			rest = strings.TrimSpace(parts[1])
		} else {
			rest = ""
		}
	}
	st.rest = rest

	for _, step := range namedSteps {
		step.apply(rs, &st)
	}
	return st.fields, nil
}

// extractRace pulls race phrases out of text. The returned race string holds
// the capitalized phrases, deduplicated, sorted and "; "-joined.
func extractRace(rs *ruleset.RuleSet, text string) (race string, phrases []string, rest string) {
	pattern := rs.RacePattern()
	if pattern == nil {
		return "", nil, text
	}
	phrases = pattern.FindAllString(text, -1)
	if len(phrases) == 0 {
		return "", nil, text
	}

	seen := make(map[string]bool, len(phrases))
	var normalized []string
	for _, p := range phrases {
		n := capitalize(strings.TrimSpace(p))
		if !seen[n] {
			seen[n] = true
			normalized = append(normalized, n)
		}
	}
	sort.Strings(normalized)

	return strings.Join(normalized, "; "), phrases, strings.TrimSpace(pattern.ReplaceAllString(text, ""))
}

// extractOwner pulls enslaver or employer phrases out of text when enslaved
// is set; otherwise text is returned untouched.
func extractOwner(rs *ruleset.RuleSet, text string, enslaved bool) (string, string) {
	pattern := rs.OwnerPattern()
	if pattern == nil || !enslaved {
		return "", text
	}
	owners := pattern.FindAllString(text, -1)
	if len(owners) == 0 {
		return "", text
	}
	for i := range owners {
		owners[i] = strings.TrimSpace(owners[i])
	}
	return strings.Join(owners, "; "), strings.TrimSpace(pattern.ReplaceAllString(text, ""))
}

// extractSources pulls citation codes out of text, each tagged with the
// citation authority.
func extractSources(rs *ruleset.RuleSet, text string) ([]string, string) {
	pattern := rs.CodePattern()
	if pattern == nil {
		return nil, text
	}
	var sources []string
	for _, code := range pattern.FindAllString(text, -1) {
		sources = append(sources, rs.Citation.Authority+", "+code)
	}
	return sources, strings.TrimSpace(pattern.ReplaceAllString(text, ""))
}

func containsFold(text, substr string) bool {
	return substr != "" && strings.Contains(strings.ToLower(text), strings.ToLower(substr))
}
