package classify

import (
	"strings"

	"github.com/coolbeans/rollcall/pkg/annotate"
	"github.com/coolbeans/rollcall/pkg/ruleset"
)

// General classifies comma-ordered roll entries such as
// "SMITH, JOHN, African American, M881, res. Bangor".
type General struct {
	rules *ruleset.RuleSet
}

// NewGeneral returns a General classifier backed by rs.
func NewGeneral(rs *ruleset.RuleSet) *General {
	return &General{rules: rs}
}

// Classify implements Classifier.
func (g *General) Classify(record string) (Fields, error) {
	rs := g.rules
	stripped := strings.TrimSpace(record)
	if stripped == "" {
		return Fields{}, ErrBlank
	}

	notes := annotate.Result{Text: stripped}
	if rs.Annotations {
		notes = annotate.Extract(stripped, rs)
	}

	segments := splitSegments(notes.Text)
	if len(segments) == 0 {
		return Fields{}, ErrNoData
	}

	f := Fields{Surname: segments[0]}
	f.SurnameIsPlaceholder = rs.IsPlaceholderName(f.Surname)

	tail := segments[1:]
	var location string
	if len(tail) > 0 {
		if ok, _ := LocationVerdict(rs, tail[len(tail)-1]); ok {
			location = tail[len(tail)-1]
			tail = tail[:len(tail)-1]
		}
	}

	var given string
	if len(tail) > 0 && !f.SurnameIsPlaceholder && !rs.IsRaceOrTribe(tail[0]) {
		given = tail[0]
		tail = tail[1:]
	}

	var aliases []string
	if given != "" {
		var found []string
		given, found = stripAliases(rs, given)
		aliases = append(aliases, found...)
	}
	tail, found := stripAliasesFromSegments(rs, tail)
	aliases = append(aliases, found...)

	race := annotate.Raws(notes.RaceNotes)
	var sourcePieces []string
	for _, segment := range tail {
		if segment == "" {
			continue
		}
		if rs.IsRaceOrTribe(segment) {
			race = append(race, segment)
		} else {
			sourcePieces = append(sourcePieces, segment)
		}
	}
	f.Race = strings.Join(race, ", ")

	authority := rs.Citation.Authority
	if len(sourcePieces) > 0 {
		f.Sources = []string{authority + ", " + strings.Join(sourcePieces, ", ")}
	} else {
		f.Sources = []string{authority + ","}
	}

	sourceNotes := annotate.Raws(notes.SourceNotes)
	if location != "" {
		sourceNotes = append(sourceNotes, location)
	}
	f.Notes = strings.Join(sourceNotes, "; ")

	f.GivenName = given
	if len(aliases) > 0 {
		alias := "(alias " + strings.Join(aliases, "; ") + ")"
		if given != "" {
			f.GivenName = given + " " + alias
		} else {
			f.GivenName = alias
		}
	}

	return f, nil
}

// stripAliases removes each alias marker and the run of all-caps tokens
// following it from segment, returning the cleaned segment and the alias
// names found.
func stripAliases(rs *ruleset.RuleSet, segment string) (string, []string) {
	tokens := strings.Fields(segment)
	kept := make([]string, 0, len(tokens))
	var aliases []string

	for i := 0; i < len(tokens); {
		if !rs.IsAliasMarker(tokens[i]) {
			kept = append(kept, tokens[i])
			i++
			continue
		}
		i++
		start := i
		for i < len(tokens) && isAllCapsWord(tokens[i]) {
			i++
		}
		if i > start {
			aliases = append(aliases, strings.Join(tokens[start:i], " "))
		}
	}

	return strings.TrimSpace(strings.Join(kept, " ")), aliases
}

func stripAliasesFromSegments(rs *ruleset.RuleSet, segments []string) ([]string, []string) {
	cleaned := make([]string, 0, len(segments))
	var aliases []string
	for _, segment := range segments {
		s, found := stripAliases(rs, segment)
		cleaned = append(cleaned, s)
		aliases = append(aliases, found...)
	}
	return cleaned, aliases
}
