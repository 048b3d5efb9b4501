package classify

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/coolbeans/rollcall/pkg/ruleset"
)

// locationRule is one step of the trailing-segment location chain. The
// first rule whose predicate holds decides the verdict.
type locationRule struct {
	name       string
	matches    func(rs *ruleset.RuleSet, segment string) bool
	isLocation bool
}

// Order matters: a citation code is never a location, even with a hint.
var locationChain = []locationRule{
	{
		name:       "no-residence-sentinel",
		matches:    func(rs *ruleset.RuleSet, s string) bool { return rs.IsNoResidence(s) },
		isLocation: true,
	},
	{
		name:       "citation-code",
		matches:    func(_ *ruleset.RuleSet, s string) bool { return LooksLikeCitationCode(s) },
		isLocation: false,
	},
	{
		name:       "location-hint",
		matches:    func(rs *ruleset.RuleSet, s string) bool { return rs.HasLocationHint(s) },
		isLocation: true,
	},
	{
		name:       "whitespace",
		matches:    func(_ *ruleset.RuleSet, s string) bool { return strings.Contains(s, " ") },
		isLocation: true,
	},
	{
		name:       "lowercase",
		matches:    func(_ *ruleset.RuleSet, s string) bool { return hasLower(s) },
		isLocation: true,
	},
	{
		// Almost any non-code trailing segment ends up here.
		name:       "fallback",
		matches:    func(*ruleset.RuleSet, string) bool { return true },
		isLocation: true,
	},
}

// LocationVerdict reports whether segment reads as a residence and names the
// rule that decided it.
func LocationVerdict(rs *ruleset.RuleSet, segment string) (bool, string) {
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return false, ""
	}
	for _, rule := range locationChain {
		if rule.matches(rs, segment) {
			return rule.isLocation, rule.name
		}
	}
	return false, ""
}

// LooksLikeCitationCode reports whether chunk has the shape of a general-roll
// citation: no lowercase letters, and either a digit, a colon, or at least
// three characters once spaces are removed.
func LooksLikeCitationCode(chunk string) bool {
	cleaned := strings.ReplaceAll(strings.TrimSpace(chunk), " ", "")
	if cleaned == "" || hasLower(cleaned) {
		return false
	}
	if strings.IndexFunc(cleaned, unicode.IsDigit) >= 0 || strings.Contains(cleaned, ":") {
		return true
	}
	return utf8.RuneCountInString(cleaned) >= 3
}

// isRegionalCode reports whether a chunk is a citation code rather than a
// given name. Letter-only chunks count only when listed as known codes, so
// plain upper-case names such as "JOHN" stay names.
func isRegionalCode(rs *ruleset.RuleSet, chunk string) bool {
	if !rs.MatchesCodeShape(chunk) {
		return false
	}
	return strings.ContainsAny(chunk, "0123456789:-") || rs.IsKnownCode(chunk)
}

// Precedence lists, in evaluation order, the named steps a classifier for rs
// applies to a record.
func Precedence(rs *ruleset.RuleSet) []string {
	if rs.Variant == ruleset.VariantRegional {
		steps := []string{"marker-phrase", "surname", "given-name"}
		for _, step := range namedSteps {
			steps = append(steps, step.name)
		}
		return steps
	}

	steps := []string{"annotations", "surname", "placeholder"}
	for _, rule := range locationChain {
		steps = append(steps, "location/"+rule.name)
	}
	return append(steps, "given-name", "alias", "race-or-source")
}
