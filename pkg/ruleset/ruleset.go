// Package ruleset provides the keyword and pattern tables that drive roll
// classification. Each variant of the parser is backed by one immutable
// RuleSet, usually loaded from YAML.
package ruleset

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Variant names the classification strategy a rule set feeds.
const (
	VariantGeneral  = "general"
	VariantRegional = "regional"
)

// RuleSet defines the keyword tables and patterns of one roll dialect.
type RuleSet struct {
	// Metadata
	Name        string   `yaml:"name" json:"name"`
	ID          string   `yaml:"id" json:"id"`
	Version     string   `yaml:"version" json:"version"`
	Variant     string   `yaml:"variant" json:"variant"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	States      []string `yaml:"states,omitempty" json:"states,omitempty"`

	// Annotations enables extraction of parenthesized and bracketed spans.
	Annotations bool `yaml:"annotations" json:"annotations"`

	// Line fusing
	RecordStart string `yaml:"record_start" json:"record_start"`
	PageHeader  string `yaml:"page_header" json:"page_header"`

	Keywords KeywordConfig  `yaml:"keywords" json:"keywords"`
	Citation CitationConfig `yaml:"citation" json:"citation"`
	Unnamed  UnnamedConfig  `yaml:"unnamed,omitempty" json:"unnamed,omitempty"`
	Owner    OwnerConfig    `yaml:"owner,omitempty" json:"owner,omitempty"`

	// RacePhrases are matched case-insensitively in regional records.
	RacePhrases []string `yaml:"race_phrases,omitempty" json:"race_phrases,omitempty"`

	// AfricanDescent lists race phrases that allow owner extraction.
	AfricanDescent []string `yaml:"african_descent,omitempty" json:"african_descent,omitempty"`

	compiled *compiledRules
}

// KeywordConfig holds the substring tables used by the general classifier.
type KeywordConfig struct {
	Race          []string `yaml:"race" json:"race"`
	RaceNotes     []string `yaml:"race_notes" json:"race_notes"`
	Tribes        []string `yaml:"tribes" json:"tribes"`
	NameRoots     []string `yaml:"name_roots" json:"name_roots"`
	AliasMarkers  []string `yaml:"alias_markers" json:"alias_markers"`
	LocationHints []string `yaml:"location_hints" json:"location_hints"`
	NoResidence   string   `yaml:"no_residence" json:"no_residence"`
}

// CitationConfig describes how source citations are recognized and tagged.
type CitationConfig struct {
	// Authority is the tag prefixed to every source entry (e.g. "DAR").
	Authority string `yaml:"authority" json:"authority"`

	// CodePattern matches citation codes such as VAPC:1:338.
	CodePattern string `yaml:"code_pattern,omitempty" json:"code_pattern,omitempty"`

	// KnownCodes are letter-only codes that must never be read as names.
	KnownCodes []string `yaml:"known_codes,omitempty" json:"known_codes,omitempty"`
}

// UnnamedConfig describes marker phrases standing in for unnamed persons.
type UnnamedConfig struct {
	Markers    []string `yaml:"markers" json:"markers"`
	RaceTag    string   `yaml:"race_tag" json:"race_tag"`
	FreeMarker string   `yaml:"free_marker" json:"free_marker"`
}

// OwnerConfig describes enslaver or employer phrases.
type OwnerConfig struct {
	Phrases        []string `yaml:"phrases" json:"phrases"`
	EnslavedMarker string   `yaml:"enslaved_marker" json:"enslaved_marker"`
}

// compiledRules holds compiled patterns and lower-cased keyword tables.
type compiledRules struct {
	recordStart *regexp.Regexp
	pageHeader  *regexp.Regexp
	marker      *regexp.Regexp
	owner       *regexp.Regexp
	race        *regexp.Regexp
	code        *regexp.Regexp
	codeFull    *regexp.Regexp

	raceKeywords   []string
	tribes         []string
	nameRoots      []string
	locationHints  []string
	aliasMarkers   map[string]bool
	knownCodes     map[string]bool
	africanDescent map[string]bool
}

// Compile compiles all patterns in the RuleSet.
// Returns an error if any pattern fails to compile.
func (rs *RuleSet) Compile() error {
	c := &compiledRules{}

	var err error
	if c.recordStart, err = compileOptional(rs.RecordStart); err != nil {
		return fmt.Errorf("compiling record_start pattern %q: %w", rs.RecordStart, err)
	}
	if c.pageHeader, err = compileOptional(rs.PageHeader); err != nil {
		return fmt.Errorf("compiling page_header pattern %q: %w", rs.PageHeader, err)
	}
	if c.code, err = compileOptional(rs.Citation.CodePattern); err != nil {
		return fmt.Errorf("compiling citation code pattern %q: %w", rs.Citation.CodePattern, err)
	}
	if c.code != nil {
		c.codeFull = regexp.MustCompile(`^(?:` + rs.Citation.CodePattern + `)$`)
	}

	// Longest marker first: "NEGRO MAN" must win over "NEGRO".
	if len(rs.Unnamed.Markers) > 0 {
		markers := append([]string(nil), rs.Unnamed.Markers...)
		sort.SliceStable(markers, func(i, j int) bool { return len(markers[i]) > len(markers[j]) })
		c.marker = regexp.MustCompile(`^(?:` + alternation(markers) + `)\b`)
	}
	if len(rs.Owner.Phrases) > 0 {
		c.owner = regexp.MustCompile(`(?i)(?:` + alternation(rs.Owner.Phrases) + `)\s+[^,;()]+`)
	}
	if len(rs.RacePhrases) > 0 {
		c.race = regexp.MustCompile(`(?i)(` + alternation(rs.RacePhrases) + `)`)
	}

	c.raceKeywords = lowerAll(append(append([]string(nil), rs.Keywords.Race...), rs.Keywords.RaceNotes...))
	c.tribes = lowerAll(rs.Keywords.Tribes)
	c.nameRoots = lowerAll(rs.Keywords.NameRoots)
	c.locationHints = lowerAll(rs.Keywords.LocationHints)
	c.aliasMarkers = lowerSet(rs.Keywords.AliasMarkers)
	c.knownCodes = make(map[string]bool, len(rs.Citation.KnownCodes))
	for _, code := range rs.Citation.KnownCodes {
		c.knownCodes[code] = true
	}
	c.africanDescent = lowerSet(rs.AfricanDescent)

	rs.compiled = c
	return nil
}

// IsCompiled returns true if the rule set has been compiled.
func (rs *RuleSet) IsCompiled() bool {
	return rs.compiled != nil
}

// Validate checks that the rule set has all required fields.
func (rs *RuleSet) Validate() error {
	if rs.Name == "" {
		return fmt.Errorf("rule set name is required")
	}
	if rs.ID == "" {
		return fmt.Errorf("rule set id is required")
	}
	if rs.Version == "" {
		return fmt.Errorf("rule set version is required")
	}
	switch rs.Variant {
	case VariantGeneral:
	case VariantRegional:
		if rs.Citation.CodePattern == "" {
			return fmt.Errorf("regional rule set %q needs a citation code_pattern", rs.ID)
		}
	default:
		return fmt.Errorf("rule set %q has unknown variant %q", rs.ID, rs.Variant)
	}
	if rs.RecordStart == "" {
		return fmt.Errorf("rule set %q needs a record_start pattern", rs.ID)
	}
	if rs.Citation.Authority == "" {
		return fmt.Errorf("rule set %q needs a citation authority", rs.ID)
	}
	return nil
}

// HasState reports whether the rule set is bound to the given state hint.
// Matching is case-insensitive.
func (rs *RuleSet) HasState(state string) bool {
	state = strings.TrimSpace(state)
	for _, s := range rs.States {
		if strings.EqualFold(s, state) {
			return true
		}
	}
	return false
}

// IsPageHeader reports whether a trimmed line is a printed page header such
// as "Maine 23".
func (rs *RuleSet) IsPageHeader(line string) bool {
	c := rs.mustCompiled()
	return c.pageHeader != nil && c.pageHeader.MatchString(line)
}

// StartsRecord reports whether a trimmed line opens a new logical record.
func (rs *RuleSet) StartsRecord(line string) bool {
	if rs.IsPageHeader(line) {
		return false
	}
	if rs.MarkerPrefix(line) != "" {
		return true
	}
	c := rs.mustCompiled()
	return c.recordStart != nil && c.recordStart.MatchString(line)
}

// MarkerPrefix returns the unnamed-person marker phrase opening the line,
// or "" when there is none. Matching is case-sensitive.
func (rs *RuleSet) MarkerPrefix(line string) string {
	c := rs.mustCompiled()
	if c.marker == nil {
		return ""
	}
	return c.marker.FindString(line)
}

// ContainsRace reports whether text contains a race or race-note keyword.
func (rs *RuleSet) ContainsRace(text string) bool {
	return containsAny(strings.ToLower(text), rs.mustCompiled().raceKeywords)
}

// ContainsTribe reports whether text contains a tribe name.
func (rs *RuleSet) ContainsTribe(text string) bool {
	return containsAny(strings.ToLower(text), rs.mustCompiled().tribes)
}

// IsRaceOrTribe reports whether text carries any race, race-note or tribe
// keyword.
func (rs *RuleSet) IsRaceOrTribe(text string) bool {
	return rs.ContainsRace(text) || rs.ContainsTribe(text)
}

// IsPlaceholderName reports whether an all-uppercase surname literally names
// a racial category instead of a person.
func (rs *RuleSet) IsPlaceholderName(surname string) bool {
	if surname == "" || surname != strings.ToUpper(surname) {
		return false
	}
	lower := strings.ToLower(surname)
	for _, root := range rs.mustCompiled().nameRoots {
		if strings.HasPrefix(lower, root) {
			return true
		}
	}
	return false
}

// IsAliasMarker reports whether a token introduces an alias.
func (rs *RuleSet) IsAliasMarker(token string) bool {
	return rs.mustCompiled().aliasMarkers[strings.ToLower(token)]
}

// HasLocationHint reports whether text contains a location hint substring.
func (rs *RuleSet) HasLocationHint(text string) bool {
	return containsAny(strings.ToLower(text), rs.mustCompiled().locationHints)
}

// IsNoResidence reports whether text is the "no residence given" sentinel.
func (rs *RuleSet) IsNoResidence(text string) bool {
	sentinel := rs.Keywords.NoResidence
	return sentinel != "" && strings.EqualFold(strings.TrimSpace(text), sentinel)
}

// IsKnownCode reports whether text is a letter-only citation code.
func (rs *RuleSet) IsKnownCode(text string) bool {
	return rs.mustCompiled().knownCodes[text]
}

// MatchesCodeShape reports whether the whole of text matches the citation
// code pattern.
func (rs *RuleSet) MatchesCodeShape(text string) bool {
	c := rs.mustCompiled()
	return c.codeFull != nil && c.codeFull.MatchString(text)
}

// IsAfricanDescent reports whether a matched race phrase denotes African
// descent.
func (rs *RuleSet) IsAfricanDescent(phrase string) bool {
	return rs.mustCompiled().africanDescent[strings.ToLower(strings.TrimSpace(phrase))]
}

// OwnerPattern returns the compiled owner-phrase pattern, or nil.
func (rs *RuleSet) OwnerPattern() *regexp.Regexp { return rs.mustCompiled().owner }

// RacePattern returns the compiled race-phrase pattern, or nil.
func (rs *RuleSet) RacePattern() *regexp.Regexp { return rs.mustCompiled().race }

// CodePattern returns the compiled citation-code pattern, or nil.
func (rs *RuleSet) CodePattern() *regexp.Regexp { return rs.mustCompiled().code }

// mustCompiled compiles lazily for rule sets built in code. Rule sets that
// reach a registry are always compiled up front.
func (rs *RuleSet) mustCompiled() *compiledRules {
	if rs.compiled == nil {
		if err := rs.Compile(); err != nil {
			panic(fmt.Sprintf("ruleset %q: %v", rs.ID, err))
		}
	}
	return rs.compiled
}

func compileOptional(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	return regexp.Compile(pattern)
}

func alternation(phrases []string) string {
	quoted := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if p == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(p))
	}
	return strings.Join(quoted, "|")
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func lowerSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range lowerAll(values) {
		set[v] = true
	}
	return set
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
