package classify

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/coolbeans/rollcall/pkg/ruleset"
)

func builtinRules(t *testing.T, id string) *ruleset.RuleSet {
	t.Helper()
	reg, err := ruleset.NewDefaultRegistry(nil)
	if err != nil {
		t.Fatalf("NewDefaultRegistry() error = %v", err)
	}
	rs, ok := reg.Get(id)
	if !ok {
		t.Fatalf("built-in rule set %q not found", id)
	}
	return rs
}

func TestGeneralClassify(t *testing.T) {
	g := NewGeneral(builtinRules(t, "general"))

	tests := []struct {
		name   string
		record string
		want   Fields
	}{
		{
			name:   "full entry",
			record: "SMITH, JOHN, African American, M881, res. Bangor",
			want: Fields{
				Surname:   "SMITH",
				GivenName: "JOHN",
				Race:      "African American",
				Sources:   []string{"DAR, M881"},
				Notes:     "res. Bangor",
			},
		},
		{
			name:   "alias in given name",
			record: "SMITH, JOHN ALIAS TOM SMITH",
			want: Fields{
				Surname:   "SMITH",
				GivenName: "JOHN (alias TOM SMITH)",
				Sources:   []string{"DAR,"},
			},
		},
		{
			name:   "alias without given name",
			record: "SMITH, Indian, aka TOM, M881",
			want: Fields{
				Surname:   "SMITH",
				GivenName: "(alias TOM)",
				Race:      "Indian",
				Sources:   []string{"DAR, M881"},
			},
		},
		{
			name:   "several aliases joined",
			record: "SMITH, JOHN, a.k.a. JACK, alias TOM SMITH, M881",
			want: Fields{
				Surname:   "SMITH",
				GivenName: "JOHN (alias JACK; TOM SMITH)",
				Sources:   []string{"DAR, M881"},
			},
		},
		{
			name:   "racial placeholder surname has no given name",
			record: "NEGRO, JOHN, M881",
			want: Fields{
				Surname:              "NEGRO",
				Sources:              []string{"DAR, JOHN, M881"},
				SurnameIsPlaceholder: true,
			},
		},
		{
			name:   "race annotation dominates",
			record: "SMITH, JOHN (negro, served 1781), M881",
			want: Fields{
				Surname:   "SMITH",
				GivenName: "JOHN",
				Race:      "(negro, served 1781)",
				Sources:   []string{"DAR, M881"},
			},
		},
		{
			name:   "source annotation goes to notes",
			record: "SMITH, JOHN, [W1234 rejected], M881, res. Bangor",
			want: Fields{
				Surname:   "SMITH",
				GivenName: "JOHN",
				Sources:   []string{"DAR, M881"},
				Notes:     "[W1234 rejected]; res. Bangor",
			},
		},
		{
			name:   "race segment is not a given name",
			record: "SMITH, Indian, M881",
			want: Fields{
				Surname: "SMITH",
				Race:    "Indian",
				Sources: []string{"DAR, M881"},
			},
		},
		{
			name:   "tribe and residence",
			record: "SOCKALEXIS, JOHN, Penobscot, M881, res. Old Town",
			want: Fields{
				Surname:   "SOCKALEXIS",
				GivenName: "JOHN",
				Race:      "Penobscot",
				Sources:   []string{"DAR, M881"},
				Notes:     "res. Old Town",
			},
		},
		{
			name:   "no residence sentinel",
			record: "SMITH, JOHN, M881, no residence given",
			want: Fields{
				Surname:   "SMITH",
				GivenName: "JOHN",
				Sources:   []string{"DAR, M881"},
				Notes:     "no residence given",
			},
		},
		{
			name:   "no comma",
			record: "SMITH",
			want: Fields{
				Surname: "SMITH",
				Sources: []string{"DAR,"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.Classify(tt.record)
			if err != nil {
				t.Fatalf("Classify(%q) error = %v", tt.record, err)
			}
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Classify(%q) mismatch (-want +got):\n%s", tt.record, diff)
			}
		})
	}
}

func TestGeneralClassifyErrors(t *testing.T) {
	g := NewGeneral(builtinRules(t, "general"))

	tests := []struct {
		record string
		want   error
	}{
		{"", ErrBlank},
		{"   \t ", ErrBlank},
		{"(negro)", ErrNoData},
		{", , ,", ErrNoData},
	}
	for _, tt := range tests {
		if _, err := g.Classify(tt.record); !errors.Is(err, tt.want) {
			t.Errorf("Classify(%q) error = %v, want %v", tt.record, err, tt.want)
		}
	}
}

func TestAliasLeavesNoMarker(t *testing.T) {
	g := NewGeneral(builtinRules(t, "general"))
	f, err := g.Classify("SMITH, JOHN ALIAS TOM SMITH")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	for _, field := range []string{f.Surname, f.Race, f.Owner, f.Notes} {
		if containsFold(field, "alias") {
			t.Errorf("field %q still carries an alias marker", field)
		}
	}
	for _, s := range f.Sources {
		if containsFold(s, "alias") {
			t.Errorf("source %q still carries an alias marker", s)
		}
	}
}

func TestRegionalClassify(t *testing.T) {
	c := NewRegional(builtinRules(t, "virginia"))

	tests := []struct {
		name   string
		record string
		want   Fields
	}{
		{
			name:   "unnamed enslaved",
			record: "NEGRO MAN, slave of James Doe, VAPC:1:338",
			want: Fields{
				Surname:              "NEGRO MAN",
				Race:                 "AA",
				Owner:                "slave of James Doe",
				Sources:              []string{"DAR, VAPC:1:338"},
				SurnameIsPlaceholder: true,
			},
		},
		{
			name:   "unnamed free",
			record: "NEGRO MAN, free, VAPC:1:338",
			want: Fields{
				Surname:              "NEGRO MAN",
				Race:                 "AA",
				Sources:              []string{"DAR, VAPC:1:338"},
				Notes:                "free",
				SurnameIsPlaceholder: true,
			},
		},
		{
			name:   "longest marker wins",
			record: "NEGRO MEN, hired by Col. Smith",
			want: Fields{
				Surname:              "NEGRO MEN",
				Race:                 "AA",
				Owner:                "hired by Col. Smith",
				SurnameIsPlaceholder: true,
			},
		},
		{
			name:   "named with race and owner",
			record: "DOE, JOHN, negro, slave of James Smith, VAPC:1:338",
			want: Fields{
				Surname:   "DOE",
				GivenName: "JOHN",
				Race:      "Negro",
				Owner:     "slave of James Smith",
				Sources:   []string{"DAR, VAPC:1:338"},
			},
		},
		{
			name:   "owner kept in notes without african descent",
			record: "DOE, JOHN, mixed descent, hired by James Smith, WAR25:782",
			want: Fields{
				Surname:   "DOE",
				GivenName: "JOHN",
				Race:      "Mixed descent",
				Sources:   []string{"DAR, WAR25:782"},
				Notes:     "hired by James Smith",
			},
		},
		{
			name:   "explicit enslaved marker",
			record: "DOE, JOHN, enslaved man of Capt. Lee, VAPC:1:3",
			want: Fields{
				Surname:   "DOE",
				GivenName: "JOHN",
				Owner:     "enslaved man of Capt. Lee",
				Sources:   []string{"DAR, VAPC:1:3"},
			},
		},
		{
			name:   "race phrases deduplicated and sorted",
			record: "DOE, JOHN, Negro, mulatto, negro",
			want: Fields{
				Surname:   "DOE",
				GivenName: "JOHN",
				Race:      "Mulatto; Negro",
			},
		},
		{
			name:   "known code is not a given name",
			record: "DOE, APALM, VAPC:1:2",
			want: Fields{
				Surname: "DOE",
				Sources: []string{"DAR, APALM", "DAR, VAPC:1:2"},
			},
		},
		{
			name:   "given name with suffix",
			record: "DOE, JOHN JR., served 1781",
			want: Fields{
				Surname:   "DOE",
				GivenName: "JOHN JR.",
				Notes:     "served 1781",
			},
		},
		{
			name:   "no comma",
			record: "DOE",
			want:   Fields{Surname: "DOE"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Classify(tt.record)
			if err != nil {
				t.Fatalf("Classify(%q) error = %v", tt.record, err)
			}
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Classify(%q) mismatch (-want +got):\n%s", tt.record, diff)
			}
		})
	}
}

func TestRegionalClassifyErrors(t *testing.T) {
	c := NewRegional(builtinRules(t, "virginia"))

	if _, err := c.Classify("  "); !errors.Is(err, ErrBlank) {
		t.Errorf("Classify(blank) error = %v, want %v", err, ErrBlank)
	}
	if _, err := c.Classify(", JOHN"); !errors.Is(err, ErrNoData) {
		t.Errorf("Classify(no surname) error = %v, want %v", err, ErrNoData)
	}
}

func TestLocationVerdict(t *testing.T) {
	rs := builtinRules(t, "general")

	tests := []struct {
		segment  string
		want     bool
		wantRule string
	}{
		{"no residence given", true, "no-residence-sentinel"},
		{"M881", false, "citation-code"},
		{"VAPC:1:338", false, "citation-code"},
		{"Kennebec County", true, "location-hint"},
		{"Jo Smith", true, "whitespace"},
		{"Bangor", true, "lowercase"},
		{"X", true, "fallback"},
		{"AB", true, "fallback"},
	}
	for _, tt := range tests {
		got, rule := LocationVerdict(rs, tt.segment)
		if got != tt.want || rule != tt.wantRule {
			t.Errorf("LocationVerdict(%q) = %v, %q, want %v, %q", tt.segment, got, rule, tt.want, tt.wantRule)
		}
	}
}

func TestLooksLikeCitationCode(t *testing.T) {
	tests := []struct {
		chunk string
		want  bool
	}{
		{"M881", true},
		{"S 1234", true},
		{"VAPC:1:338", true},
		{"APALM", true},
		{"AB", false},
		{"Bangor", false},
		{"", false},
		{"   ", false},
	}
	for _, tt := range tests {
		if got := LooksLikeCitationCode(tt.chunk); got != tt.want {
			t.Errorf("LooksLikeCitationCode(%q) = %v, want %v", tt.chunk, got, tt.want)
		}
	}
}

func TestNew(t *testing.T) {
	if c, err := New(builtinRules(t, "general")); err != nil {
		t.Errorf("New(general) error = %v", err)
	} else if _, ok := c.(*General); !ok {
		t.Errorf("New(general) = %T, want *General", c)
	}

	if c, err := New(builtinRules(t, "virginia")); err != nil {
		t.Errorf("New(virginia) error = %v", err)
	} else if _, ok := c.(*Regional); !ok {
		t.Errorf("New(virginia) = %T, want *Regional", c)
	}

	if _, err := New(&ruleset.RuleSet{ID: "odd", Variant: "odd"}); err == nil {
		t.Error("New() with unknown variant should fail")
	}
	if _, err := New(nil); err == nil {
		t.Error("New(nil) should fail")
	}
}

func TestPrecedence(t *testing.T) {
	general := Precedence(builtinRules(t, "general"))
	want := []string{
		"annotations", "surname", "placeholder",
		"location/no-residence-sentinel", "location/citation-code", "location/location-hint",
		"location/whitespace", "location/lowercase", "location/fallback",
		"given-name", "alias", "race-or-source",
	}
	if diff := cmp.Diff(want, general); diff != "" {
		t.Errorf("Precedence(general) mismatch (-want +got):\n%s", diff)
	}

	regional := Precedence(builtinRules(t, "virginia"))
	wantRegional := []string{"marker-phrase", "surname", "given-name", "race-phrase", "enslaved", "owner", "citation-code", "notes"}
	if diff := cmp.Diff(wantRegional, regional); diff != "" {
		t.Errorf("Precedence(virginia) mismatch (-want +got):\n%s", diff)
	}
}

func TestCapitalize(t *testing.T) {
	tests := map[string]string{
		"negro":            "Negro",
		"AFRICAN AMERICAN": "African american",
		"":                 "",
	}
	for in, want := range tests {
		if got := capitalize(in); got != want {
			t.Errorf("capitalize(%q) = %q, want %q", in, got, want)
		}
	}
}
