package roll

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/coolbeans/rollcall/pkg/classify"
	"github.com/coolbeans/rollcall/pkg/ruleset"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	rules, err := ruleset.NewDefaultRegistry(nil)
	if err != nil {
		t.Fatalf("NewDefaultRegistry() error = %v", err)
	}
	return NewEngine(rules, nil)
}

func TestParseScenarios(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		variant Variant
		want    [][]string
	}{
		{
			name:    "general single line",
			raw:     "SMITH, JOHN, African American, M881, res. Bangor",
			variant: General,
			want: [][]string{
				{"", "", "SMITH", "JOHN", "African American", "", "DAR, M881", "res. Bangor"},
			},
		},
		{
			name:    "general wrapped line",
			raw:     "SMITH, JOHN,\nAfrican American, M881, res. Bangor",
			variant: General,
			want: [][]string{
				{"", "", "SMITH", "JOHN", "African American", "", "DAR, M881", "res. Bangor"},
			},
		},
		{
			name:    "regional enslaved",
			raw:     "NEGRO MAN, slave of James Doe, VAPC:1:338",
			variant: Regional,
			want: [][]string{
				{"", "", "NEGRO MAN", "", "AA", "slave of James Doe", "DAR, VAPC:1:338", ""},
			},
		},
		{
			name:    "regional free",
			raw:     "NEGRO MAN, free, VAPC:1:338",
			variant: Regional,
			want: [][]string{
				{"", "", "NEGRO MAN", "", "AA", "", "DAR, VAPC:1:338", "free"},
			},
		},
		{
			name:    "page header skipped",
			raw:     "SMITH, JOHN, M881\nMaine 23\nJONES, ABEL, M882",
			variant: General,
			want: [][]string{
				{"", "", "SMITH", "JOHN", "", "", "DAR, M881", ""},
				{"", "", "JONES", "ABEL", "", "", "DAR, M882", ""},
			},
		},
		{
			name:    "regional marker opens a record without comma",
			raw:     "DOE, JOHN, VAPC:1:2\nNEGRO SLAVE belonging to the state\nVirginia 509\nROE, RICHARD, WAR25:782",
			variant: Regional,
			want: [][]string{
				{"", "", "DOE", "JOHN", "", "", "DAR, VAPC:1:2", ""},
				{"", "", "NEGRO SLAVE", "", "AA", "", "", "belonging to the state"},
				{"", "", "ROE", "RICHARD", "", "", "DAR, WAR25:782", ""},
			},
		},
	}

	e := newTestEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Parse("roll.txt", tt.raw, tt.variant)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			var got [][]string
			for _, row := range res.Rows {
				got = append(got, row.Columns())
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse() rows mismatch (-want +got):\n%s", diff)
			}
			if len(res.Diagnostics) != 0 {
				t.Errorf("Parse() diagnostics = %v, want none", res.Diagnostics)
			}
		})
	}
}

func TestParseHeaderNeverInOutput(t *testing.T) {
	e := newTestEngine(t)
	for _, v := range []Variant{General, Regional} {
		res, err := e.Parse("", "SMITH, JOHN,\nMaine 23\nres. Bangor", v)
		if err != nil {
			t.Fatalf("Parse(%s) error = %v", v, err)
		}
		for _, row := range res.Rows {
			for _, col := range row.Columns() {
				if strings.Contains(col, "Maine 23") {
					t.Errorf("Parse(%s) leaked page header into %q", v, col)
				}
			}
		}
	}
}

func TestParseDiagnostics(t *testing.T) {
	e := newTestEngine(t)
	raw := "SMITH, JOHN, M881\n(negro)\n"

	// "(negro)" does not start a record, so it continues SMITH's line.
	res, err := e.Parse("a.txt", raw, General)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(res.Rows) != 1 || len(res.Diagnostics) != 0 {
		t.Fatalf("Parse() = %d rows, %v, want 1 row and no diagnostics", len(res.Rows), res.Diagnostics)
	}

	res, err = e.Parse("b.txt", "(negro)\nSMITH, JOHN, M881", General)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := []string{"b.txt:1: NO DATA AFTER CLEANING -> (negro)"}
	if diff := cmp.Diff(want, res.Diagnostics); diff != "" {
		t.Errorf("Parse() diagnostics mismatch (-want +got):\n%s", diff)
	}
	if res.Empty != 1 || len(res.Rows) != 1 {
		t.Errorf("Parse() Empty = %d, rows = %d, want 1 and 1", res.Empty, len(res.Rows))
	}
}

func TestParseRowCountInvariant(t *testing.T) {
	e := newTestEngine(t)
	inputs := []string{
		"",
		"(negro)\n[W1234]\nSMITH, JOHN",
		"SMITH, JOHN, M881\nMaine 23\n\nJONES,\n(Indian)\nDOE",
		"NEGRO MAN, free\nslave of nobody\nA NEGRO, VAPC:1:2",
		", , ,\nSMITH",
	}
	for _, raw := range inputs {
		for _, v := range []Variant{General, Regional} {
			res, err := e.Parse("", raw, v)
			if err != nil {
				t.Fatalf("Parse(%q, %s) error = %v", raw, v, err)
			}
			if got := len(res.Rows) + res.Empty; got != res.Records {
				t.Errorf("Parse(%q, %s): rows %d + empty %d != records %d", raw, v, len(res.Rows), res.Empty, res.Records)
			}
			if len(res.Diagnostics) != res.Empty {
				t.Errorf("Parse(%q, %s): %d diagnostics, want %d", raw, v, len(res.Diagnostics), res.Empty)
			}
		}
	}
}

func TestParseDeterministic(t *testing.T) {
	raw := "SMITH, JOHN, Penobscot, M881, res. Old Town\nDOE, JOHN, Negro, mulatto, negro\n(dark)\nNEGRO MAN, hired by Col. Smith"
	for _, v := range []Variant{General, Regional} {
		rows1, diags1 := Parse(raw, v)
		rows2, diags2 := Parse(raw, v)
		if diff := cmp.Diff(rows1, rows2); diff != "" {
			t.Errorf("Parse(%s) rows differ between runs:\n%s", v, diff)
		}
		if diff := cmp.Diff(diags1, diags2); diff != "" {
			t.Errorf("Parse(%s) diagnostics differ between runs:\n%s", v, diff)
		}
	}
}

func TestParseUnknownVariant(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Parse("", "SMITH, JOHN", Variant("ohio")); !errors.Is(err, ErrUnknownVariant) {
		t.Errorf("Parse() error = %v, want %v", err, ErrUnknownVariant)
	}

	rows, diags := Parse("SMITH, JOHN", Variant("ohio"))
	if len(rows) != 0 || len(diags) != 1 {
		t.Errorf("Parse() = %v, %v, want no rows and one diagnostic", rows, diags)
	}
}

func TestParseVariant(t *testing.T) {
	tests := map[string]Variant{
		"":          General,
		"original":  General,
		"General":   General,
		"virginia":  Regional,
		" Regional": Regional,
		"Ohio":      Variant("ohio"),
	}
	for in, want := range tests {
		if got := ParseVariant(in); got != want {
			t.Errorf("ParseVariant(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestVariantForState(t *testing.T) {
	tests := map[string]Variant{
		"Virginia":  Regional,
		" virginia": Regional,
		"Maine":     General,
		"":          General,
	}
	for in, want := range tests {
		if got := VariantForState(in); got != want {
			t.Errorf("VariantForState(%q) = %q, want %q", in, got, want)
		}
	}
}

type panicClassifier struct{}

func (panicClassifier) Classify(string) (classify.Fields, error) {
	panic("boom")
}

func TestClassifyRecoversPanic(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.classify(panicClassifier{}, "SMITH")
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("classify() error = %v, want panic error", err)
	}
}

func TestRowColumns(t *testing.T) {
	row := NewRow(classify.Fields{
		Surname: "DOE",
		Sources: []string{"DAR, APALM", "DAR, VAPC:1:2"},
	})
	cols := row.Columns()
	if len(cols) != Columns {
		t.Fatalf("len(Columns()) = %d, want %d", len(cols), Columns)
	}
	if cols[6] != "DAR, APALM; DAR, VAPC:1:2" {
		t.Errorf("Columns()[6] = %q, want %q", cols[6], "DAR, APALM; DAR, VAPC:1:2")
	}
}
