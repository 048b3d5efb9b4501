// Package roll runs the full pipeline over one document: fuse lines into
// records, classify each record and assemble fixed-width rows alongside
// diagnostics for records that yield nothing.
package roll

import (
	"errors"
	"strings"
	"sync"

	"github.com/coolbeans/rollcall/pkg/classify"
	"github.com/coolbeans/rollcall/pkg/ruleset"
)

// Variant names the rule set a document is parsed with.
type Variant string

const (
	// General is the default comma-ordered roll dialect.
	General Variant = "general"

	// Regional is the Virginia dialect with unnamed-person entries.
	Regional Variant = "virginia"
)

// ErrUnknownVariant is returned when no rule set backs a variant.
var ErrUnknownVariant = errors.New("unknown variant")

// DefaultSourceID labels diagnostics when the caller gives no source name.
const DefaultSourceID = "web_input.txt"

// Columns is the fixed row width.
const Columns = 8

// Row is one output record.
type Row struct {
	Surname   string `json:"surname"`
	GivenName string `json:"given_name"`
	Race      string `json:"race"`
	Owner     string `json:"owner"`
	Sources   string `json:"sources"`
	Notes     string `json:"notes"`
}

// NewRow assembles a row from classified fields.
func NewRow(f classify.Fields) Row {
	return Row{
		Surname:   f.Surname,
		GivenName: f.GivenName,
		Race:      f.Race,
		Owner:     f.Owner,
		Sources:   strings.Join(f.Sources, "; "),
		Notes:     f.Notes,
	}
}

// Columns returns the row in output order:
// reserved, reserved, surname, given name, race, owner, sources, notes.
func (r Row) Columns() []string {
	return []string{"", "", r.Surname, r.GivenName, r.Race, r.Owner, r.Sources, r.Notes}
}

// ParseVariant maps a user-facing parser name to a Variant. "original" and
// "regional" are accepted as aliases; any other name is taken as a rule set
// ID and checked when the engine resolves it.
func ParseVariant(name string) Variant {
	switch name = strings.ToLower(strings.TrimSpace(name)); name {
	case "", "general", "original":
		return General
	case "virginia", "regional":
		return Regional
	default:
		return Variant(name)
	}
}

// VariantForState picks the variant for a state hint. Only Virginia has its
// own dialect.
func VariantForState(state string) Variant {
	if strings.EqualFold(strings.TrimSpace(state), "virginia") {
		return Regional
	}
	return General
}

var (
	defaultEngine     *Engine
	defaultEngineErr  error
	defaultEngineOnce sync.Once
)

// Default returns an engine over the built-in rule sets.
func Default() (*Engine, error) {
	defaultEngineOnce.Do(func() {
		rules, err := ruleset.NewDefaultRegistry(nil)
		if err != nil {
			defaultEngineErr = err
			return
		}
		defaultEngine = NewEngine(rules, nil)
	})
	return defaultEngine, defaultEngineErr
}

// Parse parses raw with the built-in rule set for v. An unknown variant is
// reported as a single diagnostic.
func Parse(raw string, v Variant) ([]Row, []string) {
	e, err := Default()
	if err != nil {
		return nil, []string{err.Error()}
	}
	res, err := e.Parse(DefaultSourceID, raw, v)
	if err != nil {
		return nil, []string{err.Error()}
	}
	return res.Rows, res.Diagnostics
}
