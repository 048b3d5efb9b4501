package roll

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/coolbeans/rollcall/pkg/classify"
	"github.com/coolbeans/rollcall/pkg/fuse"
	"github.com/coolbeans/rollcall/pkg/logging"
	"github.com/coolbeans/rollcall/pkg/ruleset"
)

// Result is the outcome of parsing one document.
type Result struct {
	SourceID    string   `json:"source_id"`
	Variant     Variant  `json:"variant"`
	Records     int      `json:"records"`
	Rows        []Row    `json:"rows"`
	Diagnostics []string `json:"diagnostics"`

	// Empty counts records that produced a diagnostic instead of a row.
	Empty int `json:"empty"`
}

// Engine parses documents with rule sets drawn from a registry. The rule set
// is resolved once per call, so a reload never changes a parse midway.
type Engine struct {
	rules  *ruleset.Registry
	logger *zap.Logger
}

// NewEngine creates an engine over rules.
func NewEngine(rules *ruleset.Registry, logger *zap.Logger) *Engine {
	return &Engine{rules: rules, logger: logging.OrNop(logger)}
}

// Rules returns the registry the engine draws from.
func (e *Engine) Rules() *ruleset.Registry {
	return e.rules
}

// RuleSet resolves the rule set backing v.
func (e *Engine) RuleSet(v Variant) (*ruleset.RuleSet, error) {
	rs, ok := e.rules.Get(string(v))
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, v)
	}
	return rs, nil
}

// Parse fuses raw into logical records and classifies each one. Records that
// fail classification become diagnostics and never stop the document.
func (e *Engine) Parse(sourceID, raw string, v Variant) (Result, error) {
	if sourceID == "" {
		sourceID = DefaultSourceID
	}

	rs, err := e.RuleSet(v)
	if err != nil {
		return Result{}, err
	}
	classifier, err := classify.New(rs)
	if err != nil {
		return Result{}, fmt.Errorf("building classifier for %q: %w", v, err)
	}

	records := fuse.Fuse(raw, rs)
	res := Result{
		SourceID: sourceID,
		Variant:  v,
		Records:  len(records),
		Rows:     make([]Row, 0, len(records)),
	}

	for i, record := range records {
		n := i + 1
		fields, err := e.classify(classifier, record.Text)
		switch {
		case err == nil:
			res.Rows = append(res.Rows, NewRow(fields))
		case errors.Is(err, classify.ErrBlank):
			res.Empty++
			res.Diagnostics = append(res.Diagnostics, fmt.Sprintf("%s:%d: BLANK OR EMPTY RECORD", sourceID, n))
		case errors.Is(err, classify.ErrNoData):
			res.Empty++
			res.Diagnostics = append(res.Diagnostics, fmt.Sprintf("%s:%d: NO DATA AFTER CLEANING -> %s", sourceID, n, record.Text))
		default:
			res.Empty++
			res.Diagnostics = append(res.Diagnostics, fmt.Sprintf("%s:%d: CLASSIFICATION FAILED (%v) -> %s", sourceID, n, err, record.Text))
			e.logger.Error("record classification failed",
				zap.String("source", sourceID),
				zap.Int("record", n),
				zap.Ints("lines", record.Lines),
				zap.Error(err))
		}
	}

	e.logger.Debug("parsed document",
		zap.String("source", sourceID),
		zap.String("variant", string(v)),
		zap.Int("records", res.Records),
		zap.Int("rows", len(res.Rows)),
		zap.Int("diagnostics", len(res.Diagnostics)))

	return res, nil
}

// classify runs one record through c, turning a panic into an error so a
// bad record cannot take down the rest of the document.
func (e *Engine) classify(c classify.Classifier, record string) (f classify.Fields, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return c.Classify(record)
}
