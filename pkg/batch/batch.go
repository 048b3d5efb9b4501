// Package batch parses a file or a directory of roll transcriptions into
// one delimited output file per input.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/coolbeans/rollcall/pkg/logging"
	"github.com/coolbeans/rollcall/pkg/roll"
	"github.com/coolbeans/rollcall/pkg/source"
	"github.com/coolbeans/rollcall/pkg/tabular"
)

// LogTimeFormat is the timestamp layout used in run log file names.
const LogTimeFormat = "2006-01-02_15-04-05"

// Options controls a batch run.
type Options struct {
	Variant roll.Variant
	Format  tabular.Format
	// Workers bounds how many files are parsed at once. Values below 1 mean 1.
	Workers int
	// Pattern selects directory entries, matched case-insensitively against
	// the base name. Empty means "*.txt".
	Pattern string
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// FileResult describes one processed input.
type FileResult struct {
	Input       string
	Output      string
	Rows        int
	Empty       int
	Diagnostics []string
}

// Report summarizes a run.
type Report struct {
	RunID   string
	Started time.Time
	LogPath string
	Files   []FileResult
}

// TotalRows returns the number of rows written across all files.
func (r *Report) TotalRows() int {
	total := 0
	for _, f := range r.Files {
		total += f.Rows
	}
	return total
}

// Runner processes inputs with a shared engine.
type Runner struct {
	engine *roll.Engine
	opts   Options
	logger *zap.Logger
}

// NewRunner creates a batch runner.
func NewRunner(engine *roll.Engine, opts Options, logger *zap.Logger) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Pattern == "" {
		opts.Pattern = "*.txt"
	}
	if opts.Format == "" {
		opts.Format = tabular.CSV
	}
	if opts.Variant == "" {
		opts.Variant = roll.General
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{engine: engine, opts: opts, logger: logging.OrNop(logger)}
}

// Inputs lists the files in dir whose names match pattern, ignoring case,
// sorted by name.
func Inputs(dir, pattern string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading input directory: %w", err)
	}
	pattern = strings.ToLower(pattern)
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if ok, _ := filepath.Match(pattern, strings.ToLower(entry.Name())); ok {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}
	return paths, nil
}

// OutputPath returns the output file for input inside outDir. The extension
// is always .csv whatever the delimiter.
func OutputPath(input, outDir string) string {
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outDir, stem+tabular.Extension)
}

// Run parses input, a file or a directory, writing results and a run log to
// outDir. The first I/O error cancels the remaining work.
func (r *Runner) Run(ctx context.Context, input, outDir string) (*Report, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, fmt.Errorf("checking input: %w", err)
	}

	var inputs []string
	if info.IsDir() {
		inputs, err = Inputs(input, r.opts.Pattern)
		if err != nil {
			return nil, err
		}
	} else {
		inputs = []string{input}
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	started := r.opts.Now()
	report := &Report{
		RunID:   uuid.NewString(),
		Started: started,
		LogPath: filepath.Join(outDir, "parse_log_"+started.Format(LogTimeFormat)+".txt"),
		Files:   make([]FileResult, len(inputs)),
	}

	logger := r.logger.With(zap.String("run_id", report.RunID))
	logger.Info("batch started",
		zap.String("input", input),
		zap.Int("files", len(inputs)),
		zap.Int("workers", r.opts.Workers))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for i, path := range inputs {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			res, err := r.processFile(path, outDir)
			if err != nil {
				return err
			}
			report.Files[i] = res
			logger.Info("processed file",
				zap.String("file", filepath.Base(path)),
				zap.Int("rows", res.Rows),
				zap.Int("diagnostics", len(res.Diagnostics)),
				zap.String("output", res.Output))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := writeRunLog(report); err != nil {
		return nil, err
	}

	logger.Info("batch complete",
		zap.Int("files", len(report.Files)),
		zap.Int("rows", report.TotalRows()),
		zap.String("log", report.LogPath))
	return report, nil
}

func (r *Runner) processFile(path, outDir string) (FileResult, error) {
	doc, err := source.Load(path)
	if err != nil {
		return FileResult{}, fmt.Errorf("loading %s: %w", path, err)
	}
	text, err := doc.Text()
	if err != nil && !errors.Is(err, source.ErrEmpty) {
		return FileResult{}, fmt.Errorf("decoding %s: %w", path, err)
	}

	res, err := r.engine.Parse(filepath.Base(path), text, r.opts.Variant)
	if err != nil {
		return FileResult{}, err
	}

	out := OutputPath(path, outDir)
	if err := writeRows(out, res.Rows, r.opts.Format); err != nil {
		return FileResult{}, err
	}

	return FileResult{
		Input:       path,
		Output:      out,
		Rows:        len(res.Rows),
		Empty:       res.Empty,
		Diagnostics: res.Diagnostics,
	}, nil
}

func writeRows(path string, rows []roll.Row, format tabular.Format) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing output file: %w", cerr)
		}
	}()

	if err := tabular.NewWriter(f, format.Delimiter()).WriteAll(rows); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// RunLog renders the diagnostics file contents: a start line followed by
// every diagnostic in file order.
func RunLog(report *Report) string {
	lines := []string{"Batch started " + report.Started.Format("2006-01-02 15:04:05.000000")}
	for _, f := range report.Files {
		lines = append(lines, f.Diagnostics...)
	}
	return strings.Join(lines, "\n")
}

func writeRunLog(report *Report) error {
	if err := os.WriteFile(report.LogPath, []byte(RunLog(report)), 0o644); err != nil {
		return fmt.Errorf("writing run log: %w", err)
	}
	return nil
}

// FormatSummary formats the console summary printed after a run.
func FormatSummary(report *Report) string {
	var builder strings.Builder

	builder.WriteString("\nBatch complete:\n")
	for _, f := range report.Files {
		builder.WriteString(fmt.Sprintf("%-30s -> %5d rows -> %s\n",
			filepath.Base(f.Input), f.Rows, f.Output))
	}
	builder.WriteString(fmt.Sprintf("\nLog written to: %s\n", report.LogPath))

	return builder.String()
}
