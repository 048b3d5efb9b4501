package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coolbeans/rollcall/pkg/batch"
	"github.com/coolbeans/rollcall/pkg/classify"
	"github.com/coolbeans/rollcall/pkg/config"
	"github.com/coolbeans/rollcall/pkg/logging"
	"github.com/coolbeans/rollcall/pkg/pdftext"
	"github.com/coolbeans/rollcall/pkg/roll"
	"github.com/coolbeans/rollcall/pkg/ruleset"
	"github.com/coolbeans/rollcall/pkg/server"
	"github.com/coolbeans/rollcall/pkg/tabular"
)

var version = "0.1.0"

var (
	configPath string
	verbose    bool
	logFormat  string

	cfg    *config.Config
	logger *zap.Logger
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollcall",
		Short: "Parse Revolutionary War roll transcriptions into rows",
		Long: `Rollcall turns transcribed Revolutionary War service rolls into
structured, delimiter-separated rows.

Each entry becomes one row of eight columns:
  reserved, reserved, surname, given name, race, owner, sources, notes

Entries that yield no data are reported in a run log instead of failing
the batch.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			overrides := map[string]any{}
			if verbose {
				overrides["log.level"] = "debug"
			}
			if cmd.Flags().Changed("log-format") {
				overrides["log.format"] = logFormat
			}

			var err error
			cfg, err = config.Load(configPath, overrides)
			if err != nil {
				return err
			}
			logger, err = logging.New(cfg.Log.Level, cfg.Log.Format)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log encoding (console or json)")

	cmd.AddCommand(parseCmd())
	cmd.AddCommand(pdfCmd())
	cmd.AddCommand(serveCmd())
	cmd.AddCommand(rulesCmd())
	return cmd
}

// newEngine builds an engine over the built-in rule sets overlaid with
// cfg.Rules.Dir.
func newEngine() (*roll.Engine, *ruleset.Registry, error) {
	rules, err := ruleset.NewRegistryWithDirectory(cfg.Rules.Dir, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("loading rule sets: %w", err)
	}
	return roll.NewEngine(rules, logger), rules, nil
}

func parseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse <input> [output-dir]",
		Short: "Parse a roll file or a directory of .txt rolls",
		Long: `Parse a single transcription or every .txt file in a directory.

One output file named <stem>.csv is written per input, whatever the
delimiter, along with a parse_log_<timestamp>.txt run log listing the
entries that produced no row.

Example:
  rollcall parse maine.txt out --csv
  rollcall parse rolls/ out --psv --state virginia`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			useCSV, _ := cmd.Flags().GetBool("csv")
			usePSV, _ := cmd.Flags().GetBool("psv")
			variantName, _ := cmd.Flags().GetString("variant")
			state, _ := cmd.Flags().GetString("state")
			workers, _ := cmd.Flags().GetInt("workers")
			pattern, _ := cmd.Flags().GetString("pattern")

			format, err := tabular.ParseFormat(cfg.Output.Delimiter)
			if err != nil {
				return err
			}
			switch {
			case useCSV:
				format = tabular.CSV
			case usePSV:
				format = tabular.PSV
			}

			variant := roll.ParseVariant(variantName)
			if state != "" {
				variant = roll.VariantForState(state)
			}
			if !cmd.Flags().Changed("workers") {
				workers = cfg.Batch.Workers
			}
			if !cmd.Flags().Changed("pattern") {
				pattern = cfg.Batch.Pattern
			}

			outDir := cfg.Output.Dir
			if len(args) > 1 {
				outDir = args[1]
			}

			engine, _, err := newEngine()
			if err != nil {
				return err
			}
			if _, err := engine.RuleSet(variant); err != nil {
				return err
			}

			runner := batch.NewRunner(engine, batch.Options{
				Variant: variant,
				Format:  format,
				Workers: workers,
				Pattern: pattern,
			}, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			report, err := runner.Run(ctx, args[0], outDir)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), batch.FormatSummary(report))
			return nil
		},
	}

	cmd.Flags().Bool("csv", false, "Comma-delimited output")
	cmd.Flags().Bool("psv", false, "Pipe-delimited output (still written as .csv)")
	cmd.MarkFlagsMutuallyExclusive("csv", "psv")
	cmd.Flags().String("variant", "general", "Rule set to apply (general, virginia or a custom rule set id)")
	cmd.Flags().String("state", "", "State hint; virginia selects the regional rules")
	cmd.Flags().Int("workers", 4, "Files parsed in parallel")
	cmd.Flags().String("pattern", "*.txt", "File pattern for directory input (case-insensitive)")

	return cmd
}

func pdfCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pdf <file.pdf>",
		Short: "Extract roll text from PDF pages",
		Long: `Extract text from selected PDF pages, dropping page headers and
joining words hyphenated across line breaks.

Pages are 1-based and may mix ranges and lists. A printed page number can
be given instead together with the state whose chapter it belongs to.

Example:
  rollcall pdf patriots.pdf --pages 36-43,38
  rollcall pdf patriots.pdf --printed 23 --state Maine --parse`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pages, _ := cmd.Flags().GetString("pages")
			printed, _ := cmd.Flags().GetInt("printed")
			state, _ := cmd.Flags().GetString("state")
			keepHeaders, _ := cmd.Flags().GetBool("keep-headers")
			keepHyphens, _ := cmd.Flags().GetBool("keep-hyphens")
			parse, _ := cmd.Flags().GetBool("parse")
			output, _ := cmd.Flags().GetString("output")

			if printed > 0 {
				pm := pdftext.NewPageMap(cfg.PDF.Chapters)
				var (
					page int
					err  error
				)
				if state != "" {
					page, err = pm.ResolveState(state, printed)
				} else {
					page, err = pm.Resolve(printed)
				}
				if err != nil {
					return err
				}
				pages = strconv.Itoa(page)
				logger.Debug("resolved printed page", zap.Int("printed", printed), zap.Int("pdf", page))
			}

			text, err := pdftext.Extract(args[0], pdftext.Options{
				Pages:       pages,
				KeepHeaders: keepHeaders,
				KeepHyphens: keepHyphens,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("creating output file: %w", err)
				}
				defer f.Close()
				out = f
			}

			if !parse {
				_, err := fmt.Fprintln(out, text)
				return err
			}

			engine, _, err := newEngine()
			if err != nil {
				return err
			}
			res, err := engine.Parse(filepath.Base(args[0]), text, roll.VariantForState(state))
			if err != nil {
				return err
			}
			for _, d := range res.Diagnostics {
				fmt.Fprintln(cmd.ErrOrStderr(), d)
			}
			format, err := tabular.ParseFormat(cfg.Output.Delimiter)
			if err != nil {
				return err
			}
			return tabular.NewWriter(out, format.Delimiter()).WriteAll(res.Rows)
		},
	}

	cmd.Flags().String("pages", "", "Pages to extract, e.g. 36-43,38 (default all)")
	cmd.Flags().Int("printed", 0, "Printed page number to resolve through the chapter map")
	cmd.Flags().String("state", "", "Chapter for --printed; also selects the rule set with --parse")
	cmd.Flags().Bool("keep-headers", false, "Keep page headers such as \"Maine 23\"")
	cmd.Flags().Bool("keep-hyphens", false, "Do not join words split across lines")
	cmd.Flags().Bool("parse", false, "Parse the extracted text and write rows instead")
	cmd.Flags().StringP("output", "o", "", "Write to file instead of stdout")

	return cmd
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the parser over HTTP",
		Long: `Start the HTTP front end.

Endpoints:
  POST /process_text   form raw_text, state -> JSON rows
  POST /extract_pdf    multipart pdf_file, page, mode, state -> pipe CSV
  POST /parse          multipart file or pasted, parser, format, pages,
                       printed_page, state -> CSV attachment
  GET  /healthz`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			host, _ := cmd.Flags().GetString("host")
			port, _ := cmd.Flags().GetInt("port")
			watch, _ := cmd.Flags().GetBool("watch-rules")

			srvCfg := cfg.Server
			if cmd.Flags().Changed("host") {
				srvCfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				srvCfg.Port = port
			}
			if !cmd.Flags().Changed("watch-rules") {
				watch = cfg.Rules.Watch
			}

			engine, rules, err := newEngine()
			if err != nil {
				return err
			}

			if watch {
				if err := os.MkdirAll(cfg.Rules.Dir, 0o755); err != nil {
					return fmt.Errorf("creating rules directory: %w", err)
				}
				rules.SetOnChange(func(event string, rs *ruleset.RuleSet) {
					if rs != nil {
						logger.Info("rule set changed", zap.String("event", event), zap.String("id", rs.ID))
						return
					}
					logger.Info("rule sets reloaded", zap.String("event", event), zap.Int("count", rules.Count()))
				})
				if err := rules.Watch(); err != nil {
					return err
				}
				defer rules.StopWatch()
				logger.Info("watching rule sets", zap.String("dir", cfg.Rules.Dir))
			}

			if !verbose {
				gin.SetMode(gin.ReleaseMode)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := server.New(engine, pdftext.NewPageMap(cfg.PDF.Chapters), srvCfg, logger)
			fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", srv.Addr())
			return srv.Run(ctx)
		},
	}

	cmd.Flags().String("host", "127.0.0.1", "Listen host")
	cmd.Flags().Int("port", 8080, "Listen port")
	cmd.Flags().Bool("watch-rules", false, "Reload rule sets when files in the rules directory change")

	return cmd
}

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and validate rule sets",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available rule sets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, rules, err := newEngine()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-12s %-8s %-9s %-20s %s\n", "ID", "VERSION", "VARIANT", "STATES", "NAME")
			fmt.Fprintln(out, strings.Repeat("─", 72))
			for _, rs := range rules.List() {
				states := strings.Join(rs.States, ",")
				if states == "" {
					states = "-"
				}
				fmt.Fprintf(out, "%-12s %-8s %-9s %-20s %s\n", rs.ID, rs.Version, rs.Variant, states, rs.Name)
			}
			fmt.Fprintf(out, "\nTotal: %d rule sets\n", rules.Count())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show a rule set and its classification order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, rules, err := newEngine()
			if err != nil {
				return err
			}
			rs, ok := rules.Get(args[0])
			if !ok {
				return fmt.Errorf("%w: %q", roll.ErrUnknownVariant, args[0])
			}
			printRuleSet(cmd, rs)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate <dir>",
		Short: "Validate every YAML rule set in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := os.ReadDir(args[0])
			if err != nil {
				return fmt.Errorf("reading directory: %w", err)
			}

			out := cmd.OutOrStdout()
			checked, failed := 0, 0
			for _, entry := range entries {
				name := entry.Name()
				if entry.IsDir() || !(strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
					continue
				}
				checked++
				data, err := os.ReadFile(filepath.Join(args[0], name))
				if err == nil {
					_, err = ruleset.Parse(data)
				}
				if err != nil {
					failed++
					fmt.Fprintf(out, "[FAIL] %s: %v\n", name, err)
					continue
				}
				fmt.Fprintf(out, "[OK]   %s\n", name)
			}

			fmt.Fprintf(out, "\nChecked: %d | Failed: %d\n", checked, failed)
			if failed > 0 {
				return fmt.Errorf("%d rule set(s) failed validation", failed)
			}
			return nil
		},
	})

	return cmd
}

func printRuleSet(cmd *cobra.Command, rs *ruleset.RuleSet) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s)\n", rs.Name, rs.ID)
	fmt.Fprintf(out, "  Version:     %s\n", rs.Version)
	fmt.Fprintf(out, "  Variant:     %s\n", rs.Variant)
	if rs.Description != "" {
		fmt.Fprintf(out, "  Description: %s\n", rs.Description)
	}
	if len(rs.States) > 0 {
		fmt.Fprintf(out, "  States:      %s\n", strings.Join(rs.States, ", "))
	}
	fmt.Fprintf(out, "  Annotations: %t\n", rs.Annotations)
	fmt.Fprintf(out, "  Authority:   %s\n", rs.Citation.Authority)

	printList := func(label string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(out, "  %s (%d): %s\n", label, len(items), strings.Join(items, ", "))
	}
	printList("Race keywords", rs.Keywords.Race)
	printList("Race notes", rs.Keywords.RaceNotes)
	printList("Tribes", rs.Keywords.Tribes)
	printList("Alias markers", rs.Keywords.AliasMarkers)
	printList("Location hints", rs.Keywords.LocationHints)
	printList("Unnamed markers", rs.Unnamed.Markers)
	printList("Race phrases", rs.RacePhrases)
	printList("Owner phrases", rs.Owner.Phrases)
	printList("Known codes", rs.Citation.KnownCodes)

	fmt.Fprintln(out, "\nPrecedence:")
	for i, step := range classify.Precedence(rs) {
		fmt.Fprintf(out, "  %2d. %s\n", i+1, step)
	}
}
