package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/resync/internal/errors"
	"github.com/vango-dev/resync/pkg/archive"
	"github.com/vango-dev/resync/pkg/scenario"
)

func runCmd(g *globals) *cobra.Command {
	var (
		jsonOut bool
		save    bool
		strict  bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "run [file|builtin]...",
		Short: "Replay scenarios and check their expectations",
		Long: `Replay one or more scenarios and print the call log and verdict.

Each argument is a YAML file, the name of a file in the scenarios
directory, or a built-in scenario. Without arguments every built-in
scenario runs.

Examples:
  resync run
  resync run secret-object-loop
  resync run scenarios/chat.yaml --json
  resync run --archive`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(cmd.Context(), g, args, runOptions{
				json:    jsonOut,
				archive: save,
				strict:  strict || g.cfg.StrictConstants,
				verbose: verbose,
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print reports as JSON")
	cmd.Flags().BoolVar(&save, "archive", false, "Store reports in the configured archive")
	cmd.Flags().BoolVar(&strict, "strict", false, "Report changed stable inputs as errors")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print the call log of passing scenarios too")

	return cmd
}

type runOptions struct {
	json    bool
	archive bool
	strict  bool
	verbose bool
}

func runScenarios(ctx context.Context, g *globals, args []string, opts runOptions) error {
	var scenarios []*scenario.Scenario
	if len(args) == 0 {
		all, err := scenario.AllBuiltins()
		if err != nil {
			return err
		}
		scenarios = all
	}
	for _, arg := range args {
		s, err := resolveScenario(g, arg)
		if err != nil {
			return err
		}
		scenarios = append(scenarios, s)
	}

	var store archive.Store
	if opts.archive {
		var err error
		store, err = archive.Open(g.cfg.ArchiveOptions())
		if err != nil {
			return errors.New("R304").Wrap(err)
		}
	}

	reports := make([]*scenario.Report, 0, len(scenarios))
	failed := 0
	for _, s := range scenarios {
		report, err := scenario.Run(ctx, s,
			scenario.WithStrictConstants(opts.strict),
			scenario.WithLogger(g.logger.With("component", "scenario")),
		)
		if err != nil {
			return err
		}
		reports = append(reports, report)
		if !report.Passed() {
			failed++
		}
		if store != nil {
			if err := archive.PutJSON(ctx, store, report.Key(), report); err != nil {
				return errors.New("R304").Wrap(err)
			}
		}
		if !opts.json {
			printReport(report, opts.verbose)
			if store != nil {
				info("archived as %s", report.Key())
			}
		}
	}

	if opts.json {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return err
		}
	}

	if failed > 0 {
		return errors.New("R204").
			WithDetail(fmt.Sprintf("%d of %d scenarios did not meet their expectations.", failed, len(reports)))
	}
	if !opts.json && len(reports) > 1 {
		fmt.Fprintln(stdout)
		success("%d scenarios passed", len(reports))
	}
	return nil
}

// resolveScenario loads arg as a file path, then as a file in the scenarios
// directory, then as a built-in.
func resolveScenario(g *globals, arg string) (*scenario.Scenario, error) {
	if strings.HasSuffix(arg, ".yaml") || strings.HasSuffix(arg, ".yml") || strings.ContainsAny(arg, `/\`) {
		if _, err := os.Stat(arg); err == nil {
			return loadScenario(arg)
		}
	}
	if g.cfg != nil {
		path := filepath.Join(g.cfg.ScenariosPath(), arg+".yaml")
		if _, err := os.Stat(path); err == nil {
			return loadScenario(path)
		}
	}
	return scenario.Builtin(arg)
}

// loadScenario loads a scenario file, pointing YAML errors at their line.
func loadScenario(path string) (*scenario.Scenario, error) {
	s, err := scenario.Load(path)
	var pe *scenario.ParseError
	if stderrors.As(err, &pe) {
		return nil, errors.New("R202").WithLocationFromError(path, pe.Err).Wrap(err)
	}
	return s, err
}

func printReport(r *scenario.Report, verbose bool) {
	fmt.Fprintln(stdout)
	if r.Passed() {
		success("%s (%d passes, %s)", r.Scenario, r.Passes, r.Duration.Round(time.Microsecond))
	} else {
		errorMsg("%s (%d passes)", r.Scenario, r.Passes)
	}
	if verbose || !r.Passed() {
		for _, line := range r.Log {
			info("%s", line)
		}
	}
	if r.Error != "" {
		info("error %s: %s", r.Error, r.ErrorMessage)
	}
	for _, f := range r.Failures {
		warn("%s", f)
	}
}
