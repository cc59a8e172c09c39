package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vango-dev/resync/internal/config"
	"github.com/vango-dev/resync/internal/errors"
)

const exampleScenario = `name: example
description: A value dependency re-synchronizes only when the value changes.
effects:
  - name: fetch
    deps: tracked
passes:
  - inputs: {fetch: [{value: 1}]}
  - inputs: {fetch: [{value: 1}]}
  - inputs: {fetch: [{value: 2}]}
expect:
  setups: {fetch: 2}
  teardowns: {fetch: 2}
  skips: {fetch: 1}
`

func initCmd(g *globals) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a default resync.json",
		Long: `Write resync.json with default settings and an example scenario.

Examples:
  resync init
  resync init ./effects --force`,
		Args: cobra.MaximumNArgs(1),
		// init must work where no configuration exists yet.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			g.applyColor()
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return initProject(dir, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing resync.json")

	return cmd
}

func initProject(dir string, force bool) error {
	if config.Exists(dir) && !force {
		return errors.New("R401").
			WithDetail(fmt.Sprintf("%s already exists.", filepath.Join(dir, config.ConfigFileName))).
			WithSuggestion("Use --force to overwrite it")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	cfg := config.New()
	path := filepath.Join(dir, config.ConfigFileName)
	if err := cfg.SaveTo(path); err != nil {
		return err
	}
	success("Wrote %s", path)

	scenarios := filepath.Join(dir, cfg.Scenarios.Dir)
	example := filepath.Join(scenarios, "example.yaml")
	if _, err := os.Stat(example); err == nil {
		return nil
	}
	if err := os.MkdirAll(scenarios, 0755); err != nil {
		return err
	}
	if err := os.WriteFile(example, []byte(exampleScenario), 0644); err != nil {
		return err
	}
	success("Wrote %s", example)
	info("Run it with: resync run example")
	return nil
}
