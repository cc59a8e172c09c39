package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/vango-dev/resync/internal/errors"
	"github.com/vango-dev/resync/pkg/deps"
	"github.com/vango-dev/resync/pkg/effect"
	"github.com/vango-dev/resync/pkg/host"
)

func loopCmd(g *globals) *cobra.Command {
	var (
		mode    string
		showLog bool
	)

	cmd := &cobra.Command{
		Use:   "loop <counter|secret>",
		Short: "Drive a component through the host loop",
		Long: `Mount a component whose effect updates state and flush the host until it
settles or exhausts the pass budget (budget.maxPasses in resync.json).

counter  counts how many times a typed value changed
secret   counts secrets in a state object

--deps chooses the effect's dependency list: value (the primitive read
by setup), object (a composite rebuilt every pass), every (list omitted)
or once (empty list).

Examples:
  resync loop counter --deps value
  resync loop counter --deps every
  resync loop secret --deps object`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"counter", "secret"},
		RunE: func(cmd *cobra.Command, args []string) error {
			rec := effect.NewRecorder()
			h := host.New(
				host.WithLogger(g.logger.With("component", "host")),
				host.WithPassBudget(g.cfg.Budget.MaxPasses),
				host.WithStrictConstants(g.cfg.StrictConstants),
				host.WithObserver(rec),
			)
			defer h.Close()

			var (
				result func() string
				err    error
			)
			switch args[0] {
			case "counter":
				result, err = runCounter(cmd.Context(), h, mode)
			case "secret":
				result, err = runSecret(cmd.Context(), h, mode)
			default:
				return errors.New("R401").WithDetail(fmt.Sprintf("Unknown component %q.", args[0])).
					WithSuggestion("Use counter or secret")
			}

			if showLog {
				for _, line := range rec.Log() {
					info("%s", line)
				}
			}
			if err != nil {
				errorMsg("%s with --deps %s did not settle after %d renders", args[0], mode, h.Passes())
				return err
			}
			success("%s with --deps %s settled after %d renders: %s", args[0], mode, h.Passes(), result())
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "deps", "value", "Dependency list: value, object, every or once")
	cmd.Flags().BoolVar(&showLog, "log", false, "Print the effect call log")

	return cmd
}

var depsModes = []string{"value", "object", "every", "once"}

func checkMode(mode string) error {
	if slices.Contains(depsModes, mode) {
		return nil
	}
	return errors.New("R401").
		WithDetail(fmt.Sprintf("Unknown --deps %q.", mode)).
		WithSuggestion("Use value, object, every or once")
}

// depsFor builds the list for a mode accepted by checkMode. rebuilt is only
// called for "object".
func depsFor(mode string, value deps.Value, rebuilt func() deps.Value) deps.List {
	switch mode {
	case "value":
		return deps.On(value)
	case "object":
		return deps.On(rebuilt())
	case "every":
		return deps.Every()
	}
	return deps.Once()
}

// runCounter types "hello" one key at a time into a component that counts
// input changes.
func runCounter(ctx context.Context, h *host.Host, mode string) (func() string, error) {
	if err := checkMode(mode); err != nil {
		return nil, err
	}

	var (
		count    int
		setValue host.Setter[string]
	)
	in := h.Mount("counter", func(p *host.Pass) {
		value, set := host.UseState(p, "")
		n, setCount := host.UseState(p, -1)
		list := depsFor(mode, deps.Track(value), func() deps.Value {
			return deps.RefOf(&struct{ value string }{value})
		})
		host.UseNamedEffect(p, "countInputChanges", func() effect.Cleanup {
			setCount.Set(n + 1)
			return nil
		}, list)
		count, setValue = n, set
	})

	if err := h.Flush(ctx); err != nil {
		return nil, err
	}
	typed := ""
	for _, r := range "hello" {
		typed += string(r)
		text := typed
		if err := in.Dispatch(ctx, func() { setValue.Set(text) }); err != nil {
			return nil, err
		}
	}
	return func() string { return fmt.Sprintf("count = %d", count) }, nil
}

type secretState struct {
	value        string
	countSecrets int
}

// runSecret mounts a component whose effect counts secrets in a state object.
func runSecret(ctx context.Context, h *host.Host, mode string) (func() string, error) {
	if err := checkMode(mode); err != nil {
		return nil, err
	}

	var secret *secretState
	h.Mount("secrets", func(p *host.Pass) {
		s, setSecret := host.UseState(p, &secretState{value: "secret"})
		list := depsFor(mode, deps.Track(s.value), func() deps.Value {
			return deps.RefOf(s)
		})
		host.UseNamedEffect(p, "countSecrets", func() effect.Cleanup {
			if s.value == "secret" {
				setSecret.Update(func(prev *secretState) *secretState {
					next := *prev
					next.countSecrets++
					return &next
				})
			}
			return nil
		}, list)
		secret = s
	})

	if err := h.Flush(ctx); err != nil {
		return nil, err
	}
	return func() string { return fmt.Sprintf("countSecrets = %d", secret.countSecrets) }, nil
}
