package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vango-dev/resync/internal/config"
	"github.com/vango-dev/resync/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// stdout receives command output.
var stdout io.Writer = os.Stdout

// colorOutput is cleared by --no-color.
var colorOutput = true

// globals holds the state shared by every command, filled in by the root
// command's PersistentPreRunE.
type globals struct {
	dir         string
	logLevel    string
	noColor     bool
	errorFormat string

	cfg    *config.Config
	logger *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g := &globals{}
	if err := newRootCmd(g).ExecuteContext(ctx); err != nil {
		printError(g, err)
		stop()
		os.Exit(1)
	}
}

// printError reports err on stderr in the selected format.
func printError(g *globals, err error) {
	switch g.errorFormat {
	case "json":
		fmt.Fprintln(os.Stderr, errors.Resolve(err).FormatJSON())
	case "compact":
		fmt.Fprintln(os.Stderr, errors.Resolve(err).FormatCompact())
	default:
		errors.PrintError(err)
	}
}

func newRootCmd(g *globals) *cobra.Command {

	rootCmd := &cobra.Command{
		Use:   "resync",
		Short: "Replay and inspect effect re-synchronization",
		Long: `resync replays effect dependency scenarios and reports when each
effect tears down and sets up again.

  • Built-in scenarios for the common dependency mistakes
  • YAML scenarios with call-order expectations
  • An HTTP inspector with Prometheus metrics and a live event stream`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.load()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&g.dir, "dir", "C", ".", "Directory to search for resync.json")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn or error (default from resync.json)")
	rootCmd.PersistentFlags().BoolVar(&g.noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVar(&g.errorFormat, "error-format", "text", "Error output: text, compact or json")

	rootCmd.AddCommand(
		runCmd(g),
		listCmd(g),
		checkCmd(),
		loopCmd(g),
		serveCmd(g),
		initCmd(g),
		versionCmd(),
	)
	return rootCmd
}

// load resolves the configuration and installs the logger.
func (g *globals) load() error {
	g.applyColor()

	cfg, err := config.Resolve(g.dir)
	if err != nil {
		return err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	g.cfg = cfg

	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	g.logger = slog.New(handler)
	slog.SetDefault(g.logger)
	return nil
}

// applyColor turns off ANSI output for both the status helpers and
// formatted errors when --no-color is set.
func (g *globals) applyColor() {
	colorOutput = !g.noColor
	if g.noColor {
		errors.DisableColors()
	}
}

func mark(color, symbol string) string {
	if !colorOutput {
		return symbol
	}
	return color + symbol + "\033[0m"
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Fprintf(stdout, "%s %s\n", mark("\033[32m", "✓"), fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Fprintf(stdout, "  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Fprintf(stdout, "%s %s\n", mark("\033[33m", "⚠"), fmt.Sprintf(format, args...))
}

// errorMsg prints an error message.
func errorMsg(format string, args ...any) {
	fmt.Fprintf(stdout, "%s %s\n", mark("\033[31m", "✗"), fmt.Sprintf(format, args...))
}
