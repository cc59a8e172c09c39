package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/vango-dev/resync/internal/errors"
	"github.com/vango-dev/resync/pkg/archive"
	"github.com/vango-dev/resync/pkg/effect"
	"github.com/vango-dev/resync/pkg/inspect"
	"github.com/vango-dev/resync/pkg/metrics"
	"github.com/vango-dev/resync/pkg/tracing"
)

func serveCmd(g *globals) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the inspector server",
		Long: `Start the HTTP inspector.

Routes:
  GET  /healthz          liveness
  GET  /scenarios        built-in and on-disk scenarios
  POST /scenarios/run    run ?name=<scenario> or a posted YAML scenario
  GET  /reports          archived reports
  GET  /reports/{name}   one archived report
  GET  /metrics          Prometheus metrics
  GET  /events           WebSocket stream of lifecycle events

Examples:
  resync serve
  resync serve --addr=:7070`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				g.cfg.Server.Addr = addr
			}
			return serve(cmd, g)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from resync.json)")

	return cmd
}

func serve(cmd *cobra.Command, g *globals) error {
	cfg := g.cfg
	logger := g.logger.With("component", "inspect")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(
		metrics.WithNamespace(cfg.Metrics.Namespace),
		metrics.WithRegistry(reg),
	)
	tr := tracing.New(tracing.WithTracerName(cfg.Tracing.TracerName))

	store, err := archive.Open(cfg.ArchiveOptions())
	if err != nil {
		return errors.New("R304").Wrap(err)
	}

	srv := inspect.New(
		inspect.WithLogger(logger),
		inspect.WithStore(store),
		inspect.WithGatherer(reg),
		inspect.WithObserver(effect.Observers(m, tr)),
		inspect.WithStrictConstants(cfg.StrictConstants),
		inspect.WithScenarioDir(cfg.ScenariosPath()),
	)

	success("Inspector listening on http://%s", cfg.Server.Addr)
	info("archive: %s", cfg.Archive.Backend)
	if path := cfg.Path(); path != "" {
		info("config:  %s", path)
	}

	if err := srv.Run(cmd.Context(), cfg.Server.Addr); err != nil {
		return errors.FromError(err, "R402")
	}
	info("Shut down")
	return nil
}
