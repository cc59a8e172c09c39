// Package inspect serves scenarios, run reports, metrics and a live event
// stream over HTTP.
//
// Routes:
//
//	GET  /healthz          liveness
//	GET  /scenarios        built-in and on-disk scenarios
//	POST /scenarios/run    run ?name=<scenario>, or the YAML request body
//	GET  /reports          archived reports
//	GET  /reports/{name}   one archived report
//	GET  /metrics          Prometheus metrics
//	GET  /events           WebSocket stream of effect lifecycle events
package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	rerrors "github.com/vango-dev/resync/internal/errors"
	"github.com/vango-dev/resync/pkg/archive"
	"github.com/vango-dev/resync/pkg/effect"
	"github.com/vango-dev/resync/pkg/scenario"
)

const (
	// maxScenarioSize bounds POSTed scenario documents.
	maxScenarioSize = 1 << 20

	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
)

// Server is the inspector HTTP server.
type Server struct {
	logger   *slog.Logger
	store    archive.Store
	hub      *Hub
	gatherer prometheus.Gatherer
	observer effect.Observer
	strict   bool
	dir      string

	upgrader websocket.Upgrader
	router   chi.Router

	shutdownTimeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Default: slog.Default() with component=inspect.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithStore sets the report archive. Default: a MemoryStore.
func WithStore(store archive.Store) Option {
	return func(s *Server) {
		s.store = store
	}
}

// WithHub sets the event hub. Default: NewHub(DefaultHubBuffer).
func WithHub(hub *Hub) Option {
	return func(s *Server) {
		s.hub = hub
	}
}

// WithGatherer sets the registry served on /metrics.
// Default: prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithObserver attaches an observer (metrics, tracing) to every run.
func WithObserver(o effect.Observer) Option {
	return func(s *Server) {
		s.observer = o
	}
}

// WithStrictConstants runs scenarios in strict mode.
func WithStrictConstants(strict bool) Option {
	return func(s *Server) {
		s.strict = strict
	}
}

// WithScenarioDir serves *.yaml scenarios from dir alongside the built-ins.
func WithScenarioDir(dir string) Option {
	return func(s *Server) {
		s.dir = dir
	}
}

// WithCheckOrigin sets the WebSocket origin check.
// Default: same-origin requests only.
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(s *Server) {
		s.upgrader.CheckOrigin = fn
	}
}

// New creates a Server.
func New(opts ...Option) *Server {
	s := &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOrigin,
		},
		shutdownTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default().With("component", "inspect")
	}
	if s.store == nil {
		s.store = archive.NewMemoryStore()
	}
	if s.hub == nil {
		s.hub = NewHub(DefaultHubBuffer, s.logger)
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/scenarios", s.handleScenarios)
	r.Post("/scenarios/run", s.handleRun)
	r.Get("/reports", s.handleReports)
	r.Get("/reports/{name}", s.handleReport)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Get("/events", s.handleEvents)
	return r
}

// Hub returns the event hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}
	s.logger.Info("server shutdown complete")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ScenarioInfo describes one available scenario.
type ScenarioInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Source      string `json:"source"`
	Error       string `json:"error,omitempty"`
}

func (s *Server) handleScenarios(w http.ResponseWriter, r *http.Request) {
	var out []ScenarioInfo
	for _, name := range scenario.Builtins() {
		info := ScenarioInfo{Name: name, Source: "builtin"}
		if sc, err := scenario.Builtin(name); err == nil {
			info.Description = strings.TrimSpace(sc.Description)
		}
		out = append(out, info)
	}
	for _, path := range s.scenarioFiles() {
		info := ScenarioInfo{
			Name:   strings.TrimSuffix(filepath.Base(path), ".yaml"),
			Source: path,
		}
		if sc, err := scenario.Load(path); err != nil {
			info.Error = err.Error()
		} else {
			info.Name = sc.Name
			info.Description = strings.TrimSpace(sc.Description)
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) scenarioFiles() []string {
	if s.dir == "" {
		return nil
	}
	paths, err := filepath.Glob(filepath.Join(s.dir, "*.yaml"))
	if err != nil {
		return nil
	}
	return paths
}

// lookup resolves a scenario name: a file in the scenario directory first,
// then a built-in.
func (s *Server) lookup(name string) (*scenario.Scenario, error) {
	if s.dir != "" && !strings.ContainsAny(name, `/\`) {
		path := filepath.Join(s.dir, name+".yaml")
		if _, err := os.Stat(path); err == nil {
			return scenario.Load(path)
		}
	}
	return scenario.Builtin(name)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var sc *scenario.Scenario
	var err error
	if name := r.URL.Query().Get("name"); name != "" {
		sc, err = s.lookup(name)
	} else {
		var body []byte
		body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxScenarioSize))
		if err == nil {
			sc, err = scenario.Parse(body)
		}
	}
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, scenario.ErrUnknownBuiltin) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}

	report, err := scenario.Run(r.Context(), sc,
		scenario.WithObserver(effect.Observers(s.hub, s.observer)),
		scenario.WithStrictConstants(s.strict),
		scenario.WithLogger(s.logger),
	)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	if err := archive.PutJSON(r.Context(), s.store, report.Key(), report); err != nil {
		s.logger.Error("archive report", "report", report.Key(), "error", err)
		writeError(w, http.StatusInternalServerError, rerrors.New("R304").Wrap(err))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, rerrors.New("R304").Wrap(err))
		return
	}
	if entries == nil {
		entries = []archive.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	data, err := s.store.Get(r.Context(), chi.URLParam(r, "name"))
	switch {
	case errors.Is(err, archive.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
		return
	case errors.Is(err, archive.ErrInvalidName):
		writeError(w, http.StatusBadRequest, err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, rerrors.New("R304").Wrap(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, cancel := s.hub.Subscribe()
	defer cancel()

	// Reader: handles pongs and notices when the client goes away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// errorBody is the JSON error response.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	e := rerrors.Resolve(err)
	writeJSON(w, status, errorBody{Code: e.Code, Message: e.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
