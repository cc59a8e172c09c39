package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	rerrors "github.com/vango-dev/resync/internal/errors"
	"github.com/vango-dev/resync/pkg/deps"
	"github.com/vango-dev/resync/pkg/effect"
)

// Report is the outcome of one run.
type Report struct {
	ID       uuid.UUID `json:"id"`
	Scenario string    `json:"scenario"`

	// Passes is the number of passes that completed without error.
	Passes int `json:"passes"`

	// Log is the call log: "setup name#seq" and "teardown name#seq".
	Log    []string       `json:"log"`
	Events []effect.Event `json:"events"`

	Setups    map[string]int `json:"setups"`
	Teardowns map[string]int `json:"teardowns"`
	Skips     map[string]int `json:"skips"`

	// Error is the code of the error that stopped the run, if any.
	Error        string `json:"error,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`

	// Failures lists the expectations the run did not meet.
	Failures []string `json:"failures,omitempty"`

	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
}

// Passed reports whether every expectation was met.
func (r *Report) Passed() bool {
	return len(r.Failures) == 0
}

// Key returns the archive name of the report.
func (r *Report) Key() string {
	return fmt.Sprintf("%s-%s.json", r.Scenario, r.ID)
}

// RunOption configures Run.
type RunOption func(*runConfig)

type runConfig struct {
	observer effect.Observer
	strict   bool
	logger   *slog.Logger
	now      func() time.Time
}

// WithObserver attaches an extra observer (metrics, tracing, an event hub)
// to every effect of the run.
func WithObserver(o effect.Observer) RunOption {
	return func(c *runConfig) {
		c.observer = o
	}
}

// WithStrictConstants reports changed stable inputs as errors.
func WithStrictConstants(strict bool) RunOption {
	return func(c *runConfig) {
		c.strict = strict
	}
}

// WithLogger sets the logger. Default: slog.Default() with component=scenario.
func WithLogger(logger *slog.Logger) RunOption {
	return func(c *runConfig) {
		c.logger = logger
	}
}

// Run replays s and checks its expectations.
//
// The first error returned by an effect stops the run; its code is recorded
// in the report and compared with expect.error. Every effect is disposed
// before Run returns, in reverse declaration order. The returned error is
// non-nil only when s is invalid or ctx is done, in which case the partial
// report is still returned alongside the context error.
func Run(ctx context.Context, s *Scenario, opts ...RunOption) (*Report, error) {
	cfg := runConfig{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default().With("component", "scenario")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	rec := effect.NewRecorder()
	observer := effect.Observers(rec, cfg.observer)
	report := &Report{
		ID:       uuid.New(),
		Scenario: s.Name,
		Started:  cfg.now(),
	}
	logger := cfg.logger.With("scenario", s.Name, "run", report.ID)

	effects := make([]*effect.Effect, len(s.Effects))
	for i, spec := range s.Effects {
		effects[i] = effect.New(setupFor(spec),
			effect.WithName(spec.Name),
			effect.WithObserver(observer),
			effect.WithStrictConstants(cfg.strict),
		)
	}

	objects := make(refs)
	var runErr, ctxErr error

passes:
	for i, p := range s.Passes {
		if err := ctx.Err(); err != nil {
			ctxErr = err
			break
		}
		for j, spec := range s.Effects {
			list := p.list(spec, objects)
			var err error
			if i == 0 {
				err = effects[j].Activate(list)
			} else {
				_, err = effects[j].Reevaluate(list)
			}
			if err != nil {
				runErr = fmt.Errorf("pass %d: %w", i+1, err)
				break passes
			}
		}
		report.Passes++
		logger.Debug("pass complete", "pass", i+1)
	}

	for i := len(effects) - 1; i >= 0; i-- {
		effects[i].Dispose()
	}

	report.Events = rec.Events()
	report.Log = rec.Log()
	report.Setups = make(map[string]int, len(s.Effects))
	report.Teardowns = make(map[string]int, len(s.Effects))
	report.Skips = make(map[string]int, len(s.Effects))
	for _, spec := range s.Effects {
		report.Setups[spec.Name] = rec.Count(spec.Name, effect.EventSetup)
		report.Teardowns[spec.Name] = rec.Count(spec.Name, effect.EventTeardown)
		report.Skips[spec.Name] = rec.Count(spec.Name, effect.EventSkip)
	}
	if runErr != nil {
		report.Error = rerrors.Classify(runErr)
		report.ErrorMessage = runErr.Error()
	}
	report.Failures = check(s.Expect, report)
	report.Duration = cfg.now().Sub(report.Started)

	if report.Passed() {
		logger.Info("scenario passed", "passes", report.Passes, "error", report.Error)
	} else {
		logger.Warn("scenario failed", "failures", report.Failures)
	}
	return report, ctxErr
}

func setupFor(spec EffectSpec) effect.Setup {
	if spec.NoCleanup {
		return func() effect.Cleanup { return nil }
	}
	return func() effect.Cleanup { return func() {} }
}

// check compares a report against the expectations.
func check(x *Expect, r *Report) []string {
	var failures []string
	if x == nil {
		if r.Error != "" {
			failures = append(failures, fmt.Sprintf("unexpected error %s: %s", r.Error, r.ErrorMessage))
		}
		return failures
	}

	counts := func(kind string, want, got map[string]int) {
		for _, name := range sortedKeys(want) {
			if got[name] != want[name] {
				failures = append(failures, fmt.Sprintf("%s[%s] = %d, want %d", kind, name, got[name], want[name]))
			}
		}
	}
	counts("setups", x.Setups, r.Setups)
	counts("teardowns", x.Teardowns, r.Teardowns)
	counts("skips", x.Skips, r.Skips)

	if len(x.Order) > 0 && !slices.Equal(x.Order, r.Log) {
		failures = append(failures, fmt.Sprintf("order = %v, want %v", r.Log, x.Order))
	}

	switch {
	case x.Error == "" && r.Error != "":
		failures = append(failures, fmt.Sprintf("unexpected error %s: %s", r.Error, r.ErrorMessage))
	case x.Error != "" && r.Error != x.Error:
		got := r.Error
		if got == "" {
			got = "none"
		}
		failures = append(failures, fmt.Sprintf("error = %s, want %s", got, x.Error))
	}
	return failures
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// object is the allocation behind a named ref.
type object struct {
	name string
	gen  int
}

// refs maps ref names to their current allocation within one run.
type refs map[string]*object

// list builds the input list spec reads on pass p.
func (p Pass) list(spec EffectSpec, objects refs) deps.List {
	switch spec.Deps {
	case DepsEvery:
		return deps.Every()
	case DepsOnce:
		return deps.Once()
	}
	inputs := p.Inputs[spec.Name]
	values := make([]deps.Value, len(inputs))
	for i, in := range inputs {
		values[i] = in.resolve(objects)
	}
	return deps.On(values...)
}

func (in Input) resolve(objects refs) deps.Value {
	switch {
	case in.Ref != "":
		obj, ok := objects[in.Ref]
		if !ok || in.Fresh {
			gen := 0
			if ok {
				gen = obj.gen + 1
			}
			obj = &object{name: in.Ref, gen: gen}
			objects[in.Ref] = obj
		}
		return deps.RefOf(obj)
	case in.Const != nil:
		return constant(in.Const)
	default:
		return tracked(in.Value)
	}
}

func tracked(v any) deps.Value {
	switch v := v.(type) {
	case string:
		return deps.Track(v)
	case int:
		return deps.Track(v)
	case int64:
		return deps.Track(v)
	case uint64:
		return deps.Track(v)
	case float64:
		return deps.Track(v)
	case bool:
		return deps.Track(v)
	}
	panic(fmt.Sprintf("scenario: unsupported value %T", v))
}

func constant(v any) deps.Value {
	switch v := v.(type) {
	case string:
		return deps.Const(v)
	case int:
		return deps.Const(v)
	case int64:
		return deps.Const(v)
	case uint64:
		return deps.Const(v)
	case float64:
		return deps.Const(v)
	case bool:
		return deps.Const(v)
	}
	panic(fmt.Sprintf("scenario: unsupported const %T", v))
}
