// Package scenario replays effect passes described in YAML and checks the
// resulting call log against expectations.
//
// A scenario declares effects and the inputs each one reads on every pass.
// The runner drives pkg/effect directly: the first pass activates each
// effect, later passes re-evaluate it, and every effect is disposed at the
// end. No component code runs, so a scenario isolates the synchronization
// rule from state updates.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario is one replayable sequence of passes.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name" json:"name"`

	// Description explains what this scenario demonstrates.
	Description string `yaml:"description" json:"description"`

	// Effects are created, activated and disposed in declaration order.
	Effects []EffectSpec `yaml:"effects" json:"effects"`

	// Passes are replayed in order. The first pass activates every effect.
	Passes []Pass `yaml:"passes" json:"passes"`

	// Expect holds the assertions checked after the run. Nil checks only
	// that no error occurred.
	Expect *Expect `yaml:"expect,omitempty" json:"expect,omitempty"`
}

// Dependency modes of an effect.
const (
	DepsEvery   = "every"
	DepsOnce    = "once"
	DepsTracked = "tracked"
)

// EffectSpec declares one effect.
type EffectSpec struct {
	// Name is the effect name used in the call log.
	Name string `yaml:"name" json:"name"`

	// Deps is the dependency mode: every (list omitted), once (empty list)
	// or tracked (explicit list, read from each pass).
	Deps string `yaml:"deps" json:"deps"`

	// NoCleanup makes setup return no teardown.
	NoCleanup bool `yaml:"noCleanup,omitempty" json:"noCleanup,omitempty"`
}

// Pass lists the inputs each tracked effect reads on one pass.
type Pass struct {
	Inputs map[string][]Input `yaml:"inputs,omitempty" json:"inputs,omitempty"`
}

// Input is one position in a tracked input list. Exactly one of Value,
// Const and Ref is set.
type Input struct {
	// Value is a reactive primitive (string, int, float or bool).
	Value any `yaml:"value,omitempty" json:"value,omitempty"`

	// Const is a stable primitive.
	Const any `yaml:"const,omitempty" json:"const,omitempty"`

	// Ref names an object compared by identity. The same name yields the
	// same object across passes unless Fresh is set.
	Ref string `yaml:"ref,omitempty" json:"ref,omitempty"`

	// Fresh allocates a new object for Ref on this pass.
	Fresh bool `yaml:"fresh,omitempty" json:"fresh,omitempty"`
}

// Expect holds the assertions for a run.
type Expect struct {
	// Setups is the expected number of setups per effect.
	Setups map[string]int `yaml:"setups,omitempty" json:"setups,omitempty"`

	// Teardowns is the expected number of teardowns per effect, including
	// the final dispose.
	Teardowns map[string]int `yaml:"teardowns,omitempty" json:"teardowns,omitempty"`

	// Skips is the expected number of passes that kept the session.
	Skips map[string]int `yaml:"skips,omitempty" json:"skips,omitempty"`

	// Order is the exact expected call log, e.g. "setup fetch#1".
	Order []string `yaml:"order,omitempty" json:"order,omitempty"`

	// Error is the expected error code (e.g. "R101"). Empty expects success.
	Error string `yaml:"error,omitempty" json:"error,omitempty"`
}

// ErrInvalid is matched by every *ValidationError.
var ErrInvalid = errors.New("invalid scenario")

// ValidationError lists the problems found in a scenario.
type ValidationError struct {
	Scenario string
	Problems []string
}

func (e *ValidationError) Error() string {
	name := e.Scenario
	if name == "" {
		name = "<unnamed>"
	}
	return fmt.Sprintf("invalid scenario %s: %s", name, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

// Code returns the error code for invalid scenarios.
func (e *ValidationError) Code() string { return "R201" }

// ParseError wraps a YAML decoding failure.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("failed to parse scenario: %v", e.Err)
	}
	return fmt.Sprintf("failed to parse scenario %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Code returns the error code for malformed scenario files.
func (e *ParseError) Code() string { return "R202" }

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return parse(path, data)
}

// Parse decodes and validates a scenario document. Unknown fields are
// rejected.
func Parse(data []byte) (*Scenario, error) {
	return parse("", data)
}

func parse(source string, data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, &ParseError{Source: source, Err: err}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

var errorCode = regexp.MustCompile(`^R\d{3}$`)

// Validate checks names, dependency modes, input forms and expectations.
func (s *Scenario) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if s.Name == "" {
		add("name is required")
	} else if strings.ContainsAny(s.Name, `/\`) || strings.HasPrefix(s.Name, ".") {
		add("name %q must not contain a path separator or start with a dot", s.Name)
	}
	if len(s.Effects) == 0 {
		add("at least one effect is required")
	}
	if len(s.Passes) == 0 {
		add("at least one pass is required")
	}

	modes := make(map[string]string, len(s.Effects))
	for i, e := range s.Effects {
		if e.Name == "" {
			add("effects[%d]: name is required", i)
			continue
		}
		if _, dup := modes[e.Name]; dup {
			add("effects[%d]: duplicate name %q", i, e.Name)
			continue
		}
		switch e.Deps {
		case DepsEvery, DepsOnce, DepsTracked:
		default:
			add("effect %s: deps must be every, once or tracked, got %q", e.Name, e.Deps)
		}
		modes[e.Name] = e.Deps
	}

	for i, p := range s.Passes {
		for name, inputs := range p.Inputs {
			mode, ok := modes[name]
			if !ok {
				add("passes[%d]: unknown effect %q", i, name)
				continue
			}
			if mode == DepsEvery {
				add("passes[%d]: effect %s omits its input list", i, name)
			}
			if mode == DepsOnce && len(inputs) > 0 {
				add("passes[%d]: effect %s has an empty input list", i, name)
			}
			for j, in := range inputs {
				if err := in.validate(); err != nil {
					add("passes[%d].%s[%d]: %v", i, name, j, err)
				}
			}
		}
	}

	if x := s.Expect; x != nil {
		for _, m := range []map[string]int{x.Setups, x.Teardowns, x.Skips} {
			for name, n := range m {
				if _, ok := modes[name]; !ok {
					add("expect: unknown effect %q", name)
				}
				if n < 0 {
					add("expect: negative count for %s", name)
				}
			}
		}
		if x.Error != "" && !errorCode.MatchString(x.Error) {
			add("expect: error must be a code like R101, got %q", x.Error)
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Scenario: s.Name, Problems: problems}
	}
	return nil
}

func (in Input) validate() error {
	forms := 0
	if in.Value != nil {
		forms++
		if !primitive(in.Value) {
			return fmt.Errorf("value must be a string, number or bool, got %T", in.Value)
		}
	}
	if in.Const != nil {
		forms++
		if !primitive(in.Const) {
			return fmt.Errorf("const must be a string, number or bool, got %T", in.Const)
		}
	}
	if in.Ref != "" {
		forms++
	}
	if in.Fresh && in.Ref == "" {
		return errors.New("fresh requires ref")
	}
	if forms != 1 {
		return fmt.Errorf("exactly one of value, const or ref is required, got %d", forms)
	}
	return nil
}

func primitive(v any) bool {
	switch v.(type) {
	case string, int, int64, uint64, float64, bool:
		return true
	}
	return false
}
