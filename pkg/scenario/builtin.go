package scenario

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// ErrUnknownBuiltin is matched by every *UnknownBuiltinError.
var ErrUnknownBuiltin = errors.New("unknown built-in scenario")

// UnknownBuiltinError names a built-in scenario that does not exist.
type UnknownBuiltinError struct {
	Name string
}

func (e *UnknownBuiltinError) Error() string {
	return fmt.Sprintf("unknown built-in scenario %q", e.Name)
}

func (e *UnknownBuiltinError) Is(target error) bool {
	return target == ErrUnknownBuiltin
}

// Code returns the error code for unknown built-ins.
func (e *UnknownBuiltinError) Code() string { return "R203" }

// Builtins returns the names of the embedded scenarios, sorted.
func Builtins() []string {
	entries, err := fs.ReadDir(builtinFS, "builtin")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".yaml" {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	slices.Sort(names)
	return names
}

// Builtin loads an embedded scenario by name.
func Builtin(name string) (*Scenario, error) {
	data, err := builtinFS.ReadFile(path.Join("builtin", name+".yaml"))
	if err != nil {
		return nil, &UnknownBuiltinError{Name: name}
	}
	return parse("builtin:"+name, data)
}

// AllBuiltins loads every embedded scenario in name order.
func AllBuiltins() ([]*Scenario, error) {
	names := Builtins()
	out := make([]*Scenario, 0, len(names))
	for _, name := range names {
		s, err := Builtin(name)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
