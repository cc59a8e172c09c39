package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-dev/resync/internal/errors"
	"github.com/vango-dev/resync/pkg/deps"
)

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <prev> <next>",
		Short: "Decide whether an effect re-synchronizes between two passes",
		Long: `Apply the synchronization rule to two comma-separated input lists.

Each item is a tracked primitive (42, 1.5, true, text or "quoted"),
a stable input (const:42) or an object compared by identity
(ref:name for the same object in both lists, new:name for a new one).
An empty argument is an empty list; "-" omits the list.

Examples:
  resync check 1,a 1,b
  resync check ref:secret new:secret
  resync check "" ""
  resync check 1 1,2`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			objects := make(map[string]*object)
			prev, err := parseList(args[0], objects)
			if err != nil {
				return err
			}
			next, err := parseList(args[1], objects)
			if err != nil {
				return err
			}

			resync, err := prev.Resynchronize(next)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "prev: %s\nnext: %s\n", prev, next)
			if resync {
				fmt.Fprintln(stdout, "resynchronize: yes")
			} else {
				fmt.Fprintln(stdout, "resynchronize: no")
			}
			if prev.Shape() == deps.ShapeOn {
				changed, _ := deps.Changed(prev.Values(), next.Values())
				if len(changed) > 0 {
					info("changed positions: %v", changed)
				}
			}
			for _, i := range deps.UnstableConstants(prev, next) {
				warn("stable input at position %d changed", i)
			}
			return nil
		},
	}
}

// object backs ref: and new: items.
type object struct {
	name string
}

func (o *object) String() string { return o.name }

func parseList(arg string, objects map[string]*object) (deps.List, error) {
	switch strings.TrimSpace(arg) {
	case "-":
		return deps.Every(), nil
	case "":
		return deps.Once(), nil
	}
	items := strings.Split(arg, ",")
	values := make([]deps.Value, len(items))
	for i, item := range items {
		v, err := parseItem(strings.TrimSpace(item), objects)
		if err != nil {
			return deps.List{}, err
		}
		values[i] = v
	}
	return deps.On(values...), nil
}

func parseItem(item string, objects map[string]*object) (deps.Value, error) {
	switch {
	case item == "", item == "ref:", item == "new:", item == "const:":
		return nil, errors.New("R401").WithDetail(fmt.Sprintf("Empty list item %q.", item))
	case strings.HasPrefix(item, "ref:"):
		name := strings.TrimPrefix(item, "ref:")
		obj, ok := objects[name]
		if !ok {
			obj = &object{name: name}
			objects[name] = obj
		}
		return deps.RefOf(obj), nil
	case strings.HasPrefix(item, "new:"):
		return deps.RefOf(&object{name: strings.TrimPrefix(item, "new:")}), nil
	case strings.HasPrefix(item, "const:"):
		switch v := parsePrimitive(strings.TrimPrefix(item, "const:")).(type) {
		case bool:
			return deps.Const(v), nil
		case int:
			return deps.Const(v), nil
		case float64:
			return deps.Const(v), nil
		default:
			return deps.Const(v.(string)), nil
		}
	}
	switch v := parsePrimitive(item).(type) {
	case bool:
		return deps.Track(v), nil
	case int:
		return deps.Track(v), nil
	case float64:
		return deps.Track(v), nil
	default:
		return deps.Track(v.(string)), nil
	}
}

// parsePrimitive returns a bool, int, float64 or string. Quoted items are
// always strings.
func parsePrimitive(s string) any {
	if unquoted, err := strconv.Unquote(s); err == nil {
		return unquoted
	}
	if b, err := strconv.ParseBool(s); err == nil && (s == "true" || s == "false") {
		return b
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
