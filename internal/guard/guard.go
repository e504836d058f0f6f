// Package guard evaluates small JavaScript predicates over the current page
// location and recipe variables, e.g. `location.href.includes("/workspace/home")`
// or `location.href.startsWith(vars.base_url)`.
package guard

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dop251/goja"
)

// DefaultBudget bounds a single evaluation.
const DefaultBudget = 250 * time.Millisecond

// ErrEmpty is returned by Compile for blank expressions.
var ErrEmpty = errors.New("guard expression is empty")

// Snapshot is the state a guard sees.
type Snapshot struct {
	Location string
	Vars     map[string]string
}

// Guard is a compiled predicate.
type Guard struct {
	source  string
	program *goja.Program
	budget  time.Duration
}

// Compile parses expr once so later evaluations only run it.
func Compile(expr string) (*Guard, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, ErrEmpty
	}
	wrapped := "(function() {\n return (" + expr + ");\n})()"
	program, err := goja.Compile("guard", wrapped, false)
	if err != nil {
		return nil, fmt.Errorf("compile guard %q: %w", expr, err)
	}
	return &Guard{source: expr, program: program, budget: DefaultBudget}, nil
}

// Source returns the original expression.
func (g *Guard) Source() string {
	return g.source
}

// Evaluate runs the guard in a fresh runtime and coerces the result to bool.
func (g *Guard) Evaluate(s Snapshot) (bool, error) {
	runtime := goja.New()

	if err := runtime.Set("location", locationObject(s.Location)); err != nil {
		return false, fmt.Errorf("failed to set location: %w", err)
	}
	vars := make(map[string]any, len(s.Vars))
	for k, v := range s.Vars {
		vars[k] = v
	}
	if err := runtime.Set("vars", vars); err != nil {
		return false, fmt.Errorf("failed to set variables: %w", err)
	}

	timer := time.AfterFunc(g.budget, func() {
		runtime.Interrupt("guard evaluation exceeded budget")
	})
	defer timer.Stop()

	result, err := runtime.RunProgram(g.program)
	if err != nil {
		return false, fmt.Errorf("evaluate guard %q: %w", g.source, err)
	}
	return result.ToBoolean(), nil
}

// Evaluate compiles and runs expr in one call.
func Evaluate(expr string, s Snapshot) (bool, error) {
	g, err := Compile(expr)
	if err != nil {
		return false, err
	}
	return g.Evaluate(s)
}

func locationObject(href string) map[string]any {
	loc := map[string]any{
		"href":     href,
		"host":     "",
		"hostname": "",
		"pathname": "",
		"hash":     "",
		"search":   "",
	}
	u, err := url.Parse(href)
	if err != nil {
		return loc
	}
	loc["host"] = u.Host
	loc["hostname"] = u.Hostname()
	loc["pathname"] = u.Path
	if u.Fragment != "" {
		loc["hash"] = "#" + u.Fragment
	}
	if u.RawQuery != "" {
		loc["search"] = "?" + u.RawQuery
	}
	return loc
}
