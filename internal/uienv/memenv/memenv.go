// Package memenv is an in-memory, clock-driven UI environment for tests and
// dry runs. Nodes can appear after a delay and react to clicks and navigation.
package memenv

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/opencode-ai/uiwalk/internal/uienv"
)

// Node is one element of the fake UI tree.
type Node struct {
	ID string

	// Selectors lists the selectors this node answers to, e.g. "button" and ".primary".
	Selectors []string

	Text   string
	Attrs  map[string]string
	Hidden bool

	// OnClick runs after the click is recorded, without the env lock held.
	OnClick func(env *Env)
}

type entry struct {
	node      Node
	visibleAt time.Time
}

// Env implements uienv.Environment.
type Env struct {
	mu          sync.Mutex
	clock       clockwork.Clock
	location    string
	entries     []*entry
	onNavigate  func(env *Env, url string)
	findErr     func(d uienv.Descriptor) error
	clicks      map[string]int
	navigations []string
	finds       int
}

var _ uienv.Environment = (*Env)(nil)

// New creates an empty environment at the given location.
func New(clock clockwork.Clock, location string) *Env {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Env{
		clock:    clock,
		location: location,
		clicks:   make(map[string]int),
	}
}

// Add inserts a node that is present immediately.
func (e *Env) Add(n Node) {
	e.AddAfter(n, 0)
}

// AddAfter inserts a node that appears once the clock has advanced by delay.
func (e *Env) AddAfter(n Node, delay time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = append(e.entries, &entry{node: n, visibleAt: e.clock.Now().Add(delay)})
}

// Remove deletes a node by ID.
func (e *Env) Remove(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = slices.DeleteFunc(e.entries, func(en *entry) bool {
		return en.node.ID == id
	})
}

// SetLocation changes the current location without recording a navigation.
func (e *Env) SetLocation(url string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.location = url
}

// OnNavigate registers a handler run after each Navigate call.
func (e *Env) OnNavigate(fn func(env *Env, url string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onNavigate = fn
}

// FailFinds makes Find return the hook's error when non-nil.
func (e *Env) FailFinds(fn func(d uienv.Descriptor) error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.findErr = fn
}

// Clicks returns how many times the node was clicked.
func (e *Env) Clicks(id string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clicks[id]
}

// TotalClicks returns the number of clicks across all nodes.
func (e *Env) TotalClicks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	total := 0
	for _, n := range e.clicks {
		total += n
	}
	return total
}

// Navigations returns the URLs passed to Navigate, in order.
func (e *Env) Navigations() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.navigations)
}

// Finds returns the number of Find calls.
func (e *Env) Finds() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finds
}

// Find returns the first revealed node matching the descriptor.
func (e *Env) Find(ctx context.Context, d uienv.Descriptor) (*uienv.Element, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.finds++
	if e.findErr != nil {
		if err := e.findErr(d); err != nil {
			return nil, err
		}
	}

	now := e.clock.Now()
	for _, en := range e.entries {
		if now.Before(en.visibleAt) {
			continue
		}
		if !slices.Contains(en.node.Selectors, d.Selector) {
			continue
		}
		if d.Visible && en.node.Hidden {
			continue
		}
		attrs := en.node.Attrs
		lookup := func(name string) (string, bool) {
			v, ok := attrs[name]
			return v, ok
		}
		if !d.MatchesContent(en.node.Text, lookup) {
			continue
		}
		return &uienv.Element{Ref: en.node.ID, Text: en.node.Text}, nil
	}
	return nil, nil
}

// IsVisible reports whether the node is revealed and not hidden.
func (e *Env) IsVisible(ctx context.Context, el uienv.Element) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	en := e.lookup(el.Ref)
	if en == nil {
		return false, fmt.Errorf("%w: %s", uienv.ErrNoSuchElement, el.Ref)
	}
	return !en.node.Hidden && !e.clock.Now().Before(en.visibleAt), nil
}

// Invoke records the action and runs the node's click handler.
func (e *Env) Invoke(ctx context.Context, el uienv.Element, action uienv.Action) error {
	e.mu.Lock()
	en := e.lookup(el.Ref)
	if en == nil {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", uienv.ErrNoSuchElement, el.Ref)
	}
	var handler func(*Env)
	if action == uienv.ActionClick {
		e.clicks[el.Ref]++
		handler = en.node.OnClick
	}
	e.mu.Unlock()

	if handler != nil {
		handler(e)
	}
	return nil
}

// CurrentLocation returns the current URL.
func (e *Env) CurrentLocation(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.location, nil
}

// Navigate records the navigation, updates the location and runs the handler.
func (e *Env) Navigate(ctx context.Context, url string) error {
	e.mu.Lock()
	e.navigations = append(e.navigations, url)
	e.location = url
	handler := e.onNavigate
	e.mu.Unlock()

	if handler != nil {
		handler(e, url)
	}
	return nil
}

func (e *Env) lookup(id string) *entry {
	for _, en := range e.entries {
		if en.node.ID == id {
			return en
		}
	}
	return nil
}
