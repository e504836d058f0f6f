// Package uienv defines the environment capability the sequencer acts on: a
// queryable, mutable UI tree reachable through element descriptors.
package uienv

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoSuchElement is returned when an element handle no longer resolves.
var ErrNoSuchElement = errors.New("no such element")

// MatchKind selects how a descriptor's values are compared.
type MatchKind string

const (
	// MatchAny accepts every element under the selector.
	MatchAny MatchKind = ""
	// MatchExactText requires trimmed text content equal to Values[0].
	MatchExactText MatchKind = "exact-text"
	// MatchContainsText requires text content containing every value.
	MatchContainsText MatchKind = "contains-text"
	// MatchAttribute requires Attribute to equal Values[0].
	MatchAttribute MatchKind = "attribute"
)

// Action is an effect invoked on an element.
type Action string

const (
	ActionClick Action = "click"
	ActionFocus Action = "focus"
)

// Descriptor locates an element structurally and textually.
type Descriptor struct {
	// Selector scopes candidates, e.g. ".ones-tabs-item" or `[role="dialog"]`.
	Selector string `json:"selector" yaml:"selector"`

	Match     MatchKind `json:"match,omitempty" yaml:"match,omitempty"`
	Values    []string  `json:"values,omitempty" yaml:"values,omitempty"`
	Attribute string    `json:"attribute,omitempty" yaml:"attribute,omitempty"`

	// Visible restricts matches to rendered elements.
	Visible bool `json:"visible,omitempty" yaml:"visible,omitempty"`
}

// Validate checks that the descriptor is evaluable.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Selector) == "" {
		return fmt.Errorf("descriptor selector is required")
	}
	switch d.Match {
	case MatchAny:
	case MatchExactText, MatchContainsText:
		if len(d.Values) == 0 {
			return fmt.Errorf("descriptor %s match needs at least one value", d.Match)
		}
	case MatchAttribute:
		if strings.TrimSpace(d.Attribute) == "" {
			return fmt.Errorf("descriptor attribute match needs an attribute name")
		}
		if len(d.Values) == 0 {
			return fmt.Errorf("descriptor attribute match needs a value")
		}
	default:
		return fmt.Errorf("unknown descriptor match %q", d.Match)
	}
	return nil
}

// MatchesContent applies the text/attribute part of the descriptor. Selector
// scoping and visibility are left to the environment.
func (d Descriptor) MatchesContent(text string, attr func(name string) (string, bool)) bool {
	text = strings.TrimSpace(text)
	switch d.Match {
	case MatchAny:
		return true
	case MatchExactText:
		return len(d.Values) > 0 && text == d.Values[0]
	case MatchContainsText:
		for _, v := range d.Values {
			if !strings.Contains(text, v) {
				return false
			}
		}
		return true
	case MatchAttribute:
		if attr == nil || len(d.Values) == 0 {
			return false
		}
		got, ok := attr(d.Attribute)
		return ok && got == d.Values[0]
	default:
		return false
	}
}

// String renders the descriptor for error messages.
func (d Descriptor) String() string {
	var b strings.Builder
	b.WriteString(d.Selector)
	switch d.Match {
	case MatchExactText:
		fmt.Fprintf(&b, " text=%q", first(d.Values))
	case MatchContainsText:
		fmt.Fprintf(&b, " contains=%q", strings.Join(d.Values, " & "))
	case MatchAttribute:
		fmt.Fprintf(&b, " [%s=%q]", d.Attribute, first(d.Values))
	}
	if d.Visible {
		b.WriteString(" visible")
	}
	return b.String()
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// Element is an opaque handle returned by Find.
type Element struct {
	Ref  string `json:"ref"`
	Text string `json:"text,omitempty"`
}

// Environment is the external UI the engine observes and acts upon.
// Find returns nil without error when nothing matches.
type Environment interface {
	Find(ctx context.Context, d Descriptor) (*Element, error)
	IsVisible(ctx context.Context, el Element) (bool, error)
	Invoke(ctx context.Context, el Element, action Action) error
	CurrentLocation(ctx context.Context) (string, error)
	Navigate(ctx context.Context, url string) error
}

// FindVisible returns the first match only if it is visible.
func FindVisible(ctx context.Context, env Environment, d Descriptor) (*Element, bool, error) {
	el, err := env.Find(ctx, d)
	if err != nil || el == nil {
		return nil, false, err
	}
	visible, err := env.IsVisible(ctx, *el)
	if err != nil {
		return nil, false, err
	}
	return el, visible, nil
}
